// Package filter provides the filter chain for video requests.
package filter

import (
	"context"
	"sort"

	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

// Request represents a guest asking for a video to be queued.
type Request struct {
	SessionID string
	VideoID   string
	AddedBy   string
}

// Snapshot is the session state a filter checks a request against.
type Snapshot struct {
	Active      bool
	CurrentSong *karaoke.QueueItem
	Queue       []karaoke.QueueItem
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "duplicate_video", "queue_full", "session_ended"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for request filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter configuration.
	ValidateConfig(settings map[string]any) error
	// Check performs the filter check.
	Check(ctx context.Context, req Request, v karaoke.Video, s Snapshot) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}

// Names returns the registered filter names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
