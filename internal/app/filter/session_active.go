package filter

import (
	"context"

	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

const sessionActiveFilterName = "session_active_filter"

// SessionActiveFilter rejects requests for a session the host has ended.
type SessionActiveFilter struct{}

func (f *SessionActiveFilter) Name() string {
	return sessionActiveFilterName
}

func (f *SessionActiveFilter) Description() string {
	return "Checks if the session is still accepting requests"
}

func (f *SessionActiveFilter) ReturnCodes() []string {
	return []string{"session_ended"}
}

func (f *SessionActiveFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *SessionActiveFilter) Check(ctx context.Context, req Request, v karaoke.Video, s Snapshot) Result {
	if !s.Active {
		return Reject("session_ended")
	}
	return Accept()
}

func init() {
	Register(sessionActiveFilterName, func() Filter {
		return &SessionActiveFilter{}
	})
}
