package filter

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

// GuestLimitConfig represents the configuration for GuestLimitFilter.
type GuestLimitConfig struct {
	MaxPending int `mapstructure:"max_pending" default:"3" validate:"gte=1"`
}

// GuestLimitFilter limits how many queued songs one named guest may have waiting.
// Anonymous guests share the default name and are not limited.
type GuestLimitFilter struct {
	config GuestLimitConfig
}

func (f *GuestLimitFilter) Name() string {
	return "guest_limit_filter"
}

func (f *GuestLimitFilter) Description() string {
	return "Checks if the guest has too many songs waiting in the queue"
}

func (f *GuestLimitFilter) ReturnCodes() []string {
	return []string{"guest_limit"}
}

func (f *GuestLimitFilter) ValidateConfig(settings map[string]any) error {
	var config GuestLimitConfig
	if err := mapstructure.WeakDecode(settings, &config); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	f.config = config
	return nil
}

func (f *GuestLimitFilter) Check(ctx context.Context, req Request, v karaoke.Video, s Snapshot) Result {
	name := strings.TrimSpace(req.AddedBy)
	if name == "" || strings.EqualFold(name, karaoke.DefaultAddedBy) || f.config.MaxPending == 0 {
		return Accept()
	}

	pending := 0
	for _, item := range s.Queue {
		if strings.EqualFold(item.AddedBy, name) {
			pending++
		}
	}
	if pending >= f.config.MaxPending {
		return Reject("guest_limit")
	}
	return Accept()
}

func init() {
	Register("guest_limit_filter", func() Filter {
		return &GuestLimitFilter{}
	})
}
