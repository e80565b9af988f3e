package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

// QueueLengthLimitConfig represents the configuration for QueueLengthLimitFilter.
type QueueLengthLimitConfig struct {
	MaxItems int `yaml:"max_items" mapstructure:"max_items" default:"50" validate:"gte=1,lte=1000"`
}

// QueueLengthLimitFilter rejects requests once the queue holds MaxItems songs.
type QueueLengthLimitFilter struct {
	config *QueueLengthLimitConfig
}

// NewQueueLengthLimitFilter creates a new queue length limit filter.
func NewQueueLengthLimitFilter() *QueueLengthLimitFilter {
	return &QueueLengthLimitFilter{}
}

func (f *QueueLengthLimitFilter) Name() string {
	return "queue_length_limit_filter"
}

func (f *QueueLengthLimitFilter) Description() string {
	return "Checks if the queue has room for another song"
}

func (f *QueueLengthLimitFilter) ReturnCodes() []string {
	return []string{"queue_full"}
}

func (f *QueueLengthLimitFilter) ValidateConfig(settings map[string]any) error {
	var config QueueLengthLimitConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &config,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}

	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}

	f.config = &config
	zlog.Info().Msgf("queue length limit filter config: %+v", config)
	return nil
}

func (f *QueueLengthLimitFilter) Check(ctx context.Context, req Request, v karaoke.Video, s Snapshot) Result {
	// If config is not set, accept all requests
	if f.config == nil {
		return Accept()
	}

	if len(s.Queue) >= f.config.MaxItems {
		return Reject("queue_full")
	}
	return Accept()
}

func init() {
	Register("queue_length_limit_filter", func() Filter {
		return &QueueLengthLimitFilter{}
	})
}
