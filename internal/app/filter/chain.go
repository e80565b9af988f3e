package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// Settings is the per-filter configuration handed to BuildChain.
type Settings struct {
	Enabled  bool
	Settings map[string]any
}

// BuildChain creates a chain from the registered filters enabled in cfg.
// session_active_filter is always first. Filters run in name order after it.
func BuildChain(cfg map[string]Settings) (*Chain, error) {
	for name := range cfg {
		if _, ok := registry[name]; !ok {
			return nil, errors.Newf("unknown filter: %s", name)
		}
	}

	c := NewChain()
	c.Add(&SessionActiveFilter{})

	for _, name := range Names() {
		if name == sessionActiveFilterName {
			continue
		}
		s, ok := cfg[name]
		if !ok || !s.Enabled {
			continue
		}
		f := registry[name]()
		if err := f.ValidateConfig(s.Settings); err != nil {
			return nil, errors.Wrapf(err, "invalid settings for %s", name)
		}
		c.Add(f)
		zlog.Info().Msgf("filter enabled: name=%s", name)
	}
	return c, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the request.
func (c *Chain) Execute(ctx context.Context, req Request, v karaoke.Video, s Snapshot) Result {
	for _, f := range c.filters {
		result := f.Check(ctx, req, v, s)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
