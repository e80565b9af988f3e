package filter

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

// BlockedKeywordConfig represents the configuration for BlockedKeywordFilter.
type BlockedKeywordConfig struct {
	Keywords []string `mapstructure:"keywords"`
}

// BlockedKeywordFilter rejects videos whose title contains a blocked keyword.
type BlockedKeywordFilter struct {
	keywords []string
}

func (f *BlockedKeywordFilter) Name() string {
	return "blocked_keyword_filter"
}

func (f *BlockedKeywordFilter) Description() string {
	return "Checks if the video title contains a blocked keyword"
}

func (f *BlockedKeywordFilter) ReturnCodes() []string {
	return []string{"blocked_keyword"}
}

func (f *BlockedKeywordFilter) ValidateConfig(settings map[string]any) error {
	var config BlockedKeywordConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	f.keywords = f.keywords[:0]
	for _, kw := range config.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			return errors.New("keywords must not be empty")
		}
		f.keywords = append(f.keywords, kw)
	}
	return nil
}

func (f *BlockedKeywordFilter) Check(ctx context.Context, req Request, v karaoke.Video, s Snapshot) Result {
	title := strings.ToLower(v.Title)
	for _, kw := range f.keywords {
		if strings.Contains(title, kw) {
			return Reject("blocked_keyword")
		}
	}
	return Accept()
}

func init() {
	Register("blocked_keyword_filter", func() Filter {
		return &BlockedKeywordFilter{}
	})
}
