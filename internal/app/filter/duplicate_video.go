package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

// DuplicateVideoFilter checks for duplicate songs in the queue and the current song.
// Detects:
// - Exact video ID matches
// - Re-uploads of the same song (normalized title match)
type DuplicateVideoFilter struct{}

func (f *DuplicateVideoFilter) Name() string {
	return "duplicate_video_filter"
}

func (f *DuplicateVideoFilter) Description() string {
	return "Rejects songs already queued or playing, including karaoke and lyric re-uploads"
}

func (f *DuplicateVideoFilter) ReturnCodes() []string {
	return []string{"duplicate_video"}
}

func (f *DuplicateVideoFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *DuplicateVideoFilter) Check(ctx context.Context, req Request, v karaoke.Video, s Snapshot) Result {
	candidates := s.Queue
	if s.CurrentSong != nil {
		candidates = append([]karaoke.QueueItem{*s.CurrentSong}, s.Queue...)
	}

	title := normalizeTitle(v.Title)
	for _, item := range candidates {
		if item.VideoID == v.ID {
			return Reject("duplicate_video")
		}
		if title != "" && normalizeTitle(item.Title) == title {
			return Reject("duplicate_video")
		}
	}
	return Accept()
}

var (
	// Bracketed annotations commonly appended to karaoke uploads.
	annotationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*[\(\[【].*?(karaoke|カラオケ|instrumental|off ?vocal|lyrics?|歌詞|official|mv|m/v|video|audio|hd|4k).*?[\)\]】]`),
		regexp.MustCompile(`\s*-\s*(karaoke|instrumental|lyrics?|official (music )?video)\s*$`),
	}
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// normalizeTitle strips karaoke/lyric/official-video decorations from a title.
func normalizeTitle(title string) string {
	normalized := strings.ToLower(title)
	for _, p := range annotationPatterns {
		normalized = p.ReplaceAllString(normalized, "")
	}
	normalized = whitespacePattern.ReplaceAllString(strings.TrimSpace(normalized), " ")
	return strings.TrimRight(normalized, " -")
}

func init() {
	Register("duplicate_video_filter", func() Filter {
		return &DuplicateVideoFilter{}
	})
}
