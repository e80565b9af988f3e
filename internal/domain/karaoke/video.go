package karaoke

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Video is the metadata returned by the video lookup.
type Video struct {
	ID        string `json:"videoId"`   // YouTube video ID
	Title     string `json:"title"`     // Video title
	Thumbnail string `json:"thumbnail"` // Medium thumbnail URL
}

// ThumbnailQuality selects one of the static thumbnail renditions.
type ThumbnailQuality string

const (
	ThumbnailDefault ThumbnailQuality = "default"
	ThumbnailMedium  ThumbnailQuality = "mqdefault"
	ThumbnailHigh    ThumbnailQuality = "hqdefault"
	ThumbnailMax     ThumbnailQuality = "maxresdefault"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// IsValidVideoID reports whether id has the shape of a YouTube video ID.
func IsValidVideoID(id string) bool {
	return videoIDPattern.MatchString(id)
}

// ThumbnailURL returns the static thumbnail URL for a video.
func ThumbnailURL(videoID string, q ThumbnailQuality) string {
	if q == "" {
		q = ThumbnailMedium
	}
	return fmt.Sprintf("https://img.youtube.com/vi/%s/%s.jpg", videoID, q)
}

// ExtractVideoID extracts the video ID from a YouTube URL or returns the input
// when it already is a bare video ID. Returns "" when nothing matches.
//
// Supported forms:
//   - https://www.youtube.com/watch?v=ID
//   - https://youtu.be/ID
//   - https://www.youtube.com/shorts/ID
//   - https://www.youtube.com/embed/ID
func ExtractVideoID(input string) string {
	input = strings.TrimSpace(input)
	if IsValidVideoID(input) {
		return input
	}

	u, err := url.Parse(input)
	if err != nil || u.Host == "" {
		return ""
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	host = strings.TrimPrefix(host, "m.")
	var candidate string
	switch host {
	case "youtu.be":
		candidate = firstSegment(u.Path)
	case "youtube.com", "music.youtube.com":
		switch {
		case u.Path == "/watch":
			candidate = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"):
			candidate = firstSegment(strings.TrimPrefix(u.Path, "/shorts"))
		case strings.HasPrefix(u.Path, "/embed/"):
			candidate = firstSegment(strings.TrimPrefix(u.Path, "/embed"))
		}
	}

	if !IsValidVideoID(candidate) {
		return ""
	}
	return candidate
}

func firstSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
