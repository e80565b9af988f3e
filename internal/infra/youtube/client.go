// Package youtube provides a client for the YouTube Data API video lookup.
package youtube

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/segmentio/encoding/json"
	"golang.org/x/oauth2"

	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

const (
	defaultBaseURL = "https://www.googleapis.com/youtube/v3/"
	// ReadOnlyScope is the OAuth scope needed for video lookups.
	ReadOnlyScope = "https://www.googleapis.com/auth/youtube.readonly"
)

// GoogleEndpoint is Google's OAuth 2.0 endpoint.
var GoogleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

var (
	// ErrInvalidVideoID is returned when the input is neither a video ID nor a YouTube URL.
	ErrInvalidVideoID = errors.New("invalid video id")
	// ErrVideoNotFound is returned when the video does not exist or is private.
	ErrVideoNotFound = errors.New("video not found")
	// ErrRateLimited is returned when the API quota or rate limit is exhausted.
	ErrRateLimited = errors.New("youtube API rate limited")
)

// Config represents YouTube client configuration. Either APIKey or the OAuth
// triple (ClientID, ClientSecret, RefreshToken) is required.
type Config struct {
	APIKey       string
	ClientID     string
	ClientSecret string
	RefreshToken string
	CacheTTL     time.Duration
}

type cacheEntry struct {
	video     karaoke.Video
	expiresAt time.Time
}

// Client is a YouTube Data API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cacheTTL   time.Duration
	maxRetries int
	retryDelay time.Duration

	cache   map[string]cacheEntry
	cacheMu sync.RWMutex
}

// New creates a new YouTube client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	var httpClient *http.Client
	switch {
	case cfg.APIKey != "":
		httpClient = &http.Client{Timeout: 10 * time.Second}
	case cfg.ClientID != "" && cfg.ClientSecret != "" && cfg.RefreshToken != "":
		oauthCfg := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     GoogleEndpoint,
			Scopes:       []string{ReadOnlyScope},
		}
		// Get HTTP client with auto-refresh capability
		httpClient = oauthCfg.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
		httpClient.Timeout = 10 * time.Second
	default:
		return nil, errors.New("youtube API key or OAuth credentials are required")
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    defaultBaseURL,
		httpClient: httpClient,
		cacheTTL:   ttl,
		maxRetries: 3,
		retryDelay: time.Second,
		cache:      make(map[string]cacheEntry),
	}, nil
}

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title      string `json:"title"`
			Thumbnails map[string]struct {
				URL string `json:"url"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// APIError represents an error response from the YouTube API.
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("youtube API error %d (%s): %s", e.StatusCode, e.Reason, e.Message)
}

// GetVideo returns the title and thumbnail of a video. input may be a video ID
// or any supported YouTube URL.
func (c *Client) GetVideo(ctx context.Context, input string) (*karaoke.Video, error) {
	id := karaoke.ExtractVideoID(input)
	if id == "" {
		return nil, errors.Wrapf(ErrInvalidVideoID, "%q", input)
	}

	c.cacheMu.RLock()
	if entry, ok := c.cache[id]; ok && time.Now().Before(entry.expiresAt) {
		c.cacheMu.RUnlock()
		zlog.Debug().Msgf("using cached video: video_id=%s", id)
		v := entry.video
		return &v, nil
	}
	c.cacheMu.RUnlock()

	var video *karaoke.Video
	err := c.retry(ctx, func() error {
		var err error
		video, err = c.fetchVideo(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.cacheMu.Lock()
	c.cache[id] = cacheEntry{video: *video, expiresAt: time.Now().Add(c.cacheTTL)}
	c.cacheMu.Unlock()
	zlog.Debug().Msgf("cached video: video_id=%s title=%s", id, video.Title)

	return video, nil
}

func (c *Client) fetchVideo(ctx context.Context, id string) (*karaoke.Video, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("id", id)
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"videos?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var er errorResponse
		if err := json.Unmarshal(body, &er); err == nil && er.Error.Code != 0 {
			apiErr.Message = er.Error.Message
			if len(er.Error.Errors) > 0 {
				apiErr.Reason = er.Error.Errors[0].Reason
			}
		}
		return nil, classify(apiErr)
	}

	var response videosResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrap(err, "failed to parse response")
	}
	if len(response.Items) == 0 {
		return nil, errors.Wrapf(ErrVideoNotFound, "video %s", id)
	}

	item := response.Items[0]
	thumbnail := karaoke.ThumbnailURL(id, karaoke.ThumbnailMedium)
	if t, ok := item.Snippet.Thumbnails["medium"]; ok && t.URL != "" {
		thumbnail = t.URL
	}

	return &karaoke.Video{
		ID:        id,
		Title:     item.Snippet.Title,
		Thumbnail: thumbnail,
	}, nil
}

// classify marks API errors with the package sentinels.
func classify(e *APIError) error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return errors.Mark(e, ErrVideoNotFound)
	case e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode == http.StatusForbidden && (e.Reason == "quotaExceeded" || e.Reason == "rateLimitExceeded" || e.Reason == "userRateLimitExceeded"):
		return errors.Mark(e, ErrRateLimited)
	default:
		return e
	}
}

// retry calls fn until it succeeds, fails with a non-retryable error or the
// attempts run out. The delay grows linearly.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "retry aborted")
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable: 429 and 5xx responses.
func isRetryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
}
