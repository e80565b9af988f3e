package filter

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

func queued(videoID, title, addedBy string) karaoke.QueueItem {
	return karaoke.QueueItem{ID: "id-" + videoID, VideoID: videoID, Title: title, AddedBy: addedBy}
}

func TestSessionActiveFilter_Check(t *testing.T) {
	f := &SessionActiveFilter{}

	assert.True(t, f.Check(context.Background(), Request{}, karaoke.Video{}, Snapshot{Active: true}).Accepted)

	result := f.Check(context.Background(), Request{}, karaoke.Video{}, Snapshot{Active: false})
	assert.False(t, result.Accepted)
	assert.Equal(t, "session_ended", result.Code)
}

func TestQueueLengthLimitFilter_Check(t *testing.T) {
	tests := []struct {
		name         string
		maxItems     int
		queueLen     int
		wantAccepted bool
	}{
		{name: "empty queue", maxItems: 2, queueLen: 0, wantAccepted: true},
		{name: "one slot left", maxItems: 2, queueLen: 1, wantAccepted: true},
		{name: "full", maxItems: 2, queueLen: 2, wantAccepted: false},
		{name: "over full", maxItems: 2, queueLen: 5, wantAccepted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewQueueLengthLimitFilter()
			f.config = &QueueLengthLimitConfig{MaxItems: tt.maxItems}

			s := Snapshot{Active: true}
			for i := 0; i < tt.queueLen; i++ {
				s.Queue = append(s.Queue, queued(fmt.Sprintf("v%d", i), "", ""))
			}

			result := f.Check(context.Background(), Request{}, karaoke.Video{ID: "new"}, s)
			assert.Equal(t, tt.wantAccepted, result.Accepted)
			if !tt.wantAccepted {
				assert.Equal(t, "queue_full", result.Code)
			}
		})
	}
}

func TestQueueLengthLimitFilter_ValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		wantErr  bool
		wantMax  int
	}{
		{name: "defaults", settings: map[string]any{}, wantMax: 50},
		{name: "nil settings", settings: nil, wantMax: 50},
		{name: "explicit", settings: map[string]any{"max_items": 10}, wantMax: 10},
		{name: "string from yaml", settings: map[string]any{"max_items": "7"}, wantMax: 7},
		{name: "too large", settings: map[string]any{"max_items": 5000}, wantErr: true},
		{name: "negative", settings: map[string]any{"max_items": -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewQueueLengthLimitFilter()
			err := f.ValidateConfig(tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMax, f.config.MaxItems)
		})
	}
}

func TestGuestLimitFilter_Check(t *testing.T) {
	f := &GuestLimitFilter{}
	require.NoError(t, f.ValidateConfig(map[string]any{"max_pending": 2}))

	s := Snapshot{Active: true, Queue: []karaoke.QueueItem{
		queued("v1", "", "Alice"),
		queued("v2", "", "alice"),
		queued("v3", "", "Guest"),
		queued("v4", "", "Guest"),
		queued("v5", "", "Guest"),
	}}

	tests := []struct {
		name         string
		addedBy      string
		wantAccepted bool
	}{
		{name: "guest at limit", addedBy: "Alice", wantAccepted: false},
		{name: "guest under limit", addedBy: "Bob", wantAccepted: true},
		{name: "anonymous guests are not limited", addedBy: "Guest", wantAccepted: true},
		{name: "empty name is anonymous", addedBy: "", wantAccepted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(context.Background(), Request{AddedBy: tt.addedBy}, karaoke.Video{ID: "new"}, s)
			assert.Equal(t, tt.wantAccepted, result.Accepted)
			if !tt.wantAccepted {
				assert.Equal(t, "guest_limit", result.Code)
			}
		})
	}
}

func TestBlockedKeywordFilter(t *testing.T) {
	f := &BlockedKeywordFilter{}
	require.NoError(t, f.ValidateConfig(map[string]any{"keywords": []any{"Explicit", " nsfw "}}))

	assert.False(t, f.Check(context.Background(), Request{}, karaoke.Video{Title: "Song (EXPLICIT version)"}, Snapshot{}).Accepted)
	assert.False(t, f.Check(context.Background(), Request{}, karaoke.Video{Title: "nsfw remix"}, Snapshot{}).Accepted)
	assert.True(t, f.Check(context.Background(), Request{}, karaoke.Video{Title: "Clean song"}, Snapshot{}).Accepted)

	assert.Error(t, f.ValidateConfig(map[string]any{"keywords": []any{"  "}}))
}

func TestDuplicateVideoFilter_Check(t *testing.T) {
	current := queued("cur00000000", "Now Playing", "Guest")
	s := Snapshot{
		Active:      true,
		CurrentSong: &current,
		Queue: []karaoke.QueueItem{
			queued("abc00000000", "Bohemian Rhapsody (Karaoke Version)", "Guest"),
		},
	}

	tests := []struct {
		name         string
		video        karaoke.Video
		wantAccepted bool
	}{
		{name: "same video id in queue", video: karaoke.Video{ID: "abc00000000", Title: "x"}, wantAccepted: false},
		{name: "same video id playing", video: karaoke.Video{ID: "cur00000000", Title: "y"}, wantAccepted: false},
		{name: "re-upload with lyrics tag", video: karaoke.Video{ID: "zzz00000000", Title: "Bohemian Rhapsody [Lyrics]"}, wantAccepted: false},
		{name: "re-upload with official video suffix", video: karaoke.Video{ID: "zzz00000001", Title: "Bohemian Rhapsody - Official Video"}, wantAccepted: false},
		{name: "different song", video: karaoke.Video{ID: "zzz00000002", Title: "Don't Stop Me Now"}, wantAccepted: true},
	}

	f := &DuplicateVideoFilter{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(context.Background(), Request{}, tt.video, s)
			assert.Equal(t, tt.wantAccepted, result.Accepted)
			if !tt.wantAccepted {
				assert.Equal(t, "duplicate_video", result.Code)
			}
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Bohemian Rhapsody (Karaoke Version)", "bohemian rhapsody"},
		{"Bohemian Rhapsody [Official Video]", "bohemian rhapsody"},
		{"Bohemian  Rhapsody - Karaoke", "bohemian rhapsody"},
		{"【カラオケ】 夜に駆ける", "夜に駆ける"},
		{"Plain Title", "plain title"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeTitle(tt.input))
		})
	}
}

func TestBuildChain(t *testing.T) {
	tests := []struct {
		name      string
		cfg       map[string]Settings
		wantNames []string
		wantErr   string
	}{
		{
			name:      "session active filter is always present",
			cfg:       nil,
			wantNames: []string{"session_active_filter"},
		},
		{
			name: "enabled filters in name order",
			cfg: map[string]Settings{
				"queue_length_limit_filter": {Enabled: true, Settings: map[string]any{"max_items": 5}},
				"duplicate_video_filter":    {Enabled: true},
				"guest_limit_filter":        {Enabled: false},
			},
			wantNames: []string{"session_active_filter", "duplicate_video_filter", "queue_length_limit_filter"},
		},
		{
			name:    "unknown filter",
			cfg:     map[string]Settings{"nope_filter": {Enabled: true}},
			wantErr: "unknown filter",
		},
		{
			name:    "invalid settings",
			cfg:     map[string]Settings{"queue_length_limit_filter": {Enabled: true, Settings: map[string]any{"max_items": 5000}}},
			wantErr: "invalid settings for queue_length_limit_filter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := BuildChain(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			var names []string
			for _, f := range chain.Filters() {
				names = append(names, f.Name())
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestChain_Execute(t *testing.T) {
	chain, err := BuildChain(map[string]Settings{
		"duplicate_video_filter":    {Enabled: true},
		"queue_length_limit_filter": {Enabled: true, Settings: map[string]any{"max_items": 1}},
	})
	require.NoError(t, err)

	ctx := context.Background()
	v := karaoke.Video{ID: "abc00000000", Title: "Song"}

	assert.Equal(t, Accept(), chain.Execute(ctx, Request{}, v, Snapshot{Active: true}))
	assert.Equal(t, Reject("session_ended"), chain.Execute(ctx, Request{}, v, Snapshot{Active: false}))
	assert.Equal(t, Reject("duplicate_video"), chain.Execute(ctx, Request{}, v,
		Snapshot{Active: true, Queue: []karaoke.QueueItem{queued("abc00000000", "Song", "")}}))
	assert.Equal(t, Reject("queue_full"), chain.Execute(ctx, Request{}, v,
		Snapshot{Active: true, Queue: []karaoke.QueueItem{queued("other000000", "Other", "")}}))
}

func TestRegisteredFilters(t *testing.T) {
	assert.Equal(t, []string{
		"blocked_keyword_filter",
		"duplicate_video_filter",
		"guest_limit_filter",
		"queue_length_limit_filter",
		"session_active_filter",
	}, Names())

	for name, factory := range GetRegistered() {
		f := factory()
		assert.Equal(t, name, f.Name())
		assert.NotEmpty(t, f.Description())
		assert.NotEmpty(t, f.ReturnCodes())
	}
}
