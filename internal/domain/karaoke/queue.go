package karaoke

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// DefaultAddedBy is the display name used when a guest does not give one.
const DefaultAddedBy = "Guest"

// QueueItem is a song entry in a session's queue.
type QueueItem struct {
	ID        string    `json:"id"`        // Unique within the session, never reused
	VideoID   string    `json:"videoId"`   // YouTube video ID
	Title     string    `json:"title"`     // Video title
	Thumbnail string    `json:"thumbnail"` // Thumbnail URL
	AddedBy   string    `json:"addedBy"`   // Display name of the guest who queued it
	AddedAt   time.Time `json:"addedAt"`   // Queue ordering key
	Played    bool      `json:"played"`    // Reserved, never set by the hub
}

// NewQueueItem builds a queue item for a resolved video with a fresh ID.
func NewQueueItem(v Video, addedBy string) QueueItem {
	if addedBy == "" {
		addedBy = DefaultAddedBy
	}
	return QueueItem{
		ID:        uuid.New().String(),
		VideoID:   v.ID,
		Title:     v.Title,
		Thumbnail: v.Thumbnail,
		AddedBy:   addedBy,
		AddedAt:   time.Now().UTC(),
	}
}

// SortQueue orders items by AddedAt. Items with equal timestamps keep their relative order.
func SortQueue(items []QueueItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].AddedAt.Before(items[j].AddedAt)
	})
}

// IndexOf returns the index of the item with the given ID, or -1.
func IndexOf(items []QueueItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
