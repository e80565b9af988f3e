// Package dispatch holds the client-side view of a session and the single
// function that folds events into it.
package dispatch

import (
	"github.com/osa030/karaoke-hub/internal/domain/event"
	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

// State is a client's view of one session.
type State struct {
	CurrentSong *karaoke.QueueItem
	Queue       []karaoke.QueueItem
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	c := State{Queue: make([]karaoke.QueueItem, len(s.Queue))}
	copy(c.Queue, s.Queue)
	if s.CurrentSong != nil {
		song := *s.CurrentSong
		c.CurrentSong = &song
	}
	return c
}

// Apply returns the state after ev. It never modifies s, and applying the same
// event twice gives the same result as applying it once.
//
//   - ADD_TO_QUEUE appends the item, replaces an item with the same ID in place,
//     and is ignored when the item is the current song.
//   - REMOVE_FROM_QUEUE drops the item; an absent ID changes nothing.
//   - UPDATE_CURRENT_SONG replaces the current song, then filters it out of the queue.
//   - JOIN_SESSION and LEAVE_SESSION change nothing.
func Apply(s State, ev event.Event) State {
	next := s.Clone()

	switch e := ev.(type) {
	case event.AddToQueue:
		if next.CurrentSong != nil && next.CurrentSong.ID == e.Item.ID {
			return next
		}
		if i := karaoke.IndexOf(next.Queue, e.Item.ID); i >= 0 {
			next.Queue[i] = e.Item
			return next
		}
		next.Queue = append(next.Queue, e.Item)

	case event.RemoveFromQueue:
		next.Queue = without(next.Queue, e.ItemID)

	case event.UpdateCurrentSong:
		if e.Item == nil {
			next.CurrentSong = nil
			return next
		}
		song := *e.Item
		next.CurrentSong = &song
		next.Queue = without(next.Queue, song.ID)
	}

	return next
}

func without(queue []karaoke.QueueItem, id string) []karaoke.QueueItem {
	out := queue[:0]
	for _, it := range queue {
		if it.ID != id {
			out = append(out, it)
		}
	}
	return out
}
