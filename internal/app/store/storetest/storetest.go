// Package storetest holds the behaviour every store.Store backend must satisfy.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/karaoke-hub/internal/app/store"
	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

var base = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func item(id string, offset time.Duration) karaoke.QueueItem {
	return karaoke.QueueItem{
		ID:        id,
		VideoID:   "abc",
		Title:     "T",
		Thumbnail: "https://img.youtube.com/vi/abc/mqdefault.jpg",
		AddedBy:   "Guest",
		AddedAt:   base.Add(offset),
	}
}

func ids(items []karaoke.QueueItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

// Run executes the conformance suite against newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("create and get session", func(t *testing.T) {
		s := newStore(t)
		created, err := s.CreateSession(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)
		assert.True(t, created.Active)
		assert.Nil(t, created.CurrentSong)

		got, err := s.GetSession(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.True(t, got.Active)
		assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Second)
	})

	t.Run("unknown session", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetSession(ctx, "missing")
		assert.True(t, errors.Is(err, store.ErrSessionNotFound), "got %v", err)

		_, err = s.ListQueue(ctx, "missing")
		assert.True(t, errors.Is(err, store.ErrSessionNotFound), "got %v", err)

		err = s.AppendQueueItem(ctx, "missing", item("q1", 0))
		assert.True(t, errors.Is(err, store.ErrSessionNotFound), "got %v", err)

		err = s.SetCurrentSong(ctx, "missing", nil)
		assert.True(t, errors.Is(err, store.ErrSessionNotFound), "got %v", err)

		err = s.EndSession(ctx, "missing")
		assert.True(t, errors.Is(err, store.ErrSessionNotFound), "got %v", err)
	})

	t.Run("queue is ordered by addedAt", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.CreateSession(ctx)
		require.NoError(t, err)

		require.NoError(t, s.AppendQueueItem(ctx, sess.ID, item("q3", 3*time.Second)))
		require.NoError(t, s.AppendQueueItem(ctx, sess.ID, item("q1", time.Second)))
		require.NoError(t, s.AppendQueueItem(ctx, sess.ID, item("q2", 2*time.Second)))

		queue, err := s.ListQueue(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"q1", "q2", "q3"}, ids(queue))
		assert.Equal(t, "abc", queue[0].VideoID)
		assert.Equal(t, "Guest", queue[0].AddedBy)
		assert.True(t, base.Add(time.Second).Equal(queue[0].AddedAt))
	})

	t.Run("addedAt round-trips exactly", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.CreateSession(ctx)
		require.NoError(t, err)

		missing := item("q1", 0)
		missing.AddedAt = time.Time{}
		precise := item("q2", 123456789*time.Nanosecond)
		require.NoError(t, s.AppendQueueItem(ctx, sess.ID, precise))
		require.NoError(t, s.AppendQueueItem(ctx, sess.ID, missing))

		queue, err := s.ListQueue(ctx, sess.ID)
		require.NoError(t, err)
		require.Equal(t, []string{"q1", "q2"}, ids(queue))
		assert.True(t, queue[0].AddedAt.IsZero(), "got %s", queue[0].AddedAt)
		assert.True(t, precise.AddedAt.Equal(queue[1].AddedAt), "got %s want %s", queue[1].AddedAt, precise.AddedAt)
	})

	t.Run("append with existing id overwrites", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.CreateSession(ctx)
		require.NoError(t, err)

		require.NoError(t, s.AppendQueueItem(ctx, sess.ID, item("q1", 0)))
		updated := item("q1", 0)
		updated.Title = "Updated"
		require.NoError(t, s.AppendQueueItem(ctx, sess.ID, updated))

		queue, err := s.ListQueue(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, queue, 1)
		assert.Equal(t, "Updated", queue[0].Title)
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.CreateSession(ctx)
		require.NoError(t, err)
		require.NoError(t, s.AppendQueueItem(ctx, sess.ID, item("q1", 0)))
		require.NoError(t, s.AppendQueueItem(ctx, sess.ID, item("q2", time.Second)))

		require.NoError(t, s.RemoveQueueItem(ctx, sess.ID, "q1"))
		require.NoError(t, s.RemoveQueueItem(ctx, sess.ID, "q1"))
		require.NoError(t, s.RemoveQueueItem(ctx, sess.ID, "never-existed"))

		queue, err := s.ListQueue(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"q2"}, ids(queue))
	})

	t.Run("set and clear current song", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.CreateSession(ctx)
		require.NoError(t, err)

		song := item("q1", 0)
		require.NoError(t, s.SetCurrentSong(ctx, sess.ID, &song))
		got, err := s.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		require.NotNil(t, got.CurrentSong)
		assert.Equal(t, "q1", got.CurrentSong.ID)
		assert.Equal(t, "T", got.CurrentSong.Title)

		require.NoError(t, s.SetCurrentSong(ctx, sess.ID, nil))
		got, err = s.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Nil(t, got.CurrentSong)
	})

	t.Run("end session", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.CreateSession(ctx)
		require.NoError(t, err)

		require.NoError(t, s.EndSession(ctx, sess.ID))
		got, err := s.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.False(t, got.Active)
	})

	t.Run("connection records", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.CreateSession(ctx)
		require.NoError(t, err)

		require.NoError(t, s.PutConnection(ctx, karaoke.Connection{ConnectionID: "a", SessionID: sess.ID, JoinedAt: base}))
		require.NoError(t, s.PutConnection(ctx, karaoke.Connection{ConnectionID: "b", SessionID: sess.ID, JoinedAt: base}))
		require.NoError(t, s.PutConnection(ctx, karaoke.Connection{ConnectionID: "c", SessionID: "other", JoinedAt: base}))

		conns, err := s.ListConnections(ctx, sess.ID)
		require.NoError(t, err)
		assert.Len(t, conns, 2)

		require.NoError(t, s.DeleteConnection(ctx, "a"))
		require.NoError(t, s.DeleteConnection(ctx, "a"))
		conns, err = s.ListConnections(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, conns, 1)
		assert.Equal(t, "b", conns[0].ConnectionID)

		require.NoError(t, s.PurgeConnections(ctx))
		conns, err = s.ListConnections(ctx, sess.ID)
		require.NoError(t, err)
		assert.Empty(t, conns)
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		s := newStore(t)
		s1, err := s.CreateSession(ctx)
		require.NoError(t, err)
		s2, err := s.CreateSession(ctx)
		require.NoError(t, err)
		require.NotEqual(t, s1.ID, s2.ID)

		require.NoError(t, s.AppendQueueItem(ctx, s1.ID, item("q1", 0)))

		queue, err := s.ListQueue(ctx, s2.ID)
		require.NoError(t, err)
		assert.Empty(t, queue)
	})
}
