package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/karaoke-hub/internal/app/store"
	"github.com/osa030/karaoke-hub/internal/app/store/storetest"
	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := New(client, "test")
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := newTestStore(t)
		return s
	})
}

func TestStore_KeyLayout(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	sess, err := s.CreateSession(ctx)
	require.NoError(t, err)
	require.NoError(t, s.AppendQueueItem(ctx, sess.ID, karaoke.QueueItem{ID: "q1", VideoID: "abc"}))
	require.NoError(t, s.PutConnection(ctx, karaoke.Connection{ConnectionID: "a", SessionID: sess.ID}))

	assert.True(t, mr.Exists("test:session:"+sess.ID))
	assert.True(t, mr.Exists("test:queue:"+sess.ID))
	assert.True(t, mr.Exists("test:queue:"+sess.ID+":items"))
	assert.True(t, mr.Exists("test:conn:a"))
	assert.Equal(t, "1", mr.HGet("test:session:"+sess.ID, "active"))
}

func TestStore_PutConnectionMovesSession(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.PutConnection(ctx, karaoke.Connection{ConnectionID: "a", SessionID: "s1"}))
	require.NoError(t, s.PutConnection(ctx, karaoke.Connection{ConnectionID: "a", SessionID: "s2"}))

	s1, err := s.ListConnections(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, s1)
	s2, err := s.ListConnections(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, s2, 1)
}

func TestOpen_Unreachable(t *testing.T) {
	_, err := Open(context.Background(), Options{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
