package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/karaoke-hub/internal/app/session/registry"
	"github.com/osa030/karaoke-hub/internal/app/store"
	"github.com/osa030/karaoke-hub/internal/domain/event"
	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
	"github.com/osa030/karaoke-hub/internal/infra/store/memory"
)

type fakeSender struct {
	mu     sync.Mutex
	frames map[string][][]byte
	fail   map[string]bool
	block  map[string]bool
	closed map[string]int
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		frames: make(map[string][][]byte),
		fail:   make(map[string]bool),
		block:  make(map[string]bool),
		closed: make(map[string]int),
	}
}

func (f *fakeSender) Send(connID string, frame []byte) error {
	f.mu.Lock()
	if f.block[connID] {
		f.mu.Unlock()
		time.Sleep(time.Second)
		return nil
	}
	defer f.mu.Unlock()
	if f.fail[connID] {
		return errors.New("gone")
	}
	f.frames[connID] = append(f.frames[connID], frame)
	return nil
}

func (f *fakeSender) Close(connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[connID]++
}

func (f *fakeSender) setFail(connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[connID] = true
}

// received returns the decoded broadcast events delivered to connID.
func (f *fakeSender) received(t *testing.T, connID string) []event.Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []event.Event
	for _, frame := range f.frames[connID] {
		if _, isErr := event.DecodeError(frame); isErr {
			continue
		}
		ev, err := event.Decode(frame)
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func (f *fakeSender) errors(connID string) []event.ErrorReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []event.ErrorReply
	for _, frame := range f.frames[connID] {
		if reply, ok := event.DecodeError(frame); ok {
			out = append(out, reply)
		}
	}
	return out
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = make(map[string][][]byte)
}

type fakeMirror struct {
	mu     sync.Mutex
	frames map[string]int
}

func (m *fakeMirror) Publish(sessionID string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames[sessionID]++
	return nil
}

// recordFailStore refuses connection records once fail is set.
type recordFailStore struct {
	*memory.Store
	fail bool
}

func (s *recordFailStore) PutConnection(ctx context.Context, conn karaoke.Connection) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.Store.PutConnection(ctx, conn)
}

type fixture struct {
	hub      *Hub
	registry *registry.ConnectionRegistry
	store    *memory.Store
	sender   *fakeSender
	session  string
}

// newFixture creates a session with members a and b.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	reg := registry.NewConnectionRegistry()
	st := memory.New()
	sender := newFakeSender()
	h := New(reg, st, sender, opts...)

	sess, err := st.CreateSession(ctx)
	require.NoError(t, err)
	_, err = h.Join(ctx, "a", sess.ID)
	require.NoError(t, err)
	_, err = h.Join(ctx, "b", sess.ID)
	require.NoError(t, err)
	sender.reset()

	return &fixture{hub: h, registry: reg, store: st, sender: sender, session: sess.ID}
}

func q1() karaoke.QueueItem {
	return karaoke.QueueItem{
		ID:      "q1",
		VideoID: "abc",
		Title:   "T",
		AddedBy: "Guest",
		AddedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func frame(t *testing.T, ev event.Event) []byte {
	t.Helper()
	data, err := event.Encode(ev)
	require.NoError(t, err)
	return data
}

func queueIDs(t *testing.T, st store.Store, sessionID string) []string {
	t.Helper()
	queue, err := st.ListQueue(context.Background(), sessionID)
	require.NoError(t, err)
	ids := make([]string, 0, len(queue))
	for _, it := range queue {
		ids = append(ids, it.ID)
	}
	return ids
}

func TestHub_AddToQueueReachesEveryMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	d, err := f.hub.Dispatch(ctx, "a", frame(t, event.AddToQueue{Item: q1()}))
	require.NoError(t, err)

	assert.Equal(t, 2, d.Attempted)
	assert.Equal(t, 2, d.Delivered)
	assert.Empty(t, d.Evicted)
	for _, connID := range []string{"a", "b"} {
		got := f.sender.received(t, connID)
		require.Len(t, got, 1, connID)
		add, ok := got[0].(event.AddToQueue)
		require.True(t, ok)
		assert.Equal(t, "q1", add.Item.ID)
		assert.Equal(t, "abc", add.Item.VideoID)
	}
	assert.Equal(t, []string{"q1"}, queueIDs(t, f.store, f.session))
}

func TestHub_AddWithoutAddedAtIsStamped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := q1()
	item.AddedAt = time.Time{}

	before := time.Now()
	_, err := f.hub.Dispatch(ctx, "a", frame(t, event.AddToQueue{Item: item}))
	require.NoError(t, err)

	got := f.sender.received(t, "b")
	require.Len(t, got, 1)
	add, ok := got[0].(event.AddToQueue)
	require.True(t, ok)
	assert.False(t, add.Item.AddedAt.Before(before.Add(-time.Second)), "got %s", add.Item.AddedAt)

	queue, err := f.store.ListQueue(ctx, f.session)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.True(t, add.Item.AddedAt.Equal(queue[0].AddedAt))
}

func TestHub_RemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.AppendQueueItem(ctx, f.session, q1()))

	for i := 0; i < 2; i++ {
		d, err := f.hub.Dispatch(ctx, "b", frame(t, event.RemoveFromQueue{ItemID: "q1"}))
		require.NoError(t, err)
		assert.Equal(t, 2, d.Delivered)
	}

	assert.Empty(t, queueIDs(t, f.store, f.session))
	assert.Len(t, f.sender.received(t, "a"), 2)
	assert.Empty(t, f.sender.errors("b"))
}

func TestHub_UpdateCurrentSongMovesItemOutOfQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := q1()
	require.NoError(t, f.store.AppendQueueItem(ctx, f.session, item))

	_, err := f.hub.Dispatch(ctx, "a", frame(t, event.UpdateCurrentSong{Item: &item}))
	require.NoError(t, err)

	sess, err := f.store.GetSession(ctx, f.session)
	require.NoError(t, err)
	require.NotNil(t, sess.CurrentSong)
	assert.Equal(t, "q1", sess.CurrentSong.ID)
	assert.Empty(t, queueIDs(t, f.store, f.session))

	got := f.sender.received(t, "b")
	require.Len(t, got, 1)
	assert.Equal(t, event.ActionUpdateCurrentSong, got[0].Action())
}

func TestHub_UpdateCurrentSongNullClears(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := q1()
	require.NoError(t, f.store.SetCurrentSong(ctx, f.session, &item))

	_, err := f.hub.Dispatch(ctx, "a", []byte(`{"action":"UPDATE_CURRENT_SONG","payload":null}`))
	require.NoError(t, err)

	sess, err := f.store.GetSession(ctx, f.session)
	require.NoError(t, err)
	assert.Nil(t, sess.CurrentSong)
}

func TestHub_RejectedFrames(t *testing.T) {
	tests := []struct {
		name     string
		prepare  func(t *testing.T, f *fixture)
		from     string
		frame    string
		wantErr  error
		wantCode event.ErrorCode
	}{
		{
			name:     "unknown action",
			from:     "a",
			frame:    `{"action":"SKIP","payload":"q1"}`,
			wantErr:  event.ErrInvalidAction,
			wantCode: event.CodeInvalidAction,
		},
		{
			name:     "malformed frame",
			from:     "a",
			frame:    `{"action":`,
			wantErr:  event.ErrMalformedPayload,
			wantCode: event.CodeMalformedPayload,
		},
		{
			name:     "sender not registered",
			from:     "stranger",
			frame:    `{"action":"REMOVE_FROM_QUEUE","payload":"q1"}`,
			wantErr:  ErrConnectionNotFound,
			wantCode: event.CodeNotJoined,
		},
		{
			name: "adding the current song",
			prepare: func(t *testing.T, f *fixture) {
				item := q1()
				require.NoError(t, f.store.SetCurrentSong(context.Background(), f.session, &item))
			},
			from:     "a",
			frame:    `{"action":"ADD_TO_QUEUE","payload":{"id":"q1","videoId":"abc","title":"T","addedBy":"Guest","addedAt":"2024-01-01T00:00:00Z"}}`,
			wantErr:  ErrItemIsCurrent,
			wantCode: event.CodeItemIsCurrent,
		},
		{
			name: "session ended",
			prepare: func(t *testing.T, f *fixture) {
				require.NoError(t, f.store.EndSession(context.Background(), f.session))
			},
			from:     "a",
			frame:    `{"action":"REMOVE_FROM_QUEUE","payload":"q1"}`,
			wantErr:  store.ErrSessionInactive,
			wantCode: event.CodeSessionInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.prepare != nil {
				tt.prepare(t, f)
			}

			_, err := f.hub.Dispatch(context.Background(), tt.from, []byte(tt.frame))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			replies := f.sender.errors(tt.from)
			require.Len(t, replies, 1)
			assert.Equal(t, tt.wantCode, replies[0].Code)

			for _, connID := range []string{"a", "b"} {
				assert.Empty(t, f.sender.received(t, connID), connID)
			}
			if tt.from != "b" {
				assert.Empty(t, f.sender.errors("b"))
			}
			assert.Empty(t, queueIDs(t, f.store, f.session))
		})
	}
}

func TestHub_SessionComesFromRegistry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other, err := f.store.CreateSession(ctx)
	require.NoError(t, err)
	_, err = f.hub.Join(ctx, "c", other.ID)
	require.NoError(t, err)
	f.sender.reset()

	_, err = f.hub.Dispatch(ctx, "a", frame(t, event.AddToQueue{Item: q1()}))
	require.NoError(t, err)

	assert.Empty(t, f.sender.received(t, "c"))
	assert.Empty(t, queueIDs(t, f.store, other.ID))
	assert.Equal(t, []string{"q1"}, queueIDs(t, f.store, f.session))
}

func TestHub_InboundJoinCarriesSenderID(t *testing.T) {
	f := newFixture(t)

	_, err := f.hub.Dispatch(context.Background(), "a", []byte(`{"action":"JOIN_SESSION","payload":{"connectionId":"spoofed"}}`))
	require.NoError(t, err)

	got := f.sender.received(t, "b")
	require.Len(t, got, 1)
	assert.Equal(t, event.JoinSession{ConnectionID: "a"}, got[0])
}

func TestHub_FailedDeliveryEvictsLazily(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.sender.setFail("b")

	d, err := f.hub.Dispatch(ctx, "a", frame(t, event.AddToQueue{Item: q1()}))
	require.NoError(t, err)

	assert.Equal(t, 2, d.Attempted)
	assert.Equal(t, 1, d.Delivered)
	assert.Equal(t, []string{"b"}, d.Evicted)
	assert.Equal(t, []string{"a"}, f.registry.MembersOf(f.session))
	assert.Equal(t, 1, f.sender.closed["b"])

	conns, err := f.store.ListConnections(ctx, f.session)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "a", conns[0].ConnectionID)

	d, err = f.hub.Dispatch(ctx, "a", frame(t, event.RemoveFromQueue{ItemID: "q1"}))
	require.NoError(t, err)
	assert.Equal(t, 1, d.Attempted)
	assert.Equal(t, 1, d.Delivered)
	assert.Equal(t, uint64(1), f.hub.Stats().Evicted)
}

func TestHub_SlowDeliveryIsEvicted(t *testing.T) {
	f := newFixture(t, WithSendTimeout(20*time.Millisecond))
	f.sender.mu.Lock()
	f.sender.block["b"] = true
	f.sender.mu.Unlock()

	d, err := f.hub.Broadcast(context.Background(), f.session, event.RemoveFromQueue{ItemID: "q1"})
	require.NoError(t, err)

	assert.Equal(t, 1, d.Delivered)
	assert.Equal(t, []string{"b"}, d.Evicted)
}

func TestHub_JoinAndLeave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.hub.Join(ctx, "c", f.session)
	require.NoError(t, err)
	for _, connID := range []string{"a", "b", "c"} {
		got := f.sender.received(t, connID)
		require.Len(t, got, 1)
		assert.Equal(t, event.JoinSession{ConnectionID: "c"}, got[0])
	}
	f.sender.reset()

	d, err := f.hub.Leave(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Delivered)
	assert.Empty(t, f.sender.received(t, "a"))
	assert.Equal(t, event.LeaveSession{ConnectionID: "a"}, f.sender.received(t, "b")[0])
	assert.Equal(t, []string{"b", "c"}, f.hub.Members(f.session))

	d, err = f.hub.Leave(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, Delivery{}, d)
}

func TestHub_JoinErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.hub.Join(ctx, "c", "missing")
	assert.True(t, errors.Is(err, store.ErrSessionNotFound))

	require.NoError(t, f.store.EndSession(ctx, f.session))
	_, err = f.hub.Join(ctx, "c", f.session)
	assert.True(t, errors.Is(err, store.ErrSessionInactive))

	_, ok := f.registry.SessionOf("c")
	assert.False(t, ok)
}

func TestHub_JoinOtherSessionMovesConnection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other, err := f.store.CreateSession(ctx)
	require.NoError(t, err)

	_, err = f.hub.Join(ctx, "a", other.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, f.hub.Members(f.session))
	assert.Equal(t, []string{"a"}, f.hub.Members(other.ID))
}

func TestHub_FailedRecordKeepsPreviousMembership(t *testing.T) {
	ctx := context.Background()
	st := &recordFailStore{Store: memory.New()}
	reg := registry.NewConnectionRegistry()
	h := New(reg, st, newFakeSender())

	first, err := st.CreateSession(ctx)
	require.NoError(t, err)
	second, err := st.CreateSession(ctx)
	require.NoError(t, err)
	_, err = h.Join(ctx, "a", first.ID)
	require.NoError(t, err)

	st.fail = true
	_, err = h.Join(ctx, "a", second.ID)
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, h.Members(first.ID))
	assert.Empty(t, h.Members(second.ID))

	_, err = h.Join(ctx, "c", second.ID)
	require.Error(t, err)
	_, ok := reg.SessionOf("c")
	assert.False(t, ok)
}

func TestHub_MirrorAndStats(t *testing.T) {
	mirror := &fakeMirror{frames: map[string]int{}}
	f := newFixture(t, WithMirror(mirror))

	_, err := f.hub.Dispatch(context.Background(), "a", frame(t, event.AddToQueue{Item: q1()}))
	require.NoError(t, err)

	// two joins and one add
	assert.Equal(t, 3, mirror.frames[f.session])
	stats := f.hub.Stats()
	assert.Equal(t, 2, stats.Connections)
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, uint64(3), stats.Broadcasts)
}

func TestHub_EvictAndClose(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.hub.Evict(ctx, "a"))
	assert.True(t, errors.Is(f.hub.Evict(ctx, "a"), ErrConnectionNotFound))
	assert.Equal(t, []string{"b"}, f.hub.Members(f.session))

	f.hub.Close()
	assert.Equal(t, 1, f.sender.closed["b"])
	assert.Len(t, f.hub.Connections(), 1)
}
