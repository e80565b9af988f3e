package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/karaoke-hub/internal/app/hub"
	"github.com/osa030/karaoke-hub/internal/app/session/registry"
	"github.com/osa030/karaoke-hub/internal/domain/event"
	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
	"github.com/osa030/karaoke-hub/internal/infra/store/memory"
)

type fixture struct {
	server    *httptest.Server
	transport *Transport
	store     *memory.Store
	sessionID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := memory.New()
	sess, err := st.CreateSession(context.Background())
	require.NoError(t, err)

	tr := NewTransport(Options{PingPeriod: time.Second, WriteTimeout: time.Second})
	h := hub.New(registry.NewConnectionRegistry(), st, tr)

	engine := gin.New()
	NewHandler(tr, h, nil).Register(engine)
	srv := httptest.NewServer(engine)
	t.Cleanup(func() {
		tr.CloseAll()
		srv.Close()
	})

	return &fixture{server: srv, transport: tr, store: st, sessionID: sess.ID}
}

func (f *fixture) dial(t *testing.T, sessionID string) (*websocket.Conn, string) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?sessionId=" + sessionID
	c, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, resp.Header.Get(ConnectionIDHeader)
}

func readEvent(t *testing.T, c *websocket.Conn) event.Event {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := c.ReadMessage()
	require.NoError(t, err)
	ev, err := event.Decode(frame)
	require.NoError(t, err)
	return ev
}

func readError(t *testing.T, c *websocket.Conn) event.ErrorReply {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := c.ReadMessage()
	require.NoError(t, err)
	reply, ok := event.DecodeError(frame)
	require.True(t, ok, "expected an ERROR frame, got %s", frame)
	return reply
}

func TestHandler_JoinAndBroadcast(t *testing.T) {
	f := newFixture(t)

	a, idA := f.dial(t, f.sessionID)
	require.NotEmpty(t, idA)
	assert.Equal(t, event.JoinSession{ConnectionID: idA}, readEvent(t, a))

	b, idB := f.dial(t, f.sessionID)
	assert.Equal(t, event.JoinSession{ConnectionID: idB}, readEvent(t, a))
	assert.Equal(t, event.JoinSession{ConnectionID: idB}, readEvent(t, b))

	item := karaoke.NewQueueItem(karaoke.Video{ID: "dQw4w9WgXcQ", Title: "Never Gonna Give You Up"}, "alice")
	frame, err := event.Encode(event.AddToQueue{Item: item})
	require.NoError(t, err)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, frame))

	for _, c := range []*websocket.Conn{a, b} {
		ev := readEvent(t, c)
		add, ok := ev.(event.AddToQueue)
		require.True(t, ok)
		assert.Equal(t, item.ID, add.Item.ID)
	}

	queue, err := f.store.ListQueue(context.Background(), f.sessionID)
	require.NoError(t, err)
	require.Len(t, queue, 1)

	require.NoError(t, b.Close())
	assert.Equal(t, event.LeaveSession{ConnectionID: idB}, readEvent(t, a))
}

func TestHandler_RejectsBadFrameToSenderOnly(t *testing.T) {
	f := newFixture(t)

	a, idA := f.dial(t, f.sessionID)
	assert.Equal(t, event.JoinSession{ConnectionID: idA}, readEvent(t, a))

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"action":"SKIP_SONG","payload":null}`)))
	reply := readError(t, a)
	assert.Equal(t, event.CodeInvalidAction, reply.Code)
}

func TestHandler_UnknownSession(t *testing.T) {
	f := newFixture(t)

	c, _ := f.dial(t, "missing")
	reply := readError(t, c)
	assert.Equal(t, event.CodeSessionNotFound, reply.Code)

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestHandler_MissingSessionID(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "no list", origin: "http://evil.example", want: true},
		{name: "wildcard", allowed: []string{"*"}, origin: "http://any.example", want: true},
		{name: "listed", allowed: []string{"http://localhost:5173"}, origin: "http://localhost:5173", want: true},
		{name: "not listed", allowed: []string{"http://localhost:5173"}, origin: "http://evil.example", want: false},
		{name: "no origin header", allowed: []string{"http://localhost:5173"}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, originChecker(tt.allowed)(r))
		})
	}
}

func TestTransport_Send(t *testing.T) {
	tr := NewTransport(Options{SendBuffer: 1})

	err := tr.Send("nobody", []byte("x"))
	assert.True(t, errors.Is(err, ErrConnectionClosed))

	tr.add("c1", nil)
	assert.Equal(t, 1, tr.Count())
	require.NoError(t, tr.Send("c1", []byte("one")))
	assert.True(t, errors.Is(tr.Send("c1", []byte("two")), ErrBackpressure))

	tr.Close("c1")
	tr.Close("c1")
	assert.Equal(t, 0, tr.Count())
	assert.True(t, errors.Is(tr.Send("c1", []byte("three")), ErrConnectionClosed))
}

func TestTransport_FailedWriteRefusesFurtherSends(t *testing.T) {
	tr := NewTransport(Options{PingPeriod: time.Minute, WriteTimeout: time.Second})
	added := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := tr.add("c1", wsConn)
		_ = wsConn.Close()
		go tr.writePump(c)
		close(added)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	<-added

	require.NoError(t, tr.Send("c1", []byte("lost")))
	assert.Eventually(t, func() bool {
		return errors.Is(tr.Send("c1", []byte("next")), ErrConnectionClosed)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTransport_Defaults(t *testing.T) {
	tr := NewTransport(Options{})
	assert.Equal(t, DefaultOptions(), tr.opts)
	assert.Greater(t, tr.opts.pongWait(), tr.opts.PingPeriod)
}
