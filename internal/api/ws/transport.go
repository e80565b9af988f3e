// Package ws provides the WebSocket transport for session connections.
//
// Each connection gets a read pump that feeds frames to the hub and a write
// pump that drains a bounded send buffer. Send never blocks: a full buffer is
// reported as ErrBackpressure and the hub evicts the connection.
package ws

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
)

var (
	// ErrBackpressure is returned when a connection's send buffer is full.
	ErrBackpressure = errors.New("send buffer full")
	// ErrConnectionClosed is returned when sending to an unknown or closed connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// Options configures a Transport.
type Options struct {
	PingPeriod   time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
	SendBuffer   int
}

// DefaultOptions returns the transport defaults.
func DefaultOptions() Options {
	return Options{
		PingPeriod:   30 * time.Second,
		WriteTimeout: 10 * time.Second,
		ReadLimit:    8 << 10,
		SendBuffer:   32,
	}
}

func (o Options) pongWait() time.Duration {
	return o.PingPeriod * 10 / 9
}

// Transport tracks live WebSocket connections by connection ID and implements
// hub.Sender.
type Transport struct {
	opts  Options
	mu    sync.RWMutex
	conns map[string]*conn
}

// NewTransport creates an empty transport.
func NewTransport(opts Options) *Transport {
	def := DefaultOptions()
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = def.PingPeriod
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = def.ReadLimit
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}
	return &Transport{
		opts:  opts,
		conns: make(map[string]*conn),
	}
}

type conn struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func (c *conn) trySend(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrBackpressure
	}
}

// close stops the write pump after it drains frames already buffered.
func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (t *Transport) add(id string, ws *websocket.Conn) *conn {
	c := &conn{id: id, ws: ws, send: make(chan []byte, t.opts.SendBuffer)}
	t.mu.Lock()
	t.conns[id] = c
	t.mu.Unlock()
	return c
}

// Send queues frame for connID without blocking.
func (t *Transport) Send(connID string, frame []byte) error {
	t.mu.RLock()
	c, ok := t.conns[connID]
	t.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrConnectionClosed, "connection %s", connID)
	}
	if err := c.trySend(frame); err != nil {
		return errors.Wrapf(err, "connection %s", connID)
	}
	return nil
}

// Close drops connID and closes its socket once pending frames are written.
func (t *Transport) Close(connID string) {
	t.mu.Lock()
	c, ok := t.conns[connID]
	delete(t.conns, connID)
	t.mu.Unlock()
	if ok {
		c.close()
	}
}

// CloseAll closes every connection. Used on shutdown.
func (t *Transport) CloseAll() {
	t.mu.Lock()
	conns := t.conns
	t.conns = make(map[string]*conn)
	t.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}

// Count returns the number of live connections.
func (t *Transport) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}

func (t *Transport) writePump(c *conn) {
	ticker := time.NewTicker(t.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		// Frames queued after a failed write would never be written.
		c.close()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			// One frame per message; clients parse each message as a single JSON value.
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				zlog.Debug().Msgf("websocket write failed: connection_id=%s error=%v", c.id, err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
