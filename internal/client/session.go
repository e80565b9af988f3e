// Package client attaches to a session as a guest: it loads a snapshot over
// Connect RPC, bootstraps a replica, then follows the WebSocket broadcast.
//
// There are no sequence numbers. Events broadcast between the snapshot read and
// the WebSocket subscription are lost until the next attach.
package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karaoke-hub/internal/api/karaokev1"
	"github.com/osa030/karaoke-hub/internal/api/ws"
	"github.com/osa030/karaoke-hub/internal/app/dispatch"
	"github.com/osa030/karaoke-hub/internal/domain/event"
	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

var (
	// ErrNotAttached is returned when publishing without a live connection.
	ErrNotAttached = errors.New("not attached")
	// ErrReattachFailed is returned by Run once every reattach attempt has failed.
	ErrReattachFailed = errors.New("reattach attempts exhausted")
	// ErrSessionEnded is returned when the host has ended the session.
	ErrSessionEnded = errors.New("session ended")
	// ErrJoinRefused is returned when the server refuses the WebSocket join.
	ErrJoinRefused = errors.New("join refused")
)

// Options configures a Session.
type Options struct {
	BaseURL        string
	HTTPClient     connect.HTTPClient
	Dialer         *websocket.Dialer
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// OnError receives ERROR frames sent by the server.
	OnError func(event.ErrorReply)
}

func (o *Options) setDefaults() {
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 5 * time.Second
	}
}

// Session is a guest's view of one karaoke session.
type Session struct {
	id      string
	opts    Options
	rpc     karaokev1.SessionServiceClient
	replica *dispatch.Replica

	mu     sync.Mutex
	conn   *websocket.Conn
	connID string
	// failures counts attach attempts since the last connection that received
	// a broadcast.
	failures int

	writeMu sync.Mutex
}

// New creates a detached session client.
func New(sessionID string, opts Options) *Session {
	opts.setDefaults()
	s := &Session{
		id:   sessionID,
		opts: opts,
		rpc:  karaokev1.NewSessionServiceClient(opts.HTTPClient, opts.BaseURL),
	}
	s.replica = dispatch.NewReplica(s)
	return s
}

// Replica returns the local copy of the session.
func (s *Session) Replica() *dispatch.Replica { return s.replica }

// ConnectionID returns the server-assigned ID of the current connection.
func (s *Session) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// Attach loads the snapshot, bootstraps the replica and subscribes.
func (s *Session) Attach(ctx context.Context) error {
	resp, err := s.rpc.GetSnapshot(ctx, connect.NewRequest(&karaokev1.GetSnapshotRequest{SessionID: s.id}))
	if err != nil {
		return errors.Wrap(err, "failed to load snapshot")
	}
	var current *karaoke.QueueItem
	if resp.Msg.Session != nil {
		if !resp.Msg.Session.Active {
			return errors.Wrapf(ErrSessionEnded, "session %s", s.id)
		}
		current = resp.Msg.Session.CurrentSong
	}
	s.replica.Bootstrap(dispatch.State{CurrentSong: current, Queue: resp.Msg.Queue})

	wsURL, err := websocketURL(s.opts.BaseURL, s.id)
	if err != nil {
		return err
	}
	conn, httpResp, err := s.opts.Dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to dial session")
	}
	connID := httpResp.Header.Get(ws.ConnectionIDHeader)

	s.mu.Lock()
	old := s.conn
	s.conn, s.connID = conn, connID
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	zlog.Info().Msgf("attached: session_id=%s connection_id=%s queue=%d", s.id, connID, len(resp.Msg.Queue))
	return nil
}

// Reattach starts over from a fresh snapshot, retrying with exponential backoff.
// The attempt budget is shared with earlier calls until a connection receives a
// broadcast. An unknown or ended session is not retried.
func (s *Session) Reattach(ctx context.Context) error {
	s.replica.Reset()
	var lastErr error
	for {
		s.mu.Lock()
		if s.failures >= s.opts.MaxAttempts {
			s.mu.Unlock()
			return errors.Wrapf(ErrReattachFailed, "after %d attempts: %v", s.opts.MaxAttempts, lastErr)
		}
		s.failures++
		attempt := s.failures
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff(attempt)):
		}

		lastErr = s.Attach(ctx)
		if lastErr == nil {
			return nil
		}
		if isTerminal(lastErr) {
			return lastErr
		}
		zlog.Warn().Msgf("reattach failed: session_id=%s attempt=%d error=%v", s.id, attempt, lastErr)
	}
}

func isTerminal(err error) bool {
	return connect.CodeOf(err) == connect.CodeNotFound ||
		errors.Is(err, ErrSessionEnded) ||
		errors.Is(err, ErrJoinRefused)
}

// backoff returns the delay before the given attempt, starting at 1.
func (s *Session) backoff(attempt int) time.Duration {
	d := s.opts.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.opts.MaxBackoff {
			return s.opts.MaxBackoff
		}
	}
	return d
}

// Run feeds broadcasts to the replica until ctx is done, reattaching when the
// connection drops. Attach must have succeeded first.
func (s *Session) Run(ctx context.Context) error {
	for {
		err := s.readLoop(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isTerminal(err) {
			return err
		}
		zlog.Warn().Msgf("connection lost: session_id=%s error=%v", s.id, err)
		if err := s.Reattach(ctx); err != nil {
			return err
		}
	}
}

func (s *Session) readLoop(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotAttached
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if reply, ok := event.DecodeError(frame); ok {
			zlog.Warn().Msgf("server rejected frame: code=%s message=%s", reply.Code, reply.Message)
			if s.opts.OnError != nil {
				s.opts.OnError(reply)
			}
			switch reply.Code {
			case event.CodeSessionInactive:
				return errors.Wrapf(ErrSessionEnded, "session %s", s.id)
			case event.CodeSessionNotFound:
				return errors.Wrapf(ErrJoinRefused, "session %s: %s", s.id, reply.Message)
			}
			continue
		}
		ev, err := event.Decode(frame)
		if err != nil {
			zlog.Warn().Msgf("ignoring frame: error=%v", err)
			continue
		}
		s.mu.Lock()
		s.failures = 0
		s.mu.Unlock()
		s.replica.Remote(ev)
	}
}

// Publish writes ev to the hub. It implements dispatch.Publisher.
func (s *Session) Publish(ev event.Event) error {
	frame, err := event.Encode(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotAttached
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// Enqueue resolves input on the server and adds the resulting item locally.
// A rejected request returns the rejection response and no error.
func (s *Session) Enqueue(ctx context.Context, input, addedBy string) (*karaokev1.ResolveVideoResponse, error) {
	resp, err := s.rpc.ResolveVideo(ctx, connect.NewRequest(&karaokev1.ResolveVideoRequest{
		SessionID: s.id,
		Input:     input,
		AddedBy:   addedBy,
	}))
	if err != nil {
		return nil, err
	}
	if !resp.Msg.Accepted || resp.Msg.Item == nil {
		return resp.Msg, nil
	}
	if err := s.replica.Local(event.AddToQueue{Item: *resp.Msg.Item}); err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Close closes the connection. Run returns once ctx is cancelled.
func (s *Session) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn, s.connID = nil, ""
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	s.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	return conn.Close()
}

func websocketURL(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", errors.Wrapf(err, "invalid base url: %s", baseURL)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	u.RawQuery = url.Values{"sessionId": {sessionID}}.Encode()
	return u.String(), nil
}
