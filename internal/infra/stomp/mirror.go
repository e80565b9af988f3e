// Package stomp mirrors broadcast frames to a STOMP broker so other services
// can follow session activity.
package stomp

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-stomp/stomp"
	zlog "github.com/rs/zerolog/log"
)

// DefaultDestinationPrefix is used when Config.DestinationPrefix is empty.
const DefaultDestinationPrefix = "/topic/karaoke"

// Config represents STOMP broker configuration.
type Config struct {
	Addr              string
	Login             string
	Passcode          string
	Host              string
	DestinationPrefix string
}

// Mirror publishes each frame to <prefix>.<sessionID>.
type Mirror struct {
	mu     sync.Mutex
	conn   *stomp.Conn
	prefix string
}

// Dial connects to the broker.
func Dial(cfg Config) (*Mirror, error) {
	host := cfg.Host
	if host == "" {
		host = "/"
	}
	options := []func(*stomp.Conn) error{
		stomp.ConnOpt.Login(cfg.Login, cfg.Passcode),
		stomp.ConnOpt.Host(host),
	}
	conn, err := stomp.Dial("tcp", cfg.Addr, options...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to stomp broker at %s", cfg.Addr)
	}

	prefix := cfg.DestinationPrefix
	if prefix == "" {
		prefix = DefaultDestinationPrefix
	}
	zlog.Info().Msgf("stomp mirror connected: addr=%s prefix=%s", cfg.Addr, prefix)
	return &Mirror{conn: conn, prefix: prefix}, nil
}

// Destination returns the destination frames of sessionID are published to.
func (m *Mirror) Destination(sessionID string) string {
	return m.prefix + "." + sessionID
}

// Publish sends frame to the session's destination.
func (m *Mirror) Publish(sessionID string, frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return errors.New("stomp mirror is closed")
	}
	return m.conn.Send(m.Destination(sessionID), "application/json", frame)
}

// Close disconnects from the broker.
func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return nil
	}
	err := m.conn.Disconnect()
	m.conn = nil
	return err
}
