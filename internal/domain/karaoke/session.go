// Package karaoke provides the Session, QueueItem and Connection domain entities.
package karaoke

import "time"

// Session represents a karaoke session hosted by one device and joined by guests.
type Session struct {
	ID          string     `json:"id"`          // UUID
	CreatedAt   time.Time  `json:"createdAt"`   // Creation time
	Active      bool       `json:"active"`      // False once the host ends the session
	CurrentSong *QueueItem `json:"currentSong"` // Now playing (nil when nothing is playing)
}

// NewSession creates a new active session with no current song.
func NewSession(id string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Active:    true,
	}
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.CurrentSong != nil {
		song := *s.CurrentSong
		c.CurrentSong = &song
	}
	return &c
}

// IsCurrent reports whether itemID is the session's current song.
func (s *Session) IsCurrent(itemID string) bool {
	return s != nil && s.CurrentSong != nil && s.CurrentSong.ID == itemID
}

// Connection is the durable record of a live client connection bound to a session.
type Connection struct {
	ConnectionID string    `json:"connectionId"`
	SessionID    string    `json:"sessionId"`
	JoinedAt     time.Time `json:"joinedAt"`
}
