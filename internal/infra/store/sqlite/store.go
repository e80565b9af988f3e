// Package sqlite provides a store.Store backed by a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/segmentio/encoding/json"

	"github.com/osa030/karaoke-hub/internal/app/store"
	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

// addedAtLayout is fixed width so text order is time order. Clients may omit
// addedAt, and the zero time does not fit in int64 nanoseconds.
const addedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	current_song TEXT
);

CREATE TABLE IF NOT EXISTS queue_items (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	item_id TEXT NOT NULL,
	video_id TEXT NOT NULL,
	title TEXT NOT NULL,
	thumbnail TEXT NOT NULL,
	added_by TEXT NOT NULL,
	added_at TEXT NOT NULL,
	played INTEGER NOT NULL DEFAULT 0,
	UNIQUE (session_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_queue_items_order ON queue_items(session_id, added_at, seq);

CREATE TABLE IF NOT EXISTS connections (
	connection_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	joined_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_connections_session_id ON connections(session_id);
`

// Store is a SQLite-backed store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at path and runs migrations.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if path == ":memory:" {
		// Every pooled connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create schema")
	}

	return &Store{db: db}, nil
}

func (s *Store) CreateSession(ctx context.Context) (*karaoke.Session, error) {
	sess := karaoke.NewSession(uuid.New().String())

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, active, current_song) VALUES (?, ?, 1, NULL)`,
		sess.ID, sess.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*karaoke.Session, error) {
	var (
		createdAt int64
		active    bool
		current   sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, active, current_song FROM sessions WHERE id = ?`, sessionID,
	).Scan(&createdAt, &active, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get session")
	}

	sess := &karaoke.Session{
		ID:        sessionID,
		CreatedAt: time.Unix(0, createdAt).UTC(),
		Active:    active,
	}
	if current.Valid && current.String != "" {
		var song karaoke.QueueItem
		if err := json.Unmarshal([]byte(current.String), &song); err != nil {
			return nil, errors.Wrap(err, "failed to decode current song")
		}
		sess.CurrentSong = &song
	}
	return sess, nil
}

func (s *Store) SetCurrentSong(ctx context.Context, sessionID string, item *karaoke.QueueItem) error {
	var current sql.NullString
	if item != nil {
		data, err := json.Marshal(item)
		if err != nil {
			return errors.Wrap(err, "failed to encode current song")
		}
		current = sql.NullString{String: string(data), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET current_song = ? WHERE id = ?`, current, sessionID)
	if err != nil {
		return errors.Wrap(err, "failed to set current song")
	}
	return requireAffected(res)
}

func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET active = 0 WHERE id = ?`, sessionID)
	if err != nil {
		return errors.Wrap(err, "failed to end session")
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sessionExists(ctx context.Context, q queryer, sessionID string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrSessionNotFound
	}
	if err != nil {
		return errors.Wrap(err, "failed to look up session")
	}
	return nil
}

func (s *Store) ListQueue(ctx context.Context, sessionID string) ([]karaoke.QueueItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := sessionExists(ctx, tx, sessionID); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT item_id, video_id, title, thumbnail, added_by, added_at, played
		FROM queue_items
		WHERE session_id = ?
		ORDER BY added_at, seq
	`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list queue")
	}
	defer rows.Close()

	queue := make([]karaoke.QueueItem, 0)
	for rows.Next() {
		var (
			item    karaoke.QueueItem
			addedAt string
		)
		if err := rows.Scan(&item.ID, &item.VideoID, &item.Title, &item.Thumbnail,
			&item.AddedBy, &addedAt, &item.Played); err != nil {
			return nil, errors.Wrap(err, "failed to scan queue item")
		}
		item.AddedAt, err = time.Parse(addedAtLayout, addedAt)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid added_at for item %s", item.ID)
		}
		queue = append(queue, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate queue")
	}
	return queue, nil
}

func (s *Store) AppendQueueItem(ctx context.Context, sessionID string, item karaoke.QueueItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := sessionExists(ctx, tx, sessionID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO queue_items (session_id, item_id, video_id, title, thumbnail, added_by, added_at, played)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, item_id) DO UPDATE SET
			video_id = excluded.video_id,
			title = excluded.title,
			thumbnail = excluded.thumbnail,
			added_by = excluded.added_by,
			added_at = excluded.added_at,
			played = excluded.played
	`, sessionID, item.ID, item.VideoID, item.Title, item.Thumbnail, item.AddedBy,
		item.AddedAt.UTC().Format(addedAtLayout), item.Played)
	if err != nil {
		return errors.Wrap(err, "failed to append queue item")
	}
	return errors.Wrap(tx.Commit(), "failed to commit queue item")
}

func (s *Store) RemoveQueueItem(ctx context.Context, sessionID, itemID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := sessionExists(ctx, tx, sessionID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM queue_items WHERE session_id = ? AND item_id = ?`, sessionID, itemID,
	); err != nil {
		return errors.Wrap(err, "failed to remove queue item")
	}
	return errors.Wrap(tx.Commit(), "failed to commit queue removal")
}

func (s *Store) PutConnection(ctx context.Context, conn karaoke.Connection) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (connection_id, session_id, joined_at) VALUES (?, ?, ?)
		ON CONFLICT (connection_id) DO UPDATE SET
			session_id = excluded.session_id,
			joined_at = excluded.joined_at
	`, conn.ConnectionID, conn.SessionID, conn.JoinedAt.UnixNano())
	return errors.Wrap(err, "failed to put connection")
}

func (s *Store) DeleteConnection(ctx context.Context, connID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE connection_id = ?`, connID)
	return errors.Wrap(err, "failed to delete connection")
}

func (s *Store) ListConnections(ctx context.Context, sessionID string) ([]karaoke.Connection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT connection_id, joined_at FROM connections WHERE session_id = ? ORDER BY joined_at, connection_id`,
		sessionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list connections")
	}
	defer rows.Close()

	result := make([]karaoke.Connection, 0)
	for rows.Next() {
		var (
			c        = karaoke.Connection{SessionID: sessionID}
			joinedAt int64
		)
		if err := rows.Scan(&c.ConnectionID, &joinedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan connection")
		}
		c.JoinedAt = time.Unix(0, joinedAt).UTC()
		result = append(result, c)
	}
	return result, errors.Wrap(rows.Err(), "failed to iterate connections")
}

func (s *Store) PurgeConnections(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM connections`)
	return errors.Wrap(err, "failed to purge connections")
}

func (s *Store) Close() error {
	return s.db.Close()
}
