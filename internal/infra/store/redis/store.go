// Package redis provides a store.Store backed by Redis.
//
// Key layout (prefix defaults to "karaoke"):
//
//	<p>:session:<id>          hash   created_at, active, current_song (JSON)
//	<p>:queue:<id>            zset   item IDs scored by addedAt (microseconds)
//	<p>:queue:<id>:items      hash   item ID -> item JSON
//	<p>:conn:<connID>         hash   session_id, joined_at
//	<p>:session:<id>:conns    set    connection IDs of a session
//	<p>:conns                 set    every connection ID
//
// Items with equal addedAt are ordered by item ID.
package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/segmentio/encoding/json"

	"github.com/osa030/karaoke-hub/internal/app/store"
	"github.com/osa030/karaoke-hub/internal/domain/karaoke"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "karaoke"

// Options configures the Redis store.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store is a Redis-backed store.
type Store struct {
	client *goredis.Client
	prefix string
}

var _ store.Store = (*Store)(nil)

// Open connects to Redis and verifies the connection with PING.
func Open(ctx context.Context, opts Options) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", opts.Addr)
	}
	return New(client, opts.Prefix), nil
}

// New wraps an existing client.
func New(client *goredis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) sessionKey(id string) string      { return s.prefix + ":session:" + id }
func (s *Store) sessionConnsKey(id string) string { return s.prefix + ":session:" + id + ":conns" }
func (s *Store) queueKey(id string) string        { return s.prefix + ":queue:" + id }
func (s *Store) queueItemsKey(id string) string   { return s.prefix + ":queue:" + id + ":items" }
func (s *Store) connKey(id string) string         { return s.prefix + ":conn:" + id }
func (s *Store) connsKey() string                 { return s.prefix + ":conns" }

func (s *Store) requireSession(ctx context.Context, sessionID string) error {
	n, err := s.client.Exists(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return errors.Wrap(err, "failed to look up session")
	}
	if n == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context) (*karaoke.Session, error) {
	sess := karaoke.NewSession(uuid.New().String())

	err := s.client.HSet(ctx, s.sessionKey(sess.ID),
		"created_at", sess.CreatedAt.UnixNano(),
		"active", "1",
		"current_song", "",
	).Err()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*karaoke.Session, error) {
	fields, err := s.client.HGetAll(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get session")
	}
	if len(fields) == 0 {
		return nil, store.ErrSessionNotFound
	}

	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse created_at")
	}
	sess := &karaoke.Session{
		ID:        sessionID,
		CreatedAt: time.Unix(0, createdAt).UTC(),
		Active:    fields["active"] == "1",
	}
	if raw := fields["current_song"]; raw != "" {
		var song karaoke.QueueItem
		if err := json.Unmarshal([]byte(raw), &song); err != nil {
			return nil, errors.Wrap(err, "failed to decode current song")
		}
		sess.CurrentSong = &song
	}
	return sess, nil
}

func (s *Store) SetCurrentSong(ctx context.Context, sessionID string, item *karaoke.QueueItem) error {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return err
	}

	var raw string
	if item != nil {
		data, err := json.Marshal(item)
		if err != nil {
			return errors.Wrap(err, "failed to encode current song")
		}
		raw = string(data)
	}
	return errors.Wrap(
		s.client.HSet(ctx, s.sessionKey(sessionID), "current_song", raw).Err(),
		"failed to set current song",
	)
}

func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return err
	}
	return errors.Wrap(
		s.client.HSet(ctx, s.sessionKey(sessionID), "active", "0").Err(),
		"failed to end session",
	)
}

func (s *Store) ListQueue(ctx context.Context, sessionID string) ([]karaoke.QueueItem, error) {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}

	ids, err := s.client.ZRange(ctx, s.queueKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list queue")
	}
	queue := make([]karaoke.QueueItem, 0, len(ids))
	if len(ids) == 0 {
		return queue, nil
	}

	values, err := s.client.HMGet(ctx, s.queueItemsKey(sessionID), ids...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load queue items")
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Removed between ZRANGE and HMGET.
			continue
		}
		var item karaoke.QueueItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, errors.Wrap(err, "failed to decode queue item")
		}
		queue = append(queue, item)
	}
	return queue, nil
}

func (s *Store) AppendQueueItem(ctx context.Context, sessionID string, item karaoke.QueueItem) error {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return err
	}

	data, err := json.Marshal(item)
	if err != nil {
		return errors.Wrap(err, "failed to encode queue item")
	}
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, s.queueKey(sessionID), goredis.Z{
			Score:  float64(item.AddedAt.UnixMicro()),
			Member: item.ID,
		})
		pipe.HSet(ctx, s.queueItemsKey(sessionID), item.ID, string(data))
		return nil
	})
	return errors.Wrap(err, "failed to append queue item")
}

func (s *Store) RemoveQueueItem(ctx context.Context, sessionID, itemID string) error {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return err
	}

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZRem(ctx, s.queueKey(sessionID), itemID)
		pipe.HDel(ctx, s.queueItemsKey(sessionID), itemID)
		return nil
	})
	return errors.Wrap(err, "failed to remove queue item")
}

func (s *Store) PutConnection(ctx context.Context, conn karaoke.Connection) error {
	prev, err := s.client.HGet(ctx, s.connKey(conn.ConnectionID), "session_id").Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return errors.Wrap(err, "failed to look up connection")
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if prev != "" && prev != conn.SessionID {
			pipe.SRem(ctx, s.sessionConnsKey(prev), conn.ConnectionID)
		}
		pipe.HSet(ctx, s.connKey(conn.ConnectionID),
			"session_id", conn.SessionID,
			"joined_at", conn.JoinedAt.UnixNano(),
		)
		pipe.SAdd(ctx, s.sessionConnsKey(conn.SessionID), conn.ConnectionID)
		pipe.SAdd(ctx, s.connsKey(), conn.ConnectionID)
		return nil
	})
	return errors.Wrap(err, "failed to put connection")
}

func (s *Store) DeleteConnection(ctx context.Context, connID string) error {
	sessionID, err := s.client.HGet(ctx, s.connKey(connID), "session_id").Result()
	if errors.Is(err, goredis.Nil) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to look up connection")
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.connKey(connID))
		pipe.SRem(ctx, s.sessionConnsKey(sessionID), connID)
		pipe.SRem(ctx, s.connsKey(), connID)
		return nil
	})
	return errors.Wrap(err, "failed to delete connection")
}

func (s *Store) ListConnections(ctx context.Context, sessionID string) ([]karaoke.Connection, error) {
	ids, err := s.client.SMembers(ctx, s.sessionConnsKey(sessionID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list connections")
	}

	result := make([]karaoke.Connection, 0, len(ids))
	for _, id := range ids {
		joined, err := s.client.HGet(ctx, s.connKey(id), "joined_at").Int64()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to load connection")
		}
		result = append(result, karaoke.Connection{
			ConnectionID: id,
			SessionID:    sessionID,
			JoinedAt:     time.Unix(0, joined).UTC(),
		})
	}
	return result, nil
}

func (s *Store) PurgeConnections(ctx context.Context) error {
	ids, err := s.client.SMembers(ctx, s.connsKey()).Result()
	if err != nil {
		return errors.Wrap(err, "failed to list connections")
	}
	for _, id := range ids {
		if err := s.DeleteConnection(ctx, id); err != nil {
			return err
		}
	}
	return errors.Wrap(s.client.Del(ctx, s.connsKey()).Err(), "failed to purge connections")
}

func (s *Store) Close() error {
	return s.client.Close()
}
