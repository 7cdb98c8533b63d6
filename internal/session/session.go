// Package session stores durable gateway session records and their replay
// buffers in Redis (DragonflyDB-compatible). A session survives the
// underlying WebSocket connection dropping: on disconnect it is kept, with
// a TTL, long enough for the client to resume instead of re-identifying.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// Key prefixes shared across every Redis-backed concern of the gateway, so
// a single DragonflyDB instance can host sessions, their replay buffers, and
// rate-limit counters without key collisions.
const (
	PrefixSession   = "session:"
	PrefixReplay    = "replay:"
	PrefixRateLimit = "ratelimit:"
)

// DisconnectedTTL is how long a Disconnected session (and its replay
// buffer) is retained before it is eligible for cleanup, per spec §4.G.
const DisconnectedTTL = 120 * time.Second

// ReplayBufferSize is the cap on queued events per session; the oldest
// event is evicted once the buffer is full.
const ReplayBufferSize = 1000

var ErrNotFound = errors.New("session: not found")

// QueuedEvent is a single replay-buffer entry: a gateway dispatch payload
// tagged with the per-connection sequence number it was sent (or would have
// been sent) under.
type QueuedEvent struct {
	Sequence int64           `json:"s"`
	Type     string          `json:"t"`
	Data     json.RawMessage `json:"d"`
}

// Store is the Redis-backed session record and replay buffer store.
type Store struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// New wraps an existing Redis client.
func New(rdb *redis.Client, logger *slog.Logger) *Store {
	return &Store{rdb: rdb, logger: logger}
}

func sessionKey(id uuid.UUID) string { return PrefixSession + id.String() }
func replayKey(id uuid.UUID) string  { return PrefixReplay + id.String() }
func userIndexKey(userID snowflake.ID) string {
	return fmt.Sprintf("%suser:%s", PrefixSession, userID)
}

// Create persists a new session record and indexes it under its owning user.
func (s *Store) Create(ctx context.Context, sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(sess.ID), data, 0)
	pipe.SAdd(ctx, userIndexKey(sess.UserID), sess.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("creating session %s: %w", sess.ID, err)
	}
	return nil
}

// Get fetches a session record by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching session %s: %w", id, err)
	}

	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &sess, nil
}

// Update overwrites a session record, preserving its current TTL (0 means
// persistent; KeepTTL leaves a Disconnected session's deadline untouched).
func (s *Store) Update(ctx context.Context, sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(sess.ID), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("updating session %s: %w", sess.ID, err)
	}
	return nil
}

// MarkDisconnected transitions a session to Disconnected and puts both the
// session record and its replay buffer on a 120s TTL.
func (s *Store) MarkDisconnected(ctx context.Context, id uuid.UUID) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.State = models.SessionDisconnected

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(id), data, DisconnectedTTL)
	pipe.Expire(ctx, replayKey(id), DisconnectedTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("marking session %s disconnected: %w", id, err)
	}
	return nil
}

// MarkConnected transitions a session to Connected and clears any TTL on
// both the session record and its replay buffer.
func (s *Store) MarkConnected(ctx context.Context, id uuid.UUID) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.State = models.SessionConnected

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(id), data, 0)
	pipe.Persist(ctx, replayKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("marking session %s connected: %w", id, err)
	}
	return nil
}

// Delete removes a session record, its replay buffer, and its entry in the
// owning user's session index.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	sess, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.Del(ctx, replayKey(id))
	pipe.SRem(ctx, userIndexKey(sess.UserID), id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}

// DeleteAllForUser removes every session belonging to userID, e.g. on
// account deletion or a forced global sign-out.
func (s *Store) DeleteAllForUser(ctx context.Context, userID snowflake.ID) error {
	ids, err := s.rdb.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("listing sessions for user %s: %w", userID, err)
	}

	pipe := s.rdb.TxPipeline()
	for _, idStr := range ids {
		id, err := uuid.Parse(idStr)
		if err != nil {
			s.logger.Warn("skipping malformed session id in user index",
				slog.String("user_id", userID.String()), slog.String("session_id", idStr))
			continue
		}
		pipe.Del(ctx, sessionKey(id))
		pipe.Del(ctx, replayKey(id))
	}
	pipe.Del(ctx, userIndexKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting sessions for user %s: %w", userID, err)
	}
	return nil
}

// QueueEvent appends ev to session id's replay buffer, evicting the oldest
// entry once the buffer exceeds ReplayBufferSize. The buffer inherits
// whatever TTL the session record currently has (see MarkDisconnected).
func (s *Store) QueueEvent(ctx context.Context, id uuid.UUID, ev QueuedEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling queued event: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, replayKey(id), data)
	pipe.LTrim(ctx, replayKey(id), 0, ReplayBufferSize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queuing event for session %s: %w", id, err)
	}
	return nil
}

// GetEventsSince returns every buffered event for session id with a
// sequence greater than seq, in ascending sequence order.
func (s *Store) GetEventsSince(ctx context.Context, id uuid.UUID, seq int64) ([]QueuedEvent, error) {
	raw, err := s.rdb.LRange(ctx, replayKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading replay buffer for session %s: %w", id, err)
	}

	out := make([]QueuedEvent, 0, len(raw))
	for _, item := range raw {
		var ev QueuedEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			s.logger.Warn("skipping corrupt replay buffer entry",
				slog.String("session_id", id.String()), slog.String("error", err.Error()))
			continue
		}
		if ev.Sequence > seq {
			out = append(out, ev)
		}
	}

	// LPUSH stores newest-first; reverse to ascending sequence order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ListStaleConnected scans every session record and returns the ones still
// marked Connected whose LastActiveAt is older than olderThan. A Connected
// session carries no TTL (MarkConnected clears it), so a process that
// crashes without running its own cleanup leaves the record behind forever;
// this is the belt-and-braces sweep a retention worker runs against that,
// on top of the passive TTL that already reclaims cleanly Disconnected ones.
func (s *Store) ListStaleConnected(ctx context.Context, olderThan time.Duration) ([]*models.Session, error) {
	cutoff := time.Now().Add(-olderThan)
	var stale []*models.Session

	iter := s.rdb.Scan(ctx, 0, PrefixSession+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasPrefix(key, PrefixSession+"user:") {
			continue
		}

		data, err := s.rdb.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var sess models.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			s.logger.Warn("skipping corrupt session record", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		if sess.State == models.SessionConnected && sess.LastActiveAt.Before(cutoff) {
			stale = append(stale, &sess)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning session keys: %w", err)
	}
	return stale, nil
}
