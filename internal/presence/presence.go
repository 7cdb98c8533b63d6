// Package presence is the durable, Redis-backed record of who is online and
// who is typing where. A gateway connection's in-memory state (registry.Connection)
// disappears the moment a process restarts; this package is what a REST
// client or a freshly-identified gateway connection reads to answer "is this
// user online" without asking every gateway process.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// Status is one of the four presence states a user can publish.
type Status string

const (
	StatusOnline  Status = "online"
	StatusIdle    Status = "idle"
	StatusDnd     Status = "dnd"
	StatusOffline Status = "offline"
)

// Valid reports whether s is one of the four recognized statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusIdle, StatusDnd, StatusOffline:
		return true
	default:
		return false
	}
}

// Visible reports whether other members should see this status as "present"
// rather than simply absent from the roster.
func (s Status) Visible() bool {
	return s == StatusOnline || s == StatusIdle || s == StatusDnd
}

// Key prefixes for the two things this package tracks in Redis.
const (
	PrefixPresence = "presence:"
	PrefixTyping   = "typing:"
)

// TTL is how long a presence record lives without a heartbeat refresh
// before it is considered stale and treated as offline.
const TTL = 5 * time.Minute

// TypingTTL is how long a channel typing indicator lasts without being
// re-triggered.
const TypingTTL = 10 * time.Second

var ErrNotFound = errors.New("presence: not found")

// Data is one user's current presence record.
type Data struct {
	UserID       snowflake.ID `json:"user_id"`
	Status       Status       `json:"status"`
	CustomStatus *string      `json:"custom_status,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Store is the Redis-backed presence and typing-indicator store.
type Store struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// New wraps an existing Redis client.
func New(rdb *redis.Client, logger *slog.Logger) *Store {
	return &Store{rdb: rdb, logger: logger}
}

func presenceKey(userID snowflake.ID) string {
	return PrefixPresence + userID.String()
}

func typingKey(channelID, userID snowflake.ID) string {
	return fmt.Sprintf("%s%s:%s", PrefixTyping, channelID, userID)
}

func typingScanPattern(channelID snowflake.ID) string {
	return fmt.Sprintf("%s%s:*", PrefixTyping, channelID)
}

// SetStatus persists userID's status (and optional custom status text) with
// a fresh TTL, and returns the record written.
func (s *Store) SetStatus(ctx context.Context, userID snowflake.ID, status Status, customStatus *string) (*Data, error) {
	data := &Data{
		UserID:       userID,
		Status:       status,
		CustomStatus: customStatus,
		UpdatedAt:    time.Now(),
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshaling presence for %s: %w", userID, err)
	}
	if err := s.rdb.Set(ctx, presenceKey(userID), raw, TTL).Err(); err != nil {
		return nil, fmt.Errorf("setting presence for %s: %w", userID, err)
	}
	return data, nil
}

// Get fetches userID's presence record. A missing record is ErrNotFound,
// which callers should treat the same as StatusOffline.
func (s *Store) Get(ctx context.Context, userID snowflake.ID) (*Data, error) {
	raw, err := s.rdb.Get(ctx, presenceKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching presence for %s: %w", userID, err)
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decoding presence for %s: %w", userID, err)
	}
	return &data, nil
}

// Refresh extends userID's presence TTL without changing its status, the
// heartbeat-driven keepalive a live connection performs every interval. It
// is a no-op if the user has no current presence record, since a stale
// reconnect should re-Identify and call SetStatus instead.
func (s *Store) Refresh(ctx context.Context, userID snowflake.ID) error {
	ok, err := s.rdb.Expire(ctx, presenceKey(userID), TTL).Result()
	if err != nil {
		return fmt.Errorf("refreshing presence for %s: %w", userID, err)
	}
	if !ok {
		s.logger.Debug("presence refresh skipped, no record", slog.String("user_id", userID.String()))
	}
	return nil
}

// Remove deletes userID's presence record outright, used once a
// disconnecting connection was the user's last live session.
func (s *Store) Remove(ctx context.Context, userID snowflake.ID) error {
	if err := s.rdb.Del(ctx, presenceKey(userID)).Err(); err != nil {
		return fmt.Errorf("removing presence for %s: %w", userID, err)
	}
	return nil
}

// SetTyping records userID as typing in channelID for TypingTTL.
func (s *Store) SetTyping(ctx context.Context, channelID, userID snowflake.ID) error {
	if err := s.rdb.Set(ctx, typingKey(channelID, userID), "1", TypingTTL).Err(); err != nil {
		return fmt.Errorf("setting typing indicator for %s in %s: %w", userID, channelID, err)
	}
	return nil
}

// IsTyping reports whether userID currently has a live typing indicator in
// channelID.
func (s *Store) IsTyping(ctx context.Context, channelID, userID snowflake.ID) (bool, error) {
	n, err := s.rdb.Exists(ctx, typingKey(channelID, userID)).Result()
	if err != nil {
		return false, fmt.Errorf("checking typing indicator for %s in %s: %w", userID, channelID, err)
	}
	return n > 0, nil
}

// ListTyping scans for every user currently typing in channelID. Typing
// indicators are short-lived and per-channel member counts are small, so a
// SCAN here (mirroring session.Store.ListStaleConnected) is cheap enough to
// run on demand rather than maintaining a separate set.
func (s *Store) ListTyping(ctx context.Context, channelID snowflake.ID) ([]snowflake.ID, error) {
	prefix := fmt.Sprintf("%s%s:", PrefixTyping, channelID)
	var typing []snowflake.ID

	iter := s.rdb.Scan(ctx, 0, typingScanPattern(channelID), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		idStr := strings.TrimPrefix(key, prefix)
		id, err := snowflake.ParseID(idStr)
		if err != nil {
			s.logger.Warn("skipping malformed typing key", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		typing = append(typing, id)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning typing keys for channel %s: %w", channelID, err)
	}
	return typing, nil
}
