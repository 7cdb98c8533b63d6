package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// PrefixRefreshToken namespaces durable refresh token records, the storage
// side of the token service's revoke-and-reissue flow (spec §4.B).
const PrefixRefreshToken = "refresh:"

// RefreshTokenStore is the repository.RefreshTokens implementation backing
// the token service. It lives alongside the session store rather than
// Postgres because a refresh token shares its lifecycle and indexing shape
// with a gateway session: both are keyed by an opaque id, both need a
// user-indexed set for bulk revocation.
type RefreshTokenStore struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewRefreshTokenStore wraps an existing Redis client.
func NewRefreshTokenStore(rdb *redis.Client, logger *slog.Logger) *RefreshTokenStore {
	return &RefreshTokenStore{rdb: rdb, logger: logger}
}

func refreshTokenKey(id string) string     { return PrefixRefreshToken + id }
func refreshUserIndexKey(userID snowflake.ID) string {
	return fmt.Sprintf("%suser:%s", PrefixRefreshToken, userID)
}

// Create persists a new refresh token record and indexes it under its
// owning user for RevokeAllForUser.
func (s *RefreshTokenStore) Create(ctx context.Context, t *models.RefreshToken) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshaling refresh token: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, refreshTokenKey(t.ID), data, 0)
	pipe.SAdd(ctx, refreshUserIndexKey(t.UserID), t.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("creating refresh token %s: %w", t.ID, err)
	}
	return nil
}

// Get fetches a refresh token record by id.
func (s *RefreshTokenStore) Get(ctx context.Context, id string) (*models.RefreshToken, error) {
	data, err := s.rdb.Get(ctx, refreshTokenKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching refresh token %s: %w", id, err)
	}

	var t models.RefreshToken
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decoding refresh token %s: %w", id, err)
	}
	return &t, nil
}

// Revoke marks a refresh token record revoked, keeping it around for audit
// rather than deleting it outright.
func (s *RefreshTokenStore) Revoke(ctx context.Context, id string) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	t.Revoked = true

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshaling refresh token: %w", err)
	}
	if err := s.rdb.Set(ctx, refreshTokenKey(id), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("revoking refresh token %s: %w", id, err)
	}
	return nil
}

// RevokeAllForUser revokes every refresh token issued to userID, e.g. on
// logout-everywhere.
func (s *RefreshTokenStore) RevokeAllForUser(ctx context.Context, userID snowflake.ID) error {
	ids, err := s.rdb.SMembers(ctx, refreshUserIndexKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("listing refresh tokens for user %s: %w", userID, err)
	}

	for _, id := range ids {
		if err := s.Revoke(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			s.logger.Warn("failed to revoke refresh token during bulk revoke",
				slog.String("user_id", userID.String()), slog.String("token_id", id), slog.String("error", err.Error()))
		}
	}
	return nil
}
