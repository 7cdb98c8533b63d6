package postgres

import (
	"context"

	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/repository"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// ReactionStore implements repository.Reactions.
type ReactionStore struct{ base }

// Add is idempotent: re-adding an existing (message, user, emoji) row is a
// no-op, not a Conflict (spec §4.K).
func (s *ReactionStore) Add(ctx context.Context, r *models.Reaction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reactions (message_id, user_id, emoji, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (message_id, user_id, emoji) DO NOTHING`,
		r.MessageID, r.UserID, r.Emoji, r.CreatedAt)
	if err != nil {
		return repository.Infra("adding reaction", err)
	}
	return nil
}

func (s *ReactionStore) Remove(ctx context.Context, messageID, userID snowflake.ID, emoji string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		messageID, userID, emoji)
	if err != nil {
		return repository.Infra("removing reaction", err)
	}
	return nil
}

func (s *ReactionStore) RemoveAllForEmoji(ctx context.Context, messageID snowflake.ID, emoji string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM reactions WHERE message_id = $1 AND emoji = $2`, messageID, emoji)
	if err != nil {
		return repository.Infra("removing reactions for emoji", err)
	}
	return nil
}

func (s *ReactionStore) RemoveAll(ctx context.Context, messageID snowflake.ID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM reactions WHERE message_id = $1`, messageID)
	if err != nil {
		return repository.Infra("removing all reactions", err)
	}
	return nil
}

func (s *ReactionStore) ListForMessageEmoji(ctx context.Context, messageID snowflake.ID, emoji string) ([]*models.Reaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT message_id, user_id, emoji, created_at
		 FROM reactions WHERE message_id = $1 AND emoji = $2 ORDER BY created_at`,
		messageID, emoji)
	if err != nil {
		return nil, repository.Infra("listing reactions", err)
	}
	defer rows.Close()

	var out []*models.Reaction
	for rows.Next() {
		var r models.Reaction
		if err := rows.Scan(&r.MessageID, &r.UserID, &r.Emoji, &r.CreatedAt); err != nil {
			return nil, repository.Infra("scanning reaction", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
