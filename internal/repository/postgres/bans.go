package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/repository"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// BanStore implements repository.Bans.
type BanStore struct{ base }

func (s *BanStore) Create(ctx context.Context, b *models.GuildBan) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO guild_bans (guild_id, user_id, reason, moderator_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		b.GuildID, b.UserID, b.Reason, b.ModeratorID, b.CreatedAt)
	if isUniqueViolation(err) {
		return repository.Conflict("user already banned")
	}
	if err != nil {
		return repository.Infra("creating ban", err)
	}
	return nil
}

func (s *BanStore) Get(ctx context.Context, guildID, userID snowflake.ID) (*models.GuildBan, error) {
	var b models.GuildBan
	err := s.pool.QueryRow(ctx,
		`SELECT guild_id, user_id, reason, moderator_id, created_at
		 FROM guild_bans WHERE guild_id = $1 AND user_id = $2`, guildID, userID).
		Scan(&b.GuildID, &b.UserID, &b.Reason, &b.ModeratorID, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.NotFound("ban not found")
	}
	if err != nil {
		return nil, repository.Infra("fetching ban", err)
	}
	return &b, nil
}

func (s *BanStore) Remove(ctx context.Context, guildID, userID snowflake.ID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM guild_bans WHERE guild_id = $1 AND user_id = $2`, guildID, userID)
	if err != nil {
		return repository.Infra("removing ban", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.NotFound("ban not found")
	}
	return nil
}

func (s *BanStore) ListForGuild(ctx context.Context, guildID snowflake.ID) ([]*models.GuildBan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT guild_id, user_id, reason, moderator_id, created_at
		 FROM guild_bans WHERE guild_id = $1 ORDER BY created_at DESC`, guildID)
	if err != nil {
		return nil, repository.Infra("listing bans", err)
	}
	defer rows.Close()

	var out []*models.GuildBan
	for rows.Next() {
		var b models.GuildBan
		if err := rows.Scan(&b.GuildID, &b.UserID, &b.Reason, &b.ModeratorID, &b.CreatedAt); err != nil {
			return nil, repository.Infra("scanning ban", err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}
