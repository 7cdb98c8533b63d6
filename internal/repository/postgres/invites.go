package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/repository"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// InviteStore implements repository.Invites.
type InviteStore struct{ base }

func (s *InviteStore) Create(ctx context.Context, i *models.Invite) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO invites (code, guild_id, channel_id, inviter_id, uses, max_uses, expires_at, temporary, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		i.Code, i.GuildID, i.ChannelID, i.InviterID, i.Uses, i.MaxUses, i.ExpiresAt, i.Temporary, i.CreatedAt)
	if isUniqueViolation(err) {
		return repository.Conflict("invite code already exists")
	}
	if err != nil {
		return repository.Infra("creating invite", err)
	}
	return nil
}

func (s *InviteStore) Get(ctx context.Context, code string) (*models.Invite, error) {
	var i models.Invite
	err := s.pool.QueryRow(ctx,
		`SELECT code, guild_id, channel_id, inviter_id, uses, max_uses, expires_at, temporary, created_at
		 FROM invites WHERE code = $1`, code).
		Scan(&i.Code, &i.GuildID, &i.ChannelID, &i.InviterID, &i.Uses, &i.MaxUses, &i.ExpiresAt, &i.Temporary, &i.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.NotFound("invite not found")
	}
	if err != nil {
		return nil, repository.Infra("fetching invite", err)
	}
	return &i, nil
}

// IncrementUses atomically bumps Uses, rejecting with Conflict if doing so
// would exceed MaxUses (spec invariant 8: exactly n successful uses for
// max_uses = n).
func (s *InviteStore) IncrementUses(ctx context.Context, code string) (*models.Invite, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, repository.Infra("beginning invite use", err)
	}
	defer tx.Rollback(ctx)

	var i models.Invite
	err = tx.QueryRow(ctx,
		`SELECT code, guild_id, channel_id, inviter_id, uses, max_uses, expires_at, temporary, created_at
		 FROM invites WHERE code = $1 FOR UPDATE`, code).
		Scan(&i.Code, &i.GuildID, &i.ChannelID, &i.InviterID, &i.Uses, &i.MaxUses, &i.ExpiresAt, &i.Temporary, &i.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.NotFound("invite not found")
	}
	if err != nil {
		return nil, repository.Infra("locking invite", err)
	}

	if i.IsMaxUsesReached() {
		return nil, repository.Conflict("invite has reached its maximum uses")
	}

	i.Uses++
	if _, err := tx.Exec(ctx, `UPDATE invites SET uses = $2 WHERE code = $1`, code, i.Uses); err != nil {
		return nil, repository.Infra("incrementing invite uses", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, repository.Infra("committing invite use", err)
	}
	return &i, nil
}

func (s *InviteStore) Delete(ctx context.Context, code string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM invites WHERE code = $1`, code)
	if err != nil {
		return repository.Infra("deleting invite", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.NotFound("invite not found")
	}
	return nil
}

func (s *InviteStore) ListForGuild(ctx context.Context, guildID snowflake.ID) ([]*models.Invite, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT code, guild_id, channel_id, inviter_id, uses, max_uses, expires_at, temporary, created_at
		 FROM invites WHERE guild_id = $1 ORDER BY created_at DESC`, guildID)
	if err != nil {
		return nil, repository.Infra("listing invites", err)
	}
	defer rows.Close()

	var out []*models.Invite
	for rows.Next() {
		var i models.Invite
		if err := rows.Scan(&i.Code, &i.GuildID, &i.ChannelID, &i.InviterID, &i.Uses, &i.MaxUses, &i.ExpiresAt, &i.Temporary, &i.CreatedAt); err != nil {
			return nil, repository.Infra("scanning invite", err)
		}
		out = append(out, &i)
	}
	return out, rows.Err()
}

func (s *InviteStore) ListExpired(ctx context.Context, before time.Time) ([]*models.Invite, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT code, guild_id, channel_id, inviter_id, uses, max_uses, expires_at, temporary, created_at
		 FROM invites WHERE expires_at IS NOT NULL AND expires_at < $1`, before)
	if err != nil {
		return nil, repository.Infra("listing expired invites", err)
	}
	defer rows.Close()

	var out []*models.Invite
	for rows.Next() {
		var i models.Invite
		if err := rows.Scan(&i.Code, &i.GuildID, &i.ChannelID, &i.InviterID, &i.Uses, &i.MaxUses, &i.ExpiresAt, &i.Temporary, &i.CreatedAt); err != nil {
			return nil, repository.Infra("scanning expired invite", err)
		}
		out = append(out, &i)
	}
	return out, rows.Err()
}
