package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/repository"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// GuildStore implements repository.Guilds.
type GuildStore struct{ base }

func (s *GuildStore) Create(ctx context.Context, g *models.Guild) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO guilds (id, name, owner_id, icon_id, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		g.ID, g.Name, g.OwnerID, g.IconID, g.Description, g.CreatedAt)
	if err != nil {
		return repository.Infra("creating guild", err)
	}
	return nil
}

func (s *GuildStore) Get(ctx context.Context, id snowflake.ID) (*models.Guild, error) {
	var g models.Guild
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, owner_id, icon_id, description, created_at, deleted_at
		 FROM guilds WHERE id = $1 AND deleted_at IS NULL`, id).
		Scan(&g.ID, &g.Name, &g.OwnerID, &g.IconID, &g.Description, &g.CreatedAt, &g.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.NotFound("guild not found")
	}
	if err != nil {
		return nil, repository.Infra("fetching guild", err)
	}
	return &g, nil
}

func (s *GuildStore) Update(ctx context.Context, g *models.Guild) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE guilds SET name = $2, owner_id = $3, icon_id = $4, description = $5
		 WHERE id = $1 AND deleted_at IS NULL`,
		g.ID, g.Name, g.OwnerID, g.IconID, g.Description)
	if err != nil {
		return repository.Infra("updating guild", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.NotFound("guild not found")
	}
	return nil
}

func (s *GuildStore) SoftDelete(ctx context.Context, id snowflake.ID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE guilds SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return repository.Infra("deleting guild", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.NotFound("guild not found")
	}
	return nil
}

func (s *GuildStore) ListForUser(ctx context.Context, userID snowflake.ID) ([]*models.Guild, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT g.id, g.name, g.owner_id, g.icon_id, g.description, g.created_at, g.deleted_at
		 FROM guilds g
		 JOIN guild_members m ON m.guild_id = g.id
		 WHERE m.user_id = $1 AND g.deleted_at IS NULL
		 ORDER BY g.id`, userID)
	if err != nil {
		return nil, repository.Infra("listing guilds for user", err)
	}
	defer rows.Close()

	var out []*models.Guild
	for rows.Next() {
		var g models.Guild
		if err := rows.Scan(&g.ID, &g.Name, &g.OwnerID, &g.IconID, &g.Description, &g.CreatedAt, &g.DeletedAt); err != nil {
			return nil, repository.Infra("scanning guild", err)
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}
