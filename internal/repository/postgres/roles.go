package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/permissions"
	"github.com/pulsechat/pulsechat/internal/repository"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// RoleStore implements repository.Roles.
type RoleStore struct{ base }

func (s *RoleStore) Create(ctx context.Context, r *models.Role) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO roles (id, guild_id, name, position, permissions, is_everyone, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.GuildID, r.Name, r.Position, uint64(r.Perms), r.IsEveryone, r.CreatedAt)
	if isUniqueViolation(err) {
		return repository.Conflict("guild already has an @everyone role")
	}
	if err != nil {
		return repository.Infra("creating role", err)
	}
	return nil
}

func (s *RoleStore) Get(ctx context.Context, id snowflake.ID) (*models.Role, error) {
	var r models.Role
	var perms uint64
	err := s.pool.QueryRow(ctx,
		`SELECT id, guild_id, name, position, permissions, is_everyone, created_at
		 FROM roles WHERE id = $1`, id).
		Scan(&r.ID, &r.GuildID, &r.Name, &r.Position, &perms, &r.IsEveryone, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.NotFound("role not found")
	}
	if err != nil {
		return nil, repository.Infra("fetching role", err)
	}
	r.Perms = permissions.Bitset(perms)
	return &r, nil
}

func (s *RoleStore) Update(ctx context.Context, r *models.Role) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE roles SET name = $2, position = $3, permissions = $4
		 WHERE id = $1`,
		r.ID, r.Name, r.Position, uint64(r.Perms))
	if err != nil {
		return repository.Infra("updating role", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.NotFound("role not found")
	}
	return nil
}

// Delete rejects deleting the @everyone role outright (spec invariant 9):
// the service layer should never call this for that role, but storage is
// the last line of defense.
func (s *RoleStore) Delete(ctx context.Context, id snowflake.ID) error {
	var isEveryone bool
	err := s.pool.QueryRow(ctx, `SELECT is_everyone FROM roles WHERE id = $1`, id).Scan(&isEveryone)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.NotFound("role not found")
	}
	if err != nil {
		return repository.Infra("checking role before delete", err)
	}
	if isEveryone {
		return repository.Validation("cannot delete the @everyone role")
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return repository.Infra("deleting role", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.NotFound("role not found")
	}
	return nil
}

func (s *RoleStore) ListForGuild(ctx context.Context, guildID snowflake.ID) ([]*models.Role, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, guild_id, name, position, permissions, is_everyone, created_at
		 FROM roles WHERE guild_id = $1 ORDER BY position DESC`, guildID)
	if err != nil {
		return nil, repository.Infra("listing roles", err)
	}
	defer rows.Close()

	var out []*models.Role
	for rows.Next() {
		var r models.Role
		var perms uint64
		if err := rows.Scan(&r.ID, &r.GuildID, &r.Name, &r.Position, &perms, &r.IsEveryone, &r.CreatedAt); err != nil {
			return nil, repository.Infra("scanning role", err)
		}
		r.Perms = permissions.Bitset(perms)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *RoleStore) GetEveryoneRole(ctx context.Context, guildID snowflake.ID) (*models.Role, error) {
	var r models.Role
	var perms uint64
	err := s.pool.QueryRow(ctx,
		`SELECT id, guild_id, name, position, permissions, is_everyone, created_at
		 FROM roles WHERE guild_id = $1 AND is_everyone`, guildID).
		Scan(&r.ID, &r.GuildID, &r.Name, &r.Position, &perms, &r.IsEveryone, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.NotFound("guild has no @everyone role")
	}
	if err != nil {
		return nil, repository.Infra("fetching @everyone role", err)
	}
	r.Perms = permissions.Bitset(perms)
	return &r, nil
}
