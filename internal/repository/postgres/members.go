package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/repository"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// MemberStore implements repository.GuildMembers.
type MemberStore struct{ base }

func (s *MemberStore) Add(ctx context.Context, m *models.GuildMember) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return repository.Infra("beginning member add", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO guild_members (guild_id, user_id, nickname, joined_at)
		 VALUES ($1, $2, $3, $4)`,
		m.GuildID, m.UserID, m.Nickname, m.JoinedAt)
	if isUniqueViolation(err) {
		return repository.Conflict("already a member of this guild")
	}
	if err != nil {
		return repository.Infra("adding member", err)
	}

	for _, roleID := range m.RoleIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO guild_member_roles (guild_id, user_id, role_id) VALUES ($1, $2, $3)`,
			m.GuildID, m.UserID, roleID); err != nil {
			return repository.Infra("assigning member role", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return repository.Infra("committing member add", err)
	}
	return nil
}

func (s *MemberStore) Get(ctx context.Context, guildID, userID snowflake.ID) (*models.GuildMember, error) {
	var m models.GuildMember
	err := s.pool.QueryRow(ctx,
		`SELECT guild_id, user_id, nickname, joined_at, timeout_until
		 FROM guild_members WHERE guild_id = $1 AND user_id = $2`, guildID, userID).
		Scan(&m.GuildID, &m.UserID, &m.Nickname, &m.JoinedAt, &m.TimeoutUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.NotFound("member not found")
	}
	if err != nil {
		return nil, repository.Infra("fetching member", err)
	}

	roleIDs, err := s.roleIDs(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}
	m.RoleIDs = roleIDs
	return &m, nil
}

func (s *MemberStore) roleIDs(ctx context.Context, guildID, userID snowflake.ID) ([]snowflake.ID, error) {
	// Roles referencing a deleted role row are removed by the foreign key's
	// ON DELETE CASCADE, so every id returned here resolves (spec §4.C:
	// "memberships referencing it are silently dropped at read time").
	rows, err := s.pool.Query(ctx,
		`SELECT role_id FROM guild_member_roles WHERE guild_id = $1 AND user_id = $2`, guildID, userID)
	if err != nil {
		return nil, repository.Infra("fetching member roles", err)
	}
	defer rows.Close()

	var out []snowflake.ID
	for rows.Next() {
		var id snowflake.ID
		if err := rows.Scan(&id); err != nil {
			return nil, repository.Infra("scanning member role", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *MemberStore) Update(ctx context.Context, m *models.GuildMember) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE guild_members SET nickname = $3, timeout_until = $4
		 WHERE guild_id = $1 AND user_id = $2`,
		m.GuildID, m.UserID, m.Nickname, m.TimeoutUntil)
	if err != nil {
		return repository.Infra("updating member", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.NotFound("member not found")
	}
	return nil
}

func (s *MemberStore) Remove(ctx context.Context, guildID, userID snowflake.ID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM guild_members WHERE guild_id = $1 AND user_id = $2`, guildID, userID)
	if err != nil {
		return repository.Infra("removing member", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.NotFound("member not found")
	}
	return nil
}

func (s *MemberStore) ListForGuild(ctx context.Context, guildID snowflake.ID, cur repository.Cursor) ([]*models.GuildMember, error) {
	cur = cur.Clamp()

	query := `SELECT guild_id, user_id, nickname, joined_at, timeout_until
	          FROM guild_members WHERE guild_id = $1`
	args := []any{guildID}
	switch {
	case cur.After != nil:
		query += ` AND user_id > $2 ORDER BY user_id ASC LIMIT $3`
		args = append(args, *cur.After, cur.Limit)
	case cur.Before != nil:
		query += ` AND user_id < $2 ORDER BY user_id DESC LIMIT $3`
		args = append(args, *cur.Before, cur.Limit)
	default:
		query += ` ORDER BY user_id ASC LIMIT $2`
		args = append(args, cur.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, repository.Infra("listing members", err)
	}
	defer rows.Close()

	var out []*models.GuildMember
	for rows.Next() {
		var m models.GuildMember
		if err := rows.Scan(&m.GuildID, &m.UserID, &m.Nickname, &m.JoinedAt, &m.TimeoutUntil); err != nil {
			return nil, repository.Infra("scanning member", err)
		}
		roleIDs, err := s.roleIDs(ctx, m.GuildID, m.UserID)
		if err != nil {
			return nil, err
		}
		m.RoleIDs = roleIDs
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *MemberStore) AddRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO guild_member_roles (guild_id, user_id, role_id) VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		guildID, userID, roleID)
	if err != nil {
		return repository.Infra("assigning role", err)
	}
	return nil
}

func (s *MemberStore) RemoveRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM guild_member_roles WHERE guild_id = $1 AND user_id = $2 AND role_id = $3`,
		guildID, userID, roleID)
	if err != nil {
		return repository.Infra("removing role", err)
	}
	return nil
}
