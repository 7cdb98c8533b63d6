package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/repository"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// ChannelStore implements repository.Channels.
type ChannelStore struct{ base }

func (s *ChannelStore) Create(ctx context.Context, c *models.Channel) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return repository.Infra("beginning channel creation", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO channels (id, guild_id, type, parent_id, position, topic, name, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.GuildID, c.Type, c.ParentID, c.Position, c.Topic, c.Name, c.CreatedAt)
	if err != nil {
		return repository.Infra("creating channel", err)
	}

	for _, recipient := range c.Recipients {
		if _, err := tx.Exec(ctx,
			`INSERT INTO channel_recipients (channel_id, user_id) VALUES ($1, $2)`,
			c.ID, recipient); err != nil {
			return repository.Infra("adding channel recipient", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return repository.Infra("committing channel creation", err)
	}
	return nil
}

func (s *ChannelStore) Get(ctx context.Context, id snowflake.ID) (*models.Channel, error) {
	var c models.Channel
	err := s.pool.QueryRow(ctx,
		`SELECT id, guild_id, type, parent_id, position, topic, name, created_at
		 FROM channels WHERE id = $1`, id).
		Scan(&c.ID, &c.GuildID, &c.Type, &c.ParentID, &c.Position, &c.Topic, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.NotFound("channel not found")
	}
	if err != nil {
		return nil, repository.Infra("fetching channel", err)
	}

	if c.GuildID == nil {
		recipients, err := s.recipients(ctx, id)
		if err != nil {
			return nil, err
		}
		c.Recipients = recipients
	}
	return &c, nil
}

func (s *ChannelStore) recipients(ctx context.Context, channelID snowflake.ID) ([]snowflake.ID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM channel_recipients WHERE channel_id = $1 ORDER BY user_id`, channelID)
	if err != nil {
		return nil, repository.Infra("fetching channel recipients", err)
	}
	defer rows.Close()

	var out []snowflake.ID
	for rows.Next() {
		var uid snowflake.ID
		if err := rows.Scan(&uid); err != nil {
			return nil, repository.Infra("scanning channel recipient", err)
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}

func (s *ChannelStore) Update(ctx context.Context, c *models.Channel) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE channels SET parent_id = $2, position = $3, topic = $4, name = $5
		 WHERE id = $1`,
		c.ID, c.ParentID, c.Position, c.Topic, c.Name)
	if err != nil {
		return repository.Infra("updating channel", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.NotFound("channel not found")
	}
	return nil
}

func (s *ChannelStore) Delete(ctx context.Context, id snowflake.ID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return repository.Infra("deleting channel", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.NotFound("channel not found")
	}
	return nil
}

func (s *ChannelStore) ListForGuild(ctx context.Context, guildID snowflake.ID) ([]*models.Channel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, guild_id, type, parent_id, position, topic, name, created_at
		 FROM channels WHERE guild_id = $1 ORDER BY position, id`, guildID)
	if err != nil {
		return nil, repository.Infra("listing channels", err)
	}
	defer rows.Close()

	var out []*models.Channel
	for rows.Next() {
		var c models.Channel
		if err := rows.Scan(&c.ID, &c.GuildID, &c.Type, &c.ParentID, &c.Position, &c.Topic, &c.Name, &c.CreatedAt); err != nil {
			return nil, repository.Infra("scanning channel", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *ChannelStore) ListForUser(ctx context.Context, userID snowflake.ID) ([]*models.Channel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.guild_id, c.type, c.parent_id, c.position, c.topic, c.name, c.created_at
		 FROM channels c
		 JOIN channel_recipients cr ON cr.channel_id = c.id
		 WHERE cr.user_id = $1
		 ORDER BY c.id`, userID)
	if err != nil {
		return nil, repository.Infra("listing DM channels for user", err)
	}
	defer rows.Close()

	var out []*models.Channel
	for rows.Next() {
		var c models.Channel
		if err := rows.Scan(&c.ID, &c.GuildID, &c.Type, &c.ParentID, &c.Position, &c.Topic, &c.Name, &c.CreatedAt); err != nil {
			return nil, repository.Infra("scanning channel", err)
		}
		recipients, err := s.recipients(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		c.Recipients = recipients
		out = append(out, &c)
	}
	return out, rows.Err()
}

// FindDM returns the existing DM channel whose recipient set exactly
// matches recipientIDs, regardless of order.
func (s *ChannelStore) FindDM(ctx context.Context, recipientIDs []snowflake.ID) (*models.Channel, error) {
	ids := make([]int64, len(recipientIDs))
	for i, id := range recipientIDs {
		ids[i] = int64(id)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT c.id FROM channels c
		 WHERE c.type = $1
		 AND (SELECT COUNT(*) FROM channel_recipients cr WHERE cr.channel_id = c.id) = $2
		 AND NOT EXISTS (
		     SELECT 1 FROM channel_recipients cr
		     WHERE cr.channel_id = c.id AND cr.user_id != ALL($3)
		 )`,
		models.ChannelTypeDM, len(recipientIDs), ids)
	if err != nil {
		return nil, repository.Infra("finding DM channel", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, repository.NotFound("no matching DM channel")
	}
	var id snowflake.ID
	if err := rows.Scan(&id); err != nil {
		return nil, repository.Infra("scanning DM channel id", err)
	}
	rows.Close()

	return s.Get(ctx, id)
}
