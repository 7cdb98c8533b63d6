package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/repository"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// MessageStore implements repository.Messages.
type MessageStore struct{ base }

func (s *MessageStore) Create(ctx context.Context, m *models.Message) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, channel_id, author_id, content, reference_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.ChannelID, m.AuthorID, m.Content, m.ReferenceID, m.CreatedAt)
	if err != nil {
		return repository.Infra("creating message", err)
	}
	return nil
}

func (s *MessageStore) Get(ctx context.Context, id snowflake.ID) (*models.Message, error) {
	var m models.Message
	err := s.pool.QueryRow(ctx,
		`SELECT id, channel_id, author_id, content, reference_id, created_at, edited_at, deleted_at
		 FROM messages WHERE id = $1 AND deleted_at IS NULL`, id).
		Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Content, &m.ReferenceID, &m.CreatedAt, &m.EditedAt, &m.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.NotFound("message not found")
	}
	if err != nil {
		return nil, repository.Infra("fetching message", err)
	}
	return &m, nil
}

func (s *MessageStore) Update(ctx context.Context, m *models.Message) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET content = $2, edited_at = $3
		 WHERE id = $1 AND deleted_at IS NULL`,
		m.ID, m.Content, m.EditedAt)
	if err != nil {
		return repository.Infra("updating message", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.NotFound("message not found")
	}
	return nil
}

func (s *MessageStore) SoftDelete(ctx context.Context, id snowflake.ID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return repository.Infra("deleting message", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.NotFound("message not found")
	}
	return nil
}

// BulkSoftDelete soft-deletes every id in ids that resolves to a message in
// channelID; ids that don't (wrong channel, already deleted, nonexistent)
// are silently skipped rather than failing the whole batch (spec §4.K).
func (s *MessageStore) BulkSoftDelete(ctx context.Context, channelID snowflake.ID, ids []snowflake.ID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET deleted_at = now()
		 WHERE channel_id = $1 AND id = ANY($2) AND deleted_at IS NULL`,
		channelID, raw)
	if err != nil {
		return 0, repository.Infra("bulk deleting messages", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *MessageStore) ListForChannel(ctx context.Context, channelID snowflake.ID, cur repository.Cursor) ([]*models.Message, error) {
	cur = cur.Clamp()

	query := `SELECT id, channel_id, author_id, content, reference_id, created_at, edited_at, deleted_at
	          FROM messages WHERE channel_id = $1 AND deleted_at IS NULL`
	args := []any{channelID}
	switch {
	case cur.After != nil:
		query += ` AND id > $2 ORDER BY id ASC LIMIT $3`
		args = append(args, *cur.After, cur.Limit)
	case cur.Before != nil:
		query += ` AND id < $2 ORDER BY id DESC LIMIT $3`
		args = append(args, *cur.Before, cur.Limit)
	default:
		query += ` ORDER BY id DESC LIMIT $2`
		args = append(args, cur.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, repository.Infra("listing messages", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Content, &m.ReferenceID, &m.CreatedAt, &m.EditedAt, &m.DeletedAt); err != nil {
			return nil, repository.Infra("scanning message", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
