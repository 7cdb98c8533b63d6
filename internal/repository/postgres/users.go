package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/repository"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// UserStore implements repository.Users.
type UserStore struct{ base }

func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, discriminator, email, password_hash, avatar_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Username, u.Discriminator, u.Email, u.PasswordHash, u.AvatarID, u.CreatedAt)
	if isUniqueViolation(err) {
		return repository.Conflict("username or email already taken")
	}
	if err != nil {
		s.logger.Error("create user failed", slog.String("error", err.Error()))
		return repository.Infra("creating user", err)
	}
	return nil
}

func (s *UserStore) Get(ctx context.Context, id snowflake.ID) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, discriminator, email, password_hash, avatar_id, created_at, deleted_at
		 FROM users WHERE id = $1 AND deleted_at IS NULL`, id).
		Scan(&u.ID, &u.Username, &u.Discriminator, &u.Email, &u.PasswordHash, &u.AvatarID, &u.CreatedAt, &u.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.NotFound("user not found")
	}
	if err != nil {
		s.logger.Error("get user failed", slog.String("error", err.Error()))
		return nil, repository.Infra("fetching user", err)
	}
	return &u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, discriminator, email, password_hash, avatar_id, created_at, deleted_at
		 FROM users WHERE email = $1 AND deleted_at IS NULL`, email).
		Scan(&u.ID, &u.Username, &u.Discriminator, &u.Email, &u.PasswordHash, &u.AvatarID, &u.CreatedAt, &u.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.NotFound("user not found")
	}
	if err != nil {
		s.logger.Error("get user by email failed", slog.String("error", err.Error()))
		return nil, repository.Infra("fetching user", err)
	}
	return &u, nil
}

func (s *UserStore) GetByTag(ctx context.Context, username, discriminator string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, discriminator, email, password_hash, avatar_id, created_at, deleted_at
		 FROM users WHERE username = $1 AND discriminator = $2 AND deleted_at IS NULL`,
		username, discriminator).
		Scan(&u.ID, &u.Username, &u.Discriminator, &u.Email, &u.PasswordHash, &u.AvatarID, &u.CreatedAt, &u.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.NotFound("user not found")
	}
	if err != nil {
		return nil, repository.Infra("fetching user", err)
	}
	return &u, nil
}

// NextDiscriminator assigns the lowest unused 4-digit discriminator for
// username under an advisory transaction lock, so two concurrent
// registrations of the same username never collide (spec S2).
func (s *UserStore) NextDiscriminator(ctx context.Context, username string) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", repository.Infra("beginning discriminator transaction", err)
	}
	defer tx.Rollback(ctx)

	// Lock on a hash of the username so unrelated usernames don't serialize
	// against each other.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, username); err != nil {
		return "", repository.Infra("locking discriminator allocation", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT discriminator FROM users WHERE username = $1 ORDER BY discriminator`, username)
	if err != nil {
		return "", repository.Infra("listing discriminators", err)
	}
	taken := make(map[string]bool)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			rows.Close()
			return "", repository.Infra("scanning discriminator", err)
		}
		taken[d] = true
	}
	rows.Close()

	for n := 1; n <= 9999; n++ {
		d := discriminatorString(n)
		if !taken[d] {
			if err := tx.Commit(ctx); err != nil {
				return "", repository.Infra("committing discriminator allocation", err)
			}
			return d, nil
		}
	}
	return "", repository.Conflict("no discriminators remain for this username")
}

func discriminatorString(n int) string {
	digits := [4]byte{}
	for i := 3; i >= 0; i-- {
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[:])
}

func (s *UserStore) Update(ctx context.Context, u *models.User) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET username = $2, discriminator = $3, email = $4, password_hash = $5, avatar_id = $6
		 WHERE id = $1 AND deleted_at IS NULL`,
		u.ID, u.Username, u.Discriminator, u.Email, u.PasswordHash, u.AvatarID)
	if isUniqueViolation(err) {
		return repository.Conflict("username or email already taken")
	}
	if err != nil {
		return repository.Infra("updating user", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.NotFound("user not found")
	}
	return nil
}

func (s *UserStore) SoftDelete(ctx context.Context, id snowflake.ID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return repository.Infra("deleting user", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.NotFound("user not found")
	}
	return nil
}
