package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pulsechat/pulsechat/internal/auth"
	"github.com/pulsechat/pulsechat/internal/events"
	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// RegisterInput carries the fields POST /auth/register accepts.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// AuthResult is returned by Register and Login: the account plus a fresh
// token pair bound to the caller's gateway session.
type AuthResult struct {
	User   *models.User
	Tokens *auth.TokenPair
}

// Register validates username/password policy, assigns the next free
// discriminator for the username, hashes the password, creates the account,
// and issues a token pair bound to sessionID.
func (s *Service) Register(ctx context.Context, sessionID uuid.UUID, in RegisterInput) (*AuthResult, error) {
	if err := auth.ValidateCredentials(in.Username, in.Password); err != nil {
		return nil, err
	}

	discriminator, err := s.Repos.Users.NextDiscriminator(ctx, in.Username)
	if err != nil {
		return nil, err
	}

	hash, err := s.Auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:            s.Gen.Generate(),
		Username:      in.Username,
		Discriminator: discriminator,
		Email:         in.Email,
		PasswordHash:  hash,
		CreatedAt:     time.Now(),
	}
	if err := s.Repos.Users.Create(ctx, user); err != nil {
		return nil, err
	}

	tokens, err := s.Auth.IssueTokenPair(ctx, user.ID, sessionID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Tokens: tokens}, nil
}

// LoginInput carries the fields POST /auth/login accepts.
type LoginInput struct {
	Email    string
	Password string
}

// errInvalidCredentials is returned for both "no such account" and "wrong
// password" so a login attempt never discloses which one failed.
var errInvalidCredentials = Unauthorized("invalid_credentials", "email or password is incorrect")

// Login verifies email/password and issues a token pair bound to sessionID.
func (s *Service) Login(ctx context.Context, sessionID uuid.UUID, in LoginInput) (*AuthResult, error) {
	user, err := s.Repos.Users.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, errInvalidCredentials
	}
	if user.IsDeleted() {
		return nil, errInvalidCredentials
	}

	ok, err := s.Auth.VerifyPassword(in.Password, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errInvalidCredentials
	}

	tokens, err := s.Auth.IssueTokenPair(ctx, user.ID, sessionID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Tokens: tokens}, nil
}

// GetUser returns a non-deleted user by id.
func (s *Service) GetUser(ctx context.Context, id snowflake.ID) (*models.User, error) {
	user, err := s.Repos.Users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.IsDeleted() {
		return nil, notFoundUser
	}
	return user, nil
}

var notFoundUser = NotFound("user_not_found", "user not found")

// UserUpdate carries the fields PATCH /users/@me accepts. A nil field is
// left unchanged.
type UserUpdate struct {
	Username *string
	AvatarID *string
}

// UpdateUser applies a profile edit to userID's own account.
func (s *Service) UpdateUser(ctx context.Context, userID snowflake.ID, in UserUpdate) (*models.User, error) {
	user, err := s.Repos.Users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsDeleted() {
		return nil, notFoundUser
	}

	if in.Username != nil && *in.Username != user.Username {
		if err := auth.ValidateUsername(*in.Username); err != nil {
			return nil, err
		}
		discriminator, err := s.Repos.Users.NextDiscriminator(ctx, *in.Username)
		if err != nil {
			return nil, err
		}
		user.Username = *in.Username
		user.Discriminator = discriminator
	}
	if in.AvatarID != nil {
		user.AvatarID = in.AvatarID
	}

	if err := s.Repos.Users.Update(ctx, user); err != nil {
		return nil, err
	}

	s.publish(ctx, events.UserTopic(user.ID), "USER_UPDATE", user)
	return user, nil
}

// ListGuildsForUser returns every guild userID is a member of.
func (s *Service) ListGuildsForUser(ctx context.Context, userID snowflake.ID) ([]*models.Guild, error) {
	return s.Repos.Guilds.ListForUser(ctx, userID)
}

// ListChannelsForUser returns the DM channels userID is a recipient of.
// Guild channels are not included.
func (s *Service) ListChannelsForUser(ctx context.Context, userID snowflake.ID) ([]*models.Channel, error) {
	return s.Repos.Channels.ListForUser(ctx, userID)
}
