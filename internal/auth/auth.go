// Package auth is the token service (component B): issues and validates
// JWT access/refresh pairs, hashes and verifies passwords with Argon2id, and
// gates registration against username/password policy.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"
	"unicode"

	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/repository"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// DefaultAccessTokenExpiry and DefaultRefreshTokenExpiry are the token
// lifetimes used when Config leaves them zero.
const (
	DefaultAccessTokenExpiry  = 900 * time.Second
	DefaultRefreshTokenExpiry = 604800 * time.Second
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{2,32}$`)

// AuthError is the typed failure surfaced to the HTTP and gateway layers, so
// they can map it to a status code or close code without inspecting strings.
type AuthError struct {
	Code    string
	Message string
	Status  int
}

func (e *AuthError) Error() string { return e.Message }

var (
	errInvalidTokenAuth = &AuthError{Code: "invalid_token", Message: "token is invalid", Status: 401}
	errTokenExpiredAuth = &AuthError{Code: "token_expired", Message: "token has expired", Status: 401}
)

// ErrInvalidToken and ErrTokenExpired are the sentinel failures named in
// spec §4.B, usable with errors.Is against whatever ValidateAccessToken or
// Refresh return.
var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrTokenExpired = errors.New("auth: token expired")
)

// Claims is the payload carried by both access and refresh tokens.
type Claims struct {
	UserID    snowflake.ID `json:"uid"`
	TokenType string       `json:"typ"`
	SessionID string       `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is the access/refresh pair returned on login, refresh, and
// registration.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Config configures a Service.
type Config struct {
	Secret             string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	RefreshTokens      repository.RefreshTokens
	Logger             *slog.Logger
}

// Service is the token service: issues, validates, refreshes, and revokes
// JWT access/refresh pairs, and hashes/verifies passwords.
type Service struct {
	secret             []byte
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	refreshTokens      repository.RefreshTokens
	logger             *slog.Logger
}

// NewService constructs a Service from cfg, filling in default expiries.
func NewService(cfg Config) *Service {
	accessExpiry := cfg.AccessTokenExpiry
	if accessExpiry == 0 {
		accessExpiry = DefaultAccessTokenExpiry
	}
	refreshExpiry := cfg.RefreshTokenExpiry
	if refreshExpiry == 0 {
		refreshExpiry = DefaultRefreshTokenExpiry
	}
	return &Service{
		secret:             []byte(cfg.Secret),
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
		refreshTokens:      cfg.RefreshTokens,
		logger:             cfg.Logger,
	}
}

// HashPassword hashes password with Argon2id using a fresh per-password
// salt.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return hash, nil
}

// VerifyPassword reports whether password matches hash.
func (s *Service) VerifyPassword(password, hash string) (bool, error) {
	match, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return false, fmt.Errorf("comparing password hash: %w", err)
	}
	return match, nil
}

// validateUsername enforces the 2-32 char, alnum/dot/underscore/hyphen
// username policy.
func validateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return &AuthError{Code: "invalid_username", Message: "username must be 2-32 characters of letters, digits, '.', '_' or '-'", Status: 400}
	}
	return nil
}

// validatePassword enforces the password strength gate from spec §4.B: at
// least 8 characters (at most 128), containing at least one uppercase
// letter, one lowercase letter, and one digit.
func validatePassword(password string) error {
	if len(password) < 8 {
		return &AuthError{Code: "weak_password", Message: "password must be at least 8 characters", Status: 400}
	}
	if len([]rune(password)) > 128 {
		return &AuthError{Code: "weak_password", Message: "password must be at most 128 characters", Status: 400}
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return &AuthError{Code: "weak_password", Message: "password must contain an uppercase letter, a lowercase letter, and a digit", Status: 400}
	}
	return nil
}

// ValidateCredentials enforces the username and password policy gates used
// at registration time. The service layer calls this before hashing the
// password or touching storage.
func ValidateCredentials(username, password string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	return validatePassword(password)
}

// ValidateUsername enforces the username policy gate on its own, for
// profile edits that change the username without touching the password.
func ValidateUsername(username string) error {
	return validateUsername(username)
}

// IssueTokenPair mints a fresh access/refresh pair bound to sessionID and
// persists the refresh record.
func (s *Service) IssueTokenPair(ctx context.Context, userID snowflake.ID, sessionID uuid.UUID) (*TokenPair, error) {
	now := time.Now()
	accessExp := now.Add(s.accessTokenExpiry)
	refreshExp := now.Add(s.refreshTokenExpiry)
	jti := uuid.New().String()

	access, err := s.sign(Claims{
		UserID:    userID,
		TokenType: tokenTypeAccess,
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
	})
	if err != nil {
		return nil, err
	}

	refresh, err := s.sign(Claims{
		UserID:    userID,
		TokenType: tokenTypeRefresh,
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExp),
		},
	})
	if err != nil {
		return nil, err
	}

	record := &models.RefreshToken{
		ID:        jti,
		UserID:    userID,
		SessionID: sessionID,
		CreatedAt: now,
	}
	if err := s.refreshTokens.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("storing refresh token record: %w", err)
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// parse validates a token's signature and expiry and checks its type
// matches wantType, distinguishing expired from otherwise-malformed tokens.
func (s *Service) parse(tokenString, wantType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateAccessToken validates an access token and returns the user id it
// carries.
func (s *Service) ValidateAccessToken(tokenString string) (snowflake.ID, error) {
	claims, err := s.parse(tokenString, tokenTypeAccess)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

// ValidateSession validates a bearer access token for the RequireAuth /
// OptionalAuth middleware, returning the user id as a decimal string and an
// *AuthError on failure so the middleware can map it straight to a response.
func (s *Service) ValidateSession(_ context.Context, tokenString string) (string, error) {
	userID, err := s.ValidateAccessToken(tokenString)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return "", errTokenExpiredAuth
		}
		return "", errInvalidTokenAuth
	}
	return userID.String(), nil
}

// Refresh validates a refresh token, revokes it, and mints a new pair bound
// to the same session id (spec §4.B refresh flow).
func (s *Service) Refresh(ctx context.Context, tokenString string) (*TokenPair, error) {
	claims, err := s.parse(tokenString, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	record, err := s.refreshTokens.Get(ctx, claims.ID)
	if err != nil || record == nil {
		return nil, ErrInvalidToken
	}
	if record.Revoked {
		return nil, ErrInvalidToken
	}

	if err := s.refreshTokens.Revoke(ctx, claims.ID); err != nil {
		return nil, fmt.Errorf("revoking refresh token: %w", err)
	}

	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return s.IssueTokenPair(ctx, claims.UserID, sessionID)
}

// Logout revokes a single refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.parse(refreshToken, tokenTypeRefresh)
	if err != nil {
		return err
	}
	if err := s.refreshTokens.Revoke(ctx, claims.ID); err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	return nil
}

// LogoutAll revokes every refresh token issued to userID.
func (s *Service) LogoutAll(ctx context.Context, userID snowflake.ID) error {
	if err := s.refreshTokens.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("revoking all refresh tokens for user %s: %w", userID, err)
	}
	return nil
}
