package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// fakeRefreshTokens is an in-memory repository.RefreshTokens for exercising
// the token service without Redis.
type fakeRefreshTokens struct {
	mu      sync.Mutex
	records map[string]*models.RefreshToken
}

func newFakeRefreshTokens() *fakeRefreshTokens {
	return &fakeRefreshTokens{records: make(map[string]*models.RefreshToken)}
}

func (f *fakeRefreshTokens) Create(_ context.Context, t *models.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.records[t.ID] = &cp
	return nil
}

func (f *fakeRefreshTokens) Get(_ context.Context, id string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.records[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeRefreshTokens) Revoke(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.records[id]
	if !ok {
		return errors.New("not found")
	}
	t.Revoked = true
	return nil
}

func (f *fakeRefreshTokens) RevokeAllForUser(_ context.Context, userID snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.records {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func newTestService(refreshTokens *fakeRefreshTokens) *Service {
	return NewService(Config{
		Secret:             "test-secret",
		AccessTokenExpiry:  time.Minute,
		RefreshTokenExpiry: time.Hour,
		RefreshTokens:      refreshTokens,
	})
}

func TestIssueTokenPair_ValidatesWithAccessToken(t *testing.T) {
	svc := newTestService(newFakeRefreshTokens())
	userID := snowflake.ID(123)
	sessionID := uuid.New()

	pair, err := svc.IssueTokenPair(context.Background(), userID, sessionID)
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}

	got, err := svc.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if got != userID {
		t.Errorf("ValidateAccessToken = %d, want %d", got, userID)
	}
}

func TestValidateAccessToken_RejectsRefreshToken(t *testing.T) {
	svc := newTestService(newFakeRefreshTokens())
	pair, err := svc.IssueTokenPair(context.Background(), snowflake.ID(1), uuid.New())
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}

	if _, err := svc.ValidateAccessToken(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken using a refresh token as access, got %v", err)
	}
}

func TestValidateAccessToken_Expired(t *testing.T) {
	svc := NewService(Config{
		Secret:            "test-secret",
		AccessTokenExpiry: -time.Second,
		RefreshTokens:     newFakeRefreshTokens(),
	})
	pair, err := svc.IssueTokenPair(context.Background(), snowflake.ID(1), uuid.New())
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}

	if _, err := svc.ValidateAccessToken(pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRefresh_RevokesOldAndReissuesSameSession(t *testing.T) {
	refreshTokens := newFakeRefreshTokens()
	svc := newTestService(refreshTokens)
	userID := snowflake.ID(42)
	sessionID := uuid.New()

	first, err := svc.IssueTokenPair(context.Background(), userID, sessionID)
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}

	second, err := svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if _, err := svc.Refresh(context.Background(), first.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected the first refresh token to be revoked, got %v", err)
	}

	got, err := svc.ValidateAccessToken(second.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if got != userID {
		t.Errorf("refreshed pair user = %d, want %d", got, userID)
	}
}

func TestLogout_RevokesRefreshToken(t *testing.T) {
	refreshTokens := newFakeRefreshTokens()
	svc := newTestService(refreshTokens)
	pair, err := svc.IssueTokenPair(context.Background(), snowflake.ID(7), uuid.New())
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}

	if err := svc.Logout(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected refresh to fail after logout, got %v", err)
	}
}

func TestLogoutAll_RevokesEverySessionForUser(t *testing.T) {
	refreshTokens := newFakeRefreshTokens()
	svc := newTestService(refreshTokens)
	userID := snowflake.ID(99)

	a, err := svc.IssueTokenPair(context.Background(), userID, uuid.New())
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}
	b, err := svc.IssueTokenPair(context.Background(), userID, uuid.New())
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}

	if err := svc.LogoutAll(context.Background(), userID); err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), a.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Error("expected first session's refresh token revoked")
	}
	if _, err := svc.Refresh(context.Background(), b.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Error("expected second session's refresh token revoked")
	}
}

func TestValidateSession_MapsToAuthError(t *testing.T) {
	svc := newTestService(newFakeRefreshTokens())
	if _, err := svc.ValidateSession(context.Background(), "garbage"); err == nil {
		t.Fatal("expected an error for a malformed token")
	} else if _, ok := err.(*AuthError); !ok {
		t.Errorf("expected *AuthError, got %T", err)
	}
}

func TestHashPassword_VerifyPassword_RoundTrip(t *testing.T) {
	svc := newTestService(newFakeRefreshTokens())
	hash, err := svc.HashPassword("Sup3rSecret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	match, err := svc.VerifyPassword("Sup3rSecret", hash)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !match {
		t.Error("expected the original password to verify")
	}

	match, err = svc.VerifyPassword("wrong-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if match {
		t.Error("expected a wrong password not to verify")
	}
}
