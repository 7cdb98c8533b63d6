package session

import (
	"testing"

	"github.com/pulsechat/pulsechat/internal/snowflake"
)

func TestRefreshTokenKey(t *testing.T) {
	got := refreshTokenKey("abc-123")
	want := PrefixRefreshToken + "abc-123"
	if got != want {
		t.Errorf("refreshTokenKey = %q, want %q", got, want)
	}
}

func TestRefreshUserIndexKey(t *testing.T) {
	got := refreshUserIndexKey(snowflake.ID(9))
	want := PrefixRefreshToken + "user:9"
	if got != want {
		t.Errorf("refreshUserIndexKey = %q, want %q", got, want)
	}
}
