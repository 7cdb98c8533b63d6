package models

import (
	"testing"
	"time"

	"github.com/pulsechat/pulsechat/internal/snowflake"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestUser_IsDeleted(t *testing.T) {
	if (User{}).IsDeleted() {
		t.Error("zero-value user should not be deleted")
	}
	if !(User{DeletedAt: timePtr(time.Now())}).IsDeleted() {
		t.Error("user with DeletedAt set should be deleted")
	}
}

func TestUser_Tag(t *testing.T) {
	u := User{Username: "alice", Discriminator: "0001"}
	if got := u.Tag(); got != "alice#0001" {
		t.Errorf("Tag() = %q, want %q", got, "alice#0001")
	}
}

func TestGuild_IsDeleted(t *testing.T) {
	if (Guild{}).IsDeleted() {
		t.Error("zero-value guild should not be deleted")
	}
	if !(Guild{DeletedAt: timePtr(time.Now())}).IsDeleted() {
		t.Error("guild with DeletedAt set should be deleted")
	}
}

func TestChannel_IsDM(t *testing.T) {
	gid := snowflake.ID(1)
	if (Channel{GuildID: &gid}).IsDM() {
		t.Error("channel with a guild id should not be a DM")
	}
	if !(Channel{}).IsDM() {
		t.Error("channel with no guild id should be a DM")
	}
}

func TestGuildMember_IsTimedOut(t *testing.T) {
	tests := []struct {
		name     string
		timeout  *time.Time
		expected bool
	}{
		{"nil timeout", nil, false},
		{"future timeout", timePtr(time.Now().Add(1 * time.Hour)), true},
		{"past timeout", timePtr(time.Now().Add(-1 * time.Hour)), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := GuildMember{TimeoutUntil: tc.timeout}
			if got := m.IsTimedOut(); got != tc.expected {
				t.Errorf("IsTimedOut() = %v, want %v", got, tc.expected)
			}
		})
	}
}

func TestMessage_IsDeletedAndEdited(t *testing.T) {
	m := Message{}
	if m.IsDeleted() || m.IsEdited() {
		t.Error("zero-value message should be neither deleted nor edited")
	}
	m.DeletedAt = timePtr(time.Now())
	m.EditedAt = timePtr(time.Now())
	if !m.IsDeleted() || !m.IsEdited() {
		t.Error("message with DeletedAt/EditedAt set should report both true")
	}
}

func TestInvite_IsExpired(t *testing.T) {
	if (Invite{}).IsExpired() {
		t.Error("invite with no expiry should never be expired")
	}
	if !(Invite{ExpiresAt: timePtr(time.Now().Add(-time.Hour))}).IsExpired() {
		t.Error("invite with past expiry should be expired")
	}
	if (Invite{ExpiresAt: timePtr(time.Now().Add(time.Hour))}).IsExpired() {
		t.Error("invite with future expiry should not be expired")
	}
}

func TestInvite_IsMaxUsesReached(t *testing.T) {
	three := 3
	if (Invite{MaxUses: nil, Uses: 100}).IsMaxUsesReached() {
		t.Error("invite with no max uses should never be reached")
	}
	if (Invite{MaxUses: &three, Uses: 2}).IsMaxUsesReached() {
		t.Error("uses below max should not be reached")
	}
	if !(Invite{MaxUses: &three, Uses: 3}).IsMaxUsesReached() {
		t.Error("uses equal to max should be reached")
	}
}
