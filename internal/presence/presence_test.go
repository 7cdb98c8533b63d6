package presence

import (
	"testing"

	"github.com/pulsechat/pulsechat/internal/snowflake"
)

func TestStatusValid(t *testing.T) {
	cases := map[Status]bool{
		StatusOnline:  true,
		StatusIdle:    true,
		StatusDnd:     true,
		StatusOffline: true,
		Status("away"): false,
		Status(""):     false,
	}
	for status, want := range cases {
		if got := status.Valid(); got != want {
			t.Errorf("Status(%q).Valid() = %v, want %v", status, got, want)
		}
	}
}

func TestStatusVisible(t *testing.T) {
	cases := map[Status]bool{
		StatusOnline:  true,
		StatusIdle:    true,
		StatusDnd:     true,
		StatusOffline: false,
	}
	for status, want := range cases {
		if got := status.Visible(); got != want {
			t.Errorf("Status(%q).Visible() = %v, want %v", status, got, want)
		}
	}
}

func TestPresenceKey(t *testing.T) {
	id := snowflake.ID(42)
	got := presenceKey(id)
	want := PrefixPresence + "42"
	if got != want {
		t.Errorf("presenceKey(42) = %q, want %q", got, want)
	}
}

func TestTypingKey(t *testing.T) {
	channelID := snowflake.ID(7)
	userID := snowflake.ID(42)
	got := typingKey(channelID, userID)
	want := PrefixTyping + "7:42"
	if got != want {
		t.Errorf("typingKey(7, 42) = %q, want %q", got, want)
	}
}

func TestTypingScanPattern(t *testing.T) {
	channelID := snowflake.ID(7)
	got := typingScanPattern(channelID)
	want := PrefixTyping + "7:*"
	if got != want {
		t.Errorf("typingScanPattern(7) = %q, want %q", got, want)
	}
}
