package session

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/pulsechat/pulsechat/internal/snowflake"
)

func TestSessionKey(t *testing.T) {
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	got := sessionKey(id)
	if !strings.HasPrefix(got, PrefixSession) {
		t.Errorf("sessionKey(%s) = %q, want prefix %q", id, got, PrefixSession)
	}
	if !strings.HasSuffix(got, id.String()) {
		t.Errorf("sessionKey(%s) = %q, want suffix %q", id, got, id)
	}
}

func TestReplayKey(t *testing.T) {
	id := uuid.New()
	got := replayKey(id)
	if !strings.HasPrefix(got, PrefixReplay) {
		t.Errorf("replayKey(%s) = %q, want prefix %q", id, got, PrefixReplay)
	}
}

func TestUserIndexKey(t *testing.T) {
	userID := snowflake.ID(42)
	got := userIndexKey(userID)
	want := PrefixSession + "user:42"
	if got != want {
		t.Errorf("userIndexKey(42) = %q, want %q", got, want)
	}
}

func TestQueuedEvent_JSONRoundTrip(t *testing.T) {
	ev := QueuedEvent{Sequence: 7, Type: "MESSAGE_CREATE", Data: json.RawMessage(`{"content":"hi"}`)}

	encoded, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded QueuedEvent
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Sequence != 7 || decoded.Type != "MESSAGE_CREATE" {
		t.Errorf("decoded = %+v, want sequence 7 type MESSAGE_CREATE", decoded)
	}
}

func TestPrefixes_AreDistinctAndColonTerminated(t *testing.T) {
	prefixes := []string{PrefixSession, PrefixReplay, PrefixRateLimit}
	seen := make(map[string]bool)
	for _, p := range prefixes {
		if !strings.HasSuffix(p, ":") {
			t.Errorf("prefix %q should end with ':'", p)
		}
		if seen[p] {
			t.Errorf("duplicate prefix %q", p)
		}
		seen[p] = true
	}
}
