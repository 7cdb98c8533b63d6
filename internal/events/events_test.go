package events

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/pulsechat/pulsechat/internal/snowflake"
)

func TestTopicConstructors(t *testing.T) {
	id := snowflake.ID(123456789)

	if got, want := GuildTopic(id), "guild:123456789"; got != want {
		t.Errorf("GuildTopic = %q, want %q", got, want)
	}
	if got, want := ChannelTopic(id), "channel:123456789"; got != want {
		t.Errorf("ChannelTopic = %q, want %q", got, want)
	}
	if got, want := UserTopic(id), "user:123456789"; got != want {
		t.Errorf("UserTopic = %q, want %q", got, want)
	}
	if got, want := BroadcastTopic(), "broadcast"; got != want {
		t.Errorf("BroadcastTopic = %q, want %q", got, want)
	}
}

func TestNatsSubject(t *testing.T) {
	cases := map[string]string{
		"guild:123":   "pulsechat.events.guild.123",
		"channel:456": "pulsechat.events.channel.456",
		"user:789":    "pulsechat.events.user.789",
		"broadcast":   "pulsechat.events.broadcast",
	}
	for topic, want := range cases {
		if got := natsSubject(topic); got != want {
			t.Errorf("natsSubject(%q) = %q, want %q", topic, got, want)
		}
	}
}

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope("MESSAGE_CREATE", map[string]string{"content": "hi"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if env.EventType != "MESSAGE_CREATE" {
		t.Errorf("EventType = %q, want %q", env.EventType, "MESSAGE_CREATE")
	}

	var payload map[string]string
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if payload["content"] != "hi" {
		t.Errorf("data.content = %q, want %q", payload["content"], "hi")
	}
}

func TestEnvelope_JSONRoundTrip(t *testing.T) {
	env := Envelope{
		EventType: "GUILD_MEMBER_REMOVE",
		Data:      json.RawMessage(`{"user_id":"1"}`),
		Target:    &Target{ExcludeUsers: []snowflake.ID{42}},
	}

	encoded, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.EventType != env.EventType {
		t.Errorf("EventType = %q, want %q", decoded.EventType, env.EventType)
	}
	if decoded.Target == nil || len(decoded.Target.ExcludeUsers) != 1 || decoded.Target.ExcludeUsers[0] != 42 {
		t.Errorf("Target not round-tripped: %+v", decoded.Target)
	}
}

func TestEnvelope_OmitsEmptyTarget(t *testing.T) {
	env := Envelope{EventType: "PRESENCE_UPDATE", Data: json.RawMessage(`null`)}
	encoded, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(encoded), `"target"`) {
		t.Error("nil Target should be omitted from the envelope JSON")
	}
}
