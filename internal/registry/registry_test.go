package registry

import (
	"testing"

	"github.com/google/uuid"

	"github.com/pulsechat/pulsechat/internal/snowflake"
)

func TestAdd_Get(t *testing.T) {
	r := New()
	conn := NewConnection(uuid.New())
	r.Add(conn)

	got, ok := r.Get(conn.SessionID)
	if !ok {
		t.Fatal("expected connection to be found")
	}
	if got != conn {
		t.Error("Get returned a different connection")
	}
}

func TestAuthenticate_IndexesByUser(t *testing.T) {
	r := New()
	conn := NewConnection(uuid.New())
	r.Add(conn)

	userID := snowflake.ID(1)
	r.Authenticate(conn.SessionID, userID)

	conns := r.ConnectionsForUser(userID)
	if len(conns) != 1 || conns[0] != conn {
		t.Errorf("ConnectionsForUser = %v, want [conn]", conns)
	}
	if got := conn.UserID(); got == nil || *got != userID {
		t.Errorf("conn.UserID() = %v, want %v", got, userID)
	}
}

func TestAuthenticate_MultiSessionPerUser(t *testing.T) {
	r := New()
	userID := snowflake.ID(7)

	conn1 := NewConnection(uuid.New())
	conn2 := NewConnection(uuid.New())
	r.Add(conn1)
	r.Add(conn2)
	r.Authenticate(conn1.SessionID, userID)
	r.Authenticate(conn2.SessionID, userID)

	conns := r.ConnectionsForUser(userID)
	if len(conns) != 2 {
		t.Errorf("expected 2 connections for user, got %d", len(conns))
	}
}

func TestSubscribeGuild_IndexesByGuild(t *testing.T) {
	r := New()
	conn := NewConnection(uuid.New())
	r.Add(conn)

	guildID := snowflake.ID(99)
	r.SubscribeGuild(conn.SessionID, guildID)

	conns := r.ConnectionsForGuild(guildID)
	if len(conns) != 1 || conns[0] != conn {
		t.Errorf("ConnectionsForGuild = %v, want [conn]", conns)
	}
}

func TestUnsubscribeGuild_RemovesEmptySet(t *testing.T) {
	r := New()
	conn := NewConnection(uuid.New())
	r.Add(conn)

	guildID := snowflake.ID(5)
	r.SubscribeGuild(conn.SessionID, guildID)
	r.UnsubscribeGuild(conn.SessionID, guildID)

	if conns := r.ConnectionsForGuild(guildID); len(conns) != 0 {
		t.Errorf("expected no connections after unsubscribe, got %d", len(conns))
	}
	if _, exists := r.byGuild[guildID]; exists {
		t.Error("empty guild set should be deleted, not left behind")
	}
}

func TestRemove_CleansUpAllIndices(t *testing.T) {
	r := New()
	conn := NewConnection(uuid.New())
	r.Add(conn)

	userID := snowflake.ID(3)
	guildID := snowflake.ID(4)
	r.Authenticate(conn.SessionID, userID)
	r.SubscribeGuild(conn.SessionID, guildID)

	r.Remove(conn.SessionID)

	if _, ok := r.Get(conn.SessionID); ok {
		t.Error("session should no longer be found")
	}
	if conns := r.ConnectionsForUser(userID); len(conns) != 0 {
		t.Errorf("expected no connections for user after remove, got %d", len(conns))
	}
	if conns := r.ConnectionsForGuild(guildID); len(conns) != 0 {
		t.Errorf("expected no connections for guild after remove, got %d", len(conns))
	}
	if _, exists := r.byUser[userID]; exists {
		t.Error("empty user set should be deleted after remove")
	}
	if _, exists := r.byGuild[guildID]; exists {
		t.Error("empty guild set should be deleted after remove")
	}
}

func TestRemove_MultiSessionKeepsOtherSessions(t *testing.T) {
	r := New()
	userID := snowflake.ID(11)

	conn1 := NewConnection(uuid.New())
	conn2 := NewConnection(uuid.New())
	r.Add(conn1)
	r.Add(conn2)
	r.Authenticate(conn1.SessionID, userID)
	r.Authenticate(conn2.SessionID, userID)

	r.Remove(conn1.SessionID)

	conns := r.ConnectionsForUser(userID)
	if len(conns) != 1 || conns[0] != conn2 {
		t.Errorf("expected only conn2 to remain, got %v", conns)
	}
}

func TestConnection_NextSequence_Monotonic(t *testing.T) {
	conn := NewConnection(uuid.New())
	first := conn.NextSequence()
	second := conn.NextSequence()
	if second != first+1 {
		t.Errorf("sequence should be monotonic: first=%d second=%d", first, second)
	}
}

func TestConnection_TrySend_DropsWhenFull(t *testing.T) {
	conn := NewConnection(uuid.New())
	for i := 0; i < OutboundBuffer; i++ {
		if !conn.TrySend([]byte("x")) {
			t.Fatalf("unexpected drop at message %d of %d", i, OutboundBuffer)
		}
	}
	if conn.TrySend([]byte("overflow")) {
		t.Error("expected TrySend to report false once the buffer is full")
	}
}

func TestConnection_HeartbeatTracking(t *testing.T) {
	conn := NewConnection(uuid.New())
	if !conn.HeartbeatAcked() {
		t.Error("a fresh connection should start acked")
	}

	conn.MarkHeartbeatSent()
	if conn.HeartbeatAcked() {
		t.Error("expected unacked after MarkHeartbeatSent")
	}

	conn.RecordHeartbeat()
	if !conn.HeartbeatAcked() {
		t.Error("expected acked after RecordHeartbeat")
	}
}

func TestAllConnections(t *testing.T) {
	r := New()
	r.Add(NewConnection(uuid.New()))
	r.Add(NewConnection(uuid.New()))

	if got := len(r.AllConnections()); got != 2 {
		t.Errorf("AllConnections = %d, want 2", got)
	}
	if got := r.Len(); got != 2 {
		t.Errorf("Len = %d, want 2", got)
	}
}
