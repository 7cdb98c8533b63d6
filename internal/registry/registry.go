// Package registry is the concurrent in-memory index of live gateway
// connections: session id to connection, user id to its sessions, and
// guild id to the sessions subscribed to it. It is the single source of
// truth the dispatcher consults to fan out events.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// OutboundBuffer is the capacity of a Connection's outbound channel.
const OutboundBuffer = 100

// State is the gateway protocol state machine's current phase for a
// connection (spec §4.I).
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

// Connection is everything the registry and dispatcher need to know about
// one live WebSocket connection.
type Connection struct {
	SessionID uuid.UUID

	mu              sync.Mutex
	userID          *snowflake.ID
	state           State
	seq             int64
	lastHeartbeat   time.Time
	heartbeatAcked  bool
	subscribedGuilds map[snowflake.ID]struct{}

	Outbound chan []byte
}

// NewConnection creates a Connection in the Connecting state, not yet
// associated with any user.
func NewConnection(sessionID uuid.UUID) *Connection {
	return &Connection{
		SessionID:        sessionID,
		state:            StateConnecting,
		lastHeartbeat:    time.Now(),
		heartbeatAcked:   true,
		subscribedGuilds: make(map[snowflake.ID]struct{}),
		Outbound:         make(chan []byte, OutboundBuffer),
	}
}

// UserID returns the authenticated user id, or nil if not yet identified.
func (c *Connection) UserID() *snowflake.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Connection) setUserID(id snowflake.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = &id
}

// State returns the current protocol state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState transitions the connection to a new protocol state.
func (c *Connection) SetState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// NextSequence returns the next per-connection dispatch sequence number.
func (c *Connection) NextSequence() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Sequence returns the current sequence number without advancing it.
func (c *Connection) Sequence() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// SetSequence restores the sequence counter, used on Resume.
func (c *Connection) SetSequence(seq int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = seq
}

// RecordHeartbeat marks the connection as having just heartbeat.
func (c *Connection) RecordHeartbeat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastHeartbeat = time.Now()
	c.heartbeatAcked = true
}

// LastHeartbeat returns the time of the last recorded heartbeat.
func (c *Connection) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}

// MarkHeartbeatSent records that the server sent a heartbeat expectation
// and is now waiting for an ack.
func (c *Connection) MarkHeartbeatSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heartbeatAcked = false
}

// HeartbeatAcked reports whether the most recent heartbeat cycle was acked.
func (c *Connection) HeartbeatAcked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeatAcked
}

// SubscribedGuilds returns a snapshot of the connection's subscribed guild set.
func (c *Connection) SubscribedGuilds() []snowflake.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]snowflake.ID, 0, len(c.subscribedGuilds))
	for id := range c.subscribedGuilds {
		out = append(out, id)
	}
	return out
}

func (c *Connection) addGuild(id snowflake.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribedGuilds[id] = struct{}{}
}

func (c *Connection) removeGuild(id snowflake.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscribedGuilds, id)
}

// TrySend attempts a non-blocking write to the connection's outbound
// channel. It reports false if the channel is full, meaning the connection
// is slow and the caller should drop the message rather than block.
func (c *Connection) TrySend(payload []byte) bool {
	select {
	case c.Outbound <- payload:
		return true
	default:
		return false
	}
}

// Registry is the concurrent connection index described in spec §4.H. All
// three indices (session, user, guild) mutate atomically under a single
// lock per operation so a reader never observes one index updated without
// the others.
type Registry struct {
	mu sync.RWMutex

	bySession map[uuid.UUID]*Connection
	byUser    map[snowflake.ID]map[uuid.UUID]struct{}
	byGuild   map[snowflake.ID]map[uuid.UUID]struct{}
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		bySession: make(map[uuid.UUID]*Connection),
		byUser:    make(map[snowflake.ID]map[uuid.UUID]struct{}),
		byGuild:   make(map[snowflake.ID]map[uuid.UUID]struct{}),
	}
}

// Add registers a new, not-yet-authenticated connection.
func (r *Registry) Add(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySession[conn.SessionID] = conn
}

// Remove deregisters a connection and prunes it from every index it
// appears in. Any user or guild set left empty by the removal is deleted
// outright, never left behind as an empty map (spec §4.H cleanup invariant).
func (r *Registry) Remove(sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.bySession[sessionID]
	if !ok {
		return
	}
	delete(r.bySession, sessionID)

	if userID := conn.UserID(); userID != nil {
		if set, ok := r.byUser[*userID]; ok {
			delete(set, sessionID)
			if len(set) == 0 {
				delete(r.byUser, *userID)
			}
		}
	}

	for _, guildID := range conn.SubscribedGuilds() {
		if set, ok := r.byGuild[guildID]; ok {
			delete(set, sessionID)
			if len(set) == 0 {
				delete(r.byGuild, guildID)
			}
		}
	}
}

// Authenticate binds a connection to a user, indexing it under byUser.
func (r *Registry) Authenticate(sessionID uuid.UUID, userID snowflake.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.bySession[sessionID]
	if !ok {
		return
	}
	conn.setUserID(userID)

	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		r.byUser[userID] = set
	}
	set[sessionID] = struct{}{}
}

// SubscribeGuild indexes a connection under a guild id for fan-out.
func (r *Registry) SubscribeGuild(sessionID uuid.UUID, guildID snowflake.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.bySession[sessionID]
	if !ok {
		return
	}
	conn.addGuild(guildID)

	set, ok := r.byGuild[guildID]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		r.byGuild[guildID] = set
	}
	set[sessionID] = struct{}{}
}

// UnsubscribeGuild removes a connection from a guild's fan-out set, e.g. on
// leaving or being removed from the guild.
func (r *Registry) UnsubscribeGuild(sessionID uuid.UUID, guildID snowflake.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.bySession[sessionID]
	if !ok {
		return
	}
	conn.removeGuild(guildID)

	if set, ok := r.byGuild[guildID]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.byGuild, guildID)
		}
	}
}

// Get returns the connection for a session id, if any.
func (r *Registry) Get(sessionID uuid.UUID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.bySession[sessionID]
	return conn, ok
}

// ConnectionsForUser returns every live connection belonging to userID.
func (r *Registry) ConnectionsForUser(userID snowflake.ID) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	out := make([]*Connection, 0, len(set))
	for sessionID := range set {
		if conn, ok := r.bySession[sessionID]; ok {
			out = append(out, conn)
		}
	}
	return out
}

// ConnectionsForGuild returns every live connection subscribed to guildID.
func (r *Registry) ConnectionsForGuild(guildID snowflake.ID) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.byGuild[guildID]
	if !ok {
		return nil
	}
	out := make([]*Connection, 0, len(set))
	for sessionID := range set {
		if conn, ok := r.bySession[sessionID]; ok {
			out = append(out, conn)
		}
	}
	return out
}

// AllConnections returns every live connection, for broadcast fan-out.
func (r *Registry) AllConnections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.bySession))
	for _, conn := range r.bySession {
		out = append(out, conn)
	}
	return out
}

// Len reports the number of live connections, for metrics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySession)
}
