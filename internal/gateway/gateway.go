// Package gateway implements the WebSocket protocol state machine (spec
// §4.I): wire framing, Identify/Resume handshakes, heartbeat liveness, and
// presence updates. Fan-out of bus events to established connections is
// internal/dispatcher's job; this package only owns one connection's own
// lifecycle.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/pulsechat/pulsechat/internal/auth"
	"github.com/pulsechat/pulsechat/internal/events"
	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/presence"
	"github.com/pulsechat/pulsechat/internal/registry"
	"github.com/pulsechat/pulsechat/internal/repository"
	"github.com/pulsechat/pulsechat/internal/session"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// Opcodes, direction per spec §4.I's wire format table.
const (
	OpDispatch       = 0  // S->C
	OpHeartbeat      = 1  // both
	OpIdentify       = 2  // C->S
	OpPresenceUpdate = 3  // C->S
	OpResume         = 4  // C->S
	OpReconnect      = 5  // S->C
	OpInvalidSession = 7  // S->C
	OpHello          = 10 // S->C
	OpHeartbeatAck   = 11 // S->C
)

// Close codes (spec §4.I / §7).
const (
	CloseUnknown              = 4000
	CloseUnknownOpcode        = 4001
	CloseDecodeError          = 4002
	CloseNotAuthenticated     = 4003
	CloseAuthFailed           = 4004
	CloseAlreadyAuthenticated = 4005
	CloseBadSequence          = 4007
	CloseRateLimited          = 4008
	CloseSessionTimeout       = 4009
)

// HeartbeatInterval is sent to the client in Hello. SilenceTimeout is the
// hard close if no heartbeat is seen at all; a heartbeat cycle the server
// itself initiated that goes unacked for one more interval closes the same
// way (spec §4.I / §5 timeouts).
const (
	HeartbeatInterval = 45 * time.Second
	SilenceTimeout    = 90 * time.Second
)

var validPresenceStatuses = map[string]bool{"online": true, "idle": true, "dnd": true, "offline": true}

// GatewayMessage is the wire frame: `{op, t?, s?, d?}`.
type GatewayMessage struct {
	Op   int             `json:"op"`
	Type string          `json:"t,omitempty"`
	Seq  *int64          `json:"s,omitempty"`
	Data json.RawMessage `json:"d,omitempty"`
}

// IdentifyPayload is op=2's payload.
type IdentifyPayload struct {
	Token      string                  `json:"token"`
	Properties models.ClientProperties `json:"properties,omitempty"`
}

// ResumePayload is op=4's payload.
type ResumePayload struct {
	Token     string    `json:"token"`
	SessionID uuid.UUID `json:"session_id"`
	Seq       int64     `json:"seq"`
}

// PresenceUpdatePayload is op=3's payload.
type PresenceUpdatePayload struct {
	Status string `json:"status"`
}

// HelloPayload is op=10's payload.
type HelloPayload struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

// InvalidSessionPayload is op=7's payload.
type InvalidSessionPayload struct {
	Resumable bool `json:"resumable"`
}

// UnavailableGuild marks a guild in READY that has not yet had its
// GUILD_CREATE dispatched. This implementation loads every guild eagerly on
// Identify, so this list is always empty; the field exists for wire
// compatibility with clients expecting the lazy-load shape.
type UnavailableGuild struct {
	ID          snowflake.ID `json:"id"`
	Unavailable bool         `json:"unavailable"`
}

// ReadyPayload is the payload of the READY dispatch.
type ReadyPayload struct {
	V         int                `json:"v"`
	User      *models.User       `json:"user"`
	Guilds    []UnavailableGuild `json:"guilds"`
	SessionID uuid.UUID          `json:"session_id"`
	ResumeURL string             `json:"resume_url"`
}

// GuildCreatePayload is the payload of one GUILD_CREATE dispatch.
type GuildCreatePayload struct {
	*models.Guild
	Channels    []*models.Channel `json:"channels"`
	Roles       []*models.Role    `json:"roles"`
	MemberCount int               `json:"member_count"`
}

// ServerConfig wires the gateway to the rest of the system.
type ServerConfig struct {
	Auth       *auth.Service
	Repos      *repository.Repositories
	Sessions   *session.Store
	Registry   *registry.Registry
	Presence   *presence.Store
	Bus        *events.Bus
	Subscriber *events.Subscriber
	ListenAddr string
	// PublicHost, if set, is the host:port advertised in READY's resume_url.
	// Defaults to ListenAddr.
	PublicHost string
	Logger     *slog.Logger
}

// Server accepts WebSocket upgrades at /gateway and runs the protocol state
// machine for each connection.
type Server struct {
	cfg  ServerConfig
	http *http.Server
}

// NewServer constructs a Server. Call Start to begin listening.
func NewServer(cfg ServerConfig) *Server {
	mux := http.NewServeMux()
	s := &Server{cfg: cfg}
	mux.HandleFunc("/gateway", s.handleWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	s.http = &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	return s
}

// Start runs the HTTP server until Shutdown is called. It blocks.
func (s *Server) Start() error {
	s.cfg.Logger.Info("gateway listening", slog.String("addr", s.cfg.ListenAddr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) resumeURL() string {
	host := s.cfg.PublicHost
	if host == "" {
		host = s.cfg.ListenAddr
	}
	return "ws://" + host + "/gateway"
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.cfg.Logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := registry.NewConnection(uuid.New())
	s.cfg.Registry.Add(conn)

	h := &connHandler{srv: s, ws: ws, conn: conn, ctx: ctx, cancel: cancel}
	defer h.cleanup()

	if !h.sendHello() {
		return
	}

	go h.writePump()
	go h.heartbeatMonitor()

	h.readLoop()
}

// connHandler runs one connection's reader, writer, and heartbeat tasks.
// Any one of the three terminating cancels ctx, which unwinds the other two
// (spec §5: per-connection tasks share ownership through channel closure).
type connHandler struct {
	srv    *Server
	ws     *websocket.Conn
	conn   *registry.Connection
	ctx    context.Context
	cancel context.CancelFunc
}

func (h *connHandler) sendHello() bool {
	data, err := json.Marshal(HelloPayload{HeartbeatInterval: int(HeartbeatInterval / time.Millisecond)})
	if err != nil {
		return false
	}
	msg, err := json.Marshal(GatewayMessage{Op: OpHello, Data: data})
	if err != nil {
		return false
	}
	return h.ws.Write(h.ctx, websocket.MessageText, msg) == nil
}

func (h *connHandler) writePump() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case payload, ok := <-h.conn.Outbound:
			if !ok {
				return
			}
			if err := h.ws.Write(h.ctx, websocket.MessageText, payload); err != nil {
				h.cancel()
				return
			}
		}
	}
}

func (h *connHandler) heartbeatMonitor() {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			if time.Since(h.conn.LastHeartbeat()) > SilenceTimeout {
				h.closeWithCode(CloseSessionTimeout, "no heartbeat for 90s")
				return
			}
			if !h.conn.HeartbeatAcked() {
				h.closeWithCode(CloseSessionTimeout, "heartbeat unacked for 45s")
				return
			}
			h.conn.MarkHeartbeatSent()
			h.send(GatewayMessage{Op: OpHeartbeat, Data: seqData(h.conn.Sequence())})
			if userID := h.conn.UserID(); userID != nil {
				if err := h.srv.cfg.Presence.Refresh(h.ctx, *userID); err != nil {
					h.srv.cfg.Logger.Warn("refreshing presence failed", slog.String("error", err.Error()))
				}
				// Keep the durable session's LastActiveAt current so the
				// stale-session reaper leaves live connections alone.
				if sess, err := h.srv.cfg.Sessions.Get(h.ctx, h.conn.SessionID); err == nil {
					sess.LastActiveAt = time.Now()
					if err := h.srv.cfg.Sessions.Update(h.ctx, sess); err != nil {
						h.srv.cfg.Logger.Warn("refreshing session activity failed", slog.String("error", err.Error()))
					}
				}
			}
		}
	}
}

func (h *connHandler) readLoop() {
	for {
		_, data, err := h.ws.Read(h.ctx)
		if err != nil {
			return
		}

		var msg GatewayMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.closeWithCode(CloseDecodeError, "decode error")
			return
		}
		if !h.handleMessage(msg) {
			return
		}
	}
}

func (h *connHandler) handleMessage(msg GatewayMessage) bool {
	switch msg.Op {
	case OpHeartbeat:
		h.conn.RecordHeartbeat()
		h.send(GatewayMessage{Op: OpHeartbeatAck})
		return true

	case OpIdentify:
		if h.conn.UserID() != nil {
			h.closeWithCode(CloseAlreadyAuthenticated, "already authenticated")
			return false
		}
		return h.handleIdentify(msg.Data)

	case OpResume:
		if h.conn.UserID() != nil {
			h.closeWithCode(CloseAlreadyAuthenticated, "already authenticated")
			return false
		}
		return h.handleResume(msg.Data)

	case OpPresenceUpdate:
		if h.conn.UserID() == nil {
			h.closeWithCode(CloseNotAuthenticated, "not authenticated")
			return false
		}
		return h.handlePresenceUpdate(msg.Data)

	default:
		h.closeWithCode(CloseUnknownOpcode, "unknown or server-only opcode")
		return false
	}
}

func (h *connHandler) handleIdentify(data json.RawMessage) bool {
	var payload IdentifyPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.closeWithCode(CloseDecodeError, "decode error")
		return false
	}

	userID, err := h.srv.cfg.Auth.ValidateAccessToken(payload.Token)
	if err != nil {
		h.closeWithCode(CloseAuthFailed, "auth failed")
		return false
	}

	user, err := h.srv.cfg.Repos.Users.Get(h.ctx, userID)
	if err != nil {
		h.closeWithCode(CloseAuthFailed, "auth failed")
		return false
	}

	guilds, err := h.srv.cfg.Repos.Guilds.ListForUser(h.ctx, userID)
	if err != nil {
		h.srv.cfg.Logger.Error("loading guilds for identify failed", slog.String("error", err.Error()))
		h.closeWithCode(CloseUnknown, "internal error")
		return false
	}

	guildIDs := make([]snowflake.ID, len(guilds))
	for i, g := range guilds {
		guildIDs[i] = g.ID
	}

	sess := &models.Session{
		ID:               h.conn.SessionID,
		UserID:           userID,
		SubscribedGuilds: guildIDs,
		State:            models.SessionConnected,
		LastActiveAt:     time.Now(),
		Properties:       payload.Properties,
		CreatedAt:        time.Now(),
	}
	if err := h.srv.cfg.Sessions.Create(h.ctx, sess); err != nil {
		h.srv.cfg.Logger.Error("creating session failed", slog.String("error", err.Error()))
		h.closeWithCode(CloseUnknown, "internal error")
		return false
	}

	h.srv.cfg.Registry.Authenticate(h.conn.SessionID, userID)
	for _, id := range guildIDs {
		h.srv.cfg.Registry.SubscribeGuild(h.conn.SessionID, id)
	}
	h.conn.SetState(registry.StateConnected)
	h.subscribeBusTopics(userID, guildIDs)

	h.dispatch("READY", ReadyPayload{
		V:         1,
		User:      user,
		Guilds:    []UnavailableGuild{},
		SessionID: h.conn.SessionID,
		ResumeURL: h.srv.resumeURL(),
	})

	for _, g := range guilds {
		payload, err := h.srv.buildGuildCreate(h.ctx, g)
		if err != nil {
			h.srv.cfg.Logger.Warn("building GUILD_CREATE failed",
				slog.String("guild_id", g.ID.String()), slog.String("error", err.Error()))
			continue
		}
		h.dispatch("GUILD_CREATE", payload)
	}

	h.publishPresence(userID, string(presence.StatusOnline))
	return true
}

func (h *connHandler) handleResume(data json.RawMessage) bool {
	var payload ResumePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.closeWithCode(CloseDecodeError, "decode error")
		return false
	}

	userID, err := h.srv.cfg.Auth.ValidateAccessToken(payload.Token)
	if err != nil {
		h.sendInvalidSession(false)
		return true
	}

	oldSession, err := h.srv.cfg.Sessions.Get(h.ctx, payload.SessionID)
	if err != nil || oldSession.UserID != userID || oldSession.State != models.SessionDisconnected {
		h.sendInvalidSession(false)
		return true
	}

	h.srv.cfg.Registry.Authenticate(h.conn.SessionID, userID)
	for _, id := range oldSession.SubscribedGuilds {
		h.srv.cfg.Registry.SubscribeGuild(h.conn.SessionID, id)
	}
	h.conn.SetState(registry.StateConnected)
	h.subscribeBusTopics(userID, oldSession.SubscribedGuilds)
	h.publishPresence(userID, string(presence.StatusOnline))

	replay, err := h.srv.cfg.Sessions.GetEventsSince(h.ctx, oldSession.ID, payload.Seq)
	if err != nil {
		h.srv.cfg.Logger.Warn("fetching replay buffer failed", slog.String("error", err.Error()))
	}
	for _, ev := range replay {
		seq := ev.Sequence
		h.send(GatewayMessage{Op: OpDispatch, Type: ev.Type, Seq: &seq, Data: ev.Data})
	}

	// Resume the sequence counter from the durable record, not the client's
	// last-seen value: replayed events already occupy everything above
	// payload.Seq, so new dispatches must continue past oldSession.LastSequence.
	h.conn.SetSequence(oldSession.LastSequence)
	h.dispatch("RESUMED", struct{}{})

	newSession := &models.Session{
		ID:               h.conn.SessionID,
		UserID:           userID,
		LastSequence:     h.conn.Sequence(),
		SubscribedGuilds: oldSession.SubscribedGuilds,
		State:            models.SessionConnected,
		LastActiveAt:     time.Now(),
		Properties:       oldSession.Properties,
		CreatedAt:        time.Now(),
	}
	if err := h.srv.cfg.Sessions.Delete(h.ctx, oldSession.ID); err != nil {
		h.srv.cfg.Logger.Warn("deleting old session failed", slog.String("error", err.Error()))
	}
	if err := h.srv.cfg.Sessions.Create(h.ctx, newSession); err != nil {
		h.srv.cfg.Logger.Error("creating resumed session failed", slog.String("error", err.Error()))
	}

	return true
}

func (h *connHandler) handlePresenceUpdate(data json.RawMessage) bool {
	var payload PresenceUpdatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.closeWithCode(CloseDecodeError, "decode error")
		return false
	}
	if !validPresenceStatuses[payload.Status] {
		h.closeWithCode(CloseDecodeError, "invalid presence status")
		return false
	}

	h.publishPresence(*h.conn.UserID(), payload.Status)
	return true
}

// dispatch wraps payload as an op=0 frame, assigns the next per-connection
// sequence, sends it, and queues it in the session's replay buffer so a
// subsequent Resume can recover it.
func (h *connHandler) dispatch(eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.srv.cfg.Logger.Error("marshaling dispatch payload failed",
			slog.String("type", eventType), slog.String("error", err.Error()))
		return
	}

	seq := h.conn.NextSequence()
	h.send(GatewayMessage{Op: OpDispatch, Type: eventType, Seq: &seq, Data: data})

	if err := h.srv.cfg.Sessions.QueueEvent(h.ctx, h.conn.SessionID, session.QueuedEvent{Sequence: seq, Type: eventType, Data: data}); err != nil {
		h.srv.cfg.Logger.Warn("queueing replay event failed", slog.String("error", err.Error()))
	}
}

// subscribeBusTopics tells the shared Subscriber to start forwarding the
// user's own topic and every guild topic it just joined in Identify or
// Resume. Subscribe is idempotent and additive (events.Subscriber tracks
// active topics as a set), so multiple connections sharing a guild, or the
// same connection resuming, never double-deliver; nothing ever unsubscribes
// a guild topic on disconnect, since another member's live connection may
// still need it.
func (h *connHandler) subscribeBusTopics(userID snowflake.ID, guildIDs []snowflake.ID) {
	topics := make([]string, 0, len(guildIDs)+1)
	topics = append(topics, events.UserTopic(userID))
	for _, id := range guildIDs {
		topics = append(topics, events.GuildTopic(id))
	}
	h.srv.cfg.Subscriber.Subscribe(h.ctx, topics...)
}

// publishPresence persists userID's new status in the durable presence
// store, then fans the change out to every guild the connection is
// subscribed to so other members' clients update their roster live.
func (h *connHandler) publishPresence(userID snowflake.ID, status string) {
	if _, err := h.srv.cfg.Presence.SetStatus(h.ctx, userID, presence.Status(status), nil); err != nil {
		h.srv.cfg.Logger.Error("persisting presence failed", slog.String("error", err.Error()))
	}

	env, err := events.NewEnvelope("PRESENCE_UPDATE", map[string]any{"user_id": userID, "status": status})
	if err != nil {
		h.srv.cfg.Logger.Error("building presence envelope failed", slog.String("error", err.Error()))
		return
	}
	for _, guildID := range h.conn.SubscribedGuilds() {
		h.srv.cfg.Bus.PublishBestEffort(h.ctx, events.GuildTopic(guildID), env)
	}
}

func (h *connHandler) sendInvalidSession(resumable bool) {
	data, err := json.Marshal(InvalidSessionPayload{Resumable: resumable})
	if err != nil {
		return
	}
	h.send(GatewayMessage{Op: OpInvalidSession, Data: data})
}

func (h *connHandler) send(msg GatewayMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.srv.cfg.Logger.Error("marshaling gateway message failed", slog.String("error", err.Error()))
		return
	}
	if !h.conn.TrySend(data) {
		h.srv.cfg.Logger.Warn("dropping gateway message, outbound buffer full",
			slog.String("session_id", h.conn.SessionID.String()))
	}
}

func (h *connHandler) closeWithCode(code int, reason string) {
	h.ws.Close(websocket.StatusCode(code), reason)
	h.cancel()
}

func (h *connHandler) cleanup() {
	h.conn.SetState(registry.StateDisconnecting)
	userID := h.conn.UserID()
	if userID != nil {
		// Record the last dispatched sequence so a later Resume continues past it.
		if sess, err := h.srv.cfg.Sessions.Get(context.Background(), h.conn.SessionID); err == nil {
			sess.LastSequence = h.conn.Sequence()
			if err := h.srv.cfg.Sessions.Update(context.Background(), sess); err != nil {
				h.srv.cfg.Logger.Warn("recording session sequence failed", slog.String("error", err.Error()))
			}
		}
		if err := h.srv.cfg.Sessions.MarkDisconnected(context.Background(), h.conn.SessionID); err != nil {
			h.srv.cfg.Logger.Warn("marking session disconnected failed", slog.String("error", err.Error()))
		}
	}
	h.srv.cfg.Registry.Remove(h.conn.SessionID)
	h.conn.SetState(registry.StateDisconnected)

	// Only clear presence once this was the user's last live connection;
	// another device's connection owns the record otherwise.
	if userID != nil && len(h.srv.cfg.Registry.ConnectionsForUser(*userID)) == 0 {
		ctx := context.Background()
		if err := h.srv.cfg.Presence.Remove(ctx, *userID); err != nil {
			h.srv.cfg.Logger.Warn("removing presence failed", slog.String("error", err.Error()))
		}
		env, err := events.NewEnvelope("PRESENCE_UPDATE", map[string]any{"user_id": *userID, "status": string(presence.StatusOffline)})
		if err != nil {
			h.srv.cfg.Logger.Error("building presence envelope failed", slog.String("error", err.Error()))
		} else {
			for _, guildID := range h.conn.SubscribedGuilds() {
				h.srv.cfg.Bus.PublishBestEffort(ctx, events.GuildTopic(guildID), env)
			}
		}
	}

	h.ws.Close(websocket.StatusNormalClosure, "connection closed")
}

func (s *Server) buildGuildCreate(ctx context.Context, g *models.Guild) (GuildCreatePayload, error) {
	channels, err := s.cfg.Repos.Channels.ListForGuild(ctx, g.ID)
	if err != nil {
		return GuildCreatePayload{}, fmt.Errorf("listing channels: %w", err)
	}
	roles, err := s.cfg.Repos.Roles.ListForGuild(ctx, g.ID)
	if err != nil {
		return GuildCreatePayload{}, fmt.Errorf("listing roles: %w", err)
	}
	members, err := s.cfg.Repos.GuildMembers.ListForGuild(ctx, g.ID, repository.Cursor{Limit: repository.MaxLimit})
	if err != nil {
		return GuildCreatePayload{}, fmt.Errorf("listing members: %w", err)
	}

	return GuildCreatePayload{
		Guild:       g,
		Channels:    channels,
		Roles:       roles,
		MemberCount: len(members),
	}, nil
}

func seqData(seq int64) json.RawMessage {
	data, _ := json.Marshal(seq)
	return data
}
