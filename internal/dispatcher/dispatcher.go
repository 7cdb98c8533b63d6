// Package dispatcher fans bus events out to the live connections that
// should receive them (spec §4.J): it reads events.Message off the
// subscriber, resolves a topic to registry connections, assigns each
// connection its own dispatch sequence, and persists what it sends into the
// recipient's replay buffer so a later Resume can recover it.
package dispatcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pulsechat/pulsechat/internal/events"
	"github.com/pulsechat/pulsechat/internal/gateway"
	"github.com/pulsechat/pulsechat/internal/registry"
	"github.com/pulsechat/pulsechat/internal/session"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// Dispatcher routes bus messages to registry connections.
type Dispatcher struct {
	registry *registry.Registry
	sessions *session.Store
	sub      *events.Subscriber
	logger   *slog.Logger
}

// New constructs a Dispatcher. Call Run to start consuming events.
func New(reg *registry.Registry, sessions *session.Store, sub *events.Subscriber, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: reg, sessions: sessions, sub: sub, logger: logger}
}

// Run consumes events.Message off the subscriber until ctx is canceled.
// Intended to run in its own goroutine, one per process.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-d.sub.Messages():
			if !ok {
				return
			}
			d.route(ctx, msg)
		}
	}
}

func (d *Dispatcher) route(ctx context.Context, msg events.Message) {
	conns := d.connectionsFor(msg.Topic)
	if conns == nil {
		return
	}

	excluded := excludedSet(msg.Envelope.Target)
	for _, conn := range conns {
		if userID := conn.UserID(); userID != nil && excluded[*userID] {
			continue
		}
		d.deliver(ctx, conn, msg.Envelope)
	}
}

// connectionsFor resolves a topic string to the registry connections
// subscribed to it. channel:<id> topics are not a registry index (fan-out
// for channel-scoped events rides the owning guild's topic instead), so they
// resolve to nil.
func (d *Dispatcher) connectionsFor(topic string) []*registry.Connection {
	switch {
	case topic == events.BroadcastTopic():
		return d.registry.AllConnections()
	case strings.HasPrefix(topic, "guild:"):
		id, err := parseSnowflake(strings.TrimPrefix(topic, "guild:"))
		if err != nil {
			d.logger.Warn("malformed guild topic", slog.String("topic", topic))
			return nil
		}
		return d.registry.ConnectionsForGuild(id)
	case strings.HasPrefix(topic, "user:"):
		id, err := parseSnowflake(strings.TrimPrefix(topic, "user:"))
		if err != nil {
			d.logger.Warn("malformed user topic", slog.String("topic", topic))
			return nil
		}
		return d.registry.ConnectionsForUser(id)
	default:
		d.logger.Warn("unroutable topic", slog.String("topic", topic))
		return nil
	}
}

// deliver wraps env as a gateway Dispatch frame addressed to conn's own
// sequence, sends it, and queues it into the recipient session's replay
// buffer. A full outbound channel or a replay-queue failure is logged, never
// propagated: one slow or unlucky connection must not stall fan-out to the
// rest (spec §5 back-pressure).
func (d *Dispatcher) deliver(ctx context.Context, conn *registry.Connection, env events.Envelope) {
	seq := conn.NextSequence()

	frame, err := json.Marshal(gateway.GatewayMessage{
		Op:   gateway.OpDispatch,
		Type: env.EventType,
		Seq:  &seq,
		Data: env.Data,
	})
	if err != nil {
		d.logger.Error("marshaling dispatch frame failed", slog.String("error", err.Error()))
		return
	}

	if !conn.TrySend(frame) {
		d.logger.Warn("dropping dispatch, outbound buffer full",
			slog.String("session_id", conn.SessionID.String()), slog.String("type", env.EventType))
	}

	err = d.sessions.QueueEvent(ctx, conn.SessionID, session.QueuedEvent{Sequence: seq, Type: env.EventType, Data: env.Data})
	if err != nil {
		d.logger.Warn("queueing replay event failed",
			slog.String("session_id", conn.SessionID.String()), slog.String("error", err.Error()))
	}
}

func excludedSet(t *events.Target) map[snowflake.ID]bool {
	if t == nil {
		return nil
	}
	out := make(map[snowflake.ID]bool, len(t.ExcludeUsers))
	for _, id := range t.ExcludeUsers {
		out[id] = true
	}
	return out
}

func parseSnowflake(s string) (snowflake.ID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return snowflake.ID(n), nil
}
