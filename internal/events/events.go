// Package events implements the internal event bus using NATS pub/sub.
// Service-layer mutations publish envelopes to topics; the gateway's
// subscriber actor consumes them and hands them to the dispatcher for
// fan-out to connections.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// DefaultReconnectDelay is how long the Subscriber actor waits before
// retrying a broker connection after an error or stream end.
const DefaultReconnectDelay = time.Second

// subjectPrefix namespaces every topic under a single NATS subject tree so
// the broker can be shared with other subject hierarchies if needed.
const subjectPrefix = "pulsechat.events."

// GuildTopic, ChannelTopic, UserTopic and BroadcastTopic build the topic
// names used throughout the gateway: guild:<id>, channel:<id>, user:<id>,
// broadcast.
func GuildTopic(id snowflake.ID) string   { return fmt.Sprintf("guild:%s", id) }
func ChannelTopic(id snowflake.ID) string { return fmt.Sprintf("channel:%s", id) }
func UserTopic(id snowflake.ID) string    { return fmt.Sprintf("user:%s", id) }
func BroadcastTopic() string              { return "broadcast" }

func natsSubject(topic string) string {
	return subjectPrefix + strings.ReplaceAll(topic, ":", ".")
}

// Target narrows delivery of an Envelope beyond what its topic already
// implies, e.g. excluding the author of an action from receiving their own
// fan-out copy.
type Target struct {
	ExcludeUsers []snowflake.ID `json:"exclude_users,omitempty"`
}

// Envelope is the wire format for every event carried on the bus. It
// mirrors the gateway's Dispatch payload shape so the dispatcher can
// forward Data with no further transformation.
type Envelope struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Target    *Target         `json:"target,omitempty"`
}

// NewEnvelope marshals data and wraps it in an Envelope of the given type.
func NewEnvelope(eventType string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshaling event data for %s: %w", eventType, err)
	}
	return Envelope{EventType: eventType, Data: raw}, nil
}

// Bus wraps a NATS connection and publishes Envelopes to topics. Publishing
// is best-effort: the durable record already lives in storage by the time a
// service calls Publish, so a broker hiccup here is logged, not surfaced to
// the caller.
type Bus struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// New connects to the NATS server at natsURL and returns a Bus.
func New(natsURL string, logger *slog.Logger) (*Bus, error) {
	opts := []nats.Option{
		nats.Name("pulsechat"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(60),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error("NATS error", slog.String("error", err.Error()))
		}),
	}

	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", natsURL, err)
	}

	logger.Info("NATS connection established", slog.String("url", nc.ConnectedUrl()))
	return &Bus{conn: nc, logger: logger}, nil
}

// Publish serializes env and writes it to topic. It returns an error so
// tests and direct callers can observe failures, but
// service-layer callers should use PublishBestEffort, which never returns
// one (spec §4.E: delivery failure is logged, never raised to the caller of
// the mutating service).
func (b *Bus) Publish(_ context.Context, topic string, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope for %s: %w", topic, err)
	}

	if err := b.conn.Publish(natsSubject(topic), data); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}

	b.logger.Debug("event published", slog.String("topic", topic), slog.String("type", env.EventType))
	return nil
}

// PublishBestEffort publishes env to topic and swallows any error after
// logging it. This is the method the service layer calls: fan-out is an
// optimization, never a correctness requirement, so a broker outage must
// never fail a mutation that has already been committed to storage.
func (b *Bus) PublishBestEffort(ctx context.Context, topic string, env Envelope) {
	if err := b.Publish(ctx, topic, env); err != nil {
		b.logger.Warn("best-effort publish failed",
			slog.String("topic", topic),
			slog.String("type", env.EventType),
			slog.String("error", err.Error()),
		)
	}
}

// HealthCheck verifies the NATS connection is alive.
func (b *Bus) HealthCheck() error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS connection is not active (status: %s)", b.conn.Status())
	}
	return nil
}

// Close drains pending messages and closes the NATS connection.
func (b *Bus) Close() {
	b.logger.Info("closing NATS connection")
	b.conn.Drain()
}

// Conn returns the underlying NATS connection for advanced use cases.
func (b *Bus) Conn() *nats.Conn {
	return b.conn
}
