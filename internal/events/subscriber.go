package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Message is a received Envelope tagged with the topic it arrived on.
type Message struct {
	Topic    string
	Envelope Envelope
}

type controlKind int

const (
	controlSubscribe controlKind = iota
	controlUnsubscribe
	controlShutdown
)

type controlMsg struct {
	kind   controlKind
	topics []string
	done   chan struct{}
}

// broadcastBuffer is the capacity of the Subscriber's in-process fan-out
// channel. The dispatcher reads from it; a consumer that falls behind sees
// dropped messages logged as lag rather than the Subscriber blocking.
const broadcastBuffer = 1024

// Subscriber owns one long-lived NATS connection and republishes everything
// it receives on an in-process bounded channel for the dispatcher to
// consume. It accepts subscribe/unsubscribe/shutdown commands over a
// control channel so topic interest can change while it runs, and
// reconnects with a fixed delay on broker error or stream end, resubscribing
// to every currently-active topic.
type Subscriber struct {
	natsURL        string
	logger         *slog.Logger
	reconnectDelay time.Duration

	out     chan Message
	control chan controlMsg
}

// NewSubscriber constructs a Subscriber. Call Run to start its actor loop.
func NewSubscriber(natsURL string, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		natsURL:        natsURL,
		logger:         logger,
		reconnectDelay: DefaultReconnectDelay,
		out:            make(chan Message, broadcastBuffer),
		control:        make(chan controlMsg),
	}
}

// Messages returns the channel the dispatcher should read from.
func (s *Subscriber) Messages() <-chan Message { return s.out }

// Subscribe adds topics to the active set. Safe to call concurrently with Run.
func (s *Subscriber) Subscribe(ctx context.Context, topics ...string) {
	s.send(ctx, controlMsg{kind: controlSubscribe, topics: topics})
}

// Unsubscribe removes topics from the active set.
func (s *Subscriber) Unsubscribe(ctx context.Context, topics ...string) {
	s.send(ctx, controlMsg{kind: controlUnsubscribe, topics: topics})
}

// Shutdown stops the actor loop and closes the underlying connection.
func (s *Subscriber) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	s.send(ctx, controlMsg{kind: controlShutdown, done: done})
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Subscriber) send(ctx context.Context, msg controlMsg) {
	select {
	case s.control <- msg:
	case <-ctx.Done():
	}
}

// Run is the actor loop. It blocks until Shutdown is called or ctx is
// canceled, and should be started in its own goroutine.
func (s *Subscriber) Run(ctx context.Context) {
	active := map[string]bool{}

	for {
		nc, subs, err := s.connect(active)
		if err != nil {
			s.logger.Error("subscriber connect failed, retrying",
				slog.String("error", err.Error()),
				slog.Duration("delay", s.reconnectDelay),
			)
			if !s.sleepOrDone(ctx, s.reconnectDelay) {
				return
			}
			continue
		}

		if !s.serve(ctx, nc, subs, active) {
			nc.Close()
			return
		}
		nc.Close()

		s.logger.Warn("subscriber connection lost, reconnecting",
			slog.Duration("delay", s.reconnectDelay))
		if !s.sleepOrDone(ctx, s.reconnectDelay) {
			return
		}
	}
}

func (s *Subscriber) sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Subscriber) connect(active map[string]bool) (*nats.Conn, map[string]*nats.Subscription, error) {
	nc, err := nats.Connect(s.natsURL, nats.Name("pulsechat-subscriber"))
	if err != nil {
		return nil, nil, err
	}

	subs := make(map[string]*nats.Subscription, len(active))
	for topic := range active {
		sub, err := s.subscribeOne(nc, topic)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		subs[topic] = sub
	}
	return nc, subs, nil
}

func (s *Subscriber) subscribeOne(nc *nats.Conn, topic string) (*nats.Subscription, error) {
	return nc.Subscribe(natsSubject(topic), func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			s.logger.Error("failed to decode envelope",
				slog.String("topic", topic), slog.String("error", err.Error()))
			return
		}

		select {
		case s.out <- Message{Topic: topic, Envelope: env}:
		default:
			s.logger.Warn("dispatcher lagging, dropping event",
				slog.String("topic", topic), slog.String("type", env.EventType))
		}
	})
}

// serve handles control messages on the current connection until it is
// told to shut down (returns false) or the connection itself is lost or the
// context is canceled (returns true, triggering a reconnect attempt, unless
// ctx.Done fired in which case it also returns false).
func (s *Subscriber) serve(ctx context.Context, nc *nats.Conn, subs map[string]*nats.Subscription, active map[string]bool) bool {
	closedCh := nc.StatusChanged(nats.CLOSED, nats.DRAINING_CONNS)

	for {
		select {
		case <-ctx.Done():
			return false

		case <-closedCh:
			return true

		case msg := <-s.control:
			switch msg.kind {
			case controlSubscribe:
				for _, topic := range msg.topics {
					if active[topic] {
						continue
					}
					sub, err := s.subscribeOne(nc, topic)
					if err != nil {
						s.logger.Error("subscribe failed", slog.String("topic", topic), slog.String("error", err.Error()))
						continue
					}
					active[topic] = true
					subs[topic] = sub
				}

			case controlUnsubscribe:
				for _, topic := range msg.topics {
					if sub, ok := subs[topic]; ok {
						sub.Unsubscribe()
						delete(subs, topic)
					}
					delete(active, topic)
				}

			case controlShutdown:
				for _, sub := range subs {
					sub.Unsubscribe()
				}
				if msg.done != nil {
					close(msg.done)
				}
				return false
			}
		}
	}
}
