// Package workers runs the small set of background sweeps that keep
// long-lived state honest without a client ever asking: reaping gateway
// sessions a crashed process left marked Connected, and deleting guild
// invites past their expiry. Each sweep follows the same shape: query, act,
// publish an event per row acted on, log the count if nonzero.
package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pulsechat/pulsechat/internal/events"
	"github.com/pulsechat/pulsechat/internal/repository"
	"github.com/pulsechat/pulsechat/internal/session"
)

// Config bundles what the sweeps need: the session store to reap, the
// invite repository to sweep, and the bus to announce what was removed.
type Config struct {
	Sessions *session.Store
	Invites  repository.Invites
	Bus      *events.Bus
	Logger   *slog.Logger

	// SessionStaleAfter is how long a session may sit in Connected state
	// with no heartbeat before it is considered abandoned and reaped.
	// Defaults to 5 minutes, well past the gateway's own heartbeat timeout,
	// so this only catches what the gateway's own disconnect path missed.
	SessionStaleAfter time.Duration

	// Interval is how often both sweeps run. Defaults to 1 minute.
	Interval time.Duration
}

// Manager owns the sweep loop's lifecycle.
type Manager struct {
	sessions   *session.Store
	invites    repository.Invites
	bus        *events.Bus
	logger     *slog.Logger
	staleAfter time.Duration
	interval   time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Manager from cfg, filling defaults for zero-valued
// durations.
func New(cfg Config) *Manager {
	staleAfter := cfg.SessionStaleAfter
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Manager{
		sessions:   cfg.Sessions,
		invites:    cfg.Invites,
		bus:        cfg.Bus,
		logger:     cfg.Logger,
		staleAfter: staleAfter,
		interval:   interval,
	}
}

// Start launches the sweep loop in a background goroutine. It returns
// immediately; call Stop to shut it down.
func (m *Manager) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if err := m.reapStaleSessions(sweepCtx); err != nil {
					m.logger.Error("session reap sweep failed", slog.String("error", err.Error()))
				}
				if err := m.sweepExpiredInvites(sweepCtx); err != nil {
					m.logger.Error("invite expiry sweep failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// Stop cancels the sweep loop and waits for it to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// publish wraps the event in an envelope and publishes it best-effort,
// logging instead of failing the sweep if encoding breaks.
func (m *Manager) publish(ctx context.Context, topic, eventType string, data any) {
	env, err := events.NewEnvelope(eventType, data)
	if err != nil {
		m.logger.Error("encoding event envelope failed", slog.String("event_type", eventType), slog.String("error", err.Error()))
		return
	}
	m.bus.PublishBestEffort(ctx, topic, env)
}
