package workers

import (
	"context"
	"log/slog"

	"github.com/pulsechat/pulsechat/internal/events"
)

// reapStaleSessions marks every session still sitting in Connected state
// past staleAfter as Disconnected, so its Redis record finally picks up a
// TTL and its replay buffer stops growing. A clean disconnect already does
// this through the gateway's own cleanup path; this only catches sessions
// orphaned by a process crash.
func (m *Manager) reapStaleSessions(ctx context.Context) error {
	stale, err := m.sessions.ListStaleConnected(ctx, m.staleAfter)
	if err != nil {
		return err
	}

	var count int64
	for _, sess := range stale {
		if err := m.sessions.MarkDisconnected(ctx, sess.ID); err != nil {
			m.logger.Error("failed to mark stale session disconnected",
				slog.String("session_id", sess.ID.String()), slog.String("error", err.Error()))
			continue
		}
		m.publish(ctx, events.UserTopic(sess.UserID), "SESSION_REAPED", map[string]any{
			"session_id": sess.ID,
			"user_id":    sess.UserID,
		})
		count++
	}
	if count > 0 {
		m.logger.Info("reaped stale sessions", slog.Int64("removed", count))
	}
	return nil
}
