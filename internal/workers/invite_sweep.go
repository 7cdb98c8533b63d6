package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/pulsechat/pulsechat/internal/events"
)

// sweepExpiredInvites deletes every invite whose ExpiresAt has passed and
// announces each removal on its guild's topic, so a client with the invite
// list open sees it disappear without polling.
func (m *Manager) sweepExpiredInvites(ctx context.Context) error {
	expired, err := m.invites.ListExpired(ctx, time.Now())
	if err != nil {
		return err
	}

	var count int64
	for _, invite := range expired {
		if err := m.invites.Delete(ctx, invite.Code); err != nil {
			m.logger.Error("failed to delete expired invite",
				slog.String("code", invite.Code), slog.String("error", err.Error()))
			continue
		}
		m.publish(ctx, events.GuildTopic(invite.GuildID), "INVITE_DELETE", map[string]any{
			"guild_id": invite.GuildID,
			"code":     invite.Code,
		})
		count++
	}
	if count > 0 {
		m.logger.Info("swept expired invites", slog.Int64("removed", count))
	}
	return nil
}
