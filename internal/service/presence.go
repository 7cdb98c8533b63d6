package service

import (
	"context"
	"time"

	"github.com/pulsechat/pulsechat/internal/permissions"
	"github.com/pulsechat/pulsechat/internal/presence"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// GetPresence returns userID's current presence, defaulting to offline if
// the durable store has no live record.
func (s *Service) GetPresence(ctx context.Context, userID snowflake.ID) (*presence.Data, error) {
	data, err := s.Presence.Get(ctx, userID)
	if err == presence.ErrNotFound {
		return &presence.Data{UserID: userID, Status: presence.StatusOffline, UpdatedAt: time.Now()}, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// TriggerTyping records actorID as typing in channelID and publishes
// TYPING_START to the channel's audience. Requires SEND_MESSAGES, the same
// gate CreateMessage uses, since a typing indicator implies the intent to
// send one.
func (s *Service) TriggerTyping(ctx context.Context, channelID, actorID snowflake.ID) error {
	channel, err := s.Repos.Channels.Get(ctx, channelID)
	if err != nil {
		return err
	}
	if err := s.requireChannelAccess(ctx, channel, actorID, permissions.SendMessages); err != nil {
		return err
	}

	if err := s.Presence.SetTyping(ctx, channelID, actorID); err != nil {
		return err
	}

	s.publishChannelEvent(ctx, channel, "TYPING_START", map[string]any{
		"channel_id": channelID,
		"user_id":    actorID,
		"guild_id":   channel.GuildID,
		"timestamp":  time.Now().UTC(),
	})
	return nil
}
