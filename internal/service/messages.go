package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/pulsechat/pulsechat/internal/events"
	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/permissions"
	"github.com/pulsechat/pulsechat/internal/repository"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// CreateMessage posts content to channelID as authorID. If referenceID is
// set, the referenced message must be in the same channel. If it isn't (or
// doesn't resolve), the message is still created without the reference: a
// reply is best-effort, never a hard failure.
func (s *Service) CreateMessage(ctx context.Context, channelID, authorID snowflake.ID, content string, referenceID *snowflake.ID) (*models.Message, error) {
	channel, err := s.Repos.Channels.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if err := s.requireChannelAccess(ctx, channel, authorID, permissions.SendMessages); err != nil {
		return nil, err
	}
	if content == "" {
		return nil, BadRequest("EMPTY_MESSAGE", "message content must not be empty")
	}

	ref := referenceID
	if ref != nil {
		referenced, err := s.Repos.Messages.Get(ctx, *ref)
		if err != nil || referenced.ChannelID != channelID {
			s.Logger.Info("dropping message reference, not resolvable in this channel",
				slog.String("channel_id", channelID.String()), slog.String("reference_id", ref.String()))
			ref = nil
		}
	}

	message := &models.Message{
		ID:          s.Gen.Generate(),
		ChannelID:   channelID,
		AuthorID:    authorID,
		Content:     content,
		ReferenceID: ref,
		CreatedAt:   time.Now(),
	}
	if err := s.Repos.Messages.Create(ctx, message); err != nil {
		return nil, err
	}

	s.publishChannelEvent(ctx, channel, "MESSAGE_CREATE", message)
	return message, nil
}

// GetMessage returns a single message, if actorID can view its channel.
func (s *Service) GetMessage(ctx context.Context, messageID, actorID snowflake.ID) (*models.Message, error) {
	message, err := s.Repos.Messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	channel, err := s.Repos.Channels.Get(ctx, message.ChannelID)
	if err != nil {
		return nil, err
	}
	if err := s.requireChannelAccess(ctx, channel, actorID, permissions.ViewChannel); err != nil {
		return nil, err
	}
	return message, nil
}

// ListMessages returns a page of channelID's messages, if actorID can view
// it.
func (s *Service) ListMessages(ctx context.Context, channelID, actorID snowflake.ID, cur repository.Cursor) ([]*models.Message, error) {
	channel, err := s.Repos.Channels.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if err := s.requireChannelAccess(ctx, channel, actorID, permissions.ViewChannel); err != nil {
		return nil, err
	}
	return s.Repos.Messages.ListForChannel(ctx, channelID, cur.Clamp())
}

// UpdateMessage edits messageID's content. Only the author may edit.
func (s *Service) UpdateMessage(ctx context.Context, messageID, actorID snowflake.ID, content string) (*models.Message, error) {
	message, err := s.Repos.Messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.AuthorID != actorID {
		return nil, Forbidden("NOT_AUTHOR", "only the author may edit this message")
	}
	if content == "" {
		return nil, BadRequest("EMPTY_MESSAGE", "message content must not be empty")
	}

	now := time.Now()
	message.Content = content
	message.EditedAt = &now
	if err := s.Repos.Messages.Update(ctx, message); err != nil {
		return nil, err
	}

	channel, err := s.Repos.Channels.Get(ctx, message.ChannelID)
	if err == nil {
		s.publishChannelEvent(ctx, channel, "MESSAGE_UPDATE", message)
	}
	return message, nil
}

// DeleteMessage soft-deletes messageID. The author or anyone holding
// MANAGE_MESSAGES in the owning guild may delete it.
func (s *Service) DeleteMessage(ctx context.Context, messageID, actorID snowflake.ID) error {
	message, err := s.Repos.Messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	channel, err := s.Repos.Channels.Get(ctx, message.ChannelID)
	if err != nil {
		return err
	}

	if message.AuthorID != actorID {
		if channel.IsDM() {
			return Forbidden("NOT_AUTHOR", "only the author may delete this message")
		}
		if err := s.requirePermission(ctx, *channel.GuildID, actorID, permissions.ManageMessages); err != nil {
			return err
		}
	}

	if err := s.Repos.Messages.SoftDelete(ctx, messageID); err != nil {
		return err
	}

	s.publishChannelEvent(ctx, channel, "MESSAGE_DELETE", map[string]any{"channel_id": channel.ID, "id": messageID})
	return nil
}

// BulkDeleteMessages soft-deletes every id in ids that resolves to a message
// in channelID, gated on MANAGE_MESSAGES; guild channels only. An empty id list deletes nothing and publishes no event.
func (s *Service) BulkDeleteMessages(ctx context.Context, channelID, actorID snowflake.ID, ids []snowflake.ID) (int, error) {
	channel, err := s.Repos.Channels.Get(ctx, channelID)
	if err != nil {
		return 0, err
	}
	if channel.IsDM() {
		return 0, BadRequest("NOT_A_GUILD_CHANNEL", "bulk delete is only available in guild channels")
	}
	if err := s.requirePermission(ctx, *channel.GuildID, actorID, permissions.ManageMessages); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	count, err := s.Repos.Messages.BulkSoftDelete(ctx, channelID, ids)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.publish(ctx, events.GuildTopic(*channel.GuildID), "MESSAGE_DELETE_BULK", map[string]any{"channel_id": channelID, "ids": ids})
	}
	return count, nil
}

// publishChannelEvent fans a channel-scoped event out on the right topics:
// one guild topic for a guild channel, or each recipient's own user topic
// for a DM. channel:<id> is deliberately not a registry index the
// dispatcher can route (see internal/dispatcher), so DM fan-out always
// rides the per-user topic instead.
func (s *Service) publishChannelEvent(ctx context.Context, channel *models.Channel, eventType string, data any) {
	if channel.GuildID != nil {
		s.publish(ctx, events.GuildTopic(*channel.GuildID), eventType, data)
		return
	}
	for _, recipient := range channel.Recipients {
		s.publish(ctx, events.UserTopic(recipient), eventType, data)
	}
}
