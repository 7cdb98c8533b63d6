package service

import (
	"context"
	"time"

	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/permissions"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// AddReaction adds userID's emoji reaction to messageID. Re-adding the same
// (message, user, emoji) is a no-op, not a conflict: Reactions.Add already
// guarantees that at the repository level, so this method just gates access
// and fans the event out.
func (s *Service) AddReaction(ctx context.Context, messageID, userID snowflake.ID, emoji string) error {
	channel, err := s.channelForMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireChannelAccess(ctx, channel, userID, permissions.AddReactions); err != nil {
		return err
	}

	reaction := &models.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji, CreatedAt: time.Now()}
	if err := s.Repos.Reactions.Add(ctx, reaction); err != nil {
		return err
	}

	s.publishChannelEvent(ctx, channel, "MESSAGE_REACTION_ADD", reaction)
	return nil
}

// RemoveReaction removes userID's own emoji reaction from messageID.
func (s *Service) RemoveReaction(ctx context.Context, messageID, userID snowflake.ID, emoji string) error {
	channel, err := s.channelForMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireChannelAccess(ctx, channel, userID, permissions.ViewChannel); err != nil {
		return err
	}

	if err := s.Repos.Reactions.Remove(ctx, messageID, userID, emoji); err != nil {
		return err
	}

	s.publishChannelEvent(ctx, channel, "MESSAGE_REACTION_REMOVE", map[string]any{"message_id": messageID, "user_id": userID, "emoji": emoji})
	return nil
}

// RemoveUserReaction removes targetID's emoji reaction from messageID on
// actorID's behalf. Removing someone else's reaction requires
// MANAGE_MESSAGES in the owning guild, the same moderation boundary
// DeleteMessage draws around someone else's message.
func (s *Service) RemoveUserReaction(ctx context.Context, messageID, targetID, actorID snowflake.ID, emoji string) error {
	channel, err := s.channelForMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireChannelAccess(ctx, channel, actorID, permissions.ViewChannel); err != nil {
		return err
	}
	if targetID != actorID {
		if channel.IsDM() {
			return Forbidden("NOT_AUTHOR", "only the reacting user may remove this reaction")
		}
		if err := s.requirePermission(ctx, *channel.GuildID, actorID, permissions.ManageMessages); err != nil {
			return err
		}
	}

	if err := s.Repos.Reactions.Remove(ctx, messageID, targetID, emoji); err != nil {
		return err
	}

	s.publishChannelEvent(ctx, channel, "MESSAGE_REACTION_REMOVE", map[string]any{"message_id": messageID, "user_id": targetID, "emoji": emoji})
	return nil
}

// ClearReactionsForEmoji removes every reaction of one emoji from messageID,
// gated on MANAGE_MESSAGES; guild channels only.
func (s *Service) ClearReactionsForEmoji(ctx context.Context, messageID, actorID snowflake.ID, emoji string) error {
	channel, err := s.channelForMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if channel.IsDM() {
		return BadRequest("NOT_A_GUILD_CHANNEL", "clearing reactions is only available in guild channels")
	}
	if err := s.requirePermission(ctx, *channel.GuildID, actorID, permissions.ManageMessages); err != nil {
		return err
	}

	if err := s.Repos.Reactions.RemoveAllForEmoji(ctx, messageID, emoji); err != nil {
		return err
	}

	s.publishChannelEvent(ctx, channel, "MESSAGE_REACTION_REMOVE_EMOJI", map[string]any{"message_id": messageID, "emoji": emoji})
	return nil
}

// ListReactions returns every user who reacted to messageID with emoji.
func (s *Service) ListReactions(ctx context.Context, messageID, actorID snowflake.ID, emoji string) ([]*models.Reaction, error) {
	channel, err := s.channelForMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireChannelAccess(ctx, channel, actorID, permissions.ViewChannel); err != nil {
		return nil, err
	}
	return s.Repos.Reactions.ListForMessageEmoji(ctx, messageID, emoji)
}

func (s *Service) channelForMessage(ctx context.Context, messageID snowflake.ID) (*models.Channel, error) {
	message, err := s.Repos.Messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return s.Repos.Channels.Get(ctx, message.ChannelID)
}
