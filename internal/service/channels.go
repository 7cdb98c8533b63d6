package service

import (
	"context"
	"time"

	"github.com/pulsechat/pulsechat/internal/events"
	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/permissions"
	"github.com/pulsechat/pulsechat/internal/repository"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// CreateChannelInput carries the fields POST /guilds/:id/channels accepts.
type CreateChannelInput struct {
	Name     string
	Type     models.ChannelType
	Topic    *string
	ParentID *snowflake.ID
}

// CreateChannel creates a channel in guildID, gated on MANAGE_CHANNELS. If a
// parent is given, it must already be a category channel in the same guild.
func (s *Service) CreateChannel(ctx context.Context, guildID, actorID snowflake.ID, in CreateChannelInput) (*models.Channel, error) {
	if err := s.requirePermission(ctx, guildID, actorID, permissions.ManageChannels); err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, BadRequest("invalid_name", "channel name must not be empty")
	}

	if in.ParentID != nil {
		parent, err := s.Repos.Channels.Get(ctx, *in.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.GuildID == nil || *parent.GuildID != guildID || parent.Type != models.ChannelTypeGuildCategory {
			return nil, BadRequest("INVALID_PARENT", "parent channel must be a category in the same guild")
		}
	}

	channel := &models.Channel{
		ID:        s.Gen.Generate(),
		GuildID:   &guildID,
		Type:      in.Type,
		ParentID:  in.ParentID,
		Topic:     in.Topic,
		Name:      &in.Name,
		CreatedAt: time.Now(),
	}
	if err := s.Repos.Channels.Create(ctx, channel); err != nil {
		return nil, err
	}

	s.publish(ctx, events.GuildTopic(guildID), "CHANNEL_CREATE", channel)
	return channel, nil
}

// GetChannel returns channelID if actorID can view it: a member of the
// owning guild with VIEW_CHANNEL, or a DM recipient.
func (s *Service) GetChannel(ctx context.Context, channelID, actorID snowflake.ID) (*models.Channel, error) {
	channel, err := s.Repos.Channels.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if err := s.requireChannelAccess(ctx, channel, actorID, permissions.ViewChannel); err != nil {
		return nil, err
	}
	return channel, nil
}

// ChannelUpdate carries the mutable channel fields PATCH /channels/:id
// accepts.
type ChannelUpdate struct {
	Name  *string
	Topic *string
}

// UpdateChannel applies in to channelID, gated on MANAGE_CHANNELS.
func (s *Service) UpdateChannel(ctx context.Context, channelID, actorID snowflake.ID, in ChannelUpdate) (*models.Channel, error) {
	channel, err := s.Repos.Channels.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.IsDM() {
		return nil, BadRequest("NOT_A_GUILD_CHANNEL", "DM channels cannot be updated")
	}
	if err := s.requirePermission(ctx, *channel.GuildID, actorID, permissions.ManageChannels); err != nil {
		return nil, err
	}

	if in.Name != nil {
		channel.Name = in.Name
	}
	if in.Topic != nil {
		channel.Topic = in.Topic
	}
	if err := s.Repos.Channels.Update(ctx, channel); err != nil {
		return nil, err
	}

	s.publish(ctx, events.GuildTopic(*channel.GuildID), "CHANNEL_UPDATE", channel)
	return channel, nil
}

// DeleteChannel deletes channelID, gated on MANAGE_CHANNELS. Deleting a DM
// channel publishes CHANNEL_DELETE without removing the recipient mapping:
// the DM persists, closing is client-local state.
func (s *Service) DeleteChannel(ctx context.Context, channelID, actorID snowflake.ID) error {
	channel, err := s.Repos.Channels.Get(ctx, channelID)
	if err != nil {
		return err
	}
	if channel.IsDM() {
		s.publish(ctx, events.UserTopic(actorID), "CHANNEL_DELETE", map[string]any{"id": channelID})
		return nil
	}

	if err := s.requirePermission(ctx, *channel.GuildID, actorID, permissions.ManageChannels); err != nil {
		return err
	}
	if err := s.Repos.Channels.Delete(ctx, channelID); err != nil {
		return err
	}

	s.publish(ctx, events.GuildTopic(*channel.GuildID), "CHANNEL_DELETE", map[string]any{"id": channelID})
	return nil
}

// ListGuildChannels returns every channel in guildID for a member actorID.
func (s *Service) ListGuildChannels(ctx context.Context, guildID, actorID snowflake.ID) ([]*models.Channel, error) {
	if _, _, err := s.requireMember(ctx, guildID, actorID); err != nil {
		return nil, err
	}
	return s.Repos.Channels.ListForGuild(ctx, guildID)
}

// CreateOrGetDM returns the existing DM channel between actorID and
// recipientID, creating one if none exists.
func (s *Service) CreateOrGetDM(ctx context.Context, actorID, recipientID snowflake.ID) (*models.Channel, error) {
	if actorID == recipientID {
		return nil, BadRequest("INVALID_RECIPIENT", "cannot open a DM with yourself")
	}

	recipients := []snowflake.ID{actorID, recipientID}
	if existing, err := s.Repos.Channels.FindDM(ctx, recipients); err == nil {
		return existing, nil
	} else if !repository.Is(err, repository.KindNotFound) {
		return nil, err
	}

	channel := &models.Channel{
		ID:         s.Gen.Generate(),
		Type:       models.ChannelTypeDM,
		Recipients: recipients,
		CreatedAt:  time.Now(),
	}
	if err := s.Repos.Channels.Create(ctx, channel); err != nil {
		return nil, err
	}

	s.publish(ctx, events.UserTopic(recipientID), "CHANNEL_CREATE", channel)
	return channel, nil
}

// requireChannelAccess gates read/write access to a channel: guild channels
// go through the permission engine, DM channels through recipient
// membership.
func (s *Service) requireChannelAccess(ctx context.Context, channel *models.Channel, actorID snowflake.ID, required permissions.Bitset) error {
	if channel.IsDM() {
		for _, r := range channel.Recipients {
			if r == actorID {
				return nil
			}
		}
		return Forbidden("NOT_A_RECIPIENT", "you are not a recipient of this DM channel")
	}
	return s.requirePermission(ctx, *channel.GuildID, actorID, required)
}
