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

const generalChannelName = "general"
const everyoneRoleName = "@everyone"

// CreateGuild creates a guild owned by ownerID, seeding it with the
// `@everyone` role, a default `general` text channel, and the creator as its
// first member, all before anything is published.
func (s *Service) CreateGuild(ctx context.Context, ownerID snowflake.ID, name string) (*models.Guild, error) {
	if name == "" {
		return nil, BadRequest("invalid_name", "guild name must not be empty")
	}

	now := time.Now()
	guild := &models.Guild{
		ID:        s.Gen.Generate(),
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: now,
	}
	if err := s.Repos.Guilds.Create(ctx, guild); err != nil {
		return nil, err
	}

	everyone := &models.Role{
		ID:         s.Gen.Generate(),
		GuildID:    guild.ID,
		Name:       everyoneRoleName,
		Position:   0,
		Perms:      permissions.DefaultEveryone,
		IsEveryone: true,
		CreatedAt:  now,
	}
	if err := s.Repos.Roles.Create(ctx, everyone); err != nil {
		return nil, err
	}

	general := &models.Channel{
		ID:        s.Gen.Generate(),
		GuildID:   &guild.ID,
		Type:      models.ChannelTypeGuildText,
		Name:      strPtr(generalChannelName),
		CreatedAt: now,
	}
	if err := s.Repos.Channels.Create(ctx, general); err != nil {
		return nil, err
	}

	member := &models.GuildMember{
		GuildID:  guild.ID,
		UserID:   ownerID,
		RoleIDs:  []snowflake.ID{},
		JoinedAt: now,
	}
	if err := s.Repos.GuildMembers.Add(ctx, member); err != nil {
		return nil, err
	}

	s.publish(ctx, events.UserTopic(ownerID), "GUILD_CREATE", guild)
	return guild, nil
}

// GetGuild returns guildID if actorID is a member of it.
func (s *Service) GetGuild(ctx context.Context, guildID, actorID snowflake.ID) (*models.Guild, error) {
	guild, _, err := s.requireMember(ctx, guildID, actorID)
	if err != nil {
		return nil, err
	}
	if guild.IsDeleted() {
		return nil, repository.NotFound("guild not found")
	}
	return guild, nil
}

// GuildUpdate carries the mutable guild fields PATCH /guilds/:id accepts.
type GuildUpdate struct {
	Name        *string
	Description *string
	IconID      *string
}

// UpdateGuild applies in to guildID, gated on MANAGE_GUILD.
func (s *Service) UpdateGuild(ctx context.Context, guildID, actorID snowflake.ID, in GuildUpdate) (*models.Guild, error) {
	if err := s.requirePermission(ctx, guildID, actorID, permissions.ManageGuild); err != nil {
		return nil, err
	}
	guild, err := s.Repos.Guilds.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		guild.Name = *in.Name
	}
	if in.Description != nil {
		guild.Description = in.Description
	}
	if in.IconID != nil {
		guild.IconID = in.IconID
	}
	if err := s.Repos.Guilds.Update(ctx, guild); err != nil {
		return nil, err
	}

	s.publish(ctx, events.GuildTopic(guildID), "GUILD_UPDATE", guild)
	return guild, nil
}

// DeleteGuild soft-deletes guildID. Only the current owner may do so.
func (s *Service) DeleteGuild(ctx context.Context, guildID, actorID snowflake.ID) error {
	guild, err := s.Repos.Guilds.Get(ctx, guildID)
	if err != nil {
		return err
	}
	if guild.OwnerID != actorID {
		return Forbidden("NOT_OWNER", "only the guild owner may delete the guild")
	}

	if err := s.Repos.Guilds.SoftDelete(ctx, guildID); err != nil {
		return err
	}

	s.publish(ctx, events.GuildTopic(guildID), "GUILD_DELETE", map[string]any{"id": guildID})
	return nil
}

// TransferOwnership reassigns guildID's ownership from actorID to targetID.
// Only the current owner may call it, and targetID must already be a member.
func (s *Service) TransferOwnership(ctx context.Context, guildID, actorID, targetID snowflake.ID) (*models.Guild, error) {
	guild, err := s.Repos.Guilds.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if guild.OwnerID != actorID {
		return nil, Forbidden("NOT_OWNER", "only the guild owner may transfer ownership")
	}
	if _, err := s.Repos.GuildMembers.Get(ctx, guildID, targetID); err != nil {
		return nil, err
	}

	guild.OwnerID = targetID
	if err := s.Repos.Guilds.Update(ctx, guild); err != nil {
		return nil, err
	}

	s.publish(ctx, events.GuildTopic(guildID), "GUILD_UPDATE", guild)
	return guild, nil
}

// LeaveGuild removes actorID's membership from guildID. The owner may not
// leave until ownership has been transferred.
func (s *Service) LeaveGuild(ctx context.Context, guildID, actorID snowflake.ID) error {
	guild, err := s.Repos.Guilds.Get(ctx, guildID)
	if err != nil {
		return err
	}
	if guild.OwnerID == actorID {
		return Conflict("OWNER_CANNOT_LEAVE", "transfer ownership before leaving the guild")
	}

	if err := s.Repos.GuildMembers.Remove(ctx, guildID, actorID); err != nil {
		return err
	}

	s.publish(ctx, events.GuildTopic(guildID), "GUILD_MEMBER_REMOVE", map[string]any{"guild_id": guildID, "user_id": actorID})
	return nil
}

func strPtr(s string) *string { return &s }
