package service

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/pulsechat/pulsechat/internal/events"
	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/permissions"
	"github.com/pulsechat/pulsechat/internal/repository"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

const inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
const inviteCodeLength = 8

// generateInviteCode returns a cryptographically random 8-character
// alphanumeric invite code.
func generateInviteCode() (string, error) {
	b := make([]byte, inviteCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	code := make([]byte, inviteCodeLength)
	for i, v := range b {
		code[i] = inviteCodeAlphabet[int(v)%len(inviteCodeAlphabet)]
	}
	return string(code), nil
}

// CreateInviteInput carries the fields POST /channels/:id/invites accepts.
type CreateInviteInput struct {
	MaxUses   *int
	ExpiresAt *time.Time
	Temporary bool
}

// CreateInvite mints an invite to channelID, gated on MANAGE_CHANNELS (an
// invite always targets a guild channel, never a DM).
func (s *Service) CreateInvite(ctx context.Context, channelID, inviterID snowflake.ID, in CreateInviteInput) (*models.Invite, error) {
	channel, err := s.Repos.Channels.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.IsDM() {
		return nil, BadRequest("NOT_A_GUILD_CHANNEL", "invites can only target a guild channel")
	}
	if err := s.requirePermission(ctx, *channel.GuildID, inviterID, permissions.ManageChannels); err != nil {
		return nil, err
	}

	code, err := generateInviteCode()
	if err != nil {
		return nil, err
	}
	invite := &models.Invite{
		Code:      code,
		GuildID:   *channel.GuildID,
		ChannelID: channelID,
		InviterID: inviterID,
		MaxUses:   in.MaxUses,
		ExpiresAt: in.ExpiresAt,
		Temporary: in.Temporary,
		CreatedAt: time.Now(),
	}
	if err := s.Repos.Invites.Create(ctx, invite); err != nil {
		return nil, err
	}

	s.publish(ctx, events.GuildTopic(*channel.GuildID), "INVITE_CREATE", invite)
	return invite, nil
}

// GetInvite returns a non-expired, non-exhausted invite by code.
func (s *Service) GetInvite(ctx context.Context, code string) (*models.Invite, error) {
	invite, err := s.Repos.Invites.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if invite.IsExpired() || invite.IsMaxUsesReached() {
		return nil, repository.NotFound("invite not found")
	}
	return invite, nil
}

// ListGuildInvites returns guildID's invites, gated on MANAGE_CHANNELS.
func (s *Service) ListGuildInvites(ctx context.Context, guildID, actorID snowflake.ID) ([]*models.Invite, error) {
	if err := s.requirePermission(ctx, guildID, actorID, permissions.ManageChannels); err != nil {
		return nil, err
	}
	return s.Repos.Invites.ListForGuild(ctx, guildID)
}

// ListChannelInvites returns the invites targeting channelID specifically,
// gated on MANAGE_CHANNELS. The repository only indexes invites by guild, so
// this filters ListForGuild's result down to the one channel.
func (s *Service) ListChannelInvites(ctx context.Context, channelID, actorID snowflake.ID) ([]*models.Invite, error) {
	channel, err := s.Repos.Channels.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.IsDM() {
		return nil, BadRequest("NOT_A_GUILD_CHANNEL", "a DM channel has no invites")
	}
	if err := s.requirePermission(ctx, *channel.GuildID, actorID, permissions.ManageChannels); err != nil {
		return nil, err
	}

	guildInvites, err := s.Repos.Invites.ListForGuild(ctx, *channel.GuildID)
	if err != nil {
		return nil, err
	}
	invites := make([]*models.Invite, 0, len(guildInvites))
	for _, inv := range guildInvites {
		if inv.ChannelID == channelID {
			invites = append(invites, inv)
		}
	}
	return invites, nil
}

// DeleteInvite revokes an invite, gated on MANAGE_CHANNELS.
func (s *Service) DeleteInvite(ctx context.Context, code string, actorID snowflake.ID) error {
	invite, err := s.Repos.Invites.Get(ctx, code)
	if err != nil {
		return err
	}
	if err := s.requirePermission(ctx, invite.GuildID, actorID, permissions.ManageChannels); err != nil {
		return err
	}
	if err := s.Repos.Invites.Delete(ctx, code); err != nil {
		return err
	}

	s.publish(ctx, events.GuildTopic(invite.GuildID), "INVITE_DELETE", map[string]any{"guild_id": invite.GuildID, "code": code})
	return nil
}

// AcceptInvite rejects a banned user, rejects an already-member, rejects
// (and deletes outright; invites have no soft-delete) an expired invite,
// rejects a use that would exceed max_uses, and otherwise increments uses
// and adds the member.
func (s *Service) AcceptInvite(ctx context.Context, code string, userID snowflake.ID) (*models.Guild, error) {
	invite, err := s.Repos.Invites.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	if invite.IsExpired() {
		_ = s.Repos.Invites.Delete(ctx, code)
		return nil, repository.NotFound("invite not found")
	}

	if _, err := s.Repos.Bans.Get(ctx, invite.GuildID, userID); err == nil {
		return nil, Forbidden("BANNED", "you are banned from this guild")
	} else if !repository.Is(err, repository.KindNotFound) {
		return nil, err
	}

	if _, err := s.Repos.GuildMembers.Get(ctx, invite.GuildID, userID); err == nil {
		return nil, Conflict("ALREADY_MEMBER", "you are already a member of this guild")
	} else if !repository.Is(err, repository.KindNotFound) {
		return nil, err
	}

	if invite.IsMaxUsesReached() {
		return nil, Conflict("MAX_USES_REACHED", "this invite has reached its maximum uses")
	}

	// Claim the use first: IncrementUses locks the row and refuses a use past
	// max_uses, so concurrent accepts cannot overshoot the limit.
	if _, err := s.Repos.Invites.IncrementUses(ctx, code); err != nil {
		return nil, err
	}

	member := &models.GuildMember{
		GuildID:  invite.GuildID,
		UserID:   userID,
		RoleIDs:  []snowflake.ID{},
		JoinedAt: time.Now(),
	}
	if err := s.Repos.GuildMembers.Add(ctx, member); err != nil {
		return nil, err
	}

	guild, err := s.Repos.Guilds.Get(ctx, invite.GuildID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.GuildTopic(invite.GuildID), "GUILD_MEMBER_ADD", member)
	return guild, nil
}
