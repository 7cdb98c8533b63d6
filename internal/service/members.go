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

// ListMembers returns a page of guildID's membership for a member actorID.
func (s *Service) ListMembers(ctx context.Context, guildID, actorID snowflake.ID, cur repository.Cursor) ([]*models.GuildMember, error) {
	if _, _, err := s.requireMember(ctx, guildID, actorID); err != nil {
		return nil, err
	}
	return s.Repos.GuildMembers.ListForGuild(ctx, guildID, cur.Clamp())
}

// GetMember returns a single membership record, if actorID is also a member.
func (s *Service) GetMember(ctx context.Context, guildID, targetID, actorID snowflake.ID) (*models.GuildMember, error) {
	if _, _, err := s.requireMember(ctx, guildID, actorID); err != nil {
		return nil, err
	}
	return s.Repos.GuildMembers.Get(ctx, guildID, targetID)
}

// MemberUpdate carries the mutable membership fields PATCH
// /guilds/:id/members/:id accepts.
type MemberUpdate struct {
	Nickname     *string
	TimeoutUntil *time.Time
}

// UpdateMember applies in to targetID's membership in guildID. A nickname
// change is self-service; a timeout requires KICK_MEMBERS and the role
// hierarchy CanManage gate against the target.
func (s *Service) UpdateMember(ctx context.Context, guildID, targetID, actorID snowflake.ID, in MemberUpdate) (*models.GuildMember, error) {
	target, err := s.Repos.GuildMembers.Get(ctx, guildID, targetID)
	if err != nil {
		return nil, err
	}

	if in.TimeoutUntil != nil {
		if err := s.requireCanManage(ctx, guildID, actorID, targetID, permissions.KickMembers); err != nil {
			return nil, err
		}
		target.TimeoutUntil = in.TimeoutUntil
	} else if targetID != actorID {
		if err := s.requirePermission(ctx, guildID, actorID, permissions.ManageGuild); err != nil {
			return nil, err
		}
	}

	if in.Nickname != nil {
		target.Nickname = in.Nickname
	}
	if err := s.Repos.GuildMembers.Update(ctx, target); err != nil {
		return nil, err
	}

	s.publish(ctx, events.GuildTopic(guildID), "GUILD_MEMBER_UPDATE", target)
	return target, nil
}

// KickMember removes targetID from guildID, gated on KICK_MEMBERS and the
// role hierarchy: actorID must outrank targetID.
func (s *Service) KickMember(ctx context.Context, guildID, targetID, actorID snowflake.ID) error {
	if err := s.requireCanManage(ctx, guildID, actorID, targetID, permissions.KickMembers); err != nil {
		return err
	}
	if err := s.Repos.GuildMembers.Remove(ctx, guildID, targetID); err != nil {
		return err
	}

	s.publish(ctx, events.GuildTopic(guildID), "GUILD_MEMBER_REMOVE", map[string]any{"guild_id": guildID, "user_id": targetID})
	return nil
}

// BanMember records a ban and removes targetID's membership (if any), gated
// on BAN_MEMBERS and the role hierarchy.
func (s *Service) BanMember(ctx context.Context, guildID, targetID, actorID snowflake.ID, reason *string) error {
	if err := s.requireCanManage(ctx, guildID, actorID, targetID, permissions.BanMembers); err != nil {
		return err
	}

	ban := &models.GuildBan{
		GuildID:     guildID,
		UserID:      targetID,
		Reason:      reason,
		ModeratorID: actorID,
		CreatedAt:   time.Now(),
	}
	if err := s.Repos.Bans.Create(ctx, ban); err != nil {
		return err
	}
	if err := s.Repos.GuildMembers.Remove(ctx, guildID, targetID); err != nil && !repository.Is(err, repository.KindNotFound) {
		return err
	}

	s.publish(ctx, events.GuildTopic(guildID), "GUILD_BAN_ADD", ban)
	return nil
}

// UnbanMember lifts a ban, gated on BAN_MEMBERS.
func (s *Service) UnbanMember(ctx context.Context, guildID, targetID, actorID snowflake.ID) error {
	if err := s.requirePermission(ctx, guildID, actorID, permissions.BanMembers); err != nil {
		return err
	}
	if err := s.Repos.Bans.Remove(ctx, guildID, targetID); err != nil {
		return err
	}

	s.publish(ctx, events.GuildTopic(guildID), "GUILD_BAN_REMOVE", map[string]any{"guild_id": guildID, "user_id": targetID})
	return nil
}

// ListBans returns guildID's ban list, gated on BAN_MEMBERS.
func (s *Service) ListBans(ctx context.Context, guildID, actorID snowflake.ID) ([]*models.GuildBan, error) {
	if err := s.requirePermission(ctx, guildID, actorID, permissions.BanMembers); err != nil {
		return nil, err
	}
	return s.Repos.Bans.ListForGuild(ctx, guildID)
}

// requireCanManage checks both the flat permission bit and the role
// hierarchy: actorID needs `required`, and must outrank targetID unless
// actorID is the guild owner.
func (s *Service) requireCanManage(ctx context.Context, guildID, actorID, targetID snowflake.ID, required permissions.Bitset) error {
	if err := s.requirePermission(ctx, guildID, actorID, required); err != nil {
		return err
	}

	guild, actor, err := s.requireMember(ctx, guildID, actorID)
	if err != nil {
		return err
	}
	target, err := s.Repos.GuildMembers.Get(ctx, guildID, targetID)
	if err != nil {
		return err
	}
	roleMap, err := s.loadRoleHierarchy(ctx, guildID)
	if err != nil {
		return err
	}

	pg := toPermGuild(guild, everyoneRoleIDFrom(roleMap))
	if !permissions.CanManage(pg, toPermMember(actor), toPermMember(target), roleMap) {
		return ErrMissingPermissions
	}
	return nil
}
