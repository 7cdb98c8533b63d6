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

// ErrCannotDeleteEveryoneRole is returned when a caller tries to delete the @everyone role.
var ErrCannotDeleteEveryoneRole = BadRequest("CannotDeleteEveryoneRole", "the @everyone role cannot be deleted")

// CreateRoleInput carries the fields POST /guilds/:id/roles accepts.
type CreateRoleInput struct {
	Name     string
	Position int
	Perms    permissions.Bitset
}

// CreateRole creates a role in guildID, gated on MANAGE_ROLES.
func (s *Service) CreateRole(ctx context.Context, guildID, actorID snowflake.ID, in CreateRoleInput) (*models.Role, error) {
	if err := s.requirePermission(ctx, guildID, actorID, permissions.ManageRoles); err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, BadRequest("invalid_name", "role name must not be empty")
	}

	role := &models.Role{
		ID:        s.Gen.Generate(),
		GuildID:   guildID,
		Name:      in.Name,
		Position:  in.Position,
		Perms:     in.Perms,
		CreatedAt: time.Now(),
	}
	if err := s.Repos.Roles.Create(ctx, role); err != nil {
		return nil, err
	}

	s.publish(ctx, events.GuildTopic(guildID), "ROLE_CREATE", role)
	return role, nil
}

// ListRoles returns every role in guildID for a member actorID.
func (s *Service) ListRoles(ctx context.Context, guildID, actorID snowflake.ID) ([]*models.Role, error) {
	if _, _, err := s.requireMember(ctx, guildID, actorID); err != nil {
		return nil, err
	}
	return s.Repos.Roles.ListForGuild(ctx, guildID)
}

// RoleUpdate carries the mutable role fields PATCH /guilds/:id/roles/:id
// accepts.
type RoleUpdate struct {
	Name     *string
	Position *int
	Perms    *permissions.Bitset
}

// UpdateRole applies in to roleID, gated on MANAGE_ROLES.
func (s *Service) UpdateRole(ctx context.Context, guildID, roleID, actorID snowflake.ID, in RoleUpdate) (*models.Role, error) {
	if err := s.requirePermission(ctx, guildID, actorID, permissions.ManageRoles); err != nil {
		return nil, err
	}
	role, err := s.Repos.Roles.Get(ctx, roleID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		role.Name = *in.Name
	}
	if in.Position != nil {
		role.Position = *in.Position
	}
	if in.Perms != nil {
		role.Perms = *in.Perms
	}
	if err := s.Repos.Roles.Update(ctx, role); err != nil {
		return nil, err
	}

	s.publish(ctx, events.GuildTopic(guildID), "ROLE_UPDATE", role)
	return role, nil
}

// DeleteRole deletes roleID, gated on MANAGE_ROLES. The @everyone role can
// never be deleted.
func (s *Service) DeleteRole(ctx context.Context, guildID, roleID, actorID snowflake.ID) error {
	if err := s.requirePermission(ctx, guildID, actorID, permissions.ManageRoles); err != nil {
		return err
	}
	role, err := s.Repos.Roles.Get(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsEveryone {
		return ErrCannotDeleteEveryoneRole
	}

	if err := s.Repos.Roles.Delete(ctx, roleID); err != nil {
		if repository.Is(err, repository.KindValidation) {
			return ErrCannotDeleteEveryoneRole
		}
		return err
	}

	s.publish(ctx, events.GuildTopic(guildID), "ROLE_DELETE", map[string]any{"guild_id": guildID, "id": roleID})
	return nil
}

// AssignRole attaches roleID to targetID's membership in guildID. actorID
// must outrank roleID in the hierarchy; the @everyone role can never be
// assigned explicitly.
func (s *Service) AssignRole(ctx context.Context, guildID, targetID, roleID, actorID snowflake.ID) error {
	return s.mutateMemberRole(ctx, guildID, targetID, roleID, actorID, s.Repos.GuildMembers.AddRole, "GUILD_MEMBER_UPDATE")
}

// RemoveRole detaches roleID from targetID's membership in guildID, under
// the same hierarchy gate as AssignRole.
func (s *Service) RemoveRole(ctx context.Context, guildID, targetID, roleID, actorID snowflake.ID) error {
	return s.mutateMemberRole(ctx, guildID, targetID, roleID, actorID, s.Repos.GuildMembers.RemoveRole, "GUILD_MEMBER_UPDATE")
}

func (s *Service) mutateMemberRole(
	ctx context.Context, guildID, targetID, roleID, actorID snowflake.ID,
	mutate func(context.Context, snowflake.ID, snowflake.ID, snowflake.ID) error,
	eventType string,
) error {
	guild, actor, err := s.requireMember(ctx, guildID, actorID)
	if err != nil {
		return err
	}
	role, err := s.Repos.Roles.Get(ctx, roleID)
	if err != nil {
		return err
	}
	roleMap, err := s.loadRoleHierarchy(ctx, guildID)
	if err != nil {
		return err
	}

	pg := toPermGuild(guild, everyoneRoleIDFrom(roleMap))
	if !permissions.CanAssignRole(pg, toPermMember(actor), toPermRole(role), roleMap) {
		return ErrMissingPermissions
	}

	if err := mutate(ctx, guildID, targetID, roleID); err != nil {
		return err
	}

	s.publish(ctx, events.GuildTopic(guildID), eventType, map[string]any{"guild_id": guildID, "user_id": targetID, "role_id": roleID})
	return nil
}

// everyoneRoleIDFrom extracts the @everyone role id out of an already-loaded
// role map, avoiding a second repository round-trip in the hierarchy checks.
func everyoneRoleIDFrom(roles map[string]permissions.Role) string {
	for id, r := range roles {
		if r.IsEveryone {
			return id
		}
	}
	return ""
}
