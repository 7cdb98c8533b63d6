// Package service implements component K: one thin orchestration layer per
// domain (users, guilds, channels, roles, members, messages, reactions,
// invites) sitting over the permission engine, the repository contracts, and
// the event bus. Every mutating method follows the same shape: resolve the
// target entity, evaluate the permission engine for the actor, mutate
// through the repository, generate any new ids via the snowflake generator,
// and publish the corresponding domain event.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pulsechat/pulsechat/internal/auth"
	"github.com/pulsechat/pulsechat/internal/events"
	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/permissions"
	"github.com/pulsechat/pulsechat/internal/presence"
	"github.com/pulsechat/pulsechat/internal/repository"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// Service bundles the dependencies every domain file in this package needs.
// It has no state of its own beyond these handles.
type Service struct {
	Repos    *repository.Repositories
	Gen      *snowflake.Generator
	Bus      *events.Bus
	Auth     *auth.Service
	Presence *presence.Store
	Logger   *slog.Logger
}

// New constructs a Service.
func New(repos *repository.Repositories, gen *snowflake.Generator, bus *events.Bus, authSvc *auth.Service, presenceStore *presence.Store, logger *slog.Logger) *Service {
	return &Service{Repos: repos, Gen: gen, Bus: bus, Auth: authSvc, Presence: presenceStore, Logger: logger}
}

// publish wraps the event and fans it out best-effort. The
// publish step runs after the mutating repository call has already returned
// success, so a canceled caller or a broker outage never leaves storage
// ahead of or behind the event stream in a way that matters: the durable
// mutation is the source of truth.
func (s *Service) publish(ctx context.Context, topic, eventType string, data any) {
	env, err := events.NewEnvelope(eventType, data)
	if err != nil {
		s.Logger.Error("encoding event envelope failed", slog.String("event_type", eventType), slog.String("error", err.Error()))
		return
	}
	s.Bus.PublishBestEffort(ctx, topic, env)
}

// effectivePermissions loads guild, member, roles, and the @everyone role
// for guildID/userID and runs the permission engine over them.
func (s *Service) effectivePermissions(ctx context.Context, guildID, userID snowflake.ID) (permissions.Bitset, error) {
	guild, err := s.Repos.Guilds.Get(ctx, guildID)
	if err != nil {
		return 0, err
	}
	member, err := s.Repos.GuildMembers.Get(ctx, guildID, userID)
	if err != nil {
		return 0, err
	}
	roles, err := s.Repos.Roles.ListForGuild(ctx, guildID)
	if err != nil {
		return 0, err
	}
	everyone, err := s.Repos.Roles.GetEveryoneRole(ctx, guildID)
	if err != nil {
		return 0, err
	}

	roleMap := make(map[string]permissions.Role, len(roles))
	for _, r := range roles {
		roleMap[r.ID.String()] = toPermRole(r)
	}

	pg := permissions.Guild{OwnerID: guild.OwnerID.String(), EveryoneRoleID: everyone.ID.String()}
	pm := toPermMember(member)

	perms, err := permissions.EffectivePermissions(pg, pm, toPermRole(everyone), roleMap)
	if err != nil {
		return 0, repository.NotFound("member not found")
	}
	return perms, nil
}

// requirePermission fails with a 403 service.Error unless userID holds
// required in guildID.
func (s *Service) requirePermission(ctx context.Context, guildID, userID snowflake.ID, required permissions.Bitset) error {
	perms, err := s.effectivePermissions(ctx, guildID, userID)
	if err != nil {
		return err
	}
	if !permissions.Has(perms, required) {
		return ErrMissingPermissions
	}
	return nil
}

// loadRoleHierarchy loads the full role map of a guild (member records are
// not loaded here), for the CanManage/CanAssignRole hierarchy
// checks. Those checks take permissions.Member values, not models ones, so
// this is the conversion point every role/member mutation goes through.
func (s *Service) loadRoleHierarchy(ctx context.Context, guildID snowflake.ID) (map[string]permissions.Role, error) {
	roles, err := s.Repos.Roles.ListForGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	roleMap := make(map[string]permissions.Role, len(roles))
	for _, r := range roles {
		roleMap[r.ID.String()] = toPermRole(r)
	}
	return roleMap, nil
}

func toPermRole(r *models.Role) permissions.Role {
	return permissions.Role{ID: r.ID.String(), Position: r.Position, Perms: r.Perms, IsEveryone: r.IsEveryone}
}

func toPermMember(m *models.GuildMember) *permissions.Member {
	roleIDs := make([]string, len(m.RoleIDs))
	for i, id := range m.RoleIDs {
		roleIDs[i] = id.String()
	}
	return &permissions.Member{UserID: m.UserID.String(), RoleIDs: roleIDs}
}

func toPermGuild(g *models.Guild, everyoneRoleID string) permissions.Guild {
	return permissions.Guild{OwnerID: g.OwnerID.String(), EveryoneRoleID: everyoneRoleID}
}

// requireMember loads the guild and membership record for actorID, failing
// with NotFound if either doesn't resolve. Most domain methods need both
// before they can go any further.
func (s *Service) requireMember(ctx context.Context, guildID, actorID snowflake.ID) (*models.Guild, *models.GuildMember, error) {
	guild, err := s.Repos.Guilds.Get(ctx, guildID)
	if err != nil {
		return nil, nil, err
	}
	member, err := s.Repos.GuildMembers.Get(ctx, guildID, actorID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading membership: %w", err)
	}
	return guild, member, nil
}
