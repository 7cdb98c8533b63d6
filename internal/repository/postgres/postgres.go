// Package postgres implements internal/repository's contracts against
// PostgreSQL via pgx, the way the teacher's REST handlers talk to storage
// directly — raw SQL, explicit transactions, no ORM — but behind the
// abstract per-entity interfaces the service layer depends on instead of a
// concrete pool. Each entity gets its own small store type so method names
// like Create/Get/Update can mean different things per entity.
package postgres

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsechat/pulsechat/internal/repository"
)

// base holds the shared pool + logger every per-entity store embeds.
type base struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New constructs every per-entity store over pool and bundles them into the
// repository.Repositories handle the service layer is wired with.
func New(pool *pgxpool.Pool, logger *slog.Logger) *repository.Repositories {
	b := base{pool: pool, logger: logger}
	return &repository.Repositories{
		Users:        &UserStore{b},
		Guilds:       &GuildStore{b},
		Channels:     &ChannelStore{b},
		Roles:        &RoleStore{b},
		GuildMembers: &MemberStore{b},
		Messages:     &MessageStore{b},
		Reactions:    &ReactionStore{b},
		Invites:      &InviteStore{b},
		Bans:         &BanStore{b},
	}
}
