// Package repository defines the abstract storage contracts the service
// layer (component K) consumes. The core never imports a storage driver
// directly; internal/repository/postgres is one implementation of these
// interfaces, selected at wiring time in cmd/pulsechat.
//
// Every method returns the internal/repository.Error taxonomy: NotFound,
// Conflict, Validation, Infra. Each method is transactional at the single
// statement level; multi-statement invariants (e.g. create-guild seeding
// @everyone + general) are ordered explicitly by the caller.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// Users is the User entity contract.
type Users interface {
	Create(ctx context.Context, u *models.User) error
	Get(ctx context.Context, id snowflake.ID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByTag(ctx context.Context, username, discriminator string) (*models.User, error)
	// NextDiscriminator returns an unused 4-digit discriminator for username,
	// assigned under row-level locking to avoid a race between two
	// concurrent registrations of the same username.
	NextDiscriminator(ctx context.Context, username string) (string, error)
	Update(ctx context.Context, u *models.User) error
	SoftDelete(ctx context.Context, id snowflake.ID) error
}

// Guilds is the Guild entity contract.
type Guilds interface {
	Create(ctx context.Context, g *models.Guild) error
	Get(ctx context.Context, id snowflake.ID) (*models.Guild, error)
	Update(ctx context.Context, g *models.Guild) error
	SoftDelete(ctx context.Context, id snowflake.ID) error
	ListForUser(ctx context.Context, userID snowflake.ID) ([]*models.Guild, error)
}

// Channels is the Channel entity contract, including the DM recipient join.
type Channels interface {
	Create(ctx context.Context, c *models.Channel) error
	Get(ctx context.Context, id snowflake.ID) (*models.Channel, error)
	Update(ctx context.Context, c *models.Channel) error
	Delete(ctx context.Context, id snowflake.ID) error
	ListForGuild(ctx context.Context, guildID snowflake.ID) ([]*models.Channel, error)
	ListForUser(ctx context.Context, userID snowflake.ID) ([]*models.Channel, error)
	// FindDM returns the existing DM channel between exactly these
	// recipients, if one exists.
	FindDM(ctx context.Context, recipientIDs []snowflake.ID) (*models.Channel, error)
}

// Roles is the Role entity contract.
type Roles interface {
	Create(ctx context.Context, r *models.Role) error
	Get(ctx context.Context, id snowflake.ID) (*models.Role, error)
	Update(ctx context.Context, r *models.Role) error
	// Delete removes a role. Implementations must reject deleting a role
	// with IsEveryone set (CannotDeleteEveryoneRole) rather than rely solely
	// on the service layer to check first.
	Delete(ctx context.Context, id snowflake.ID) error
	ListForGuild(ctx context.Context, guildID snowflake.ID) ([]*models.Role, error)
	GetEveryoneRole(ctx context.Context, guildID snowflake.ID) (*models.Role, error)
}

// GuildMembers is the GuildMember entity contract.
type GuildMembers interface {
	Add(ctx context.Context, m *models.GuildMember) error
	Get(ctx context.Context, guildID, userID snowflake.ID) (*models.GuildMember, error)
	Update(ctx context.Context, m *models.GuildMember) error
	Remove(ctx context.Context, guildID, userID snowflake.ID) error
	ListForGuild(ctx context.Context, guildID snowflake.ID, cur Cursor) ([]*models.GuildMember, error)
	AddRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error
	RemoveRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error
}

// Messages is the Message entity contract.
type Messages interface {
	Create(ctx context.Context, m *models.Message) error
	Get(ctx context.Context, id snowflake.ID) (*models.Message, error)
	Update(ctx context.Context, m *models.Message) error
	SoftDelete(ctx context.Context, id snowflake.ID) error
	// BulkSoftDelete soft-deletes every id that resolves to a message in
	// channelID and returns the count actually deleted. ids not belonging to
	// channelID are silently skipped, not an error.
	BulkSoftDelete(ctx context.Context, channelID snowflake.ID, ids []snowflake.ID) (int, error)
	ListForChannel(ctx context.Context, channelID snowflake.ID, cur Cursor) ([]*models.Message, error)
}

// Reactions is the Reaction entity contract.
type Reactions interface {
	// Add is idempotent: adding an existing (message, user, emoji) reaction
	// is a no-op, not a Conflict.
	Add(ctx context.Context, r *models.Reaction) error
	Remove(ctx context.Context, messageID, userID snowflake.ID, emoji string) error
	RemoveAllForEmoji(ctx context.Context, messageID snowflake.ID, emoji string) error
	RemoveAll(ctx context.Context, messageID snowflake.ID) error
	ListForMessageEmoji(ctx context.Context, messageID snowflake.ID, emoji string) ([]*models.Reaction, error)
}

// Invites is the Invite entity contract.
type Invites interface {
	Create(ctx context.Context, i *models.Invite) error
	Get(ctx context.Context, code string) (*models.Invite, error)
	// IncrementUses atomically increments Uses and returns the updated
	// invite, failing with Conflict if the increment would exceed MaxUses.
	IncrementUses(ctx context.Context, code string) (*models.Invite, error)
	Delete(ctx context.Context, code string) error
	ListForGuild(ctx context.Context, guildID snowflake.ID) ([]*models.Invite, error)
	// ListExpired returns invites whose ExpiresAt has passed, for the
	// retention sweep.
	ListExpired(ctx context.Context, before time.Time) ([]*models.Invite, error)
}

// Bans is the GuildBan entity contract.
type Bans interface {
	Create(ctx context.Context, b *models.GuildBan) error
	Get(ctx context.Context, guildID, userID snowflake.ID) (*models.GuildBan, error)
	Remove(ctx context.Context, guildID, userID snowflake.ID) error
	ListForGuild(ctx context.Context, guildID snowflake.ID) ([]*models.GuildBan, error)
}

// RefreshTokens is the RefreshToken entity contract. Unlike the other
// entities this is typically backed by the session store (Redis), not
// Postgres, since it shares its TTL/indexing shape with session state — see
// internal/session.
type RefreshTokens interface {
	Create(ctx context.Context, t *models.RefreshToken) error
	Get(ctx context.Context, id string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID snowflake.ID) error
}

// Sessions is the durable Session entity contract (component G's storage
// side; see internal/session for the replay-buffer operations built atop
// it).
type Sessions interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Update(ctx context.Context, s *models.Session) error
	MarkDisconnected(ctx context.Context, id uuid.UUID) error
	MarkConnected(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAllForUser(ctx context.Context, userID snowflake.ID) error
}

// Repositories bundles every per-entity contract behind one handle, the
// shape the service layer is constructed with.
type Repositories struct {
	Users        Users
	Guilds       Guilds
	Channels     Channels
	Roles        Roles
	GuildMembers GuildMembers
	Messages     Messages
	Reactions    Reactions
	Invites      Invites
	Bans         Bans
}
