// Package models defines the durable entity graph shared by every layer:
// repositories persist these shapes, services mutate them, and the gateway
// serializes them into dispatch payloads. None of these types talk to
// storage directly — that boundary lives in internal/repository.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pulsechat/pulsechat/internal/permissions"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// ChannelType distinguishes the channel shapes a guild (or the absence of
// one, for DMs) can hold.
type ChannelType int

const (
	ChannelTypeGuildText     ChannelType = 0
	ChannelTypeDM            ChannelType = 1
	ChannelTypeGuildCategory ChannelType = 4
)

// SessionState is the durable lifecycle state of a gateway session, distinct
// from (but coordinated with) the in-process connection state machine in
// internal/gateway.
type SessionState string

const (
	SessionConnected    SessionState = "connected"
	SessionDisconnected SessionState = "disconnected"
	SessionInvalid      SessionState = "invalid"
)

// User is an account: globally unique by (username, discriminator) and by
// email. Corresponds to the users table.
type User struct {
	ID            snowflake.ID `json:"id"`
	Username      string       `json:"username"`
	Discriminator string       `json:"discriminator"` // zero-padded 4 digits, unique per username
	Email         string       `json:"-"`
	PasswordHash  string       `json:"-"`
	AvatarID      *string      `json:"avatar_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	DeletedAt     *time.Time   `json:"-"`
}

// IsDeleted reports whether the user account has been soft-deleted.
func (u User) IsDeleted() bool { return u.DeletedAt != nil }

// Tag returns the "username#discriminator" display form.
func (u User) Tag() string { return u.Username + "#" + u.Discriminator }

// Guild is a server: a named group hosting channels, roles, and members.
// Corresponds to the guilds table.
type Guild struct {
	ID          snowflake.ID `json:"id"`
	Name        string       `json:"name"`
	OwnerID     snowflake.ID `json:"owner_id"`
	IconID      *string      `json:"icon_id,omitempty"`
	Description *string      `json:"description,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	DeletedAt   *time.Time   `json:"-"`
}

// IsDeleted reports whether the guild has been soft-deleted.
func (g Guild) IsDeleted() bool { return g.DeletedAt != nil }

// Channel is a conversation scope: a guild text/category channel when
// GuildID is set, otherwise a DM between the users in Recipients.
type Channel struct {
	ID       snowflake.ID  `json:"id"`
	GuildID  *snowflake.ID `json:"guild_id,omitempty"`
	Type     ChannelType   `json:"type"`
	ParentID *snowflake.ID `json:"parent_id,omitempty"`
	Position int           `json:"position"`
	Topic    *string       `json:"topic,omitempty"`
	Name     *string       `json:"name,omitempty"`

	// Recipients is populated only for DM channels (Type == ChannelTypeDM);
	// it is never persisted on the channels row itself — see
	// ChannelRecipient, the join table it is sourced from.
	Recipients []snowflake.ID `json:"recipients,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IsDM reports whether the channel is a direct message channel.
func (c Channel) IsDM() bool { return c.GuildID == nil }

// ChannelRecipient is the join row backing a DM channel's recipient set.
type ChannelRecipient struct {
	ChannelID snowflake.ID `json:"channel_id"`
	UserID    snowflake.ID `json:"user_id"`
}

// Role is a named permission set with a position in a per-guild hierarchy.
// Exactly one role per guild has IsEveryone set, always at Position 0.
type Role struct {
	ID         snowflake.ID         `json:"id"`
	GuildID    snowflake.ID         `json:"guild_id"`
	Name       string               `json:"name"`
	Position   int                  `json:"position"`
	Perms      permissions.Bitset   `json:"permissions"`
	IsEveryone bool                 `json:"is_everyone"`
	CreatedAt  time.Time            `json:"created_at"`
}

// GuildMember is the (guild, user) junction: roles, nickname, join time.
// Invariant: RoleIDs is a subset of the guild's current roles — a role id
// that no longer resolves is dropped at read time, not enforced here.
type GuildMember struct {
	GuildID      snowflake.ID   `json:"guild_id"`
	UserID       snowflake.ID   `json:"user_id"`
	Nickname     *string        `json:"nickname,omitempty"`
	RoleIDs      []snowflake.ID `json:"roles"`
	JoinedAt     time.Time      `json:"joined_at"`
	TimeoutUntil *time.Time     `json:"timeout_until,omitempty"`
}

// IsTimedOut reports whether the member is currently under a timeout.
func (m GuildMember) IsTimedOut() bool {
	return m.TimeoutUntil != nil && m.TimeoutUntil.After(time.Now())
}

// Message is a single piece of channel content, optionally replying to
// another message in the same channel.
type Message struct {
	ID          snowflake.ID  `json:"id"`
	ChannelID   snowflake.ID  `json:"channel_id"`
	AuthorID    snowflake.ID  `json:"author_id"`
	Content     string        `json:"content"`
	ReferenceID *snowflake.ID `json:"reference_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	EditedAt    *time.Time    `json:"edited_at,omitempty"`
	DeletedAt   *time.Time    `json:"-"`
}

// IsDeleted reports whether the message has been soft-deleted.
func (m Message) IsDeleted() bool { return m.DeletedAt != nil }

// IsEdited reports whether the message has been edited since creation.
func (m Message) IsEdited() bool { return m.EditedAt != nil }

// Reaction is the (message, user, emoji) composite key recording one user's
// reaction to one message with one emoji.
type Reaction struct {
	MessageID snowflake.ID `json:"message_id"`
	UserID    snowflake.ID `json:"user_id"`
	Emoji     string       `json:"emoji"`
	CreatedAt time.Time    `json:"created_at"`
}

// Invite is an 8-character alphanumeric code granting guild membership.
type Invite struct {
	Code      string       `json:"code"`
	GuildID   snowflake.ID `json:"guild_id"`
	ChannelID snowflake.ID `json:"channel_id"`
	InviterID snowflake.ID `json:"inviter_id"`
	Uses      int          `json:"uses"`
	MaxUses   *int         `json:"max_uses,omitempty"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
	Temporary bool         `json:"temporary"`
	CreatedAt time.Time    `json:"created_at"`
}

// IsExpired reports whether the invite's expiry has passed.
func (i Invite) IsExpired() bool {
	return i.ExpiresAt != nil && i.ExpiresAt.Before(time.Now())
}

// IsMaxUsesReached reports whether the invite has exhausted its use budget.
func (i Invite) IsMaxUsesReached() bool {
	return i.MaxUses != nil && i.Uses >= *i.MaxUses
}

// GuildBan is the (guild, user) composite key recording a ban.
type GuildBan struct {
	GuildID    snowflake.ID `json:"guild_id"`
	UserID     snowflake.ID `json:"user_id"`
	Reason     *string      `json:"reason,omitempty"`
	ModeratorID snowflake.ID `json:"moderator_id"`
	CreatedAt  time.Time    `json:"created_at"`
}

// ClientProperties describes the device a gateway session connected from,
// reported in the Identify payload.
type ClientProperties struct {
	OS      string `json:"os,omitempty"`
	Browser string `json:"browser,omitempty"`
	Device  string `json:"device,omitempty"`
}

// Session is a gateway connection's durable identity: resumable for 120s
// after disconnect (see internal/session for the replay-buffer side of this).
type Session struct {
	ID               uuid.UUID         `json:"id"`
	UserID           snowflake.ID      `json:"user_id"`
	LastSequence     int64             `json:"last_sequence"`
	SubscribedGuilds []snowflake.ID    `json:"subscribed_guilds"`
	State            SessionState      `json:"state"`
	LastActiveAt     time.Time         `json:"last_active_at"`
	Properties       ClientProperties  `json:"properties"`
	CreatedAt        time.Time         `json:"created_at"`
}

// RefreshToken is the durable record behind a long-lived refresh token: an
// opaque token id mapped to the session and user it was minted for. Indexed
// by UserID as well, for bulk revocation on logout-everywhere.
type RefreshToken struct {
	ID         string       `json:"id"`
	UserID     snowflake.ID `json:"user_id"`
	SessionID  uuid.UUID    `json:"session_id"`
	DeviceInfo string       `json:"device_info,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	Revoked    bool         `json:"-"`
}
