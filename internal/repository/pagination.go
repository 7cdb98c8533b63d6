package repository

import "github.com/pulsechat/pulsechat/internal/snowflake"

// DefaultLimit and MaxLimit bound every cursor-paginated listing (spec §6.2).
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Cursor is a Snowflake-keyed pagination window. At most one of Before/After
// is set. With a zero Cursor, message listings run from the newest entry
// backward and member listings run from the lowest user id upward.
type Cursor struct {
	Before *snowflake.ID
	After  *snowflake.ID
	Limit  int
}

// Clamp returns a copy of c with Limit forced into [1, MaxLimit], defaulting
// to DefaultLimit when unset.
func (c Cursor) Clamp() Cursor {
	switch {
	case c.Limit <= 0:
		c.Limit = DefaultLimit
	case c.Limit > MaxLimit:
		c.Limit = MaxLimit
	}
	return c
}
