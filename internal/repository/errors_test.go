package repository

import (
	"errors"
	"fmt"
	"testing"
)

func TestIs(t *testing.T) {
	err := NotFound("guild not found")
	if !Is(err, KindNotFound) {
		t.Error("Is(NotFound(...), KindNotFound) should be true")
	}
	if Is(err, KindConflict) {
		t.Error("Is(NotFound(...), KindConflict) should be false")
	}
}

func TestIs_Wrapped(t *testing.T) {
	err := fmt.Errorf("loading guild: %w", Conflict("already a member"))
	if !Is(err, KindConflict) {
		t.Error("Is should unwrap through fmt.Errorf wrapping")
	}
}

func TestIs_NonRepositoryError(t *testing.T) {
	if Is(errors.New("plain error"), KindInfra) {
		t.Error("a plain error should never match any Kind")
	}
}

func TestInfra_UnwrapsUnderlying(t *testing.T) {
	underlying := errors.New("connection refused")
	err := Infra("fetching user", underlying)
	if !errors.Is(err, underlying) {
		t.Error("Infra error should unwrap to the underlying cause")
	}
}

func TestError_MessageFormatting(t *testing.T) {
	err := Validation("content too long")
	if err.Error() != "content too long" {
		t.Errorf("Error() = %q, want %q", err.Error(), "content too long")
	}

	withCause := Infra("query failed", errors.New("timeout"))
	if withCause.Error() != "query failed: timeout" {
		t.Errorf("Error() = %q, want %q", withCause.Error(), "query failed: timeout")
	}
}
