package dispatcher

import (
	"testing"

	"github.com/pulsechat/pulsechat/internal/snowflake"
)

func TestParseSnowflake(t *testing.T) {
	got, err := parseSnowflake("123456")
	if err != nil {
		t.Fatalf("parseSnowflake: %v", err)
	}
	if got != snowflake.ID(123456) {
		t.Errorf("parseSnowflake = %d, want 123456", got)
	}
}

func TestParseSnowflake_Invalid(t *testing.T) {
	if _, err := parseSnowflake("not-a-number"); err == nil {
		t.Error("expected an error for a non-numeric suffix")
	}
}

func TestExcludedSet_NilTarget(t *testing.T) {
	if got := excludedSet(nil); got != nil {
		t.Errorf("excludedSet(nil) = %v, want nil", got)
	}
}
