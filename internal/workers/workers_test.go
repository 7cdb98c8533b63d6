package workers

import (
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	m := New(Config{})
	if m == nil {
		t.Fatal("New returned nil")
	}
	if m.staleAfter != 5*time.Minute {
		t.Errorf("staleAfter = %v, want %v", m.staleAfter, 5*time.Minute)
	}
	if m.interval != time.Minute {
		t.Errorf("interval = %v, want %v", m.interval, time.Minute)
	}
}

func TestNew_CustomDurations(t *testing.T) {
	m := New(Config{SessionStaleAfter: 30 * time.Minute, Interval: 10 * time.Minute})
	if m.staleAfter != 30*time.Minute {
		t.Errorf("staleAfter = %v, want %v", m.staleAfter, 30*time.Minute)
	}
	if m.interval != 10*time.Minute {
		t.Errorf("interval = %v, want %v", m.interval, 10*time.Minute)
	}
}

func TestStop_WithoutStart(t *testing.T) {
	m := New(Config{})
	m.Stop() // must not panic when cancel was never set
}
