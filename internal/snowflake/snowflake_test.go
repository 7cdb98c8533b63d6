package snowflake

import (
	"testing"
	"time"
)

func TestNew_InvalidWorkerID(t *testing.T) {
	if _, err := New(-1); err != ErrInvalidWorkerID {
		t.Errorf("New(-1) error = %v, want ErrInvalidWorkerID", err)
	}
	if _, err := New(1024); err != ErrInvalidWorkerID {
		t.Errorf("New(1024) error = %v, want ErrInvalidWorkerID", err)
	}
	if _, err := New(1023); err != nil {
		t.Errorf("New(1023) error = %v, want nil", err)
	}
}

func TestGenerate_Monotonic(t *testing.T) {
	g, err := New(1)
	if err != nil {
		t.Fatal(err)
	}
	var prev ID
	for i := 0; i < 10000; i++ {
		id := g.Generate()
		if i > 0 && id <= prev {
			t.Fatalf("id %d not strictly greater than previous %d", id, prev)
		}
		prev = id
	}
}

func TestGenerate_TimestampInRange(t *testing.T) {
	g, err := New(7)
	if err != nil {
		t.Fatal(err)
	}
	before := time.Now()
	id := g.Generate()
	after := time.Now()

	ts := id.Timestamp()
	if ts.Before(before.Add(-time.Millisecond)) || ts.After(after.Add(time.Millisecond)) {
		t.Errorf("id timestamp %v not within [%v, %v]", ts, before, after)
	}
}

func TestGenerate_EmbeddedWorkerID(t *testing.T) {
	g, err := New(42)
	if err != nil {
		t.Fatal(err)
	}
	id := g.Generate()
	if id.WorkerID() != 42 {
		t.Errorf("id.WorkerID() = %d, want 42", id.WorkerID())
	}
}

func TestGenerate_SequenceRollover(t *testing.T) {
	g, err := New(1)
	if err != nil {
		t.Fatal(err)
	}
	fixed := time.Now()
	// The clock stays frozen until the sequence is exhausted, then moves one
	// millisecond forward so Generate's wait for the next millisecond ends.
	calls := 0
	g.nowFunc = func() time.Time {
		calls++
		if calls > maxSequence+2 {
			return fixed.Add(time.Millisecond)
		}
		return fixed
	}

	var prev ID
	for i := 0; i <= maxSequence+5; i++ {
		id := g.Generate()
		if i > 0 && id <= prev {
			t.Fatalf("id %d not strictly greater than previous %d at iteration %d", id, prev, i)
		}
		prev = id
	}
}

func TestGenerate_ConcurrentUnique(t *testing.T) {
	g, err := New(3)
	if err != nil {
		t.Fatal(err)
	}
	const n = 2000
	ids := make(chan ID, n)
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < n/10; j++ {
				ids <- g.Generate()
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	close(ids)

	seen := make(map[ID]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id generated: %d", id)
		}
		seen[id] = true
	}
}

func TestID_JSONRoundTrip(t *testing.T) {
	g, _ := New(1)
	id := g.Generate()

	data, err := id.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var decoded ID
	if err := decoded.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if decoded != id {
		t.Errorf("round trip = %d, want %d", decoded, id)
	}
}

func TestID_String(t *testing.T) {
	id := ID(123456789)
	if id.String() != "123456789" {
		t.Errorf("String() = %q, want %q", id.String(), "123456789")
	}
}
