package browser

import (
	"context"
	"testing"
	"time"
)

func TestStabilize_AcceptsTwoEqualSamples(t *testing.T) {
	values := []float64{1200, 1850, 1850, 1850}
	calls := 0
	sample := func() (float64, bool) {
		v := values[calls]
		calls++
		return v, true
	}

	got, ok := Stabilize(context.Background(), sample, time.Millisecond, 10)
	if !ok {
		t.Fatal("expected a stabilized candidate")
	}
	if got != 1850 {
		t.Errorf("stabilized value = %v, want 1850", got)
	}
	if calls != 3 {
		t.Errorf("sampled %d times, want 3", calls)
	}
}

func TestStabilize_GivesUpAfterMaxSamples(t *testing.T) {
	calls := 0
	sample := func() (float64, bool) {
		calls++
		// Monotonically growing, never stable.
		return float64(calls * 100), true
	}

	got, ok := Stabilize(context.Background(), sample, time.Millisecond, 5)
	if !ok {
		t.Fatal("a candidate was observed, ok must be true")
	}
	if calls != 5 {
		t.Errorf("sampled %d times, want exactly 5", calls)
	}
	if got != 500 {
		t.Errorf("last value = %v, want 500", got)
	}
}

func TestStabilize_NoCandidate(t *testing.T) {
	sample := func() (float64, bool) { return 0, false }
	if _, ok := Stabilize(context.Background(), sample, time.Millisecond, 3); ok {
		t.Error("no candidate was ever observed, ok must be false")
	}
}

func TestStabilize_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	sample := func() (float64, bool) {
		calls++
		return float64(calls), true
	}

	got, ok := Stabilize(ctx, sample, time.Hour, 10)
	if calls != 1 {
		t.Errorf("cancelled context should stop after one sample, got %d", calls)
	}
	if !ok || got != 1 {
		t.Errorf("got (%v, %v), want (1, true)", got, ok)
	}
}

func TestStabilize_IgnoresGapsBetweenSamples(t *testing.T) {
	// A missing reading between two equal ones must not reset agreement
	// tracking to a phantom zero.
	values := []struct {
		v  float64
		ok bool
	}{{900, true}, {0, false}, {900, true}}
	calls := 0
	sample := func() (float64, bool) {
		s := values[calls]
		calls++
		return s.v, s.ok
	}

	got, ok := Stabilize(context.Background(), sample, time.Millisecond, 10)
	if !ok || got != 900 {
		t.Errorf("got (%v, %v), want (900, true)", got, ok)
	}
}
