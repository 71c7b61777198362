package governor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeClock drives the governor without real sleeps.
type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func newTestGovernor(maxCalls int, window time.Duration) (*Governor, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	g := New(maxCalls, window, zerolog.Nop())
	g.now = func() time.Time { return clock.now }
	g.sleep = func(_ context.Context, d time.Duration) error {
		clock.slept = append(clock.slept, d)
		clock.now = clock.now.Add(d)
		return nil
	}
	return g, clock
}

func TestAcquireUnderLimit(t *testing.T) {
	g, clock := newTestGovernor(10, 10*time.Second)

	for i := 0; i < 10; i++ {
		if err := g.Acquire(context.Background(), "test"); err != nil {
			t.Fatalf("unexpected error on call %d: %v", i, err)
		}
	}
	if len(clock.slept) != 0 {
		t.Errorf("first 10 calls should not sleep, slept %v", clock.slept)
	}
}

func TestEleventhCallBlocks(t *testing.T) {
	g, clock := newTestGovernor(10, 10*time.Second)

	// Spread 10 calls over 5 seconds, then a burst call.
	for i := 0; i < 10; i++ {
		if err := g.Acquire(context.Background(), "test"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		clock.now = clock.now.Add(500 * time.Millisecond)
	}

	if err := g.Acquire(context.Background(), "burst"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clock.slept) != 1 {
		t.Fatalf("11th call should sleep exactly once, slept %v", clock.slept)
	}
	// Oldest call was 5s ago, window 10s, so the wait is 5s.
	if clock.slept[0] != 5*time.Second {
		t.Errorf("expected 5s sleep until the oldest call ages out, got %v", clock.slept[0])
	}
}

func TestWindowSlides(t *testing.T) {
	g, clock := newTestGovernor(10, 10*time.Second)

	for i := 0; i < 10; i++ {
		if err := g.Acquire(context.Background(), "test"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	clock.now = clock.now.Add(11 * time.Second)

	if err := g.Acquire(context.Background(), "after-window"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clock.slept) != 0 {
		t.Errorf("call after the window expired should not sleep, slept %v", clock.slept)
	}
	if got := g.InFlight(); got != 1 {
		t.Errorf("expected 1 call in flight after pruning, got %d", got)
	}
}

func TestTryAcquire(t *testing.T) {
	g, _ := newTestGovernor(2, 10*time.Second)

	if !g.TryAcquire() || !g.TryAcquire() {
		t.Fatal("first two TryAcquire calls should succeed")
	}
	if g.TryAcquire() {
		t.Error("third TryAcquire inside the window should fail")
	}
}

func TestAcquireCancelled(t *testing.T) {
	g, clock := newTestGovernor(1, 10*time.Second)
	g.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}

	if err := g.Acquire(context.Background(), "first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = clock

	if err := g.Acquire(context.Background(), "second"); err != context.Canceled {
		t.Errorf("expected context.Canceled during throttle wait, got %v", err)
	}
}
