package governor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Governor throttles outbound exchange calls to at most maxCalls within a
// trailing window. The mutex is held across the full prune-check-sleep-record
// sequence so two concurrent callers can never both observe a free slot.
// State is not persisted; a restart simply under-uses the window briefly.
type Governor struct {
	mu       sync.Mutex
	window   time.Duration
	maxCalls int
	calls    []time.Time
	logger   zerolog.Logger
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

func New(maxCalls int, window time.Duration, logger zerolog.Logger) *Governor {
	return &Governor{
		window:   window,
		maxCalls: maxCalls,
		calls:    make([]time.Time, 0, maxCalls),
		logger:   logger.With().Str("component", "rate_governor").Logger(),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Acquire blocks until a call slot is free, then records the call.
// It never fails on throttling, only delays; the one error path is
// context cancellation during the wait.
func (g *Governor) Acquire(ctx context.Context, callerTag string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)

	if len(g.calls) >= g.maxCalls {
		oldest := g.calls[0]
		sleepTime := oldest.Add(g.window).Sub(now)
		if sleepTime > 0 {
			g.logger.Warn().
				Str("caller", callerTag).
				Dur("sleep", sleepTime).
				Msg("rate limit reached, throttling")
			if err := g.sleep(ctx, sleepTime); err != nil {
				return err
			}
			now = g.now()
			g.prune(now)
		}
	}

	g.calls = append(g.calls, now)
	return nil
}

// TryAcquire records the call if a slot is free and reports whether it did.
func (g *Governor) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)
	if len(g.calls) >= g.maxCalls {
		return false
	}
	g.calls = append(g.calls, now)
	return true
}

// InFlight returns the number of calls currently inside the window.
func (g *Governor) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prune(g.now())
	return len(g.calls)
}

func (g *Governor) prune(now time.Time) {
	cutoff := now.Add(-g.window)
	i := 0
	for i < len(g.calls) && !g.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		g.calls = append(g.calls[:0], g.calls[i:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
