package clock

import (
	"context"
	"sync"
	"time"
)

// Fake is a deterministic Clock for tests. Sleep advances the fake time
// immediately instead of blocking, and every sleep is recorded.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration

	// MaxSleeps, when > 0, cancels the context passed to Sleep after that
	// many calls. It lets tests bound loops that would otherwise poll
	// forever (the stability waiter blocks by design).
	MaxSleeps int
	cancel    context.CancelFunc
}

// NewFake returns a Fake clock starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Bound wires ctx so that the clock cancels it once MaxSleeps is exceeded.
// It returns the derived context.
func (f *Fake) Bound(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()
	return ctx
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.sleeps = append(f.sleeps, d)
	over := f.MaxSleeps > 0 && len(f.sleeps) >= f.MaxSleeps
	cancel := f.cancel
	f.mu.Unlock()
	if over && cancel != nil {
		cancel()
	}
	return nil
}

// Sleeps returns a copy of all durations slept so far.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.sleeps))
	copy(out, f.sleeps)
	return out
}

// Advance moves the fake time forward without recording a sleep.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
