// Package clock abstracts wall-clock time so that every poll and dwell loop
// in the engine can run against a simulated clock in tests.
package clock

import (
	"context"
	"time"
)

// Clock is the time source used by the mover, waiter, and scheduler.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is cancelled, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the wall-clock implementation.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
