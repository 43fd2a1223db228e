// Package stability waits for a quantity to settle inside a tolerance band.
package stability

import (
	"context"
	"math"
	"time"

	"github.com/qtmlab/sweeprig/internal/clock"
	"github.com/qtmlab/sweeprig/internal/ctxlog"
	"github.com/qtmlab/sweeprig/internal/instrument"
)

// DefaultPollInterval matches the original 10 s stability poll.
const DefaultPollInterval = 10 * time.Second

// Waiter polls a quantity until it has stayed within a threshold of a
// setpoint for a minimum dwell time.
type Waiter struct {
	Clock        clock.Clock
	PollInterval time.Duration
}

// New returns a Waiter on the real clock with the default poll interval.
func New() *Waiter {
	return &Waiter{Clock: clock.Real{}, PollInterval: DefaultPollInterval}
}

// WaitFor blocks until ref has read within threshold of setpoint for at
// least minDwell. The dwell counter resets to zero on every excursion.
// There is deliberately no upper timeout: runs are operator-supervised and
// the only way out of an unstable quantity is ctx cancellation.
func (w *Waiter) WaitFor(ctx context.Context, ref instrument.Ref, setpoint, threshold float64, minDwell time.Duration) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Waiting for stability.", "quantity", ref.String(), "setpoint", setpoint, "threshold", threshold, "min_dwell", minDwell)

	dwell := time.Duration(0)
	for dwell < minDwell {
		v, err := ref.Device.Read(ctx, ref.Quantity)
		if err != nil {
			return err
		}
		if math.Abs(v-setpoint) <= threshold {
			dwell += w.PollInterval
		} else if dwell > 0 {
			logger.Debug("Quantity left band, dwell reset.", "quantity", ref.String(), "value", v)
			dwell = 0
		}
		if dwell >= minDwell {
			break
		}
		if err := w.Clock.Sleep(ctx, w.PollInterval); err != nil {
			return err
		}
	}
	logger.Info("Quantity stable.", "quantity", ref.String(), "setpoint", setpoint)
	return nil
}
