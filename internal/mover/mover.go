// Package mover moves one quantity of one device to a setpoint at a bounded
// rate, absorbing per-device-class motion quirks so the scheduler never has
// to know them.
package mover

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/qtmlab/sweeprig/internal/clock"
	"github.com/qtmlab/sweeprig/internal/ctxlog"
	"github.com/qtmlab/sweeprig/internal/instrument"
)

// Config carries the motion tunables. The slow-device retry counts and
// tolerances are empirically tuned; treat them as best-effort convergence
// knobs, not guarantees.
type Config struct {
	// Tick is the pause between interpolated writes for standard devices.
	Tick time.Duration
	// SourceTick is the slower pause used for lagging source devices.
	SourceTick time.Duration
	// MagnetPollInterval is the read-back poll period for magnet classes.
	MagnetPollInterval time.Duration
	// MagnetPollLimit bounds the polls before the setpoint is resent once.
	MagnetPollLimit int
	// MagnetRateCeiling is the maximum per-minute rate a slow magnet accepts.
	MagnetRateCeiling float64
	// MagnetRateFloor replaces a zero per-minute rate; the controller
	// must never be sent rate zero.
	MagnetRateFloor float64
	// MagnetTolerance is the decimal precision of the reached comparison.
	MagnetTolerance int
	// StallPolls is how many unchanged readings count as a stalled ramp.
	StallPolls int
}

// DefaultConfig returns the tunables inherited from bench practice.
func DefaultConfig() Config {
	return Config{
		Tick:               20 * time.Millisecond,
		SourceTick:         200 * time.Millisecond,
		MagnetPollInterval: 100 * time.Millisecond,
		MagnetPollLimit:    300,
		MagnetRateCeiling:  0.4,
		MagnetRateFloor:    0.1,
		MagnetTolerance:    2,
		StallPolls:         5,
	}
}

// Mover executes moves. It is stateless between calls.
type Mover struct {
	cfg   Config
	clock clock.Clock
}

// New builds a Mover on the real clock.
func New(cfg Config) *Mover {
	return &Mover{cfg: cfg, clock: clock.Real{}}
}

// NewWithClock builds a Mover on an injected clock (tests).
func NewWithClock(cfg Config, c clock.Clock) *Mover {
	return &Mover{cfg: cfg, clock: c}
}

// Move drives dev's quantity to setpoint at rate (units per second). The
// strategy is chosen by the device's class; every strategy finishes with an
// exact write of the requested setpoint.
func (m *Mover) Move(ctx context.Context, dev instrument.Device, quantity string, setpoint, rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("move %s.%s: rate must be positive, got %g", dev.Name(), quantity, rate)
	}
	switch dev.Class() {
	case instrument.SlowMagnet:
		return m.moveSlowMagnet(ctx, dev, quantity, setpoint, rate)
	case instrument.HoldRampMagnet:
		return m.moveHoldRamp(ctx, dev, quantity, setpoint, rate)
	case instrument.SlowSource:
		return m.moveInterpolated(ctx, dev, quantity, setpoint, rate, m.cfg.SourceTick, true)
	default:
		return m.moveInterpolated(ctx, dev, quantity, setpoint, rate, m.cfg.Tick, false)
	}
}

// moveInterpolated is the default strategy: linearly interpolate from the
// current value to the setpoint in rate-bounded steps, one tick apart, and
// finish with the exact target to correct interpolation rounding. Lagging
// sources additionally read back after every write, because their reads
// also consume settling time.
func (m *Mover) moveInterpolated(ctx context.Context, dev instrument.Device, quantity string, setpoint, rate float64, tick time.Duration, readBack bool) error {
	cur, err := dev.Read(ctx, quantity)
	if err != nil {
		return err
	}

	steps := int(math.Round(math.Abs(setpoint-cur) / rate / tick.Seconds()))
	if steps == 0 {
		return dev.Write(ctx, quantity, setpoint)
	}

	curve := interpolate(cur, setpoint, steps)
	for _, v := range curve {
		if err := dev.Write(ctx, quantity, v); err != nil {
			return err
		}
		if readBack {
			if _, err := dev.Read(ctx, quantity); err != nil {
				return err
			}
		}
		if err := m.clock.Sleep(ctx, tick); err != nil {
			return err
		}
	}
	return dev.Write(ctx, quantity, setpoint)
}

// moveSlowMagnet handles controllers whose transport is too slow for
// per-step interpolation. The per-second rate becomes a clamped per-minute
// rate, one rate and one setpoint command go out, and the read-back is
// polled until it matches. After the poll budget the setpoint is resent
// once; the move then continues regardless, so one noisy reading cannot
// stall a multi-hour run.
func (m *Mover) moveSlowMagnet(ctx context.Context, dev instrument.Device, quantity string, setpoint, rate float64) error {
	logger := ctxlog.FromContext(ctx)

	rw, ok := dev.(instrument.RateWriter)
	if !ok {
		return &instrument.CapabilityError{Device: dev.Name(), Quantity: quantity, Operation: "write_rate"}
	}

	ratepm := roundTo(rate*60, 3)
	if ratepm > m.cfg.MagnetRateCeiling {
		ratepm = m.cfg.MagnetRateCeiling
	}
	if ratepm == 0 {
		ratepm = m.cfg.MagnetRateFloor
	}
	if err := rw.WriteRate(ctx, ratepm); err != nil {
		return err
	}
	if err := dev.Write(ctx, quantity, setpoint); err != nil {
		return err
	}

	resent := false
	for polls := 0; ; polls++ {
		if err := m.clock.Sleep(ctx, m.cfg.MagnetPollInterval); err != nil {
			return err
		}
		cur, err := dev.Read(ctx, quantity)
		if err != nil {
			return err
		}
		if m.reached(cur, setpoint) {
			return nil
		}
		if polls >= m.cfg.MagnetPollLimit {
			if resent {
				logger.Warn("Magnet did not converge, continuing.", "device", dev.Name(), "quantity", quantity, "setpoint", setpoint, "value", cur)
				return nil
			}
			logger.Warn("Magnet setpoint not reached, resending once.", "device", dev.Name(), "quantity", quantity, "setpoint", setpoint, "value", cur)
			if err := dev.Write(ctx, quantity, setpoint); err != nil {
				return err
			}
			resent = true
			polls = 0
		}
	}
}

// moveHoldRamp handles magnets that move only on a ramp-to-setpoint action
// and report HOLD/MOVING. A ramp whose read-back stops changing while the
// status still says MOVING is forced to HOLD and reissued once - a
// corrective transition, not an error.
func (m *Mover) moveHoldRamp(ctx context.Context, dev instrument.Device, quantity string, setpoint, rate float64) error {
	logger := ctxlog.FromContext(ctx)

	rw, ok := dev.(instrument.RateWriter)
	if !ok {
		return &instrument.CapabilityError{Device: dev.Name(), Quantity: quantity, Operation: "write_rate"}
	}
	ramper, ok := dev.(instrument.Ramper)
	if !ok {
		return &instrument.CapabilityError{Device: dev.Name(), Quantity: quantity, Operation: "ramp"}
	}
	sr, ok := dev.(instrument.StatusReader)
	if !ok {
		return &instrument.CapabilityError{Device: dev.Name(), Quantity: quantity, Operation: "status"}
	}

	ratepm := roundTo(rate*60, 3)
	if ratepm == 0 {
		ratepm = m.cfg.MagnetRateFloor
	}
	if err := rw.WriteRate(ctx, ratepm); err != nil {
		return err
	}
	if err := dev.Write(ctx, quantity, setpoint); err != nil {
		return err
	}
	if err := ramper.RampToSetpoint(ctx); err != nil {
		return err
	}

	var last float64
	stalled := 0
	corrected := false
	for first := true; ; first = false {
		if err := m.clock.Sleep(ctx, m.cfg.MagnetPollInterval); err != nil {
			return err
		}
		status, err := sr.Status(ctx)
		if err != nil {
			return err
		}
		cur, err := dev.Read(ctx, quantity)
		if err != nil {
			return err
		}
		if status == instrument.StatusHold && m.reached(cur, setpoint) {
			return nil
		}
		if status == instrument.StatusHold {
			// At HOLD but off target: the controller finished a ramp it
			// thinks is done. Reissue.
			stalled = m.cfg.StallPolls
		} else if !first && cur == last {
			stalled++
		} else {
			stalled = 0
		}
		last = cur

		if stalled >= m.cfg.StallPolls {
			if corrected {
				logger.Warn("Magnet ramp did not converge, continuing.", "device", dev.Name(), "quantity", quantity, "setpoint", setpoint, "value", cur)
				return nil
			}
			logger.Warn("Magnet ramp stalled, forcing HOLD and reissuing setpoint.", "device", dev.Name(), "quantity", quantity, "setpoint", setpoint, "value", cur)
			if err := ramper.Hold(ctx); err != nil {
				return err
			}
			if err := dev.Write(ctx, quantity, setpoint); err != nil {
				return err
			}
			if err := ramper.RampToSetpoint(ctx); err != nil {
				return err
			}
			corrected = true
			stalled = 0
		}
	}
}

func (m *Mover) reached(cur, setpoint float64) bool {
	p := m.cfg.MagnetTolerance
	return roundTo(cur, p) == roundTo(setpoint, p)
}

// interpolate returns steps intermediate values strictly between cur and
// target, rounded to 3 decimals the way move curves always were. The exact
// target is written separately by the caller.
func interpolate(cur, target float64, steps int) []float64 {
	out := make([]float64, steps)
	span := target - cur
	for i := 1; i <= steps; i++ {
		out[i-1] = roundTo(cur+span*float64(i)/float64(steps+1), 3)
	}
	return out
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
