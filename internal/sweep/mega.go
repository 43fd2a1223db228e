package sweep

import (
	"context"
	"fmt"

	"github.com/qtmlab/sweeprig/internal/datafile"
	"github.com/qtmlab/sweeprig/internal/trajectory"
)

// MegaMode selects how the fast axis traverses for each slow-axis point.
type MegaMode string

const (
	// Standard sweeps the fast axis start-to-stop for every slow point.
	Standard MegaMode = "standard"
	// UpDown traverses forward then immediately backward, both legs into
	// one file.
	UpDown MegaMode = "updown"
	// UpDownSplit is UpDown with the two legs in separate files.
	UpDownSplit MegaMode = "updownsplit"
	// Serpentine alternates the fast direction each slow advance, avoiding
	// the return-to-start motion between lines.
	Serpentine MegaMode = "serpentine"
)

// ParseMegaMode validates a rig-file mode string.
func ParseMegaMode(s string) (MegaMode, error) {
	switch MegaMode(s) {
	case "", Standard:
		return Standard, nil
	case UpDown, UpDownSplit, Serpentine:
		return MegaMode(s), nil
	}
	return "", fmt.Errorf("unknown 2-D sweep mode %q", s)
}

// MegaSpec describes a two-axis (slow/fast) sweep.
type MegaSpec struct {
	Slow      Axis
	SlowStart float64
	SlowStop  float64
	SlowN     int

	Fast      Axis
	FastStart float64
	FastStop  float64
	FastN     int

	Mode     MegaMode
	Filename string
}

// Megasweep runs the 2-D sweep: for every slow-axis point the fast axis is
// swept according to Mode, writing a row per fast point.
func (e *Engine) Megasweep(ctx context.Context, s MegaSpec) error {
	slowTraj, err := e.buildTrajectory(ctx, s.Slow, s.SlowStart, s.SlowStop, s.SlowN)
	if err != nil {
		return err
	}
	fastFwd, err := e.buildTrajectory(ctx, s.Fast, s.FastStart, s.FastStop, s.FastN)
	if err != nil {
		return err
	}
	fastBwd := trajectory.Reverse(fastFwd)
	labels := []string{s.Slow.label(), s.Fast.label()}

	desc := fmt.Sprintf("2-D %s sweep: %s from %g to %g in %d points, %s from %g to %g in %d points",
		s.Mode, s.Slow.label(), s.SlowStart, s.SlowStop, len(slowTraj),
		s.Fast.label(), s.FastStart, s.FastStop, len(fastFwd))

	var wUp, wDown *datafile.Writer
	wUp, err = e.openWriter(s.Filename, desc, labels)
	if err != nil {
		return err
	}
	defer wUp.Close()
	if s.Mode == UpDownSplit {
		wDown, err = e.openWriter(datafile.SplitSuffix(s.Filename, "_down"), desc, labels)
		if err != nil {
			return err
		}
		defer wDown.Close()
	}

	total := len(slowTraj) * len(fastFwd)
	if s.Mode == UpDown || s.Mode == UpDownSplit {
		total *= 2
	}

	var est Estimator
	axes := []Axis{s.Slow, s.Fast}
	done := 0

	line := func(slowVal float64, fast []float64, w *datafile.Writer) error {
		for _, fastVal := range fast {
			began := e.clock.Now()
			if err := e.step(ctx, axes, []float64{slowVal, fastVal}, w); err != nil {
				return err
			}
			done++
			e.progress(ctx, &est, began, done, total)
		}
		return nil
	}

	for i, slowVal := range slowTraj {
		switch s.Mode {
		case UpDown:
			if err := line(slowVal, fastFwd, wUp); err != nil {
				return err
			}
			if err := line(slowVal, fastBwd, wUp); err != nil {
				return err
			}
		case UpDownSplit:
			if err := line(slowVal, fastFwd, wUp); err != nil {
				return err
			}
			if err := line(slowVal, fastBwd, wDown); err != nil {
				return err
			}
		case Serpentine:
			fast := fastFwd
			if i%2 == 1 {
				fast = fastBwd
			}
			if err := line(slowVal, fast, wUp); err != nil {
				return err
			}
		default:
			if err := line(slowVal, fastFwd, wUp); err != nil {
				return err
			}
		}
	}
	return nil
}
