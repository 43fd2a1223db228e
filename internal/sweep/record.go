package sweep

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/qtmlab/sweeprig/internal/instrument"
	"github.com/qtmlab/sweeprig/internal/measure"
)

// Condition is the stop predicate for RecordUntil: recording ends once
// <Ref> <Op> <Value> holds.
type Condition struct {
	Ref   instrument.Ref
	Op    string // ">", "<", or "="
	Value float64
}

func (c Condition) holds(v float64) (bool, error) {
	switch c.Op {
	case ">":
		return v > c.Value, nil
	case "<":
		return v < c.Value, nil
	case "=":
		// Readings compare on the same 3-decimal grid the data path uses.
		return math.Round(v*1000) == math.Round(c.Value*1000), nil
	}
	return false, fmt.Errorf("unknown condition operator %q (want >, <, or =)", c.Op)
}

// RecordSpec describes time-based acquisition: no axis moves, one row per
// interval.
type RecordSpec struct {
	Interval time.Duration
	// Npoints caps the sample count; 0 records until ctx cancellation.
	Npoints  int
	Filename string
}

// Record writes a row every Interval for up to Npoints samples. The time
// column holds the nominal elapsed seconds i*Interval.
func (e *Engine) Record(ctx context.Context, s RecordSpec) error {
	return e.record(ctx, s, nil)
}

// RecordUntil is Record with an additional stop predicate on a monitored
// quantity, evaluated once per interval.
func (e *Engine) RecordUntil(ctx context.Context, s RecordSpec, cond Condition) error {
	if _, err := cond.holds(0); err != nil {
		return err
	}
	return e.record(ctx, s, &cond)
}

func (e *Engine) record(ctx context.Context, s RecordSpec, cond *Condition) error {
	if s.Interval <= 0 {
		return fmt.Errorf("record interval must be positive, got %v", s.Interval)
	}
	desc := fmt.Sprintf("record every %v", s.Interval)
	if s.Npoints > 0 {
		desc = fmt.Sprintf("%s for %d points", desc, s.Npoints)
	}
	if cond != nil {
		desc = fmt.Sprintf("%s until %s %s %g", desc, cond.Ref, cond.Op, cond.Value)
	}
	w, err := e.openWriter(s.Filename, desc, []string{"time"})
	if err != nil {
		return err
	}
	defer w.Close()

	var est Estimator
	for i := 0; s.Npoints == 0 || i < s.Npoints; i++ {
		began := e.clock.Now()
		data, err := measure.Aggregate(ctx, e.dict)
		if err != nil {
			return err
		}
		row := append([]float64{float64(i) * s.Interval.Seconds()}, data...)
		if err := w.Append(row); err != nil {
			return err
		}
		if s.Npoints > 0 {
			e.progress(ctx, &est, began, i+1, s.Npoints)
		}

		if cond != nil {
			v, err := cond.Ref.Device.Read(ctx, cond.Ref.Quantity)
			if err != nil {
				return err
			}
			if ok, _ := cond.holds(v); ok {
				return nil
			}
		}
		if err := e.clock.Sleep(ctx, s.Interval); err != nil {
			return err
		}
	}
	return nil
}
