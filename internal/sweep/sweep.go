// Package sweep contains the acquisition scheduler: the state machine that
// drives 1-D, N-simultaneous, 2-D, list-based, and time-based acquisition.
// Every mode shares one step pattern: move, settle, measure, write row.
package sweep

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/qtmlab/sweeprig/internal/clock"
	"github.com/qtmlab/sweeprig/internal/ctxlog"
	"github.com/qtmlab/sweeprig/internal/datafile"
	"github.com/qtmlab/sweeprig/internal/instrument"
	"github.com/qtmlab/sweeprig/internal/measure"
	"github.com/qtmlab/sweeprig/internal/mover"
	"github.com/qtmlab/sweeprig/internal/trajectory"
)

// Config is the explicit per-run configuration. Every run's parameters
// live here rather than in package globals, so runs are reproducible.
type Config struct {
	// Sample is the required YYYY-MM-DD_<name> run identifier.
	Sample string
	// DataDir is the base directory; output lands in DataDir/<Sample>/.
	DataDir string
	// DefaultRate applies to axes that do not set their own (units/s).
	DefaultRate float64
	// Settle is the pause between reaching a setpoint and measuring.
	Settle time.Duration
}

// Axis is one controllable quantity in a sweep.
type Axis struct {
	Ref   instrument.Ref
	Label string  // column label; defaults to "device.quantity"
	Rate  float64 // units/s; 0 falls back to Config.DefaultRate
	Log   bool    // logarithmic spacing
	// DAC, when set, switches the axis to hardware-discretized
	// trajectories so every setpoint is a representable converter code.
	DAC *trajectory.DAC
}

func (a Axis) label() string {
	if a.Label != "" {
		return a.Label
	}
	return a.Ref.String()
}

// Engine coordinates the mover, aggregator, and writer for one rig. It is
// single-threaded by design: no overlap between moving and measuring.
type Engine struct {
	cfg   Config
	dict  *measure.Dictionary
	mover *mover.Mover
	clock clock.Clock
}

// New builds an Engine on the real clock.
func New(cfg Config, dict *measure.Dictionary, mv *mover.Mover) *Engine {
	return NewWithClock(cfg, dict, mv, clock.Real{})
}

// NewWithClock builds an Engine on an injected clock (tests).
func NewWithClock(cfg Config, dict *measure.Dictionary, mv *mover.Mover, c clock.Clock) *Engine {
	return &Engine{cfg: cfg, dict: dict, mover: mv, clock: c}
}

// openWriter validates the run identifier, resolves the per-sample data
// directory, and creates the output file. All of it happens before any
// device is touched, so validation and I/O failures cannot leave an
// instrument mid-motion.
func (e *Engine) openWriter(filename, description string, independents []string) (*datafile.Writer, error) {
	sample, err := datafile.ParseSampleID(e.cfg.Sample)
	if err != nil {
		return nil, err
	}
	dir, err := sample.Dir(e.cfg.DataDir)
	if err != nil {
		return nil, err
	}
	markers := strings.Repeat("s", len(independents)) + strings.Repeat("g", e.dict.Len())
	return datafile.Create(datafile.Descriptor{
		Path:        filepath.Join(dir, filename),
		Description: description,
		Columns:     append(independents, e.dict.Labels()...),
		Markers:     markers,
	}, e.clock.Now())
}

func (e *Engine) rate(a Axis) float64 {
	if a.Rate > 0 {
		return a.Rate
	}
	return e.cfg.DefaultRate
}

// buildTrajectory materializes the setpoint sequence for one axis,
// honoring log spacing and hardware discretization.
func (e *Engine) buildTrajectory(ctx context.Context, a Axis, start, stop float64, npoints int) ([]float64, error) {
	if a.DAC != nil {
		traj, adjStart, adjStop, adjN, err := trajectory.Quantized(*a.DAC, start, stop, npoints)
		if err != nil {
			return nil, err
		}
		if adjN != npoints {
			ctxlog.FromContext(ctx).Info("Trajectory adjusted to converter grid.",
				"axis", a.label(), "start", adjStart, "stop", adjStop, "npoints", adjN)
		}
		return traj, nil
	}
	if a.Log {
		return trajectory.Logspace(start, stop, npoints)
	}
	return trajectory.Linspace(start, stop, npoints)
}

// step executes one trajectory point: move every axis to its setpoint,
// settle, measure, append the combined row.
func (e *Engine) step(ctx context.Context, axes []Axis, setpoints []float64, w *datafile.Writer) error {
	for i, a := range axes {
		if err := e.mover.Move(ctx, a.Ref.Device, a.Ref.Quantity, setpoints[i], e.rate(a)); err != nil {
			return fmt.Errorf("moving %s: %w", a.label(), err)
		}
	}
	if err := e.clock.Sleep(ctx, e.cfg.Settle); err != nil {
		return err
	}
	data, err := measure.Aggregate(ctx, e.dict)
	if err != nil {
		return err
	}
	row := make([]float64, 0, len(setpoints)+len(data))
	row = append(row, setpoints...)
	row = append(row, data...)
	return w.Append(row)
}

// progress feeds the estimator and logs a projected finish time.
func (e *Engine) progress(ctx context.Context, est *Estimator, began time.Time, done, total int) {
	est.Observe(e.clock.Now().Sub(began))
	remaining := total - done
	ctxlog.FromContext(ctx).Info("Step complete.",
		"step", done, "of", total,
		"mean_step", est.Mean().Round(time.Millisecond),
		"eta", est.Finish(e.clock.Now(), remaining).Format("15:04:05"))
}

// SweepSpec describes a single-axis sweep.
type SweepSpec struct {
	Axis     Axis
	Start    float64
	Stop     float64
	Npoints  int
	Filename string
}

// Sweep moves the axis to Start, then visits each trajectory point:
// move, settle, measure, write.
func (e *Engine) Sweep(ctx context.Context, s SweepSpec) error {
	traj, err := e.buildTrajectory(ctx, s.Axis, s.Start, s.Stop, s.Npoints)
	if err != nil {
		return err
	}
	desc := fmt.Sprintf("sweep %s from %g to %g in %d points at %g /s",
		s.Axis.label(), s.Start, s.Stop, len(traj), e.rate(s.Axis))
	w, err := e.openWriter(s.Filename, desc, []string{s.Axis.label()})
	if err != nil {
		return err
	}
	defer w.Close()

	if err := e.mover.Move(ctx, s.Axis.Ref.Device, s.Axis.Ref.Quantity, traj[0], e.rate(s.Axis)); err != nil {
		return fmt.Errorf("moving %s to start: %w", s.Axis.label(), err)
	}

	var est Estimator
	axes := []Axis{s.Axis}
	for i, v := range traj {
		began := e.clock.Now()
		if err := e.step(ctx, axes, []float64{v}, w); err != nil {
			return err
		}
		e.progress(ctx, &est, began, i+1, len(traj))
	}
	return nil
}

// MultiSpec describes a simultaneous multi-axis sweep: all axes advance
// together through trajectories of equal length.
type MultiSpec struct {
	Axes     []Axis
	Starts   []float64
	Stops    []float64
	Npoints  int
	Filename string
}

// SweepMulti steps every axis to its respective trajectory value before
// one shared settle and measurement.
func (e *Engine) SweepMulti(ctx context.Context, s MultiSpec) error {
	if len(s.Axes) == 0 || len(s.Starts) != len(s.Axes) || len(s.Stops) != len(s.Axes) {
		return fmt.Errorf("multi sweep needs equal axis/start/stop counts (%d/%d/%d)",
			len(s.Axes), len(s.Starts), len(s.Stops))
	}
	trajs := make([][]float64, len(s.Axes))
	labels := make([]string, len(s.Axes))
	for i, a := range s.Axes {
		t, err := e.buildTrajectory(ctx, a, s.Starts[i], s.Stops[i], s.Npoints)
		if err != nil {
			return err
		}
		if i > 0 && len(t) != len(trajs[0]) {
			return fmt.Errorf("axis %s trajectory length %d differs from %d (converter grid adjustment)",
				a.label(), len(t), len(trajs[0]))
		}
		trajs[i] = t
		labels[i] = a.label()
	}
	npoints := len(trajs[0])

	desc := fmt.Sprintf("simultaneous sweep of %s in %d points", strings.Join(labels, ", "), npoints)
	w, err := e.openWriter(s.Filename, desc, labels)
	if err != nil {
		return err
	}
	defer w.Close()

	var est Estimator
	setpoints := make([]float64, len(s.Axes))
	for i := 0; i < npoints; i++ {
		began := e.clock.Now()
		for k := range s.Axes {
			setpoints[k] = trajs[k][i]
		}
		if err := e.step(ctx, s.Axes, setpoints, w); err != nil {
			return err
		}
		e.progress(ctx, &est, began, i+1, npoints)
	}
	return nil
}

// ListSpec describes a multi-axis sweep over explicit point rows. Points
// may be non-uniform; Points[i] holds one setpoint per axis.
type ListSpec struct {
	Axes     []Axis
	Points   [][]float64
	Filename string
}

// SweepList visits each point row in order.
func (e *Engine) SweepList(ctx context.Context, s ListSpec) error {
	if len(s.Axes) == 0 || len(s.Points) == 0 {
		return fmt.Errorf("list sweep needs at least one axis and one point row")
	}
	labels := make([]string, len(s.Axes))
	for i, a := range s.Axes {
		labels[i] = a.label()
	}
	for i, row := range s.Points {
		if len(row) != len(s.Axes) {
			return fmt.Errorf("point row %d has %d values for %d axes", i, len(row), len(s.Axes))
		}
	}

	desc := fmt.Sprintf("list sweep of %s over %d points", strings.Join(labels, ", "), len(s.Points))
	w, err := e.openWriter(s.Filename, desc, labels)
	if err != nil {
		return err
	}
	defer w.Close()

	var est Estimator
	for i, row := range s.Points {
		began := e.clock.Now()
		if err := e.step(ctx, s.Axes, row, w); err != nil {
			return err
		}
		e.progress(ctx, &est, began, i+1, len(s.Points))
	}
	return nil
}
