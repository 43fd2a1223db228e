package app

import (
	"context"
	"fmt"

	"github.com/qtmlab/sweeprig/internal/ctxlog"
	"github.com/qtmlab/sweeprig/internal/instrument"
	"github.com/qtmlab/sweeprig/internal/measure"
	"github.com/qtmlab/sweeprig/internal/mover"
	"github.com/qtmlab/sweeprig/internal/rig"
	"github.com/qtmlab/sweeprig/internal/stability"
	"github.com/qtmlab/sweeprig/internal/sweep"
	"github.com/qtmlab/sweeprig/internal/trajectory"
)

// Run executes the loaded plan: open every declared device, build the
// measurement dictionary, then walk the plan steps in rig order. Steps run
// strictly sequentially; an interrupt leaves the last-moved device at its
// last commanded setpoint.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	for _, d := range a.model.Devices {
		class, err := instrument.ParseClass(d.Class)
		if err != nil {
			return fmt.Errorf("device %q: %w", d.Name, err)
		}
		if _, err := a.registry.Open(ctx, instrument.Spec{
			Name:    d.Name,
			Driver:  d.Driver,
			Class:   class,
			Address: d.Address,
			Options: d.Options,
		}); err != nil {
			return err
		}
	}

	dict := measure.NewDictionary()
	for _, m := range a.model.Measures {
		ref, err := a.registry.Resolve(m.Device, m.Quantity)
		if err != nil {
			return fmt.Errorf("measure %q: %w", m.Label, err)
		}
		if err := dict.Add(m.Label, ref); err != nil {
			return err
		}
	}
	if dict.Len() == 0 {
		return fmt.Errorf("rig declares no measure blocks; nothing to acquire")
	}

	engine := sweep.New(sweep.Config{
		Sample:      a.model.Run.Sample,
		DataDir:     a.model.Run.DataDir,
		DefaultRate: a.model.Defaults.Rate,
		Settle:      a.model.Defaults.Settle,
	}, dict, mover.New(mover.DefaultConfig()))

	a.logger.Info("Starting acquisition plan.", "steps", len(a.model.Plan), "sample", a.model.Run.Sample)
	for i, step := range a.model.Plan {
		a.logger.Info("Plan step starting.", "step", i+1, "of", len(a.model.Plan), "name", step.StepName())
		if err := a.runStep(ctx, engine, step); err != nil {
			return fmt.Errorf("plan step %q: %w", step.StepName(), err)
		}
		a.logger.Info("Plan step finished.", "name", step.StepName())
	}
	a.logger.Info("Acquisition plan finished.")
	return nil
}

func (a *App) runStep(ctx context.Context, engine *sweep.Engine, step rig.Step) error {
	switch s := step.(type) {
	case rig.SweepStep:
		axis, err := a.axis(s.Axis)
		if err != nil {
			return err
		}
		return engine.Sweep(ctx, sweep.SweepSpec{
			Axis:     axis,
			Start:    s.Axis.Start,
			Stop:     s.Axis.Stop,
			Npoints:  s.Axis.Npoints,
			Filename: s.File,
		})

	case rig.MultiStep:
		axes, starts, stops, err := a.axes(s.Axes)
		if err != nil {
			return err
		}
		return engine.SweepMulti(ctx, sweep.MultiSpec{
			Axes:     axes,
			Starts:   starts,
			Stops:    stops,
			Npoints:  s.Npoints,
			Filename: s.File,
		})

	case rig.MegaStep:
		slow, err := a.axis(s.Slow)
		if err != nil {
			return err
		}
		fast, err := a.axis(s.Fast)
		if err != nil {
			return err
		}
		mode, err := sweep.ParseMegaMode(s.Mode)
		if err != nil {
			return err
		}
		return engine.Megasweep(ctx, sweep.MegaSpec{
			Slow: slow, SlowStart: s.Slow.Start, SlowStop: s.Slow.Stop, SlowN: s.Slow.Npoints,
			Fast: fast, FastStart: s.Fast.Start, FastStop: s.Fast.Stop, FastN: s.Fast.Npoints,
			Mode:     mode,
			Filename: s.File,
		})

	case rig.ListStep:
		axes, _, _, err := a.axes(s.Axes)
		if err != nil {
			return err
		}
		return engine.SweepList(ctx, sweep.ListSpec{
			Axes:     axes,
			Points:   s.Points,
			Filename: s.File,
		})

	case rig.RecordStep:
		spec := sweep.RecordSpec{
			Interval: s.Interval,
			Npoints:  s.Npoints,
			Filename: s.File,
		}
		if s.Until == nil {
			return engine.Record(ctx, spec)
		}
		ref, err := a.registry.Resolve(s.Until.Device, s.Until.Quantity)
		if err != nil {
			return err
		}
		return engine.RecordUntil(ctx, spec, sweep.Condition{
			Ref:   ref,
			Op:    s.Until.Op,
			Value: s.Until.Value,
		})

	case rig.WaitStep:
		ref, err := a.registry.Resolve(s.Device, s.Quantity)
		if err != nil {
			return err
		}
		waiter := stability.New()
		if s.Poll > 0 {
			waiter.PollInterval = s.Poll
		}
		return waiter.WaitFor(ctx, ref, s.Setpoint, s.Threshold, s.Dwell)
	}
	return fmt.Errorf("unknown plan step type %T", step)
}

func (a *App) axis(ax rig.Axis) (sweep.Axis, error) {
	ref, err := a.registry.Resolve(ax.Device, ax.Quantity)
	if err != nil {
		return sweep.Axis{}, err
	}
	out := sweep.Axis{
		Ref:   ref,
		Label: ax.Label,
		Rate:  ax.Rate,
		Log:   ax.Log,
	}
	if ax.DAC != nil {
		out.DAC = &trajectory.DAC{
			Bits:      ax.DAC.Bits,
			FullRange: ax.DAC.FullRange,
			Min:       ax.DAC.Min,
		}
	}
	return out, nil
}

func (a *App) axes(in []rig.Axis) ([]sweep.Axis, []float64, []float64, error) {
	axes := make([]sweep.Axis, len(in))
	starts := make([]float64, len(in))
	stops := make([]float64, len(in))
	for i, ax := range in {
		converted, err := a.axis(ax)
		if err != nil {
			return nil, nil, nil, err
		}
		axes[i] = converted
		starts[i] = ax.Start
		stops[i] = ax.Stop
	}
	return axes, starts, stops, nil
}
