// Package trajectory generates the ordered setpoint sequences an axis
// traverses during a sweep.
package trajectory

import (
	"fmt"
	"math"
)

// Linspace returns npoints values evenly spaced from start to stop,
// inclusive on both ends.
func Linspace(start, stop float64, npoints int) ([]float64, error) {
	if npoints < 1 {
		return nil, fmt.Errorf("npoints must be >= 1, got %d", npoints)
	}
	if npoints == 1 {
		return []float64{start}, nil
	}
	out := make([]float64, npoints)
	step := (stop - start) / float64(npoints-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	// Guard the endpoint against accumulated rounding.
	out[npoints-1] = stop
	return out, nil
}

// Logspace returns npoints values spaced logarithmically from start to
// stop. Both must be non-zero and share a sign.
func Logspace(start, stop float64, npoints int) ([]float64, error) {
	if start == 0 || stop == 0 || (start > 0) != (stop > 0) {
		return nil, fmt.Errorf("logarithmic spacing requires non-zero, same-sign bounds (got %g .. %g)", start, stop)
	}
	sign := 1.0
	if start < 0 {
		sign = -1.0
	}
	exps, err := Linspace(math.Log10(sign*start), math.Log10(sign*stop), npoints)
	if err != nil {
		return nil, err
	}
	out := make([]float64, npoints)
	for i, e := range exps {
		out[i] = sign * math.Pow(10, e)
	}
	out[0] = start
	out[npoints-1] = stop
	return out, nil
}

// DAC describes a digital-to-analog converter whose output is quantized to
// a fixed voltage step.
type DAC struct {
	Bits      int
	FullRange float64 // total output span in volts
	Min       float64 // voltage at code 0
}

// Quantum is the smallest increment the converter can produce.
func (d DAC) Quantum() float64 {
	return d.FullRange / (math.Pow(2, float64(d.Bits)) - 1)
}

// Quantized builds a trajectory whose every value is a representable
// converter output. The requested step is rounded to the nearest multiple
// of the quantum (minimum one quantum), the representable code nearest the
// midpoint of [start, stop] anchors the walk, and values are generated
// outward from the anchor in quantum multiples, discarding anything outside
// the requested interval. The returned point count may differ from the
// requested one when the requested step is below one quantum.
func Quantized(d DAC, start, stop float64, npoints int) (traj []float64, adjStart, adjStop float64, adjNpoints int, err error) {
	if npoints < 2 {
		return nil, 0, 0, 0, fmt.Errorf("quantized trajectory needs npoints >= 2, got %d", npoints)
	}
	if start == stop {
		return nil, 0, 0, 0, fmt.Errorf("quantized trajectory needs distinct bounds (got %g)", start)
	}
	q := d.Quantum()

	lo, hi := start, stop
	reversed := false
	if lo > hi {
		lo, hi = hi, lo
		reversed = true
	}

	// Round the requested step to a whole number of quanta, at least one.
	step := (hi - lo) / float64(npoints-1)
	mult := math.Round(step / q)
	if mult < 1 {
		mult = 1
	}
	step = mult * q

	// Anchor on the representable code nearest the interval midpoint, then
	// walk outward. Enumerating codes rather than accumulating rounded
	// floats avoids double-counting or skipping converter codes downstream.
	mid := (lo + hi) / 2
	anchorCode := math.Round((mid - d.Min) / q)
	anchor := d.Min + anchorCode*q

	var down []float64
	for v := anchor - step; v >= lo-q; v -= step {
		down = append(down, v)
	}
	var up []float64
	for v := anchor; v <= hi+q; v += step {
		up = append(up, v)
	}

	traj = make([]float64, 0, len(down)+len(up))
	for i := len(down) - 1; i >= 0; i-- {
		traj = append(traj, down[i])
	}
	traj = append(traj, up...)

	// Snap each value onto the code lattice to kill accumulation error.
	for i, v := range traj {
		traj[i] = d.Min + math.Round((v-d.Min)/q)*q
	}

	// Drop anything the walk produced outside the requested interval.
	tol := q * 1e-6
	kept := traj[:0]
	for _, v := range traj {
		if v >= lo-tol && v <= hi+tol {
			kept = append(kept, v)
		}
	}
	traj = kept

	if reversed {
		for i, j := 0, len(traj)-1; i < j; i, j = i+1, j-1 {
			traj[i], traj[j] = traj[j], traj[i]
		}
	}
	if len(traj) == 0 {
		return nil, 0, 0, 0, fmt.Errorf("no representable codes in [%g, %g]", start, stop)
	}
	return traj, traj[0], traj[len(traj)-1], len(traj), nil
}

// Reverse returns a reversed copy of a trajectory.
func Reverse(traj []float64) []float64 {
	out := make([]float64, len(traj))
	for i, v := range traj {
		out[len(traj)-1-i] = v
	}
	return out
}
