package sweep

import "time"

// Estimator keeps a running mean of per-step durations and projects a
// finish time from it. Display only; never used for control decisions.
type Estimator struct {
	steps int
	total time.Duration
}

// Observe records one completed step.
func (e *Estimator) Observe(d time.Duration) {
	e.steps++
	e.total += d
}

// Mean returns the average step duration seen so far.
func (e *Estimator) Mean() time.Duration {
	if e.steps == 0 {
		return 0
	}
	return e.total / time.Duration(e.steps)
}

// Finish projects the completion timestamp given the steps still to run.
func (e *Estimator) Finish(now time.Time, remaining int) time.Time {
	return now.Add(e.Mean() * time.Duration(remaining))
}
