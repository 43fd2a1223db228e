package trajectory

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinspace(t *testing.T) {
	testCases := []struct {
		name    string
		start   float64
		stop    float64
		npoints int
	}{
		{name: "ascending", start: 0, stop: 1, npoints: 11},
		{name: "descending", start: 5, stop: -5, npoints: 21},
		{name: "two points", start: -0.3, stop: 0.7, npoints: 2},
		{name: "many points", start: 0, stop: 10, npoints: 1001},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			traj, err := Linspace(tc.start, tc.stop, tc.npoints)
			require.NoError(t, err)
			require.Len(t, traj, tc.npoints)
			assert.Equal(t, tc.start, traj[0])
			assert.Equal(t, tc.stop, traj[tc.npoints-1])

			ascending := tc.stop > tc.start
			for i := 1; i < len(traj); i++ {
				if ascending {
					assert.Greater(t, traj[i], traj[i-1])
				} else {
					assert.Less(t, traj[i], traj[i-1])
				}
			}
		})
	}
}

func TestLinspaceSinglePoint(t *testing.T) {
	traj, err := Linspace(3.5, 9, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{3.5}, traj)
}

func TestLinspaceRejectsZeroPoints(t *testing.T) {
	_, err := Linspace(0, 1, 0)
	require.Error(t, err)
}

func TestLogspace(t *testing.T) {
	testCases := []struct {
		name    string
		start   float64
		stop    float64
		npoints int
	}{
		{name: "positive decades", start: 1e-3, stop: 1, npoints: 4},
		{name: "negative decades", start: -1, stop: -1e-3, npoints: 4},
		{name: "descending", start: 100, stop: 0.01, npoints: 9},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			traj, err := Logspace(tc.start, tc.stop, tc.npoints)
			require.NoError(t, err)
			require.Len(t, traj, tc.npoints)
			assert.InDelta(t, tc.start, traj[0], 1e-12)
			assert.InDelta(t, tc.stop, traj[tc.npoints-1], 1e-12)

			ascending := tc.stop > tc.start
			for i := 1; i < len(traj); i++ {
				if ascending {
					assert.Greater(t, traj[i], traj[i-1])
				} else {
					assert.Less(t, traj[i], traj[i-1])
				}
			}
		})
	}
}

func TestLogspaceRejectsMixedSigns(t *testing.T) {
	_, err := Logspace(-1, 1, 5)
	require.Error(t, err)
	_, err = Logspace(0, 1, 5)
	require.Error(t, err)
}

// ivviDAC is the 16-bit, 4 V span converter of the IVVI rack.
var ivviDAC = DAC{Bits: 16, FullRange: 4, Min: -2}

func TestQuantizedValuesOnLattice(t *testing.T) {
	traj, adjStart, adjStop, adjN, err := Quantized(ivviDAC, 0, 0.01, 11)
	require.NoError(t, err)
	require.NotEmpty(t, traj)

	assert.Equal(t, len(traj), adjN)
	assert.Equal(t, traj[0], adjStart)
	assert.Equal(t, traj[len(traj)-1], adjStop)

	q := ivviDAC.Quantum()
	for _, v := range traj {
		k := (v - adjStart) / q
		assert.InDelta(t, math.Round(k), k, 1e-6, "value %g is off the quantum lattice", v)
		assert.GreaterOrEqual(t, v, 0-q*1e-3)
		assert.LessOrEqual(t, v, 0.01+q*1e-3)
	}

	// Steps are uniform multiples of the quantum.
	step := traj[1] - traj[0]
	for i := 1; i < len(traj); i++ {
		assert.InDelta(t, step, traj[i]-traj[i-1], q*1e-6)
	}
}

func TestQuantizedStepBelowQuantum(t *testing.T) {
	// A requested step finer than one quantum collapses onto the code
	// grid: fewer points come back than were asked for.
	q := ivviDAC.Quantum()
	traj, _, _, adjN, err := Quantized(ivviDAC, 0, 3*q, 100)
	require.NoError(t, err)
	assert.Equal(t, len(traj), adjN)
	assert.Less(t, adjN, 100)

	for i := 1; i < len(traj); i++ {
		assert.InDelta(t, q, traj[i]-traj[i-1], q*1e-6)
	}
}

func TestQuantizedDescending(t *testing.T) {
	traj, adjStart, adjStop, adjN, err := Quantized(ivviDAC, 0.01, 0, 11)
	require.NoError(t, err)
	assert.Equal(t, len(traj), adjN)
	assert.Equal(t, traj[0], adjStart)
	assert.Equal(t, traj[len(traj)-1], adjStop)
	for i := 1; i < len(traj); i++ {
		assert.Less(t, traj[i], traj[i-1])
	}
}

func TestQuantizedRejectsDegenerateInput(t *testing.T) {
	_, _, _, _, err := Quantized(ivviDAC, 1, 1, 10)
	require.Error(t, err)
	_, _, _, _, err = Quantized(ivviDAC, 0, 1, 1)
	require.Error(t, err)
}

func TestReverse(t *testing.T) {
	assert.Equal(t, []float64{3, 2, 1}, Reverse([]float64{1, 2, 3}))
	assert.Empty(t, Reverse(nil))
}
