package app

import (
	"context"

	"github.com/qtmlab/sweeprig/internal/instrument"
	"github.com/qtmlab/sweeprig/internal/instrument/mercury"
	"github.com/qtmlab/sweeprig/internal/instrument/scpi"
	"github.com/qtmlab/sweeprig/internal/instrument/sim"
)

// coreDrivers is the definitive list of instrument drivers compiled into
// the sweeprig binary.
var coreDrivers = map[string]instrument.Factory{
	"sim":         sim.Factory,
	"scpi":        scpi.Factory,
	"mercury_ips": mercury.Factory,
}

// simFactory stands in for a real driver during dry runs: the simulated
// device accepts any quantity the plan asks for.
func simFactory(_ context.Context, spec instrument.Spec) (instrument.Device, error) {
	return sim.NewOpen(spec.Name, spec.Class), nil
}
