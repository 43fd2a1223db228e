package instrument_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/qtmlab/sweeprig/internal/instrument"
	"github.com/qtmlab/sweeprig/internal/instrument/sim"
)

func TestRegistryOpenAndResolve(t *testing.T) {
	r := instrument.NewRegistry()
	r.RegisterDriver("sim", sim.Factory)

	dev, err := r.Open(context.Background(), instrument.Spec{
		Name:    "lockin",
		Driver:  "sim",
		Options: map[string]cty.Value{"quantities": sim.OptionQuantities("x", "y")},
	})
	require.NoError(t, err)
	assert.Equal(t, "lockin", dev.Name())

	ref, err := r.Resolve("lockin", "x")
	require.NoError(t, err)
	assert.Equal(t, "lockin.x", ref.String())

	_, err = r.Resolve("nope", "x")
	require.Error(t, err)
}

func TestRegistryRejectsUnknownDriver(t *testing.T) {
	r := instrument.NewRegistry()
	r.RegisterDriver("sim", sim.Factory)

	_, err := r.Open(context.Background(), instrument.Spec{Name: "d", Driver: "visa"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "visa")
	assert.Contains(t, err.Error(), "sim") // the error lists what is available
}

func TestRegistryRejectsDuplicateDeviceName(t *testing.T) {
	r := instrument.NewRegistry()
	r.RegisterDriver("sim", sim.Factory)

	_, err := r.Open(context.Background(), instrument.Spec{Name: "d", Driver: "sim"})
	require.NoError(t, err)
	_, err = r.Open(context.Background(), instrument.Spec{Name: "d", Driver: "sim"})
	require.Error(t, err)
}

func TestRegisterDriverPanicsOnDuplicate(t *testing.T) {
	r := instrument.NewRegistry()
	r.RegisterDriver("sim", sim.Factory)
	assert.Panics(t, func() { r.RegisterDriver("sim", sim.Factory) })
}

func TestRegistryAdd(t *testing.T) {
	r := instrument.NewRegistry()
	require.NoError(t, r.Add(sim.New("a", instrument.Standard, "v")))
	require.Error(t, r.Add(sim.New("a", instrument.Standard, "v")))

	dev, err := r.Device("a")
	require.NoError(t, err)
	assert.Equal(t, "a", dev.Name())
}

func TestDriversSorted(t *testing.T) {
	r := instrument.NewRegistry()
	r.RegisterDriver("scpi", sim.Factory)
	r.RegisterDriver("mercury_ips", sim.Factory)
	r.RegisterDriver("sim", sim.Factory)
	assert.Equal(t, []string{"mercury_ips", "scpi", "sim"}, r.Drivers())
}
