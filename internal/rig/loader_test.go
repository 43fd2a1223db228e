package rig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func writeRig(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return dir
}

const fullRig = `
run {
  sample   = "2024-03-15_grapheneA"
  data_dir = "/tmp/data"
}

defaults {
  rate   = 0.05
  settle = "500ms"
}

device "lockin" {
  driver  = "scpi"
  address = "/dev/ttyUSB0"
}

device "magnet" {
  driver  = "mercury_ips"
  class   = "hold_ramp_magnet"
  address = "10.0.0.5:7020"
}

device "dac" {
  driver  = "sim"
  options = { quantities = ["dac1", "dac2"] }
}

measure "Vxx" {
  device   = "lockin"
  quantity = "x"
}

measure "Vxy" {
  device   = "lockin"
  quantity = "y"
}

sweep "gatetrace" {
  device   = "dac"
  quantity = "dac1"
  start    = 0
  stop     = 1
  npoints  = 101
  rate     = 0.2
  file     = "gatetrace.dat"

  dac {
    bits       = 16
    full_range = 4
    min        = -2
  }
}

record "monitor" {
  interval = "2s"
  npoints  = 30
  file     = "monitor.dat"
}

megasweep "fieldmap" {
  mode = "serpentine"
  file = "fieldmap.dat"

  slow {
    device   = "magnet"
    quantity = "fieldz"
    start    = 0
    stop     = 1
    npoints  = 11
  }

  fast {
    device   = "dac"
    quantity = "dac1"
    start    = -1
    stop     = 1
    npoints  = 201
  }
}

record "cooldown" {
  interval = "1s"
  file     = "cooldown.dat"

  until {
    device   = "lockin"
    quantity = "x"
    op       = "<"
    value    = 0.001
  }
}
`

func TestLoadFullRig(t *testing.T) {
	dir := writeRig(t, "rig.hcl", fullRig)
	model, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "2024-03-15_grapheneA", model.Run.Sample)
	assert.Equal(t, "/tmp/data", model.Run.DataDir)
	assert.Equal(t, 0.05, model.Defaults.Rate)
	assert.Equal(t, 500*time.Millisecond, model.Defaults.Settle)

	require.Len(t, model.Devices, 3)
	assert.Equal(t, "lockin", model.Devices[0].Name)
	assert.Equal(t, "hold_ramp_magnet", model.Devices[1].Class)
	quantities := model.Devices[2].Options["quantities"]
	require.True(t, quantities.Type().IsTupleType() || quantities.Type().IsListType())
	assert.Equal(t, cty.StringVal("dac1"), quantities.Index(cty.NumberIntVal(0)))

	require.Len(t, model.Measures, 2)
	assert.Equal(t, []Measure{
		{Label: "Vxx", Device: "lockin", Quantity: "x"},
		{Label: "Vxy", Device: "lockin", Quantity: "y"},
	}, model.Measures)
}

func TestLoadPlanPreservesSourceOrder(t *testing.T) {
	dir := writeRig(t, "rig.hcl", fullRig)
	model, err := Load(dir)
	require.NoError(t, err)

	// Step types interleave in the file; the plan must keep that order.
	require.Len(t, model.Plan, 4)
	var names []string
	for _, s := range model.Plan {
		names = append(names, s.StepName())
	}
	assert.Equal(t, []string{"gatetrace", "monitor", "fieldmap", "cooldown"}, names)

	sweep, ok := model.Plan[0].(SweepStep)
	require.True(t, ok)
	assert.Equal(t, 0.2, sweep.Axis.Rate)
	require.NotNil(t, sweep.Axis.DAC)
	assert.Equal(t, 16, sweep.Axis.DAC.Bits)
	assert.Equal(t, -2.0, sweep.Axis.DAC.Min)

	mega, ok := model.Plan[2].(MegaStep)
	require.True(t, ok)
	assert.Equal(t, "serpentine", mega.Mode)
	assert.Equal(t, "fieldz", mega.Slow.Quantity)
	assert.Equal(t, 201, mega.Fast.Npoints)

	cooldown, ok := model.Plan[3].(RecordStep)
	require.True(t, ok)
	assert.Equal(t, 0, cooldown.Npoints)
	require.NotNil(t, cooldown.Until)
	assert.Equal(t, "<", cooldown.Until.Op)
	assert.Equal(t, 0.001, cooldown.Until.Value)
}

func TestLoadRequiresRunBlock(t *testing.T) {
	dir := writeRig(t, "rig.hcl", `
device "d" {
  driver = "sim"
}
`)
	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run block")
}

func TestLoadRejectsDuplicateRunBlock(t *testing.T) {
	dir := writeRig(t, "rig.hcl", `
run { sample = "2024-01-01_a" }
run { sample = "2024-01-01_b" }
`)
	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoadDefaultsApplyWhenOmitted(t *testing.T) {
	dir := writeRig(t, "rig.hcl", `run { sample = "2024-01-01_a" }`)
	model, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultRate, model.Defaults.Rate)
	assert.Equal(t, DefaultSettle, model.Defaults.Settle)
	assert.Equal(t, "Data", model.Run.DataDir)
}

func TestLoadMergesMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01_run.hcl"), []byte(`
run { sample = "2024-01-01_a" }
device "d" { driver = "sim" }
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "02_plan.hcl"), []byte(`
measure "v" {
  device   = "d"
  quantity = "value"
}
record "r" {
  interval = "1s"
  npoints  = 5
  file     = "r.dat"
}
`), 0o644))

	model, err := Load(dir)
	require.NoError(t, err)
	assert.Len(t, model.Devices, 1)
	assert.Len(t, model.Measures, 1)
	assert.Len(t, model.Plan, 1)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	dir := writeRig(t, "rig.hcl", `
run { sample = "2024-01-01_a" }
record "r" {
  interval = "fast"
  file     = "r.dat"
}
`)
	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval")
}

func TestLoadRejectsScalarOptions(t *testing.T) {
	dir := writeRig(t, "rig.hcl", `
run { sample = "2024-01-01_a" }
device "d" {
  driver  = "sim"
  options = 42
}
`)
	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoadErrorsWithoutRigFiles(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
}

func TestLoadWaitfor(t *testing.T) {
	dir := writeRig(t, "rig.hcl", `
run { sample = "2024-01-01_a" }
waitfor "basetemp" {
  device    = "tc"
  quantity  = "temp"
  setpoint  = 4.2
  threshold = 0.05
  dwell     = "60s"
  poll      = "10s"
}
`)
	model, err := Load(dir)
	require.NoError(t, err)
	step, ok := model.Plan[0].(WaitStep)
	require.True(t, ok)
	assert.Equal(t, 4.2, step.Setpoint)
	assert.Equal(t, 0.05, step.Threshold)
	assert.Equal(t, time.Minute, step.Dwell)
	assert.Equal(t, 10*time.Second, step.Poll)
}

func TestLoadWaitforRejectsBadDwell(t *testing.T) {
	dir := writeRig(t, "rig.hcl", `
run { sample = "2024-01-01_a" }
waitfor "w" {
  device    = "tc"
  quantity  = "temp"
  setpoint  = 4.2
  threshold = 0.05
  dwell     = "soon"
}
`)
	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dwell")
}

func TestLoadMultisweep(t *testing.T) {
	dir := writeRig(t, "rig.hcl", `
run { sample = "2024-01-01_a" }
multisweep "gates" {
  npoints = 51
  file    = "gates.dat"

  axis {
    device   = "d"
    quantity = "dac1"
    start    = 0
    stop     = 1
  }
  axis {
    device   = "d"
    quantity = "dac2"
    start    = 0
    stop     = -1
    label    = "backgate"
  }
}
`)
	model, err := Load(dir)
	require.NoError(t, err)
	step, ok := model.Plan[0].(MultiStep)
	require.True(t, ok)
	assert.Equal(t, 51, step.Npoints)
	require.Len(t, step.Axes, 2)
	assert.Equal(t, "backgate", step.Axes[1].Label)
	assert.Equal(t, -1.0, step.Axes[1].Stop)
}

func TestLoadListsweep(t *testing.T) {
	dir := writeRig(t, "rig.hcl", `
run { sample = "2024-01-01_a" }
listsweep "corners" {
  points = [[0, 0], [1, -1]]
  file   = "corners.dat"

  axis {
    device   = "d"
    quantity = "dac1"
  }
  axis {
    device   = "d"
    quantity = "dac2"
  }
}
`)
	model, err := Load(dir)
	require.NoError(t, err)
	step, ok := model.Plan[0].(ListStep)
	require.True(t, ok)
	require.Len(t, step.Axes, 2)
	assert.Equal(t, [][]float64{{0, 0}, {1, -1}}, step.Points)
}
