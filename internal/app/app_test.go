package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeRig drops one rig file into a fresh temp directory and returns its
// path along with a data directory for the run's output.
func writeRig(t *testing.T, content string) (rigPath, dataDir string) {
	t.Helper()
	dir := t.TempDir()
	rigPath = filepath.Join(dir, "rig.hcl")
	require.NoError(t, os.WriteFile(rigPath, []byte(content), 0o644))
	return rigPath, filepath.Join(dir, "data")
}

const planRig = `
run {
  sample = "2024-03-15_testchip"
}

defaults {
  rate   = 1000
  settle = "1ms"
}

device "dac" {
  driver  = "sim"
  options = { quantities = ["dac1"] }
}

device "lockin" {
  driver  = "sim"
  options = { quantities = ["x"] }
}

measure "Vxx" {
  device   = "lockin"
  quantity = "x"
}

sweep "gatetrace" {
  device   = "dac"
  quantity = "dac1"
  start    = 0
  stop     = 1
  npoints  = 3
  file     = "gatetrace.dat"
}

record "monitor" {
  interval = "1ms"
  npoints  = 2
  file     = "monitor.dat"
}

waitfor "settled" {
  device    = "lockin"
  quantity  = "x"
  setpoint  = 0
  threshold = 0.1
  dwell     = "2ms"
  poll      = "1ms"
}
`

func TestAppRunsFullPlan(t *testing.T) {
	rigPath, dataDir := writeRig(t, planRig)

	var out bytes.Buffer
	config, err := NewConfig(Config{RigPath: rigPath, DataDir: dataDir, LogLevel: "error"})
	require.NoError(t, err)

	a := NewApp(&out, config, nil)
	require.NoError(t, a.Run(context.Background()))

	sampleDir := filepath.Join(dataDir, "2024-03-15_testchip")
	trace, err := os.ReadFile(filepath.Join(sampleDir, "gatetrace.dat"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(trace), "\n"), "\n")
	require.Len(t, lines, 6) // 3-line header plus 3 rows
	assert.Equal(t, "dac.dac1, Vxx", lines[2])

	monitor, err := os.ReadFile(filepath.Join(sampleDir, "monitor.dat"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimRight(string(monitor), "\n"), "\n"), 5)
}

func TestNewAppPanicsOnMissingRig(t *testing.T) {
	config, err := NewConfig(Config{RigPath: filepath.Join(t.TempDir(), "nope")})
	require.NoError(t, err)
	assert.Panics(t, func() { NewApp(&bytes.Buffer{}, config, nil) })
}

func TestRunRejectsUnknownDeviceClass(t *testing.T) {
	rigPath, _ := writeRig(t, `
run { sample = "2024-01-01_x" }
device "m" {
  driver = "sim"
  class  = "superconductor"
}
measure "v" {
  device   = "m"
  quantity = "value"
}
`)
	config, err := NewConfig(Config{RigPath: rigPath, LogLevel: "error"})
	require.NoError(t, err)

	a := NewApp(&bytes.Buffer{}, config, nil)
	err = a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "superconductor")
}

func TestRunRequiresMeasureBlocks(t *testing.T) {
	rigPath, _ := writeRig(t, `
run { sample = "2024-01-01_x" }
device "d" { driver = "sim" }
`)
	config, err := NewConfig(Config{RigPath: rigPath, LogLevel: "error"})
	require.NoError(t, err)

	a := NewApp(&bytes.Buffer{}, config, nil)
	err = a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "measure")
}

func TestDryRunSubstitutesSimulatorForRealDrivers(t *testing.T) {
	rigPath, dataDir := writeRig(t, `
run { sample = "2024-01-01_x" }

defaults { settle = "1ms" }

device "lockin" {
  driver  = "scpi"
  address = "/dev/ttyUSB0"
}

measure "Vxx" {
  device   = "lockin"
  quantity = "x"
}

record "monitor" {
  interval = "1ms"
  npoints  = 1
  file     = "monitor.dat"
}
`)
	config, err := NewConfig(Config{RigPath: rigPath, DataDir: dataDir, DryRun: true, LogLevel: "error"})
	require.NoError(t, err)

	// No serial port exists; the dry run must still execute the plan.
	a := NewApp(&bytes.Buffer{}, config, nil)
	require.NoError(t, a.Run(context.Background()))

	_, err = os.Stat(filepath.Join(dataDir, "2024-01-01_x", "monitor.dat"))
	require.NoError(t, err)
}

func TestSampleOverrideWinsOverRig(t *testing.T) {
	rigPath, dataDir := writeRig(t, `
run { sample = "2024-01-01_original" }

defaults { settle = "1ms" }

device "d" {
  driver  = "sim"
  options = { quantities = ["value"] }
}

measure "v" {
  device   = "d"
  quantity = "value"
}

record "r" {
  interval = "1ms"
  npoints  = 1
  file     = "r.dat"
}
`)
	config, err := NewConfig(Config{
		RigPath:  rigPath,
		Sample:   "2024-06-01_override",
		DataDir:  dataDir,
		LogLevel: "error",
	})
	require.NoError(t, err)

	a := NewApp(&bytes.Buffer{}, config, nil)
	require.NoError(t, a.Run(context.Background()))

	_, err = os.Stat(filepath.Join(dataDir, "2024-06-01_override", "r.dat"))
	require.NoError(t, err)
}

func TestNewConfigRequiresRigPath(t *testing.T) {
	_, err := NewConfig(Config{})
	require.Error(t, err)
}
