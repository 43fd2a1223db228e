// Package rig loads the declarative description of one measurement setup:
// which instruments are connected, what gets measured (in column order),
// and the acquisition plan to execute.
package rig

import (
	"time"

	"github.com/zclconf/go-cty/cty"
)

// Model is the fully validated rig: devices, measurement dictionary
// entries, and the plan steps in source order.
type Model struct {
	Run      Run
	Defaults Defaults
	Devices  []Device
	Measures []Measure
	Plan     []Step
}

// Run identifies the acquisition: the sample/run identifier and where data
// lands.
type Run struct {
	Sample  string
	DataDir string
}

// Defaults are the shared sweep parameters a step may omit.
type Defaults struct {
	Rate   float64
	Settle time.Duration
}

// Device is one instrument declaration.
type Device struct {
	Name    string
	Driver  string
	Class   string
	Address string
	Options map[string]cty.Value
}

// Measure is one measurement dictionary entry. Slice order in the model is
// file order and becomes the output column order.
type Measure struct {
	Label    string
	Device   string
	Quantity string
}

// DAC mirrors trajectory.DAC for axes driven through a quantized converter.
type DAC struct {
	Bits      int
	FullRange float64
	Min       float64
}

// Axis names one controllable quantity plus its per-axis sweep bounds.
type Axis struct {
	Device   string
	Quantity string
	Label    string
	Rate     float64
	Log      bool
	Start    float64
	Stop     float64
	Npoints  int
	DAC      *DAC
}

// Step is one plan entry. Concrete types: SweepStep, MultiStep, MegaStep,
// ListStep, RecordStep, WaitStep.
type Step interface {
	StepName() string
}

// SweepStep is a single-axis sweep.
type SweepStep struct {
	Name string
	Axis Axis
	File string
}

func (s SweepStep) StepName() string { return s.Name }

// MultiStep sweeps several axes simultaneously.
type MultiStep struct {
	Name    string
	Axes    []Axis
	Npoints int
	File    string
}

func (s MultiStep) StepName() string { return s.Name }

// MegaStep is a two-axis slow/fast sweep.
type MegaStep struct {
	Name string
	Slow Axis
	Fast Axis
	Mode string
	File string
}

func (s MegaStep) StepName() string { return s.Name }

// ListStep sweeps axes over explicit point rows.
type ListStep struct {
	Name   string
	Axes   []Axis
	Points [][]float64
	File   string
}

func (s ListStep) StepName() string { return s.Name }

// RecordStep is time-based acquisition, optionally bounded by a predicate.
type RecordStep struct {
	Name     string
	Interval time.Duration
	Npoints  int
	File     string
	Until    *Until
}

func (s RecordStep) StepName() string { return s.Name }

// WaitStep blocks the plan until a quantity has stayed within a threshold
// band around a setpoint for a minimum dwell time.
type WaitStep struct {
	Name      string
	Device    string
	Quantity  string
	Setpoint  float64
	Threshold float64
	Dwell     time.Duration
	Poll      time.Duration // 0 means the waiter's default
}

func (s WaitStep) StepName() string { return s.Name }

// Until stops a record step once <device.quantity> <op> <value> holds.
type Until struct {
	Device   string
	Quantity string
	Op       string
	Value    float64
}
