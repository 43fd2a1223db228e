package rig

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/qtmlab/sweeprig/internal/fsutil"
)

// Default shared sweep parameters applied when a rig omits its defaults
// block: 0.1 units/s and a 1 s settle delay, the values inherited from
// bench practice.
const (
	DefaultRate   = 0.1
	DefaultSettle = time.Second
)

// rootSchema names every block a rig file may contain. Blocks are consumed
// through Content so the plan preserves source order across block types.
var rootSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "run"},
		{Type: "defaults"},
		{Type: "device", LabelNames: []string{"name"}},
		{Type: "measure", LabelNames: []string{"label"}},
		{Type: "sweep", LabelNames: []string{"name"}},
		{Type: "multisweep", LabelNames: []string{"name"}},
		{Type: "megasweep", LabelNames: []string{"name"}},
		{Type: "listsweep", LabelNames: []string{"name"}},
		{Type: "record", LabelNames: []string{"name"}},
		{Type: "waitfor", LabelNames: []string{"name"}},
	},
}

type runBlock struct {
	Sample  string `hcl:"sample"`
	DataDir string `hcl:"data_dir,optional"`
}

type defaultsBlock struct {
	Rate   float64 `hcl:"rate,optional"`
	Settle string  `hcl:"settle,optional"`
}

type deviceBlock struct {
	Driver  string    `hcl:"driver"`
	Class   string    `hcl:"class,optional"`
	Address string    `hcl:"address,optional"`
	Options cty.Value `hcl:"options,optional"`
}

type measureBlock struct {
	Device   string `hcl:"device"`
	Quantity string `hcl:"quantity"`
}

type dacBlock struct {
	Bits      int     `hcl:"bits"`
	FullRange float64 `hcl:"full_range"`
	Min       float64 `hcl:"min"`
}

type axisBlock struct {
	Device   string    `hcl:"device"`
	Quantity string    `hcl:"quantity"`
	Label    string    `hcl:"label,optional"`
	Rate     float64   `hcl:"rate,optional"`
	Log      bool      `hcl:"log,optional"`
	Start    float64   `hcl:"start,optional"`
	Stop     float64   `hcl:"stop,optional"`
	Npoints  int       `hcl:"npoints,optional"`
	DAC      *dacBlock `hcl:"dac,block"`
}

type sweepBlock struct {
	Device   string    `hcl:"device"`
	Quantity string    `hcl:"quantity"`
	Label    string    `hcl:"label,optional"`
	Rate     float64   `hcl:"rate,optional"`
	Log      bool      `hcl:"log,optional"`
	Start    float64   `hcl:"start"`
	Stop     float64   `hcl:"stop"`
	Npoints  int       `hcl:"npoints"`
	File     string    `hcl:"file"`
	DAC      *dacBlock `hcl:"dac,block"`
}

type multisweepBlock struct {
	Axes    []axisBlock `hcl:"axis,block"`
	Npoints int         `hcl:"npoints"`
	File    string      `hcl:"file"`
}

type megasweepBlock struct {
	Slow axisBlock `hcl:"slow,block"`
	Fast axisBlock `hcl:"fast,block"`
	Mode string    `hcl:"mode,optional"`
	File string    `hcl:"file"`
}

type listsweepBlock struct {
	Axes   []axisBlock `hcl:"axis,block"`
	Points [][]float64 `hcl:"points"`
	File   string      `hcl:"file"`
}

type untilBlock struct {
	Device   string  `hcl:"device"`
	Quantity string  `hcl:"quantity"`
	Op       string  `hcl:"op"`
	Value    float64 `hcl:"value"`
}

type waitforBlock struct {
	Device    string  `hcl:"device"`
	Quantity  string  `hcl:"quantity"`
	Setpoint  float64 `hcl:"setpoint"`
	Threshold float64 `hcl:"threshold"`
	Dwell     string  `hcl:"dwell"`
	Poll      string  `hcl:"poll,optional"`
}

type recordBlock struct {
	Interval string      `hcl:"interval"`
	Npoints  int         `hcl:"npoints,optional"`
	File     string      `hcl:"file"`
	Until    *untilBlock `hcl:"until,block"`
}

// Load parses every .hcl file under the given paths and merges them into
// one validated Model.
func Load(paths ...string) (*Model, error) {
	var files []string
	for _, p := range paths {
		found, err := fsutil.FindFilesByExtension(p, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("discovering rig files under %s: %w", p, err)
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl rig files found under %v", paths)
	}

	model := &Model{Defaults: Defaults{Rate: DefaultRate, Settle: DefaultSettle}}
	sawRun := false
	parser := hclparse.NewParser()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing %s: %w", file, diags)
		}
		content, diags := hclFile.Body.Content(rootSchema)
		if diags.HasErrors() {
			return nil, fmt.Errorf("decoding %s: %w", file, diags)
		}
		for _, block := range content.Blocks {
			if err := mergeBlock(model, block, &sawRun); err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
		}
	}

	if !sawRun {
		return nil, fmt.Errorf("rig has no run block; a sample identifier is required")
	}
	if model.Run.DataDir == "" {
		model.Run.DataDir = "Data"
	}
	return model, nil
}

func mergeBlock(model *Model, block *hcl.Block, sawRun *bool) error {
	switch block.Type {
	case "run":
		if *sawRun {
			return fmt.Errorf("run block declared twice")
		}
		*sawRun = true
		var b runBlock
		if diags := gohcl.DecodeBody(block.Body, nil, &b); diags.HasErrors() {
			return diags
		}
		model.Run = Run{Sample: b.Sample, DataDir: b.DataDir}

	case "defaults":
		var b defaultsBlock
		if diags := gohcl.DecodeBody(block.Body, nil, &b); diags.HasErrors() {
			return diags
		}
		if b.Rate != 0 {
			model.Defaults.Rate = b.Rate
		}
		if b.Settle != "" {
			settle, err := time.ParseDuration(b.Settle)
			if err != nil {
				return fmt.Errorf("defaults.settle: %w", err)
			}
			model.Defaults.Settle = settle
		}

	case "device":
		var b deviceBlock
		if diags := gohcl.DecodeBody(block.Body, nil, &b); diags.HasErrors() {
			return diags
		}
		opts, err := optionsMap(b.Options)
		if err != nil {
			return fmt.Errorf("device %q options: %w", block.Labels[0], err)
		}
		model.Devices = append(model.Devices, Device{
			Name:    block.Labels[0],
			Driver:  b.Driver,
			Class:   b.Class,
			Address: b.Address,
			Options: opts,
		})

	case "measure":
		var b measureBlock
		if diags := gohcl.DecodeBody(block.Body, nil, &b); diags.HasErrors() {
			return diags
		}
		model.Measures = append(model.Measures, Measure{
			Label:    block.Labels[0],
			Device:   b.Device,
			Quantity: b.Quantity,
		})

	case "sweep":
		var b sweepBlock
		if diags := gohcl.DecodeBody(block.Body, nil, &b); diags.HasErrors() {
			return diags
		}
		model.Plan = append(model.Plan, SweepStep{
			Name: block.Labels[0],
			Axis: Axis{
				Device: b.Device, Quantity: b.Quantity, Label: b.Label,
				Rate: b.Rate, Log: b.Log,
				Start: b.Start, Stop: b.Stop, Npoints: b.Npoints,
				DAC: translateDAC(b.DAC),
			},
			File: b.File,
		})

	case "multisweep":
		var b multisweepBlock
		if diags := gohcl.DecodeBody(block.Body, nil, &b); diags.HasErrors() {
			return diags
		}
		model.Plan = append(model.Plan, MultiStep{
			Name:    block.Labels[0],
			Axes:    translateAxes(b.Axes),
			Npoints: b.Npoints,
			File:    b.File,
		})

	case "megasweep":
		var b megasweepBlock
		if diags := gohcl.DecodeBody(block.Body, nil, &b); diags.HasErrors() {
			return diags
		}
		model.Plan = append(model.Plan, MegaStep{
			Name: block.Labels[0],
			Slow: translateAxis(b.Slow),
			Fast: translateAxis(b.Fast),
			Mode: b.Mode,
			File: b.File,
		})

	case "listsweep":
		var b listsweepBlock
		if diags := gohcl.DecodeBody(block.Body, nil, &b); diags.HasErrors() {
			return diags
		}
		model.Plan = append(model.Plan, ListStep{
			Name:   block.Labels[0],
			Axes:   translateAxes(b.Axes),
			Points: b.Points,
			File:   b.File,
		})

	case "record":
		var b recordBlock
		if diags := gohcl.DecodeBody(block.Body, nil, &b); diags.HasErrors() {
			return diags
		}
		interval, err := time.ParseDuration(b.Interval)
		if err != nil {
			return fmt.Errorf("record %q interval: %w", block.Labels[0], err)
		}
		step := RecordStep{
			Name:     block.Labels[0],
			Interval: interval,
			Npoints:  b.Npoints,
			File:     b.File,
		}
		if b.Until != nil {
			step.Until = &Until{
				Device:   b.Until.Device,
				Quantity: b.Until.Quantity,
				Op:       b.Until.Op,
				Value:    b.Until.Value,
			}
		}
		model.Plan = append(model.Plan, step)

	case "waitfor":
		var b waitforBlock
		if diags := gohcl.DecodeBody(block.Body, nil, &b); diags.HasErrors() {
			return diags
		}
		dwell, err := time.ParseDuration(b.Dwell)
		if err != nil {
			return fmt.Errorf("waitfor %q dwell: %w", block.Labels[0], err)
		}
		step := WaitStep{
			Name:      block.Labels[0],
			Device:    b.Device,
			Quantity:  b.Quantity,
			Setpoint:  b.Setpoint,
			Threshold: b.Threshold,
			Dwell:     dwell,
		}
		if b.Poll != "" {
			poll, err := time.ParseDuration(b.Poll)
			if err != nil {
				return fmt.Errorf("waitfor %q poll: %w", block.Labels[0], err)
			}
			step.Poll = poll
		}
		model.Plan = append(model.Plan, step)
	}
	return nil
}

func translateAxis(b axisBlock) Axis {
	return Axis{
		Device: b.Device, Quantity: b.Quantity, Label: b.Label,
		Rate: b.Rate, Log: b.Log,
		Start: b.Start, Stop: b.Stop, Npoints: b.Npoints,
		DAC: translateDAC(b.DAC),
	}
}

func translateAxes(bs []axisBlock) []Axis {
	out := make([]Axis, len(bs))
	for i, b := range bs {
		out[i] = translateAxis(b)
	}
	return out
}

func translateDAC(b *dacBlock) *DAC {
	if b == nil {
		return nil
	}
	return &DAC{Bits: b.Bits, FullRange: b.FullRange, Min: b.Min}
}

// optionsMap unwraps the free-form options attribute into per-key values
// for the driver factory.
func optionsMap(v cty.Value) (map[string]cty.Value, error) {
	if v == cty.NilVal || v.IsNull() {
		return nil, nil
	}
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("options must be an object, got %s", v.Type().FriendlyName())
	}
	return v.AsValueMap(), nil
}
