// Package sim provides a simulated instrument. It backs dry runs from the
// CLI and is the standard test double for the engine packages.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/qtmlab/sweeprig/internal/instrument"
)

// Device is an in-memory instrument. Every quantity listed at construction
// is both readable and writable; reads return the last written value unless
// a read script overrides them.
type Device struct {
	mu     sync.Mutex
	name   string
	class  instrument.DeviceClass
	values map[string]float64
	rate   float64
	status string

	// scripts maps a quantity to a queue of canned readings consumed one
	// per Read call. When the queue empties, reads fall back to the stored
	// value.
	scripts map[string][]float64
	// statusScript, when non-empty, overrides Status one call at a time.
	statusScript []string

	writes []Write

	// open devices accept any quantity name, materializing it on first
	// use. Dry runs need this because real drivers advertise quantities
	// the simulator cannot know in advance.
	open bool
}

// Write records one setpoint command for assertions.
type Write struct {
	Quantity string
	Value    float64
}

// New builds a simulated device with the given quantities.
func New(name string, class instrument.DeviceClass, quantities ...string) *Device {
	d := &Device{
		name:    name,
		class:   class,
		values:  make(map[string]float64),
		scripts: make(map[string][]float64),
		status:  instrument.StatusHold,
	}
	for _, q := range quantities {
		d.values[q] = 0
	}
	return d
}

// NewOpen builds a simulated device that accepts any quantity name.
func NewOpen(name string, class instrument.DeviceClass) *Device {
	d := New(name, class)
	d.open = true
	return d
}

// Factory adapts New to the driver registry. The rig options may carry a
// "quantities" list; without it the device exposes a single "value".
func Factory(_ context.Context, spec instrument.Spec) (instrument.Device, error) {
	quantities := []string{"value"}
	if raw, ok := spec.Options["quantities"]; ok {
		quantities = quantities[:0]
		for it := raw.ElementIterator(); it.Next(); {
			_, v := it.Element()
			var q string
			if err := gocty.FromCtyValue(v, &q); err != nil {
				return nil, fmt.Errorf("sim quantities: %w", err)
			}
			quantities = append(quantities, q)
		}
	}
	return New(spec.Name, spec.Class, quantities...), nil
}

// OptionQuantities builds the rig option value listing simulated quantities.
func OptionQuantities(names ...string) cty.Value {
	vals := make([]cty.Value, len(names))
	for i, n := range names {
		vals[i] = cty.StringVal(n)
	}
	return cty.ListVal(vals)
}

func (d *Device) Name() string                  { return d.name }
func (d *Device) Class() instrument.DeviceClass { return d.class }

func (d *Device) Read(_ context.Context, quantity string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if queue := d.scripts[quantity]; len(queue) > 0 {
		v := queue[0]
		d.scripts[quantity] = queue[1:]
		return v, nil
	}
	v, ok := d.values[quantity]
	if !ok {
		if !d.open {
			return 0, &instrument.CapabilityError{Device: d.name, Quantity: quantity, Operation: "read"}
		}
		d.values[quantity] = 0
	}
	return v, nil
}

func (d *Device) Write(_ context.Context, quantity string, value float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.values[quantity]; !ok && !d.open {
		return &instrument.CapabilityError{Device: d.name, Quantity: quantity, Operation: "write"}
	}
	d.values[quantity] = value
	d.writes = append(d.writes, Write{Quantity: quantity, Value: value})
	return nil
}

func (d *Device) WriteRate(_ context.Context, value float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rate = value
	return nil
}

func (d *Device) Status(_ context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.statusScript) > 0 {
		s := d.statusScript[0]
		d.statusScript = d.statusScript[1:]
		return s, nil
	}
	return d.status, nil
}

func (d *Device) RampToSetpoint(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = instrument.StatusMoving
	return nil
}

func (d *Device) Hold(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = instrument.StatusHold
	return nil
}

// Set stores a value without recording a write (test setup).
func (d *Device) Set(quantity string, value float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[quantity] = value
}

// SetStatus overrides the reported motion status (test setup).
func (d *Device) SetStatus(status string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = status
}

// ScriptStatus queues canned Status replies, consumed one per call.
func (d *Device) ScriptStatus(statuses ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statusScript = append(d.statusScript, statuses...)
}

// Script queues canned readings for a quantity, consumed one per Read.
func (d *Device) Script(quantity string, readings ...float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts[quantity] = append(d.scripts[quantity], readings...)
}

// Writes returns all setpoint commands received so far.
func (d *Device) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Write, len(d.writes))
	copy(out, d.writes)
	return out
}

// Rate returns the last rate command received.
func (d *Device) Rate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate
}
