// Package scpi is a serial SCPI instrument driver. One built-in command
// table per supported model maps quantity names to query/set command pairs;
// the engine never sees raw commands.
package scpi

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.bug.st/serial"

	"github.com/qtmlab/sweeprig/internal/instrument"
)

// Command is the query/set pair behind one quantity. An empty field means
// the quantity does not support that direction.
type Command struct {
	Query string
	Set   string // fmt verb %g receives the value
}

// tables maps model names to their quantity command tables.
var tables = map[string]map[string]Command{
	"keithley2400": {
		"dcv": {Query: "SOUR:VOLT:LEV:IMM:AMPL?", Set: "SOUR:VOLT:LEV %g"},
		"dci": {Query: "SOUR:CURR:LEV:IMM:AMPL?", Set: "SOUR:CURR:LEV %g"},
		"i":   {Query: "READ?"},
	},
	"sr830": {
		"x":     {Query: "OUTP?1"},
		"y":     {Query: "OUTP?2"},
		"r":     {Query: "OUTP?3"},
		"theta": {Query: "OUTP?4"},
		"freq":  {Query: "FREQ?", Set: "FREQ %g"},
		"amp":   {Query: "SLVL?", Set: "SLVL %g"},
		"phase": {Query: "PHAS?", Set: "PHAS %g"},
		"sens":  {Query: "SENS?", Set: "SENS %g"},
	},
}

// Device talks SCPI over a serial port.
type Device struct {
	name  string
	class instrument.DeviceClass
	table map[string]Command
	port  serial.Port
}

// Factory opens the serial port named by the rig's address and selects the
// command table from the "model" option. A "sensitivity" option (full scale,
// millivolts) programs a lock-in's input range at open time.
func Factory(ctx context.Context, spec instrument.Spec) (instrument.Device, error) {
	model := "keithley2400"
	if raw, ok := spec.Options["model"]; ok {
		model = raw.AsString()
	}
	table, ok := tables[model]
	if !ok {
		return nil, fmt.Errorf("scpi driver has no command table for model %q", model)
	}

	baud := 9600
	if raw, ok := spec.Options["baud"]; ok {
		b, _ := raw.AsBigFloat().Int64()
		baud = int(b)
	}
	port, err := serial.Open(spec.Address, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", spec.Address, err)
	}
	d := &Device{name: spec.Name, class: spec.Class, table: table, port: port}

	if raw, ok := spec.Options["sensitivity"]; ok {
		mv, _ := raw.AsBigFloat().Float64()
		if err := d.SetSensitivity(ctx, mv); err != nil {
			port.Close()
			return nil, err
		}
	}
	return d, nil
}

func (d *Device) Name() string                  { return d.name }
func (d *Device) Class() instrument.DeviceClass { return d.class }

func (d *Device) Read(_ context.Context, quantity string) (float64, error) {
	cmd, ok := d.table[quantity]
	if !ok || cmd.Query == "" {
		return 0, &instrument.CapabilityError{Device: d.name, Quantity: quantity, Operation: "read"}
	}
	resp, err := d.transact(cmd.Query)
	if err != nil {
		return 0, err
	}
	// Multi-field responses (e.g. Keithley READ?) carry the reading first.
	field := strings.Split(resp, ",")[0]
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, fmt.Errorf("%s.%s: unparsable reply %q: %w", d.name, quantity, resp, err)
	}
	return v, nil
}

func (d *Device) Write(_ context.Context, quantity string, value float64) error {
	cmd, ok := d.table[quantity]
	if !ok || cmd.Set == "" {
		return &instrument.CapabilityError{Device: d.name, Quantity: quantity, Operation: "write"}
	}
	return d.send(fmt.Sprintf(cmd.Set, value))
}

// SetSensitivity programs a lock-in's input range from a full-scale value
// in millivolts, translated to the instrument's sensitivity ladder index.
func (d *Device) SetSensitivity(_ context.Context, rangeMillivolts float64) error {
	cmd, ok := d.table["sens"]
	if !ok || cmd.Set == "" {
		return &instrument.CapabilityError{Device: d.name, Quantity: "sens", Operation: "write"}
	}
	idx, err := instrument.SensitivityIndex(rangeMillivolts)
	if err != nil {
		return err
	}
	return d.send(fmt.Sprintf(cmd.Set, float64(idx)))
}

// Close releases the serial port.
func (d *Device) Close() error { return d.port.Close() }

func (d *Device) send(cmd string) error {
	_, err := d.port.Write([]byte(cmd + "\n"))
	return err
}

func (d *Device) transact(cmd string) (string, error) {
	if err := d.send(cmd); err != nil {
		return "", err
	}
	var resp []byte
	buf := make([]byte, 64)
	for {
		n, err := d.port.Read(buf)
		if err != nil {
			return "", err
		}
		resp = append(resp, buf[:n]...)
		if n == 0 || strings.ContainsAny(string(buf[:n]), "\r\n") {
			break
		}
	}
	return strings.Trim(string(resp), "\r\n"), nil
}
