// Package mercury drives an Oxford Mercury iPS magnet power supply over its
// TCP line protocol. Quantities are the per-axis fields fieldx/fieldy/
// fieldz; the device is a hold/ramp magnet: writing a field stores the
// target, motion starts on RampToSetpoint.
package mercury

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/qtmlab/sweeprig/internal/instrument"
)

var axisGroups = map[string]string{
	"fieldx": "GRPX",
	"fieldy": "GRPY",
	"fieldz": "GRPZ",
}

// Device is one connected Mercury iPS. All quantity writes remember the
// axis so that rate and ramp commands target the group last written.
type Device struct {
	name    string
	conn    net.Conn
	rd      *bufio.Reader
	lastGrp string
}

// Factory dials the supply at the rig's address (host:port, conventionally
// port 7020).
func Factory(_ context.Context, spec instrument.Spec) (instrument.Device, error) {
	conn, err := net.Dial("tcp", spec.Address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", spec.Address, err)
	}
	return &Device{name: spec.Name, conn: conn, rd: bufio.NewReader(conn), lastGrp: "GRPZ"}, nil
}

func (d *Device) Name() string                  { return d.name }
func (d *Device) Class() instrument.DeviceClass { return instrument.HoldRampMagnet }

func (d *Device) Read(_ context.Context, quantity string) (float64, error) {
	grp, ok := axisGroups[quantity]
	if !ok {
		return 0, &instrument.CapabilityError{Device: d.name, Quantity: quantity, Operation: "read"}
	}
	resp, err := d.query(fmt.Sprintf("READ:DEV:%s:PSU:SIG:FLD", grp))
	if err != nil {
		return 0, err
	}
	return parseField(resp)
}

func (d *Device) Write(_ context.Context, quantity string, value float64) error {
	grp, ok := axisGroups[quantity]
	if !ok {
		return &instrument.CapabilityError{Device: d.name, Quantity: quantity, Operation: "write"}
	}
	d.lastGrp = grp
	_, err := d.query(fmt.Sprintf("SET:DEV:%s:PSU:SIG:FSET:%g", grp, value))
	return err
}

// WriteRate sets the target-field ramp rate (tesla/minute) on the axis
// last written.
func (d *Device) WriteRate(_ context.Context, value float64) error {
	_, err := d.query(fmt.Sprintf("SET:DEV:%s:PSU:SIG:RFST:%g", d.lastGrp, value))
	return err
}

// RampToSetpoint issues the ramp-to-setpoint action.
func (d *Device) RampToSetpoint(context.Context) error {
	_, err := d.query(fmt.Sprintf("SET:DEV:%s:PSU:ACTN:RTOS", d.lastGrp))
	return err
}

// Hold stops the ramp and holds the present field.
func (d *Device) Hold(context.Context) error {
	_, err := d.query(fmt.Sprintf("SET:DEV:%s:PSU:ACTN:HOLD", d.lastGrp))
	return err
}

// Status reports HOLD when the supply is idle, MOVING otherwise.
func (d *Device) Status(context.Context) (string, error) {
	resp, err := d.query(fmt.Sprintf("READ:DEV:%s:PSU:ACTN", d.lastGrp))
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(strings.TrimSpace(resp), "HOLD") {
		return instrument.StatusHold, nil
	}
	return instrument.StatusMoving, nil
}

// Close closes the TCP connection.
func (d *Device) Close() error { return d.conn.Close() }

func (d *Device) query(cmd string) (string, error) {
	if _, err := d.conn.Write([]byte(cmd + "\r\n")); err != nil {
		return "", err
	}
	resp, err := d.rd.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(resp, "\r\n"), nil
}

// parseField extracts the trailing numeric field from a STAT reply such as
// "STAT:DEV:GRPZ:PSU:SIG:FLD:1.2000T".
func parseField(resp string) (float64, error) {
	parts := strings.Split(resp, ":")
	last := strings.TrimRight(parts[len(parts)-1], "T/m")
	v, err := strconv.ParseFloat(last, 64)
	if err != nil {
		return 0, fmt.Errorf("unparsable reply %q: %w", resp, err)
	}
	return v, nil
}
