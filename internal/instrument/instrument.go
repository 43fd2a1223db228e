// Package instrument defines the capability contract between the sweep
// engine and instrument drivers. The engine never owns a device; it borrows
// handles registered by the caller for the duration of one acquisition.
package instrument

import (
	"context"
	"fmt"
)

// DeviceClass selects the motion strategy the mover applies to a device.
// It is resolved once at registration time, never by runtime type inspection.
type DeviceClass int

const (
	// Standard devices accept setpoints instantaneously and need no
	// read-back confirmation.
	Standard DeviceClass = iota
	// SlowMagnet is a magnet controller whose transport is slow enough that
	// per-step interpolation is impractical (rate command + single setpoint
	// + poll until reached).
	SlowMagnet
	// HoldRampMagnet ramps to a setpoint on command and reports a discrete
	// HOLD/MOVING status.
	HoldRampMagnet
	// SlowSource lags electrically and needs sub-stepped interpolation with
	// a read-back after every write.
	SlowSource
)

var classNames = map[string]DeviceClass{
	"standard":         Standard,
	"slow_magnet":      SlowMagnet,
	"hold_ramp_magnet": HoldRampMagnet,
	"slow_source":      SlowSource,
}

// ParseClass maps a rig-file class tag to a DeviceClass.
func ParseClass(s string) (DeviceClass, error) {
	if s == "" {
		return Standard, nil
	}
	c, ok := classNames[s]
	if !ok {
		return Standard, fmt.Errorf("unknown device class %q", s)
	}
	return c, nil
}

func (c DeviceClass) String() string {
	switch c {
	case SlowMagnet:
		return "slow_magnet"
	case HoldRampMagnet:
		return "hold_ramp_magnet"
	case SlowSource:
		return "slow_source"
	default:
		return "standard"
	}
}

// Device is the minimal surface every driver exposes. Quantities are
// resolved by name at call time; a name the device does not advertise is a
// contract violation reported as *CapabilityError.
type Device interface {
	Name() string
	Class() DeviceClass
	Read(ctx context.Context, quantity string) (float64, error)
	Write(ctx context.Context, quantity string, value float64) error
}

// RateWriter is implemented by devices that accept a sweep-rate command.
type RateWriter interface {
	WriteRate(ctx context.Context, value float64) error
}

// Magnet status values reported by StatusReader implementations.
const (
	StatusHold   = "HOLD"
	StatusMoving = "MOVING"
)

// StatusReader is implemented by devices that report a discrete motion
// status (HOLD vs MOVING).
type StatusReader interface {
	Status(ctx context.Context) (string, error)
}

// Ramper is implemented by hold/ramp magnets that move only when told to.
type Ramper interface {
	RampToSetpoint(ctx context.Context) error
	Hold(ctx context.Context) error
}

// Ref identifies one quantity on one device. Immutable once a sweep starts.
type Ref struct {
	Device   Device
	Quantity string
}

func (r Ref) String() string {
	return r.Device.Name() + "." + r.Quantity
}

// CapabilityError reports a request for a quantity or operation a device
// does not advertise. It is fatal: the engine cannot proceed without the
// capability.
type CapabilityError struct {
	Device    string
	Quantity  string
	Operation string // "read", "write", "write_rate", ...
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("device %q has no %s capability for quantity %q", e.Device, e.Operation, e.Quantity)
}
