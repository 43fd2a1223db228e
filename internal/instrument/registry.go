package instrument

import (
	"context"
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/qtmlab/sweeprig/internal/ctxlog"
)

// Spec carries everything a driver factory needs to build one device, as
// decoded from a rig file's device block.
type Spec struct {
	Name    string
	Driver  string
	Class   DeviceClass
	Address string
	Options map[string]cty.Value
}

// Factory builds a connected device from its rig spec.
type Factory func(ctx context.Context, spec Spec) (Device, error)

// Registry holds the driver factories compiled into the binary and the
// devices instantiated for one run. Devices are keyed by their rig name.
type Registry struct {
	factories map[string]Factory
	devices   map[string]Device
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		devices:   make(map[string]Device),
	}
}

// RegisterDriver registers a driver factory under a name. Registering the
// same name twice is a programmer error.
func (r *Registry) RegisterDriver(name string, f Factory) {
	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("driver %q already registered", name))
	}
	r.factories[name] = f
}

// Drivers returns the registered driver names, sorted.
func (r *Registry) Drivers() []string {
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Open instantiates a device from its spec and registers it under
// spec.Name. Duplicate device names are rejected.
func (r *Registry) Open(ctx context.Context, spec Spec) (Device, error) {
	logger := ctxlog.FromContext(ctx)
	f, ok := r.factories[spec.Driver]
	if !ok {
		return nil, fmt.Errorf("device %q: no driver named %q (have %v)", spec.Name, spec.Driver, r.Drivers())
	}
	if _, exists := r.devices[spec.Name]; exists {
		return nil, fmt.Errorf("device name %q declared twice", spec.Name)
	}
	dev, err := f(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("device %q: %w", spec.Name, err)
	}
	r.devices[spec.Name] = dev
	logger.Debug("Device opened.", "name", spec.Name, "driver", spec.Driver, "class", spec.Class.String())
	return dev, nil
}

// Add registers an already-constructed device (used by tests and embedders).
func (r *Registry) Add(dev Device) error {
	if _, exists := r.devices[dev.Name()]; exists {
		return fmt.Errorf("device name %q declared twice", dev.Name())
	}
	r.devices[dev.Name()] = dev
	return nil
}

// Device looks up a registered device by name.
func (r *Registry) Device(name string) (Device, error) {
	dev, ok := r.devices[name]
	if !ok {
		return nil, fmt.Errorf("no device named %q", name)
	}
	return dev, nil
}

// Resolve turns a "device.quantity" pair into a Ref.
func (r *Registry) Resolve(device, quantity string) (Ref, error) {
	dev, err := r.Device(device)
	if err != nil {
		return Ref{}, err
	}
	return Ref{Device: dev, Quantity: quantity}, nil
}
