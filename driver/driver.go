// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package driver defines a set of interfaces encompassing
// the explicit GPU functionality needed to render and
// present frames.
// It is designed to allow an explicit graphics API (one
// with devices, queues, command buffers, fences and
// semaphores) to be implemented in a mostly
// straightforward manner.
package driver

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/internal/logging"
)

// Driver is the interface that provides methods for
// loading an underlying implementation.
type Driver interface {
	// Open creates a new API instance.
	// cfg.Extensions lists instance-level extensions that
	// must be enabled (usually the ones required by a
	// window backend).
	Open(cfg Config) (Instance, error)

	// Name returns the name of the driver.
	// It must not cause the driver to be opened.
	Name() string
}

// Config configures the creation of an Instance.
type Config struct {
	AppName    string
	Extensions []string
	Validation bool
}

// Instance is the interface that represents an open
// API instance.
type Instance interface {
	Destroyer

	// Driver returns the Driver that created the instance.
	Driver() Driver

	// Extensions returns the names of the instance
	// extensions that were enabled.
	Extensions() []string

	// Adapters enumerates the physical devices.
	Adapters() ([]Adapter, error)

	// NewDevice creates a logical device on the given
	// adapter with a single queue from queueFamily.
	NewDevice(adapter, queueFamily int) (Device, error)

	// NewSurface creates a presentation surface for a
	// native window.
	NewSurface(win NativeWindow) (Surface, error)

	// Displays enumerates the displays directly
	// attached to the given adapter.
	Displays(adapter int) ([]Display, error)

	// NewDisplaySurface creates a presentation surface
	// that targets a display plane directly.
	NewDisplaySurface(adapter int, disp Display, mode DisplayMode) (Surface, error)
}

// Destroyer is the interface that wraps the Destroy method.
type Destroyer interface {
	// Destroy destroys the driver resource.
	// It must be called only when the resource is not
	// being used by the GPU.
	Destroy()
}

// AdapterType is the type of a physical device.
type AdapterType int

// Adapter types.
const (
	AdapterOther AdapterType = iota
	AdapterIntegrated
	AdapterDiscrete
	AdapterVirtual
	AdapterCPU
)

func (t AdapterType) String() string {
	switch t {
	case AdapterIntegrated:
		return "integrated"
	case AdapterDiscrete:
		return "discrete"
	case AdapterVirtual:
		return "virtual"
	case AdapterCPU:
		return "cpu"
	}
	return "other"
}

// QueueFamily describes a family of device queues.
type QueueFamily struct {
	Index    int
	Count    int
	Graphics bool
	Compute  bool
	Transfer bool
}

// Adapter describes a physical device.
type Adapter struct {
	Index         int
	Name          string
	Type          AdapterType
	VendorID      uint32
	DeviceID      uint32
	APIVersion    string
	QueueFamilies []QueueFamily
}

// GraphicsFamily returns the index of the first queue
// family that supports graphics, or -1 if none does.
func (a *Adapter) GraphicsFamily() int {
	for _, f := range a.QueueFamilies {
		if f.Graphics && f.Count > 0 {
			return f.Index
		}
	}
	return -1
}

// ErrNotInstalled means that a platform-specific library
// required for the driver to work is not present in the
// system.
var ErrNotInstalled = errors.New("driver: missing required library")

// ErrNoDevice means that no suitable device could be
// found.
var ErrNoDevice = errors.New("driver: no suitable device found")

// ErrNoHostMemory means that host memory could not be
// allocated.
var ErrNoHostMemory = errors.New("driver: out of host memory")

// ErrNoDeviceMemory means that device memory could not
// be allocated.
var ErrNoDeviceMemory = errors.New("driver: out of device memory")

// ErrFatal means that the driver is in an unrecoverable
// state. Upon encountering such an error, the application
// must destroy everything that it created using the
// driver and terminate.
var ErrFatal = errors.New("driver: fatal error")

// ErrDeviceLost means that the logical device can no
// longer be used.
var ErrDeviceLost = errors.New("driver: device lost")

// ErrTimeout means that a wait operation did not complete
// within the given timeout.
var ErrTimeout = errors.New("driver: wait timed out")

// ErrNoExtension means that a required extension is not
// available.
var ErrNoExtension = errors.New("driver: extension not present")

// ErrUnsupported means that the operation is not supported
// by the driver or device.
var ErrUnsupported = errors.New("driver: operation not supported")

// Drivers returns the registered Drivers.
// Client code imports specific driver packages, which
// register themselves from init. As such, drivers that do
// not register themselves on init will not be found.
func Drivers() []Driver {
	mu.Lock()
	defer mu.Unlock()
	drv := make([]Driver, len(drivers))
	copy(drv, drivers)
	return drv
}

// Lookup returns the registered Driver with the given
// name.
func Lookup(name string) (Driver, error) {
	mu.Lock()
	defer mu.Unlock()
	for _, d := range drivers {
		if d.Name() == name {
			return d, nil
		}
	}
	return nil, errors.Wrapf(ErrNotInstalled, "driver %q not registered", name)
}

// Register registers a Driver.
// Driver implementations are expected to call Register
// exactly once, from an init function.
// If a driver with the same name has already been
// registered, it will be replaced by drv.
func Register(drv Driver) {
	mu.Lock()
	defer mu.Unlock()
	for i := range drivers {
		if drivers[i].Name() == drv.Name() {
			drivers[i] = drv
			logging.Logger().Debug("driver replaced", "driver", drv.Name())
			return
		}
	}
	drivers = append(drivers, drv)
	logging.Logger().Debug("driver registered", "driver", drv.Name())
}

// Variables used for driver registration.
var (
	mu      sync.Mutex
	drivers = make([]Driver, 0, 2)
)
