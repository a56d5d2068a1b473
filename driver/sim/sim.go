// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package sim implements a deterministic, in-memory
// driver.Driver.
// Work submitted to a sim queue completes immediately,
// unless Options.Deferred is set.
// The driver validates the synchronization rules of an
// explicit API (semaphore signal/wait pairing, fence
// wait/reset discipline, swapchain image acquisition)
// and records every violation instead of failing
// silently, so that code built on package driver can be
// tested without a GPU.
package sim

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
)

// Options configures a sim Driver.
type Options struct {
	Adapters     []driver.Adapter
	Caps         driver.SurfaceCaps
	Formats      []driver.SurfaceFormat
	PresentModes []driver.PresentMode
	Displays     []driver.Display
	// DepthFormats lists the formats that support
	// depth/stencil targets.
	DepthFormats []driver.PixelFmt
	// OpenErr, if not nil, is returned by every call
	// to Open.
	OpenErr error
	// Deferred keeps submitted work in flight until a
	// fence that follows it in submission order is
	// waited on (or found signaled) or the device is
	// idle. Semaphore waits stay pending until then, and
	// a presentation's waits stay pending until its image
	// is acquired again. Signaling or acquiring with a
	// semaphore that has a pending wait is a violation.
	Deferred bool
}

// DefaultOptions returns options describing a single
// discrete adapter with one graphics queue family and an
// unrestricted surface that supports 2 to 8 images.
func DefaultOptions() Options {
	return Options{
		Adapters: []driver.Adapter{{
			Index:      0,
			Name:       "Simulated GPU",
			Type:       driver.AdapterDiscrete,
			VendorID:   0x1234,
			DeviceID:   0x5678,
			APIVersion: "1.3.0",
			QueueFamilies: []driver.QueueFamily{
				{Index: 0, Count: 1, Transfer: true},
				{Index: 1, Count: 2, Graphics: true, Compute: true, Transfer: true},
			},
		}},
		Caps: driver.SurfaceCaps{
			MinImages: 2,
			MaxImages: 8,
			Current:   driver.Extent{Width: -1, Height: -1},
			Min:       driver.Extent{Width: 1, Height: 1},
			Max:       driver.Extent{Width: 16384, Height: 16384},
			Usage:     driver.UColorTarget | driver.UCopySrc | driver.UCopyDst,
		},
		Formats:      []driver.SurfaceFormat{{Format: driver.BGRA8sRGB}, {Format: driver.BGRA8un}},
		PresentModes: []driver.PresentMode{driver.FIFO, driver.Mailbox, driver.Immediate},
		Displays: []driver.Display{{
			Name:   "sim-display-0",
			Width:  1920,
			Height: 1080,
			Modes: []driver.DisplayMode{
				{Width: 1920, Height: 1080, RefreshMHz: 60000},
				{Width: 1280, Height: 720, RefreshMHz: 60000},
			},
		}},
		DepthFormats: []driver.PixelFmt{driver.D32f, driver.D24unS8ui, driver.D16un},
	}
}

// Driver is a simulated driver.Driver.
type Driver struct {
	opts Options

	mu         sync.Mutex
	nextID     int
	live       map[string]int
	created    map[string]int
	trace      []string
	violations []string
	surfaces   []*surface
	swapchains []*swapchain
}

// New creates a new Driver.
func New(opts Options) *Driver {
	return &Driver{
		opts:    opts,
		live:    make(map[string]int),
		created: make(map[string]int),
	}
}

// Name implements driver.Driver.
func (d *Driver) Name() string { return "sim" }

// Open implements driver.Driver.
func (d *Driver) Open(cfg driver.Config) (driver.Instance, error) {
	if d.opts.OpenErr != nil {
		return nil, d.opts.OpenErr
	}
	inst := &instance{d: d, exts: append([]string(nil), cfg.Extensions...)}
	inst.id = d.create("instance")
	return inst, nil
}

// Created returns how many objects of the given kind were
// ever created.
// Kinds are: instance, device, memory, image, view, buffer,
// pass, framebuf, cmdpool, cmdbuf, fence, semaphore, cache,
// surface and swapchain.
func (d *Driver) Created(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[kind]
}

// Live returns how many objects of the given kind exist.
func (d *Driver) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live[kind]
}

// LiveAll returns a copy of the live object counts.
func (d *Driver) LiveAll() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := make(map[string]int, len(d.live))
	for k, v := range d.live {
		if v != 0 {
			m[k] = v
		}
	}
	return m
}

// Trace returns the ordered record of synchronization
// operations.
func (d *Driver) Trace() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.trace...)
}

// ResetTrace clears the trace.
func (d *Driver) ResetTrace() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trace = d.trace[:0]
}

// Violations returns every synchronization or lifetime
// rule that was broken.
func (d *Driver) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Surface returns the most recently created surface,
// or nil if none was created.
func (d *Driver) Surface() *Surface {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.surfaces) == 0 {
		return nil
	}
	return &Surface{d.surfaces[len(d.surfaces)-1]}
}

func (d *Driver) create(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.live[kind]++
	d.created[kind]++
	return d.nextID
}

func (d *Driver) destroy(kind string, id int, destroyed *bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if *destroyed {
		d.violations = append(d.violations, fmt.Sprintf("%s %d destroyed twice", kind, id))
		return
	}
	*destroyed = true
	d.live[kind]--
}

func (d *Driver) record(format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trace = append(d.trace, fmt.Sprintf(format, args...))
}

func (d *Driver) violate(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	d.mu.Lock()
	d.violations = append(d.violations, msg)
	d.mu.Unlock()
	return errors.New("sim: " + msg)
}

// instance implements driver.Instance.
type instance struct {
	d         *Driver
	id        int
	exts      []string
	destroyed bool
}

func (i *instance) Destroy()              { i.d.destroy("instance", i.id, &i.destroyed) }
func (i *instance) Driver() driver.Driver { return i.d }
func (i *instance) Extensions() []string  { return append([]string(nil), i.exts...) }

func (i *instance) Adapters() ([]driver.Adapter, error) {
	return append([]driver.Adapter(nil), i.d.opts.Adapters...), nil
}

func (i *instance) NewDevice(adapter, queueFamily int) (driver.Device, error) {
	if adapter < 0 || adapter >= len(i.d.opts.Adapters) {
		return nil, errors.Wrapf(driver.ErrNoDevice, "sim: adapter %d", adapter)
	}
	a := i.d.opts.Adapters[adapter]
	ok := false
	for _, f := range a.QueueFamilies {
		if f.Index == queueFamily && f.Count > 0 {
			ok = true
		}
	}
	if !ok {
		return nil, errors.Wrapf(driver.ErrNoDevice, "sim: queue family %d", queueFamily)
	}
	dev := &device{d: i.d, inst: i, adapter: a, family: queueFamily}
	dev.id = i.d.create("device")
	dev.queue = &queue{dev: dev}
	return dev, nil
}

func (i *instance) NewSurface(win driver.NativeWindow) (driver.Surface, error) {
	if win.Platform == driver.None {
		return nil, driver.ErrCannotPresent
	}
	return i.newSurface(i.d.opts.Caps), nil
}

func (i *instance) Displays(adapter int) ([]driver.Display, error) {
	if adapter < 0 || adapter >= len(i.d.opts.Adapters) {
		return nil, driver.ErrNoDevice
	}
	return append([]driver.Display(nil), i.d.opts.Displays...), nil
}

func (i *instance) NewDisplaySurface(adapter int, disp driver.Display, mode driver.DisplayMode) (driver.Surface, error) {
	if adapter < 0 || adapter >= len(i.d.opts.Adapters) {
		return nil, driver.ErrNoDevice
	}
	if mode.Width <= 0 || mode.Height <= 0 {
		return nil, errors.Errorf("sim: invalid display mode %dx%d", mode.Width, mode.Height)
	}
	caps := i.d.opts.Caps
	caps.Current = driver.Extent{Width: mode.Width, Height: mode.Height}
	caps.Min, caps.Max = caps.Current, caps.Current
	return i.newSurface(caps), nil
}

func (i *instance) newSurface(caps driver.SurfaceCaps) *surface {
	sf := &surface{d: i.d, caps: caps}
	sf.id = i.d.create("surface")
	i.d.mu.Lock()
	i.d.surfaces = append(i.d.surfaces, sf)
	i.d.mu.Unlock()
	return sf
}
