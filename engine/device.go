// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/internal/logging"
)

// DeviceConfig configures the creation of a Device.
type DeviceConfig struct {
	AppName    string
	Extensions []string
	Validation bool
	GPU        int
}

// Device owns the API instance, the logical device with
// its graphics queue, a pipeline cache and a command pool.
// It implements swapchain.GPU.
type Device struct {
	inst    driver.Instance
	adapter driver.Adapter
	dev     driver.Device
	cache   driver.PipelineCache
	pool    driver.CmdPool
}

// NewDevice opens drv and creates a device on the
// adapter identified by cfg.GPU.
// The adapter must have a graphics queue family.
func NewDevice(drv driver.Driver, cfg DeviceConfig) (*Device, error) {
	inst, err := drv.Open(driver.Config{
		AppName:    cfg.AppName,
		Extensions: cfg.Extensions,
		Validation: cfg.Validation,
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "engine: open %s driver", drv.Name())
	}
	d := &Device{inst: inst}
	if err := d.init(cfg.GPU); err != nil {
		d.Destroy()
		return nil, err
	}
	logging.Logger().Info("device created",
		"adapter", d.adapter.Name,
		"type", d.adapter.Type.String(),
		"family", d.dev.QueueFamily(),
		"extensions", len(cfg.Extensions))
	return d, nil
}

func (d *Device) init(gpu int) error {
	adapters, err := d.inst.Adapters()
	if err != nil {
		return err
	}
	if gpu < 0 {
		gpu = 0
	}
	if gpu >= len(adapters) {
		return errors.Wrapf(driver.ErrNoDevice, "engine: gpu %d requested, %d available", gpu, len(adapters))
	}
	d.adapter = adapters[gpu]
	family := d.adapter.GraphicsFamily()
	if family < 0 {
		return errors.Wrapf(ErrNoQueue, "engine: %s", d.adapter.Name)
	}
	if d.dev, err = d.inst.NewDevice(d.adapter.Index, family); err != nil {
		return err
	}
	if d.cache, err = d.dev.NewPipelineCache(); err != nil {
		return err
	}
	d.pool, err = d.dev.NewCmdPool()
	return err
}

// Instance returns the API instance.
func (d *Device) Instance() driver.Instance { return d.inst }

// Device returns the logical device.
func (d *Device) Device() driver.Device { return d.dev }

// Queue returns the graphics queue.
func (d *Device) Queue() driver.Queue { return d.dev.Queue() }

// CmdPool returns the command pool.
func (d *Device) CmdPool() driver.CmdPool { return d.pool }

// PipelineCache returns the pipeline cache.
func (d *Device) PipelineCache() driver.PipelineCache { return d.cache }

// Adapter returns the selected adapter.
func (d *Device) Adapter() driver.Adapter { return d.adapter }

// FindMemoryType returns the index of the first memory
// type allowed by typeBits that has every property in
// props.
func (d *Device) FindMemoryType(typeBits uint32, props driver.MemProp) (int, error) {
	for i, mt := range d.dev.MemoryTypes() {
		if i < 32 && typeBits&(1<<i) != 0 && mt.Props&props == props {
			return i, nil
		}
	}
	return -1, errors.Wrapf(ErrNoMemoryType, "engine: type bits %#b, properties %#x", typeBits, props)
}

// Depth formats in order of preference.
var depthFormats = [...]driver.PixelFmt{
	driver.D32f,
	driver.D32fS8ui,
	driver.D24unS8ui,
	driver.D16un,
}

// DepthFormat returns the preferred depth format that
// can be used as a depth target.
func (d *Device) DepthFormat() (driver.PixelFmt, error) {
	for _, f := range depthFormats {
		if d.dev.FormatFeatures(f)&driver.FDSTarget != 0 {
			return f, nil
		}
	}
	return driver.FUndefined, ErrNoDepthFormat
}

// alloc allocates and binds memory for a resource.
func (d *Device) alloc(req driver.MemReq, props driver.MemProp, bind func(driver.Memory, int64) error) (driver.Memory, error) {
	typ, err := d.FindMemoryType(req.TypeBits, props)
	if err != nil {
		return nil, err
	}
	mem, err := d.dev.Alloc(req.Size, typ)
	if err != nil {
		return nil, err
	}
	if err := bind(mem, 0); err != nil {
		mem.Destroy()
		return nil, err
	}
	return mem, nil
}

// Destroy destroys the command pool, the pipeline cache,
// the device and the instance, in this order.
// Every other object created from d must have been
// destroyed.
func (d *Device) Destroy() {
	if d.pool != nil {
		d.pool.Destroy()
		d.pool = nil
	}
	if d.cache != nil {
		d.cache.Destroy()
		d.cache = nil
	}
	if d.dev != nil {
		d.dev.Destroy()
		d.dev = nil
	}
	if d.inst != nil {
		d.inst.Destroy()
		d.inst = nil
	}
}

// ListGPUs writes a line describing each adapter of drv
// to w and returns how many there are.
// No device is created.
func ListGPUs(drv driver.Driver, w io.Writer) (int, error) {
	inst, err := drv.Open(driver.Config{AppName: "listgpus"})
	if err != nil {
		return 0, errors.WithMessagef(err, "engine: open %s driver", drv.Name())
	}
	defer inst.Destroy()
	adapters, err := inst.Adapters()
	if err != nil {
		return 0, err
	}
	if len(adapters) == 0 {
		return 0, errors.Wrap(driver.ErrNoDevice, "engine: no adapters")
	}
	for i, a := range adapters {
		graphics := ""
		if a.GraphicsFamily() < 0 {
			graphics = ", no graphics queue"
		}
		_, err := fmt.Fprintf(w, "%d: %s (%s, %04x:%04x, %s%s)\n",
			i, a.Name, a.Type, a.VendorID, a.DeviceID, a.APIVersion, graphics)
		if err != nil {
			return i, err
		}
	}
	return len(adapters), nil
}
