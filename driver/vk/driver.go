// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package vk implements driver interfaces using the Vulkan API.
package vk

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/internal/logging"
)

const driverName = "vulkan"

const validationLayer = "VK_LAYER_KHRONOS_validation"

// Driver implements driver.Driver.
type Driver struct {
	once    sync.Once
	initErr error
}

func init() {
	driver.Register(&Driver{})
}

// load loads the Vulkan library and global commands.
// It is only done once.
func (d *Driver) load() error {
	d.once.Do(func() {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			d.initErr = errors.Wrap(driver.ErrNotInstalled, err.Error())
			return
		}
		if err := vk.Init(); err != nil {
			d.initErr = errors.Wrap(driver.ErrNotInstalled, err.Error())
		}
	})
	return d.initErr
}

// Open implements driver.Driver.
func (d *Driver) Open(cfg driver.Config) (driver.Instance, error) {
	if err := d.load(); err != nil {
		return nil, err
	}
	avail, err := instanceExts()
	if err != nil {
		return nil, err
	}
	exts, missing := selectExts(cfg.Extensions, avail)
	if len(missing) > 0 {
		return nil, errors.Wrapf(driver.ErrNoExtension, "vk: %v", missing)
	}
	// VK_KHR_display is optional: only the khr-display
	// backend needs it.
	if has(avail, extDisplay) && !has(exts, extDisplay) && has(exts, extSurface) {
		exts = append(exts, extDisplay)
	}
	var layers []string
	if cfg.Validation {
		if ls, err := instanceLayers(); err == nil && has(ls, validationLayer) {
			layers = []string{validationLayer}
		} else {
			logging.Logger().Warn("validation layer not present", "layer", validationLayer)
		}
	}
	name := cfg.AppName
	if name == "" {
		name = "vkdemo"
	}
	var inst vk.Instance
	err = checkResult(vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:            vk.StructureTypeApplicationInfo,
			ApiVersion:       uint32(vk.MakeVersion(1, 1, 0)),
			PApplicationName: safeString(name),
			PEngineName:      "vkdemo\x00",
		},
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: safeStrings(exts),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
	}, nil, &inst))
	if err != nil {
		return nil, errors.WithMessage(err, "vk: vkCreateInstance")
	}
	if err := vk.InitInstance(inst); err != nil {
		vk.DestroyInstance(inst, nil)
		return nil, errors.Wrap(driver.ErrNotInstalled, err.Error())
	}
	logging.Logger().Debug("vulkan instance created", "extensions", exts, "layers", layers)
	return &instance{drv: d, inst: inst, exts: exts, layers: layers}, nil
}

// Name implements driver.Driver.
func (d *Driver) Name() string { return driverName }

// instance implements driver.Instance.
type instance struct {
	drv    *Driver
	inst   vk.Instance
	exts   []string
	layers []string
	pdevs  []vk.PhysicalDevice
}

func (i *instance) Destroy() {
	if i.inst != nil {
		vk.DestroyInstance(i.inst, nil)
		i.inst = nil
	}
}

func (i *instance) Driver() driver.Driver { return i.drv }
func (i *instance) Extensions() []string  { return append([]string(nil), i.exts...) }

func (i *instance) physicalDevices() ([]vk.PhysicalDevice, error) {
	if i.pdevs != nil {
		return i.pdevs, nil
	}
	var n uint32
	if err := checkResult(vk.EnumeratePhysicalDevices(i.inst, &n, nil)); err != nil {
		return nil, err
	}
	pdevs := make([]vk.PhysicalDevice, n)
	if n > 0 {
		if err := checkResult(vk.EnumeratePhysicalDevices(i.inst, &n, pdevs)); err != nil {
			return nil, err
		}
	}
	i.pdevs = pdevs[:n]
	return i.pdevs, nil
}

func (i *instance) physicalDevice(adapter int) (vk.PhysicalDevice, error) {
	pdevs, err := i.physicalDevices()
	if err != nil {
		return nil, err
	}
	if adapter < 0 || adapter >= len(pdevs) {
		return nil, errors.Wrapf(driver.ErrNoDevice, "vk: adapter %d of %d", adapter, len(pdevs))
	}
	return pdevs[adapter], nil
}

func (i *instance) Adapters() ([]driver.Adapter, error) {
	pdevs, err := i.physicalDevices()
	if err != nil {
		return nil, err
	}
	as := make([]driver.Adapter, len(pdevs))
	for j, pdev := range pdevs {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pdev, &props)
		props.Deref()
		as[j] = driver.Adapter{
			Index:         j,
			Name:          vk.ToString(props.DeviceName[:]),
			Type:          adapterType(props.DeviceType),
			VendorID:      props.VendorID,
			DeviceID:      props.DeviceID,
			APIVersion:    versionString(props.ApiVersion),
			QueueFamilies: queueFamilies(pdev),
		}
	}
	return as, nil
}

func queueFamilies(pdev vk.PhysicalDevice) []driver.QueueFamily {
	var n uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pdev, &n, nil)
	props := make([]vk.QueueFamilyProperties, n)
	vk.GetPhysicalDeviceQueueFamilyProperties(pdev, &n, props)
	fams := make([]driver.QueueFamily, n)
	for i := range props[:n] {
		props[i].Deref()
		flags := props[i].QueueFlags
		fams[i] = driver.QueueFamily{
			Index:    i,
			Count:    int(props[i].QueueCount),
			Graphics: flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0,
			Compute:  flags&vk.QueueFlags(vk.QueueComputeBit) != 0,
			Transfer: flags&vk.QueueFlags(vk.QueueTransferBit|vk.QueueGraphicsBit|vk.QueueComputeBit) != 0,
		}
	}
	return fams
}

func adapterType(t vk.PhysicalDeviceType) driver.AdapterType {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return driver.AdapterIntegrated
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return driver.AdapterDiscrete
	case vk.PhysicalDeviceTypeVirtualGpu:
		return driver.AdapterVirtual
	case vk.PhysicalDeviceTypeCpu:
		return driver.AdapterCPU
	}
	return driver.AdapterOther
}

// versionString formats a version created by
// VK_MAKE_API_VERSION.
func versionString(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>22&0x7f, v>>12&0x3ff, v&0xfff)
}

// checkResult returns an error derived from a VkResult value.
// If such value does not indicate an error, it returns nil instead.
func checkResult(res vk.Result) error {
	if res >= 0 {
		// Not an error: VK_ERROR_* values are all negative.
		return nil
	}
	switch res {
	case vk.ErrorOutOfHostMemory:
		return driver.ErrNoHostMemory
	case vk.ErrorOutOfDeviceMemory:
		return driver.ErrNoDeviceMemory
	case vk.ErrorDeviceLost:
		return driver.ErrDeviceLost
	case vk.ErrorExtensionNotPresent:
		return driver.ErrNoExtension
	case vk.ErrorIncompatibleDriver:
		return driver.ErrNotInstalled
	case vk.ErrorFormatNotSupported, vk.ErrorFeatureNotPresent:
		return driver.ErrUnsupported
	case vk.ErrorOutOfDate:
		return driver.ErrOutOfDate
	case vk.ErrorSurfaceLost:
		return driver.ErrCannotPresent
	}
	return errors.Wrapf(driver.ErrFatal, "vk: VkResult %d", res)
}
