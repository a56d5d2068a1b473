// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"time"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/internal/logging"
)

// device implements driver.Device.
type device struct {
	inst    *instance
	pdev    vk.PhysicalDevice
	dev     vk.Device
	adapter driver.Adapter
	qfam    uint32
	queue   *queue
	mprop   vk.PhysicalDeviceMemoryProperties
	mtypes  []driver.MemoryType
	exts    []string
}

func (i *instance) NewDevice(adapter, queueFamily int) (driver.Device, error) {
	pdev, err := i.physicalDevice(adapter)
	if err != nil {
		return nil, err
	}
	as, err := i.Adapters()
	if err != nil {
		return nil, err
	}
	a := as[adapter]
	if queueFamily < 0 || queueFamily >= len(a.QueueFamilies) || a.QueueFamilies[queueFamily].Count == 0 {
		return nil, errors.Wrapf(driver.ErrNoDevice, "vk: queue family %d", queueFamily)
	}
	var exts []string
	if has(i.exts, extSurface) {
		if avail, err := deviceExts(pdev); err == nil && has(avail, extSwapchain) {
			exts = []string{extSwapchain}
		}
	}
	var dev vk.Device
	err = checkResult(vk.CreateDevice(pdev, &vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: uint32(queueFamily),
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		}},
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: safeStrings(exts),
		EnabledLayerCount:       uint32(len(i.layers)),
		PpEnabledLayerNames:     safeStrings(i.layers),
	}, nil, &dev))
	if err != nil {
		return nil, errors.WithMessage(err, "vk: vkCreateDevice")
	}
	d := &device{
		inst:    i,
		pdev:    pdev,
		dev:     dev,
		adapter: a,
		qfam:    uint32(queueFamily),
		exts:    exts,
	}
	var q vk.Queue
	vk.GetDeviceQueue(dev, d.qfam, 0, &q)
	d.queue = &queue{d: d, q: q}
	vk.GetPhysicalDeviceMemoryProperties(pdev, &d.mprop)
	d.mprop.Deref()
	for j := uint32(0); j < d.mprop.MemoryTypeCount; j++ {
		d.mprop.MemoryTypes[j].Deref()
		d.mtypes = append(d.mtypes, driver.MemoryType{
			Props: memProps(d.mprop.MemoryTypes[j].PropertyFlags),
			Heap:  int(d.mprop.MemoryTypes[j].HeapIndex),
		})
	}
	logging.Logger().Debug("vulkan device created", "adapter", a.Name, "family", queueFamily, "extensions", exts)
	return d, nil
}

func (d *device) Destroy() {
	if d.dev != nil {
		vk.DestroyDevice(d.dev, nil)
		d.dev = nil
	}
}

func (d *device) Adapter() driver.Adapter { return d.adapter }
func (d *device) QueueFamily() int        { return int(d.qfam) }
func (d *device) Queue() driver.Queue     { return d.queue }

func (d *device) MemoryTypes() []driver.MemoryType {
	return append([]driver.MemoryType(nil), d.mtypes...)
}

func (d *device) FormatFeatures(f driver.PixelFmt) driver.FormatFeature {
	vf := convFormat(f)
	if vf == vk.FormatUndefined {
		return 0
	}
	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(d.pdev, vf, &props)
	props.Deref()
	var ff driver.FormatFeature
	opt := props.OptimalTilingFeatures
	if opt&vk.FormatFeatureFlags(vk.FormatFeatureColorAttachmentBit) != 0 {
		ff |= driver.FColorTarget
	}
	if opt&vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit) != 0 {
		ff |= driver.FDSTarget
	}
	if opt&vk.FormatFeatureFlags(vk.FormatFeatureTransferSrcBit) != 0 {
		ff |= driver.FCopySrc
	}
	if opt&vk.FormatFeatureFlags(vk.FormatFeatureTransferDstBit) != 0 {
		ff |= driver.FCopyDst
	}
	return ff
}

func (d *device) WaitIdle() error {
	return checkResult(vk.DeviceWaitIdle(d.dev))
}

func memProps(flags vk.MemoryPropertyFlags) (p driver.MemProp) {
	if flags&vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit) != 0 {
		p |= driver.MemDeviceLocal
	}
	if flags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0 {
		p |= driver.MemHostVisible
	}
	if flags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit) != 0 {
		p |= driver.MemHostCoherent
	}
	if flags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostCachedBit) != 0 {
		p |= driver.MemHostCached
	}
	return
}

// queue implements driver.Queue.
type queue struct {
	d *device
	q vk.Queue
}

func (q *queue) Submit(batches []driver.Submit, f driver.Fence) error {
	infos := make([]vk.SubmitInfo, len(batches))
	for i, b := range batches {
		info := vk.SubmitInfo{SType: vk.StructureTypeSubmitInfo}
		if n := len(b.Wait); n > 0 {
			info.WaitSemaphoreCount = uint32(n)
			info.PWaitSemaphores = make([]vk.Semaphore, n)
			info.PWaitDstStageMask = make([]vk.PipelineStageFlags, n)
			for j := range b.Wait {
				info.PWaitSemaphores[j] = b.Wait[j].(*semaphore).sem
				info.PWaitDstStageMask[j] = convSync(b.Stages[j])
			}
		}
		if n := len(b.Cmds); n > 0 {
			info.CommandBufferCount = uint32(n)
			info.PCommandBuffers = make([]vk.CommandBuffer, n)
			for j := range b.Cmds {
				info.PCommandBuffers[j] = b.Cmds[j].(*cmdBuffer).cb
			}
		}
		if n := len(b.Signal); n > 0 {
			info.SignalSemaphoreCount = uint32(n)
			info.PSignalSemaphores = make([]vk.Semaphore, n)
			for j := range b.Signal {
				info.PSignalSemaphores[j] = b.Signal[j].(*semaphore).sem
			}
		}
		infos[i] = info
	}
	fen := vk.NullFence
	if f != nil {
		fen = f.(*fence).fen
	}
	return checkResult(vk.QueueSubmit(q.q, uint32(len(infos)), infos, fen))
}

func (q *queue) WaitIdle() error {
	return checkResult(vk.QueueWaitIdle(q.q))
}

// memory implements driver.Memory.
type memory struct {
	d      *device
	mem    vk.DeviceMemory
	size   int64
	props  driver.MemProp
	mapped []byte
}

func (d *device) Alloc(size int64, typeIndex int) (driver.Memory, error) {
	if typeIndex < 0 || typeIndex >= len(d.mtypes) {
		return nil, errors.Errorf("vk: invalid memory type %d", typeIndex)
	}
	var mem vk.DeviceMemory
	err := checkResult(vk.AllocateMemory(d.dev, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: uint32(typeIndex),
	}, nil, &mem))
	if err != nil {
		return nil, err
	}
	return &memory{d: d, mem: mem, size: size, props: d.mtypes[typeIndex].Props}, nil
}

func (m *memory) Destroy() {
	if m.mapped != nil {
		m.Unmap()
	}
	vk.FreeMemory(m.d.dev, m.mem, nil)
}

func (m *memory) Size() int64 { return m.size }

func (m *memory) Map() ([]byte, error) {
	if m.mapped != nil {
		return m.mapped, nil
	}
	if m.props&driver.MemHostVisible == 0 {
		return nil, errors.New("vk: memory is not host visible")
	}
	var p unsafe.Pointer
	if err := checkResult(vk.MapMemory(m.d.dev, m.mem, 0, vk.DeviceSize(m.size), 0, &p)); err != nil {
		return nil, err
	}
	m.mapped = unsafe.Slice((*byte)(p), m.size)
	return m.mapped, nil
}

func (m *memory) Unmap() {
	if m.mapped != nil {
		vk.UnmapMemory(m.d.dev, m.mem)
		m.mapped = nil
	}
}

// timeoutNs converts a timeout into nanoseconds.
// Negative values mean no timeout.
func timeoutNs(timeout time.Duration) uint64 {
	if timeout < 0 {
		return vk.MaxUint64
	}
	return uint64(timeout.Nanoseconds())
}
