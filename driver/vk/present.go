// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"time"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
)

// surface implements driver.Surface.
type surface struct {
	inst *instance
	sf   vk.Surface
}

func (s *surface) Destroy() {
	if s.sf != vk.NullSurface {
		vk.DestroySurface(s.inst.inst, s.sf, nil)
		s.sf = vk.NullSurface
	}
}

func (s *surface) Supported(dev driver.Device) (bool, error) {
	d := dev.(*device)
	var ok vk.Bool32
	if err := checkResult(vk.GetPhysicalDeviceSurfaceSupport(d.pdev, d.qfam, s.sf, &ok)); err != nil {
		return false, err
	}
	return ok == vk.True, nil
}

func (s *surface) Caps(dev driver.Device) (driver.SurfaceCaps, error) {
	d := dev.(*device)
	var caps vk.SurfaceCapabilities
	if err := checkResult(vk.GetPhysicalDeviceSurfaceCapabilities(d.pdev, s.sf, &caps)); err != nil {
		return driver.SurfaceCaps{}, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	cur := driver.Extent{Width: -1, Height: -1}
	if caps.CurrentExtent.Width != vk.MaxUint32 {
		cur = driver.Extent{Width: int(caps.CurrentExtent.Width), Height: int(caps.CurrentExtent.Height)}
	}
	return driver.SurfaceCaps{
		MinImages: int(caps.MinImageCount),
		MaxImages: int(caps.MaxImageCount),
		Current:   cur,
		Min:       driver.Extent{Width: int(caps.MinImageExtent.Width), Height: int(caps.MinImageExtent.Height)},
		Max:       driver.Extent{Width: int(caps.MaxImageExtent.Width), Height: int(caps.MaxImageExtent.Height)},
		Usage:     usage(caps.SupportedUsageFlags),
	}, nil
}

func (s *surface) Formats(dev driver.Device) ([]driver.SurfaceFormat, error) {
	d := dev.(*device)
	var n uint32
	if err := checkResult(vk.GetPhysicalDeviceSurfaceFormats(d.pdev, s.sf, &n, nil)); err != nil {
		return nil, err
	}
	vfs := make([]vk.SurfaceFormat, n)
	if err := checkResult(vk.GetPhysicalDeviceSurfaceFormats(d.pdev, s.sf, &n, vfs)); err != nil {
		return nil, err
	}
	fs := make([]driver.SurfaceFormat, 0, n)
	for i := range vfs[:n] {
		vfs[i].Deref()
		// Formats that package driver cannot express are
		// left out.
		if f := pixelFmt(vfs[i].Format); f != driver.FUndefined {
			fs = append(fs, driver.SurfaceFormat{Format: f, ColorSpace: int(vfs[i].ColorSpace)})
		}
	}
	return fs, nil
}

func (s *surface) PresentModes(dev driver.Device) ([]driver.PresentMode, error) {
	d := dev.(*device)
	var n uint32
	if err := checkResult(vk.GetPhysicalDeviceSurfacePresentModes(d.pdev, s.sf, &n, nil)); err != nil {
		return nil, err
	}
	vms := make([]vk.PresentMode, n)
	if err := checkResult(vk.GetPhysicalDeviceSurfacePresentModes(d.pdev, s.sf, &n, vms)); err != nil {
		return nil, err
	}
	ms := make([]driver.PresentMode, 0, n)
	for _, m := range vms[:n] {
		if pm, ok := presentMode(m); ok {
			ms = append(ms, pm)
		}
	}
	return ms, nil
}

// swapchain implements driver.Swapchain.
type swapchain struct {
	d      *device
	sf     *surface
	sc     vk.Swapchain
	desc   driver.SwapchainDesc
	images []driver.Image
}

func (d *device) NewSwapchain(sf driver.Surface, desc driver.SwapchainDesc, old driver.Swapchain) (driver.Swapchain, error) {
	if !has(d.exts, extSwapchain) {
		return nil, errors.Wrap(driver.ErrCannotPresent, "vk: "+extSwapchain+" not enabled")
	}
	s := sf.(*surface)
	var caps vk.SurfaceCapabilities
	if err := checkResult(vk.GetPhysicalDeviceSurfaceCapabilities(d.pdev, s.sf, &caps)); err != nil {
		return nil, err
	}
	caps.Deref()
	oldSC := vk.NullSwapchain
	if old != nil {
		oldSC = old.(*swapchain).sc
	}
	var sc vk.Swapchain
	err := checkResult(vk.CreateSwapchain(d.dev, &vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         s.sf,
		MinImageCount:   uint32(desc.ImageCount),
		ImageFormat:     convFormat(desc.Format.Format),
		ImageColorSpace: vk.ColorSpace(desc.Format.ColorSpace),
		ImageExtent: vk.Extent2D{
			Width:  uint32(desc.Width),
			Height: uint32(desc.Height),
		},
		ImageArrayLayers: 1,
		ImageUsage:       imageUsage(desc.Usage),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   compositeAlpha(caps.SupportedCompositeAlpha),
		PresentMode:      convPresentMode(desc.Mode),
		Clipped:          vk.True,
		OldSwapchain:     oldSC,
	}, nil, &sc))
	if err != nil {
		return nil, errors.WithMessage(err, "vk: vkCreateSwapchainKHR")
	}
	var n uint32
	if err := checkResult(vk.GetSwapchainImages(d.dev, sc, &n, nil)); err != nil {
		vk.DestroySwapchain(d.dev, sc, nil)
		return nil, err
	}
	vimgs := make([]vk.Image, n)
	if err := checkResult(vk.GetSwapchainImages(d.dev, sc, &n, vimgs)); err != nil {
		vk.DestroySwapchain(d.dev, sc, nil)
		return nil, err
	}
	// The driver may create more images than requested.
	desc.ImageCount = int(n)
	imgDesc := driver.ImageDesc{
		Format: desc.Format.Format,
		Width:  desc.Width,
		Height: desc.Height,
		Usage:  desc.Usage,
	}
	images := make([]driver.Image, n)
	for i := range images {
		images[i] = &image{d: d, img: vimgs[i], desc: imgDesc}
	}
	return &swapchain{d: d, sf: s, sc: sc, desc: desc, images: images}, nil
}

func compositeAlpha(supported vk.CompositeAlphaFlags) vk.CompositeAlphaFlagBits {
	for _, a := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaInheritBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
	} {
		if supported&vk.CompositeAlphaFlags(a) != 0 {
			return a
		}
	}
	return vk.CompositeAlphaOpaqueBit
}

func (s *swapchain) Destroy() {
	if s.sc != vk.NullSwapchain {
		vk.DestroySwapchain(s.d.dev, s.sc, nil)
		s.sc = vk.NullSwapchain
	}
}

func (s *swapchain) Images() []driver.Image {
	return append([]driver.Image(nil), s.images...)
}

func (s *swapchain) Acquire(signal driver.Semaphore, timeout time.Duration) (int, error) {
	var idx uint32
	res := vk.AcquireNextImage(s.d.dev, s.sc, timeoutNs(timeout), signal.(*semaphore).sem, vk.NullFence, &idx)
	switch res {
	case vk.Success:
		return int(idx), nil
	case vk.Suboptimal:
		return int(idx), driver.ErrSuboptimal
	case vk.Timeout, vk.NotReady:
		return -1, driver.ErrTimeout
	}
	return -1, checkResult(res)
}

func (q *queue) Present(sc driver.Swapchain, index int, wait []driver.Semaphore) error {
	s := sc.(*swapchain)
	if index < 0 || index >= len(s.images) {
		return errors.Errorf("vk: swapchain image index %d out of range", index)
	}
	sems := make([]vk.Semaphore, len(wait))
	for i := range wait {
		sems[i] = wait[i].(*semaphore).sem
	}
	res := vk.QueuePresent(q.q, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(sems)),
		PWaitSemaphores:    sems,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.sc},
		PImageIndices:      []uint32{uint32(index)},
	})
	if res == vk.Suboptimal {
		return driver.ErrSuboptimal
	}
	return checkResult(res)
}
