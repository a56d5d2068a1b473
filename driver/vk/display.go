// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
)

// displayNative is stored in driver.Display.Native.
type displayNative struct {
	disp vk.Display
}

// modeNative is stored in driver.DisplayMode.Native.
type modeNative struct {
	mode vk.DisplayMode
}

func (i *instance) Displays(adapter int) ([]driver.Display, error) {
	if !has(i.exts, extDisplay) {
		return nil, errors.Wrap(driver.ErrNoExtension, "vk: "+extDisplay+" not enabled")
	}
	pdev, err := i.physicalDevice(adapter)
	if err != nil {
		return nil, err
	}
	var n uint32
	if err := checkResult(vk.GetPhysicalDeviceDisplayProperties(pdev, &n, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.DisplayProperties, n)
	if n > 0 {
		if err := checkResult(vk.GetPhysicalDeviceDisplayProperties(pdev, &n, props)); err != nil {
			return nil, err
		}
	}
	disps := make([]driver.Display, 0, n)
	for j := range props[:n] {
		props[j].Deref()
		props[j].PhysicalResolution.Deref()
		modes, err := displayModes(pdev, props[j].Display)
		if err != nil {
			return nil, err
		}
		disps = append(disps, driver.Display{
			Name:   props[j].DisplayName,
			Width:  int(props[j].PhysicalResolution.Width),
			Height: int(props[j].PhysicalResolution.Height),
			Modes:  modes,
			Native: displayNative{props[j].Display},
		})
	}
	return disps, nil
}

func displayModes(pdev vk.PhysicalDevice, disp vk.Display) ([]driver.DisplayMode, error) {
	var n uint32
	if err := checkResult(vk.GetDisplayModeProperties(pdev, disp, &n, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.DisplayModeProperties, n)
	if n > 0 {
		if err := checkResult(vk.GetDisplayModeProperties(pdev, disp, &n, props)); err != nil {
			return nil, err
		}
	}
	modes := make([]driver.DisplayMode, 0, n)
	for _, p := range props[:n] {
		p.Deref()
		p.Parameters.Deref()
		p.Parameters.VisibleRegion.Deref()
		modes = append(modes, driver.DisplayMode{
			Width:      int(p.Parameters.VisibleRegion.Width),
			Height:     int(p.Parameters.VisibleRegion.Height),
			RefreshMHz: int(p.Parameters.RefreshRate),
			Native:     modeNative{p.DisplayMode},
		})
	}
	return modes, nil
}

// displayPlane returns the index of the first plane that
// can be used with disp.
func displayPlane(pdev vk.PhysicalDevice, disp vk.Display) (uint32, error) {
	var n uint32
	if err := checkResult(vk.GetPhysicalDeviceDisplayPlaneProperties(pdev, &n, nil)); err != nil {
		return 0, err
	}
	for plane := uint32(0); plane < n; plane++ {
		var m uint32
		if err := checkResult(vk.GetDisplayPlaneSupportedDisplays(pdev, plane, &m, nil)); err != nil {
			return 0, err
		}
		disps := make([]vk.Display, m)
		if m > 0 {
			if err := checkResult(vk.GetDisplayPlaneSupportedDisplays(pdev, plane, &m, disps)); err != nil {
				return 0, err
			}
		}
		for _, d := range disps[:m] {
			if d == disp {
				return plane, nil
			}
		}
	}
	return 0, errors.Wrap(driver.ErrCannotPresent, "vk: no display plane supports the display")
}

func (i *instance) NewDisplaySurface(adapter int, disp driver.Display, mode driver.DisplayMode) (driver.Surface, error) {
	if !has(i.exts, extDisplay) {
		return nil, errors.Wrap(driver.ErrNoExtension, "vk: "+extDisplay+" not enabled")
	}
	pdev, err := i.physicalDevice(adapter)
	if err != nil {
		return nil, err
	}
	dn, ok := disp.Native.(displayNative)
	if !ok {
		return nil, errors.New("vk: display was not enumerated by this driver")
	}
	mn, ok := mode.Native.(modeNative)
	if !ok {
		return nil, errors.New("vk: display mode was not enumerated by this driver")
	}
	plane, err := displayPlane(pdev, dn.disp)
	if err != nil {
		return nil, err
	}
	var sf vk.Surface
	err = checkResult(vk.CreateDisplayPlaneSurface(i.inst, &vk.DisplaySurfaceCreateInfo{
		SType:           vk.StructureTypeDisplaySurfaceCreateInfo,
		DisplayMode:     mn.mode,
		PlaneIndex:      plane,
		PlaneStackIndex: 0,
		Transform:       vk.SurfaceTransformIdentityBit,
		GlobalAlpha:     1,
		AlphaMode:       vk.DisplayPlaneAlphaOpaqueBit,
		ImageExtent:     vk.Extent2D{Width: uint32(mode.Width), Height: uint32(mode.Height)},
	}, nil, &sf))
	if err != nil {
		return nil, errors.WithMessage(err, "vk: vkCreateDisplayPlaneSurfaceKHR")
	}
	return &surface{inst: i, sf: sf}, nil
}
