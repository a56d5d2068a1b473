// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vk "github.com/goki/vulkan"
)

// Extension names.
const (
	extSurface        = "VK_KHR_surface"
	extWaylandSurface = "VK_KHR_wayland_surface"
	extXCBSurface     = "VK_KHR_xcb_surface"
	extDisplay        = "VK_KHR_display"
	extSwapchain      = "VK_KHR_swapchain"
)

// instanceExts returns the names of the instance
// extensions that the implementation supports.
func instanceExts() ([]string, error) {
	var n uint32
	if err := checkResult(vk.EnumerateInstanceExtensionProperties("", &n, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, n)
	if err := checkResult(vk.EnumerateInstanceExtensionProperties("", &n, props)); err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for _, p := range props[:n] {
		p.Deref()
		names = append(names, vk.ToString(p.ExtensionName[:]))
	}
	return names, nil
}

// instanceLayers returns the names of the instance
// layers that are available.
func instanceLayers() ([]string, error) {
	var n uint32
	if err := checkResult(vk.EnumerateInstanceLayerProperties(&n, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.LayerProperties, n)
	if err := checkResult(vk.EnumerateInstanceLayerProperties(&n, props)); err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for _, p := range props[:n] {
		p.Deref()
		names = append(names, vk.ToString(p.LayerName[:]))
	}
	return names, nil
}

// deviceExts returns the names of the device extensions
// that pdev supports.
func deviceExts(pdev vk.PhysicalDevice) ([]string, error) {
	var n uint32
	if err := checkResult(vk.EnumerateDeviceExtensionProperties(pdev, "", &n, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, n)
	if err := checkResult(vk.EnumerateDeviceExtensionProperties(pdev, "", &n, props)); err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for _, p := range props[:n] {
		p.Deref()
		names = append(names, vk.ToString(p.ExtensionName[:]))
	}
	return names, nil
}

// selectExts returns the elements of want that are
// present in avail (without duplicates) and the ones
// that are missing.
func selectExts(want, avail []string) (sel, missing []string) {
	for _, w := range want {
		switch {
		case has(sel, w):
		case has(avail, w):
			sel = append(sel, w)
		default:
			missing = append(missing, w)
		}
	}
	return
}

func has(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// safeString returns s null-terminated.
func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + "\x00"
	}
	return s
}

// safeStrings returns a copy of list with every element
// null-terminated.
func safeStrings(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	s := make([]string, len(list))
	for i := range list {
		s[i] = safeString(list[i])
	}
	return s
}
