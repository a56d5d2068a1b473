// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"time"
	"unsafe"

	"github.com/pkg/errors"
)

// ErrCannotPresent means that the driver and/or device do not
// support presentation.
var ErrCannotPresent = errors.New("driver: presentation not supported")

// ErrOutOfDate means that the surface changed in such a way
// that the swapchain can no longer be used for presentation.
// The swapchain must be recreated.
var ErrOutOfDate = errors.New("driver: swapchain out of date")

// ErrSuboptimal means that the swapchain can still be used
// for presentation, but no longer matches the surface
// properties exactly. When returned from Acquire, the
// image index is valid.
var ErrSuboptimal = errors.New("driver: swapchain suboptimal")

// Platform identifies a native window system.
type Platform int

// Platforms.
const (
	None Platform = iota
	Wayland
	XCB
)

func (p Platform) String() string {
	switch p {
	case Wayland:
		return "wayland"
	case XCB:
		return "xcb"
	}
	return "none"
}

// NativeWindow identifies a native window for surface
// creation.
// For Wayland, Conn is a wl_display and Surface is a
// wl_surface. For XCB, Conn is an xcb_connection_t and
// Window is the xcb_window_t.
type NativeWindow struct {
	Platform Platform
	Conn     unsafe.Pointer
	Surface  unsafe.Pointer
	Window   uint32
}

// Extent is a two-dimensional size.
type Extent struct {
	Width, Height int
}

// SurfaceCaps describes the capabilities of a surface
// when used with a specific device.
// MaxImages is zero when there is no upper limit.
// Current has negative dimensions when the surface size
// is determined by the swapchain extent.
type SurfaceCaps struct {
	MinImages int
	MaxImages int
	Current   Extent
	Min       Extent
	Max       Extent
	Usage     Usage
}

// SurfaceFormat is a pixel format and color space pair
// supported by a surface.
type SurfaceFormat struct {
	Format     PixelFmt
	ColorSpace int
}

// PresentMode is the type of presentation modes.
type PresentMode int

// Presentation modes.
const (
	Immediate PresentMode = iota
	Mailbox
	FIFO
	FIFORelaxed
)

func (m PresentMode) String() string {
	switch m {
	case Immediate:
		return "immediate"
	case Mailbox:
		return "mailbox"
	case FIFO:
		return "fifo"
	case FIFORelaxed:
		return "fifo-relaxed"
	}
	return "unknown"
}

// Surface is the interface that defines a presentation
// surface.
// A Surface must be destroyed after every swapchain
// created on it.
type Surface interface {
	Destroyer

	// Supported returns whether the device's queue can
	// present to the surface.
	Supported(dev Device) (bool, error)

	// Caps returns the surface capabilities.
	Caps(dev Device) (SurfaceCaps, error)

	// Formats returns the supported surface formats.
	Formats(dev Device) ([]SurfaceFormat, error)

	// PresentModes returns the supported presentation
	// modes.
	PresentModes(dev Device) ([]PresentMode, error)
}

// SwapchainDesc describes a swapchain.
type SwapchainDesc struct {
	Format     SurfaceFormat
	Width      int
	Height     int
	ImageCount int
	Usage      Usage
	Mode       PresentMode
}

// Swapchain is the interface that defines a n-buffered
// swapchain for presentation.
// To present, one calls Acquire to obtain the index of an
// image to target, renders into it with a pass whose final
// layout is LPresent, submits the work and then calls
// Queue.Present.
type Swapchain interface {
	Destroyer

	// Images returns the swapchain images.
	// This value remains unchanged for the lifetime of
	// the swapchain.
	Images() []Image

	// Acquire returns the index of the next writable
	// image. signal is signaled when the image can be
	// written.
	// It returns ErrOutOfDate (and no index) when the
	// swapchain must be recreated, and ErrSuboptimal
	// (with a valid index) when it should be.
	Acquire(signal Semaphore, timeout time.Duration) (int, error)
}

// DisplayMode describes a display mode.
// Native is driver-specific.
type DisplayMode struct {
	Width      int
	Height     int
	RefreshMHz int
	Native     any
}

// Display describes a display attached directly to an
// adapter.
// Native is driver-specific.
type Display struct {
	Name   string
	Width  int
	Height int
	Modes  []DisplayMode
	Native any
}
