// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package swapchain implements the presentation
// strategies: a compositor-mediated driver swapchain, a
// direct kernel scanout ring and a leased scanout.
// All of them expose the same acquire/present contract.
package swapchain

import (
	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
)

// Status is the outcome of an acquire or present
// operation that did not fail.
type Status int

// Status values.
// OutOfDate and Suboptimal mean that the swap chain must
// be recreated; they are not errors.
const (
	OK Status = iota
	OutOfDate
	Suboptimal
)

func (s Status) String() string {
	switch s {
	case OutOfDate:
		return "out-of-date"
	case Suboptimal:
		return "suboptimal"
	}
	return "ok"
}

// ErrImageCount means that the presentation engine cannot
// provide at least two images.
var ErrImageCount = errors.New("swapchain: fewer than 2 presentable images")

// ErrUsage means that the presentable images cannot be
// used as color targets.
var ErrUsage = errors.New("swapchain: images cannot be rendered to")

// ErrNotCreated means that an operation that requires
// images was called before Create.
var ErrNotCreated = errors.New("swapchain: not created")

// ErrNoLeaseOutput means that no output can be leased.
var ErrNoLeaseOutput = errors.New("swapchain: no output available for lease")

// ErrLeaseDenied means that the lease request was
// refused.
var ErrLeaseDenied = errors.New("swapchain: lease denied")

// GPU is the set of device objects that a swap chain
// needs. It is implemented by engine.Device.
type GPU interface {
	Instance() driver.Instance
	Device() driver.Device
	Queue() driver.Queue
	CmdPool() driver.CmdPool
	FindMemoryType(typeBits uint32, props driver.MemProp) (int, error)
}

// Config configures a swap chain.
// Images is a hint; zero selects the variant's default.
type Config struct {
	Width  int
	Height int
	VSync  bool
	Images int
}

// Image is a presentable image.
// FB is the kernel framebuffer id for scanout variants.
type Image struct {
	Image driver.Image
	View  driver.ImageView
	FB    uint32
}

// SwapChain is the interface that all presentation
// strategies implement.
type SwapChain interface {
	// Create creates the images. It returns the image
	// count.
	Create(width, height int) (int, error)

	// Acquire blocks until an image is available and
	// returns its index. signal is signaled when the
	// image can be written.
	// With OutOfDate the index is -1 and signal is left
	// untouched; with Suboptimal the index is valid and
	// signal will be signaled.
	Acquire(signal driver.Semaphore) (int, Status, error)

	// Present presents the image identified by index
	// once wait is signaled.
	Present(q driver.Queue, index int, wait driver.Semaphore) (Status, error)

	// Recreate replaces every image. Existing Image
	// values become invalid.
	// The device must be idle.
	Recreate(width, height int) error

	// Destroy destroys the swap chain.
	Destroy()

	// Images returns the presentable images.
	Images() []Image

	// Format returns the pixel format of the images.
	Format() driver.PixelFmt

	// Extent returns the size of the images.
	Extent() (width, height int)

	// Layout returns the layout in which the render pass
	// must leave the images.
	Layout() driver.Layout

	// Formats returns the formats that could have been
	// chosen.
	Formats() ([]driver.SurfaceFormat, error)

	// PresentModes returns the presentation modes that
	// could have been chosen.
	PresentModes() ([]driver.PresentMode, error)

	// ImageLimits returns the minimum and maximum image
	// counts. A maximum of zero means no limit.
	ImageLimits() (min, max int)
}

// views creates one view per image.
// On failure, views already created are destroyed.
func views(imgs []driver.Image) ([]Image, error) {
	res := make([]Image, len(imgs))
	for i, img := range imgs {
		v, err := img.NewView()
		if err != nil {
			destroyViews(res[:i])
			return nil, err
		}
		res[i] = Image{Image: img, View: v}
	}
	return res, nil
}

func destroyViews(imgs []Image) {
	for i := range imgs {
		if imgs[i].View != nil {
			imgs[i].View.Destroy()
			imgs[i].View = nil
		}
	}
}
