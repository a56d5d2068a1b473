// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package swapchain

import (
	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/internal/logging"
)

// Compositor is a SwapChain backed by a driver swapchain
// on a window system (or display plane) surface.
type Compositor struct {
	gpu    GPU
	sf     driver.Surface
	cfg    Config
	sc     driver.Swapchain
	desc   driver.SwapchainDesc
	caps   driver.SurfaceCaps
	images []Image
}

// NewCompositor creates a new Compositor on sf.
// The Compositor takes ownership of sf and destroys it
// in Destroy.
func NewCompositor(gpu GPU, sf driver.Surface, cfg Config) *Compositor {
	return &Compositor{gpu: gpu, sf: sf, cfg: cfg}
}

// Create implements SwapChain.
func (c *Compositor) Create(width, height int) (int, error) {
	if c.sc != nil {
		return 0, errors.New("swapchain: already created")
	}
	dev := c.gpu.Device()
	ok, err := c.sf.Supported(dev)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.Wrap(driver.ErrCannotPresent, "swapchain: queue cannot present to surface")
	}
	if err := c.build(width, height, nil); err != nil {
		return 0, err
	}
	return len(c.images), nil
}

// build creates the driver swapchain and its views.
func (c *Compositor) build(width, height int, old driver.Swapchain) error {
	dev := c.gpu.Device()
	caps, err := c.sf.Caps(dev)
	if err != nil {
		return err
	}
	c.caps = caps
	n, err := imageCount(caps, c.cfg.Images)
	if err != nil {
		return err
	}
	if caps.Usage&driver.UColorTarget == 0 {
		return ErrUsage
	}
	fmts, err := c.sf.Formats(dev)
	if err != nil {
		return err
	}
	if len(fmts) == 0 {
		return errors.Wrap(driver.ErrCannotPresent, "swapchain: surface reports no formats")
	}
	modes, err := c.sf.PresentModes(dev)
	if err != nil {
		return err
	}
	if len(modes) == 0 {
		return errors.Wrap(driver.ErrCannotPresent, "swapchain: surface reports no present modes")
	}
	w, h := extent(caps, width, height)
	desc := driver.SwapchainDesc{
		Format:     chooseFormat(fmts),
		Width:      w,
		Height:     h,
		ImageCount: n,
		Usage:      driver.UColorTarget | caps.Usage&driver.UCopySrc,
		Mode:       choosePresentMode(modes, c.cfg.VSync),
	}
	sc, err := dev.NewSwapchain(c.sf, desc, old)
	if err != nil {
		return err
	}
	imgs, err := views(sc.Images())
	if err != nil {
		sc.Destroy()
		return err
	}
	c.sc = sc
	c.desc = desc
	c.desc.ImageCount = len(imgs)
	c.images = imgs
	logging.Logger().Debug("swapchain created",
		"width", w, "height", h, "images", len(imgs),
		"format", desc.Format.Format, "mode", desc.Mode)
	return nil
}

// imageCount returns one more than the minimum, clamped
// to the surface limits and overridden by want when set.
func imageCount(caps driver.SurfaceCaps, want int) (int, error) {
	n := caps.MinImages + 1
	if want > 0 {
		n = want
	}
	if n < caps.MinImages {
		n = caps.MinImages
	}
	if caps.MaxImages > 0 && n > caps.MaxImages {
		n = caps.MaxImages
	}
	if n < 2 {
		return 0, errors.Wrapf(ErrImageCount, "swapchain: surface allows %d to %d", caps.MinImages, caps.MaxImages)
	}
	return n, nil
}

// extent returns the surface's current extent if it is
// defined, or the requested size clamped to the limits.
func extent(caps driver.SurfaceCaps, width, height int) (int, int) {
	if caps.Current.Width >= 0 && caps.Current.Height >= 0 {
		return caps.Current.Width, caps.Current.Height
	}
	return clamp(width, caps.Min.Width, caps.Max.Width), clamp(height, caps.Min.Height, caps.Max.Height)
}

func clamp(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if hi > 0 && x > hi {
		return hi
	}
	return x
}

// chooseFormat prefers 8-bit UNORM formats, so that
// output is not gamma-encoded twice.
func chooseFormat(fmts []driver.SurfaceFormat) driver.SurfaceFormat {
	for _, want := range [...]driver.PixelFmt{driver.BGRA8un, driver.RGBA8un} {
		for _, f := range fmts {
			if f.Format == want {
				return f
			}
		}
	}
	return fmts[0]
}

// choosePresentMode picks FIFO when vsync is requested.
// Otherwise it prefers mailbox, then immediate, then the
// first mode reported.
func choosePresentMode(modes []driver.PresentMode, vsync bool) driver.PresentMode {
	if vsync {
		// FIFO support is mandatory.
		return driver.FIFO
	}
	for _, want := range [...]driver.PresentMode{driver.Mailbox, driver.Immediate} {
		for _, m := range modes {
			if m == want {
				return m
			}
		}
	}
	return modes[0]
}

// Acquire implements SwapChain.
func (c *Compositor) Acquire(signal driver.Semaphore) (int, Status, error) {
	if c.sc == nil {
		return -1, OK, ErrNotCreated
	}
	idx, err := c.sc.Acquire(signal, -1)
	switch {
	case err == nil:
		return idx, OK, nil
	case errors.Is(err, driver.ErrOutOfDate):
		return -1, OutOfDate, nil
	case errors.Is(err, driver.ErrSuboptimal):
		return idx, Suboptimal, nil
	}
	return -1, OK, err
}

// Present implements SwapChain.
func (c *Compositor) Present(q driver.Queue, index int, wait driver.Semaphore) (Status, error) {
	if c.sc == nil {
		return OK, ErrNotCreated
	}
	err := q.Present(c.sc, index, []driver.Semaphore{wait})
	switch {
	case err == nil:
		return OK, nil
	case errors.Is(err, driver.ErrOutOfDate):
		return OutOfDate, nil
	case errors.Is(err, driver.ErrSuboptimal):
		return Suboptimal, nil
	}
	return OK, err
}

// Recreate implements SwapChain.
// The surface is kept; the current swapchain is handed to
// the driver as the one being replaced and destroyed
// afterwards.
func (c *Compositor) Recreate(width, height int) error {
	if c.sc == nil {
		return ErrNotCreated
	}
	destroyViews(c.images)
	c.images = nil
	old := c.sc
	c.sc = nil
	err := c.build(width, height, old)
	old.Destroy()
	return err
}

// Destroy implements SwapChain.
func (c *Compositor) Destroy() {
	destroyViews(c.images)
	c.images = nil
	if c.sc != nil {
		c.sc.Destroy()
		c.sc = nil
	}
	if c.sf != nil {
		c.sf.Destroy()
		c.sf = nil
	}
}

// Images implements SwapChain.
func (c *Compositor) Images() []Image { return append([]Image(nil), c.images...) }

// Format implements SwapChain.
func (c *Compositor) Format() driver.PixelFmt { return c.desc.Format.Format }

// Extent implements SwapChain.
func (c *Compositor) Extent() (int, int) { return c.desc.Width, c.desc.Height }

// Layout implements SwapChain.
func (c *Compositor) Layout() driver.Layout { return driver.LPresent }

// Formats implements SwapChain.
func (c *Compositor) Formats() ([]driver.SurfaceFormat, error) {
	return c.sf.Formats(c.gpu.Device())
}

// PresentModes implements SwapChain.
func (c *Compositor) PresentModes() ([]driver.PresentMode, error) {
	return c.sf.PresentModes(c.gpu.Device())
}

// ImageLimits implements SwapChain.
func (c *Compositor) ImageLimits() (int, int) { return c.caps.MinImages, c.caps.MaxImages }
