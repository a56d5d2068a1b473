// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package sim

import (
	"time"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
)

// surface implements driver.Surface.
type surface struct {
	d          *Driver
	id         int
	caps       driver.SurfaceCaps
	outOfDate  bool
	suboptimal bool
	destroyed  bool
}

func (s *surface) Destroy() { s.d.destroy("surface", s.id, &s.destroyed) }

func (s *surface) Supported(dev driver.Device) (bool, error) { return true, nil }

func (s *surface) Caps(dev driver.Device) (driver.SurfaceCaps, error) { return s.caps, nil }

func (s *surface) Formats(dev driver.Device) ([]driver.SurfaceFormat, error) {
	return append([]driver.SurfaceFormat(nil), s.d.opts.Formats...), nil
}

func (s *surface) PresentModes(dev driver.Device) ([]driver.PresentMode, error) {
	return append([]driver.PresentMode(nil), s.d.opts.PresentModes...), nil
}

// Surface gives tests control over a sim surface.
type Surface struct{ s *surface }

// SetOutOfDate makes acquire and present operations on
// the surface's swapchains return driver.ErrOutOfDate
// until a new swapchain is created.
func (s *Surface) SetOutOfDate() { s.s.outOfDate = true }

// SetSuboptimal makes acquire and present operations on
// the surface's swapchains return driver.ErrSuboptimal
// until a new swapchain is created.
func (s *Surface) SetSuboptimal() { s.s.suboptimal = true }

// SetCurrent sets the current extent reported by the
// surface. Negative dimensions mean that the swapchain
// determines the extent.
func (s *Surface) SetCurrent(width, height int) {
	s.s.caps.Current = driver.Extent{Width: width, Height: height}
}

// SetImageLimits sets the minimum and maximum image
// counts reported by the surface.
func (s *Surface) SetImageLimits(min, max int) {
	s.s.caps.MinImages = min
	s.s.caps.MaxImages = max
}

// Swapchain returns the swapchain most recently created
// on the surface, or nil if none exists.
func (s *Surface) Swapchain() *Swapchain {
	sc := s.s.d.swapchainOf(s.s)
	if sc == nil {
		return nil
	}
	return &Swapchain{sc}
}

// Swapchain exposes a sim swapchain to tests.
type Swapchain struct{ sc *swapchain }

// Desc returns the description used to create the
// swapchain.
func (s *Swapchain) Desc() driver.SwapchainDesc { return s.sc.desc }

// Presented returns how many images were presented.
func (s *Swapchain) Presented() int { return s.sc.presented }

// Acquired returns how many images are currently
// acquired.
func (s *Swapchain) Acquired() (n int) {
	for _, img := range s.sc.images {
		if img.acquired {
			n++
		}
	}
	return
}

// swapchain implements driver.Swapchain.
type swapchain struct {
	d         *Driver
	id        int
	sf        *surface
	desc      driver.SwapchainDesc
	images    []*Image
	next      int
	retired   bool
	presented int
	destroyed bool
}

func (d *Driver) swapchainOf(sf *surface) *swapchain {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.swapchains) - 1; i >= 0; i-- {
		if d.swapchains[i].sf == sf && !d.swapchains[i].destroyed {
			return d.swapchains[i]
		}
	}
	return nil
}

func (d *device) NewSwapchain(sf driver.Surface, desc driver.SwapchainDesc, old driver.Swapchain) (driver.Swapchain, error) {
	s := sf.(*surface)
	caps := s.caps
	switch {
	case desc.ImageCount < caps.MinImages:
		return nil, d.d.violate("swapchain with %d images, min is %d", desc.ImageCount, caps.MinImages)
	case caps.MaxImages > 0 && desc.ImageCount > caps.MaxImages:
		return nil, d.d.violate("swapchain with %d images, max is %d", desc.ImageCount, caps.MaxImages)
	case desc.Width < caps.Min.Width || desc.Height < caps.Min.Height,
		desc.Width > caps.Max.Width || desc.Height > caps.Max.Height:
		return nil, d.d.violate("swapchain extent %dx%d out of range", desc.Width, desc.Height)
	case desc.Usage&^caps.Usage != 0:
		return nil, d.d.violate("swapchain usage %#x not supported", desc.Usage)
	}
	found := false
	for _, f := range d.d.opts.Formats {
		if f == desc.Format {
			found = true
		}
	}
	if !found {
		return nil, errors.Errorf("sim: surface format %v not supported", desc.Format.Format)
	}
	if old != nil {
		o := old.(*swapchain)
		if o.sf != s {
			return nil, d.d.violate("old swapchain belongs to another surface")
		}
		o.retired = true
	}
	sc := &swapchain{d: d.d, sf: s, desc: desc}
	sc.id = d.d.create("swapchain")
	sc.images = make([]*Image, desc.ImageCount)
	for i := range sc.images {
		sc.images[i] = &Image{
			d:     d.d,
			desc:  driver.ImageDesc{Format: desc.Format.Format, Width: desc.Width, Height: desc.Height, Usage: desc.Usage},
			sc:    sc,
			index: i,
		}
	}
	s.outOfDate = false
	s.suboptimal = false
	d.d.mu.Lock()
	d.d.swapchains = append(d.d.swapchains, sc)
	d.d.mu.Unlock()
	return sc, nil
}

func (s *swapchain) Destroy() { s.d.destroy("swapchain", s.id, &s.destroyed) }

func (s *swapchain) Images() []driver.Image {
	imgs := make([]driver.Image, len(s.images))
	for i := range imgs {
		imgs[i] = s.images[i]
	}
	return imgs
}

func (s *swapchain) Acquire(signal driver.Semaphore, timeout time.Duration) (int, error) {
	if s.retired || s.sf.outOfDate {
		s.d.record("acquire out-of-date")
		return -1, driver.ErrOutOfDate
	}
	sem := signal.(*semaphore)
	switch {
	case sem.signaled:
		return -1, s.d.violate("acquire with signaled semaphore s%d", sem.id)
	case sem.waitPending:
		return -1, s.d.violate("acquire with semaphore s%d that has a pending wait", sem.id)
	}
	for n := 0; n < len(s.images); n++ {
		i := (s.next + n) % len(s.images)
		img := s.images[i]
		if img.acquired {
			continue
		}
		s.next = (i + 1) % len(s.images)
		img.releaseWaits()
		img.acquired = true
		sem.signaled = true
		sem.origins = map[*Image]bool{img: true}
		s.d.record("acquire i%d", i)
		if s.sf.suboptimal {
			return i, driver.ErrSuboptimal
		}
		return i, nil
	}
	// Every image is held by the application: a real
	// driver would block until the timeout expires.
	return -1, driver.ErrTimeout
}
