// Copyright 2023 Gustavo C. Viegas. All rights reserved.

//go:build linux

// Package display implements a window backend that
// presents on a display plane through the graphics API's
// direct display support, without a window system.
// Keyboard input is read from the controlling terminal.
//
// Importing the package registers the khr-display backend.
package display

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/internal/logging"
	"github.com/gviegas/vkdemo/swapchain"
	"github.com/gviegas/vkdemo/wsi"
)

func init() {
	wsi.Register(wsi.KHRDisplay, New)
}

// Extensions needed for display plane surfaces.
const (
	extSurface = "VK_KHR_surface"
	extDisplay = "VK_KHR_display"
)

// Backend implements wsi.Backend on a VK_KHR_display
// plane surface.
type Backend struct {
	wsi.Lifecycle
	opts  wsi.Options
	tty   *wsi.TTY
	queue wsi.Queue
	sf    driver.Surface
	disp  driver.Display
	mode  driver.DisplayMode

	// Stdin is the terminal to read input from.
	Stdin *os.File
}

// New creates a new khr-display backend.
func New(opts wsi.Options) wsi.Backend {
	return &Backend{opts: opts, Stdin: os.Stdin}
}

// Kind implements wsi.Backend.
func (b *Backend) Kind() wsi.Kind { return wsi.KHRDisplay }

// Init opens the terminal for input.
// Displays can only be enumerated once an instance
// exists, so they are chosen in CheckSupport.
func (b *Backend) Init() error {
	if err := b.Connected(); err == nil {
		return nil
	}
	tty, err := wsi.OpenTTY(int(b.Stdin.Fd()))
	if err != nil {
		return err
	}
	b.tty = tty
	b.SetConnected()
	return nil
}

// RequiredExtensions implements wsi.Backend.
func (b *Backend) RequiredExtensions() []string { return []string{extSurface, extDisplay} }

// CheckSupport picks a display and mode on gpu's adapter
// and creates the plane surface.
func (b *Backend) CheckSupport(gpu swapchain.GPU) error {
	if err := b.Connected(); err != nil {
		return err
	}
	if b.sf != nil {
		return nil
	}
	adapter := gpu.Device().Adapter().Index
	disps, err := gpu.Instance().Displays(adapter)
	if err != nil {
		return errors.WithMessage(err, "display: enumerate displays")
	}
	disp, mode, ok := PickMode(disps, b.opts.Width, b.opts.Height)
	if !ok {
		return errors.Wrap(driver.ErrCannotPresent, "display: no display with a usable mode")
	}
	sf, err := gpu.Instance().NewDisplaySurface(adapter, disp, mode)
	if err != nil {
		return err
	}
	if ok, err := sf.Supported(gpu.Device()); err != nil || !ok {
		sf.Destroy()
		if err == nil {
			err = errors.Wrap(driver.ErrCannotPresent, "display: queue cannot present to display plane")
		}
		return err
	}
	b.sf, b.disp, b.mode = sf, disp, mode
	logging.Logger().Info("display selected", "display", disp.Name, "width", mode.Width, "height", mode.Height, "refresh_mhz", mode.RefreshMHz)
	b.tty.SetGraphics()
	return nil
}

// PickMode chooses a display mode.
// A mode of exactly width×height wins; otherwise the
// first mode of the first display with modes is used.
func PickMode(disps []driver.Display, width, height int) (driver.Display, driver.DisplayMode, bool) {
	for _, d := range disps {
		for _, m := range d.Modes {
			if m.Width == width && m.Height == height {
				return d, m, true
			}
		}
	}
	for _, d := range disps {
		if len(d.Modes) > 0 {
			return d, d.Modes[0], true
		}
	}
	return driver.Display{}, driver.DisplayMode{}, false
}

// InitSwapChain implements wsi.Backend.
// The plane surface is handed over to the swap chain.
func (b *Backend) InitSwapChain(gpu swapchain.GPU, cfg swapchain.Config) (swapchain.SwapChain, error) {
	if err := b.Connected(); err != nil {
		return nil, err
	}
	if err := b.CheckSupport(gpu); err != nil {
		return nil, err
	}
	sc := swapchain.NewCompositor(gpu, b.sf, cfg)
	b.sf = nil
	b.SetSurfaceReady()
	return sc, nil
}

// Iterate implements wsi.Backend.
func (b *Backend) Iterate(ctx context.Context) ([]wsi.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.Connected(); err != nil {
		return nil, err
	}
	evs, err := b.tty.Poll(0)
	if err != nil {
		return nil, err
	}
	for _, e := range evs {
		b.queue.Push(e)
	}
	evs = b.queue.Drain()
	b.Observe(evs)
	return evs, nil
}

// Size implements wsi.Backend.
// It is the size of the chosen mode, or the requested
// size before a mode is chosen.
func (b *Backend) Size() (int, int) {
	if b.mode.Width > 0 {
		return b.mode.Width, b.mode.Height
	}
	return b.opts.Width, b.opts.Height
}

// Screens lists the displays of the first adapter.
// It opens a temporary instance of the driver given in
// the options.
func (b *Backend) Screens() ([]wsi.Screen, error) {
	if b.opts.Driver == nil {
		return nil, errors.New("display: no driver to enumerate displays with")
	}
	inst, err := b.opts.Driver.Open(driver.Config{AppName: b.opts.Title, Extensions: b.RequiredExtensions()})
	if err != nil {
		return nil, err
	}
	defer inst.Destroy()
	disps, err := inst.Displays(0)
	if err != nil {
		return nil, err
	}
	scrs := make([]wsi.Screen, 0, len(disps))
	for i, d := range disps {
		scr := wsi.Screen{Name: d.Name, Width: d.Width, Height: d.Height, Primary: i == 0}
		if len(d.Modes) > 0 {
			scr.RefreshMHz = d.Modes[0].RefreshMHz
		}
		scrs = append(scrs, scr)
	}
	return scrs, nil
}

// Destroy implements wsi.Backend.
func (b *Backend) Destroy() {
	if b.sf != nil {
		b.sf.Destroy()
		b.sf = nil
	}
	if b.tty != nil {
		b.tty.Close()
		b.tty = nil
	}
	b.SetDestroyed()
}
