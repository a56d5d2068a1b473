// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build linux

package wayland

// #include <stdlib.h>
// #include "wsi_wayland.h"
import "C"

import (
	"context"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/internal/logging"
	"github.com/gviegas/vkdemo/swapchain"
	"github.com/gviegas/vkdemo/wsi"
)

func init() {
	wsi.Register(wsi.Wayland, New)
	wsi.Register(wsi.WaylandShell, NewShell)
}

// Extensions needed for Wayland surfaces.
const (
	extSurface        = "VK_KHR_surface"
	extWaylandSurface = "VK_KHR_wayland_surface"
)

// Round trips to wait for the first configuration.
const maxConfigureTrips = 8

// Backend implements wsi.Backend on a Wayland surface.
type Backend struct {
	wsi.Lifecycle
	kind     wsi.Kind
	opts     wsi.Options
	conn     *Conn
	surface  *C.struct_wl_surface
	xsurface *C.struct_xdg_surface
	toplevel *C.struct_xdg_toplevel
	shsurf   *C.struct_wl_shell_surface
	sf       driver.Surface

	// Display names the compositor socket.
	// $WAYLAND_DISPLAY is used if empty.
	Display string
}

// New creates a new xdg-shell backend.
func New(opts wsi.Options) wsi.Backend {
	return &Backend{kind: wsi.Wayland, opts: opts}
}

// NewShell creates a new wl_shell backend.
func NewShell(opts wsi.Options) wsi.Backend {
	return &Backend{kind: wsi.WaylandShell, opts: opts}
}

// Kind implements wsi.Backend.
func (b *Backend) Kind() wsi.Kind { return b.kind }

// Init connects to the compositor and creates the
// surface. For xdg-shell it returns after the first
// configuration is acknowledged.
func (b *Backend) Init() error {
	if err := b.Connected(); err == nil {
		return nil
	}
	if b.opts.Width <= 0 || b.opts.Height <= 0 {
		return errors.Errorf("wayland: invalid window size %dx%d", b.opts.Width, b.opts.Height)
	}
	conn, err := Connect(b.Display)
	if err != nil {
		return err
	}
	b.conn = conn
	conn.in.width, conn.in.height = b.opts.Width, b.opts.Height
	b.surface = C.wl_compositor_create_surface(conn.compositor)
	if b.surface == nil {
		b.release()
		return errors.New("wayland: create surface failed")
	}
	if b.kind == wsi.WaylandShell {
		err = b.initShell()
	} else {
		err = b.initXDG()
	}
	if err != nil {
		b.release()
		return err
	}
	w, h := b.Size()
	logging.Logger().Info("wayland surface configured", "shell", b.kind, "width", w, "height", h, "outputs", len(conn.outputs))
	b.SetConnected()
	return nil
}

func (b *Backend) initXDG() error {
	c := b.conn
	if c.wm == nil {
		return errors.New("wayland: compositor lacks xdg_wm_base")
	}
	b.xsurface = C.xdg_wm_base_get_xdg_surface(c.wm, b.surface)
	C.addSurfaceListenerXDG(b.xsurface, c.data())
	b.toplevel = C.xdg_surface_get_toplevel(b.xsurface)
	C.addToplevelListenerXDG(b.toplevel, c.data())
	title := C.CString(b.opts.Title)
	defer C.free(unsafe.Pointer(title))
	C.xdg_toplevel_set_title(b.toplevel, title)
	C.xdg_toplevel_set_app_id(b.toplevel, title)
	if b.opts.Fullscreen {
		C.xdg_toplevel_set_fullscreen(b.toplevel, nil)
	}
	C.wl_surface_commit(b.surface)
	for i := 0; !c.in.configured; i++ {
		if i == maxConfigureTrips {
			return errors.New("wayland: surface was never configured")
		}
		if err := c.roundtrip(); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) initShell() error {
	c := b.conn
	if c.shell == nil {
		return errors.New("wayland: compositor lacks wl_shell")
	}
	b.shsurf = C.wl_shell_get_shell_surface(c.shell, b.surface)
	C.addShellSurfaceListenerWayland(b.shsurf, c.data())
	if b.opts.Fullscreen {
		C.wl_shell_surface_set_fullscreen(b.shsurf, C.WL_SHELL_SURFACE_FULLSCREEN_METHOD_DEFAULT, 0, nil)
	} else {
		C.wl_shell_surface_set_toplevel(b.shsurf)
	}
	title := C.CString(b.opts.Title)
	defer C.free(unsafe.Pointer(title))
	C.wl_shell_surface_set_title(b.shsurf, title)
	C.wl_shell_surface_set_class(b.shsurf, title)
	C.wl_surface_commit(b.surface)
	if err := c.roundtrip(); err != nil {
		return err
	}
	// wl_shell has no initial configuration.
	c.in.configured = true
	return nil
}

// RequiredExtensions implements wsi.Backend.
func (b *Backend) RequiredExtensions() []string {
	return []string{extSurface, extWaylandSurface}
}

// CheckSupport creates the Vulkan surface and verifies
// that gpu's queue can present to it.
func (b *Backend) CheckSupport(gpu swapchain.GPU) error {
	if err := b.Connected(); err != nil {
		return err
	}
	if b.sf != nil {
		return nil
	}
	sf, err := gpu.Instance().NewSurface(driver.NativeWindow{
		Platform: driver.Wayland,
		Conn:     unsafe.Pointer(b.conn.display),
		Surface:  unsafe.Pointer(b.surface),
	})
	if err != nil {
		return err
	}
	if ok, err := sf.Supported(gpu.Device()); err != nil || !ok {
		sf.Destroy()
		if err == nil {
			err = errors.Wrap(driver.ErrCannotPresent, "wayland: queue cannot present to surface")
		}
		return err
	}
	b.sf = sf
	return nil
}

// InitSwapChain implements wsi.Backend.
// The surface is handed over to the swap chain.
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
	if err := b.conn.pump(); err != nil {
		return nil, err
	}
	evs := b.conn.in.queue.Drain()
	b.Observe(evs)
	return evs, nil
}

// Size implements wsi.Backend.
func (b *Backend) Size() (int, int) {
	if b.conn == nil {
		return b.opts.Width, b.opts.Height
	}
	return b.conn.in.width, b.conn.in.height
}

// Screens implements wsi.Backend.
func (b *Backend) Screens() ([]wsi.Screen, error) {
	if err := b.Connected(); err != nil {
		return nil, err
	}
	return b.conn.Screens(), nil
}

// Destroy implements wsi.Backend.
func (b *Backend) Destroy() {
	b.release()
	b.SetDestroyed()
}

// release destroys the native objects in reverse order of
// creation.
func (b *Backend) release() {
	if b.sf != nil {
		b.sf.Destroy()
		b.sf = nil
	}
	if b.toplevel != nil {
		C.xdg_toplevel_destroy(b.toplevel)
		b.toplevel = nil
	}
	if b.xsurface != nil {
		C.xdg_surface_destroy(b.xsurface)
		b.xsurface = nil
	}
	if b.shsurf != nil {
		C.wl_shell_surface_destroy(b.shsurf)
		b.shsurf = nil
	}
	if b.surface != nil {
		C.wl_surface_destroy(b.surface)
		b.surface = nil
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}
