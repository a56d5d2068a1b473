// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build linux

package xcb

// #include <stdlib.h>
// #include "wsi_xcb.h"
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
	wsi.Register(wsi.XCB, New)
	wsi.Register(wsi.Lease, NewLease)
}

// Extensions needed for XCB surfaces.
const (
	extSurface    = "VK_KHR_surface"
	extXCBSurface = "VK_KHR_xcb_surface"
)

// Backend implements wsi.Backend on an X window.
type Backend struct {
	wsi.Lifecycle
	opts  wsi.Options
	conn  *Conn
	win   C.xcb_window_t
	tr    translator
	queue wsi.Queue
	sf    driver.Surface

	// Display names the X server. $DISPLAY is used if
	// empty.
	Display string
}

// New creates a new xcb backend.
func New(opts wsi.Options) wsi.Backend {
	return &Backend{opts: opts}
}

// Kind implements wsi.Backend.
func (b *Backend) Kind() wsi.Kind { return wsi.XCB }

// Init connects to the X server and maps the window.
// The geometry round trip makes the window's real size
// known before Init returns.
func (b *Backend) Init() error {
	if err := b.Connected(); err == nil {
		return nil
	}
	conn, err := Connect(b.Display)
	if err != nil {
		return err
	}
	win, err := b.newWindow(conn)
	if err != nil {
		conn.Close()
		return err
	}
	b.conn, b.win = conn, win
	b.tr = translator{
		win:       uint32(win),
		protocols: uint32(conn.atoms[atomProtocols]),
		delete:    uint32(conn.atoms[atomDelete]),
	}
	b.tr.width, b.tr.height, err = b.geometry()
	if err != nil {
		b.Destroy()
		return err
	}
	logging.Logger().Info("xcb window mapped", "width", b.tr.width, "height", b.tr.height, "randr", b.conn.randr)
	b.SetConnected()
	return nil
}

func (b *Backend) newWindow(c *Conn) (C.xcb_window_t, error) {
	width, height := b.opts.Width, b.opts.Height
	if width <= 0 || height <= 0 {
		return 0, errors.Errorf("xcb: invalid window size %dx%d", width, height)
	}
	id := C.xcb_window_t(C.generateIdXCB(c.c))
	valMask := C.uint32_t(C.XCB_CW_BACK_PIXEL | C.XCB_CW_EVENT_MASK)
	valList := [2]C.uint32_t{
		0: c.white,
		1: C.XCB_EVENT_MASK_KEY_PRESS | C.XCB_EVENT_MASK_KEY_RELEASE | C.XCB_EVENT_MASK_BUTTON_PRESS | C.XCB_EVENT_MASK_BUTTON_RELEASE |
			C.XCB_EVENT_MASK_POINTER_MOTION | C.XCB_EVENT_MASK_EXPOSURE | C.XCB_EVENT_MASK_STRUCTURE_NOTIFY,
	}
	cookie := C.createWindowCheckedXCB(c.c, 0, id, c.root, 0, 0, C.uint16_t(width), C.uint16_t(height), 0,
		C.XCB_WINDOW_CLASS_INPUT_OUTPUT, c.visual, valMask, unsafe.Pointer(&valList[0]))
	if err := c.check(cookie, "create window"); err != nil {
		return 0, err
	}
	fail := func(err error) (C.xcb_window_t, error) {
		C.destroyWindowXCB(c.c, id)
		return 0, err
	}

	title := []byte(b.opts.Title)
	if len(title) > 0 {
		if err := c.setProperty(id, c.atoms[atomName], c.atoms[atomUTF8], 8, unsafe.Pointer(&title[0]), len(title)); err != nil {
			return fail(err)
		}
	}
	// Instance and class names, NUL-terminated.
	class := append(append(append(title, 0), title...), 0)
	if err := c.setProperty(id, c.atoms[atomClass], C.XCB_ATOM_STRING, 8, unsafe.Pointer(&class[0]), len(class)); err != nil {
		return fail(err)
	}
	del := c.atoms[atomDelete]
	if err := c.setProperty(id, c.atoms[atomProtocols], C.XCB_ATOM_ATOM, 32, unsafe.Pointer(&del), 1); err != nil {
		return fail(err)
	}
	if b.opts.Fullscreen {
		// Setting the state before mapping needs no
		// client message.
		fs := c.atoms[atomFullscreen]
		if err := c.setProperty(id, c.atoms[atomState], C.XCB_ATOM_ATOM, 32, unsafe.Pointer(&fs), 1); err != nil {
			return fail(err)
		}
	}
	if err := c.check(C.mapWindowCheckedXCB(c.c, id), "map window"); err != nil {
		return fail(err)
	}
	if err := c.flush(); err != nil {
		return fail(err)
	}
	return id, nil
}

// geometry queries the window's size.
func (b *Backend) geometry() (int, int, error) {
	var gerr *C.xcb_generic_error_t
	reply := C.getGeometryReplyXCB(b.conn.c, C.getGeometryXCB(b.conn.c, C.xcb_drawable_t(b.win)), &gerr)
	if gerr != nil || reply == nil {
		C.free(unsafe.Pointer(gerr))
		C.free(unsafe.Pointer(reply))
		return 0, 0, errors.New("xcb: get geometry failed")
	}
	defer C.free(unsafe.Pointer(reply))
	return int(reply.width), int(reply.height), nil
}

// RequiredExtensions implements wsi.Backend.
func (b *Backend) RequiredExtensions() []string { return []string{extSurface, extXCBSurface} }

// CheckSupport creates the window surface and verifies
// that gpu's queue can present to it.
func (b *Backend) CheckSupport(gpu swapchain.GPU) error {
	if err := b.Connected(); err != nil {
		return err
	}
	if b.sf != nil {
		return nil
	}
	sf, err := gpu.Instance().NewSurface(driver.NativeWindow{
		Platform: driver.XCB,
		Conn:     unsafe.Pointer(b.conn.c),
		Window:   uint32(b.win),
	})
	if err != nil {
		return err
	}
	if ok, err := sf.Supported(gpu.Device()); err != nil || !ok {
		sf.Destroy()
		if err == nil {
			err = errors.Wrap(driver.ErrCannotPresent, "xcb: queue cannot present to window")
		}
		return err
	}
	b.sf = sf
	return nil
}

// InitSwapChain implements wsi.Backend.
// The window surface is handed over to the swap chain.
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
	for {
		raw, ok := b.conn.poll()
		if !ok {
			break
		}
		if ev, ok := b.tr.translate(raw); ok {
			b.queue.Push(ev)
		}
	}
	if err := b.conn.Err(); err != nil {
		return nil, err
	}
	evs := b.queue.Drain()
	b.Observe(evs)
	return evs, nil
}

// Size implements wsi.Backend.
func (b *Backend) Size() (int, int) {
	if b.tr.width > 0 {
		return b.tr.width, b.tr.height
	}
	return b.opts.Width, b.opts.Height
}

// Screens implements wsi.Backend.
func (b *Backend) Screens() ([]wsi.Screen, error) {
	if err := b.Connected(); err != nil {
		return nil, err
	}
	return b.conn.Screens()
}

// Destroy implements wsi.Backend.
func (b *Backend) Destroy() {
	if b.sf != nil {
		b.sf.Destroy()
		b.sf = nil
	}
	if b.conn != nil {
		if b.win != 0 {
			C.destroyWindowXCB(b.conn.c, b.win)
			b.conn.flush()
			b.win = 0
		}
		b.conn.Close()
		b.conn = nil
	}
	b.SetDestroyed()
}
