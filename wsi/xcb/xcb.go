// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build linux

// Package xcb implements window backends on the X Window
// System: a desktop window presented through the
// compositor (xcb) and an output leased from the X server
// through RandR (lease).
//
// libxcb and libxcb-randr are loaded at run time, so the
// binary starts on systems without X.
//
// Importing the package registers the xcb and lease
// backends.
package xcb

// #cgo linux LDFLAGS: -ldl
// #include <dlfcn.h>
// #include <stdlib.h>
// #include "wsi_xcb.h"
import "C"

import (
	"os"
	"sync"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/internal/logging"
	"github.com/gviegas/vkdemo/wsi"
)

// ErrConnect means that the X server could not be
// reached.
var ErrConnect = errors.New("xcb: cannot connect to X server")

// Shared objects, loaded once per process.
var lib struct {
	once  sync.Once
	err   error
	randr bool
}

// load opens the shared libraries and fetches function
// pointers. It is not safe to call any of the C wrappers
// unless it succeeds, nor the RandR ones unless lib.randr
// is set.
func load() error {
	lib.once.Do(func() {
		h, err := dlopen("libxcb.so.1")
		if err != nil {
			lib.err = err
			return
		}
		if i := C.loadXCB(h); i >= 0 {
			C.dlclose(h)
			lib.err = errors.Errorf("xcb: failed to fetch symbol %s", C.GoString(C.nameOfXCB(i)))
			return
		}
		h, err = dlopen("libxcb-randr.so.0")
		if err != nil {
			logging.Logger().Debug("randr unavailable", "err", err)
			return
		}
		if i := C.loadRandR(h); i >= 0 {
			C.dlclose(h)
			logging.Logger().Debug("randr unavailable", "missing", C.GoString(C.nameOfRandR(i)))
			return
		}
		lib.randr = true
	})
	return lib.err
}

func dlopen(name string) (unsafe.Pointer, error) {
	s := C.CString(name)
	defer C.free(unsafe.Pointer(s))
	h := C.dlopen(s, C.RTLD_LAZY|C.RTLD_LOCAL)
	if h == nil {
		return nil, errors.Errorf("xcb: failed to open %s", name)
	}
	return h, nil
}

// Interned atoms.
const (
	atomProtocols = iota
	atomDelete
	atomName
	atomUTF8
	atomClass
	atomState
	atomFullscreen
	atomNonDesktop
	atomCount
)

var atomNames = [atomCount]string{
	atomProtocols:  "WM_PROTOCOLS",
	atomDelete:     "WM_DELETE_WINDOW",
	atomName:       "WM_NAME",
	atomUTF8:       "UTF8_STRING",
	atomClass:      "WM_CLASS",
	atomState:      "_NET_WM_STATE",
	atomFullscreen: "_NET_WM_STATE_FULLSCREEN",
	atomNonDesktop: "non-desktop",
}

// Conn is a connection to the X server, set up for the
// default screen.
type Conn struct {
	c      *C.xcb_connection_t
	root   C.xcb_window_t
	visual C.xcb_visualid_t
	white  C.uint32_t
	rootW  int
	rootH  int
	atoms  [atomCount]C.xcb_atom_t
	// RandR version, zero if unavailable.
	randr [2]int
}

// Connect connects to the X server named by display, or
// by $DISPLAY if display is empty.
func Connect(display string) (*Conn, error) {
	if err := load(); err != nil {
		return nil, err
	}
	if display == "" && os.Getenv("DISPLAY") == "" {
		return nil, errors.Wrap(ErrConnect, "DISPLAY not set")
	}
	var name *C.char
	if display != "" {
		name = C.CString(display)
		defer C.free(unsafe.Pointer(name))
	}
	var screen C.int
	c := &Conn{c: C.connectXCB(name, &screen)}
	if res := C.connectionHasErrorXCB(c.c); res != 0 {
		if c.c != nil {
			C.disconnectXCB(c.c)
		}
		return nil, errors.Wrapf(ErrConnect, "connection error %d", int(res))
	}
	setup := C.getSetupXCB(c.c)
	if setup == nil {
		C.disconnectXCB(c.c)
		return nil, errors.Wrap(ErrConnect, "no setup")
	}
	it := C.setupRootsIteratorXCB(setup)
	for ; screen > 0 && it.rem > 1; screen-- {
		C.screenNextXCB(&it)
	}
	c.root = it.data.root
	c.visual = it.data.root_visual
	c.white = it.data.white_pixel
	c.rootW = int(it.data.width_in_pixels)
	c.rootH = int(it.data.height_in_pixels)

	// Send every request before waiting on any reply.
	var cookies [atomCount]C.xcb_intern_atom_cookie_t
	for i, name := range atomNames {
		s := C.CString(name)
		cookies[i] = C.internAtomXCB(c.c, 0, C.uint16_t(len(name)), s)
		C.free(unsafe.Pointer(s))
	}
	for i := range cookies {
		var gerr *C.xcb_generic_error_t
		reply := C.internAtomReplyXCB(c.c, cookies[i], &gerr)
		if gerr != nil || reply == nil {
			C.free(unsafe.Pointer(gerr))
			C.free(unsafe.Pointer(reply))
			C.disconnectXCB(c.c)
			return nil, errors.Errorf("xcb: intern atom %s failed", atomNames[i])
		}
		c.atoms[i] = reply.atom
		C.free(unsafe.Pointer(reply))
	}
	if lib.randr {
		if major, minor, err := c.queryVersion(); err == nil {
			c.randr = [2]int{major, minor}
		}
	}
	return c, nil
}

// check waits for the completion of a checked request.
func (c *Conn) check(cookie C.xcb_void_cookie_t, what string) error {
	if gerr := C.requestCheckXCB(c.c, cookie); gerr != nil {
		code := int(gerr.error_code)
		C.free(unsafe.Pointer(gerr))
		return errors.Errorf("xcb: %s failed (error %d)", what, code)
	}
	return nil
}

// flush sends buffered requests.
func (c *Conn) flush() error {
	if C.flushXCB(c.c) <= 0 {
		return c.Err()
	}
	return nil
}

// Err returns wsi.ErrDisconnected if the connection was
// shut down because of an error.
func (c *Conn) Err() error {
	if res := C.connectionHasErrorXCB(c.c); res != 0 {
		return errors.Wrapf(wsi.ErrDisconnected, "xcb: connection error %d", int(res))
	}
	return nil
}

// poll returns the next queued event, if any.
func (c *Conn) poll() (rawEvent, bool) {
	ev := C.pollForEventXCB(c.c)
	if ev == nil {
		return rawEvent{}, false
	}
	defer C.free(unsafe.Pointer(ev))
	var dst C.eventXCB
	C.decodeXCB(ev, &dst)
	return rawEvent{
		typ:     uint8(dst._type),
		detail:  uint8(dst.detail),
		state:   uint16(dst.state),
		x:       int(dst.x),
		y:       int(dst.y),
		width:   int(dst.width),
		height:  int(dst.height),
		window:  uint32(dst.window),
		msgType: uint32(dst.msgType),
		data0:   uint32(dst.data0),
	}, true
}

// setProperty replaces a property of win.
func (c *Conn) setProperty(win C.xcb_window_t, prop, typ C.xcb_atom_t, format int, data unsafe.Pointer, n int) error {
	cookie := C.changePropertyCheckedXCB(c.c, C.XCB_PROP_MODE_REPLACE, win, prop, typ, C.uint8_t(format), C.uint32_t(n), data)
	return c.check(cookie, "change property")
}

// Screens lists the outputs driven by the X server.
// Without RandR the root window is the only screen.
func (c *Conn) Screens() ([]wsi.Screen, error) {
	if c.hasRandR(1, 3) {
		outs, err := c.outputs()
		if err == nil {
			var scrs []wsi.Screen
			for _, o := range outs {
				if o.connected && o.crtc != 0 {
					scrs = append(scrs, o.screen())
				}
			}
			if len(scrs) > 0 {
				return scrs, nil
			}
		} else {
			logging.Logger().Debug("randr query failed", "err", err)
		}
	}
	return []wsi.Screen{{Name: "screen-0", Width: c.rootW, Height: c.rootH, Primary: true}}, nil
}

// Close disconnects from the X server.
func (c *Conn) Close() {
	if c.c != nil {
		C.disconnectXCB(c.c)
		c.c = nil
	}
}
