// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build linux

// Package wayland implements window backends on a
// Wayland compositor, using either the xdg-shell protocol
// (wayland) or the older wl_shell protocol
// (wayland-shell).
//
// Importing the package registers both backends.
package wayland

// #cgo LDFLAGS: -lwayland-client
// #include <stdlib.h>
// #include "wsi_wayland.h"
import "C"

import (
	"fmt"
	"os"
	"runtime/cgo"
	"strings"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/internal/logging"
	"github.com/gviegas/vkdemo/wsi"
)

// ErrConnect means that the compositor could not be
// reached.
var ErrConnect = errors.New("wayland: cannot connect to compositor")

// Highest versions of the globals that the callbacks
// handle.
const (
	compositorVersion = 4
	seatVersion       = 4
	outputVersion     = 2
)

// output is a wl_output global.
type output struct {
	proxy   *C.struct_wl_output
	name    uint32
	make    string
	model   string
	x, y    int
	width   int
	height  int
	refresh int
}

func (o *output) label() string {
	if s := strings.TrimSpace(o.make + " " + o.model); s != "" {
		return s
	}
	return fmt.Sprintf("wl_output-%d", o.name)
}

// Conn is a connection to a compositor, with the globals
// the backends use bound.
type Conn struct {
	handle     cgo.Handle
	display    *C.struct_wl_display
	registry   *C.struct_wl_registry
	compositor *C.struct_wl_compositor
	shell      *C.struct_wl_shell
	wm         *C.struct_xdg_wm_base
	seat       *C.struct_wl_seat
	seatName   uint32
	keyboard   *C.struct_wl_keyboard
	pointer    *C.struct_wl_pointer
	outputs    []*output
	in         input
}

// Connect connects to the compositor named by display, or
// by $WAYLAND_DISPLAY if display is empty.
// Two round trips are made: one for the globals and one
// for the events of the bound globals, so outputs and
// input devices are known when Connect returns.
func Connect(display string) (*Conn, error) {
	if display == "" {
		display = os.Getenv("WAYLAND_DISPLAY")
		if display == "" && os.Getenv("WAYLAND_SOCKET") == "" {
			return nil, errors.Wrap(ErrConnect, "WAYLAND_DISPLAY not set")
		}
	}
	var name *C.char
	if display != "" {
		name = C.CString(display)
		defer C.free(unsafe.Pointer(name))
	}
	d := C.wl_display_connect(name)
	if d == nil {
		return nil, errors.Wrapf(ErrConnect, "%q", display)
	}
	c := &Conn{display: d}
	c.handle = cgo.NewHandle(c)
	c.registry = C.wl_display_get_registry(d)
	if c.registry == nil || C.addRegistryListenerWayland(c.registry, c.data()) != 0 {
		c.Close()
		return nil, errors.New("wayland: get registry failed")
	}
	for i := 0; i < 2; i++ {
		if C.wl_display_roundtrip(d) < 0 {
			c.Close()
			return nil, errors.Wrap(wsi.ErrDisconnected, "wayland: round trip failed")
		}
	}
	if c.compositor == nil {
		c.Close()
		return nil, errors.New("wayland: no wl_compositor global")
	}
	return c, nil
}

func (c *Conn) data() C.uintptr_t { return C.uintptr_t(c.handle) }

// global binds the globals the backends use.
func (c *Conn) global(name uint32, iface string, version uint32) {
	bind := func(i *C.struct_wl_interface, highest uint32) unsafe.Pointer {
		return C.wl_registry_bind(c.registry, C.uint32_t(name), i, C.uint32_t(min(version, highest)))
	}
	switch iface {
	case "wl_compositor":
		c.compositor = (*C.struct_wl_compositor)(bind(&C.wl_compositor_interface, compositorVersion))
	case "wl_shell":
		c.shell = (*C.struct_wl_shell)(bind(&C.wl_shell_interface, 1))
	case "xdg_wm_base":
		c.wm = (*C.struct_xdg_wm_base)(bind(&C.xdg_wm_base_interface, 1))
		C.addWmBaseListenerXDG(c.wm, c.data())
	case "wl_seat":
		if c.seat != nil {
			return
		}
		c.seat = (*C.struct_wl_seat)(bind(&C.wl_seat_interface, seatVersion))
		c.seatName = name
		C.addSeatListenerWayland(c.seat, c.data())
	case "wl_output":
		o := &output{name: name}
		o.proxy = (*C.struct_wl_output)(bind(&C.wl_output_interface, outputVersion))
		C.addOutputListenerWayland(o.proxy, c.data())
		c.outputs = append(c.outputs, o)
	default:
		return
	}
	logging.Logger().Debug("wayland global bound", "interface", iface, "version", version)
}

// globalRemove drops removed outputs and seats.
func (c *Conn) globalRemove(name uint32) {
	for i, o := range c.outputs {
		if o.name == name {
			C.wl_output_destroy(o.proxy)
			c.outputs = append(c.outputs[:i], c.outputs[i+1:]...)
			return
		}
	}
	if c.seat != nil && name == c.seatName {
		c.seatCapabilities(0)
		C.wl_seat_destroy(c.seat)
		c.seat = nil
	}
}

func (c *Conn) outputOf(proxy *C.struct_wl_output) *output {
	for _, o := range c.outputs {
		if o.proxy == proxy {
			return o
		}
	}
	return nil
}

// seatCapabilities acquires or releases input devices.
func (c *Conn) seatCapabilities(caps uint32) {
	if caps&seatKeyboard != 0 && c.keyboard == nil {
		c.keyboard = C.wl_seat_get_keyboard(c.seat)
		C.addKeyboardListenerWayland(c.keyboard, c.data())
	} else if caps&seatKeyboard == 0 && c.keyboard != nil {
		C.wl_keyboard_destroy(c.keyboard)
		c.keyboard = nil
	}
	if caps&seatPointer != 0 && c.pointer == nil {
		c.pointer = C.wl_seat_get_pointer(c.seat)
		C.addPointerListenerWayland(c.pointer, c.data())
	} else if caps&seatPointer == 0 && c.pointer != nil {
		C.wl_pointer_destroy(c.pointer)
		c.pointer = nil
	}
}

// roundtrip blocks until the compositor has processed
// every request.
func (c *Conn) roundtrip() error {
	if C.wl_display_roundtrip(c.display) < 0 {
		return c.Err()
	}
	return nil
}

// pump dispatches the events that arrived, without
// blocking.
func (c *Conn) pump() error {
	if C.pumpWayland(c.display) < 0 {
		return c.Err()
	}
	return nil
}

// Err returns wsi.ErrDisconnected if the display is in an
// error state.
func (c *Conn) Err() error {
	code := int(C.wl_display_get_error(c.display))
	if code == 0 {
		code = -1
	}
	return errors.Wrapf(wsi.ErrDisconnected, "wayland: display error %d", code)
}

// Screens lists the outputs advertised by the compositor.
// The first one is reported as primary, since Wayland
// has no such notion.
func (c *Conn) Screens() []wsi.Screen {
	scrs := make([]wsi.Screen, 0, len(c.outputs))
	for i, o := range c.outputs {
		scrs = append(scrs, wsi.Screen{
			Name:       o.label(),
			X:          o.x,
			Y:          o.y,
			Width:      o.width,
			Height:     o.height,
			RefreshMHz: o.refresh,
			Primary:    i == 0,
		})
	}
	return scrs
}

// Close destroys every bound global and disconnects.
func (c *Conn) Close() {
	if c.display == nil {
		return
	}
	if c.keyboard != nil {
		C.wl_keyboard_destroy(c.keyboard)
	}
	if c.pointer != nil {
		C.wl_pointer_destroy(c.pointer)
	}
	if c.seat != nil {
		C.wl_seat_destroy(c.seat)
	}
	for _, o := range c.outputs {
		C.wl_output_destroy(o.proxy)
	}
	if c.wm != nil {
		C.xdg_wm_base_destroy(c.wm)
	}
	if c.shell != nil {
		C.wl_shell_destroy(c.shell)
	}
	if c.compositor != nil {
		C.wl_compositor_destroy(c.compositor)
	}
	if c.registry != nil {
		C.wl_registry_destroy(c.registry)
	}
	C.wl_display_disconnect(c.display)
	c.handle.Delete()
	*c = Conn{}
}
