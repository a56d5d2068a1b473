// Copyright 2023 Gustavo C. Viegas. All rights reserved.

//go:build linux

package xcb

// #include <stdlib.h>
// #include "wsi_xcb.h"
import "C"

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/wsi"
)

// ErrNoRandR means that the X server or the client
// library lacks the RandR version needed.
var ErrNoRandR = errors.New("xcb: RandR unavailable")

// output is a RandR output.
type output struct {
	id         uint32
	name       string
	connected  bool
	primary    bool
	nonDesktop bool
	// Current CRTC, zero if disabled.
	crtc       uint32
	crtcs      []uint32
	x, y       int
	width      int
	height     int
	refreshMHz int
}

func (o *output) screen() wsi.Screen {
	return wsi.Screen{
		Name:       o.name,
		X:          o.x,
		Y:          o.y,
		Width:      o.width,
		Height:     o.height,
		RefreshMHz: o.refreshMHz,
		Primary:    o.primary,
	}
}

// modeRefresh computes the refresh rate of a mode in
// millihertz.
func modeRefresh(dotClock uint32, htotal, vtotal uint16) int {
	if htotal == 0 || vtotal == 0 {
		return 0
	}
	return int(uint64(dotClock) * 1000 / (uint64(htotal) * uint64(vtotal)))
}

// queryVersion returns the RandR version of the server.
func (c *Conn) queryVersion() (major, minor int, err error) {
	if !lib.randr {
		return 0, 0, ErrNoRandR
	}
	var gerr *C.xcb_generic_error_t
	reply := C.queryVersionReplyRandR(c.c, C.queryVersionRandR(c.c, 1, 6), &gerr)
	if gerr != nil || reply == nil {
		C.free(unsafe.Pointer(gerr))
		C.free(unsafe.Pointer(reply))
		return 0, 0, errors.Wrap(ErrNoRandR, "query version")
	}
	defer C.free(unsafe.Pointer(reply))
	return int(reply.major_version), int(reply.minor_version), nil
}

// hasRandR reports whether RandR major.minor or later is
// usable.
func (c *Conn) hasRandR(major, minor int) bool {
	return c.randr[0] > major || c.randr[0] == major && c.randr[1] >= minor
}

// outputs enumerates the RandR outputs of the screen.
func (c *Conn) outputs() ([]output, error) {
	if !c.hasRandR(1, 3) {
		return nil, errors.Wrap(ErrNoRandR, "version 1.3 needed")
	}
	var gerr *C.xcb_generic_error_t
	res := C.getResourcesReplyRandR(c.c, C.getResourcesRandR(c.c, c.root), &gerr)
	if gerr != nil || res == nil {
		C.free(unsafe.Pointer(gerr))
		C.free(unsafe.Pointer(res))
		return nil, errors.New("xcb: get screen resources failed")
	}
	defer C.free(unsafe.Pointer(res))
	ts := res.config_timestamp
	ids := unsafe.Slice(C.resourcesOutputsRandR(res), int(C.resourcesOutputsLengthRandR(res)))
	modes := unsafe.Slice(C.resourcesModesRandR(res), int(C.resourcesModesLengthRandR(res)))
	mode := func(id C.xcb_randr_mode_t) (w, h, mhz int, ok bool) {
		for _, m := range modes {
			if m.id == C.uint32_t(id) {
				return int(m.width), int(m.height), modeRefresh(uint32(m.dot_clock), uint16(m.htotal), uint16(m.vtotal)), true
			}
		}
		return 0, 0, 0, false
	}

	var primary C.xcb_randr_output_t
	if reply := C.getOutputPrimaryReplyRandR(c.c, C.getOutputPrimaryRandR(c.c, c.root), nil); reply != nil {
		primary = reply.output
		C.free(unsafe.Pointer(reply))
	}

	outs := make([]output, 0, len(ids))
	for _, id := range ids {
		info := C.getOutputInfoReplyRandR(c.c, C.getOutputInfoRandR(c.c, id, ts), &gerr)
		if gerr != nil || info == nil {
			C.free(unsafe.Pointer(gerr))
			C.free(unsafe.Pointer(info))
			return nil, errors.Errorf("xcb: get output info %d failed", uint32(id))
		}
		name := C.GoStringN((*C.char)(unsafe.Pointer(C.outputNameRandR(info))), C.outputNameLengthRandR(info))
		o := output{
			id:        uint32(id),
			name:      name,
			connected: info.connection == C.XCB_RANDR_CONNECTION_CONNECTED,
			primary:   id == primary,
			crtc:      uint32(info.crtc),
		}
		for _, cr := range unsafe.Slice(C.outputCrtcsRandR(info), int(C.outputCrtcsLengthRandR(info))) {
			o.crtcs = append(o.crtcs, uint32(cr))
		}
		if ms := unsafe.Slice(C.outputModesRandR(info), int(C.outputModesLengthRandR(info))); len(ms) > 0 {
			// The first mode is the preferred one.
			o.width, o.height, o.refreshMHz, _ = mode(ms[0])
		}
		C.free(unsafe.Pointer(info))

		if o.crtc != 0 {
			ci := C.getCrtcInfoReplyRandR(c.c, C.getCrtcInfoRandR(c.c, C.xcb_randr_crtc_t(o.crtc), ts), nil)
			if ci != nil {
				o.x, o.y = int(ci.x), int(ci.y)
				o.width, o.height = int(ci.width), int(ci.height)
				if _, _, mhz, ok := mode(ci.mode); ok {
					o.refreshMHz = mhz
				}
				C.free(unsafe.Pointer(ci))
			}
		}
		o.nonDesktop = c.nonDesktop(id)
		outs = append(outs, o)
	}
	return outs, nil
}

// nonDesktop reports whether the output carries a
// non-zero "non-desktop" property.
func (c *Conn) nonDesktop(id C.xcb_randr_output_t) bool {
	if c.atoms[atomNonDesktop] == 0 {
		return false
	}
	cookie := C.getOutputPropertyRandR(c.c, id, c.atoms[atomNonDesktop], C.XCB_ATOM_ANY, 0, 1, 0, 0)
	reply := C.getOutputPropertyReplyRandR(c.c, cookie, nil)
	if reply == nil {
		return false
	}
	defer C.free(unsafe.Pointer(reply))
	if reply.num_items < 1 || reply.format != 32 {
		return false
	}
	return *(*uint32)(unsafe.Pointer(C.outputPropertyDataRandR(reply))) != 0
}

// lease requests a lease of out on crtc and returns the
// DRM file descriptor of the lease.
func (c *Conn) lease(out, crtc uint32) (int, error) {
	if !c.hasRandR(1, 6) {
		return -1, errors.Wrap(ErrNoRandR, "version 1.6 needed for leases")
	}
	lid := C.xcb_randr_lease_t(C.generateIdXCB(c.c))
	crtcs := []C.xcb_randr_crtc_t{C.xcb_randr_crtc_t(crtc)}
	outs := []C.xcb_randr_output_t{C.xcb_randr_output_t(out)}
	cookie := C.createLeaseRandR(c.c, c.root, lid, 1, 1, &crtcs[0], &outs[0])
	var gerr *C.xcb_generic_error_t
	reply := C.createLeaseReplyRandR(c.c, cookie, &gerr)
	if gerr != nil || reply == nil {
		code := -1
		if gerr != nil {
			code = int(gerr.error_code)
		}
		C.free(unsafe.Pointer(gerr))
		C.free(unsafe.Pointer(reply))
		return -1, errors.Errorf("xcb: create lease refused (error %d)", code)
	}
	defer C.free(unsafe.Pointer(reply))
	if reply.nfd < 1 {
		return -1, errors.New("xcb: create lease returned no descriptor")
	}
	return int(*C.createLeaseReplyFdsRandR(c.c, reply)), nil
}
