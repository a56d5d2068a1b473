// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build linux

package wayland

// #include "wsi_wayland.h"
import "C"

import (
	"runtime/cgo"
)

// connOf returns the Conn whose handle is data.
func connOf(data C.uintptr_t) *Conn { return cgo.Handle(data).Value().(*Conn) }

//export registryGlobalWayland
func registryGlobalWayland(data C.uintptr_t, name C.uint32_t, iface *C.char, version C.uint32_t) {
	connOf(data).global(uint32(name), C.GoString(iface), uint32(version))
}

//export registryGlobalRemoveWayland
func registryGlobalRemoveWayland(data C.uintptr_t, name C.uint32_t) {
	connOf(data).globalRemove(uint32(name))
}

//export outputGeometryWayland
func outputGeometryWayland(data C.uintptr_t, proxy *C.struct_wl_output, x, y C.int32_t, manufacturer, model *C.char) {
	if o := connOf(data).outputOf(proxy); o != nil {
		o.x, o.y = int(x), int(y)
		o.make, o.model = C.GoString(manufacturer), C.GoString(model)
	}
}

//export outputModeWayland
func outputModeWayland(data C.uintptr_t, proxy *C.struct_wl_output, flags C.uint32_t, width, height, refresh C.int32_t) {
	if flags&outputModeCurrent == 0 {
		return
	}
	if o := connOf(data).outputOf(proxy); o != nil {
		o.width, o.height, o.refresh = int(width), int(height), int(refresh)
	}
}

//export seatCapabilitiesWayland
func seatCapabilitiesWayland(data C.uintptr_t, caps C.uint32_t) {
	connOf(data).seatCapabilities(uint32(caps))
}

//export keyboardLeaveWayland
func keyboardLeaveWayland(data C.uintptr_t) { connOf(data).in.keyboardLeave() }

//export keyboardKeyWayland
func keyboardKeyWayland(data C.uintptr_t, key, state C.uint32_t) {
	connOf(data).in.key(uint32(key), uint32(state))
}

//export keyboardModifiersWayland
func keyboardModifiersWayland(data C.uintptr_t, locked C.uint32_t) {
	connOf(data).in.modifiers(uint32(locked))
}

//export pointerMotionWayland
func pointerMotionWayland(data C.uintptr_t, x, y C.int32_t) {
	connOf(data).in.motion(int32(x), int32(y))
}

//export pointerButtonWayland
func pointerButtonWayland(data C.uintptr_t, button, state C.uint32_t) {
	connOf(data).in.button(uint32(button), uint32(state))
}

//export pointerAxisWayland
func pointerAxisWayland(data C.uintptr_t, axis C.uint32_t, value C.int32_t) {
	connOf(data).in.axis(uint32(axis), int32(value))
}

//export shellConfigureWayland
func shellConfigureWayland(data C.uintptr_t, width, height C.int32_t) {
	connOf(data).in.shellConfigure(int32(width), int32(height))
}

//export surfaceConfigureXDG
func surfaceConfigureXDG(data C.uintptr_t) { connOf(data).in.surfaceConfigure() }

//export toplevelConfigureXDG
func toplevelConfigureXDG(data C.uintptr_t, width, height C.int32_t) {
	connOf(data).in.toplevelConfigure(int32(width), int32(height))
}

//export toplevelCloseXDG
func toplevelCloseXDG(data C.uintptr_t) { connOf(data).in.close() }
