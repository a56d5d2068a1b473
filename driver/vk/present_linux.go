// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

// #cgo LDFLAGS: -ldl
// #include <dlfcn.h>
// #include <stdint.h>
// #include <stdlib.h>
//
// typedef struct {
// 	int32_t sType;
// 	const void* pNext;
// 	uint32_t flags;
// 	void* connection;
// 	uint32_t window;
// } xcbSurfaceInfo;
//
// typedef struct {
// 	int32_t sType;
// 	const void* pNext;
// 	uint32_t flags;
// 	void* display;
// 	void* surface;
// } waylandSurfaceInfo;
//
// typedef void* (*getInstanceProcAddrFn)(void*, const char*);
// typedef int32_t (*createSurfaceFn)(void*, const void*, const void*, uint64_t*);
//
// static void* loadGetInstanceProcAddr(void) {
// 	void* lib = dlopen("libvulkan.so.1", RTLD_NOW | RTLD_LOCAL);
// 	if (lib == NULL)
// 		return NULL;
// 	return dlsym(lib, "vkGetInstanceProcAddr");
// }
//
// static int32_t createSurface(void* gipa, void* inst, const char* name, const void* info, uint64_t* sf) {
// 	createSurfaceFn fn = (createSurfaceFn)((getInstanceProcAddrFn)gipa)(inst, name);
// 	if (fn == NULL)
// 		return -7; /* VK_ERROR_EXTENSION_NOT_PRESENT */
// 	return fn(inst, info, NULL, sf);
// }
//
// static int32_t createXCBSurface(void* gipa, void* inst, void* conn, uint32_t win, uint64_t* sf) {
// 	xcbSurfaceInfo info = {1000005000, NULL, 0, conn, win};
// 	return createSurface(gipa, inst, "vkCreateXcbSurfaceKHR", &info, sf);
// }
//
// static int32_t createWaylandSurface(void* gipa, void* inst, void* dpy, void* wsf, uint64_t* sf) {
// 	waylandSurfaceInfo info = {1000006000, NULL, 0, dpy, wsf};
// 	return createSurface(gipa, inst, "vkCreateWaylandSurfaceKHR", &info, sf);
// }
import "C"

import (
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
)

// goki/vulkan does not expose the platform surface
// commands, so they are fetched through the loader's
// vkGetInstanceProcAddr.
var gipa struct {
	once sync.Once
	fn   unsafe.Pointer
}

func getInstanceProcAddr() unsafe.Pointer {
	gipa.once.Do(func() { gipa.fn = C.loadGetInstanceProcAddr() })
	return gipa.fn
}

func (i *instance) NewSurface(win driver.NativeWindow) (driver.Surface, error) {
	var ext string
	switch win.Platform {
	case driver.Wayland:
		ext = extWaylandSurface
	case driver.XCB:
		ext = extXCBSurface
	default:
		return nil, errors.Wrapf(driver.ErrCannotPresent, "vk: platform %v", win.Platform)
	}
	if !has(i.exts, ext) {
		return nil, errors.Wrap(driver.ErrNoExtension, "vk: "+ext+" not enabled")
	}
	fn := getInstanceProcAddr()
	if fn == nil {
		return nil, errors.Wrap(driver.ErrNotInstalled, "vk: vkGetInstanceProcAddr")
	}
	var sf C.uint64_t
	var res C.int32_t
	switch win.Platform {
	case driver.Wayland:
		res = C.createWaylandSurface(fn, unsafe.Pointer(i.inst), win.Conn, win.Surface, &sf)
	case driver.XCB:
		res = C.createXCBSurface(fn, unsafe.Pointer(i.inst), win.Conn, C.uint32_t(win.Window), &sf)
	}
	if err := checkResult(vk.Result(res)); err != nil {
		return nil, errors.WithMessagef(err, "vk: %v surface", win.Platform)
	}
	return &surface{inst: i, sf: vk.SurfaceFromPointer(uintptr(sf))}, nil
}
