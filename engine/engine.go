// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package engine implements the rendering core: the
// graphics device, the frame loop with its resize
// protocol and a diagnostic text overlay.
//
// A Renderer is built from a driver.Driver, an
// uninitialized-or-connected wsi.Backend and a Scene.
// Everything runs on the calling goroutine.
package engine

import (
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/internal/logging"
	"github.com/gviegas/vkdemo/swapchain"
	"github.com/gviegas/vkdemo/wsi"
)

// ErrNoQueue means that the selected adapter has no
// queue family that supports graphics.
var ErrNoQueue = errors.New("engine: no graphics queue family")

// ErrNoDepthFormat means that the device supports none
// of the depth formats that the renderer can use.
var ErrNoDepthFormat = errors.New("engine: no supported depth format")

// ErrNoMemoryType means that no memory type satisfies an
// allocation.
var ErrNoMemoryType = errors.New("engine: no suitable memory type")

// ErrQuit is returned by Scene.Handle to end the render
// loop. Run does not report it.
var ErrQuit = errors.New("engine: quit")

// ErrState means that a Renderer method was called in a
// state that does not allow it.
var ErrState = errors.New("engine: invalid renderer state")

// IsFatal reports whether err is an unrecoverable
// initialization or device failure, after which the
// process is expected to terminate.
func IsFatal(err error) bool {
	for _, e := range [...]error{
		driver.ErrNoDevice,
		driver.ErrFatal,
		driver.ErrDeviceLost,
		ErrNoQueue,
		ErrNoDepthFormat,
		swapchain.ErrLeaseDenied,
		swapchain.ErrNoLeaseOutput,
		swapchain.ErrImageCount,
		swapchain.ErrUsage,
		wsi.ErrNoBackend,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// SetLogger sets the logger used by the engine and every
// package below it. Passing nil silences them.
func SetLogger(l *slog.Logger) { logging.SetLogger(l) }

const (
	dflOverlayScale = 2
	dflFenceTimeout = 5 * time.Second
	dflStatsPeriod  = time.Second
)

// Config is used to configure a Renderer.
type Config struct {
	// The index of the adapter to use.
	//
	// Default is 0.
	GPU int

	// Whether to enable the API validation layers.
	//
	// Default is false.
	Validation bool

	// Whether presentation waits for vertical blank.
	//
	// Default is false.
	VSync bool

	// The number of presentable images to ask for.
	// Zero lets the swap chain decide.
	//
	// Default is 0.
	Images int

	// Whether the text overlay starts visible.
	//
	// Default is true.
	Overlay bool

	// The integer scale of the overlay's glyphs.
	//
	// Default is 2.
	OverlayScale int

	// The number of frames after which Run returns.
	// Zero means no limit.
	//
	// Default is 0.
	Frames int

	// The color to which the main pass clears.
	//
	// Default is opaque black.
	Clear [4]float32

	// How long to wait for a frame's fence before
	// failing with driver.ErrTimeout.
	//
	// Default is 5s.
	FenceTimeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Overlay:      true,
		OverlayScale: dflOverlayScale,
		Clear:        [4]float32{0, 0, 0, 1},
		FenceTimeout: dflFenceTimeout,
	}
}

// normalize replaces invalid values with defaults.
func (c *Config) normalize() {
	if c.GPU < 0 {
		c.GPU = 0
	}
	if c.Images < 0 {
		c.Images = 0
	}
	if c.OverlayScale < 1 {
		c.OverlayScale = dflOverlayScale
	}
	if c.FenceTimeout <= 0 {
		c.FenceTimeout = dflFenceTimeout
	}
}
