// Copyright 2023 Gustavo C. Viegas. All rights reserved.

//go:build linux

package wayland

import (
	"github.com/gviegas/vkdemo/wsi"
)

// Protocol enum values (wayland.xml).
const (
	seatPointer  = 1
	seatKeyboard = 2

	keyPressed    = 1
	buttonPressed = 1

	axisVertical   = 0
	axisHorizontal = 1

	outputModeCurrent = 1
)

// xkb's Lock modifier, in the default modifier map.
const lockMask = 2

// Continuous axis units per wheel step.
const axisStep = 10

// input turns the events of one surface and its seat
// into wsi events.
type input struct {
	queue  wsi.Queue
	mods   wsi.Modifiers
	locked bool
	x, y   int

	width      int
	height     int
	pendWidth  int
	pendHeight int
	configured bool
}

// fixedToFloat converts a wl_fixed_t.
func fixedToFloat(f int32) float64 { return float64(f) / 256 }

func (in *input) key(code uint32, state uint32) {
	key := wsi.KeyFromEvdev(int(code))
	pressed := state == keyPressed
	mods := in.mods.Key(key, pressed, in.locked)
	in.queue.Push(wsi.KeyEvent{Key: key, Pressed: pressed, Mods: mods})
}

// modifiers records the lock state that the compositor
// reports.
func (in *input) modifiers(locked uint32) { in.locked = locked&lockMask != 0 }

// keyboardLeave releases the held modifiers, whose
// releases will go to another surface.
func (in *input) keyboardLeave() {
	caps := in.mods.Mask() & wsi.ModCapsLock
	in.mods = wsi.Modifiers{}
	if caps != 0 {
		in.mods.Key(wsi.KeyCapsLock, true, false)
	}
}

func (in *input) motion(fx, fy int32) {
	in.x, in.y = int(fixedToFloat(fx)), int(fixedToFloat(fy))
	in.queue.Push(wsi.PointerMotion{X: in.x, Y: in.y})
}

func (in *input) button(code uint32, state uint32) {
	in.queue.Push(wsi.PointerButton{
		Button:  wsi.ButtonFromEvdev(int(code)),
		Pressed: state == buttonPressed,
		X:       in.x,
		Y:       in.y,
	})
}

// axis reports scrolling in wheel steps.
// Positive values scroll down and right.
func (in *input) axis(axis uint32, value int32) {
	v := fixedToFloat(value) / axisStep
	switch axis {
	case axisVertical:
		in.queue.Push(wsi.Scroll{DY: v})
	case axisHorizontal:
		in.queue.Push(wsi.Scroll{DX: v})
	}
}

// toplevelConfigure records a suggested size. Zero means
// that the client chooses.
func (in *input) toplevelConfigure(width, height int32) {
	in.pendWidth, in.pendHeight = int(width), int(height)
}

// surfaceConfigure applies the last suggested size.
// The first configuration only sets the initial size.
func (in *input) surfaceConfigure() {
	first := !in.configured
	in.configured = true
	if in.pendWidth <= 0 || in.pendHeight <= 0 {
		return
	}
	w, h := in.pendWidth, in.pendHeight
	in.pendWidth, in.pendHeight = 0, 0
	if w == in.width && h == in.height {
		return
	}
	in.width, in.height = w, h
	if !first {
		in.queue.Push(wsi.ResizeEvent{Width: w, Height: h})
	}
}

// shellConfigure handles wl_shell, which has no separate
// commit of the configuration.
func (in *input) shellConfigure(width, height int32) {
	in.toplevelConfigure(width, height)
	in.surfaceConfigure()
}

func (in *input) close() { in.queue.Push(wsi.QuitEvent{}) }
