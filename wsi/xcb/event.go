// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build linux

package xcb

import (
	"github.com/gviegas/vkdemo/wsi"
)

// Core event codes (xproto.h).
const (
	evKeyPress        = 2
	evKeyRelease      = 3
	evButtonPress     = 4
	evButtonRelease   = 5
	evMotionNotify    = 6
	evConfigureNotify = 22
	evClientMessage   = 33
)

// modMaskLock is XCB_MOD_MASK_LOCK.
const modMaskLock = 2

// X keycodes are evdev codes offset by this amount.
const keycodeOffset = 8

// rawEvent holds the fields of a native event that are
// needed for translation.
type rawEvent struct {
	typ     uint8
	detail  uint8
	state   uint16
	x, y    int
	width   int
	height  int
	window  uint32
	msgType uint32
	data0   uint32
}

// translator converts native events of one window into
// wsi events.
type translator struct {
	win       uint32
	protocols uint32
	delete    uint32
	width     int
	height    int
	mods      wsi.Modifiers
}

// translate returns the wsi event for ev, if any.
// Configure notifications only produce an event when the
// size changes.
func (t *translator) translate(ev rawEvent) (wsi.Event, bool) {
	switch ev.typ {
	case evKeyPress, evKeyRelease:
		key := wsi.KeyFromEvdev(int(ev.detail) - keycodeOffset)
		pressed := ev.typ == evKeyPress
		mods := t.mods.Key(key, pressed, ev.state&modMaskLock != 0)
		return wsi.KeyEvent{Key: key, Pressed: pressed, Mods: mods}, true

	case evButtonPress, evButtonRelease:
		pressed := ev.typ == evButtonPress
		var btn wsi.Button
		switch ev.detail {
		case 1:
			btn = wsi.BtnLeft
		case 2:
			btn = wsi.BtnMiddle
		case 3:
			btn = wsi.BtnRight
		case 4, 5, 6, 7:
			// Wheel steps come as press/release pairs.
			if !pressed {
				return nil, false
			}
			return scrollStep(ev.detail), true
		case 8:
			btn = wsi.BtnBackward
		case 9:
			btn = wsi.BtnForward
		default:
			btn = wsi.BtnUnknown
		}
		return wsi.PointerButton{Button: btn, Pressed: pressed, X: ev.x, Y: ev.y}, true

	case evMotionNotify:
		return wsi.PointerMotion{X: ev.x, Y: ev.y}, true

	case evConfigureNotify:
		if ev.window != t.win || ev.width == 0 || ev.height == 0 {
			return nil, false
		}
		if ev.width == t.width && ev.height == t.height {
			return nil, false
		}
		t.width, t.height = ev.width, ev.height
		return wsi.ResizeEvent{Width: ev.width, Height: ev.height}, true

	case evClientMessage:
		if ev.msgType == t.protocols && ev.data0 == t.delete {
			return wsi.QuitEvent{}, true
		}
	}
	return nil, false
}

// scrollStep converts wheel buttons 4 to 7 (up, down,
// left, right) into a scroll step.
// Positive DY scrolls down.
func scrollStep(button uint8) wsi.Scroll {
	switch button {
	case 4:
		return wsi.Scroll{DY: -1}
	case 5:
		return wsi.Scroll{DY: 1}
	case 6:
		return wsi.Scroll{DX: -1}
	default:
		return wsi.Scroll{DX: 1}
	}
}
