// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wsi

import (
	"bytes"
)

// Console keys: a terminal in raw mode reports presses
// only, so every key yields a press followed by a
// release.

var letterKeys = [26]Key{
	KeyA, KeyB, KeyC, KeyD, KeyE, KeyF, KeyG, KeyH, KeyI,
	KeyJ, KeyK, KeyL, KeyM, KeyN, KeyO, KeyP, KeyQ, KeyR,
	KeyS, KeyT, KeyU, KeyV, KeyW, KeyX, KeyY, KeyZ,
}

var digitKeys = [10]Key{Key0, Key1, Key2, Key3, Key4, Key5, Key6, Key7, Key8, Key9}

// Escape sequences, without the leading ESC.
var escKeys = []struct {
	seq string
	key Key
}{
	{"[A", KeyUp},
	{"[B", KeyDown},
	{"[C", KeyRight},
	{"[D", KeyLeft},
	{"[H", KeyHome},
	{"[F", KeyEnd},
	{"[2~", KeyInsert},
	{"[3~", KeyDelete},
	{"[5~", KeyPageUp},
	{"[6~", KeyPageDown},
	{"OP", KeyF1},
	{"OQ", KeyF2},
	{"OR", KeyF3},
	{"OS", KeyF4},
	{"[15~", KeyF5},
	{"[17~", KeyF6},
	{"[18~", KeyF7},
	{"[19~", KeyF8},
	{"[20~", KeyF9},
	{"[21~", KeyF10},
	{"[23~", KeyF11},
	{"[24~", KeyF12},
}

// ParseConsole decodes bytes read from a terminal in raw
// mode into events.
// Ctrl-C and Ctrl-D produce a QuitEvent.
func ParseConsole(b []byte) []Event {
	var evs []Event
	key := func(k Key, mods Modifier) {
		evs = append(evs, KeyEvent{Key: k, Pressed: true, Mods: mods}, KeyEvent{Key: k, Mods: mods})
	}
	for len(b) > 0 {
		c := b[0]
		b = b[1:]
		switch {
		case c == 0x1b:
			matched := false
			for _, e := range escKeys {
				if bytes.HasPrefix(b, []byte(e.seq)) {
					key(e.key, 0)
					b = b[len(e.seq):]
					matched = true
					break
				}
			}
			if !matched {
				key(KeyEsc, 0)
			}
		case c == 0x03 || c == 0x04:
			evs = append(evs, QuitEvent{})
		case c == '\r' || c == '\n':
			key(KeyReturn, 0)
		case c == '\t':
			key(KeyTab, 0)
		case c == 0x7f || c == 0x08:
			key(KeyBackspace, 0)
		case c == ' ':
			key(KeySpace, 0)
		case c >= 'a' && c <= 'z':
			key(letterKeys[c-'a'], 0)
		case c >= 'A' && c <= 'Z':
			key(letterKeys[c-'A'], ModShift)
		case c >= '0' && c <= '9':
			key(digitKeys[c-'0'], 0)
		case c >= 0x01 && c <= 0x1a:
			key(letterKeys[c-1], ModCtrl)
		}
	}
	return evs
}
