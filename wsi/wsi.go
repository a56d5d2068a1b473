// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package wsi provides window system integration (WSI)
// for the renderer.
// A Backend owns the native presentation target (a
// desktop window, a display plane or a kernel output),
// knows which instance extensions it needs and builds the
// swap chain variant that fits it.
// Because a system need not have a window system, backends
// are selected at run time: native packages register
// constructors from init and Select tries them in order.
package wsi

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/swapchain"
)

// Backend is the interface that defines a presentation
// target and its input source.
type Backend interface {
	// Kind returns the kind of the backend.
	Kind() Kind

	// Init connects to the native system.
	// Protocol backends perform a synchronous round trip
	// before returning, so outputs and input devices are
	// known when Init succeeds.
	Init() error

	// RequiredExtensions returns the instance extensions
	// that the device must be created with.
	RequiredExtensions() []string

	// CheckSupport verifies that gpu can present to the
	// backend's target.
	CheckSupport(gpu swapchain.GPU) error

	// InitSwapChain creates the swap chain variant that
	// presents to the backend's target.
	// It fails with ErrNotConnected unless Init succeeded.
	// The swap chain is returned uncreated.
	InitSwapChain(gpu swapchain.GPU, cfg swapchain.Config) (swapchain.SwapChain, error)

	// Iterate dispatches pending native events and returns
	// them. When nothing is pending it returns a single
	// RepaintEvent.
	// A lost connection is reported as ErrDisconnected.
	Iterate(ctx context.Context) ([]Event, error)

	// Size returns the current size of the target.
	Size() (width, height int)

	// Screens enumerates the outputs known to the backend.
	Screens() ([]Screen, error)

	// State returns the backend's lifecycle state.
	State() State

	// Destroy releases every native resource.
	// It must be called after the swap chain returned by
	// InitSwapChain is destroyed.
	Destroy()
}

// ErrNotConnected means that an operation that requires a
// native connection was called before Init succeeded.
var ErrNotConnected = errors.New("wsi: backend not connected")

// ErrDisconnected means that the native connection was
// lost. It ends the render loop.
var ErrDisconnected = errors.New("wsi: connection lost")

// ErrNoBackend means that no backend could be initialized.
var ErrNoBackend = errors.New("wsi: no usable window backend")

// ErrUnknownKind means that a backend name could not be
// parsed.
var ErrUnknownKind = errors.New("wsi: unknown backend kind")

// Kind identifies a backend implementation.
type Kind int

// Backend kinds.
const (
	// Auto selects the first backend that initializes,
	// trying Wayland, then XCB, then KMS.
	Auto Kind = iota
	KMS
	XCB
	Wayland
	WaylandShell
	KHRDisplay
	Lease
)

var kindNames = [...]string{
	Auto:         "auto",
	KMS:          "kms",
	XCB:          "xcb",
	Wayland:      "wayland",
	WaylandShell: "wayland-shell",
	KHRDisplay:   "khr-display",
	Lease:        "lease",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind parses a backend name as accepted by the
// --window flag.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if s == name {
			return Kind(k), nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownKind, "%q", s)
}

// Kinds returns every kind, Auto included.
func Kinds() []Kind {
	ks := make([]Kind, len(kindNames))
	for i := range ks {
		ks[i] = Kind(i)
	}
	return ks
}

// Options configures the creation of a backend.
// Driver is only used by backends that enumerate outputs
// through the graphics API (khr-display); the fallback
// selection never uses it.
type Options struct {
	Title      string
	Width      int
	Height     int
	Fullscreen bool
	VSync      bool
	Driver     driver.Driver
}

// Screen describes an output.
// RefreshMHz is zero when unknown.
type Screen struct {
	Name       string
	X, Y       int
	Width      int
	Height     int
	RefreshMHz int
	Primary    bool
}

func (s Screen) String() string {
	str := fmt.Sprintf("%s %dx%d+%d+%d", s.Name, s.Width, s.Height, s.X, s.Y)
	if s.RefreshMHz > 0 {
		str += fmt.Sprintf(" @%d.%03dHz", s.RefreshMHz/1000, s.RefreshMHz%1000)
	}
	if s.Primary {
		str += " primary"
	}
	return str
}

// Key is the type of keyboard keys.
type Key int

// Keyboard keys.
const (
	KeyUnknown Key = iota
	KeyGrave
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	Key0
	KeyMinus
	KeyEqual
	KeyBackspace
	KeyTab
	KeyQ
	KeyW
	KeyE
	KeyR
	KeyT
	KeyY
	KeyU
	KeyI
	KeyO
	KeyP
	KeyLBracket
	KeyRBracket
	KeyBackslash
	KeyCapsLock
	KeyA
	KeyS
	KeyD
	KeyF
	KeyG
	KeyH
	KeyJ
	KeyK
	KeyL
	KeySemicolon
	KeyApostrophe
	KeyReturn
	KeyLShift
	KeyZ
	KeyX
	KeyC
	KeyV
	KeyB
	KeyN
	KeyM
	KeyComma
	KeyDot
	KeySlash
	KeyRShift
	KeyLCtrl
	KeyLAlt
	KeyLMeta
	KeySpace
	KeyRMeta
	KeyRAlt
	KeyRCtrl
	KeyEsc
	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12
	KeyInsert
	KeyDelete
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeySysrq
	KeyScrollLock
	KeyPause
	KeyPadNumLock
	KeyPadSlash
	KeyPadStar
	KeyPadMinus
	KeyPadPlus
	KeyPad1
	KeyPad2
	KeyPad3
	KeyPad4
	KeyPad5
	KeyPad6
	KeyPad7
	KeyPad8
	KeyPad9
	KeyPad0
	KeyPadDot
	KeyPadEnter
	KeyPadEqual
	KeyF13
	KeyF14
	KeyF15
	KeyF16
	KeyF17
	KeyF18
	KeyF19
	KeyF20
	KeyF21
	KeyF22
	KeyF23
	KeyF24
)

// Modifier is the type of modifier flags.
type Modifier int

// Modifier flags.
const (
	ModCapsLock Modifier = 1 << iota
	ModShift
	ModCtrl
	ModAlt
)

// Button is the type of pointer buttons.
type Button int

// Pointer buttons.
const (
	BtnUnknown Button = iota
	BtnLeft
	BtnRight
	BtnMiddle
	BtnSide
	BtnForward
	BtnBackward
)

// Modifiers tracks the modifier state from a sequence of
// key events. The zero value has no modifier set.
type Modifiers struct {
	caps  Modifier
	left  Modifier
	right Modifier
}

// Key updates the state with a key press or release and
// returns the resulting modifier mask.
// locked reports whether caps lock was active before the
// event, as seen by the native system; it is only used
// when key is KeyCapsLock.
func (m *Modifiers) Key(key Key, pressed, locked bool) Modifier {
	set := func(dst *Modifier, mod Modifier) {
		if pressed {
			*dst |= mod
		} else {
			*dst &^= mod
		}
	}
	switch key {
	case KeyCapsLock:
		if pressed {
			if locked {
				m.caps = 0
			} else {
				m.caps = ModCapsLock
			}
		}
	case KeyLShift:
		set(&m.left, ModShift)
	case KeyRShift:
		set(&m.right, ModShift)
	case KeyLCtrl:
		set(&m.left, ModCtrl)
	case KeyRCtrl:
		set(&m.right, ModCtrl)
	case KeyLAlt:
		set(&m.left, ModAlt)
	case KeyRAlt:
		set(&m.right, ModAlt)
	}
	return m.Mask()
}

// Mask returns the current modifier mask.
func (m *Modifiers) Mask() Modifier { return m.caps | m.left | m.right }
