// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package drm provides access to kernel mode-setting
// through the DRM ioctl interface.
package drm

import (
	"bytes"
	"fmt"
)

// Mode is a display mode.
type Mode struct {
	Width     int
	Height    int
	Refresh   int
	Name      string
	Preferred bool
	info      modeInfo
}

func newMode(mi modeInfo) Mode {
	name := mi.name[:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return Mode{
		Width:     int(mi.hdisplay),
		Height:    int(mi.vdisplay),
		Refresh:   refresh(mi),
		Name:      string(name),
		Preferred: mi.typ&modeTypePreferred != 0,
		info:      mi,
	}
}

// refresh returns the vertical refresh rate in Hz,
// computing it from the timings when the kernel does not
// report it.
func refresh(mi modeInfo) int {
	if mi.vrefresh != 0 {
		return int(mi.vrefresh)
	}
	if mi.htotal == 0 || mi.vtotal == 0 {
		return 0
	}
	num := uint64(mi.clock) * 1000
	den := uint64(mi.htotal) * uint64(mi.vtotal)
	return int((num + den/2) / den)
}

func (m Mode) String() string {
	return fmt.Sprintf("%dx%d@%d", m.Width, m.Height, m.Refresh)
}

// Connection is the state of a connector.
type Connection int

// Connection states.
const (
	Connected Connection = iota + 1
	Disconnected
	UnknownConnection
)

// Connector describes a display connector.
type Connector struct {
	ID         uint32
	Type       uint32
	TypeID     uint32
	Connection Connection
	Encoder    uint32
	Encoders   []uint32
	Modes      []Mode
	WidthMM    int
	HeightMM   int
}

var connectorNames = [...]string{
	"Unknown", "VGA", "DVI-I", "DVI-D", "DVI-A", "Composite",
	"SVIDEO", "LVDS", "Component", "DIN", "DP", "HDMI-A",
	"HDMI-B", "TV", "eDP", "Virtual", "DSI", "DPI",
	"Writeback", "SPI", "USB",
}

// Name returns the connector's name in the form used by
// the kernel (e.g., "HDMI-A-1").
func (c *Connector) Name() string {
	t := "Unknown"
	if int(c.Type) < len(connectorNames) {
		t = connectorNames[c.Type]
	}
	return fmt.Sprintf("%s-%d", t, c.TypeID)
}

// PreferredMode returns the mode marked as preferred,
// falling back to the first mode.
func (c *Connector) PreferredMode() (Mode, bool) {
	for _, m := range c.Modes {
		if m.Preferred {
			return m, true
		}
	}
	if len(c.Modes) > 0 {
		return c.Modes[0], true
	}
	return Mode{}, false
}

// Encoder describes an encoder.
type Encoder struct {
	ID            uint32
	Type          uint32
	CRTC          uint32
	PossibleCRTCs uint32
}

// CRTC describes a CRTC.
type CRTC struct {
	ID   uint32
	FB   uint32
	X, Y int
	Mode *Mode
}

// Resources lists the mode-setting objects of a card.
type Resources struct {
	FBs        []uint32
	CRTCs      []uint32
	Connectors []uint32
	Encoders   []uint32
	MinWidth   int
	MaxWidth   int
	MinHeight  int
	MaxHeight  int
}

// Dumb is a dumb (CPU-mappable) scanout buffer.
type Dumb struct {
	Handle uint32
	Width  int
	Height int
	Bpp    int
	Pitch  int
	Size   int64
}

// Output is a connector together with the CRTC and
// mode chosen to drive it.
type Output struct {
	Connector Connector
	CRTC      uint32
	Mode      Mode
}

// PickCRTC returns the first CRTC whose bit is set in the
// encoder's possible mask.
func PickCRTC(crtcs []uint32, possible uint32) (uint32, bool) {
	for i, id := range crtcs {
		if i < 32 && possible&(1<<i) != 0 {
			return id, true
		}
	}
	return 0, false
}
