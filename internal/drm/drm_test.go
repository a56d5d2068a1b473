// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package drm

import (
	"encoding/binary"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout(t *testing.T) {
	for _, x := range [...]struct {
		name string
		have uintptr
		want uintptr
	}{
		{"drm_get_cap", unsafe.Sizeof(getCap{}), 16},
		{"drm_mode_card_res", unsafe.Sizeof(cardRes{}), 64},
		{"drm_mode_modeinfo", unsafe.Sizeof(modeInfo{}), 68},
		{"drm_mode_crtc", unsafe.Sizeof(modeCRTC{}), 104},
		{"drm_mode_get_encoder", unsafe.Sizeof(modeGetEncoder{}), 20},
		{"drm_mode_get_connector", unsafe.Sizeof(modeGetConnector{}), 80},
		{"drm_mode_fb_cmd", unsafe.Sizeof(modeFBCmd{}), 28},
		{"drm_mode_crtc_page_flip", unsafe.Sizeof(modeCRTCPageFlip{}), 24},
		{"drm_mode_create_dumb", unsafe.Sizeof(modeCreateDumb{}), 32},
		{"drm_mode_map_dumb", unsafe.Sizeof(modeMapDumb{}), 16},
	} {
		assert.Equal(t, x.want, x.have, x.name)
	}
}

func TestRequests(t *testing.T) {
	assert.Equal(t, uintptr(0xc010640c), ioctlGetCap)
	assert.Equal(t, uintptr(0x641e), ioctlSetMaster)
	assert.Equal(t, uintptr(0x641f), ioctlDropMaster)
	assert.Equal(t, uintptr(0xc04064a0), ioctlModeGetResources)
	assert.Equal(t, uintptr(0xc06864a1), ioctlModeGetCRTC)
	assert.Equal(t, uintptr(0xc06864a2), ioctlModeSetCRTC)
	assert.Equal(t, uintptr(0xc01464a6), ioctlModeGetEncoder)
	assert.Equal(t, uintptr(0xc05064a7), ioctlModeGetConnector)
	assert.Equal(t, uintptr(0xc01c64ae), ioctlModeAddFB)
	assert.Equal(t, uintptr(0xc00464af), ioctlModeRmFB)
	assert.Equal(t, uintptr(0xc01864b0), ioctlModePageFlip)
	assert.Equal(t, uintptr(0xc02064b2), ioctlModeCreateDumb)
	assert.Equal(t, uintptr(0xc01064b3), ioctlModeMapDumb)
	assert.Equal(t, uintptr(0xc00464b4), ioctlModeDestroyDumb)
}

func flipEvent(userData uint64, sec, usec, seq, crtc uint32) []byte {
	b := make([]byte, vblankEventSize)
	binary.NativeEndian.PutUint32(b, eventFlipComplete)
	binary.NativeEndian.PutUint32(b[4:], vblankEventSize)
	binary.NativeEndian.PutUint64(b[8:], userData)
	binary.NativeEndian.PutUint32(b[16:], sec)
	binary.NativeEndian.PutUint32(b[20:], usec)
	binary.NativeEndian.PutUint32(b[24:], seq)
	binary.NativeEndian.PutUint32(b[28:], crtc)
	return b
}

func TestParseEvents(t *testing.T) {
	unknown := make([]byte, 12)
	binary.NativeEndian.PutUint32(unknown, 0x80000000)
	binary.NativeEndian.PutUint32(unknown[4:], 12)

	var b []byte
	b = append(b, flipEvent(7, 2, 500, 41, 33)...)
	b = append(b, unknown...)
	b = append(b, flipEvent(8, 3, 0, 42, 33)...)

	evs, err := ParseEvents(b)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, Event{
		Type:     EventFlipComplete,
		UserData: 7,
		Time:     2*time.Second + 500*time.Microsecond,
		Sequence: 41,
		CRTC:     33,
	}, evs[0])
	assert.Equal(t, uint64(8), evs[1].UserData)

	evs, err = ParseEvents(b[:len(b)-4])
	assert.ErrorIs(t, err, ErrShortEvent)
	assert.Len(t, evs, 1)

	evs, err = ParseEvents(nil)
	assert.NoError(t, err)
	assert.Empty(t, evs)
}

func TestMode(t *testing.T) {
	mi := modeInfo{
		clock:    148500,
		hdisplay: 1920,
		htotal:   2200,
		vdisplay: 1080,
		vtotal:   1125,
		typ:      modeTypePreferred,
	}
	copy(mi.name[:], "1920x1080")
	m := newMode(mi)
	assert.Equal(t, 1920, m.Width)
	assert.Equal(t, 1080, m.Height)
	assert.Equal(t, 60, m.Refresh)
	assert.Equal(t, "1920x1080", m.Name)
	assert.True(t, m.Preferred)
	assert.Equal(t, "1920x1080@60", m.String())

	mi.vrefresh = 75
	assert.Equal(t, 75, newMode(mi).Refresh)
	assert.Equal(t, 0, refresh(modeInfo{}))
}

func TestConnector(t *testing.T) {
	c := Connector{Type: 11, TypeID: 1}
	assert.Equal(t, "HDMI-A-1", c.Name())
	c.Type = 999
	assert.Equal(t, "Unknown-1", c.Name())

	_, ok := c.PreferredMode()
	assert.False(t, ok)
	c.Modes = []Mode{{Width: 1280, Height: 720}, {Width: 1920, Height: 1080, Preferred: true}}
	m, ok := c.PreferredMode()
	assert.True(t, ok)
	assert.Equal(t, 1920, m.Width)
	c.Modes[1].Preferred = false
	m, _ = c.PreferredMode()
	assert.Equal(t, 1280, m.Width)
}

func TestPickCRTC(t *testing.T) {
	crtcs := []uint32{40, 41, 42}
	id, ok := PickCRTC(crtcs, 0b100)
	assert.True(t, ok)
	assert.Equal(t, uint32(42), id)
	id, ok = PickCRTC(crtcs, 0b011)
	assert.True(t, ok)
	assert.Equal(t, uint32(40), id)
	_, ok = PickCRTC(crtcs, 0b1000)
	assert.False(t, ok)
}
