// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build linux

package xcb

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/vkdemo/swapchain"
	"github.com/gviegas/vkdemo/wsi"
)

func TestTranslate(t *testing.T) {
	tr := translator{win: 42, protocols: 100, delete: 101, width: 640, height: 480}

	// Evdev 30 is A, 42 is left shift.
	cases := []struct {
		ev   rawEvent
		want wsi.Event
	}{
		{rawEvent{typ: evKeyPress, detail: 30 + keycodeOffset}, wsi.KeyEvent{Key: wsi.KeyA, Pressed: true}},
		{rawEvent{typ: evKeyPress, detail: 42 + keycodeOffset}, wsi.KeyEvent{Key: wsi.KeyLShift, Pressed: true, Mods: wsi.ModShift}},
		{rawEvent{typ: evKeyRelease, detail: 30 + keycodeOffset}, wsi.KeyEvent{Key: wsi.KeyA, Mods: wsi.ModShift}},
		{rawEvent{typ: evKeyRelease, detail: 42 + keycodeOffset}, wsi.KeyEvent{Key: wsi.KeyLShift}},
		{rawEvent{typ: evButtonPress, detail: 1, x: 3, y: 4}, wsi.PointerButton{Button: wsi.BtnLeft, Pressed: true, X: 3, Y: 4}},
		{rawEvent{typ: evButtonRelease, detail: 3, x: 5, y: 6}, wsi.PointerButton{Button: wsi.BtnRight, X: 5, Y: 6}},
		{rawEvent{typ: evButtonPress, detail: 2}, wsi.PointerButton{Button: wsi.BtnMiddle, Pressed: true}},
		{rawEvent{typ: evButtonPress, detail: 8}, wsi.PointerButton{Button: wsi.BtnBackward, Pressed: true}},
		{rawEvent{typ: evButtonPress, detail: 4}, wsi.Scroll{DY: -1}},
		{rawEvent{typ: evButtonPress, detail: 5}, wsi.Scroll{DY: 1}},
		{rawEvent{typ: evButtonPress, detail: 6}, wsi.Scroll{DX: -1}},
		{rawEvent{typ: evButtonPress, detail: 7}, wsi.Scroll{DX: 1}},
		{rawEvent{typ: evMotionNotify, x: 10, y: 20}, wsi.PointerMotion{X: 10, Y: 20}},
		{rawEvent{typ: evConfigureNotify, window: 42, width: 800, height: 600}, wsi.ResizeEvent{Width: 800, Height: 600}},
		{rawEvent{typ: evClientMessage, window: 42, msgType: 100, data0: 101}, wsi.QuitEvent{}},
	}
	for _, c := range cases {
		ev, ok := tr.translate(c.ev)
		require.True(t, ok, "%+v", c.ev)
		assert.Equal(t, c.want, ev)
	}
	w, h := tr.width, tr.height
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)

	ignored := []rawEvent{
		{typ: evButtonRelease, detail: 4},
		// Move without resize.
		{typ: evConfigureNotify, window: 42, x: 10, width: 800, height: 600},
		// Another window.
		{typ: evConfigureNotify, window: 7, width: 100, height: 100},
		{typ: evClientMessage, window: 42, msgType: 100, data0: 55},
		// Errors have response type 0.
		{typ: 0},
		// Expose.
		{typ: 12},
	}
	for _, ev := range ignored {
		_, ok := tr.translate(ev)
		assert.False(t, ok, "%+v", ev)
	}
}

func TestCapsLock(t *testing.T) {
	var tr translator
	// Evdev 58 is caps lock.
	ev, _ := tr.translate(rawEvent{typ: evKeyPress, detail: 58 + keycodeOffset})
	assert.Equal(t, wsi.ModCapsLock, ev.(wsi.KeyEvent).Mods)
	ev, _ = tr.translate(rawEvent{typ: evKeyRelease, detail: 58 + keycodeOffset, state: modMaskLock})
	assert.Equal(t, wsi.ModCapsLock, ev.(wsi.KeyEvent).Mods)
	ev, _ = tr.translate(rawEvent{typ: evKeyPress, detail: 58 + keycodeOffset, state: modMaskLock})
	assert.Equal(t, wsi.Modifier(0), ev.(wsi.KeyEvent).Mods)
}

func TestModeRefresh(t *testing.T) {
	// CEA 1920x1080@60.
	assert.Equal(t, 60000, modeRefresh(148500000, 2200, 1125))
	// 1920x1080@59.94.
	assert.Equal(t, 59940, modeRefresh(148352000, 2200, 1125))
	assert.Zero(t, modeRefresh(148500000, 0, 1125))
}

func TestLeaseCRTC(t *testing.T) {
	assert.Equal(t, uint32(5), leaseCRTC(output{crtc: 5, crtcs: []uint32{3, 5}}))
	assert.Equal(t, uint32(3), leaseCRTC(output{crtcs: []uint32{3, 5}}))
}

func TestLeaseUnknownOutput(t *testing.T) {
	l := NewLessor(nil)
	_, err := l.Lease(swapchain.LeaseOutput{ID: 9, Name: "HDMI-1"})
	assert.ErrorIs(t, err, swapchain.ErrLeaseDenied)
}

func TestNotConnected(t *testing.T) {
	for _, b := range []wsi.Backend{New(wsi.Options{}), NewLease(wsi.Options{})} {
		_, err := b.InitSwapChain(nil, swapchain.Config{})
		assert.ErrorIs(t, err, wsi.ErrNotConnected)
		_, err = b.Iterate(context.Background())
		assert.ErrorIs(t, err, wsi.ErrNotConnected)
		_, err = b.Screens()
		assert.ErrorIs(t, err, wsi.ErrNotConnected)
		b.Destroy()
		assert.Equal(t, wsi.Destroyed, b.State())
	}
	assert.Equal(t, wsi.XCB, New(wsi.Options{}).Kind())
	assert.Equal(t, wsi.Lease, NewLease(wsi.Options{}).Kind())
}

func TestNoDisplay(t *testing.T) {
	t.Setenv("DISPLAY", "")
	b := New(wsi.Options{Width: 320, Height: 240})
	err := b.Init()
	require.Error(t, err)
	if load() == nil {
		assert.ErrorIs(t, err, ErrConnect)
	}
	assert.Equal(t, wsi.Uninitialized, b.State())
}

func TestWindow(t *testing.T) {
	if os.Getenv("DISPLAY") == "" {
		t.Skip("no X server")
	}
	b := New(wsi.Options{Title: "xcb test", Width: 320, Height: 240}).(*Backend)
	if err := b.Init(); err != nil {
		t.Skipf("xcb unavailable: %v", err)
	}
	defer b.Destroy()
	assert.Equal(t, wsi.Connected, b.State())
	assert.Equal(t, []string{"VK_KHR_surface", "VK_KHR_xcb_surface"}, b.RequiredExtensions())
	w, h := b.Size()
	assert.Positive(t, w)
	assert.Positive(t, h)

	scrs, err := b.Screens()
	require.NoError(t, err)
	assert.NotEmpty(t, scrs)

	evs, err := b.Iterate(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, evs)
	// Nothing has a surface yet.
	assert.Equal(t, wsi.Connected, b.State())
}
