// Copyright 2023 Gustavo C. Viegas. All rights reserved.

//go:build linux

package wayland

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/vkdemo/swapchain"
	"github.com/gviegas/vkdemo/wsi"
)

// Evdev codes.
const (
	evdevA      = 30
	evdevLShift = 42
	evdevCaps   = 58
	evdevLeft   = 0x110
)

func TestInputKeys(t *testing.T) {
	var in input
	in.key(evdevLShift, keyPressed)
	in.key(evdevA, keyPressed)
	in.key(evdevA, 0)
	in.key(evdevLShift, 0)
	assert.Equal(t, []wsi.Event{
		wsi.KeyEvent{Key: wsi.KeyLShift, Pressed: true, Mods: wsi.ModShift},
		wsi.KeyEvent{Key: wsi.KeyA, Pressed: true, Mods: wsi.ModShift},
		wsi.KeyEvent{Key: wsi.KeyA, Mods: wsi.ModShift},
		wsi.KeyEvent{Key: wsi.KeyLShift},
	}, in.queue.Drain())
}

func TestInputCapsLock(t *testing.T) {
	var in input
	in.key(evdevCaps, keyPressed)
	in.modifiers(lockMask)
	in.key(evdevCaps, 0)
	evs := in.queue.Drain()
	require.Len(t, evs, 2)
	assert.Equal(t, wsi.ModCapsLock, evs[0].(wsi.KeyEvent).Mods)
	assert.Equal(t, wsi.ModCapsLock, evs[1].(wsi.KeyEvent).Mods)

	// Leaving keeps the lock but drops held keys.
	in.key(evdevLShift, keyPressed)
	in.keyboardLeave()
	assert.Equal(t, wsi.ModCapsLock, in.mods.Mask())

	in.queue.Drain()
	in.key(evdevCaps, keyPressed)
	assert.Equal(t, wsi.Modifier(0), in.queue.Drain()[0].(wsi.KeyEvent).Mods)
}

func TestInputPointer(t *testing.T) {
	var in input
	in.motion(10*256, 20*256+128)
	in.button(evdevLeft, buttonPressed)
	in.button(evdevLeft, 0)
	in.axis(axisVertical, 10*256)
	in.axis(axisHorizontal, -20*256)
	in.axis(7, 256)
	assert.Equal(t, []wsi.Event{
		wsi.PointerMotion{X: 10, Y: 20},
		wsi.PointerButton{Button: wsi.BtnLeft, Pressed: true, X: 10, Y: 20},
		wsi.PointerButton{Button: wsi.BtnLeft, X: 10, Y: 20},
		wsi.Scroll{DY: 1},
		wsi.Scroll{DX: -2},
	}, in.queue.Drain())
}

func TestInputConfigure(t *testing.T) {
	in := input{width: 640, height: 480}

	// The first configuration is silent.
	in.toplevelConfigure(800, 600)
	in.surfaceConfigure()
	assert.True(t, in.configured)
	assert.Equal(t, 800, in.width)
	assert.Equal(t, 600, in.height)
	assert.Equal(t, []wsi.Event{wsi.RepaintEvent{}}, in.queue.Drain())

	// Zero leaves the size to the client.
	in.toplevelConfigure(0, 0)
	in.surfaceConfigure()
	// Same size.
	in.toplevelConfigure(800, 600)
	in.surfaceConfigure()
	assert.Equal(t, []wsi.Event{wsi.RepaintEvent{}}, in.queue.Drain())

	in.toplevelConfigure(1024, 768)
	in.surfaceConfigure()
	in.toplevelConfigure(1280, 720)
	in.surfaceConfigure()
	assert.Equal(t, []wsi.Event{wsi.ResizeEvent{Width: 1280, Height: 720}}, in.queue.Drain())

	in.shellConfigure(320, 240)
	in.close()
	assert.Equal(t, []wsi.Event{wsi.ResizeEvent{Width: 320, Height: 240}, wsi.QuitEvent{}}, in.queue.Drain())
}

func TestOutputLabel(t *testing.T) {
	assert.Equal(t, "ACME Panel", (&output{make: "ACME", model: "Panel"}).label())
	assert.Equal(t, "Panel", (&output{model: "Panel"}).label())
	assert.Equal(t, "wl_output-7", (&output{name: 7}).label())
}

func TestNotConnected(t *testing.T) {
	for _, b := range []wsi.Backend{New(wsi.Options{}), NewShell(wsi.Options{})} {
		_, err := b.InitSwapChain(nil, swapchain.Config{})
		assert.ErrorIs(t, err, wsi.ErrNotConnected)
		assert.ErrorIs(t, b.CheckSupport(nil), wsi.ErrNotConnected)
		_, err = b.Iterate(context.Background())
		assert.ErrorIs(t, err, wsi.ErrNotConnected)
		_, err = b.Screens()
		assert.ErrorIs(t, err, wsi.ErrNotConnected)
		assert.Equal(t, []string{"VK_KHR_surface", "VK_KHR_wayland_surface"}, b.RequiredExtensions())
		b.Destroy()
		assert.Equal(t, wsi.Destroyed, b.State())
	}
	assert.Equal(t, wsi.Wayland, New(wsi.Options{}).Kind())
	assert.Equal(t, wsi.WaylandShell, NewShell(wsi.Options{}).Kind())
}

func TestNoDisplay(t *testing.T) {
	t.Setenv("WAYLAND_DISPLAY", "")
	t.Setenv("WAYLAND_SOCKET", "")
	b := New(wsi.Options{Width: 320, Height: 240})
	assert.ErrorIs(t, b.Init(), ErrConnect)
	assert.Equal(t, wsi.Uninitialized, b.State())

	assert.Error(t, New(wsi.Options{}).Init())
}

func TestSurface(t *testing.T) {
	if os.Getenv("WAYLAND_DISPLAY") == "" {
		t.Skip("no Wayland compositor")
	}
	b := New(wsi.Options{Title: "wayland test", Width: 320, Height: 240}).(*Backend)
	if err := b.Init(); err != nil {
		t.Skipf("xdg-shell unavailable: %v", err)
	}
	defer b.Destroy()
	assert.Equal(t, wsi.Connected, b.State())
	w, h := b.Size()
	assert.Positive(t, w)
	assert.Positive(t, h)

	_, err := b.Screens()
	require.NoError(t, err)

	evs, err := b.Iterate(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, evs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Iterate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
