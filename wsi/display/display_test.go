// Copyright 2023 Gustavo C. Viegas. All rights reserved.

//go:build linux

package display

import (
	"context"
	"os"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/driver/sim"
	"github.com/gviegas/vkdemo/swapchain"
	"github.com/gviegas/vkdemo/wsi"
)

type testGPU struct {
	inst driver.Instance
	dev  driver.Device
	pool driver.CmdPool
}

func newGPU(t *testing.T, drv *sim.Driver) *testGPU {
	t.Helper()
	inst, err := drv.Open(driver.Config{Extensions: []string{extSurface, extDisplay}})
	require.NoError(t, err)
	dev, err := inst.NewDevice(0, 1)
	require.NoError(t, err)
	pool, err := dev.NewCmdPool()
	require.NoError(t, err)
	return &testGPU{inst, dev, pool}
}

func (g *testGPU) destroy() {
	g.pool.Destroy()
	g.dev.Destroy()
	g.inst.Destroy()
}

func (g *testGPU) Instance() driver.Instance { return g.inst }
func (g *testGPU) Device() driver.Device     { return g.dev }
func (g *testGPU) Queue() driver.Queue       { return g.dev.Queue() }
func (g *testGPU) CmdPool() driver.CmdPool   { return g.pool }

func (g *testGPU) FindMemoryType(typeBits uint32, props driver.MemProp) (int, error) {
	for i, mt := range g.dev.MemoryTypes() {
		if typeBits&(1<<i) != 0 && mt.Props&props == props {
			return i, nil
		}
	}
	return -1, errors.New("no memory type")
}

func devNull(t *testing.T) *os.File {
	f, err := os.Open(os.DevNull)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestPickMode(t *testing.T) {
	disps := []driver.Display{
		{Name: "a"},
		{Name: "b", Modes: []driver.DisplayMode{{Width: 1920, Height: 1080}, {Width: 1280, Height: 720}}},
	}
	d, m, ok := PickMode(disps, 1280, 720)
	require.True(t, ok)
	assert.Equal(t, "b", d.Name)
	assert.Equal(t, 720, m.Height)

	d, m, ok = PickMode(disps, 800, 600)
	require.True(t, ok)
	assert.Equal(t, "b", d.Name)
	assert.Equal(t, 1920, m.Width)

	_, _, ok = PickMode(disps[:1], 800, 600)
	assert.False(t, ok)
}

func TestBackend(t *testing.T) {
	drv := sim.New(sim.DefaultOptions())
	b := New(wsi.Options{Width: 1280, Height: 720, Driver: drv}).(*Backend)
	b.Stdin = devNull(t)
	assert.Equal(t, wsi.KHRDisplay, b.Kind())
	assert.Equal(t, []string{"VK_KHR_surface", "VK_KHR_display"}, b.RequiredExtensions())

	_, err := b.InitSwapChain(nil, swapchain.Config{})
	assert.ErrorIs(t, err, wsi.ErrNotConnected)

	require.NoError(t, b.Init())
	assert.Equal(t, wsi.Connected, b.State())

	scrs, err := b.Screens()
	require.NoError(t, err)
	require.Len(t, scrs, 1)
	assert.Equal(t, "sim-display-0", scrs[0].Name)
	assert.Equal(t, 60000, scrs[0].RefreshMHz)
	assert.Zero(t, drv.Live("instance"))

	gpu := newGPU(t, drv)
	require.NoError(t, b.CheckSupport(gpu))
	w, h := b.Size()
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)

	sc, err := b.InitSwapChain(gpu, swapchain.Config{Width: 1280, Height: 720})
	require.NoError(t, err)
	assert.Equal(t, wsi.SurfaceReady, b.State())
	n, err := sc.Create(1280, 720)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	sw, sh := sc.Extent()
	assert.Equal(t, 1280, sw)
	assert.Equal(t, 720, sh)

	evs, err := b.Iterate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []wsi.Event{wsi.RepaintEvent{}}, evs)
	assert.Equal(t, wsi.Presenting, b.State())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Iterate(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	sc.Destroy()
	b.Destroy()
	gpu.destroy()
	assert.Zero(t, drv.Live("surface"))
	assert.Zero(t, drv.Live("swapchain"))
	assert.Empty(t, drv.Violations())
}

func TestNoDisplay(t *testing.T) {
	opts := sim.DefaultOptions()
	opts.Displays = nil
	drv := sim.New(opts)
	b := New(wsi.Options{}).(*Backend)
	b.Stdin = devNull(t)
	require.NoError(t, b.Init())
	gpu := newGPU(t, drv)
	defer gpu.destroy()
	assert.ErrorIs(t, b.CheckSupport(gpu), driver.ErrCannotPresent)
	_, err := b.Screens()
	assert.Error(t, err)
	b.Destroy()
	assert.Zero(t, drv.Live("surface"))
}
