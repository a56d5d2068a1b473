// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/driver/sim"
	"github.com/gviegas/vkdemo/swapchain"
	"github.com/gviegas/vkdemo/wsi"
)

var _ swapchain.GPU = (*Device)(nil)

func TestDevice(t *testing.T) {
	drv := sim.New(sim.DefaultOptions())
	dev, err := NewDevice(drv, DeviceConfig{AppName: "test", Extensions: []string{"VK_KHR_surface"}})
	require.NoError(t, err)
	assert.Equal(t, "Simulated GPU", dev.Adapter().Name)
	assert.Equal(t, 1, dev.Device().QueueFamily())
	assert.Equal(t, []string{"VK_KHR_surface"}, dev.Instance().Extensions())
	assert.NotNil(t, dev.Queue())
	assert.NotNil(t, dev.CmdPool())
	assert.NotNil(t, dev.PipelineCache())

	// Image memory is limited to types 0 and 2.
	i, err := dev.FindMemoryType(0b101, driver.MemDeviceLocal)
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	i, err = dev.FindMemoryType(0b101, driver.MemHostVisible)
	require.NoError(t, err)
	assert.Equal(t, 2, i)
	_, err = dev.FindMemoryType(0b001, driver.MemHostVisible)
	assert.ErrorIs(t, err, ErrNoMemoryType)

	f, err := dev.DepthFormat()
	require.NoError(t, err)
	assert.Equal(t, driver.D32f, f)

	dev.Destroy()
	dev.Destroy()
	assert.Empty(t, drv.LiveAll())
	assert.Empty(t, drv.Violations())
}

func TestDepthFormat(t *testing.T) {
	for _, x := range [...]struct {
		have []driver.PixelFmt
		want driver.PixelFmt
	}{
		{[]driver.PixelFmt{driver.D16un, driver.D24unS8ui}, driver.D24unS8ui},
		{[]driver.PixelFmt{driver.D16un}, driver.D16un},
		{[]driver.PixelFmt{driver.D32fS8ui, driver.D32f}, driver.D32f},
		{nil, driver.FUndefined},
	} {
		opts := sim.DefaultOptions()
		opts.DepthFormats = x.have
		dev, err := NewDevice(sim.New(opts), DeviceConfig{})
		require.NoError(t, err)
		f, err := dev.DepthFormat()
		assert.Equal(t, x.want, f)
		if x.want == driver.FUndefined {
			assert.ErrorIs(t, err, ErrNoDepthFormat)
			assert.True(t, IsFatal(err))
		} else {
			assert.NoError(t, err)
		}
		dev.Destroy()
	}
}

func TestDeviceSelection(t *testing.T) {
	opts := sim.DefaultOptions()
	second := opts.Adapters[0]
	second.Index = 1
	second.Name = "Second GPU"
	opts.Adapters = append(opts.Adapters, second)
	drv := sim.New(opts)

	dev, err := NewDevice(drv, DeviceConfig{GPU: 1})
	require.NoError(t, err)
	assert.Equal(t, "Second GPU", dev.Adapter().Name)
	dev.Destroy()

	_, err = NewDevice(drv, DeviceConfig{GPU: 2})
	assert.ErrorIs(t, err, driver.ErrNoDevice)
	assert.True(t, IsFatal(err))
	assert.Empty(t, drv.LiveAll())
}

func TestDeviceNoQueue(t *testing.T) {
	opts := sim.DefaultOptions()
	opts.Adapters[0].QueueFamilies = []driver.QueueFamily{{Index: 0, Count: 1, Transfer: true}}
	drv := sim.New(opts)
	_, err := NewDevice(drv, DeviceConfig{})
	assert.ErrorIs(t, err, ErrNoQueue)
	assert.True(t, IsFatal(err))
	assert.Zero(t, drv.Created("device"))
	assert.Empty(t, drv.LiveAll())
}

func TestDeviceOpenError(t *testing.T) {
	opts := sim.DefaultOptions()
	opts.OpenErr = driver.ErrNotInstalled
	_, err := NewDevice(sim.New(opts), DeviceConfig{})
	assert.ErrorIs(t, err, driver.ErrNotInstalled)
}

func TestListGPUs(t *testing.T) {
	drv := sim.New(sim.DefaultOptions())
	var buf bytes.Buffer
	n, err := ListGPUs(drv, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "0: Simulated GPU (discrete, 1234:5678, 1.3.0)\n", buf.String())
	assert.Zero(t, drv.Created("device"))
	assert.Zero(t, drv.Created("swapchain"))
	assert.Empty(t, drv.LiveAll())

	opts := sim.DefaultOptions()
	opts.Adapters = nil
	_, err = ListGPUs(sim.New(opts), &buf)
	assert.ErrorIs(t, err, driver.ErrNoDevice)
}

func TestIsFatal(t *testing.T) {
	for _, err := range []error{
		driver.ErrNoDevice,
		errors.Wrap(driver.ErrDeviceLost, "submit"),
		ErrNoQueue,
		errors.WithMessage(swapchain.ErrLeaseDenied, "lease"),
		swapchain.ErrNoLeaseOutput,
		swapchain.ErrImageCount,
		wsi.ErrNoBackend,
	} {
		assert.True(t, IsFatal(err), "%v", err)
	}
	for _, err := range []error{
		nil,
		ErrQuit,
		wsi.ErrDisconnected,
		driver.ErrOutOfDate,
		errors.New("other"),
	} {
		assert.False(t, IsFatal(err), "%v", err)
	}
}

func TestDataMap(t *testing.T) {
	var m dataMap[Label, string]
	var ids []Label
	for i := range 40 {
		ids = append(ids, m.insert(string(rune('a'+i%26))))
	}
	assert.Equal(t, 40, m.len())
	for i, id := range ids {
		assert.Equal(t, Label(i), id)
	}

	s, ok := m.remove(ids[3])
	require.True(t, ok)
	assert.Equal(t, "d", s)
	_, ok = m.remove(ids[3])
	assert.False(t, ok)
	assert.Nil(t, m.get(ids[3]))
	assert.Equal(t, 39, m.len())
	// The last entry moved into the hole.
	assert.Equal(t, "n", *m.get(ids[39]))

	// Freed identifiers are reused lowest first.
	m.remove(ids[0])
	assert.Equal(t, Label(0), m.insert("x"))
	assert.Equal(t, Label(3), m.insert("y"))
	assert.Equal(t, Label(40), m.insert("z"))
	assert.Equal(t, "y", *m.get(3))
	assert.Nil(t, m.get(-1))
	assert.Nil(t, m.get(1000))
}

func TestLoadDriver(t *testing.T) {
	_, err := LoadDriver("no-such-driver")
	assert.ErrorIs(t, err, driver.ErrNotInstalled)

	opts := sim.DefaultOptions()
	opts.OpenErr = driver.ErrNotInstalled
	driver.Register(sim.New(opts))
	_, err = LoadDriver("sim")
	assert.ErrorIs(t, err, driver.ErrNotInstalled)

	drv := sim.New(sim.DefaultOptions())
	driver.Register(drv)
	d, err := LoadDriver("si")
	require.NoError(t, err)
	assert.Same(t, drv, d)
	assert.Empty(t, drv.LiveAll())
	assert.Equal(t, 1, drv.Created("instance"))
}
