// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/vkdemo/driver"
)

// openOrSkip opens the Vulkan driver, skipping the test
// when no loader/ICD is installed.
func openOrSkip(t *testing.T) *instance {
	t.Helper()
	drv, err := driver.Lookup(driverName)
	require.NoError(t, err)
	inst, err := drv.Open(driver.Config{AppName: "vk test"})
	if errors.Is(err, driver.ErrNotInstalled) {
		t.Skip("vulkan not installed")
	}
	require.NoError(t, err)
	t.Cleanup(inst.Destroy)
	return inst.(*instance)
}

func TestOpen(t *testing.T) {
	inst := openOrSkip(t)
	assert.Equal(t, driverName, inst.Driver().Name())
	as, err := inst.Adapters()
	require.NoError(t, err)
	for i, a := range as {
		assert.Equal(t, i, a.Index)
		assert.NotEmpty(t, a.Name)
		t.Logf("adapter %d: %s (%v, Vulkan %s)", i, a.Name, a.Type, a.APIVersion)
	}
	_, err = inst.NewDevice(len(as), 0)
	assert.ErrorIs(t, err, driver.ErrNoDevice)
}

func TestDeviceObjects(t *testing.T) {
	inst := openOrSkip(t)
	as, err := inst.Adapters()
	require.NoError(t, err)
	if len(as) == 0 {
		t.Skip("no physical devices")
	}
	fam := as[0].GraphicsFamily()
	if fam < 0 {
		t.Skip("no graphics queue family")
	}
	dev, err := inst.NewDevice(0, fam)
	require.NoError(t, err)
	defer dev.Destroy()

	fen, err := dev.NewFence(true)
	require.NoError(t, err)
	defer fen.Destroy()
	ok, err := fen.Signaled()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, fen.Reset())
	ok, err = fen.Signaled()
	require.NoError(t, err)
	assert.False(t, ok)

	// An empty submission still signals the fence.
	require.NoError(t, dev.Queue().Submit(nil, fen))
	require.NoError(t, fen.Wait(-1))
	require.NoError(t, dev.WaitIdle())
}

func TestFormats(t *testing.T) {
	for _, f := range []driver.PixelFmt{
		driver.RGBA8un, driver.RGBA8sRGB, driver.BGRA8un, driver.BGRA8sRGB,
		driver.D16un, driver.D32f, driver.D24unS8ui, driver.D32fS8ui,
	} {
		vf := convFormat(f)
		assert.NotEqual(t, vk.FormatUndefined, vf, f.String())
		assert.Equal(t, f, pixelFmt(vf))
	}
	assert.Equal(t, vk.FormatUndefined, convFormat(driver.FUndefined))
	assert.Equal(t, driver.FUndefined, pixelFmt(vk.FormatR5g6b5UnormPack16))
}

func TestUsage(t *testing.T) {
	u := driver.UColorTarget | driver.UCopySrc
	assert.Equal(t, u, usage(imageUsage(u)))
	assert.Equal(t, driver.Usage(0), usage(0))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectColorBit), aspect(driver.BGRA8un))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit), aspect(driver.D32f))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit|vk.ImageAspectStencilBit), aspect(driver.D24unS8ui))
}

func TestPresentModes(t *testing.T) {
	for _, m := range []driver.PresentMode{driver.Immediate, driver.Mailbox, driver.FIFO, driver.FIFORelaxed} {
		pm, ok := presentMode(convPresentMode(m))
		assert.True(t, ok)
		assert.Equal(t, m, pm)
	}
}

func TestSelectExts(t *testing.T) {
	sel, missing := selectExts(
		[]string{extSurface, extXCBSurface, extSurface, extWaylandSurface},
		[]string{extSurface, extXCBSurface, extDisplay},
	)
	assert.Equal(t, []string{extSurface, extXCBSurface}, sel)
	assert.Equal(t, []string{extWaylandSurface}, missing)
	assert.Equal(t, []string{"a\x00", "b\x00"}, safeStrings([]string{"a", "b\x00"}))
	assert.Nil(t, safeStrings(nil))
}

func TestCheckResult(t *testing.T) {
	assert.NoError(t, checkResult(vk.Success))
	assert.NoError(t, checkResult(vk.Suboptimal))
	assert.ErrorIs(t, checkResult(vk.ErrorOutOfDate), driver.ErrOutOfDate)
	assert.ErrorIs(t, checkResult(vk.ErrorDeviceLost), driver.ErrDeviceLost)
	assert.ErrorIs(t, checkResult(vk.ErrorOutOfDeviceMemory), driver.ErrNoDeviceMemory)
	assert.ErrorIs(t, checkResult(vk.ErrorInitializationFailed), driver.ErrFatal)
}

func TestVersionString(t *testing.T) {
	assert.Equal(t, "1.3.250", versionString(1<<22|3<<12|250))
	assert.Equal(t, "0.0.0", versionString(0))
}

func TestExternalDependency(t *testing.T) {
	dep := externalDependency(false)
	assert.Equal(t, uint32(vk.SubpassExternal), dep.SrcSubpass)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit), dep.SrcStageMask)
	assert.Zero(t, dep.SrcAccessMask)

	// Depth writes of a previous frame come before the
	// next clear of the shared depth image.
	dep = externalDependency(true)
	assert.NotZero(t, dep.SrcStageMask&vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit))
	assert.NotZero(t, dep.SrcAccessMask&vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit))
	assert.NotZero(t, dep.DstStageMask&vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit))
	assert.NotZero(t, dep.DstAccessMask&vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit))
}
