// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vk "github.com/goki/vulkan"

	"github.com/gviegas/vkdemo/driver"
)

// convFormat converts a driver.PixelFmt to a vk.Format.
func convFormat(f driver.PixelFmt) vk.Format {
	switch f {
	case driver.RGBA8un:
		return vk.FormatR8g8b8a8Unorm
	case driver.RGBA8sRGB:
		return vk.FormatR8g8b8a8Srgb
	case driver.BGRA8un:
		return vk.FormatB8g8r8a8Unorm
	case driver.BGRA8sRGB:
		return vk.FormatB8g8r8a8Srgb
	case driver.D16un:
		return vk.FormatD16Unorm
	case driver.D32f:
		return vk.FormatD32Sfloat
	case driver.D24unS8ui:
		return vk.FormatD24UnormS8Uint
	case driver.D32fS8ui:
		return vk.FormatD32SfloatS8Uint
	}
	return vk.FormatUndefined
}

// pixelFmt converts a vk.Format to a driver.PixelFmt.
// Formats that package driver does not define are
// converted to driver.FUndefined.
func pixelFmt(f vk.Format) driver.PixelFmt {
	switch f {
	case vk.FormatR8g8b8a8Unorm:
		return driver.RGBA8un
	case vk.FormatR8g8b8a8Srgb:
		return driver.RGBA8sRGB
	case vk.FormatB8g8r8a8Unorm:
		return driver.BGRA8un
	case vk.FormatB8g8r8a8Srgb:
		return driver.BGRA8sRGB
	case vk.FormatD16Unorm:
		return driver.D16un
	case vk.FormatD32Sfloat:
		return driver.D32f
	case vk.FormatD24UnormS8Uint:
		return driver.D24unS8ui
	case vk.FormatD32SfloatS8Uint:
		return driver.D32fS8ui
	}
	return driver.FUndefined
}

// convLayout converts a driver.Layout to a vk.ImageLayout.
func convLayout(l driver.Layout) vk.ImageLayout {
	switch l {
	case driver.LColorTarget:
		return vk.ImageLayoutColorAttachmentOptimal
	case driver.LDSTarget:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case driver.LCopySrc:
		return vk.ImageLayoutTransferSrcOptimal
	case driver.LCopyDst:
		return vk.ImageLayoutTransferDstOptimal
	case driver.LPresent:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

// convSync converts a driver.Sync to a vk.PipelineStageFlags.
func convSync(s driver.Sync) vk.PipelineStageFlags {
	if s == driver.SNone {
		return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	var flags vk.PipelineStageFlagBits
	if s&driver.SColorOutput != 0 {
		flags |= vk.PipelineStageColorAttachmentOutputBit
	}
	if s&driver.SDSOutput != 0 {
		flags |= vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit
	}
	if s&driver.SCopy != 0 {
		flags |= vk.PipelineStageTransferBit
	}
	if s&driver.STop != 0 {
		flags |= vk.PipelineStageTopOfPipeBit
	}
	if s&driver.SBottom != 0 {
		flags |= vk.PipelineStageBottomOfPipeBit
	}
	if s&driver.SAll != 0 {
		flags |= vk.PipelineStageAllCommandsBit
	}
	return vk.PipelineStageFlags(flags)
}

// layoutAccess returns the pipeline stage and access mask
// that a layout transition must synchronize with.
func layoutAccess(l driver.Layout) (vk.PipelineStageFlagBits, vk.AccessFlagBits) {
	switch l {
	case driver.LColorTarget:
		return vk.PipelineStageColorAttachmentOutputBit, vk.AccessColorAttachmentWriteBit
	case driver.LDSTarget:
		return vk.PipelineStageEarlyFragmentTestsBit, vk.AccessDepthStencilAttachmentWriteBit
	case driver.LCopySrc:
		return vk.PipelineStageTransferBit, vk.AccessTransferReadBit
	case driver.LCopyDst:
		return vk.PipelineStageTransferBit, vk.AccessTransferWriteBit
	case driver.LPresent:
		return vk.PipelineStageBottomOfPipeBit, 0
	}
	return vk.PipelineStageTopOfPipeBit, 0
}

// imageUsage converts a driver.Usage to a vk.ImageUsageFlags.
func imageUsage(u driver.Usage) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlagBits
	if u&driver.UColorTarget != 0 {
		flags |= vk.ImageUsageColorAttachmentBit
	}
	if u&driver.UDSTarget != 0 {
		flags |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if u&driver.UCopySrc != 0 {
		flags |= vk.ImageUsageTransferSrcBit
	}
	if u&driver.UCopyDst != 0 {
		flags |= vk.ImageUsageTransferDstBit
	}
	return vk.ImageUsageFlags(flags)
}

// usage converts a vk.ImageUsageFlags to a driver.Usage.
func usage(flags vk.ImageUsageFlags) (u driver.Usage) {
	if flags&vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit) != 0 {
		u |= driver.UColorTarget
	}
	if flags&vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit) != 0 {
		u |= driver.UDSTarget
	}
	if flags&vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit) != 0 {
		u |= driver.UCopySrc
	}
	if flags&vk.ImageUsageFlags(vk.ImageUsageTransferDstBit) != 0 {
		u |= driver.UCopyDst
	}
	return
}

// bufferUsage converts a driver.Usage to a vk.BufferUsageFlags.
func bufferUsage(u driver.Usage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlagBits
	if u&driver.UCopySrc != 0 {
		flags |= vk.BufferUsageTransferSrcBit
	}
	if u&driver.UCopyDst != 0 {
		flags |= vk.BufferUsageTransferDstBit
	}
	return vk.BufferUsageFlags(flags)
}

// aspect returns the aspect mask of format f.
func aspect(f driver.PixelFmt) vk.ImageAspectFlags {
	switch {
	case f.HasStencil():
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	case f.IsDepth():
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

// convPresentMode converts a driver.PresentMode to a
// vk.PresentMode.
func convPresentMode(m driver.PresentMode) vk.PresentMode {
	switch m {
	case driver.Immediate:
		return vk.PresentModeImmediate
	case driver.Mailbox:
		return vk.PresentModeMailbox
	case driver.FIFORelaxed:
		return vk.PresentModeFifoRelaxed
	}
	return vk.PresentModeFifo
}

// presentMode converts a vk.PresentMode to a
// driver.PresentMode.
func presentMode(m vk.PresentMode) (driver.PresentMode, bool) {
	switch m {
	case vk.PresentModeImmediate:
		return driver.Immediate, true
	case vk.PresentModeMailbox:
		return driver.Mailbox, true
	case vk.PresentModeFifo:
		return driver.FIFO, true
	case vk.PresentModeFifoRelaxed:
		return driver.FIFORelaxed, true
	}
	return 0, false
}
