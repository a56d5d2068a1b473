// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"image"
	"time"
)

// Device is the interface that defines a logical device
// with a single queue.
// Every resource created from a Device must be destroyed
// before the Device itself.
type Device interface {
	Destroyer

	// Adapter returns the adapter from which the device
	// was created.
	Adapter() Adapter

	// QueueFamily returns the queue family index of the
	// device's queue.
	QueueFamily() int

	// Queue returns the device's queue.
	Queue() Queue

	// MemoryTypes returns the memory types that the
	// device exposes. An index in this slice identifies
	// the type in calls to Alloc.
	MemoryTypes() []MemoryType

	// FormatFeatures returns the features supported by
	// f when used with optimal tiling.
	FormatFeatures(f PixelFmt) FormatFeature

	// Alloc allocates size bytes of device memory from
	// the memory type identified by typeIndex.
	Alloc(size int64, typeIndex int) (Memory, error)

	// NewImage creates a new 2D image.
	// The image has no backing memory until Bind is
	// called on it.
	NewImage(desc ImageDesc) (Image, error)

	// NewBuffer creates a new buffer.
	// The buffer has no backing memory until Bind is
	// called on it.
	NewBuffer(size int64, usage Usage) (Buffer, error)

	// NewRenderPass creates a new render pass with a
	// single subpass.
	NewRenderPass(desc PassDesc) (RenderPass, error)

	// NewFramebuf creates a new framebuffer for pass.
	// views must match the pass' attachments in order.
	NewFramebuf(pass RenderPass, views []ImageView, width, height int) (Framebuf, error)

	// NewCmdPool creates a new command pool for the
	// device's queue family.
	NewCmdPool() (CmdPool, error)

	// NewPipelineCache creates a new pipeline cache.
	NewPipelineCache() (PipelineCache, error)

	// NewFence creates a new fence.
	NewFence(signaled bool) (Fence, error)

	// NewSemaphore creates a new binary semaphore.
	NewSemaphore() (Semaphore, error)

	// NewSwapchain creates a new swapchain on sf.
	// If old is not nil, it is passed to the driver as
	// the swapchain being replaced. The caller is still
	// responsible for destroying old.
	NewSwapchain(sf Surface, desc SwapchainDesc, old Swapchain) (Swapchain, error)

	// WaitIdle blocks until the device has no work
	// in flight.
	WaitIdle() error
}

// Queue is the interface that defines a device queue.
// Queues are not safe for concurrent use.
type Queue interface {
	// Submit submits batches of work for execution.
	// If fence is not nil, it is signaled when every
	// batch completes. A batch with no command buffers
	// only performs its semaphore operations.
	Submit(batches []Submit, fence Fence) error

	// Present queues the swapchain image identified by
	// index for presentation, after every semaphore in
	// wait is signaled.
	// It may return ErrOutOfDate or ErrSuboptimal.
	Present(sc Swapchain, index int, wait []Semaphore) error

	// WaitIdle blocks until the queue has no work in
	// flight.
	WaitIdle() error
}

// Submit describes one batch of a queue submission.
// Stages must have the same length as Wait, each entry
// being the stage at which the corresponding wait occurs.
type Submit struct {
	Wait   []Semaphore
	Stages []Sync
	Cmds   []CmdBuffer
	Signal []Semaphore
}

// Sync is the type of a synchronization scope.
type Sync int

// Synchronization scopes.
const (
	SColorOutput Sync = 1 << iota
	SDSOutput
	SCopy
	STop
	SBottom
	SAll
	SNone Sync = 0
)

// Layout is the type of an image layout.
type Layout int

// Image layouts.
const (
	LUndefined Layout = iota
	LColorTarget
	LDSTarget
	LCopySrc
	LCopyDst
	LPresent
)

func (l Layout) String() string {
	switch l {
	case LColorTarget:
		return "color-target"
	case LDSTarget:
		return "ds-target"
	case LCopySrc:
		return "copy-src"
	case LCopyDst:
		return "copy-dst"
	case LPresent:
		return "present"
	}
	return "undefined"
}

// LoadOp is the type of an attachment's load operation.
type LoadOp int

// Load operations.
const (
	LDontCare LoadOp = iota
	LClear
	LLoad
)

// PassDesc describes a render pass with one color and
// (optionally) one depth attachment.
// Color attachments are always stored; depth is
// discarded at the end of the pass.
// Initial is the layout the color attachment is expected
// to be in when the pass begins; it is ignored when Load
// is LClear or LDontCare.
type PassDesc struct {
	Color   PixelFmt
	Depth   PixelFmt
	Load    LoadOp
	Initial Layout
	Final   Layout
}

// HasDepth returns whether the pass has a depth
// attachment.
func (d *PassDesc) HasDepth() bool { return d.Depth != FUndefined }

// RenderPass is the interface that defines a render pass
// into which draw commands operate.
// All framebuffers created for a render pass must be
// destroyed before the render pass itself is destroyed.
type RenderPass interface {
	Destroyer

	// Desc returns the description used to create the
	// render pass.
	Desc() PassDesc
}

// Framebuf is the interface that defines the render targets
// of a render pass.
type Framebuf interface {
	Destroyer

	// Size returns the dimensions of the framebuffer.
	Size() (width, height int)

	// Views returns the attachments.
	Views() []ImageView
}

// ClearValue defines clear values for color or depth/stencil
// aspects of a render target.
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// CmdPool is the interface that defines a pool from which
// command buffers are allocated.
type CmdPool interface {
	Destroyer

	// Alloc allocates n primary command buffers.
	Alloc(n int) ([]CmdBuffer, error)

	// Free returns command buffers to the pool.
	// The buffers must not be pending execution.
	Free(cbs []CmdBuffer)
}

// CmdBuffer is the interface that defines a command buffer.
// Recording methods do not report errors; failures are
// reported by End.
type CmdBuffer interface {
	// Begin prepares the command buffer for recording,
	// implicitly resetting it.
	Begin() error

	// End ends recording.
	End() error

	// BeginPass begins a render pass on fb.
	// clear must contain one value per attachment when
	// the pass clears them.
	BeginPass(pass RenderPass, fb Framebuf, clear []ClearValue)

	// EndPass ends the current render pass.
	EndPass()

	// ClearRects clears the given rectangles of the
	// color attachment of the current render pass.
	ClearRects(color [4]float32, rects []image.Rectangle)

	// Transition records a layout transition of img.
	Transition(img Image, before, after Layout)

	// CopyImageToBuffer copies the whole of img, which
	// must be in the LCopySrc layout, into buf, tightly
	// packed.
	CopyImageToBuffer(img Image, buf Buffer)
}

// Fence is the interface that defines a host-waitable
// synchronization primitive.
type Fence interface {
	Destroyer

	// Wait blocks until the fence is signaled or the
	// timeout expires (in which case ErrTimeout is
	// returned).
	Wait(timeout time.Duration) error

	// Reset sets the fence to the unsignaled state.
	Reset() error

	// Signaled returns whether the fence is signaled.
	Signaled() (bool, error)
}

// Semaphore is the interface that defines a GPU-to-GPU
// synchronization primitive.
type Semaphore interface {
	Destroyer
}

// PipelineCache is the interface that defines a cache
// of pipeline state.
type PipelineCache interface {
	Destroyer
}

// MemProp is a mask of memory properties.
type MemProp int

// Memory properties.
const (
	MemDeviceLocal MemProp = 1 << iota
	MemHostVisible
	MemHostCoherent
	MemHostCached
)

// MemoryType describes a type of device memory.
type MemoryType struct {
	Props MemProp
	Heap  int
}

// MemReq describes the memory requirements of a resource.
// Bit i of TypeBits is set if the memory type of index i
// can back the resource.
type MemReq struct {
	Size     int64
	Align    int64
	TypeBits uint32
}

// Memory is the interface that defines a device memory
// allocation.
type Memory interface {
	Destroyer

	// Size returns the size of the allocation in bytes.
	Size() int64

	// Map maps the whole allocation into host memory.
	// It fails if the memory type is not host visible.
	Map() ([]byte, error)

	// Unmap unmaps the allocation.
	Unmap()
}

// Usage is a mask indicating valid uses for a resource.
type Usage int

// Usage flags for Buffer and Image.
const (
	// The resource can be used as color render target.
	// Valid only for Image.
	UColorTarget Usage = 1 << iota
	// The resource can be used as depth/stencil render
	// target. Valid only for Image.
	UDSTarget
	// The resource can be the source of a copy.
	UCopySrc
	// The resource can be the destination of a copy.
	UCopyDst
)

// ImageDesc describes a 2D image.
type ImageDesc struct {
	Format PixelFmt
	Width  int
	Height int
	Usage  Usage
}

// Image is the interface that defines a GPU image.
type Image interface {
	Destroyer

	// Desc returns the image description.
	Desc() ImageDesc

	// Requirements returns the memory requirements of
	// the image.
	Requirements() MemReq

	// Bind binds mem at offset off as the image's
	// backing storage.
	Bind(mem Memory, off int64) error

	// NewView creates a new 2D image view.
	// All views created from a given image must be
	// destroyed before the image itself is destroyed.
	NewView() (ImageView, error)
}

// ImageView is the interface that defines a typed view of
// an Image resource.
type ImageView interface {
	Destroyer

	// Image returns the viewed image.
	Image() Image
}

// Buffer is the interface that defines a GPU buffer.
type Buffer interface {
	Destroyer

	// Size returns the size of the buffer in bytes.
	Size() int64

	// Requirements returns the memory requirements of
	// the buffer.
	Requirements() MemReq

	// Bind binds mem at offset off as the buffer's
	// backing storage.
	Bind(mem Memory, off int64) error
}

// PixelFmt describes the format of a pixel.
type PixelFmt int

// Pixel formats.
const (
	FUndefined PixelFmt = iota
	// Color, 8-bit channels.
	RGBA8un
	RGBA8sRGB
	BGRA8un
	BGRA8sRGB
	// Depth/Stencil.
	D16un
	D32f
	D24unS8ui
	D32fS8ui
)

// IsDepth returns whether f is a depth format.
func (f PixelFmt) IsDepth() bool { return f >= D16un && f <= D32fS8ui }

// HasStencil returns whether f has a stencil aspect.
func (f PixelFmt) HasStencil() bool { return f == D24unS8ui || f == D32fS8ui }

// Size returns the size in bytes of a pixel of format f.
func (f PixelFmt) Size() int {
	switch f {
	case D16un:
		return 2
	case D32fS8ui:
		return 8
	case FUndefined:
		return 0
	}
	return 4
}

func (f PixelFmt) String() string {
	switch f {
	case RGBA8un:
		return "RGBA8un"
	case RGBA8sRGB:
		return "RGBA8sRGB"
	case BGRA8un:
		return "BGRA8un"
	case BGRA8sRGB:
		return "BGRA8sRGB"
	case D16un:
		return "D16un"
	case D32f:
		return "D32f"
	case D24unS8ui:
		return "D24unS8ui"
	case D32fS8ui:
		return "D32fS8ui"
	}
	return "undefined"
}

// FormatFeature is a mask of format features.
type FormatFeature int

// Format features.
const (
	FColorTarget FormatFeature = 1 << iota
	FDSTarget
	FCopySrc
	FCopyDst
)
