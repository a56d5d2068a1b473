// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	goimage "image"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
)

// cmdPool implements driver.CmdPool.
type cmdPool struct {
	d    *device
	pool vk.CommandPool
}

func (d *device) NewCmdPool() (driver.CmdPool, error) {
	var pool vk.CommandPool
	err := checkResult(vk.CreateCommandPool(d.dev, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: d.qfam,
	}, nil, &pool))
	if err != nil {
		return nil, err
	}
	return &cmdPool{d: d, pool: pool}, nil
}

func (p *cmdPool) Destroy() {
	if p.pool != vk.NullCommandPool {
		vk.DestroyCommandPool(p.d.dev, p.pool, nil)
		p.pool = vk.NullCommandPool
	}
}

func (p *cmdPool) Alloc(n int) ([]driver.CmdBuffer, error) {
	if n <= 0 {
		return nil, nil
	}
	cbs := make([]vk.CommandBuffer, n)
	err := checkResult(vk.AllocateCommandBuffers(p.d.dev, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(n),
	}, cbs))
	if err != nil {
		return nil, err
	}
	res := make([]driver.CmdBuffer, n)
	for i := range cbs {
		res[i] = &cmdBuffer{p: p, cb: cbs[i]}
	}
	return res, nil
}

func (p *cmdPool) Free(cbs []driver.CmdBuffer) {
	if len(cbs) == 0 {
		return
	}
	vcbs := make([]vk.CommandBuffer, len(cbs))
	for i := range cbs {
		vcbs[i] = cbs[i].(*cmdBuffer).cb
	}
	vk.FreeCommandBuffers(p.d.dev, p.pool, uint32(len(vcbs)), vcbs)
}

// cmdBuffer implements driver.CmdBuffer.
type cmdBuffer struct {
	p      *cmdPool
	cb     vk.CommandBuffer
	fb     *framebuf
	err    error
	inPass bool
}

func (cb *cmdBuffer) Begin() error {
	cb.err = nil
	cb.fb = nil
	cb.inPass = false
	if err := checkResult(vk.ResetCommandBuffer(cb.cb, 0)); err != nil {
		return err
	}
	return checkResult(vk.BeginCommandBuffer(cb.cb, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}))
}

func (cb *cmdBuffer) End() error {
	if cb.inPass {
		cb.fail(errors.New("vk: command buffer ended inside a render pass"))
		vk.CmdEndRenderPass(cb.cb)
		cb.inPass = false
	}
	if err := checkResult(vk.EndCommandBuffer(cb.cb)); err != nil {
		return err
	}
	return cb.err
}

// fail records the first recording error.
func (cb *cmdBuffer) fail(err error) {
	if cb.err == nil {
		cb.err = err
	}
}

func (cb *cmdBuffer) BeginPass(pass driver.RenderPass, fb driver.Framebuf, clear []driver.ClearValue) {
	rp := pass.(*renderPass)
	f := fb.(*framebuf)
	desc := rp.desc
	var clears []vk.ClearValue
	if desc.Load == driver.LClear {
		if len(clear) < len(f.views) {
			cb.fail(errors.Errorf("vk: %d clear values for %d attachments", len(clear), len(f.views)))
			return
		}
		clears = make([]vk.ClearValue, len(f.views))
		clears[0] = vk.NewClearValue(clear[0].Color[:])
		if desc.HasDepth() {
			clears[1] = vk.NewClearDepthStencil(clear[1].Depth, clear[1].Stencil)
		}
	}
	vk.CmdBeginRenderPass(cb.cb, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.pass,
		Framebuffer: f.fb,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: uint32(f.width), Height: uint32(f.height)},
		},
		ClearValueCount: uint32(len(clears)),
		PClearValues:    clears,
	}, vk.SubpassContentsInline)
	cb.fb = f
	cb.inPass = true
}

func (cb *cmdBuffer) EndPass() {
	if !cb.inPass {
		cb.fail(errors.New("vk: EndPass outside of a render pass"))
		return
	}
	vk.CmdEndRenderPass(cb.cb)
	cb.inPass = false
}

func (cb *cmdBuffer) ClearRects(color [4]float32, rects []goimage.Rectangle) {
	if !cb.inPass {
		cb.fail(errors.New("vk: ClearRects outside of a render pass"))
		return
	}
	bounds := goimage.Rect(0, 0, cb.fb.width, cb.fb.height)
	crs := make([]vk.ClearRect, 0, len(rects))
	for _, r := range rects {
		r = r.Intersect(bounds)
		if r.Empty() {
			continue
		}
		crs = append(crs, vk.ClearRect{
			Rect: vk.Rect2D{
				Offset: vk.Offset2D{X: int32(r.Min.X), Y: int32(r.Min.Y)},
				Extent: vk.Extent2D{Width: uint32(r.Dx()), Height: uint32(r.Dy())},
			},
			LayerCount: 1,
		})
	}
	if len(crs) == 0 {
		return
	}
	vk.CmdClearAttachments(cb.cb, 1, []vk.ClearAttachment{{
		AspectMask:      vk.ImageAspectFlags(vk.ImageAspectColorBit),
		ColorAttachment: 0,
		ClearValue:      vk.NewClearValue(color[:]),
	}}, uint32(len(crs)), crs)
}

func (cb *cmdBuffer) Transition(img driver.Image, before, after driver.Layout) {
	if cb.inPass {
		cb.fail(errors.New("vk: Transition inside a render pass"))
		return
	}
	m := img.(*image)
	srcStage, srcAccess := layoutAccess(before)
	dstStage, dstAccess := layoutAccess(after)
	if after == driver.LPresent {
		dstStage = vk.PipelineStageBottomOfPipeBit
	}
	vk.CmdPipelineBarrier(cb.cb,
		vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage), 0,
		0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(srcAccess),
			DstAccessMask:       vk.AccessFlags(dstAccess),
			OldLayout:           convLayout(before),
			NewLayout:           convLayout(after),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               m.img,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: aspect(m.desc.Format),
				LevelCount: 1,
				LayerCount: 1,
			},
		}})
}

func (cb *cmdBuffer) CopyImageToBuffer(img driver.Image, buf driver.Buffer) {
	if cb.inPass {
		cb.fail(errors.New("vk: CopyImageToBuffer inside a render pass"))
		return
	}
	m := img.(*image)
	b := buf.(*buffer)
	need := int64(m.desc.Width) * int64(m.desc.Height) * int64(m.desc.Format.Size())
	if b.size < need {
		cb.fail(errors.Errorf("vk: buffer of %d bytes too small for %d-byte image copy", b.size, need))
		return
	}
	vk.CmdCopyImageToBuffer(cb.cb, m.img, vk.ImageLayoutTransferSrcOptimal, b.buf, 1, []vk.BufferImageCopy{{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: aspect(m.desc.Format),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{Width: uint32(m.desc.Width), Height: uint32(m.desc.Height), Depth: 1},
	}})
}
