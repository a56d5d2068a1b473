// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
)

// renderPass implements driver.RenderPass.
type renderPass struct {
	d    *device
	pass vk.RenderPass
	desc driver.PassDesc
}

func convLoadOp(op driver.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case driver.LClear:
		return vk.AttachmentLoadOpClear
	case driver.LLoad:
		return vk.AttachmentLoadOpLoad
	}
	return vk.AttachmentLoadOpDontCare
}

// externalDependency returns the dependency of the only
// subpass on prior work.
// The color layout transition waits for the acquire
// semaphore's wait stage. The depth attachment is shared
// by frames in flight, so its clear also waits for the
// depth writes of the previous frame.
func externalDependency(depth bool) vk.SubpassDependency {
	srcStage := vk.PipelineStageColorAttachmentOutputBit
	dstStage := vk.PipelineStageColorAttachmentOutputBit
	var srcAccess vk.AccessFlagBits
	dstAccess := vk.AccessColorAttachmentWriteBit
	if depth {
		srcStage |= vk.PipelineStageLateFragmentTestsBit
		dstStage |= vk.PipelineStageEarlyFragmentTestsBit
		srcAccess |= vk.AccessDepthStencilAttachmentWriteBit
		dstAccess |= vk.AccessDepthStencilAttachmentWriteBit
	}
	return vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(srcStage),
		DstStageMask:  vk.PipelineStageFlags(dstStage),
		SrcAccessMask: vk.AccessFlags(srcAccess),
		DstAccessMask: vk.AccessFlags(dstAccess),
	}
}

func (d *device) NewRenderPass(desc driver.PassDesc) (driver.RenderPass, error) {
	if convFormat(desc.Color) == vk.FormatUndefined || desc.Color.IsDepth() {
		return nil, errors.Errorf("vk: invalid color attachment format %v", desc.Color)
	}
	initial := vk.ImageLayoutUndefined
	if desc.Load == driver.LLoad {
		initial = convLayout(desc.Initial)
	}
	atts := []vk.AttachmentDescription{{
		Format:         convFormat(desc.Color),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         convLoadOp(desc.Load),
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  initial,
		FinalLayout:    convLayout(desc.Final),
	}}
	sub := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
	}
	if desc.HasDepth() {
		if !desc.Depth.IsDepth() {
			return nil, errors.Errorf("vk: invalid depth attachment format %v", desc.Depth)
		}
		load := vk.AttachmentLoadOpDontCare
		if desc.Load == driver.LClear {
			load = vk.AttachmentLoadOpClear
		}
		atts = append(atts, vk.AttachmentDescription{
			Format:         convFormat(desc.Depth),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         load,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  load,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		sub.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}
	dep := externalDependency(desc.HasDepth())
	var pass vk.RenderPass
	err := checkResult(vk.CreateRenderPass(d.dev, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(atts)),
		PAttachments:    atts,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{sub},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dep},
	}, nil, &pass))
	if err != nil {
		return nil, err
	}
	return &renderPass{d: d, pass: pass, desc: desc}, nil
}

func (p *renderPass) Destroy() {
	if p.pass != vk.NullRenderPass {
		vk.DestroyRenderPass(p.d.dev, p.pass, nil)
		p.pass = vk.NullRenderPass
	}
}

func (p *renderPass) Desc() driver.PassDesc { return p.desc }

// framebuf implements driver.Framebuf.
type framebuf struct {
	d      *device
	fb     vk.Framebuffer
	views  []driver.ImageView
	width  int
	height int
}

func (d *device) NewFramebuf(pass driver.RenderPass, views []driver.ImageView, width, height int) (driver.Framebuf, error) {
	rp := pass.(*renderPass)
	want := 1
	if rp.desc.HasDepth() {
		want = 2
	}
	if len(views) != want {
		return nil, errors.Errorf("vk: framebuffer with %d views for pass with %d attachments", len(views), want)
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("vk: invalid framebuffer size %dx%d", width, height)
	}
	ivs := make([]vk.ImageView, len(views))
	for i := range views {
		ivs[i] = views[i].(*imageView).view
	}
	var fb vk.Framebuffer
	err := checkResult(vk.CreateFramebuffer(d.dev, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.pass,
		AttachmentCount: uint32(len(ivs)),
		PAttachments:    ivs,
		Width:           uint32(width),
		Height:          uint32(height),
		Layers:          1,
	}, nil, &fb))
	if err != nil {
		return nil, err
	}
	return &framebuf{
		d:      d,
		fb:     fb,
		views:  append([]driver.ImageView(nil), views...),
		width:  width,
		height: height,
	}, nil
}

func (f *framebuf) Destroy() {
	if f.fb != vk.NullFramebuffer {
		vk.DestroyFramebuffer(f.d.dev, f.fb, nil)
		f.fb = vk.NullFramebuffer
	}
}

func (f *framebuf) Size() (width, height int) { return f.width, f.height }
func (f *framebuf) Views() []driver.ImageView  { return append([]driver.ImageView(nil), f.views...) }
