// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
)

// image implements driver.Image.
// Swapchain images are owned by the swapchain and are
// never destroyed through this type.
type image struct {
	d     *device
	img   vk.Image
	desc  driver.ImageDesc
	mem   *memory
	owned bool
}

func (d *device) NewImage(desc driver.ImageDesc) (driver.Image, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, errors.Errorf("vk: invalid image size %dx%d", desc.Width, desc.Height)
	}
	f := convFormat(desc.Format)
	if f == vk.FormatUndefined {
		return nil, errors.Wrapf(driver.ErrUnsupported, "vk: image format %v", desc.Format)
	}
	var img vk.Image
	err := checkResult(vk.CreateImage(d.dev, &vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        f,
		Extent:        vk.Extent3D{Width: uint32(desc.Width), Height: uint32(desc.Height), Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         imageUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &img))
	if err != nil {
		return nil, err
	}
	return &image{d: d, img: img, desc: desc, owned: true}, nil
}

func (m *image) Destroy() {
	if m.owned && m.d != nil {
		vk.DestroyImage(m.d.dev, m.img, nil)
		m.d = nil
	}
}

func (m *image) Desc() driver.ImageDesc { return m.desc }

func (m *image) Requirements() driver.MemReq {
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(m.d.dev, m.img, &req)
	req.Deref()
	return driver.MemReq{Size: int64(req.Size), Align: int64(req.Alignment), TypeBits: req.MemoryTypeBits}
}

func (m *image) Bind(mem driver.Memory, off int64) error {
	if !m.owned {
		return errors.New("vk: cannot bind memory to a swapchain image")
	}
	mm := mem.(*memory)
	if err := checkResult(vk.BindImageMemory(m.d.dev, m.img, mm.mem, vk.DeviceSize(off))); err != nil {
		return err
	}
	m.mem = mm
	return nil
}

func (m *image) NewView() (driver.ImageView, error) {
	var view vk.ImageView
	err := checkResult(vk.CreateImageView(m.d.dev, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    m.img,
		ViewType: vk.ImageViewType2d,
		Format:   convFormat(m.desc.Format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect(m.desc.Format),
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil, &view))
	if err != nil {
		return nil, err
	}
	return &imageView{m: m, view: view}, nil
}

// imageView implements driver.ImageView.
type imageView struct {
	m    *image
	view vk.ImageView
}

func (v *imageView) Destroy() {
	if v.view != vk.NullImageView {
		vk.DestroyImageView(v.m.d.dev, v.view, nil)
		v.view = vk.NullImageView
	}
}

func (v *imageView) Image() driver.Image { return v.m }

// buffer implements driver.Buffer.
type buffer struct {
	d    *device
	buf  vk.Buffer
	size int64
}

func (d *device) NewBuffer(size int64, usage driver.Usage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, errors.Errorf("vk: invalid buffer size %d", size)
	}
	var buf vk.Buffer
	err := checkResult(vk.CreateBuffer(d.dev, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       bufferUsage(usage),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buf))
	if err != nil {
		return nil, err
	}
	return &buffer{d: d, buf: buf, size: size}, nil
}

func (b *buffer) Destroy() {
	if b.d != nil {
		vk.DestroyBuffer(b.d.dev, b.buf, nil)
		b.d = nil
	}
}

func (b *buffer) Size() int64 { return b.size }

func (b *buffer) Requirements() driver.MemReq {
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.d.dev, b.buf, &req)
	req.Deref()
	return driver.MemReq{Size: int64(req.Size), Align: int64(req.Alignment), TypeBits: req.MemoryTypeBits}
}

func (b *buffer) Bind(mem driver.Memory, off int64) error {
	return checkResult(vk.BindBufferMemory(b.d.dev, b.buf, mem.(*memory).mem, vk.DeviceSize(off)))
}
