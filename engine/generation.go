// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/swapchain"
)

// generation is the set of resources that depend on the
// swap chain images: the depth attachment, one
// framebuffer per image and one command buffer per image.
// It is created and destroyed as a whole.
type generation struct {
	id        int
	width     int
	height    int
	depthMem  driver.Memory
	depthImg  driver.Image
	depthView driver.ImageView
	fbs       []driver.Framebuf
	cbs       []driver.CmdBuffer
}

// GenerationInfo describes the current generation of
// size-dependent resources.
type GenerationInfo struct {
	// ID increases with every generation.
	ID     int
	Width  int
	Height int
	// Images is the number of framebuffers and command
	// buffers, one per presentable image.
	Images int
	Depth  driver.ImageDesc
}

// newGeneration creates the resources for imgs.
// On failure, whatever was created is destroyed.
func newGeneration(dev *Device, pass driver.RenderPass, imgs []swapchain.Image, width, height, id int) (*generation, error) {
	g := &generation{id: id, width: width, height: height}
	if err := g.init(dev, pass, imgs); err != nil {
		g.destroy(dev.CmdPool())
		return nil, err
	}
	return g, nil
}

func (g *generation) init(dev *Device, pass driver.RenderPass, imgs []swapchain.Image) error {
	var err error
	g.depthImg, err = dev.Device().NewImage(driver.ImageDesc{
		Format: pass.Desc().Depth,
		Width:  g.width,
		Height: g.height,
		Usage:  driver.UDSTarget,
	})
	if err != nil {
		return err
	}
	g.depthMem, err = dev.alloc(g.depthImg.Requirements(), driver.MemDeviceLocal, g.depthImg.Bind)
	if err != nil {
		return err
	}
	if g.depthView, err = g.depthImg.NewView(); err != nil {
		return err
	}
	g.fbs = make([]driver.Framebuf, 0, len(imgs))
	for _, img := range imgs {
		fb, err := dev.Device().NewFramebuf(pass, []driver.ImageView{img.View, g.depthView}, g.width, g.height)
		if err != nil {
			return err
		}
		g.fbs = append(g.fbs, fb)
	}
	g.cbs, err = dev.CmdPool().Alloc(len(imgs))
	return err
}

// destroy destroys the resources in reverse order of
// creation. The device must be idle.
func (g *generation) destroy(pool driver.CmdPool) {
	if g == nil {
		return
	}
	if len(g.cbs) > 0 {
		pool.Free(g.cbs)
		g.cbs = nil
	}
	for i := len(g.fbs) - 1; i >= 0; i-- {
		g.fbs[i].Destroy()
	}
	g.fbs = nil
	if g.depthView != nil {
		g.depthView.Destroy()
		g.depthView = nil
	}
	if g.depthImg != nil {
		g.depthImg.Destroy()
		g.depthImg = nil
	}
	if g.depthMem != nil {
		g.depthMem.Destroy()
		g.depthMem = nil
	}
}

func (g *generation) info() GenerationInfo {
	if g == nil {
		return GenerationInfo{}
	}
	info := GenerationInfo{ID: g.id, Width: g.width, Height: g.height, Images: len(g.fbs)}
	if g.depthImg != nil {
		info.Depth = g.depthImg.Desc()
	}
	return info
}
