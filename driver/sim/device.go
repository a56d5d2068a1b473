// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package sim

import (
	"image"
	"time"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
)

// Memory types exposed by every sim device.
var memoryTypes = []driver.MemoryType{
	{Props: driver.MemDeviceLocal, Heap: 0},
	{Props: driver.MemHostVisible | driver.MemHostCoherent, Heap: 1},
	{Props: driver.MemDeviceLocal | driver.MemHostVisible | driver.MemHostCoherent, Heap: 0},
}

const (
	imageTypeBits  = 0b101
	bufferTypeBits = 0b111
)

// device implements driver.Device.
type device struct {
	d         *Driver
	inst      *instance
	id        int
	adapter   driver.Adapter
	family    int
	queue     *queue
	destroyed bool
	pools     []*cmdPool

	// Command buffers submitted since the last fenced
	// submission.
	unfenced []*cmdBuffer
	// Work not yet complete, in submission order.
	inflight []*work
}

// work is one call to Submit.
type work struct {
	cbs   []*cmdBuffer
	waits []*semaphore
	fence *fence
}

// complete completes the in-flight work up to and
// including the submission that signals f, or all of it
// if f is nil.
func (d *device) complete(f *fence) {
	n := len(d.inflight)
	if f != nil {
		n = 0
		for i, w := range d.inflight {
			if w.fence == f {
				n = i + 1
				break
			}
		}
	}
	for _, w := range d.inflight[:n] {
		w.done()
	}
	d.inflight = append(d.inflight[:0], d.inflight[n:]...)
}

func (w *work) done() {
	// Recording is always for a single submission.
	for _, cb := range w.cbs {
		if cb.state == pending {
			cb.state = invalid
		}
	}
	for _, s := range w.waits {
		s.waitPending = false
	}
	if w.fence != nil {
		w.fence.signaled = true
	}
}

func (d *device) Destroy()                { d.d.destroy("device", d.id, &d.destroyed) }
func (d *device) Adapter() driver.Adapter { return d.adapter }
func (d *device) QueueFamily() int        { return d.family }
func (d *device) Queue() driver.Queue     { return d.queue }

func (d *device) MemoryTypes() []driver.MemoryType {
	return append([]driver.MemoryType(nil), memoryTypes...)
}

func (d *device) FormatFeatures(f driver.PixelFmt) driver.FormatFeature {
	if f.IsDepth() {
		for _, x := range d.d.opts.DepthFormats {
			if x == f {
				return driver.FDSTarget
			}
		}
		return 0
	}
	if f == driver.FUndefined {
		return 0
	}
	return driver.FColorTarget | driver.FCopySrc | driver.FCopyDst
}

func (d *device) Alloc(size int64, typeIndex int) (driver.Memory, error) {
	if typeIndex < 0 || typeIndex >= len(memoryTypes) {
		return nil, d.d.violate("alloc from invalid memory type %d", typeIndex)
	}
	if size <= 0 {
		return nil, d.d.violate("alloc of %d bytes", size)
	}
	m := &memory{d: d.d, size: size, props: memoryTypes[typeIndex].Props}
	m.id = d.d.create("memory")
	return m, nil
}

func (d *device) NewImage(desc driver.ImageDesc) (driver.Image, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, errors.Errorf("sim: invalid image size %dx%d", desc.Width, desc.Height)
	}
	if desc.Format.IsDepth() && d.FormatFeatures(desc.Format)&driver.FDSTarget == 0 {
		return nil, driver.ErrUnsupported
	}
	img := &Image{d: d.d, desc: desc}
	img.id = d.d.create("image")
	return img, nil
}

func (d *device) NewBuffer(size int64, usage driver.Usage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, errors.Errorf("sim: invalid buffer size %d", size)
	}
	b := &buffer{d: d.d, size: size}
	b.id = d.d.create("buffer")
	return b, nil
}

func (d *device) NewRenderPass(desc driver.PassDesc) (driver.RenderPass, error) {
	if desc.Color == driver.FUndefined || desc.Color.IsDepth() {
		return nil, errors.Errorf("sim: invalid color format %v", desc.Color)
	}
	if desc.HasDepth() && !desc.Depth.IsDepth() {
		return nil, errors.Errorf("sim: invalid depth format %v", desc.Depth)
	}
	p := &renderPass{d: d.d, desc: desc}
	p.id = d.d.create("pass")
	return p, nil
}

func (d *device) NewFramebuf(pass driver.RenderPass, views []driver.ImageView, width, height int) (driver.Framebuf, error) {
	p := pass.(*renderPass)
	want := 1
	if p.desc.HasDepth() {
		want = 2
	}
	if len(views) != want {
		return nil, d.d.violate("framebuf with %d views, pass needs %d", len(views), want)
	}
	for _, v := range views {
		desc := v.Image().Desc()
		if desc.Width < width || desc.Height < height {
			return nil, d.d.violate("framebuf %dx%d larger than view %dx%d", width, height, desc.Width, desc.Height)
		}
	}
	fb := &Framebuf{d: d.d, width: width, height: height, views: append([]driver.ImageView(nil), views...)}
	fb.id = d.d.create("framebuf")
	return fb, nil
}

func (d *device) NewCmdPool() (driver.CmdPool, error) {
	p := &cmdPool{dev: d}
	p.id = d.d.create("cmdpool")
	d.pools = append(d.pools, p)
	return p, nil
}

func (d *device) NewPipelineCache() (driver.PipelineCache, error) {
	c := &pipelineCache{d: d.d}
	c.id = d.d.create("cache")
	return c, nil
}

func (d *device) NewFence(signaled bool) (driver.Fence, error) {
	f := &fence{d: d.d, dev: d, signaled: signaled}
	f.id = d.d.create("fence")
	return f, nil
}

func (d *device) NewSemaphore() (driver.Semaphore, error) {
	s := &semaphore{d: d.d}
	s.id = d.d.create("semaphore")
	return s, nil
}

func (d *device) WaitIdle() error {
	d.d.record("idle")
	d.idle()
	return nil
}

// idle completes every submission and presentation.
func (d *device) idle() {
	d.complete(nil)
	d.d.mu.Lock()
	for _, sc := range d.d.swapchains {
		for _, img := range sc.images {
			img.releaseWaits()
		}
	}
	d.d.mu.Unlock()
	d.unfenced = d.unfenced[:0]
	for _, p := range d.pools {
		for _, cb := range p.bufs {
			cb.guard = nil
		}
	}
}

// queue implements driver.Queue.
type queue struct {
	dev *device
}

func (q *queue) Submit(batches []driver.Submit, fen driver.Fence) error {
	d := q.dev.d
	deferred := d.opts.Deferred
	var f *fence
	if fen != nil {
		f = fen.(*fence)
		if f.signaled || f.submitted {
			return d.violate("submit with unreset fence f%d", f.id)
		}
	}
	w := &work{fence: f}
	for _, b := range batches {
		if len(b.Stages) != len(b.Wait) {
			return d.violate("submit with %d waits and %d stages", len(b.Wait), len(b.Stages))
		}
		origins := make(map[*Image]bool)
		for _, x := range b.Wait {
			s := x.(*semaphore)
			if !s.signaled {
				return d.violate("wait on unsignaled semaphore s%d", s.id)
			}
			for img := range s.origins {
				origins[img] = true
			}
			s.signaled = false
			s.origins = nil
			if deferred {
				s.waitPending = true
				w.waits = append(w.waits, s)
			}
		}
		for _, c := range b.Cmds {
			cb := c.(*cmdBuffer)
			if cb.state != executable {
				return d.violate("submit of cmd buffer %d in state %s", cb.id, cb.state)
			}
			for _, img := range cb.writes {
				if img.sc == nil {
					continue
				}
				if !img.acquired || !origins[img] {
					return d.violate("use before acquire of swapchain image %d", img.index)
				}
				img.rendered = true
			}
			cb.state = pending
			q.dev.unfenced = append(q.dev.unfenced, cb)
			w.cbs = append(w.cbs, cb)
		}
		for _, x := range b.Signal {
			s := x.(*semaphore)
			switch {
			case s.signaled:
				return d.violate("signal of signaled semaphore s%d", s.id)
			case s.waitPending:
				return d.violate("signal of semaphore s%d with a pending wait", s.id)
			}
			s.signaled = true
			s.origins = origins
		}
		d.record("submit cmds=%d wait=%d signal=%d", len(b.Cmds), len(b.Wait), len(b.Signal))
	}
	if f != nil {
		for _, cb := range q.dev.unfenced {
			cb.guard = f
			f.guarded = append(f.guarded, cb)
		}
		q.dev.unfenced = q.dev.unfenced[:0]
		f.submitted = true
		d.record("signal f%d", f.id)
	}
	q.dev.inflight = append(q.dev.inflight, w)
	if !deferred {
		q.dev.complete(nil)
	}
	return nil
}

func (q *queue) Present(sc driver.Swapchain, index int, wait []driver.Semaphore) error {
	d := q.dev.d
	s := sc.(*swapchain)
	if index < 0 || index >= len(s.images) {
		return d.violate("present of invalid index %d", index)
	}
	img := s.images[index]
	if !img.acquired {
		return d.violate("present of unacquired image %d", index)
	}
	carried := false
	for _, w := range wait {
		sem := w.(*semaphore)
		if !sem.signaled {
			return d.violate("present waits on unsignaled semaphore s%d", sem.id)
		}
		if sem.origins[img] {
			carried = true
		}
		sem.signaled = false
		sem.origins = nil
		if d.opts.Deferred {
			sem.waitPending = true
			img.presentWaits = append(img.presentWaits, sem)
		}
	}
	if !carried {
		return d.violate("present of image %d not ordered after its rendering", index)
	}
	img.acquired = false
	img.rendered = false
	s.presented++
	d.record("present i%d", index)
	switch {
	case s.retired || s.sf.outOfDate:
		return driver.ErrOutOfDate
	case s.sf.suboptimal:
		return driver.ErrSuboptimal
	}
	return nil
}

func (q *queue) WaitIdle() error { return q.dev.WaitIdle() }

// memory implements driver.Memory.
type memory struct {
	d         *Driver
	id        int
	size      int64
	props     driver.MemProp
	data      []byte
	destroyed bool
}

func (m *memory) Destroy()    { m.d.destroy("memory", m.id, &m.destroyed) }
func (m *memory) Size() int64 { return m.size }
func (m *memory) Unmap()      {}

func (m *memory) Map() ([]byte, error) {
	if m.props&driver.MemHostVisible == 0 {
		return nil, m.d.violate("map of non-host-visible memory %d", m.id)
	}
	if m.data == nil {
		m.data = make([]byte, m.size)
	}
	return m.data, nil
}

// Image implements driver.Image.
// It is exported so tests can inspect swapchain images.
type Image struct {
	d         *Driver
	id        int
	desc      driver.ImageDesc
	mem       *memory
	destroyed bool

	// Set for swapchain images.
	sc       *swapchain
	index    int
	acquired bool
	rendered bool
	// Semaphores waited on by the last presentation.
	presentWaits []*semaphore
}

// releaseWaits completes the semaphore waits of the last
// presentation of i.
func (i *Image) releaseWaits() {
	for _, s := range i.presentWaits {
		s.waitPending = false
	}
	i.presentWaits = i.presentWaits[:0]
}

func (i *Image) Destroy() {
	if i.sc != nil {
		i.d.violate("destroy of swapchain image %d", i.index)
		return
	}
	i.d.destroy("image", i.id, &i.destroyed)
}

// Desc implements driver.Image.
func (i *Image) Desc() driver.ImageDesc { return i.desc }

// Requirements implements driver.Image.
func (i *Image) Requirements() driver.MemReq {
	size := int64(i.desc.Width) * int64(i.desc.Height) * int64(i.desc.Format.Size())
	return driver.MemReq{Size: size, Align: 256, TypeBits: imageTypeBits}
}

// Bind implements driver.Image.
func (i *Image) Bind(mem driver.Memory, off int64) error {
	m := mem.(*memory)
	if i.mem != nil {
		return i.d.violate("image %d bound twice", i.id)
	}
	if m.size-off < i.Requirements().Size {
		return i.d.violate("image %d bound to small memory", i.id)
	}
	i.mem = m
	return nil
}

// NewView implements driver.Image.
func (i *Image) NewView() (driver.ImageView, error) {
	if i.sc == nil && i.mem == nil {
		return nil, i.d.violate("view of unbound image %d", i.id)
	}
	v := &imageView{d: i.d, img: i}
	v.id = i.d.create("view")
	return v, nil
}

// Acquired reports whether a swapchain image is currently
// acquired.
func (i *Image) Acquired() bool { return i.acquired }

type imageView struct {
	d         *Driver
	id        int
	img       *Image
	destroyed bool
}

func (v *imageView) Destroy()            { v.d.destroy("view", v.id, &v.destroyed) }
func (v *imageView) Image() driver.Image { return v.img }

type buffer struct {
	d         *Driver
	id        int
	size      int64
	mem       *memory
	destroyed bool
}

func (b *buffer) Destroy()    { b.d.destroy("buffer", b.id, &b.destroyed) }
func (b *buffer) Size() int64 { return b.size }

func (b *buffer) Requirements() driver.MemReq {
	return driver.MemReq{Size: b.size, Align: 64, TypeBits: bufferTypeBits}
}

func (b *buffer) Bind(mem driver.Memory, off int64) error {
	m := mem.(*memory)
	if b.mem != nil {
		return b.d.violate("buffer %d bound twice", b.id)
	}
	if m.size-off < b.size {
		return b.d.violate("buffer %d bound to small memory", b.id)
	}
	b.mem = m
	return nil
}

type renderPass struct {
	d         *Driver
	id        int
	desc      driver.PassDesc
	destroyed bool
}

func (p *renderPass) Destroy()               { p.d.destroy("pass", p.id, &p.destroyed) }
func (p *renderPass) Desc() driver.PassDesc { return p.desc }

// Framebuf implements driver.Framebuf.
type Framebuf struct {
	d             *Driver
	id            int
	width, height int
	views         []driver.ImageView
	destroyed     bool
}

// Destroy implements driver.Framebuf.
func (f *Framebuf) Destroy() { f.d.destroy("framebuf", f.id, &f.destroyed) }

// Size implements driver.Framebuf.
func (f *Framebuf) Size() (int, int) { return f.width, f.height }

// Views implements driver.Framebuf.
func (f *Framebuf) Views() []driver.ImageView { return f.views }

type pipelineCache struct {
	d         *Driver
	id        int
	destroyed bool
}

func (c *pipelineCache) Destroy() { c.d.destroy("cache", c.id, &c.destroyed) }

type cmdPool struct {
	dev       *device
	id        int
	bufs      []*cmdBuffer
	destroyed bool
}

func (p *cmdPool) Destroy() {
	d := p.dev.d
	for _, cb := range p.bufs {
		if !cb.freed {
			cb.freed = true
			d.mu.Lock()
			d.live["cmdbuf"]--
			d.mu.Unlock()
		}
	}
	d.destroy("cmdpool", p.id, &p.destroyed)
}

func (p *cmdPool) Alloc(n int) ([]driver.CmdBuffer, error) {
	if n <= 0 {
		return nil, errors.Errorf("sim: invalid command buffer count %d", n)
	}
	cbs := make([]driver.CmdBuffer, n)
	for i := range cbs {
		cb := &cmdBuffer{pool: p}
		cb.id = p.dev.d.create("cmdbuf")
		p.bufs = append(p.bufs, cb)
		cbs[i] = cb
	}
	return cbs, nil
}

func (p *cmdPool) Free(cbs []driver.CmdBuffer) {
	d := p.dev.d
	for _, c := range cbs {
		cb := c.(*cmdBuffer)
		if cb.state == pending {
			d.violate("free of pending cmd buffer %d", cb.id)
		}
		if cb.guard != nil {
			d.violate("free of cmd buffer %d before its fence was observed", cb.id)
		}
		d.destroy("cmdbuf", cb.id, &cb.freed)
	}
}

type cmdState int

const (
	initial cmdState = iota
	recording
	executable
	pending
	invalid
)

func (s cmdState) String() string {
	switch s {
	case recording:
		return "recording"
	case executable:
		return "executable"
	case pending:
		return "pending"
	case invalid:
		return "invalid"
	}
	return "initial"
}

type cmdBuffer struct {
	pool   *cmdPool
	id     int
	state  cmdState
	inPass bool
	writes []*Image
	guard  *fence
	freed  bool
}

func (c *cmdBuffer) Begin() error {
	d := c.pool.dev.d
	if c.freed {
		return d.violate("begin of freed cmd buffer %d", c.id)
	}
	if c.guard != nil {
		return d.violate("cmd buffer %d reused before fence f%d was observed", c.id, c.guard.id)
	}
	if c.state == pending {
		return d.violate("begin of pending cmd buffer %d", c.id)
	}
	c.state = recording
	c.writes = c.writes[:0]
	return nil
}

func (c *cmdBuffer) End() error {
	if c.state != recording || c.inPass {
		return c.pool.dev.d.violate("end of cmd buffer %d in state %s", c.id, c.state)
	}
	c.state = executable
	return nil
}

func (c *cmdBuffer) BeginPass(pass driver.RenderPass, fb driver.Framebuf, clear []driver.ClearValue) {
	d := c.pool.dev.d
	if c.state != recording || c.inPass {
		d.violate("begin pass on cmd buffer %d in state %s", c.id, c.state)
		return
	}
	p := pass.(*renderPass)
	if p.desc.Load == driver.LClear {
		want := 1
		if p.desc.HasDepth() {
			want = 2
		}
		if len(clear) < want {
			d.violate("begin pass with %d clear values, need %d", len(clear), want)
		}
	}
	c.inPass = true
	f := fb.(*Framebuf)
	c.writes = append(c.writes, f.views[0].Image().(*Image))
}

func (c *cmdBuffer) EndPass() {
	if !c.inPass {
		c.pool.dev.d.violate("end pass outside of pass on cmd buffer %d", c.id)
	}
	c.inPass = false
}

func (c *cmdBuffer) ClearRects(color [4]float32, rects []image.Rectangle) {
	if !c.inPass {
		c.pool.dev.d.violate("clear rects outside of pass on cmd buffer %d", c.id)
	}
}

func (c *cmdBuffer) Transition(img driver.Image, before, after driver.Layout) {
	if c.state != recording || c.inPass {
		c.pool.dev.d.violate("transition on cmd buffer %d in state %s", c.id, c.state)
	}
}

func (c *cmdBuffer) CopyImageToBuffer(img driver.Image, buf driver.Buffer) {
	if c.state != recording || c.inPass {
		c.pool.dev.d.violate("copy on cmd buffer %d in state %s", c.id, c.state)
		return
	}
	i := img.(*Image)
	need := int64(i.desc.Width) * int64(i.desc.Height) * int64(i.desc.Format.Size())
	if buf.Size() < need {
		c.pool.dev.d.violate("copy of %d bytes into buffer of %d", need, buf.Size())
	}
}

type fence struct {
	d         *Driver
	dev       *device
	id        int
	signaled  bool
	submitted bool
	guarded   []*cmdBuffer
	destroyed bool
}

func (f *fence) Destroy() { f.d.destroy("fence", f.id, &f.destroyed) }

func (f *fence) Wait(timeout time.Duration) error {
	f.d.record("wait f%d", f.id)
	if f.submitted && !f.signaled {
		f.dev.complete(f)
	}
	if !f.signaled {
		if !f.submitted {
			f.d.violate("wait on fence f%d with no pending submission", f.id)
		}
		return driver.ErrTimeout
	}
	f.observe()
	return nil
}

// observe releases the command buffers guarded by f.
func (f *fence) observe() {
	for _, cb := range f.guarded {
		if cb.guard == f {
			cb.guard = nil
		}
	}
	f.guarded = f.guarded[:0]
}

func (f *fence) Reset() error {
	f.d.record("reset f%d", f.id)
	f.signaled = false
	f.submitted = false
	return nil
}

func (f *fence) Signaled() (bool, error) {
	if f.submitted && !f.signaled {
		f.dev.complete(f)
	}
	if f.signaled {
		f.observe()
	}
	return f.signaled, nil
}

type semaphore struct {
	d           *Driver
	id          int
	signaled    bool
	waitPending bool
	origins     map[*Image]bool
	destroyed   bool
}

func (s *semaphore) Destroy() { s.d.destroy("semaphore", s.id, &s.destroyed) }
