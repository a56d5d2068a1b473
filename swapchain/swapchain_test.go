// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package swapchain

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/driver/sim"
)

// testGPU implements GPU on a sim device.
type testGPU struct {
	drv  *sim.Driver
	inst driver.Instance
	dev  driver.Device
	pool driver.CmdPool
}

func newGPU(t *testing.T) *testGPU {
	t.Helper()
	drv := sim.New(sim.DefaultOptions())
	inst, err := drv.Open(driver.Config{})
	require.NoError(t, err)
	dev, err := inst.NewDevice(0, 1)
	require.NoError(t, err)
	pool, err := dev.NewCmdPool()
	require.NoError(t, err)
	g := &testGPU{drv: drv, inst: inst, dev: dev, pool: pool}
	t.Cleanup(func() {
		pool.Destroy()
		dev.Destroy()
		inst.Destroy()
	})
	return g
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

func (g *testGPU) semaphore(t *testing.T) driver.Semaphore {
	t.Helper()
	s, err := g.dev.NewSemaphore()
	require.NoError(t, err)
	t.Cleanup(s.Destroy)
	return s
}

// frame acquires, "renders" and presents one image.
func (g *testGPU) frame(t *testing.T, sc SwapChain, acq, done driver.Semaphore) (int, Status) {
	t.Helper()
	idx, st, err := sc.Acquire(acq)
	require.NoError(t, err)
	if st == OutOfDate {
		return idx, st
	}
	err = g.Queue().Submit([]driver.Submit{{
		Wait:   []driver.Semaphore{acq},
		Stages: []driver.Sync{driver.SColorOutput},
		Signal: []driver.Semaphore{done},
	}}, nil)
	require.NoError(t, err)
	st, err = sc.Present(g.Queue(), idx, done)
	require.NoError(t, err)
	return idx, st
}

func (g *testGPU) compositor(t *testing.T, cfg Config) (*Compositor, *sim.Surface) {
	t.Helper()
	sf, err := g.inst.NewSurface(driver.NativeWindow{Platform: driver.Wayland})
	require.NoError(t, err)
	return NewCompositor(g, sf, cfg), g.drv.Surface()
}

func TestImageCount(t *testing.T) {
	for _, x := range [...]struct {
		min, max, want int
		n              int
		err            bool
	}{
		{2, 8, 0, 3, false},
		{2, 2, 0, 2, false},
		{3, 0, 0, 4, false},
		{2, 8, 6, 6, false},
		{2, 8, 1, 2, false},
		{2, 4, 9, 4, false},
		{1, 1, 0, 0, true},
		{0, 1, 0, 0, true},
	} {
		n, err := imageCount(driver.SurfaceCaps{MinImages: x.min, MaxImages: x.max}, x.want)
		if x.err {
			assert.ErrorIs(t, err, ErrImageCount, "%+v", x)
			continue
		}
		require.NoError(t, err, "%+v", x)
		assert.Equal(t, x.n, n, "%+v", x)
	}
}

func TestChoose(t *testing.T) {
	fmts := []driver.SurfaceFormat{{Format: driver.BGRA8sRGB}, {Format: driver.RGBA8un}, {Format: driver.BGRA8un}}
	assert.Equal(t, driver.BGRA8un, chooseFormat(fmts).Format)
	assert.Equal(t, driver.RGBA8un, chooseFormat(fmts[:2]).Format)
	assert.Equal(t, driver.BGRA8sRGB, chooseFormat(fmts[:1]).Format)

	modes := []driver.PresentMode{driver.FIFO, driver.Immediate, driver.Mailbox}
	assert.Equal(t, driver.Mailbox, choosePresentMode(modes, false))
	assert.Equal(t, driver.Immediate, choosePresentMode(modes[:2], false))
	assert.Equal(t, driver.FIFO, choosePresentMode(modes[:1], false))
	assert.Equal(t, driver.FIFORelaxed, choosePresentMode([]driver.PresentMode{driver.FIFORelaxed}, false))
	assert.Equal(t, driver.FIFO, choosePresentMode(modes, true))

	caps := driver.SurfaceCaps{
		Current: driver.Extent{Width: -1, Height: -1},
		Min:     driver.Extent{Width: 16, Height: 16},
		Max:     driver.Extent{Width: 1024, Height: 1024},
	}
	w, h := extent(caps, 800, 2000)
	assert.Equal(t, [2]int{800, 1024}, [2]int{w, h})
	w, h = extent(caps, 1, 600)
	assert.Equal(t, [2]int{16, 600}, [2]int{w, h})
	caps.Current = driver.Extent{Width: 640, Height: 480}
	w, h = extent(caps, 800, 600)
	assert.Equal(t, [2]int{640, 480}, [2]int{w, h})
}

func TestCompositor(t *testing.T) {
	g := newGPU(t)
	c, sf := g.compositor(t, Config{Width: 800, Height: 600})
	n, err := c.Create(800, 600)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, c.Images(), 3)
	w, h := c.Extent()
	assert.Equal(t, [2]int{800, 600}, [2]int{w, h})
	assert.Equal(t, driver.BGRA8un, c.Format())
	assert.Equal(t, driver.LPresent, c.Layout())
	lo, hi := c.ImageLimits()
	assert.Equal(t, [2]int{2, 8}, [2]int{lo, hi})
	assert.Equal(t, driver.Mailbox, sf.Swapchain().Desc().Mode)
	_, err = c.Create(800, 600)
	assert.Error(t, err)

	acq, done := g.semaphore(t), g.semaphore(t)
	for i := 0; i < 6; i++ {
		idx, st := g.frame(t, c, acq, done)
		assert.Equal(t, OK, st)
		assert.Equal(t, i%3, idx)
	}
	assert.Equal(t, 6, sf.Swapchain().Presented())
	assert.Empty(t, g.drv.Violations())

	c.Destroy()
	assert.Zero(t, g.drv.Live("swapchain"))
	assert.Zero(t, g.drv.Live("surface"))
	assert.Zero(t, g.drv.Live("view"))
	c.Destroy()
	assert.Empty(t, g.drv.Violations())
}

func TestCompositorVSync(t *testing.T) {
	g := newGPU(t)
	c, sf := g.compositor(t, Config{VSync: true, Images: 2})
	n, err := c.Create(320, 240)
	require.NoError(t, err)
	defer c.Destroy()
	assert.Equal(t, 2, n)
	assert.Equal(t, driver.FIFO, sf.Swapchain().Desc().Mode)
}

func TestCompositorCurrentExtent(t *testing.T) {
	g := newGPU(t)
	c, sf := g.compositor(t, Config{})
	sf.SetCurrent(640, 480)
	_, err := c.Create(800, 600)
	require.NoError(t, err)
	defer c.Destroy()
	w, h := c.Extent()
	assert.Equal(t, [2]int{640, 480}, [2]int{w, h})
}

func TestCompositorImageCount(t *testing.T) {
	g := newGPU(t)
	c, sf := g.compositor(t, Config{})
	sf.SetImageLimits(1, 1)
	_, err := c.Create(800, 600)
	assert.ErrorIs(t, err, ErrImageCount)
	assert.Zero(t, g.drv.Live("swapchain"))
	c.Destroy()
	assert.Zero(t, g.drv.Live("surface"))
}

func TestCompositorOutOfDate(t *testing.T) {
	g := newGPU(t)
	c, sf := g.compositor(t, Config{})
	n, err := c.Create(800, 600)
	require.NoError(t, err)
	defer c.Destroy()
	acq, done := g.semaphore(t), g.semaphore(t)
	g.frame(t, c, acq, done)

	sf.SetOutOfDate()
	idx, st, err := c.Acquire(acq)
	require.NoError(t, err)
	assert.Equal(t, OutOfDate, st)
	assert.Equal(t, -1, idx)

	require.NoError(t, c.Recreate(1280, 720))
	assert.Len(t, c.Images(), n)
	w, h := c.Extent()
	assert.Equal(t, [2]int{1280, 720}, [2]int{w, h})
	assert.Equal(t, 1, g.drv.Live("swapchain"))
	assert.Equal(t, n, g.drv.Live("view"))
	assert.Equal(t, 1, g.drv.Live("surface"))

	_, st = g.frame(t, c, acq, done)
	assert.Equal(t, OK, st)
	assert.Empty(t, g.drv.Violations())
}

func TestCompositorSuboptimal(t *testing.T) {
	g := newGPU(t)
	c, sf := g.compositor(t, Config{})
	_, err := c.Create(800, 600)
	require.NoError(t, err)
	defer c.Destroy()
	acq, done := g.semaphore(t), g.semaphore(t)

	sf.SetSuboptimal()
	idx, st := g.frame(t, c, acq, done)
	assert.Equal(t, Suboptimal, st)
	assert.GreaterOrEqual(t, idx, 0)
	require.NoError(t, c.Recreate(800, 600))
	_, st = g.frame(t, c, acq, done)
	assert.Equal(t, OK, st)
	assert.Empty(t, g.drv.Violations())
}

func TestNotCreated(t *testing.T) {
	g := newGPU(t)
	c, _ := g.compositor(t, Config{})
	defer c.Destroy()
	s := g.semaphore(t)
	for _, sc := range []SwapChain{c, NewScanout(g, newFakeOutput(64, 32), Config{}), NewLease(g, &fakeLessor{}, Config{})} {
		_, _, err := sc.Acquire(s)
		assert.ErrorIs(t, err, ErrNotCreated)
		_, err = sc.Present(g.Queue(), 0, s)
		assert.ErrorIs(t, err, ErrNotCreated)
		assert.ErrorIs(t, sc.Recreate(1, 1), ErrNotCreated)
	}
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "ok", OK.String())
	assert.Equal(t, "out-of-date", OutOfDate.String())
	assert.Equal(t, "suboptimal", Suboptimal.String())
}

// fakeBuffer implements ScanBuffer.
type fakeBuffer struct {
	fb        uint32
	pitch     int
	pixels    []byte
	destroyed bool
}

func (b *fakeBuffer) FB() uint32     { return b.fb }
func (b *fakeBuffer) Pixels() []byte { return b.pixels }
func (b *fakeBuffer) Pitch() int     { return b.pitch }

func (b *fakeBuffer) Destroy() error {
	b.destroyed = true
	return nil
}

// fakeOutput implements Output, completing flips as soon
// as they are waited on.
type fakeOutput struct {
	w, h     int
	bufs     []*fakeBuffer
	calls    []string
	flips    []int
	waitErr  error
	restored bool
	closed   bool
}

func newFakeOutput(w, h int) *fakeOutput { return &fakeOutput{w: w, h: h} }

func (o *fakeOutput) Mode() (int, int) { return o.w, o.h }

func (o *fakeOutput) NewBuffer(w, h int) (ScanBuffer, error) {
	pitch := w*4 + 64
	b := &fakeBuffer{fb: uint32(100 + len(o.bufs)), pitch: pitch, pixels: make([]byte, pitch*h)}
	o.bufs = append(o.bufs, b)
	return b, nil
}

func (o *fakeOutput) SetCRTC(buf ScanBuffer) error {
	o.calls = append(o.calls, "set")
	return nil
}

func (o *fakeOutput) PageFlip(buf ScanBuffer, slot int) error {
	if len(o.flips) > 0 {
		return errors.New("flip already pending")
	}
	o.calls = append(o.calls, "flip")
	o.flips = append(o.flips, slot)
	return nil
}

func (o *fakeOutput) WaitFlip(timeout time.Duration) (int, error) {
	if o.waitErr != nil {
		return -1, o.waitErr
	}
	if len(o.flips) == 0 {
		return -1, errors.New("no flip pending")
	}
	s := o.flips[0]
	o.flips = o.flips[1:]
	o.calls = append(o.calls, "wait")
	return s, nil
}

func (o *fakeOutput) Restore() error {
	o.restored = true
	return nil
}

func (o *fakeOutput) Close() error {
	o.closed = true
	return nil
}

func TestScanout(t *testing.T) {
	g := newGPU(t)
	out := newFakeOutput(64, 32)
	s := NewScanout(g, out, Config{})
	n, err := s.Create(800, 600)
	require.NoError(t, err)
	assert.Equal(t, DefaultScanoutImages, n)
	w, h := s.Extent()
	assert.Equal(t, [2]int{64, 32}, [2]int{w, h})
	assert.Equal(t, driver.LCopySrc, s.Layout())
	assert.Equal(t, driver.BGRA8un, s.Format())
	imgs := s.Images()
	require.Len(t, imgs, n)
	for i, img := range imgs {
		assert.Equal(t, uint32(100+i), img.FB)
		assert.Equal(t, driver.ImageDesc{
			Format: driver.BGRA8un,
			Width:  64,
			Height: 32,
			Usage:  driver.UColorTarget | driver.UCopySrc,
		}, img.Image.Desc())
	}

	acq, done := g.semaphore(t), g.semaphore(t)
	for i := 0; i < 5; i++ {
		idx, st := g.frame(t, s, acq, done)
		assert.Equal(t, OK, st)
		assert.Equal(t, i%n, idx)
	}
	assert.Equal(t, []string{"set", "flip", "wait", "flip", "wait", "flip", "wait", "flip"}, out.calls)
	assert.Equal(t, 5, s.Flips())
	assert.Empty(t, g.drv.Violations())

	modes, err := s.PresentModes()
	require.NoError(t, err)
	assert.Equal(t, []driver.PresentMode{driver.FIFO}, modes)

	require.NoError(t, s.Recreate(0, 0))
	assert.Len(t, s.Images(), n)
	// The last flip showed slot 1, which stays on screen
	// until the new ring is set.
	for i, b := range out.bufs[:n] {
		assert.Equal(t, i != 1, b.destroyed, "buffer %d", i)
	}
	assert.False(t, out.restored)
	out.calls = nil
	g.frame(t, s, acq, done)
	// The ring restarts with a full mode-set.
	assert.Equal(t, []string{"set"}, out.calls)
	assert.True(t, out.bufs[1].destroyed)

	s.Destroy()
	assert.True(t, out.restored)
	assert.True(t, out.closed)
	for _, kind := range []string{"image", "view", "memory", "buffer", "fence", "cmdbuf"} {
		assert.Zero(t, g.drv.Live(kind), kind)
	}
	assert.Empty(t, g.drv.Violations())
}

func TestScanoutFlipError(t *testing.T) {
	g := newGPU(t)
	out := newFakeOutput(16, 16)
	s := NewScanout(g, out, Config{Images: 2})
	_, err := s.Create(16, 16)
	require.NoError(t, err)
	defer s.Destroy()
	acq, done := g.semaphore(t), g.semaphore(t)
	g.frame(t, s, acq, done)
	g.frame(t, s, acq, done)

	out.waitErr = errors.New("poll failed")
	_, _, err = s.Acquire(acq)
	assert.Error(t, err)
	out.waitErr = nil
}

func TestScanoutImageCount(t *testing.T) {
	g := newGPU(t)
	s := NewScanout(g, newFakeOutput(16, 16), Config{Images: 1})
	_, err := s.Create(16, 16)
	assert.ErrorIs(t, err, ErrImageCount)
}

func TestCopyRows(t *testing.T) {
	src := []byte{1, 2, 3, 4, 5, 6}
	dst := make([]byte, 10)
	copyRows(dst, 5, src, 3, 2)
	assert.Equal(t, []byte{1, 2, 3, 0, 0, 4, 5, 6, 0, 0}, dst)
	dst = make([]byte, 6)
	copyRows(dst, 3, src, 3, 2)
	assert.Equal(t, src, dst)
}

// fakeLessor implements Lessor.
type fakeLessor struct {
	outs   []LeaseOutput
	deny   bool
	leased []LeaseOutput
	out    *fakeOutput
}

func (l *fakeLessor) Outputs() ([]LeaseOutput, error) { return l.outs, nil }

func (l *fakeLessor) Lease(out LeaseOutput) (Output, error) {
	if l.deny {
		return nil, errors.New("RandR: lease refused")
	}
	l.leased = append(l.leased, out)
	l.out = newFakeOutput(out.Width, out.Height)
	return l.out, nil
}

func TestLease(t *testing.T) {
	g := newGPU(t)

	_, err := NewLease(g, &fakeLessor{}, Config{}).Create(800, 600)
	assert.ErrorIs(t, err, ErrNoLeaseOutput)

	outs := []LeaseOutput{
		{ID: 1, Name: "DP-1", Width: 1920, Height: 1080},
		{ID: 2, Name: "HDMI-A-1", NonDesktop: true, Width: 64, Height: 64},
	}
	_, err = NewLease(g, &fakeLessor{outs: outs, deny: true}, Config{}).Create(800, 600)
	assert.ErrorIs(t, err, ErrLeaseDenied)

	lessor := &fakeLessor{outs: outs}
	l := NewLease(g, lessor, Config{})
	n, err := l.Create(800, 600)
	require.NoError(t, err)
	assert.Equal(t, DefaultScanoutImages, n)
	assert.Equal(t, "HDMI-A-1", l.Leased().Name)
	w, h := l.Extent()
	assert.Equal(t, [2]int{64, 64}, [2]int{w, h})

	acq, done := g.semaphore(t), g.semaphore(t)
	for i := 0; i < 3; i++ {
		_, st := g.frame(t, l, acq, done)
		assert.Equal(t, OK, st)
	}
	require.NoError(t, l.Recreate(64, 64))
	l.Destroy()
	assert.True(t, lessor.out.closed)
	assert.Len(t, lessor.leased, 1)
	assert.Empty(t, g.drv.Violations())

	id, ok := pickLeaseOutput(outs[:1])
	assert.True(t, ok)
	assert.Equal(t, uint32(1), id.ID)
}

func TestScanoutRecreateDestroy(t *testing.T) {
	g := newGPU(t)
	out := newFakeOutput(16, 16)
	s := NewScanout(g, out, Config{Images: 2})
	_, err := s.Create(16, 16)
	require.NoError(t, err)
	acq, done := g.semaphore(t), g.semaphore(t)
	g.frame(t, s, acq, done)

	require.NoError(t, s.Recreate(16, 16))
	assert.False(t, out.bufs[0].destroyed)
	s.Destroy()
	assert.True(t, out.restored)
	for i, b := range out.bufs {
		assert.True(t, b.destroyed, "buffer %d", i)
	}
	assert.Empty(t, g.drv.Violations())
}

func TestScanoutRecordsEveryPresent(t *testing.T) {
	g := newGPU(t)
	s := NewScanout(g, newFakeOutput(16, 16), Config{Images: 2})
	_, err := s.Create(16, 16)
	require.NoError(t, err)
	defer s.Destroy()
	acq, done := g.semaphore(t), g.semaphore(t)
	// Three laps around the ring.
	for i := 0; i < 6; i++ {
		g.frame(t, s, acq, done)
	}
	assert.Equal(t, 6, s.Flips())
	assert.Empty(t, g.drv.Violations())
}
