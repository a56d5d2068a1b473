// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"context"
	"image"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/driver/sim"
	"github.com/gviegas/vkdemo/swapchain"
	"github.com/gviegas/vkdemo/wsi"
)

// testBackend is a wsi.Backend that presents through a
// sim surface and delivers scripted events.
type testBackend struct {
	wsi.Lifecycle
	initErr error
	iterErr error
	width   int
	height  int
	batches [][]wsi.Event
	sf      driver.Surface
}

func (b *testBackend) Kind() wsi.Kind { return wsi.Wayland }

func (b *testBackend) Init() error {
	if b.initErr != nil {
		return b.initErr
	}
	b.SetConnected()
	return nil
}

func (b *testBackend) RequiredExtensions() []string {
	return []string{"VK_KHR_surface", "VK_KHR_wayland_surface"}
}

func (b *testBackend) CheckSupport(gpu swapchain.GPU) error {
	if err := b.Connected(); err != nil {
		return err
	}
	sf, err := gpu.Instance().NewSurface(driver.NativeWindow{Platform: driver.Wayland})
	if err != nil {
		return err
	}
	b.sf = sf
	return nil
}

func (b *testBackend) InitSwapChain(gpu swapchain.GPU, cfg swapchain.Config) (swapchain.SwapChain, error) {
	if err := b.Connected(); err != nil {
		return nil, err
	}
	sc := swapchain.NewCompositor(gpu, b.sf, cfg)
	b.sf = nil
	b.SetSurfaceReady()
	return sc, nil
}

func (b *testBackend) Iterate(ctx context.Context) ([]wsi.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.iterErr != nil {
		return nil, b.iterErr
	}
	evs := []wsi.Event{wsi.RepaintEvent{}}
	if len(b.batches) > 0 {
		evs, b.batches = b.batches[0], b.batches[1:]
	}
	for _, ev := range evs {
		if r, ok := ev.(wsi.ResizeEvent); ok {
			b.width, b.height = r.Width, r.Height
		}
	}
	b.Observe(evs)
	return evs, nil
}

func (b *testBackend) Size() (int, int) { return b.width, b.height }

func (b *testBackend) Screens() ([]wsi.Screen, error) {
	return []wsi.Screen{{Name: "test", Width: b.width, Height: b.height, Primary: true}}, nil
}

func (b *testBackend) Destroy() {
	if b.sf != nil {
		b.sf.Destroy()
		b.sf = nil
	}
	b.SetDestroyed()
}

// testScene records what the renderer asks of it.
type testScene struct {
	renders   []Frame
	sizes     [][2]int
	events    []wsi.Event
	quitKey   wsi.Key
	renderErr error
	onRender  func(*Frame)
}

func (s *testScene) Render(f *Frame) error {
	s.renders = append(s.renders, *f)
	if s.onRender != nil {
		s.onRender(f)
	}
	f.Fill([4]float32{1, 0, 0, 1}, image.Rect(0, 0, 16, 16))
	return s.renderErr
}

func (s *testScene) Resize(w, h int) { s.sizes = append(s.sizes, [2]int{w, h}) }

func (s *testScene) Handle(ev wsi.Event) error {
	s.events = append(s.events, ev)
	if k, ok := ev.(wsi.KeyEvent); ok && k.Pressed && s.quitKey != wsi.KeyUnknown && k.Key == s.quitKey {
		return ErrQuit
	}
	return nil
}

type fixture struct {
	drv   *sim.Driver
	be    *testBackend
	scene *testScene
	r     *Renderer
}

func newFixture(opts sim.Options, cfg Config) *fixture {
	f := &fixture{
		drv:   sim.New(opts),
		be:    &testBackend{width: 800, height: 600},
		scene: &testScene{},
	}
	f.r = NewRenderer(f.drv, f.be, f.scene, cfg)
	return f
}

// start creates a fixture with default options and
// initializes its renderer.
func start(t *testing.T, cfg Config) *fixture {
	t.Helper()
	return startWith(t, sim.DefaultOptions(), cfg)
}

func startWith(t *testing.T, opts sim.Options, cfg Config) *fixture {
	t.Helper()
	f := newFixture(opts, cfg)
	require.NoError(t, f.r.Init("test"))
	t.Cleanup(f.r.Destroy)
	return f
}

// deferred returns default options under which submitted
// work stays in flight until its fence is waited on.
func deferred() sim.Options {
	opts := sim.DefaultOptions()
	opts.Deferred = true
	return opts
}

func (f *fixture) frames(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.r.Frame())
	}
}

// teardown destroys the renderer and checks that nothing
// leaked or misbehaved.
func (f *fixture) teardown(t *testing.T) {
	t.Helper()
	f.r.Destroy()
	assert.Empty(t, f.drv.LiveAll())
	assert.Empty(t, f.drv.Violations())
}

func TestRendererInit(t *testing.T) {
	f := start(t, DefaultConfig())
	r := f.r
	assert.Equal(t, StateLooping, r.State())
	assert.Equal(t, wsi.SurfaceReady, f.be.State())
	assert.Equal(t, []string{"VK_KHR_surface", "VK_KHR_wayland_surface"}, r.Device().Instance().Extensions())

	sc := r.SwapChain()
	assert.Len(t, sc.Images(), 3)
	assert.Equal(t, driver.BGRA8un, sc.Format())
	assert.Equal(t, driver.LPresent, sc.Layout())
	w, h := sc.Extent()
	assert.Equal(t, [2]int{800, 600}, [2]int{w, h})

	gen := r.Generation()
	assert.Equal(t, 1, gen.ID)
	assert.Equal(t, 800, gen.Width)
	assert.Equal(t, 600, gen.Height)
	assert.Equal(t, 3, gen.Images)
	assert.Equal(t, driver.D32f, gen.Depth.Format)
	assert.Equal(t, 800, gen.Depth.Width)
	assert.Equal(t, 600, gen.Depth.Height)

	assert.Equal(t, 3, r.Sync().Len())
	assert.Equal(t, 3, r.Sync().Images())
	assert.Equal(t, [][2]int{{800, 600}}, f.scene.sizes)
	assert.Equal(t, 3, f.drv.Live("framebuf"))
	// One acquire semaphore per frame slot, and a render
	// and an overlay semaphore per image.
	assert.Equal(t, 3+3*2, f.drv.Live("semaphore"))
	assert.Equal(t, 3, f.drv.Live("fence"))

	f.teardown(t)
	assert.Equal(t, StateShuttingDown, r.State())
	assert.Equal(t, wsi.Destroyed, f.be.State())
	// Destroy is idempotent.
	r.Destroy()
}

func TestRendererInitFailure(t *testing.T) {
	f := newFixture(sim.DefaultOptions(), DefaultConfig())
	f.be.initErr = errors.Wrap(wsi.ErrNotConnected, "no compositor")
	err := f.r.Init("test")
	assert.ErrorIs(t, err, wsi.ErrNotConnected)
	assert.Equal(t, StateInit, f.r.State())
	assert.Zero(t, f.drv.Created("device"))
	f.teardown(t)

	opts := sim.DefaultOptions()
	opts.DepthFormats = nil
	f = newFixture(opts, DefaultConfig())
	err = f.r.Init("test")
	assert.ErrorIs(t, err, ErrNoDepthFormat)
	assert.True(t, IsFatal(err))
	assert.Equal(t, StateSwapChainReady, f.r.State())
	f.teardown(t)

	opts = sim.DefaultOptions()
	opts.Adapters = nil
	f = newFixture(opts, DefaultConfig())
	assert.ErrorIs(t, f.r.Init("test"), driver.ErrNoDevice)
	f.teardown(t)

	f = newFixture(sim.DefaultOptions(), DefaultConfig())
	assert.ErrorIs(t, f.r.Frame(), ErrState)
	assert.ErrorIs(t, f.r.Resize(1, 1), ErrState)
	f.teardown(t)
}

func TestRendererFrames(t *testing.T) {
	f := start(t, DefaultConfig())
	f.frames(t, 10)
	assert.Equal(t, 10, f.r.Frames())
	assert.Equal(t, 10, f.drv.Surface().Swapchain().Presented())
	assert.Zero(t, f.drv.Surface().Swapchain().Acquired())
	require.Len(t, f.scene.renders, 10)
	for i, fr := range f.scene.renders {
		assert.Equal(t, i, fr.Number)
		assert.Equal(t, i%3, fr.Index)
		assert.Equal(t, 800, fr.Width)
		assert.Equal(t, 600, fr.Height)
	}
	assert.Zero(t, f.scene.renders[0].Time)
	f.teardown(t)
}

func TestRendererResize(t *testing.T) {
	f := startWith(t, deferred(), DefaultConfig())
	f.frames(t, 10)
	require.NoError(t, f.r.Resize(1280, 720))
	assert.Equal(t, StateLooping, f.r.State())
	f.frames(t, 10)

	assert.Len(t, f.r.SwapChain().Images(), 3)
	w, h := f.r.SwapChain().Extent()
	assert.Equal(t, [2]int{1280, 720}, [2]int{w, h})
	desc := f.drv.Surface().Swapchain().Desc()
	assert.Equal(t, 1280, desc.Width)
	assert.Equal(t, 720, desc.Height)

	gen := f.r.Generation()
	assert.Equal(t, 2, gen.ID)
	assert.Equal(t, 1280, gen.Depth.Width)
	assert.Equal(t, 720, gen.Depth.Height)
	assert.Equal(t, [][2]int{{800, 600}, {1280, 720}}, f.scene.sizes)
	assert.Equal(t, 1280, f.scene.renders[len(f.scene.renders)-1].Width)

	// Synchronization primitives outlive generations.
	assert.Equal(t, 3, f.drv.Created("fence"))
	assert.Equal(t, 9, f.drv.Created("semaphore"))
	assert.Equal(t, 2, f.drv.Created("swapchain"))
	assert.Equal(t, 1, f.drv.Live("swapchain"))
	assert.Equal(t, 3, f.drv.Live("framebuf"))
	assert.Equal(t, 1, f.drv.Live("image"))
	f.teardown(t)
}

func TestRendererResizeIgnored(t *testing.T) {
	f := start(t, DefaultConfig())
	f.frames(t, 2)
	f.drv.ResetTrace()

	require.NoError(t, f.r.Resize(800, 600))
	require.NoError(t, f.r.Resize(0, 0))
	require.NoError(t, f.r.Resize(640, 0))
	assert.Equal(t, 1, f.r.Generation().ID)
	assert.Equal(t, 1, f.drv.Created("swapchain"))
	assert.NotContains(t, f.drv.Trace(), "idle")

	require.NoError(t, f.r.Resize(1024, 768))
	require.NoError(t, f.r.Resize(1024, 768))
	assert.Equal(t, 2, f.r.Generation().ID)
	assert.Equal(t, 2, f.drv.Created("swapchain"))
	assert.Contains(t, f.drv.Trace(), "idle")
	f.frames(t, 3)
	f.teardown(t)
}

func TestRendererResizeImageCount(t *testing.T) {
	f := start(t, DefaultConfig())
	f.frames(t, 4)
	f.drv.Surface().SetImageLimits(4, 8)
	require.NoError(t, f.r.Resize(900, 700))
	assert.Len(t, f.r.SwapChain().Images(), 5)
	assert.Equal(t, 5, f.r.Sync().Len())
	assert.Equal(t, 5, f.r.Sync().Images())
	assert.Equal(t, 5*3, f.drv.Live("semaphore"))
	assert.Equal(t, 5, f.r.Generation().Images)
	f.frames(t, 12)
	f.teardown(t)
}

func TestFenceDiscipline(t *testing.T) {
	f := startWith(t, deferred(), DefaultConfig())
	f.frames(t, 7)
	require.NoError(t, f.r.Resize(640, 480))
	f.frames(t, 7)

	trace := f.drv.Trace()
	waits := 0
	for i, s := range trace {
		if !strings.HasPrefix(s, "wait f") {
			continue
		}
		waits++
		require.Less(t, i+1, len(trace))
		assert.Equal(t, "reset "+strings.TrimPrefix(s, "wait "), trace[i+1])
	}
	// Slots are waited on only when reused, and the resize
	// settles the three that were pending.
	assert.Equal(t, 4+3+4, waits)
	for i := 0; i < f.r.Sync().Len(); i++ {
		assert.True(t, f.r.Sync().Pending(i))
	}
	f.teardown(t)
}

func TestFrameSubmission(t *testing.T) {
	f := startWith(t, deferred(), DefaultConfig())
	f.drv.ResetTrace()
	f.frames(t, 1)
	trace := f.drv.Trace()
	require.Len(t, trace, 5)
	require.True(t, strings.HasPrefix(trace[3], "signal f"))
	fence0 := strings.TrimPrefix(trace[3], "signal ")
	assert.Equal(t, []string{
		"acquire i0",
		"submit cmds=1 wait=1 signal=1",
		"submit cmds=1 wait=1 signal=1",
		"signal " + fence0,
		"present i0",
	}, trace)

	f.r.Overlay().Toggle()
	f.drv.ResetTrace()
	f.frames(t, 2)
	trace = f.drv.Trace()
	require.Len(t, trace, 8)
	assert.Equal(t, []string{"acquire i1", "submit cmds=1 wait=1 signal=1"}, trace[:2])
	assert.Equal(t, []string{"present i1", "acquire i2", "submit cmds=1 wait=1 signal=1"}, trace[3:6])
	assert.Equal(t, "present i2", trace[7])

	// The slot's fence is waited on before its acquire
	// semaphore is reused.
	f.drv.ResetTrace()
	f.frames(t, 1)
	assert.Equal(t, []string{
		"wait " + fence0,
		"reset " + fence0,
		"acquire i0",
		"submit cmds=1 wait=1 signal=1",
		"signal " + fence0,
		"present i0",
	}, f.drv.Trace())
	f.teardown(t)
}

func TestFrameSlots(t *testing.T) {
	f := startWith(t, deferred(), DefaultConfig())
	s := f.r.Sync()
	f.frames(t, 1)
	assert.True(t, s.Pending(0))
	assert.Equal(t, 1, s.Current())
	for i := 1; i < s.Len(); i++ {
		assert.NotSame(t, s.Acquired(0), s.Acquired(i))
		assert.NotSame(t, s.Rendered(0), s.Rendered(i))
		assert.NotSame(t, s.Overlaid(0), s.Overlaid(i))
	}

	// The second frame starts while the first is still
	// in flight.
	f.drv.ResetTrace()
	f.frames(t, 1)
	assert.Equal(t, "acquire i1", f.drv.Trace()[0])
	assert.True(t, s.Pending(0))
	assert.True(t, s.Pending(1))

	f.frames(t, 10)
	assert.Empty(t, f.drv.Violations())
	f.teardown(t)
}

func TestRenderFailure(t *testing.T) {
	f := startWith(t, deferred(), DefaultConfig())
	f.frames(t, 2)
	f.scene.renderErr = errors.New("bad scene")
	assert.EqualError(t, f.r.Frame(), "bad scene")
	assert.Equal(t, 1, f.drv.Surface().Swapchain().Acquired())
	assert.Equal(t, 2, f.r.Frames())

	// The held image is released by recreating the swap
	// chain; the acquire semaphore was consumed.
	f.scene.renderErr = nil
	require.NoError(t, f.r.Frame())
	assert.Equal(t, 2, f.r.Generation().ID)
	assert.Equal(t, 2, f.drv.Created("swapchain"))
	f.frames(t, 6)
	assert.Equal(t, 8, f.r.Frames())
	assert.Zero(t, f.drv.Surface().Swapchain().Acquired())
	f.teardown(t)
}

func TestAcquireOutOfDate(t *testing.T) {
	f := start(t, DefaultConfig())
	f.frames(t, 2)
	f.drv.Surface().SetOutOfDate()
	require.NoError(t, f.r.Frame())
	assert.Equal(t, 2, f.r.Frames())
	assert.Equal(t, 2, f.r.Generation().ID)
	assert.Equal(t, 2, f.drv.Created("swapchain"))
	assert.Contains(t, f.drv.Trace(), "acquire out-of-date")
	w, h := f.r.SwapChain().Extent()
	assert.Equal(t, [2]int{800, 600}, [2]int{w, h})
	f.frames(t, 5)
	assert.Equal(t, 7, f.r.Frames())
	f.teardown(t)
}

func TestAcquireSuboptimal(t *testing.T) {
	f := start(t, DefaultConfig())
	f.frames(t, 2)
	f.be.width, f.be.height = 1000, 500
	f.drv.Surface().SetSuboptimal()
	require.NoError(t, f.r.Frame())
	assert.Equal(t, 2, f.r.Frames())
	assert.Equal(t, 2, f.r.Generation().ID)
	w, h := f.r.SwapChain().Extent()
	assert.Equal(t, [2]int{1000, 500}, [2]int{w, h})
	f.frames(t, 5)
	f.teardown(t)
}

func TestPresentOutOfDate(t *testing.T) {
	f := start(t, DefaultConfig())
	f.frames(t, 3)
	f.scene.onRender = func(fr *Frame) {
		if fr.Number == 3 {
			f.drv.Surface().SetOutOfDate()
		}
	}
	require.NoError(t, f.r.Frame())
	assert.Equal(t, 4, f.r.Frames())
	assert.Equal(t, 2, f.r.Generation().ID)
	f.frames(t, 4)
	assert.Equal(t, 8, f.r.Frames())
	f.teardown(t)
}

func TestRunFrameLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Frames = 5
	f := start(t, cfg)
	require.NoError(t, f.r.Run(context.Background()))
	assert.Equal(t, 5, f.r.Frames())
	assert.Len(t, f.scene.renders, 5)
	assert.Equal(t, wsi.Presenting, f.be.State())
	f.teardown(t)
}

func TestRunCoalescedResize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Frames = 3
	f := start(t, cfg)
	f.be.batches = [][]wsi.Event{{
		wsi.ResizeEvent{Width: 640, Height: 480},
		wsi.PointerMotion{X: 3, Y: 4},
		wsi.ResizeEvent{Width: 1024, Height: 768},
	}}
	require.NoError(t, f.r.Run(context.Background()))
	assert.Equal(t, 2, f.drv.Created("swapchain"))
	assert.Equal(t, 1024, f.r.Generation().Width)
	assert.Equal(t, [][2]int{{800, 600}, {1024, 768}}, f.scene.sizes)
	assert.Equal(t, wsi.PointerMotion{X: 3, Y: 4}, f.scene.events[1])
	f.teardown(t)
}

func TestRunQuit(t *testing.T) {
	f := start(t, DefaultConfig())
	f.scene.quitKey = wsi.KeyEsc
	f.be.batches = [][]wsi.Event{
		{wsi.RepaintEvent{}},
		{wsi.KeyEvent{Key: wsi.KeyA, Pressed: true}},
		{wsi.KeyEvent{Key: wsi.KeyEsc, Pressed: true}},
	}
	require.NoError(t, f.r.Run(context.Background()))
	assert.Equal(t, 2, f.r.Frames())
	f.teardown(t)

	f = start(t, DefaultConfig())
	f.be.batches = [][]wsi.Event{{wsi.QuitEvent{}, wsi.ResizeEvent{Width: 10, Height: 10}}}
	require.NoError(t, f.r.Run(context.Background()))
	assert.Zero(t, f.r.Frames())
	assert.Equal(t, 1, f.r.Generation().ID)
	f.teardown(t)
}

func TestRunStops(t *testing.T) {
	f := start(t, DefaultConfig())
	f.be.iterErr = errors.Wrap(wsi.ErrDisconnected, "broken pipe")
	assert.NoError(t, f.r.Run(context.Background()))
	f.teardown(t)

	f = start(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, f.r.Run(ctx))
	assert.Zero(t, f.r.Frames())
	f.teardown(t)

	f = start(t, DefaultConfig())
	f.be.iterErr = errors.New("protocol error")
	assert.EqualError(t, f.r.Run(context.Background()), "protocol error")
	f.teardown(t)

	f = start(t, DefaultConfig())
	f.scene.renderErr = errors.New("bad scene")
	assert.EqualError(t, f.r.Run(context.Background()), "bad scene")
	f.teardown(t)
}

func TestOverlay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Overlay = false
	f := start(t, cfg)
	ov := f.r.Overlay()
	assert.False(t, ov.Visible())
	assert.Equal(t, 1, ov.Labels())

	l := ov.Add(image.Pt(10, 40), [4]float32{1, 1, 0, 1}, [4]float32{}, "hello", "world")
	assert.Equal(t, 2, ov.Labels())
	assert.Equal(t, []string{"hello", "world"}, ov.Text(l))
	ov.SetText(l, "bye")
	assert.Equal(t, []string{"bye"}, ov.Text(l))
	lb := ov.labels.get(l)
	require.NotNil(t, lb)
	assert.NotEmpty(t, lb.rects)
	assert.True(t, lb.box.Min.X < 10 && lb.box.Min.Y < 40)
	ov.SetText(l)
	assert.Empty(t, ov.labels.get(l).rects)
	assert.True(t, ov.labels.get(l).box.Empty())
	ov.Remove(l)
	assert.Equal(t, 1, ov.Labels())
	assert.Nil(t, ov.Text(l))

	f.frames(t, 1)
	ov.SetVisible(true)
	f.frames(t, 2)
	stats := ov.Text(f.r.stats.label)
	require.Len(t, stats, 2)
	assert.Equal(t, "0.0 fps  frame 1", stats[0])
	assert.Equal(t, "wayland 800x600 BGRA8un", stats[1])
	f.teardown(t)
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateInit:           "init",
		StateDeviceReady:    "device-ready",
		StateSwapChainReady: "swapchain-ready",
		StateLooping:        "looping",
		StateResizing:       "resizing",
		StateShuttingDown:   "shutting-down",
	} {
		assert.Equal(t, want, s.String())
	}
}
