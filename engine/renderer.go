// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/internal/logging"
	"github.com/gviegas/vkdemo/swapchain"
	"github.com/gviegas/vkdemo/wsi"
)

// State is the state of a Renderer.
type State int

// Renderer states.
// Init → DeviceReady → SwapChainReady → Looping, then
// Looping ⇄ Resizing, and finally ShuttingDown.
const (
	StateInit State = iota
	StateDeviceReady
	StateSwapChainReady
	StateLooping
	StateResizing
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateDeviceReady:
		return "device-ready"
	case StateSwapChainReady:
		return "swapchain-ready"
	case StateLooping:
		return "looping"
	case StateResizing:
		return "resizing"
	case StateShuttingDown:
		return "shutting-down"
	}
	return "init"
}

// Renderer drives the frame loop of a Scene on a window
// backend.
// It owns the Device, the swap chain that the backend
// creates, the render pass, the FrameSync, the current
// generation of size-dependent resources and the Overlay.
type Renderer struct {
	drv   driver.Driver
	be    wsi.Backend
	scene Scene
	cfg   Config
	state State

	dev      *Device
	sc       swapchain.SwapChain
	pass     driver.RenderPass
	sync     *FrameSync
	gen      *generation
	genCount int
	overlay  *Overlay

	// Size last requested from the swap chain, and
	// whether it must be recreated regardless.
	wantW, wantH int
	stale        bool
	// Set when a failed frame left an image acquired.
	held bool

	frames int
	start  time.Time
	stats  statsLine
}

// NewRenderer creates a new Renderer.
// be may be connected already; Init connects it
// otherwise.
func NewRenderer(drv driver.Driver, be wsi.Backend, scene Scene, cfg Config) *Renderer {
	cfg.normalize()
	return &Renderer{drv: drv, be: be, scene: scene, cfg: cfg}
}

// Init creates the device, the swap chain and every
// resource that the frame loop needs.
// On failure, Destroy must still be called.
func (r *Renderer) Init(name string) error {
	if r.state != StateInit {
		return errors.Wrapf(ErrState, "engine: Init in state %s", r.state)
	}
	if r.be.State() == wsi.Uninitialized {
		if err := r.be.Init(); err != nil {
			return err
		}
	}
	dev, err := NewDevice(r.drv, DeviceConfig{
		AppName:    name,
		Extensions: r.be.RequiredExtensions(),
		Validation: r.cfg.Validation,
		GPU:        r.cfg.GPU,
	})
	if err != nil {
		return err
	}
	r.dev = dev
	r.state = StateDeviceReady

	if err := r.be.CheckSupport(dev); err != nil {
		return err
	}
	w, h := r.be.Size()
	sc, err := r.be.InitSwapChain(dev, swapchain.Config{
		Width:  w,
		Height: h,
		VSync:  r.cfg.VSync,
		Images: r.cfg.Images,
	})
	if err != nil {
		return err
	}
	r.sc = sc
	n, err := sc.Create(w, h)
	if err != nil {
		return err
	}
	r.wantW, r.wantH = w, h
	r.state = StateSwapChainReady

	depth, err := dev.DepthFormat()
	if err != nil {
		return err
	}
	desc := driver.PassDesc{
		Color: sc.Format(),
		Depth: depth,
		Load:  driver.LClear,
		Final: sc.Layout(),
	}
	if r.pass, err = dev.Device().NewRenderPass(desc); err != nil {
		return err
	}
	if r.sync, err = newFrameSync(dev.Device(), n, r.cfg.FenceTimeout); err != nil {
		return err
	}
	if err := r.newGeneration(); err != nil {
		return err
	}
	if r.overlay, err = newOverlay(dev, desc, r.cfg.OverlayScale, r.cfg.Overlay); err != nil {
		return err
	}
	if err := r.overlay.alloc(n); err != nil {
		return err
	}
	r.stats.init(r.overlay)

	sw, sh := sc.Extent()
	r.scene.Resize(sw, sh)
	r.state = StateLooping
	logging.Logger().Info("renderer initialized",
		"backend", r.be.Kind().String(),
		"images", n,
		"format", sc.Format().String(),
		"depth", depth.String(),
		"width", sw,
		"height", sh)
	return nil
}

// newGeneration builds the next generation from the
// swap chain's current images.
func (r *Renderer) newGeneration() error {
	w, h := r.sc.Extent()
	r.genCount++
	gen, err := newGeneration(r.dev, r.pass, r.sc.Images(), w, h, r.genCount)
	if err != nil {
		return err
	}
	r.gen = gen
	return nil
}

// Frame renders and presents one frame.
// If the swap chain reports that it is out of date or
// suboptimal, the resize protocol runs instead (on
// acquire) or after presentation (on present).
// If a previous frame failed while holding an image, the
// swap chain is recreated instead of rendering.
func (r *Renderer) Frame() error {
	if r.state != StateLooping {
		return errors.Wrapf(ErrState, "engine: Frame in state %s", r.state)
	}
	if r.held {
		logging.Logger().Debug("recreating swap chain to release a held image")
		r.stale = true
		return r.Resize(r.be.Size())
	}
	slot := r.sync.Current()
	if err := r.sync.wait(slot); err != nil {
		return err
	}
	acq := r.sync.Acquired(slot)
	idx, st, err := r.sc.Acquire(acq)
	if err != nil {
		return err
	}
	if st != swapchain.OK {
		logging.Logger().Debug("acquire requires recreation", "status", st.String())
		if st == swapchain.Suboptimal {
			// The semaphore will be signaled; consume it.
			if err := r.drain(acq); err != nil {
				return err
			}
		}
		r.stale = true
		return r.Resize(r.be.Size())
	}

	if err := r.sync.waitImage(idx); err != nil {
		return err
	}
	if r.frames == 0 {
		r.start = time.Now()
	}
	cb := r.gen.cbs[idx]
	if err := r.record(cb, idx); err != nil {
		return r.abandon(acq, err)
	}
	rendered := r.sync.Rendered(idx)
	batches := []driver.Submit{{
		Wait:   []driver.Semaphore{acq},
		Stages: []driver.Sync{driver.SColorOutput},
		Cmds:   []driver.CmdBuffer{cb},
		Signal: []driver.Semaphore{rendered},
	}}
	wait := rendered
	if r.overlay.Visible() {
		ocb, err := r.overlay.record(idx, r.gen.fbs[idx])
		if err != nil {
			return r.abandon(acq, err)
		}
		overlaid := r.sync.Overlaid(idx)
		batches = append(batches, driver.Submit{
			Wait:   []driver.Semaphore{rendered},
			Stages: []driver.Sync{driver.SColorOutput},
			Cmds:   []driver.CmdBuffer{ocb},
			Signal: []driver.Semaphore{overlaid},
		})
		wait = overlaid
	}
	q := r.dev.Queue()
	if err := q.Submit(batches, r.sync.Fence(slot)); err != nil {
		return err
	}
	r.sync.submitted(idx)

	st, err = r.sc.Present(q, idx, wait)
	if err != nil {
		return err
	}
	r.frames++
	r.stats.update(r)
	if st != swapchain.OK {
		logging.Logger().Debug("present requires recreation", "status", st.String())
		r.stale = true
		return r.Resize(r.be.Size())
	}
	return nil
}

// abandon gives up on a frame whose image was acquired.
// The image stays acquired until the swap chain is
// recreated by the next call to Frame.
func (r *Renderer) abandon(acq driver.Semaphore, err error) error {
	r.held = true
	if derr := r.drain(acq); derr != nil {
		logging.Logger().Error("acquire semaphore not consumed", "err", derr)
	}
	return err
}

// drain consumes the signal of acq with an empty
// submission guarded by the current slot's fence.
func (r *Renderer) drain(acq driver.Semaphore) error {
	err := r.dev.Queue().Submit([]driver.Submit{{
		Wait:   []driver.Semaphore{acq},
		Stages: []driver.Sync{driver.SColorOutput},
	}}, r.sync.Fence(r.sync.Current()))
	if err != nil {
		return err
	}
	r.sync.submitted(-1)
	return nil
}

// Resize rebuilds the swap chain and every resource that
// depends on it for the given size.
// The device is drained first, and the old generation is
// destroyed entirely before the swap chain is recreated
// and the new generation is built.
// A request for the current size is ignored unless the
// swap chain reported that it must be recreated; a zero
// size (e.g., a minimized window) is ignored as well.
func (r *Renderer) Resize(width, height int) error {
	if r.state != StateLooping {
		return errors.Wrapf(ErrState, "engine: Resize in state %s", r.state)
	}
	if width <= 0 || height <= 0 {
		logging.Logger().Debug("resize to empty size ignored", "width", width, "height", height)
		return nil
	}
	if !r.stale && width == r.wantW && height == r.wantH {
		return nil
	}
	r.state = StateResizing
	if err := r.dev.Device().WaitIdle(); err != nil {
		return err
	}
	if err := r.sync.settle(); err != nil {
		return err
	}
	r.overlay.free()
	r.gen.destroy(r.dev.CmdPool())
	r.gen = nil

	if err := r.sc.Recreate(width, height); err != nil {
		return err
	}
	r.wantW, r.wantH = width, height
	r.stale = false
	r.held = false
	n := len(r.sc.Images())
	if err := r.sync.grow(n); err != nil {
		return err
	}
	if err := r.newGeneration(); err != nil {
		return err
	}
	if err := r.overlay.alloc(n); err != nil {
		return err
	}
	w, h := r.sc.Extent()
	r.scene.Resize(w, h)
	r.state = StateLooping
	logging.Logger().Debug("resized", "width", w, "height", h, "images", n, "generation", r.gen.id)
	return nil
}

// Run runs the render loop until the scene or the backend
// asks to quit, ctx is done, the backend disconnects or
// cfg.Frames frames were presented.
// Resize events of one iteration are coalesced into the
// last one.
func (r *Renderer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		evs, err := r.be.Iterate(ctx)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case errors.Is(err, wsi.ErrDisconnected):
			logging.Logger().Warn("backend disconnected", "err", err)
			return nil
		default:
			return err
		}
		quit, err := r.dispatch(evs)
		if err != nil || quit {
			return err
		}
		if err := r.Frame(); err != nil {
			return err
		}
		if r.cfg.Frames > 0 && r.frames >= r.cfg.Frames {
			return nil
		}
	}
}

// dispatch delivers evs to the scene and applies the last
// resize among them.
func (r *Renderer) dispatch(evs []wsi.Event) (quit bool, err error) {
	var resize *wsi.ResizeEvent
	for _, ev := range evs {
		if err := r.scene.Handle(ev); err != nil {
			if errors.Is(err, ErrQuit) {
				return true, nil
			}
			return false, err
		}
		switch ev := ev.(type) {
		case wsi.QuitEvent:
			return true, nil
		case wsi.ResizeEvent:
			resize = &ev
		}
	}
	if resize != nil {
		return false, r.Resize(resize.Width, resize.Height)
	}
	return false, nil
}

// Destroy waits for the device to be idle and destroys
// everything, in reverse order of dependency.
// The backend is destroyed as well.
func (r *Renderer) Destroy() {
	if r.state == StateShuttingDown {
		return
	}
	r.state = StateShuttingDown
	if r.dev != nil {
		if err := r.dev.Device().WaitIdle(); err != nil {
			logging.Logger().Error("wait idle failed", "err", err)
		}
		if r.sync != nil {
			if err := r.sync.settle(); err != nil {
				logging.Logger().Error("fence wait failed", "err", err)
			}
		}
	}
	if r.overlay != nil {
		r.overlay.destroy()
		r.overlay = nil
	}
	if r.gen != nil {
		r.gen.destroy(r.dev.CmdPool())
		r.gen = nil
	}
	if r.sync != nil {
		r.sync.destroy()
		r.sync = nil
	}
	if r.pass != nil {
		r.pass.Destroy()
		r.pass = nil
	}
	if r.sc != nil {
		r.sc.Destroy()
		r.sc = nil
	}
	r.be.Destroy()
	if r.dev != nil {
		r.dev.Destroy()
		r.dev = nil
	}
	logging.Logger().Debug("renderer destroyed", "frames", r.frames)
}

// State returns the renderer's state.
func (r *Renderer) State() State { return r.state }

// Generation describes the current generation of
// size-dependent resources.
func (r *Renderer) Generation() GenerationInfo { return r.gen.info() }

// SwapChain returns the swap chain.
func (r *Renderer) SwapChain() swapchain.SwapChain { return r.sc }

// Device returns the device.
func (r *Renderer) Device() *Device { return r.dev }

// Overlay returns the overlay.
func (r *Renderer) Overlay() *Overlay { return r.overlay }

// Backend returns the window backend.
func (r *Renderer) Backend() wsi.Backend { return r.be }

// Sync returns the frame synchronization primitives.
func (r *Renderer) Sync() *FrameSync { return r.sync }

// Frames returns the number of frames presented.
func (r *Renderer) Frames() int { return r.frames }

// statsLine keeps an overlay label with frame statistics.
type statsLine struct {
	ov     *Overlay
	label  Label
	last   time.Time
	frames int
}

func (s *statsLine) init(ov *Overlay) {
	s.ov = ov
	s.label = ov.Add(image.Pt(8, 8), [4]float32{1, 1, 1, 1}, [4]float32{0, 0, 0, 0.6}, "")
	s.last = time.Now()
}

// update refreshes the label once per period.
func (s *statsLine) update(r *Renderer) {
	now := time.Now()
	d := now.Sub(s.last)
	if d < dflStatsPeriod && s.frames > 0 {
		s.frames++
		return
	}
	fps := 0.0
	if s.frames > 0 {
		fps = float64(s.frames) / d.Seconds()
	}
	w, h := r.sc.Extent()
	s.ov.SetText(s.label,
		fmt.Sprintf("%.1f fps  frame %d", fps, r.frames),
		fmt.Sprintf("%s %dx%d %s", r.be.Kind(), w, h, r.sc.Format()))
	s.last = now
	s.frames = 1
}
