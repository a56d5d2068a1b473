// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package swapchain

import (
	"time"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/internal/logging"
)

// ScanBuffer is a host-mapped buffer that the display
// controller can scan out.
type ScanBuffer interface {
	// FB returns the kernel framebuffer id.
	FB() uint32
	// Pixels returns the mapped memory.
	Pixels() []byte
	// Pitch returns the length of a row in bytes.
	Pitch() int
	// Destroy unmaps and destroys the buffer.
	Destroy() error
}

// Output is a display output driven through kernel
// mode-setting.
type Output interface {
	// Mode returns the size of the active mode.
	Mode() (width, height int)
	// NewBuffer creates a scanout buffer of the given
	// size with 32-bit XRGB pixels.
	NewBuffer(width, height int) (ScanBuffer, error)
	// SetCRTC makes buf the scanned-out buffer,
	// performing a full mode-set.
	SetCRTC(buf ScanBuffer) error
	// PageFlip schedules buf to replace the current
	// buffer at the next vertical blank. slot is
	// reported back by WaitFlip.
	PageFlip(buf ScanBuffer, slot int) error
	// WaitFlip blocks until a scheduled flip completes
	// and returns its slot.
	WaitFlip(timeout time.Duration) (slot int, err error)
	// Restore restores the mode and buffer that were
	// scanned out before the first SetCRTC.
	Restore() error
	// Close releases the output.
	Close() error
}

// DefaultScanoutImages is the number of buffers in a
// scanout ring.
const DefaultScanoutImages = 3

// Format of scanout render targets. XRGB8888 is stored as
// B, G, R, X in memory.
const scanoutFormat = driver.BGRA8un

// FlipTimeout bounds the wait for a page-flip event.
var FlipTimeout = time.Second

// slot holds the resources of one scanout buffer.
type slot struct {
	img     driver.Image
	mem     driver.Memory
	view    driver.ImageView
	buf     driver.Buffer
	bufMem  driver.Memory
	scan    ScanBuffer
	cb      driver.CmdBuffer
	fence   driver.Fence
	mapped  []byte
	created bool
}

// Scanout is a SwapChain that renders into device images
// and copies each finished frame into a kernel scanout
// buffer, which is then page-flipped onto the output.
// Acquisition is not mediated by the driver: Acquire
// blocks on the page-flip completion of the previous
// frame and signals the semaphore with an empty
// submission.
type Scanout struct {
	gpu     GPU
	out     Output
	cfg     Config
	slots   []slot
	images  []Image
	width   int
	height  int
	cur     int
	front   int
	pending int
	flips   int
	// Buffer of a previous ring that is still scanned
	// out.
	retired ScanBuffer
}

// NewScanout creates a new Scanout on out.
// The Scanout takes ownership of out and closes it in
// Destroy.
func NewScanout(gpu GPU, out Output, cfg Config) *Scanout {
	return &Scanout{gpu: gpu, out: out, cfg: cfg, cur: -1, front: -1, pending: -1}
}

// Create implements SwapChain.
// The requested size is ignored: scanout images always
// have the size of the output's mode.
func (s *Scanout) Create(width, height int) (int, error) {
	if s.slots != nil {
		return 0, errors.New("swapchain: already created")
	}
	n := s.cfg.Images
	if n == 0 {
		n = DefaultScanoutImages
	}
	if n < 2 {
		return 0, errors.Wrapf(ErrImageCount, "swapchain: %d scanout images requested", n)
	}
	w, h := s.out.Mode()
	if w <= 0 || h <= 0 {
		return 0, errors.Errorf("swapchain: invalid output mode %dx%d", w, h)
	}
	s.width, s.height = w, h
	s.slots = make([]slot, n)
	s.images = make([]Image, n)
	cbs, err := s.gpu.CmdPool().Alloc(n)
	if err != nil {
		s.slots = nil
		return 0, err
	}
	for i := range s.slots {
		s.slots[i].cb = cbs[i]
	}
	for i := range s.slots {
		if err := s.newSlot(&s.slots[i]); err != nil {
			s.destroySlots()
			return 0, err
		}
		s.images[i] = Image{Image: s.slots[i].img, View: s.slots[i].view, FB: s.slots[i].scan.FB()}
	}
	s.cur, s.front, s.pending, s.flips = -1, -1, -1, 0
	logging.Logger().Debug("scanout ring created", "width", w, "height", h, "images", n)
	return n, nil
}

func (s *Scanout) newSlot(sl *slot) error {
	dev := s.gpu.Device()
	img, err := dev.NewImage(driver.ImageDesc{
		Format: scanoutFormat,
		Width:  s.width,
		Height: s.height,
		Usage:  driver.UColorTarget | driver.UCopySrc,
	})
	if err != nil {
		return err
	}
	sl.img = img
	if sl.mem, err = s.bind(img.Requirements(), driver.MemDeviceLocal, img.Bind); err != nil {
		return err
	}
	if sl.view, err = img.NewView(); err != nil {
		return err
	}
	size := int64(s.width) * int64(s.height) * int64(scanoutFormat.Size())
	if sl.buf, err = dev.NewBuffer(size, driver.UCopyDst); err != nil {
		return err
	}
	if sl.bufMem, err = s.bind(sl.buf.Requirements(), driver.MemHostVisible|driver.MemHostCoherent, sl.buf.Bind); err != nil {
		return err
	}
	if sl.mapped, err = sl.bufMem.Map(); err != nil {
		return err
	}
	if sl.scan, err = s.out.NewBuffer(s.width, s.height); err != nil {
		return err
	}
	if sl.fence, err = dev.NewFence(false); err != nil {
		return err
	}
	sl.created = true
	return nil
}

func (s *Scanout) bind(req driver.MemReq, props driver.MemProp, bind func(driver.Memory, int64) error) (driver.Memory, error) {
	typ, err := s.gpu.FindMemoryType(req.TypeBits, props)
	if err != nil {
		return nil, err
	}
	mem, err := s.gpu.Device().Alloc(req.Size, typ)
	if err != nil {
		return nil, err
	}
	if err := bind(mem, 0); err != nil {
		mem.Destroy()
		return nil, err
	}
	return mem, nil
}

// destroySlots destroys the resources of every slot in
// reverse creation order.
func (s *Scanout) destroySlots() {
	var cbs []driver.CmdBuffer
	for i := range s.slots {
		sl := &s.slots[i]
		if sl.fence != nil {
			sl.fence.Destroy()
		}
		if sl.scan != nil {
			if err := sl.scan.Destroy(); err != nil {
				logging.Logger().Warn("scanout buffer destruction failed", "err", err)
			}
		}
		if sl.bufMem != nil {
			if sl.mapped != nil {
				sl.bufMem.Unmap()
			}
		}
		if sl.buf != nil {
			sl.buf.Destroy()
		}
		if sl.bufMem != nil {
			sl.bufMem.Destroy()
		}
		if sl.view != nil {
			sl.view.Destroy()
		}
		if sl.img != nil {
			sl.img.Destroy()
		}
		if sl.mem != nil {
			sl.mem.Destroy()
		}
		if sl.cb != nil {
			cbs = append(cbs, sl.cb)
		}
	}
	if len(cbs) > 0 {
		s.gpu.CmdPool().Free(cbs)
	}
	s.slots = nil
	s.images = nil
}

// Acquire implements SwapChain.
// It never reports OutOfDate: the mode cannot change
// while the output is held.
func (s *Scanout) Acquire(signal driver.Semaphore) (int, Status, error) {
	if s.slots == nil {
		return -1, OK, ErrNotCreated
	}
	next := (s.cur + 1) % len(s.slots)
	// Only one flip can be outstanding. Until it
	// completes, the buffer being replaced is still
	// scanned out and cannot be reused.
	if s.pending >= 0 {
		if err := s.waitFlip(); err != nil {
			return -1, OK, err
		}
	}
	if next == s.front {
		return -1, OK, errors.Errorf("swapchain: scanout slot %d is being displayed", next)
	}
	err := s.gpu.Queue().Submit([]driver.Submit{{Signal: []driver.Semaphore{signal}}}, nil)
	if err != nil {
		return -1, OK, err
	}
	s.cur = next
	return next, OK, nil
}

func (s *Scanout) waitFlip() error {
	for s.pending >= 0 {
		slot, err := s.out.WaitFlip(FlipTimeout)
		if err != nil {
			return errors.WithMessage(err, "swapchain: page flip")
		}
		if slot == s.pending {
			s.front = slot
			s.pending = -1
		}
	}
	return nil
}

// Present implements SwapChain.
// It copies the rendered image into the slot's scanout
// buffer, waiting on the host for the copy to complete.
func (s *Scanout) Present(q driver.Queue, index int, wait driver.Semaphore) (Status, error) {
	if s.slots == nil {
		return OK, ErrNotCreated
	}
	if index != s.cur {
		return OK, errors.Errorf("swapchain: present of slot %d, acquired %d", index, s.cur)
	}
	sl := &s.slots[index]
	// Command buffers are recorded for a single
	// submission, so the copy is recorded every time.
	if err := sl.cb.Begin(); err != nil {
		return OK, err
	}
	sl.cb.CopyImageToBuffer(sl.img, sl.buf)
	if err := sl.cb.End(); err != nil {
		return OK, err
	}
	err := q.Submit([]driver.Submit{{
		Wait:   []driver.Semaphore{wait},
		Stages: []driver.Sync{driver.SCopy},
		Cmds:   []driver.CmdBuffer{sl.cb},
	}}, sl.fence)
	if err != nil {
		return OK, err
	}
	if err := sl.fence.Wait(-1); err != nil {
		return OK, err
	}
	if err := sl.fence.Reset(); err != nil {
		return OK, err
	}
	copyRows(sl.scan.Pixels(), sl.scan.Pitch(), sl.mapped, s.width*scanoutFormat.Size(), s.height)
	if s.front < 0 {
		if err := s.out.SetCRTC(sl.scan); err != nil {
			return OK, err
		}
		s.front = index
		s.releaseRetired()
	} else {
		if err := s.out.PageFlip(sl.scan, index); err != nil {
			return OK, err
		}
		s.pending = index
	}
	s.flips++
	return OK, nil
}

// copyRows copies height rows of rowLen bytes from src,
// which is tightly packed, into dst, whose rows are pitch
// bytes apart.
func copyRows(dst []byte, pitch int, src []byte, rowLen, height int) {
	if pitch == rowLen {
		copy(dst, src[:rowLen*height])
		return
	}
	for y := 0; y < height; y++ {
		copy(dst[y*pitch:y*pitch+rowLen], src[y*rowLen:(y+1)*rowLen])
	}
}

// Recreate implements SwapChain.
// The ring is rebuilt at the output's mode size.
func (s *Scanout) Recreate(width, height int) error {
	if s.slots == nil {
		return ErrNotCreated
	}
	if s.pending >= 0 {
		if err := s.waitFlip(); err != nil {
			return err
		}
	}
	// The buffer being displayed stays alive until the
	// new ring replaces it with a full mode-set.
	if s.front >= 0 {
		s.releaseRetired()
		s.retired = s.slots[s.front].scan
		s.slots[s.front].scan = nil
	}
	s.destroySlots()
	_, err := s.Create(width, height)
	return err
}

// releaseRetired destroys the buffer of a previous ring
// that was still being displayed.
func (s *Scanout) releaseRetired() {
	if s.retired == nil {
		return
	}
	if err := s.retired.Destroy(); err != nil {
		logging.Logger().Warn("scanout buffer destruction failed", "err", err)
	}
	s.retired = nil
}

// Destroy implements SwapChain.
func (s *Scanout) Destroy() {
	if s.out == nil {
		return
	}
	if s.pending >= 0 {
		if err := s.waitFlip(); err != nil {
			logging.Logger().Warn("pending page flip not completed", "err", err)
			s.pending = -1
		}
	}
	// The previous CRTC state must be restored before
	// the scanned-out buffer goes away.
	if s.front >= 0 || s.retired != nil {
		if err := s.out.Restore(); err != nil {
			logging.Logger().Warn("output restore failed", "err", err)
		}
	}
	s.releaseRetired()
	s.destroySlots()
	if err := s.out.Close(); err != nil {
		logging.Logger().Warn("output close failed", "err", err)
	}
	s.out = nil
}

// Images implements SwapChain.
func (s *Scanout) Images() []Image { return append([]Image(nil), s.images...) }

// Format implements SwapChain.
func (s *Scanout) Format() driver.PixelFmt { return scanoutFormat }

// Extent implements SwapChain.
func (s *Scanout) Extent() (int, int) { return s.width, s.height }

// Layout implements SwapChain.
func (s *Scanout) Layout() driver.Layout { return driver.LCopySrc }

// Formats implements SwapChain.
func (s *Scanout) Formats() ([]driver.SurfaceFormat, error) {
	return []driver.SurfaceFormat{{Format: scanoutFormat}}, nil
}

// PresentModes implements SwapChain.
// Page flips always wait for the vertical blank.
func (s *Scanout) PresentModes() ([]driver.PresentMode, error) {
	return []driver.PresentMode{driver.FIFO}, nil
}

// ImageLimits implements SwapChain.
func (s *Scanout) ImageLimits() (int, int) { return 2, 0 }

// Flips returns how many frames were handed to the
// display controller.
func (s *Scanout) Flips() int { return s.flips }
