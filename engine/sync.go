// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"time"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
)

// FrameSync holds the synchronization primitives of the
// frame loop.
//
// Frames in flight cycle through slots. Each slot has the
// semaphore that the swap chain signals when an image is
// acquired and the fence of the submission that waits on
// it. A slot's fence is waited on before its semaphore is
// given to the swap chain again, so that the previous wait
// on the semaphore is known to have completed.
//
// Each swap chain image has its own Rendered and Overlaid
// semaphores, signaled by the main and overlay passes and
// waited on by presentation. They are not signaled again
// until the image is reacquired.
//
// A fence is waited on only if a submission that signals
// it is pending, and it is reset right after the wait.
type FrameSync struct {
	dev     driver.Device
	timeout time.Duration
	slots   []frameSlot
	images  []imageSync
	cur     int
}

type frameSlot struct {
	acquired driver.Semaphore
	fence    driver.Fence
	pending  bool
}

type imageSync struct {
	rendered driver.Semaphore
	overlaid driver.Semaphore
	// Slot of the last submission that used the image,
	// or -1.
	slot int
}

func newFrameSync(dev driver.Device, n int, timeout time.Duration) (*FrameSync, error) {
	s := &FrameSync{dev: dev, timeout: timeout}
	if err := s.grow(n); err != nil {
		s.destroy()
		return nil, err
	}
	return s, nil
}

// Len returns the number of frame slots.
func (s *FrameSync) Len() int { return len(s.slots) }

// Images returns the number of images with semaphores.
func (s *FrameSync) Images() int { return len(s.images) }

// Current returns the slot of the next frame.
func (s *FrameSync) Current() int { return s.cur }

// Fence returns the fence of slot i.
func (s *FrameSync) Fence(i int) driver.Fence { return s.slots[i].fence }

// Acquired returns the acquire semaphore of slot i.
func (s *FrameSync) Acquired(i int) driver.Semaphore { return s.slots[i].acquired }

// Rendered returns the semaphore that the main pass of
// image i signals.
func (s *FrameSync) Rendered(i int) driver.Semaphore { return s.images[i].rendered }

// Overlaid returns the semaphore that the overlay pass of
// image i signals.
func (s *FrameSync) Overlaid(i int) driver.Semaphore { return s.images[i].overlaid }

// Pending returns whether slot i has a submission that
// was not waited on.
func (s *FrameSync) Pending(i int) bool { return s.slots[i].pending }

// grow adds frame slots and image semaphores until there
// are at least n of each.
func (s *FrameSync) grow(n int) error {
	for len(s.slots) < n {
		sem, err := s.dev.NewSemaphore()
		if err != nil {
			return err
		}
		f, err := s.dev.NewFence(false)
		if err != nil {
			sem.Destroy()
			return err
		}
		s.slots = append(s.slots, frameSlot{acquired: sem, fence: f})
	}
	for len(s.images) < n {
		r, err := s.dev.NewSemaphore()
		if err != nil {
			return err
		}
		o, err := s.dev.NewSemaphore()
		if err != nil {
			r.Destroy()
			return err
		}
		s.images = append(s.images, imageSync{rendered: r, overlaid: o, slot: -1})
	}
	return nil
}

// submitted records that the fence of the current slot
// will be signaled by a submission that used image img
// (-1 if none), and moves on to the next slot.
func (s *FrameSync) submitted(img int) {
	s.slots[s.cur].pending = true
	if img >= 0 {
		s.images[img].slot = s.cur
	}
	s.cur = (s.cur + 1) % len(s.slots)
}

// wait waits for and resets the fence of slot i, if it
// has a pending submission.
func (s *FrameSync) wait(i int) error {
	sl := &s.slots[i]
	if !sl.pending {
		return nil
	}
	if err := sl.fence.Wait(s.timeout); err != nil {
		return errors.WithMessagef(err, "engine: fence of frame slot %d", i)
	}
	sl.pending = false
	return sl.fence.Reset()
}

// waitImage waits for the last submission that used
// image i, so that its command buffers can be recorded
// again.
func (s *FrameSync) waitImage(i int) error {
	if j := s.images[i].slot; j >= 0 {
		return s.wait(j)
	}
	return nil
}

// settle waits for and resets every pending fence.
// It is meant to be called after the device is idle, so
// that no wait blocks.
func (s *FrameSync) settle() error {
	for i := range s.slots {
		if err := s.wait(i); err != nil {
			return err
		}
	}
	for i := range s.images {
		s.images[i].slot = -1
	}
	return nil
}

func (s *FrameSync) destroy() {
	for _, sl := range s.slots {
		sl.fence.Destroy()
		sl.acquired.Destroy()
	}
	for _, im := range s.images {
		im.rendered.Destroy()
		im.overlaid.Destroy()
	}
	s.slots = nil
	s.images = nil
	s.cur = 0
}
