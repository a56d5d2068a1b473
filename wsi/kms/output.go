// Copyright 2023 Gustavo C. Viegas. All rights reserved.

//go:build linux

package kms

import (
	"time"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/internal/drm"
	"github.com/gviegas/vkdemo/internal/logging"
	"github.com/gviegas/vkdemo/swapchain"
)

// Output drives one connector of a DRM card.
// It implements swapchain.Output and owns the card.
type Output struct {
	card    *drm.Card
	out     drm.Output
	saved   *drm.CRTC
	master  bool
	set     bool
	flipped []int
	wait    func(time.Duration) ([]drm.Event, error)
}

// NewOutput selects an output on card.
// If name is not empty, only the connector with that name
// is considered. The CRTC state is saved so that Restore
// can bring it back.
// On success, the Output takes ownership of card.
func NewOutput(card *drm.Card, name string) (*Output, error) {
	out, err := card.FindOutput(name)
	if err != nil {
		return nil, err
	}
	o := &Output{card: card, out: *out, wait: card.WaitEvents}
	if saved, err := card.CRTC(out.CRTC); err == nil {
		o.saved = saved
	} else {
		logging.Logger().Debug("cannot save crtc", "crtc", out.CRTC, "err", err)
	}
	logging.Logger().Info("kms output", "card", card.Name(), "connector", out.Connector.Name(), "mode", out.Mode.String(), "crtc", out.CRTC)
	return o, nil
}

// Name returns the connector's name.
func (o *Output) Name() string { return o.out.Connector.Name() }

// Mode implements swapchain.Output.
func (o *Output) Mode() (int, int) { return o.out.Mode.Width, o.out.Mode.Height }

// Refresh returns the refresh rate of the mode in Hz.
func (o *Output) Refresh() int { return o.out.Mode.Refresh }

// dumbBuffer implements swapchain.ScanBuffer.
type dumbBuffer struct {
	card   *drm.Card
	dumb   *drm.Dumb
	fb     uint32
	pixels []byte
}

func (b *dumbBuffer) FB() uint32     { return b.fb }
func (b *dumbBuffer) Pixels() []byte { return b.pixels }
func (b *dumbBuffer) Pitch() int     { return b.dumb.Pitch }

func (b *dumbBuffer) Destroy() error {
	var err error
	keep := func(e error) {
		if err == nil {
			err = e
		}
	}
	if b.fb != 0 {
		keep(b.card.RemoveFB(b.fb))
		b.fb = 0
	}
	if b.pixels != nil {
		keep(b.card.UnmapDumb(b.pixels))
		b.pixels = nil
	}
	if b.dumb != nil {
		keep(b.card.DestroyDumb(b.dumb))
		b.dumb = nil
	}
	return err
}

// NewBuffer implements swapchain.Output.
// Buffers are XRGB8888 dumb buffers.
func (o *Output) NewBuffer(width, height int) (swapchain.ScanBuffer, error) {
	dumb, err := o.card.CreateDumb(width, height, 32)
	if err != nil {
		return nil, err
	}
	b := &dumbBuffer{card: o.card, dumb: dumb}
	if b.fb, err = o.card.AddFB(dumb, 24); err != nil {
		b.Destroy()
		return nil, err
	}
	if b.pixels, err = o.card.MapDumb(dumb); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

// SetCRTC implements swapchain.Output.
func (o *Output) SetCRTC(buf swapchain.ScanBuffer) error {
	if err := o.card.SetCRTC(o.out.CRTC, buf.FB(), []uint32{o.out.Connector.ID}, &o.out.Mode); err != nil {
		return err
	}
	o.set = true
	return nil
}

// PageFlip implements swapchain.Output.
func (o *Output) PageFlip(buf swapchain.ScanBuffer, slot int) error {
	return o.card.PageFlip(o.out.CRTC, buf.FB(), uint64(slot))
}

// WaitFlip implements swapchain.Output.
// Events other than flip completions on this output's
// CRTC are discarded.
func (o *Output) WaitFlip(timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for len(o.flipped) == 0 {
		left := time.Until(deadline)
		if left < 0 {
			left = 0
		}
		evs, err := o.wait(left)
		if err != nil {
			if errors.Is(err, drm.ErrTimeout) {
				return -1, errors.Wrapf(err, "kms: page flip on %s", o.Name())
			}
			return -1, err
		}
		for _, e := range evs {
			if e.Type == drm.EventFlipComplete && (e.CRTC == 0 || e.CRTC == o.out.CRTC) {
				o.flipped = append(o.flipped, int(e.UserData))
			}
		}
	}
	slot := o.flipped[0]
	o.flipped = o.flipped[1:]
	return slot, nil
}

// Restore implements swapchain.Output.
func (o *Output) Restore() error {
	if !o.set || o.saved == nil {
		return nil
	}
	o.set = false
	return o.card.RestoreCRTC(o.saved, []uint32{o.out.Connector.ID})
}

// Close implements swapchain.Output.
// It drops the master role if the output acquired it and
// closes the card.
func (o *Output) Close() error {
	if o.card == nil {
		return nil
	}
	if o.master {
		o.card.DropMaster()
	}
	err := o.card.Close()
	o.card = nil
	return err
}
