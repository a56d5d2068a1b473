// Copyright 2023 Gustavo C. Viegas. All rights reserved.

//go:build linux

// Package kms implements a window backend that scans out
// directly through kernel mode-setting, without a window
// system. Keyboard input is read from the controlling
// terminal.
//
// Importing the package registers the kms backend.
package kms

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/internal/drm"
	"github.com/gviegas/vkdemo/internal/logging"
	"github.com/gviegas/vkdemo/swapchain"
	"github.com/gviegas/vkdemo/wsi"
)

func init() {
	wsi.Register(wsi.KMS, New)
}

// Backend implements wsi.Backend on a DRM card.
type Backend struct {
	wsi.Lifecycle
	opts  wsi.Options
	card  *drm.Card
	out   *Output
	tty   *wsi.TTY
	queue wsi.Queue
	w, h  int

	// Cards returns the candidate device paths.
	Cards func() []string
}

// New creates a new kms backend.
func New(opts wsi.Options) wsi.Backend {
	return &Backend{opts: opts, Cards: drm.Cards}
}

// Kind implements wsi.Backend.
func (b *Backend) Kind() wsi.Kind { return wsi.KMS }

// Init opens the first card on which the master role can
// be acquired and that has a connected output.
// It fails when a compositor holds every card.
func (b *Backend) Init() error {
	if err := b.Connected(); err == nil {
		return nil
	}
	paths := b.Cards()
	if len(paths) == 0 {
		return errors.Wrap(drm.ErrNoOutput, "kms: no DRM device found")
	}
	var errs []error
	for _, p := range paths {
		out, err := openOutput(p)
		if err == nil {
			b.out = out
			b.card = out.card
			break
		}
		logging.Logger().Debug("kms card rejected", "card", p, "err", err)
		errs = append(errs, err)
	}
	if b.out == nil {
		return errors.WithMessagef(errs[0], "kms: %d card(s) tried", len(paths))
	}
	b.w, b.h = b.out.Mode()
	tty, err := wsi.OpenTTY(int(os.Stdin.Fd()))
	if err != nil {
		b.out.Close()
		b.out = nil
		return err
	}
	tty.SetGraphics()
	b.tty = tty
	b.SetConnected()
	return nil
}

// openOutput opens the card at path and becomes its
// master.
func openOutput(path string) (*Output, error) {
	card, err := drm.Open(path)
	if err != nil {
		return nil, err
	}
	if err := card.SetMaster(); err != nil {
		card.Close()
		return nil, errors.WithMessage(err, "kms: cannot become DRM master (is a compositor running?)")
	}
	if dumb, err := card.Cap(drm.CapDumbBuffer); err != nil || dumb == 0 {
		card.DropMaster()
		card.Close()
		return nil, errors.Errorf("kms: %s does not support dumb buffers", path)
	}
	out, err := NewOutput(card, "")
	if err != nil {
		card.DropMaster()
		card.Close()
		return nil, err
	}
	out.master = true
	return out, nil
}

// RequiredExtensions implements wsi.Backend.
// Scanout needs no presentation extension.
func (b *Backend) RequiredExtensions() []string { return nil }

// CheckSupport implements wsi.Backend.
func (b *Backend) CheckSupport(gpu swapchain.GPU) error {
	if err := b.Connected(); err != nil {
		return err
	}
	return CheckScanout(gpu)
}

// CheckScanout verifies that gpu can render into and copy
// from the images of a scanout swap chain.
func CheckScanout(gpu swapchain.GPU) error {
	const need = driver.FColorTarget | driver.FCopySrc
	if f := gpu.Device().FormatFeatures(driver.BGRA8un); f&need != need {
		return errors.Wrapf(driver.ErrUnsupported, "kms: %v cannot be rendered and copied", driver.BGRA8un)
	}
	return nil
}

// InitSwapChain implements wsi.Backend.
// The output is handed over to the swap chain, which
// closes it when destroyed.
func (b *Backend) InitSwapChain(gpu swapchain.GPU, cfg swapchain.Config) (swapchain.SwapChain, error) {
	if err := b.Connected(); err != nil {
		return nil, err
	}
	if b.out == nil {
		return nil, errors.New("kms: swap chain already created")
	}
	sc := swapchain.NewScanout(gpu, b.out, cfg)
	b.out = nil
	b.SetSurfaceReady()
	return sc, nil
}

// Iterate implements wsi.Backend.
func (b *Backend) Iterate(ctx context.Context) ([]wsi.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.Connected(); err != nil {
		return nil, err
	}
	evs, err := b.tty.Poll(0)
	if err != nil {
		return nil, err
	}
	for _, e := range evs {
		b.queue.Push(e)
	}
	evs = b.queue.Drain()
	b.Observe(evs)
	return evs, nil
}

// Size implements wsi.Backend.
func (b *Backend) Size() (int, int) { return b.w, b.h }

// Screens implements wsi.Backend.
func (b *Backend) Screens() ([]wsi.Screen, error) {
	if b.card == nil || b.card.Fd() < 0 {
		return nil, wsi.ErrNotConnected
	}
	return Screens(b.card)
}

// Screens lists the connected connectors of card.
func Screens(card *drm.Card) ([]wsi.Screen, error) {
	res, err := card.Resources()
	if err != nil {
		return nil, err
	}
	var scrs []wsi.Screen
	for _, id := range res.Connectors {
		conn, err := card.Connector(id)
		if err != nil {
			return nil, err
		}
		if conn.Connection != drm.Connected {
			continue
		}
		scr := wsi.Screen{Name: conn.Name()}
		if m, ok := conn.PreferredMode(); ok {
			scr.Width, scr.Height, scr.RefreshMHz = m.Width, m.Height, m.Refresh*1000
		}
		scrs = append(scrs, scr)
	}
	return scrs, nil
}

// Destroy implements wsi.Backend.
func (b *Backend) Destroy() {
	if b.out != nil {
		b.out.Close()
		b.out = nil
	}
	if b.tty != nil {
		b.tty.Close()
		b.tty = nil
	}
	b.card = nil
	b.SetDestroyed()
}
