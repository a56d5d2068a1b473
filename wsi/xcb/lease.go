// Copyright 2023 Gustavo C. Viegas. All rights reserved.

//go:build linux

package xcb

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/internal/drm"
	"github.com/gviegas/vkdemo/internal/logging"
	"github.com/gviegas/vkdemo/swapchain"
	"github.com/gviegas/vkdemo/wsi"
	"github.com/gviegas/vkdemo/wsi/kms"
)

// Lessor leases RandR outputs from the X server.
// It implements swapchain.Lessor.
type Lessor struct {
	conn   *Conn
	outs   map[uint32]output
	leased swapchain.LeaseOutput
}

// NewLessor creates a Lessor on conn.
func NewLessor(conn *Conn) *Lessor { return &Lessor{conn: conn} }

// Outputs implements swapchain.Lessor.
func (l *Lessor) Outputs() ([]swapchain.LeaseOutput, error) {
	outs, err := l.conn.outputs()
	if err != nil {
		return nil, err
	}
	l.outs = make(map[uint32]output, len(outs))
	var leasable []swapchain.LeaseOutput
	for _, o := range outs {
		if !o.connected || len(o.crtcs) == 0 {
			continue
		}
		l.outs[o.id] = o
		leasable = append(leasable, swapchain.LeaseOutput{
			ID:         o.id,
			Name:       o.name,
			NonDesktop: o.nonDesktop,
			Width:      o.width,
			Height:     o.height,
		})
	}
	return leasable, nil
}

// Lease implements swapchain.Lessor.
// The output keeps its current CRTC, if any; otherwise
// the first CRTC it can use is leased with it.
func (l *Lessor) Lease(out swapchain.LeaseOutput) (swapchain.Output, error) {
	o, ok := l.outs[out.ID]
	if !ok {
		return nil, errors.Wrapf(swapchain.ErrLeaseDenied, "xcb: output %s not enumerated", out.Name)
	}
	crtc := leaseCRTC(o)
	fd, err := l.conn.lease(o.id, crtc)
	if err != nil {
		return nil, errors.Wrap(swapchain.ErrLeaseDenied, err.Error())
	}
	card := drm.NewCard(fd, fmt.Sprintf("lease:%s", o.name))
	// A lease only exposes the leased connector and CRTC.
	kout, err := kms.NewOutput(card, "")
	if err != nil {
		card.Close()
		return nil, err
	}
	l.leased = out
	logging.Logger().Debug("randr lease granted", "output", o.name, "crtc", crtc, "fd", fd)
	return kout, nil
}

// leaseCRTC picks the CRTC to lease along with o.
func leaseCRTC(o output) uint32 {
	if o.crtc != 0 {
		return o.crtc
	}
	return o.crtcs[0]
}

// LeaseBackend implements wsi.Backend on an output
// leased from the X server.
// Input is read from the terminal the program runs in.
type LeaseBackend struct {
	wsi.Lifecycle
	opts   wsi.Options
	conn   *Conn
	lessor *Lessor
	tty    *wsi.TTY
	queue  wsi.Queue

	// Display names the X server. $DISPLAY is used if
	// empty.
	Display string
}

// NewLease creates a new lease backend.
func NewLease(opts wsi.Options) wsi.Backend {
	return &LeaseBackend{opts: opts}
}

// Kind implements wsi.Backend.
func (b *LeaseBackend) Kind() wsi.Kind { return wsi.Lease }

// Init connects to the X server and checks that it can
// grant leases.
func (b *LeaseBackend) Init() error {
	if err := b.Connected(); err == nil {
		return nil
	}
	conn, err := Connect(b.Display)
	if err != nil {
		return err
	}
	if !conn.hasRandR(1, 6) {
		conn.Close()
		return errors.Wrapf(ErrNoRandR, "xcb: server has RandR %d.%d, leases need 1.6", conn.randr[0], conn.randr[1])
	}
	tty, err := wsi.OpenTTY(int(os.Stdin.Fd()))
	if err != nil {
		conn.Close()
		return err
	}
	b.conn, b.tty = conn, tty
	b.lessor = NewLessor(conn)
	b.SetConnected()
	return nil
}

// RequiredExtensions implements wsi.Backend.
func (b *LeaseBackend) RequiredExtensions() []string { return nil }

// CheckSupport implements wsi.Backend.
func (b *LeaseBackend) CheckSupport(gpu swapchain.GPU) error {
	if err := b.Connected(); err != nil {
		return err
	}
	return kms.CheckScanout(gpu)
}

// InitSwapChain implements wsi.Backend.
// The lease is requested when the swap chain is created.
func (b *LeaseBackend) InitSwapChain(gpu swapchain.GPU, cfg swapchain.Config) (swapchain.SwapChain, error) {
	if err := b.Connected(); err != nil {
		return nil, err
	}
	sc := swapchain.NewLease(gpu, b.lessor, cfg)
	b.SetSurfaceReady()
	return sc, nil
}

// Iterate implements wsi.Backend.
func (b *LeaseBackend) Iterate(ctx context.Context) ([]wsi.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.Connected(); err != nil {
		return nil, err
	}
	if err := b.conn.Err(); err != nil {
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
// It is the size of the leased output once the lease is
// granted.
func (b *LeaseBackend) Size() (int, int) {
	if b.lessor != nil && b.lessor.leased.Width > 0 {
		return b.lessor.leased.Width, b.lessor.leased.Height
	}
	return b.opts.Width, b.opts.Height
}

// Screens implements wsi.Backend.
func (b *LeaseBackend) Screens() ([]wsi.Screen, error) {
	if err := b.Connected(); err != nil {
		return nil, err
	}
	return b.conn.Screens()
}

// Destroy implements wsi.Backend.
// Closing the lease descriptor, which the swap chain
// does, returns the output to the X server.
func (b *LeaseBackend) Destroy() {
	if b.tty != nil {
		b.tty.Close()
		b.tty = nil
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.lessor = nil
	b.SetDestroyed()
}

var _ swapchain.Lessor = (*Lessor)(nil)
