// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package swapchain

import (
	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/internal/logging"
)

// LeaseOutput describes an output that a Lessor can
// lease.
// NonDesktop is set for outputs that the compositor does
// not use for its desktop (e.g., head-mounted displays).
type LeaseOutput struct {
	ID         uint32
	Name       string
	NonDesktop bool
	Width      int
	Height     int
}

// Lessor negotiates output leases with a compositor.
type Lessor interface {
	// Outputs enumerates the outputs that can be leased.
	Outputs() ([]LeaseOutput, error)
	// Lease requests exclusive access to out and returns
	// it as an Output once the lease is granted.
	// A refusal is reported as ErrLeaseDenied.
	Lease(out LeaseOutput) (Output, error)
}

// Lease is a SwapChain that obtains an output through a
// lease and then behaves like Scanout.
// There is no fallback when the lease is not granted.
type Lease struct {
	gpu    GPU
	lessor Lessor
	cfg    Config
	leased LeaseOutput
	scan   *Scanout
}

// NewLease creates a new Lease.
func NewLease(gpu GPU, lessor Lessor, cfg Config) *Lease {
	return &Lease{gpu: gpu, lessor: lessor, cfg: cfg}
}

// Create implements SwapChain.
func (l *Lease) Create(width, height int) (int, error) {
	if l.scan != nil {
		return 0, errors.New("swapchain: already created")
	}
	outs, err := l.lessor.Outputs()
	if err != nil {
		return 0, errors.WithMessage(err, "swapchain: lease outputs")
	}
	cand, ok := pickLeaseOutput(outs)
	if !ok {
		return 0, ErrNoLeaseOutput
	}
	out, err := l.lessor.Lease(cand)
	if err != nil {
		if errors.Is(err, ErrLeaseDenied) {
			return 0, err
		}
		return 0, errors.Wrap(ErrLeaseDenied, err.Error())
	}
	logging.Logger().Info("output leased", "output", cand.Name, "non_desktop", cand.NonDesktop)
	l.leased = cand
	l.scan = NewScanout(l.gpu, out, l.cfg)
	n, err := l.scan.Create(width, height)
	if err != nil {
		l.scan.Destroy()
		l.scan = nil
		return 0, err
	}
	return n, nil
}

// pickLeaseOutput prefers non-desktop outputs.
func pickLeaseOutput(outs []LeaseOutput) (LeaseOutput, bool) {
	for _, o := range outs {
		if o.NonDesktop {
			return o, true
		}
	}
	if len(outs) > 0 {
		return outs[0], true
	}
	return LeaseOutput{}, false
}

// Leased returns the output that was leased.
func (l *Lease) Leased() LeaseOutput { return l.leased }

// Acquire implements SwapChain.
func (l *Lease) Acquire(signal driver.Semaphore) (int, Status, error) {
	if l.scan == nil {
		return -1, OK, ErrNotCreated
	}
	return l.scan.Acquire(signal)
}

// Present implements SwapChain.
func (l *Lease) Present(q driver.Queue, index int, wait driver.Semaphore) (Status, error) {
	if l.scan == nil {
		return OK, ErrNotCreated
	}
	return l.scan.Present(q, index, wait)
}

// Recreate implements SwapChain.
// The lease is kept.
func (l *Lease) Recreate(width, height int) error {
	if l.scan == nil {
		return ErrNotCreated
	}
	return l.scan.Recreate(width, height)
}

// Destroy implements SwapChain.
// Closing the leased output revokes the lease.
func (l *Lease) Destroy() {
	if l.scan != nil {
		l.scan.Destroy()
		l.scan = nil
	}
}

// Images implements SwapChain.
func (l *Lease) Images() []Image {
	if l.scan == nil {
		return nil
	}
	return l.scan.Images()
}

// Format implements SwapChain.
func (l *Lease) Format() driver.PixelFmt { return scanoutFormat }

// Extent implements SwapChain.
func (l *Lease) Extent() (int, int) {
	if l.scan == nil {
		return 0, 0
	}
	return l.scan.Extent()
}

// Layout implements SwapChain.
func (l *Lease) Layout() driver.Layout { return driver.LCopySrc }

// Formats implements SwapChain.
func (l *Lease) Formats() ([]driver.SurfaceFormat, error) {
	return []driver.SurfaceFormat{{Format: scanoutFormat}}, nil
}

// PresentModes implements SwapChain.
func (l *Lease) PresentModes() ([]driver.PresentMode, error) {
	return []driver.PresentMode{driver.FIFO}, nil
}

// ImageLimits implements SwapChain.
func (l *Lease) ImageLimits() (int, int) { return 2, 0 }
