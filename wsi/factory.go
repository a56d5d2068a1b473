// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wsi

import (
	stderrors "errors"
	"sync"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/internal/logging"
)

// Constructor creates an uninitialized backend.
type Constructor func(opts Options) Backend

// Order in which Select tries backends.
var fallback = [...]Kind{Wayland, XCB, KMS}

var (
	mu           sync.Mutex
	constructors = make(map[Kind]Constructor)
)

// Register registers the constructor of a backend kind.
// Native backend packages call it from init; importing a
// package makes its kinds available.
// Registering the same kind twice replaces the former
// constructor.
func Register(k Kind, c Constructor) {
	if k == Auto {
		panic("wsi: cannot register the auto kind")
	}
	mu.Lock()
	defer mu.Unlock()
	constructors[k] = c
	logging.Logger().Debug("backend registered", "backend", k.String())
}

// Registered returns whether a constructor for k exists.
func Registered(k Kind) bool {
	mu.Lock()
	defer mu.Unlock()
	_, ok := constructors[k]
	return ok
}

func lookup(k Kind) (Constructor, error) {
	mu.Lock()
	defer mu.Unlock()
	c, ok := constructors[k]
	if !ok {
		return nil, errors.Errorf("wsi: %s backend not available in this build", k)
	}
	return c, nil
}

// New creates a backend of kind k without initializing it.
func New(k Kind, opts Options) (Backend, error) {
	if k == Auto {
		return nil, errors.New("wsi: auto has no constructor")
	}
	c, err := lookup(k)
	if err != nil {
		return nil, err
	}
	return c(opts), nil
}

// Open creates and initializes a backend of kind k.
// With Auto, it is the same as Select.
// On failure, the backend is destroyed.
func Open(k Kind, opts Options) (Backend, error) {
	if k == Auto {
		return Select(opts)
	}
	b, err := New(k, opts)
	if err != nil {
		return nil, err
	}
	if err := b.Init(); err != nil {
		b.Destroy()
		return nil, errors.WithMessagef(err, "wsi: %s", k)
	}
	return b, nil
}

// Select tries the Wayland, XCB and KMS backends, in this
// order, and returns the first one that initializes.
// Each candidate is tried once; a failed candidate is
// destroyed before the next one is created.
// If none succeeds, the error matches ErrNoBackend and
// carries every candidate's failure.
// Select never touches the GPU.
func Select(opts Options) (Backend, error) {
	errs := []error{ErrNoBackend}
	for _, k := range fallback {
		b, err := New(k, opts)
		if err == nil {
			if err = b.Init(); err == nil {
				logging.Logger().Info("window backend selected", "backend", k.String())
				return b, nil
			}
			b.Destroy()
		}
		logging.Logger().Warn("window backend failed", "backend", k.String(), "err", err)
		errs = append(errs, errors.WithMessage(err, k.String()))
	}
	return nil, stderrors.Join(errs...)
}
