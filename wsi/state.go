// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wsi

// State is the lifecycle state of a backend.
type State int

// Backend states.
// A backend moves Uninitialized → Connected on Init,
// Connected → SurfaceReady on InitSwapChain and then
// alternates between Presenting and Resizing as resize
// events are delivered. Destroyed is terminal.
const (
	Uninitialized State = iota
	Connected
	SurfaceReady
	Presenting
	Resizing
	Destroyed
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case SurfaceReady:
		return "surface-ready"
	case Presenting:
		return "presenting"
	case Resizing:
		return "resizing"
	case Destroyed:
		return "destroyed"
	}
	return "uninitialized"
}

// Lifecycle tracks the state of a backend.
// Backend implementations embed it.
type Lifecycle struct {
	state State
}

// State returns the current state.
func (l *Lifecycle) State() State { return l.state }

// SetConnected records a successful Init.
func (l *Lifecycle) SetConnected() { l.state = Connected }

// SetSurfaceReady records a successful InitSwapChain.
func (l *Lifecycle) SetSurfaceReady() { l.state = SurfaceReady }

// SetDestroyed records a Destroy call.
func (l *Lifecycle) SetDestroyed() { l.state = Destroyed }

// Connected returns ErrNotConnected unless Init succeeded
// and Destroy was not called.
func (l *Lifecycle) Connected() error {
	if l.state == Uninitialized || l.state == Destroyed {
		return ErrNotConnected
	}
	return nil
}

// Observe advances the state with a batch of events
// returned from Iterate.
func (l *Lifecycle) Observe(evs []Event) {
	if l.state < SurfaceReady || l.state == Destroyed {
		return
	}
	l.state = Presenting
	for _, e := range evs {
		if _, ok := e.(ResizeEvent); ok {
			l.state = Resizing
		}
	}
}
