// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wsi

import (
	"fmt"
)

// Event is the interface implemented by every message a
// backend delivers from Iterate.
// The set of events is closed; consumers use a type
// switch.
type Event interface {
	fmt.Stringer
	event()
}

// KeyEvent reports a key press or release.
// Mods is the modifier mask after the event.
type KeyEvent struct {
	Key     Key
	Pressed bool
	Mods    Modifier
}

// PointerMotion reports a new pointer position, in
// target coordinates.
type PointerMotion struct {
	X, Y int
}

// PointerButton reports a button press or release at the
// current pointer position.
type PointerButton struct {
	Button  Button
	Pressed bool
	X, Y    int
}

// Scroll reports a scroll step.
type Scroll struct {
	DX, DY float64
}

// ResizeEvent reports that the target changed size.
type ResizeEvent struct {
	Width, Height int
}

// QuitEvent reports that the user asked to close the
// target.
type QuitEvent struct{}

// RepaintEvent is delivered when no native event is
// pending.
type RepaintEvent struct{}

func (KeyEvent) event()      {}
func (PointerMotion) event() {}
func (PointerButton) event() {}
func (Scroll) event()        {}
func (ResizeEvent) event()   {}
func (QuitEvent) event()     {}
func (RepaintEvent) event()  {}

func (e KeyEvent) String() string {
	return fmt.Sprintf("key{%d pressed=%t mods=%#x}", e.Key, e.Pressed, e.Mods)
}

func (e PointerMotion) String() string { return fmt.Sprintf("motion{%d,%d}", e.X, e.Y) }

func (e PointerButton) String() string {
	return fmt.Sprintf("button{%d pressed=%t at %d,%d}", e.Button, e.Pressed, e.X, e.Y)
}

func (e Scroll) String() string      { return fmt.Sprintf("scroll{%g,%g}", e.DX, e.DY) }
func (e ResizeEvent) String() string { return fmt.Sprintf("resize{%dx%d}", e.Width, e.Height) }
func (QuitEvent) String() string     { return "quit" }
func (RepaintEvent) String() string  { return "repaint" }

// Queue accumulates events between Iterate calls.
// Native callbacks push into it; Iterate drains it.
type Queue struct {
	evs []Event
}

// Push appends an event.
// Consecutive resizes collapse into the last one.
func (q *Queue) Push(e Event) {
	if r, ok := e.(ResizeEvent); ok && len(q.evs) > 0 {
		if _, ok := q.evs[len(q.evs)-1].(ResizeEvent); ok {
			q.evs[len(q.evs)-1] = r
			return
		}
	}
	q.evs = append(q.evs, e)
}

// Len returns the number of queued events.
func (q *Queue) Len() int { return len(q.evs) }

// Drain returns the queued events and empties the queue.
// If nothing was queued, it returns a single RepaintEvent.
func (q *Queue) Drain() []Event {
	if len(q.evs) == 0 {
		return []Event{RepaintEvent{}}
	}
	evs := q.evs
	q.evs = nil
	return evs
}
