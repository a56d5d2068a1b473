// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package drm

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
)

// EventType is the type of a DRM event.
type EventType uint32

// Event types.
const (
	EventVBlank       EventType = eventVBlank
	EventFlipComplete EventType = eventFlipComplete
)

// Event is a decoded vblank or page-flip event.
type Event struct {
	Type     EventType
	UserData uint64
	Time     time.Duration
	Sequence uint32
	CRTC     uint32
}

const (
	eventHeaderSize = 8
	vblankEventSize = 32
)

// ErrShortEvent means that an event read from the card
// was truncated.
var ErrShortEvent = errors.New("drm: truncated event")

// ParseEvents decodes the events contained in b, as read
// from a card's file descriptor.
// Events of unknown type are skipped.
func ParseEvents(b []byte) ([]Event, error) {
	var evs []Event
	for len(b) > 0 {
		if len(b) < eventHeaderSize {
			return evs, ErrShortEvent
		}
		typ := binary.NativeEndian.Uint32(b)
		n := int(binary.NativeEndian.Uint32(b[4:]))
		if n < eventHeaderSize || n > len(b) {
			return evs, ErrShortEvent
		}
		if (typ == eventVBlank || typ == eventFlipComplete) && n >= vblankEventSize {
			sec := binary.NativeEndian.Uint32(b[16:])
			usec := binary.NativeEndian.Uint32(b[20:])
			evs = append(evs, Event{
				Type:     EventType(typ),
				UserData: binary.NativeEndian.Uint64(b[8:]),
				Time:     time.Duration(sec)*time.Second + time.Duration(usec)*time.Microsecond,
				Sequence: binary.NativeEndian.Uint32(b[24:]),
				CRTC:     binary.NativeEndian.Uint32(b[28:]),
			})
		}
		b = b[n:]
	}
	return evs, nil
}
