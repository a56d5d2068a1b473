// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"image"
	"time"

	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/wsi"
)

// Scene is the interface that application code implements
// to draw frames and react to events.
type Scene interface {
	// Render records the frame's draw commands.
	// f.Cmd is inside the main render pass, which was
	// cleared to Config.Clear.
	Render(f *Frame) error

	// Resize is called after the size-dependent resources
	// were rebuilt.
	Resize(width, height int)

	// Handle is called with every event that the backend
	// delivers, before the frame is rendered.
	// Returning ErrQuit ends the render loop.
	Handle(ev wsi.Event) error
}

// Frame describes the frame being recorded.
type Frame struct {
	Cmd    driver.CmdBuffer
	Index  int
	Width  int
	Height int
	// Number counts the frames presented so far.
	Number int
	// Time is the time elapsed since the first frame.
	Time time.Duration
}

// Bounds returns the rectangle covered by the frame.
func (f *Frame) Bounds() image.Rectangle { return image.Rect(0, 0, f.Width, f.Height) }

// Fill clears rects to color.
func (f *Frame) Fill(color [4]float32, rects ...image.Rectangle) {
	if len(rects) > 0 {
		f.Cmd.ClearRects(color, rects)
	}
}
