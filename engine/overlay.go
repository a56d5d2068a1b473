// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"image"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/internal/glyph"
)

// Label identifies a block of text in an Overlay.
type Label int

// label is what an Overlay stores per Label.
type label struct {
	lines []string
	at    image.Point
	fg    [4]float32
	bg    [4]float32
	rects []image.Rectangle
	box   image.Rectangle
}

// Overlay draws text on top of the main pass.
// It records a second render pass that loads the color
// contents of the same framebuffers, in its own command
// buffers. Its submission waits for the image's Rendered
// semaphore and signals its Overlaid semaphore.
type Overlay struct {
	dev     *Device
	pass    driver.RenderPass
	cbs     []driver.CmdBuffer
	face    *glyph.Face
	labels  dataMap[Label, label]
	visible bool
}

// Overlay margin around each label, in pixels.
const overlayPad = 4

func newOverlay(dev *Device, main driver.PassDesc, scale int, visible bool) (*Overlay, error) {
	pass, err := dev.Device().NewRenderPass(driver.PassDesc{
		Color:   main.Color,
		Depth:   main.Depth,
		Load:    driver.LLoad,
		Initial: main.Final,
		Final:   main.Final,
	})
	if err != nil {
		return nil, err
	}
	return &Overlay{dev: dev, pass: pass, face: glyph.New(scale), visible: visible}, nil
}

// Add adds a block of text with its top-left corner at
// at. fg is the text color and bg fills the block's
// bounds; a zero alpha in bg disables the fill.
func (o *Overlay) Add(at image.Point, fg, bg [4]float32, lines ...string) Label {
	l := o.labels.insert(label{at: at, fg: fg, bg: bg})
	o.SetText(l, lines...)
	return l
}

// SetText replaces the text of l.
func (o *Overlay) SetText(l Label, lines ...string) {
	lb := o.labels.get(l)
	if lb == nil {
		return
	}
	lb.lines = append(lb.lines[:0], lines...)
	lb.rects = o.face.Rects(lb.lines, lb.at)
	box := o.face.Bounds(lb.lines)
	if box.Empty() {
		lb.box = image.Rectangle{}
	} else {
		lb.box = box.Add(lb.at).Inset(-overlayPad)
	}
}

// Text returns the text of l.
func (o *Overlay) Text(l Label) []string {
	if lb := o.labels.get(l); lb != nil {
		return append([]string(nil), lb.lines...)
	}
	return nil
}

// Remove removes l.
func (o *Overlay) Remove(l Label) { o.labels.remove(l) }

// Labels returns the number of labels.
func (o *Overlay) Labels() int { return o.labels.len() }

// Visible returns whether the overlay is drawn.
func (o *Overlay) Visible() bool { return o.visible }

// SetVisible shows or hides the overlay.
func (o *Overlay) SetVisible(visible bool) { o.visible = visible }

// Toggle flips the visibility.
func (o *Overlay) Toggle() { o.visible = !o.visible }

// alloc allocates one command buffer per image.
func (o *Overlay) alloc(n int) error {
	if len(o.cbs) != 0 {
		return errors.New("engine: overlay command buffers already allocated")
	}
	cbs, err := o.dev.CmdPool().Alloc(n)
	if err != nil {
		return err
	}
	o.cbs = cbs
	return nil
}

// free frees the command buffers. They must not be
// pending execution.
func (o *Overlay) free() {
	if len(o.cbs) > 0 {
		o.dev.CmdPool().Free(o.cbs)
		o.cbs = nil
	}
}

// record records the overlay pass of image i into fb.
func (o *Overlay) record(i int, fb driver.Framebuf) (driver.CmdBuffer, error) {
	cb := o.cbs[i]
	if err := cb.Begin(); err != nil {
		return nil, err
	}
	cb.BeginPass(o.pass, fb, nil)
	w, h := fb.Size()
	bounds := image.Rect(0, 0, w, h)
	for _, e := range o.labels.entries() {
		lb := &e.data
		if lb.bg[3] > 0 && lb.box.Overlaps(bounds) {
			cb.ClearRects(lb.bg, []image.Rectangle{lb.box.Intersect(bounds)})
		}
		if len(lb.rects) > 0 {
			cb.ClearRects(lb.fg, lb.rects)
		}
	}
	cb.EndPass()
	return cb, cb.End()
}

func (o *Overlay) destroy() {
	o.free()
	if o.pass != nil {
		o.pass.Destroy()
		o.pass = nil
	}
}
