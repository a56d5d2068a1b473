// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package glyph turns text into rectangles that can be
// drawn with attachment clears.
package glyph

import (
	"image"
	"slices"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Face is a fixed-cell bitmap face scaled by an integer
// factor.
type Face struct {
	face  *basicfont.Face
	scale int
}

// New creates a new Face.
// scale values less than 1 are treated as 1.
func New(scale int) *Face {
	if scale < 1 {
		scale = 1
	}
	return &Face{face: basicfont.Face7x13, scale: scale}
}

// LineHeight returns the distance between baselines.
func (f *Face) LineHeight() int {
	return f.face.Metrics().Height.Ceil() * f.scale
}

// Measure returns the width of s.
func (f *Face) Measure(s string) int {
	return font.MeasureString(f.face, s).Ceil() * f.scale
}

// Bounds returns the size of the block of text formed by
// lines.
func (f *Face) Bounds(lines []string) image.Rectangle {
	w := 0
	for _, s := range lines {
		if n := f.Measure(s); n > w {
			w = n
		}
	}
	return image.Rect(0, 0, w, f.LineHeight()*len(lines))
}

// Rects rasterizes lines with their top-left corner at at
// and returns the covered pixels as rectangles.
// Horizontal runs of covered pixels are merged with the
// identical runs of the rows below them, so that a glyph
// stem becomes a single rectangle.
func (f *Face) Rects(lines []string, at image.Point) []image.Rectangle {
	unit := f.Bounds(lines)
	unit.Max.X /= f.scale
	unit.Max.Y /= f.scale
	if unit.Empty() {
		return nil
	}
	mask := image.NewAlpha(unit)
	lh := f.face.Metrics().Height.Ceil()
	d := font.Drawer{Dst: mask, Src: image.Opaque, Face: f.face}
	for i, s := range lines {
		d.Dot = fixed.P(0, i*lh+f.face.Ascent)
		d.DrawString(s)
	}
	rects := spans(mask)
	for i := range rects {
		r := rects[i]
		rects[i] = image.Rect(
			r.Min.X*f.scale, r.Min.Y*f.scale,
			r.Max.X*f.scale, r.Max.Y*f.scale,
		).Add(at)
	}
	return rects
}

// spans converts the opaque pixels of mask into
// rectangles, merging vertically adjacent runs that have
// the same horizontal extent.
func spans(mask *image.Alpha) []image.Rectangle {
	b := mask.Bounds()
	var done []image.Rectangle
	open := make(map[[2]int]image.Rectangle)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		next := make(map[[2]int]image.Rectangle)
		for x := b.Min.X; x < b.Max.X; {
			if mask.AlphaAt(x, y).A < 0x80 {
				x++
				continue
			}
			x0 := x
			for x < b.Max.X && mask.AlphaAt(x, y).A >= 0x80 {
				x++
			}
			key := [2]int{x0, x}
			if r, ok := open[key]; ok {
				r.Max.Y = y + 1
				next[key] = r
				delete(open, key)
			} else {
				next[key] = image.Rect(x0, y, x, y+1)
			}
		}
		for _, r := range open {
			done = append(done, r)
		}
		open = next
	}
	for _, r := range open {
		done = append(done, r)
	}
	slices.SortFunc(done, func(a, b image.Rectangle) int {
		if a.Min.Y != b.Min.Y {
			return a.Min.Y - b.Min.Y
		}
		return a.Min.X - b.Min.X
	})
	return done
}
