// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package main

import (
	"image"
	"math"
	"time"

	"github.com/gviegas/vkdemo/engine"
	"github.com/gviegas/vkdemo/internal/logging"
	"github.com/gviegas/vkdemo/wsi"
)

// Block side, in pixels, and speed, in pixels per second.
const (
	blockSize  = 96
	blockSpeed = 240
)

// demo is the scene that vkdemo renders: a slowly
// shifting background and a block that bounces off the
// edges of the target.
type demo struct {
	overlay *engine.Overlay
	help    engine.Label

	width, height int
	x, y          float64
	vx, vy        float64
	last          time.Duration
}

func newDemo() *demo {
	return &demo{vx: blockSpeed, vy: blockSpeed * 0.75}
}

// attach adds the key help to ov.
func (d *demo) attach(ov *engine.Overlay) {
	d.overlay = ov
	d.help = ov.Add(image.Pt(8, 64), [4]float32{0.9, 0.9, 0.5, 1}, [4]float32{0, 0, 0, 0.6},
		"esc/q: quit", "f1/o: toggle overlay", "click: move block")
}

func (d *demo) Resize(width, height int) {
	d.width, d.height = width, height
	d.x = clampf(d.x, 0, float64(max(width-blockSize, 0)))
	d.y = clampf(d.y, 0, float64(max(height-blockSize, 0)))
}

func (d *demo) Handle(ev wsi.Event) error {
	switch ev := ev.(type) {
	case wsi.KeyEvent:
		if !ev.Pressed {
			break
		}
		switch ev.Key {
		case wsi.KeyEsc, wsi.KeyQ:
			return engine.ErrQuit
		case wsi.KeyF1, wsi.KeyO:
			if d.overlay != nil {
				d.overlay.Toggle()
			}
		case wsi.KeyF11:
			logging.Logger().Debug("fullscreen toggle not supported at run time")
		}
	case wsi.PointerButton:
		if ev.Pressed {
			d.x = clampf(float64(ev.X-blockSize/2), 0, float64(max(d.width-blockSize, 0)))
			d.y = clampf(float64(ev.Y-blockSize/2), 0, float64(max(d.height-blockSize, 0)))
		}
	}
	return nil
}

func (d *demo) Render(f *engine.Frame) error {
	dt := (f.Time - d.last).Seconds()
	d.last = f.Time
	d.step(dt)

	t := f.Time.Seconds()
	bg := [4]float32{
		float32(0.15 + 0.1*math.Sin(t*0.5)),
		float32(0.15 + 0.1*math.Sin(t*0.7+2)),
		float32(0.25 + 0.1*math.Sin(t*0.3+4)),
		1,
	}
	f.Fill(bg, f.Bounds())
	block := image.Rect(0, 0, blockSize, blockSize).Add(image.Pt(int(d.x), int(d.y)))
	f.Fill([4]float32{0.95, 0.45, 0.1, 1}, block.Intersect(f.Bounds()))
	return nil
}

// step advances the block by dt seconds.
func (d *demo) step(dt float64) {
	maxX := float64(max(d.width-blockSize, 0))
	maxY := float64(max(d.height-blockSize, 0))
	d.x += d.vx * dt
	d.y += d.vy * dt
	if d.x < 0 || d.x > maxX {
		d.vx = -d.vx
		d.x = clampf(d.x, 0, maxX)
	}
	if d.y < 0 || d.y > maxY {
		d.vy = -d.vy
		d.y = clampf(d.y, 0, maxY)
	}
}

func clampf(x, lo, hi float64) float64 { return math.Max(lo, math.Min(x, hi)) }
