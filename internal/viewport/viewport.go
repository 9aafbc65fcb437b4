// Package viewport derives the visible candle window and per-candle pixel
// geometry from zoom, pan and the pixel budget. All derivation is pure;
// SetZoom and Pan are the only mutators and both clamp rather than error.
package viewport

import "math"

const (
	// BaseWindow is the visible candle count at zoom 1.0.
	BaseWindow = 50

	// MinVisible is the smallest window the viewport will ever span.
	MinVisible = 5

	MinZoom = 0.5
	MaxZoom = 3.0
)

// Viewport holds the zoom/pan state for one chart pane.
type Viewport struct {
	zoom      float64
	panOffset float64 // candles panned back from the latest candle, >= 0
}

// New creates a viewport at zoom 1.0 anchored to the latest candle.
func New() *Viewport {
	return &Viewport{zoom: 1.0}
}

// Zoom returns the current zoom factor.
func (v *Viewport) Zoom() float64 { return v.zoom }

// PanOffset returns the current pan offset in candles.
func (v *Viewport) PanOffset() float64 { return v.panOffset }

// SetZoom sets the zoom factor, clamped to [MinZoom, MaxZoom].
func (v *Viewport) SetZoom(zoom float64) {
	v.zoom = clamp(zoom, MinZoom, MaxZoom)
}

// AdjustZoom applies a multiplicative zoom step (wheel input).
func (v *Viewport) AdjustZoom(factor float64) {
	v.SetZoom(v.zoom * factor)
}

// Pan shifts the window by delta candles (positive = back in time).
// The offset is clamped so the window never runs past either end of a
// buffer of the given total length.
func (v *Viewport) Pan(delta float64, total int) {
	v.panOffset = clamp(v.panOffset+delta, 0, maxOffset(total, v.VisibleCount()))
}

// ResetPan snaps the window back to the latest candle.
func (v *Viewport) ResetPan() { v.panOffset = 0 }

// VisibleCount returns floor(BaseWindow / zoom), never below MinVisible.
func (v *Viewport) VisibleCount() int {
	n := int(math.Floor(BaseWindow / v.zoom))
	if n < MinVisible {
		n = MinVisible
	}
	return n
}

// Window computes the clamped [start, start+count) slice bounds for a
// buffer of the given total length. Holds start >= 0 and
// start+count <= total for any zoom and any total, including empty buffers.
func (v *Viewport) Window(total int) (start, count int) {
	count = v.VisibleCount()
	if count > total {
		count = total
	}
	start = total - count - int(math.Round(clamp(v.panOffset, 0, maxOffset(total, count))))
	if start < 0 {
		start = 0
	}
	if start+count > total {
		start = total - count
	}
	return start, count
}

func maxOffset(total, visible int) float64 {
	m := float64(total - visible)
	if m < 0 {
		return 0
	}
	return m
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
