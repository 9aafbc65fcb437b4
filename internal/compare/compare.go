// Package compare normalizes a second symbol's series onto the primary
// price scale for overlay rendering, or exposes it untouched for split
// mode.
package compare

import (
	"math"

	"chartengine/internal/model"
)

// Mode selects how the secondary symbol is shown.
type Mode string

const (
	ModeOff     Mode = "off"
	ModeOverlay Mode = "overlay" // rescaled into the primary pane
	ModeSplit   Mode = "split"   // independent sibling pane
)

// Overlay is the secondary series prepared for the primary pane.
type Overlay struct {
	Symbol string
	// Prices are the secondary closes rescaled into [primaryMin, primaryMax].
	// This is a visual normalization only: the values do not lie on the
	// secondary symbol's own axis, which is why the renderer labels the
	// overlay with the symbol name.
	Prices []float64
}

// Normalize linearly maps the visible window of the secondary closes onto
// the primary price range using the window's own min/max. The mapping
// re-derives per window, so it shifts as the window scrolls.
func Normalize(secondary []model.Candle, symbol string, primaryMin, primaryMax float64) Overlay {
	out := Overlay{Symbol: symbol}
	if len(secondary) == 0 || primaryMax < primaryMin {
		return out
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range secondary {
		if c.Close < lo {
			lo = c.Close
		}
		if c.Close > hi {
			hi = c.Close
		}
	}

	out.Prices = make([]float64, len(secondary))
	span := hi - lo
	if span == 0 {
		// Flat secondary window: pin to the middle of the primary range.
		mid := (primaryMin + primaryMax) / 2
		for i := range out.Prices {
			out.Prices[i] = mid
		}
		return out
	}

	scale := (primaryMax - primaryMin) / span
	for i, c := range secondary {
		out.Prices[i] = primaryMin + (c.Close-lo)*scale
	}
	return out
}
