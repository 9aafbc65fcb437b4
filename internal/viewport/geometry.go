package viewport

// Geometry is the pixel-space layout for one rendered window. Every
// drawing routine shares the same affine price-to-pixel mapping so
// candles stay vertically aligned across panes.
type Geometry struct {
	Width       float64 // pane width in pixels
	ChartHeight float64 // pane height in pixels

	CandleWidth float64 // body width per candle
	CandleGap   float64 // horizontal gap between candles

	AdjustedMax float64 // top of the price scale (padded)
	AdjustedMin float64 // bottom of the price scale (padded)
	PriceRange  float64 // AdjustedMax - AdjustedMin
}

// pricePadding expands the raw min/max so extremes don't touch the pane edge.
const pricePadding = 0.05

// ComputeGeometry lays out visibleCount candles across a width x height
// pane, scaling prices over [low, high]. Extending [low, high] to include
// indicator extrema (e.g. Bollinger bands) is the caller's job.
func ComputeGeometry(width, height float64, visibleCount int, low, high float64) Geometry {
	if visibleCount < 1 {
		visibleCount = 1
	}
	span := high - low
	if span <= 0 {
		// Flat or empty window: synthesize a small range so division by
		// PriceRange stays defined.
		span = 1
	}
	pad := span * pricePadding

	slot := width / float64(visibleCount)
	gap := slot * 0.2
	return Geometry{
		Width:       width,
		ChartHeight: height,
		CandleWidth: slot - gap,
		CandleGap:   gap,
		AdjustedMax: high + pad,
		AdjustedMin: low - pad,
		PriceRange:  span + 2*pad,
	}
}

// X returns the left edge x-coordinate for the candle at window index i.
func (g Geometry) X(i int) float64 {
	return float64(i)*(g.CandleWidth+g.CandleGap) + g.CandleGap/2
}

// CenterX returns the horizontal center of the candle at window index i.
func (g Geometry) CenterX(i int) float64 {
	return g.X(i) + g.CandleWidth/2
}

// Y maps a price onto the vertical pixel axis (0 = top of pane).
func (g Geometry) Y(price float64) float64 {
	return (g.AdjustedMax - price) / g.PriceRange * g.ChartHeight
}

// Price inverts Y, mapping a pixel y-coordinate back to a price.
func (g Geometry) Price(y float64) float64 {
	return g.AdjustedMax - y/g.ChartHeight*g.PriceRange
}

// Index maps a pixel x-coordinate to the nearest window index, clamped to
// [0, visibleCount-1].
func (g Geometry) Index(x float64, visibleCount int) int {
	if visibleCount < 1 {
		return 0
	}
	slot := g.CandleWidth + g.CandleGap
	i := int(x / slot)
	if i < 0 {
		i = 0
	}
	if i >= visibleCount {
		i = visibleCount - 1
	}
	return i
}
