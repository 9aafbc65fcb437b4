package render

import (
	"fmt"
	"time"

	"chartengine/internal/compare"
	"chartengine/internal/indicator"
	"chartengine/internal/interaction"
	"chartengine/internal/model"
	"chartengine/internal/viewport"
)

// Palette used across layers.
const (
	colorBG        = "#131722"
	colorGrid      = "#2a2e39"
	colorUp        = "#26a69a"
	colorDown      = "#ef5350"
	colorLine      = "#2962ff"
	colorLineFill  = "#2962ff22"
	colorSMA7      = "#f5c542"
	colorSMA25     = "#ff7043"
	colorEMA7      = "#ab47bc"
	colorEMA25     = "#26c6da"
	colorBollinger = "#787b86"
	colorBollFill  = "#787b8618"
	colorCompare   = "#ff9800"
	colorAlert     = "#ffb300" // amber, dashed
	colorAnnotate  = "#2962ff"
	colorCrosshair = "#9598a1"
	colorAxisText  = "#b2b5be"
	colorLive      = "#2962ff"
	colorBanner    = "#ffffff"
	colorRSI       = "#7e57c2"
	colorRSIBand   = "#7e57c218"
)

// Indicator toggle keys recognized by the pipeline.
const (
	ToggleSMA7      = "sma7"
	ToggleSMA25     = "sma25"
	ToggleEMA7      = "ema7"
	ToggleEMA25     = "ema25"
	ToggleBollinger = "bollinger"
	ToggleRSI       = "rsi"
)

// Inputs is everything a frame build reads. All slices are snapshots; the
// pipeline never mutates them.
type Inputs struct {
	Symbol    string
	Timeframe model.Timeframe

	// Candles is the full buffer; [WindowStart, WindowStart+WindowCount)
	// is the visible slice. Indicators are computed over the full buffer
	// so the window's leading values have their warm-up behind them.
	Candles     []model.Candle
	WindowStart int
	WindowCount int
	Synthetic   bool

	Width        float64
	Height       float64
	VolumeHeight float64
	OscHeight    float64

	Toggles   model.IndicatorToggleSet
	ChartType model.ChartType

	Annotations []model.DrawingAnnotation
	Alerts      []model.PriceAlert
	Markers     []model.TradeMarker
	// ActiveTrades are placed, not-yet-settled trades (dashed band + flag).
	ActiveTrades []model.TradeEvent
	// LastSettled, when set, surfaces the most recent settlement's
	// profit/loss as a banner label on the trades layer.
	LastSettled *model.TradeEvent

	Crosshair  interaction.Crosshair
	ToolActive bool // suppresses the crosshair layer

	ReplayActive   bool
	ReplayProgress float64 // [0,1]

	// Compare overlay (nil candles = off). Secondary candles are the
	// compare symbol's series aligned to the same window.
	CompareSymbol  string
	CompareCandles []model.Candle

	// Memo caches indicator series across frames; optional.
	Memo          *indicator.Memo
	SeriesVersion uint64
}

func (in *Inputs) window() []model.Candle {
	if in.WindowStart < 0 || in.WindowStart+in.WindowCount > len(in.Candles) {
		return nil
	}
	return in.Candles[in.WindowStart : in.WindowStart+in.WindowCount]
}

func (in *Inputs) enabled(key string) bool {
	return in.Toggles != nil && in.Toggles[key]
}

// Build assembles the full layered frame: price pane, volume pane and
// oscillator pane, drawn with shared horizontal geometry so candles stay
// vertically aligned across panes.
func Build(in Inputs) *Frame {
	f := &Frame{
		Symbol:    in.Symbol,
		Timeframe: in.Timeframe.String(),
		BuiltAt:   time.Now().UnixMilli(),
		Synthetic: in.Synthetic,
		Replay:    in.ReplayActive,
	}

	win := in.window()
	closes := model.Closes(in.Candles)

	var memo *indicator.Memo
	if in.Memo != nil {
		memo = in.Memo
		memo.Invalidate(in.SeriesVersion)
	} else {
		memo = indicator.NewMemo()
	}

	var bands indicator.Bands
	if in.enabled(ToggleBollinger) && len(closes) > 0 {
		bands = memo.BollingerBands(closes, 20, 2)
	}

	lo, hi := boundsWithBands(win, in.WindowStart, bands)
	g := viewport.ComputeGeometry(in.Width, in.Height, len(win), lo, hi)

	f.Panes = append(f.Panes, buildPricePane(in, win, g, memo, closes, bands))
	f.Panes = append(f.Panes, buildVolumePane(in, win, g))
	f.Panes = append(f.Panes, buildOscillatorPane(in, win, g, memo, closes))
	return f
}

func buildPricePane(in Inputs, win []model.Candle, g viewport.Geometry, memo *indicator.Memo, closes []float64, bands indicator.Bands) *Pane {
	p := &Pane{Name: "price", Width: in.Width, Height: in.Height}

	p.Layers = append(p.Layers,
		gridLayer(in, g),
		bollingerLayer(in, win, g, bands),
		compareLayer(in, win, g),
		primaryLayer(in, win, g),
		movingAverageLayer(in, win, g, memo, closes),
		tradeLayer(in, win, g),
		annotationLayer(in, win, g),
		axisLayer(in, win, g),
		livePriceLayer(in, win, g),
		crosshairLayer(in, g),
		replayBannerLayer(in),
	)
	return p
}

// 1. Background + uniform grid.
func gridLayer(in Inputs, g viewport.Geometry) Layer {
	l := Layer{Name: "grid"}
	l.rect(0, 0, in.Width, in.Height, colorBG, true)

	const gridLines = 5
	for i := 1; i < gridLines; i++ {
		y := in.Height * float64(i) / gridLines
		l.line(0, y, in.Width, y, colorGrid, false)
		x := in.Width * float64(i) / gridLines
		l.line(x, 0, x, in.Height, colorGrid, false)
	}
	return l
}

// 2. Bollinger fill + outline lines.
func bollingerLayer(in Inputs, win []model.Candle, g viewport.Geometry, bands indicator.Bands) Layer {
	l := Layer{Name: "bollinger"}
	if !in.enabled(ToggleBollinger) || len(win) == 0 {
		return l
	}

	upper := seriesPoints(bands.Upper, in.WindowStart, len(win), g)
	lower := seriesPoints(bands.Lower, in.WindowStart, len(win), g)
	middle := seriesPoints(bands.Middle, in.WindowStart, len(win), g)

	if len(upper) > 1 && len(lower) > 1 {
		// Band fill: upper path forward, lower path reversed.
		poly := make([]Point, 0, len(upper)+len(lower))
		poly = append(poly, upper...)
		for i := len(lower) - 1; i >= 0; i-- {
			poly = append(poly, lower[i])
		}
		l.polygon(poly, colorBollFill)
	}
	l.polyline(upper, colorBollinger, 1)
	l.polyline(middle, colorBollinger, 1)
	l.polyline(lower, colorBollinger, 1)
	return l
}

// 3. Compare-series overlay, renormalized into the primary price range.
func compareLayer(in Inputs, win []model.Candle, g viewport.Geometry) Layer {
	l := Layer{Name: "compare"}
	if len(in.CompareCandles) == 0 || len(win) == 0 {
		return l
	}

	lo, hi := priceBounds(win)
	ov := compare.Normalize(in.CompareCandles, in.CompareSymbol, lo, hi)

	pts := make([]Point, 0, len(ov.Prices))
	for i, price := range ov.Prices {
		if i >= len(win) {
			break
		}
		pts = append(pts, Point{X: g.CenterX(i), Y: g.Y(price)})
	}
	l.polyline(pts, colorCompare, 1.5)
	if len(pts) > 0 {
		// Normalized scale — label the overlay so it cannot be mistaken
		// for the secondary symbol's true axis.
		l.label(pts[len(pts)-1].X, pts[len(pts)-1].Y-12, ov.Symbol+" (normalized)", colorCompare)
	}
	return l
}

// 4. Primary series: candlesticks or line + gradient fill.
func primaryLayer(in Inputs, win []model.Candle, g viewport.Geometry) Layer {
	l := Layer{Name: "primary"}

	if in.ChartType == model.ChartLine {
		pts := make([]Point, len(win))
		for i, c := range win {
			pts[i] = Point{X: g.CenterX(i), Y: g.Y(c.Close)}
		}
		if len(pts) > 1 {
			fill := append([]Point(nil), pts...)
			fill = append(fill, Point{X: pts[len(pts)-1].X, Y: in.Height}, Point{X: pts[0].X, Y: in.Height})
			l.polygon(fill, colorLineFill)
		}
		l.polyline(pts, colorLine, 2)
		return l
	}

	for i, c := range win {
		color := colorUp
		if !c.Bullish() {
			color = colorDown
		}
		cx := g.CenterX(i)

		// Wick
		l.line(cx, g.Y(c.High), cx, g.Y(c.Low), color, false)

		// Body
		top := g.Y(maxf(c.Open, c.Close))
		bot := g.Y(minf(c.Open, c.Close))
		h := bot - top
		if h < 1 {
			h = 1 // doji: keep at least a hairline
		}
		l.rect(g.X(i), top, g.CandleWidth, h, color, true)
	}
	return l
}

// 5. Moving-average overlays.
func movingAverageLayer(in Inputs, win []model.Candle, g viewport.Geometry, memo *indicator.Memo, closes []float64) Layer {
	l := Layer{Name: "ma"}
	if len(closes) == 0 || len(win) == 0 {
		return l
	}

	type ma struct {
		key    string
		color  string
		series func() []float64
	}
	for _, m := range []ma{
		{ToggleSMA7, colorSMA7, func() []float64 { return memo.SMA(closes, 7) }},
		{ToggleSMA25, colorSMA25, func() []float64 { return memo.SMA(closes, 25) }},
		{ToggleEMA7, colorEMA7, func() []float64 { return memo.EMA(closes, 7) }},
		{ToggleEMA25, colorEMA25, func() []float64 { return memo.EMA(closes, 25) }},
	} {
		if !in.enabled(m.key) {
			continue
		}
		pts := seriesPoints(m.series(), in.WindowStart, len(win), g)
		l.polyline(pts, m.color, 1.5)
	}
	return l
}

// 6. Trade markers and active-trade bands.
func tradeLayer(in Inputs, win []model.Candle, g viewport.Geometry) Layer {
	l := Layer{Name: "trades"}
	if len(win) == 0 {
		return l
	}

	for _, m := range in.Markers {
		idx, ok := windowIndexFor(win, in.Timeframe, m.TS)
		if !ok {
			continue // scrolled out of the visible window
		}
		color := colorUp
		arrow := "▲"
		if m.Direction == model.TradeDown {
			color = colorDown
			arrow = "▼"
		}
		cx := g.CenterX(idx)
		y := g.Y(m.Price)
		l.label(cx, y, arrow, color)
		l.label(cx, y+14, fmt.Sprintf("%.2f", m.Amount), color)
	}

	for _, tr := range in.ActiveTrades {
		color := colorUp
		flag := "▲"
		if tr.Direction == model.TradeDown {
			color = colorDown
			flag = "▼"
		}
		y := g.Y(tr.Price)
		l.line(0, y, in.Width, y, color, true)
		l.label(in.Width-72, y-6, fmt.Sprintf("%s %.2f", flag, tr.Amount), color)
	}

	if tr := in.LastSettled; tr != nil {
		color := colorUp
		sign := "+"
		if tr.Profit < 0 {
			color = colorDown
			sign = ""
		}
		l.label(in.Width/2-40, 24, fmt.Sprintf("%s%.2f", sign, tr.Profit), color)
	}
	return l
}

// 7. Price-alert lines and drawn annotations.
func annotationLayer(in Inputs, win []model.Candle, g viewport.Geometry) Layer {
	l := Layer{Name: "annotations"}
	if len(win) == 0 {
		return l
	}

	for _, a := range in.Alerts {
		y := g.Y(a.Price)
		l.line(0, y, in.Width, y, colorAlert, true)
		tag := fmt.Sprintf("alert %.2f", a.Price)
		if a.Triggered {
			tag += " ✓"
		}
		l.label(8, y-6, tag, colorAlert)
	}

	for _, a := range in.Annotations {
		color := a.Color
		if color == "" {
			color = colorAnnotate
		}
		switch a.Kind {
		case model.AnnotationTrend:
			if a.Start == nil || a.End == nil {
				continue
			}
			x1 := g.CenterX(clampIndex(a.Start.CandleIndex, len(win)))
			x2 := g.CenterX(clampIndex(a.End.CandleIndex, len(win)))
			l.line(x1, g.Y(a.Start.Price), x2, g.Y(a.End.Price), color, false)
		default:
			y := g.Y(a.Price)
			l.line(0, y, in.Width, y, color, false)
			l.label(8, y-6, fmt.Sprintf("%.2f", a.Price), color)
		}
	}
	return l
}

// 8. Axis labels: price ticks on the right, time ticks on the bottom.
func axisLayer(in Inputs, win []model.Candle, g viewport.Geometry) Layer {
	l := Layer{Name: "axes"}
	if len(win) == 0 {
		return l
	}

	const priceTicks = 5
	for i := 0; i <= priceTicks; i++ {
		y := in.Height * float64(i) / priceTicks
		l.label(in.Width-64, y, fmt.Sprintf("%.2f", g.Price(y)), colorAxisText)
	}

	layout := in.Timeframe.AxisFormat()
	step := len(win) / 6
	if step < 1 {
		step = 1
	}
	for i := 0; i < len(win); i += step {
		l.label(g.CenterX(i), in.Height-4, win[i].TS.Format(layout), colorAxisText)
	}
	return l
}

// 9. Live current-price dashed line, suppressed during replay.
func livePriceLayer(in Inputs, win []model.Candle, g viewport.Geometry) Layer {
	l := Layer{Name: "live_price"}
	if in.ReplayActive || len(win) == 0 {
		return l
	}
	last := win[len(win)-1].Close
	y := g.Y(last)
	l.line(0, y, in.Width, y, colorLive, true)
	l.label(in.Width-64, y-6, fmt.Sprintf("%.2f", last), colorLive)
	return l
}

// 10. Crosshair, suppressed while an annotation tool is active.
func crosshairLayer(in Inputs, g viewport.Geometry) Layer {
	l := Layer{Name: "crosshair"}
	if in.ToolActive || !in.Crosshair.Visible {
		return l
	}
	l.line(in.Crosshair.X, 0, in.Crosshair.X, in.Height, colorCrosshair, true)
	l.line(0, in.Crosshair.Y, in.Width, in.Crosshair.Y, colorCrosshair, true)
	l.label(in.Width-64, in.Crosshair.Y-6, fmt.Sprintf("%.2f", in.Crosshair.Price), colorCrosshair)
	return l
}

// 11. Replay-mode banner with percentage progress.
func replayBannerLayer(in Inputs) Layer {
	l := Layer{Name: "replay_banner"}
	if !in.ReplayActive {
		return l
	}
	l.rect(0, 0, in.Width, 22, "#00000088", true)
	l.label(8, 16, fmt.Sprintf("REPLAY %.0f%%", in.ReplayProgress*100), colorBanner)
	return l
}

// Volume histogram pane: bars share the price pane's horizontal geometry.
func buildVolumePane(in Inputs, win []model.Candle, g viewport.Geometry) *Pane {
	p := &Pane{Name: "volume", Width: in.Width, Height: in.VolumeHeight}
	l := Layer{Name: "volume"}
	l.rect(0, 0, in.Width, in.VolumeHeight, colorBG, true)

	maxVol := 0.0
	for _, c := range win {
		if c.Volume > maxVol {
			maxVol = c.Volume
		}
	}
	if maxVol > 0 {
		for i, c := range win {
			color := colorUp
			if !c.Bullish() {
				color = colorDown
			}
			h := c.Volume / maxVol * in.VolumeHeight
			l.rect(g.X(i), in.VolumeHeight-h, g.CandleWidth, h, color, true)
		}
	}
	p.Layers = append(p.Layers, l)
	return p
}

// RSI oscillator pane with 30/70 shaded band.
func buildOscillatorPane(in Inputs, win []model.Candle, g viewport.Geometry, memo *indicator.Memo, closes []float64) *Pane {
	p := &Pane{Name: "oscillator", Width: in.Width, Height: in.OscHeight}
	l := Layer{Name: "rsi"}
	l.rect(0, 0, in.Width, in.OscHeight, colorBG, true)

	if !in.enabled(ToggleRSI) || len(closes) == 0 || len(win) == 0 {
		p.Layers = append(p.Layers, l)
		return p
	}

	yFor := func(v float64) float64 { return (100 - v) / 100 * in.OscHeight }

	// 30/70 overbought/oversold band.
	l.rect(0, yFor(70), in.Width, yFor(30)-yFor(70), colorRSIBand, true)
	l.line(0, yFor(70), in.Width, yFor(70), colorGrid, true)
	l.line(0, yFor(30), in.Width, yFor(30), colorGrid, true)

	rsi := memo.RSI(closes, 14)
	pts := make([]Point, 0, len(win))
	for i := 0; i < len(win); i++ {
		v := rsi[in.WindowStart+i]
		if !indicator.Valid(v) {
			continue
		}
		pts = append(pts, Point{X: g.CenterX(i), Y: yFor(v)})
	}
	l.polyline(pts, colorRSI, 1.5)
	p.Layers = append(p.Layers, l)
	return p
}

// seriesPoints converts an indicator series slice into window polyline
// points, skipping warm-up NaNs.
func seriesPoints(series []float64, windowStart, windowLen int, g viewport.Geometry) []Point {
	pts := make([]Point, 0, windowLen)
	for i := 0; i < windowLen; i++ {
		idx := windowStart + i
		if idx >= len(series) || !indicator.Valid(series[idx]) {
			continue
		}
		pts = append(pts, Point{X: g.CenterX(i), Y: g.Y(series[idx])})
	}
	return pts
}

// windowIndexFor locates the window index whose bucket contains ts.
func windowIndexFor(win []model.Candle, tf model.Timeframe, ts time.Time) (int, bool) {
	bucket := tf.Bucket(ts)
	for i := range win {
		if win[i].TS.Equal(bucket) {
			return i, true
		}
	}
	return 0, false
}

func priceBounds(win []model.Candle) (lo, hi float64) {
	if len(win) == 0 {
		return 0, 0
	}
	lo, hi = win[0].Low, win[0].High
	for _, c := range win[1:] {
		if c.Low < lo {
			lo = c.Low
		}
		if c.High > hi {
			hi = c.High
		}
	}
	return lo, hi
}

// boundsWithBands is the candle extrema extended to the Bollinger band
// extrema over the window, so the bands never clip.
func boundsWithBands(win []model.Candle, windowStart int, bands indicator.Bands) (lo, hi float64) {
	lo, hi = priceBounds(win)
	for i := windowStart; i < windowStart+len(win) && i < len(bands.Upper); i++ {
		if indicator.Valid(bands.Upper[i]) && bands.Upper[i] > hi {
			hi = bands.Upper[i]
		}
		if indicator.Valid(bands.Lower[i]) && bands.Lower[i] < lo {
			lo = bands.Lower[i]
		}
	}
	return lo, hi
}

// PriceBounds returns the vertical price range a frame built from in
// would use. Pointer-event geometry must derive from the same bounds,
// or crosshair and annotation prices drift from the drawn axis whenever
// the Bollinger overlay widens the range.
func PriceBounds(in Inputs) (lo, hi float64) {
	win := in.window()
	if !in.enabled(ToggleBollinger) || len(in.Candles) == 0 {
		return priceBounds(win)
	}
	memo := in.Memo
	if memo != nil {
		memo.Invalidate(in.SeriesVersion)
	} else {
		memo = indicator.NewMemo()
	}
	bands := memo.BollingerBands(model.Closes(in.Candles), 20, 2)
	return boundsWithBands(win, in.WindowStart, bands)
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
