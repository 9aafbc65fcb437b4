package render

import (
	"testing"
	"time"

	"chartengine/internal/interaction"
	"chartengine/internal/model"
)

func testCandles(n int) []model.Candle {
	out := make([]model.Candle, n)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		p := 67000 + float64(i%7)*50
		out[i] = model.Candle{
			Symbol: "BTCUSD",
			TS:     base.Add(time.Duration(i) * time.Minute),
			Open:   p, High: p + 80, Low: p - 80, Close: p + float64(i%3)*20 - 20,
			Volume: 5 + float64(i%11),
		}
	}
	return out
}

func baseInputs(n int) Inputs {
	candles := testCandles(n)
	return Inputs{
		Symbol:       "BTCUSD",
		Timeframe:    model.TF1m,
		Candles:      candles,
		WindowStart:  n - 50,
		WindowCount:  50,
		Width:        800,
		Height:       400,
		VolumeHeight: 80,
		OscHeight:    120,
		ChartType:    model.ChartCandles,
		Toggles:      model.IndicatorToggleSet{},
	}
}

func layerNames(p *Pane) []string {
	names := make([]string, len(p.Layers))
	for i, l := range p.Layers {
		names[i] = l.Name
	}
	return names
}

func TestBuild_LayerOrderIsStable(t *testing.T) {
	f := Build(baseInputs(100))

	price := f.Pane("price")
	if price == nil {
		t.Fatal("missing price pane")
	}
	want := []string{"grid", "bollinger", "compare", "primary", "ma", "trades", "annotations", "axes", "live_price", "crosshair", "replay_banner"}
	got := layerNames(price)
	if len(got) != len(want) {
		t.Fatalf("layers = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("layer %d = %q, want %q (order is part of the contract)", i, got[i], want[i])
		}
	}

	if f.Pane("volume") == nil || f.Pane("oscillator") == nil {
		t.Fatal("missing auxiliary panes")
	}
}

func TestBuild_PrimaryCandlesColoredByDirection(t *testing.T) {
	in := baseInputs(100)
	f := Build(in)

	primary := f.Pane("price").Layer("primary")
	var rects int
	for _, pr := range primary.Primitives {
		if pr.Kind == KindRect {
			rects++
			if pr.Color != colorUp && pr.Color != colorDown {
				t.Errorf("body color = %q", pr.Color)
			}
		}
	}
	if rects != 50 {
		t.Errorf("candle bodies = %d, want 50", rects)
	}
}

func TestBuild_LineChartUsesGradientFill(t *testing.T) {
	in := baseInputs(100)
	in.ChartType = model.ChartLine
	f := Build(in)

	primary := f.Pane("price").Layer("primary")
	var havePolygon, havePolyline bool
	for _, pr := range primary.Primitives {
		switch pr.Kind {
		case KindPolygon:
			havePolygon = true
		case KindPolyline:
			havePolyline = true
		}
	}
	if !havePolygon || !havePolyline {
		t.Errorf("line chart needs fill polygon + polyline, got polygon=%v polyline=%v", havePolygon, havePolyline)
	}
}

func TestBuild_BollingerOnlyWhenToggled(t *testing.T) {
	in := baseInputs(100)
	f := Build(in)
	if n := len(f.Pane("price").Layer("bollinger").Primitives); n != 0 {
		t.Errorf("bollinger drew %d primitives while disabled", n)
	}

	in.Toggles[ToggleBollinger] = true
	f = Build(in)
	if n := len(f.Pane("price").Layer("bollinger").Primitives); n == 0 {
		t.Error("bollinger enabled but drew nothing")
	}
}

func TestBuild_LivePriceSuppressedInReplay(t *testing.T) {
	in := baseInputs(100)
	in.ReplayActive = true
	in.ReplayProgress = 0.4
	f := Build(in)

	if n := len(f.Pane("price").Layer("live_price").Primitives); n != 0 {
		t.Errorf("live price line drawn during replay (%d primitives)", n)
	}
	banner := f.Pane("price").Layer("replay_banner")
	found := false
	for _, pr := range banner.Primitives {
		if pr.Kind == KindLabel && pr.Text == "REPLAY 40%" {
			found = true
		}
	}
	if !found {
		t.Errorf("banner = %+v, want REPLAY 40%% label", banner.Primitives)
	}
}

func TestBuild_CrosshairSuppressedWhileToolActive(t *testing.T) {
	in := baseInputs(100)
	in.Crosshair = interaction.Crosshair{Visible: true, X: 100, Y: 100, Price: 67500}

	f := Build(in)
	if len(f.Pane("price").Layer("crosshair").Primitives) == 0 {
		t.Error("crosshair should draw when visible and no tool active")
	}

	in.ToolActive = true
	f = Build(in)
	if n := len(f.Pane("price").Layer("crosshair").Primitives); n != 0 {
		t.Errorf("crosshair drew %d primitives while a tool is active", n)
	}
}

func TestBuild_CompareOverlayIsLabeled(t *testing.T) {
	in := baseInputs(100)
	in.CompareSymbol = "ETHUSD"
	in.CompareCandles = testCandles(50)
	f := Build(in)

	cmp := f.Pane("price").Layer("compare")
	var labeled bool
	for _, pr := range cmp.Primitives {
		if pr.Kind == KindLabel && pr.Text == "ETHUSD (normalized)" {
			labeled = true
		}
	}
	if !labeled {
		t.Error("compare overlay must carry a normalized-scale label")
	}
}

func TestBuild_AlertsDashedAmber(t *testing.T) {
	in := baseInputs(100)
	in.Alerts = []model.PriceAlert{{ID: "a1", Symbol: "BTCUSD", Price: 67100, Direction: model.AlertAbove}}
	f := Build(in)

	ann := f.Pane("price").Layer("annotations")
	var ok bool
	for _, pr := range ann.Primitives {
		if pr.Kind == KindLine && pr.Dashed && pr.Color == colorAlert {
			ok = true
		}
	}
	if !ok {
		t.Error("alert line should be dashed amber")
	}
}

func TestBuild_MarkerOutsideWindowSkipped(t *testing.T) {
	in := baseInputs(100)
	inWindow := in.Candles[in.WindowStart+10].TS
	outOfWindow := in.Candles[0].TS // before the visible slice
	in.Markers = []model.TradeMarker{
		{ID: "m1", TS: inWindow, Price: 67200, Direction: model.TradeUp, Amount: 25},
		{ID: "m2", TS: outOfWindow, Price: 67200, Direction: model.TradeDown, Amount: 10},
	}
	f := Build(in)

	trades := f.Pane("price").Layer("trades")
	var labels int
	for _, pr := range trades.Primitives {
		if pr.Kind == KindLabel {
			labels++
		}
	}
	// Arrow + amount for the visible marker only.
	if labels != 2 {
		t.Errorf("labels = %d, want 2 (scrolled-out marker must be skipped)", labels)
	}
}

func TestBuild_EmptyBufferProducesFrame(t *testing.T) {
	in := baseInputs(100)
	in.Candles = nil
	in.WindowStart = 0
	in.WindowCount = 0

	f := Build(in)
	if f.Pane("price") == nil {
		t.Fatal("empty buffer must still produce a frame, never a blank pane")
	}
}

func TestBuild_RSIPaneRespectsToggle(t *testing.T) {
	in := baseInputs(100)
	f := Build(in)
	osc := f.Pane("oscillator").Layers[0]
	baseline := len(osc.Primitives)

	in.Toggles[ToggleRSI] = true
	f = Build(in)
	if got := len(f.Pane("oscillator").Layers[0].Primitives); got <= baseline {
		t.Errorf("rsi toggle on: %d primitives, want more than %d", got, baseline)
	}
}
