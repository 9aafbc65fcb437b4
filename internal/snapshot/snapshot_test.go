package snapshot

import (
	"bytes"
	"image/png"
	"testing"

	"chartengine/internal/render"
)

func testFrame() *render.Frame {
	price := &render.Pane{Name: "price", Width: 800, Height: 400}
	layer := render.Layer{Name: "primary"}
	layer.Primitives = []render.Primitive{
		{Kind: render.KindLine, X1: 0, Y1: 200, X2: 800, Y2: 200, Color: "#26a69a"},
		{Kind: render.KindRect, X1: 100, Y1: 150, W: 8, H: 60, Color: "#ef5350", Fill: true},
		{Kind: render.KindPolyline, Points: []render.Point{{X: 0, Y: 100}, {X: 400, Y: 140}, {X: 800, Y: 90}}, Color: "#2962ff", Width: 1.5},
		{Kind: render.KindLabel, X1: 10, Y1: 30, Text: "BTCUSD", Color: "#b2b5be"},
	}
	price.Layers = []render.Layer{layer}

	volume := &render.Pane{Name: "volume", Width: 800, Height: 80}

	return &render.Frame{
		Symbol:    "BTCUSD",
		Timeframe: "1m",
		BuiltAt:   1709284500000,
		Panes:     []*render.Pane{price, volume},
	}
}

func TestWritePNGProducesDecodableImage(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePNG(testFrame(), &buf); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 800 || bounds.Dy() != 480 {
		t.Fatalf("dimensions = %dx%d, want 800x480 (panes stacked)", bounds.Dx(), bounds.Dy())
	}
}

func TestWritePNGEmptyFrameErrors(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePNG(&render.Frame{}, &buf); err == nil {
		t.Fatal("expected error for empty frame")
	}
}

func TestParseColorAlpha(t *testing.T) {
	c := parseColor("#2962ff22")
	if c.A != 0x22 {
		t.Fatalf("alpha = %#x, want 0x22", c.A)
	}
	if parseColor("garbage") != watermark {
		t.Fatal("unknown color did not fall back")
	}
}
