// Package snapshot rasterizes a rendered frame to PNG for chart export.
// Panes stack vertically in frame order; a symbol-and-timestamp
// watermark goes in the top-left corner.
package snapshot

import (
	"fmt"
	"io"
	"time"

	"chartengine/internal/render"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var (
	background = drawing.ColorFromHex("131722")
	watermark  = drawing.ColorFromHex("9598a1")
)

// WritePNG rasterizes the frame and writes the encoded PNG to w.
func WritePNG(f *render.Frame, w io.Writer) error {
	width, height := dimensions(f)
	if width == 0 || height == 0 {
		return fmt.Errorf("snapshot: empty frame")
	}

	r, err := chart.PNG(width, height)
	if err != nil {
		return fmt.Errorf("snapshot: renderer: %w", err)
	}
	font, err := chart.GetDefaultFont()
	if err != nil {
		return fmt.Errorf("snapshot: font: %w", err)
	}
	r.SetFont(font)

	// Background.
	r.SetFillColor(background)
	r.MoveTo(0, 0)
	r.LineTo(width, 0)
	r.LineTo(width, height)
	r.LineTo(0, height)
	r.Close()
	r.Fill()

	offsetY := 0
	for _, pane := range f.Panes {
		for _, layer := range pane.Layers {
			for _, p := range layer.Primitives {
				drawPrimitive(r, p, offsetY)
			}
		}
		offsetY += int(pane.Height)
	}

	stamp := fmt.Sprintf("%s %s  %s", f.Symbol, f.Timeframe,
		time.UnixMilli(f.BuiltAt).UTC().Format("2006-01-02 15:04:05 MST"))
	r.SetFontColor(watermark)
	r.SetFontSize(11)
	r.Text(stamp, 8, 16)

	return r.Save(w)
}

func dimensions(f *render.Frame) (width, height int) {
	for _, p := range f.Panes {
		if int(p.Width) > width {
			width = int(p.Width)
		}
		height += int(p.Height)
	}
	return width, height
}

func drawPrimitive(r chart.Renderer, p render.Primitive, offsetY int) {
	color := parseColor(p.Color)
	oy := float64(offsetY)

	switch p.Kind {
	case render.KindLine:
		r.SetStrokeColor(color)
		r.SetStrokeWidth(strokeWidth(p))
		if p.Dashed {
			r.SetStrokeDashArray([]float64{4, 4})
		} else {
			r.SetStrokeDashArray(nil)
		}
		r.MoveTo(int(p.X1), int(p.Y1+oy))
		r.LineTo(int(p.X2), int(p.Y2+oy))
		r.Stroke()

	case render.KindRect:
		if p.Fill {
			r.SetFillColor(color)
		} else {
			r.SetFillColor(drawing.ColorTransparent)
		}
		r.SetStrokeColor(color)
		r.SetStrokeWidth(1)
		r.SetStrokeDashArray(nil)
		r.MoveTo(int(p.X1), int(p.Y1+oy))
		r.LineTo(int(p.X1+p.W), int(p.Y1+oy))
		r.LineTo(int(p.X1+p.W), int(p.Y1+p.H+oy))
		r.LineTo(int(p.X1), int(p.Y1+p.H+oy))
		r.Close()
		r.FillStroke()

	case render.KindPolyline:
		if len(p.Points) < 2 {
			return
		}
		r.SetStrokeColor(color)
		r.SetStrokeWidth(strokeWidth(p))
		r.SetStrokeDashArray(nil)
		r.MoveTo(int(p.Points[0].X), int(p.Points[0].Y+oy))
		for _, pt := range p.Points[1:] {
			r.LineTo(int(pt.X), int(pt.Y+oy))
		}
		r.Stroke()

	case render.KindPolygon:
		if len(p.Points) < 3 {
			return
		}
		r.SetFillColor(color)
		r.MoveTo(int(p.Points[0].X), int(p.Points[0].Y+oy))
		for _, pt := range p.Points[1:] {
			r.LineTo(int(pt.X), int(pt.Y+oy))
		}
		r.Close()
		r.Fill()

	case render.KindLabel:
		r.SetFontColor(color)
		r.SetFontSize(10)
		r.Text(p.Text, int(p.X1), int(p.Y1+oy))
	}
}

func strokeWidth(p render.Primitive) float64 {
	if p.Width > 0 {
		return p.Width
	}
	return 1
}

// parseColor handles "#rrggbb" and "#rrggbbaa"; unknown strings fall
// back to the watermark grey.
func parseColor(s string) drawing.Color {
	if len(s) == 0 || s[0] != '#' {
		return watermark
	}
	hex := s[1:]
	switch len(hex) {
	case 6:
		return drawing.ColorFromHex(hex)
	case 8:
		c := drawing.ColorFromHex(hex[:6])
		c.A = hexByte(hex[6], hex[7])
		return c
	default:
		return watermark
	}
}

func hexByte(hi, lo byte) uint8 {
	return hexNibble(hi)<<4 | hexNibble(lo)
}

func hexNibble(b byte) uint8 {
	switch {
	case b >= '0' && b <= '9':
		return b - '0'
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10
	}
	return 0
}
