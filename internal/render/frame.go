// Package render builds layered frame descriptions from chart state.
//
// A Frame is a pure data artifact: an ordered list of panes, each an
// ordered list of layers of draw primitives. Consumers are the WebSocket
// gateway (frames serialize to JSON) and the snapshot rasterizer.
package render

// PrimitiveKind tags the variant of a draw primitive.
type PrimitiveKind string

const (
	KindLine     PrimitiveKind = "line"
	KindRect     PrimitiveKind = "rect"
	KindPolyline PrimitiveKind = "polyline"
	KindPolygon  PrimitiveKind = "polygon" // closed, filled
	KindLabel    PrimitiveKind = "label"
)

// Point is a pixel coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Primitive is one draw operation. Fields are populated per Kind:
// lines use X1..Y2, rects X1/Y1/W/H, polylines and polygons Points,
// labels X1/Y1/Text.
type Primitive struct {
	Kind   PrimitiveKind `json:"kind"`
	X1     float64       `json:"x1,omitempty"`
	Y1     float64       `json:"y1,omitempty"`
	X2     float64       `json:"x2,omitempty"`
	Y2     float64       `json:"y2,omitempty"`
	W      float64       `json:"w,omitempty"`
	H      float64       `json:"h,omitempty"`
	Points []Point       `json:"points,omitempty"`
	Text   string        `json:"text,omitempty"`
	Color  string        `json:"color,omitempty"`
	Fill   bool          `json:"fill,omitempty"`
	Dashed bool          `json:"dashed,omitempty"`
	Width  float64       `json:"width,omitempty"` // stroke width
}

// Layer is one ordered slice of the pipeline's output.
type Layer struct {
	Name       string      `json:"name"`
	Primitives []Primitive `json:"primitives"`
}

func (l *Layer) line(x1, y1, x2, y2 float64, color string, dashed bool) {
	l.Primitives = append(l.Primitives, Primitive{
		Kind: KindLine, X1: x1, Y1: y1, X2: x2, Y2: y2, Color: color, Dashed: dashed, Width: 1,
	})
}

func (l *Layer) rect(x, y, w, h float64, color string, fill bool) {
	l.Primitives = append(l.Primitives, Primitive{
		Kind: KindRect, X1: x, Y1: y, W: w, H: h, Color: color, Fill: fill,
	})
}

func (l *Layer) polyline(pts []Point, color string, width float64) {
	l.Primitives = append(l.Primitives, Primitive{
		Kind: KindPolyline, Points: pts, Color: color, Width: width,
	})
}

func (l *Layer) polygon(pts []Point, color string) {
	l.Primitives = append(l.Primitives, Primitive{
		Kind: KindPolygon, Points: pts, Color: color, Fill: true,
	})
}

func (l *Layer) label(x, y float64, text, color string) {
	l.Primitives = append(l.Primitives, Primitive{
		Kind: KindLabel, X1: x, Y1: y, Text: text, Color: color,
	})
}

// Pane is one chart pane (price, volume, oscillator or split).
type Pane struct {
	Name   string  `json:"name"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Layers []Layer `json:"layers"`
}

// Layer finds a layer by name, for tests and the rasterizer.
func (p *Pane) Layer(name string) *Layer {
	for i := range p.Layers {
		if p.Layers[i].Name == name {
			return &p.Layers[i]
		}
	}
	return nil
}

// Frame is a complete rendered chart state.
type Frame struct {
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	BuiltAt   int64   `json:"built_at"` // unix millis
	Synthetic bool    `json:"synthetic,omitempty"`
	Replay    bool    `json:"replay,omitempty"`
	Panes     []*Pane `json:"panes"`
}

// Pane finds a pane by name.
func (f *Frame) Pane(name string) *Pane {
	for _, p := range f.Panes {
		if p.Name == name {
			return p
		}
	}
	return nil
}
