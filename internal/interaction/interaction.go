// Package interaction turns pointer and wheel events into pan, zoom,
// crosshair and annotation-authoring actions.
//
// The active tool is an explicit state value dispatched through a single
// function, so illegal combinations (panning while a draw tool is armed)
// are unrepresentable rather than guarded by flags.
package interaction

import (
	"chartengine/internal/model"
	"chartengine/internal/viewport"
)

// State is the interaction mode for one chart pane.
type State int

const (
	Idle State = iota
	Panning
	DrawHorizontal
	DrawTrend
	PlaceAlert
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Panning:
		return "panning"
	case DrawHorizontal:
		return "draw_horizontal"
	case DrawTrend:
		return "draw_trend"
	case PlaceAlert:
		return "place_alert"
	}
	return "unknown"
}

// EventKind enumerates pointer/wheel input kinds.
type EventKind int

const (
	PointerDown EventKind = iota
	PointerMove
	PointerUp
	PointerLeave
	Wheel
)

// Event is a single input event in pane pixel coordinates.
type Event struct {
	Kind EventKind
	X, Y float64
	// WheelDelta > 0 zooms in, < 0 zooms out.
	WheelDelta float64
}

// Crosshair is the pointer sample shown while the cursor is over the pane.
type Crosshair struct {
	Visible     bool
	X, Y        float64
	CandleIndex int     // nearest candle, window-relative
	Price       float64 // price interpolated from the pointer's y
}

// Actions collects the side effects a dispatched event produced. The
// session applies them to the viewport, annotation set, and alert set.
type Actions struct {
	Annotation *model.DrawingAnnotation
	Alert      *model.PriceAlert
	Redraw     bool
}

// Machine is the interaction state machine for one chart pane.
type Machine struct {
	state  State
	symbol string

	// Press origin while panning or dragging a trend line.
	dragStartX, dragStartY float64
	trendStart             *model.AnnotationPoint

	crosshair Crosshair

	// panScale converts pixels dragged into candles panned.
	panScale float64

	// lastPrice decides a placed alert's direction relative to the market.
	lastPrice float64
}

// SetLastPrice updates the reference price for alert direction.
func (m *Machine) SetLastPrice(p float64) { m.lastPrice = p }

// NewMachine creates a machine in Idle for the given symbol.
func NewMachine(symbol string) *Machine {
	return &Machine{symbol: symbol, panScale: 0.1}
}

// State returns the current interaction state.
func (m *Machine) State() State { return m.state }

// Crosshair returns the current pointer sample.
func (m *Machine) Crosshair() Crosshair { return m.crosshair }

// SetSymbol rebinds the machine after a symbol switch, dropping any
// half-finished tool action.
func (m *Machine) SetSymbol(symbol string) {
	m.symbol = symbol
	m.state = Idle
	m.trendStart = nil
	m.crosshair = Crosshair{}
}

// ArmTool switches to a draw/alert state. Arming while another tool is
// active replaces it; arming Idle disarms.
func (m *Machine) ArmTool(s State) {
	switch s {
	case DrawHorizontal, DrawTrend, PlaceAlert, Idle:
		m.state = s
		m.trendStart = nil
	}
}

// Dispatch processes one input event against the viewport/geometry pair
// and returns the resulting actions. vp is mutated for pan and zoom; all
// other state changes are confined to the machine and the returned Actions.
func (m *Machine) Dispatch(ev Event, vp *viewport.Viewport, g viewport.Geometry, visibleCount, total int) Actions {
	var out Actions

	// Crosshair tracks every move regardless of state; cleared on leave.
	switch ev.Kind {
	case PointerMove:
		m.crosshair = Crosshair{
			Visible:     true,
			X:           ev.X,
			Y:           ev.Y,
			CandleIndex: g.Index(ev.X, visibleCount),
			Price:       g.Price(ev.Y),
		}
		out.Redraw = true
	case PointerLeave:
		m.crosshair = Crosshair{}
		out.Redraw = true
	}

	// Wheel zoom works in any state.
	if ev.Kind == Wheel {
		if ev.WheelDelta > 0 {
			vp.AdjustZoom(1.1)
		} else {
			vp.AdjustZoom(1 / 1.1)
		}
		out.Redraw = true
		return out
	}

	switch m.state {
	case Idle:
		if ev.Kind == PointerDown {
			m.state = Panning
			m.dragStartX = ev.X
		}

	case Panning:
		switch ev.Kind {
		case PointerMove:
			delta := (ev.X - m.dragStartX) * m.panScale
			vp.Pan(delta, total)
			m.dragStartX = ev.X
			out.Redraw = true
		case PointerUp, PointerLeave:
			m.state = Idle
		}

	case DrawHorizontal:
		if ev.Kind == PointerDown {
			out.Annotation = &model.DrawingAnnotation{
				ID:     model.NewID("drw"),
				Symbol: m.symbol,
				Kind:   model.AnnotationHorizontal,
				Price:  g.Price(ev.Y),
				Color:  "#2962ff",
			}
			m.state = Idle
			out.Redraw = true
		}

	case DrawTrend:
		switch ev.Kind {
		case PointerDown:
			m.trendStart = &model.AnnotationPoint{
				CandleIndex: g.Index(ev.X, visibleCount),
				Price:       g.Price(ev.Y),
			}
		case PointerUp:
			if m.trendStart != nil {
				end := &model.AnnotationPoint{
					CandleIndex: g.Index(ev.X, visibleCount),
					Price:       g.Price(ev.Y),
				}
				out.Annotation = &model.DrawingAnnotation{
					ID:     model.NewID("drw"),
					Symbol: m.symbol,
					Kind:   model.AnnotationTrend,
					Price:  m.trendStart.Price,
					Start:  m.trendStart,
					End:    end,
					Color:  "#2962ff",
				}
				m.trendStart = nil
				m.state = Idle
				out.Redraw = true
			}
		case PointerLeave:
			m.trendStart = nil
			m.state = Idle
		}

	case PlaceAlert:
		if ev.Kind == PointerDown {
			price := g.Price(ev.Y)
			direction := model.AlertAbove
			if price < m.lastPrice {
				direction = model.AlertBelow
			}
			out.Alert = &model.PriceAlert{
				ID:        model.NewID("alr"),
				Symbol:    m.symbol,
				Price:     price,
				Direction: direction,
			}
			m.state = Idle
			out.Redraw = true
		}
	}

	return out
}
