package interaction

import (
	"math"
	"testing"

	"chartengine/internal/model"
	"chartengine/internal/viewport"
)

func setup() (*Machine, *viewport.Viewport, viewport.Geometry) {
	m := NewMachine("BTCUSD")
	vp := viewport.New()
	g := viewport.ComputeGeometry(800, 400, vp.VisibleCount(), 67000, 68000)
	return m, vp, g
}

func TestIdle_PointerDownBeginsPanning(t *testing.T) {
	m, vp, g := setup()

	m.Dispatch(Event{Kind: PointerDown, X: 400}, vp, g, 50, 200)
	if m.State() != Panning {
		t.Fatalf("state = %v, want panning", m.State())
	}

	// Dragging left (negative dx) pans forward; dragging right pans back.
	m.Dispatch(Event{Kind: PointerMove, X: 300}, vp, g, 50, 200)
	if vp.PanOffset() != 0 {
		t.Errorf("pan offset = %v, want clamp at 0 for forward drag", vp.PanOffset())
	}
	m.Dispatch(Event{Kind: PointerMove, X: 500}, vp, g, 50, 200)
	if vp.PanOffset() <= 0 {
		t.Errorf("pan offset = %v, want > 0 after rightward drag", vp.PanOffset())
	}

	m.Dispatch(Event{Kind: PointerUp, X: 500}, vp, g, 50, 200)
	if m.State() != Idle {
		t.Errorf("state = %v, want idle after pointer up", m.State())
	}
}

func TestPanning_EndsOnPointerLeave(t *testing.T) {
	m, vp, g := setup()
	m.Dispatch(Event{Kind: PointerDown, X: 100}, vp, g, 50, 200)
	m.Dispatch(Event{Kind: PointerLeave}, vp, g, 50, 200)
	if m.State() != Idle {
		t.Errorf("state = %v, want idle", m.State())
	}
}

func TestDrawHorizontal_SingleClickCommitsAndDisarms(t *testing.T) {
	m, vp, g := setup()
	m.ArmTool(DrawHorizontal)

	// While armed, pointer-down must not initiate panning.
	y := g.Y(67500)
	out := m.Dispatch(Event{Kind: PointerDown, X: 200, Y: y}, vp, g, 50, 200)

	if out.Annotation == nil {
		t.Fatal("expected a committed annotation")
	}
	if out.Annotation.Kind != model.AnnotationHorizontal {
		t.Errorf("kind = %v, want horizontal", out.Annotation.Kind)
	}
	if math.Abs(out.Annotation.Price-67500) > 0.01 {
		t.Errorf("price = %v, want 67500", out.Annotation.Price)
	}
	if m.State() != Idle {
		t.Errorf("state = %v, want idle after single-shot commit", m.State())
	}
	if vp.PanOffset() != 0 {
		t.Error("draw click must not pan")
	}
}

func TestDrawTrend_PressDragRelease(t *testing.T) {
	m, vp, g := setup()
	m.ArmTool(DrawTrend)

	m.Dispatch(Event{Kind: PointerDown, X: 100, Y: g.Y(67200)}, vp, g, 50, 200)
	if m.State() != DrawTrend {
		t.Fatal("trend draw should stay armed through the drag")
	}
	out := m.Dispatch(Event{Kind: PointerUp, X: 600, Y: g.Y(67800)}, vp, g, 50, 200)

	ann := out.Annotation
	if ann == nil || ann.Kind != model.AnnotationTrend {
		t.Fatalf("annotation = %+v, want trend", ann)
	}
	if ann.Start == nil || ann.End == nil {
		t.Fatal("trend line needs both endpoints")
	}
	if ann.Start.CandleIndex >= ann.End.CandleIndex {
		t.Errorf("endpoints not ordered: %d >= %d", ann.Start.CandleIndex, ann.End.CandleIndex)
	}
	if m.State() != Idle {
		t.Errorf("state = %v, want idle", m.State())
	}
}

func TestDrawTrend_PointerLeaveAbandons(t *testing.T) {
	m, vp, g := setup()
	m.ArmTool(DrawTrend)
	m.Dispatch(Event{Kind: PointerDown, X: 100, Y: 100}, vp, g, 50, 200)
	out := m.Dispatch(Event{Kind: PointerLeave}, vp, g, 50, 200)
	if out.Annotation != nil {
		t.Error("abandoned trend drag must not commit")
	}
	if m.State() != Idle {
		t.Errorf("state = %v, want idle", m.State())
	}
}

func TestPlaceAlert_DirectionFollowsLastPrice(t *testing.T) {
	m, vp, g := setup()
	m.SetLastPrice(67500)

	m.ArmTool(PlaceAlert)
	out := m.Dispatch(Event{Kind: PointerDown, Y: g.Y(67800)}, vp, g, 50, 200)
	if out.Alert == nil || out.Alert.Direction != model.AlertAbove {
		t.Fatalf("alert = %+v, want direction above", out.Alert)
	}
	if out.Alert.Triggered {
		t.Error("new alerts start untriggered")
	}

	m.ArmTool(PlaceAlert)
	out = m.Dispatch(Event{Kind: PointerDown, Y: g.Y(67200)}, vp, g, 50, 200)
	if out.Alert == nil || out.Alert.Direction != model.AlertBelow {
		t.Fatalf("alert = %+v, want direction below", out.Alert)
	}
}

func TestCrosshair_TracksMoveAndClearsOnLeave(t *testing.T) {
	m, vp, g := setup()

	m.Dispatch(Event{Kind: PointerMove, X: 400, Y: 200}, vp, g, 50, 200)
	ch := m.Crosshair()
	if !ch.Visible {
		t.Fatal("crosshair should be visible after move")
	}
	if ch.CandleIndex < 0 || ch.CandleIndex >= 50 {
		t.Errorf("candle index = %d out of window", ch.CandleIndex)
	}

	m.Dispatch(Event{Kind: PointerLeave}, vp, g, 50, 200)
	if m.Crosshair().Visible {
		t.Error("crosshair should clear on pointer leave")
	}
}

func TestWheel_ZoomsInAnyState(t *testing.T) {
	m, vp, g := setup()
	m.ArmTool(DrawHorizontal)

	before := vp.Zoom()
	m.Dispatch(Event{Kind: Wheel, WheelDelta: 1}, vp, g, 50, 200)
	if vp.Zoom() <= before {
		t.Errorf("zoom = %v, want > %v after wheel up", vp.Zoom(), before)
	}
	if m.State() != DrawHorizontal {
		t.Error("wheel zoom must not disturb the armed tool")
	}

	for i := 0; i < 100; i++ {
		m.Dispatch(Event{Kind: Wheel, WheelDelta: 1}, vp, g, 50, 200)
	}
	if vp.Zoom() > viewport.MaxZoom {
		t.Errorf("zoom = %v exceeded max", vp.Zoom())
	}
}
