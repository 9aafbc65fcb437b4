package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartengine/internal/model"
)

// memRemote is an in-memory Remote for tests.
type memRemote struct {
	mu       sync.Mutex
	drawings map[string]map[string]model.DrawingAnnotation
	toggles  map[string]model.IndicatorToggleSet
	layouts  map[string]model.ChartLayout
	failAll  bool
	saves    int
}

func newMemRemote() *memRemote {
	return &memRemote{
		drawings: make(map[string]map[string]model.DrawingAnnotation),
		toggles:  make(map[string]model.IndicatorToggleSet),
		layouts:  make(map[string]model.ChartLayout),
	}
}

var errRemoteDown = errors.New("remote down")

func (m *memRemote) ListDrawings(_ context.Context, symbol string) ([]model.DrawingAnnotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return nil, errRemoteDown
	}
	var out []model.DrawingAnnotation
	for _, d := range m.drawings[symbol] {
		out = append(out, d)
	}
	return out, nil
}

func (m *memRemote) SaveDrawing(_ context.Context, a model.DrawingAnnotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.failAll {
		return errRemoteDown
	}
	if m.drawings[a.Symbol] == nil {
		m.drawings[a.Symbol] = make(map[string]model.DrawingAnnotation)
	}
	m.drawings[a.Symbol][a.ID] = a
	return nil
}

func (m *memRemote) DeleteDrawing(_ context.Context, symbol, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errRemoteDown
	}
	delete(m.drawings[symbol], id)
	return nil
}

func (m *memRemote) ClearDrawings(_ context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errRemoteDown
	}
	delete(m.drawings, symbol)
	return nil
}

func (m *memRemote) ListToggles(_ context.Context, symbol string) (model.IndicatorToggleSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return nil, errRemoteDown
	}
	return m.toggles[symbol].Clone(), nil
}

func (m *memRemote) SaveToggle(_ context.Context, symbol, name string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errRemoteDown
	}
	if m.toggles[symbol] == nil {
		m.toggles[symbol] = make(model.IndicatorToggleSet)
	}
	m.toggles[symbol][name] = enabled
	return nil
}

func (m *memRemote) ListLayouts(_ context.Context) ([]model.ChartLayout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return nil, errRemoteDown
	}
	var out []model.ChartLayout
	for _, l := range m.layouts {
		out = append(out, l)
	}
	return out, nil
}

func (m *memRemote) SaveLayout(_ context.Context, l model.ChartLayout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errRemoteDown
	}
	m.layouts[l.ID] = l
	return nil
}

func (m *memRemote) DeleteLayout(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errRemoteDown
	}
	delete(m.layouts, id)
	return nil
}

func TestDrawingRoundTrip(t *testing.T) {
	g := NewGateway(newMemRemote(), nil)

	d := model.DrawingAnnotation{ID: "d1", Symbol: "BTCUSD", Kind: model.AnnotationHorizontal, Price: 67500}
	g.CreateDrawing(d)
	g.Flush()

	got := g.ListDrawings("BTCUSD")
	require.Len(t, got, 1)
	assert.Equal(t, model.AnnotationHorizontal, got[0].Kind)
	assert.Equal(t, 67500.0, got[0].Price)
}

func TestClearDrawings_OnlyAffectsOneSymbol(t *testing.T) {
	g := NewGateway(newMemRemote(), nil)
	g.CreateDrawing(model.DrawingAnnotation{ID: "d1", Symbol: "BTCUSD", Kind: model.AnnotationHorizontal, Price: 1})
	g.CreateDrawing(model.DrawingAnnotation{ID: "d2", Symbol: "ETHUSD", Kind: model.AnnotationHorizontal, Price: 2})

	g.ClearDrawings("BTCUSD")
	g.Flush()

	assert.Empty(t, g.ListDrawings("BTCUSD"))
	assert.Len(t, g.ListDrawings("ETHUSD"), 1)
}

func TestSaveFailure_KeepsLocalState(t *testing.T) {
	remote := newMemRemote()
	remote.failAll = true
	g := NewGateway(remote, nil)

	var mirrorErrs int
	var mu sync.Mutex
	g.OnMirrorError = func() { mu.Lock(); mirrorErrs++; mu.Unlock() }

	g.CreateDrawing(model.DrawingAnnotation{ID: "d1", Symbol: "BTCUSD", Kind: model.AnnotationTrend, Price: 5})
	g.Flush()

	// Optimistic local state survives the remote failure.
	assert.Len(t, g.ListDrawings("BTCUSD"), 1)
	mu.Lock()
	assert.Equal(t, 1, mirrorErrs)
	mu.Unlock()
}

func TestLoadSymbol_MergesWithoutClobberingLocal(t *testing.T) {
	remote := newMemRemote()
	remote.drawings["BTCUSD"] = map[string]model.DrawingAnnotation{
		"r1": {ID: "r1", Symbol: "BTCUSD", Kind: model.AnnotationHorizontal, Price: 100},
	}
	remote.toggles["BTCUSD"] = model.IndicatorToggleSet{"rsi": true, "sma7": true}

	g := NewGateway(remote, nil)

	// User draws and flips a toggle before the remote load lands.
	g.CreateDrawing(model.DrawingAnnotation{ID: "l1", Symbol: "BTCUSD", Kind: model.AnnotationHorizontal, Price: 200})
	g.SaveToggle("BTCUSD", "sma7", false)

	g.LoadSymbol(context.Background(), "BTCUSD")

	drawings := g.ListDrawings("BTCUSD")
	assert.Len(t, drawings, 2, "remote and local drawings merge")

	toggles := g.Toggles("BTCUSD")
	assert.True(t, toggles["rsi"], "remote toggle merged in")
	assert.False(t, toggles["sma7"], "local toggle wins over remote")
}

func TestLoadSymbol_OncePerSession(t *testing.T) {
	remote := newMemRemote()
	remote.drawings["BTCUSD"] = map[string]model.DrawingAnnotation{
		"r1": {ID: "r1", Symbol: "BTCUSD", Kind: model.AnnotationHorizontal, Price: 100},
	}
	g := NewGateway(remote, nil)

	g.LoadSymbol(context.Background(), "BTCUSD")
	g.DeleteDrawing("BTCUSD", "r1")
	g.Flush()

	// A second load must not resurrect the deleted drawing.
	g.LoadSymbol(context.Background(), "BTCUSD")
	assert.Empty(t, g.ListDrawings("BTCUSD"))
}

func TestLayoutCRUD(t *testing.T) {
	g := NewGateway(newMemRemote(), nil)

	g.SaveLayout(model.ChartLayout{ID: "lay1", Name: "scalping", Symbol: "BTCUSD", Timeframe: "1m", IsDefault: true})
	g.SaveLayout(model.ChartLayout{ID: "lay2", Name: "swing", Symbol: "BTCUSD", Timeframe: "4h"})
	g.Flush()

	layouts := g.ListLayouts(context.Background())
	require.Len(t, layouts, 2)

	g.DeleteLayout("lay1")
	g.Flush()
	assert.Len(t, g.ListLayouts(context.Background()), 1)
}

func TestCircuitBreaker_OpensAndProbes(t *testing.T) {
	cb := NewCircuitBreaker(2, 20*time.Millisecond)
	boom := func() error { return errRemoteDown }

	require.Error(t, cb.Execute(boom))
	require.Error(t, cb.Execute(boom))
	assert.Equal(t, BreakerOpen, cb.CurrentState())

	// While open, calls short-circuit.
	err := cb.Execute(func() error { t.Fatal("must not run while open"); return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)

	// After the reset timeout, a successful probe closes the breaker.
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, BreakerClosed, cb.CurrentState())
}
