// Package persistence is the boundary between local chart state and the
// remote annotation/layout store.
//
// Local state is authoritative. Every mutation applies locally first and
// is mirrored to the remote asynchronously; a failed save is logged and
// never rolled back — annotations are cheap to recreate and the policy
// favors uninterrupted charting over strict consistency.
package persistence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chartengine/internal/model"
)

// Remote is the best-effort remote mirror of annotations, indicator
// toggles and layouts.
type Remote interface {
	ListDrawings(ctx context.Context, symbol string) ([]model.DrawingAnnotation, error)
	SaveDrawing(ctx context.Context, a model.DrawingAnnotation) error
	DeleteDrawing(ctx context.Context, symbol, id string) error
	ClearDrawings(ctx context.Context, symbol string) error

	ListToggles(ctx context.Context, symbol string) (model.IndicatorToggleSet, error)
	SaveToggle(ctx context.Context, symbol, name string, enabled bool) error

	ListLayouts(ctx context.Context) ([]model.ChartLayout, error)
	SaveLayout(ctx context.Context, l model.ChartLayout) error
	DeleteLayout(ctx context.Context, id string) error
}

const mirrorTimeout = 2 * time.Second

// Gateway holds the authoritative local state and mirrors mutations.
type Gateway struct {
	remote Remote
	log    *slog.Logger

	mu       sync.RWMutex
	drawings map[string]map[string]model.DrawingAnnotation // symbol → id → drawing
	toggles  map[string]model.IndicatorToggleSet           // symbol → set
	layouts  map[string]model.ChartLayout                  // id → layout
	loaded   map[string]bool                               // symbols already merged from remote

	// OnMirrorError is invoked when an async remote write fails (metrics).
	OnMirrorError func()

	wg sync.WaitGroup
}

// NewGateway creates a gateway over the given remote. remote may be nil
// for a purely local session.
func NewGateway(remote Remote, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		remote:   remote,
		log:      log,
		drawings: make(map[string]map[string]model.DrawingAnnotation),
		toggles:  make(map[string]model.IndicatorToggleSet),
		layouts:  make(map[string]model.ChartLayout),
		loaded:   make(map[string]bool),
	}
}

// LoadSymbol pulls remote drawings and toggles for the symbol once per
// session and merges them into local state. Anything the user has drawn
// locally in the meantime wins over the remote copy.
func (g *Gateway) LoadSymbol(ctx context.Context, symbol string) {
	g.mu.Lock()
	already := g.loaded[symbol]
	g.loaded[symbol] = true
	g.mu.Unlock()
	if already || g.remote == nil {
		return
	}

	drawings, err := g.remote.ListDrawings(ctx, symbol)
	if err != nil {
		g.log.Warn("remote drawing load failed", "symbol", symbol, "err", err)
	}
	toggles, terr := g.remote.ListToggles(ctx, symbol)
	if terr != nil {
		g.log.Warn("remote toggle load failed", "symbol", symbol, "err", terr)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, d := range drawings {
		set := g.symbolDrawings(symbol)
		if _, exists := set[d.ID]; !exists {
			set[d.ID] = d
		}
	}
	if terr == nil && toggles != nil {
		local := g.toggles[symbol]
		merged := toggles.Clone()
		for k, v := range local {
			merged[k] = v // local wins
		}
		g.toggles[symbol] = merged
	}
}

// ── Drawings ────────────────────────────────────────────────

// CreateDrawing stores a drawing locally and mirrors it asynchronously.
func (g *Gateway) CreateDrawing(a model.DrawingAnnotation) {
	g.mu.Lock()
	g.symbolDrawings(a.Symbol)[a.ID] = a
	g.mu.Unlock()

	g.mirror("create drawing", func(ctx context.Context) error {
		return g.remote.SaveDrawing(ctx, a)
	})
}

// DeleteDrawing drops one drawing by ID.
func (g *Gateway) DeleteDrawing(symbol, id string) {
	g.mu.Lock()
	delete(g.symbolDrawings(symbol), id)
	g.mu.Unlock()

	g.mirror("delete drawing", func(ctx context.Context) error {
		return g.remote.DeleteDrawing(ctx, symbol, id)
	})
}

// ClearDrawings empties one symbol's drawing set; other symbols keep theirs.
func (g *Gateway) ClearDrawings(symbol string) {
	g.mu.Lock()
	delete(g.drawings, symbol)
	g.mu.Unlock()

	g.mirror("clear drawings", func(ctx context.Context) error {
		return g.remote.ClearDrawings(ctx, symbol)
	})
}

// ListDrawings returns a copy of one symbol's drawings.
func (g *Gateway) ListDrawings(symbol string) []model.DrawingAnnotation {
	g.mu.RLock()
	defer g.mu.RUnlock()

	set := g.drawings[symbol]
	out := make([]model.DrawingAnnotation, 0, len(set))
	for _, d := range set {
		out = append(out, d)
	}
	return out
}

// ── Indicator toggles ───────────────────────────────────────

// SaveToggle flips one indicator on or off for a symbol.
func (g *Gateway) SaveToggle(symbol, name string, enabled bool) {
	g.mu.Lock()
	if g.toggles[symbol] == nil {
		g.toggles[symbol] = make(model.IndicatorToggleSet)
	}
	g.toggles[symbol][name] = enabled
	g.mu.Unlock()

	g.mirror("save toggle", func(ctx context.Context) error {
		return g.remote.SaveToggle(ctx, symbol, name, enabled)
	})
}

// Toggles returns a copy of the symbol's toggle set.
func (g *Gateway) Toggles(symbol string) model.IndicatorToggleSet {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.toggles[symbol] == nil {
		return model.IndicatorToggleSet{}
	}
	return g.toggles[symbol].Clone()
}

// ── Layouts ─────────────────────────────────────────────────

// SaveLayout upserts a layout. IsDefault uniqueness is the caller's job.
func (g *Gateway) SaveLayout(l model.ChartLayout) {
	if l.ID == "" {
		l.ID = model.NewID("lay")
	}
	g.mu.Lock()
	g.layouts[l.ID] = l
	g.mu.Unlock()

	g.mirror("save layout", func(ctx context.Context) error {
		return g.remote.SaveLayout(ctx, l)
	})
}

// DeleteLayout removes a layout by ID.
func (g *Gateway) DeleteLayout(id string) {
	g.mu.Lock()
	delete(g.layouts, id)
	g.mu.Unlock()

	g.mirror("delete layout", func(ctx context.Context) error {
		return g.remote.DeleteLayout(ctx, id)
	})
}

// ListLayouts returns all saved layouts. Remote layouts are merged in on
// the first call of a session.
func (g *Gateway) ListLayouts(ctx context.Context) []model.ChartLayout {
	g.mu.Lock()
	if !g.loaded["__layouts"] && g.remote != nil {
		g.loaded["__layouts"] = true
		g.mu.Unlock()
		remote, err := g.remote.ListLayouts(ctx)
		if err != nil {
			g.log.Warn("remote layout load failed", "err", err)
		}
		g.mu.Lock()
		for _, l := range remote {
			if _, exists := g.layouts[l.ID]; !exists {
				g.layouts[l.ID] = l
			}
		}
	}
	defer g.mu.Unlock()

	out := make([]model.ChartLayout, 0, len(g.layouts))
	for _, l := range g.layouts {
		out = append(out, l)
	}
	return out
}

// Flush waits for in-flight mirror writes; used on teardown and in tests.
func (g *Gateway) Flush() {
	g.wg.Wait()
}

// mirror runs a remote write asynchronously with a bounded timeout.
func (g *Gateway) mirror(op string, fn func(ctx context.Context) error) {
	if g.remote == nil {
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			g.log.Warn("remote mirror failed; local state retained", "op", op, "err", err)
			if g.OnMirrorError != nil {
				g.OnMirrorError()
			}
		}
	}()
}

// symbolDrawings returns the mutable drawing map for symbol. Callers hold g.mu.
func (g *Gateway) symbolDrawings(symbol string) map[string]model.DrawingAnnotation {
	if g.drawings[symbol] == nil {
		g.drawings[symbol] = make(map[string]model.DrawingAnnotation)
	}
	return g.drawings[symbol]
}
