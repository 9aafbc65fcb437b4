// Package session orchestrates one chart view: it owns the candle store,
// viewport, interaction machine, replay engine, alerts and redraw
// scheduling for a single client.
//
// All mutable chart state is confined to the session; the candle buffer
// is written by either the live tick path or the replay engine, never
// both. Every timer (frame ticker, replay ticker) has exactly one owner
// and is cancelled on mode switch or Close.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chartengine/internal/alerts"
	"chartengine/internal/candlestore"
	"chartengine/internal/compare"
	"chartengine/internal/indicator"
	"chartengine/internal/interaction"
	"chartengine/internal/metrics"
	"chartengine/internal/model"
	"chartengine/internal/persistence"
	"chartengine/internal/render"
	"chartengine/internal/replay"
	"chartengine/internal/viewport"
)

// FrameInterval caps redraw frequency: rapid successive state changes
// coalesce into at most one frame per interval.
const FrameInterval = 16 * time.Millisecond

// Config sizes the rendered panes.
type Config struct {
	Width        float64
	Height       float64
	VolumeHeight float64
	OscHeight    float64
}

// DefaultConfig matches the standard chart dimensions.
func DefaultConfig() Config {
	return Config{Width: 800, Height: 400, VolumeHeight: 80, OscHeight: 120}
}

// Session is the single-writer owner of one chart's state.
type Session struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics
	source  candlestore.Source

	mu      sync.Mutex
	store   *candlestore.Store
	vp      *viewport.Viewport
	machine *interaction.Machine
	gateway *persistence.Gateway
	checker *alerts.Checker
	memo    *indicator.Memo

	chartType model.ChartType

	markers      []model.TradeMarker
	activeTrades []model.TradeEvent
	lastSettled  *model.TradeEvent

	replayEng *replay.Engine

	compareMode    compare.Mode
	compareSymbol  string
	compareCandles []model.Candle

	// fetchCancel aborts the in-flight historical fetch on symbol switch.
	fetchCancel context.CancelFunc

	// lifecycle
	runCtx    context.Context
	runCancel context.CancelFunc
	closed    bool

	dirty   bool
	dirtyMu sync.Mutex

	// OnFrame receives every built frame (gateway broadcast, snapshots).
	OnFrame func(*render.Frame)

	// OnAlert fires when a price alert triggers, after the visual
	// banner has been scheduled. Used for external delivery channels.
	OnAlert func(model.PriceAlert)

	// OnTradeIntent hands trade-placement requests to the external
	// order-execution collaborator.
	OnTradeIntent func(model.TradeIntent)
}

// New creates a session. gateway and m may be nil (local-only, unmetered).
func New(cfg Config, source candlestore.Source, gateway *persistence.Gateway, m *metrics.Metrics, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	if gateway == nil {
		gateway = persistence.NewGateway(nil, log)
	}
	checker := alerts.NewChecker(log)
	s := &Session{
		cfg:       cfg,
		log:       log,
		metrics:   m,
		source:    source,
		store:     candlestore.New(source, log),
		vp:        viewport.New(),
		machine:   interaction.NewMachine(""),
		gateway:   gateway,
		checker:   checker,
		memo:      indicator.NewMemo(),
		chartType: model.ChartCandles,
	}
	checker.OnTriggered = func(a model.PriceAlert) {
		if s.metrics != nil {
			s.metrics.AlertsTriggered.Inc()
		}
		s.markDirty()
		if s.OnAlert != nil {
			s.OnAlert(a)
		}
	}
	gateway.OnMirrorError = func() {
		if s.metrics != nil {
			s.metrics.MirrorFailures.Inc()
		}
	}
	return s
}

// Run drives the frame ticker until ctx is cancelled. A redraw is built
// only when something marked the session dirty since the last tick.
func (s *Session) Run(ctx context.Context) {
	s.mu.Lock()
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	runCtx := s.runCtx
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
		defer s.metrics.ActiveSessions.Dec()
	}

	ticker := time.NewTicker(FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			if !s.swapDirty() {
				continue
			}
			frame := s.BuildFrame()
			if s.OnFrame != nil {
				s.OnFrame(frame)
			}
		}
	}
}

// Close tears the session down: cancels the frame loop, the in-flight
// fetch and any replay timer, and flushes pending mirror writes.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.fetchCancel != nil {
		s.fetchCancel()
	}
	if s.replayEng != nil {
		s.replayEng.Stop()
		s.replayEng = nil
		if s.metrics != nil {
			s.metrics.ReplayActive.Dec()
		}
	}
	if s.runCancel != nil {
		s.runCancel()
	}
	s.mu.Unlock()

	s.gateway.Flush()
}

// SetSymbol switches the active (symbol, timeframe) pair. The previous
// pair's in-flight fetch and replay timer are cancelled first so stale
// data can never land in the new series.
func (s *Session) SetSymbol(ctx context.Context, symbol string, tf model.Timeframe) error {
	s.mu.Lock()
	if s.fetchCancel != nil {
		s.fetchCancel()
	}
	if s.replayEng != nil {
		s.replayEng.Stop()
		s.replayEng = nil
		if s.metrics != nil {
			s.metrics.ReplayActive.Dec()
		}
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	s.fetchCancel = cancel
	s.machine.SetSymbol(symbol)
	s.vp.ResetPan()

	// Load under the lock so a stale tick can never interleave with the
	// buffer swap.
	if err := s.store.Load(fetchCtx, symbol, tf); err != nil {
		s.mu.Unlock()
		return err
	}
	synthetic := s.store.Snapshot().Synthetic
	s.mu.Unlock()

	if s.metrics != nil && synthetic {
		s.metrics.FetchFallbacks.Inc()
	}
	s.gateway.LoadSymbol(fetchCtx, symbol)
	s.markDirty()
	return nil
}

// ApplyTick merges a live tick. Ignored while replay is active: the
// frozen buffer is the replay engine's alone.
func (s *Session) ApplyTick(t model.Tick) {
	s.mu.Lock()
	if s.replayEng != nil {
		s.mu.Unlock()
		return
	}
	before := s.store.Version()
	s.store.ApplyTick(t)
	changed := s.store.Version() != before
	s.machine.SetLastPrice(s.store.LastPrice())
	s.mu.Unlock()

	if !changed {
		return
	}
	if s.metrics != nil {
		s.metrics.TicksApplied.Inc()
	}
	s.checker.Check(t.Symbol, t.Price)
	s.markDirty()
}

// HandleInput dispatches a pointer/wheel event through the interaction
// machine and applies the resulting annotation/alert actions.
func (s *Session) HandleInput(ev interaction.Event) {
	s.mu.Lock()
	snap := s.store.Snapshot()
	_, count := s.vp.Window(len(snap.Candles))
	g := s.geometry(snap, count)
	out := s.machine.Dispatch(ev, s.vp, g, count, len(snap.Candles))
	s.mu.Unlock()

	if out.Annotation != nil {
		a := *out.Annotation
		if a.Kind == model.AnnotationAlert {
			// Authored through the alert tool path; stored as an alert.
			s.checker.Add(model.PriceAlert{ID: a.ID, Symbol: a.Symbol, Price: a.Price, Direction: model.AlertAbove})
		} else {
			s.gateway.CreateDrawing(a)
		}
	}
	if out.Alert != nil {
		s.checker.Add(*out.Alert)
	}
	if out.Redraw {
		s.markDirty()
	}
}

// ArmTool arms a drawing/alert tool (or Idle to disarm).
func (s *Session) ArmTool(state interaction.State) {
	s.mu.Lock()
	s.machine.ArmTool(state)
	s.mu.Unlock()
	s.markDirty()
}

// SetChartType switches candlestick/line rendering.
func (s *Session) SetChartType(t model.ChartType) {
	s.mu.Lock()
	s.chartType = t
	s.mu.Unlock()
	s.markDirty()
}

// ToggleIndicator flips an indicator and persists the preference.
func (s *Session) ToggleIndicator(name string, enabled bool) {
	s.gateway.SaveToggle(s.store.Symbol(), name, enabled)
	s.markDirty()
}

// ── Replay ──────────────────────────────────────────────────

// StartReplay freezes the backing buffer and starts stepping. The live
// tick path stays disabled until StopReplay.
func (s *Session) StartReplay(speed float64) {
	s.mu.Lock()
	if s.replayEng == nil {
		s.replayEng = replay.New(s.store.Backing(), s.log)
		s.replayEng.OnStep = s.markDirty
		if s.metrics != nil {
			s.metrics.ReplayActive.Inc()
		}
	}
	s.replayEng.SetSpeed(speed)
	runCtx := s.runCtx
	if runCtx == nil {
		runCtx = context.Background()
	}
	eng := s.replayEng
	s.mu.Unlock()

	eng.Play(runCtx)
	s.markDirty()
}

// PauseReplay halts stepping but stays in replay mode.
func (s *Session) PauseReplay() {
	s.mu.Lock()
	eng := s.replayEng
	s.mu.Unlock()
	if eng != nil {
		eng.Pause()
		s.markDirty()
	}
}

// SeekReplay scrubs to an index; out-of-range values clamp.
func (s *Session) SeekReplay(index int) {
	s.mu.Lock()
	eng := s.replayEng
	s.mu.Unlock()
	if eng != nil {
		eng.Seek(index)
	}
}

// StopReplay leaves replay mode and re-enables live ticks.
func (s *Session) StopReplay() {
	s.mu.Lock()
	if s.replayEng != nil {
		s.replayEng.Stop()
		s.replayEng = nil
		if s.metrics != nil {
			s.metrics.ReplayActive.Dec()
		}
	}
	s.mu.Unlock()
	s.markDirty()
}

// ── Compare / split ─────────────────────────────────────────

// SetCompare activates overlay or split mode for a secondary symbol,
// fetching its series through the same historical source.
func (s *Session) SetCompare(ctx context.Context, mode compare.Mode, symbol string) error {
	if mode == compare.ModeOff {
		s.mu.Lock()
		s.compareMode = mode
		s.compareSymbol = ""
		s.compareCandles = nil
		s.mu.Unlock()
		s.markDirty()
		return nil
	}

	candles, err := s.source.GetCandles(ctx, symbol, s.store.Timeframe(), candlestore.DefaultVisibleLimit)
	if err != nil {
		s.log.Warn("compare fetch failed", "symbol", symbol, "err", err)
		return err
	}

	s.mu.Lock()
	s.compareMode = mode
	s.compareSymbol = symbol
	s.compareCandles = candles
	s.mu.Unlock()
	s.markDirty()
	return nil
}

// ── Trades ──────────────────────────────────────────────────

// PlaceTrade emits a trade intent toward the order-execution collaborator.
func (s *Session) PlaceTrade(direction model.TradeDirection, amount float64, duration time.Duration) {
	intent := model.TradeIntent{
		Symbol:    s.store.Symbol(),
		Direction: direction,
		Amount:    amount,
		Duration:  duration,
	}
	if s.OnTradeIntent != nil {
		s.OnTradeIntent(intent)
	}
}

// HandleTradeEvent consumes a trade lifecycle event: placed events append
// a marker and an active-trade band; settled events remove the band and
// surface profit/loss on the next frame.
func (s *Session) HandleTradeEvent(ev model.TradeEvent) {
	s.mu.Lock()
	switch ev.Kind {
	case model.TradePlaced:
		s.markers = append(s.markers, model.TradeMarker{
			ID: ev.ID, TS: ev.TS, Price: ev.Price, Direction: ev.Direction, Amount: ev.Amount,
		})
		s.activeTrades = append(s.activeTrades, ev)
	case model.TradeSettled:
		for i, tr := range s.activeTrades {
			if tr.ID == ev.ID {
				s.activeTrades = append(s.activeTrades[:i], s.activeTrades[i+1:]...)
				break
			}
		}
		settled := ev
		s.lastSettled = &settled
	}
	s.mu.Unlock()
	s.markDirty()
}

// ── Accessors used by the API layer ─────────────────────────

// Gateway exposes the persistence gateway for the REST surface.
func (s *Session) Gateway() *persistence.Gateway { return s.gateway }

// Alerts exposes the alert checker.
func (s *Session) Alerts() *alerts.Checker { return s.checker }

// Symbol returns the active symbol.
func (s *Session) Symbol() string { return s.store.Symbol() }

// ReplayActive reports whether the session is in replay mode.
func (s *Session) ReplayActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replayEng != nil
}

// ── Frame building ──────────────────────────────────────────

// BuildFrame assembles the current frame from a consistent snapshot of
// all chart state. Safe to call at any time; rendering never blocks on
// I/O — it always draws the last-known local state.
func (s *Session) BuildFrame() *render.Frame {
	start := time.Now()

	s.mu.Lock()
	var (
		snap           = s.store.Snapshot()
		candles        []model.Candle
		windowStart    int
		windowCount    int
		replayActive   bool
		replayProgress float64
	)

	if s.replayEng != nil {
		candles = s.replayEng.Window()
		windowStart, windowCount = 0, len(candles)
		replayActive = true
		replayProgress = s.replayEng.Progress()
	} else {
		candles = snap.Candles
		windowStart, windowCount = s.vp.Window(len(candles))
	}

	var cmpCandles []model.Candle
	if s.compareMode == compare.ModeOverlay && len(s.compareCandles) > 0 {
		cmpCandles = tail(s.compareCandles, windowCount)
	}

	in := render.Inputs{
		Symbol:         snap.Symbol,
		Timeframe:      snap.Timeframe,
		Candles:        candles,
		WindowStart:    windowStart,
		WindowCount:    windowCount,
		Synthetic:      snap.Synthetic,
		Width:          s.cfg.Width,
		Height:         s.cfg.Height,
		VolumeHeight:   s.cfg.VolumeHeight,
		OscHeight:      s.cfg.OscHeight,
		Toggles:        s.gateway.Toggles(snap.Symbol),
		ChartType:      s.chartType,
		Annotations:    s.gateway.ListDrawings(snap.Symbol),
		Alerts:         s.checker.Snapshot(snap.Symbol),
		Markers:        append([]model.TradeMarker(nil), s.markers...),
		ActiveTrades:   append([]model.TradeEvent(nil), s.activeTrades...),
		LastSettled:    s.lastSettled,
		Crosshair:      s.machine.Crosshair(),
		ToolActive:     s.machine.State() != interaction.Idle && s.machine.State() != interaction.Panning,
		ReplayActive:   replayActive,
		ReplayProgress: replayProgress,
		CompareSymbol:  s.compareSymbol,
		CompareCandles: cmpCandles,
		Memo:           s.memo,
		SeriesVersion:  snap.Version,
	}
	splitMode := s.compareMode == compare.ModeSplit
	splitSymbol := s.compareSymbol
	splitCandles := append([]model.Candle(nil), s.compareCandles...)
	s.mu.Unlock()

	frame := render.Build(in)

	if splitMode && len(splitCandles) > 0 {
		frame.Panes = append(frame.Panes, buildSplitPane(s.cfg, snap.Timeframe, splitSymbol, splitCandles))
	}

	if s.metrics != nil {
		s.metrics.FramesBuilt.Inc()
		s.metrics.FrameBuildDur.Observe(time.Since(start).Seconds())
	}
	return frame
}

// buildSplitPane renders the secondary symbol in an independent sibling
// pane with its own price scale.
func buildSplitPane(cfg Config, tf model.Timeframe, symbol string, candles []model.Candle) *render.Pane {
	win := tail(candles, viewport.BaseWindow)
	in := render.Inputs{
		Symbol:      symbol,
		Timeframe:   tf,
		Candles:     win,
		WindowStart: 0,
		WindowCount: len(win),
		Width:       cfg.Width,
		Height:      cfg.Height / 2,
		ChartType:   model.ChartCandles,
	}
	pane := render.Build(in).Pane("price")
	pane.Name = "split:" + symbol
	return pane
}

// geometry derives the pixel mapping input events are interpreted with.
// It shares the renderer's bounds derivation so a pixel y always maps to
// the same price the drawn axis shows.
func (s *Session) geometry(snap candlestore.Series, count int) viewport.Geometry {
	start, _ := s.vp.Window(len(snap.Candles))
	lo, hi := render.PriceBounds(render.Inputs{
		Candles:       snap.Candles,
		WindowStart:   start,
		WindowCount:   count,
		Toggles:       s.gateway.Toggles(snap.Symbol),
		Memo:          s.memo,
		SeriesVersion: snap.Version,
	})
	return viewport.ComputeGeometry(s.cfg.Width, s.cfg.Height, count, lo, hi)
}

// markDirty requests a redraw; concurrent requests coalesce into one.
func (s *Session) markDirty() {
	s.dirtyMu.Lock()
	if s.dirty && s.metrics != nil {
		s.metrics.FramesCoalesced.Inc()
	}
	s.dirty = true
	s.dirtyMu.Unlock()
}

func (s *Session) swapDirty() bool {
	s.dirtyMu.Lock()
	d := s.dirty
	s.dirty = false
	s.dirtyMu.Unlock()
	return d
}

func tail(candles []model.Candle, n int) []model.Candle {
	if len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}
