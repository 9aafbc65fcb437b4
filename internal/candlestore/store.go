// Package candlestore owns the ordered candle buffer for the active
// (symbol, timeframe) pair and merges live ticks into it.
//
// The buffer is exclusively mutated here (or by the replay engine, never
// both); readers only ever receive copied snapshots.
package candlestore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chartengine/internal/model"
)

const (
	// DefaultVisibleLimit is the historical window fetched for display.
	DefaultVisibleLimit = 100

	// DefaultBackingLimit is the larger window fetched for replay.
	DefaultBackingLimit = 500
)

// Source fetches historical candles from the backend API.
type Source interface {
	GetCandles(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error)
}

// Series is an immutable snapshot of the candle buffer.
type Series struct {
	Symbol    string
	Timeframe model.Timeframe
	Candles   []model.Candle
	Synthetic bool   // true when built from the fallback generator
	Version   uint64 // bumped on every mutation; drives memo invalidation
}

// Store holds the live candle buffer for one chart session.
type Store struct {
	source Source
	log    *slog.Logger

	symbol    string
	tf        model.Timeframe
	candles   []model.Candle
	backing   []model.Candle // larger window retained for replay
	synthetic bool
	version   uint64
	maxLen    int
}

// New creates a Store backed by the given historical source.
func New(source Source, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		source: source,
		log:    log,
		maxLen: DefaultVisibleLimit,
	}
}

// Load discards any existing buffer and fetches history for the pair.
// On fetch failure it falls back to synthetic candles seeded from the last
// known price so the chart stays renderable; the degraded state is flagged
// on every snapshot.
func (s *Store) Load(ctx context.Context, symbol string, tf model.Timeframe) error {
	lastPrice := s.lastKnownPrice()

	s.symbol = symbol
	s.tf = tf
	s.candles = nil
	s.backing = nil
	s.synthetic = false
	s.version++

	backing, err := s.source.GetCandles(ctx, symbol, tf, DefaultBackingLimit)
	if err == nil {
		err = validateSeries(backing)
	}
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled by a symbol/timeframe switch; the next Load owns the buffer.
			return ctx.Err()
		}
		s.log.Warn("historical fetch failed, degrading to synthetic candles",
			"symbol", symbol, "timeframe", tf.String(), "err", err)
		backing = Synthesize(symbol, tf, lastPrice, DefaultBackingLimit, time.Now())
		s.synthetic = true
	}

	s.backing = backing
	visible := backing
	if len(visible) > DefaultVisibleLimit {
		visible = visible[len(visible)-DefaultVisibleLimit:]
	}
	s.candles = append([]model.Candle(nil), visible...)
	s.version++
	return nil
}

// ApplyTick merges a live tick into the buffer: an in-bucket tick updates
// the last candle's close/high/low in place; a tick past the bucket rolls
// a new candle whose open is the previous close, dropping the oldest
// candle once the buffer is at capacity. Ticks for other symbols and
// ticks older than the current bucket are ignored.
func (s *Store) ApplyTick(t model.Tick) {
	if t.Symbol != s.symbol || len(s.candles) == 0 {
		return
	}

	last := &s.candles[len(s.candles)-1]
	if t.TS.Before(last.TS) {
		return // late tick from a previous bucket
	}

	if t.TS.Sub(last.TS) < s.tf.Duration() {
		last.Close = t.Price
		if t.Price > last.High {
			last.High = t.Price
		}
		if t.Price < last.Low {
			last.Low = t.Price
		}
		last.Volume += t.Qty
		s.version++
		return
	}

	next := model.Candle{
		Symbol: s.symbol,
		TS:     s.tf.Bucket(t.TS),
		Open:   last.Close,
		High:   maxf(last.Close, t.Price),
		Low:    minf(last.Close, t.Price),
		Close:  t.Price,
		Volume: t.Qty,
	}
	s.candles = append(s.candles, next)
	if len(s.candles) > s.maxLen {
		s.candles = s.candles[1:]
	}
	s.version++
}

// Snapshot returns an immutable copy of the visible buffer. The renderer
// never receives a reference into the mutable slice.
func (s *Store) Snapshot() Series {
	return Series{
		Symbol:    s.symbol,
		Timeframe: s.tf,
		Candles:   append([]model.Candle(nil), s.candles...),
		Synthetic: s.synthetic,
		Version:   s.version,
	}
}

// Backing returns a copy of the larger replay window.
func (s *Store) Backing() []model.Candle {
	return append([]model.Candle(nil), s.backing...)
}

// Symbol returns the active symbol.
func (s *Store) Symbol() string { return s.symbol }

// Timeframe returns the active timeframe.
func (s *Store) Timeframe() model.Timeframe { return s.tf }

// Version returns the current buffer version.
func (s *Store) Version() uint64 { return s.version }

// LastPrice returns the most recent close, or 0 for an empty buffer.
func (s *Store) LastPrice() float64 {
	if len(s.candles) == 0 {
		return 0
	}
	return s.candles[len(s.candles)-1].Close
}

func (s *Store) lastKnownPrice() float64 {
	if p := s.LastPrice(); p > 0 {
		return p
	}
	return 0
}

// validateSeries rejects fetched data that violates the candle invariants.
func validateSeries(candles []model.Candle) error {
	for i, c := range candles {
		if c.Low > minf(c.Open, c.Close) || c.High < maxf(c.Open, c.Close) {
			return fmt.Errorf("candle %d: OHLC invariant violated", i)
		}
		if i > 0 && !candles[i-1].TS.Before(c.TS) {
			return fmt.Errorf("candle %d: timestamps not strictly increasing", i)
		}
	}
	return nil
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
