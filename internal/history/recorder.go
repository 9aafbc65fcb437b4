package history

import (
	"context"
	"log/slog"

	"chartengine/internal/model"
)

// Recorder folds live ticks into base-timeframe candles and persists
// each candle once its bucket closes. Coarser timeframes are served by
// resampling at read time, so only the base timeframe is stored live.
type Recorder struct {
	db  *DB
	tf  model.Timeframe
	log *slog.Logger

	open map[string]*model.Candle // per symbol, current bucket
	out  chan model.Candle
}

// NewRecorder creates a Recorder writing tf candles into db.
func NewRecorder(db *DB, tf model.Timeframe, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		db:   db,
		tf:   tf,
		log:  log,
		open: make(map[string]*model.Candle),
		out:  make(chan model.Candle, 256),
	}
}

// Run consumes ticks until ctx is cancelled or the channel closes,
// flushing any open candles on the way out.
func (r *Recorder) Run(ctx context.Context, ticks <-chan model.Tick) {
	writerDone := make(chan struct{})
	go func() {
		r.db.Run(ctx, r.tf, r.out)
		close(writerDone)
	}()

	defer func() {
		for _, c := range r.open {
			r.out <- *c
		}
		close(r.out)
		<-writerDone
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ticks:
			if !ok {
				return
			}
			r.apply(t)
		}
	}
}

// apply merges one tick. A tick past the current bucket closes it: the
// finished candle goes to the writer and a new one opens at the tick's
// bucket with open = previous close.
func (r *Recorder) apply(t model.Tick) {
	bucket := r.tf.Bucket(t.TS)

	cur, ok := r.open[t.Symbol]
	if !ok {
		r.open[t.Symbol] = &model.Candle{
			Symbol: t.Symbol, TS: bucket,
			Open: t.Price, High: t.Price, Low: t.Price, Close: t.Price,
			Volume: t.Qty,
		}
		return
	}

	if bucket.After(cur.TS) {
		r.out <- *cur
		// The gap between the carried-over open and the first tick must
		// stay inside the high/low range or readers reject the candle.
		hi, lo := cur.Close, cur.Close
		if t.Price > hi {
			hi = t.Price
		}
		if t.Price < lo {
			lo = t.Price
		}
		r.open[t.Symbol] = &model.Candle{
			Symbol: t.Symbol, TS: bucket,
			Open: cur.Close, High: hi, Low: lo, Close: t.Price,
			Volume: t.Qty,
		}
		return
	}
	if bucket.Before(cur.TS) {
		// Late tick from a closed bucket; too late to amend.
		return
	}

	cur.Close = t.Price
	if t.Price > cur.High {
		cur.High = t.Price
	}
	if t.Price < cur.Low {
		cur.Low = t.Price
	}
	cur.Volume += t.Qty
}
