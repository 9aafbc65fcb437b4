// Package history stores closed candles in SQLite and serves them back
// as chart history. It is the candle store's primary Source.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"chartengine/internal/candlestore"
	"chartengine/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// DB wraps a SQLite database holding per-timeframe candles.
type DB struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (and, if needed, initializes) the candle database. WAL mode
// keeps reads from blocking the writer goroutine.
func Open(path string, log *slog.Logger) (*DB, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// Single writer; a couple of read connections for history queries.
	db.SetMaxOpenConns(3)
	db.SetMaxIdleConns(3)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Info("candle database opened", "path", path)
	return &DB{db: db, log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol  TEXT    NOT NULL,
			tf      INTEGER NOT NULL,
			ts      INTEGER NOT NULL,
			open    REAL    NOT NULL,
			high    REAL    NOT NULL,
			low     REAL    NOT NULL,
			close   REAL    NOT NULL,
			volume  REAL,
			PRIMARY KEY (symbol, tf, ts)
		);
		CREATE INDEX IF NOT EXISTS idx_candles_lookup ON candles (symbol, tf, ts DESC);
	`)
	return err
}

// GetCandles returns the newest limit candles for the pair, oldest first.
// When the requested timeframe has no stored rows, a finer stored
// timeframe is resampled up, so recording only the base timeframe still
// serves every coarser chart. Implements the chart store's Source.
func (d *DB) GetCandles(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	candles, err := d.queryCandles(ctx, symbol, tfSeconds(tf), limit)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		candles, err = d.resampleFiner(ctx, symbol, tf, limit)
		if err != nil {
			return nil, err
		}
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no history for %s %s", symbol, tf)
	}
	return candles, nil
}

// queryCandles reads stored rows for one exact timeframe, oldest first.
func (d *DB) queryCandles(ctx context.Context, symbol string, tfSecs int64, limit int) ([]model.Candle, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND tf = ?
		ORDER BY ts DESC
		LIMIT ?
	`, symbol, tfSecs, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var tsUnix int64
		var volume sql.NullFloat64
		if err := rows.Scan(&tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candle: %w", err)
		}
		c.Symbol = symbol
		c.TS = time.Unix(tsUnix, 0).UTC()
		c.Volume = volume.Float64
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returned newest-first; the chart wants chronological order.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// resampleFiner derives target-timeframe candles from the finest stored
// timeframe that divides the target evenly. Returns nil when no such
// timeframe exists for the symbol.
func (d *DB) resampleFiner(ctx context.Context, symbol string, target model.Timeframe, limit int) ([]model.Candle, error) {
	targetSecs := tfSeconds(target)
	var finest sql.NullInt64
	err := d.db.QueryRowContext(ctx,
		`SELECT MIN(tf) FROM candles WHERE symbol = ? AND tf < ? AND ? % tf = 0`,
		symbol, targetSecs, targetSecs,
	).Scan(&finest)
	if err != nil {
		return nil, fmt.Errorf("sqlite find source tf: %w", err)
	}
	if !finest.Valid {
		return nil, nil
	}

	// Fetch one bucket beyond the limit so a partially covered oldest
	// bucket can be trimmed instead of shown with a fabricated open.
	ratio := int(targetSecs / finest.Int64)
	fine, err := d.queryCandles(ctx, symbol, finest.Int64, ratio*(limit+1))
	if err != nil {
		return nil, err
	}
	out := candlestore.Resample(fine, target)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func tfSeconds(tf model.Timeframe) int64 {
	return int64(time.Duration(tf).Seconds())
}

// LastTimestamp returns the newest stored candle timestamp for the pair,
// or zero time when none exist.
func (d *DB) LastTimestamp(ctx context.Context, symbol string, tf model.Timeframe) (time.Time, error) {
	var ts sql.NullInt64
	err := d.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND tf = ?`,
		symbol, int64(time.Duration(tf).Seconds()),
	).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}

// WriteCandles upserts a batch of candles in one transaction.
func (d *DB) WriteCandles(tf model.Timeframe, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	tfSec := int64(time.Duration(tf).Seconds())
	for _, c := range candles {
		if _, err := stmt.Exec(c.Symbol, tfSec, c.TS.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Run drains candleCh into batched transactions until ctx is cancelled
// or the channel closes. Partial batches flush on a short timer so a
// quiet feed still lands on disk promptly.
func (d *DB) Run(ctx context.Context, tf model.Timeframe, candleCh <-chan model.Candle) {
	batch := make([]model.Candle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := d.WriteCandles(tf, batch); err != nil {
			d.log.Error("candle batch insert failed", "err", err)
		} else {
			d.log.Debug("candle batch committed", "count", len(batch), "took", time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case c, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, c)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }
