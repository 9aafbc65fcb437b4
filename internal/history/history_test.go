package history

import (
	"context"
	"testing"
	"time"

	"chartengine/internal/model"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	d, err := Open(t.TempDir()+"/candles.db", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func mkCandles(symbol string, n int, start time.Time, step time.Duration) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		p := 100 + float64(i)
		out[i] = model.Candle{
			Symbol: symbol,
			TS:     start.Add(time.Duration(i) * step),
			Open:   p, High: p + 2, Low: p - 2, Close: p + 1,
			Volume: float64(i),
		}
	}
	return out
}

func TestCoarserTimeframeResampledFromBase(t *testing.T) {
	d := openTest(t)
	base := model.Timeframe(time.Minute)
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	// Only 1m rows are stored; a 5m request must still be served.
	if err := d.WriteCandles(base, mkCandles("BTCUSD", 10, start, time.Minute)); err != nil {
		t.Fatalf("write: %v", err)
	}

	tf5 := model.Timeframe(5 * time.Minute)
	got, err := d.GetCandles(context.Background(), "BTCUSD", tf5, 10)
	if err != nil {
		t.Fatalf("get 5m: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// First 5m bucket folds minutes 0..4: open of the first, close of the
	// fifth, extrema across all five, summed volume.
	c := got[0]
	if !c.TS.Equal(start) {
		t.Fatalf("bucket TS = %v, want %v", c.TS, start)
	}
	if c.Open != 100 || c.Close != 105 || c.High != 106 || c.Low != 98 {
		t.Fatalf("resampled OHLC = %+v", c)
	}
	if c.Volume != 0+1+2+3+4 {
		t.Fatalf("resampled volume = %v", c.Volume)
	}
}

func TestResampleTrimsPartialOldestBucket(t *testing.T) {
	d := openTest(t)
	base := model.Timeframe(time.Minute)
	// Start mid-bucket so the oldest 5m bucket is only partially covered.
	start := time.Date(2024, 3, 1, 9, 3, 0, 0, time.UTC)

	if err := d.WriteCandles(base, mkCandles("BTCUSD", 12, start, time.Minute)); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := d.GetCandles(context.Background(), "BTCUSD", model.Timeframe(5*time.Minute), 2)
	if err != nil {
		t.Fatalf("get 5m: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// 12 one-minute rows from 09:03 span buckets 09:00, 09:05, 09:10;
	// limit 2 keeps the newest two full-coverage buckets.
	if !got[0].TS.Equal(time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC)) {
		t.Fatalf("oldest kept bucket = %v", got[0].TS)
	}
}

func TestRoundTripChronological(t *testing.T) {
	d := openTest(t)
	tf := model.Timeframe(time.Minute)
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := d.WriteCandles(tf, mkCandles("BTCUSD", 10, start, time.Minute)); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := d.GetCandles(context.Background(), "BTCUSD", tf, 5)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	// Newest 5, oldest first.
	if !got[0].TS.Equal(start.Add(5 * time.Minute)) {
		t.Fatalf("first TS = %v", got[0].TS)
	}
	for i := 1; i < len(got); i++ {
		if !got[i].TS.After(got[i-1].TS) {
			t.Fatalf("not chronological at %d: %v <= %v", i, got[i].TS, got[i-1].TS)
		}
	}
	if got[4].Close != 110 {
		t.Fatalf("newest close = %v, want 110", got[4].Close)
	}
}

func TestTimeframesIsolated(t *testing.T) {
	d := openTest(t)
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := d.WriteCandles(model.Timeframe(time.Minute), mkCandles("BTCUSD", 3, start, time.Minute)); err != nil {
		t.Fatalf("write 1m: %v", err)
	}
	if err := d.WriteCandles(model.Timeframe(5*time.Minute), mkCandles("BTCUSD", 2, start, 5*time.Minute)); err != nil {
		t.Fatalf("write 5m: %v", err)
	}

	got, err := d.GetCandles(context.Background(), "BTCUSD", model.Timeframe(5*time.Minute), 100)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("5m candles = %d, want 2", len(got))
	}
}

func TestEmptyHistoryErrors(t *testing.T) {
	d := openTest(t)
	if _, err := d.GetCandles(context.Background(), "NOSUCH", model.Timeframe(time.Minute), 10); err == nil {
		t.Fatal("expected error for empty history")
	}
}

func TestUpsertReplacesBucket(t *testing.T) {
	d := openTest(t)
	tf := model.Timeframe(time.Minute)
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	c := model.Candle{Symbol: "BTCUSD", TS: ts, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1}
	if err := d.WriteCandles(tf, []model.Candle{c}); err != nil {
		t.Fatalf("write: %v", err)
	}
	c.Close = 102
	c.High = 102
	if err := d.WriteCandles(tf, []model.Candle{c}); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	got, err := d.GetCandles(context.Background(), "BTCUSD", tf, 10)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 || got[0].Close != 102 {
		t.Fatalf("got = %+v, want single candle with close 102", got)
	}
}

func TestLastTimestamp(t *testing.T) {
	d := openTest(t)
	tf := model.Timeframe(time.Minute)
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	if ts, err := d.LastTimestamp(context.Background(), "BTCUSD", tf); err != nil || !ts.IsZero() {
		t.Fatalf("empty table: ts=%v err=%v", ts, err)
	}

	if err := d.WriteCandles(tf, mkCandles("BTCUSD", 3, start, time.Minute)); err != nil {
		t.Fatalf("write: %v", err)
	}
	ts, err := d.LastTimestamp(context.Background(), "BTCUSD", tf)
	if err != nil {
		t.Fatalf("last ts: %v", err)
	}
	if !ts.Equal(start.Add(2 * time.Minute)) {
		t.Fatalf("last ts = %v", ts)
	}
}

func TestRunBatchesFromChannel(t *testing.T) {
	d := openTest(t)
	tf := model.Timeframe(time.Minute)
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	ch := make(chan model.Candle)
	done := make(chan struct{})
	go func() {
		d.Run(context.Background(), tf, ch)
		close(done)
	}()
	for _, c := range mkCandles("BTCUSD", 7, start, time.Minute) {
		ch <- c
	}
	close(ch)
	<-done

	got, err := d.GetCandles(context.Background(), "BTCUSD", tf, 100)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("persisted = %d, want 7", len(got))
	}
}
