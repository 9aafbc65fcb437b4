package candlestore

import (
	"math"
	"time"

	"chartengine/internal/model"
)

// Synthesize builds a deterministic fallback candle series seeded from the
// last known price. Used when the historical fetch fails so the chart
// never renders a blank pane. The series looks plausible but is clearly
// flagged Synthetic on its snapshot — it is a documented degraded mode,
// not data presented as real.
func Synthesize(symbol string, tf model.Timeframe, seedPrice float64, count int, now time.Time) []model.Candle {
	if seedPrice <= 0 {
		seedPrice = 100
	}
	if count <= 0 {
		return nil
	}

	end := tf.Bucket(now)
	candles := make([]model.Candle, count)
	price := seedPrice

	// Walk backwards from the seed so the newest candle closes at the last
	// known price, then reverse into chronological order.
	for i := count - 1; i >= 0; i-- {
		ts := end.Add(-time.Duration(count-1-i) * tf.Duration())
		// Deterministic pseudo-wave from the bucket timestamp: no RNG, so
		// repeated fallbacks for the same window render identically.
		phase := float64(ts.Unix()/int64(tf.Duration().Seconds())) * 0.7
		drift := math.Sin(phase)*0.004 + math.Sin(phase*0.31)*0.002

		closeP := price
		openP := price / (1 + drift)
		high := maxf(openP, closeP) * 1.0015
		low := minf(openP, closeP) * 0.9985

		candles[count-1-i] = model.Candle{
			Symbol: symbol,
			TS:     ts,
			Open:   openP,
			High:   high,
			Low:    low,
			Close:  closeP,
			Volume: 10 + math.Abs(math.Sin(phase*1.7))*90,
		}
		price = openP
	}

	// Walk produced newest-first offsets; restore strict time order.
	for l, r := 0, len(candles)-1; l < r; l, r = l+1, r-1 {
		candles[l], candles[r] = candles[r], candles[l]
	}
	return candles
}
