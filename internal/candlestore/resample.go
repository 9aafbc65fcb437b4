package candlestore

import "chartengine/internal/model"

// Resample folds a fine-grained candle series into a coarser timeframe by
// merging every candle into its target bucket: first open, max high, min
// low, last close, summed volume. Output is in strict time order.
//
// The history store keeps base-timeframe candles only; coarser frames for
// a timeframe switch are derived here instead of refetched.
func Resample(candles []model.Candle, target model.Timeframe) []model.Candle {
	if len(candles) == 0 {
		return nil
	}

	var out []model.Candle
	var cur *model.Candle

	for _, c := range candles {
		bucket := target.Bucket(c.TS)
		if cur == nil || !cur.TS.Equal(bucket) {
			out = append(out, model.Candle{
				Symbol: c.Symbol,
				TS:     bucket,
				Open:   c.Open,
				High:   c.High,
				Low:    c.Low,
				Close:  c.Close,
				Volume: c.Volume,
			})
			cur = &out[len(out)-1]
			continue
		}

		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	return out
}
