package model

import (
	"encoding/json"
	"time"
)

// Candle represents one OHLCV bucket for a (symbol, timeframe) pair.
// Invariants maintained by the candle store: Low <= min(Open, Close),
// High >= max(Open, Close), and TS strictly increasing within a series.
type Candle struct {
	Symbol string    `json:"symbol"`
	TS     time.Time `json:"ts"` // bucket start time (UTC, timeframe-aligned)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Bullish reports whether the candle closed at or above its open.
func (c *Candle) Bullish() bool {
	return c.Close >= c.Open
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Closes extracts the closing prices of a candle series.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}
