package indicator

import "fmt"

// Memo caches indicator outputs per series version. The render pipeline
// rebuilds frames far more often than the candle series changes, so
// recomputing every indicator per frame would be wasted work.
//
// A version bump (any candle append, shift or in-place tick update)
// invalidates the whole cache. Single-goroutine use only — the session
// owns one Memo per chart.
type Memo struct {
	version uint64
	series  map[string][]float64
	bands   map[string]Bands
}

// NewMemo creates an empty memo cache.
func NewMemo() *Memo {
	return &Memo{
		series: make(map[string][]float64),
		bands:  make(map[string]Bands),
	}
}

// Invalidate drops all cached results for a new series version.
func (m *Memo) Invalidate(version uint64) {
	if version == m.version {
		return
	}
	m.version = version
	m.series = make(map[string][]float64)
	m.bands = make(map[string]Bands)
}

// SMA returns the cached SMA for (closes, period), computing it on miss.
func (m *Memo) SMA(closes []float64, period int) []float64 {
	key := fmt.Sprintf("sma:%d", period)
	if v, ok := m.series[key]; ok {
		return v
	}
	v := SMA(closes, period)
	m.series[key] = v
	return v
}

// EMA returns the cached EMA for (closes, period).
func (m *Memo) EMA(closes []float64, period int) []float64 {
	key := fmt.Sprintf("ema:%d", period)
	if v, ok := m.series[key]; ok {
		return v
	}
	v := EMA(closes, period)
	m.series[key] = v
	return v
}

// RSI returns the cached RSI for (closes, period).
func (m *Memo) RSI(closes []float64, period int) []float64 {
	key := fmt.Sprintf("rsi:%d", period)
	if v, ok := m.series[key]; ok {
		return v
	}
	v := RSI(closes, period)
	m.series[key] = v
	return v
}

// BollingerBands returns the cached bands for (closes, period, multiplier).
func (m *Memo) BollingerBands(closes []float64, period int, multiplier float64) Bands {
	key := fmt.Sprintf("bb:%d:%g", period, multiplier)
	if v, ok := m.bands[key]; ok {
		return v
	}
	v := BollingerBands(closes, period, multiplier)
	m.bands[key] = v
	return v
}
