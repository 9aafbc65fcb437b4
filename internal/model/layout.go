package model

// IndicatorToggleSet maps indicator name (e.g. "sma7", "ema25", "rsi",
// "bollinger") to its enabled state. Persisted per user, loaded once per
// symbol session.
type IndicatorToggleSet map[string]bool

// Clone returns an independent copy of the toggle set.
func (s IndicatorToggleSet) Clone() IndicatorToggleSet {
	cp := make(IndicatorToggleSet, len(s))
	for k, v := range s {
		cp[k] = v
	}
	return cp
}

// ChartType selects the primary series rendering style.
type ChartType string

const (
	ChartCandles ChartType = "candles"
	ChartLine    ChartType = "line"
)

// LayoutSettings holds the view configuration captured by a saved layout.
type LayoutSettings struct {
	Toggles   IndicatorToggleSet `json:"toggles"`
	ChartType ChartType          `json:"chart_type"`
}

// ChartLayout is a saved chart configuration. At most one layout per user
// is IsDefault; uniqueness is enforced by the caller, not the engine.
type ChartLayout struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Symbol    string         `json:"symbol"`
	Timeframe string         `json:"timeframe"`
	Settings  LayoutSettings `json:"settings"`
	IsDefault bool           `json:"is_default"`
}
