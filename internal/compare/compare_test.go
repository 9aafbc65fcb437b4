package compare

import (
	"math"
	"testing"
	"time"

	"chartengine/internal/model"
)

func secondaries(closes ...float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = model.Candle{Symbol: "ETHUSD", TS: base.Add(time.Duration(i) * time.Minute), Open: c, High: c, Low: c, Close: c}
	}
	return out
}

func TestNormalize_MapsMinMaxOntoPrimaryRange(t *testing.T) {
	ov := Normalize(secondaries(2000, 2500, 3000), "ETHUSD", 67000, 68000)

	if ov.Symbol != "ETHUSD" {
		t.Errorf("symbol label = %q", ov.Symbol)
	}
	if math.Abs(ov.Prices[0]-67000) > 1e-9 {
		t.Errorf("min maps to %v, want primary min", ov.Prices[0])
	}
	if math.Abs(ov.Prices[2]-68000) > 1e-9 {
		t.Errorf("max maps to %v, want primary max", ov.Prices[2])
	}
	if math.Abs(ov.Prices[1]-67500) > 1e-9 {
		t.Errorf("midpoint maps to %v, want 67500", ov.Prices[1])
	}
}

func TestNormalize_FlatSeriesPinsToMidrange(t *testing.T) {
	ov := Normalize(secondaries(2500, 2500, 2500), "ETHUSD", 100, 200)
	for i, p := range ov.Prices {
		if math.Abs(p-150) > 1e-9 {
			t.Errorf("price[%d] = %v, want 150", i, p)
		}
	}
}

func TestNormalize_EmptySeries(t *testing.T) {
	ov := Normalize(nil, "ETHUSD", 100, 200)
	if len(ov.Prices) != 0 {
		t.Errorf("expected empty overlay, got %d prices", len(ov.Prices))
	}
}

func TestNormalize_ShiftsAsWindowScrolls(t *testing.T) {
	// The normalization uses only the visible window's min/max, so the
	// same candle can map to different pixels in different windows.
	full := secondaries(2000, 2500, 3000, 4000)
	a := Normalize(full[:3], "ETHUSD", 0, 100)
	b := Normalize(full[1:], "ETHUSD", 0, 100)

	// Close 2500: index 1 in window a, index 0 in window b.
	if a.Prices[1] == b.Prices[0] {
		t.Error("expected per-window normalization to differ between windows")
	}
}
