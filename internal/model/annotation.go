package model

import (
	"fmt"
	"time"
)

// AnnotationKind enumerates the user-drawable annotation types.
type AnnotationKind string

const (
	AnnotationHorizontal AnnotationKind = "horizontal"
	AnnotationTrend      AnnotationKind = "trend"
	AnnotationAlert      AnnotationKind = "alert"
)

// AnnotationPoint is one endpoint of a trend line, addressed by candle
// index within the series and price.
type AnnotationPoint struct {
	CandleIndex int     `json:"candle_index"`
	Price       float64 `json:"price"`
}

// DrawingAnnotation is a user-drawn chart annotation owned by a symbol.
type DrawingAnnotation struct {
	ID     string           `json:"id"`
	Symbol string           `json:"symbol"`
	Kind   AnnotationKind   `json:"kind"`
	Price  float64          `json:"price"`
	End    *AnnotationPoint `json:"end,omitempty"` // second endpoint, trend lines only
	Start  *AnnotationPoint `json:"start,omitempty"`
	Color  string           `json:"color"`
}

// PriceAlert transitions once from untriggered to triggered when the live
// price crosses the threshold in the alert's direction. It never reverts.
type PriceAlert struct {
	ID        string         `json:"id"`
	Symbol    string         `json:"symbol"`
	Price     float64        `json:"price"`
	Direction AlertDirection `json:"direction"`
	Triggered bool           `json:"triggered"`
}

// AlertDirection is the crossing direction that triggers a price alert.
type AlertDirection string

const (
	AlertAbove AlertDirection = "above"
	AlertBelow AlertDirection = "below"
)

// NewID generates a locally unique ID for annotations, alerts and markers.
// Format: "{prefix}-{unixNano}" — lightweight, no UUID dependency.
func NewID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
