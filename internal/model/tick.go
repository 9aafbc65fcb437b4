package model

import "time"

// Tick represents a single market data tick from the live price feed.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"` // last traded price
	Qty    float64   `json:"qty"`   // last traded quantity
	TS     time.Time `json:"ts"`    // UTC timestamp
}
