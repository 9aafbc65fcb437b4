package model

import "time"

// TradeDirection is the direction of a placed trade.
type TradeDirection string

const (
	TradeUp   TradeDirection = "up"
	TradeDown TradeDirection = "down"
)

// TradeMarker denotes a trade's entry point on the chart. Markers are
// append-only: created at trade placement, never mutated.
type TradeMarker struct {
	ID        string         `json:"id"`
	TS        time.Time      `json:"ts"`
	Price     float64        `json:"price"`
	Direction TradeDirection `json:"direction"`
	Amount    float64        `json:"amount"`
}

// TradeIntent is a trade-placement request handed to the external
// order-execution collaborator. The engine produces these; it never
// settles them.
type TradeIntent struct {
	Symbol    string         `json:"symbol"`
	Direction TradeDirection `json:"direction"`
	Amount    float64        `json:"amount"`
	Duration  time.Duration  `json:"duration"`
}

// TradeEventKind enumerates trade lifecycle events the engine subscribes to.
type TradeEventKind string

const (
	TradePlaced  TradeEventKind = "placed"
	TradeSettled TradeEventKind = "settled"
)

// TradeEvent is a trade lifecycle event delivered over the external
// pub/sub channel.
type TradeEvent struct {
	Kind      TradeEventKind `json:"kind"`
	ID        string         `json:"id"`
	Symbol    string         `json:"symbol"`
	TS        time.Time      `json:"ts"`
	Price     float64        `json:"price"`
	Direction TradeDirection `json:"direction"`
	Amount    float64        `json:"amount"`
	Profit    float64        `json:"profit"` // settled events only
}
