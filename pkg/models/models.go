// Package models holds the shared data types exchanged between the risk core
// and its collaborators (market-data feed, ledger, venue quoters).
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Tick is a single market-data sample for a symbol. Ticks are produced by the
// market-data collaborator and are never mutated by the core.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Position is an open position as recorded by the external ledger. Ledger
// amounts stay decimal; the analytics layer converts to float64 at its
// boundary.
type Position struct {
	Symbol     string          `json:"symbol"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
}

// AccountSnapshot is one consistent read of a user's ledger state. Risk
// evaluations work from a single snapshot, never from repeated queries
// mid-calculation.
type AccountSnapshot struct {
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Positions []Position      `json:"positions"`
}

// VenueQuote is a per-venue quote with available liquidity, consumed by the
// smart order router.
type VenueQuote struct {
	Venue     string  `json:"venue"`
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Liquidity float64 `json:"liquidity"`
}
