// Package model defines the core domain types shared across the market engine.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is the side of a binary event a share is staked on.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Valid reports whether o is one of the two known outcomes.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Direction is the side of an order.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Valid reports whether d is a known order direction.
func (d Direction) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	StatusInProgress  EventStatus = "IN_PROGRESS"
	StatusCancelled   EventStatus = "CANCELLED"
	StatusResolvedYes EventStatus = "RESOLVED_YES"
	StatusResolvedNo  EventStatus = "RESOLVED_NO"
)

// EntryKind is the taxonomy of ledger entries.
type EntryKind string

const (
	KindBuyYes  EntryKind = "BUY_YES"
	KindSellYes EntryKind = "SELL_YES"
	KindBuyNo   EntryKind = "BUY_NO"
	KindSellNo  EntryKind = "SELL_NO"
	KindRefund  EntryKind = "REFUND"
	KindPayout  EntryKind = "PAYOUT"
)

// EntryKindFor maps an order (direction, outcome) pair to its ledger kind.
func EntryKindFor(d Direction, o Outcome) (EntryKind, bool) {
	switch {
	case d == DirectionBuy && o == OutcomeYes:
		return KindBuyYes, true
	case d == DirectionBuy && o == OutcomeNo:
		return KindBuyNo, true
	case d == DirectionSell && o == OutcomeYes:
		return KindSellYes, true
	case d == DirectionSell && o == OutcomeNo:
		return KindSellNo, true
	}
	return "", false
}

// Quotes holds the four cached prices for an event on the 0..100 scale.
type Quotes struct {
	BuyYes  decimal.Decimal `json:"buy_yes_price" db:"buy_yes_price"`
	BuyNo   decimal.Decimal `json:"buy_no_price" db:"buy_no_price"`
	SellYes decimal.Decimal `json:"sell_yes_price" db:"sell_yes_price"`
	SellNo  decimal.Decimal `json:"sell_no_price" db:"sell_no_price"`
}

// For returns the quote for one (direction, outcome) pair. The second
// return value is false for unknown pairs.
func (q Quotes) For(d Direction, o Outcome) (decimal.Decimal, bool) {
	switch {
	case d == DirectionBuy && o == OutcomeYes:
		return q.BuyYes, true
	case d == DirectionBuy && o == OutcomeNo:
		return q.BuyNo, true
	case d == DirectionSell && o == OutcomeYes:
		return q.SellYes, true
	case d == DirectionSell && o == OutcomeNo:
		return q.SellNo, true
	}
	return decimal.Decimal{}, false
}

// Event is one binary prediction market instance. Share counts and cached
// quotes are mutated only by the order executor holding the event's lock;
// the cached quotes always equal the pricing function of the current counts.
type Event struct {
	ID          string          `json:"id" db:"id"`
	Title       string          `json:"title" db:"title"`
	Status      EventStatus     `json:"status" db:"status"`
	SharesYes   int64           `json:"shares_yes" db:"shares_yes"`
	SharesNo    int64           `json:"shares_no" db:"shares_no"`
	B           decimal.Decimal `json:"b" db:"b"` // liquidity parameter, fixed at creation
	Quotes      Quotes          `json:"quotes"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	LastTradeAt time.Time       `json:"last_trade_at" db:"last_trade_at"`
}

// SharesFor returns the outstanding share count for one outcome.
func (e *Event) SharesFor(o Outcome) int64 {
	if o == OutcomeYes {
		return e.SharesYes
	}
	return e.SharesNo
}

// AddShares adjusts the outstanding share count for one outcome.
func (e *Event) AddShares(o Outcome, delta int64) {
	if o == OutcomeYes {
		e.SharesYes += delta
	} else {
		e.SharesNo += delta
	}
}

// Position is one user's running holdings for one event/outcome pair.
// Held never goes negative; the average prices are quantity-weighted
// means over all fills.
type Position struct {
	ID            string          `json:"id" db:"id"`
	UserID        string          `json:"user_id" db:"user_id"`
	EventID       string          `json:"event_id" db:"event_id"`
	Outcome       Outcome         `json:"outcome" db:"outcome"`
	Held          int64           `json:"held" db:"held"`
	Bought        int64           `json:"bought" db:"bought"`
	Sold          int64           `json:"sold" db:"sold"`
	AvgBuyPrice   decimal.Decimal `json:"avg_buy_price" db:"avg_buy_price"`
	AvgSellPrice  decimal.Decimal `json:"avg_sell_price" db:"avg_sell_price"`
	RewardedTotal decimal.Decimal `json:"rewarded_total" db:"rewarded_total"`
}

// Account holds a user's cash balance. Only the cash field is owned by the
// engine; identity and profile live elsewhere.
type Account struct {
	UserID string          `json:"user_id" db:"user_id"`
	Cash   decimal.Decimal `json:"cash" db:"cash"`
}

// LedgerEntry is an immutable record of one executed trade or settlement
// credit. Once created, these are never modified or deleted.
type LedgerEntry struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	EventID   string          `json:"event_id" db:"event_id"`
	Kind      EntryKind       `json:"kind" db:"kind"`
	Quantity  int64           `json:"quantity" db:"quantity"`
	Price     decimal.Decimal `json:"price" db:"price"` // unit price
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
