package engine

import (
	"errors"

	"github.com/outcomex/market-engine/internal/model"
)

var (
	// ErrNonexistentEvent is returned when the requested event does not exist.
	ErrNonexistentEvent = errors.New("engine: requested event does not exist")

	// ErrEventNotActive is returned when the event is no longer in progress.
	ErrEventNotActive = errors.New("engine: event is no longer in progress")

	// ErrUnknownOutcome is returned for an outcome other than YES or NO.
	ErrUnknownOutcome = errors.New("engine: unknown outcome")

	// ErrUnknownDirection is returned for a direction other than BUY or SELL.
	ErrUnknownDirection = errors.New("engine: unknown direction")

	// ErrInvalidQuantity is returned for a non-positive order quantity.
	ErrInvalidQuantity = errors.New("engine: quantity must be positive")

	// ErrInvalidAmount is returned for a non-positive deposit amount.
	ErrInvalidAmount = errors.New("engine: amount must be positive")

	// ErrInsufficientFunds is returned when a buy exceeds the user's cash.
	ErrInsufficientFunds = errors.New("engine: not enough cash")

	// ErrInsufficientShares is returned when a sell exceeds the user's held
	// shares, or would drive the event's outstanding count below zero.
	ErrInsufficientShares = errors.New("engine: not enough shares")

	// ErrBusy is returned when a lock could not be acquired within the
	// configured wait. Callers may retry.
	ErrBusy = errors.New("engine: resource busy, retry")
)

// PriceMismatchError is returned when the client's expected price no longer
// matches the current quote, typically because an interleaved trade moved
// the price. It carries the event's fresh quotes so the caller can re-quote
// and resubmit.
type PriceMismatchError struct {
	Quotes model.Quotes
}

func (e *PriceMismatchError) Error() string {
	return "engine: price has changed"
}
