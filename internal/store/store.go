// Package store defines the persistence interface for the market engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/outcomex/market-engine/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("store: not found")

// ChangeSet is one atomic unit of work produced by the order executor:
// the updated event together with every position, account, and ledger
// entry touched by a trade or settlement. Apply commits all of it or
// none of it.
type ChangeSet struct {
	Event     *model.Event
	Positions []*model.Position
	Accounts  []*model.Account
	Entries   []*model.LedgerEntry
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. Mutual exclusion between
// concurrent units of work is the executor's job, not the store's; the
// store only guarantees that one Apply is all-or-nothing.
type Store interface {
	// --- Event operations ---

	// CreateEvent persists a new event with its initial quotes.
	CreateEvent(ctx context.Context, event *model.Event) error

	// GetEvent retrieves an event by its ID.
	GetEvent(ctx context.Context, id string) (*model.Event, error)

	// ListEvents returns all events.
	ListEvents(ctx context.Context) ([]model.Event, error)

	// --- Accounts and positions ---

	// GetOrCreateAccount returns the user's cash account, creating an
	// empty one on first touch.
	GetOrCreateAccount(ctx context.Context, userID string) (*model.Account, error)

	// GetOrCreatePosition returns the user's position for one
	// event/outcome pair, creating a zeroed one on first touch.
	GetOrCreatePosition(ctx context.Context, userID, eventID string, outcome model.Outcome) (*model.Position, error)

	// GetUserPositions returns all positions held by a user.
	GetUserPositions(ctx context.Context, userID string) ([]model.Position, error)

	// GetEventPositions returns all positions in one event.
	GetEventPositions(ctx context.Context, eventID string) ([]model.Position, error)

	// --- Immutable ledger ---

	// GetLedgerEntriesByUser returns all entries for a user in creation order.
	GetLedgerEntriesByUser(ctx context.Context, userID string) ([]model.LedgerEntry, error)

	// GetLedgerEntriesByEvent returns all entries for an event in creation order.
	GetLedgerEntriesByEvent(ctx context.Context, eventID string) ([]model.LedgerEntry, error)

	// --- Atomic commit ---

	// Apply commits a change set atomically.
	Apply(ctx context.Context, cs *ChangeSet) error
}
