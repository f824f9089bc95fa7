// Package engine executes orders against the market maker: validation,
// locking, price-agreement check, mutation of the position, cash balance
// and event share counts, and the ledger append, as one atomic unit per
// order. Orders on the same event are fully serialized; orders on
// different events proceed concurrently.
//
// All monetary values use shopspring/decimal, never float64.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/outcomex/market-engine/internal/metrics"
	"github.com/outcomex/market-engine/internal/model"
	"github.com/outcomex/market-engine/internal/pricing"
	"github.com/outcomex/market-engine/internal/publish"
	"github.com/outcomex/market-engine/internal/store"
)

// DefaultLockWait bounds how long an order waits for a contended resource
// before failing with ErrBusy.
const DefaultLockWait = 5 * time.Second

// DefaultLiquidity is the liquidity parameter used when event creation
// does not specify one.
var DefaultLiquidity = decimal.NewFromInt(5)

// Executor orchestrates order execution end-to-end. Mutual exclusion is
// per contended resource set: a lock table keyed by event, position, and
// account serializes conflicting orders while unrelated ones run in
// parallel. For horizontal scaling, replace the lock table with row-level
// database locks.
type Executor struct {
	store     store.Store
	locks     *lockTable
	lockWait  time.Duration
	publisher publish.Publisher // optional, best-effort
}

// Option configures an Executor.
type Option func(*Executor)

// WithLockWait overrides the bounded lock-acquisition wait.
func WithLockWait(d time.Duration) Option {
	return func(x *Executor) { x.lockWait = d }
}

// WithPublisher attaches a post-commit quote publisher.
func WithPublisher(p publish.Publisher) Option {
	return func(x *Executor) { x.publisher = p }
}

// NewExecutor creates an order executor backed by the given store.
func NewExecutor(st store.Store, opts ...Option) *Executor {
	x := &Executor{
		store:    st,
		locks:    newLockTable(),
		lockWait: DefaultLockWait,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// OrderRequest describes one buy-or-sell order. Quantity defaults to 1
// when zero.
type OrderRequest struct {
	UserID        string          `json:"user_id"`
	EventID       string          `json:"event_id"`
	Outcome       model.Outcome   `json:"outcome"`
	Direction     model.Direction `json:"direction"`
	ExpectedPrice decimal.Decimal `json:"expected_price"`
	Quantity      int64           `json:"quantity"`
}

// OrderResult is the state snapshot returned from a committed order.
type OrderResult struct {
	Event    *model.Event       `json:"event"`
	Position *model.Position    `json:"position"`
	Account  *model.Account     `json:"account"`
	Entry    *model.LedgerEntry `json:"entry"`
}

// CreateEvent creates a new market with zero outstanding shares and the
// initial symmetric quotes. An omitted (zero) b falls back to the default;
// a negative b is rejected.
func (x *Executor) CreateEvent(ctx context.Context, title string, b decimal.Decimal) (*model.Event, error) {
	if b.IsZero() {
		b = DefaultLiquidity
	}
	mm, err := pricing.NewMarketMaker(b)
	if err != nil {
		return nil, err
	}

	event := &model.Event{
		ID:        uuid.New().String(),
		Title:     title,
		Status:    model.StatusInProgress,
		B:         b,
		Quotes:    mm.Quotes(0, 0),
		CreatedAt: time.Now().UTC(),
	}
	if err := x.store.CreateEvent(ctx, event); err != nil {
		return nil, err
	}

	metrics.ActiveEvents.Inc()
	slog.Info("event created", "id", event.ID, "title", title, "b", b.String())
	return event, nil
}

// GetQuotes returns the event's cached quotes: a consistent snapshot
// read, no locking. Two reads without an intervening order return
// identical values.
func (x *Executor) GetQuotes(ctx context.Context, eventID string) (model.Quotes, error) {
	event, err := x.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Quotes{}, ErrNonexistentEvent
		}
		return model.Quotes{}, err
	}
	return event.Quotes, nil
}

// Deposit credits a user's cash balance. Used by the deposit surface; the
// same account lock serializes it against in-flight orders.
func (x *Executor) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*model.Account, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	release, err := x.locks.acquire(ctx, accountLockKey(userID), x.lockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	account, err := x.store.GetOrCreateAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	account.Cash = account.Cash.Add(amount)

	if err := x.store.Apply(ctx, &store.ChangeSet{Accounts: []*model.Account{account}}); err != nil {
		return nil, err
	}
	return account, nil
}

// PlaceOrder executes one order as an atomic unit of work.
//
// Locking order is fixed (event, then position, then account) on both
// buy and sell paths, which rules out deadlock between two orders on the
// same event. No failure after lock acquisition leaves partial state:
// every validation happens before Apply, and Apply is all-or-nothing.
func (x *Executor) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	start := time.Now()

	qty := req.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return nil, x.reject(req, ErrInvalidQuantity)
	}
	if !req.Direction.Valid() {
		return nil, x.reject(req, ErrUnknownDirection)
	}

	// Lock 1: event. The event lock is the serialization point for all
	// orders against this market.
	releaseEvent, err := x.locks.acquire(ctx, eventLockKey(req.EventID), x.lockWait)
	if err != nil {
		return nil, x.reject(req, err)
	}
	defer releaseEvent()

	event, err := x.store.GetEvent(ctx, req.EventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, x.reject(req, ErrNonexistentEvent)
		}
		return nil, err
	}
	if event.Status != model.StatusInProgress {
		return nil, x.reject(req, ErrEventNotActive)
	}
	if !req.Outcome.Valid() {
		return nil, x.reject(req, ErrUnknownOutcome)
	}

	// Locks 2 and 3: position, then account.
	releasePos, err := x.locks.acquire(ctx,
		positionLockKey(req.UserID, req.EventID, string(req.Outcome)), x.lockWait)
	if err != nil {
		return nil, x.reject(req, err)
	}
	defer releasePos()

	releaseAcct, err := x.locks.acquire(ctx, accountLockKey(req.UserID), x.lockWait)
	if err != nil {
		return nil, x.reject(req, err)
	}
	defer releaseAcct()

	position, err := x.store.GetOrCreatePosition(ctx, req.UserID, req.EventID, req.Outcome)
	if err != nil {
		return nil, err
	}
	account, err := x.store.GetOrCreateAccount(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	mm, err := pricing.NewMarketMaker(event.B)
	if err != nil {
		return nil, fmt.Errorf("engine: invalid event configuration: %w", err)
	}

	// Price-agreement check: recompute the quote from the current share
	// counts and compare after rounding. A stale client quote caused by
	// an interleaved trade fails here, carrying the fresh quotes so the
	// caller can re-quote and resubmit.
	quotes := mm.Quotes(event.SharesYes, event.SharesNo)
	price, _ := quotes.For(req.Direction, req.Outcome)
	if !pricing.RoundPrice(req.ExpectedPrice).Equal(price) {
		return nil, x.reject(req, &PriceMismatchError{Quotes: quotes})
	}

	total := price.Mul(decimal.NewFromInt(qty))
	now := time.Now().UTC()

	switch req.Direction {
	case model.DirectionBuy:
		if account.Cash.LessThan(total) {
			return nil, x.reject(req, ErrInsufficientFunds)
		}
		applyBuy(position, qty, total)
		account.Cash = account.Cash.Sub(total)
		event.AddShares(req.Outcome, qty)

	case model.DirectionSell:
		if position.Held < qty {
			return nil, x.reject(req, ErrInsufficientShares)
		}
		// The outstanding count never goes below zero: a sell that would
		// drive it negative is an invariant violation, rejected rather
		// than clamped.
		if event.SharesFor(req.Outcome) < qty {
			return nil, x.reject(req, ErrInsufficientShares)
		}
		applySell(position, qty, total)
		account.Cash = account.Cash.Add(total)
		event.AddShares(req.Outcome, -qty)
	}

	event.Quotes = mm.Quotes(event.SharesYes, event.SharesNo)
	event.LastTradeAt = now

	kind, _ := model.EntryKindFor(req.Direction, req.Outcome)
	entry := &model.LedgerEntry{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		EventID:   req.EventID,
		Kind:      kind,
		Quantity:  qty,
		Price:     price,
		CreatedAt: now,
	}

	cs := &store.ChangeSet{
		Event:     event,
		Positions: []*model.Position{position},
		Accounts:  []*model.Account{account},
		Entries:   []*model.LedgerEntry{entry},
	}
	if err := x.store.Apply(ctx, cs); err != nil {
		return nil, err
	}

	metrics.OrdersTotal.WithLabelValues(string(req.Direction), string(req.Outcome)).Inc()
	metrics.OrderLatency.WithLabelValues(string(req.Direction)).Observe(time.Since(start).Seconds())

	slog.Info("order executed",
		"entry_id", entry.ID,
		"user", req.UserID,
		"event", req.EventID,
		"direction", req.Direction,
		"outcome", req.Outcome,
		"qty", qty,
		"price", price.String(),
		"new_buy_yes", event.Quotes.BuyYes.String(),
	)

	x.publishQuotes(event)

	return &OrderResult{
		Event:    event,
		Position: position,
		Account:  account,
		Entry:    entry,
	}, nil
}

// applyBuy folds one buy fill into the position's running averages.
func applyBuy(p *model.Position, qty int64, total decimal.Decimal) {
	boughtTotal := p.AvgBuyPrice.Mul(decimal.NewFromInt(p.Bought)).Add(total)
	p.Bought += qty
	p.AvgBuyPrice = boughtTotal.Div(decimal.NewFromInt(p.Bought))
	p.Held += qty
}

// applySell folds one sell fill into the position's running averages.
func applySell(p *model.Position, qty int64, total decimal.Decimal) {
	soldTotal := p.AvgSellPrice.Mul(decimal.NewFromInt(p.Sold)).Add(total)
	p.Sold += qty
	p.AvgSellPrice = soldTotal.Div(decimal.NewFromInt(p.Sold))
	p.Held -= qty
}

// publishQuotes notifies the external sink after a successful commit.
// Best-effort: failures are logged by the publisher and never affect the
// committed order.
func (x *Executor) publishQuotes(event *model.Event) {
	if x.publisher == nil {
		return
	}
	update := publish.QuoteUpdate{
		EventID: event.ID,
		BuyYes:  event.Quotes.BuyYes.String(),
		BuyNo:   event.Quotes.BuyNo.String(),
		SellYes: event.Quotes.SellYes.String(),
		SellNo:  event.Quotes.SellNo.String(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := x.publisher.PublishQuotes(ctx, update); err != nil {
			slog.Warn("quote publish failed", "event", event.ID, "err", err)
		}
	}()
}

// reject counts a rejection and passes the error through.
func (x *Executor) reject(req OrderRequest, err error) error {
	reason := "internal"
	var mismatch *PriceMismatchError
	switch {
	case errors.Is(err, ErrNonexistentEvent):
		reason = "nonexistent_event"
	case errors.Is(err, ErrEventNotActive):
		reason = "event_not_active"
	case errors.Is(err, ErrUnknownOutcome):
		reason = "unknown_outcome"
	case errors.Is(err, ErrUnknownDirection):
		reason = "unknown_direction"
	case errors.Is(err, ErrInvalidQuantity):
		reason = "invalid_quantity"
	case errors.Is(err, ErrInsufficientFunds):
		reason = "insufficient_funds"
	case errors.Is(err, ErrInsufficientShares):
		reason = "insufficient_shares"
	case errors.Is(err, ErrBusy):
		reason = "busy"
	case errors.As(err, &mismatch):
		reason = "price_mismatch"
	}
	metrics.OrderRejections.WithLabelValues(reason).Inc()

	slog.Info("order rejected",
		"user", req.UserID,
		"event", req.EventID,
		"direction", req.Direction,
		"outcome", req.Outcome,
		"reason", reason,
	)
	return err
}
