package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/outcomex/market-engine/internal/metrics"
	"github.com/outcomex/market-engine/internal/model"
	"github.com/outcomex/market-engine/internal/pricing"
	"github.com/outcomex/market-engine/internal/store"
)

// CancelEvent closes an event and refunds every held share at the holding
// position's average buy price. Each refund produces a REFUND ledger entry
// and credits the holder's cash balance, all in one atomic unit with the
// status change.
func (x *Executor) CancelEvent(ctx context.Context, eventID string) (*model.Event, error) {
	event, err := x.settle(ctx, eventID, model.StatusCancelled,
		func(p *model.Position) (decimal.Decimal, model.EntryKind) {
			return p.AvgBuyPrice, model.KindRefund
		})
	if err != nil {
		return nil, err
	}
	metrics.SettlementsTotal.WithLabelValues("cancel").Inc()
	return event, nil
}

// ResolveEvent settles an event to the winning outcome. Holders of winning
// shares are paid the full scale value per share via PAYOUT entries; losing
// positions receive nothing.
func (x *Executor) ResolveEvent(ctx context.Context, eventID string, winner model.Outcome) (*model.Event, error) {
	if !winner.Valid() {
		return nil, ErrUnknownOutcome
	}

	status := model.StatusResolvedYes
	if winner == model.OutcomeNo {
		status = model.StatusResolvedNo
	}

	payout := decimal.NewFromInt(pricing.Scale)
	event, err := x.settle(ctx, eventID, status,
		func(p *model.Position) (decimal.Decimal, model.EntryKind) {
			if p.Outcome != winner {
				return decimal.Zero, model.KindPayout
			}
			return payout, model.KindPayout
		})
	if err != nil {
		return nil, err
	}
	metrics.SettlementsTotal.WithLabelValues("resolve").Inc()
	return event, nil
}

// settle moves an in-progress event to a terminal status and credits each
// holding position unitPrice-per-held-share as determined by the price
// function. The event lock serializes settlement against in-flight orders;
// account locks are taken in sorted user order so two settlements cannot
// deadlock on each other.
func (x *Executor) settle(ctx context.Context, eventID string, status model.EventStatus,
	priceFor func(*model.Position) (decimal.Decimal, model.EntryKind)) (*model.Event, error) {

	releaseEvent, err := x.locks.acquire(ctx, eventLockKey(eventID), x.lockWait)
	if err != nil {
		return nil, err
	}
	defer releaseEvent()

	event, err := x.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNonexistentEvent
		}
		return nil, err
	}
	if event.Status != model.StatusInProgress {
		return nil, ErrEventNotActive
	}

	positions, err := x.store.GetEventPositions(ctx, eventID)
	if err != nil {
		return nil, err
	}

	// Collect the credit per user before locking accounts, so locks are
	// acquired in one deterministic sweep.
	users := make([]string, 0, len(positions))
	seen := make(map[string]bool)
	for _, p := range positions {
		if p.Held > 0 && !seen[p.UserID] {
			seen[p.UserID] = true
			users = append(users, p.UserID)
		}
	}
	sort.Strings(users)

	var releases []func()
	defer func() {
		for _, r := range releases {
			r()
		}
	}()
	for _, userID := range users {
		release, err := x.locks.acquire(ctx, accountLockKey(userID), x.lockWait)
		if err != nil {
			return nil, err
		}
		releases = append(releases, release)
	}

	now := time.Now().UTC()
	event.Status = status

	cs := &store.ChangeSet{Event: event}
	accounts := make(map[string]*model.Account)

	for i := range positions {
		p := &positions[i]
		if p.Held <= 0 {
			continue
		}
		unitPrice, kind := priceFor(p)
		if unitPrice.IsZero() {
			continue
		}

		credit := pricing.RoundPrice(unitPrice.Mul(decimal.NewFromInt(p.Held)))

		account, ok := accounts[p.UserID]
		if !ok {
			account, err = x.store.GetOrCreateAccount(ctx, p.UserID)
			if err != nil {
				return nil, err
			}
			accounts[p.UserID] = account
			cs.Accounts = append(cs.Accounts, account)
		}
		account.Cash = account.Cash.Add(credit)

		p.RewardedTotal = p.RewardedTotal.Add(credit)
		cs.Positions = append(cs.Positions, p)

		cs.Entries = append(cs.Entries, &model.LedgerEntry{
			ID:        uuid.New().String(),
			UserID:    p.UserID,
			EventID:   eventID,
			Kind:      kind,
			Quantity:  p.Held,
			Price:     pricing.RoundPrice(unitPrice),
			CreatedAt: now,
		})
	}

	if err := x.store.Apply(ctx, cs); err != nil {
		return nil, err
	}

	metrics.ActiveEvents.Dec()
	slog.Info("event settled",
		"event", eventID,
		"status", status,
		"credits", len(cs.Entries),
	)
	return event, nil
}
