package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/outcomex/market-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	events    map[string]*model.Event
	accounts  map[string]*model.Account
	positions map[string]*model.Position // keyed by user|event|outcome
	ledger    []model.LedgerEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:    make(map[string]*model.Event),
		accounts:  make(map[string]*model.Account),
		positions: make(map[string]*model.Position),
	}
}

func positionKey(userID, eventID string, outcome model.Outcome) string {
	return fmt.Sprintf("%s|%s|%s", userID, eventID, outcome)
}

func (s *MemoryStore) CreateEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[e.ID]; ok {
		return fmt.Errorf("event %s already exists", e.ID)
	}

	// Store a copy to avoid external mutation.
	cp := *e
	s.events[e.ID] = &cp
	return nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) ListEvents(_ context.Context) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]model.Event, 0, len(s.events))
	for _, e := range s.events {
		events = append(events, *e)
	}
	return events, nil
}

func (s *MemoryStore) GetOrCreateAccount(_ context.Context, userID string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		a = &model.Account{UserID: userID, Cash: decimal.Zero}
		s.accounts[userID] = a
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) GetOrCreatePosition(_ context.Context, userID, eventID string, outcome model.Outcome) (*model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := positionKey(userID, eventID, outcome)
	p, ok := s.positions[key]
	if !ok {
		p = &model.Position{
			ID:            uuid.New().String(),
			UserID:        userID,
			EventID:       eventID,
			Outcome:       outcome,
			AvgBuyPrice:   decimal.Zero,
			AvgSellPrice:  decimal.Zero,
			RewardedTotal: decimal.Zero,
		}
		s.positions[key] = p
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetUserPositions(_ context.Context, userID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, p := range s.positions {
		if p.UserID == userID {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetEventPositions(_ context.Context, eventID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, p := range s.positions {
		if p.EventID == eventID {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetLedgerEntriesByUser(_ context.Context, userID string) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if e.UserID == userID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetLedgerEntriesByEvent(_ context.Context, eventID string) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if e.EventID == eventID {
			result = append(result, e)
		}
	}
	return result, nil
}

// Apply commits a change set under one lock acquisition. All writes land
// together; a failed lookup aborts before any map is touched.
func (s *MemoryStore) Apply(_ context.Context, cs *ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cs.Event != nil {
		if _, ok := s.events[cs.Event.ID]; !ok {
			return fmt.Errorf("event %s: %w", cs.Event.ID, ErrNotFound)
		}
	}

	if cs.Event != nil {
		cp := *cs.Event
		s.events[cp.ID] = &cp
	}
	for _, p := range cs.Positions {
		cp := *p
		s.positions[positionKey(p.UserID, p.EventID, p.Outcome)] = &cp
	}
	for _, a := range cs.Accounts {
		cp := *a
		s.accounts[cp.UserID] = &cp
	}
	for _, e := range cs.Entries {
		s.ledger = append(s.ledger, *e)
	}
	return nil
}
