package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/outcomex/market-engine/internal/model"
)

// redisCmds is the slice of the go-redis client the cache uses. Satisfied
// by *redis.Client.
type redisCmds interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedStore wraps a primary Store (PostgreSQL) with a Redis cache for
// event and position reads. Event keys are populated only on the write
// path (CreateEvent, Apply), which runs under the executor's event lock:
// an unlocked reader never writes an event key, so a slow read can never
// put a superseded event back in the cache after a commit invalidated it.
type CachedStore struct {
	primary Store
	rdb     redisCmds
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write paths (write to primary, refresh or invalidate cache) ---

func (s *CachedStore) CreateEvent(ctx context.Context, e *model.Event) error {
	if err := s.primary.CreateEvent(ctx, e); err != nil {
		return err
	}
	s.cacheEvent(ctx, e)
	return nil
}

// Apply commits through the primary store, then overwrites the event's
// cache key with the committed state and drops the position keys the
// change set touches. The caller holds the event lock for the duration,
// so this write cannot interleave with another Apply on the same event.
func (s *CachedStore) Apply(ctx context.Context, cs *ChangeSet) error {
	if err := s.primary.Apply(ctx, cs); err != nil {
		return err
	}

	if cs.Event != nil {
		key := eventKey(cs.Event.ID)
		data, err := json.Marshal(cs.Event)
		if err != nil || s.rdb.Set(ctx, key, data, s.ttl).Err() != nil {
			// Refresh failed: drop the key so nothing stale outlives
			// the commit.
			s.rdb.Del(ctx, key)
		}
	}

	var keys []string
	seen := make(map[string]bool)
	for _, p := range cs.Positions {
		if !seen[p.UserID] {
			seen[p.UserID] = true
			keys = append(keys, positionsCacheKey(p.UserID))
		}
	}
	if len(keys) > 0 {
		s.rdb.Del(ctx, keys...)
	}
	return nil
}

// --- Read paths ---

// GetEvent serves from the cache when possible. A miss falls through to
// the primary without writing the key back: only the write path, which
// holds the event lock, may populate event keys.
func (s *CachedStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	data, err := s.rdb.Get(ctx, eventKey(id)).Bytes()
	if err == nil {
		var e model.Event
		if json.Unmarshal(data, &e) == nil {
			return &e, nil
		}
	}

	return s.primary.GetEvent(ctx, id)
}

// GetUserPositions is read-through with writeback. The executor never
// reads positions through this path (GetOrCreatePosition bypasses the
// cache), so a stale writeback here is a display artifact bounded by the
// TTL, not an execution input.
func (s *CachedStore) GetUserPositions(ctx context.Context, userID string) ([]model.Position, error) {
	data, err := s.rdb.Get(ctx, positionsCacheKey(userID)).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.GetUserPositions(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, positionsCacheKey(userID), data, s.ttl)
	}
	return positions, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.primary.ListEvents(ctx)
}

func (s *CachedStore) GetOrCreateAccount(ctx context.Context, userID string) (*model.Account, error) {
	return s.primary.GetOrCreateAccount(ctx, userID)
}

func (s *CachedStore) GetOrCreatePosition(ctx context.Context, userID, eventID string, outcome model.Outcome) (*model.Position, error) {
	return s.primary.GetOrCreatePosition(ctx, userID, eventID, outcome)
}

func (s *CachedStore) GetEventPositions(ctx context.Context, eventID string) ([]model.Position, error) {
	return s.primary.GetEventPositions(ctx, eventID)
}

func (s *CachedStore) GetLedgerEntriesByUser(ctx context.Context, userID string) ([]model.LedgerEntry, error) {
	return s.primary.GetLedgerEntriesByUser(ctx, userID)
}

func (s *CachedStore) GetLedgerEntriesByEvent(ctx context.Context, eventID string) ([]model.LedgerEntry, error) {
	return s.primary.GetLedgerEntriesByEvent(ctx, eventID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheEvent(ctx context.Context, e *model.Event) {
	if data, err := json.Marshal(e); err == nil {
		s.rdb.Set(ctx, eventKey(e.ID), data, s.ttl)
	}
}

func eventKey(id string) string           { return fmt.Sprintf("event:%s", id) }
func positionsCacheKey(uid string) string { return fmt.Sprintf("positions:%s", uid) }
