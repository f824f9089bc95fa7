package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/outcomex/market-engine/internal/model"
)

// fakeRedis is a map-backed stand-in for the redis command surface the
// cache uses.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte)}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(string(v), nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.data[key] = v
	case string:
		f.data[key] = []byte(v)
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

func newCachedEnv() (*CachedStore, *MemoryStore, *fakeRedis) {
	ms := NewMemoryStore()
	fr := newFakeRedis()
	return &CachedStore{primary: ms, rdb: fr, ttl: 30 * time.Second}, ms, fr
}

func TestCachedStore_ReadMissDoesNotPopulateEventCache(t *testing.T) {
	cs, ms, fr := newCachedEnv()
	ctx := context.Background()

	if err := ms.CreateEvent(ctx, testEvent("e1")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	got, err := cs.GetEvent(ctx, "e1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ID != "e1" {
		t.Errorf("expected event e1, got %s", got.ID)
	}
	if _, ok := fr.get(eventKey("e1")); ok {
		t.Error("read miss must not write the event key back")
	}
}

func TestCachedStore_ApplyRefreshesEventCache(t *testing.T) {
	cs, _, fr := newCachedEnv()
	ctx := context.Background()

	if err := cs.CreateEvent(ctx, testEvent("e1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	updated := testEvent("e1")
	updated.SharesYes = 3
	if err := cs.Apply(ctx, &ChangeSet{Event: updated}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	data, ok := fr.get(eventKey("e1"))
	if !ok {
		t.Fatal("apply should leave the committed event in the cache")
	}
	var cached model.Event
	if err := json.Unmarshal(data, &cached); err != nil {
		t.Fatalf("bad cached payload: %v", err)
	}
	if cached.SharesYes != 3 {
		t.Errorf("cache holds shares_yes=%d, want 3", cached.SharesYes)
	}

	got, err := cs.GetEvent(ctx, "e1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.SharesYes != 3 {
		t.Errorf("read after apply returned shares_yes=%d, want 3", got.SharesYes)
	}
}

// A reader that fetched the pre-commit event must not be able to shadow a
// later commit: the read path never writes event keys, so the cache holds
// the committed state no matter how reads and commits interleave.
func TestCachedStore_SlowReaderCannotShadowCommit(t *testing.T) {
	cs, ms, fr := newCachedEnv()
	ctx := context.Background()

	if err := cs.CreateEvent(ctx, testEvent("e1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Expire the key, then read the pre-commit state through the cache.
	fr.Del(ctx, eventKey("e1"))
	stale, err := cs.GetEvent(ctx, "e1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stale.SharesYes != 0 {
		t.Fatalf("expected pre-commit shares_yes=0, got %d", stale.SharesYes)
	}

	updated := testEvent("e1")
	updated.SharesYes = 5
	if err := cs.Apply(ctx, &ChangeSet{Event: updated}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	got, err := cs.GetEvent(ctx, "e1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.SharesYes != 5 {
		t.Errorf("cached read regressed to shares_yes=%d after commit, want 5", got.SharesYes)
	}

	fresh, _ := ms.GetEvent(ctx, "e1")
	if fresh.SharesYes != 5 {
		t.Errorf("primary holds shares_yes=%d, want 5", fresh.SharesYes)
	}
}

func TestCachedStore_ApplyInvalidatesPositionsCache(t *testing.T) {
	cs, _, fr := newCachedEnv()
	ctx := context.Background()

	if err := cs.CreateEvent(ctx, testEvent("e1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := cs.GetOrCreatePosition(ctx, "alice", "e1", model.OutcomeYes); err != nil {
		t.Fatalf("position failed: %v", err)
	}

	// Populate the positions key via the read path.
	if _, err := cs.GetUserPositions(ctx, "alice"); err != nil {
		t.Fatalf("positions read failed: %v", err)
	}
	if _, ok := fr.get(positionsCacheKey("alice")); !ok {
		t.Fatal("positions read should populate the cache")
	}

	p, _ := cs.GetOrCreatePosition(ctx, "alice", "e1", model.OutcomeYes)
	p.Held = 1
	updated := testEvent("e1")
	updated.SharesYes = 1
	if err := cs.Apply(ctx, &ChangeSet{
		Event:     updated,
		Positions: []*model.Position{p},
	}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if _, ok := fr.get(positionsCacheKey("alice")); ok {
		t.Error("apply should drop the positions key for touched users")
	}
}
