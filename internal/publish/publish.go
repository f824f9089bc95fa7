// Package publish delivers post-commit quote updates to external sinks.
// Delivery is best-effort: the order executor commits first and publishes
// after, so a sink failure can never roll back a trade.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// QuoteUpdate is the payload emitted after every committed trade.
type QuoteUpdate struct {
	EventID string `json:"event_id"`
	BuyYes  string `json:"buy_yes_price"`
	BuyNo   string `json:"buy_no_price"`
	SellYes string `json:"sell_yes_price"`
	SellNo  string `json:"sell_no_price"`
}

// Channel returns the named channel for one event's quote updates.
func Channel(eventID string) string {
	return fmt.Sprintf("event_%s", eventID)
}

// Publisher is a best-effort sink for quote updates.
type Publisher interface {
	PublishQuotes(ctx context.Context, update QuoteUpdate) error
}

// RedisPublisher publishes quote updates on the event's Redis channel.
type RedisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher creates a Redis-backed publisher.
func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) PublishQuotes(ctx context.Context, update QuoteUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, Channel(update.EventID), payload).Err()
}

// Fanout delivers one update to several publishers. A failing sink is
// logged and skipped; the others still receive the update.
type Fanout []Publisher

func (f Fanout) PublishQuotes(ctx context.Context, update QuoteUpdate) error {
	for _, p := range f {
		if err := p.PublishQuotes(ctx, update); err != nil {
			slog.Warn("quote publish failed", "event", update.EventID, "err", err)
		}
	}
	return nil
}
