package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/emberapp/ember-core/internal/cache"
	"github.com/emberapp/ember-core/internal/logger"
)

// Collection names, mirroring the table names in internal/db.
const (
	TableProfiles = "profiles"
	TableLikes    = "likes"
	TableMatches  = "matches"
	TableChats    = "chats"
	TableMessages = "messages"
)

type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// Event is a row-level change notification. Delivery is at-least-once with
// no ordering guarantee relative to snapshot queries; consumers must apply
// events idempotently.
type Event struct {
	Kind  EventKind       `json:"kind"`
	Table string          `json:"table"`
	Row   json.RawMessage `json:"row"`
}

// Decode unmarshals the event row into dst.
func (e Event) Decode(dst any) error {
	return json.Unmarshal(e.Row, dst)
}

// Feed fans row-level change events out over Redis pub/sub, one channel per
// table. Repositories publish after each successful write; view-layer
// components subscribe per table and filter client-side.
type Feed struct {
	client *redis.Client
	log    *slog.Logger
}

// NewFeed builds a feed on top of the shared Redis connection.
func NewFeed(c *cache.RedisCache) *Feed {
	return &Feed{client: c.Client, log: logger.With("component", "changefeed")}
}

func channelFor(table string) string {
	return "changes:" + table
}

// Publish emits a change event for a row. Marshal failures are programmer
// errors; publish failures surface to the caller, which treats the write
// itself as already committed.
func (f *Feed) Publish(ctx context.Context, table string, kind EventKind, row any) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal %s row: %w", table, err)
	}
	ev := Event{Kind: kind, Table: table, Row: raw}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return f.client.Publish(ctx, channelFor(table), payload).Err()
}

// Subscribe starts delivering events for a table to handler on a dedicated
// goroutine. The handler runs serially per subscription. Close the returned
// Subscription when the owning view goes away; after Close returns the
// handler is guaranteed not to be invoked again.
func (f *Feed) Subscribe(ctx context.Context, table string, handler func(Event)) (*Subscription, error) {
	pubsub := f.client.Subscribe(ctx, channelFor(table))

	// force the subscription handshake so events published after Subscribe
	// returns are not lost
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", table, err)
	}

	sub := &Subscription{pubsub: pubsub, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				f.log.Warn("dropping malformed change event", "table", table, "err", err)
				continue
			}
			handler(ev)
		}
	}()

	return sub, nil
}

// Subscription is a live changefeed consumer.
type Subscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
}

// Close stops delivery and waits for the consumer goroutine to exit, so no
// handler call can race with teardown of the owning view.
func (s *Subscription) Close() error {
	err := s.pubsub.Close()
	<-s.done
	return err
}
