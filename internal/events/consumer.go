package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"roofcrm/internal/services"
	"roofcrm/internal/workflow"
)

// EventHandler applies one domain event. A returned error means the event
// was not processed and must be delivered again.
type EventHandler interface {
	Handle(ctx context.Context, ev workflow.Event) (*services.TransitionResult, error)
}

// StreamConsumer reads domain events from a Redis stream through a consumer
// group. A message is acknowledged only after the handler has dealt with it,
// so delivery is at-least-once; the status engine makes redelivery harmless.
type StreamConsumer struct {
	rdb      *redis.Client
	handler  EventHandler
	stream   string
	group    string
	consumer string
	minIdle  time.Duration
	block    time.Duration
	batch    int64
}

type ConsumerOptions struct {
	Stream   string
	Group    string
	Consumer string
	MinIdle  time.Duration
}

func NewStreamConsumer(rdb *redis.Client, handler EventHandler, opts ConsumerOptions) *StreamConsumer {
	if opts.MinIdle <= 0 {
		opts.MinIdle = time.Minute
	}
	return &StreamConsumer{
		rdb:      rdb,
		handler:  handler,
		stream:   opts.Stream,
		group:    opts.Group,
		consumer: opts.Consumer,
		minIdle:  opts.MinIdle,
		block:    5 * time.Second,
		batch:    16,
	}
}

// EnsureGroup creates the stream and consumer group if they do not exist yet.
func (c *StreamConsumer) EnsureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", c.group, err)
	}
	return nil
}

// Run consumes new messages until ctx is cancelled.
func (c *StreamConsumer) Run(ctx context.Context) error {
	slog.Info("event consumer started", "stream", c.stream, "group", c.group, "consumer", c.consumer)
	for {
		streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{c.stream, ">"},
			Count:    c.batch,
			Block:    c.block,
		}).Result()
		if ctx.Err() != nil {
			slog.Info("event consumer stopped", "stream", c.stream)
			return nil
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			slog.Error("xreadgroup failed", "stream", c.stream, "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		for _, s := range streams {
			for _, msg := range s.Messages {
				c.process(ctx, msg)
			}
		}
	}
}

// Reclaim takes over messages another consumer read but never acknowledged
// and processes them again.
func (c *StreamConsumer) Reclaim(ctx context.Context) {
	start := "0-0"
	for {
		msgs, next, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.stream,
			Group:    c.group,
			Consumer: c.consumer,
			MinIdle:  c.minIdle,
			Start:    start,
			Count:    c.batch,
		}).Result()
		if err != nil {
			slog.Error("xautoclaim failed", "stream", c.stream, "err", err)
			return
		}
		if len(msgs) > 0 {
			slog.Info("reclaimed pending events", "stream", c.stream, "count", len(msgs))
		}
		for _, msg := range msgs {
			c.process(ctx, msg)
		}
		if next == "0-0" || len(msgs) == 0 {
			return
		}
		start = next
	}
}

func (c *StreamConsumer) process(ctx context.Context, msg redis.XMessage) {
	ev, err := decodeMessage(msg.Values)
	if err != nil {
		// Redelivering a malformed message cannot help.
		slog.Error("dropping malformed event", "stream", c.stream, "message_id", msg.ID, "err", err)
		c.ack(ctx, msg.ID)
		return
	}
	if ev.ID == "" {
		ev.ID = msg.ID
	}
	res, err := c.handler.Handle(ctx, ev)
	if err != nil {
		slog.Warn("event left pending for redelivery", "message_id", msg.ID, "lead_id", ev.LeadID, "err", err)
		return
	}
	slog.Debug("event processed", "message_id", msg.ID, "lead_id", ev.LeadID, "outcome", res.Outcome)
	c.ack(ctx, msg.ID)
}

func (c *StreamConsumer) ack(ctx context.Context, id string) {
	if err := c.rdb.XAck(ctx, c.stream, c.group, id).Err(); err != nil {
		slog.Error("xack failed", "stream", c.stream, "message_id", id, "err", err)
	}
}

// decodeMessage reads the JSON-encoded event stored in the "event" field.
func decodeMessage(values map[string]interface{}) (workflow.Event, error) {
	var ev workflow.Event
	raw, ok := values["event"]
	if !ok {
		return ev, errors.New(`message has no "event" field`)
	}
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return ev, fmt.Errorf(`"event" field has type %T`, raw)
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decode event: %w", err)
	}
	if _, err := workflow.ParseEventType(string(ev.Type)); err != nil {
		return ev, err
	}
	if ev.LeadID <= 0 {
		return ev, errors.New("event has no lead_id")
	}
	return ev, nil
}
