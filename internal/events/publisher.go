// Package events connects the status engine to Redis: inbound domain events
// arrive on a stream consumed with a consumer group, and applied transitions
// are published on a channel for the gateway and other listeners.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"roofcrm/internal/workflow"
)

// StatusChangedType is the "type" field of published status-change messages.
const StatusChangedType = "lead.status_changed"

// Publisher announces applied transitions on a Redis channel.
type Publisher struct {
	rdb     redis.Cmdable
	channel string
}

func NewPublisher(rdb redis.Cmdable, channel string) *Publisher {
	return &Publisher{rdb: rdb, channel: channel}
}

type statusChangedMessage struct {
	Type         string          `json:"type"`
	LeadID       int64           `json:"lead_id"`
	TransitionID int64           `json:"transition_id"`
	From         *workflow.Stage `json:"from,omitempty"`
	To           workflow.Stage  `json:"to"`
	Automated    bool            `json:"automated"`
	ChangedBy    *int            `json:"changed_by"`
	Trigger      string          `json:"trigger,omitempty"`
	At           time.Time       `json:"at"`
}

func encodeStatusChanged(rec workflow.Transition) ([]byte, error) {
	trigger, _ := rec.Metadata["trigger"].(string)
	return json.Marshal(statusChangedMessage{
		Type:         StatusChangedType,
		LeadID:       rec.LeadID,
		TransitionID: rec.ID,
		From:         rec.From,
		To:           rec.To,
		Automated:    rec.Automated,
		ChangedBy:    rec.ChangedBy,
		Trigger:      trigger,
		At:           rec.CreatedAt.UTC(),
	})
}

// StatusChanged implements services.StatusObserver.
func (p *Publisher) StatusChanged(ctx context.Context, rec workflow.Transition) error {
	payload, err := encodeStatusChanged(rec)
	if err != nil {
		return fmt.Errorf("encode status change: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", StatusChangedType, err)
	}
	return nil
}
