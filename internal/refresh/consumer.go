package refresh

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/kafka"
)

// JobsUpdatedEvent is the optional payload of a jobs-updated message.
type JobsUpdatedEvent struct {
	Reason string    `json:"reason"`
	Source string    `json:"source"`
	At     time.Time `json:"at"`
}

// HandleJobsUpdated returns a Kafka MessageHandler that refreshes on every
// jobs-updated message. The payload is informational only; an empty or
// malformed payload still triggers the refresh.
func HandleJobsUpdated(r *Refresher) kafka.MessageHandler {
	logger := slog.Default().With("component", "jobs-updated-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		var event JobsUpdatedEvent
		if len(value) > 0 {
			if err := json.Unmarshal(value, &event); err != nil {
				logger.Debug("jobs-updated payload not decoded", "error", err)
			}
		}
		logger.Info("jobs updated",
			"key", string(key),
			"reason", event.Reason,
			"source", event.Source,
		)
		return r.Refresh(ctx, TriggerEvent)
	}
}

// EventPublisher is implemented by *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// NotifyJobsUpdated publishes a jobs-updated message so that every
// subscribed instance refreshes. Messages are keyed by source.
func NotifyJobsUpdated(ctx context.Context, p EventPublisher, source, reason string) error {
	return p.Publish(ctx, kafka.Event{
		Key: source,
		Value: JobsUpdatedEvent{
			Reason: reason,
			Source: source,
			At:     time.Now().UTC(),
		},
	})
}
