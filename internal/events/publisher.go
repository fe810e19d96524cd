package events

import (
	"context"
	"encoding/json"
	"fmt"

	"fuelpoints-service/internal/domain/event"
	"fuelpoints-service/internal/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher delivers domain events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, ev event.Event) error
}

// StreamPublisher writes events to a redis stream, one stream per aggregate
// domain (e.g. fuelpoints:events:campaign).
type StreamPublisher struct {
	client    *redis.Client
	keyPrefix string
	maxLen    int64
}

func NewStreamPublisher(client *redis.Client, keyPrefix string, maxLen int64) *StreamPublisher {
	if keyPrefix == "" {
		keyPrefix = "fuelpoints:events"
	}
	return &StreamPublisher{client: client, keyPrefix: keyPrefix, maxLen: maxLen}
}

func (p *StreamPublisher) Publish(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal event %s payload: %w", ev.ID, err)
	}
	args := &redis.XAddArgs{
		Stream: fmt.Sprintf("%s:%s", p.keyPrefix, ev.Type.Domain()),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":           ev.ID,
			"type":         string(ev.Type),
			"aggregate":    ev.AggregateType,
			"aggregate_id": ev.AggregateID,
			"occurred_at":  ev.OccurredAt.Format("2006-01-02T15:04:05.000Z07:00"),
			"payload":      string(payload),
		},
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", args.Stream, err)
	}
	return nil
}

// Nop discards events; used in tests and when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, event.Event) error { return nil }

// PublishAll drains a pending-event buffer after the owning transaction has
// committed. Publish failures are logged and counted, never propagated; the
// store remains the source of truth and the stream is best effort.
func PublishAll(ctx context.Context, pub Publisher, logger *zap.Logger, evs []event.Event) {
	for _, ev := range evs {
		if err := pub.Publish(ctx, ev); err != nil {
			metrics.EventPublishFailures.Inc()
			logger.Warn("event publish failed",
				zap.String("event_id", ev.ID),
				zap.String("type", string(ev.Type)),
				zap.Error(err))
		}
	}
}
