package metering

import (
	"context"
	"time"

	"github.com/google/uuid"

	"freightline/api_compass/pkg/kafka"
	"freightline/api_compass/pkg/logging"
)

const usageSource = "compass"

// Publisher forwards usage summaries to Kafka. Nil-safe: a deployment without
// brokers just skips publishing.
type Publisher struct {
	producer *kafka.Producer
	logger   logging.Logger
}

func NewPublisher(producer *kafka.Producer, logger logging.Logger) *Publisher {
	return &Publisher{producer: producer, logger: logger}
}

func (p *Publisher) PublishUsage(ctx context.Context, events []kafka.UsageEvent) error {
	if p == nil || p.producer == nil || len(events) == 0 {
		return nil
	}
	if err := p.producer.PublishUsageBatch(ctx, events); err != nil {
		return err
	}
	if p.logger != nil {
		p.logger.WithFields(logging.Fields{
			"events": len(events),
		}).Info("Published usage events")
	}
	return nil
}

func buildUsageEvent(tenantID string, usage *tenantUsage, at time.Time) kafka.UsageEvent {
	return kafka.UsageEvent{
		EventID:    uuid.New().String(),
		EventType:  "usage_summary",
		Source:     usageSource,
		TenantID:   tenantID,
		ModelTier:  dominantTier(usage.byTier),
		QueryCount: int64(usage.runs),
		ToolCalls:  int64(usage.toolCalls),
		Timestamp:  at,
	}
}

func dominantTier(byTier map[string]int) string {
	best, bestCount := "", 0
	for tier, count := range byTier {
		if count > bestCount || (count == bestCount && tier < best) {
			best, bestCount = tier, count
		}
	}
	return best
}
