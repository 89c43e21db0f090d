package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"freightline/api_compass/pkg/logging"
)

// UsageEvent is the record shape published to the usage_events topic. Billing
// and the ops dashboards consume it downstream.
type UsageEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	Source     string    `json:"source"`
	TenantID   string    `json:"tenant_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	Mode       string    `json:"mode,omitempty"`
	ModelTier  string    `json:"model_tier,omitempty"`
	QueryCount int64     `json:"query_count,omitempty"`
	ToolCalls  int64     `json:"tool_calls,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

const usageTopic = "usage_events"

type Producer struct {
	client *kgo.Client
	logger logging.Logger
}

func NewProducer(brokers []string, clientID string, logger logging.Logger) (*Producer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.ProducerBatchMaxBytes(1000000),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Producer{
		client: client,
		logger: logger,
	}, nil
}

func (p *Producer) Close() error {
	p.client.Close()
	return nil
}

// Client returns the underlying kgo.Client for health checks.
func (p *Producer) Client() *kgo.Client {
	return p.client
}

// PublishUsageBatch publishes a batch of usage events keyed by event ID so
// per-tenant ordering is preserved within a partition.
func (p *Producer) PublishUsageBatch(ctx context.Context, events []UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", event.EventID, err)
		}

		record := &kgo.Record{
			Topic: usageTopic,
			Key:   []byte(event.EventID),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "source", Value: []byte(event.Source)},
				{Key: "event_type", Value: []byte(event.EventType)},
			},
		}
		if event.TenantID != "" {
			record.Headers = append(record.Headers, kgo.RecordHeader{
				Key:   "tenant_id",
				Value: []byte(event.TenantID),
			})
		}
		records = append(records, record)
	}

	produceCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	results := p.client.ProduceSync(produceCtx, records...)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("failed to produce batch: %w", err)
	}
	return nil
}
