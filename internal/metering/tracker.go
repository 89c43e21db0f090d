package metering

import (
	"context"
	"fmt"
	"sync"
	"time"

	"freightline/api_compass/internal/insight"
	"freightline/api_compass/pkg/database"
	"freightline/api_compass/pkg/kafka"
	"freightline/api_compass/pkg/logging"
)

// UsagePublisher ships flushed usage summaries to the billing pipeline.
type UsagePublisher interface {
	PublishUsage(ctx context.Context, events []kafka.UsageEvent) error
}

type TrackerConfig struct {
	DB            database.PostgresConn
	Publisher     UsagePublisher
	Logger        logging.Logger
	FlushInterval time.Duration
}

// Tracker accumulates per-tenant usage in memory and flushes it on an
// interval. Persistence failures requeue the counts for the next flush;
// publish failures are logged and dropped — billing tolerates gaps, the
// request path tolerates nothing.
type Tracker struct {
	db            database.PostgresConn
	publisher     UsagePublisher
	logger        logging.Logger
	flushInterval time.Duration
	stopOnce      sync.Once
	stopCh        chan struct{}

	mu            sync.Mutex
	usageByTenant map[string]*tenantUsage
}

type tenantUsage struct {
	runs         int
	toolCalls    int
	inputTokens  int
	outputTokens int
	byTier       map[string]int
}

func NewTracker(cfg TrackerConfig) *Tracker {
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 30 * time.Second
	}
	return &Tracker{
		db:            cfg.DB,
		publisher:     cfg.Publisher,
		logger:        cfg.Logger,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
		usageByTenant: make(map[string]*tenantUsage),
	}
}

func (t *Tracker) Start() {
	if t == nil {
		return
	}
	go t.loop()
}

func (t *Tracker) Stop() {
	if t == nil {
		return
	}
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
}

// RecordRun accumulates one completed query run.
func (t *Tracker) RecordRun(tenantID, mode, tier string, tokens insight.TokenCounts, toolCalls int) {
	if t == nil || tenantID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	usage := t.ensureTenant(tenantID)
	usage.runs++
	usage.toolCalls += toolCalls
	usage.inputTokens += tokens.Input
	usage.outputTokens += tokens.Output
	if tier != "" {
		usage.byTier[tier]++
	}
}

func (t *Tracker) loop() {
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Flush(context.Background())
		case <-t.stopCh:
			t.Flush(context.Background())
			return
		}
	}
}

func (t *Tracker) Flush(ctx context.Context) {
	if t == nil {
		return
	}
	now := time.Now()

	t.mu.Lock()
	if len(t.usageByTenant) == 0 {
		t.mu.Unlock()
		return
	}
	snapshot := t.usageByTenant
	t.usageByTenant = make(map[string]*tenantUsage)
	t.mu.Unlock()

	events := make([]kafka.UsageEvent, 0, len(snapshot))
	for tenantID, usage := range snapshot {
		if usage.runs == 0 && usage.toolCalls == 0 {
			continue
		}
		if err := t.persistUsage(ctx, tenantID, usage); err != nil {
			t.requeueUsage(tenantID, usage)
			continue
		}
		events = append(events, buildUsageEvent(tenantID, usage, now))
	}

	if t.publisher != nil && len(events) > 0 {
		if err := t.publisher.PublishUsage(ctx, events); err != nil && t.logger != nil {
			t.logger.WithFields(logging.Fields{
				"error":  err.Error(),
				"events": len(events),
			}).Warn("Failed to publish usage events")
		}
	}
}

func (t *Tracker) persistUsage(ctx context.Context, tenantID string, usage *tenantUsage) error {
	if t.db == nil {
		return nil
	}
	var errCount int
	if usage.runs > 0 {
		if err := t.insertUsageRow(ctx, tenantID, "query_run", usage.runs, usage.inputTokens, usage.outputTokens); err != nil {
			errCount++
		}
	}
	if usage.toolCalls > 0 {
		if err := t.insertUsageRow(ctx, tenantID, "tool_call", usage.toolCalls, 0, 0); err != nil {
			errCount++
		}
	}
	if errCount > 0 {
		return fmt.Errorf("persist usage failed with %d error(s)", errCount)
	}
	return nil
}

func (t *Tracker) insertUsageRow(ctx context.Context, tenantID, eventType string, count, inputTokens, outputTokens int) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO compass.compass_usage (
			tenant_id,
			event_type,
			event_count,
			tokens_input,
			tokens_output,
			created_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
	`, tenantID, eventType, count, inputTokens, outputTokens)
	if err != nil && t.logger != nil {
		t.logger.WithFields(logging.Fields{
			"tenant_id":  tenantID,
			"event_type": eventType,
			"error":      err.Error(),
		}).Warn("Failed to persist usage")
	}
	return err
}

func (t *Tracker) ensureTenant(tenantID string) *tenantUsage {
	usage, ok := t.usageByTenant[tenantID]
	if !ok {
		usage = &tenantUsage{byTier: make(map[string]int)}
		t.usageByTenant[tenantID] = usage
	}
	return usage
}

func (t *Tracker) requeueUsage(tenantID string, usage *tenantUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	current := t.ensureTenant(tenantID)
	current.runs += usage.runs
	current.toolCalls += usage.toolCalls
	current.inputTokens += usage.inputTokens
	current.outputTokens += usage.outputTokens
	for tier, count := range usage.byTier {
		current.byTier[tier] += count
	}
}
