package metering

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"freightline/api_compass/internal/insight"
	"freightline/api_compass/pkg/kafka"
)

type fakePublisher struct {
	batches [][]kafka.UsageEvent
	err     error
}

func (f *fakePublisher) PublishUsage(_ context.Context, events []kafka.UsageEvent) error {
	f.batches = append(f.batches, events)
	return f.err
}

func newTrackerFixture(t *testing.T, publisher UsagePublisher) (*Tracker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewTracker(TrackerConfig{DB: db, Publisher: publisher}), mock
}

func TestTrackerPersistsTenantUsage(t *testing.T) {
	publisher := &fakePublisher{}
	tracker, mock := newTrackerFixture(t, publisher)

	tracker.RecordRun("tenant-a", "question", "fast", insight.TokenCounts{Input: 100, Output: 20}, 2)
	tracker.RecordRun("tenant-a", "analyze", "capable", insight.TokenCounts{Input: 400, Output: 80}, 5)

	mock.ExpectExec("INSERT INTO compass\\.compass_usage").WithArgs(
		"tenant-a", "query_run", 2, 500, 100,
	).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO compass\\.compass_usage").WithArgs(
		"tenant-a", "tool_call", 7, 0, 0,
	).WillReturnResult(sqlmock.NewResult(1, 1))

	tracker.Flush(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
	if len(publisher.batches) != 1 || len(publisher.batches[0]) != 1 {
		t.Fatalf("batches = %+v", publisher.batches)
	}
	event := publisher.batches[0][0]
	if event.TenantID != "tenant-a" || event.QueryCount != 2 || event.ToolCalls != 7 {
		t.Errorf("event = %+v", event)
	}
	if event.EventType != "usage_summary" || event.Source != "compass" {
		t.Errorf("event = %+v", event)
	}
}

func TestTrackerRetriesFailedPersistence(t *testing.T) {
	tracker, mock := newTrackerFixture(t, nil)

	tracker.RecordRun("tenant-a", "question", "fast", insight.TokenCounts{Input: 10, Output: 5}, 1)

	mock.ExpectExec("INSERT INTO compass\\.compass_usage").WithArgs(
		"tenant-a", "query_run", 1, 10, 5,
	).WillReturnError(errors.New("connection refused"))

	tracker.Flush(context.Background())

	mock.ExpectExec("INSERT INTO compass\\.compass_usage").WithArgs(
		"tenant-a", "query_run", 1, 10, 5,
	).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO compass\\.compass_usage").WithArgs(
		"tenant-a", "tool_call", 1, 0, 0,
	).WillReturnResult(sqlmock.NewResult(1, 1))

	tracker.Flush(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTrackerPublishFailureIsLossTolerant(t *testing.T) {
	publisher := &fakePublisher{err: errors.New("brokers unreachable")}
	tracker, mock := newTrackerFixture(t, publisher)

	tracker.RecordRun("tenant-a", "question", "fast", insight.TokenCounts{}, 0)

	mock.ExpectExec("INSERT INTO compass\\.compass_usage").WithArgs(
		"tenant-a", "query_run", 1, 0, 0,
	).WillReturnResult(sqlmock.NewResult(1, 1))

	tracker.Flush(context.Background())

	// the failed batch is dropped, not requeued
	tracker.Flush(context.Background())
	if len(publisher.batches) != 1 {
		t.Errorf("batches = %d", len(publisher.batches))
	}
}

func TestTrackerEmptyFlushIsQuiet(t *testing.T) {
	publisher := &fakePublisher{}
	tracker, mock := newTrackerFixture(t, publisher)

	tracker.Flush(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no inserts expected: %v", err)
	}
	if len(publisher.batches) != 0 {
		t.Errorf("batches = %+v", publisher.batches)
	}
}

func TestTrackerIgnoresEmptyTenant(t *testing.T) {
	tracker, mock := newTrackerFixture(t, nil)

	tracker.RecordRun("", "question", "fast", insight.TokenCounts{Input: 10}, 1)
	tracker.Flush(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no inserts expected: %v", err)
	}
}
