package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"costsim/internal/config"
	"costsim/internal/sim"
	"costsim/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	sqliteStore, err := store.NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("open in-memory store failed: %v", err)
	}
	t.Cleanup(func() { _ = sqliteStore.Close() })

	svc, err := NewService(sqliteStore, nil)
	if err != nil {
		t.Fatalf("new service failed: %v", err)
	}
	return svc
}

func TestRecordAndListEvents(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.RecordResult(ctx, sim.Result{
		ID:          "r-1",
		Symbol:      "BTC-USDT-SWAP",
		SlippagePct: 0.05,
		TotalCost:   1.23,
	})
	svc.RecordOutcome(ctx, sim.Outcome{ResultID: "r-1", ObservedSlippage: 0.08})
	svc.RecordError(ctx, "行情断流", errors.New("connection reset"), map[string]interface{}{"attempt": 2})

	results, err := svc.ListEvents(ctx, EventSimulationResult, 10)
	if err != nil {
		t.Fatalf("list results failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result event, got %d", len(results))
	}
	if results[0].Type != EventSimulationResult {
		t.Errorf("event type: got %q", results[0].Type)
	}
	if results[0].Timestamp.IsZero() {
		t.Error("event timestamp should be set")
	}

	all, err := svc.ListEvents(ctx, "", 10)
	if err != nil {
		t.Fatalf("list all failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	// 按写入倒序返回。
	if all[0].Type != EventError || all[2].Type != EventSimulationResult {
		t.Errorf("events not in reverse insertion order: %v, %v, %v", all[0].Type, all[1].Type, all[2].Type)
	}
}

func TestListEventsRespectsLimit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.RecordOutcome(ctx, sim.Outcome{ResultID: "r", ObservedSlippage: float64(i)})
	}

	events, err := svc.ListEvents(ctx, EventOutcome, 3)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("expected limit 3, got %d", len(events))
	}
}

func TestRecordDefaultsTimestamp(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	if err := svc.Record(ctx, Event{Type: EventOutcome, Payload: OutcomePayload{}}); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	events, err := svc.ListEvents(ctx, EventOutcome, 1)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Timestamp.Before(before) {
		t.Errorf("zero timestamp should default to now, got %v", events[0].Timestamp)
	}
}
