package pipeline

import (
	"context"
	"testing"
	"time"

	"costsim/internal/book"
	"costsim/internal/config"
)

type updateLatencyRecorder struct {
	count int
}

func (r *updateLatencyRecorder) ObserveUpdate(time.Duration) { r.count++ }

func newTestIngestion(queueSize int, latency LatencySink) (*Ingestion, chan book.Update) {
	orderBook := book.New("BTC-USDT-SWAP", config.BookConfig{
		DepthLevels:      10,
		ImbalanceLevels:  5,
		VolatilityWindow: 50,
	}, nil)
	updates := make(chan book.Update, 16)
	return New(orderBook, updates, queueSize, latency, nil), updates
}

func runIngestion(t *testing.T, p *Ingestion) chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- p.Run(context.Background())
	}()
	return done
}

func TestRunPublishesSnapshots(t *testing.T) {
	recorder := &updateLatencyRecorder{}
	p, updates := newTestIngestion(8, recorder)
	done := runIngestion(t, p)

	updates <- book.Update{Side: book.SideBid, Price: 100, Quantity: 1, Sequence: 1}
	updates <- book.Update{Side: book.SideAsk, Price: 101, Quantity: 2, Sequence: 2}
	close(updates)

	if err := <-done; err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	var snapshots []book.Snapshot
	for snapshot := range p.Snapshots() {
		snapshots = append(snapshots, snapshot)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
	}
	if snapshots[0].Sequence != 1 || snapshots[1].Sequence != 2 {
		t.Errorf("snapshot sequences out of order: %d, %d", snapshots[0].Sequence, snapshots[1].Sequence)
	}
	if recorder.count != 2 {
		t.Errorf("latency sink calls: got %d want 2", recorder.count)
	}
}

func TestRunDropsOldestWhenQueueFull(t *testing.T) {
	p, updates := newTestIngestion(1, nil)
	done := runIngestion(t, p)

	// 无人消费，队列容量1：旧快照被挤出，最新快照留存。
	updates <- book.Update{Side: book.SideBid, Price: 100, Quantity: 1, Sequence: 1}
	updates <- book.Update{Side: book.SideBid, Price: 99, Quantity: 1, Sequence: 2}
	updates <- book.Update{Side: book.SideBid, Price: 98, Quantity: 1, Sequence: 3}
	close(updates)

	if err := <-done; err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	var last book.Snapshot
	count := 0
	for snapshot := range p.Snapshots() {
		last = snapshot
		count++
	}
	if count != 1 {
		t.Fatalf("expected 1 surviving snapshot, got %d", count)
	}
	if last.Sequence != 3 {
		t.Errorf("surviving snapshot should be the latest, got sequence %d", last.Sequence)
	}
}

func TestRunSkipsRejectedUpdates(t *testing.T) {
	recorder := &updateLatencyRecorder{}
	p, updates := newTestIngestion(8, recorder)
	done := runIngestion(t, p)

	updates <- book.Update{Side: book.SideBid, Price: 100, Quantity: 1, Sequence: 1}
	updates <- book.Update{Side: book.SideAsk, Price: 101, Quantity: 1, Sequence: 2}
	// 重复序号：静默丢弃。
	updates <- book.Update{Side: book.SideBid, Price: 100, Quantity: 5, Sequence: 2}
	// 交叉盘口：拒绝。
	updates <- book.Update{Side: book.SideAsk, Price: 99, Quantity: 1, Sequence: 3}
	// 结构非法：丢弃。
	updates <- book.Update{Side: book.SideBid, Price: -1, Quantity: 1, Sequence: 4}
	updates <- book.Update{Side: book.SideBid, Price: 99.5, Quantity: 1, Sequence: 5}
	close(updates)

	if err := <-done; err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	var sequences []int64
	for snapshot := range p.Snapshots() {
		sequences = append(sequences, snapshot.Sequence)
	}
	want := []int64{1, 2, 5}
	if len(sequences) != len(want) {
		t.Fatalf("expected %v, got %v", want, sequences)
	}
	for i := range want {
		if sequences[i] != want[i] {
			t.Errorf("published sequences: got %v want %v", sequences, want)
		}
	}
	// 被拒绝的更新同样计入处理耗时。
	if recorder.count != 6 {
		t.Errorf("latency sink calls: got %d want 6", recorder.count)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	p, _ := newTestIngestion(8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop on context cancel")
	}

	// 退出后快照队列已关闭。
	if _, ok := <-p.Snapshots(); ok {
		t.Error("snapshot channel should be closed after shutdown")
	}
}
