package bench

import (
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"costsim/internal/config"
)

func newTestCollector(windowSize int) *Collector {
	return NewCollector(config.BenchmarkConfig{
		Enabled:        true,
		ReportInterval: time.Second,
		WindowSize:     windowSize,
	}, nil)
}

func TestCollectorSummaryStats(t *testing.T) {
	c := newTestCollector(1000)

	for i := 1; i <= 100; i++ {
		c.ObserveUpdate(time.Duration(i) * time.Millisecond)
	}

	stats, ok := c.Summary()[metricUpdateLatency]
	if !ok {
		t.Fatal("update latency window missing from summary")
	}

	if stats.Count != 100 {
		t.Errorf("count: got %d want 100", stats.Count)
	}
	if stats.Min != 1 || stats.Max != 100 {
		t.Errorf("min/max: got %v/%v want 1/100", stats.Min, stats.Max)
	}
	if math.Abs(stats.Avg-50.5) > 1e-9 {
		t.Errorf("avg: got %v want 50.5", stats.Avg)
	}
	if stats.Last != 100 {
		t.Errorf("last: got %v want 100", stats.Last)
	}
	// 最近秩法：P95 取第95个，P99 取第99个。
	if stats.P95 != 95 {
		t.Errorf("p95: got %v want 95", stats.P95)
	}
	if stats.P99 != 99 {
		t.Errorf("p99: got %v want 99", stats.P99)
	}
}

func TestCollectorWindowBounded(t *testing.T) {
	c := newTestCollector(10)

	for i := 1; i <= 25; i++ {
		c.ObserveSimulation(time.Duration(i) * time.Millisecond)
	}

	stats := c.Summary()[metricSimulationLatency]
	if stats.Count != 10 {
		t.Errorf("window should cap at 10, got %d", stats.Count)
	}
	if stats.Min != 16 {
		t.Errorf("oldest samples should be evicted, min got %v want 16", stats.Min)
	}
	if stats.Max != 25 {
		t.Errorf("max: got %v want 25", stats.Max)
	}
}

func TestCollectorEmptySummary(t *testing.T) {
	c := newTestCollector(10)

	if got := len(c.Summary()); got != 0 {
		t.Errorf("fresh collector should report no windows, got %d", got)
	}
}

func TestCollectorPrometheusCounters(t *testing.T) {
	c := newTestCollector(10)

	c.ObserveUpdate(time.Millisecond)
	c.ObserveUpdate(2 * time.Millisecond)
	c.ObserveUpdate(3 * time.Millisecond)

	if got := testutil.ToFloat64(c.updateCounter); got != 3 {
		t.Errorf("updates counter: got %v want 3", got)
	}
	if got := testutil.CollectAndCount(c.updateHist); got != 1 {
		t.Errorf("update histogram should expose one series, got %d", got)
	}
}

func TestPercentileNearestRank(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}

	if got := percentile(sorted, 50); got != 2 {
		t.Errorf("p50: got %v want 2", got)
	}
	if got := percentile(sorted, 100); got != 4 {
		t.Errorf("p100: got %v want 4", got)
	}
	if got := percentile(nil, 95); got != 0 {
		t.Errorf("empty input: got %v want 0", got)
	}
}
