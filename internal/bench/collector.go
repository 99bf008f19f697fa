package bench

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"costsim/internal/config"
)

const (
	metricUpdateLatency     = "update_latency_ms"
	metricSimulationLatency = "simulation_latency_ms"
)

// Stats 为单个指标滚动窗口的统计摘要，时间单位毫秒。
type Stats struct {
	Count int     `json:"count"`
	Last  float64 `json:"last"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// Collector 接收核心各环节的耗时样本：维护有界滚动窗口供
// 摘要查询，同时写入 Prometheus 直方图。自身不做任何决策。
type Collector struct {
	logger     *zap.Logger
	interval   time.Duration
	windowSize int

	mu      sync.Mutex
	windows map[string]*window

	registry      *prometheus.Registry
	updateHist    prometheus.Histogram
	simHist       prometheus.Histogram
	updateCounter prometheus.Counter
}

type window struct {
	values []float64
	last   float64
}

// NewCollector 创建采集器并注册 Prometheus 指标。
func NewCollector(cfg config.BenchmarkConfig, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 1000
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = 10 * time.Second
	}

	registry := prometheus.NewRegistry()
	updateHist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "costsim",
		Name:      "update_latency_seconds",
		Help:      "Order book update processing latency.",
		Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
	})
	simHist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "costsim",
		Name:      "simulation_latency_seconds",
		Help:      "End-to-end simulation latency.",
		Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
	})
	updateCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "costsim",
		Name:      "updates_total",
		Help:      "Total processed order book updates.",
	})
	registry.MustRegister(updateHist, simHist, updateCounter)

	return &Collector{
		logger:        logger,
		interval:      cfg.ReportInterval,
		windowSize:    cfg.WindowSize,
		windows:       make(map[string]*window),
		registry:      registry,
		updateHist:    updateHist,
		simHist:       simHist,
		updateCounter: updateCounter,
	}
}

// Registry 返回指标注册表，供监控端暴露 /metrics。
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveUpdate 记录一次盘口更新的处理耗时。
func (c *Collector) ObserveUpdate(d time.Duration) {
	c.updateHist.Observe(d.Seconds())
	c.updateCounter.Inc()
	c.record(metricUpdateLatency, float64(d.Microseconds())/1000)
}

// ObserveSimulation 记录一次模拟的处理耗时。
func (c *Collector) ObserveSimulation(d time.Duration) {
	c.simHist.Observe(d.Seconds())
	c.record(metricSimulationLatency, float64(d.Microseconds())/1000)
}

func (c *Collector) record(name string, ms float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[name]
	if !ok {
		w = &window{values: make([]float64, 0, c.windowSize)}
		c.windows[name] = w
	}
	w.values = append(w.values, ms)
	if len(w.values) > c.windowSize {
		w.values = w.values[1:]
	}
	w.last = ms
}

// Summary 返回全部指标的统计摘要。
func (c *Collector) Summary() map[string]Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]Stats, len(c.windows))
	for name, w := range c.windows {
		out[name] = summarize(w)
	}
	return out
}

// Run 周期性输出统计报告，直至 ctx 结束。
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for name, stats := range c.Summary() {
				c.logger.Info("性能统计",
					zap.String("metric", name),
					zap.Int("count", stats.Count),
					zap.Float64("avg_ms", stats.Avg),
					zap.Float64("p95_ms", stats.P95),
					zap.Float64("p99_ms", stats.P99),
				)
			}
		}
	}
}

func summarize(w *window) Stats {
	n := len(w.values)
	if n == 0 {
		return Stats{}
	}

	stats := Stats{
		Count: n,
		Last:  w.last,
		Min:   math.Inf(1),
		Max:   math.Inf(-1),
	}

	sum := 0.0
	for _, v := range w.values {
		sum += v
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
	}
	stats.Avg = sum / float64(n)

	sorted := make([]float64, n)
	copy(sorted, w.values)
	sort.Float64s(sorted)
	stats.P95 = percentile(sorted, 95)
	stats.P99 = percentile(sorted, 99)

	return stats
}

// percentile 取最近秩法分位数，输入需已升序。
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
