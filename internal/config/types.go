package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了模拟器运行所需的全部配置项。
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Fees       FeesConfig       `mapstructure:"fees"`
	Book       BookConfig       `mapstructure:"book"`
	Models     ModelsConfig     `mapstructure:"models"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Benchmark  BenchmarkConfig  `mapstructure:"benchmark"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// FeedConfig 描述行情接入信息。
type FeedConfig struct {
	URL    string      `mapstructure:"url"`
	Symbol string      `mapstructure:"symbol"`
	Retry  RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重连机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// FeeTier 为一档费率，分别对应 maker 与 taker。
type FeeTier struct {
	Maker float64 `mapstructure:"maker"`
	Taker float64 `mapstructure:"taker"`
}

// FeesConfig 管理费率表及默认档位。
type FeesConfig struct {
	DefaultTier string             `mapstructure:"default_tier"`
	Tiers       map[string]FeeTier `mapstructure:"tiers"`
}

// BookConfig 控制订单簿统计窗口。
type BookConfig struct {
	DepthLevels      int `mapstructure:"depth_levels"`
	ImbalanceLevels  int `mapstructure:"imbalance_levels"`
	VolatilityWindow int `mapstructure:"volatility_window"`
}

// ModelsConfig 控制在线学习参数。
type ModelsConfig struct {
	BufferCapacity  int `mapstructure:"buffer_capacity"`
	WarmupSamples   int `mapstructure:"warmup_samples"`
	RetrainInterval int `mapstructure:"retrain_interval"`
}

// SimulationConfig 为默认模拟请求参数，每个新快照都会按此重算。
type SimulationConfig struct {
	OrderType  string  `mapstructure:"order_type"`
	Side       string  `mapstructure:"side"`
	Quantity   float64 `mapstructure:"quantity"`
	LimitPrice float64 `mapstructure:"limit_price"`
	Volatility float64 `mapstructure:"volatility"`
	FeeTier    string  `mapstructure:"fee_tier"`
}

// PipelineConfig 控制快照队列。
type PipelineConfig struct {
	SnapshotQueueSize int `mapstructure:"snapshot_queue_size"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MonitorConfig 控制监控接口。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// BenchmarkConfig 控制性能采样上报。
type BenchmarkConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ReportInterval time.Duration `mapstructure:"report_interval"`
	WindowSize     int           `mapstructure:"window_size"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Feed.URL == "" {
		err = multierr.Append(err, errors.New("feed.url 不能为空"))
	}
	if c.Feed.Symbol == "" {
		err = multierr.Append(err, errors.New("feed.symbol 不能为空"))
	}
	if c.Feed.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("feed.retry.max_attempts 必须大于0"))
	}
	if c.Feed.Retry.MinDelay <= 0 || c.Feed.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("feed.retry.delay 必须为正"))
	}
	if c.Feed.Retry.MinDelay > c.Feed.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("feed.retry.min_delay 不能大于 max_delay"))
	}
	if len(c.Fees.Tiers) == 0 {
		err = multierr.Append(err, errors.New("fees.tiers 至少包含一个档位"))
	}
	if c.Fees.DefaultTier == "" {
		err = multierr.Append(err, errors.New("fees.default_tier 不能为空"))
	} else if _, ok := c.Fees.Tiers[c.Fees.DefaultTier]; !ok && len(c.Fees.Tiers) > 0 {
		err = multierr.Append(err, fmt.Errorf("fees.default_tier %q 不在费率表中", c.Fees.DefaultTier))
	}
	for name, tier := range c.Fees.Tiers {
		if tier.Maker < 0 || tier.Taker < 0 {
			err = multierr.Append(err, fmt.Errorf("fees.tiers.%s 费率不能为负", name))
		}
	}
	if c.Book.DepthLevels <= 0 {
		err = multierr.Append(err, errors.New("book.depth_levels 必须大于0"))
	}
	if c.Book.ImbalanceLevels <= 0 {
		err = multierr.Append(err, errors.New("book.imbalance_levels 必须大于0"))
	}
	if c.Book.VolatilityWindow < 2 {
		err = multierr.Append(err, errors.New("book.volatility_window 至少为2"))
	}
	if c.Models.BufferCapacity <= 0 {
		err = multierr.Append(err, errors.New("models.buffer_capacity 必须大于0"))
	}
	if c.Models.WarmupSamples <= 0 {
		err = multierr.Append(err, errors.New("models.warmup_samples 必须大于0"))
	}
	if c.Models.RetrainInterval <= 0 {
		err = multierr.Append(err, errors.New("models.retrain_interval 必须大于0"))
	}
	if c.Models.WarmupSamples > c.Models.BufferCapacity {
		err = multierr.Append(err, errors.New("models.warmup_samples 不能大于 buffer_capacity"))
	}
	if c.Simulation.OrderType != "market" && c.Simulation.OrderType != "limit" {
		err = multierr.Append(err, errors.New("simulation.order_type 必须为 market 或 limit"))
	}
	if c.Simulation.Side != "buy" && c.Simulation.Side != "sell" {
		err = multierr.Append(err, errors.New("simulation.side 必须为 buy 或 sell"))
	}
	if c.Simulation.Quantity <= 0 {
		err = multierr.Append(err, errors.New("simulation.quantity 必须大于0"))
	}
	if c.Simulation.OrderType == "limit" && c.Simulation.LimitPrice <= 0 {
		err = multierr.Append(err, errors.New("simulation.limit_price 限价单必须大于0"))
	}
	if c.Simulation.Volatility < 0 {
		err = multierr.Append(err, errors.New("simulation.volatility 不能为负"))
	}
	if c.Pipeline.SnapshotQueueSize <= 0 {
		err = multierr.Append(err, errors.New("pipeline.snapshot_queue_size 必须大于0"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		err = multierr.Append(err, errors.New("monitor.port 必须位于(0,65535]"))
	}
	if c.Benchmark.Enabled && c.Benchmark.ReportInterval <= 0 {
		err = multierr.Append(err, errors.New("benchmark.report_interval 必须大于0"))
	}
	if c.Benchmark.Enabled && c.Benchmark.WindowSize <= 0 {
		err = multierr.Append(err, errors.New("benchmark.window_size 必须大于0"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
