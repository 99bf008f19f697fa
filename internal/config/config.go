package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "costsim"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("feed.url", "wss://ws.gomarket-cpp.goquant.io/ws/l2-orderbook/okx/")
	v.SetDefault("feed.symbol", "BTC-USDT-SWAP")
	v.SetDefault("feed.retry.max_attempts", 5)
	v.SetDefault("feed.retry.min_delay", "500ms")
	v.SetDefault("feed.retry.max_delay", "5s")

	v.SetDefault("fees.default_tier", "VIP0")
	// OKX 现货档位，maker/taker 均为小数费率。
	v.SetDefault("fees.tiers", map[string]map[string]float64{
		"VIP0": {"maker": 0.0008, "taker": 0.0010},
		"VIP1": {"maker": 0.0007, "taker": 0.0009},
		"VIP2": {"maker": 0.0006, "taker": 0.0008},
		"VIP3": {"maker": 0.0005, "taker": 0.0007},
		"VIP4": {"maker": 0.0003, "taker": 0.0005},
		"VIP5": {"maker": 0.0000, "taker": 0.0003},
	})

	v.SetDefault("book.depth_levels", 10)
	v.SetDefault("book.imbalance_levels", 5)
	v.SetDefault("book.volatility_window", 120)

	v.SetDefault("models.buffer_capacity", 5000)
	v.SetDefault("models.warmup_samples", 100)
	v.SetDefault("models.retrain_interval", 500)

	v.SetDefault("simulation.order_type", "market")
	v.SetDefault("simulation.side", "buy")
	v.SetDefault("simulation.quantity", 100.0) // 美元等值名义金额
	v.SetDefault("simulation.volatility", 0.02)
	v.SetDefault("simulation.fee_tier", "VIP0")

	v.SetDefault("pipeline.snapshot_queue_size", 64)

	v.SetDefault("database.path", "data/costsim.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.port", 8787)

	v.SetDefault("benchmark.enabled", true)
	v.SetDefault("benchmark.report_interval", "10s")
	v.SetDefault("benchmark.window_size", 1000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
