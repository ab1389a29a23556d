package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Score   ScoreConfig   `yaml:"score" mapstructure:"score"`
	Stress  StressConfig  `yaml:"stress" mapstructure:"stress"`
	Alert   AlertConfig   `yaml:"alert" mapstructure:"alert"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// MetricsConfig configures the derived-metric engine.
type MetricsConfig struct {
	Lookback   int     `yaml:"lookback" mapstructure:"lookback"`
	MinSamples int     `yaml:"min_samples" mapstructure:"min_samples"`
	Method     string  `yaml:"method" mapstructure:"method"` // "std" or "mad"
	ZCap       float64 `yaml:"z_cap" mapstructure:"z_cap"`   // winsorization cap, 0 disables
}

// ScoreConfig configures the composite transmission score.
type ScoreConfig struct {
	Mapping       string             `yaml:"mapping" mapstructure:"mapping"` // "linear" or "logistic"
	Gain          float64            `yaml:"gain" mapstructure:"gain"`
	PosScale      float64            `yaml:"pos_scale" mapstructure:"pos_scale"`
	NegScale      float64            `yaml:"neg_scale" mapstructure:"neg_scale"`
	ZCap          float64            `yaml:"z_cap" mapstructure:"z_cap"` // cap on scaled z, 0 disables
	MinComponents int                `yaml:"min_components" mapstructure:"min_components"`
	Weights       map[string]float64 `yaml:"weights" mapstructure:"weights"`
	DynamicWeight bool               `yaml:"dynamic_weight" mapstructure:"dynamic_weight"`
	PCAWindow     int                `yaml:"pca_window" mapstructure:"pca_window"`
	PCAMinRows    int                `yaml:"pca_min_rows" mapstructure:"pca_min_rows"`
}

// StressConfig configures the stress aggregator component weights.
type StressConfig struct {
	Weights map[string]float64 `yaml:"weights" mapstructure:"weights"`
}

// AlertConfig configures the alert engine.
type AlertConfig struct {
	CacheTTLSecs int `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// BatchConfig configures range computation.
type BatchConfig struct {
	MaxConcurrentDays int `yaml:"max_concurrent_days" mapstructure:"max_concurrent_days"`
}

// ServerConfig configures the query API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("metrics.lookback", 60)
	v.SetDefault("metrics.min_samples", 20)
	v.SetDefault("metrics.method", "std")
	v.SetDefault("metrics.z_cap", 3.0)
	v.SetDefault("score.mapping", "linear")
	v.SetDefault("score.gain", 12.0)
	v.SetDefault("score.pos_scale", 1.0)
	v.SetDefault("score.neg_scale", 0.7)
	v.SetDefault("score.z_cap", 3.0)
	v.SetDefault("score.min_components", 3)
	v.SetDefault("score.dynamic_weight", false)
	v.SetDefault("score.pca_window", 120)
	v.SetDefault("score.pca_min_rows", 40)
	v.SetDefault("alert.cache_ttl_secs", 300)
	v.SetDefault("batch.max_concurrent_days", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
