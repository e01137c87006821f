// Package config loads the application configuration from a YAML file and
// the environment, and owns the global logger setup.
package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/undergis/spatialid/internal/model"
	"github.com/undergis/spatialid/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// EngineConfig carries the default encoding options. Command flags and
// request bodies may override individual fields per invocation.
type EngineConfig struct {
	Zoom              uint8  `yaml:"zoom" mapstructure:"zoom"`
	Policy            string `yaml:"policy" mapstructure:"policy"`
	MinMergeZoom      uint8  `yaml:"min_merge_zoom" mapstructure:"min_merge_zoom"`
	MaxCandidateCells int    `yaml:"max_candidate_cells" mapstructure:"max_candidate_cells"`
	CRS               int    `yaml:"crs" mapstructure:"crs"`
	Workers           int    `yaml:"workers" mapstructure:"workers"`
}

// Options converts the section into engine options.
func (e EngineConfig) Options() model.Options {
	return model.Options{
		Zoom:              e.Zoom,
		Policy:            model.Policy(e.Policy),
		MinMergeZoom:      e.MinMergeZoom,
		MaxCandidateCells: e.MaxCandidateCells,
		CRS:               e.CRS,
		Workers:           e.Workers,
	}
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	Path        string           `yaml:"path" mapstructure:"path"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	ChunkSize int `yaml:"chunk_size" mapstructure:"chunk_size"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr           string   `yaml:"addr" mapstructure:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RateLimit      float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	MaxBatchRuns   int      `yaml:"max_batch_runs" mapstructure:"max_batch_runs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func newViper() *viper.Viper {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SPATIALID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("engine.zoom", 26)
	v.SetDefault("engine.policy", string(model.PolicyExact))
	v.SetDefault("engine.min_merge_zoom", 14)
	v.SetDefault("engine.max_candidate_cells", 50_000_000)
	v.SetDefault("engine.crs", 4326)
	v.SetDefault("engine.workers", 8)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "spatialid.db")
	v.SetDefault("batch.chunk_size", 256)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.max_batch_runs", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	return v
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := newViper()

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

// Default returns the configuration with every default applied and no file
// or environment input.
func Default() (*Config, error) {
	var cfg Config
	if err := newViper().Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal defaults")
	}
	return &cfg, nil
}

// WriteDefault writes the default configuration as YAML to path. It refuses
// to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return eris.Errorf("config: %s already exists", path)
	}

	cfg, err := Default()
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return eris.Wrap(err, "config: marshal defaults")
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return eris.Wrapf(err, "config: write %s", path)
	}
	return nil
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
