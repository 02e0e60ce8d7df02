// Package config loads the eafes binary configuration from defaults, an
// optional YAML file and EAFES_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/Broccode/acci-eaf-sub010/adapters/nats"
	"github.com/Broccode/acci-eaf-sub010/adapters/sqlstore"
)

const EnvPrefix = "EAFES"

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Database  sqlstore.Config `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Snapshots SnapshotConfig  `mapstructure:"snapshots"`
	Projector ProjectorConfig `mapstructure:"projector"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// NATSConfig enables publishing of committed events when URL is set.
type NATSConfig struct {
	URL     string             `mapstructure:"url" validate:"omitempty,url"`
	Stream  nats.StreamConfig  `mapstructure:"stream"`
	Breaker nats.BreakerConfig `mapstructure:"breaker"`
}

func (c NATSConfig) Enabled() bool { return c.URL != "" }

type SnapshotConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=sql nats none"`
	Every   uint64 `mapstructure:"every"`
	Bucket  string `mapstructure:"bucket"`
	// CacheSize keeps that many snapshots in memory; zero disables the cache.
	CacheSize int           `mapstructure:"cache_size" validate:"gte=0"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
}

type ProjectorConfig struct {
	BatchSize    int           `mapstructure:"batch_size" validate:"gt=0"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	Tenants      []string      `mapstructure:"tenants"`
}

type MetricsConfig struct {
	// Addr serves /metrics when set, e.g. ":9090".
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("database.url", "sqlite:file:eafes.db")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.conn_max_lifetime", "0s")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.stream.stream", nats.DefaultStreamName)
	v.SetDefault("nats.stream.subject_prefix", nats.DefaultSubjectPrefix)
	v.SetDefault("nats.stream.max_age", "0s")
	v.SetDefault("nats.stream.duplicates", "2m")
	v.SetDefault("nats.breaker.failure_threshold", 5)
	v.SetDefault("nats.breaker.timeout", "30s")
	v.SetDefault("nats.breaker.max_requests", 1)

	v.SetDefault("snapshots.backend", "sql")
	v.SetDefault("snapshots.every", 50)
	v.SetDefault("snapshots.bucket", "eafes_snapshots")
	v.SetDefault("snapshots.cache_size", 1024)
	v.SetDefault("snapshots.cache_ttl", "0s")

	v.SetDefault("projector.batch_size", 256)
	v.SetDefault("projector.poll_interval", "500ms")
	v.SetDefault("projector.tenants", []string{})

	v.SetDefault("metrics.addr", "")
}

// Load reads the configuration. An empty file looks for ./eafes.yaml and
// ./config/eafes.yaml and is fine when neither exists.
func Load(file string) (Config, error) {
	var cfg Config

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.SetConfigName("eafes")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Snapshots.Backend == "nats" && !c.NATS.Enabled() {
		return errors.New("invalid config: nats snapshots need nats.url")
	}
	return nil
}

// NewLogger builds the root logger.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
