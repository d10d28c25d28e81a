// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Adapter AdapterConfig `mapstructure:"adapter"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// WorkerConfig governs the processing pool.
type WorkerConfig struct {
	Concurrency      int `mapstructure:"concurrency"`
	QueueDepth       int `mapstructure:"queue_depth"`
	MaxRedeliveries  int `mapstructure:"max_redeliveries"`
	RedeliveryPauseS int `mapstructure:"redelivery_pause_seconds"`
}

// AdapterConfig selects and configures the scrape adapter.
type AdapterConfig struct {
	Mode           string `mapstructure:"mode"` // "simulated" or "live"
	BaseURL        string `mapstructure:"base_url"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxPosts       int    `mapstructure:"max_posts"`
}

// StorageConfig sets the export sink provider and object layout.
type StorageConfig struct {
	Provider      string `mapstructure:"provider"` // "gcs", "local", or "memory"
	GCSBucket     string `mapstructure:"gcs_bucket"`
	LocalBaseDir  string `mapstructure:"local_base_dir"`
	Prefix        string `mapstructure:"prefix"`
	ContentType   string `mapstructure:"content_type"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// DBConfig controls access to the relational task store.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// PubSubConfig holds metadata for enqueue notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// NotifyConfig configures the notification channel client.
type NotifyConfig struct {
	URL         string `mapstructure:"url"`
	BaseDelayMs int    `mapstructure:"base_delay_ms"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPEDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.queue_depth", 64)
	v.SetDefault("worker.max_redeliveries", 3)
	v.SetDefault("worker.redelivery_pause_seconds", 5)
	v.SetDefault("adapter.mode", "simulated")
	v.SetDefault("adapter.user_agent", "scrapedeck-bot/0.1")
	v.SetDefault("adapter.timeout_seconds", 30)
	v.SetDefault("adapter.max_posts", 50)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.prefix", "exports")
	v.SetDefault("storage.content_type", "application/json")
	v.SetDefault("notify.url", "ws://localhost:8090/ws")
	v.SetDefault("notify.base_delay_ms", 1000)
	v.SetDefault("notify.max_attempts", 5)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	switch c.Adapter.Mode {
	case "simulated":
	case "live":
		if c.Adapter.BaseURL == "" {
			return fmt.Errorf("adapter.base_url must be set when mode is live")
		}
	default:
		return fmt.Errorf("adapter.mode must be 'simulated' or 'live'")
	}
	switch c.Storage.Provider {
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when provider is gcs")
		}
	case "local":
		if c.Storage.LocalBaseDir == "" {
			return fmt.Errorf("storage.local_base_dir must be set when provider is local")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.provider: %s", c.Storage.Provider)
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	if c.Notify.URL == "" {
		return fmt.Errorf("notify.url must be set")
	}
	if c.Notify.MaxAttempts <= 0 {
		return fmt.Errorf("notify.max_attempts must be > 0")
	}
	return nil
}

// AdapterTimeout converts the adapter timeout config into a duration.
func (c Config) AdapterTimeout() time.Duration {
	return time.Duration(c.Adapter.TimeoutSeconds) * time.Second
}

// NotifyBaseDelay converts the notify backoff base into a duration.
func (c Config) NotifyBaseDelay() time.Duration {
	return time.Duration(c.Notify.BaseDelayMs) * time.Millisecond
}
