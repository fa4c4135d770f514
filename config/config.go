package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Report     ReportConfig     `yaml:"report"`
	Retention  RetentionConfig  `yaml:"retention"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// IngestConfig holds the upstream status poller configuration.
type IngestConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
	HTTPProxy       string        `yaml:"http_proxy"`
	Timezone        string        `yaml:"timezone"`
	TimestampLayout string        `yaml:"timestamp_layout"`
	Request         IngestRequest `yaml:"request"`
}

// IngestRequest defines the HTTP request sent upstream.
type IngestRequest struct {
	URL      string            `yaml:"url"`
	Headers  map[string]string `yaml:"headers"`
	PageSize int               `yaml:"pageSize"`
	Payload  map[string]any    `yaml:"payload"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	// DSN is a postgres DSN, or "sqlite:<path>" for an embedded database.
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableTimescale        bool   `yaml:"enable_timescale"`
}

// ReportConfig holds the operational report settings.
type ReportConfig struct {
	Timezone            string         `yaml:"timezone"`
	Location            *time.Location `yaml:"-"`
	CompetenceCutoffDay int            `yaml:"competence_cutoff_day"`
	MaxSpanDays         int            `yaml:"max_span_days"`
	DefaultLookbackDays int            `yaml:"default_lookback_days"`
}

// RetentionConfig controls the pruning of old closed intervals.
type RetentionConfig struct {
	Schedule string `yaml:"schedule"`
	KeepDays int    `yaml:"keep_days"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Ingest.IntervalSeconds <= 0 {
		cfg.Ingest.IntervalSeconds = 60
	}
	cfg.Ingest.Interval = time.Duration(cfg.Ingest.IntervalSeconds) * time.Second
	if cfg.Ingest.Request.PageSize <= 0 {
		cfg.Ingest.Request.PageSize = 100
	}
	if cfg.Ingest.Timezone == "" {
		cfg.Ingest.Timezone = "UTC"
	}
	if cfg.Ingest.TimestampLayout == "" {
		cfg.Ingest.TimestampLayout = "2006-01-02 15:04:05"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Report.Timezone == "" {
		cfg.Report.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(cfg.Report.Timezone)
	if err != nil {
		return err
	}
	cfg.Report.Location = loc
	if cfg.Report.CompetenceCutoffDay <= 0 || cfg.Report.CompetenceCutoffDay > 31 {
		cfg.Report.CompetenceCutoffDay = 26
	}
	if cfg.Report.MaxSpanDays <= 0 {
		cfg.Report.MaxSpanDays = 731
	}
	if cfg.Report.DefaultLookbackDays <= 0 {
		cfg.Report.DefaultLookbackDays = 90
	}

	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = "30 3 * * *"
	}
	return nil
}
