package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr                 string        `yaml:"addr"`
	DataDir              string        `yaml:"data_dir"`
	HistoryPath          string        `yaml:"history_path"`
	DBPath               string        `yaml:"db_path"`
	CycleInterval        time.Duration `yaml:"cycle_interval"`
	CPUSampleInterval    time.Duration `yaml:"cpu_sample_interval"`
	ProbeHost            string        `yaml:"probe_host"`
	ProbeTimeout         time.Duration `yaml:"probe_timeout"`
	StatsTimeout         time.Duration `yaml:"stats_timeout"`
	Retention            time.Duration `yaml:"retention"`
	BucketCount          int           `yaml:"bucket_count"`
	BucketWidth          time.Duration `yaml:"bucket_width"`
	ArchiveRetentionDays int           `yaml:"archive_retention_days"`
	CORSOrigin           string        `yaml:"cors_origin"`
	LogLevel             string        `yaml:"log_level"`
}

func Defaults() Config {
	return Config{
		Addr:                 ":8080",
		DataDir:              "./data",
		CycleInterval:        10 * time.Minute,
		CPUSampleInterval:    time.Second,
		ProbeHost:            "8.8.8.8",
		ProbeTimeout:         3 * time.Second,
		StatsTimeout:         5 * time.Second,
		Retention:            6 * time.Hour,
		BucketCount:          6,
		BucketWidth:          time.Hour,
		ArchiveRetentionDays: 14,
		CORSOrigin:           "*",
		LogLevel:             "info",
	}
}

// Load resolves configuration from defaults, an optional YAML file,
// APP_* environment variables and command line flags, in that order of
// increasing precedence.
func Load(args []string) (Config, error) {
	cfg := Defaults()

	fs := pflag.NewFlagSet("hostpulse", pflag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("APP_CONFIG"), "path to a YAML config file")
	addr := fs.String("addr", "", "HTTP listen address")
	dataDir := fs.String("data-dir", "", "directory for the history file and archive")
	cycle := fs.Duration("cycle-interval", 0, "period between sampling cycles")
	retention := fs.Duration("retention", 0, "maximum age of samples kept in the history window")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *configPath != "" {
		if err := loadFile(*configPath, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	if fs.Changed("addr") {
		cfg.Addr = *addr
	}
	if fs.Changed("data-dir") {
		cfg.DataDir = *dataDir
	}
	if fs.Changed("cycle-interval") {
		cfg.CycleInterval = *cycle
	}
	if fs.Changed("retention") {
		cfg.Retention = *retention
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}

	if cfg.HistoryPath == "" {
		cfg.HistoryPath = filepath.Join(cfg.DataDir, "history.json")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "app.db")
	}
	return cfg, cfg.validate()
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Addr = getenv("APP_ADDR", cfg.Addr)
	cfg.DataDir = getenv("APP_DATA_DIR", cfg.DataDir)
	cfg.HistoryPath = getenv("APP_HISTORY_PATH", cfg.HistoryPath)
	cfg.DBPath = getenv("APP_DB_PATH", cfg.DBPath)
	cfg.CycleInterval = getenvDuration("APP_CYCLE_INTERVAL", cfg.CycleInterval)
	cfg.CPUSampleInterval = getenvDuration("APP_CPU_SAMPLE_INTERVAL", cfg.CPUSampleInterval)
	cfg.ProbeHost = getenv("APP_PROBE_HOST", cfg.ProbeHost)
	cfg.ProbeTimeout = getenvDuration("APP_PROBE_TIMEOUT", cfg.ProbeTimeout)
	cfg.StatsTimeout = getenvDuration("APP_STATS_TIMEOUT", cfg.StatsTimeout)
	cfg.Retention = getenvDuration("APP_RETENTION", cfg.Retention)
	cfg.BucketCount = getenvInt("APP_BUCKET_COUNT", cfg.BucketCount)
	cfg.BucketWidth = getenvDuration("APP_BUCKET_WIDTH", cfg.BucketWidth)
	cfg.ArchiveRetentionDays = getenvInt("APP_ARCHIVE_RETENTION_DAYS", cfg.ArchiveRetentionDays)
	cfg.CORSOrigin = getenv("APP_CORS_ORIGIN", cfg.CORSOrigin)
	cfg.LogLevel = getenv("APP_LOG_LEVEL", cfg.LogLevel)
}

func (c Config) validate() error {
	switch {
	case c.CycleInterval <= 0:
		return fmt.Errorf("cycle interval must be positive, got %s", c.CycleInterval)
	case c.Retention <= 0:
		return fmt.Errorf("retention must be positive, got %s", c.Retention)
	case c.BucketCount <= 0:
		return fmt.Errorf("bucket count must be positive, got %d", c.BucketCount)
	case c.BucketWidth <= 0:
		return fmt.Errorf("bucket width must be positive, got %s", c.BucketWidth)
	case c.StatsTimeout <= 0:
		return fmt.Errorf("stats timeout must be positive, got %s", c.StatsTimeout)
	}
	return nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func getenvDuration(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return d
	}
	return dur
}

// Level maps LogLevel to a slog level, defaulting to info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
