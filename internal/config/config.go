package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures runtime configuration sourced from an optional YAML file
// and environment variables. Environment variables win over the file.
type Config struct {
	Environment  string `yaml:"environment"`
	HTTPPort     string `yaml:"http_port"`
	DatabasePath string `yaml:"database_path"`
	LogDir       string `yaml:"log_dir"`
	Debug        bool   `yaml:"debug"`

	GeoIP    GeoIPConfig    `yaml:"geoip"`
	CrowdSec CrowdSecConfig `yaml:"crowdsec"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

// GeoIPConfig locates the offline city/ASN databases.
type GeoIPConfig struct {
	Dir            string `yaml:"dir"`
	LicenseKey     string `yaml:"license_key"`
	DownloadURL    string `yaml:"download_url"`
	UpdateSchedule string `yaml:"update_schedule"`
	WatchDir       bool   `yaml:"watch_dir"`
}

// CrowdSecConfig configures the CTI reputation client.
type CrowdSecConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	DailyQuota    int    `yaml:"daily_quota"`
	SafetyMargin  int    `yaml:"safety_margin"`
	PurgeSchedule string `yaml:"purge_schedule"`
}

// AnalysisConfig drives the scheduled pattern-detection and backfill jobs.
type AnalysisConfig struct {
	Schedule          string        `yaml:"schedule"`
	Lookback          time.Duration `yaml:"lookback"`
	BackfillSchedule  string        `yaml:"backfill_schedule"`
	BackfillBatchSize int           `yaml:"backfill_batch_size"`
	RetentionDays     int           `yaml:"retention_days"`
	RetentionSchedule string        `yaml:"retention_schedule"`
}

func defaults() Config {
	return Config{
		Environment:  "development",
		HTTPPort:     "8080",
		DatabasePath: filepath.Join("data", "gatewatch.db"),
		LogDir:       filepath.Join("data", "logs"),
		GeoIP: GeoIPConfig{
			Dir:            filepath.Join("data", "geoip"),
			DownloadURL:    "https://download.maxmind.com/app/geoip_download",
			UpdateSchedule: "0 4 * * 3",
			WatchDir:       true,
		},
		CrowdSec: CrowdSecConfig{
			BaseURL:       "https://cti.api.crowdsec.net",
			DailyQuota:    50,
			SafetyMargin:  5,
			PurgeSchedule: "30 0 * * *",
		},
		Analysis: AnalysisConfig{
			Schedule:          "@every 5m",
			Lookback:          time.Hour,
			BackfillSchedule:  "@every 15m",
			BackfillBatchSize: 500,
			RetentionDays:     90,
			RetentionSchedule: "0 3 * * *",
		},
	}
}

// Load reads the optional GATEWATCH_CONFIG file, applies env vars and falls
// back to defaults so the server can boot with zero configuration.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("GATEWATCH_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Environment = getEnv("GATEWATCH_ENV", cfg.Environment)
	cfg.HTTPPort = getEnv("GATEWATCH_HTTP_PORT", cfg.HTTPPort)
	cfg.DatabasePath = getEnv("GATEWATCH_DB_PATH", cfg.DatabasePath)
	cfg.LogDir = getEnv("GATEWATCH_LOG_DIR", cfg.LogDir)
	cfg.Debug = getEnvBool("GATEWATCH_DEBUG", cfg.Debug)

	cfg.GeoIP.Dir = getEnv("GATEWATCH_GEOIP_DIR", cfg.GeoIP.Dir)
	cfg.GeoIP.LicenseKey = getEnv("GATEWATCH_MAXMIND_LICENSE_KEY", cfg.GeoIP.LicenseKey)
	cfg.GeoIP.DownloadURL = getEnv("GATEWATCH_MAXMIND_DOWNLOAD_URL", cfg.GeoIP.DownloadURL)
	cfg.GeoIP.UpdateSchedule = getEnv("GATEWATCH_GEOIP_UPDATE_SCHEDULE", cfg.GeoIP.UpdateSchedule)
	cfg.GeoIP.WatchDir = getEnvBool("GATEWATCH_GEOIP_WATCH", cfg.GeoIP.WatchDir)

	cfg.CrowdSec.APIKey = getEnv("GATEWATCH_CROWDSEC_API_KEY", cfg.CrowdSec.APIKey)
	cfg.CrowdSec.BaseURL = getEnv("GATEWATCH_CROWDSEC_URL", cfg.CrowdSec.BaseURL)
	cfg.CrowdSec.DailyQuota = getEnvInt("GATEWATCH_CROWDSEC_DAILY_QUOTA", cfg.CrowdSec.DailyQuota)
	cfg.CrowdSec.SafetyMargin = getEnvInt("GATEWATCH_CROWDSEC_SAFETY_MARGIN", cfg.CrowdSec.SafetyMargin)
	cfg.CrowdSec.PurgeSchedule = getEnv("GATEWATCH_CROWDSEC_PURGE_SCHEDULE", cfg.CrowdSec.PurgeSchedule)

	cfg.Analysis.Schedule = getEnv("GATEWATCH_ANALYSIS_SCHEDULE", cfg.Analysis.Schedule)
	cfg.Analysis.Lookback = getEnvDuration("GATEWATCH_ANALYSIS_LOOKBACK", cfg.Analysis.Lookback)
	cfg.Analysis.BackfillSchedule = getEnv("GATEWATCH_BACKFILL_SCHEDULE", cfg.Analysis.BackfillSchedule)
	cfg.Analysis.BackfillBatchSize = getEnvInt("GATEWATCH_BACKFILL_BATCH_SIZE", cfg.Analysis.BackfillBatchSize)
	cfg.Analysis.RetentionDays = getEnvInt("GATEWATCH_RETENTION_DAYS", cfg.Analysis.RetentionDays)
	cfg.Analysis.RetentionSchedule = getEnv("GATEWATCH_RETENTION_SCHEDULE", cfg.Analysis.RetentionSchedule)

	if cfg.CrowdSec.SafetyMargin < 0 || cfg.CrowdSec.SafetyMargin >= cfg.CrowdSec.DailyQuota {
		return Config{}, fmt.Errorf("crowdsec safety margin %d must be in [0, %d)", cfg.CrowdSec.SafetyMargin, cfg.CrowdSec.DailyQuota)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
