package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GATEWATCH_DB_PATH", filepath.Join(dir, "data", "test.db"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 50, cfg.CrowdSec.DailyQuota)
	assert.Equal(t, 5, cfg.CrowdSec.SafetyMargin)
	assert.Equal(t, time.Hour, cfg.Analysis.Lookback)
	assert.DirExists(t, filepath.Join(dir, "data"))
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GATEWATCH_DB_PATH", filepath.Join(dir, "test.db"))
	t.Setenv("GATEWATCH_HTTP_PORT", "9090")
	t.Setenv("GATEWATCH_CROWDSEC_DAILY_QUOTA", "100")
	t.Setenv("GATEWATCH_ANALYSIS_LOOKBACK", "30m")
	t.Setenv("GATEWATCH_DEBUG", "true")
	t.Setenv("GATEWATCH_BACKFILL_BATCH_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 100, cfg.CrowdSec.DailyQuota)
	assert.Equal(t, 30*time.Minute, cfg.Analysis.Lookback)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 500, cfg.Analysis.BackfillBatchSize)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gatewatch.yaml")
	content := `
http_port: "7070"
crowdsec:
  api_key: from-file
  daily_quota: 60
analysis:
  lookback: 2h
geoip:
  dir: /srv/geoip
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("GATEWATCH_CONFIG", path)
	t.Setenv("GATEWATCH_DB_PATH", filepath.Join(dir, "test.db"))
	t.Setenv("GATEWATCH_HTTP_PORT", "6060")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "6060", cfg.HTTPPort, "env wins over file")
	assert.Equal(t, "from-file", cfg.CrowdSec.APIKey)
	assert.Equal(t, 60, cfg.CrowdSec.DailyQuota)
	assert.Equal(t, 5, cfg.CrowdSec.SafetyMargin, "unset keys keep defaults")
	assert.Equal(t, 2*time.Hour, cfg.Analysis.Lookback)
	assert.Equal(t, "/srv/geoip", cfg.GeoIP.Dir)
}

func TestLoad_InvalidFile(t *testing.T) {
	t.Setenv("GATEWATCH_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidMargin(t *testing.T) {
	t.Setenv("GATEWATCH_DB_PATH", filepath.Join(t.TempDir(), "test.db"))
	t.Setenv("GATEWATCH_CROWDSEC_SAFETY_MARGIN", "50")
	_, err := Load()
	assert.Error(t, err)
}
