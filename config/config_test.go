package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: "sqlite:fleet.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Ingest.Interval)
	assert.Equal(t, 100, cfg.Ingest.Request.PageSize)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, 3600, cfg.Push.TTL)
	assert.Equal(t, 26, cfg.Report.CompetenceCutoffDay)
	assert.Equal(t, time.UTC, cfg.Report.Location)
	assert.Equal(t, "30 3 * * *", cfg.Retention.Schedule)
	assert.Equal(t, 0, cfg.Retention.KeepDays)
}

func TestLoad_Values(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  allowed_origins: ["https://fleet.example.com"]
ingest:
  enabled: true
  interval_seconds: 15
  timezone: "America/Sao_Paulo"
  request:
    url: "https://upstream.example.com/assetstatus"
    pageSize: 50
    headers:
      Authorization: "Bearer token"
report:
  timezone: "America/Sao_Paulo"
  competence_cutoff_day: 21
  max_span_days: 400
worker_pool:
  size: 4
retention:
  keep_days: 365
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"https://fleet.example.com"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Ingest.Enabled)
	assert.Equal(t, 15*time.Second, cfg.Ingest.Interval)
	assert.Equal(t, 50, cfg.Ingest.Request.PageSize)
	assert.Equal(t, "Bearer token", cfg.Ingest.Request.Headers["Authorization"])
	assert.Equal(t, "America/Sao_Paulo", cfg.Report.Location.String())
	assert.Equal(t, 21, cfg.Report.CompetenceCutoffDay)
	assert.Equal(t, 400, cfg.Report.MaxSpanDays)
	assert.Equal(t, 4, cfg.WorkerPool.Size)
	assert.Equal(t, 365, cfg.Retention.KeepDays)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not, a, map]"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "report:\n  timezone: Mars/Olympus\n"))
	assert.Error(t, err)
}
