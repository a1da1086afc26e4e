package config

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madddiyarn/regulus/internal/conjunction"
	"github.com/madddiyarn/regulus/internal/errors"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "regulus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, time.Minute, cfg.Catalog.ReloadInterval)
	assert.Equal(t, runtime.NumCPU(), cfg.Detection.Workers)

	want := conjunction.DefaultConfig()
	want.Workers = runtime.NumCPU()
	assert.Equal(t, want, cfg.Conjunction())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
server:
  addr: ":9090"
  shutdown_timeout: 10s
catalog:
  spool_dir: /srv/spool
  reload_interval: 5m
store:
  path: /srv/regulus.db
  expire_after: 72h
detection:
  samples: 400
  workers: 3
  default_threshold_km: 10
  stale_after: 96h
risk:
  critical_km: 0.5
  high_km: 1.5
  medium_km: 4
`)
	cfg, err := Load(path, testLogger)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Catalog.ReloadInterval)
	assert.Equal(t, "/srv/spool", cfg.Catalog.SpoolDir)
	assert.Equal(t, 72*time.Hour, cfg.Store.ExpireAfter)

	cc := cfg.Conjunction()
	assert.Equal(t, 400, cc.Samples)
	assert.Equal(t, 3, cc.Workers)
	assert.Equal(t, 10.0, cc.DefaultThresholdKm)
	assert.Equal(t, 96*time.Hour, cc.StaleAfter)
	assert.Equal(t, conjunction.Boundaries{CriticalKm: 0.5, HighKm: 1.5, MediumKm: 4}, cc.Risk)

	// Unset fields keep their defaults.
	assert.Equal(t, 40, cc.RefineIterations)
	assert.Equal(t, 24.0, cc.DefaultHorizonHours)
	assert.Equal(t, "sgp4", cc.SourceTag)
}

// TestLoadExplicitZeros checks that a zero written in the file is kept where
// zero has a meaning of its own.
func TestLoadExplicitZeros(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
server:
  max_detections: 0
  max_detections_per_client: 0
detection:
  refine_iterations: 0
risk:
  critical_km: 0.5
`)
	cfg, err := Load(path, testLogger)
	require.NoError(t, err)

	assert.Zero(t, cfg.Server.MaxDetections, "0 is unlimited")
	assert.Zero(t, cfg.Server.MaxDetectionsPerClient)
	assert.Zero(t, cfg.Conjunction().RefineIterations, "0 disables refinement")
	assert.Equal(t, conjunction.Boundaries{CriticalKm: 0.5, HighKm: 2, MediumKm: 3}, cfg.Risk,
		"omitted boundaries keep their defaults")
	assert.Equal(t, 200, cfg.Detection.Samples)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "server: [unterminated"},
		{"non-monotone risk", "risk: {critical_km: 2, high_km: 1, medium_km: 3}"},
		{"negative samples", "detection: {samples: -4}"},
		{"zero workers", "detection: {workers: 0}"},
		{"default horizon beyond max", "detection: {default_horizon_hours: 200}"},
		{"reload too fast", "catalog: {reload_interval: 10ms}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), tt.body), testLogger)
			require.Error(t, err)
			assert.True(t, errors.IsInvalidArgument(err), "got %v", err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), testLogger)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REGULUS_HTTP_ADDR", ":7070")
	t.Setenv("REGULUS_DB_PATH", "/tmp/x.db")
	t.Setenv("REGULUS_WORKERS", "6")
	t.Setenv("REGULUS_DEFAULT_THRESHOLD_KM", "2.5")
	t.Setenv("REGULUS_STALE_AFTER", "3600")

	cfg, err := Load("", testLogger)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "/tmp/x.db", cfg.Store.Path)
	assert.Equal(t, 6, cfg.Detection.Workers)
	assert.Equal(t, 2.5, cfg.Detection.DefaultThresholdKm)
	assert.Equal(t, time.Hour, cfg.Detection.StaleAfter)
}

func TestEnvInvalidIgnored(t *testing.T) {
	t.Setenv("REGULUS_WORKERS", "many")
	t.Setenv("REGULUS_DEFAULT_THRESHOLD_KM", "-1")
	t.Setenv("REGULUS_STALE_AFTER", "0")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	path := writeConfig(t, t.TempDir(), "detection: {workers: 2}\n")
	cfg, err := Load(path, logger)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Detection.Workers)
	assert.Equal(t, 5.0, cfg.Detection.DefaultThresholdKm)
	assert.Equal(t, 7*24*time.Hour, cfg.Detection.StaleAfter)

	out := buf.String()
	for _, name := range []string{"REGULUS_WORKERS", "REGULUS_DEFAULT_THRESHOLD_KM", "REGULUS_STALE_AFTER"} {
		assert.Contains(t, out, "invalid "+name)
	}
}

func TestLoaderHotReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "detection: {default_threshold_km: 5}\n")

	l, err := NewLoader(path, testLogger)
	require.NoError(t, err)

	changed := make(chan *Config, 4)
	l.OnChange(func(c *Config) { changed <- c })

	stop, err := l.Watch()
	require.NoError(t, err)
	defer stop()

	// A broken file is ignored.
	writeConfig(t, dir, "risk: {critical_km: 3, high_km: 2, medium_km: 1}\n")
	writeConfig(t, dir, "detection: {default_threshold_km: 8}\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changed:
			if c.Detection.DefaultThresholdKm == 8 {
				assert.Equal(t, 8.0, l.Config().Detection.DefaultThresholdKm)
				return
			}
		case <-deadline:
			t.Fatalf("config was not reloaded; threshold = %g", l.Config().Detection.DefaultThresholdKm)
		}
	}
}

func TestLoaderReloadKeepsOldOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "detection: {samples: 300}\n")

	l, err := NewLoader(path, testLogger)
	require.NoError(t, err)

	calls := 0
	l.OnChange(func(*Config) { calls++ })

	writeConfig(t, dir, "detection: {samples: 1}\n")
	_, err = l.Reload()
	require.Error(t, err)
	assert.Equal(t, 300, l.Config().Detection.Samples)
	assert.Zero(t, calls)

	writeConfig(t, dir, "detection: {samples: 500}\n")
	cfg, err := l.Reload()
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Detection.Samples)
	assert.Equal(t, 1, calls)
}
