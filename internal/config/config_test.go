package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/counsel/internal/analyzer"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, analyzer.DefaultThresholds(), cfg.Thresholds)
	assert.True(t, cfg.Cache.Enabled)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counsel.yaml")
	data := `
server:
  addr: ":9090"
thresholds:
  direct: 2.5
  tier1: 5
  tier2: 7.5
cache:
  enabled: true
  base_ttl: 30m
  max_size: 100
engine:
  revalidate_on_hit: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, analyzer.Thresholds{Direct: 2.5, Tier1: 5, Tier2: 7.5}, cfg.Thresholds)
	assert.Equal(t, 30*time.Minute, cfg.Cache.BaseTTL)
	assert.Equal(t, 100, cfg.Cache.MaxSize)
	assert.True(t, cfg.Engine.RevalidateOnHit)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COUNSEL_ADDR", ":7070")
	t.Setenv("COUNSEL_NATS_URL", "nats://broker:4222")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
}

func TestInvalidThresholdsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counsel.yaml")
	data := `
thresholds:
  direct: 6
  tier1: 3
  tier2: 8
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

type capturedTuner struct {
	ch chan analyzer.Thresholds
}

func (c *capturedTuner) SetThresholds(t analyzer.Thresholds) { c.ch <- t }

func TestWatchThresholdsReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counsel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("thresholds:\n  direct: 3\n  tier1: 6\n  tier2: 8\n"), 0o644))

	tuner := &capturedTuner{ch: make(chan analyzer.Thresholds, 1)}
	stop, err := WatchThresholds(path, tuner)
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("thresholds:\n  direct: 2\n  tier1: 5\n  tier2: 8\n"), 0o644))

	select {
	case got := <-tuner.ch:
		assert.Equal(t, analyzer.Thresholds{Direct: 2, Tier1: 5, Tier2: 8}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for threshold reload")
	}
}
