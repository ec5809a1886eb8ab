package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", "server:\n  port: 9090\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Queue.ClaimBatchSize)
	assert.Equal(t, time.Minute, cfg.Queue.TickInterval)
	assert.Equal(t, 0.8, cfg.Scoring.DampingFactor)
	assert.Equal(t, 0.70, cfg.Scoring.BasicInfoWeight)
	assert.Equal(t, 0.75, cfg.Scoring.MaterializedPathWeight)
	assert.Equal(t, 0.85, cfg.Scoring.ContentAnalysisWeight)
	assert.Equal(t, 0.95, cfg.Scoring.TagKeywordsWeight)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TaxonomyTTL)
}

func TestLoad_OverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
queue:
  claim_batch_size: 10
  tick_interval: 15s
database:
  driver: sqlite
  database: tagger.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Queue.ClaimBatchSize)
	assert.Equal(t, 15*time.Second, cfg.Queue.TickInterval)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "tagger.db", cfg.Database.Database)
}

func TestLoad_PrefersLocalConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", "server:\n  port: 1000\n")
	writeConfig(t, dir, "config.local.yaml", "server:\n  port: 2000\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
