package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultJobs, cfg.Jobs)
	assert.Equal(t, DefaultReferenceFiles, cfg.ReferenceFiles)
	assert.True(t, cfg.FailFast)
	assert.Equal(t, time.Second, cfg.SampleInterval.Duration)
	assert.Empty(t, cfg.Path)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	content := `
jobs: [authors, institutions]
reference_files: [region.csv]
fail_fast: false
sample_interval: 250ms
worker:
  command: [python, -m, openalex_parser]
  source: /data/openalex
  max_records: 100
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fanout.yaml"), []byte(content), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "fanout.yaml", cfg.Path)
	assert.Equal(t, []string{"authors", "institutions"}, cfg.Jobs)
	assert.Equal(t, []string{"region.csv"}, cfg.ReferenceFiles)
	assert.False(t, cfg.FailFast)
	assert.Equal(t, 250*time.Millisecond, cfg.SampleInterval.Duration)
	assert.Equal(t, []string{"python", "-m", "openalex_parser"}, cfg.Worker.Command)
	assert.Equal(t, 100, cfg.Worker.MaxRecords)
	assert.Equal(t, DefaultPrerequisite, cfg.Prerequisite, "unset keys keep their defaults")
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fanout.toml")
	content := `
jobs = ["sources", "works"]
keep_temp = true
sample_interval = "2s"
output_dir = "/tmp/merged"

[worker]
command = ["parser"]
updated_since = "2024-01-01"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"sources", "works"}, cfg.Jobs)
	assert.True(t, cfg.KeepTemp)
	assert.Equal(t, 2*time.Second, cfg.SampleInterval.Duration)
	assert.Equal(t, "/tmp/merged", cfg.OutputDir)
	assert.Equal(t, "2024-01-01", cfg.Worker.UpdatedSince)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fanout.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config format")
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fanout.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jobs: [unterminated\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
