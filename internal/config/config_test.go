package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func loadFrom(t *testing.T, yaml string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ikaris.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("IKARIS_CONFIG_PATH", path)
	return Load()
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := loadFrom(t, "{}\n")

	require.NoError(t, err)
	assert.Equal(t, 8088, cfg.Service.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "./papers", cfg.PapersDir)
	assert.Equal(t, "./papers", cfg.PubMed.PapersDir)
	assert.Equal(t, "./papers", cfg.Arxiv.PapersDir)
}

func TestLoadReadsNestedSections(t *testing.T) {
	cfg, err := loadFrom(t, `
service:
  port: 9000
llm:
  base_url: http://localhost:5000/v1
  model: qwen3-8b
pubmed:
  enabled: true
  api_key: abc123
papers_dir: /data/papers
`)

	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Service.Port)
	assert.Equal(t, "http://localhost:5000/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "qwen3-8b", cfg.LLM.Model)
	assert.True(t, cfg.PubMed.Enabled)
	assert.Equal(t, "/data/papers", cfg.PubMed.PapersDir)
	assert.Equal(t, "/data/papers", cfg.Arxiv.PapersDir)
}

func TestValidateRejectsBadPort(t *testing.T) {
	_, err := loadFrom(t, "service:\n  port: 99999\n")
	assert.ErrorContains(t, err, "out of range")
}

func TestValidateRejectsSplitPapersDirs(t *testing.T) {
	_, err := loadFrom(t, `
pubmed:
  papers_dir: /a
arxiv:
  papers_dir: /b
`)
	assert.ErrorContains(t, err, "papers_dir must match")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("IKARIS_CONFIG_PATH", "")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8088, cfg.Service.Port)
}

func TestWatcherFiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	var fired atomic.Int32
	w.OnChange("adapters.yaml", func() error {
		fired.Add(1)
		return nil
	})
	require.NoError(t, w.Start())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "adapters.yaml"), []byte("adapter_limits: {}\n"), 0o644))

	assert.Eventually(t, func() bool {
		return fired.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	var fired atomic.Int32
	w.OnChange("adapters.yaml", func() error {
		fired.Add(1)
		return nil
	})
	require.NoError(t, w.Start())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o644))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
