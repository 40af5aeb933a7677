package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.Architects)
	assert.Equal(t, 1, cfg.PlanRetries)
	assert.Equal(t, 2, cfg.MaxRounds)
	assert.Equal(t, "mock", cfg.LLM.Provider)
	assert.Equal(t, 10*time.Minute, cfg.RoundTimeout)
	assert.Equal(t, 6, cfg.RAG.TopK)
}

func TestLoad(t *testing.T) {
	t.Setenv("CODETEAM_TEST_KEY", "sk-test")
	t.Setenv("CODETEAM_TEST_HOME", "/srv/codeteam")

	path := filepath.Join(t.TempDir(), "codeteam.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
architects: 3
max_rounds: 4
workspace: ${CODETEAM_TEST_HOME}/runs
mode: cooperative
round_timeout: 90s
history: sqlite
llm:
  provider: openai
  model: gpt-4o
  api_key: ${CODETEAM_TEST_KEY}
rag:
  enabled: true
test:
  command: pytest -x
  timeout: 2m
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Architects)
	assert.Equal(t, 1, cfg.PlanRetries)
	assert.Equal(t, 4, cfg.MaxRounds)
	assert.Equal(t, "/srv/codeteam/runs", cfg.Workspace)
	assert.Equal(t, "cooperative", cfg.Mode)
	assert.Equal(t, 90*time.Second, cfg.RoundTimeout)
	assert.Equal(t, "sqlite", cfg.History)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-9)
	assert.True(t, cfg.RAG.Enabled)
	assert.Equal(t, "./rag_index/index.db", cfg.RAG.IndexPath)
	assert.Equal(t, "pytest -x", cfg.Test.Command)
	assert.Equal(t, 2*time.Minute, cfg.Test.Timeout)
}

func TestLoad_Errors(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("architects: [1, 2"), 0o644))

	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Architects = 0
	cfg.Mode = "fibers"
	cfg.History = "svn"
	cfg.LLM.Provider = "bard"
	cfg.RAG.Enabled = true
	cfg.RAG.IndexPath = ""

	err := cfg.Validate()
	require.Error(t, err)

	for _, want := range []string{"architects", "mode", "history", "llm.provider", "rag.index_path"} {
		assert.Contains(t, err.Error(), want)
	}
}
