package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	cfg, err := load(home, filepath.Join(home, "missing.toml"), env(nil))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".claude", "projects"), cfg.SourceRoot)
	assert.Equal(t, filepath.Join(home, "claude-conversations", "conversations.db"), cfg.DBPath)
	assert.Equal(t, 100, cfg.CommitEvery)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultLLMBaseURL, cfg.LLM.BaseURL)
	assert.Equal(t, DefaultLLMModel, cfg.LLM.Model)
	assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
	assert.Empty(t, cfg.File)
}

func TestLoadFileAndEnv(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
source_root = "~/transcripts"
db_path = "~/data/cc.db"
commit_every = 25
prompts_dir = "~/prompts"

[llm]
model = "from-file"

[server]
addr = ":9000"
`), 0o644))

	cfg, err := load(home, path, env(map[string]string{
		"OPENROUTER_MODEL":   "from-env",
		"OPENROUTER_API_KEY": "sk-test",
		"CCA_LOG_LEVEL":      "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, filepath.Join(home, "transcripts"), cfg.SourceRoot)
	assert.Equal(t, filepath.Join(home, "data", "cc.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join(home, "prompts"), cfg.PromptsDir)
	assert.Equal(t, 25, cfg.CommitEvery)
	assert.Equal(t, "from-env", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, DefaultLLMBaseURL, cfg.LLM.BaseURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9000", cfg.Server.Addr)
}

func TestLoadConversationsDirMovesDefaultDB(t *testing.T) {
	home := t.TempDir()
	cfg, err := load(home, filepath.Join(home, "missing.toml"), env(map[string]string{
		"CLAUDE_CONVERSATIONS_DIR": "~/elsewhere",
	}))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "elsewhere", "conversations.db"), cfg.DBPath)

	cfg, err = load(home, filepath.Join(home, "missing.toml"), env(map[string]string{
		"CLAUDE_CONVERSATIONS_DIR": "~/elsewhere",
		"DATABASE_PATH":            "/tmp/explicit.db",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/explicit.db", cfg.DBPath)
}

func TestLoadRejectsBadFile(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("commit_every = ["), 0o644))
	_, err := load(home, path, env(nil))
	assert.ErrorContains(t, err, "parse config")

	require.NoError(t, os.WriteFile(path, []byte("commit_every = 0"), 0o644))
	_, err = load(home, path, env(nil))
	assert.ErrorContains(t, err, "commit_every")
}

func TestValidate(t *testing.T) {
	home := t.TempDir()
	cfg, err := load(home, filepath.Join(home, "missing.toml"), env(nil))
	require.NoError(t, err)

	issues := cfg.Validate()
	require.Len(t, issues, 2)
	assert.Contains(t, issues[0], "transcript directory not found")
	assert.Contains(t, issues[1], "API key")

	require.NoError(t, os.MkdirAll(cfg.SourceRoot, 0o755))
	cfg.LLM.APIKey = "k"
	assert.Empty(t, cfg.Validate())
}
