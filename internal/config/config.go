package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	DefaultLLMBaseURL = "https://openrouter.ai/api/v1"
	DefaultLLMModel   = "deepseek/deepseek-v3.2"
	DefaultServerAddr = "127.0.0.1:8787"
)

type Config struct {
	SourceRoot  string `toml:"source_root"`
	DBPath      string `toml:"db_path"`
	CommitEvery int    `toml:"commit_every"`
	LogLevel    string `toml:"log_level"`
	PromptsDir  string `toml:"prompts_dir"`

	LLM    LLMConfig    `toml:"llm"`
	Server ServerConfig `toml:"server"`

	// Path of the config file that was read, empty when none existed.
	File string `toml:"-"`
}

type LLMConfig struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Load reads ~/.config/cca/config.toml when present and applies
// environment overrides on top of it.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return load(home, filepath.Join(home, ".config", "cca", "config.toml"), os.Getenv)
}

func load(home, cfgPath string, getenv func(string) string) (*Config, error) {
	base := filepath.Join(home, "claude-conversations")
	if v := getenv("CLAUDE_CONVERSATIONS_DIR"); v != "" {
		base = expandHome(v, home)
	}

	cfg := &Config{
		SourceRoot:  filepath.Join(home, ".claude", "projects"),
		DBPath:      filepath.Join(base, "conversations.db"),
		CommitEvery: 100,
		LogLevel:    "info",
		LLM: LLMConfig{
			BaseURL: DefaultLLMBaseURL,
			Model:   DefaultLLMModel,
		},
		Server: ServerConfig{Addr: DefaultServerAddr},
	}

	if _, err := os.Stat(cfgPath); err == nil {
		if _, err := toml.DecodeFile(cfgPath, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
		cfg.File = cfgPath
	}

	overrides := []struct {
		env string
		dst *string
	}{
		{"DATABASE_PATH", &cfg.DBPath},
		{"CLAUDE_CODE_PROJECTS_DIR", &cfg.SourceRoot},
		{"OPENROUTER_API_KEY", &cfg.LLM.APIKey},
		{"OPENROUTER_MODEL", &cfg.LLM.Model},
		{"CCA_LOG_LEVEL", &cfg.LogLevel},
	}
	for _, o := range overrides {
		if v := getenv(o.env); v != "" {
			*o.dst = v
		}
	}

	if cfg.CommitEvery <= 0 {
		return nil, fmt.Errorf("commit_every must be positive, got %d", cfg.CommitEvery)
	}

	// expand ~ in paths
	cfg.SourceRoot = expandHome(cfg.SourceRoot, home)
	cfg.DBPath = expandHome(cfg.DBPath, home)
	cfg.PromptsDir = expandHome(cfg.PromptsDir, home)

	return cfg, nil
}

// Validate returns human-readable problems that do not prevent startup.
func (c *Config) Validate() []string {
	var issues []string
	if info, err := os.Stat(c.SourceRoot); err != nil || !info.IsDir() {
		issues = append(issues, fmt.Sprintf("transcript directory not found: %s", c.SourceRoot))
	}
	if c.PromptsDir != "" {
		if info, err := os.Stat(c.PromptsDir); err != nil || !info.IsDir() {
			issues = append(issues, fmt.Sprintf("prompts_dir not found: %s", c.PromptsDir))
		}
	}
	if c.LLM.APIKey == "" {
		issues = append(issues, "no LLM API key configured (OPENROUTER_API_KEY); analyze will only work with --dry-run")
	}
	return issues
}

func expandHome(path, home string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
