package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate points HOME at an empty dir and clears every variable Load reads.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{
		"LLM_PROVIDER", "ANTHROPIC_API_KEY", "ANTHROPIC_AUTH_TOKEN", "OPENAI_API_KEY",
		"LLM_MODEL", "OLLAMA_BASE_URL", "LLM_TIMEOUT", "LLM_MAX_TOKENS", "HISTORY_ENTRY_TOKENS",
		"DISCORD_BOT_TOKEN", "DISCORD_WEBHOOK_URL", "DATABASE_URL", "DATABASE_PATH",
		"NUDGE_CRON", "HTTP_ADDR",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg := Load()

	if cfg.LLMProvider != "anthropic" {
		t.Errorf("LLMProvider = %q", cfg.LLMProvider)
	}
	if cfg.LLMTimeout != 30*time.Second {
		t.Errorf("LLMTimeout = %v", cfg.LLMTimeout)
	}
	if cfg.LLMMaxTokens != 512 {
		t.Errorf("LLMMaxTokens = %d", cfg.LLMMaxTokens)
	}
	if cfg.HistoryEntryTokens != 200 {
		t.Errorf("HistoryEntryTokens = %d", cfg.HistoryEntryTokens)
	}
	if cfg.DSN() != "./nudge.db" {
		t.Errorf("DSN = %q", cfg.DSN())
	}
	if cfg.NudgeCron != "0 9 * * *" {
		t.Errorf("NudgeCron = %q", cfg.NudgeCron)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LLM_TIMEOUT", "5s")
	t.Setenv("DATABASE_URL", "postgres://localhost/nudge")
	t.Setenv("NUDGE_CRON", "off")
	t.Setenv("LLM_MAX_TOKENS", "not-a-number")

	cfg := Load()
	if cfg.APIKey() != "sk-test" {
		t.Errorf("APIKey = %q", cfg.APIKey())
	}
	if cfg.LLMTimeout != 5*time.Second {
		t.Errorf("LLMTimeout = %v", cfg.LLMTimeout)
	}
	if cfg.DSN() != "postgres://localhost/nudge" {
		t.Errorf("DSN = %q", cfg.DSN())
	}
	if cfg.NudgeCron != "" {
		t.Errorf("NudgeCron = %q, want disabled", cfg.NudgeCron)
	}
	if cfg.LLMMaxTokens != 512 {
		t.Errorf("bad int should fall back, got %d", cfg.LLMMaxTokens)
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	isolate(t)
	if err := os.MkdirAll(ConfigDir(), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ConfigFile(), []byte("DISCORD_BOT_TOKEN=from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	// godotenv only fills unset variables
	os.Unsetenv("DISCORD_BOT_TOKEN")

	cfg := Load()
	if cfg.DiscordToken != "from-file" {
		t.Errorf("DiscordToken = %q", cfg.DiscordToken)
	}
	if filepath.Dir(ConfigFile()) != ConfigDir() {
		t.Errorf("config file %q not in %q", ConfigFile(), ConfigDir())
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{LLMProvider: "ollama", LLMTimeout: time.Second, LLMMaxTokens: 100, DatabasePath: "x.db", NudgeCron: "*/5 * * * *"}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.LLMProvider = "bard" }},
		{"zero timeout", func(c *Config) { c.LLMTimeout = 0 }},
		{"zero max tokens", func(c *Config) { c.LLMMaxTokens = 0 }},
		{"no database", func(c *Config) { c.DatabasePath = "" }},
		{"bad cron", func(c *Config) { c.NudgeCron = "every morning" }},
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("baseline should validate: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestFromFiles(t *testing.T) {
	isolate(t)
	t.Setenv("DISCORD_BOT_TOKEN", "from-env")
	dir := t.TempDir()
	local := filepath.Join(dir, ".env")
	installed := filepath.Join(dir, "config")
	if err := os.WriteFile(local, []byte("LLM_PROVIDER=ollama\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(installed, []byte("LLM_PROVIDER=openai\nDISCORD_BOT_TOKEN=from-file\nNUDGE_CRON=off\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := FromFiles(local, filepath.Join(dir, "missing"), installed)
	if err != nil {
		t.Fatalf("FromFiles: %v", err)
	}
	if cfg.LLMProvider != "ollama" {
		t.Errorf("LLMProvider = %q, earlier file should win", cfg.LLMProvider)
	}
	if cfg.DiscordToken != "from-file" {
		t.Errorf("DiscordToken = %q, process env must be ignored", cfg.DiscordToken)
	}
	if cfg.NudgeCron != "" {
		t.Errorf("NudgeCron = %q, want disabled", cfg.NudgeCron)
	}
	if cfg.LLMTimeout != 30*time.Second {
		t.Errorf("LLMTimeout = %v, want default", cfg.LLMTimeout)
	}
}

func TestFromFiles_NoneExist(t *testing.T) {
	dir := t.TempDir()
	if _, err := FromFiles(filepath.Join(dir, "a"), filepath.Join(dir, "b")); err == nil {
		t.Error("expected an error when no file exists")
	}
}
