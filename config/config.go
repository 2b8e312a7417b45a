package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

type Config struct {
	LLMProvider        string // anthropic, openai, ollama
	AnthropicKey       string // API key (X-Api-Key header)
	AnthropicToken     string // OAuth token (Authorization: Bearer header)
	OpenAIKey          string
	LLMModel           string
	OllamaBaseURL      string
	LLMTimeout         time.Duration
	LLMMaxTokens       int
	HistoryEntryTokens int
	DiscordToken       string
	DiscordWebhook     string
	DatabaseURL        string // postgres://...; takes precedence over DatabasePath
	DatabasePath       string
	NudgeCron          string
	HTTPAddr           string
}

// ConfigDir is where the installed service keeps its config.
func ConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".nudge")
}

func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config")
}

func Load() *Config {
	// godotenv never overrides variables that are already set, so .env wins
	// over the installed config and the real environment wins over both.
	_ = godotenv.Load()
	_ = godotenv.Load(ConfigFile())
	return parse(os.Getenv)
}

// FromFiles builds a Config from env files alone, ignoring the process
// environment. Earlier files take precedence, as with Load. Missing files are
// skipped; at least one must exist.
func FromFiles(paths ...string) (*Config, error) {
	vars := map[string]string{}
	found := 0
	for _, path := range paths {
		fileVars, err := godotenv.Read(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		found++
		for k, v := range fileVars {
			if _, ok := vars[k]; !ok {
				vars[k] = v
			}
		}
	}
	if found == 0 {
		return nil, fmt.Errorf("no config file found in %v", paths)
	}
	return parse(func(k string) string { return vars[k] }), nil
}

func parse(get func(string) string) *Config {
	return &Config{
		LLMProvider:        or(get("LLM_PROVIDER"), "anthropic"),
		AnthropicKey:       get("ANTHROPIC_API_KEY"),
		AnthropicToken:     get("ANTHROPIC_AUTH_TOKEN"),
		OpenAIKey:          get("OPENAI_API_KEY"),
		LLMModel:           get("LLM_MODEL"),
		OllamaBaseURL:      or(get("OLLAMA_BASE_URL"), "http://localhost:11434/v1"),
		LLMTimeout:         parseDuration(get("LLM_TIMEOUT"), 30*time.Second),
		LLMMaxTokens:       parseInt(get("LLM_MAX_TOKENS"), 512),
		HistoryEntryTokens: parseInt(get("HISTORY_ENTRY_TOKENS"), 200),
		DiscordToken:       get("DISCORD_BOT_TOKEN"),
		DiscordWebhook:     get("DISCORD_WEBHOOK_URL"),
		DatabaseURL:        get("DATABASE_URL"),
		DatabasePath:       or(get("DATABASE_PATH"), "./nudge.db"),
		NudgeCron:          nudgeCron(get("NUDGE_CRON")),
		HTTPAddr:           get("HTTP_ADDR"),
	}
}

// DSN is what db.Open should connect to.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DatabasePath
}

// APIKey picks the credential for the configured provider.
func (c *Config) APIKey() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIKey
	}
	return c.AnthropicKey
}

func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "anthropic", "openai", "ollama":
	default:
		return fmt.Errorf("LLM_PROVIDER must be anthropic, openai or ollama, got %q", c.LLMProvider)
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive")
	}
	if c.LLMMaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be positive")
	}
	if c.DSN() == "" {
		return fmt.Errorf("DATABASE_PATH or DATABASE_URL must be set")
	}
	if c.NudgeCron != "" {
		if _, err := cron.ParseStandard(c.NudgeCron); err != nil {
			return fmt.Errorf("invalid NUDGE_CRON %q: %w", c.NudgeCron, err)
		}
	}
	return nil
}

// nudgeCron returns the nudge schedule; "off" disables it.
func nudgeCron(v string) string {
	v = or(v, "0 9 * * *")
	if v == "off" {
		return ""
	}
	return v
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func parseInt(v string, fallback int) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func parseDuration(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
