// Package config loads server settings from the environment.
//
// Sources, highest priority first:
//  1. command line flags bound by cmd/server
//  2. process environment (PORT, OPENAI_API_KEY, ...)
//  3. a .env file in the working directory, if present
//  4. the defaults below
//
// Every key is the lower-case form of its environment variable, so
// FEEDBACK_PATH is read as "feedback_path".
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/spf13/viper"

	"github.com/sakif/codegen-playground/internal/llm"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

type Config struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	FeedbackPath string `mapstructure:"feedback_path"`
	SnippetStore string `mapstructure:"snippet_store"`
	DBPath       string `mapstructure:"db_path"`

	OpenAIAPIKey  string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL string        `mapstructure:"openai_base_url"`
	OllamaURL     string        `mapstructure:"ollama_url"`
	Models        []string      `mapstructure:"models"`
	DefaultModel  string        `mapstructure:"default_model"`
	LLMTimeout    time.Duration `mapstructure:"llm_timeout"`
	LLMOffline    bool          `mapstructure:"llm_offline"`

	SandboxEnabled  bool          `mapstructure:"sandbox_enabled"`
	SandboxImage    string        `mapstructure:"sandbox_image"`
	SandboxTimeout  time.Duration `mapstructure:"sandbox_timeout"`
	SandboxPoolSize int           `mapstructure:"sandbox_pool_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("feedback_path", "feedback.json")
	v.SetDefault("snippet_store", StoreMemory)
	v.SetDefault("db_path", "data/snippets.db")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_base_url", "")
	v.SetDefault("ollama_url", "")
	v.SetDefault("models", []string{"gpt-3.5-turbo", "gpt-4o-mini", "gpt-4o"})
	v.SetDefault("default_model", "gpt-3.5-turbo")
	v.SetDefault("llm_timeout", 60*time.Second)
	v.SetDefault("llm_offline", false)
	v.SetDefault("sandbox_enabled", false)
	v.SetDefault("sandbox_image", "python:3.12-alpine")
	v.SetDefault("sandbox_timeout", 5*time.Second)
	v.SetDefault("sandbox_pool_size", 2)
}

// Load reads envFile (if it exists) into the process environment and then
// resolves every key through v. Pass a viper with flags already bound to let
// flags win over the environment. An empty envFile means ".env".
func Load(v *viper.Viper, envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: reading %s: %w", envFile, err)
	}

	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	cfg.Models = lo.Uniq(lo.Compact(lo.Map(cfg.Models, func(m string, _ int) string {
		return strings.TrimSpace(m)
	})))
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.FeedbackPath == "" {
		errs = append(errs, errors.New("FEEDBACK_PATH is required"))
	}

	switch c.SnippetStore {
	case StoreMemory:
	case StoreSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required when SNIPPET_STORE=sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("SNIPPET_STORE must be %q or %q, got %q", StoreMemory, StoreSQLite, c.SnippetStore))
	}

	if c.LLMTimeout <= 0 {
		errs = append(errs, errors.New("LLM_TIMEOUT must be positive"))
	}
	if c.DefaultModel == "" {
		errs = append(errs, errors.New("DEFAULT_MODEL is required"))
	}
	if !c.LLMOffline && c.OpenAIAPIKey == "" && !c.localOnly() {
		errs = append(errs, errors.New("OPENAI_API_KEY is required unless LLM_OFFLINE is set or every model is served by Ollama"))
	}
	if c.usesOllama() && c.OllamaURL == "" && !c.LLMOffline {
		errs = append(errs, errors.New("OLLAMA_URL is required for ollama/ models"))
	}

	if c.SandboxEnabled {
		if c.SandboxTimeout <= 0 {
			errs = append(errs, errors.New("SANDBOX_TIMEOUT must be positive"))
		}
		if c.SandboxPoolSize < 1 {
			errs = append(errs, errors.New("SANDBOX_POOL_SIZE must be at least 1"))
		}
	}

	return errors.Join(errs...)
}

// SlogLevel parses LogLevel ("debug", "info", "warn", "error").
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(c.LogLevel))
	return level, err
}

// ModelChoices is the list offered in the model picker, default first.
func (c *Config) ModelChoices() []string {
	return lo.Uniq(append([]string{c.DefaultModel}, c.Models...))
}

func (c *Config) usesOllama() bool {
	return lo.SomeBy(c.ModelChoices(), func(m string) bool { return strings.HasPrefix(m, llm.OllamaPrefix) })
}

func (c *Config) localOnly() bool {
	return lo.EveryBy(c.ModelChoices(), func(m string) bool { return strings.HasPrefix(m, llm.OllamaPrefix) })
}
