// Package config loads travelmem configuration from a YAML file, a local
// .env file and TRAVELMEM_* environment variables, in increasing order of
// precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/travel-memory/logging"
)

// EnvPrefix prefixes environment overrides, e.g. TRAVELMEM_LLM_MODEL.
const EnvPrefix = "TRAVELMEM"

// Config is the full service configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	LLM         LLMConfig         `mapstructure:"llm" yaml:"llm"`
	Suggest     SuggestConfig     `mapstructure:"suggest" yaml:"suggest"`
	Embedder    EmbedderConfig    `mapstructure:"embedder" yaml:"embedder"`
	Memory      MemoryConfig      `mapstructure:"memory" yaml:"memory"`
	Preferences PreferencesConfig `mapstructure:"preferences" yaml:"preferences"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

// ServerConfig configures the HTTP and gRPC listeners.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	// GRPCAddr serves the gRPC health service. Empty disables it.
	GRPCAddr string `mapstructure:"grpc_addr" yaml:"grpc_addr"`
	// AllowAnyOrigin accepts websocket upgrades from any browser origin.
	AllowAnyOrigin bool `mapstructure:"allow_any_origin" yaml:"allow_any_origin"`
}

// LLMConfig selects the completion provider.
type LLMConfig struct {
	// Provider is anthropic, openai or mock. openai covers any
	// OpenAI-compatible endpoint, such as Groq.
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	Model       string        `mapstructure:"model" yaml:"model"`
	MaxTokens   int64         `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SuggestConfig configures follow-up suggestions.
type SuggestConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	Max         int           `mapstructure:"max" yaml:"max"`
	MaxTokens   int64         `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// EmbedderConfig selects the embedding backend for long-term memory.
type EmbedderConfig struct {
	// Provider is mock, openai, onnx or none. none disables recall.
	Provider      string `mapstructure:"provider" yaml:"provider"`
	APIKey        string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL       string `mapstructure:"base_url" yaml:"base_url"`
	Model         string `mapstructure:"model" yaml:"model"`
	Dimensions    int    `mapstructure:"dimensions" yaml:"dimensions"`
	ModelPath     string `mapstructure:"model_path" yaml:"model_path"`
	TokenizerPath string `mapstructure:"tokenizer_path" yaml:"tokenizer_path"`
	LibraryPath   string `mapstructure:"library_path" yaml:"library_path"`
	// CacheSize is the number of cached embeddings. Zero disables the cache.
	CacheSize int64 `mapstructure:"cache_size" yaml:"cache_size"`
}

// MemoryConfig sizes the memory layers and picks the long-term store.
type MemoryConfig struct {
	ShortTermSize    int    `mapstructure:"short_term_size" yaml:"short_term_size"`
	RetrieveK        int    `mapstructure:"retrieve_k" yaml:"retrieve_k"`
	CharBudget       int    `mapstructure:"char_budget" yaml:"char_budget"`
	PrefsPerCategory int    `mapstructure:"prefs_per_category" yaml:"prefs_per_category"`
	Store            string `mapstructure:"store" yaml:"store"` // chromem or sqlite
	PersistDir       string `mapstructure:"persist_dir" yaml:"persist_dir"`
	SQLitePath       string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	Strict           bool   `mapstructure:"strict" yaml:"strict"`
}

// PreferencesConfig configures preference persistence and vocabulary.
type PreferencesConfig struct {
	// DatabaseURL is empty (in memory), a SQLite path, or a postgres:// URL.
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url"`
	RulesFile   string `mapstructure:"rules_file" yaml:"rules_file"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:     ":8080",
			GRPCAddr: ":9090",
		},
		LLM: LLMConfig{
			Provider:    "anthropic",
			MaxTokens:   1200,
			Temperature: 0.8,
			Timeout:     60 * time.Second,
		},
		Suggest: SuggestConfig{
			Enabled:     true,
			Max:         4,
			MaxTokens:   200,
			Temperature: 0.7,
			Timeout:     20 * time.Second,
		},
		Embedder: EmbedderConfig{
			Provider:   "mock",
			Dimensions: 384,
			CacheSize:  4096,
		},
		Memory: MemoryConfig{
			ShortTermSize:    6,
			RetrieveK:        3,
			CharBudget:       6000,
			PrefsPerCategory: 3,
			Store:            "chromem",
			SQLitePath:       "travelmem.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Namespace: "travelmem",
		},
	}
}

// Load reads path (if it exists) over the defaults, then applies .env and
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal defaults: %w", err)
	}

	// Reading the defaults first registers every key, so AutomaticEnv can
	// override keys the file does not mention.
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to read defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	// Example: TRAVELMEM_MEMORY_RETRIEVE_K=5
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyProviderKeys()
	return &cfg, nil
}

// applyProviderKeys falls back to the providers' conventional variables
// when no key was configured.
func (c *Config) applyProviderKeys() {
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "anthropic":
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			c.LLM.APIKey = firstEnv("GROQ_API_KEY", "OPENAI_API_KEY")
		}
	}
	if c.Embedder.APIKey == "" && c.Embedder.Provider == "openai" {
		c.Embedder.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// WriteDefault writes the default configuration to path as YAML.
func WriteDefault(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic", "openai":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for provider %q", c.LLM.Provider)
		}
	case "mock":
	default:
		return fmt.Errorf("invalid llm.provider %q, must be one of: anthropic, openai, mock", c.LLM.Provider)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}

	if c.Suggest.Enabled && (c.Suggest.Max <= 0 || c.Suggest.Max > 4) {
		return fmt.Errorf("suggest.max must be between 1 and 4")
	}

	switch c.Embedder.Provider {
	case "mock", "onnx", "none":
	case "openai":
		if c.Embedder.APIKey == "" {
			return fmt.Errorf("embedder.api_key is required for provider openai")
		}
	default:
		return fmt.Errorf("invalid embedder.provider %q, must be one of: mock, openai, onnx, none", c.Embedder.Provider)
	}
	if c.Embedder.Provider == "onnx" && c.Embedder.ModelPath == "" {
		return fmt.Errorf("embedder.model_path is required for provider onnx")
	}
	if c.Embedder.CacheSize < 0 {
		return fmt.Errorf("embedder.cache_size cannot be negative")
	}

	if c.Memory.ShortTermSize <= 0 {
		return fmt.Errorf("memory.short_term_size must be positive")
	}
	if c.Memory.RetrieveK <= 0 {
		return fmt.Errorf("memory.retrieve_k must be positive")
	}
	if c.Memory.PrefsPerCategory <= 0 {
		return fmt.Errorf("memory.prefs_per_category must be positive")
	}
	if c.Memory.CharBudget < 0 {
		return fmt.Errorf("memory.char_budget cannot be negative")
	}
	switch c.Memory.Store {
	case "chromem":
	case "sqlite":
		if c.Memory.SQLitePath == "" {
			return fmt.Errorf("memory.sqlite_path is required for store sqlite")
		}
	default:
		return fmt.Errorf("invalid memory.store %q, must be one of: chromem, sqlite", c.Memory.Store)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}
