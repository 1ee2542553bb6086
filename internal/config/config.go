package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/arthmitra/arthmitra/internal/errs"
)

const (
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 18650
	DefaultEmbeddingModel    = "@cf/baai/bge-m3"
	DefaultEmbeddingTimeout  = 30000
	DefaultEmbeddingCacheCap = 512
	DefaultLLMModel          = "mistralai/Mistral-7B-Instruct-v0.1"
	DefaultLLMMaxTokens      = 1024
	DefaultLLMTimeout        = 30000
	DefaultAuthTimeout       = 10000
	DefaultRetentionSpec     = "0 0 3 * * *"
	DefaultRetentionIdleDays = 7
	DefaultLogLevel          = "info"
)

type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Auth      AuthConfig      `json:"auth"`
	Embedding EmbeddingConfig `json:"embedding"`
	LLM       LLMConfig       `json:"llm"`
	Store     StoreConfig     `json:"store"`
	Retention RetentionConfig `json:"retention"`
	Logging   LoggingConfig   `json:"logging"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type AuthConfig struct {
	VerifyURL string `json:"verifyUrl"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`
}

// EmbeddingConfig selects the embedding backend. Provider is "openai"
// (OpenAI-compatible /v1/embeddings, also what Ollama serves), or
// "workers-ai" (Cloudflare Workers AI run endpoint).
type EmbeddingConfig struct {
	Provider  string `json:"provider,omitempty"`
	BaseURL   string `json:"baseUrl"`
	APIKey    string `json:"apiKey,omitempty"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension,omitempty"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`
	CacheSize int    `json:"cacheSize,omitempty"`
}

type LLMConfig struct {
	BaseURL   string `json:"baseUrl"`
	APIKey    string `json:"apiKey"`
	Model     string `json:"model"`
	MaxTokens int    `json:"maxTokens,omitempty"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath"`
}

// RetentionConfig drives the scheduled sweep that clears conversation
// context left idle longer than MaxIdleDays.
type RetentionConfig struct {
	Enabled     bool   `json:"enabled"`
	Schedule    string `json:"schedule,omitempty"`
	MaxIdleDays int    `json:"maxIdleDays,omitempty"`
}

type LoggingConfig struct {
	Level string `json:"level,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Auth: AuthConfig{
			TimeoutMs: DefaultAuthTimeout,
		},
		Embedding: EmbeddingConfig{
			Provider:  "workers-ai",
			Model:     DefaultEmbeddingModel,
			TimeoutMs: DefaultEmbeddingTimeout,
			CacheSize: DefaultEmbeddingCacheCap,
		},
		LLM: LLMConfig{
			BaseURL:   "https://api.together.xyz/v1",
			Model:     DefaultLLMModel,
			MaxTokens: DefaultLLMMaxTokens,
			TimeoutMs: DefaultLLMTimeout,
		},
		Store: StoreConfig{
			DBPath: filepath.Join(ConfigDir(), "arthmitra.db"),
		},
		Retention: RetentionConfig{
			Enabled:     false,
			Schedule:    DefaultRetentionSpec,
			MaxIdleDays: DefaultRetentionIdleDays,
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".arthmitra")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// LoadConfig reads the config file at path (ConfigPath() when empty), layers
// environment overrides on top of the defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errs.Mark(errs.ErrConfig, fmt.Errorf("parse config: %w", err))
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = DefaultHost
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = DefaultConfig().Store.DBPath
	}
	if cfg.Embedding.TimeoutMs <= 0 {
		cfg.Embedding.TimeoutMs = DefaultEmbeddingTimeout
	}
	if cfg.Embedding.CacheSize <= 0 {
		cfg.Embedding.CacheSize = DefaultEmbeddingCacheCap
	}
	if cfg.LLM.TimeoutMs <= 0 {
		cfg.LLM.TimeoutMs = DefaultLLMTimeout
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = DefaultLLMMaxTokens
	}
	if cfg.Auth.TimeoutMs <= 0 {
		cfg.Auth.TimeoutMs = DefaultAuthTimeout
	}
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = DefaultRetentionSpec
	}
	if cfg.Retention.MaxIdleDays <= 0 {
		cfg.Retention.MaxIdleDays = DefaultRetentionIdleDays
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("ARTHMITRA_AUTH_URL"); url != "" {
		cfg.Auth.VerifyURL = url
	}
	if key := os.Getenv("ARTHMITRA_EMBEDDING_API_KEY"); key != "" {
		cfg.Embedding.APIKey = key
	}
	if url := os.Getenv("ARTHMITRA_EMBEDDING_BASE_URL"); url != "" {
		cfg.Embedding.BaseURL = url
	}
	if model := os.Getenv("ARTHMITRA_EMBEDDING_MODEL"); model != "" {
		cfg.Embedding.Model = model
	}
	if key := os.Getenv("ARTHMITRA_LLM_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	if url := os.Getenv("ARTHMITRA_LLM_BASE_URL"); url != "" {
		cfg.LLM.BaseURL = url
	}
	if model := os.Getenv("ARTHMITRA_LLM_MODEL"); model != "" {
		cfg.LLM.Model = model
	}
	if dbPath := os.Getenv("ARTHMITRA_DB_PATH"); dbPath != "" {
		cfg.Store.DBPath = dbPath
	}
	if port := os.Getenv("ARTHMITRA_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Gateway.Port = parsed
		}
	}
	if level := os.Getenv("ARTHMITRA_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// Validate reports the first missing piece of required provider configuration.
// Failing validation is fatal at startup, never recovered at request time.
func (c *Config) Validate() error {
	if c.Auth.VerifyURL == "" {
		return errs.Markf(errs.ErrConfig, "auth.verifyUrl is required")
	}
	if c.Embedding.BaseURL == "" {
		return errs.Markf(errs.ErrConfig, "embedding.baseUrl is required")
	}
	if c.Embedding.Model == "" {
		return errs.Markf(errs.ErrConfig, "embedding.model is required")
	}
	switch c.Embedding.Provider {
	case "", "openai", "workers-ai":
	default:
		return errs.Markf(errs.ErrConfig, "unsupported embedding provider: %s", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "workers-ai" && c.Embedding.APIKey == "" {
		return errs.Markf(errs.ErrConfig, "embedding.apiKey is required for workers-ai")
	}
	if c.LLM.BaseURL == "" {
		return errs.Markf(errs.ErrConfig, "llm.baseUrl is required")
	}
	if c.LLM.APIKey == "" {
		return errs.Markf(errs.ErrConfig, "llm.apiKey is required")
	}
	if c.LLM.Model == "" {
		return errs.Markf(errs.ErrConfig, "llm.model is required")
	}
	return nil
}

func SaveConfig(cfg *Config, path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}
