// Package config provides configuration loading for studylog.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Classifier answer formats
const (
	FormatParagraph = "paragraph"
	FormatLine      = "line"
	FormatJSON      = "json"
)

// Config is the full runtime configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	LLM        LLMConfig        `koanf:"llm"`
	Store      StoreConfig      `koanf:"store"`
	Logging    LoggingConfig    `koanf:"logging"`
	Classifier ClassifierConfig `koanf:"classifier"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LLMConfig holds the chat-completions upstream settings.
type LLMConfig struct {
	APIKey       Secret   `koanf:"api_key"`
	BaseURL      string   `koanf:"base_url"`
	Model        string   `koanf:"model"`
	VisionModel  string   `koanf:"vision_model"`
	MaxTokens    int      `koanf:"max_tokens"`
	BatchTimeout Duration `koanf:"batch_timeout"`
	RateLimit    float64  `koanf:"rate_limit"`
	RateBurst    int      `koanf:"rate_burst"`
}

// StoreConfig locates the question database.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// LoggingConfig selects zap level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ClassifierConfig selects the answer format the model is asked for.
type ClassifierConfig struct {
	Format string `koanf:"format"`
}

// Default returns a config with every field set.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o"
	}
	if cfg.LLM.VisionModel == "" {
		cfg.LLM.VisionModel = cfg.LLM.Model
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.LLM.BatchTimeout == 0 {
		cfg.LLM.BatchTimeout = Duration(60 * time.Second)
	}
	if cfg.LLM.RateLimit == 0 {
		cfg.LLM.RateLimit = 2
	}
	if cfg.LLM.RateBurst == 0 {
		cfg.LLM.RateBurst = 4
	}
	if !cfg.LLM.APIKey.IsSet() {
		cfg.LLM.APIKey = Secret(os.Getenv("OPENAI_API_KEY"))
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Classifier.Format == "" {
		cfg.Classifier.Format = FormatParagraph
	}
}

// DefaultStorePath is ~/.studylog/studylog.db
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".studylog", "studylog.db")
	}
	return filepath.Join(home, ".studylog", "studylog.db")
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Classifier.Format {
	case FormatParagraph, FormatLine, FormatJSON:
	default:
		return fmt.Errorf("classifier.format must be one of paragraph, line, json, got %q", c.Classifier.Format)
	}
	if c.LLM.RateLimit < 0 {
		return fmt.Errorf("llm.rate_limit cannot be negative")
	}
	if c.LLM.RateBurst < 1 {
		return fmt.Errorf("llm.rate_burst must be at least 1")
	}
	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("llm.max_tokens must be at least 1")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	return nil
}
