package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	LogFormat  string `mapstructure:"LOG_FORMAT"`

	PostgresURL   string `mapstructure:"POSTGRES_URL"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	CacheTTLHours int    `mapstructure:"CACHE_TTL_HOURS"`

	SearchAPIKey         string  `mapstructure:"SEARCH_API_KEY"`
	SearchBackend        string  `mapstructure:"SEARCH_BACKEND"`
	SearchBaseURL        string  `mapstructure:"SEARCH_BASE_URL"`
	SearchEngineURL      string  `mapstructure:"SEARCH_ENGINE_URL"`
	SearchResultLimit    int     `mapstructure:"SEARCH_RESULT_LIMIT"`
	SearchSnippetKeyword string  `mapstructure:"SEARCH_SNIPPET_KEYWORD"`
	SearchTimeout        int     `mapstructure:"SEARCH_TIMEOUT_SECONDS"`
	SearchRPS            float64 `mapstructure:"SEARCH_RPS"`
	PageLoadTimeout      int     `mapstructure:"PAGE_LOAD_TIMEOUT_SECONDS"`

	LLMProvider string  `mapstructure:"LLM_PROVIDER"`
	LLMAPIToken string  `mapstructure:"LLM_API_TOKEN"`
	LLMModel    string  `mapstructure:"LLM_MODEL"`
	LLMBaseURL  string  `mapstructure:"LLM_BASE_URL"`
	LLMTimeout  int     `mapstructure:"LLM_TIMEOUT_SECONDS"`
	LLMMinScore float64 `mapstructure:"LLM_MIN_SCORE"`

	MaxAttempts      int `mapstructure:"MAX_ATTEMPTS"`
	InitialBackoffMS int `mapstructure:"INITIAL_BACKOFF_MS"`
	MaxBackoffMS     int `mapstructure:"MAX_BACKOFF_MS"`
	Workers          int `mapstructure:"WORKERS"`
	MaxInflight      int `mapstructure:"MAX_INFLIGHT"`
	MaxContextChars  int `mapstructure:"MAX_CONTEXT_CHARS"`

	// SheetsCredentialsFile is a service-account key used to write run
	// output back to Google Sheets. Empty disables write-back.
	SheetsCredentialsFile string `mapstructure:"SHEETS_CREDENTIALS_FILE"`
}

const (
	BackendHTTP    = "http"
	BackendBrowser = "browser"

	ProviderHuggingFace = "huggingface"
	ProviderGemini      = "gemini"
)

// ConfigError reports missing or invalid configuration. It is fatal and is
// raised before any row is processed.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

var defaults = map[string]any{
	"SERVER_PORT":               "8080",
	"LOG_LEVEL":                 "info",
	"LOG_FORMAT":                "json",
	"POSTGRES_URL":              "",
	"REDIS_ADDR":                "",
	"REDIS_PASSWORD":            "",
	"REDIS_DB":                  0,
	"CACHE_TTL_HOURS":           48,
	"SEARCH_API_KEY":            "",
	"SEARCH_BACKEND":            BackendHTTP,
	"SEARCH_BASE_URL":           "http://api.scraperapi.com",
	"SEARCH_ENGINE_URL":         "https://www.google.com/search",
	"SEARCH_RESULT_LIMIT":       5,
	"SEARCH_SNIPPET_KEYWORD":    "",
	"SEARCH_TIMEOUT_SECONDS":    30,
	"SEARCH_RPS":                0,
	"PAGE_LOAD_TIMEOUT_SECONDS": 60,
	"LLM_PROVIDER":              ProviderHuggingFace,
	"LLM_API_TOKEN":             "",
	"LLM_MODEL":                 "",
	"LLM_BASE_URL":              "",
	"LLM_TIMEOUT_SECONDS":       60,
	"LLM_MIN_SCORE":             0,
	"MAX_ATTEMPTS":              2,
	"INITIAL_BACKOFF_MS":        500,
	"MAX_BACKOFF_MS":            8000,
	"WORKERS":                   4,
	"MAX_INFLIGHT":              8,
	"MAX_CONTEXT_CHARS":         4000,
	"SHEETS_CREDENTIALS_FILE":   "",
}

// Load reads configuration from a .env file, an optional secrets file named
// by SECRETS_FILE, and environment variables, in increasing precedence.
func Load() (*Config, error) {
	return LoadFrom(".env")
}

// LoadFrom is Load with an explicit dotenv path.
func LoadFrom(envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// The .env file is optional so that production can configure purely
	// through environment variables.
	_ = v.ReadInConfig()

	if secrets := v.GetString("SECRETS_FILE"); secrets != "" {
		v.SetConfigFile(secrets)
		v.SetConfigType(secretsType(secrets))
		if err := v.MergeInConfig(); err != nil {
			return nil, &ConfigError{Key: "SECRETS_FILE", Reason: err.Error()}
		}
	}

	// Names used by earlier deployments of the dashboard.
	_ = v.BindEnv("SEARCH_API_KEY", "SEARCH_API_KEY", "API_KEY_SCRAPER")
	_ = v.BindEnv("LLM_API_TOKEN", "LLM_API_TOKEN", "API_TOKEN_HUGGING_FACE")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.applyProviderDefaults()
	return &cfg, nil
}

func secretsType(path string) string {
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return "yaml"
	case strings.HasSuffix(path, ".json"):
		return "json"
	case strings.HasSuffix(path, ".toml"):
		return "toml"
	default:
		return "env"
	}
}

func (c *Config) applyProviderDefaults() {
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	c.SearchBackend = strings.ToLower(strings.TrimSpace(c.SearchBackend))
	switch c.LLMProvider {
	case ProviderHuggingFace:
		if c.LLMModel == "" {
			c.LLMModel = "deepset/roberta-base-squad2"
		}
		if c.LLMBaseURL == "" {
			c.LLMBaseURL = "https://api-inference.huggingface.co/models"
		}
	case ProviderGemini:
		if c.LLMModel == "" {
			c.LLMModel = "gemini-2.0-flash"
		}
	}
}

// Validate checks the settings every run depends on. Secrets are checked
// here so that a missing key stops the process at startup. The browser
// backend drives a local Chrome and needs no search key.
func (c *Config) Validate() error {
	var errs []error
	if c.SearchBackend == BackendHTTP && strings.TrimSpace(c.SearchAPIKey) == "" {
		errs = append(errs, &ConfigError{Key: "SEARCH_API_KEY", Reason: "search API key is required"})
	}
	if strings.TrimSpace(c.LLMAPIToken) == "" {
		errs = append(errs, &ConfigError{Key: "LLM_API_TOKEN", Reason: "language-model API token is required"})
	}
	switch c.SearchBackend {
	case BackendHTTP, BackendBrowser:
	default:
		errs = append(errs, &ConfigError{Key: "SEARCH_BACKEND", Reason: fmt.Sprintf("unknown backend %q", c.SearchBackend)})
	}
	switch c.LLMProvider {
	case ProviderHuggingFace, ProviderGemini:
	default:
		errs = append(errs, &ConfigError{Key: "LLM_PROVIDER", Reason: fmt.Sprintf("unknown provider %q", c.LLMProvider)})
	}
	if c.Workers < 1 {
		errs = append(errs, &ConfigError{Key: "WORKERS", Reason: "must be at least 1"})
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, &ConfigError{Key: "MAX_ATTEMPTS", Reason: "must be at least 1"})
	}
	if c.SearchResultLimit < 1 {
		errs = append(errs, &ConfigError{Key: "SEARCH_RESULT_LIMIT", Reason: "must be at least 1"})
	}
	if c.SheetsCredentialsFile != "" {
		if _, err := os.Stat(c.SheetsCredentialsFile); err != nil {
			errs = append(errs, &ConfigError{Key: "SHEETS_CREDENTIALS_FILE", Reason: err.Error()})
		}
	}
	return errors.Join(errs...)
}

func (c *Config) SearchTimeoutDuration() time.Duration {
	return time.Duration(c.SearchTimeout) * time.Second
}

func (c *Config) LLMTimeoutDuration() time.Duration {
	return time.Duration(c.LLMTimeout) * time.Second
}

func (c *Config) PageLoadTimeoutDuration() time.Duration {
	return time.Duration(c.PageLoadTimeout) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

func (c *Config) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMS) * time.Millisecond
}

func (c *Config) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMS) * time.Millisecond
}
