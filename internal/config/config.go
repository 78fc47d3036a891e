// Package config loads collabgen settings from YAML, applies defaults and
// CLI overrides, and validates the result.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
)

// Breaker recovery policies
const (
	RecoveryNever    = "never"
	RecoveryHalfOpen = "half-open"
)

// LLMConfig configures the generation service client.
type LLMConfig struct {
	// BaseURL overrides the OpenAI endpoint; empty uses the SDK default
	BaseURL string `yaml:"base_url"`

	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key
	APIKeyEnv string `yaml:"api_key_env"`

	// RequestTimeout bounds a single call attempt
	RequestTimeout time.Duration `yaml:"request_timeout"`

	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
}

// RetryConfig bounds the executor's retry loop.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

// CircuitBreakerConfig configures the shared breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Recovery         string        `yaml:"recovery"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// TimeoutsConfig holds per-stage limits and the whole-run limit.
type TimeoutsConfig struct {
	Research  time.Duration `yaml:"research"`
	Product   time.Duration `yaml:"product"`
	Marketing time.Duration `yaml:"marketing"`
	Quality   time.Duration `yaml:"quality"`
	Pipeline  time.Duration `yaml:"pipeline"`
}

// StorageConfig selects where reports are kept.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// Config represents collabgen configuration options
type Config struct {
	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs will be written
	LogDir string `yaml:"log_dir"`

	// MaxConcurrency caps concurrent pipelines in batch runs
	MaxConcurrency int `yaml:"max_concurrency"`

	// AllowedDomains whitelists request domains; empty accepts any
	AllowedDomains []string `yaml:"allowed_domains"`

	LLM            LLMConfig            `yaml:"llm"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Timeouts       TimeoutsConfig       `yaml:"timeouts"`
	Storage        StorageConfig        `yaml:"storage"`
}

// DefaultAllowedDomains is the domain whitelist used when none is configured.
var DefaultAllowedDomains = []string{
	"XR", "AI", "Robotics", "Healthcare", "Finance",
	"Gaming", "Education", "Automotive", "Retail", "Manufacturing",
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		LogLevel:       "info",
		LogDir:         filepath.Join(HomeDir(), "logs"),
		MaxConcurrency: 2,
		AllowedDomains: append([]string(nil), DefaultAllowedDomains...),
		LLM: LLMConfig{
			Model:           "gpt-4-turbo-preview",
			APIKeyEnv:       "OPENAI_API_KEY",
			RequestTimeout:  60 * time.Second,
			Temperature:     0.7,
			MaxOutputTokens: 4096,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			Recovery:         RecoveryNever,
			RecoveryTimeout:  60 * time.Second,
		},
		Timeouts: TimeoutsConfig{
			Research:  120 * time.Second,
			Product:   90 * time.Second,
			Marketing: 90 * time.Second,
			Quality:   90 * time.Second,
			Pipeline:  300 * time.Second,
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Path:   defaultStoragePath(DriverSQLite),
		},
	}
}

// yamlConfig mirrors Config with durations as strings and pointers where
// an explicit zero must be distinguishable from an absent key.
type yamlConfig struct {
	LogLevel       string   `yaml:"log_level"`
	LogDir         string   `yaml:"log_dir"`
	MaxConcurrency int      `yaml:"max_concurrency"`
	AllowedDomains []string `yaml:"allowed_domains"`
	LLM            struct {
		BaseURL         string   `yaml:"base_url"`
		Model           string   `yaml:"model"`
		APIKeyEnv       string   `yaml:"api_key_env"`
		RequestTimeout  string   `yaml:"request_timeout"`
		Temperature     *float64 `yaml:"temperature"`
		MaxOutputTokens int      `yaml:"max_output_tokens"`
	} `yaml:"llm"`
	Retry struct {
		MaxAttempts  int     `yaml:"max_attempts"`
		InitialDelay string  `yaml:"initial_delay"`
		MaxDelay     string  `yaml:"max_delay"`
		Multiplier   float64 `yaml:"multiplier"`
	} `yaml:"retry"`
	CircuitBreaker struct {
		FailureThreshold int    `yaml:"failure_threshold"`
		Recovery         string `yaml:"recovery"`
		RecoveryTimeout  string `yaml:"recovery_timeout"`
	} `yaml:"circuit_breaker"`
	Timeouts struct {
		Research  string `yaml:"research"`
		Product   string `yaml:"product"`
		Marketing string `yaml:"marketing"`
		Quality   string `yaml:"quality"`
		Pipeline  string `yaml:"pipeline"`
	} `yaml:"timeouts"`
	Storage struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
	} `yaml:"storage"`
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if y.LogLevel != "" {
		cfg.LogLevel = y.LogLevel
	}
	if y.LogDir != "" {
		cfg.LogDir = y.LogDir
	}
	if y.MaxConcurrency != 0 {
		cfg.MaxConcurrency = y.MaxConcurrency
	}
	if y.AllowedDomains != nil {
		cfg.AllowedDomains = y.AllowedDomains
	}

	if y.LLM.BaseURL != "" {
		cfg.LLM.BaseURL = y.LLM.BaseURL
	}
	if y.LLM.Model != "" {
		cfg.LLM.Model = y.LLM.Model
	}
	if y.LLM.APIKeyEnv != "" {
		cfg.LLM.APIKeyEnv = y.LLM.APIKeyEnv
	}
	if y.LLM.Temperature != nil {
		cfg.LLM.Temperature = *y.LLM.Temperature
	}
	if y.LLM.MaxOutputTokens != 0 {
		cfg.LLM.MaxOutputTokens = y.LLM.MaxOutputTokens
	}

	if y.Retry.MaxAttempts != 0 {
		cfg.Retry.MaxAttempts = y.Retry.MaxAttempts
	}
	if y.Retry.Multiplier != 0 {
		cfg.Retry.Multiplier = y.Retry.Multiplier
	}

	if y.CircuitBreaker.FailureThreshold != 0 {
		cfg.CircuitBreaker.FailureThreshold = y.CircuitBreaker.FailureThreshold
	}
	if y.CircuitBreaker.Recovery != "" {
		cfg.CircuitBreaker.Recovery = y.CircuitBreaker.Recovery
	}

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"llm.request_timeout", y.LLM.RequestTimeout, &cfg.LLM.RequestTimeout},
		{"retry.initial_delay", y.Retry.InitialDelay, &cfg.Retry.InitialDelay},
		{"retry.max_delay", y.Retry.MaxDelay, &cfg.Retry.MaxDelay},
		{"circuit_breaker.recovery_timeout", y.CircuitBreaker.RecoveryTimeout, &cfg.CircuitBreaker.RecoveryTimeout},
		{"timeouts.research", y.Timeouts.Research, &cfg.Timeouts.Research},
		{"timeouts.product", y.Timeouts.Product, &cfg.Timeouts.Product},
		{"timeouts.marketing", y.Timeouts.Marketing, &cfg.Timeouts.Marketing},
		{"timeouts.quality", y.Timeouts.Quality, &cfg.Timeouts.Quality},
		{"timeouts.pipeline", y.Timeouts.Pipeline, &cfg.Timeouts.Pipeline},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s format %q: %w", d.key, d.value, err)
		}
		*d.dst = parsed
	}

	if y.Storage.Driver != "" {
		cfg.Storage.Driver = y.Storage.Driver
		cfg.Storage.Path = defaultStoragePath(y.Storage.Driver)
	}
	if y.Storage.Path != "" {
		cfg.Storage.Path = y.Storage.Path
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .collabgen/config.yaml in the specified directory
// If the directory or file doesn't exist, returns default configuration without error
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, defaultHome, "config.yaml"))
}

// Overrides carries CLI flag values. Nil fields leave the config unchanged.
type Overrides struct {
	LogLevel       *string
	LogDir         *string
	MaxConcurrency *int
	Model          *string
	StorageDriver  *string
	StoragePath    *string
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
func (c *Config) MergeWithFlags(o Overrides) {
	if o.LogLevel != nil {
		c.LogLevel = *o.LogLevel
	}
	if o.LogDir != nil {
		c.LogDir = *o.LogDir
	}
	if o.MaxConcurrency != nil {
		c.MaxConcurrency = *o.MaxConcurrency
	}
	if o.Model != nil {
		c.LLM.Model = *o.Model
	}
	if o.StorageDriver != nil && *o.StorageDriver != c.Storage.Driver {
		c.Storage.Driver = *o.StorageDriver
		c.Storage.Path = defaultStoragePath(*o.StorageDriver)
	}
	if o.StoragePath != nil {
		c.Storage.Path = *o.StoragePath
	}
}

// APIKey reads the API key from the configured environment variable.
func (c *Config) APIKey() string {
	return os.Getenv(c.LLM.APIKeyEnv)
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be >= 1, got %d", c.MaxConcurrency)
	}

	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model cannot be empty")
	}
	if c.LLM.APIKeyEnv == "" {
		return fmt.Errorf("llm.api_key_env cannot be empty")
	}
	if c.LLM.RequestTimeout <= 0 {
		return fmt.Errorf("llm.request_timeout must be > 0, got %v", c.LLM.RequestTimeout)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2, got %v", c.LLM.Temperature)
	}
	if c.LLM.MaxOutputTokens <= 0 {
		return fmt.Errorf("llm.max_output_tokens must be > 0, got %d", c.LLM.MaxOutputTokens)
	}

	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.InitialDelay < 0 || c.Retry.MaxDelay < 0 {
		return fmt.Errorf("retry delays must be >= 0")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be >= 1, got %v", c.Retry.Multiplier)
	}

	if c.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be > 0, got %d", c.CircuitBreaker.FailureThreshold)
	}
	if c.CircuitBreaker.Recovery != RecoveryNever && c.CircuitBreaker.Recovery != RecoveryHalfOpen {
		return fmt.Errorf("invalid circuit_breaker.recovery %q, must be one of: never, half-open", c.CircuitBreaker.Recovery)
	}
	if c.CircuitBreaker.Recovery == RecoveryHalfOpen && c.CircuitBreaker.RecoveryTimeout <= 0 {
		return fmt.Errorf("circuit_breaker.recovery_timeout must be > 0 for half-open recovery")
	}

	stageTimeouts := map[string]time.Duration{
		"timeouts.research":  c.Timeouts.Research,
		"timeouts.product":   c.Timeouts.Product,
		"timeouts.marketing": c.Timeouts.Marketing,
		"timeouts.quality":   c.Timeouts.Quality,
		"timeouts.pipeline":  c.Timeouts.Pipeline,
	}
	for key, d := range stageTimeouts {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0, got %v", key, d)
		}
	}

	if c.Storage.Driver != DriverSQLite && c.Storage.Driver != DriverFile {
		return fmt.Errorf("invalid storage.driver %q, must be one of: sqlite, file", c.Storage.Driver)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path cannot be empty")
	}

	return nil
}
