// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// defaultRequestTimeout bounds a single backend call.
	defaultRequestTimeout = 30 * time.Second
	// defaultConcurrency bounds in-flight gateway calls, protecting the
	// backend under test from overload.
	defaultConcurrency = 4
	// defaultRetries is the retry budget for transient gateway failures.
	defaultRetries = 2
	// defaultRRFK is the standard RRF smoothing constant.
	defaultRRFK = 60
)

// Config is the immutable run configuration handed to the harness
// constructor. Flags merged through viper override file values.
type Config struct {
	BackendURL      string `json:"backendUrl" mapstructure:"backendUrl"`
	TestsetPath     string `json:"testset,omitempty" mapstructure:"testset"`
	StrategiesPath  string `json:"strategies,omitempty" mapstructure:"strategies"`
	OutDir          string `json:"out,omitempty" mapstructure:"out"`
	Concurrency     int    `json:"concurrency,omitempty" mapstructure:"concurrency"`
	Retries         int    `json:"retries,omitempty" mapstructure:"retries"`
	TimeoutSeconds  int    `json:"timeout,omitempty" mapstructure:"timeout"`
	DeadlineSeconds int    `json:"deadline,omitempty" mapstructure:"deadline"`
	DelayMs         int    `json:"delayMs,omitempty" mapstructure:"delayMs"`
	RRFK            int    `json:"rrfK,omitempty" mapstructure:"rrfK"`
	PrimaryMetric   string `json:"primaryMetric,omitempty" mapstructure:"primaryMetric"`
	Progress        bool   `json:"progress,omitempty" mapstructure:"progress"`
	Debug           bool   `json:"debug,omitempty" mapstructure:"debug"`
	LogFile         string `json:"logFile,omitempty" mapstructure:"logFile"`
	ConfigPath      string `json:"-" mapstructure:"-"`
}

// RequestTimeout returns the per-call timeout, falling back to the default.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RunDeadline returns the overall run deadline, zero meaning none.
func (c Config) RunDeadline() time.Duration {
	if c.DeadlineSeconds <= 0 {
		return 0
	}
	return time.Duration(c.DeadlineSeconds) * time.Second
}

// RequestDelay returns the pacing delay between gateway calls per worker.
func (c Config) RequestDelay() time.Duration {
	if c.DelayMs <= 0 {
		return 0
	}
	return time.Duration(c.DelayMs) * time.Millisecond
}

// WorkerCount returns the bounded worker pool size.
func (c Config) WorkerCount() int {
	if c.Concurrency <= 0 {
		return defaultConcurrency
	}
	return c.Concurrency
}

// RetryCount returns how many times a transient failure is re-attempted.
// Zero is a valid "no retries"; a negative value marks the setting as unset
// and falls back to the default.
func (c Config) RetryCount() int {
	if c.Retries < 0 {
		return defaultRetries
	}
	return c.Retries
}

// FusionK returns the RRF smoothing constant shared by all strategies.
func (c Config) FusionK() int {
	if c.RRFK <= 0 {
		return defaultRRFK
	}
	return c.RRFK
}

// OutputDir returns the artifact directory, applying a default if not set.
func (c Config) OutputDir() string {
	if dir := strings.TrimSpace(c.OutDir); dir != "" {
		return dir
	}
	return "results"
}

// LogFilePath returns the path to the run log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := strings.TrimSpace(c.LogFile); path != "" {
		return path
	}
	return "ragbench.log"
}

// TestsetFile returns the testset path, applying a default if not set.
func (c Config) TestsetFile() string {
	if path := strings.TrimSpace(c.TestsetPath); path != "" {
		return path
	}
	return "config/testset.json"
}

// StrategiesFile returns the strategy file path, applying a default if not set.
func (c Config) StrategiesFile() string {
	if path := strings.TrimSpace(c.StrategiesPath); path != "" {
		return path
	}
	return "config/strategies.json"
}

// Load reads the application configuration from the specified path.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	config, err := loadFromPath(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("no configuration file found at %q", path)
		}
		return Config{}, fmt.Errorf("could not read config file %q: %w", path, err)
	}

	if strings.TrimSpace(config.BackendURL) == "" {
		return Config{}, errors.New("config must set backendUrl")
	}
	config.ConfigPath = path
	return config, nil
}

// loadFromPath is a helper function that loads the configuration from a specific file path.
func loadFromPath(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	// Retries seeds to -1 so an absent key is distinguishable from an
	// explicit "retries": 0.
	config := Config{Retries: -1}
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return Config{}, err
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = int(defaultRequestTimeout.Seconds())
	}

	return config, nil
}
