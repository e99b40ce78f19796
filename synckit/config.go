package synckit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"gopkg.in/yaml.v3"

	syncErrors "github.com/c0deZ3R0/sitesync/errors"
)

// DefaultPullInterval is the period after which a new pull is requested even
// without any other trigger.
const DefaultPullInterval = 5 * time.Minute

// Config holds the tunables of a Manager.
type Config struct {
	// PullInterval re-requests a pull this long after the last one began.
	PullInterval time.Duration `json:"pull_interval" yaml:"pull_interval" env:"SYNC_PULL_INTERVAL"`
	// TickInterval is the period of the controller loop.
	TickInterval time.Duration `json:"tick_interval" yaml:"tick_interval" env:"SYNC_TICK_INTERVAL"`
	// ConnectivityDebounce is how long a connectivity change must hold before it counts.
	ConnectivityDebounce time.Duration `json:"connectivity_debounce" yaml:"connectivity_debounce" env:"SYNC_CONNECTIVITY_DEBOUNCE"`
	// PushConcurrency bounds concurrent entity pushes.
	PushConcurrency int `json:"push_concurrency" yaml:"push_concurrency" env:"SYNC_PUSH_CONCURRENCY"`
	// Timeout bounds each entity push and each pull.
	Timeout time.Duration `json:"timeout" yaml:"timeout" env:"SYNC_TIMEOUT"`
	// PersistKey prefixes the keys the state is persisted under.
	PersistKey string `json:"persist_key" yaml:"persist_key" env:"SYNC_PERSIST_KEY"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		PullInterval:         DefaultPullInterval,
		TickInterval:         time.Second,
		ConnectivityDebounce: time.Second,
		PushConcurrency:      4,
		Timeout:              30 * time.Second,
		PersistKey:           "sync",
	}
}

// Validate checks that every setting is usable.
func (c Config) Validate() error {
	var problems []string
	if c.PullInterval <= 0 {
		problems = append(problems, fmt.Sprintf("pull_interval must be positive, got %v", c.PullInterval))
	}
	if c.TickInterval <= 0 {
		problems = append(problems, fmt.Sprintf("tick_interval must be positive, got %v", c.TickInterval))
	}
	if c.ConnectivityDebounce < 0 {
		problems = append(problems, fmt.Sprintf("connectivity_debounce must not be negative, got %v", c.ConnectivityDebounce))
	}
	if c.PushConcurrency <= 0 {
		problems = append(problems, fmt.Sprintf("push_concurrency must be positive, got %d", c.PushConcurrency))
	}
	if c.Timeout <= 0 {
		problems = append(problems, fmt.Sprintf("timeout must be positive, got %v", c.Timeout))
	}
	if c.PersistKey == "" {
		problems = append(problems, "persist_key is required")
	}
	if len(problems) > 0 {
		return syncErrors.NewValidationError(syncErrors.OpLoad, fmt.Errorf("invalid config: %s", strings.Join(problems, "; ")))
	}
	return nil
}

// LoadConfig builds a configuration from the defaults, the YAML or JSON file
// at path (skipped when path is empty) and SYNC_* environment variables, in
// that order of precedence from lowest to highest.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if config, err = ParseConfig(data, detectFormat(path)); err != nil {
			return config, err
		}
	}

	if err := config.ApplyEnv(); err != nil {
		return config, err
	}
	return config, config.Validate()
}

// ParseConfig decodes data on top of the defaults.
func ParseConfig(data []byte, format string) (Config, error) {
	config := DefaultConfig()
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return config, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &config); err != nil {
			return config, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return config, fmt.Errorf("unsupported config format: %s", format)
	}
	return config, nil
}

// ApplyEnv overrides the settings whose SYNC_* variable is set.
func (c *Config) ApplyEnv() error {
	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return fmt.Errorf("failed to read config from environment: %w", err)
	}
	return nil
}

func detectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}
