package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	env "github.com/Netflix/go-env"
)

// Environment types
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// GetConfigFromEnv creates a logger configuration from LOG_LEVEL, LOG_FORMAT,
// LOG_ADD_SOURCE and ENVIRONMENT. Unset variables keep the environment's preset.
func GetConfigFromEnv() (Config, error) {
	var fromEnv Config
	es, err := env.UnmarshalFromEnviron(&fromEnv)
	if err != nil {
		return DefaultConfig, err
	}

	config := DefaultConfig
	if fromEnv.Environment != "" {
		config.Environment = strings.ToLower(fromEnv.Environment)
	}

	switch config.Environment {
	case EnvProduction:
		config.Format = "json"
		config.Level = "info"
		config.AddSource = false
	case EnvTest:
		config.Format = "text"
		config.Level = "debug"
		config.AddSource = false
	case EnvDevelopment:
		config.Format = "text"
		config.Level = "debug"
		config.AddSource = true
	}

	if fromEnv.Level != "" {
		config.Level = strings.ToLower(fromEnv.Level)
	}
	if fromEnv.Format != "" {
		config.Format = strings.ToLower(fromEnv.Format)
	}
	if _, ok := es["LOG_ADD_SOURCE"]; ok {
		config.AddSource = fromEnv.AddSource
	}

	return config, nil
}

// CustomLevel defines a custom log level between existing ones
type CustomLevel slog.Level

// LevelTrace is more verbose than debug.
const LevelTrace CustomLevel = CustomLevel(slog.LevelDebug - 4)

// String returns the string representation of the level
func (l CustomLevel) String() string {
	if l == LevelTrace {
		return "TRACE"
	}
	return slog.Level(l).String()
}

// Trace logs at trace level on l.
func (l *Logger) Trace(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, slog.Level(LevelTrace), msg, args...)
}

// DynamicLevelVar allows changing log level at runtime
type DynamicLevelVar struct {
	*slog.LevelVar
}

// SetFromString sets the level from a string representation
func (d *DynamicLevelVar) SetFromString(level string) bool {
	switch strings.ToLower(level) {
	case "trace", "debug", "info", "warn", "warning", "error":
		d.Set(ParseLevel(strings.ToLower(level)))
		return true
	default:
		return false
	}
}

// NewLoggerWithDynamicLevel creates a logger whose level can be changed at runtime.
func NewLoggerWithDynamicLevel(config Config) (*Logger, *DynamicLevelVar) {
	levelVar := &DynamicLevelVar{LevelVar: &slog.LevelVar{}}
	levelVar.Set(ParseLevel(config.Level))

	opts := &slog.HandlerOptions{
		Level:       levelVar.LevelVar,
		AddSource:   config.AddSource,
		ReplaceAttr: replaceLevelNames,
	}

	return &Logger{Logger: slog.New(newHandler(os.Stdout, config, opts))}, levelVar
}
