package synckit

import (
	"errors"
	"log/slog"
	"time"

	syncErrors "github.com/c0deZ3R0/sitesync/errors"
)

// Options holds the collaborators and settings of a Manager.
type Options struct {
	Config  Config
	Logger  *slog.Logger
	Metrics MetricsCollector
	KV      KV
	Codec   Codec
	Clock   func() time.Time
}

// Option is a functional option for configuring a Manager via NewManager.
type Option func(*Options) error

// WithConfig replaces the whole configuration.
func WithConfig(c Config) Option {
	return func(o *Options) error {
		o.Config = c
		return nil
	}
}

// WithLogger sets a custom logger for the Manager and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		o.Logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(mc MetricsCollector) Option {
	return func(o *Options) error {
		if mc == nil {
			return errors.New("metrics collector must not be nil")
		}
		o.Metrics = mc
		return nil
	}
}

// WithKV enables persistence of the sync state through kv.
func WithKV(kv KV) Option {
	return func(o *Options) error {
		o.KV = kv
		return nil
	}
}

// WithCodec sets the codec used to persist the sync state.
func WithCodec(codec Codec) Option {
	return func(o *Options) error {
		if codec == nil {
			return errors.New("codec must not be nil")
		}
		o.Codec = codec
		return nil
	}
}

// WithClock sets the time source used to stamp records.
func WithClock(clock func() time.Time) Option {
	return func(o *Options) error {
		if clock == nil {
			return errors.New("clock must not be nil")
		}
		o.Clock = clock
		return nil
	}
}

// WithPullInterval sets Config.PullInterval.
func WithPullInterval(d time.Duration) Option {
	return func(o *Options) error {
		o.Config.PullInterval = d
		return nil
	}
}

// WithTickInterval sets Config.TickInterval.
func WithTickInterval(d time.Duration) Option {
	return func(o *Options) error {
		o.Config.TickInterval = d
		return nil
	}
}

// WithPushConcurrency sets Config.PushConcurrency.
func WithPushConcurrency(n int) Option {
	return func(o *Options) error {
		o.Config.PushConcurrency = n
		return nil
	}
}

// WithTimeout sets Config.Timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) error {
		o.Config.Timeout = d
		return nil
	}
}

func buildOptions(opts []Option) (Options, error) {
	o := Options{
		Config:  DefaultConfig(),
		Metrics: &NoOpMetricsCollector{},
		Codec:   JSONCodec{},
		Clock:   time.Now,
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return o, syncErrors.E(syncErrors.Op("synckit.NewManager"), syncErrors.Component("synckit"), syncErrors.KindInvalid, err)
		}
	}
	if err := o.Config.Validate(); err != nil {
		return o, err
	}
	return o, nil
}
