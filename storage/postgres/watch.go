package postgres

import (
	"context"
	"strings"
	"time"

	syncErrors "github.com/c0deZ3R0/sitesync/errors"
)

// WatchOptions configures Watch.
type WatchOptions struct {
	// ReconnectInterval is the pause before listening again after the
	// connection was lost. Default: 5s.
	ReconnectInterval time.Duration
	// MaxReconnectAttempts bounds consecutive failed reconnects. Zero retries
	// forever.
	MaxReconnectAttempts int
}

// Watch calls handler with the key of every Set in the store's namespace,
// including Sets made by other processes, until ctx is done. It reconnects
// after connection failures.
func (s *Store) Watch(ctx context.Context, opts WatchOptions, handler func(key string)) error {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 5 * time.Second
	}

	failures := 0
	for {
		err := s.listen(ctx, handler, func() { failures = 0 })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.checkOpen(); err != nil {
			return err
		}

		failures++
		if opts.MaxReconnectAttempts > 0 && failures > opts.MaxReconnectAttempts {
			return syncErrors.WrapOpComponent(err, opWatch, "storage/postgres")
		}
		s.logger.Warn("Notification listener disconnected, reconnecting",
			"error", err,
			"attempt", failures,
			"interval", opts.ReconnectInterval)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.ReconnectInterval):
		}
	}
}

func (s *Store) listen(ctx context.Context, handler func(key string), connected func()) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return err
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), "UNLISTEN "+NotifyChannel)
	}()
	connected()
	s.logger.Debug("Listening for KV changes", "channel", NotifyChannel, "namespace", s.namespace)

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		namespace, key, ok := strings.Cut(notification.Payload, "\t")
		if !ok {
			s.logger.Warn("Ignoring malformed notification", "payload", notification.Payload)
			continue
		}
		if namespace != s.namespace {
			continue
		}
		handler(key)
	}
}

