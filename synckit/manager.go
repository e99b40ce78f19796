package synckit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	syncErrors "github.com/c0deZ3R0/sitesync/errors"
	"github.com/c0deZ3R0/sitesync/logging"
)

// PullReport summarises one pull.
type PullReport struct {
	Received  int
	Retained  []string
	Replaced  int
	Dropped   []string
	StartTime time.Time
	Duration  time.Duration
}

// SyncEvent is delivered to subscribers after every push cycle and pull.
type SyncEvent struct {
	Operation syncErrors.Operation
	Push      *PushReport
	Pull      *PullReport
	Err       error
}

// Manager ties a Store to a Remote: it records local edits, drains them with
// a Pusher, merges pulls, persists the state and runs a Controller.
type Manager[D, E any] struct {
	store  *Store[D, E]
	remote Remote[D]
	pusher *Pusher[D, E]
	opts   Options
	logger *slog.Logger

	// cycleMu keeps push cycles and pulls from overlapping.
	cycleMu sync.Mutex
	saveMu  sync.Mutex

	mu          sync.RWMutex
	controller  *Controller
	subscribers []func(SyncEvent)
	closed      bool
}

// NewManager constructs a Manager for remote.
func NewManager[D, E any](remote Remote[D], opts ...Option) (*Manager[D, E], error) {
	if remote == nil {
		return nil, syncErrors.E(syncErrors.Op("synckit.NewManager"), syncErrors.Component("synckit"), syncErrors.KindInvalid,
			errors.New("remote is required"))
	}

	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	if o.KV != nil && reflect.TypeFor[E]().Kind() == reflect.Interface {
		return nil, syncErrors.E(syncErrors.Op("synckit.NewManager"), syncErrors.Component("synckit"), syncErrors.KindInvalid,
			fmt.Errorf("error payload type %s cannot be decoded from storage, use a concrete type", reflect.TypeFor[E]()))
	}
	if o.Logger == nil {
		o.Logger = logging.WithComponent(logging.Component("sync-manager")).Logger
	}

	store := NewStore[D, E](o.Logger.With("component", "sync-store"))
	return &Manager[D, E]{
		store:  store,
		remote: remote,
		pusher: NewPusher(store, remote, PusherOptions{
			Concurrency: o.Config.PushConcurrency,
			Timeout:     o.Config.Timeout,
			Clock:       o.Clock,
			Logger:      o.Logger.With("component", "sync-pusher"),
			Metrics:     o.Metrics,
		}),
		opts:   o,
		logger: o.Logger,
	}, nil
}

// Store returns the underlying store.
func (m *Manager[D, E]) Store() *Store[D, E] {
	return m.store
}

// Snapshot returns the current snapshot of the store.
func (m *Manager[D, E]) Snapshot() *Snapshot[D, E] {
	return m.store.Snapshot()
}

func (m *Manager[D, E]) checkOpen(op syncErrors.Operation) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return syncErrors.E(op, syncErrors.Component("manager"), syncErrors.KindClosed, errors.New("sync manager is closed"))
	}
	return nil
}

// Edit records a local edit of id. The edit is visible immediately and is
// never blocked by an in-flight push. The new state is persisted when a KV
// is configured; a persistence failure is returned but the edit stands.
func (m *Manager[D, E]) Edit(ctx context.Context, id string, value D) error {
	if err := m.checkOpen(syncErrors.OpStore); err != nil {
		return err
	}
	snap := m.store.Update(id, value, m.opts.Clock())
	m.logger.Debug("Entity edited", "entity_id", id, "revision_id", snap.records[id].RevisionID.String())

	m.triggerController()
	return m.save(ctx, snap)
}

// Delete removes id from the store, e.g. when its owning entity is deleted.
func (m *Manager[D, E]) Delete(ctx context.Context, id string) error {
	if err := m.checkOpen(syncErrors.OpStore); err != nil {
		return err
	}
	if !m.store.Delete(id) {
		return nil
	}
	return m.save(ctx, m.store.Snapshot())
}

// Push runs one push cycle over every unsynced entity.
func (m *Manager[D, E]) Push(ctx context.Context) (*PushReport, error) {
	if err := m.checkOpen(syncErrors.OpPush); err != nil {
		m.logger.Error("Push operation failed: manager is closed", "error", err)
		return nil, err
	}

	m.cycleMu.Lock()
	report, err := m.pusher.Push(ctx)
	m.cycleMu.Unlock()

	if len(report.Synced) > 0 || len(report.Failed) > 0 {
		if saveErr := m.save(ctx, m.store.Snapshot()); saveErr != nil && err == nil {
			err = saveErr
		}
	}

	m.notifySubscribers(SyncEvent{Operation: syncErrors.OpPush, Push: report, Err: err})
	return report, err
}

// Pull fetches the authority's full dataset and merges it without touching
// unsynced entities.
func (m *Manager[D, E]) Pull(ctx context.Context) (*PullReport, error) {
	if err := m.checkOpen(syncErrors.OpPull); err != nil {
		m.logger.Error("Pull operation failed: manager is closed", "error", err)
		return nil, err
	}

	m.cycleMu.Lock()
	report, err := m.pull(ctx)
	m.cycleMu.Unlock()

	if err == nil {
		err = m.save(ctx, m.store.Snapshot())
	}

	m.notifySubscribers(SyncEvent{Operation: syncErrors.OpPull, Pull: report, Err: err})
	return report, err
}

func (m *Manager[D, E]) pull(ctx context.Context) (*PullReport, error) {
	report := &PullReport{StartTime: m.opts.Clock()}
	defer func() {
		report.Duration = m.opts.Clock().Sub(report.StartTime)
		m.opts.Metrics.RecordSyncDuration("pull", report.Duration)
	}()

	opCtx, cancel := context.WithTimeout(ctx, m.opts.Config.Timeout)
	defer cancel()

	m.logger.Debug("Pulling dataset from remote")
	fresh, err := m.remote.FetchAll(opCtx)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			m.logger.Warn("Pull operation canceled by context", "error", err)
			m.opts.Metrics.RecordSyncErrors("pull", "context_canceled")
		case errors.Is(err, context.DeadlineExceeded):
			m.logger.Warn("Pull operation timed out", "error", err)
			m.opts.Metrics.RecordSyncErrors("pull", "timeout")
		default:
			m.logger.Error("Pull operation failed", "error", err)
			m.opts.Metrics.RecordSyncErrors("pull", "pull_failure")
		}
		return report, syncErrors.NewNetworkError(syncErrors.OpPull, err)
	}

	merged := m.store.MergePull(fresh)
	report.Received = merged.Received
	report.Retained = merged.Retained
	report.Replaced = merged.Replaced
	report.Dropped = merged.Dropped
	m.opts.Metrics.RecordPullResults(merged.Received, len(merged.Retained), len(merged.Dropped))

	m.logger.Info("Pull completed",
		"received", report.Received,
		"retained", len(report.Retained),
		"dropped", len(report.Dropped))
	return report, nil
}

// Load replaces the store contents with the persisted state, if any.
func (m *Manager[D, E]) Load(ctx context.Context) (bool, error) {
	if m.opts.KV == nil {
		return false, nil
	}
	data, rs, found, err := LoadSnapshot[D, E](ctx, m.opts.KV, m.opts.Codec, m.opts.Config.PersistKey)
	if err != nil {
		m.logger.Error("Failed to load persisted sync state", "error", err)
		return false, err
	}
	if !found {
		return false, nil
	}
	snap := m.store.Replace(data, rs)
	m.logger.Info("Loaded persisted sync state",
		"entities", len(snap.Records()),
		"unsynced", len(snap.UnsyncedIDs()))
	return true, nil
}

// Save persists the current state.
func (m *Manager[D, E]) Save(ctx context.Context) error {
	return m.save(ctx, m.store.Snapshot())
}

func (m *Manager[D, E]) save(ctx context.Context, snap *Snapshot[D, E]) error {
	if m.opts.KV == nil {
		return nil
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// A newer snapshot may have been saved while we waited.
	if current := m.store.Snapshot(); current.Generation() > snap.Generation() {
		snap = current
	}
	if err := SaveSnapshot(ctx, m.opts.KV, m.opts.Codec, m.opts.Config.PersistKey, snap); err != nil {
		m.logger.Error("Failed to persist sync state", "error", err, "generation", snap.Generation())
		m.opts.Metrics.RecordSyncErrors("save", "storage_failure")
		return err
	}
	return nil
}

// Start runs the coordination controller until Stop, Close or the end of ctx.
func (m *Manager[D, E]) Start(ctx context.Context, conn Connectivity, session Session) error {
	if err := m.checkOpen(syncErrors.OpSync); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.controller == nil {
		controller, err := NewController(ControllerOptions{
			Status:               m.store,
			Connectivity:         conn,
			Session:              session,
			Push:                 func(ctx context.Context) error { _, err := m.Push(ctx); return err },
			Pull:                 func(ctx context.Context) error { _, err := m.Pull(ctx); return err },
			PullInterval:         m.opts.Config.PullInterval,
			TickInterval:         m.opts.Config.TickInterval,
			ConnectivityDebounce: m.opts.Config.ConnectivityDebounce,
			Clock:                m.opts.Clock,
			Logger:               m.logger.With("component", "sync-controller"),
		})
		if err != nil {
			return err
		}
		m.controller = controller
	}
	return m.controller.Start(ctx)
}

// Stop stops the coordination controller.
func (m *Manager[D, E]) Stop() {
	m.mu.RLock()
	controller := m.controller
	m.mu.RUnlock()
	if controller != nil {
		controller.Stop()
	}
}

func (m *Manager[D, E]) triggerController() {
	m.mu.RLock()
	controller := m.controller
	m.mu.RUnlock()
	if controller != nil {
		controller.Trigger()
	}
}

// Subscribe registers handler for sync events.
func (m *Manager[D, E]) Subscribe(handler func(SyncEvent)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return syncErrors.E(syncErrors.OpSync, syncErrors.Component("manager"), syncErrors.KindClosed, errors.New("sync manager is closed"))
	}
	m.subscribers = append(m.subscribers, handler)
	return nil
}

func (m *Manager[D, E]) notifySubscribers(event SyncEvent) {
	m.mu.RLock()
	subscribers := make([]func(SyncEvent), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.RUnlock()

	for _, handler := range subscribers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("Subscriber panic recovered", "panic", r, "operation", event.Operation)
				}
			}()
			handler(event)
		}()
	}
}

// Close stops the controller, persists the state and closes the KV.
func (m *Manager[D, E]) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	controller := m.controller
	m.mu.Unlock()

	if controller != nil {
		controller.Stop()
	}

	if m.opts.KV == nil {
		return nil
	}

	var errs []error
	if err := m.save(context.Background(), m.store.Snapshot()); err != nil {
		errs = append(errs, err)
	}
	if err := m.opts.KV.Close(); err != nil {
		m.logger.Error("Error closing KV store", "error", err)
		errs = append(errs, syncErrors.NewWithComponent(syncErrors.OpClose, "storage", err))
	}
	if len(errs) > 0 {
		return syncErrors.New(syncErrors.OpClose, fmt.Errorf("close failed: %w", errors.Join(errs...)))
	}
	m.logger.Info("Sync manager closed")
	return nil
}
