package synckit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	syncErrors "github.com/c0deZ3R0/sitesync/errors"
	"github.com/c0deZ3R0/sitesync/logging"
	"github.com/c0deZ3R0/sitesync/version"
)

// Remote is the network collaborator that talks to the authority.
type Remote[D any] interface {
	// PushEntity sends the local value of one entity and returns the value
	// the authority stored. An implementation may issue several calls per
	// entity; the entity counts as synced only if PushEntity returns nil.
	PushEntity(ctx context.Context, id string, value D) (D, error)

	// FetchAll returns the authority's full dataset.
	FetchAll(ctx context.Context) (map[string]D, error)
}

// Rejection is returned by a Remote to attach an explicit error payload to a
// failed push.
type Rejection[E any] struct {
	Payload E
	Err     error
}

func (r *Rejection[E]) Error() string {
	if r.Err == nil {
		return fmt.Sprintf("rejected: %v", r.Payload)
	}
	return "rejected: " + r.Err.Error()
}

func (r *Rejection[E]) Unwrap() error { return r.Err }

// ErrorPayload converts a push failure into the payload stored as
// LastSyncedError. A *Rejection[E] in err's chain supplies the payload
// directly; otherwise string payloads get the error message and any other
// type gets its zero value. E is persisted through the manager's Codec, so
// it must be a concrete type the codec can decode.
func ErrorPayload[E any](err error) E {
	var rejection *Rejection[E]
	if errors.As(err, &rejection) {
		return rejection.Payload
	}

	var payload E
	switch p := any(&payload).(type) {
	case *string:
		*p = err.Error()
	}
	return payload
}

// PushReport summarises one push cycle. Id lists are sorted.
type PushReport struct {
	CycleID   string
	Attempted int
	Synced    []string
	Failed    []string
	Stale     []string
	// Missing lists unsynced ids without local data. They are recorded as
	// errors and also appear in Failed.
	Missing   []string
	StartTime time.Time
	Duration  time.Duration
}

// PusherOptions configures a Pusher.
type PusherOptions struct {
	// Concurrency bounds the number of entities pushed at once.
	Concurrency int
	// Timeout bounds each entity's push. Zero disables the per-entity timeout.
	Timeout time.Duration

	Clock   func() time.Time
	Logger  *slog.Logger
	Metrics MetricsCollector
}

// Pusher drains the dirty set of a Store through a Remote. One entity's
// failure never aborts the others: every failure is recorded on that
// entity's record and the cycle goes on.
type Pusher[D, E any] struct {
	store   *Store[D, E]
	remote  Remote[D]
	opts    PusherOptions
	logger  *slog.Logger
	metrics MetricsCollector
}

// NewPusher returns a pusher for store and remote.
func NewPusher[D, E any](store *Store[D, E], remote Remote[D], opts PusherOptions) *Pusher[D, E] {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent(logging.Component("sync-pusher")).Logger
	}
	if opts.Metrics == nil {
		opts.Metrics = &NoOpMetricsCollector{}
	}
	return &Pusher[D, E]{
		store:   store,
		remote:  remote,
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

type pushTask[D any] struct {
	id    string
	value D
	rev   version.RevisionID
}

// Push pushes every unsynced entity of the current snapshot and applies the
// outcomes. Results for entities edited again during the cycle are dropped
// as stale and retried by a later cycle. The returned error is non-nil only
// when ctx ends the cycle early; entities not pushed yet stay unsynced.
func (p *Pusher[D, E]) Push(ctx context.Context) (*PushReport, error) {
	report := &PushReport{
		CycleID:   uuid.NewString(),
		StartTime: p.opts.Clock(),
	}
	ctx = logging.ContextWithCycleID(ctx, report.CycleID)
	logger := p.logger.With("cycle_id", report.CycleID)

	defer func() {
		report.Duration = p.opts.Clock().Sub(report.StartTime)
		p.metrics.RecordSyncDuration("push", report.Duration)
		p.metrics.RecordPushResults(len(report.Synced), len(report.Failed), len(report.Stale))
	}()

	snap := p.store.Snapshot()
	ids := snap.UnsyncedIDs()
	if len(ids) == 0 {
		logger.Debug("No unsynced entities to push")
		return report, nil
	}

	results := NewActionResults[D, E]()

	tasks := make([]pushTask[D], 0, len(ids))
	for _, id := range ids {
		record, _ := snap.Record(id)
		value, ok := snap.Value(id)
		if !ok {
			// Recorded as an error so the revision settles.
			err := syncErrors.E(syncErrors.OpPush, syncErrors.Component("pusher"), syncErrors.KindNotFound,
				fmt.Errorf("entity %q has no local data", id))
			report.Missing = append(report.Missing, id)
			logger.Warn("Unsynced entity has no local data", "entity_id", id, "revision_id", record.RevisionID.String())
			p.metrics.RecordSyncErrors("push", "missing_data")
			results.Errors[id] = SyncResult[E]{Value: ErrorPayload[E](err), RevisionID: record.RevisionID}
			continue
		}
		tasks = append(tasks, pushTask[D]{id: id, value: value, rev: record.RevisionID})
	}
	report.Attempted = len(tasks)

	logger.Debug("Starting push cycle",
		"entities", len(tasks),
		"concurrency", p.opts.Concurrency)

	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			value, err := p.pushOne(ctx, task.id, task.value)
			if err != nil && ctx.Err() != nil {
				// The cycle was canceled; the entity stays unsynced.
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("Entity push rejected",
					"entity_id", task.id,
					"revision_id", task.rev.String(),
					"error", err)
				p.metrics.RecordSyncErrors("push", p.errorType(err))
				results.Errors[task.id] = SyncResult[E]{Value: ErrorPayload[E](err), RevisionID: task.rev}
				return nil
			}
			results.Data[task.id] = SyncResult[D]{Value: value, RevisionID: task.rev}
			return nil
		})
	}
	_ = g.Wait()

	applied := p.store.ApplyResults(results, p.opts.Clock())
	report.Synced = applied.Synced
	report.Failed = applied.Failed
	report.Stale = applied.Stale

	logger.Info("Push cycle completed",
		"attempted", report.Attempted,
		"synced", len(report.Synced),
		"failed", len(report.Failed),
		"stale", len(report.Stale))

	if err := ctx.Err(); err != nil {
		return report, syncErrors.E(syncErrors.OpPush, syncErrors.Component("pusher"), syncErrors.KindCanceled, err)
	}
	return report, nil
}

// pushOne calls the remote for one entity, converting a panic into an error.
func (p *Pusher[D, E]) pushOne(ctx context.Context, id string, value D) (result D, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = syncErrors.E(syncErrors.OpPush, syncErrors.Component("remote"), syncErrors.KindInternal,
				fmt.Errorf("remote panicked: %v", r))
		}
	}()

	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}
	return p.remote.PushEntity(ctx, id, value)
}

func (p *Pusher[D, E]) errorType(err error) string {
	var rejection *Rejection[E]
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &rejection), syncErrors.IsKind(err, syncErrors.KindRejected):
		return "rejected"
	default:
		return "push_failure"
	}
}
