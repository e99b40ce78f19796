package synckit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncErrors "github.com/c0deZ3R0/sitesync/errors"
	"github.com/c0deZ3R0/sitesync/logging"
	"github.com/c0deZ3R0/sitesync/version"
)

func newTestPusher(store *siteStore, remote Remote[site], metrics MetricsCollector) *Pusher[site, string] {
	return NewPusher(store, remote, PusherOptions{
		Concurrency: 4,
		Timeout:     time.Second,
		Clock:       func() time.Time { return t0 },
		Logger:      logging.Discard().Logger,
		Metrics:     metrics,
	})
}

func TestPusher_PushesDirtySet(t *testing.T) {
	store := newTestStore()
	store.Replace(map[string]site{"clean": {Name: "clean"}}, siteRecords{"clean": InitialRecord[site, string](site{Name: "clean"})})
	store.Update("a", site{Name: "a"}, t0)
	store.Update("b", site{Name: "b"}, t0)

	remote := &mockRemote{pushFn: func(_ context.Context, _ string, v site) (site, error) {
		v.Name += " (saved)"
		return v, nil
	}}
	metrics := newRecordingMetrics()

	report, err := newTestPusher(store, remote, metrics).Push(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a", "b"}, remote.pushedIDs())
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, []string{"a", "b"}, report.Synced)
	assert.NotEmpty(t, report.CycleID)

	snap := store.Snapshot()
	assert.Empty(t, snap.UnsyncedIDs())
	a, _ := snap.Value("a")
	assert.Equal(t, "a (saved)", a.Name)
	assert.Equal(t, 2, metrics.synced)
	assert.Equal(t, 1, metrics.durations["push"])
}

func TestPusher_NothingToPush(t *testing.T) {
	store := newTestStore()
	remote := &mockRemote{}

	report, err := newTestPusher(store, remote, nil).Push(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Attempted)
	assert.Empty(t, remote.pushedIDs())
}

func TestPusher_FailureIsolation(t *testing.T) {
	store := newTestStore()
	for _, id := range []string{"a", "b", "c"} {
		store.Update(id, site{Name: id}, t0)
	}

	remote := &mockRemote{pushFn: func(_ context.Context, id string, v site) (site, error) {
		switch id {
		case "b":
			return site{}, errors.New("name already taken")
		case "c":
			panic("nil map")
		}
		return v, nil
	}}
	metrics := newRecordingMetrics()

	report, err := newTestPusher(store, remote, metrics).Push(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, report.Synced)
	assert.Equal(t, []string{"b", "c"}, report.Failed)

	snap := store.Snapshot()
	rb, _ := snap.Record("b")
	require.NotNil(t, rb.LastSyncedError)
	assert.Equal(t, "name already taken", *rb.LastSyncedError)
	assert.False(t, rb.IsUnsynced())

	rc, _ := snap.Record("c")
	require.NotNil(t, rc.LastSyncedError)
	assert.Contains(t, *rc.LastSyncedError, "remote panicked")

	b, _ := snap.Value("b")
	assert.Equal(t, "b", b.Name, "local data survives a rejection")
	assert.Equal(t, []string{"b", "c"}, snap.ErrorIDs())
	assert.Equal(t, 2, metrics.errors["push/push_failure"])
}

func TestPusher_RejectionPayload(t *testing.T) {
	store := NewStore[site, fieldErrors](logging.Discard().Logger)
	store.Update("a", site{Name: ""}, t0)

	remote := &mockRemote{pushFn: func(context.Context, string, site) (site, error) {
		return site{}, syncErrors.NewRejectedError(syncErrors.OpPush, &Rejection[fieldErrors]{
			Payload: fieldErrors{Field: "name", Message: "required"},
			Err:     errors.New("validation failed"),
		})
	}}
	metrics := newRecordingMetrics()

	p := NewPusher(store, Remote[site](remote), PusherOptions{Logger: logging.Discard().Logger, Metrics: metrics})
	report, err := p.Push(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, report.Failed)

	r, _ := store.Snapshot().Record("a")
	require.NotNil(t, r.LastSyncedError)
	assert.Equal(t, fieldErrors{Field: "name", Message: "required"}, *r.LastSyncedError)
	assert.Equal(t, 1, metrics.errors["push/rejected"])
}

func TestErrorPayload(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, "boom", ErrorPayload[string](err))
	assert.Nil(t, ErrorPayload[error](err), "interface payloads are not derived from the error")
	assert.Equal(t, 0, ErrorPayload[int](err))
	assert.Equal(t, 7, ErrorPayload[int](&Rejection[int]{Payload: 7}))
	assert.Equal(t, "rejected: 7", (&Rejection[int]{Payload: 7}).Error())
}

func TestPusher_EditDuringPushIsStale(t *testing.T) {
	store := newTestStore()
	store.Update("a", site{Name: "v1"}, t0)
	store.Update("b", site{Name: "b"}, t0)

	remote := &mockRemote{pushFn: func(_ context.Context, id string, v site) (site, error) {
		if id == "a" {
			// the user keeps editing while the push is in flight
			store.Update("a", site{Name: "v2"}, t0)
		}
		return v, nil
	}}

	report, err := newTestPusher(store, remote, nil).Push(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, report.Stale)
	assert.Equal(t, []string{"b"}, report.Synced)

	snap := store.Snapshot()
	a, _ := snap.Value("a")
	assert.Equal(t, "v2", a.Name)
	ra, _ := snap.Record("a")
	assert.Equal(t, version.At(2), ra.RevisionID)
	assert.True(t, ra.IsUnsynced())
	assert.Equal(t, []string{"a"}, snap.UnsyncedIDs())

	// the next cycle pushes the newer revision
	remote.pushFn = nil
	report, err = newTestPusher(store, remote, nil).Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, report.Synced)
	assert.Empty(t, store.UnsyncedIDs())
}

func TestPusher_PerEntityTimeout(t *testing.T) {
	store := newTestStore()
	store.Update("slow", site{}, t0)

	remote := &mockRemote{pushFn: func(ctx context.Context, _ string, v site) (site, error) {
		<-ctx.Done()
		return site{}, ctx.Err()
	}}
	metrics := newRecordingMetrics()

	p := NewPusher(store, Remote[site](remote), PusherOptions{
		Timeout: 20 * time.Millisecond,
		Logger:  logging.Discard().Logger,
		Metrics: metrics,
	})
	report, err := p.Push(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"slow"}, report.Failed)
	assert.Equal(t, 1, metrics.errors["push/timeout"])
}

func TestPusher_CanceledCycle(t *testing.T) {
	store := newTestStore()
	store.Update("a", site{}, t0)

	ctx, cancel := context.WithCancel(context.Background())
	remote := &mockRemote{pushFn: func(ctx context.Context, _ string, _ site) (site, error) {
		cancel()
		return site{}, ctx.Err()
	}}

	report, err := newTestPusher(store, remote, nil).Push(ctx)
	require.Error(t, err)
	assert.True(t, syncErrors.IsKind(err, syncErrors.KindCanceled))
	assert.Empty(t, report.Failed)

	r, _ := store.Snapshot().Record("a")
	assert.Nil(t, r.LastSyncedError, "cancellation is not recorded as an entity error")
	assert.True(t, r.IsUnsynced())
}

func TestPusher_ConcurrencyLimit(t *testing.T) {
	store := newTestStore()
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		store.Update(id, site{}, t0)
	}

	var inFlight, peak atomic.Int32
	remote := &mockRemote{pushFn: func(_ context.Context, _ string, v site) (site, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return v, nil
	}}

	p := NewPusher(store, Remote[site](remote), PusherOptions{Concurrency: 2, Logger: logging.Discard().Logger})
	report, err := p.Push(context.Background())
	require.NoError(t, err)

	assert.Len(t, report.Synced, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPusher_MissingDataSettlesRecord(t *testing.T) {
	store := newTestStore()
	store.MarkModified("a", t0)
	store.Update("b", site{Name: "b"}, t0)

	remote := &mockRemote{pushFn: func(_ context.Context, _ string, v site) (site, error) { return v, nil }}
	metrics := newRecordingMetrics()

	report, err := newTestPusher(store, remote, metrics).Push(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, remote.pushedIDs())
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, []string{"a"}, report.Missing)
	assert.Equal(t, []string{"a"}, report.Failed)
	assert.Equal(t, []string{"b"}, report.Synced)
	assert.Equal(t, 1, metrics.errors["push/missing_data"])

	snap := store.Snapshot()
	assert.Empty(t, snap.UnsyncedIDs())
	assert.Equal(t, []string{"a"}, snap.ErrorIDs())
	r, _ := snap.Record("a")
	require.NotNil(t, r.LastSyncedError)
	assert.Contains(t, *r.LastSyncedError, "no local data")
	assert.True(t, version.Match(r.RevisionID, r.LastSyncedRevisionID))
}

func TestPusher_ReportUsesClock(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore()
	store.Update("a", site{Name: "a"}, t0)

	remote := &mockRemote{pushFn: func(_ context.Context, _ string, v site) (site, error) {
		clock.Advance(3 * time.Second)
		return v, nil
	}}
	p := NewPusher(store, Remote[site](remote), PusherOptions{Clock: clock.Now, Logger: logging.Discard().Logger})

	report, err := p.Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, t0, report.StartTime)
	assert.Equal(t, 3*time.Second, report.Duration)
}
