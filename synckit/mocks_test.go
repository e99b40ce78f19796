package synckit

import (
	"context"
	"errors"
	"sync"
	"time"
)

type site struct {
	Name string `json:"name"`
}

// fieldErrors is a structured rejection payload.
type fieldErrors struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type (
	siteRecord  = Record[site, string]
	siteRecords = Records[site, string]
	siteStore   = Store[site, string]
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// mockRemote is a scripted Remote. pushFn, when set, decides the outcome of
// each push; otherwise the pushed value is echoed back.
type mockRemote struct {
	mu       sync.Mutex
	pushFn   func(ctx context.Context, id string, value site) (site, error)
	dataset  map[string]site
	fetchErr error
	pushed   []string
	fetches  int
}

func (r *mockRemote) PushEntity(ctx context.Context, id string, value site) (site, error) {
	r.mu.Lock()
	r.pushed = append(r.pushed, id)
	fn := r.pushFn
	r.mu.Unlock()

	if fn != nil {
		return fn(ctx, id, value)
	}
	return value, nil
}

func (r *mockRemote) FetchAll(ctx context.Context) (map[string]site, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	out := make(map[string]site, len(r.dataset))
	for k, v := range r.dataset {
		out[k] = v
	}
	return out, nil
}

func (r *mockRemote) pushedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.pushed...)
}

type mockConnectivity struct {
	mu         sync.Mutex
	offline    bool
	background bool
}

func (c *mockConnectivity) Offline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offline
}

func (c *mockConnectivity) Foreground() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.background
}

func (c *mockConnectivity) SetOffline(offline bool) {
	c.mu.Lock()
	c.offline = offline
	c.mu.Unlock()
}

type mockSession struct{ loggedOut bool }

func (s mockSession) LoggedIn() bool { return !s.loggedOut }

// mockStatus is a StatusSource with fixed answers.
type mockStatus struct {
	mu       sync.Mutex
	unsynced []string
	errors   []string
}

func (s *mockStatus) UnsyncedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsynced
}

func (s *mockStatus) ErrorIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors
}

type recordingMetrics struct {
	mu        sync.Mutex
	durations map[string]int
	synced    int
	failed    int
	stale     int
	received  int
	errors    map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{durations: make(map[string]int), errors: make(map[string]int)}
}

func (m *recordingMetrics) RecordSyncDuration(operation string, _ time.Duration) {
	m.mu.Lock()
	m.durations[operation]++
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordPushResults(synced, failed, stale int) {
	m.mu.Lock()
	m.synced += synced
	m.failed += failed
	m.stale += stale
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordPullResults(received, _, _ int) {
	m.mu.Lock()
	m.received += received
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordSyncErrors(operation, errorType string) {
	m.mu.Lock()
	m.errors[operation+"/"+errorType]++
	m.mu.Unlock()
}

// failingKV fails every write.
type failingKV struct{}

func (failingKV) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (failingKV) Set(context.Context, string, []byte) error         { return errors.New("disk full") }
func (failingKV) Close() error                                       { return nil }
