package synckit

import (
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/c0deZ3R0/sitesync/logging"
)

// Snapshot is an immutable view of the store at one generation. Derived
// queries are computed once per snapshot, so repeated calls on an unchanged
// snapshot return the same slice or map and any mutation of the store yields
// a new snapshot with fresh results. Returned maps and slices must not be
// modified.
type Snapshot[D, E any] struct {
	generation uint64
	data       map[string]D
	records    Records[D, E]

	unsyncedOnce    sync.Once
	unsyncedIDs     []string
	unsyncedRecords Records[D, E]

	errorOnce    sync.Once
	errorIDs     []string
	errorRecords Records[D, E]
}

func newSnapshot[D, E any](generation uint64, data map[string]D, rs Records[D, E]) *Snapshot[D, E] {
	return &Snapshot[D, E]{generation: generation, data: data, records: rs}
}

// Generation increases by one with every change to the store.
func (s *Snapshot[D, E]) Generation() uint64 { return s.generation }

// Data returns the domain data by entity id.
func (s *Snapshot[D, E]) Data() map[string]D { return s.data }

// Records returns the sync records by entity id.
func (s *Snapshot[D, E]) Records() Records[D, E] { return s.records }

// Value returns the domain data of id.
func (s *Snapshot[D, E]) Value(id string) (D, bool) {
	v, ok := s.data[id]
	return v, ok
}

// Record returns the sync record of id.
func (s *Snapshot[D, E]) Record(id string) (Record[D, E], bool) {
	r, ok := s.records[id]
	return r, ok
}

// UnsyncedIDs returns the sorted ids of unsynced entities.
func (s *Snapshot[D, E]) UnsyncedIDs() []string {
	s.computeUnsynced()
	return s.unsyncedIDs
}

// UnsyncedRecords returns the records of unsynced entities.
func (s *Snapshot[D, E]) UnsyncedRecords() Records[D, E] {
	s.computeUnsynced()
	return s.unsyncedRecords
}

// ErrorIDs returns the sorted ids of entities in error.
func (s *Snapshot[D, E]) ErrorIDs() []string {
	s.computeErrors()
	return s.errorIDs
}

// ErrorRecords returns the records of entities in error.
func (s *Snapshot[D, E]) ErrorRecords() Records[D, E] {
	s.computeErrors()
	return s.errorRecords
}

func (s *Snapshot[D, E]) computeUnsynced() {
	s.unsyncedOnce.Do(func() {
		s.unsyncedIDs = UnsyncedIDs(s.records)
		s.unsyncedRecords = UnsyncedRecords(s.records)
	})
}

func (s *Snapshot[D, E]) computeErrors() {
	s.errorOnce.Do(func() {
		s.errorIDs = ErrorIDs(s.records)
		s.errorRecords = ErrorRecords(s.records)
	})
}

// Store owns the domain data and sync records of a set of entities. It is
// safe for concurrent use: every mutation runs under a single lock against a
// copy of the current state and publishes a new Snapshot.
type Store[D, E any] struct {
	mu     sync.Mutex
	snap   *Snapshot[D, E]
	logger *slog.Logger

	subMu       sync.RWMutex
	subscribers map[int]func(*Snapshot[D, E])
	nextSubID   int
}

// NewStore returns an empty store. A nil logger uses the default logger.
func NewStore[D, E any](logger *slog.Logger) *Store[D, E] {
	if logger == nil {
		logger = logging.WithComponent(logging.Component("sync-store")).Logger
	}
	return &Store[D, E]{
		snap:        newSnapshot(0, make(map[string]D), make(Records[D, E])),
		logger:      logger,
		subscribers: make(map[int]func(*Snapshot[D, E])),
	}
}

// Snapshot returns the current snapshot.
func (s *Store[D, E]) Snapshot() *Snapshot[D, E] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// UnsyncedIDs returns the sorted ids of unsynced entities in the current snapshot.
func (s *Store[D, E]) UnsyncedIDs() []string {
	return s.Snapshot().UnsyncedIDs()
}

// ErrorIDs returns the sorted ids of entities in error in the current snapshot.
func (s *Store[D, E]) ErrorIDs() []string {
	return s.Snapshot().ErrorIDs()
}

// Subscribe registers fn to be called with every new snapshot. Calls happen
// after the mutation is published, outside the store lock, so concurrent
// mutations may be delivered out of order; compare Generation when that
// matters. The returned function removes the subscription.
func (s *Store[D, E]) Subscribe(fn func(*Snapshot[D, E])) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

// Replace installs data and records wholesale, e.g. after loading them from
// persistence. The maps are owned by the store afterwards.
func (s *Store[D, E]) Replace(data map[string]D, rs Records[D, E]) *Snapshot[D, E] {
	if data == nil {
		data = make(map[string]D)
	}
	if rs == nil {
		rs = make(Records[D, E])
	}
	s.mu.Lock()
	next := newSnapshot(s.snap.generation+1, data, rs)
	s.snap = next
	s.mu.Unlock()

	s.notify(next)
	return next
}

// MarkModified advances the revision of id. It must be called exactly once
// per local edit, before any push for that edit starts.
func (s *Store[D, E]) MarkModified(id string, at time.Time) *Snapshot[D, E] {
	return s.mutate(func(_ map[string]D, rs Records[D, E]) bool {
		MarkModified(rs, id, at)
		return true
	})
}

// Update writes value as the local data of id and marks it modified.
func (s *Store[D, E]) Update(id string, value D, at time.Time) *Snapshot[D, E] {
	return s.mutate(func(data map[string]D, rs Records[D, E]) bool {
		data[id] = value
		MarkModified(rs, id, at)
		return true
	})
}

// MarkSynced records an acknowledgment for id without a staleness check.
// Use ApplyResults for results of asynchronous pushes.
func (s *Store[D, E]) MarkSynced(id string, result SyncResult[D], at time.Time) *Snapshot[D, E] {
	return s.mutate(func(_ map[string]D, rs Records[D, E]) bool {
		MarkSynced(rs, id, result, at)
		return true
	})
}

// MarkError records a rejection for id without a staleness check.
func (s *Store[D, E]) MarkError(id string, result SyncResult[E], at time.Time) *Snapshot[D, E] {
	return s.mutate(func(_ map[string]D, rs Records[D, E]) bool {
		MarkError(rs, id, result, at)
		return true
	})
}

// ApplyResults applies a batch of push outcomes, dropping stale ones. If
// every result was stale the snapshot is left unchanged.
func (s *Store[D, E]) ApplyResults(results ActionResults[D, E], at time.Time) ApplyReport {
	var report ApplyReport
	s.mutate(func(data map[string]D, rs Records[D, E]) bool {
		report = ApplyResults(data, rs, results, at)
		return report.Changed()
	})

	if len(report.Stale) > 0 {
		s.logger.Debug("Dropped stale sync results", "stale_ids", report.Stale)
	}
	return report
}

// MergePull merges a full dataset from the authority, keeping unsynced
// entities untouched.
func (s *Store[D, E]) MergePull(fresh map[string]D) MergeReport {
	s.mu.Lock()
	rs, data, report := MergeUnsynced(s.snap.records, s.snap.data, fresh)
	next := newSnapshot(s.snap.generation+1, data, rs)
	s.snap = next
	s.mu.Unlock()

	s.logger.Debug("Merged pulled dataset",
		"received", report.Received,
		"retained", len(report.Retained),
		"dropped", len(report.Dropped))
	s.notify(next)
	return report
}

// Delete removes the data and record of id. It reports whether id existed.
func (s *Store[D, E]) Delete(id string) bool {
	var existed bool
	s.mutate(func(data map[string]D, rs Records[D, E]) bool {
		_, hasData := data[id]
		_, hasRecord := rs[id]
		existed = hasData || hasRecord
		delete(data, id)
		delete(rs, id)
		return existed
	})
	return existed
}

func (s *Store[D, E]) mutate(fn func(data map[string]D, rs Records[D, E]) bool) *Snapshot[D, E] {
	s.mu.Lock()
	data := maps.Clone(s.snap.data)
	rs := s.snap.records.Clone()
	if !fn(data, rs) {
		current := s.snap
		s.mu.Unlock()
		return current
	}
	next := newSnapshot(s.snap.generation+1, data, rs)
	s.snap = next
	s.mu.Unlock()

	s.notify(next)
	return next
}

func (s *Store[D, E]) notify(snap *Snapshot[D, E]) {
	s.subMu.RLock()
	subscribers := make([]func(*Snapshot[D, E]), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range subscribers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Snapshot subscriber panic recovered",
						"panic", r,
						"generation", snap.generation)
				}
			}()
			fn(snap)
		}()
	}
}
