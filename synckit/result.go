package synckit

import (
	"sort"
	"time"

	"github.com/c0deZ3R0/sitesync/version"
)

// SyncResult is an authoritative value tagged with the revision it answers.
type SyncResult[T any] struct {
	Value      T                  `json:"value"`
	RevisionID version.RevisionID `json:"revisionId"`
}

// ActionResults is the outcome of a batch of pushes.
type ActionResults[D, E any] struct {
	Data   map[string]SyncResult[D]
	Errors map[string]SyncResult[E]
}

// NewActionResults returns an empty batch.
func NewActionResults[D, E any]() ActionResults[D, E] {
	return ActionResults[D, E]{
		Data:   make(map[string]SyncResult[D]),
		Errors: make(map[string]SyncResult[E]),
	}
}

// Len returns the number of results in the batch.
func (r ActionResults[D, E]) Len() int {
	return len(r.Data) + len(r.Errors)
}

// ApplyReport lists which results of a batch were applied and which were
// dropped as stale. Ids are sorted.
type ApplyReport struct {
	Synced []string
	Failed []string
	Stale  []string
}

// Changed reports whether applying the batch modified anything.
func (r ApplyReport) Changed() bool {
	return len(r.Synced) > 0 || len(r.Failed) > 0
}

// ApplyResults applies a batch of push outcomes to data and rs. A result is
// accepted only if the entity's current revision equals the revision the
// result answers; otherwise the entity was edited again while the push was
// in flight and the result is dropped without touching data or records.
// Successful values are written into data.
func ApplyResults[D, E any](data map[string]D, rs Records[D, E], results ActionResults[D, E], at time.Time) ApplyReport {
	var report ApplyReport

	for id, result := range results.Data {
		if !version.Match(rs[id].RevisionID, result.RevisionID) {
			report.Stale = append(report.Stale, id)
			continue
		}
		data[id] = result.Value
		MarkSynced(rs, id, result, at)
		report.Synced = append(report.Synced, id)
	}

	for id, result := range results.Errors {
		if !version.Match(rs[id].RevisionID, result.RevisionID) {
			report.Stale = append(report.Stale, id)
			continue
		}
		MarkError(rs, id, result, at)
		report.Failed = append(report.Failed, id)
	}

	sort.Strings(report.Synced)
	sort.Strings(report.Failed)
	sort.Strings(report.Stale)
	return report
}
