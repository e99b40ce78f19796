// Package synckit keeps locally edited entities consistent with a remote
// authority under intermittent connectivity.
//
// Every entity has a Record that compares its local revision with the
// revision the authority last acknowledged. Local edits only ever advance
// the local revision; acknowledgments and rejections are applied only when
// they answer the current revision, so an in-flight result can never clobber
// a newer edit.
package synckit

import (
	"fmt"
	"time"

	"github.com/c0deZ3R0/sitesync/version"
)

// Record is the per-entity sync bookkeeping. D is the domain data type and E
// the error payload type produced when the authority rejects a push.
type Record[D, E any] struct {
	// RevisionID is the current local edit generation.
	RevisionID     version.RevisionID `json:"revisionId"`
	LastModifiedAt time.Time          `json:"lastModifiedAt,omitzero"`

	// LastSyncedRevisionID is the revision LastSyncedData or LastSyncedError
	// answers, including revisions that were rejected.
	LastSyncedRevisionID version.RevisionID `json:"lastSyncedRevisionId"`
	LastSyncedAt         time.Time          `json:"lastSyncedAt,omitzero"`
	LastSyncedData       *D                 `json:"lastSyncedData,omitempty"`
	LastSyncedError      *E                 `json:"lastSyncedError,omitempty"`
}

// InitialRecord returns the record of an entity freshly loaded from the
// authority: no pending edits, synced against data.
func InitialRecord[D, E any](data D) Record[D, E] {
	return Record[D, E]{LastSyncedData: &data}
}

// IsUnsynced reports whether the entity has local edits the authority has
// not answered yet.
func (r Record[D, E]) IsUnsynced() bool {
	return !version.Match(r.RevisionID, r.LastSyncedRevisionID)
}

// IsError reports whether the last answered revision was rejected. It is
// independent of IsUnsynced.
func (r Record[D, E]) IsError() bool {
	return r.LastSyncedError != nil
}

// String describes the revision state of r.
func (r Record[D, E]) String() string {
	state := "synced"
	switch {
	case r.IsUnsynced() && r.IsError():
		state = "unsynced,error"
	case r.IsUnsynced():
		state = "unsynced"
	case r.IsError():
		state = "error"
	}
	return fmt.Sprintf("Record{rev=%s synced=%s %s}", r.RevisionID, r.LastSyncedRevisionID, state)
}

// Records maps entity ids to their sync records.
type Records[D, E any] map[string]Record[D, E]

// Clone returns a shallow copy of rs.
func (rs Records[D, E]) Clone() Records[D, E] {
	out := make(Records[D, E], len(rs))
	for id, r := range rs {
		out[id] = r
	}
	return out
}

// IsUnsynced reports whether the record for id has unanswered edits.
// Unknown ids are synced.
func (rs Records[D, E]) IsUnsynced(id string) bool {
	r, ok := rs[id]
	return ok && r.IsUnsynced()
}

// IsError reports whether the record for id is in error.
func (rs Records[D, E]) IsError(id string) bool {
	r, ok := rs[id]
	return ok && r.IsError()
}

// MarkModified is the only entry point for local edits. It advances the
// entity's revision and stamps the modification time; the record is created
// if the entity has none yet. LastSynced fields are never touched.
func MarkModified[D, E any](rs Records[D, E], id string, at time.Time) {
	r := rs[id]
	r.RevisionID = version.Next(r.RevisionID)
	r.LastModifiedAt = at
	rs[id] = r
}

// MarkSynced records that the authority acknowledged result.RevisionID with
// result.Value and clears any previous error. The local revision is left
// alone, so an edit made while the push was in flight keeps the record
// unsynced.
func MarkSynced[D, E any](rs Records[D, E], id string, result SyncResult[D], at time.Time) {
	r := rs[id]
	value := result.Value
	r.LastSyncedRevisionID = result.RevisionID
	r.LastSyncedData = &value
	r.LastSyncedError = nil
	r.LastSyncedAt = at
	rs[id] = r
}

// MarkError records that the authority rejected result.RevisionID with the
// payload result.Value. The local revision is left alone.
func MarkError[D, E any](rs Records[D, E], id string, result SyncResult[E], at time.Time) {
	r := rs[id]
	payload := result.Value
	r.LastSyncedRevisionID = result.RevisionID
	r.LastSyncedError = &payload
	r.LastSyncedAt = at
	rs[id] = r
}
