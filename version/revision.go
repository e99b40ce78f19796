package version

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RevisionError represents errors that can occur while decoding a revision.
type RevisionError struct {
	Msg string
}

func (e *RevisionError) Error() string {
	return e.Msg
}

// RevisionID identifies a local edit generation of a single entity.
//
// The zero value is Unset, the state of an entity that has never been
// modified locally. Unset is distinct from a set revision with sequence 0.
type RevisionID struct {
	seq uint64
	set bool
}

// Unset is the revision of an entity that has never been locally modified.
var Unset = RevisionID{}

// First is the revision assigned by the first local edit.
var First = RevisionID{seq: 1, set: true}

// At returns the set revision with the given sequence number.
func At(seq uint64) RevisionID {
	return RevisionID{seq: seq, set: true}
}

// Next returns the successor of prev, or First if prev is Unset.
// Sequences are not expected to wrap at realistic edit volumes.
func Next(prev RevisionID) RevisionID {
	if !prev.set {
		return First
	}
	return RevisionID{seq: prev.seq + 1, set: true}
}

// Match reports whether a and b denote the same revision. Two Unset
// revisions match; an Unset revision never matches a set one.
func Match(a, b RevisionID) bool {
	if a.set != b.set {
		return false
	}
	return !a.set || a.seq == b.seq
}

// Next returns the successor of r.
func (r RevisionID) Next() RevisionID {
	return Next(r)
}

// Matches reports whether r and other denote the same revision.
func (r RevisionID) Matches(other RevisionID) bool {
	return Match(r, other)
}

// IsSet reports whether r was produced by a local edit (or decoded from one).
func (r RevisionID) IsSet() bool {
	return r.set
}

// Seq returns the sequence number and whether the revision is set.
func (r RevisionID) Seq() (uint64, bool) {
	return r.seq, r.set
}

// String returns the decimal sequence, or "unset".
func (r RevisionID) String() string {
	if !r.set {
		return "unset"
	}
	return strconv.FormatUint(r.seq, 10)
}

// MarshalJSON encodes Unset as null and a set revision as a JSON number.
func (r RevisionID) MarshalJSON() ([]byte, error) {
	if !r.set {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatUint(r.seq, 10)), nil
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *RevisionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Unset
		return nil
	}
	var seq uint64
	if err := json.Unmarshal(data, &seq); err != nil {
		return &RevisionError{Msg: fmt.Sprintf("invalid revision id %q: %v", data, err)}
	}
	*r = At(seq)
	return nil
}

// IsZero reports whether r is Unset. It lets encoders honour omitzero.
func (r RevisionID) IsZero() bool {
	return !r.set
}
