package synckit

import "sort"

// UnsyncedRecords returns the records with unanswered local edits.
func UnsyncedRecords[D, E any](rs Records[D, E]) Records[D, E] {
	out := make(Records[D, E])
	for id, r := range rs {
		if r.IsUnsynced() {
			out[id] = r
		}
	}
	return out
}

// UnsyncedIDs returns the ids of unsynced records in ascending order.
func UnsyncedIDs[D, E any](rs Records[D, E]) []string {
	ids := make([]string, 0)
	for id, r := range rs {
		if r.IsUnsynced() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ErrorRecords returns the records whose last answered revision was rejected.
func ErrorRecords[D, E any](rs Records[D, E]) Records[D, E] {
	out := make(Records[D, E])
	for id, r := range rs {
		if r.IsError() {
			out[id] = r
		}
	}
	return out
}

// ErrorIDs returns the ids of records in error in ascending order.
func ErrorIDs[D, E any](rs Records[D, E]) []string {
	ids := make([]string, 0)
	for id, r := range rs {
		if r.IsError() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
