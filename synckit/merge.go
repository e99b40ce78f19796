package synckit

// MergeReport summarises a merge of a full dataset pulled from the authority.
type MergeReport struct {
	// Received is the number of entities in the pulled dataset.
	Received int
	// Retained lists unsynced ids whose local state was kept.
	Retained []string
	// Replaced is the number of ids initialised from the pulled dataset.
	Replaced int
	// Dropped lists synced ids that no longer exist on the authority.
	Dropped []string
}

// MergeUnsynced merges a full dataset from the authority into local state.
//
// Unsynced entities keep their local data and record unchanged; the
// authority's value for them is discarded. Every other entity is replaced by
// the authority's value with a fresh synced record, and synced entities the
// authority no longer returns are dropped. The merge is entity-granular: no
// per-field reconciliation takes place.
func MergeUnsynced[D, E any](rs Records[D, E], oldData, fresh map[string]D) (Records[D, E], map[string]D, MergeReport) {
	report := MergeReport{Received: len(fresh)}

	mergedRecords := make(Records[D, E], len(fresh))
	mergedData := make(map[string]D, len(fresh))

	for id, value := range fresh {
		mergedRecords[id] = InitialRecord[D, E](value)
		mergedData[id] = value
	}

	for _, id := range UnsyncedIDs(rs) {
		mergedRecords[id] = rs[id]
		if local, ok := oldData[id]; ok {
			mergedData[id] = local
		} else {
			delete(mergedData, id)
		}
		report.Retained = append(report.Retained, id)
	}

	report.Replaced = len(fresh)
	for _, id := range report.Retained {
		if _, ok := fresh[id]; ok {
			report.Replaced--
		}
	}

	for _, id := range sortedKeys(oldData) {
		if _, ok := mergedData[id]; !ok && !rs.IsUnsynced(id) {
			report.Dropped = append(report.Dropped, id)
		}
	}

	return mergedRecords, mergedData, report
}
