package synckit

import "strings"

// ChildSeparator joins a parent id and a sub-resource id in a ChildID.
const ChildSeparator = "/"

// ChildID returns the record id of a sub-resource of parent. A push is
// all-or-nothing per record, so entities whose sub-resources are pushed by
// separate calls can track each one as its own record to keep partial
// progress.
func ChildID(parent, child string) string {
	return parent + ChildSeparator + child
}

// SplitChildID splits an id built by ChildID. ok is false for ids without a
// sub-resource part.
func SplitChildID(id string) (parent, child string, ok bool) {
	parent, child, ok = strings.Cut(id, ChildSeparator)
	if !ok || parent == "" || child == "" {
		return "", "", false
	}
	return parent, child, true
}

// ChildIDs returns the ids in ids that belong to parent, in their original
// order.
func ChildIDs(ids []string, parent string) []string {
	prefix := parent + ChildSeparator
	var out []string
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) && len(id) > len(prefix) {
			out = append(out, id)
		}
	}
	return out
}

// ParentUnsynced reports whether parent or any of its sub-resources has
// unanswered edits in rs.
func ParentUnsynced[D, E any](rs Records[D, E], parent string) bool {
	if rs.IsUnsynced(parent) {
		return true
	}
	prefix := parent + ChildSeparator
	for id, r := range rs {
		if strings.HasPrefix(id, prefix) && r.IsUnsynced() {
			return true
		}
	}
	return false
}
