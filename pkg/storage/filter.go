package storage

import "sort"

// Matches reports whether the entry satisfies every filter in opts.
func Matches(e *Entry, opts *QueryOptions) bool {
	if e == nil || opts == nil {
		return false
	}
	if opts.AgentID != "" && e.AgentID != opts.AgentID {
		return false
	}
	if opts.Kind != "" && e.Kind != opts.Kind {
		return false
	}
	if opts.UserID != "" && e.UserID != opts.UserID {
		return false
	}
	return e.Importance >= opts.MinImportance
}

// SortRecentFirst orders entries by creation time, most recent first.
// Ties are broken by ID ascending, which is insertion order for snowflake IDs.
func SortRecentFirst(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Truncate returns at most limit entries. A non-positive limit returns all.
func Truncate(entries []*Entry, limit int) []*Entry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
