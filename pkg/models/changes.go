package models

// ChangeSummary describes the files touched since a baseline snapshot.
// The three sets are pairwise disjoint at every observation (spec.md §8,
// invariant 4): a file cannot simultaneously be reported as added and
// modified, or as deleted and still present in either of the other two.
type ChangeSummary struct {
	FilesAdded    map[string]struct{}
	FilesModified map[string]struct{}
	FilesDeleted  map[string]struct{}
}

// NewChangeSummary returns an empty, ready-to-use ChangeSummary.
func NewChangeSummary() *ChangeSummary {
	return &ChangeSummary{
		FilesAdded:    make(map[string]struct{}),
		FilesModified: make(map[string]struct{}),
		FilesDeleted:  make(map[string]struct{}),
	}
}

// IsEmpty reports whether no files were touched at all.
func (c *ChangeSummary) IsEmpty() bool {
	return len(c.FilesAdded) == 0 && len(c.FilesModified) == 0 && len(c.FilesDeleted) == 0
}

// Count returns the total number of touched files, used by the auto-approve
// threshold (spec.md §4.5) and the progress tracker (spec.md §4.8).
func (c *ChangeSummary) Count() int {
	return len(c.FilesAdded) + len(c.FilesModified) + len(c.FilesDeleted)
}

// Disjoint reports whether the three sets are pairwise disjoint, as required
// by spec.md §8 invariant 4. Used by tests and defensively by callers that
// build a ChangeSummary from raw git status lines.
func (c *ChangeSummary) Disjoint() bool {
	for p := range c.FilesAdded {
		if _, ok := c.FilesModified[p]; ok {
			return false
		}
		if _, ok := c.FilesDeleted[p]; ok {
			return false
		}
	}
	for p := range c.FilesModified {
		if _, ok := c.FilesDeleted[p]; ok {
			return false
		}
	}
	return true
}
