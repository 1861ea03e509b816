// Package diff compares file hash tables.
package diff

import (
	"sort"

	"github.com/openclaw/clawguard/pkg/model"
)

// FileDiff is the file-level difference between a trusted and a current table.
type FileDiff struct {
	Modified []string                    `json:"modified"`
	Added    []string                    `json:"added"`
	Removed  []string                    `json:"removed"`
	Details  map[string]model.FileChange `json:"details,omitempty"`
}

// Empty reports whether the two tables were identical.
func (d *FileDiff) Empty() bool {
	return len(d.Modified) == 0 && len(d.Added) == 0 && len(d.Removed) == 0
}

// Tables computes set difference plus hash comparison on the intersection.
// Every returned slice is sorted and non-nil.
func Tables(old, cur map[string]model.HashValue) (modified, added, removed []string) {
	modified, added, removed = []string{}, []string{}, []string{}
	for p, h := range cur {
		prev, ok := old[p]
		switch {
		case !ok:
			added = append(added, p)
		case prev != h:
			modified = append(modified, p)
		}
	}
	for p := range old {
		if _, ok := cur[p]; !ok {
			removed = append(removed, p)
		}
	}
	sort.Strings(modified)
	sort.Strings(added)
	sort.Strings(removed)
	return modified, added, removed
}

// Snapshots returns the workspace changes between two snapshots.
func Snapshots(old, cur model.WorkspaceSnapshot) model.Changes {
	m, a, d := Tables(old.Hashes(), cur.Hashes())
	return model.Changes{Modified: m, Added: a, Deleted: d}
}

// Files diffs a skill's trusted table against its current table and keeps
// the expected and actual hash of every modified file.
func Files(trusted, current map[string]model.HashValue) *FileDiff {
	m, a, r := Tables(trusted, current)
	d := &FileDiff{Modified: m, Added: a, Removed: r}
	if len(m) > 0 {
		d.Details = make(map[string]model.FileChange, len(m))
		for _, p := range m {
			d.Details[p] = model.FileChange{Expected: trusted[p], Actual: current[p]}
		}
	}
	return d
}
