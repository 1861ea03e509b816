package model

import (
	"strconv"
	"strings"
)

// HashValue is a SHA-256 hash stored as lowercase hex string.
type HashValue string

// GenesisHash is the prev_hash of the first ledger entry.
const GenesisHash HashValue = "0000000000000000000000000000000000000000000000000000000000000000"

// Short returns the first 16 hex characters for display.
func (h HashValue) Short() string {
	if len(h) <= 16 {
		return string(h)
	}
	return string(h[:16]) + "..."
}

// FileRecord is the content hash and size of one file in a workspace snapshot.
type FileRecord struct {
	SHA256 HashValue `json:"sha256"`
	Size   int64     `json:"size"`
}

// WorkspaceSnapshot maps slash-separated relative paths to file records.
type WorkspaceSnapshot map[string]FileRecord

// Hashes flattens the snapshot to a path -> hash table, the form stored in ledger entries.
func (s WorkspaceSnapshot) Hashes() map[string]HashValue {
	out := make(map[string]HashValue, len(s))
	for p, rec := range s {
		out[p] = rec.SHA256
	}
	return out
}

// Changes is the difference between two file tables.
type Changes struct {
	Modified []string `json:"modified"`
	Added    []string `json:"added"`
	Deleted  []string `json:"deleted"`
}

// Empty reports whether no file changed.
func (c Changes) Empty() bool {
	return len(c.Modified) == 0 && len(c.Added) == 0 && len(c.Deleted) == 0
}

// Total returns the number of changed paths.
func (c Changes) Total() int {
	return len(c.Modified) + len(c.Added) + len(c.Deleted)
}

// Summary renders "2 modified, 1 added" style text, or "" when empty.
func (c Changes) Summary() string {
	var parts []string
	if n := len(c.Modified); n > 0 {
		parts = append(parts, strconv.Itoa(n)+" modified")
	}
	if n := len(c.Added); n > 0 {
		parts = append(parts, strconv.Itoa(n)+" added")
	}
	if n := len(c.Deleted); n > 0 {
		parts = append(parts, strconv.Itoa(n)+" deleted")
	}
	return strings.Join(parts, ", ")
}
