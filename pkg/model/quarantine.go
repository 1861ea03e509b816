package model

import "time"

// QuarantinePrefix marks a quarantined skill directory inside the skills dir.
const QuarantinePrefix = ".quarantined-"

// FileChange pairs the trusted and observed hash of a modified file.
type FileChange struct {
	Expected HashValue `json:"expected"`
	Actual   HashValue `json:"actual"`
}

// QuarantineRecord is the forensic evidence written when a skill is quarantined.
type QuarantineRecord struct {
	ID               string                `json:"id"`
	Skill            string                `json:"skill"`
	QuarantinedAt    string                `json:"quarantined_at"`
	Reason           string                `json:"reason"`
	ExpectedHash     HashValue             `json:"expected_hash,omitempty"`
	ActualHash       HashValue             `json:"actual_hash,omitempty"`
	HashMatch        bool                  `json:"hash_match"`
	ModifiedFiles    []string              `json:"modified_files"`
	AddedFiles       []string              `json:"added_files"`
	RemovedFiles     []string              `json:"removed_files"`
	FileLevelChanges map[string]FileChange `json:"file_level_changes,omitempty"`
	Note             string                `json:"note,omitempty"`
}

// RejectionRecord is written when an unsigned skill is rejected.
type RejectionRecord struct {
	ID           string `json:"id"`
	Skill        string `json:"skill"`
	Reason       string `json:"reason"`
	RejectedAt   string `json:"rejected_at"`
	OriginalPath string `json:"original_path"`
	Action       string `json:"action"`
}

// IsolationState is the explicit lifecycle state of an isolated skill.
type IsolationState string

const (
	IsolationQuarantined IsolationState = "quarantined"
	IsolationRejected    IsolationState = "rejected"
)

// QuarantineEntry is one skill's record in the quarantine state file.
type QuarantineEntry struct {
	State    IsolationState `json:"state"`
	Location string         `json:"location"`
	Since    string         `json:"since"`
	Reason   string         `json:"reason"`
	Evidence string         `json:"evidence,omitempty"`
}

// QuarantineState is the authoritative record of isolated skills.
type QuarantineState struct {
	Skills map[string]QuarantineEntry `json:"skills"`
}

// BackupKind distinguishes frozen chain copies.
type BackupKind string

const (
	BackupFreeze     BackupKind = "freeze"
	BackupPreRestore BackupKind = "pre-restore"
	BackupEvidence   BackupKind = "evidence"
)

// FrozenBackup is a point-in-time copy of the ledger chain.
type FrozenBackup struct {
	Name      string     `json:"name"`
	Path      string     `json:"path"`
	Kind      BackupKind `json:"kind"`
	CreatedAt time.Time  `json:"created_at"`
	Seq       int        `json:"seq,omitempty"`
	Size      int64      `json:"size"`
}
