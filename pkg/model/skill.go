package model

import "time"

// ManifestVersion is the current trust manifest format version.
const ManifestVersion = 1

// SkillSignature is the trusted baseline recorded by `sign`.
type SkillSignature struct {
	CompositeHash HashValue            `json:"composite_hash"`
	Files         map[string]HashValue `json:"files"`
	SignedAt      string               `json:"signed_at"`
	FileCount     int                  `json:"file_count"`
}

// Manifest is the single authoritative trust store of a workspace.
type Manifest struct {
	Version int                       `json:"version"`
	Created string                    `json:"created,omitempty"`
	Updated string                    `json:"updated"`
	Skills  map[string]SkillSignature `json:"skills"`
}

// NewManifest returns an empty manifest stamped with now.
func NewManifest(now time.Time) *Manifest {
	ts := FormatTime(now)
	return &Manifest{
		Version: ManifestVersion,
		Created: ts,
		Updated: ts,
		Skills:  make(map[string]SkillSignature),
	}
}

// VerifyStatus classifies a skill against the trust manifest.
type VerifyStatus string

const (
	StatusVerified    VerifyStatus = "verified"
	StatusTampered    VerifyStatus = "tampered"
	StatusUnsigned    VerifyStatus = "unsigned"
	StatusMissing     VerifyStatus = "missing"
	StatusQuarantined VerifyStatus = "quarantined"
)

// SkillActionType names a toolchain action audited in the ledger.
type SkillActionType string

const (
	ActionSign         SkillActionType = "sign"
	ActionQuarantine   SkillActionType = "quarantine"
	ActionUnquarantine SkillActionType = "unquarantine"
	ActionReject       SkillActionType = "reject"
	ActionSnapshot     SkillActionType = "snapshot"
	ActionRestore      SkillActionType = "restore"
)

// SkillAction is the ledger payload describing one toolchain action.
type SkillAction struct {
	Action        SkillActionType `json:"action"`
	Skill         string          `json:"skill"`
	Reason        string          `json:"reason,omitempty"`
	CompositeHash HashValue       `json:"composite_hash,omitempty"`
	ExpectedHash  HashValue       `json:"expected_hash,omitempty"`
	ActualHash    HashValue       `json:"actual_hash,omitempty"`
	Modified      []string        `json:"modified,omitempty"`
	Added         []string        `json:"added,omitempty"`
	Removed       []string        `json:"removed,omitempty"`
	Evidence      string          `json:"evidence,omitempty"`
}

// SnapshotMeta describes a trusted skill snapshot.
type SnapshotMeta struct {
	Skill         string               `json:"skill"`
	CompositeHash HashValue            `json:"composite_hash"`
	Files         map[string]HashValue `json:"files"`
	FileCount     int                  `json:"file_count"`
	SnapshotAt    string               `json:"snapshot_at"`
	SignedAt      string               `json:"signed_at"`
}

// FormatTime renders t as an ISO-8601 UTC timestamp.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
