package model

import (
	"encoding/json"

	"github.com/openclaw/clawguard/pkg/errclass"
)

// EventType tags a ledger entry and selects its payload variant.
type EventType string

const (
	EventInit          EventType = "init"
	EventRecord        EventType = "record"
	EventFreeze        EventType = "freeze"
	EventForensics     EventType = "forensics"
	EventRestore       EventType = "restore"
	EventProtectRecord EventType = "protect-record"
	EventAutoRestore   EventType = "auto-restore"
)

// LedgerEntry is a single line of the chain file (canonical JSON).
type LedgerEntry struct {
	Timestamp string          `json:"timestamp"`
	PrevHash  HashValue       `json:"prev_hash"`
	Event     EventType       `json:"event"`
	Data      json.RawMessage `json:"data"`
}

// EventData is implemented by every typed ledger payload.
type EventData interface {
	Event() EventType
}

// InitData is the payload of the first entry written by `ledger init`.
type InitData struct {
	Message   string               `json:"message"`
	FileCount int                  `json:"file_count"`
	Snapshot  map[string]HashValue `json:"snapshot"`
}

// RecordData documents either a workspace change set or a toolchain action.
type RecordData struct {
	Message  string               `json:"message"`
	Changes  *Changes             `json:"changes,omitempty"`
	Snapshot map[string]HashValue `json:"snapshot,omitempty"`
	Action   *SkillAction         `json:"action,omitempty"`
}

// FreezeData is written immediately before a frozen backup is taken.
type FreezeData struct {
	Message     string `json:"message"`
	EntryCount  int    `json:"entry_count"`
	ChainIntact bool   `json:"chain_intact"`
	Backup      string `json:"backup,omitempty"`
}

// ForensicsData summarises a forensic analysis run.
type ForensicsData struct {
	Message         string `json:"message"`
	From            string `json:"from,omitempty"`
	To              string `json:"to,omitempty"`
	EntriesAnalyzed int    `json:"entries_analyzed"`
	Anomalies       int    `json:"anomalies"`
	ChainIntact     bool   `json:"chain_intact"`
}

// RestoreData records an operator-initiated chain restore.
type RestoreData struct {
	Message          string `json:"message"`
	FrozenSource     string `json:"frozen_source"`
	FrozenEntries    int    `json:"frozen_entries"`
	PreRestoreBackup string `json:"pre_restore_backup,omitempty"`
}

// ProtectRecordData records workspace changes observed during a protect sweep.
type ProtectRecordData struct {
	Message  string               `json:"message"`
	Changes  Changes              `json:"changes"`
	Snapshot map[string]HashValue `json:"snapshot"`
}

// AutoRestoreData records a restore performed automatically by a protect sweep.
type AutoRestoreData struct {
	Message        string `json:"message"`
	Reason         string `json:"reason"`
	FrozenSource   string `json:"frozen_source"`
	EvidenceBackup string `json:"evidence_backup,omitempty"`
}

func (InitData) Event() EventType          { return EventInit }
func (RecordData) Event() EventType        { return EventRecord }
func (FreezeData) Event() EventType        { return EventFreeze }
func (ForensicsData) Event() EventType     { return EventForensics }
func (RestoreData) Event() EventType       { return EventRestore }
func (ProtectRecordData) Event() EventType { return EventProtectRecord }
func (AutoRestoreData) Event() EventType   { return EventAutoRestore }

// DecodeData decodes the payload into the variant selected by the event tag.
func (e *LedgerEntry) DecodeData() (EventData, error) {
	var target EventData
	switch e.Event {
	case EventInit:
		target = &InitData{}
	case EventRecord:
		target = &RecordData{}
	case EventFreeze:
		target = &FreezeData{}
	case EventForensics:
		target = &ForensicsData{}
	case EventRestore:
		target = &RestoreData{}
	case EventProtectRecord:
		target = &ProtectRecordData{}
	case EventAutoRestore:
		target = &AutoRestoreData{}
	default:
		return nil, errclass.ErrCorruptData.WithMessagef("unknown ledger event %q", e.Event)
	}
	if len(e.Data) == 0 {
		return nil, errclass.ErrCorruptData.WithMessagef("ledger event %q has no data", e.Event)
	}
	if err := json.Unmarshal(e.Data, target); err != nil {
		return nil, errclass.ErrCorruptData.WithMessagef("decode %s payload: %v", e.Event, err)
	}
	return target, nil
}

// Message returns the human message carried by any payload variant.
func Message(d EventData) string {
	switch v := d.(type) {
	case *InitData:
		return v.Message
	case *RecordData:
		return v.Message
	case *FreezeData:
		return v.Message
	case *ForensicsData:
		return v.Message
	case *RestoreData:
		return v.Message
	case *ProtectRecordData:
		return v.Message
	case *AutoRestoreData:
		return v.Message
	}
	return ""
}

// ChangesOf returns the change set carried by record-style payloads, if any.
func ChangesOf(d EventData) *Changes {
	switch v := d.(type) {
	case *RecordData:
		return v.Changes
	case *ProtectRecordData:
		return &v.Changes
	}
	return nil
}
