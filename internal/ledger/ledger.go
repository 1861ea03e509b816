package ledger

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/openclaw/clawguard/internal/diff"
	"github.com/openclaw/clawguard/internal/integrity"
	"github.com/openclaw/clawguard/internal/workspace"
	"github.com/openclaw/clawguard/pkg/errclass"
	"github.com/openclaw/clawguard/pkg/fsutil"
	"github.com/openclaw/clawguard/pkg/jsonutil"
	"github.com/openclaw/clawguard/pkg/logging"
	"github.com/openclaw/clawguard/pkg/model"
	"github.com/openclaw/clawguard/pkg/progress"
)

// Ledger is the workspace audit ledger.
type Ledger struct {
	ws    *workspace.Workspace
	chain *Chain
	log   *logging.Logger

	// Progress, when set, receives workspace snapshot progress.
	Progress progress.Callback
}

// New creates the ledger for a workspace.
func New(ws *workspace.Workspace) *Ledger {
	return &Ledger{
		ws:    ws,
		chain: NewChain(ws.ChainPath, ws.HeadPath, ws.Now),
		log:   logging.WithFields(map[string]any{"component": "ledger"}),
	}
}

// Chain exposes the underlying chain file.
func (l *Ledger) Chain() *Chain {
	return l.chain
}

// Append adds one event to the chain.
func (l *Ledger) Append(data model.EventData) (model.HashValue, error) {
	hash, err := l.chain.Append(data)
	if err != nil {
		l.log.ErrorErr("append failed", err, map[string]any{"event": string(data.Event())})
		return "", err
	}
	l.log.Debug("appended", map[string]any{"event": string(data.Event()), "hash": string(hash)})
	return hash, nil
}

// RecordAction audits a toolchain action as a record entry.
func (l *Ledger) RecordAction(action *model.SkillAction) (model.HashValue, error) {
	msg := fmt.Sprintf("%s: %s", action.Action, action.Skill)
	if action.Reason != "" {
		msg += " (" + action.Reason + ")"
	}
	return l.Append(&model.RecordData{Message: msg, Action: action})
}

// Initialized reports whether a chain was started, even if it has since
// been emptied.
func (l *Ledger) Initialized() bool {
	return l.chain.Exists()
}

// Verify checks chain integrity including the head anchor.
func (l *Ledger) Verify() (*VerifyResult, error) {
	if !l.Initialized() {
		return nil, errclass.ErrNotInitialized.WithMessage("no ledger found, run 'ledger init' first")
	}
	lines, err := l.chain.ReadChain()
	if err != nil {
		return nil, fmt.Errorf("read chain: %w", err)
	}
	st, err := l.chain.Verify()
	if err != nil {
		return nil, err
	}
	res := &VerifyResult{Status: st}
	if n := len(lines); n > 0 {
		res.FirstTimestamp = timestampOf(lines[0])
		res.LastTimestamp = timestampOf(lines[n-1])
	}
	if st.BrokenAt != nil && *st.BrokenAt < len(lines) {
		var e model.LedgerEntry
		if json.Unmarshal(lines[*st.BrokenAt], &e) == nil {
			res.FoundPrevHash = e.PrevHash
		}
	}
	return res, nil
}

// VerifyResult is the outcome of `ledger verify`.
type VerifyResult struct {
	Status         ChainStatus     `json:"status"`
	FirstTimestamp string          `json:"first_timestamp,omitempty"`
	LastTimestamp  string          `json:"last_timestamp,omitempty"`
	FoundPrevHash  model.HashValue `json:"found_prev_hash,omitempty"`
}

func timestampOf(line []byte) string {
	var e model.LedgerEntry
	if json.Unmarshal(line, &e) != nil {
		return ""
	}
	return e.Timestamp
}

// session is the last workspace snapshot used by record.
type session struct {
	LastSnapshot model.WorkspaceSnapshot `json:"last_snapshot"`
	InitTime     string                  `json:"init_time"`
	RestoredFrom string                  `json:"restored_from,omitempty"`
}

func (l *Ledger) loadSession() (*session, error) {
	data, err := os.ReadFile(l.ws.SessionPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var s session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errclass.ErrCorruptData.WithMessagef("session file: %v", err)
	}
	if s.LastSnapshot == nil {
		s.LastSnapshot = model.WorkspaceSnapshot{}
	}
	return &s, nil
}

func (l *Ledger) saveSession(s *session) error {
	data, err := jsonutil.MarshalIndent(s)
	if err != nil {
		return err
	}
	return fsutil.AtomicWrite(l.ws.SessionPath, data, 0644)
}

func (l *Ledger) snapshot() (model.WorkspaceSnapshot, error) {
	snap, skipped, err := integrity.SnapshotWorkspace(l.ws, integrity.SnapshotOptions{Progress: l.Progress})
	if err != nil {
		return nil, fmt.Errorf("snapshot workspace: %w", err)
	}
	if len(skipped) > 0 {
		l.log.Warn("files skipped during snapshot", map[string]any{"count": len(skipped)})
	}
	return snap, nil
}

// InitResult is the outcome of `ledger init`.
type InitResult struct {
	AlreadyInitialized bool            `json:"already_initialized"`
	Entries            int             `json:"entries"`
	FileCount          int             `json:"file_count"`
	Hash               model.HashValue `json:"hash,omitempty"`
	SessionCreated     bool            `json:"session_created,omitempty"`
}

// Init writes the init entry and the baseline session snapshot. On an
// existing chain it only creates a missing session baseline.
func (l *Ledger) Init() (*InitResult, error) {
	if err := l.ws.EnsureLedgerDirs(); err != nil {
		return nil, err
	}

	if l.Initialized() {
		lines, err := l.chain.ReadChain()
		if err != nil {
			return nil, fmt.Errorf("read chain: %w", err)
		}
		res := &InitResult{AlreadyInitialized: true, Entries: len(lines)}
		s, err := l.loadSession()
		if err != nil {
			return nil, err
		}
		if s == nil {
			snap, err := l.snapshot()
			if err != nil {
				return nil, err
			}
			if err := l.saveSession(&session{LastSnapshot: snap, InitTime: l.ws.Timestamp()}); err != nil {
				return nil, err
			}
			res.SessionCreated = true
			res.FileCount = len(snap)
		}
		return res, nil
	}

	snap, err := l.snapshot()
	if err != nil {
		return nil, err
	}
	hash, err := l.Append(&model.InitData{
		Message:   "Ledger initialized",
		FileCount: len(snap),
		Snapshot:  snap.Hashes(),
	})
	if err != nil {
		return nil, err
	}
	if err := l.saveSession(&session{LastSnapshot: snap, InitTime: l.ws.Timestamp()}); err != nil {
		return nil, err
	}
	l.log.Info("ledger initialized", map[string]any{"files": len(snap)})
	return &InitResult{Entries: 1, FileCount: len(snap), Hash: hash}, nil
}

// RecordResult is the outcome of `ledger record`.
type RecordResult struct {
	Changes model.Changes   `json:"changes"`
	Hash    model.HashValue `json:"hash,omitempty"`
}

// Recorded reports whether an entry was written.
func (r *RecordResult) Recorded() bool {
	return r.Hash != ""
}

// Record diffs the workspace against the session snapshot and appends a
// record entry when something changed.
func (l *Ledger) Record(message string) (*RecordResult, error) {
	s, err := l.loadSession()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errclass.ErrNotInitialized.WithMessage("ledger not initialized, run 'ledger init' first")
	}
	snap, err := l.snapshot()
	if err != nil {
		return nil, err
	}
	changes := diff.Snapshots(s.LastSnapshot, snap)
	if changes.Empty() {
		return &RecordResult{Changes: changes}, nil
	}
	if message == "" {
		message = "Workspace state recorded"
	}
	hash, err := l.Append(&model.RecordData{
		Message:  message,
		Changes:  &changes,
		Snapshot: snap.Hashes(),
	})
	if err != nil {
		return nil, err
	}
	s.LastSnapshot = snap
	if err := l.saveSession(s); err != nil {
		return nil, err
	}
	return &RecordResult{Changes: changes, Hash: hash}, nil
}

// LogItem is one entry as shown by `ledger log`.
type LogItem struct {
	Number    int             `json:"number"`
	Hash      model.HashValue `json:"hash"`
	Timestamp string          `json:"timestamp,omitempty"`
	Event     model.EventType `json:"event,omitempty"`
	Message   string          `json:"message,omitempty"`
	Changes   *model.Changes  `json:"changes,omitempty"`
	Corrupt   bool            `json:"corrupt,omitempty"`
}

// Log returns the last n entries, oldest first. n <= 0 returns all.
func (l *Ledger) Log(n int) ([]LogItem, error) {
	if !l.Initialized() {
		return nil, errclass.ErrNotInitialized.WithMessage("no ledger found, run 'ledger init' first")
	}
	lines, err := l.chain.ReadChain()
	if err != nil {
		return nil, fmt.Errorf("read chain: %w", err)
	}
	start := 0
	if n > 0 && len(lines) > n {
		start = len(lines) - n
	}
	items := make([]LogItem, 0, len(lines)-start)
	for i := start; i < len(lines); i++ {
		items = append(items, describe(i, lines[i]))
	}
	return items, nil
}

func describe(i int, line []byte) LogItem {
	item := LogItem{Number: i + 1, Hash: HashLine(line)}
	var e model.LedgerEntry
	if err := json.Unmarshal(line, &e); err != nil {
		item.Corrupt = true
		return item
	}
	item.Timestamp = e.Timestamp
	item.Event = e.Event
	data, err := e.DecodeData()
	if err != nil {
		item.Corrupt = true
		return item
	}
	item.Message = model.Message(data)
	if ch := model.ChangesOf(data); ch != nil && !ch.Empty() {
		item.Changes = ch
	}
	return item
}

// StatusResult is the outcome of `ledger status`.
type StatusResult struct {
	Initialized   bool   `json:"initialized"`
	Entries       int    `json:"entries"`
	LastTimestamp string `json:"last_timestamp,omitempty"`
	LastCorrupt   bool   `json:"last_corrupt,omitempty"`
	FrozenBackups int    `json:"frozen_backups"`
}

// Status summarises the chain without verifying it.
func (l *Ledger) Status() (*StatusResult, error) {
	res := &StatusResult{}
	if !l.Initialized() {
		return res, nil
	}
	res.Initialized = true
	lines, err := l.chain.ReadChain()
	if err != nil {
		return nil, fmt.Errorf("read chain: %w", err)
	}
	res.Entries = len(lines)
	if n := len(lines); n > 0 {
		res.LastTimestamp = timestampOf(lines[n-1])
		res.LastCorrupt = res.LastTimestamp == ""
	}
	backups, err := l.ListFrozen()
	if err != nil {
		return nil, err
	}
	res.FrozenBackups = len(backups)
	return res, nil
}

// ExitCode maps the status to the CLI exit code.
func (s *StatusResult) ExitCode() int {
	if !s.Initialized || s.LastCorrupt || s.Entries == 0 {
		return 1
	}
	return 0
}
