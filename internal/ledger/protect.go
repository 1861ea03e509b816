package ledger

import (
	"fmt"
	"os"

	"github.com/openclaw/clawguard/internal/diff"
	"github.com/openclaw/clawguard/pkg/model"
)

// ProtectResult is the outcome of `ledger protect`.
type ProtectResult struct {
	Initialized  bool           `json:"initialized,omitempty"`
	Status       ChainStatus    `json:"status"`
	Evidence     string         `json:"evidence_backup,omitempty"`
	AutoRestored string         `json:"auto_restored_from,omitempty"`
	Changes      *model.Changes `json:"changes,omitempty"`
	Actions      []string       `json:"actions"`
	ExitCode     int            `json:"exit_code"`
}

// Protect runs the ledger protection sweep: initialize if needed, preserve
// and repair a broken chain from the newest clean backup, then record any
// workspace changes.
func (l *Ledger) Protect() (*ProtectResult, error) {
	res := &ProtectResult{Actions: []string{}}

	if !l.Initialized() {
		ir, err := l.Init()
		if err != nil {
			return nil, err
		}
		res.Initialized = true
		res.Actions = append(res.Actions, "Ledger initialized")
		res.Status = ChainStatus{Intact: true, Count: ir.Entries, Head: ir.Hash}
		return res, nil
	}

	st, err := l.chain.Verify()
	if err != nil {
		return nil, err
	}
	res.Status = st

	if !st.Intact {
		res.ExitCode = 2
		l.log.Warn("chain broken, preserving evidence", map[string]any{"broken_at": st.BrokenEntry(), "reason": st.Reason})

		ev, err := l.copyToFrozen(l.nextBackupName(model.BackupEvidence))
		if err != nil {
			return nil, err
		}
		res.Evidence = ev.Name
		res.Actions = append(res.Actions, "Evidence frozen: "+ev.Name)

		clean, raw, err := l.newestCleanBackup()
		if err != nil {
			return nil, err
		}
		if clean == nil {
			res.Actions = append(res.Actions, "No clean backup available for auto-restore")
		} else {
			if err := l.chain.Replace(raw); err != nil {
				return nil, err
			}
			if _, err := l.Append(&model.AutoRestoreData{
				Message:        fmt.Sprintf("Auto-restored from %s during protect", clean.Name),
				Reason:         fmt.Sprintf("Chain broken at entry %d (%s)", st.BrokenEntry(), st.Reason),
				FrozenSource:   clean.Name,
				EvidenceBackup: ev.Name,
			}); err != nil {
				return nil, err
			}
			res.AutoRestored = clean.Name
			res.Actions = append(res.Actions, "Chain auto-restored from "+clean.Name)
		}
		if res.AutoRestored == "" {
			res.Actions = append(res.Actions, "State not recorded: chain is still broken")
			return res, nil
		}
	}

	s, err := l.loadSession()
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &session{LastSnapshot: model.WorkspaceSnapshot{}}
	}
	snap, err := l.snapshot()
	if err != nil {
		return nil, err
	}
	changes := diff.Snapshots(s.LastSnapshot, snap)
	if !changes.Empty() {
		if _, err := l.Append(&model.ProtectRecordData{
			Message:  "State recorded during protect sweep",
			Changes:  changes,
			Snapshot: snap.Hashes(),
		}); err != nil {
			return nil, err
		}
		if err := l.saveSession(&session{LastSnapshot: snap, InitTime: l.ws.Timestamp(), RestoredFrom: s.RestoredFrom}); err != nil {
			return nil, err
		}
		res.Changes = &changes
		res.Actions = append(res.Actions, fmt.Sprintf("State recorded: %dM %dA %dD",
			len(changes.Modified), len(changes.Added), len(changes.Deleted)))
		if res.ExitCode < 1 {
			res.ExitCode = 1
		}
	}
	return res, nil
}

// newestCleanBackup returns the newest intact, non-empty backup that is
// not itself evidence, with its content. It returns nil when none exists.
func (l *Ledger) newestCleanBackup() (*model.FrozenBackup, []byte, error) {
	backups, err := l.ListFrozen()
	if err != nil {
		return nil, nil, err
	}
	for i := len(backups) - 1; i >= 0; i-- {
		b := backups[i]
		if b.Kind == model.BackupEvidence {
			continue
		}
		lines, err := ReadLines(b.Path)
		if err != nil {
			l.log.Warn("unreadable frozen backup", map[string]any{"backup": b.Name, "error": err.Error()})
			continue
		}
		if len(lines) == 0 || !VerifyIntegrity(lines).Intact {
			continue
		}
		raw, err := os.ReadFile(b.Path)
		if err != nil {
			continue
		}
		return &b, raw, nil
	}
	return nil, nil, nil
}
