package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/openclaw/clawguard/pkg/errclass"
	"github.com/openclaw/clawguard/pkg/fsutil"
	"github.com/openclaw/clawguard/pkg/model"
)

const backupTimeLayout = "20060102T150405Z"

var backupName = regexp.MustCompile(`^chain-(?:(pre-restore|evidence)-)?(\d{8}T\d{6}Z)(?:\.(\d+))?\.jsonl$`)

func backupPrefix(kind model.BackupKind) string {
	switch kind {
	case model.BackupPreRestore:
		return "chain-pre-restore-"
	case model.BackupEvidence:
		return "chain-evidence-"
	}
	return "chain-"
}

// parseBackup recognises frozen backup file names.
func parseBackup(dir, name string) (model.FrozenBackup, bool) {
	m := backupName.FindStringSubmatch(name)
	if m == nil {
		return model.FrozenBackup{}, false
	}
	created, err := time.Parse(backupTimeLayout, m[2])
	if err != nil {
		return model.FrozenBackup{}, false
	}
	b := model.FrozenBackup{
		Name:      name,
		Path:      filepath.Join(dir, name),
		Kind:      model.BackupFreeze,
		CreatedAt: created,
	}
	if m[1] != "" {
		b.Kind = model.BackupKind(m[1])
	}
	if m[3] != "" {
		b.Seq, _ = strconv.Atoi(m[3])
	}
	return b, true
}

// ListFrozen returns every frozen backup ordered by creation time, then
// sequence, then name.
func (l *Ledger) ListFrozen() ([]model.FrozenBackup, error) {
	entries, err := os.ReadDir(l.ws.FrozenDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read frozen dir: %w", err)
	}
	var out []model.FrozenBackup
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		b, ok := parseBackup(l.ws.FrozenDir, e.Name())
		if !ok {
			continue
		}
		if info, err := e.Info(); err == nil {
			b.Size = info.Size()
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.Name < b.Name
	})
	return out, nil
}

// nextBackupName returns an unused backup file name for kind, adding a
// sequence suffix when the timestamp collides.
func (l *Ledger) nextBackupName(kind model.BackupKind) string {
	stamp := l.ws.Now().UTC().Format(backupTimeLayout)
	prefix := backupPrefix(kind)
	name := prefix + stamp + ".jsonl"
	for seq := 1; fsutil.Exists(filepath.Join(l.ws.FrozenDir, name)); seq++ {
		name = fmt.Sprintf("%s%s.%d.jsonl", prefix, stamp, seq)
	}
	return name
}

// copyToFrozen copies the live chain into the frozen dir under name and
// restricts it to read-only. The chmod is best effort.
func (l *Ledger) copyToFrozen(name string) (model.FrozenBackup, error) {
	if err := l.ws.EnsureLedgerDirs(); err != nil {
		return model.FrozenBackup{}, err
	}
	dst := filepath.Join(l.ws.FrozenDir, name)
	if !fsutil.Exists(l.ws.ChainPath) {
		// A deleted chain is preserved as an empty backup.
		if err := fsutil.AtomicWrite(dst, nil, 0644); err != nil {
			return model.FrozenBackup{}, fmt.Errorf("write %s: %w", name, err)
		}
	} else if err := fsutil.CopyFile(l.ws.ChainPath, dst, 0644); err != nil {
		return model.FrozenBackup{}, fmt.Errorf("copy chain to %s: %w", name, err)
	}
	if err := os.Chmod(dst, 0444); err != nil {
		l.log.Warn("could not make frozen backup read-only", map[string]any{"backup": name, "error": err.Error()})
	}
	b, _ := parseBackup(l.ws.FrozenDir, name)
	if info, err := os.Stat(dst); err == nil {
		b.Size = info.Size()
	}
	return b, nil
}

// FreezeResult is the outcome of `ledger freeze`.
type FreezeResult struct {
	Backup      model.FrozenBackup   `json:"backup"`
	EntryCount  int                  `json:"entry_count"`
	ChainIntact bool                 `json:"chain_intact"`
	Hash        model.HashValue      `json:"hash"`
	Backups     []model.FrozenBackup `json:"backups"`
}

// Freeze appends a freeze entry recording intactness, then copies the
// chain verbatim into a timestamped read-only backup.
func (l *Ledger) Freeze() (*FreezeResult, error) {
	if !l.Initialized() {
		return nil, errclass.ErrNotInitialized.WithMessage("no ledger to freeze, run 'ledger init' first")
	}
	st, err := l.chain.Verify()
	if err != nil {
		return nil, err
	}
	if !st.Intact {
		l.log.Warn("freezing a broken chain", map[string]any{"broken_at": st.BrokenEntry(), "reason": st.Reason})
	}

	if err := l.ws.EnsureLedgerDirs(); err != nil {
		return nil, err
	}
	name := l.nextBackupName(model.BackupFreeze)
	hash, err := l.Append(&model.FreezeData{
		Message:     "Chain frozen to " + name,
		EntryCount:  st.Count + 1,
		ChainIntact: st.Intact,
		Backup:      name,
	})
	if err != nil {
		return nil, err
	}
	backup, err := l.copyToFrozen(name)
	if err != nil {
		return nil, err
	}
	all, err := l.ListFrozen()
	if err != nil {
		return nil, err
	}
	return &FreezeResult{
		Backup:      backup,
		EntryCount:  st.Count + 1,
		ChainIntact: st.Intact,
		Hash:        hash,
		Backups:     all,
	}, nil
}

// selectBackup picks the restore source. With no selector it is the newest
// freeze backup; otherwise the newest backup whose name contains selector.
func selectBackup(backups []model.FrozenBackup, selector string) (model.FrozenBackup, error) {
	for i := len(backups) - 1; i >= 0; i-- {
		b := backups[i]
		if selector == "" && b.Kind == model.BackupFreeze {
			return b, nil
		}
		if selector != "" && strings.Contains(b.Name, selector) {
			return b, nil
		}
	}
	if selector == "" {
		return model.FrozenBackup{}, errclass.ErrNotFound.WithMessage("no frozen backups found, run 'ledger freeze' first")
	}
	names := make([]string, len(backups))
	for i, b := range backups {
		names[i] = b.Name
	}
	return model.FrozenBackup{}, errclass.ErrNotFound.WithMessagef(
		"no frozen backup matching %q (available: %s)", selector, strings.Join(names, ", "))
}

// RestoreResult is the outcome of `ledger restore`.
type RestoreResult struct {
	Source           model.FrozenBackup `json:"source"`
	SourceEntries    int                `json:"source_entries"`
	PreRestoreBackup string             `json:"pre_restore_backup,omitempty"`
	Hash             model.HashValue    `json:"hash"`
	Entries          int                `json:"entries"`
}

// Restore replaces the live chain with a verified frozen backup. A broken
// or empty backup is refused before anything is written.
func (l *Ledger) Restore(selector string) (*RestoreResult, error) {
	backups, err := l.ListFrozen()
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		return nil, errclass.ErrNotFound.WithMessage("no frozen backups found, run 'ledger freeze' first")
	}
	src, err := selectBackup(backups, selector)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, fmt.Errorf("read frozen backup %s: %w", src.Name, err)
	}
	lines, err := ReadLines(src.Path)
	if err != nil {
		return nil, fmt.Errorf("read frozen backup %s: %w", src.Name, err)
	}
	st := VerifyIntegrity(lines)
	if !st.Intact {
		return nil, errclass.ErrChainBroken.WithMessagef(
			"frozen backup %s is broken at entry %d (%s), refusing to restore", src.Name, st.BrokenEntry(), st.Reason)
	}
	if st.Count == 0 {
		return nil, errclass.ErrCorruptData.WithMessagef("frozen backup %s has no entries", src.Name)
	}

	res := &RestoreResult{Source: src, SourceEntries: st.Count}
	if l.Initialized() {
		pre, err := l.copyToFrozen(l.nextBackupName(model.BackupPreRestore))
		if err != nil {
			return nil, err
		}
		res.PreRestoreBackup = pre.Name
	}

	if err := l.chain.Replace(raw); err != nil {
		return nil, err
	}
	hash, err := l.Append(&model.RestoreData{
		Message:          "Chain restored from: " + src.Name,
		FrozenSource:     src.Name,
		FrozenEntries:    st.Count,
		PreRestoreBackup: res.PreRestoreBackup,
	})
	if err != nil {
		return nil, err
	}
	res.Hash = hash
	res.Entries = st.Count + 1

	snap, err := l.snapshot()
	if err != nil {
		return nil, err
	}
	if err := l.saveSession(&session{LastSnapshot: snap, InitTime: l.ws.Timestamp(), RestoredFrom: src.Name}); err != nil {
		return nil, err
	}
	return res, nil
}
