// Package doctor runs workspace health checks.
package doctor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openclaw/clawguard/internal/ledger"
	"github.com/openclaw/clawguard/internal/lock"
	"github.com/openclaw/clawguard/internal/manifest"
	"github.com/openclaw/clawguard/internal/quarantine"
	"github.com/openclaw/clawguard/internal/workspace"
	"github.com/openclaw/clawguard/pkg/errclass"
	"github.com/openclaw/clawguard/pkg/fsutil"
)

// Severity levels, in increasing order.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Path        string `json:"path,omitempty"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
	// Repaired lists orphan temp paths removed by a repair run.
	Repaired []string `json:"repaired,omitempty"`
}

// ExitCode is 2 when the workspace is unhealthy, 1 when only warnings
// were found, else 0.
func (r *Result) ExitCode() int {
	if !r.Healthy {
		return 2
	}
	for _, f := range r.Findings {
		if f.Severity == SeverityWarning {
			return 1
		}
	}
	return 0
}

func (r *Result) add(f Finding) {
	r.Findings = append(r.Findings, f)
	if f.Severity == SeverityError || f.Severity == SeverityCritical {
		r.Healthy = false
	}
}

// Doctor performs workspace health checks.
type Doctor struct {
	ws     *workspace.Workspace
	ledger *ledger.Ledger
}

// NewDoctor creates a new doctor.
func NewDoctor(ws *workspace.Workspace) *Doctor {
	return &Doctor{ws: ws, ledger: ledger.New(ws)}
}

// Check runs all diagnostic checks. With repair set, orphan temp files are
// removed; nothing else is ever changed.
func (d *Doctor) Check(repair bool) (*Result, error) {
	result := &Result{Healthy: true, Findings: []Finding{}}

	// 1. Ledger chain and head anchor
	d.checkChain(result)

	// 2. Trust manifest
	d.checkManifest(result)

	// 3. Quarantine state against the filesystem
	d.checkQuarantine(result)

	// 4. Orphan temp files
	d.checkOrphanTmp(result, repair)

	// 5. Frozen backups that can still be written
	d.checkFrozenPerms(result)

	// 6. Stale lock
	d.checkStaleLock(result)

	return result, nil
}

func (d *Doctor) checkChain(result *Result) {
	chain := d.ledger.Chain()
	if !chain.Exists() {
		result.add(Finding{
			Category:    "ledger",
			Description: "no ledger chain, run 'clawguard ledger init'",
			Severity:    SeverityInfo,
			Path:        d.ws.ChainPath,
		})
		return
	}
	st, err := chain.Verify()
	if err != nil {
		result.add(Finding{
			Category:    "ledger",
			Description: fmt.Sprintf("cannot read chain: %v", err),
			Severity:    SeverityError,
			Path:        d.ws.ChainPath,
		})
		return
	}
	if !st.Intact {
		result.add(Finding{
			Category:    "ledger",
			Description: fmt.Sprintf("chain broken at entry %d: %s", st.BrokenEntry(), st.Reason),
			Severity:    SeverityCritical,
			Path:        d.ws.ChainPath,
		})
		return
	}
	if st.Anchor == ledger.AnchorMissing && st.Count > 0 {
		result.add(Finding{
			Category:    "ledger",
			Description: "head anchor missing, tail truncation cannot be detected",
			Severity:    SeverityWarning,
			Path:        d.ws.HeadPath,
		})
	}
}

func (d *Doctor) checkManifest(result *Result) {
	_, err := manifest.New(d.ws, nil).Load()
	switch {
	case err == nil:
	case errors.Is(err, errclass.ErrNotFound):
		result.add(Finding{
			Category:    "manifest",
			Description: "no trust manifest, run 'clawguard sign'",
			Severity:    SeverityInfo,
			Path:        d.ws.ManifestPath,
		})
	default:
		result.add(Finding{
			Category:    "manifest",
			Description: fmt.Sprintf("trust manifest unusable: %v", err),
			Severity:    SeverityCritical,
			Path:        d.ws.ManifestPath,
		})
	}
}

func (d *Doctor) checkQuarantine(result *Result) {
	ctl := quarantine.New(d.ws, manifest.New(d.ws, nil), nil)
	list, err := ctl.List()
	if err != nil {
		result.add(Finding{
			Category:    "quarantine",
			Description: fmt.Sprintf("quarantine state unusable: %v", err),
			Severity:    SeverityError,
			Path:        d.ws.QuarantineStatePath,
		})
		return
	}
	for _, l := range list {
		switch {
		case l.Stray:
			result.add(Finding{
				Category:    "quarantine",
				Description: fmt.Sprintf("quarantined directory for '%s' has no state record", l.Skill),
				Severity:    SeverityWarning,
				Path:        d.ws.QuarantinedPath(l.Skill),
			})
		case l.Missing:
			result.add(Finding{
				Category:    "quarantine",
				Description: fmt.Sprintf("%s skill '%s' is recorded but its directory is gone", l.State, l.Skill),
				Severity:    SeverityError,
				Path:        filepath.Join(d.ws.Root, filepath.FromSlash(l.Location)),
			})
		}
	}
}

func (d *Doctor) checkOrphanTmp(result *Result, repair bool) {
	filepath.Walk(d.ws.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !strings.HasPrefix(info.Name(), fsutil.TempPrefix) {
			if info.IsDir() && workspace.IsControlDir(info.Name()) && !d.ownsDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if repair && os.RemoveAll(path) == nil {
			result.Repaired = append(result.Repaired, path)
		} else {
			result.add(Finding{
				Category:    "tmp",
				Description: fmt.Sprintf("orphan temp file: %s", info.Name()),
				Severity:    SeverityWarning,
				Path:        path,
			})
		}
		if info.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
}

// ownsDir reports whether a control dir holds clawguard state worth scanning.
func (d *Doctor) ownsDir(path string) bool {
	for _, p := range []string{d.ws.LedgerDir, d.ws.SignetDir, d.ws.EvidenceDir, filepath.Dir(d.ws.EvidenceDir)} {
		if path == p {
			return true
		}
	}
	return false
}

func (d *Doctor) checkFrozenPerms(result *Result) {
	backups, err := d.ledger.ListFrozen()
	if err != nil {
		return
	}
	for _, b := range backups {
		info, err := os.Stat(b.Path)
		if err != nil {
			continue
		}
		if info.Mode().Perm()&0222 != 0 {
			result.add(Finding{
				Category:    "frozen",
				Description: fmt.Sprintf("frozen backup %s is writable", b.Name),
				Severity:    SeverityWarning,
				Path:        b.Path,
			})
		}
	}
}

func (d *Doctor) checkStaleLock(result *Result) {
	holder, err := lock.ReadHolder(d.ws.LockPath)
	if err != nil || holder == nil {
		return
	}
	held, err := lock.Probe(d.ws.LockPath)
	if err != nil || held {
		return
	}
	result.add(Finding{
		Category:    "lock",
		Description: fmt.Sprintf("stale lock from pid %d (%s) since %s", holder.PID, holder.Purpose, holder.AcquiredAt.Format(time.RFC3339)),
		Severity:    SeverityInfo,
		Path:        d.ws.LockPath,
	})
}
