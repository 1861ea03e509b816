// Package workspace resolves the workspace root and owns every path the
// ledger and skill toolchain read or write.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openclaw/clawguard/pkg/config"
	"github.com/openclaw/clawguard/pkg/model"
)

const (
	LedgerDirName     = ".ledger"
	SignetDirName     = ".signet"
	QuarantineDirName = ".quarantine"

	// AgentsMarker identifies a workspace root when found in the current directory.
	AgentsMarker = "AGENTS.md"
)

// ControlDirs are directory names skipped by every walk.
var ControlDirs = []string{
	".git",
	"node_modules",
	"__pycache__",
	".venv",
	"venv",
	".integrity",
	".quarantine",
	".snapshots",
	".ledger",
	".signet",
	".sentinel",
}

// Workspace is the explicit context passed to every component.
type Workspace struct {
	Root   string
	Config *config.Config

	SkillsDir string

	LedgerDir   string
	ChainPath   string
	HeadPath    string
	SessionPath string
	FrozenDir   string
	LockPath    string

	SignetDir           string
	ManifestPath        string
	QuarantineStatePath string
	SnapshotsDir        string

	EvidenceDir string
	RejectedDir string
	ArchiveDir  string

	// Now is the clock used for every timestamp the workspace writes.
	Now func() time.Time
}

// New builds a Workspace for root using cfg. A nil cfg means defaults.
func New(root string, cfg *config.Config) *Workspace {
	if cfg == nil {
		cfg = config.Default()
	}
	ledgerDir := filepath.Join(root, LedgerDirName)
	signetDir := filepath.Join(root, SignetDirName)
	evidenceDir := filepath.Join(root, QuarantineDirName, "signet")
	return &Workspace{
		Root:                root,
		Config:              cfg,
		SkillsDir:           filepath.Join(root, filepath.FromSlash(cfg.SkillsDir)),
		LedgerDir:           ledgerDir,
		ChainPath:           filepath.Join(ledgerDir, "chain.jsonl"),
		HeadPath:            filepath.Join(ledgerDir, "head"),
		SessionPath:         filepath.Join(ledgerDir, "session.json"),
		FrozenDir:           filepath.Join(ledgerDir, "frozen"),
		LockPath:            filepath.Join(ledgerDir, ".lock"),
		SignetDir:           signetDir,
		ManifestPath:        filepath.Join(signetDir, "manifest.json"),
		QuarantineStatePath: filepath.Join(signetDir, "quarantine.json"),
		SnapshotsDir:        filepath.Join(signetDir, "snapshots"),
		EvidenceDir:         evidenceDir,
		RejectedDir:         evidenceDir,
		ArchiveDir:          filepath.Join(evidenceDir, "archive"),
		Now:                 func() time.Time { return time.Now().UTC() },
	}
}

// Open loads .clawguard.yaml from root and builds the Workspace.
func Open(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}
	cfg, err := config.Load(abs)
	if err != nil {
		return nil, err
	}
	return New(abs, cfg), nil
}

// ResolveRoot picks the workspace root: explicit value (flag or
// OPENCLAW_WORKSPACE), else cwd when it holds AGENTS.md, else
// ~/.openclaw/workspace when it exists, else cwd.
func ResolveRoot(explicit, cwd, home string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(filepath.Join(cwd, AgentsMarker)); err == nil {
		return cwd
	}
	if home != "" {
		candidate := filepath.Join(home, ".openclaw", "workspace")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	return cwd
}

// Resolve applies ResolveRoot using the process working and home directories.
func Resolve(explicit string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	home, _ := os.UserHomeDir()
	return ResolveRoot(explicit, cwd, home), nil
}

// Timestamp renders the workspace clock as ISO-8601 UTC.
func (w *Workspace) Timestamp() string {
	return model.FormatTime(w.Now())
}

// SkillPath is the active location of a skill.
func (w *Workspace) SkillPath(name string) string {
	return filepath.Join(w.SkillsDir, name)
}

// QuarantinedPath is the in-place quarantine location of a skill.
func (w *Workspace) QuarantinedPath(name string) string {
	return filepath.Join(w.SkillsDir, model.QuarantinePrefix+name)
}

// RejectedPath is where a rejected unsigned skill is moved.
func (w *Workspace) RejectedPath(name string) string {
	return filepath.Join(w.RejectedDir, name)
}

// EvidencePath is the quarantine evidence file of a skill.
func (w *Workspace) EvidencePath(name string) string {
	return filepath.Join(w.EvidenceDir, name+"-evidence.json")
}

// RejectionPath is the rejection record of a skill.
func (w *Workspace) RejectionPath(name string) string {
	return filepath.Join(w.RejectedDir, name+"-rejected.json")
}

// SnapshotPath is the trusted snapshot tree of a skill.
func (w *Workspace) SnapshotPath(name string) string {
	return filepath.Join(w.SnapshotsDir, name)
}

// SnapshotMetaPath is the metadata file describing a skill snapshot.
func (w *Workspace) SnapshotMetaPath(name string) string {
	return filepath.Join(w.SnapshotsDir, name+".json")
}

// IsSelfSkill reports whether name is one of the tool's own skills.
func (w *Workspace) IsSelfSkill(name string) bool {
	for _, s := range w.Config.SelfSkills {
		if s == name {
			return true
		}
	}
	return false
}

// IsControlDir reports whether a directory name is excluded from every walk.
func IsControlDir(name string) bool {
	if strings.HasPrefix(name, QuarantineDirName) {
		return true
	}
	for _, d := range ControlDirs {
		if d == name {
			return true
		}
	}
	return false
}

// SkillsRel is the skills directory relative to the root, slash-separated.
func (w *Workspace) SkillsRel() string {
	return filepath.ToSlash(filepath.Clean(w.Config.SkillsDir))
}

// EnsureLedgerDirs creates the ledger directories.
func (w *Workspace) EnsureLedgerDirs() error {
	return mkdirs(w.LedgerDir, w.FrozenDir)
}

// EnsureSignetDirs creates the manifest, snapshot and evidence directories.
func (w *Workspace) EnsureSignetDirs() error {
	return mkdirs(w.SignetDir, w.SnapshotsDir, w.EvidenceDir)
}

func mkdirs(dirs ...string) error {
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}
	return nil
}

// ListSkillDirs returns the names of active skills: directories under the
// skills dir that hold the marker file, are not quarantined or hidden, and
// do not belong to the tool itself. Names come back sorted.
func (w *Workspace) ListSkillDirs() ([]string, error) {
	entries, err := os.ReadDir(w.SkillsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read skills dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") || w.IsSelfSkill(name) {
			continue
		}
		if _, err := os.Stat(filepath.Join(w.SkillsDir, name, w.Config.SkillMarker)); err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// ListQuarantinedDirs returns skill names rendered with the quarantine prefix.
func (w *Workspace) ListQuarantinedDirs() ([]string, error) {
	entries, err := os.ReadDir(w.SkillsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read skills dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), model.QuarantinePrefix) {
			names = append(names, strings.TrimPrefix(e.Name(), model.QuarantinePrefix))
		}
	}
	return names, nil
}
