// Package snapshot keeps a known-good copy of every verified skill so a
// later restore has a trusted source.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/openclaw/clawguard/internal/manifest"
	"github.com/openclaw/clawguard/internal/workspace"
	"github.com/openclaw/clawguard/pkg/errclass"
	"github.com/openclaw/clawguard/pkg/fsutil"
	"github.com/openclaw/clawguard/pkg/jsonutil"
	"github.com/openclaw/clawguard/pkg/logging"
	"github.com/openclaw/clawguard/pkg/model"
	"github.com/openclaw/clawguard/pkg/pathutil"
)

// Creator handles snapshot creation.
type Creator struct {
	ws    *workspace.Workspace
	store *manifest.Store
	rec   manifest.Recorder
	log   *logging.Logger
}

// NewCreator creates a new snapshot creator. rec may be nil.
func NewCreator(ws *workspace.Workspace, store *manifest.Store, rec manifest.Recorder) *Creator {
	return &Creator{
		ws:    ws,
		store: store,
		rec:   rec,
		log:   logging.WithFields(map[string]any{"component": "snapshot"}),
	}
}

// Create copies a signed, verified skill into .signet/snapshots/<name>,
// replacing any previous snapshot of it.
func (c *Creator) Create(name string) (*model.SnapshotMeta, error) {
	// Step 1: Validate the skill is signed and untouched
	if err := pathutil.ValidateSkillName(name); err != nil {
		return nil, err
	}
	name = pathutil.NormalizeSkillName(name)
	m, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	sig, ok := m.Skills[name]
	if !ok {
		return nil, errclass.ErrNotFound.WithMessagef("skill is not signed: %s", name)
	}
	verdict, err := c.store.Verify(m, name)
	if err != nil {
		return nil, err
	}
	switch verdict.Status {
	case model.StatusVerified:
	case model.StatusMissing, model.StatusQuarantined:
		return nil, errclass.ErrNotFound.WithMessagef("skill is not active: %s", name)
	default:
		return nil, errclass.ErrIntegrityViolation.WithMessagef("refusing to snapshot %s skill %s", verdict.Status, name)
	}

	// Step 2: Clone into a temp dir beside the final location
	if err := c.ws.EnsureSignetDirs(); err != nil {
		return nil, err
	}
	tmp := filepath.Join(c.ws.SnapshotsDir, TempName(name))
	if err := fsutil.CopyTree(c.ws.SkillPath(name), tmp); err != nil {
		os.RemoveAll(tmp)
		return nil, fmt.Errorf("clone skill: %w", err)
	}

	// Step 3: Re-hash the copy so a change during cloning is caught
	tree, err := c.store.HashDir(tmp)
	if err != nil {
		os.RemoveAll(tmp)
		return nil, err
	}
	if tree.Composite != sig.CompositeHash {
		os.RemoveAll(tmp)
		return nil, errclass.ErrIntegrityViolation.WithMessagef("skill %s changed while being copied", name)
	}

	// Step 4: Swap the new copy in
	if err := SwapDir(tmp, c.ws.SnapshotPath(name)); err != nil {
		os.RemoveAll(tmp)
		return nil, err
	}

	// Step 5: Write metadata
	meta := &model.SnapshotMeta{
		Skill:         name,
		CompositeHash: tree.Composite,
		Files:         tree.Files,
		FileCount:     tree.FileCount(),
		SnapshotAt:    c.ws.Timestamp(),
		SignedAt:      sig.SignedAt,
	}
	data, err := jsonutil.MarshalIndent(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot meta: %w", err)
	}
	if err := fsutil.AtomicWrite(c.ws.SnapshotMetaPath(name), data, 0644); err != nil {
		return nil, fmt.Errorf("write snapshot meta: %w", err)
	}

	// Step 6: Audit
	c.log.Info("snapshot created", map[string]any{"skill": name, "files": meta.FileCount})
	if c.rec != nil {
		action := &model.SkillAction{Action: model.ActionSnapshot, Skill: name, CompositeHash: meta.CompositeHash}
		if _, err := c.rec.RecordAction(action); err != nil {
			c.log.Warn("could not audit action", map[string]any{"action": string(action.Action), "skill": name, "error": err.Error()})
		}
	}
	return meta, nil
}

// LoadMeta reads the metadata of a skill snapshot.
func LoadMeta(ws *workspace.Workspace, name string) (*model.SnapshotMeta, error) {
	data, err := os.ReadFile(ws.SnapshotMetaPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrNotFound.WithMessagef("snapshot metadata not found: %s", name)
		}
		return nil, fmt.Errorf("read snapshot meta: %w", err)
	}
	var meta model.SnapshotMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errclass.ErrCorruptData.WithMessagef("parse snapshot meta %s: %v", name, err)
	}
	return &meta, nil
}

// VerifySnapshot re-hashes a snapshot tree against its metadata. A snapshot
// without metadata cannot be verified and returns nil metadata.
func VerifySnapshot(ws *workspace.Workspace, store *manifest.Store, name string) (*model.SnapshotMeta, error) {
	dir := ws.SnapshotPath(name)
	if !fsutil.IsDir(dir) {
		return nil, errclass.ErrNotFound.WithMessagef("no snapshot for skill: %s", name)
	}
	meta, err := LoadMeta(ws, name)
	if errors.Is(err, errclass.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tree, err := store.HashDir(dir)
	if err != nil {
		return nil, err
	}
	if tree.Composite != meta.CompositeHash {
		return nil, errclass.ErrConflict.WithMessagef("snapshot of %s fails its integrity check", name)
	}
	return meta, nil
}

// List returns the names of skills that have a snapshot directory.
func List(ws *workspace.Workspace) ([]string, error) {
	entries, err := os.ReadDir(ws.SnapshotsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshots dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// TempName returns a unique name carrying the shared temp prefix.
func TempName(name string) string {
	return fsutil.TempPrefix + name + "-" + uuid.NewString()[:8]
}

// SwapDir moves src to dst, replacing dst if present. The previous dst is
// renamed aside first and restored if the second rename fails.
func SwapDir(src, dst string) error {
	if !fsutil.Exists(dst) {
		return fsutil.RenameAndSync(src, dst)
	}
	old := filepath.Join(filepath.Dir(dst), TempName(filepath.Base(dst)+"-old"))
	if err := fsutil.RenameAndSync(dst, old); err != nil {
		return fmt.Errorf("move previous aside: %w", err)
	}
	if err := fsutil.RenameAndSync(src, dst); err != nil {
		fsutil.RenameAndSync(old, dst)
		return fmt.Errorf("swap in: %w", err)
	}
	return os.RemoveAll(old)
}
