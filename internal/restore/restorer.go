// Package restore reinstates a skill from its trusted snapshot.
package restore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openclaw/clawguard/internal/manifest"
	"github.com/openclaw/clawguard/internal/snapshot"
	"github.com/openclaw/clawguard/internal/workspace"
	"github.com/openclaw/clawguard/pkg/errclass"
	"github.com/openclaw/clawguard/pkg/fsutil"
	"github.com/openclaw/clawguard/pkg/logging"
	"github.com/openclaw/clawguard/pkg/model"
	"github.com/openclaw/clawguard/pkg/pathutil"
)

// Restorer handles skill restore operations.
type Restorer struct {
	ws    *workspace.Workspace
	store *manifest.Store
	rec   manifest.Recorder
	log   *logging.Logger
}

// NewRestorer creates a new restorer. rec may be nil.
func NewRestorer(ws *workspace.Workspace, store *manifest.Store, rec manifest.Recorder) *Restorer {
	return &Restorer{
		ws:    ws,
		store: store,
		rec:   rec,
		log:   logging.WithFields(map[string]any{"component": "restore"}),
	}
}

// Result describes a completed restore.
type Result struct {
	Skill           string          `json:"skill"`
	CompositeHash   model.HashValue `json:"composite_hash"`
	FileCount       int             `json:"file_count"`
	Replaced        bool            `json:"replaced"`
	ManifestUpdated bool            `json:"manifest_updated"`
}

// Restore replaces the active copy of a skill with its snapshot. The
// snapshot is verified against its metadata first; a snapshot that fails the
// check aborts the restore before anything is moved.
func (r *Restorer) Restore(name string) (*Result, error) {
	if err := pathutil.ValidateSkillName(name); err != nil {
		return nil, err
	}
	name = pathutil.NormalizeSkillName(name)

	// Step 1: Verify the source
	meta, err := snapshot.VerifySnapshot(r.ws, r.store, name)
	if err != nil {
		return nil, fmt.Errorf("verify snapshot: %w", err)
	}
	if meta == nil {
		r.log.Warn("snapshot has no metadata, manifest will not be updated", map[string]any{"skill": name})
	}

	// Step 2: Clone the snapshot to a temp dir next to the skill
	if err := os.MkdirAll(r.ws.SkillsDir, 0755); err != nil {
		return nil, fmt.Errorf("create skills dir: %w", err)
	}
	active := r.ws.SkillPath(name)
	tmp := filepath.Join(r.ws.SkillsDir, snapshot.TempName(name))
	if err := fsutil.CopyTree(r.ws.SnapshotPath(name), tmp); err != nil {
		os.RemoveAll(tmp)
		return nil, fmt.Errorf("clone to temp: %w", err)
	}

	// Step 3: Swap: current aside, temp in, old copy removed
	replaced := fsutil.Exists(active)
	if err := snapshot.SwapDir(tmp, active); err != nil {
		os.RemoveAll(tmp)
		return nil, fmt.Errorf("swap in restored: %w", err)
	}

	// Step 4: Re-hash what is now live
	tree, err := r.store.HashSkill(name)
	if err != nil {
		return nil, err
	}
	res := &Result{Skill: name, CompositeHash: tree.Composite, FileCount: tree.FileCount(), Replaced: replaced}
	if meta != nil && tree.Composite != meta.CompositeHash {
		return res, errclass.ErrIntegrityViolation.WithMessagef("restored skill %s does not match its snapshot", name)
	}

	// Step 5: Reinstate trust
	if meta != nil {
		signedAt := meta.SignedAt
		if signedAt == "" {
			signedAt = r.ws.Timestamp()
		}
		sig := model.SkillSignature{
			CompositeHash: tree.Composite,
			Files:         tree.Files,
			SignedAt:      signedAt,
			FileCount:     tree.FileCount(),
		}
		if err := r.store.Update(name, sig); err != nil {
			return res, fmt.Errorf("update manifest: %w", err)
		}
		res.ManifestUpdated = true
	}

	r.log.Info("skill restored from snapshot", map[string]any{"skill": name, "replaced": replaced})
	if r.rec != nil {
		action := &model.SkillAction{Action: model.ActionRestore, Skill: name, CompositeHash: tree.Composite}
		if _, err := r.rec.RecordAction(action); err != nil {
			r.log.Warn("could not audit action", map[string]any{"action": string(action.Action), "skill": name, "error": err.Error()})
		}
	}
	return res, nil
}
