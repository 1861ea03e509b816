package integrity

import (
	"path"

	"github.com/openclaw/clawguard/internal/workspace"
	"github.com/openclaw/clawguard/pkg/model"
	"github.com/openclaw/clawguard/pkg/progress"
)

// SnapshotOptions tunes a workspace snapshot.
type SnapshotOptions struct {
	Progress progress.Callback
}

// WorkspaceExcluder skips control directories, the tool's own skills and
// the configured exclude globs.
func WorkspaceExcluder(ws *workspace.Workspace) *Excluder {
	ex := DefaultExcluder(ws.Config.Exclude)
	ex.SkipPaths = make(map[string]bool, len(ws.Config.SelfSkills))
	for _, name := range ws.Config.SelfSkills {
		ex.SkipPaths[path.Join(ws.SkillsRel(), name)] = true
	}
	return ex
}

// SkillExcluder is the excluder used when hashing a single skill directory.
func SkillExcluder(ws *workspace.Workspace) *Excluder {
	return DefaultExcluder(ws.Config.Exclude)
}

// SnapshotWorkspace hashes every tracked file of the workspace.
func SnapshotWorkspace(ws *workspace.Workspace, opts SnapshotOptions) (model.WorkspaceSnapshot, []SkippedFile, error) {
	p := progress.New("snapshot", 0, opts.Progress)
	tree, err := walk(ws.Root, WorkspaceExcluder(ws), func(rel string) {
		p.Increment(rel)
	})
	if err != nil {
		return nil, nil, err
	}
	p.Done("")

	snap := make(model.WorkspaceSnapshot, len(tree.Files))
	for rel, hash := range tree.Files {
		snap[rel] = model.FileRecord{SHA256: hash, Size: tree.Sizes[rel]}
	}
	return snap, tree.Skipped, nil
}
