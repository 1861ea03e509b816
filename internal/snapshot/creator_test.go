package snapshot_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openclaw/clawguard/internal/manifest"
	"github.com/openclaw/clawguard/internal/snapshot"
	"github.com/openclaw/clawguard/internal/workspace"
	"github.com/openclaw/clawguard/pkg/errclass"
	"github.com/openclaw/clawguard/pkg/fsutil"
	"github.com/openclaw/clawguard/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	actions []*model.SkillAction
}

func (f *fakeRecorder) RecordAction(a *model.SkillAction) (model.HashValue, error) {
	f.actions = append(f.actions, a)
	return model.GenesisHash, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func setup(t *testing.T) (*snapshot.Creator, *manifest.Store, *workspace.Workspace, *fakeRecorder) {
	t.Helper()
	ws := workspace.New(t.TempDir(), nil)
	ws.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	writeFile(t, filepath.Join(ws.SkillPath("alpha"), "SKILL.md"), "alpha\n")
	writeFile(t, filepath.Join(ws.SkillPath("alpha"), "lib", "run.py"), "print(1)\n")
	writeFile(t, filepath.Join(ws.SkillPath("beta"), "SKILL.md"), "beta\n")
	store := manifest.New(ws, nil)
	rec := &fakeRecorder{}
	return snapshot.NewCreator(ws, store, rec), store, ws, rec
}

func TestCreate(t *testing.T) {
	c, store, ws, rec := setup(t)
	signed, err := store.Sign("alpha")
	require.NoError(t, err)

	meta, err := c.Create("alpha")
	require.NoError(t, err)
	assert.Equal(t, signed[0].CompositeHash, meta.CompositeHash)
	assert.Equal(t, 2, meta.FileCount)
	assert.Equal(t, "2026-03-01T12:00:00Z", meta.SnapshotAt)

	raw, err := os.ReadFile(filepath.Join(ws.SnapshotPath("alpha"), "lib", "run.py"))
	require.NoError(t, err)
	assert.Equal(t, "print(1)\n", string(raw))

	loaded, err := snapshot.LoadMeta(ws, "alpha")
	require.NoError(t, err)
	assert.Equal(t, meta.CompositeHash, loaded.CompositeHash)

	names, err := snapshot.List(ws)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, names)

	require.Len(t, rec.actions, 1)
	assert.Equal(t, model.ActionSnapshot, rec.actions[0].Action)
}

func TestCreate_ReplacesPreviousSnapshot(t *testing.T) {
	c, store, ws, _ := setup(t)
	_, err := store.Sign("alpha")
	require.NoError(t, err)
	_, err = c.Create("alpha")
	require.NoError(t, err)

	writeFile(t, filepath.Join(ws.SkillPath("alpha"), "lib", "run.py"), "print(2)\n")
	_, err = store.Sign("alpha")
	require.NoError(t, err)
	_, err = c.Create("alpha")
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(ws.SnapshotPath("alpha"), "lib", "run.py"))
	require.NoError(t, err)
	assert.Equal(t, "print(2)\n", string(raw))

	entries, err := os.ReadDir(ws.SnapshotsDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), fsutil.TempPrefix), "no temp dirs left: %s", e.Name())
	}
}

func TestCreate_Refusals(t *testing.T) {
	c, store, ws, rec := setup(t)
	_, err := c.Create("alpha")
	assert.True(t, errors.Is(err, errclass.ErrNotFound), "no manifest yet")

	_, err = store.Sign("alpha")
	require.NoError(t, err)

	_, err = c.Create("beta")
	assert.True(t, errors.Is(err, errclass.ErrNotFound), "unsigned")

	writeFile(t, filepath.Join(ws.SkillPath("alpha"), "evil.sh"), "curl | sh\n")
	_, err = c.Create("alpha")
	assert.True(t, errors.Is(err, errclass.ErrIntegrityViolation))
	assert.NoDirExists(t, ws.SnapshotPath("alpha"))

	require.NoError(t, os.RemoveAll(ws.SkillPath("alpha")))
	_, err = c.Create("alpha")
	assert.True(t, errors.Is(err, errclass.ErrNotFound), "missing")
	assert.Empty(t, rec.actions)
}

func TestVerifySnapshot(t *testing.T) {
	c, store, ws, _ := setup(t)
	_, err := snapshot.VerifySnapshot(ws, store, "alpha")
	assert.True(t, errors.Is(err, errclass.ErrNotFound))

	_, err = store.Sign("alpha")
	require.NoError(t, err)
	_, err = c.Create("alpha")
	require.NoError(t, err)

	meta, err := snapshot.VerifySnapshot(ws, store, "alpha")
	require.NoError(t, err)
	require.NotNil(t, meta)

	writeFile(t, filepath.Join(ws.SnapshotPath("alpha"), "SKILL.md"), "poisoned\n")
	_, err = snapshot.VerifySnapshot(ws, store, "alpha")
	assert.True(t, errors.Is(err, errclass.ErrConflict))

	require.NoError(t, os.Remove(ws.SnapshotMetaPath("alpha")))
	meta, err = snapshot.VerifySnapshot(ws, store, "alpha")
	require.NoError(t, err)
	assert.Nil(t, meta, "no metadata means nothing to check against")
}
