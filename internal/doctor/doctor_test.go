package doctor_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/openclaw/clawguard/internal/doctor"
	"github.com/openclaw/clawguard/internal/ledger"
	"github.com/openclaw/clawguard/internal/lock"
	"github.com/openclaw/clawguard/internal/manifest"
	"github.com/openclaw/clawguard/internal/quarantine"
	"github.com/openclaw/clawguard/internal/workspace"
	"github.com/openclaw/clawguard/pkg/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func setupWorkspace(t *testing.T) (*workspace.Workspace, *ledger.Ledger) {
	t.Helper()
	ws := workspace.New(t.TempDir(), nil)
	writeFile(t, filepath.Join(ws.Root, "AGENTS.md"), "agents\n")
	writeFile(t, filepath.Join(ws.SkillPath("alpha"), "SKILL.md"), "alpha\n")
	l := ledger.New(ws)
	_, err := l.Init()
	require.NoError(t, err)
	_, err = manifest.New(ws, l).Sign()
	require.NoError(t, err)
	return ws, l
}

func categories(r *doctor.Result) []string {
	var out []string
	for _, f := range r.Findings {
		out = append(out, f.Category)
	}
	return out
}

func TestDoctor_Check_Healthy(t *testing.T) {
	ws, _ := setupWorkspace(t)

	result, err := doctor.NewDoctor(ws).Check(false)
	require.NoError(t, err)
	assert.True(t, result.Healthy)
	assert.Empty(t, result.Findings)
	assert.Equal(t, 0, result.ExitCode())
}

func TestDoctor_Check_EmptyWorkspace(t *testing.T) {
	ws := workspace.New(t.TempDir(), nil)

	result, err := doctor.NewDoctor(ws).Check(false)
	require.NoError(t, err)
	assert.True(t, result.Healthy)
	assert.ElementsMatch(t, []string{"ledger", "manifest"}, categories(result))
	assert.Equal(t, 0, result.ExitCode(), "info findings only")
}

func TestDoctor_Check_BrokenChain(t *testing.T) {
	ws, _ := setupWorkspace(t)
	writeFile(t, ws.ChainPath, "not json\n")

	result, err := doctor.NewDoctor(ws).Check(false)
	require.NoError(t, err)
	assert.False(t, result.Healthy)
	assert.Equal(t, []string{"ledger"}, categories(result))
	assert.Equal(t, doctor.SeverityCritical, result.Findings[0].Severity)
	assert.Equal(t, 2, result.ExitCode())
}

func TestDoctor_Check_MissingAnchor(t *testing.T) {
	ws, _ := setupWorkspace(t)
	require.NoError(t, os.Remove(ws.HeadPath))

	result, err := doctor.NewDoctor(ws).Check(false)
	require.NoError(t, err)
	assert.True(t, result.Healthy)
	assert.Equal(t, []string{"ledger"}, categories(result))
	assert.Equal(t, 1, result.ExitCode())
}

func TestDoctor_Check_CorruptManifest(t *testing.T) {
	ws, _ := setupWorkspace(t)
	writeFile(t, ws.ManifestPath, "{")

	result, err := doctor.NewDoctor(ws).Check(false)
	require.NoError(t, err)
	assert.False(t, result.Healthy)
	assert.Contains(t, categories(result), "manifest")
}

func TestDoctor_Check_QuarantineDrift(t *testing.T) {
	ws, l := setupWorkspace(t)
	writeFile(t, filepath.Join(ws.SkillPath("beta"), "SKILL.md"), "beta\n")
	ctl := quarantine.New(ws, manifest.New(ws, l), l)
	_, err := ctl.Quarantine("beta", "")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(ws.QuarantinedPath("stray"), 0755))

	result, err := doctor.NewDoctor(ws).Check(false)
	require.NoError(t, err)
	assert.True(t, result.Healthy)
	require.Equal(t, []string{"quarantine"}, categories(result))
	assert.Contains(t, result.Findings[0].Description, "stray")

	require.NoError(t, os.RemoveAll(ws.QuarantinedPath("beta")))
	result, err = doctor.NewDoctor(ws).Check(false)
	require.NoError(t, err)
	assert.False(t, result.Healthy)
}

func TestDoctor_Check_OrphanTmp(t *testing.T) {
	ws, _ := setupWorkspace(t)
	orphan := filepath.Join(ws.SignetDir, fsutil.TempPrefix+"abc")
	writeFile(t, orphan, "partial")
	orphanDir := filepath.Join(ws.SkillsDir, fsutil.TempPrefix+"alpha-1234")
	writeFile(t, filepath.Join(orphanDir, "SKILL.md"), "half copied")

	result, err := doctor.NewDoctor(ws).Check(false)
	require.NoError(t, err)
	assert.Equal(t, []string{"tmp", "tmp"}, categories(result))
	assert.FileExists(t, orphan)

	result, err = doctor.NewDoctor(ws).Check(true)
	require.NoError(t, err)
	assert.Empty(t, result.Findings)
	assert.Len(t, result.Repaired, 2)
	assert.NoFileExists(t, orphan)
	assert.NoDirExists(t, orphanDir)
}

func TestDoctor_Check_WritableFrozenBackup(t *testing.T) {
	ws, l := setupWorkspace(t)
	res, err := l.Freeze()
	require.NoError(t, err)
	require.NoError(t, os.Chmod(res.Backup.Path, 0644))

	result, err := doctor.NewDoctor(ws).Check(false)
	require.NoError(t, err)
	assert.Equal(t, []string{"frozen"}, categories(result))
}

func TestDoctor_Check_StaleLock(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("advisory locks are not probed on windows")
	}
	ws, _ := setupWorkspace(t)
	writeFile(t, ws.LockPath, `{"pid":4242,"purpose":"sign","acquired_at":"2026-03-01T12:00:00Z"}`)

	result, err := doctor.NewDoctor(ws).Check(false)
	require.NoError(t, err)
	assert.Equal(t, []string{"lock"}, categories(result))

	lk, err := lock.Acquire(ws.LockPath, "test")
	require.NoError(t, err)
	defer lk.Release()
	result, err = doctor.NewDoctor(ws).Check(false)
	require.NoError(t, err)
	assert.Empty(t, result.Findings, "a live lock is not stale")
}
