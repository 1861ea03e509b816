package workspace_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openclaw/clawguard/internal/workspace"
	"github.com/openclaw/clawguard/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSkill(t *testing.T, ws *workspace.Workspace, name string) {
	t.Helper()
	dir := ws.SkillPath(name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("# "+name), 0644))
}

func TestNew_Paths(t *testing.T) {
	root := t.TempDir()
	ws := workspace.New(root, nil)

	assert.Equal(t, filepath.Join(root, "skills"), ws.SkillsDir)
	assert.Equal(t, filepath.Join(root, ".ledger", "chain.jsonl"), ws.ChainPath)
	assert.Equal(t, filepath.Join(root, ".signet", "manifest.json"), ws.ManifestPath)
	assert.Equal(t, filepath.Join(root, "skills", ".quarantined-alpha"), ws.QuarantinedPath("alpha"))
	assert.Equal(t, filepath.Join(root, ".quarantine", "signet", "alpha-evidence.json"), ws.EvidencePath("alpha"))
	assert.Equal(t, filepath.Join(root, ".signet", "snapshots", "alpha.json"), ws.SnapshotMetaPath("alpha"))
}

func TestOpen_UsesConfig(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.SkillsDir = "agent/skills"
	require.NoError(t, config.Save(root, cfg))

	ws, err := workspace.Open(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "agent", "skills"), ws.SkillsDir)
}

func TestOpen_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err := workspace.Open(file)
	assert.Error(t, err)
}

func TestResolveRoot(t *testing.T) {
	cwd := t.TempDir()
	home := t.TempDir()

	assert.Equal(t, "/explicit", workspace.ResolveRoot("/explicit", cwd, home))
	assert.Equal(t, cwd, workspace.ResolveRoot("", cwd, home))

	defaultWS := filepath.Join(home, ".openclaw", "workspace")
	require.NoError(t, os.MkdirAll(defaultWS, 0755))
	assert.Equal(t, defaultWS, workspace.ResolveRoot("", cwd, home))

	require.NoError(t, os.WriteFile(filepath.Join(cwd, workspace.AgentsMarker), nil, 0644))
	assert.Equal(t, cwd, workspace.ResolveRoot("", cwd, home))
}

func TestListSkillDirs(t *testing.T) {
	ws := workspace.New(t.TempDir(), nil)
	writeSkill(t, ws, "beta")
	writeSkill(t, ws, "alpha")
	writeSkill(t, ws, "openclaw-signet")
	require.NoError(t, os.MkdirAll(filepath.Join(ws.SkillsDir, "no-marker"), 0755))
	require.NoError(t, os.MkdirAll(ws.QuarantinedPath("gamma"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(ws.QuarantinedPath("gamma"), "SKILL.md"), nil, 0644))

	names, err := ws.ListSkillDirs()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)

	quarantined, err := ws.ListQuarantinedDirs()
	require.NoError(t, err)
	assert.Equal(t, []string{"gamma"}, quarantined)
}

func TestListSkillDirs_NoSkillsDir(t *testing.T) {
	ws := workspace.New(t.TempDir(), nil)
	names, err := ws.ListSkillDirs()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestIsControlDir(t *testing.T) {
	assert.True(t, workspace.IsControlDir(".git"))
	assert.True(t, workspace.IsControlDir(".ledger"))
	assert.True(t, workspace.IsControlDir(".quarantine-old"))
	assert.False(t, workspace.IsControlDir("src"))
}

func TestIsSelfSkill(t *testing.T) {
	ws := workspace.New(t.TempDir(), nil)
	assert.True(t, ws.IsSelfSkill("openclaw-ledger-pro"))
	assert.False(t, ws.IsSelfSkill("alpha"))
}
