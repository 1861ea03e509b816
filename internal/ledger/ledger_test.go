package ledger_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openclaw/clawguard/internal/ledger"
	"github.com/openclaw/clawguard/internal/workspace"
	"github.com/openclaw/clawguard/pkg/errclass"
	"github.com/openclaw/clawguard/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func setupLedger(t *testing.T) (*ledger.Ledger, *workspace.Workspace, *stepClock) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "AGENTS.md"), "# agents\n")
	writeFile(t, filepath.Join(root, "notes.md"), "hello\n")
	writeFile(t, filepath.Join(root, "skills", "alpha", "SKILL.md"), "alpha\n")

	clock := &stepClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), step: time.Second}
	ws := workspace.New(root, nil)
	ws.Now = clock.Now
	return ledger.New(ws), ws, clock
}

func initLedger(t *testing.T, l *ledger.Ledger) {
	t.Helper()
	_, err := l.Init()
	require.NoError(t, err)
}

func tamperChain(t *testing.T, ws *workspace.Workspace) {
	t.Helper()
	raw, err := os.ReadFile(ws.ChainPath)
	require.NoError(t, err)
	edited := bytes.Replace(raw, []byte("Ledger initialized"), []byte("Ledger hijacked!!!"), 1)
	require.NotEqual(t, raw, edited)
	require.NoError(t, os.WriteFile(ws.ChainPath, edited, 0644))
}

func TestLedger_Init(t *testing.T) {
	l, ws, _ := setupLedger(t)

	res, err := l.Init()
	require.NoError(t, err)
	assert.False(t, res.AlreadyInitialized)
	assert.Equal(t, 1, res.Entries)
	assert.Equal(t, 3, res.FileCount)
	assert.FileExists(t, ws.SessionPath)
	assert.FileExists(t, ws.HeadPath)

	again, err := l.Init()
	require.NoError(t, err)
	assert.True(t, again.AlreadyInitialized)
	assert.False(t, again.SessionCreated)
}

func TestLedger_InitCreatesMissingSession(t *testing.T) {
	l, ws, _ := setupLedger(t)
	_, err := l.RecordAction(&model.SkillAction{Action: model.ActionSign, Skill: "alpha"})
	require.NoError(t, err)

	res, err := l.Init()
	require.NoError(t, err)
	assert.True(t, res.AlreadyInitialized)
	assert.True(t, res.SessionCreated)
	assert.FileExists(t, ws.SessionPath)
}

func TestLedger_RecordRequiresInit(t *testing.T) {
	l, _, _ := setupLedger(t)
	_, err := l.Record("")
	assert.True(t, errors.Is(err, errclass.ErrNotInitialized))
}

func TestLedger_RecordChanges(t *testing.T) {
	l, ws, _ := setupLedger(t)
	initLedger(t, l)

	res, err := l.Record("")
	require.NoError(t, err)
	assert.False(t, res.Recorded(), "no changes since init")

	writeFile(t, filepath.Join(ws.Root, "notes.md"), "changed\n")
	writeFile(t, filepath.Join(ws.Root, "new.md"), "new\n")
	require.NoError(t, os.Remove(filepath.Join(ws.Root, "AGENTS.md")))

	res, err = l.Record("edited notes")
	require.NoError(t, err)
	require.True(t, res.Recorded())
	assert.Equal(t, []string{"notes.md"}, res.Changes.Modified)
	assert.Equal(t, []string{"new.md"}, res.Changes.Added)
	assert.Equal(t, []string{"AGENTS.md"}, res.Changes.Deleted)

	res, err = l.Record("")
	require.NoError(t, err)
	assert.False(t, res.Recorded(), "session snapshot advanced")
}

func TestLedger_RecordIgnoresControlDirs(t *testing.T) {
	l, ws, _ := setupLedger(t)
	initLedger(t, l)

	writeFile(t, filepath.Join(ws.Root, ".git", "HEAD"), "ref\n")
	writeFile(t, filepath.Join(ws.Root, "skills", "clawguard", "SKILL.md"), "self\n")

	res, err := l.Record("")
	require.NoError(t, err)
	assert.False(t, res.Recorded())
}

func TestLedger_VerifyNotInitialized(t *testing.T) {
	l, _, _ := setupLedger(t)
	_, err := l.Verify()
	assert.True(t, errors.Is(err, errclass.ErrNotInitialized))
}

func TestLedger_VerifyReportsBreak(t *testing.T) {
	l, ws, _ := setupLedger(t)
	initLedger(t, l)
	writeFile(t, filepath.Join(ws.Root, "notes.md"), "changed\n")
	_, err := l.Record("")
	require.NoError(t, err)

	ok, err := l.Verify()
	require.NoError(t, err)
	assert.True(t, ok.Status.Intact)
	assert.NotEmpty(t, ok.FirstTimestamp)

	tamperChain(t, ws)
	res, err := l.Verify()
	require.NoError(t, err)
	assert.False(t, res.Status.Intact)
	assert.Equal(t, 2, res.Status.BrokenEntry())
	assert.NotEmpty(t, res.FoundPrevHash)
}

func TestLedger_Log(t *testing.T) {
	l, ws, _ := setupLedger(t)
	initLedger(t, l)
	for i := 0; i < 3; i++ {
		writeFile(t, filepath.Join(ws.Root, "notes.md"), strings.Repeat("x", i+1))
		_, err := l.Record("")
		require.NoError(t, err)
	}

	items, err := l.Log(2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 3, items[0].Number)
	assert.Equal(t, 4, items[1].Number)
	assert.Equal(t, model.EventRecord, items[1].Event)
	require.NotNil(t, items[1].Changes)
	assert.Equal(t, []string{"notes.md"}, items[1].Changes.Modified)

	all, err := l.Log(0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "Ledger initialized", all[0].Message)
}

func TestLedger_Status(t *testing.T) {
	l, _, _ := setupLedger(t)

	st, err := l.Status()
	require.NoError(t, err)
	assert.False(t, st.Initialized)
	assert.Equal(t, 1, st.ExitCode())

	initLedger(t, l)
	_, err = l.Freeze()
	require.NoError(t, err)

	st, err = l.Status()
	require.NoError(t, err)
	assert.True(t, st.Initialized)
	assert.Equal(t, 2, st.Entries)
	assert.Equal(t, 1, st.FrozenBackups)
	assert.Equal(t, 0, st.ExitCode())
}

func TestLedger_RecordAction(t *testing.T) {
	l, _, _ := setupLedger(t)
	_, err := l.RecordAction(&model.SkillAction{Action: model.ActionQuarantine, Skill: "alpha", Reason: "tampered"})
	require.NoError(t, err)

	items, err := l.Log(0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "quarantine: alpha (tampered)", items[0].Message)
}

func TestLedger_EmptiedChainIsBrokenNotMissing(t *testing.T) {
	l, ws, _ := setupLedger(t)
	initLedger(t, l)
	_, err := l.Freeze()
	require.NoError(t, err)
	require.NoError(t, os.Truncate(ws.ChainPath, 0))

	assert.True(t, l.Initialized())
	v, err := l.Verify()
	require.NoError(t, err)
	assert.False(t, v.Status.Intact)
	assert.Equal(t, 1, v.Status.BrokenEntry())
	assert.Equal(t, ledger.ReasonAnchor, v.Status.Reason)

	st, err := l.Status()
	require.NoError(t, err)
	assert.True(t, st.Initialized)
	assert.Zero(t, st.Entries)
	assert.Equal(t, 1, st.ExitCode())

	again, err := l.Init()
	require.NoError(t, err)
	assert.True(t, again.AlreadyInitialized, "init must not paper over the truncation")
}
