package ledger_test

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/openclaw/clawguard/internal/ledger"
	"github.com/openclaw/clawguard/pkg/errclass"
	"github.com/openclaw/clawguard/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anomalyTypes(r *ledger.ForensicsReport) []string {
	var out []string
	for _, a := range r.Anomalies {
		out = append(out, a.Type)
	}
	return out
}

func TestForensics_CleanChain(t *testing.T) {
	l, ws, _ := setupLedger(t)
	initLedger(t, l)
	writeFile(t, filepath.Join(ws.Root, "notes.md"), "changed\n")
	_, err := l.Record("")
	require.NoError(t, err)

	r, err := l.Forensics("", "")
	require.NoError(t, err)
	assert.Equal(t, 2, r.TotalEntries)
	assert.Len(t, r.Timeline, 2)
	assert.Empty(t, r.Anomalies)
	assert.Equal(t, 1, r.Sessions)
	assert.Equal(t, map[string]int{"init": 1, "record": 1}, r.Events)
	assert.Equal(t, 1, r.ChangeTotals.Modified)
	assert.Equal(t, 0, r.ExitCode())

	items, err := l.Log(1)
	require.NoError(t, err)
	assert.Equal(t, model.EventForensics, items[0].Event)
}

func TestForensics_TimeGapStartsSession(t *testing.T) {
	l, ws, clock := setupLedger(t)
	initLedger(t, l)
	clock.Advance(2 * time.Hour)
	writeFile(t, filepath.Join(ws.Root, "notes.md"), "changed\n")
	_, err := l.Record("")
	require.NoError(t, err)

	r, err := l.Forensics("", "")
	require.NoError(t, err)
	assert.Equal(t, []string{ledger.AnomalyTimeGap}, anomalyTypes(r))
	assert.Equal(t, 2, r.Anomalies[0].Entry)
	assert.Equal(t, 2, r.Sessions)
	assert.True(t, r.Timeline[1].SessionStart)
	assert.Equal(t, 1, r.ExitCode())
}

func TestForensics_BulkChange(t *testing.T) {
	l, ws, _ := setupLedger(t)
	ws.Config.Forensics.BulkThreshold = 3
	initLedger(t, l)
	for i := 0; i < 4; i++ {
		writeFile(t, filepath.Join(ws.Root, "docs", fmt.Sprintf("f%d.md", i)), "x")
	}
	_, err := l.Record("")
	require.NoError(t, err)

	r, err := l.Forensics("", "")
	require.NoError(t, err)
	require.Equal(t, []string{ledger.AnomalyBulkChange}, anomalyTypes(r))
	assert.Contains(t, r.Anomalies[0].Detail, "4 files changed")
	assert.Equal(t, 4, r.ChangeTotals.Added)
}

func TestForensics_DuplicateAndRegression(t *testing.T) {
	l, ws, _ := setupLedger(t)
	times := []time.Time{
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	i := 0
	ws.Now = func() time.Time {
		if i < len(times) {
			i++
			return times[i-1]
		}
		return times[len(times)-1]
	}
	for range times {
		_, err := l.RecordAction(&model.SkillAction{Action: model.ActionSign, Skill: "alpha"})
		require.NoError(t, err)
	}

	r, err := l.Forensics("", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ledger.AnomalyDuplicateTime, ledger.AnomalyTimeRegression}, anomalyTypes(r))
}

func TestForensics_TimeRange(t *testing.T) {
	l, ws, clock := setupLedger(t)
	initLedger(t, l)
	clock.Advance(48 * time.Hour)
	writeFile(t, filepath.Join(ws.Root, "notes.md"), "changed\n")
	_, err := l.Record("")
	require.NoError(t, err)

	r, err := l.Forensics("2026-03-02", "")
	require.NoError(t, err)
	require.Len(t, r.Timeline, 1)
	assert.Equal(t, 2, r.Timeline[0].Number)
	assert.Empty(t, r.Anomalies)

	r, err = l.Forensics("", "2026-03-01")
	require.NoError(t, err)
	require.Len(t, r.Timeline, 1, "a date-only upper bound covers the whole day")
	assert.Equal(t, 1, r.Timeline[0].Number)

	_, err = l.Forensics("yesterday", "")
	assert.True(t, errors.Is(err, errclass.ErrUsage))
}

func TestParseEndTime(t *testing.T) {
	end, err := ledger.ParseEndTime("2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 23, 59, 59, 999999999, time.UTC), end)

	end, err = ledger.ParseEndTime("2026-03-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), end)
}

func TestForensics_BrokenChainExitCode(t *testing.T) {
	l, ws, _ := setupLedger(t)
	initLedger(t, l)
	writeFile(t, filepath.Join(ws.Root, "notes.md"), "changed\n")
	_, err := l.Record("")
	require.NoError(t, err)
	tamperChain(t, ws)

	r, err := l.Forensics("", "")
	require.NoError(t, err)
	assert.False(t, r.Chain.Intact)
	assert.Equal(t, 2, r.ExitCode())
}

func TestParseTime(t *testing.T) {
	for _, in := range []string{"2026-03-01", "2026-03-01T10:00:00", "2026-03-01T10:00:00Z", "2026-03-01T10:00:00.5+02:00"} {
		_, err := ledger.ParseTime(in)
		assert.NoError(t, err, in)
	}
	_, err := ledger.ParseTime("03/01/2026")
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	l, ws, _ := setupLedger(t)
	initLedger(t, l)
	writeFile(t, filepath.Join(ws.Root, "notes.md"), "changed\n")
	_, err := l.Record("edit")
	require.NoError(t, err)

	x, err := l.Export()
	require.NoError(t, err)
	assert.Equal(t, ledger.ExportFormat, x.Format)
	assert.Equal(t, "intact", x.ChainIntegrity)
	require.Len(t, x.Entries, 2)
	assert.Equal(t, 1, x.Entries[0].Number)
	assert.Equal(t, model.GenesisHash, x.Entries[0].PrevHash)
	assert.Equal(t, x.Entries[0].Hash, x.Entries[1].PrevHash)

	var buf bytes.Buffer
	require.NoError(t, x.WriteText(&buf))
	out := buf.String()
	assert.Contains(t, out, "CHAIN EXPORT REPORT")
	assert.Contains(t, out, "Chain status:  INTACT")
	assert.Contains(t, out, "[M] notes.md")
	assert.Contains(t, out, "Message: edit")
}

func TestExport_CorruptLine(t *testing.T) {
	l, ws, _ := setupLedger(t)
	initLedger(t, l)
	writeFile(t, ws.ChainPath, "garbage\n")

	x, err := l.Export()
	require.NoError(t, err)
	assert.Equal(t, 1, x.ParseErrors)
	assert.True(t, x.Entries[0].ParseError)
	assert.Equal(t, "broken at entry 1", x.ChainIntegrity)
}
