package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/openclaw/clawguard/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONLogger(level logging.Level) (*logging.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := logging.NewLogger(level)
	l.SetOutput(&buf)
	l.SetFormat(logging.FormatJSON)
	return l, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_DebugWithFields(t *testing.T) {
	l, buf := newJSONLogger(logging.LevelDebug)
	l.Debug("hashing", map[string]any{"skill": "alpha"})

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "debug", lines[0]["level"])
	assert.Equal(t, "hashing", lines[0]["message"])
	assert.Equal(t, "alpha", lines[0]["skill"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	l, buf := newJSONLogger(logging.LevelWarn)
	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "w", lines[0]["message"])
	assert.Equal(t, "e", lines[1]["message"])
}

func TestLogger_SetLevel(t *testing.T) {
	l, buf := newJSONLogger(logging.LevelError)
	l.Info("hidden")
	l.SetLevel(logging.LevelInfo)
	l.Info("shown")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["message"])
}

func TestLogger_ErrorErr(t *testing.T) {
	l, buf := newJSONLogger(logging.LevelInfo)
	l.ErrorErr("append failed", errors.New("disk full"), map[string]any{"event": "record"})

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "disk full", lines[0]["error"])
	assert.Equal(t, "record", lines[0]["event"])
	assert.Equal(t, "error", lines[0]["level"])
}

func TestLogger_WithFieldsInherits(t *testing.T) {
	l, buf := newJSONLogger(logging.LevelInfo)
	child := l.WithFields(map[string]any{"component": "ledger"})
	child.Info("appended", map[string]any{"hash": "abc"})

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "ledger", lines[0]["component"])
	assert.Equal(t, "abc", lines[0]["hash"])
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewLogger(logging.LevelInfo)
	l.SetOutput(&buf)
	l.Warn("skipped file", map[string]any{"path": "a.txt"})

	out := buf.String()
	assert.Contains(t, out, "level=warning")
	assert.Contains(t, out, `msg="skipped file"`)
	assert.Contains(t, out, "path=a.txt")
}

func TestParseLevel(t *testing.T) {
	lvl, err := logging.ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, logging.LevelDebug, lvl)

	lvl, err = logging.ParseLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, logging.LevelWarn, lvl)

	_, err = logging.ParseLevel("loud")
	assert.Error(t, err)
}

func TestGlobalHelpers(t *testing.T) {
	orig := logging.Global()
	defer logging.SetGlobal(orig)

	l, buf := newJSONLogger(logging.LevelDebug)
	logging.SetGlobal(l)

	logging.Debug("d")
	logging.Info("i")
	logging.Warn("w")
	logging.Error("e")
	logging.ErrorErr("ee", errors.New("boom"))
	logging.WithFields(map[string]any{"k": "v"}).Info("f")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 6)
	assert.Equal(t, "v", lines[5]["k"])
}
