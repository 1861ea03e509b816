package progress_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/openclaw/clawguard/pkg/progress"
	"github.com/stretchr/testify/assert"
)

type call struct {
	op             string
	current, total int
	message        string
}

func TestProgress_IncrementAndDone(t *testing.T) {
	var calls []call
	p := progress.New("verify", 3, func(op string, current, total int, message string) {
		calls = append(calls, call{op, current, total, message})
	})

	p.Increment("alpha")
	p.Increment("beta")
	p.Done("finished")

	assert.Equal(t, 3, p.Current())
	assert.Equal(t, []call{
		{"verify", 1, 3, "alpha"},
		{"verify", 2, 3, "beta"},
		{"verify", 3, 3, "finished"},
	}, calls)
}

func TestProgress_UnknownTotal(t *testing.T) {
	p := progress.New("hash", 0, nil)
	p.Increment("a")
	p.Increment("b")
	p.Done("")
	assert.Equal(t, 2, p.Current())
}

func TestTerminal_RendersBar(t *testing.T) {
	var buf bytes.Buffer
	term := progress.NewTerminal(&buf)
	cb := term.Callback()

	cb("verify", 1, 2, "alpha")
	cb("verify", 2, 2, "")
	term.Finish()

	out := buf.String()
	assert.Contains(t, out, "verify [===============               ] 1/2 alpha")
	assert.Contains(t, out, "2/2")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestTerminal_UnknownTotal(t *testing.T) {
	var buf bytes.Buffer
	term := progress.NewTerminal(&buf)
	term.Callback()("hash", 7, 0, "")
	assert.Equal(t, "\rhash 7", buf.String())
}

func TestTerminal_FinishWithoutOutput(t *testing.T) {
	var buf bytes.Buffer
	progress.NewTerminal(&buf).Finish()
	assert.Empty(t, buf.String())
}
