// Package progress reports progress of workspace walks and skill sweeps.
package progress

import (
	"fmt"
	"io"
	"strings"
)

// Callback receives progress updates during long operations.
// total is 0 when the amount of work is not known in advance.
type Callback func(op string, current, total int, message string)

// Noop is a no-op callback for default behavior.
func Noop(op string, current, total int, message string) {}

// Progress tracks operation progress.
type Progress struct {
	Op      string
	Total   int
	current int
	cb      Callback
}

// New creates a new Progress tracker.
func New(op string, total int, cb Callback) *Progress {
	if cb == nil {
		cb = Noop
	}
	return &Progress{Op: op, Total: total, cb: cb}
}

// Increment advances the progress and calls the callback.
func (p *Progress) Increment(message string) {
	p.current++
	p.cb(p.Op, p.current, p.Total, message)
}

// Done marks the operation as complete.
func (p *Progress) Done(message string) {
	if p.Total > 0 {
		p.current = p.Total
	}
	p.cb(p.Op, p.current, p.Total, message)
}

// Current returns the current progress value.
func (p *Progress) Current() int {
	return p.current
}

// Terminal renders a single self-overwriting status line.
type Terminal struct {
	w        io.Writer
	lastLen  int
	finished bool
}

// NewTerminal creates a terminal renderer writing to w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

// Callback returns a Callback that draws to the terminal.
func (t *Terminal) Callback() Callback {
	return func(op string, current, total int, message string) {
		t.render(op, current, total, message)
	}
}

func (t *Terminal) render(op string, current, total int, message string) {
	var line string
	if total > 0 {
		const width = 30
		filled := width * current / total
		if filled > width {
			filled = width
		}
		bar := strings.Repeat("=", filled) + strings.Repeat(" ", width-filled)
		line = fmt.Sprintf("%s [%s] %d/%d", op, bar, current, total)
	} else {
		line = fmt.Sprintf("%s %d", op, current)
	}
	if message != "" {
		line += " " + message
	}

	pad := ""
	if t.lastLen > len(line) {
		pad = strings.Repeat(" ", t.lastLen-len(line))
	}
	fmt.Fprint(t.w, "\r"+line+pad)
	t.lastLen = len(line)
}

// Finish terminates the status line with a newline.
func (t *Terminal) Finish() {
	if t.finished || t.lastLen == 0 {
		return
	}
	fmt.Fprintln(t.w)
	t.finished = true
}
