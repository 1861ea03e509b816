// Package color renders clawguard status words in terminal colors.
// It respects NO_COLOR (https://no-color.org/) and non-TTY output through fatih/color.
package color

import (
	"fmt"
	"os"

	fcolor "github.com/fatih/color"
)

// Init applies the --no-color flag on top of fatih/color's environment detection.
func Init(noColorFlag bool) {
	if _, ok := os.LookupEnv("NO_COLOR"); ok || noColorFlag || os.Getenv("TERM") == "dumb" {
		fcolor.NoColor = true
	}
}

// Enabled returns true if color output is enabled.
func Enabled() bool {
	return !fcolor.NoColor
}

// Disable turns off color output.
func Disable() {
	fcolor.NoColor = true
}

// Enable turns on color output, even when stdout is not a terminal.
func Enable() {
	fcolor.NoColor = false
}

var (
	success   = fcolor.New(fcolor.FgGreen, fcolor.Bold)
	failure   = fcolor.New(fcolor.FgRed, fcolor.Bold)
	warning   = fcolor.New(fcolor.FgYellow, fcolor.Bold)
	info      = fcolor.New(fcolor.FgCyan)
	header    = fcolor.New(fcolor.Bold, fcolor.Underline)
	dim       = fcolor.New(fcolor.Faint)
	highlight = fcolor.New(fcolor.FgMagenta, fcolor.Bold)
	code      = fcolor.New(fcolor.FgCyan)
)

// Success formats a success message (green).
func Success(s string) string { return success.Sprint(s) }

// Successf formats a success message with printf-style arguments.
func Successf(format string, args ...any) string { return success.Sprint(fmt.Sprintf(format, args...)) }

// Error formats an error message (red).
func Error(s string) string { return failure.Sprint(s) }

// Errorf formats an error message with printf-style arguments.
func Errorf(format string, args ...any) string { return failure.Sprint(fmt.Sprintf(format, args...)) }

// Warning formats a warning message (yellow).
func Warning(s string) string { return warning.Sprint(s) }

// Warningf formats a warning message with printf-style arguments.
func Warningf(format string, args ...any) string { return warning.Sprint(fmt.Sprintf(format, args...)) }

// Info formats an informational message (cyan).
func Info(s string) string { return info.Sprint(s) }

// Header formats a section header.
func Header(s string) string { return header.Sprint(s) }

// Dim formats secondary text such as timestamps and hashes.
func Dim(s string) string { return dim.Sprint(s) }

// Highlight formats a skill name.
func Highlight(s string) string { return highlight.Sprint(s) }

// Code formats a command suggestion.
func Code(s string) string { return code.Sprint(s) }

// Status colors a verification or health word by severity.
func Status(s string) string {
	switch s {
	case "verified", "intact", "ok", "clean", "healthy":
		return Success(s)
	case "tampered", "missing", "broken", "critical", "error":
		return Error(s)
	case "unsigned", "quarantined", "rejected", "warning", "changed":
		return Warning(s)
	}
	return s
}
