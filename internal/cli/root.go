package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openclaw/clawguard/pkg/color"
	"github.com/openclaw/clawguard/pkg/errclass"
	"github.com/openclaw/clawguard/pkg/logging"
)

var (
	jsonOutput   bool
	noColor      bool
	workspaceArg string
	logLevelArg  string

	rootCmd = &cobra.Command{
		Use:   "clawguard",
		Short: "clawguard - tamper-evident audit ledger and skill integrity for OpenClaw",
		Long: `clawguard keeps an append-only, hash-chained audit ledger of an OpenClaw
workspace and a signed trust manifest of its skills. It detects tampered or
unsigned skills, quarantines them with forensic evidence, and restores them
from trusted snapshots.

Exit codes: 0 clean, 1 warning, 2 tampering detected or action required.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupGlobals,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&workspaceArg, "workspace", "w", "", "workspace root (default: $OPENCLAW_WORKSPACE, ./ or ~/.openclaw/workspace)")
	flags.BoolVar(&jsonOutput, "json", false, "output in JSON format")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	flags.StringVar(&logLevelArg, "log-level", "", "log level: debug, info, warn or error")

	viper.BindPFlag("workspace", flags.Lookup("workspace"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindEnv("workspace", "OPENCLAW_WORKSPACE")
	viper.BindEnv("log_level", "CLAWGUARD_LOG_LEVEL")
}

func setupGlobals(cmd *cobra.Command, args []string) error {
	color.Init(noColor)
	logging.Global().SetOutput(cmd.ErrOrStderr())
	if lvl := viper.GetString("log_level"); lvl != "" {
		level, err := logging.ParseLevel(lvl)
		if err != nil {
			return usageError(err.Error())
		}
		logging.Global().SetLevel(level)
	}
	return nil
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	return run(rootCmd)
}

func run(cmd *cobra.Command) int {
	err := cmd.Execute()
	if err == nil {
		return 0
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	fmtErr(cmd.ErrOrStderr(), "%v", err)
	return errorExitCode(err)
}

// exitCodeError carries a non-zero exit code for a command whose output has
// already been printed.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// exitWith turns a result code into the command's error.
func exitWith(code int) error {
	if code == 0 {
		return nil
	}
	return &exitCodeError{code: code}
}

func usageError(msg string) error {
	return errclass.ErrUsage.WithMessage(msg)
}

// errorExitCode maps integrity failures to 2 and everything else to 1.
func errorExitCode(err error) int {
	switch {
	case errors.Is(err, errclass.ErrIntegrityViolation),
		errors.Is(err, errclass.ErrChainBroken),
		errors.Is(err, errclass.ErrCorruptData):
		return 2
	}
	return 1
}

// outputJSON prints v as JSON to the command's stdout.
func outputJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fmtErr(w io.Writer, format string, args ...any) {
	prefix := "clawguard: "
	if color.Enabled() {
		prefix = color.Error("clawguard:") + " "
	}
	fmt.Fprintf(w, prefix+format+"\n", args...)
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
