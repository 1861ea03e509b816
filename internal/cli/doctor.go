package cli

import (
	"github.com/spf13/cobra"

	"github.com/openclaw/clawguard/internal/doctor"
	"github.com/openclaw/clawguard/pkg/color"
)

var (
	doctorRepair bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check workspace health",
	Long: `Check workspace health.

Runs diagnostic checks on the ledger, trust manifest, quarantine state,
frozen backups and lock, and reports any issues. Use --repair to remove
orphan temp files left by an interrupted command.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openWorkspace()
		if err != nil {
			return err
		}

		var result *doctor.Result
		check := func() error {
			var err error
			result, err = doctor.NewDoctor(s.ws).Check(doctorRepair)
			return err
		}
		if doctorRepair {
			err = s.withLock("doctor", check)
		} else {
			err = check()
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			if err := outputJSON(cmd, result); err != nil {
				return err
			}
			return exitWith(result.ExitCode())
		}

		for _, p := range result.Repaired {
			printf(cmd, "%s %s\n", color.Success("removed"), p)
		}
		if len(result.Findings) == 0 {
			printf(cmd, "Workspace is healthy.\n")
			return nil
		}
		printf(cmd, "Findings (%d):\n", len(result.Findings))
		for _, f := range result.Findings {
			printf(cmd, "  [%s] %s: %s\n", color.Status(f.Severity), f.Category, f.Description)
		}
		return exitWith(result.ExitCode())
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorRepair, "repair", false, "remove orphan temp files")
	rootCmd.AddCommand(doctorCmd)
}
