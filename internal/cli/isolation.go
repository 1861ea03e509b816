package cli

import (
	"github.com/spf13/cobra"

	"github.com/openclaw/clawguard/internal/quarantine"
	"github.com/openclaw/clawguard/pkg/color"
)

var quarantineReason string

var quarantineCmd = &cobra.Command{
	Use:   "quarantine <skill>",
	Short: "Isolate a skill and capture forensic evidence",
	Long: `Move a skill out of the active set and write an evidence record comparing
it with its trusted baseline. Quarantining an already quarantined skill is a
no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openWorkspace()
		if err != nil {
			return err
		}
		var res *quarantine.QuarantineResult
		err = s.withLock("quarantine", func() error {
			var err error
			res, err = quarantine.New(s.ws, s.store, s.recorder()).Quarantine(args[0], quarantineReason)
			return err
		})
		if err != nil {
			return notFoundHint(s, err, args)
		}

		if jsonOutput {
			return outputJSON(cmd, res)
		}
		if res.AlreadyQuarantined {
			printf(cmd, "%s is already quarantined at %s\n", color.Highlight(res.Skill), res.Location)
			return nil
		}
		printf(cmd, "%s %s -> %s\n", color.Warning("quarantined"), color.Highlight(res.Skill), res.Location)
		if ev := res.Evidence; ev != nil {
			if ev.Note != "" {
				printf(cmd, "  %s\n", color.Dim(ev.Note))
			} else {
				printf(cmd, "  expected %s\n  actual   %s\n", color.Dim(ev.ExpectedHash.Short()), color.Dim(ev.ActualHash.Short()))
				printf(cmd, "  %d modified, %d added, %d removed\n", len(ev.ModifiedFiles), len(ev.AddedFiles), len(ev.RemovedFiles))
			}
		}
		printf(cmd, "  evidence: %s\n", res.EvidencePath)
		return nil
	},
}

var unquarantineCmd = &cobra.Command{
	Use:   "unquarantine <skill>",
	Short: "Return a quarantined skill to the active set",
	Long: `Move a quarantined skill back. The trust manifest is not changed, so the
skill verifies against its old baseline until it is signed again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openWorkspace()
		if err != nil {
			return err
		}
		var res *quarantine.UnquarantineResult
		err = s.withLock("unquarantine", func() error {
			var err error
			res, err = quarantine.New(s.ws, s.store, s.recorder()).Unquarantine(args[0])
			return err
		})
		if err != nil {
			return notFoundHint(s, err, args)
		}

		if jsonOutput {
			return outputJSON(cmd, res)
		}
		printf(cmd, "%s %s -> %s\n", color.Success("released"), color.Highlight(res.Skill), res.Location)
		printf(cmd, "  %s\n", color.Dim(res.Advisory))
		return nil
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject [skill]",
	Short: "Move unsigned skills out of the skills directory",
	Long: `Move the named unsigned skill, or every active unsigned skill, into the
rejected area with a rejection record. Signed skills are never rejected.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openWorkspace()
		if err != nil {
			return err
		}
		var res *quarantine.RejectResult
		err = s.withLock("reject", func() error {
			var err error
			res, err = quarantine.New(s.ws, s.store, s.recorder()).Reject(args...)
			return err
		})
		if err != nil {
			return notFoundHint(s, err, args)
		}

		if jsonOutput {
			return outputJSON(cmd, res)
		}
		for _, r := range res.Rejected {
			printf(cmd, "%s %s -> %s\n", color.Warning("rejected"), color.Highlight(r.Skill), r.Location)
		}
		if len(res.Skipped) > 0 {
			printf(cmd, "skipped (signed): %s\n", joinNames(res.Skipped))
		}
		if len(res.Rejected) == 0 {
			printf(cmd, "No unsigned skills to reject\n")
		}
		return nil
	},
}

func init() {
	quarantineCmd.Flags().StringVar(&quarantineReason, "reason", "", "reason recorded in the evidence")
	rootCmd.AddCommand(quarantineCmd, unquarantineCmd, rejectCmd)
}
