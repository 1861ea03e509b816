package cli

import (
	"github.com/spf13/cobra"

	"github.com/openclaw/clawguard/internal/protect"
	"github.com/openclaw/clawguard/pkg/color"
)

var protectRejectUnsigned bool

var protectCmd = &cobra.Command{
	Use:   "protect",
	Short: "Verify, contain and snapshot in one sweep",
	Long: `Verify every skill, quarantine the tampered ones with evidence, snapshot
the verified ones, and report (or with --reject-unsigned, reject) unsigned
skills.

Exit code 2 when tampering was found or a signed skill is missing, 1 when
unsigned skills remain, else 0.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openWorkspace()
		if err != nil {
			return err
		}
		opts := protect.Options{RejectUnsigned: protectRejectUnsigned}
		if !cmd.Flags().Changed("reject-unsigned") {
			opts.RejectUnsigned = s.ws.Config.Protect.RejectUnsigned
		}

		var res *protect.Result
		var sweepErr error
		err = s.withLock("protect", func() error {
			cb, finish := progressFor(cmd)
			opts.Progress = cb
			res, sweepErr = protect.New(s.ws, s.store, s.recorder()).Run(opts)
			finish()
			if res == nil {
				return sweepErr
			}
			return nil
		})
		if err != nil {
			return err
		}

		code := res.ExitCode
		if sweepErr != nil {
			fmtErr(cmd.ErrOrStderr(), "%v", sweepErr)
			code = max(code, 1)
		}
		if jsonOutput {
			if err := outputJSON(cmd, res); err != nil {
				return err
			}
			return exitWith(code)
		}

		printf(cmd, "%s %d verified\n", color.Success("protect"), len(res.Report.Verified))
		for _, q := range res.Quarantined {
			printf(cmd, "  %s %s (evidence: %s)\n", color.Error("quarantined"), color.Highlight(q.Skill), q.EvidencePath)
		}
		if len(res.Uncontained) > 0 {
			printf(cmd, "  %s %s\n", color.Error("tampered, not contained"), joinNames(res.Uncontained))
		}
		for _, r := range res.Rejected {
			printf(cmd, "  %s %s\n", color.Warning("rejected"), color.Highlight(r.Skill))
		}
		if len(res.Unsigned) > 0 {
			printf(cmd, "  %s %s\n", color.Warning("unsigned"), joinNames(res.Unsigned))
		}
		if len(res.Missing) > 0 {
			printf(cmd, "  %s %s\n", color.Error("missing"), joinNames(res.Missing))
		}
		if len(res.Snapshotted) > 0 {
			printf(cmd, "  %s %s\n", color.Info("snapshot"), joinNames(res.Snapshotted))
		}
		return exitWith(code)
	},
}

func init() {
	protectCmd.Flags().BoolVar(&protectRejectUnsigned, "reject-unsigned", false, "reject unsigned skills instead of reporting them")
	rootCmd.AddCommand(protectCmd)
}
