package cli

import (
	"github.com/spf13/cobra"

	"github.com/openclaw/clawguard/internal/ledger"
	"github.com/openclaw/clawguard/pkg/color"
)

var (
	recordMessage string
	logLimit      int
	forensicsFrom string
	forensicsTo   string
	restoreFrozen string
	exportFormat  string
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger <command>",
	Short: "Manage the workspace audit ledger",
	Long: `The audit ledger is an append-only, hash-chained log of workspace changes
and toolchain actions in .ledger/chain.jsonl. Each entry commits to the one
before it, so any edit, deletion or reordering breaks the chain.`,
	DisableFlagsInUseLine: true,
}

// lockedLedger runs fn against the ledger while holding the workspace lock.
func lockedLedger(cmd *cobra.Command, purpose string, fn func(l *ledger.Ledger) error) error {
	s, err := openWorkspace()
	if err != nil {
		return err
	}
	return s.withLock(purpose, func() error {
		cb, finish := progressFor(cmd)
		defer finish()
		s.ledger.Progress = cb
		return fn(s.ledger)
	})
}

var ledgerInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the chain with a baseline snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var res *ledger.InitResult
		err := lockedLedger(cmd, "ledger init", func(l *ledger.Ledger) error {
			var err error
			res, err = l.Init()
			return err
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, res)
		}
		if res.AlreadyInitialized {
			printf(cmd, "Ledger already initialized (%d entries)\n", res.Entries)
			if res.SessionCreated {
				printf(cmd, "  baseline snapshot created (%d files)\n", res.FileCount)
			}
			return nil
		}
		printf(cmd, "%s ledger (%d files) %s\n", color.Success("initialized"), res.FileCount, color.Dim(res.Hash.Short()))
		return nil
	},
}

var ledgerRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record workspace changes since the last snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var res *ledger.RecordResult
		err := lockedLedger(cmd, "ledger record", func(l *ledger.Ledger) error {
			var err error
			res, err = l.Record(recordMessage)
			return err
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, res)
		}
		if !res.Recorded() {
			printf(cmd, "No changes since last record\n")
			return nil
		}
		ch := res.Changes
		printf(cmd, "%s %dM %dA %dD %s\n", color.Success("recorded"),
			len(ch.Modified), len(ch.Added), len(ch.Deleted), color.Dim(res.Hash.Short()))
		return nil
	},
}

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify chain integrity",
	Long:  "Recompute every link of the chain and check the head anchor. Exit code 2 when broken.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openWorkspace()
		if err != nil {
			return err
		}
		res, err := s.ledger.Verify()
		if err != nil {
			return err
		}
		code := 0
		if !res.Status.Intact {
			code = 2
		}
		if jsonOutput {
			if err := outputJSON(cmd, res); err != nil {
				return err
			}
			return exitWith(code)
		}

		st := res.Status
		if st.Intact {
			printf(cmd, "%s %d entries, head %s\n", color.Status("intact"), st.Count, color.Dim(st.Head.Short()))
			if st.Anchor == ledger.AnchorMissing && st.Count > 0 {
				printf(cmd, "  %s\n", color.Warning("head anchor missing"))
			}
			if res.FirstTimestamp != "" {
				printf(cmd, "  %s .. %s\n", res.FirstTimestamp, res.LastTimestamp)
			}
			return nil
		}
		printf(cmd, "%s at entry %d: %s\n", color.Status("broken"), st.BrokenEntry(), st.Reason)
		if res.FoundPrevHash != "" {
			printf(cmd, "  found prev_hash %s\n", color.Dim(res.FoundPrevHash.Short()))
		}
		return exitWith(code)
	},
}

var ledgerLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openWorkspace()
		if err != nil {
			return err
		}
		items, err := s.ledger.Log(logLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, items)
		}
		for _, it := range items {
			if it.Corrupt {
				printf(cmd, "#%-4d %s %s\n", it.Number, color.Dim(it.Hash.Short()), color.Error("[corrupt]"))
				continue
			}
			printf(cmd, "#%-4d %s %s %-10s %s\n", it.Number, color.Dim(it.Hash.Short()), it.Timestamp, it.Event, it.Message)
			if ch := it.Changes; ch != nil {
				printf(cmd, "      %dM %dA %dD\n", len(ch.Modified), len(ch.Added), len(ch.Deleted))
			}
		}
		return nil
	},
}

var ledgerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the chain without verifying it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openWorkspace()
		if err != nil {
			return err
		}
		res, err := s.ledger.Status()
		if err != nil {
			return err
		}
		if jsonOutput {
			if err := outputJSON(cmd, res); err != nil {
				return err
			}
			return exitWith(res.ExitCode())
		}
		if !res.Initialized {
			printf(cmd, "No ledger. Run %s to create one.\n", color.Code("clawguard ledger init"))
			return exitWith(res.ExitCode())
		}
		printf(cmd, "Entries:        %d\n", res.Entries)
		switch {
		case res.Entries == 0:
			printf(cmd, "Last entry:     %s\n", color.Error("none, chain was emptied; run 'clawguard ledger verify'"))
		case res.LastCorrupt:
			printf(cmd, "Last entry:     %s\n", color.Error("corrupt"))
		default:
			printf(cmd, "Last entry:     %s\n", res.LastTimestamp)
		}
		printf(cmd, "Frozen backups: %d\n", res.FrozenBackups)
		return exitWith(res.ExitCode())
	},
}

var ledgerFreezeCmd = &cobra.Command{
	Use:   "freeze",
	Short: "Copy the chain into a read-only backup",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var res *ledger.FreezeResult
		err := lockedLedger(cmd, "ledger freeze", func(l *ledger.Ledger) error {
			var err error
			res, err = l.Freeze()
			return err
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, res)
		}
		printf(cmd, "%s %s (%d entries)\n", color.Success("frozen"), res.Backup.Name, res.EntryCount)
		if !res.ChainIntact {
			printf(cmd, "  %s\n", color.Warning("chain was broken when frozen"))
		}
		printf(cmd, "  %d backups kept\n", len(res.Backups))
		return nil
	},
}

var ledgerForensicsCmd = &cobra.Command{
	Use:   "forensics",
	Short: "Analyze the timeline for anomalies",
	Long: `Reconstruct the timeline between --from and --to and report time gaps,
bulk changes, duplicate and regressing timestamps. The run itself is recorded.
Exit code 2 when the chain is broken, 1 when anomalies were found.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var rep *ledger.ForensicsReport
		err := lockedLedger(cmd, "ledger forensics", func(l *ledger.Ledger) error {
			var err error
			rep, err = l.Forensics(forensicsFrom, forensicsTo)
			return err
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			if err := outputJSON(cmd, rep); err != nil {
				return err
			}
			return exitWith(rep.ExitCode())
		}

		chain := "intact"
		if !rep.Chain.Intact {
			chain = "broken"
		}
		printf(cmd, "%s\n", color.Header("Forensic analysis"))
		printf(cmd, "  Entries:  %d (%d corrupt)\n", rep.TotalEntries, rep.CorruptEntries)
		printf(cmd, "  Chain:    %s\n", color.Status(chain))
		printf(cmd, "  Sessions: %d\n", rep.Sessions)
		printf(cmd, "  Changes:  %dM %dA %dD\n", rep.ChangeTotals.Modified, rep.ChangeTotals.Added, rep.ChangeTotals.Deleted)
		if len(rep.Anomalies) == 0 {
			printf(cmd, "  No anomalies\n")
			return exitWith(rep.ExitCode())
		}
		printf(cmd, "  Anomalies (%d):\n", len(rep.Anomalies))
		for _, a := range rep.Anomalies {
			if a.Entry > 0 {
				printf(cmd, "    [%s] entry %d: %s\n", color.Warning(a.Type), a.Entry, a.Detail)
			} else {
				printf(cmd, "    [%s] %s\n", color.Warning(a.Type), a.Detail)
			}
		}
		return exitWith(rep.ExitCode())
	},
}

var ledgerRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the chain with a verified frozen backup",
	Long: `Replace the live chain with the newest freeze backup, or the newest backup
whose name contains --from-frozen. The current chain is preserved as a
pre-restore backup first. A broken backup is never restored.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var res *ledger.RestoreResult
		err := lockedLedger(cmd, "ledger restore", func(l *ledger.Ledger) error {
			var err error
			res, err = l.Restore(restoreFrozen)
			return err
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, res)
		}
		printf(cmd, "%s from %s (%d entries)\n", color.Success("restored"), res.Source.Name, res.Entries)
		if res.PreRestoreBackup != "" {
			printf(cmd, "  previous chain kept as %s\n", res.PreRestoreBackup)
		}
		return nil
	},
}

var ledgerExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the chain for archival or review",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportFormat != "json" && exportFormat != "text" {
			return usageError("--format must be json or text")
		}
		s, err := openWorkspace()
		if err != nil {
			return err
		}
		x, err := s.ledger.Export()
		if err != nil {
			return err
		}
		if jsonOutput || exportFormat == "json" {
			return outputJSON(cmd, x)
		}
		return x.WriteText(cmd.OutOrStdout())
	},
}

var ledgerProtectCmd = &cobra.Command{
	Use:   "protect",
	Short: "Initialize, repair and record in one sweep",
	Long: `Initialize the ledger if needed. A broken chain is preserved as evidence
and repaired from the newest clean backup. Workspace changes are recorded.
Exit code 2 when the chain was broken, 1 when changes were recorded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var res *ledger.ProtectResult
		err := lockedLedger(cmd, "ledger protect", func(l *ledger.Ledger) error {
			var err error
			res, err = l.Protect()
			return err
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			if err := outputJSON(cmd, res); err != nil {
				return err
			}
			return exitWith(res.ExitCode)
		}
		if len(res.Actions) == 0 {
			printf(cmd, "Ledger intact, no changes\n")
		}
		for _, a := range res.Actions {
			printf(cmd, "  %s\n", a)
		}
		return exitWith(res.ExitCode)
	},
}

func init() {
	ledgerRecordCmd.Flags().StringVarP(&recordMessage, "message", "m", "", "message for the record entry")
	ledgerLogCmd.Flags().IntVarP(&logLimit, "limit", "n", 10, "number of entries to show (0 for all)")
	ledgerForensicsCmd.Flags().StringVar(&forensicsFrom, "from", "", "start of the analyzed window (RFC 3339 or YYYY-MM-DD)")
	ledgerForensicsCmd.Flags().StringVar(&forensicsTo, "to", "", "end of the analyzed window, inclusive; a date covers the whole day")
	ledgerRestoreCmd.Flags().StringVar(&restoreFrozen, "from-frozen", "", "backup name or substring to restore from")
	ledgerExportCmd.Flags().StringVar(&exportFormat, "format", "json", "export format: json or text")

	ledgerCmd.AddCommand(
		ledgerInitCmd,
		ledgerRecordCmd,
		ledgerVerifyCmd,
		ledgerLogCmd,
		ledgerStatusCmd,
		ledgerFreezeCmd,
		ledgerForensicsCmd,
		ledgerRestoreCmd,
		ledgerExportCmd,
		ledgerProtectCmd,
	)
	rootCmd.AddCommand(ledgerCmd)
}
