package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openclaw/clawguard/internal/manifest"
	"github.com/openclaw/clawguard/internal/quarantine"
	"github.com/openclaw/clawguard/internal/verify"
	"github.com/openclaw/clawguard/pkg/color"
	"github.com/openclaw/clawguard/pkg/model"
)

var signCmd = &cobra.Command{
	Use:   "sign [skill]",
	Short: "Record the current state of skills as trusted",
	Long: `Hash every file of the named skill, or of every active skill, and record
the result in the trust manifest. Signing replaces the previous baseline.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openWorkspace()
		if err != nil {
			return err
		}
		var signed []manifest.Signed
		err = s.withLock("sign", func() error {
			var err error
			signed, err = s.store.Sign(args...)
			return err
		})
		if err != nil {
			return notFoundHint(s, err, args)
		}

		if jsonOutput {
			return outputJSON(cmd, signed)
		}
		if len(signed) == 0 {
			printf(cmd, "No skills found in %s\n", s.ws.SkillsDir)
			return nil
		}
		for _, sg := range signed {
			printf(cmd, "%s %s %s (%d files)\n", color.Success("signed"), color.Highlight(sg.Skill),
				color.Dim(sg.CompositeHash.Short()), sg.FileCount)
			if sg.Skipped > 0 {
				printf(cmd, "  %s\n", color.Warningf("%d unreadable files skipped", sg.Skipped))
			}
		}
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify [skill]",
	Short: "Check skills against the trust manifest",
	Long: `Classify each skill as verified, tampered, unsigned, missing or quarantined.
Exit code 2 when a skill is tampered or missing, 1 when one is unsigned.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openWorkspace()
		if err != nil {
			return err
		}
		opts := verify.Options{}
		if len(args) == 1 {
			opts.Skill = args[0]
		}
		cb, finish := progressFor(cmd)
		opts.Progress = cb
		report, err := verify.NewVerifier(s.ws, s.store).Sweep(opts)
		finish()
		if report == nil {
			return notFoundHint(s, err, args)
		}

		code := report.ExitCode()
		if err != nil {
			fmtErr(cmd.ErrOrStderr(), "%v", err)
			code = max(code, 1)
		}
		if jsonOutput {
			if err := outputJSON(cmd, report); err != nil {
				return err
			}
			return exitWith(code)
		}
		for _, v := range report.All() {
			printVerdict(cmd, v)
		}
		printf(cmd, "\n%d verified, %d tampered, %d unsigned, %d missing, %d quarantined\n",
			len(report.Verified), len(report.Tampered), len(report.Unsigned), len(report.Missing), len(report.Quarantined))
		return exitWith(code)
	},
}

func printVerdict(cmd *cobra.Command, v *manifest.Verdict) {
	printf(cmd, "%-12s %s\n", color.Status(string(v.Status)), color.Highlight(v.Skill))
	if v.Status != model.StatusTampered {
		return
	}
	printf(cmd, "  expected %s\n  actual   %s\n", color.Dim(v.Expected.Short()), color.Dim(v.Actual.Short()))
	if v.Diff == nil {
		return
	}
	for _, group := range []struct {
		tag   string
		paths []string
	}{{"M", v.Diff.Modified}, {"A", v.Diff.Added}, {"D", v.Diff.Removed}} {
		for _, p := range group.paths {
			printf(cmd, "  [%s] %s\n", group.tag, p)
		}
	}
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List skills with their trust status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openWorkspace()
		if err != nil {
			return err
		}
		report, err := verify.NewVerifier(s.ws, s.store).Sweep(verify.Options{})
		if report == nil {
			return err
		}
		isolated, err := quarantine.New(s.ws, s.store, nil).List()
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(cmd, struct {
				Skills   []*manifest.Verdict  `json:"skills"`
				Isolated []quarantine.Listing `json:"isolated"`
			}{report.All(), isolated})
		}
		for _, v := range report.All() {
			hash := v.Actual
			if hash == "" {
				hash = v.Expected
			}
			printf(cmd, "%-32s %-12s %s\n", v.Skill, color.Status(string(v.Status)), color.Dim(hash.Short()))
		}
		for _, l := range isolated {
			if l.State != model.IsolationRejected {
				continue
			}
			printf(cmd, "%-32s %-12s %s\n", l.Skill, color.Status(string(l.State)), color.Dim(l.Location))
		}
		return nil
	},
}

// statusSummary is the JSON shape of `status`.
type statusSummary struct {
	Workspace       string `json:"workspace"`
	ManifestUpdated string `json:"manifest_updated"`
	Signed          int    `json:"signed"`
	Verified        int    `json:"verified"`
	Tampered        int    `json:"tampered"`
	Unsigned        int    `json:"unsigned"`
	Missing         int    `json:"missing"`
	Quarantined     int    `json:"quarantined"`
	Rejected        int    `json:"rejected"`
	LedgerEntries   int    `json:"ledger_entries"`
	ExitCode        int    `json:"exit_code"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize workspace trust state",
	Long: `Summarize the trust manifest, skill classifications, isolated skills and
the ledger. Exit code 2 while any skill is tampered, missing or quarantined.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openWorkspace()
		if err != nil {
			return err
		}
		m, err := s.store.Load()
		if err != nil {
			return err
		}
		report, err := verify.NewVerifier(s.ws, s.store).Sweep(verify.Options{})
		if report == nil {
			return err
		}
		isolated, err := quarantine.New(s.ws, s.store, nil).List()
		if err != nil {
			return err
		}
		ls, err := s.ledger.Status()
		if err != nil {
			return err
		}

		sum := statusSummary{
			Workspace:       s.ws.Root,
			ManifestUpdated: m.Updated,
			Signed:          len(m.Skills),
			Verified:        len(report.Verified),
			Tampered:        len(report.Tampered),
			Unsigned:        len(report.Unsigned),
			Missing:         len(report.Missing),
			LedgerEntries:   ls.Entries,
			ExitCode:        report.ExitCode(),
		}
		for _, l := range isolated {
			switch l.State {
			case model.IsolationQuarantined:
				sum.Quarantined++
			case model.IsolationRejected:
				sum.Rejected++
			}
		}
		if sum.Quarantined > 0 {
			sum.ExitCode = 2
		}

		if jsonOutput {
			if err := outputJSON(cmd, sum); err != nil {
				return err
			}
			return exitWith(sum.ExitCode)
		}
		printf(cmd, "%s\n", color.Header("Workspace "+sum.Workspace))
		printf(cmd, "  Manifest:    %d signed, updated %s\n", sum.Signed, color.Dim(sum.ManifestUpdated))
		printf(cmd, "  Verified:    %d\n", sum.Verified)
		printf(cmd, "  Tampered:    %s\n", countColor(sum.Tampered, color.Error))
		printf(cmd, "  Unsigned:    %s\n", countColor(sum.Unsigned, color.Warning))
		printf(cmd, "  Missing:     %s\n", countColor(sum.Missing, color.Error))
		printf(cmd, "  Quarantined: %s\n", countColor(sum.Quarantined, color.Warning))
		printf(cmd, "  Rejected:    %d\n", sum.Rejected)
		if ls.Initialized {
			printf(cmd, "  Ledger:      %d entries\n", sum.LedgerEntries)
		} else {
			printf(cmd, "  Ledger:      %s\n", color.Dim("not initialized"))
		}
		return exitWith(sum.ExitCode)
	},
}

func countColor(n int, paint func(string) string) string {
	s := fmt.Sprint(n)
	if n == 0 {
		return s
	}
	return paint(s)
}

// joinNames renders skill names for one-line summaries.
func joinNames(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = color.Highlight(n)
	}
	return strings.Join(out, ", ")
}

func init() {
	rootCmd.AddCommand(signCmd, verifyCmd, listCmd, statusCmd)
}
