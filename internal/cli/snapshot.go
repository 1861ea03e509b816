package cli

import (
	"github.com/spf13/cobra"

	"github.com/openclaw/clawguard/internal/restore"
	"github.com/openclaw/clawguard/internal/snapshot"
	"github.com/openclaw/clawguard/pkg/color"
	"github.com/openclaw/clawguard/pkg/model"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <skill>",
	Short: "Take a trusted copy of a verified skill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openWorkspace()
		if err != nil {
			return err
		}
		var meta *model.SnapshotMeta
		err = s.withLock("snapshot", func() error {
			var err error
			meta, err = snapshot.NewCreator(s.ws, s.store, s.recorder()).Create(args[0])
			return err
		})
		if err != nil {
			return notFoundHint(s, err, args)
		}

		if jsonOutput {
			return outputJSON(cmd, meta)
		}
		printf(cmd, "%s %s %s (%d files)\n", color.Success("snapshot"), color.Highlight(meta.Skill),
			color.Dim(meta.CompositeHash.Short()), meta.FileCount)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <skill>",
	Short: "Replace a skill with its trusted snapshot",
	Long: `Verify the snapshot against its recorded hash, then swap it in for the
active skill. A snapshot that fails verification is never restored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openWorkspace()
		if err != nil {
			return err
		}
		var res *restore.Result
		err = s.withLock("restore", func() error {
			var err error
			res, err = restore.NewRestorer(s.ws, s.store, s.recorder()).Restore(args[0])
			return err
		})
		if err != nil {
			return notFoundHint(s, err, args)
		}

		if jsonOutput {
			return outputJSON(cmd, res)
		}
		verb := "restored"
		if !res.Replaced {
			verb = "reinstated"
		}
		printf(cmd, "%s %s %s (%d files)\n", color.Success(verb), color.Highlight(res.Skill),
			color.Dim(res.CompositeHash.Short()), res.FileCount)
		if res.ManifestUpdated {
			printf(cmd, "  trust manifest updated from snapshot\n")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd, restoreCmd)
}
