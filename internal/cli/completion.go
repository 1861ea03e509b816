package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for clawguard.

To load completions for your shell:

Bash:
  source <(clawguard completion bash)

Zsh:
  clawguard completion zsh > "${fpath[1]}/_clawguard"

Fish:
  clawguard completion fish | source

PowerShell:
  clawguard completion powershell | Out-String | Invoke-Expression`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch shell := args[0]; shell {
		case "bash":
			return cmd.Root().GenBashCompletion(out)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		default:
			return usageError(fmt.Sprintf("unsupported shell type: %s", shell))
		}
	},
}

// completeSkills offers known skill names for positional arguments.
func completeSkills(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	s, err := openWorkspace()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return knownSkills(s), cobra.ShellCompDirectiveNoFileComp
}

func init() {
	for _, c := range []*cobra.Command{signCmd, verifyCmd, quarantineCmd, unquarantineCmd, rejectCmd, snapshotCmd, restoreCmd} {
		c.ValidArgsFunction = completeSkills
	}
	rootCmd.AddCommand(completionCmd)
}
