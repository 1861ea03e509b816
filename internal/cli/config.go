package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openclaw/clawguard/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config <command>",
	Short: "Manage clawguard configuration",
	Long: `Manage clawguard configuration stored in .clawguard.yaml in the workspace root.

Configuration options:
  skills_dir                - Skills directory relative to the workspace root
  skill_marker              - File that marks a directory as a skill
  self_skills               - Skills owned by clawguard itself, never verified (list)
  exclude                   - Glob patterns skipped when hashing (list)
  protect.reject_unsigned   - Reject unsigned skills during protect (true, false)
  forensics.gap_seconds     - Time gap reported as an anomaly
  forensics.bulk_threshold  - File changes in one entry reported as bulk
  logging.level             - Log level (debug, info, warn, error)
  logging.format            - Log format (text, json)

Available commands:
  show              - Show current configuration
  set <key> <value> - Set a configuration value
  get <key>         - Get a configuration value`,
	DisableFlagsInUseLine: true,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openWorkspace()
		if err != nil {
			return err
		}
		cfg := s.ws.Config

		if jsonOutput {
			return outputJSON(cmd, cfg)
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		printf(cmd, "# clawguard configuration\n# Location: %s\n\n%s", config.Path(s.ws.Root), data)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in .clawguard.yaml. List keys take
comma-separated values.

Examples:
  clawguard config set protect.reject_unsigned true
  clawguard config set exclude "**/*.pyc,**/.DS_Store"
  clawguard config set logging.format json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openWorkspace()
		if err != nil {
			return err
		}
		cfg := s.ws.Config
		key, value := args[0], args[1]
		if err := cfg.Set(key, value); err != nil {
			return usageError(err.Error())
		}
		if err := config.Save(s.ws.Root, cfg); err != nil {
			return err
		}
		printf(cmd, "Set %s = %s\n", key, value)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openWorkspace()
		if err != nil {
			return err
		}
		key := args[0]
		value, err := s.ws.Config.Get(key)
		if err != nil {
			return usageError(fmt.Sprintf("%v (keys: %s)", err, strings.Join(config.Keys(), ", ")))
		}
		if value == "" {
			printf(cmd, "%s (not set)\n", key)
			return nil
		}
		printf(cmd, "%s\n", value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	rootCmd.AddCommand(configCmd)
}
