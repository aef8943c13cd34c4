package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/callproxy/internal/policydiff"
	"github.com/ppiankov/callproxy/internal/settings"
)

var configDiffJSON bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configCheckCmd, configDiffCmd)
	configDiffCmd.Flags().BoolVar(&configDiffJSON, "json", false, "Print JSON")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Check and compare proxy configs",
}

var configCheckCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Validate a config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		cfg, err := settings.LoadConfig(path)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		fmt.Printf("OK: %d target(s), %d denied, mode %s\n", len(cfg.Targets), len(cfg.Denylist), cfg.ValidationMode)
		return nil
	},
}

var configDiffCmd = &cobra.Command{
	Use:   "diff <old> <new>",
	Short: "Show how a config change affects authorization",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldCfg, err := settings.LoadConfig(args[0])
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		newCfg, err := settings.LoadConfig(args[1])
		if err != nil {
			return fmt.Errorf("%s: %w", args[1], err)
		}

		r := policydiff.Diff(oldCfg, newCfg)
		r.OldPath, r.NewPath = args[0], args[1]
		return printDiff(r, configDiffJSON)
	},
}

func printDiff(r *policydiff.DiffResult, asJSON bool) error {
	if asJSON {
		out, err := policydiff.FormatJSON(r)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}
	fmt.Print(policydiff.FormatText(r))
	return nil
}
