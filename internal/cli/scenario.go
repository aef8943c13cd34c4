package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/callproxy/internal/scenario"
	"github.com/ppiankov/callproxy/internal/settings"
)

var scenarioJSON bool

func init() {
	rootCmd.AddCommand(scenarioCmd)
	scenarioCmd.AddCommand(scenarioRunCmd)
	scenarioRunCmd.Flags().BoolVar(&scenarioJSON, "json", false, "Print JSON")
}

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Check authorization decisions against scenario files",
}

var scenarioRunCmd = &cobra.Command{
	Use:   "run <file>...",
	Short: "Run scenario files against the current config",
	Long: `Evaluates each case in the given scenario files with the validation
mode and denylist of the current config. A scenario may override the
mode and add denylist entries. Exits non-zero when any case fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScenarios,
}

func runScenarios(cmd *cobra.Command, args []string) error {
	cfg, err := settings.LoadConfig(configPath)
	if err != nil {
		return err
	}

	var results []*scenario.RunResult
	failed := false
	for _, path := range args {
		r, err := scenario.LoadAndRun(path, cfg)
		if err != nil {
			return err
		}
		if r.Failed > 0 {
			failed = true
		}
		results = append(results, r)
	}

	if scenarioJSON {
		out, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Println(out)
	} else {
		fmt.Print(scenario.FormatText(results))
	}

	if failed {
		os.Exit(1)
	}
	return nil
}
