package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/callproxy/internal/identity"
	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/settings"
	"github.com/ppiankov/callproxy/internal/sim"
	"github.com/ppiankov/callproxy/internal/snapshot"
)

var simJSON bool

func init() {
	rootCmd.AddCommand(simCmd)
	simCmd.Flags().BoolVar(&simJSON, "json", false, "Print JSON")
	simCmd.Flags().StringVar(&auditPath, "log", "", "Audit log path (default: audit_log from config)")
}

var simCmd = &cobra.Command{
	Use:   "sim <proposed-config>",
	Short: "Replay recorded decisions against a proposed config",
	Long: `Re-evaluates every recorded call decision with the validation mode and
denylist of the proposed config, using the owners and the saved
delegations of the current config. Reports calls that would be decided
differently.`,
	Args: cobra.ExactArgs(1),
	RunE: runSim,
}

func runSim(cmd *cobra.Command, args []string) error {
	current, err := settings.LoadConfig(configPath)
	if err != nil {
		return err
	}
	proposed, err := settings.LoadConfig(args[0])
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	logPath, err := resolveAuditPath()
	if err != nil {
		return err
	}

	owners, err := identity.LoadOwners(ownersPath(current))
	if err != nil {
		return err
	}
	delegations, err := savedDelegations(current)
	if err != nil {
		return err
	}

	res, err := sim.Simulate(sim.Input{
		LogPath:     logPath,
		ConfigPath:  args[0],
		Config:      proposed,
		Delegations: delegations,
		IsOwner:     owners.IsOwner,
	})
	if err != nil {
		return err
	}

	if simJSON {
		out, err := sim.FormatJSON(res)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}
	fmt.Print(sim.FormatText(res))
	return nil
}

// savedDelegations reads delegations from the config's state store.
func savedDelegations(cfg *settings.Config) ([]model.Delegation, error) {
	if cfg.State == "" {
		return nil, nil
	}
	store, err := snapshot.Open(cfg.State)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	st, err := store.Load(context.Background())
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, nil
	}
	return st.Delegations, nil
}
