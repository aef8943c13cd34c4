package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/callproxy/internal/delegation"
	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/policydiff"
)

var (
	delegationJSON      bool
	delegationScopeFile string
)

func init() {
	rootCmd.AddCommand(delegationCmd)
	delegationCmd.AddCommand(delegationGetCmd, delegationListCmd, delegationSweepCmd, delegationDiffCmd)
	delegationCmd.PersistentFlags().BoolVar(&delegationJSON, "json", false, "Print JSON")
	delegationDiffCmd.Flags().StringVarP(&delegationScopeFile, "scope", "s", "", "Path to proposed scope YAML (required)")
	delegationDiffCmd.MarkFlagRequired("scope")
}

var delegationCmd = &cobra.Command{
	Use:   "delegation",
	Short: "Inspect delegations",
}

var delegationGetCmd = &cobra.Command{
	Use:   "get <delegate>",
	Short: "Show a delegate's delegation",
	Long:  "Shows the stored delegation without an expiry check. Delegates may look up themselves.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		delegate, err := parsePrincipalArg("delegate", args[0])
		if err != nil {
			return err
		}
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		d, ok, err := c.Delegation(context.Background(), delegate)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("%s holds no delegation\n", delegate)
			return nil
		}
		if delegationJSON {
			return printJSON(d)
		}
		printDelegation(d)
		return nil
	},
}

var delegationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all delegations",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		list, err := c.Delegations(context.Background())
		if err != nil {
			return err
		}
		if delegationJSON {
			return printJSON(list)
		}
		if len(list) == 0 {
			fmt.Println("No delegations.")
			return nil
		}
		now := time.Now()
		fmt.Printf("%-64s %-8s %-7s %s\n", "DELEGATE", "TARGETS", "LIVE", "EXPIRES")
		for _, d := range list {
			fmt.Printf("%-64s %-8d %-7v %s\n", d.Delegate, len(d.Scope), d.LiveAt(now), formatTime(d.ExpiresAt))
		}
		return nil
	},
}

var delegationSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Evict expired delegations",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		n, err := c.SweepExpired(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("Evicted %d expired delegation(s)\n", n)
		return nil
	},
}

var delegationDiffCmd = &cobra.Command{
	Use:   "diff <delegate>",
	Short: "Compare a delegate's scope with a scope file before granting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		delegate, err := parsePrincipalArg("delegate", args[0])
		if err != nil {
			return err
		}
		proposed, err := delegation.LoadScope(delegationScopeFile)
		if err != nil {
			return err
		}
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		current, _, err := c.Delegation(context.Background(), delegate)
		if err != nil {
			return err
		}

		r := policydiff.DiffScope(current.Scope, proposed)
		r.OldPath, r.NewPath = delegate.Text(), delegationScopeFile
		return printDiff(r, delegationJSON)
	},
}

func printDelegation(d model.Delegation) {
	fmt.Printf("Delegate: %s\n", d.Delegate)
	fmt.Printf("Granted:  %s\n", formatTime(d.GrantedAt))
	fmt.Printf("Expires:  %s\n", formatTime(d.ExpiresAt))
	for _, s := range d.Scope {
		fmt.Printf("  %s\n", s.Target)
		names := make([]string, 0, len(s.Methods))
		for name := range s.Methods {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			m := s.Methods[name]
			key := ""
			if m.KeyOperation {
				key = " key"
			}
			fmt.Printf("    %-32s %s%s\n", name, m.Type, key)
		}
	}
}
