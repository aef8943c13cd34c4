package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/callproxy/internal/delegation"
)

var (
	grantScopeFile string
	grantLifetime  time.Duration
)

func init() {
	rootCmd.AddCommand(grantCmd)
	grantCmd.Flags().StringVarP(&grantScopeFile, "scope", "s", "", "Path to scope YAML (required)")
	grantCmd.Flags().DurationVar(&grantLifetime, "lifetime", 0, "Delegation lifetime (default: proxy default lifetime)")
	grantCmd.MarkFlagRequired("scope")

	rootCmd.AddCommand(revokeCmd)
}

var grantCmd = &cobra.Command{
	Use:   "grant <delegate>",
	Short: "Grant a delegate scoped forwarding authority",
	Long: `Replaces any delegation the delegate holds with the scope read from
--scope. Owner only.

Scope file:
  scope:
    - target: <principal>
      methods:
        withdraw: {type: update, key_operation: true}
        balance: {type: query}`,
	Args: cobra.ExactArgs(1),
	RunE: runGrant,
}

func runGrant(cmd *cobra.Command, args []string) error {
	delegate, err := parsePrincipalArg("delegate", args[0])
	if err != nil {
		return err
	}
	scope, err := delegation.LoadScope(grantScopeFile)
	if err != nil {
		return err
	}

	var lifetime *time.Duration
	if cmd.Flags().Changed("lifetime") {
		lifetime = &grantLifetime
	}

	c, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()

	d, err := c.Grant(context.Background(), delegate, scope, lifetime)
	if err != nil {
		return err
	}
	fmt.Printf("Granted %s %d target(s) until %s\n", d.Delegate, len(d.Scope), formatTime(d.ExpiresAt))
	return nil
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <delegate>",
	Short: "Revoke a delegation",
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

		ok, err := c.Revoke(context.Background(), delegate)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("%s held no delegation\n", delegate)
			return nil
		}
		fmt.Printf("Revoked %s\n", delegate)
		return nil
	},
}
