package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the proxy identity and the caller's standing",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		st, err := c.Status(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("Proxy:    %s\n", st.Self)
		fmt.Printf("Caller:   %s\n", st.Caller)
		fmt.Printf("Owner:    %v\n", st.IsOwner)
		fmt.Printf("Delegate: %v\n", st.LiveDelegate)
		return nil
	},
}
