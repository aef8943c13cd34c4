package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var denylistLabel string

func init() {
	rootCmd.AddCommand(denylistCmd)
	denylistCmd.AddCommand(denylistAddCmd, denylistRemoveCmd, denylistCheckCmd)
	denylistAddCmd.Flags().StringVarP(&denylistLabel, "label", "l", "", "Label for the entry")
}

var denylistCmd = &cobra.Command{
	Use:   "denylist",
	Short: "Manage targets no caller may reach",
}

var denylistAddCmd = &cobra.Command{
	Use:   "add <target>",
	Short: "Deny all calls to a target, including the owner's",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := parsePrincipalArg("target", args[0])
		if err != nil {
			return err
		}
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		label, err := c.AddDenied(context.Background(), target, denylistLabel)
		if err != nil {
			return err
		}
		fmt.Printf("Denied %s (%s)\n", target, label)
		return nil
	},
}

var denylistRemoveCmd = &cobra.Command{
	Use:   "remove <target>",
	Short: "Allow calls to a denied target again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := parsePrincipalArg("target", args[0])
		if err != nil {
			return err
		}
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		label, err := c.RemoveDenied(context.Background(), target)
		if err != nil {
			return err
		}
		if label == "" {
			fmt.Printf("%s was not denied\n", target)
			return nil
		}
		fmt.Printf("Removed %s (%s)\n", target, label)
		return nil
	},
}

var denylistCheckCmd = &cobra.Command{
	Use:   "check <target>",
	Short: "Report whether a target is denied",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := parsePrincipalArg("target", args[0])
		if err != nil {
			return err
		}
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		denied, err := c.IsDenied(context.Background(), target)
		if err != nil {
			return err
		}
		fmt.Println(denied)
		return nil
	},
}
