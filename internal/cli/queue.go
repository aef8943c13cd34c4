package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var queueJSON bool

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueHasCmd, queueReplyCmd, queueGetCmd, queueListCmd, queuePendingCmd, queueRemoveCmd)
	queueCmd.PersistentFlags().BoolVar(&queueJSON, "json", false, "Print JSON")
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the approval queue",
}

var queueHasCmd = &cobra.Command{
	Use:   "has <hash>",
	Short: "Report whether a hash is queued",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		ok, err := c.HasQueued(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(ok)
		return nil
	},
}

var queueReplyCmd = &cobra.Command{
	Use:   "reply <hash>",
	Short: "Show the disposition of a queued call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		d, ok, err := c.QueueReply(context.Background(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no queued call %s", args[0])
		}
		fmt.Println(describeDisposition(d))
		return nil
	},
}

var queueGetCmd = &cobra.Command{
	Use:   "get <hash>",
	Short: "Show a queued call",
	Long:  "Shows a queued call. Delegates may only read calls they submitted.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		e, err := c.Queued(context.Background(), args[0])
		if err != nil {
			return err
		}
		if queueJSON {
			return printJSON(e)
		}
		fmt.Printf("Hash:        %s\n", e.Hash)
		fmt.Printf("Requester:   %s\n", e.Requester)
		fmt.Printf("Created:     %s\n", formatTime(e.CreatedAt))
		fmt.Printf("Target:      %s\n", e.Target)
		fmt.Printf("Method:      %s\n", e.Method)
		fmt.Printf("Args:        %s\n", truncate(formatBytes(e.Args), 72))
		fmt.Printf("Amount:      %s\n", e.Amount)
		fmt.Printf("Disposition: %s\n", e.Disposition.Kind)
		if e.ResolvedAt != nil {
			fmt.Printf("Resolved:    %s\n", formatTime(*e.ResolvedAt))
		}
		if out := e.Disposition.Outcome; out != nil {
			if out.OK() {
				fmt.Printf("Reply:       %s\n", truncate(formatBytes(out.Return), 72))
			} else {
				fmt.Printf("Error:       %s\n", out.Err)
			}
		}
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list <user>",
	Short: "List a user's resolved calls",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := parsePrincipalArg("user", args[0])
		if err != nil {
			return err
		}
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		list, err := c.ListResolved(context.Background(), user)
		if err != nil {
			return err
		}
		if queueJSON {
			return printJSON(list)
		}
		if len(list) == 0 {
			fmt.Printf("No resolved calls for %s.\n", user)
			return nil
		}
		fmt.Printf("%-64s %s\n", "HASH", "CREATED")
		for _, s := range list {
			fmt.Printf("%-64s %s\n", s.Hash, formatTime(s.CreatedAt))
		}
		return nil
	},
}

var queuePendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List calls awaiting approval",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		list, err := c.ListPending(context.Background())
		if err != nil {
			return err
		}
		if queueJSON {
			return printJSON(list)
		}
		if len(list) == 0 {
			fmt.Println("No pending calls.")
			return nil
		}
		fmt.Printf("%-16s %-24s %-24s %-20s %s\n", "HASH", "REQUESTER", "TARGET", "METHOD", "CREATED")
		for _, e := range list {
			fmt.Printf("%-16s %-24s %-24s %-20s %s\n",
				e.Hash[:16], truncate(e.Requester.Text(), 24), truncate(e.Target.Text(), 24),
				truncate(e.Method, 20), formatTime(e.CreatedAt))
		}
		return nil
	},
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <hash>",
	Short: "Remove a queued call",
	Long:  "Removes a queued call. Delegates may only remove calls they submitted.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		ok, err := c.RemoveQueued(context.Background(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("No queued call %s\n", args[0])
			return nil
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}
