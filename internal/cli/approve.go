package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/callproxy/internal/approval"
	"github.com/ppiankov/callproxy/internal/client"
)

func init() {
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
}

var approveCmd = &cobra.Command{
	Use:   "approve <hash>",
	Short: "Approve a queued call and forward it",
	Long:  "Forwards the queued call and stores its outcome. A failed forward is\nstored as the approved outcome; the entry never stays pending. Owner only.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfirm(args[0], true)
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <hash>",
	Short: "Reject a queued call without forwarding it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfirm(args[0], false)
	},
}

func runConfirm(hash string, approve bool) error {
	c, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()
	client.WithTimeout(0)(c)

	d, err := c.Confirm(context.Background(), hash, approve)
	if err != nil {
		return err
	}
	fmt.Println(describeDisposition(d))
	return nil
}

func describeDisposition(d approval.Disposition) string {
	switch d := d.(type) {
	case approval.Pending:
		return "pending"
	case approval.Rejected:
		return "rejected"
	case approval.Approved:
		if !d.Outcome.OK() {
			return "approved, call failed: " + d.Outcome.Err
		}
		return "approved, reply: " + formatBytes(d.Outcome.Return)
	default:
		return fmt.Sprintf("unknown disposition %T", d)
	}
}
