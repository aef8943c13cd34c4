package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/callproxy/internal/client"
	"github.com/ppiankov/callproxy/internal/model"
)

var (
	callArgsHex  string
	callArgsFile string
	callAmount   string
	callTimeout  time.Duration
	callRaw      bool
)

func init() {
	rootCmd.AddCommand(callCmd)
	callCmd.Flags().StringVar(&callArgsHex, "args-hex", "", "Call arguments as hex")
	callCmd.Flags().StringVar(&callArgsFile, "args-file", "", "Read call arguments from a file")
	callCmd.Flags().StringVar(&callAmount, "amount", "0", "Amount transferred with the call (decimal, up to 128 bits)")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 30*time.Second, "Call timeout")
	callCmd.Flags().BoolVar(&callRaw, "raw", false, "Write the reply bytes to stdout unchanged")
}

var callCmd = &cobra.Command{
	Use:   "call <target> <method>",
	Short: "Forward a call through the proxy",
	Long: `Asks the proxy to forward a method call. The call is executed at once,
refused, or queued for owner approval; a queued call prints its hash.`,
	Args: cobra.ExactArgs(2),
	RunE: runCall,
}

func runCall(cmd *cobra.Command, args []string) error {
	target, err := parsePrincipalArg("target", args[0])
	if err != nil {
		return err
	}
	req := model.CallRequest{Target: target, Method: args[1]}

	switch {
	case callArgsHex != "" && callArgsFile != "":
		return fmt.Errorf("--args-hex and --args-file are mutually exclusive")
	case callArgsHex != "":
		if req.Args, err = hex.DecodeString(callArgsHex); err != nil {
			return fmt.Errorf("--args-hex: %w", err)
		}
	case callArgsFile != "":
		if req.Args, err = os.ReadFile(callArgsFile); err != nil {
			return fmt.Errorf("--args-file: %w", err)
		}
	}
	if req.Amount, err = model.ParseAmount(callAmount); err != nil {
		return fmt.Errorf("--amount: %w", err)
	}

	c, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()
	client.WithTimeout(callTimeout)(c)

	resp, err := c.Call(context.Background(), req)
	if err != nil {
		return err
	}
	if resp.Queued {
		fmt.Fprintf(os.Stderr, "Queued for owner approval.\n")
		fmt.Println(resp.QueueHash)
		return nil
	}
	if callRaw {
		_, err := os.Stdout.Write(resp.Return)
		return err
	}
	fmt.Println(formatBytes(resp.Return))
	return nil
}
