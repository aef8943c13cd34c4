package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/callproxy/internal/principal"
)

func init() {
	rootCmd.AddCommand(principalCmd)
	principalCmd.AddCommand(principalParseCmd, principalFromHexCmd)
}

var principalCmd = &cobra.Command{
	Use:   "principal",
	Short: "Convert principal identifiers",
}

var principalParseCmd = &cobra.Command{
	Use:   "parse <text>",
	Short: "Validate a principal and print its raw bytes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := principal.Parse(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Text:  %s\n", id)
		fmt.Printf("Hex:   %s\n", id.Hex())
		fmt.Printf("Bytes: %d\n", id.Len())
		return nil
	},
}

var principalFromHexCmd = &cobra.Command{
	Use:   "from-hex <hex>",
	Short: "Print the textual form of raw principal bytes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := principal.FromHex(args[0])
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}
