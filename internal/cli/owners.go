package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/callproxy/internal/identity"
	"github.com/ppiankov/callproxy/internal/settings"
)

func init() {
	rootCmd.AddCommand(ownersCmd)
	ownersCmd.AddCommand(ownersListCmd, ownersAddCmd, ownersRemoveCmd)
}

var ownersCmd = &cobra.Command{
	Use:   "owners",
	Short: "Edit the local owners file",
	Long: `Edits the owners file named by the config. A running server reloads
the file on change.`,
}

var ownersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List owners",
	RunE: func(cmd *cobra.Command, args []string) error {
		owners, err := openOwners()
		if err != nil {
			return err
		}
		if owners.Len() == 0 {
			fmt.Printf("No owners in %s\n", owners.Path())
			return nil
		}
		for _, id := range owners.List() {
			fmt.Println(id)
		}
		return nil
	},
}

var ownersAddCmd = &cobra.Command{
	Use:   "add <principal>",
	Short: "Add an owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePrincipalArg("owner", args[0])
		if err != nil {
			return err
		}
		owners, err := openOwners()
		if err != nil {
			return err
		}
		if !owners.Add(id) {
			fmt.Printf("%s is already an owner\n", id)
			return nil
		}
		if err := owners.Save(); err != nil {
			return err
		}
		fmt.Printf("Added %s to %s\n", id, owners.Path())
		return nil
	},
}

var ownersRemoveCmd = &cobra.Command{
	Use:   "remove <principal>",
	Short: "Remove an owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePrincipalArg("owner", args[0])
		if err != nil {
			return err
		}
		owners, err := openOwners()
		if err != nil {
			return err
		}
		if !owners.Remove(id) {
			fmt.Printf("%s is not an owner\n", id)
			return nil
		}
		if err := owners.Save(); err != nil {
			return err
		}
		fmt.Printf("Removed %s from %s\n", id, owners.Path())
		return nil
	},
}

func openOwners() (*identity.Owners, error) {
	cfg, err := settings.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return identity.LoadOwners(ownersPath(cfg))
}
