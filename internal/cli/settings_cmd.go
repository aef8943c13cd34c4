package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	pb "github.com/ppiankov/callproxy/api/callproxy/v1"
	"github.com/ppiankov/callproxy/internal/model"
)

var settingsJSON bool

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsLifetimeCmd, settingsModeCmd)
	settingsCmd.PersistentFlags().BoolVar(&settingsJSON, "json", false, "Print JSON")
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change proxy settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show settings and the denylist",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		s, err := c.Settings(context.Background())
		if err != nil {
			return err
		}
		return printSettings(s)
	},
}

var settingsLifetimeCmd = &cobra.Command{
	Use:   "set-lifetime <duration>",
	Short: "Set the default delegation lifetime",
	Long:  "Sets the lifetime used when a grant names none. Existing delegations keep their expiry.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", args[0], err)
		}
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		s, err := c.SetDefaultLifetime(context.Background(), d)
		if err != nil {
			return err
		}
		return printSettings(s)
	},
}

var settingsModeCmd = &cobra.Command{
	Use:   "set-mode <all|update|key>",
	Short: "Set which delegated calls require owner approval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := model.ParseValidationMode(args[0])
		if err != nil {
			return err
		}
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		s, err := c.SetValidationMode(context.Background(), mode)
		if err != nil {
			return err
		}
		return printSettings(s)
	},
}

func printSettings(s *pb.SettingsResponse) error {
	if settingsJSON {
		return printJSON(s)
	}
	fmt.Printf("Default lifetime: %s\n", s.DefaultLifetime)
	fmt.Printf("Validation mode:  %s\n", s.Mode)
	if len(s.Denylist) == 0 {
		fmt.Println("Denylist:         (empty)")
		return nil
	}
	fmt.Println("Denylist:")
	for _, e := range s.Denylist {
		fmt.Printf("  %-64s %s\n", e.Target, e.Label)
	}
	return nil
}
