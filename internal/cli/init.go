package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/callproxy/internal/identity"
	"github.com/ppiankov/callproxy/internal/principal"
	"github.com/ppiankov/callproxy/internal/settings"
	"github.com/ppiankov/callproxy/internal/systemd"
)

var (
	initOwner   string
	initForce   bool
	initSystemd bool
)

func init() {
	initCmd.Flags().StringVar(&initOwner, "owner", "", "Principal to record as the first owner")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	initCmd.Flags().BoolVar(&initSystemd, "systemd", false, "Also generate a systemd unit for serve")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap callproxy configuration",
	Long: `Creates ~/.callproxy/ with a starter config.yaml and, with --owner,
an owners.yaml naming the first owner. Edit config.yaml to set the
proxy's own principal and its targets before running serve.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir := settings.DefaultDir()
	if configDir == "" {
		return fmt.Errorf("cannot determine home directory")
	}
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	var created []string

	configFile := filepath.Join(configDir, "config.yaml")
	if wrote, err := writeIfMissing(configFile, settings.DefaultConfigYAML()); err != nil {
		return err
	} else if wrote {
		created = append(created, configFile)
	}

	if initOwner != "" {
		id, err := principal.Parse(initOwner)
		if err != nil {
			return fmt.Errorf("--owner: %w", err)
		}
		ownersFile := filepath.Join(configDir, "owners.yaml")
		if _, err := os.Stat(ownersFile); err == nil && !initForce {
			fmt.Printf("  skip %s (exists, use --force to overwrite)\n", ownersFile)
		} else {
			owners := identity.NewOwnersAt(ownersFile, id)
			if err := owners.Save(); err != nil {
				return fmt.Errorf("write owners file: %w", err)
			}
			created = append(created, ownersFile)
		}
	}

	if initSystemd {
		binary, err := os.Executable()
		if err != nil {
			binary = "/usr/local/bin/callproxy"
		}
		unitFile := filepath.Join(configDir, systemd.UnitName)
		wrote, err := writeIfMissing(unitFile, systemd.ServeUnit(binary, configFile))
		if err != nil {
			return err
		}
		if wrote {
			if err := systemd.RecordUnitFileHash(unitFile, unitHashPath(configDir)); err != nil {
				return fmt.Errorf("record unit hash: %w", err)
			}
			created = append(created, unitFile)
			fmt.Printf("  install with: sudo cp %s /etc/systemd/system/\n", unitFile)
		}
	}

	if len(created) == 0 {
		fmt.Println("Nothing to do: configuration already exists.")
		return nil
	}
	for _, path := range created {
		fmt.Printf("  created %s\n", path)
	}
	return nil
}

func unitHashPath(configDir string) string {
	return filepath.Join(configDir, systemd.UnitName+".sha256")
}

// writeIfMissing writes content to path unless it exists and --force is
// not set. Reports whether it wrote.
func writeIfMissing(path, content string) (bool, error) {
	if _, err := os.Stat(path); err == nil && !initForce {
		fmt.Printf("  skip %s (exists, use --force to overwrite)\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
