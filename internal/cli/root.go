package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Environment variables read when the matching flag is not set.
const (
	envConfig = "CALLPROXY_CONFIG"
	envAddr   = "CALLPROXY_ADDR"
	envCaller = "CALLPROXY_CALLER"
	envFile   = "CALLPROXY_ENV_FILE"
)

var (
	configPath string
	serverAddr string
	callerText string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default ~/.callproxy/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "", "Proxy server address (default: listen address from config)")
	rootCmd.PersistentFlags().StringVar(&callerText, "as", "", "Principal to call as")
}

var rootCmd = &cobra.Command{
	Use:   "callproxy",
	Short: "Delegated-call proxy with scoped delegations and owner approval",
	Long: `Forwards method calls to target services on behalf of an owner and the
delegates the owner has granted scoped, time-limited authority to.
Sensitive delegated calls wait in an approval queue until the owner
approves or rejects them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnv()
	},
}

// loadEnv reads .env (or $CALLPROXY_ENV_FILE) and fills unset flags
// from CALLPROXY_* variables. Existing environment variables win.
func loadEnv() error {
	path := os.Getenv(envFile)
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	if configPath == "" {
		configPath = os.Getenv(envConfig)
	}
	if serverAddr == "" {
		serverAddr = os.Getenv(envAddr)
	}
	if callerText == "" {
		callerText = os.Getenv(envCaller)
	}
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
