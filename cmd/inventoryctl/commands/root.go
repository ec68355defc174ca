package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rl1809/easy-inventory/internal/config"
)

var (
	// Global flags
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "inventoryctl",
	Short: "Easy Inventory admin and terminal client",
	Long: `inventoryctl manages an Easy Inventory deployment and browses inventory
from the terminal.

Server-side commands (migrate, sweep, report) read the same INVENTORY_*
environment as the server. The tui command only needs the server URL.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func logf(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
