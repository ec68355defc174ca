package commands

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/rl1809/easy-inventory/internal/client"
	"github.com/rl1809/easy-inventory/internal/tui"
)

var (
	serverURL   string
	downloadDir string
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Browse your inventory in the terminal",
	Long: `Register or sign in to an Easy Inventory server, then search, sort, add,
edit and delete items. The list follows changes made from other clients.
Reports are saved to ~/Downloads unless --downloads is given.

Examples:
  inventoryctl tui
  inventoryctl tui --server https://inventory.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := downloadDir
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("find home directory: %w", err)
			}
			dir = filepath.Join(home, "Downloads")
		}

		model := tui.New(client.New(serverURL, nil), dir)
		if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run(); err != nil {
			return fmt.Errorf("run tui: %w", err)
		}
		return nil
	},
}

func init() {
	server := os.Getenv("INVENTORY_PUBLIC_BASE_URL")
	if server == "" {
		server = "http://localhost:8080"
	}
	tuiCmd.Flags().StringVar(&serverURL, "server", server, "inventory server base URL")
	tuiCmd.Flags().StringVar(&downloadDir, "downloads", "", "directory for downloaded reports")
	rootCmd.AddCommand(tuiCmd)
}
