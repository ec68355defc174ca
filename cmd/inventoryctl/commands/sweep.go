package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rl1809/easy-inventory/internal/adapter/storage"
	"github.com/rl1809/easy-inventory/internal/core/service"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete photos left behind by removed or edited items",
	Long: `Retry every pending blob tombstone once. The server does this on its own
every INVENTORY_SWEEP_INTERVAL; run it by hand after an outage of the blob store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		db, dialect, err := openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		bucket, err := storage.OpenBucket(ctx, cfg.BlobURL)
		if err != nil {
			return err
		}
		defer bucket.Close()

		cleaner := service.NewBlobCleaner(
			storage.NewBlobAdapter(bucket, cfg.PublicBaseURL),
			storage.NewSQLAdapter(db, dialect),
		)
		n, err := cleaner.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %d tombstones\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
