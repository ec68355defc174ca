package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rl1809/easy-inventory/internal/adapter/report"
	"github.com/rl1809/easy-inventory/internal/adapter/storage"
	"github.com/rl1809/easy-inventory/internal/core/service"
	"github.com/rl1809/easy-inventory/internal/port"
)

var (
	reportUsername string
	reportDir      string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the PDF inventory report for an account",
	Long: `Render the one-page inventory report for --username straight from the
database and write it as EasyInventory_<millis>.pdf.

Examples:
  inventoryctl report --username alice
  inventoryctl report --username alice --out ./reports`,
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

		rdb, err := openRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()

		bucket, err := storage.OpenBucket(ctx, cfg.BlobURL)
		if err != nil {
			return err
		}
		defer bucket.Close()

		renderer, err := report.NewPDFRenderer(cfg.ReportIcon)
		if err != nil {
			return fmt.Errorf("load report icon: %w", err)
		}

		sqlAdapter := storage.NewSQLAdapter(db, dialect)
		redisAdapter := storage.NewRedisAdapter(rdb)
		account, err := sqlAdapter.GetAccountByUsername(ctx, reportUsername)
		if errors.Is(err, port.ErrNotFound) {
			return fmt.Errorf("no account named %q", reportUsername)
		}
		if err != nil {
			return err
		}

		auth := service.NewAuthService(sqlAdapter, redisAdapter, redisAdapter,
			storage.NewLogMailer(cfg.PublicBaseURL),
			service.NewTokenManager(cfg.JWTSecret, cfg.SessionTTL),
			cfg.ResetTokenTTL,
		)
		inventory := service.NewInventoryService(sqlAdapter, storage.NewBlobAdapter(bucket, cfg.PublicBaseURL),
			redisAdapter, redisAdapter, cfg.MaxPhotoBytes, cfg.CleanupQueueSize)
		defer inventory.Close()

		dir := cfg.ReportDir
		if reportDir != "" {
			dir = reportDir
		}
		generated, err := service.NewReportService(inventory, auth, renderer, dir).Generate(ctx, account.ID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), generated.Path)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportUsername, "username", "", "account whose items are reported")
	reportCmd.Flags().StringVar(&reportDir, "out", "", "output directory (default INVENTORY_REPORT_DIR)")
	_ = reportCmd.MarkFlagRequired("username")
	rootCmd.AddCommand(reportCmd)
}
