package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"classroom-service/internal/app"
	"classroom-service/internal/config"
	"classroom-service/internal/infra/postgres"
	"classroom-service/internal/logger"
)

// NewRecomputeCmd runs the batch progress reconciliation from the command
// line: every enrollment is recomputed and written back only on change.
// Safe to run at any time, e.g. after bulk data edits.
func NewRecomputeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute-progress",
		Short: "Recompute every enrollment's progress from completion records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}

			log, err := logger.New(os.Getenv("APP_ENV"))
			if err != nil {
				return err
			}
			defer log.Sync()

			db := openBunDB(cfg.Postgres.URL)
			defer db.Close()

			agg := app.NewProgressAggregator(postgres.NewRecordStore(db), log)
			result, err := agg.RecomputeAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("total=%d updated=%d skipped=%d failed=%d\n",
				result.Total, result.Updated, result.Skipped, result.Failed)
			return nil
		},
	}
}
