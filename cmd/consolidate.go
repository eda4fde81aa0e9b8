package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate <dossier-id>",
	Short: "Run one consolidation pass synchronously",
	Long:  "Reconciles the dossier's series against the integration ledger, claiming and releasing days as needed. Bypasses the job queue.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		eng, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		res, err := eng.orchestrator.ConsolidateDossier(ctx, args[0])
		if err != nil {
			return err
		}

		zap.L().Info("dossier consolidated",
			zap.String("dossier_id", res.DossierID),
			zap.Bool("cleaned", res.Cleaned),
			zap.Int("series_total", res.SeriesTotal),
			zap.Int("series_failed", res.SeriesFailed),
			zap.Int("days_claimed", res.DaysClaimed),
			zap.Int("days_lost", res.DaysLost),
			zap.Int("days_released", res.DaysReleased),
			zap.Int("days_unchanged", res.DaysUnchanged))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(consolidateCmd)
}
