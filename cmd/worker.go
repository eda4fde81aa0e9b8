package main

import (
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/aquadecl/releve-core/internal/queue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run consolidation and ingestion workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		eng, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		tc, err := initTemporal()
		if err != nil {
			return err
		}
		defer tc.Close()

		acts := queue.NewActivities(eng.orchestrator, eng.processor, zap.L())
		workers := queue.NewWorkers(tc, acts, queue.WorkerConfig{
			ConsolidateConcurrency: cfg.Temporal.ConsolidateConcurrency,
			IngestConcurrency:      cfg.Temporal.IngestConcurrency,
		})

		zap.L().Info("starting workers",
			zap.Int("consolidate_concurrency", cfg.Temporal.ConsolidateConcurrency),
			zap.Int("ingest_concurrency", cfg.Temporal.IngestConcurrency))
		return workers.Run(worker.InterruptCh())
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
