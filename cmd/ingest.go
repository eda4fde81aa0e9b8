package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <attachment-id>",
	Short: "Ingest one attachment synchronously",
	Long:  "Parses the attachment workbook, diffs series content hashes, and rewrites changed series. Bypasses the job queue; meant for operators replaying a single attachment.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		eng, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		sum, err := eng.processor.ProcessAttachment(ctx, args[0])
		if err != nil {
			return err
		}

		zap.L().Info("attachment ingested",
			zap.String("attachment_id", sum.AttachmentID),
			zap.String("dossier_id", sum.DossierID),
			zap.Int("created", sum.Created),
			zap.Int("deleted", sum.Deleted),
			zap.Int("unchanged", sum.Unchanged),
			zap.Int("row_errors", sum.RowErrors))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
