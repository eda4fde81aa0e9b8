package queue

import (
	"context"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/aquadecl/releve-core/internal/consolidate"
	"github.com/aquadecl/releve-core/internal/fault"
	"github.com/aquadecl/releve-core/internal/ingest"
	"github.com/aquadecl/releve-core/internal/resilience"
)

// Error types surfaced to workflow retry policies. Validation and not-found
// failures will not succeed on retry; everything else might.
const (
	errTypeValidation = "ValidationError"
	errTypeNotFound   = "NotFoundError"
)

// Activities bundles the engine entry points executed by workers.
type Activities struct {
	orchestrator *consolidate.Orchestrator
	processor    *ingest.Processor
	log          *zap.Logger
}

func NewActivities(orchestrator *consolidate.Orchestrator, processor *ingest.Processor, log *zap.Logger) *Activities {
	return &Activities{orchestrator: orchestrator, processor: processor, log: log}
}

// ConsolidateDossier runs one consolidation pass for a dossier.
func (a *Activities) ConsolidateDossier(ctx context.Context, dossierID string) (*consolidate.Result, error) {
	res, err := a.orchestrator.ConsolidateDossier(ctx, dossierID)
	if err != nil {
		return nil, classifyActivityError(err)
	}
	a.log.Info("consolidation pass finished",
		zap.String("dossier_id", res.DossierID),
		zap.Int("days_claimed", res.DaysClaimed),
		zap.Int("days_lost", res.DaysLost),
		zap.Int("series_failed", res.SeriesFailed))
	return res, nil
}

// ProcessAttachment ingests one attachment.
func (a *Activities) ProcessAttachment(ctx context.Context, attachmentID string) (*ingest.Summary, error) {
	sum, err := a.processor.ProcessAttachment(ctx, attachmentID)
	if err != nil {
		return nil, classifyActivityError(err)
	}
	a.log.Info("attachment ingested",
		zap.String("attachment_id", sum.AttachmentID),
		zap.Int("created", sum.Created),
		zap.Int("deleted", sum.Deleted),
		zap.Int("row_errors", sum.RowErrors))
	return sum, nil
}

// classifyActivityError marks validation and not-found failures as
// non-retryable so the retry policy gives up immediately. Transient and
// unknown failures stay retryable.
func classifyActivityError(err error) error {
	switch {
	case fault.IsValidation(err):
		return temporal.NewNonRetryableApplicationError(err.Error(), errTypeValidation, err)
	case fault.IsNotFound(err):
		return temporal.NewNonRetryableApplicationError(err.Error(), errTypeNotFound, err)
	case resilience.IsTransient(err):
		return err
	default:
		return err
	}
}
