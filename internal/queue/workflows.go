package queue

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/aquadecl/releve-core/internal/consolidate"
	"github.com/aquadecl/releve-core/internal/ingest"
)

const defaultDebounce = 5 * time.Second

// ConsolidateDossierWorkflow waits for a quiet period, then consolidates the
// dossier once. Every kick signal received during the quiet period restarts
// it, so a burst of notifications produces a single consolidation pass.
func ConsolidateDossierWorkflow(ctx workflow.Context, req ConsolidateRequest) (*consolidate.Result, error) {
	debounce(ctx, req.DebounceSeconds)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{errTypeValidation, errTypeNotFound},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var res consolidate.Result
	if err := workflow.ExecuteActivity(ctx, ActivityConsolidateDossier, req.DossierID).Get(ctx, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ProcessAttachmentWorkflow waits for a quiet period, then ingests the
// attachment once.
func ProcessAttachmentWorkflow(ctx workflow.Context, req IngestRequest) (*ingest.Summary, error) {
	debounce(ctx, req.DebounceSeconds)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{errTypeValidation, errTypeNotFound},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var sum ingest.Summary
	if err := workflow.ExecuteActivity(ctx, ActivityProcessAttachment, req.AttachmentID).Get(ctx, &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

// debounce blocks until no kick signal has arrived for the configured quiet
// period, then drains any stragglers.
func debounce(ctx workflow.Context, seconds int) {
	quiet := time.Duration(seconds) * time.Second
	if quiet <= 0 {
		quiet = defaultDebounce
	}

	ch := workflow.GetSignalChannel(ctx, SignalKick)
	for {
		timerCtx, cancelTimer := workflow.WithCancel(ctx)
		timer := workflow.NewTimer(timerCtx, quiet)

		fired := false
		sel := workflow.NewSelector(ctx)
		sel.AddReceive(ch, func(c workflow.ReceiveChannel, _ bool) {
			c.Receive(ctx, nil)
		})
		sel.AddFuture(timer, func(workflow.Future) {
			fired = true
		})
		sel.Select(ctx)
		cancelTimer()

		if fired {
			break
		}
	}

	for ch.ReceiveAsync(nil) {
	}
}
