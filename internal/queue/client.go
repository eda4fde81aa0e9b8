package queue

import (
	"context"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
)

// Enqueuer submits change notifications to the job queue.
type Enqueuer interface {
	EnqueueConsolidation(ctx context.Context, dossierID string) error
	EnqueueIngestion(ctx context.Context, attachmentID string) error
}

// Client wraps a Temporal client with signal-with-start semantics: if a
// workflow for the target ID is already waiting out its quiet period, the
// notification only kicks it; otherwise a fresh workflow starts.
type Client struct {
	tc              client.Client
	debounceSeconds int
}

func NewClient(tc client.Client, debounceSeconds int) *Client {
	return &Client{tc: tc, debounceSeconds: debounceSeconds}
}

func (c *Client) EnqueueConsolidation(ctx context.Context, dossierID string) error {
	opts := client.StartWorkflowOptions{
		ID:        ConsolidateWorkflowID(dossierID),
		TaskQueue: TaskQueueConsolidate,
	}
	req := ConsolidateRequest{DossierID: dossierID, DebounceSeconds: c.debounceSeconds}
	_, err := c.tc.SignalWithStartWorkflow(ctx, opts.ID, SignalKick, nil, opts, ConsolidateDossierWorkflow, req)
	if err != nil {
		return eris.Wrap(err, "queue: enqueue consolidation")
	}
	return nil
}

func (c *Client) EnqueueIngestion(ctx context.Context, attachmentID string) error {
	opts := client.StartWorkflowOptions{
		ID:        IngestWorkflowID(attachmentID),
		TaskQueue: TaskQueueIngest,
	}
	req := IngestRequest{AttachmentID: attachmentID, DebounceSeconds: c.debounceSeconds}
	_, err := c.tc.SignalWithStartWorkflow(ctx, opts.ID, SignalKick, nil, opts, ProcessAttachmentWorkflow, req)
	if err != nil {
		return eris.Wrap(err, "queue: enqueue ingestion")
	}
	return nil
}
