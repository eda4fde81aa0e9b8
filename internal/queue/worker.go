package queue

import (
	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// WorkerConfig bounds activity concurrency per queue. Ingestion defaults to
// serial execution so two versions of the same attachment never race during
// hash diffing.
type WorkerConfig struct {
	ConsolidateConcurrency int
	IngestConcurrency      int
}

// Workers owns one Temporal worker per task queue.
type Workers struct {
	consolidate worker.Worker
	ingest      worker.Worker
}

// NewWorkers registers workflows and activities on both task queues.
func NewWorkers(tc client.Client, acts *Activities, cfg WorkerConfig) *Workers {
	if cfg.ConsolidateConcurrency <= 0 {
		cfg.ConsolidateConcurrency = 4
	}
	if cfg.IngestConcurrency <= 0 {
		cfg.IngestConcurrency = 1
	}

	wc := worker.New(tc, TaskQueueConsolidate, worker.Options{
		MaxConcurrentActivityExecutionSize: cfg.ConsolidateConcurrency,
	})
	wc.RegisterWorkflow(ConsolidateDossierWorkflow)
	wc.RegisterActivityWithOptions(acts.ConsolidateDossier, activity.RegisterOptions{Name: ActivityConsolidateDossier})

	wi := worker.New(tc, TaskQueueIngest, worker.Options{
		MaxConcurrentActivityExecutionSize: cfg.IngestConcurrency,
	})
	wi.RegisterWorkflow(ProcessAttachmentWorkflow)
	wi.RegisterActivityWithOptions(acts.ProcessAttachment, activity.RegisterOptions{Name: ActivityProcessAttachment})

	return &Workers{consolidate: wc, ingest: wi}
}

// Run starts both workers and blocks until interrupt closes. The ingest
// worker is stopped on return.
func (w *Workers) Run(interrupt <-chan interface{}) error {
	if err := w.ingest.Start(); err != nil {
		return eris.Wrap(err, "queue: start ingest worker")
	}
	defer w.ingest.Stop()

	if err := w.consolidate.Run(interrupt); err != nil {
		return eris.Wrap(err, "queue: run consolidate worker")
	}
	return nil
}
