// Package queue runs consolidation and ingestion as durable Temporal
// workflows. Change notifications are delivered with signal-with-start so
// bursts for the same dossier or attachment coalesce into a single pass
// after a quiet period.
package queue

const (
	// TaskQueueConsolidate serves dossier consolidation workflows.
	TaskQueueConsolidate = "releve-consolidate"
	// TaskQueueIngest serves attachment ingestion workflows.
	TaskQueueIngest = "releve-ingest"

	// SignalKick is sent for every change notification. The payload is
	// ignored; only the arrival matters for debouncing.
	SignalKick = "kick"

	ActivityConsolidateDossier = "ConsolidateDossier"
	ActivityProcessAttachment  = "ProcessAttachment"
)

// ConsolidateWorkflowID derives a stable workflow ID so concurrent
// notifications for the same dossier land on one workflow.
func ConsolidateWorkflowID(dossierID string) string {
	return "consolidate-dossier-" + dossierID
}

// IngestWorkflowID derives a stable workflow ID for an attachment.
func IngestWorkflowID(attachmentID string) string {
	return "ingest-attachment-" + attachmentID
}

// ConsolidateRequest is the workflow input for a dossier consolidation.
type ConsolidateRequest struct {
	DossierID       string `json:"dossier_id"`
	DebounceSeconds int    `json:"debounce_seconds"`
}

// IngestRequest is the workflow input for an attachment ingestion.
type IngestRequest struct {
	AttachmentID    string `json:"attachment_id"`
	DebounceSeconds int    `json:"debounce_seconds"`
}
