package model

import "time"

// Integration is one row of the daily integration ledger: the authoritative
// claim that an attachment owns a given (operator, point, day) triple.
//
// Grain: (operator_id, point_id, day), enforced by a unique constraint.
// The constraint is the engine's only conflict-control primitive; whichever
// insert lands first owns the day and later claims are no-ops.
type Integration struct {
	OperatorID   string    `json:"operator_id"`
	PointID      string    `json:"point_id"`
	Day          string    `json:"day"`
	DossierID    string    `json:"dossier_id"`
	AttachmentID string    `json:"attachment_id"`
	CreatedAt    time.Time `json:"created_at"`
}
