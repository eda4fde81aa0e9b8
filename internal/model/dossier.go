// Package model defines the domain types shared across the consolidation engine.
package model

import "time"

// DossierStatus is the lifecycle status of a declaration dossier.
type DossierStatus string

const (
	DossierAccepted   DossierStatus = "accepted"
	DossierRejected   DossierStatus = "rejected"
	DossierInProgress DossierStatus = "in_progress"
	DossierWithdrawn  DossierStatus = "withdrawn"
)

// ValidationStatus is the outcome of attachment validation by the upstream parser.
type ValidationStatus string

const (
	ValidationSuccess ValidationStatus = "success"
	ValidationWarning ValidationStatus = "warning"
	ValidationError   ValidationStatus = "error"
)

// Dossier is a single regulatory water-withdrawal declaration.
//
// The engine consumes it read-only except for ConsolidatedAt: a nil
// ConsolidatedAt marks the dossier as needing reconsolidation.
type Dossier struct {
	ID             string        `json:"id"`
	Tenant         string        `json:"tenant"`
	Status         DossierStatus `json:"status"`
	DeclarantEmail string        `json:"declarant_email"`
	ConsolidatedAt *time.Time    `json:"consolidated_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Attachment is one uploaded spreadsheet under a dossier.
type Attachment struct {
	ID               string           `json:"id"`
	DossierID        string           `json:"dossier_id"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	StoragePath      string           `json:"storage_path,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Operator is a withdrawal operator (préleveur) resolved from a declarant
// email by the external operator directory.
type Operator struct {
	ID     string `json:"id"`
	Tenant string `json:"tenant"`
}
