// Package meta persists dossier and attachment metadata. The consolidation
// engine consumes dossiers read-only apart from the consolidated_at marker.
package meta

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/aquadecl/releve-core/internal/db"
	"github.com/aquadecl/releve-core/internal/fault"
	"github.com/aquadecl/releve-core/internal/model"
)

// Store provides DB operations on dossiers and attachments.
type Store struct {
	pool db.Pool
}

// NewStore creates a metadata store.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// GetDossier loads one dossier.
func (s *Store) GetDossier(ctx context.Context, id string) (*model.Dossier, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant, status, declarant_email, consolidated_at, created_at, updated_at
		 FROM dossiers WHERE id = $1`, id)

	var (
		d      model.Dossier
		status string
	)
	err := row.Scan(&d.ID, &d.Tenant, &status, &d.DeclarantEmail, &d.ConsolidatedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, fault.NotFoundf("dossier %s not found", id)
		}
		return nil, eris.Wrapf(err, "meta: get dossier %s", id)
	}
	d.Status = model.DossierStatus(status)
	return &d, nil
}

// UpsertDossier creates or updates a dossier's declarative fields. The
// consolidated_at marker is owned by the orchestrator and left untouched.
func (s *Store) UpsertDossier(ctx context.Context, d model.Dossier) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dossiers (id, tenant, status, declarant_email, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())
		 ON CONFLICT (id) DO UPDATE SET
			tenant = EXCLUDED.tenant,
			status = EXCLUDED.status,
			declarant_email = EXCLUDED.declarant_email,
			updated_at = now()`,
		d.ID, d.Tenant, string(d.Status), d.DeclarantEmail)
	if err != nil {
		return eris.Wrapf(err, "meta: upsert dossier %s", d.ID)
	}
	return nil
}

// SetConsolidatedAt records the completion of a consolidation pass.
func (s *Store) SetConsolidatedAt(ctx context.Context, dossierID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dossiers SET consolidated_at = $1, updated_at = now() WHERE id = $2`,
		at, dossierID)
	if err != nil {
		return eris.Wrapf(err, "meta: set consolidated_at for %s", dossierID)
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFoundf("dossier %s not found", dossierID)
	}
	return nil
}

// MarkDossierForReconsolidation clears consolidated_at, flipping the dossier
// back to the needs-consolidation state.
func (s *Store) MarkDossierForReconsolidation(ctx context.Context, dossierID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dossiers SET consolidated_at = NULL, updated_at = now() WHERE id = $1`,
		dossierID)
	if err != nil {
		return eris.Wrapf(err, "meta: mark dossier %s for reconsolidation", dossierID)
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFoundf("dossier %s not found", dossierID)
	}
	return nil
}

// GetAttachment loads one attachment.
func (s *Store) GetAttachment(ctx context.Context, id string) (*model.Attachment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, dossier_id, validation_status, storage_path, created_at, updated_at
		 FROM attachments WHERE id = $1`, id)

	var (
		a      model.Attachment
		status string
	)
	err := row.Scan(&a.ID, &a.DossierID, &status, &a.StoragePath, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, fault.NotFoundf("attachment %s not found", id)
		}
		return nil, eris.Wrapf(err, "meta: get attachment %s", id)
	}
	a.ValidationStatus = model.ValidationStatus(status)
	return &a, nil
}

// ListAttachments returns every attachment under a dossier.
func (s *Store) ListAttachments(ctx context.Context, dossierID string) ([]model.Attachment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, dossier_id, validation_status, storage_path, created_at, updated_at
		 FROM attachments WHERE dossier_id = $1 ORDER BY created_at`, dossierID)
	if err != nil {
		return nil, eris.Wrapf(err, "meta: list attachments for %s", dossierID)
	}
	defer rows.Close()

	var out []model.Attachment
	for rows.Next() {
		var (
			a      model.Attachment
			status string
		)
		if err := rows.Scan(&a.ID, &a.DossierID, &status, &a.StoragePath, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "meta: scan attachment")
		}
		a.ValidationStatus = model.ValidationStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertAttachment creates or updates an attachment record.
func (s *Store) UpsertAttachment(ctx context.Context, a model.Attachment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO attachments (id, dossier_id, validation_status, storage_path, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())
		 ON CONFLICT (id) DO UPDATE SET
			validation_status = EXCLUDED.validation_status,
			storage_path = EXCLUDED.storage_path,
			updated_at = now()`,
		a.ID, a.DossierID, string(a.ValidationStatus), a.StoragePath)
	if err != nil {
		return eris.Wrapf(err, "meta: upsert attachment %s", a.ID)
	}
	return nil
}

// UpdateAttachmentStatus records the parser's validation outcome.
func (s *Store) UpdateAttachmentStatus(ctx context.Context, id string, status model.ValidationStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE attachments SET validation_status = $1, updated_at = now() WHERE id = $2`,
		string(status), id)
	if err != nil {
		return eris.Wrapf(err, "meta: update attachment %s status", id)
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFoundf("attachment %s not found", id)
	}
	return nil
}
