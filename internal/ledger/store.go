// Package ledger is the global registry of (operator, point, day) ownership
// claims. The table's unique constraint on that triple is the engine's sole
// source of conflict truth: first insert wins, later claims are no-ops.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/aquadecl/releve-core/internal/db"
	"github.com/aquadecl/releve-core/internal/model"
)

// Store provides DB operations on the integration ledger.
type Store struct {
	pool db.Pool
}

// NewStore creates a ledger store.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// Claim is one ownership request for a (operator, point, day) triple.
type Claim struct {
	OperatorID   string
	PointID      string
	Day          string
	DossierID    string
	AttachmentID string
}

// Claim upserts the row with insert-if-absent semantics and returns the
// surviving row. Concurrent claimants converge on a single row without any
// duplicate-key error; callers must compare the returned AttachmentID to
// know whether they own the day.
func (s *Store) Claim(ctx context.Context, c Claim) (*model.Integration, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO integrations (operator_id, point_id, day, dossier_id, attachment_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (operator_id, point_id, day) DO NOTHING`,
		c.OperatorID, c.PointID, c.Day, c.DossierID, c.AttachmentID, time.Now().UTC())
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: claim %s/%s/%s", c.OperatorID, c.PointID, c.Day)
	}

	row := s.pool.QueryRow(ctx,
		`SELECT operator_id, point_id, day, dossier_id, attachment_id, created_at
		 FROM integrations WHERE operator_id = $1 AND point_id = $2 AND day = $3`,
		c.OperatorID, c.PointID, c.Day)

	var (
		in  model.Integration
		day time.Time
	)
	if err := row.Scan(&in.OperatorID, &in.PointID, &day, &in.DossierID, &in.AttachmentID, &in.CreatedAt); err != nil {
		return nil, eris.Wrapf(err, "ledger: read claim %s/%s/%s", c.OperatorID, c.PointID, c.Day)
	}
	in.Day = day.Format(model.DayLayout)
	return &in, nil
}

// Release deletes the attachment's ledger rows for the given days. An empty
// day list deletes every row owned by the attachment. Rows owned by other
// attachments are never touched.
func (s *Store) Release(ctx context.Context, attachmentID string, days []string) (int64, error) {
	query := `DELETE FROM integrations WHERE attachment_id = $1`
	args := []any{attachmentID}
	if len(days) > 0 {
		args = append(args, days)
		query += fmt.Sprintf(` AND day = ANY($%d)`, len(args))
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "ledger: release for attachment %s", attachmentID)
	}
	return tag.RowsAffected(), nil
}

// ReleaseForPoint deletes the attachment's ledger rows for one point,
// optionally restricted to days. Scoping by point keeps a same-day claim held
// through another of the attachment's points intact.
func (s *Store) ReleaseForPoint(ctx context.Context, attachmentID, pointID string, days []string) (int64, error) {
	query := `DELETE FROM integrations WHERE attachment_id = $1 AND point_id = $2`
	args := []any{attachmentID, pointID}
	if len(days) > 0 {
		args = append(args, days)
		query += fmt.Sprintf(` AND day = ANY($%d)`, len(args))
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "ledger: release %s for attachment %s", pointID, attachmentID)
	}
	return tag.RowsAffected(), nil
}

// ListByAttachment returns the (point, day) claims currently owned by an
// attachment. Consolidation sweeps this against the surviving series'
// candidate days; the read API exposes it as-is.
func (s *Store) ListByAttachment(ctx context.Context, attachmentID string) ([]model.Integration, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT operator_id, point_id, day, dossier_id, attachment_id, created_at
		 FROM integrations WHERE attachment_id = $1 ORDER BY point_id, day`,
		attachmentID)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: list for attachment %s", attachmentID)
	}
	defer rows.Close()

	var out []model.Integration
	for rows.Next() {
		var (
			in  model.Integration
			day time.Time
		)
		if err := rows.Scan(&in.OperatorID, &in.PointID, &day, &in.DossierID, &in.AttachmentID, &in.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "ledger: scan row")
		}
		in.Day = day.Format(model.DayLayout)
		out = append(out, in)
	}
	return out, rows.Err()
}

// OwnedDays re-reads the ledger for the days of one (operator, point) that
// the attachment currently owns. Consolidation rebuilds each series'
// integrated-day view from this, never from the diff alone, so the result
// stays correct under partial failure or concurrent updates.
func (s *Store) OwnedDays(ctx context.Context, operatorID, pointID, attachmentID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT day FROM integrations
		 WHERE operator_id = $1 AND point_id = $2 AND attachment_id = $3 ORDER BY day`,
		operatorID, pointID, attachmentID)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: owned days for %s/%s", operatorID, pointID)
	}
	defer rows.Close()

	var days []string
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, eris.Wrap(err, "ledger: scan day")
		}
		days = append(days, day.Format(model.DayLayout))
	}
	return days, rows.Err()
}
