// Package consolidate runs the per-dossier reconciliation pass: it resolves
// the operator, claims and releases integration-ledger days, and rebuilds
// each series' materialized integrated-days view.
package consolidate

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aquadecl/releve-core/internal/diff"
	"github.com/aquadecl/releve-core/internal/ledger"
	"github.com/aquadecl/releve-core/internal/model"
)

// MetaStore is the dossier/attachment metadata the orchestrator needs.
type MetaStore interface {
	GetDossier(ctx context.Context, id string) (*model.Dossier, error)
	ListAttachments(ctx context.Context, dossierID string) ([]model.Attachment, error)
	SetConsolidatedAt(ctx context.Context, dossierID string, at time.Time) error
}

// SeriesStore is the series surface the orchestrator drives.
type SeriesStore interface {
	ListByAttachment(ctx context.Context, attachmentID string) ([]model.Series, error)
	ListValueDays(ctx context.Context, seriesID, minDate, maxDate string) ([]string, error)
	UpdateComputed(ctx context.Context, seriesID string, computed model.Computed) error
}

// Ledger is the day-ownership registry.
type Ledger interface {
	Claim(ctx context.Context, c ledger.Claim) (*model.Integration, error)
	Release(ctx context.Context, attachmentID string, days []string) (int64, error)
	ReleaseForPoint(ctx context.Context, attachmentID, pointID string, days []string) (int64, error)
	ListByAttachment(ctx context.Context, attachmentID string) ([]model.Integration, error)
	OwnedDays(ctx context.Context, operatorID, pointID, attachmentID string) ([]string, error)
}

// OperatorDirectory resolves a withdrawal operator from a declarant email.
// A nil operator with a nil error means no operator matched.
type OperatorDirectory interface {
	FindOperatorByEmail(ctx context.Context, email string) (*model.Operator, error)
}

// Orchestrator reconciles dossiers against the integration ledger.
type Orchestrator struct {
	meta      MetaStore
	series    SeriesStore
	ledger    Ledger
	directory OperatorDirectory
	log       *zap.Logger
}

// New creates an orchestrator.
func New(meta MetaStore, series SeriesStore, ledg Ledger, directory OperatorDirectory, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.L()
	}
	return &Orchestrator{meta: meta, series: series, ledger: ledg, directory: directory, log: log}
}

// Result summarizes one consolidation pass.
type Result struct {
	DossierID     string `json:"dossier_id"`
	Cleaned       bool   `json:"cleaned"`
	SeriesTotal   int    `json:"series_total"`
	SeriesFailed  int    `json:"series_failed"`
	DaysClaimed   int    `json:"days_claimed"`
	DaysLost      int    `json:"days_lost"`
	DaysReleased  int    `json:"days_released"`
	DaysUnchanged int    `json:"days_unchanged"`
}

// ConsolidateDossier runs the full reconciliation pass for one dossier.
//
// Every step is idempotent: running the pass twice with unchanged inputs
// produces identical computed views and ledger state, so whole-job retries
// are always safe. A failure on one series is logged and never aborts the
// dossier; the pass still finishes and marks the dossier consolidated.
func (o *Orchestrator) ConsolidateDossier(ctx context.Context, dossierID string) (*Result, error) {
	d, err := o.meta.GetDossier(ctx, dossierID)
	if err != nil {
		return nil, err
	}

	op, err := o.directory.FindOperatorByEmail(ctx, d.DeclarantEmail)
	if err != nil {
		return nil, eris.Wrapf(err, "consolidate: resolve operator for %s", dossierID)
	}

	attachments, err := o.meta.ListAttachments(ctx, d.ID)
	if err != nil {
		return nil, err
	}

	res := &Result{DossierID: d.ID}

	// A dossier that is not accepted, or whose declarant resolves to no
	// operator, fully retracts its claims. This cleanup always runs before
	// anything else so rejecting or withdrawing a dossier empties its days.
	if d.Status != model.DossierAccepted || op == nil {
		res.Cleaned = true
		for _, att := range attachments {
			if err := o.cleanupAttachment(ctx, d, att, res); err != nil {
				return nil, err
			}
		}
		if err := o.meta.SetConsolidatedAt(ctx, d.ID, time.Now().UTC()); err != nil {
			return nil, err
		}
		o.log.Info("dossier claims retracted",
			zap.String("dossier_id", d.ID),
			zap.String("status", string(d.Status)),
			zap.Bool("operator_resolved", op != nil))
		return res, nil
	}

	for _, att := range attachments {
		if att.ValidationStatus != model.ValidationSuccess {
			// An attachment that no longer validates must not own days.
			if err := o.cleanupAttachment(ctx, d, att, res); err != nil {
				return nil, err
			}
			continue
		}

		seriesList, err := o.series.ListByAttachment(ctx, att.ID)
		if err != nil {
			return nil, err
		}

		// Candidate days are gathered up front so stale claims left behind
		// by deleted or recreated series can be swept before any ownership
		// re-read. Without the sweep a recreated series would resurrect its
		// predecessor's days into the rebuilt view.
		candidates := make(map[string][]string, len(seriesList))
		keep := make(map[string]bool)
		sweepSafe := true
		for _, sr := range seriesList {
			days, err := o.series.ListValueDays(ctx, sr.ID, sr.MinDate, sr.MaxDate)
			if err != nil {
				res.SeriesTotal++
				res.SeriesFailed++
				sweepSafe = false
				o.log.Error("series reconciliation failed",
					zap.String("dossier_id", d.ID),
					zap.String("series_id", sr.ID),
					zap.String("point_id", sr.PointID),
					zap.Error(err))
				continue
			}
			candidates[sr.ID] = days
			for _, day := range days {
				keep[sr.PointID+"|"+day] = true
			}
		}

		// An unreadable series keeps its claims for now; releasing them on a
		// partial picture could drop days the series still declares.
		if sweepSafe {
			if err := o.releaseStaleClaims(ctx, att.ID, keep, res); err != nil {
				return nil, err
			}
		}

		for _, sr := range seriesList {
			candidate, ok := candidates[sr.ID]
			if !ok {
				continue
			}
			res.SeriesTotal++
			if err := o.reconcileSeries(ctx, d, op, att, sr, candidate, res); err != nil {
				res.SeriesFailed++
				o.log.Error("series reconciliation failed",
					zap.String("dossier_id", d.ID),
					zap.String("series_id", sr.ID),
					zap.String("point_id", sr.PointID),
					zap.Error(err))
			}
		}
	}

	if err := o.meta.SetConsolidatedAt(ctx, d.ID, time.Now().UTC()); err != nil {
		return nil, err
	}
	o.log.Info("dossier consolidated",
		zap.String("dossier_id", d.ID),
		zap.Int("series_total", res.SeriesTotal),
		zap.Int("series_failed", res.SeriesFailed),
		zap.Int("days_claimed", res.DaysClaimed),
		zap.Int("days_lost", res.DaysLost))
	return res, nil
}

// cleanupAttachment releases every ledger row owned by the attachment and
// zeroes the integrated-days view of each of its series.
func (o *Orchestrator) cleanupAttachment(ctx context.Context, d *model.Dossier, att model.Attachment, res *Result) error {
	released, err := o.ledger.Release(ctx, att.ID, nil)
	if err != nil {
		return err
	}
	res.DaysReleased += int(released)

	seriesList, err := o.series.ListByAttachment(ctx, att.ID)
	if err != nil {
		return err
	}
	for _, sr := range seriesList {
		computed := model.Computed{
			PointID:        sr.PointID,
			DossierStatus:  d.Status,
			IntegratedDays: []string{},
		}
		if err := o.series.UpdateComputed(ctx, sr.ID, computed); err != nil {
			return err
		}
	}
	return nil
}

// releaseStaleClaims drops every ledger row of the attachment whose
// (point, day) no surviving series declares a stored value for. This is what
// retires the claims of series deleted during re-ingestion, whether the point
// disappeared entirely or came back as a new series with different values.
// Idempotent: once the rows are gone the sweep finds nothing.
func (o *Orchestrator) releaseStaleClaims(ctx context.Context, attachmentID string, keep map[string]bool, res *Result) error {
	rows, err := o.ledger.ListByAttachment(ctx, attachmentID)
	if err != nil {
		return err
	}

	staleByPoint := make(map[string][]string)
	for _, row := range rows {
		if !keep[row.PointID+"|"+row.Day] {
			staleByPoint[row.PointID] = append(staleByPoint[row.PointID], row.Day)
		}
	}
	for pointID, days := range staleByPoint {
		released, err := o.ledger.ReleaseForPoint(ctx, attachmentID, pointID, days)
		if err != nil {
			return err
		}
		res.DaysReleased += int(released)
	}
	return nil
}

// reconcileSeries claims and releases ledger days for one series, then
// rebuilds its computed view from a fresh ledger read. The candidate days are
// the series' stored values fenced to its declared range, precomputed by the
// caller.
func (o *Orchestrator) reconcileSeries(ctx context.Context, d *model.Dossier, op *model.Operator, att model.Attachment, sr model.Series, candidate []string, res *Result) error {
	dd := diff.CompareDays(sr.Computed.IntegratedDays, candidate)
	res.DaysUnchanged += dd.UnchangedCount

	for _, day := range dd.ToAdd {
		row, err := o.ledger.Claim(ctx, ledger.Claim{
			OperatorID:   op.ID,
			PointID:      sr.PointID,
			Day:          day,
			DossierID:    d.ID,
			AttachmentID: att.ID,
		})
		if err != nil {
			return err
		}
		// A row owned by another attachment means this day was already
		// declared elsewhere; the loss is silent and the series simply
		// ends up with fewer integrated days than declared.
		if row.AttachmentID == att.ID {
			res.DaysClaimed++
		} else {
			res.DaysLost++
		}
	}

	for _, day := range dd.ToRemove {
		released, err := o.ledger.ReleaseForPoint(ctx, att.ID, sr.PointID, []string{day})
		if err != nil {
			return err
		}
		res.DaysReleased += int(released)
	}

	// Rebuild from the ledger, never from the diff: this keeps the view
	// correct under partial failure or concurrent claims.
	owned, err := o.ledger.OwnedDays(ctx, op.ID, sr.PointID, att.ID)
	if err != nil {
		return err
	}
	if owned == nil {
		owned = []string{}
	}

	return o.series.UpdateComputed(ctx, sr.ID, model.Computed{
		PointID:        sr.PointID,
		OperatorID:     op.ID,
		DossierStatus:  d.Status,
		IntegratedDays: owned,
	})
}
