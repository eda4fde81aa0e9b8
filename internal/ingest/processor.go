package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/aquadecl/releve-core/internal/diff"
	"github.com/aquadecl/releve-core/internal/model"
)

// MetaStore is the metadata surface the processor needs.
type MetaStore interface {
	GetAttachment(ctx context.Context, id string) (*model.Attachment, error)
	GetDossier(ctx context.Context, id string) (*model.Dossier, error)
	UpdateAttachmentStatus(ctx context.Context, id string, status model.ValidationStatus) error
	MarkDossierForReconsolidation(ctx context.Context, dossierID string) error
}

// SeriesStore is the series surface the processor drives.
type SeriesStore interface {
	ListByAttachment(ctx context.Context, attachmentID string) ([]model.Series, error)
	DeleteSeriesByIDs(ctx context.Context, ids []string) error
	InsertSeriesWithValues(ctx context.Context, attachmentID, dossierID, tenant string, incoming []diff.Hashed) ([]model.Series, error)
}

// Processor runs the ingestion pass for one attachment: parse, hash, diff
// against the stored series, delete what changed, create what is new.
type Processor struct {
	meta   MetaStore
	series SeriesStore
	parser Parser
	log    *zap.Logger
}

// NewProcessor creates an attachment processor.
func NewProcessor(meta MetaStore, series SeriesStore, parser Parser, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.L()
	}
	return &Processor{meta: meta, series: series, parser: parser, log: log}
}

// Summary reports one ingestion pass.
type Summary struct {
	AttachmentID string `json:"attachment_id"`
	DossierID    string `json:"dossier_id"`
	Created      int    `json:"created"`
	Deleted      int    `json:"deleted"`
	Unchanged    int    `json:"unchanged"`
	RowErrors    int    `json:"row_errors"`
}

// ProcessAttachment ingests one attachment. A series is identified purely by
// its content hash, so a changed series is deleted and recreated whole; runs
// with unchanged input are no-ops. The dossier is marked for reconsolidation
// whenever the stored series set changed.
func (p *Processor) ProcessAttachment(ctx context.Context, attachmentID string) (*Summary, error) {
	att, err := p.meta.GetAttachment(ctx, attachmentID)
	if err != nil {
		return nil, err
	}
	d, err := p.meta.GetDossier(ctx, att.DossierID)
	if err != nil {
		return nil, err
	}

	raws, rowErrs, err := p.parser.ParseAttachment(ctx, att.StoragePath)
	if err != nil {
		if statusErr := p.meta.UpdateAttachmentStatus(ctx, att.ID, model.ValidationError); statusErr != nil {
			p.log.Error("attachment status update failed",
				zap.String("attachment_id", att.ID), zap.Error(statusErr))
		}
		return nil, err
	}

	status := model.ValidationSuccess
	if len(rowErrs) > 0 {
		status = model.ValidationWarning
	}

	existing, err := p.series.ListByAttachment(ctx, att.ID)
	if err != nil {
		return nil, err
	}
	sd := diff.CompareSeries(existing, diff.HashAll(raws))

	if len(sd.ToDelete) > 0 {
		ids := make([]string, len(sd.ToDelete))
		for i, sr := range sd.ToDelete {
			ids[i] = sr.ID
		}
		if err := p.series.DeleteSeriesByIDs(ctx, ids); err != nil {
			return nil, err
		}
	}

	if len(sd.ToCreate) > 0 {
		if _, err := p.series.InsertSeriesWithValues(ctx, att.ID, d.ID, d.Tenant, sd.ToCreate); err != nil {
			return nil, err
		}
	}

	if err := p.meta.UpdateAttachmentStatus(ctx, att.ID, status); err != nil {
		return nil, err
	}
	if len(sd.ToDelete) > 0 || len(sd.ToCreate) > 0 {
		if err := p.meta.MarkDossierForReconsolidation(ctx, d.ID); err != nil {
			return nil, err
		}
	}

	sum := &Summary{
		AttachmentID: att.ID,
		DossierID:    d.ID,
		Created:      len(sd.ToCreate),
		Deleted:      len(sd.ToDelete),
		Unchanged:    sd.UnchangedCount,
		RowErrors:    len(rowErrs),
	}
	p.log.Info("attachment processed",
		zap.String("attachment_id", att.ID),
		zap.String("dossier_id", d.ID),
		zap.Int("created", sum.Created),
		zap.Int("deleted", sum.Deleted),
		zap.Int("unchanged", sum.Unchanged),
		zap.Int("row_errors", sum.RowErrors))
	return sum, nil
}
