package consolidate

import (
	"context"
	"fmt"
	"time"

	"github.com/aquadecl/releve-core/internal/fault"
	"github.com/aquadecl/releve-core/internal/ledger"
	"github.com/aquadecl/releve-core/internal/model"
)

// mockMeta implements MetaStore for testing.
type mockMeta struct {
	dossiers    map[string]*model.Dossier
	attachments map[string][]model.Attachment
}

func (m *mockMeta) GetDossier(_ context.Context, id string) (*model.Dossier, error) {
	d, ok := m.dossiers[id]
	if !ok {
		return nil, fault.NotFoundf("dossier %s not found", id)
	}
	cp := *d
	return &cp, nil
}

func (m *mockMeta) ListAttachments(_ context.Context, dossierID string) ([]model.Attachment, error) {
	return m.attachments[dossierID], nil
}

func (m *mockMeta) SetConsolidatedAt(_ context.Context, dossierID string, at time.Time) error {
	d, ok := m.dossiers[dossierID]
	if !ok {
		return fault.NotFoundf("dossier %s not found", dossierID)
	}
	d.ConsolidatedAt = &at
	return nil
}

// mockSeries implements SeriesStore. Computed views written back through
// UpdateComputed are visible to subsequent ListByAttachment calls, so
// repeated passes observe their own prior state.
type mockSeries struct {
	byAttachment  map[string][]model.Series
	valueDays     map[string][]string
	computed      map[string]model.Computed
	failUpdate    map[string]error
	failValueDays map[string]error
}

func newMockSeries() *mockSeries {
	return &mockSeries{
		byAttachment:  map[string][]model.Series{},
		valueDays:     map[string][]string{},
		computed:      map[string]model.Computed{},
		failUpdate:    map[string]error{},
		failValueDays: map[string]error{},
	}
}

func (m *mockSeries) ListByAttachment(_ context.Context, attachmentID string) ([]model.Series, error) {
	var out []model.Series
	for _, sr := range m.byAttachment[attachmentID] {
		if c, ok := m.computed[sr.ID]; ok {
			sr.Computed = c
		}
		out = append(out, sr)
	}
	return out, nil
}

func (m *mockSeries) ListValueDays(_ context.Context, seriesID, minDate, maxDate string) ([]string, error) {
	if err := m.failValueDays[seriesID]; err != nil {
		return nil, err
	}
	var out []string
	for _, day := range m.valueDays[seriesID] {
		if day >= minDate && day <= maxDate {
			out = append(out, day)
		}
	}
	return out, nil
}

func (m *mockSeries) UpdateComputed(_ context.Context, seriesID string, computed model.Computed) error {
	if err := m.failUpdate[seriesID]; err != nil {
		return err
	}
	m.computed[seriesID] = computed
	return nil
}

// mockLedger implements Ledger with real first-writer-wins semantics over an
// in-memory map keyed by (operator, point, day).
type mockLedger struct {
	rows      map[string]model.Integration
	claimErr  error
	claimSeen int
}

func newMockLedger() *mockLedger {
	return &mockLedger{rows: map[string]model.Integration{}}
}

func ledgerKey(operatorID, pointID, day string) string {
	return fmt.Sprintf("%s|%s|%s", operatorID, pointID, day)
}

func (m *mockLedger) Claim(_ context.Context, c ledger.Claim) (*model.Integration, error) {
	m.claimSeen++
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	key := ledgerKey(c.OperatorID, c.PointID, c.Day)
	if row, ok := m.rows[key]; ok {
		return &row, nil
	}
	row := model.Integration{
		OperatorID:   c.OperatorID,
		PointID:      c.PointID,
		Day:          c.Day,
		DossierID:    c.DossierID,
		AttachmentID: c.AttachmentID,
		CreatedAt:    time.Now(),
	}
	m.rows[key] = row
	return &row, nil
}

func (m *mockLedger) Release(_ context.Context, attachmentID string, days []string) (int64, error) {
	daySet := map[string]bool{}
	for _, d := range days {
		daySet[d] = true
	}
	var n int64
	for key, row := range m.rows {
		if row.AttachmentID != attachmentID {
			continue
		}
		if len(days) > 0 && !daySet[row.Day] {
			continue
		}
		delete(m.rows, key)
		n++
	}
	return n, nil
}

func (m *mockLedger) ReleaseForPoint(_ context.Context, attachmentID, pointID string, days []string) (int64, error) {
	daySet := map[string]bool{}
	for _, d := range days {
		daySet[d] = true
	}
	var n int64
	for key, row := range m.rows {
		if row.AttachmentID != attachmentID || row.PointID != pointID {
			continue
		}
		if len(days) > 0 && !daySet[row.Day] {
			continue
		}
		delete(m.rows, key)
		n++
	}
	return n, nil
}

func (m *mockLedger) ListByAttachment(_ context.Context, attachmentID string) ([]model.Integration, error) {
	var out []model.Integration
	for _, row := range m.rows {
		if row.AttachmentID == attachmentID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *mockLedger) OwnedDays(_ context.Context, operatorID, pointID, attachmentID string) ([]string, error) {
	var out []string
	for _, row := range m.rows {
		if row.OperatorID == operatorID && row.PointID == pointID && row.AttachmentID == attachmentID {
			out = append(out, row.Day)
		}
	}
	sortDays(out)
	return out, nil
}

func sortDays(days []string) {
	for i := 1; i < len(days); i++ {
		for j := i; j > 0 && days[j] < days[j-1]; j-- {
			days[j], days[j-1] = days[j-1], days[j]
		}
	}
}

// mockDirectory implements OperatorDirectory from a fixed email map.
type mockDirectory struct {
	operators map[string]*model.Operator
	err       error
}

func (m *mockDirectory) FindOperatorByEmail(_ context.Context, email string) (*model.Operator, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.operators[email], nil
}
