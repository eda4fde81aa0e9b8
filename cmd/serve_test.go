package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquadecl/releve-core/internal/fault"
	"github.com/aquadecl/releve-core/internal/model"
	"github.com/aquadecl/releve-core/internal/series"
)

type stubSeries struct {
	list   []model.Series
	byID   map[string]*model.Series
	values *series.ValuesResult
	err    error
}

func (s *stubSeries) ListSeries(_ context.Context, f series.Filter) ([]model.Series, error) {
	if s.err != nil {
		return nil, s.err
	}
	if f.Tenant == "" || (f.AttachmentID == "" && len(f.PointIDs) == 0 && f.OperatorID == "") {
		return nil, nil
	}
	return s.list, nil
}

func (s *stubSeries) GetSeriesByID(_ context.Context, id string) (*model.Series, error) {
	if sr, ok := s.byID[id]; ok {
		return sr, nil
	}
	return nil, fault.NotFoundf("series %s not found", id)
}

func (s *stubSeries) GetSeriesValuesInRange(_ context.Context, seriesID, start, _ string) (*series.ValuesResult, error) {
	if start == "bogus" {
		return nil, fault.Validationf("invalid date filter %q", start)
	}
	if _, ok := s.byID[seriesID]; !ok {
		return nil, fault.NotFoundf("series %s not found", seriesID)
	}
	return s.values, nil
}

type stubLedger struct {
	rows []model.Integration
}

func (s *stubLedger) ListByAttachment(_ context.Context, _ string) ([]model.Integration, error) {
	return s.rows, nil
}

type stubEnqueuer struct {
	consolidations []string
	ingestions     []string
}

func (s *stubEnqueuer) EnqueueConsolidation(_ context.Context, dossierID string) error {
	s.consolidations = append(s.consolidations, dossierID)
	return nil
}

func (s *stubEnqueuer) EnqueueIngestion(_ context.Context, attachmentID string) error {
	s.ingestions = append(s.ingestions, attachmentID)
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *stubSeries, *stubEnqueuer) {
	t.Helper()
	ss := &stubSeries{
		byID: map[string]*model.Series{
			"ser-1": {ID: "ser-1", Tenant: "terr-1", PointID: "pt-1"},
		},
		list:   []model.Series{{ID: "ser-1"}},
		values: &series.ValuesResult{SeriesID: "ser-1"},
	}
	enq := &stubEnqueuer{}
	srv := httptest.NewServer(newRouter(&apiHandlers{
		series:   ss,
		ledger:   &stubLedger{rows: []model.Integration{{OperatorID: "op-1", PointID: "pt-1", Day: "2025-01-01"}}},
		enqueuer: enq,
	}))
	t.Cleanup(srv.Close)
	return srv, ss, enq
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var body map[string]string
	code := getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestListSeries_ScopedQuery(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var body struct {
		Series []model.Series `json:"series"`
	}
	code := getJSON(t, srv.URL+"/series?tenant=terr-1&attachment_id=att-1", &body)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, body.Series, 1)
	assert.Equal(t, "ser-1", body.Series[0].ID)
}

func TestListSeries_UnscopedIsEmptyList(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var body struct {
		Series []model.Series `json:"series"`
	}
	code := getJSON(t, srv.URL+"/series", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.NotNil(t, body.Series)
	assert.Empty(t, body.Series)
}

func TestGetSeries_NotFoundMapsTo404(t *testing.T) {
	srv, _, _ := newTestServer(t)

	code := getJSON(t, srv.URL+"/series/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGetSeriesValues_ValidationMapsTo400(t *testing.T) {
	srv, _, _ := newTestServer(t)

	code := getJSON(t, srv.URL+"/series/ser-1/values?start=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = getJSON(t, srv.URL+"/series/ser-1/values", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestListIntegrations(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var body struct {
		Integrations []model.Integration `json:"integrations"`
	}
	code := getJSON(t, srv.URL+"/attachments/att-1/integrations", &body)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, body.Integrations, 1)
	assert.Equal(t, "2025-01-01", body.Integrations[0].Day)
}

func TestEnqueueEndpoints(t *testing.T) {
	srv, _, enq := newTestServer(t)

	resp, err := http.Post(srv.URL+"/dossiers/dos-1/consolidate", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/attachments/att-1/ingest", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	assert.Equal(t, []string{"dos-1"}, enq.consolidations)
	assert.Equal(t, []string{"att-1"}, enq.ingestions)
}
