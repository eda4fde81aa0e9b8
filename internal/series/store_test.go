package series

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquadecl/releve-core/internal/diff"
	"github.com/aquadecl/releve-core/internal/fault"
	"github.com/aquadecl/releve-core/internal/model"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewStore(mock), mock
}

func seriesRowColumns() []string {
	return []string{
		"id", "dossier_id", "attachment_id", "tenant", "point_id", "parameter", "unit",
		"frequency", "original_frequency", "value_type", "min_date", "max_date",
		"content_hash", "computed", "created_at",
	}
}

func seriesRow(t *testing.T, id string, integratedDays []string) []any {
	t.Helper()
	computed, err := json.Marshal(model.Computed{
		PointID:        "pt-1",
		OperatorID:     "op-1",
		IntegratedDays: integratedDays,
	})
	require.NoError(t, err)
	minDate, _ := time.Parse(model.DayLayout, "2025-01-01")
	maxDate, _ := time.Parse(model.DayLayout, "2025-01-31")
	return []any{
		id, "dos-1", "att-1", "terr-1", "pt-1", "volume", "m3",
		model.DailyFrequency, (*string)(nil), "cumulative", minDate, maxDate,
		"abc123def456", computed, time.Now(),
	}
}

func TestInsertSeriesWithValues_RequiresTenant(t *testing.T) {
	s, _ := newMockStore(t)

	_, err := s.InsertSeriesWithValues(context.Background(), "att-1", "dos-1", "", nil)
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))
}

func TestInsertSeriesWithValues_PersistsSeriesAndValues(t *testing.T) {
	s, mock := newMockStore(t)

	v := 10.0
	raw := model.RawSeries{
		PointID: "pt-1", Parameter: "volume", Unit: "m3",
		Frequency: "1 day", ValueType: model.ValueCumulative,
		MinDate: "2025-01-01", MaxDate: "2025-01-02",
		Data: []model.RawPoint{
			{Date: "2025-01-01", Value: &v},
			{Date: "2025-01-02", Value: &v},
		},
	}

	mock.ExpectExec(`INSERT INTO series`).
		WithArgs(pgxmock.AnyArg(), "dos-1", "att-1", "terr-1", "pt-1", "volume", "m3",
			model.DailyFrequency, nil, "cumulative", "2025-01-01", "2025-01-02",
			diff.Hash(raw), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	// Values go through the temp-table bulk upsert.
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_series_values"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_series_values"}, valueColumns).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "series_values" .* ON CONFLICT \("series_id", "day"\) DO UPDATE SET`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	created, err := s.InsertSeriesWithValues(context.Background(), "att-1", "dos-1", "terr-1",
		[]diff.Hashed{{Raw: raw, Hash: diff.Hash(raw)}})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, model.DailyFrequency, created[0].Frequency)
	assert.Empty(t, created[0].Computed.IntegratedDays)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSeries_UnscopedReturnsEmpty(t *testing.T) {
	s, _ := newMockStore(t)

	out, err := s.ListSeries(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, out)

	// Tenant alone is not enough scope.
	out, err = s.ListSeries(context.Background(), Filter{Tenant: "terr-1"})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestListSeries_InvalidRange(t *testing.T) {
	s, _ := newMockStore(t)

	_, err := s.ListSeries(context.Background(), Filter{
		Tenant: "terr-1", AttachmentID: "att-1", Start: "not-a-date",
	})
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))

	_, err = s.ListSeries(context.Background(), Filter{
		Tenant: "terr-1", AttachmentID: "att-1", Start: "2025-02-01", End: "2025-01-01",
	})
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))
}

func TestListSeries_ByAttachmentWithRange(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM series WHERE tenant = \$1 AND attachment_id = \$2 AND max_date >= \$3 AND min_date <= \$4`).
		WithArgs("terr-1", "att-1", "2025-01-01", "2025-01-31").
		WillReturnRows(pgxmock.NewRows(seriesRowColumns()).
			AddRow(seriesRow(t, "ser-1", []string{"2025-01-01"})...))

	out, err := s.ListSeries(context.Background(), Filter{
		Tenant: "terr-1", AttachmentID: "att-1",
		Start: "2025-01-01", End: "2025-01-31",
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ser-1", out[0].ID)
	assert.Equal(t, "op-1", out[0].Computed.OperatorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSeries_OnlyIntegratedDaysOverlap(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`jsonb_array_length\(computed->'integrated_days'\) > 0`).
		WithArgs("terr-1", "op-1").
		WillReturnRows(pgxmock.NewRows(seriesRowColumns()).
			AddRow(seriesRow(t, "ser-in", []string{"2025-01-15"})...).
			AddRow(seriesRow(t, "ser-out", []string{"2025-03-01"})...))

	out, err := s.ListSeries(context.Background(), Filter{
		Tenant: "terr-1", OperatorID: "op-1",
		Start: "2025-01-01", End: "2025-01-31",
		OnlyIntegratedDays: true,
	})
	require.NoError(t, err)
	// ser-out's only integrated day falls outside the window.
	require.Len(t, out, 1)
	assert.Equal(t, "ser-in", out[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSeriesByID_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM series WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(seriesRowColumns()))

	_, err := s.GetSeriesByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, fault.IsNotFound(err))
}

func TestGetSeriesValuesInRange(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM series WHERE id = \$1`).
		WithArgs("ser-1").
		WillReturnRows(pgxmock.NewRows(seriesRowColumns()).
			AddRow(seriesRow(t, "ser-1", []string{})...))

	day1, _ := time.Parse(model.DayLayout, "2025-01-01")
	day2, _ := time.Parse(model.DayLayout, "2025-01-02")
	v1, v2 := 10.0, 12.5
	agg, err := json.Marshal(model.DailyAggregates{Count: 4, Min: 1, Max: 4, Mean: 2.5})
	require.NoError(t, err)
	sub, err := json.Marshal([]model.SubDailyPoint{{Time: "06:00", Value: &v1}})
	require.NoError(t, err)

	mock.ExpectQuery(`FROM series_values WHERE series_id = \$1 AND day >= \$2 AND day <= \$3 ORDER BY day`).
		WithArgs("ser-1", "2025-01-01", "2025-01-31").
		WillReturnRows(pgxmock.NewRows([]string{
			"day", "value", "remark", "original_value", "original_date", "original_frequency",
			"days_covered", "daily_aggregates", "sub_daily",
		}).
			AddRow(day1, &v1, "", (*float64)(nil), (*time.Time)(nil), (*string)(nil), (*int)(nil), []byte(nil), []byte(nil)).
			AddRow(day2, &v2, "estimated", (*float64)(nil), (*time.Time)(nil), (*string)(nil), (*int)(nil), agg, sub))

	res, err := s.GetSeriesValuesInRange(context.Background(), "ser-1", "2025-01-01", "2025-01-31")
	require.NoError(t, err)
	assert.True(t, res.HasSubDaily)
	require.Len(t, res.Values, 2)
	assert.Equal(t, "2025-01-01", res.Values[0].Day)
	assert.Nil(t, res.Values[0].DailyAggregates)
	assert.Equal(t, "estimated", res.Values[1].Remark)
	require.NotNil(t, res.Values[1].DailyAggregates)
	assert.Equal(t, 4, res.Values[1].DailyAggregates.Count)
	require.Len(t, res.Values[1].SubDaily, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListValueDays(t *testing.T) {
	s, mock := newMockStore(t)

	day1, _ := time.Parse(model.DayLayout, "2025-01-01")
	day2, _ := time.Parse(model.DayLayout, "2025-01-03")
	mock.ExpectQuery(`SELECT day FROM series_values WHERE series_id = \$1 AND day >= \$2 AND day <= \$3`).
		WithArgs("ser-1", "2025-01-01", "2025-01-31").
		WillReturnRows(pgxmock.NewRows([]string{"day"}).AddRow(day1).AddRow(day2))

	days, err := s.ListValueDays(context.Background(), "ser-1", "2025-01-01", "2025-01-31")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-01", "2025-01-03"}, days)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSeriesByIDs(t *testing.T) {
	s, mock := newMockStore(t)

	// Empty input never hits the pool.
	require.NoError(t, s.DeleteSeriesByIDs(context.Background(), nil))

	mock.ExpectExec(`DELETE FROM series WHERE id = ANY\(\$1\)`).
		WithArgs([]string{"ser-1", "ser-2"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	require.NoError(t, s.DeleteSeriesByIDs(context.Background(), []string{"ser-1", "ser-2"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateComputed(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE series SET computed = \$1 WHERE id = \$2`).
		WithArgs(pgxmock.AnyArg(), "ser-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateComputed(context.Background(), "ser-1", model.Computed{
		PointID: "pt-1", OperatorID: "op-1",
		IntegratedDays: []string{"2025-01-01"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateComputed_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE series SET computed`).
		WithArgs(pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateComputed(context.Background(), "missing", model.Computed{})
	require.Error(t, err)
	assert.True(t, fault.IsNotFound(err))
}
