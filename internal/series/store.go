// Package series persists canonical daily series and their per-day values,
// scoped per tenant.
package series

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/aquadecl/releve-core/internal/db"
	"github.com/aquadecl/releve-core/internal/diff"
	"github.com/aquadecl/releve-core/internal/fault"
	"github.com/aquadecl/releve-core/internal/model"
	"github.com/aquadecl/releve-core/internal/normalize"
)

const seriesColumns = `id, dossier_id, attachment_id, tenant, point_id, parameter, unit,
	frequency, original_frequency, value_type, min_date, max_date, content_hash, computed, created_at`

var valueColumns = []string{
	"series_id", "day", "value", "remark",
	"original_value", "original_date", "original_frequency", "days_covered",
	"daily_aggregates", "sub_daily",
}

// Store provides DB read/write operations for series and their values.
type Store struct {
	pool db.Pool
}

// NewStore creates a series store.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// Filter selects series for listing. Tenant is mandatory; at least one of
// AttachmentID, PointIDs or OperatorID must be set or the listing is empty.
type Filter struct {
	Tenant       string
	AttachmentID string
	PointIDs     []string
	OperatorID   string
	Start        string
	End          string
	// OnlyIntegratedDays restricts to series whose computed integrated-day
	// set is non-empty and, when a range is given, overlaps it. The default
	// mode uses the series' own min/max range as a coarse filter instead.
	OnlyIntegratedDays bool
}

// InsertSeriesWithValues normalizes each incoming series to the canonical
// daily form and persists one series row plus its per-day values. Values are
// written with an idempotent bulk upsert so whole-job retries are safe.
func (s *Store) InsertSeriesWithValues(ctx context.Context, attachmentID, dossierID, tenant string, incoming []diff.Hashed) ([]model.Series, error) {
	if tenant == "" {
		return nil, fault.Validationf("series: tenant is required")
	}

	created := make([]model.Series, 0, len(incoming))
	for _, h := range incoming {
		res, err := normalize.Daily(h.Raw)
		if err != nil {
			return created, eris.Wrapf(err, "series: normalize %s/%s", h.Raw.PointID, h.Raw.Parameter)
		}

		sr := model.Series{
			ID:                uuid.NewString(),
			DossierID:         dossierID,
			AttachmentID:      attachmentID,
			Tenant:            tenant,
			PointID:           h.Raw.PointID,
			Parameter:         h.Raw.Parameter,
			Unit:              h.Raw.Unit,
			Frequency:         res.Frequency,
			OriginalFrequency: res.OriginalFrequency,
			ValueType:         h.Raw.ValueType,
			MinDate:           h.Raw.MinDate,
			MaxDate:           h.Raw.MaxDate,
			ContentHash:       h.Hash,
			Computed: model.Computed{
				PointID:        h.Raw.PointID,
				IntegratedDays: []string{},
			},
			CreatedAt: time.Now().UTC(),
		}

		computedJSON, err := json.Marshal(sr.Computed)
		if err != nil {
			return created, eris.Wrap(err, "series: marshal computed")
		}

		_, err = s.pool.Exec(ctx, `INSERT INTO series
			(id, dossier_id, attachment_id, tenant, point_id, parameter, unit,
			 frequency, original_frequency, value_type, min_date, max_date, content_hash, computed, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			sr.ID, sr.DossierID, sr.AttachmentID, sr.Tenant, sr.PointID, sr.Parameter, sr.Unit,
			sr.Frequency, nullableStr(sr.OriginalFrequency), string(sr.ValueType),
			sr.MinDate, sr.MaxDate, sr.ContentHash, computedJSON, sr.CreatedAt)
		if err != nil {
			return created, eris.Wrapf(err, "series: insert %s/%s", sr.PointID, sr.Parameter)
		}

		rows, err := valueRows(sr.ID, res.Values)
		if err != nil {
			return created, err
		}
		if _, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
			Table:        "series_values",
			Columns:      valueColumns,
			ConflictKeys: []string{"series_id", "day"},
		}, rows); err != nil {
			return created, eris.Wrapf(err, "series: insert values for %s", sr.ID)
		}

		created = append(created, sr)
	}
	return created, nil
}

func valueRows(seriesID string, values []model.SeriesValue) ([][]any, error) {
	rows := make([][]any, 0, len(values))
	for _, v := range values {
		var aggJSON, subJSON any
		if v.DailyAggregates != nil {
			b, err := json.Marshal(v.DailyAggregates)
			if err != nil {
				return nil, eris.Wrap(err, "series: marshal aggregates")
			}
			aggJSON = b
		}
		if len(v.SubDaily) > 0 {
			b, err := json.Marshal(v.SubDaily)
			if err != nil {
				return nil, eris.Wrap(err, "series: marshal sub-daily points")
			}
			subJSON = b
		}
		rows = append(rows, []any{
			seriesID, v.Day, v.Value, v.Remark,
			v.OriginalValue, nullableStr(v.OriginalDate), nullableStr(v.OriginalFrequency), nullableInt(v.DaysCovered),
			aggJSON, subJSON,
		})
	}
	return rows, nil
}

// ListByAttachment returns every series stored for one attachment. Used by
// the hash differ and the consolidation pass, both of which already hold the
// attachment's dossier scope.
func (s *Store) ListByAttachment(ctx context.Context, attachmentID string) ([]model.Series, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM series WHERE attachment_id = $1 ORDER BY point_id, parameter`, seriesColumns),
		attachmentID)
	if err != nil {
		return nil, eris.Wrapf(err, "series: list by attachment %s", attachmentID)
	}
	defer rows.Close()
	return scanSeriesRows(rows)
}

// ListSeries lists series under the given filter. An unscoped query (missing
// tenant, or tenant with no secondary criterion) returns an empty result
// rather than a global listing.
func (s *Store) ListSeries(ctx context.Context, f Filter) ([]model.Series, error) {
	if f.Tenant == "" {
		return nil, nil
	}
	if f.AttachmentID == "" && len(f.PointIDs) == 0 && f.OperatorID == "" {
		return nil, nil
	}
	if err := validateRange(f.Start, f.End); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM series WHERE tenant = $1`, seriesColumns)
	args := []any{f.Tenant}
	if f.AttachmentID != "" {
		args = append(args, f.AttachmentID)
		query += fmt.Sprintf(` AND attachment_id = $%d`, len(args))
	}
	if len(f.PointIDs) > 0 {
		args = append(args, f.PointIDs)
		query += fmt.Sprintf(` AND point_id = ANY($%d)`, len(args))
	}
	if f.OperatorID != "" {
		args = append(args, f.OperatorID)
		query += fmt.Sprintf(` AND computed->>'operator_id' = $%d`, len(args))
	}
	if f.OnlyIntegratedDays {
		query += ` AND jsonb_array_length(computed->'integrated_days') > 0`
	} else {
		if f.Start != "" {
			args = append(args, f.Start)
			query += fmt.Sprintf(` AND max_date >= $%d`, len(args))
		}
		if f.End != "" {
			args = append(args, f.End)
			query += fmt.Sprintf(` AND min_date <= $%d`, len(args))
		}
	}
	query += ` ORDER BY point_id, parameter`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "series: list")
	}
	defer rows.Close()

	out, err := scanSeriesRows(rows)
	if err != nil {
		return nil, err
	}
	if f.OnlyIntegratedDays && (f.Start != "" || f.End != "") {
		out = filterIntegratedOverlap(out, f.Start, f.End)
	}
	return out, nil
}

// filterIntegratedOverlap keeps series with at least one integrated day
// inside [start, end]. Day strings compare lexicographically.
func filterIntegratedOverlap(in []model.Series, start, end string) []model.Series {
	out := in[:0]
	for _, sr := range in {
		for _, day := range sr.Computed.IntegratedDays {
			if (start == "" || day >= start) && (end == "" || day <= end) {
				out = append(out, sr)
				break
			}
		}
	}
	return out
}

// GetSeriesByID loads one series.
func (s *Store) GetSeriesByID(ctx context.Context, id string) (*model.Series, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM series WHERE id = $1`, seriesColumns), id)
	sr, err := scanSeries(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, fault.NotFoundf("series %s not found", id)
		}
		return nil, eris.Wrapf(err, "series: get %s", id)
	}
	return sr, nil
}

// ValuesResult is the ordered per-day view of one series' values.
type ValuesResult struct {
	SeriesID    string              `json:"series_id"`
	HasSubDaily bool                `json:"has_sub_daily"`
	Values      []model.SeriesValue `json:"values"`
}

// GetSeriesValuesInRange returns the series' values ordered by day,
// optionally restricted to [start, end]. Sub-daily series keep their nested
// intra-day points and set HasSubDaily; daily series carry flat day records.
func (s *Store) GetSeriesValuesInRange(ctx context.Context, seriesID, start, end string) (*ValuesResult, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	if _, err := s.GetSeriesByID(ctx, seriesID); err != nil {
		return nil, err
	}

	query := `SELECT day, value, remark, original_value, original_date, original_frequency,
		days_covered, daily_aggregates, sub_daily
		FROM series_values WHERE series_id = $1`
	args := []any{seriesID}
	if start != "" {
		args = append(args, start)
		query += fmt.Sprintf(` AND day >= $%d`, len(args))
	}
	if end != "" {
		args = append(args, end)
		query += fmt.Sprintf(` AND day <= $%d`, len(args))
	}
	query += ` ORDER BY day`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "series: values for %s", seriesID)
	}
	defer rows.Close()

	res := &ValuesResult{SeriesID: seriesID}
	for rows.Next() {
		var (
			v        model.SeriesValue
			day      time.Time
			origDate *time.Time
			origFreq *string
			covered  *int
			aggJSON  []byte
			subJSON  []byte
		)
		if err := rows.Scan(&day, &v.Value, &v.Remark, &v.OriginalValue, &origDate, &origFreq,
			&covered, &aggJSON, &subJSON); err != nil {
			return nil, eris.Wrap(err, "series: scan value")
		}
		v.Day = day.Format(model.DayLayout)
		if origDate != nil {
			v.OriginalDate = origDate.Format(model.DayLayout)
		}
		if origFreq != nil {
			v.OriginalFrequency = *origFreq
		}
		if covered != nil {
			v.DaysCovered = *covered
		}
		if len(aggJSON) > 0 {
			v.DailyAggregates = &model.DailyAggregates{}
			if err := json.Unmarshal(aggJSON, v.DailyAggregates); err != nil {
				return nil, eris.Wrap(err, "series: unmarshal aggregates")
			}
		}
		if len(subJSON) > 0 {
			if err := json.Unmarshal(subJSON, &v.SubDaily); err != nil {
				return nil, eris.Wrap(err, "series: unmarshal sub-daily points")
			}
			res.HasSubDaily = true
		}
		res.Values = append(res.Values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "series: values for %s", seriesID)
	}
	return res, nil
}

// ListValueDays returns the distinct stored value days of a series that fall
// within [minDate, maxDate]. Values outside the declared range persist for
// audit but are never candidates for integration.
func (s *Store) ListValueDays(ctx context.Context, seriesID, minDate, maxDate string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT day FROM series_values WHERE series_id = $1 AND day >= $2 AND day <= $3 ORDER BY day`,
		seriesID, minDate, maxDate)
	if err != nil {
		return nil, eris.Wrapf(err, "series: value days for %s", seriesID)
	}
	defer rows.Close()

	var days []string
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, eris.Wrap(err, "series: scan day")
		}
		days = append(days, day.Format(model.DayLayout))
	}
	return days, rows.Err()
}

// DeleteSeriesByIDs removes series rows; their values cascade with them.
func (s *Store) DeleteSeriesByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM series WHERE id = ANY($1)`, ids); err != nil {
		return eris.Wrap(err, "series: delete")
	}
	return nil
}

// UpdateComputed persists the materialized projection of one series.
func (s *Store) UpdateComputed(ctx context.Context, seriesID string, computed model.Computed) error {
	if computed.IntegratedDays == nil {
		computed.IntegratedDays = []string{}
	}
	b, err := json.Marshal(computed)
	if err != nil {
		return eris.Wrap(err, "series: marshal computed")
	}
	tag, err := s.pool.Exec(ctx, `UPDATE series SET computed = $1 WHERE id = $2`, b, seriesID)
	if err != nil {
		return eris.Wrapf(err, "series: update computed for %s", seriesID)
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFoundf("series %s not found", seriesID)
	}
	return nil
}

func validateRange(start, end string) error {
	for _, d := range []string{start, end} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(model.DayLayout, d); err != nil {
			return fault.Validationf("series: invalid date filter %q", d)
		}
	}
	if start != "" && end != "" && start > end {
		return fault.Validationf("series: start %s after end %s", start, end)
	}
	return nil
}

func nullableStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSeries(row rowScanner) (*model.Series, error) {
	var (
		sr               model.Series
		origFreq         *string
		minDate, maxDate time.Time
		computedJSON     []byte
		valueType        string
	)
	err := row.Scan(&sr.ID, &sr.DossierID, &sr.AttachmentID, &sr.Tenant, &sr.PointID,
		&sr.Parameter, &sr.Unit, &sr.Frequency, &origFreq, &valueType,
		&minDate, &maxDate, &sr.ContentHash, &computedJSON, &sr.CreatedAt)
	if err != nil {
		return nil, err
	}
	if origFreq != nil {
		sr.OriginalFrequency = *origFreq
	}
	sr.ValueType = model.ValueType(valueType)
	sr.MinDate = minDate.Format(model.DayLayout)
	sr.MaxDate = maxDate.Format(model.DayLayout)
	if len(computedJSON) > 0 {
		if err := json.Unmarshal(computedJSON, &sr.Computed); err != nil {
			return nil, eris.Wrap(err, "series: unmarshal computed")
		}
	}
	return &sr, nil
}

func scanSeriesRows(rows pgx.Rows) ([]model.Series, error) {
	var out []model.Series
	for rows.Next() {
		sr, err := scanSeries(rows)
		if err != nil {
			return nil, eris.Wrap(err, "series: scan")
		}
		out = append(out, *sr)
	}
	return out, rows.Err()
}
