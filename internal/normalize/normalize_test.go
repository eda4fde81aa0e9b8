package normalize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquadecl/releve-core/internal/fault"
	"github.com/aquadecl/releve-core/internal/model"
)

func f(v float64) *float64 { return &v }

func TestDaily_Passthrough(t *testing.T) {
	raw := model.RawSeries{
		Frequency: "1 day",
		ValueType: model.ValueCumulative,
		Data: []model.RawPoint{
			{Date: "2025-01-02", Value: f(12), Remark: "estimated"},
			{Date: "2025-01-01", Value: f(10)},
		},
	}

	res, err := Daily(raw)
	require.NoError(t, err)
	assert.Equal(t, model.DailyFrequency, res.Frequency)
	assert.Empty(t, res.OriginalFrequency)
	require.Len(t, res.Values, 2)
	assert.Equal(t, "2025-01-01", res.Values[0].Day)
	assert.Equal(t, 10.0, *res.Values[0].Value)
	assert.Equal(t, "estimated", res.Values[1].Remark)
	assert.Nil(t, res.Values[0].DailyAggregates)
}

func TestDaily_Passthrough_DuplicateDayKeepsFirst(t *testing.T) {
	raw := model.RawSeries{
		Frequency: "1 day",
		Data: []model.RawPoint{
			{Date: "2025-01-01", Value: f(10)},
			{Date: "2025-01-01", Value: f(99)},
		},
	}

	res, err := Daily(raw)
	require.NoError(t, err)
	require.Len(t, res.Values, 1)
	assert.Equal(t, 10.0, *res.Values[0].Value)
}

func TestDaily_SubDaily_InstantaneousAggregates(t *testing.T) {
	raw := model.RawSeries{
		Frequency: "1 hour",
		ValueType: model.ValueInstantaneous,
		Data: []model.RawPoint{
			{Date: "2025-06-01", Time: "08:00", Value: f(10)},
			{Date: "2025-06-01", Time: "09:00", Value: f(12)},
			{Date: "2025-06-01", Time: "10:00", Value: f(15)},
			{Date: "2025-06-01", Time: "11:00", Value: f(11)},
		},
	}

	res, err := Daily(raw)
	require.NoError(t, err)
	require.Len(t, res.Values, 1)

	sv := res.Values[0]
	require.NotNil(t, sv.DailyAggregates)
	agg := sv.DailyAggregates
	assert.Equal(t, 4, agg.Count)
	assert.Equal(t, 10.0, agg.Min)
	assert.Equal(t, 15.0, agg.Max)
	assert.Equal(t, 12.0, agg.Mean)
	assert.Equal(t, 4.0, agg.CoverageHours)

	// Non-cumulative parameters get aggregates only; the canonical value
	// is left for the consumer.
	assert.Nil(t, sv.Value)
	assert.Len(t, sv.SubDaily, 4)
}

func TestDaily_SubDaily_CumulativeSum(t *testing.T) {
	raw := model.RawSeries{
		Frequency: "1 hour",
		ValueType: model.ValueCumulative,
		Data: []model.RawPoint{
			{Date: "2025-06-01", Time: "08:00", Value: f(10)},
			{Date: "2025-06-01", Time: "09:00", Value: f(20)},
			{Date: "2025-06-01", Time: "10:00", Value: f(30)},
		},
	}

	res, err := Daily(raw)
	require.NoError(t, err)
	require.Len(t, res.Values, 1)

	sv := res.Values[0]
	require.NotNil(t, sv.Value)
	assert.Equal(t, 60.0, *sv.Value)
	assert.Equal(t, 60.0, sv.DailyAggregates.Sum)
	assert.Equal(t, 20.0, sv.DailyAggregates.Mean)
}

func TestDaily_SubDaily_InvalidValuesExcluded(t *testing.T) {
	raw := model.RawSeries{
		Frequency: "15 minutes",
		ValueType: model.ValueCumulative,
		Data: []model.RawPoint{
			{Date: "2025-06-01", Time: "00:00", Value: f(5)},
			{Date: "2025-06-01", Time: "00:15", Value: nil},
			{Date: "2025-06-01", Time: "00:30", Value: f(math.NaN())},
			{Date: "2025-06-01", Time: "00:45", Value: f(math.Inf(1))},
			{Date: "2025-06-01", Time: "01:00", Value: f(7)},
		},
	}

	res, err := Daily(raw)
	require.NoError(t, err)
	require.Len(t, res.Values, 1)

	agg := res.Values[0].DailyAggregates
	assert.Equal(t, 2, agg.Count)
	assert.Equal(t, 12.0, agg.Sum)
	// Coverage counts observations, valid or not.
	assert.Equal(t, 5*0.25, agg.CoverageHours)
	// The intra-day points are retained as observed.
	assert.Len(t, res.Values[0].SubDaily, 5)
}

func TestDaily_SubDaily_Remarks(t *testing.T) {
	data := []model.RawPoint{
		{Date: "2025-06-01", Time: "00:00", Value: f(1), Remark: "pump B"},
		{Date: "2025-06-01", Time: "01:00", Value: f(1), Remark: "pump A"},
		{Date: "2025-06-01", Time: "02:00", Value: f(1), Remark: "pump A"},
	}
	for i := 0; i < 15; i++ {
		data = append(data, model.RawPoint{
			Date: "2025-06-01", Time: "03:00", Value: f(1),
			Remark: string(rune('a' + i)),
		})
	}

	res, err := Daily(model.RawSeries{Frequency: "1 hour", Data: data})
	require.NoError(t, err)
	agg := res.Values[0].DailyAggregates
	assert.True(t, agg.HasRemark)
	assert.Len(t, agg.UniqueRemarks, 10)
}

func TestDaily_MonthlyExpansion(t *testing.T) {
	raw := model.RawSeries{
		Frequency: "1 month",
		ValueType: model.ValueCumulative,
		Data: []model.RawPoint{
			{Date: "2025-01-01", Value: f(3100), DaysCovered: 31, Remark: "meter reset"},
		},
	}

	res, err := Daily(raw)
	require.NoError(t, err)
	assert.Equal(t, "1 month", res.OriginalFrequency)
	require.Len(t, res.Values, 31)

	first, last := res.Values[0], res.Values[30]
	assert.Equal(t, "2025-01-01", first.Day)
	assert.Equal(t, "2025-01-31", last.Day)
	for _, sv := range res.Values {
		assert.InDelta(t, 100.0, *sv.Value, 1e-9)
		assert.Equal(t, 3100.0, *sv.OriginalValue)
		assert.Equal(t, "2025-01-01", sv.OriginalDate)
		assert.Equal(t, "1 month", sv.OriginalFrequency)
		assert.Equal(t, 31, sv.DaysCovered)
		assert.Equal(t, "meter reset", sv.Remark)
	}
}

func TestDaily_MonthlyExpansion_DerivedDaysCovered(t *testing.T) {
	// February 2025 has 28 days; daysCovered omitted by the parser.
	raw := model.RawSeries{
		Frequency: "1 month",
		ValueType: model.ValueCumulative,
		Data:      []model.RawPoint{{Date: "2025-02-01", Value: f(280)}},
	}

	res, err := Daily(raw)
	require.NoError(t, err)
	require.Len(t, res.Values, 28)
	assert.InDelta(t, 10.0, *res.Values[0].Value, 1e-9)
	assert.Equal(t, "2025-02-28", res.Values[27].Day)
}

func TestDaily_QuarterlyExpansion(t *testing.T) {
	raw := model.RawSeries{
		Frequency: "1 quarter",
		ValueType: model.ValueCumulative,
		Data:      []model.RawPoint{{Date: "2025-04-01", Value: f(910)}},
	}

	res, err := Daily(raw)
	require.NoError(t, err)
	// Apr + May + Jun = 91 days.
	require.Len(t, res.Values, 91)
	assert.InDelta(t, 10.0, *res.Values[0].Value, 1e-9)
}

func TestDaily_Expansion_SkipsInvalidValues(t *testing.T) {
	raw := model.RawSeries{
		Frequency: "1 month",
		Data: []model.RawPoint{
			{Date: "2025-01-01", Value: nil},
			{Date: "2025-02-01", Value: f(math.NaN())},
		},
	}

	res, err := Daily(raw)
	require.NoError(t, err)
	assert.Empty(t, res.Values)
}

func TestDaily_UnsupportedFrequency(t *testing.T) {
	_, err := Daily(model.RawSeries{Frequency: "fortnightly"})
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))
}

func TestDaily_InvalidDate(t *testing.T) {
	_, err := Daily(model.RawSeries{
		Frequency: "1 day",
		Data:      []model.RawPoint{{Date: "01/02/2025", Value: f(1)}},
	})
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))
}
