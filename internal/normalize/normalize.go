// Package normalize converts raw parser output (daily, sub-daily or
// super-daily points) into the canonical one-row-per-calendar-day shape
// stored by the series store.
package normalize

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aquadecl/releve-core/internal/fault"
	"github.com/aquadecl/releve-core/internal/model"
)

// maxUniqueRemarks caps the distinct remark strings kept per day.
const maxUniqueRemarks = 10

type cadenceClass int

const (
	cadenceSubDaily cadenceClass = iota
	cadenceDaily
	cadenceSuperDaily
)

type cadence struct {
	class cadenceClass
	// interval is set for sub-daily cadences.
	interval time.Duration
	// span describes super-daily coverage; months is used for calendar
	// units whose day count depends on the start date.
	days   int
	months int
}

// Result is the canonical daily form of one raw series.
type Result struct {
	// Frequency is always model.DailyFrequency.
	Frequency string
	// OriginalFrequency is set only when super-daily expansion occurred.
	OriginalFrequency string
	Values            []model.SeriesValue
}

// Daily normalizes a raw series to one row per calendar day.
//
// Sub-daily points are aggregated per day, super-daily points are expanded
// into equal daily splits, daily points pass through unchanged. Values that
// are missing, NaN or ±Inf are silently excluded from aggregates.
func Daily(raw model.RawSeries) (*Result, error) {
	c, err := parseFrequency(raw.Frequency)
	if err != nil {
		return nil, err
	}

	switch c.class {
	case cadenceDaily:
		return passthrough(raw)
	case cadenceSubDaily:
		return aggregate(raw, c)
	default:
		return expand(raw, c)
	}
}

// parseFrequency understands "<n> <unit>" cadence strings such as
// "15 minutes", "1 hour", "1 day", "1 week", "1 month", "1 quarter", "1 year".
func parseFrequency(freq string) (cadence, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(freq)))
	if len(fields) != 2 {
		return cadence{}, fault.Validationf("normalize: unsupported frequency %q", freq)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n <= 0 {
		return cadence{}, fault.Validationf("normalize: unsupported frequency %q", freq)
	}

	switch strings.TrimSuffix(fields[1], "s") {
	case "second":
		return cadence{class: cadenceSubDaily, interval: time.Duration(n) * time.Second}, nil
	case "minute":
		return cadence{class: cadenceSubDaily, interval: time.Duration(n) * time.Minute}, nil
	case "hour":
		return cadence{class: cadenceSubDaily, interval: time.Duration(n) * time.Hour}, nil
	case "day":
		if n == 1 {
			return cadence{class: cadenceDaily}, nil
		}
		return cadence{class: cadenceSuperDaily, days: n}, nil
	case "week":
		return cadence{class: cadenceSuperDaily, days: 7 * n}, nil
	case "month":
		return cadence{class: cadenceSuperDaily, months: n}, nil
	case "quarter":
		return cadence{class: cadenceSuperDaily, months: 3 * n}, nil
	case "year":
		return cadence{class: cadenceSuperDaily, months: 12 * n}, nil
	default:
		return cadence{}, fault.Validationf("normalize: unsupported frequency %q", freq)
	}
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(model.DayLayout, s)
	if err != nil {
		return time.Time{}, fault.Validationf("normalize: invalid date %q", s)
	}
	return t, nil
}

// passthrough copies daily points as-is, keeping the first row seen for a day.
func passthrough(raw model.RawSeries) (*Result, error) {
	seen := make(map[string]bool, len(raw.Data))
	values := make([]model.SeriesValue, 0, len(raw.Data))
	for _, p := range raw.Data {
		if _, err := parseDay(p.Date); err != nil {
			return nil, err
		}
		if seen[p.Date] {
			continue
		}
		seen[p.Date] = true
		values = append(values, model.SeriesValue{
			Day:    p.Date,
			Value:  finiteOrNil(p.Value),
			Remark: p.Remark,
		})
	}
	sortByDay(values)
	return &Result{Frequency: model.DailyFrequency, Values: values}, nil
}

// aggregate groups sub-daily points by calendar day and computes the daily
// aggregate set. The canonical value is the daily sum for cumulative
// parameters; for other value types only the aggregates are filled and the
// consumer decides how to read them.
func aggregate(raw model.RawSeries, c cadence) (*Result, error) {
	byDay := make(map[string][]model.RawPoint)
	var order []string
	for _, p := range raw.Data {
		if _, err := parseDay(p.Date); err != nil {
			return nil, err
		}
		if _, ok := byDay[p.Date]; !ok {
			order = append(order, p.Date)
		}
		byDay[p.Date] = append(byDay[p.Date], p)
	}

	intervalHours := c.interval.Hours()
	values := make([]model.SeriesValue, 0, len(order))
	for _, day := range order {
		points := byDay[day]

		agg := model.DailyAggregates{
			CoverageHours: float64(len(points)) * intervalHours,
		}
		remarks := map[string]bool{}
		sub := make([]model.SubDailyPoint, 0, len(points))
		for _, p := range points {
			sub = append(sub, model.SubDailyPoint{Time: p.Time, Value: finiteOrNil(p.Value), Remark: p.Remark})
			if p.Remark != "" {
				agg.HasRemark = true
				remarks[p.Remark] = true
			}
			v := finiteOrNil(p.Value)
			if v == nil {
				continue
			}
			if agg.Count == 0 || *v < agg.Min {
				agg.Min = *v
			}
			if agg.Count == 0 || *v > agg.Max {
				agg.Max = *v
			}
			agg.Sum += *v
			agg.Count++
		}
		if agg.Count > 0 {
			agg.Mean = agg.Sum / float64(agg.Count)
		}
		agg.UniqueRemarks = capRemarks(remarks)

		sv := model.SeriesValue{
			Day:             day,
			DailyAggregates: &agg,
			SubDaily:        sub,
		}
		if raw.ValueType == model.ValueCumulative && agg.Count > 0 {
			sum := agg.Sum
			sv.Value = &sum
		}
		values = append(values, sv)
	}
	sortByDay(values)
	return &Result{Frequency: model.DailyFrequency, Values: values}, nil
}

// expand spreads each super-daily point into daysCovered daily rows, each
// carrying an equal split of the original value plus enough provenance to
// reconstruct the source figure exactly.
func expand(raw model.RawSeries, c cadence) (*Result, error) {
	var values []model.SeriesValue
	for _, p := range raw.Data {
		start, err := parseDay(p.Date)
		if err != nil {
			return nil, err
		}
		v := finiteOrNil(p.Value)
		if v == nil {
			continue
		}

		n := p.DaysCovered
		if n <= 0 {
			n = coveredDays(start, c)
		}
		split := *v / float64(n)
		for i := 0; i < n; i++ {
			day := start.AddDate(0, 0, i).Format(model.DayLayout)
			sv := split
			orig := *v
			values = append(values, model.SeriesValue{
				Day:               day,
				Value:             &sv,
				Remark:            p.Remark,
				OriginalValue:     &orig,
				OriginalDate:      p.Date,
				OriginalFrequency: raw.Frequency,
				DaysCovered:       n,
			})
		}
	}
	sortByDay(values)
	return &Result{
		Frequency:         model.DailyFrequency,
		OriginalFrequency: raw.Frequency,
		Values:            values,
	}, nil
}

// coveredDays derives the day count of a calendar span starting at start.
func coveredDays(start time.Time, c cadence) int {
	if c.days > 0 {
		return c.days
	}
	end := start.AddDate(0, c.months, 0)
	return int(end.Sub(start).Hours() / 24)
}

func capRemarks(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	if len(out) > maxUniqueRemarks {
		out = out[:maxUniqueRemarks]
	}
	return out
}

func finiteOrNil(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

func sortByDay(values []model.SeriesValue) {
	sort.Slice(values, func(i, j int) bool { return values[i].Day < values[j].Day })
}
