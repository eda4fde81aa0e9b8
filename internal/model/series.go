package model

import "time"

// DayLayout is the canonical calendar-day format used everywhere a day is
// carried as a string (diffing, ledger keys, computed projections).
const DayLayout = "2006-01-02"

// DailyFrequency is the frequency every stored series is normalized to.
const DailyFrequency = "1 day"

// ValueType classifies how a measured value accumulates over time.
type ValueType string

const (
	// ValueCumulative marks volumes that sum over time (withdrawn m³).
	ValueCumulative ValueType = "cumulative"
	// ValueInstantaneous marks point-in-time readings (level, temperature).
	ValueInstantaneous ValueType = "instantaneous"
)

// RawPoint is one measurement as produced by the upstream spreadsheet parser.
// Value is a pointer so missing cells survive the trip; NaN and ±Inf are
// tolerated and filtered during normalization.
type RawPoint struct {
	Date        string   `json:"date"`
	Time        string   `json:"time,omitempty"`
	Value       *float64 `json:"value"`
	Remark      string   `json:"remark,omitempty"`
	DaysCovered int      `json:"days_covered,omitempty"`
}

// RawSeries is the parser-output shape for one (point, parameter) series.
type RawSeries struct {
	PointID   string     `json:"point_id"`
	Parameter string     `json:"parameter"`
	Unit      string     `json:"unit,omitempty"`
	Frequency string     `json:"frequency"`
	ValueType ValueType  `json:"value_type"`
	MinDate   string     `json:"min_date"`
	MaxDate   string     `json:"max_date"`
	Data      []RawPoint `json:"data"`
}

// DailyAggregates summarizes the sub-daily points behind one canonical day.
// Present only when the source cadence was finer than a day.
type DailyAggregates struct {
	Count         int      `json:"count"`
	Min           float64  `json:"min"`
	Max           float64  `json:"max"`
	Mean          float64  `json:"mean"`
	Sum           float64  `json:"sum"`
	CoverageHours float64  `json:"coverage_hours"`
	HasRemark     bool     `json:"has_remark"`
	UniqueRemarks []string `json:"unique_remarks,omitempty"`
}

// SubDailyPoint is one intra-day measurement retained alongside the canonical
// daily row so range reads can expose the source cadence.
type SubDailyPoint struct {
	Time   string   `json:"time"`
	Value  *float64 `json:"value"`
	Remark string   `json:"remark,omitempty"`
}

// SeriesValue is the canonical value for one calendar day of one series.
//
// Original* and DaysCovered are set only when the row was expanded from a
// super-daily source point, so the true declared figure stays reconstructable.
type SeriesValue struct {
	SeriesID          string           `json:"series_id,omitempty"`
	Day               string           `json:"day"`
	Value             *float64         `json:"value"`
	Remark            string           `json:"remark,omitempty"`
	OriginalValue     *float64         `json:"original_value,omitempty"`
	OriginalDate      string           `json:"original_date,omitempty"`
	OriginalFrequency string           `json:"original_frequency,omitempty"`
	DaysCovered       int              `json:"days_covered,omitempty"`
	DailyAggregates   *DailyAggregates `json:"daily_aggregates,omitempty"`
	SubDaily          []SubDailyPoint  `json:"sub_daily,omitempty"`
}

// Computed is the materialized projection cached on each series.
//
// It is derived from ledger + dossier state and can always be rebuilt from
// them; conflict-sensitive decisions must re-read the ledger instead.
type Computed struct {
	PointID        string        `json:"point_id"`
	OperatorID     string        `json:"operator_id,omitempty"`
	DossierStatus  DossierStatus `json:"dossier_status,omitempty"`
	IntegratedDays []string      `json:"integrated_days"`
}

// Series is one canonical daily time series for one (point, parameter) pair
// sourced from one attachment. Frequency is always "1 day" once stored;
// OriginalFrequency records the source cadence when expansion occurred.
type Series struct {
	ID                string    `json:"id"`
	DossierID         string    `json:"dossier_id"`
	AttachmentID      string    `json:"attachment_id"`
	Tenant            string    `json:"tenant"`
	PointID           string    `json:"point_id"`
	Parameter         string    `json:"parameter"`
	Unit              string    `json:"unit,omitempty"`
	Frequency         string    `json:"frequency"`
	OriginalFrequency string    `json:"original_frequency,omitempty"`
	ValueType         ValueType `json:"value_type"`
	MinDate           string    `json:"min_date"`
	MaxDate           string    `json:"max_date"`
	ContentHash       string    `json:"content_hash"`
	Computed          Computed  `json:"computed"`
	CreatedAt         time.Time `json:"created_at"`
}
