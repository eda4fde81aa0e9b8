// Package ingest turns uploaded workbooks into raw series and runs the
// hash-diff ingestion pass for one attachment.
package ingest

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/aquadecl/releve-core/internal/model"
)

// RowError is one non-fatal parse problem, reported alongside the series.
type RowError struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Parser extracts raw series from an attachment's stored workbook.
type Parser interface {
	ParseAttachment(ctx context.Context, path string) ([]model.RawSeries, []RowError, error)
}

// WorkbookParser reads the declaration workbook layout: one sheet per
// (point, parameter) series with a metadata block on top.
//
//	row 1: point | parameter | unit | frequency | value_type
//	row 2: the metadata values
//	row 3: date | time | value | remark | days_covered
//	row 4+: data
//
// Content validation rules live upstream; this adapter only maps cells and
// reports unreadable rows.
type WorkbookParser struct{}

// NewWorkbookParser creates the xlsx parser.
func NewWorkbookParser() *WorkbookParser {
	return &WorkbookParser{}
}

// ParseAttachment opens and parses the workbook at path.
func (p *WorkbookParser) ParseAttachment(_ context.Context, path string) ([]model.RawSeries, []RowError, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "ingest: open workbook %s", path)
	}
	return parseWorkbook(f)
}

func parseWorkbook(f *xlsx.File) ([]model.RawSeries, []RowError, error) {
	var (
		series []model.RawSeries
		errs   []RowError
	)
	for _, sheet := range f.Sheets {
		raw, sheetErrs, err := parseSheet(sheet)
		if err != nil {
			return nil, nil, err
		}
		errs = append(errs, sheetErrs...)
		if raw != nil {
			series = append(series, *raw)
		}
	}
	return series, errs, nil
}

func parseSheet(sheet *xlsx.Sheet) (*model.RawSeries, []RowError, error) {
	if len(sheet.Rows) < 3 {
		return nil, []RowError{{Sheet: sheet.Name, Row: 1, Message: "sheet too short for metadata block"}}, nil
	}

	metaValues := rowStrings(sheet.Rows[1])
	if len(metaValues) < 5 {
		return nil, []RowError{{Sheet: sheet.Name, Row: 2, Message: "incomplete metadata row"}}, nil
	}

	raw := model.RawSeries{
		PointID:   strings.TrimSpace(metaValues[0]),
		Parameter: strings.TrimSpace(metaValues[1]),
		Unit:      strings.TrimSpace(metaValues[2]),
		Frequency: strings.TrimSpace(metaValues[3]),
		ValueType: model.ValueType(strings.TrimSpace(metaValues[4])),
	}

	var errs []RowError
	for i, row := range sheet.Rows[3:] {
		rowNum := i + 4
		cells := rowStrings(row)
		if len(cells) == 0 || strings.TrimSpace(cells[0]) == "" {
			continue
		}

		pt := model.RawPoint{Date: strings.TrimSpace(cells[0])}
		if len(cells) > 1 {
			pt.Time = strings.TrimSpace(cells[1])
		}
		if len(cells) > 2 {
			v := strings.TrimSpace(cells[2])
			if v != "" {
				parsed, err := strconv.ParseFloat(v, 64)
				if err != nil {
					errs = append(errs, RowError{Sheet: sheet.Name, Row: rowNum, Message: "unreadable value " + strconv.Quote(v)})
				} else {
					pt.Value = &parsed
				}
			}
		}
		if len(cells) > 3 {
			pt.Remark = strings.TrimSpace(cells[3])
		}
		if len(cells) > 4 {
			c := strings.TrimSpace(cells[4])
			if c != "" {
				covered, err := strconv.Atoi(c)
				if err != nil {
					errs = append(errs, RowError{Sheet: sheet.Name, Row: rowNum, Message: "unreadable days_covered " + strconv.Quote(c)})
				} else {
					pt.DaysCovered = covered
				}
			}
		}

		raw.Data = append(raw.Data, pt)
		if raw.MinDate == "" || pt.Date < raw.MinDate {
			raw.MinDate = pt.Date
		}
		if raw.MaxDate == "" || pt.Date > raw.MaxDate {
			raw.MaxDate = pt.Date
		}
	}

	if len(raw.Data) == 0 {
		errs = append(errs, RowError{Sheet: sheet.Name, Row: 4, Message: "no data rows"})
		return nil, errs, nil
	}
	return &raw, errs, nil
}

func rowStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}
