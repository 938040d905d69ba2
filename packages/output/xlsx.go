package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/abdul-hamid-achik/apicheck/packages/core/runner"
)

const (
	// DefaultXLSXFile is used when no output file is given.
	DefaultXLSXFile = "apicheck-report.xlsx"

	reportSheetFormat  = "report_%s"
	sheetTimeFormat    = "2006-01-02_15-04-05"
	defaultColumnWidth = 14

	patternType    = "pattern"
	patternValue   = 1
	errorBgColor   = "FF5900"
	warningBgColor = "FFEB9C"

	// SlowThreshold marks passing cases that took longer than this.
	SlowThreshold = 300 * time.Millisecond
)

var xlsxHeaders = []string{
	"Suite", "Case", "Method", "URL", "Status", "Outcome",
	"Duration (ms)", "Check", "Expected", "Actual", "Message",
}

type xlsxRow struct {
	suite    string
	result   *runner.CaseResult
	failure  string
	expected string
	actual   string
}

// XLSXFormatter writes results as a worksheet. When the target workbook
// already exists a new timestamped sheet is added to it, so a report can
// sit next to the cases it was produced from.
type XLSXFormatter struct {
	path   string
	writer io.Writer
	now    func() time.Time
	rows   []xlsxRow
	totals JSONSummary
}

type XLSXOption func(*XLSXFormatter)

func NewXLSXFormatter(opts ...XLSXOption) *XLSXFormatter {
	f := &XLSXFormatter{
		now: time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.path == "" && f.writer == nil {
		f.path = DefaultXLSXFile
	}
	return f
}

// XLSXWithFile saves the report to path.
func XLSXWithFile(path string) XLSXOption {
	return func(f *XLSXFormatter) {
		f.path = path
	}
}

// XLSXWithWriter streams a new workbook to w instead of saving a file.
func XLSXWithWriter(w io.Writer) XLSXOption {
	return func(f *XLSXFormatter) {
		f.writer = w
	}
}

func (f *XLSXFormatter) FormatResult(result *runner.RunResult) {
	for _, r := range result.Results {
		row := xlsxRow{suite: result.Suite, result: r}
		switch {
		case r.Error != nil:
			row.failure = r.Error.Error()
		case r.FirstFailure() != nil:
			a := r.FirstFailure()
			row.failure = a.Message
			row.expected = formatValue(a.Expected, 500)
			row.actual = formatValue(a.Actual, 500)
		}
		f.rows = append(f.rows, row)
	}

	f.totals.Total += result.Total()
	f.totals.Passed += result.Passed
	f.totals.Failed += result.Failed
	f.totals.Errored += result.Errored
	f.totals.Skipped += result.Skipped
}

func (f *XLSXFormatter) FormatError(err error) {
	// Errors are included in individual rows
}

func (f *XLSXFormatter) FormatHeader(version string) {
	// No header needed for a workbook
}

// Flush writes the workbook.
func (f *XLSXFormatter) Flush(totalDuration time.Duration) error {
	book, sheet, err := f.open()
	if err != nil {
		return err
	}
	defer book.Close()

	if err := f.writeSheet(book, sheet, totalDuration); err != nil {
		return err
	}

	if f.writer != nil {
		_, err := book.WriteTo(f.writer)
		return err
	}
	if err := book.SaveAs(f.path); err != nil {
		return fmt.Errorf("saving report %s: %w", f.path, err)
	}
	return nil
}

func (f *XLSXFormatter) open() (*excelize.File, string, error) {
	sheet := fmt.Sprintf(reportSheetFormat, f.now().Format(sheetTimeFormat))

	if f.writer == nil {
		if _, err := os.Stat(f.path); err == nil {
			book, err := excelize.OpenFile(f.path)
			if err != nil {
				return nil, "", fmt.Errorf("opening workbook %s: %w", f.path, err)
			}
			index, err := book.NewSheet(sheet)
			if err != nil {
				book.Close()
				return nil, "", fmt.Errorf("creating sheet %s: %w", sheet, err)
			}
			book.SetActiveSheet(index)
			return book, sheet, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, "", err
		}
	}

	book := excelize.NewFile()
	if err := book.SetSheetName("Sheet1", sheet); err != nil {
		book.Close()
		return nil, "", err
	}
	return book, sheet, nil
}

func (f *XLSXFormatter) writeSheet(book *excelize.File, sheet string, totalDuration time.Duration) error {
	errorStyle, err := book.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: patternType, Pattern: patternValue, Color: []string{errorBgColor}},
	})
	if err != nil {
		return err
	}
	warningStyle, err := book.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: patternType, Pattern: patternValue, Color: []string{warningBgColor}},
	})
	if err != nil {
		return err
	}
	headerStyle, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	lastCol, _ := excelize.ColumnNumberToName(len(xlsxHeaders))
	if err := book.SetColWidth(sheet, "A", lastCol, defaultColumnWidth); err != nil {
		return err
	}
	_ = book.SetColWidth(sheet, "D", "D", 40)
	_ = book.SetColWidth(sheet, "K", "K", 48)

	headers := make([]any, len(xlsxHeaders))
	for i, h := range xlsxHeaders {
		headers[i] = h
	}
	if err := book.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}
	_ = book.SetCellStyle(sheet, "A1", lastCol+"1", headerStyle)

	for i, row := range f.rows {
		n := i + 2
		r := row.result

		var method, url, check string
		var status any
		if r.Request != nil {
			method, url = r.Request.Method, r.Request.URL
		}
		if r.Response != nil {
			status = r.Response.StatusCode
		}
		if a := r.FirstFailure(); a != nil {
			check = a.Subject + " " + a.Operator
		}
		message := row.failure
		if r.Outcome == runner.OutcomeSkipped {
			message = r.SkipReason
		}

		cells := []any{
			row.suite, r.Name, method, url, status, string(r.Outcome),
			r.Duration.Milliseconds(), check, row.expected, row.actual, message,
		}
		cell, _ := excelize.CoordinatesToCellName(1, n)
		if err := book.SetSheetRow(sheet, cell, &cells); err != nil {
			return err
		}

		last, _ := excelize.CoordinatesToCellName(len(xlsxHeaders), n)
		switch {
		case r.Outcome == runner.OutcomeFailed || r.Outcome == runner.OutcomeErrored:
			_ = book.SetCellStyle(sheet, cell, last, errorStyle)
		case r.Outcome == runner.OutcomePassed && r.Duration > SlowThreshold:
			_ = book.SetCellStyle(sheet, cell, last, warningStyle)
		}
	}

	start := len(f.rows) + 3
	summary := [][2]any{
		{"Summary", ""},
		{"Total", f.totals.Total},
		{"Passed", f.totals.Passed},
		{"Failed", f.totals.Failed},
		{"Errored", f.totals.Errored},
		{"Skipped", f.totals.Skipped},
		{"Duration (ms)", totalDuration.Milliseconds()},
	}
	for i, line := range summary {
		row := []any{line[0], line[1]}
		if err := book.SetSheetRow(sheet, fmt.Sprintf("A%d", start+i), &row); err != nil {
			return err
		}
	}
	_ = book.SetCellStyle(sheet, fmt.Sprintf("A%d", start), fmt.Sprintf("A%d", start), headerStyle)
	return nil
}
