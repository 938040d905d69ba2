package suite

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DefaultSheet is read when no sheet is named and the workbook has one
// called "cases"; otherwise the first sheet is used.
const DefaultSheet = "cases"

// XLSXColumns lists the recognised header cells. Only name, method, path
// and status are required.
var XLSXColumns = []string{"name", "method", "path", "status", "body", "headers", "assertions", "tags", "skip", "description"}

// LoadXLSX reads test cases from a spreadsheet. The first row holds the
// column headers (any order, case-insensitive); each following non-empty
// row is one case. Assertions and headers take one entry per line within
// the cell.
func LoadXLSX(path, sheet string) (*Suite, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = pickSheet(f.GetSheetList())
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	s := &Suite{
		Name:      suiteNameFromPath(path),
		Path:      path,
		Dir:       filepath.Dir(path),
		Variables: make(map[string]string),
	}
	if len(rows) == 0 {
		return nil, &ValidationError{Suite: s.Name, Err: fmt.Errorf("sheet %q is empty", sheet)}
	}

	cols := make(map[string]int)
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"name", "method", "path", "status"} {
		if _, ok := cols[required]; !ok {
			return nil, &ValidationError{Suite: s.Name, Err: fmt.Errorf("missing %q column", required)}
		}
	}

	for i, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		tc, err := rowToTestCase(row, cols)
		if err != nil {
			name := cell(row, cols, "name")
			if name == "" {
				name = fmt.Sprintf("row %d", i+2)
			}
			return nil, &ValidationError{Suite: s.Name, Case: name, Err: err}
		}
		s.Cases = append(s.Cases, tc)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func pickSheet(sheets []string) string {
	for _, name := range sheets {
		if strings.EqualFold(name, DefaultSheet) {
			return name
		}
	}
	if len(sheets) > 0 {
		return sheets[0]
	}
	return DefaultSheet
}

func rowToTestCase(row []string, cols map[string]int) (*TestCase, error) {
	tc := &TestCase{
		Name:        cell(row, cols, "name"),
		Description: cell(row, cols, "description"),
		Method:      strings.ToUpper(cell(row, cols, "method")),
		Path:        cell(row, cols, "path"),
		RawBody:     cell(row, cols, "body"),
		Skip:        cell(row, cols, "skip"),
	}

	status, err := strconv.Atoi(cell(row, cols, "status"))
	if err != nil {
		return nil, fmt.Errorf("status %q is not a number", cell(row, cols, "status"))
	}
	tc.ExpectStatus = status

	if tags := cell(row, cols, "tags"); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tc.Tags = append(tc.Tags, t)
			}
		}
	}

	for _, line := range lines(cell(row, cols, "headers")) {
		key, value, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("header %q is not 'Name: value'", line)
		}
		if tc.Headers == nil {
			tc.Headers = make(map[string]string)
		}
		tc.Headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	for _, line := range lines(cell(row, cols, "assertions")) {
		a, err := ParseAssertion(line)
		if err != nil {
			return nil, err
		}
		tc.Assertions = append(tc.Assertions, a)
	}

	return tc, nil
}

func cell(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func lines(s string) []string {
	var out []string
	for _, l := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
