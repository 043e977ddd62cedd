package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrEmptyTable is returned when a file has no header row
var ErrEmptyTable = errors.New("table has no header row")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a raw rectangular extract: a header row and data rows padded to its width
type Table struct {
	Columns []string
	Rows    [][]string
	// Lines holds the 1-based source line of each row
	Lines []int
}

// Line returns the source line of row i. Tables built without line
// information assume a single header line and no skipped rows.
func (t *Table) Line(i int) int {
	if i < len(t.Lines) {
		return t.Lines[i]
	}
	return i + 2
}

// ColumnIndex returns the position of name in Columns, or -1
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// ReadTable parses content by file extension: .xlsx/.xlsm through excelize, anything else as
// delimited text with the delimiter sniffed from the header line
func ReadTable(name string, content []byte) (*Table, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return readWorkbook(content)
	default:
		return readDelimited(content)
	}
}

func readWorkbook(content []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyTable
	}

	// the first sheet holds the extract; later sheets are usually notes or pivots
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	// GetRows keeps interior empty rows, so the slice index is the sheet row
	lines := make([]int, len(rows))
	for i := range lines {
		lines[i] = i + 1
	}
	return buildTable(rows, lines)
}

func readDelimited(content []byte) (*Table, error) {
	content = bytes.TrimPrefix(content, utf8BOM)

	r := csv.NewReader(bytes.NewReader(content))
	r.Comma = sniffDelimiter(content)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var (
		rows  [][]string
		lines []int
	)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse delimited file: %w", err)
		}
		line, _ := r.FieldPos(0)
		rows = append(rows, record)
		lines = append(lines, line)
	}
	return buildTable(rows, lines)
}

// sniffDelimiter picks the candidate that occurs most often in the first line
func sniffDelimiter(content []byte) rune {
	line := content
	if i := bytes.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}

	best, bestCount := ',', 0
	for _, d := range []rune{',', '\t', ';', '|'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func buildTable(rows [][]string, lines []int) (*Table, error) {
	header := -1
	for i, row := range rows {
		if !isBlankRow(row) {
			header = i
			break
		}
	}
	if header < 0 {
		return nil, ErrEmptyTable
	}

	columns := make([]string, len(rows[header]))
	for i, c := range rows[header] {
		columns[i] = strings.TrimSpace(c)
	}
	// trailing unnamed columns come from spreadsheet formatting, not data
	for len(columns) > 0 && columns[len(columns)-1] == "" {
		columns = columns[:len(columns)-1]
	}
	if len(columns) == 0 {
		return nil, ErrEmptyTable
	}

	t := &Table{Columns: columns}
	for i := header + 1; i < len(rows); i++ {
		row := rows[i]
		if isBlankRow(row) {
			continue
		}
		padded := make([]string, len(columns))
		for i := range padded {
			if i < len(row) {
				padded[i] = strings.TrimSpace(row[i])
			}
		}
		t.Rows = append(t.Rows, padded)
		t.Lines = append(t.Lines, lines[i])
	}
	return t, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
