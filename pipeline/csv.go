// Package pipeline reads KOI tables from CSV and cleans them for training and inference.
package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// missingTokens are the cell values read as missing, matching the NA markers common
// spreadsheet and dataframe exports write.
var missingTokens = map[string]struct{}{
	"":         {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"-1.#IND":  {},
	"-1.#QNAN": {},
	"-NaN":     {},
	"-nan":     {},
	"1.#IND":   {},
	"1.#QNAN":  {},
	"<NA>":     {},
	"N/A":      {},
	"NA":       {},
	"NULL":     {},
	"NaN":      {},
	"None":     {},
	"n/a":      {},
	"nan":      {},
	"null":     {},
}

// IsMissing reports whether a raw cell denotes a missing value.
func IsMissing(cell string) bool {
	_, ok := missingTokens[strings.TrimSpace(cell)]
	return ok
}

// newCSVReader decodes UTF-8 (with or without BOM) and UTF-16 input with a BOM.
// A zero comment rune disables comment lines.
func newCSVReader(r io.Reader, comment rune) *csv.Reader {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.Comment = comment
	return reader
}

var errNotFinite = errors.New("value is not finite")

// parseCell converts a cell to a float. Missing cells return nil.
func parseCell(cell string) (*float64, error) {
	if IsMissing(cell) {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) {
		return nil, nil
	}
	if math.IsInf(v, 0) {
		return nil, errNotFinite
	}
	return &v, nil
}

// locateColumns returns the position of each wanted column in header. The first
// occurrence of a duplicated name wins. Columns absent from header are returned in missing.
func locateColumns(header []string, wanted []string) (positions []int, missing []string) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	positions = make([]int, len(wanted))
	for i, name := range wanted {
		pos, ok := index[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		positions[i] = pos
	}
	return positions, missing
}

// ColumnError reports required columns absent from a CSV header.
type ColumnError struct {
	Missing []string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// ValueError reports a cell that is neither a finite number nor a missing marker.
type ValueError struct {
	Row    int
	Column string
	Value  string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("row %d, column %s: invalid number %q", e.Row, e.Column, e.Value)
}

// ErrNoHeader is returned for input without a header row.
var ErrNoHeader = errors.New("csv has no header row")

// tableReader yields the cells of selected columns row by row.
type tableReader struct {
	reader    *csv.Reader
	columns   []string
	positions []int
	width     int
	row       int
}

func openTable(r io.Reader, comment rune, columns []string) (*tableReader, error) {
	reader := newCSVReader(r, comment)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	positions, missing := locateColumns(header, columns)
	if len(missing) > 0 {
		return nil, &ColumnError{Missing: missing}
	}
	return &tableReader{
		reader:    reader,
		columns:   columns,
		positions: positions,
		width:     len(header),
	}, nil
}

// next returns the selected cells of the next data row and its 0-based position.
// Cells past the end of a short row are empty. It returns io.EOF after the last row.
func (t *tableReader) next() (int, []string, error) {
	record, err := t.reader.Read()
	if err == io.EOF {
		return 0, nil, io.EOF
	}
	if err != nil {
		return 0, nil, fmt.Errorf("read row %d: %w", t.row, err)
	}
	row := t.row
	t.row++
	if len(record) > t.width {
		return 0, nil, fmt.Errorf("row %d: expected %d fields, saw %d", row, t.width, len(record))
	}
	cells := make([]string, len(t.positions))
	for i, pos := range t.positions {
		if pos < len(record) {
			cells[i] = record[pos]
		}
	}
	return row, cells, nil
}
