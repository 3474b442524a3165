package pipeline

import (
	"fmt"
	"io"
	"os"

	"exoclassifier/ml"
)

// Dataset is the cleaned training table.
type Dataset struct {
	Features [][]float64
	Labels   []string
	// Rows holds the 0-based source row of each kept sample.
	Rows   []int
	Issues []QualityIssue
	Stats  CleaningStats
}

func (d *Dataset) Len() int {
	return len(d.Labels)
}

// LoadDataset reads a KOI export from path. See ReadDataset.
func LoadDataset(path string, cleaner *DataCleaner) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ds, err := ReadDataset(f, cleaner)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// ReadDataset reads the feature and label columns of a KOI table. Lines starting with '#'
// are skipped. A missing column or a non-numeric feature value fails the whole read; rows
// with missing values are dropped by cleaner.
func ReadDataset(r io.Reader, cleaner *DataCleaner) (*Dataset, error) {
	if cleaner == nil {
		cleaner = NewDataCleaner(nil)
	}
	columns := append(ml.FeatureNames(), ml.LabelColumn)
	table, err := openTable(r, '#', columns)
	if err != nil {
		return nil, err
	}

	var records []*Record
	for {
		row, cells, err := table.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		record, err := newRecord(row, columns, cells)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	cleaned, issues := cleaner.Clean(records)
	ds := &Dataset{
		Features: make([][]float64, 0, len(cleaned)),
		Labels:   make([]string, 0, len(cleaned)),
		Rows:     make([]int, 0, len(cleaned)),
		Issues:   issues,
		Stats:    cleaner.GetStats(),
	}
	for _, record := range cleaned {
		vector, ok := record.Observation.Vector()
		if !ok || record.Disposition == nil {
			continue
		}
		ds.Features = append(ds.Features, vector)
		ds.Labels = append(ds.Labels, *record.Disposition)
		ds.Rows = append(ds.Rows, record.Row)
	}
	return ds, nil
}

func newRecord(row int, columns, cells []string) (*Record, error) {
	record := &Record{Row: row}
	for i := 0; i < ml.FeatureCount; i++ {
		v, err := parseCell(cells[i])
		if err != nil {
			return nil, &ValueError{Row: row, Column: columns[i], Value: cells[i]}
		}
		if err := record.Observation.Set(i, v); err != nil {
			return nil, err
		}
	}
	if label := cells[ml.FeatureCount]; !IsMissing(label) {
		record.Disposition = &label
	}
	return record, nil
}
