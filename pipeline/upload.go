package pipeline

import (
	"io"

	"exoclassifier/ml"
)

// ParseObservations reads an uploaded CSV of feature rows. Columns are matched by header
// name and extra columns are ignored. Missing markers and cells absent from short rows
// become nil values; the caller decides what to do with incomplete rows.
func ParseObservations(r io.Reader) ([]ml.Observation, error) {
	columns := ml.FeatureNames()
	table, err := openTable(r, 0, columns)
	if err != nil {
		return nil, err
	}

	observations := make([]ml.Observation, 0)
	for {
		row, cells, err := table.next()
		if err == io.EOF {
			return observations, nil
		}
		if err != nil {
			return nil, err
		}
		var obs ml.Observation
		for i, cell := range cells {
			v, err := parseCell(cell)
			if err != nil {
				return nil, &ValueError{Row: row, Column: columns[i], Value: cell}
			}
			if err := obs.Set(i, v); err != nil {
				return nil, err
			}
		}
		observations = append(observations, obs)
	}
}
