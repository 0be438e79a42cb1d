package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
)

// LoadCSV reads a dataset from a CSV file with a header row. Every column
// except the last is parsed as a numeric feature; the last column is the
// class label. Distinct label strings are mapped to integer class ids in
// lexicographic order, so the mapping is stable across runs.
func LoadCSV(path string) (Matrix, []int, []string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, nil, nil, nil, fmt.Errorf("dataset %s: need a header and at least one row", path)
	}

	header := rows[0]
	if len(header) < 2 {
		return nil, nil, nil, nil, fmt.Errorf("dataset %s: need at least one feature column and a label column", path)
	}
	featureNames := append([]string(nil), header[:len(header)-1]...)

	x := make(Matrix, 0, len(rows)-1)
	rawLabels := make([]string, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, nil, nil, nil, fmt.Errorf("dataset %s: row %d has %d columns, expected %d", path, i+1, len(row), len(header))
		}
		features := make([]float64, len(row)-1)
		for j, cell := range row[:len(row)-1] {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, nil, nil, nil, fmt.Errorf("dataset %s: row %d column %q: %w", path, i+1, header[j], err)
			}
			features[j] = v
		}
		x = append(x, features)
		rawLabels = append(rawLabels, row[len(row)-1])
	}

	classNames := distinctSorted(rawLabels)
	classID := make(map[string]int, len(classNames))
	for i, name := range classNames {
		classID[name] = i
	}
	y := make([]int, len(rawLabels))
	for i, raw := range rawLabels {
		y[i] = classID[raw]
	}

	if err := Validate(x, y); err != nil {
		return nil, nil, nil, nil, err
	}
	return x, y, featureNames, classNames, nil
}

func distinctSorted(values []string) []string {
	seen := make(map[string]struct{})
	for _, v := range values {
		seen[v] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
