package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ReadCSV reads a dataset in long form: a header row followed by one row
// per (sample, step) with columns "sample,step,<feature>...". Samples and
// steps are numbered from 0 and every sample must have the same number of
// steps. Empty cells and "NaN" are missing values.
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) < 3 {
		return nil, fmt.Errorf("CSV header needs sample, step and at least one feature, got %v", header)
	}
	nFeatures := len(header) - 2

	type row struct {
		sample, step int
		values       []float64
	}
	var rows []row
	maxSample, maxStep := -1, -1
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		cur := row{values: make([]float64, nFeatures)}
		if cur.sample, err = strconv.Atoi(record[0]); err != nil || cur.sample < 0 {
			return nil, fmt.Errorf("line %d: invalid sample %q", line, record[0])
		}
		if cur.step, err = strconv.Atoi(record[1]); err != nil || cur.step < 0 {
			return nil, fmt.Errorf("line %d: invalid step %q", line, record[1])
		}
		for f, cell := range record[2:] {
			if cur.values[f], err = parseCell(cell); err != nil {
				return nil, fmt.Errorf("line %d, column %s: %w", line, header[f+2], err)
			}
		}
		maxSample, maxStep = max(maxSample, cur.sample), max(maxStep, cur.step)
		rows = append(rows, cur)
	}
	if len(rows) == 0 {
		return nil, errors.New("CSV has no data rows")
	}

	n, t := maxSample+1, maxStep+1
	if len(rows) != n*t {
		return nil, fmt.Errorf("%w: %d rows for %d samples of %d steps", ErrShape, len(rows), n, t)
	}
	x := make([]float64, n*t*nFeatures)
	seen := make([]bool, n*t)
	for _, cur := range rows {
		pos := cur.sample*t + cur.step
		if seen[pos] {
			return nil, fmt.Errorf("duplicate row for sample %d step %d", cur.sample, cur.step)
		}
		seen[pos] = true
		copy(x[pos*nFeatures:], cur.values)
	}
	return NewDataset(x, n, t, nFeatures)
}

func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" || strings.EqualFold(cell, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}

// WriteCSV writes values laid out [n, t, f] in the format read by ReadCSV.
// NaN is written as an empty cell.
func WriteCSV(w io.Writer, values []float64, n, t, f int) error {
	if len(values) != n*t*f {
		return fmt.Errorf("%w: %d values for [%d, %d, %d]", ErrShape, len(values), n, t, f)
	}
	writer := csv.NewWriter(w)
	header := []string{"sample", "step"}
	for i := 0; i < f; i++ {
		header = append(header, "f"+strconv.Itoa(i))
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	record := make([]string, f+2)
	for s := 0; s < n; s++ {
		for step := 0; step < t; step++ {
			record[0], record[1] = strconv.Itoa(s), strconv.Itoa(step)
			for i := 0; i < f; i++ {
				v := values[(s*t+step)*f+i]
				if math.IsNaN(v) {
					record[i+2] = ""
				} else {
					record[i+2] = strconv.FormatFloat(v, 'g', -1, 64)
				}
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadCSV(f)
}

// WriteCSVFile writes values to path with WriteCSV.
func WriteCSVFile(path string, values []float64, n, t, f int) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteCSV(file, values, n, t, f)
}
