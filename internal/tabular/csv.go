package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// rowsPerContextCheck bounds how often long row loops poll for cancellation.
const rowsPerContextCheck = 1024

// ErrEmptyFile indicates a text file with no header row.
var ErrEmptyFile = errors.New("file contains no header row")

// loadCSV reads a CSV file with a header row. When sampling, each data row
// is kept with probability sampleRate while the header is always kept.
func (l *Loader) loadCSV(ctx context.Context, path string, shouldSample bool) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}

		return nil, err
	}

	header[0] = strings.TrimPrefix(header[0], "\uFEFF")

	raw := make([][]string, len(header))

	for n := 0; ; n++ {
		if n%rowsPerContextCheck == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, err
		}

		if shouldSample && l.rng.Float64() > l.sampleRate {
			continue
		}

		for i, cell := range record {
			raw[i] = append(raw[i], cell)
		}
	}

	columns := make([]*Column, len(header))
	for i, name := range header {
		columns[i] = inferColumn(name, raw[i])
	}

	table, err := NewTable(columns...)
	if err != nil {
		return nil, fmt.Errorf("assemble table: %w", err)
	}

	return table, nil
}
