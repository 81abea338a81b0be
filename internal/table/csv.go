package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/JonMunkholm/defectdata/internal/stream"
)

// Converter turns a raw cell into a typed value. Converter columns skip type
// inference and missing-value detection.
type Converter func(raw string) (any, error)

// Options controls ReadCSV.
type Options struct {
	// Index names the column whose values key the rows. Required.
	Index string

	// Converters maps column names to cell converters. Entries for columns
	// absent from the file are ignored.
	Converters map[string]Converter

	// RawStrings disables type inference; every non-converter cell is kept
	// as its string, and missing-value markers are not recognized.
	RawStrings bool

	// UniqueIndex makes a repeated index value an error.
	UniqueIndex bool
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string, opts Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := ReadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadCSV reads comma-separated data with a header row. A leading UTF-8 BOM
// is dropped and invalid UTF-8 is replaced before parsing.
func ReadCSV(r io.Reader, opts Options) (*Table, error) {
	if opts.Index == "" {
		return nil, errors.New("index column not specified")
	}

	cr := csv.NewReader(stream.ForCSV(r))
	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}

	indexPos := -1
	var columns []string
	var colPos []int
	for i, name := range header {
		if name == opts.Index && indexPos < 0 {
			indexPos = i
			continue
		}
		columns = append(columns, name)
		colPos = append(colPos, i)
	}
	if indexPos < 0 {
		return nil, fmt.Errorf("index %w: %q", ErrMissingColumn, opts.Index)
	}

	var ids []string
	raw := make([][]string, len(columns))
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		ids = append(ids, record[indexPos])
		for c, pos := range colPos {
			raw[c] = append(raw[c], record[pos])
		}
	}

	t := New(opts.Index, columns)
	typed := make([][]any, len(columns))
	for c, name := range columns {
		// Header is line 1; data starts on line 2.
		if conv, ok := opts.Converters[name]; ok {
			vals := make([]any, len(raw[c]))
			for r, cell := range raw[c] {
				v, err := conv(cell)
				if err != nil {
					return nil, fmt.Errorf("line %d, column %q: %w", r+2, name, err)
				}
				vals[r] = v
			}
			typed[c] = vals
			continue
		}
		if opts.RawStrings {
			vals := make([]any, len(raw[c]))
			for r, cell := range raw[c] {
				vals[r] = cell
			}
			typed[c] = vals
			continue
		}
		typed[c] = InferColumn(raw[c])
	}

	row := make([]any, len(columns))
	for r, id := range ids {
		if opts.UniqueIndex && t.Has(id) {
			return nil, fmt.Errorf("line %d: %w: %q", r+2, ErrDuplicateIndex, id)
		}
		for c := range columns {
			row[c] = typed[c][r]
		}
		if err := t.Append(id, row); err != nil {
			return nil, err
		}
	}
	return t, nil
}
