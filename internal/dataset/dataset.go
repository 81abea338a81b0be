// Package dataset loads a defect dataset directory:
//
//	defects.csv      structure descriptions, indexed by the schema's structure.id
//	descriptors.csv  defect descriptors, indexed by _id
//	initial.tar.gz   one <id>.cif per structure (or the obsolete initial/ directory)
//
// Load joins the parsed structures onto the structure table under the
// schema's structure.unrelaxed column.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/JonMunkholm/defectdata/internal/archive"
	"github.com/JonMunkholm/defectdata/internal/crystal"
	"github.com/JonMunkholm/defectdata/internal/literal"
	"github.com/JonMunkholm/defectdata/internal/logging"
	"github.com/JonMunkholm/defectdata/internal/schema"
	"github.com/JonMunkholm/defectdata/internal/table"
)

// File and column names fixed by the dataset layout.
const (
	StructuresFile = "defects.csv"
	DefectsFile    = "descriptors.csv"

	DefectIndex   = "_id"
	CellColumn    = "cell"
	DefectsColumn = "defects"
)

// ErrMissingStructure is returned when a structure description has no parsed
// structure to join.
var ErrMissingStructure = errors.New("no structure for identifier")

// ReadStructuresDescriptions reads dir/defects.csv indexed by the schema's
// structure.id column. Index values are not checked for uniqueness.
func ReadStructuresDescriptions(dir string, cols *schema.Columns) (*table.Table, error) {
	id, err := cols.Lookup(schema.SectionStructure, schema.FieldID)
	if err != nil {
		return nil, err
	}
	return table.ReadCSVFile(filepath.Join(dir, StructuresFile), table.Options{Index: id})
}

// ReadDefectsDescriptions reads dir/descriptors.csv indexed by _id. The cell
// column is parsed into a literal.Tuple and the defects column into native
// values; both accept only literal syntax.
func ReadDefectsDescriptions(dir string) (*table.Table, error) {
	return table.ReadCSVFile(filepath.Join(dir, DefectsFile), table.Options{
		Index: DefectIndex,
		Converters: map[string]table.Converter{
			CellColumn:    convertCell,
			DefectsColumn: literal.Parse,
		},
	})
}

func convertCell(raw string) (any, error) {
	t, err := literal.ParseTuple(raw)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Dataset is an assembled dataset directory.
type Dataset struct {
	Dir        string
	Structures *table.Table
	Defects    *table.Table

	columns *schema.Columns
}

// New assembles a Dataset from already loaded tables. The structure table is
// expected to carry the column named by the schema's structure.unrelaxed.
func New(dir string, cols *schema.Columns, structures, defects *table.Table) *Dataset {
	return &Dataset{Dir: dir, Structures: structures, Defects: defects, columns: cols}
}

// Options tunes Load.
type Options struct {
	Progress archive.ProgressCallback
}

// Load reads the structure descriptions, parses every structure and attaches
// it to its row, then reads the defect descriptors. A nil cols uses the
// embedded schema. Nothing is written to disk.
func Load(ctx context.Context, dir string, cols *schema.Columns, opts Options) (*Dataset, error) {
	if cols == nil {
		cols = schema.Default()
	}
	logger := logging.WithFields(ctx, "dir", dir)

	structures, err := ReadStructuresDescriptions(dir, cols)
	if err != nil {
		return nil, err
	}

	parsed, err := archive.ReadStructures(ctx, dir, archive.ReadOptions{Progress: opts.Progress})
	if err != nil {
		return nil, err
	}

	col, err := cols.Lookup(schema.SectionStructure, schema.FieldUnrelaxed)
	if err != nil {
		return nil, err
	}
	err = structures.SetColumn(col, func(id string) (any, error) {
		s, ok := parsed[id]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingStructure, id)
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	defects, err := ReadDefectsDescriptions(dir)
	if err != nil {
		return nil, err
	}

	logger.Info("dataset loaded",
		"schema", cols.Source(),
		"structures", structures.Len(),
		"parsed", len(parsed),
		"defects", defects.Len(),
	)
	return New(dir, cols, structures, defects), nil
}

// Columns returns the schema the dataset was loaded with.
func (d *Dataset) Columns() *schema.Columns { return d.columns }

// StructureColumn returns the name of the column holding parsed structures.
func (d *Dataset) StructureColumn() string {
	return d.columns.MustLookup(schema.SectionStructure, schema.FieldUnrelaxed)
}

// Structure returns the parsed structure for a structure identifier.
func (d *Dataset) Structure(id string) (*crystal.Structure, error) {
	v, err := d.Structures.Get(id, d.StructureColumn())
	if err != nil {
		return nil, err
	}
	s, ok := v.(*crystal.Structure)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrMissingStructure, id)
	}
	return s, nil
}

// Targets returns the structure-table columns the schema does not reserve.
// Callers treat these as prediction targets; loading never enforces it.
func (d *Dataset) Targets() []string {
	return d.columns.Targets(d.Structures.Columns())
}
