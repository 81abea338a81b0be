// Package export writes an assembled dataset into PostgreSQL with COPY.
//
// Both tables are written in one transaction. Expected layout:
//
//	CREATE TABLE structures (
//	    id         text PRIMARY KEY,
//	    formula    text,
//	    num_sites  integer,
//	    structure  jsonb,
//	    attributes jsonb NOT NULL,
//	    run_id     uuid
//	);
//	CREATE TABLE defects (
//	    id         text PRIMARY KEY,
//	    cell       jsonb,
//	    defects    jsonb,
//	    attributes jsonb NOT NULL,
//	    run_id     uuid
//	);
package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/defectdata/internal/crystal"
	"github.com/JonMunkholm/defectdata/internal/dataset"
	"github.com/JonMunkholm/defectdata/internal/logging"
	"github.com/JonMunkholm/defectdata/internal/table"
)

// Default table names.
const (
	DefaultStructuresTable = "structures"
	DefaultDefectsTable    = "defects"
)

// Column order of the COPY rows.
var (
	StructureColumns = []string{"id", "formula", "num_sites", "structure", "attributes", "run_id"}
	DefectColumns    = []string{"id", "cell", "defects", "attributes", "run_id"}
)

// TxBeginner starts a transaction. Satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Exporter copies datasets into PostgreSQL.
type Exporter struct {
	DB              TxBeginner
	StructuresTable string // may be schema-qualified, e.g. "lab.structures"
	DefectsTable    string
}

// Result counts the rows written.
type Result struct {
	Structures int64
	Defects    int64
}

// Export writes both tables of ds. Nothing is committed unless both copies
// succeed.
func (e *Exporter) Export(ctx context.Context, ds *dataset.Dataset) (Result, error) {
	var res Result
	logger := logging.WithFields(ctx, "dir", ds.Dir)

	runID := runUUID(ctx)
	sRows, err := structureRows(ds, runID)
	if err != nil {
		return res, err
	}
	dRows, err := defectRows(ds.Defects, runID)
	if err != nil {
		return res, err
	}

	tx, err := e.DB.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	structuresTable := tableName(e.StructuresTable, DefaultStructuresTable)
	res.Structures, err = tx.CopyFrom(ctx, structuresTable, StructureColumns, pgx.CopyFromRows(sRows))
	if err != nil {
		return res, fmt.Errorf("copy %s: %w", structuresTable.Sanitize(), err)
	}

	defectsTable := tableName(e.DefectsTable, DefaultDefectsTable)
	res.Defects, err = tx.CopyFrom(ctx, defectsTable, DefectColumns, pgx.CopyFromRows(dRows))
	if err != nil {
		return res, fmt.Errorf("copy %s: %w", defectsTable.Sanitize(), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}

	logger.Info("dataset exported",
		"structures", res.Structures,
		"defects", res.Defects,
		"structures_table", structuresTable.Sanitize(),
		"defects_table", defectsTable.Sanitize(),
	)
	return res, nil
}

func structureRows(ds *dataset.Dataset, runID pgtype.UUID) ([][]any, error) {
	structCol := ds.StructureColumn()
	rows := make([][]any, 0, ds.Structures.Len())

	err := ds.Structures.Each(func(id string, row map[string]any) error {
		var (
			formula  pgtype.Text
			numSites pgtype.Int4
			encoded  []byte
		)
		if s, ok := row[structCol].(*crystal.Structure); ok && s != nil {
			formula = pgtype.Text{String: s.ReducedFormula(), Valid: true}
			numSites = pgtype.Int4{Int32: int32(s.NumSites()), Valid: true}
			b, err := json.Marshal(s)
			if err != nil {
				return fmt.Errorf("structure %q: %w", id, err)
			}
			encoded = b
		}
		delete(row, structCol)

		attrs, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("structure %q attributes: %w", id, err)
		}
		rows = append(rows, []any{id, formula, numSites, encoded, attrs, runID})
		return nil
	})
	return rows, err
}

func defectRows(t *table.Table, runID pgtype.UUID) ([][]any, error) {
	rows := make([][]any, 0, t.Len())

	err := t.Each(func(id string, row map[string]any) error {
		cell, err := jsonColumn(row, dataset.CellColumn)
		if err != nil {
			return fmt.Errorf("defect %q: %w", id, err)
		}
		defects, err := jsonColumn(row, dataset.DefectsColumn)
		if err != nil {
			return fmt.Errorf("defect %q: %w", id, err)
		}

		attrs, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("defect %q attributes: %w", id, err)
		}
		rows = append(rows, []any{id, cell, defects, attrs, runID})
		return nil
	})
	return rows, err
}

// jsonColumn encodes and removes row[col]. An absent column encodes as SQL
// NULL.
func jsonColumn(row map[string]any, col string) ([]byte, error) {
	v, ok := row[col]
	if !ok {
		return nil, nil
	}
	delete(row, col)

	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("column %q: %w", col, err)
	}
	return b, nil
}

func tableName(name, fallback string) pgx.Identifier {
	if name == "" {
		name = fallback
	}
	return pgx.Identifier(strings.Split(name, "."))
}

func runUUID(ctx context.Context) pgtype.UUID {
	id, err := uuid.Parse(logging.RunID(ctx))
	if err != nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}
