package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/defectdata/internal/archive"
	"github.com/JonMunkholm/defectdata/internal/config"
	"github.com/JonMunkholm/defectdata/internal/dataset"
	"github.com/JonMunkholm/defectdata/internal/export"
	"github.com/JonMunkholm/defectdata/internal/logging"
	"github.com/JonMunkholm/defectdata/internal/schema"
	"github.com/JonMunkholm/defectdata/internal/table"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const usage = `Usage: defectdata <command> [flags] [args]

Commands:
  load   [-json] [DIR]                      load a dataset and print a summary
  filter -index FILE [-stop-early] IN OUT   copy the indexed structures of IN into OUT
  export [DIR]                              load a dataset and copy it into PostgreSQL

DIR defaults to $DEFECTDATA_DIR. An index FILE ending in .csv is read like
defects.csv; any other file lists one identifier per line.

Environment:
  DEFECTDATA_DIR, DEFECTDATA_SCHEMA, LOG_LEVEL, LOG_FORMAT, PROGRESS_ENABLED,
  PROGRESS_EVERY, DATABASE_URL, DB_MAX_CONNS, EXPORT_STRUCTURES_TABLE,
  EXPORT_DEFECTS_TABLE, EXPORT_TIMEOUT
`

// usageError marks bad command-line input.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

type app struct {
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}
	switch args[0] {
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return exitOK
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "defectdata: %v\n", err)
		return exitFailure
	}
	logging.Setup(stderr, cfg.Logging.Level, cfg.Logging.Format)

	ctx = logging.WithRunID(ctx)
	logger := logging.WithFields(ctx, "command", args[0])
	logger.Debug("configuration loaded", "config", cfg.String())

	a := &app{cfg: cfg, stdout: stdout, stderr: stderr}
	switch args[0] {
	case "load":
		err = a.load(ctx, args[1:])
	case "filter":
		err = a.filter(ctx, args[1:])
	case "export":
		err = a.export(ctx, args[1:])
	default:
		err = &usageError{msg: fmt.Sprintf("unknown command %q", args[0])}
	}

	var uerr *usageError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.As(err, &uerr):
		fmt.Fprintf(stderr, "defectdata: %v\n\n%s", err, usage)
		return exitUsage
	}

	logger.Error("command failed", "error", err)
	fmt.Fprintf(stderr, "defectdata: %v\n%s\n", err, dataset.FormatUserError(err))
	return exitFailure
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("defectdata "+name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// parse wraps flag errors other than -h as usage errors.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return &usageError{msg: err.Error()}
	}
	return nil
}

// datasetDir picks the positional directory or DEFECTDATA_DIR.
func (a *app) datasetDir(fs *flag.FlagSet) (string, error) {
	switch fs.NArg() {
	case 0:
		if a.cfg.Dataset.Dir == "" {
			return "", &usageError{msg: "dataset directory required (argument or DEFECTDATA_DIR)"}
		}
		return a.cfg.Dataset.Dir, nil
	case 1:
		return fs.Arg(0), nil
	default:
		return "", &usageError{msg: "expected at most one dataset directory"}
	}
}

// progress returns a callback that logs every ProgressEvery entries, or nil
// when progress is disabled.
func (a *app) progress(ctx context.Context, what string) archive.ProgressCallback {
	if !a.cfg.Dataset.Progress {
		return nil
	}
	logger := logging.WithFields(ctx, "scan", what)
	every := a.cfg.Dataset.ProgressEvery
	return func(p archive.Progress) {
		if p.Entries%every == 0 || (p.EntriesTotal > 0 && p.Entries == p.EntriesTotal) {
			logger.Debug("progress", "entries", p.Entries, "percent", p.Percent(), "last", p.Name)
		}
	}
}

func (a *app) loadDataset(ctx context.Context, dir string) (*dataset.Dataset, error) {
	cols, err := schema.Load(a.cfg.Dataset.Schema)
	if err != nil {
		return nil, err
	}
	return dataset.Load(ctx, dir, cols, dataset.Options{Progress: a.progress(ctx, dir)})
}

func (a *app) load(ctx context.Context, args []string) error {
	fs := a.flagSet("load")
	asJSON := fs.Bool("json", false, "print the assembled tables as JSON")
	if err := parse(fs, args); err != nil {
		return err
	}
	dir, err := a.datasetDir(fs)
	if err != nil {
		return err
	}

	ds, err := a.loadDataset(ctx, dir)
	if err != nil {
		return err
	}

	if *asJSON {
		mapping, err := schemaMapping(ds.Columns())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"dir":        ds.Dir,
			"schema":     mapping,
			"targets":    ds.Targets(),
			"structures": ds.Structures.Records(),
			"defects":    ds.Defects.Records(),
		})
	}
	return writeSummary(a.stdout, ds)
}

// schemaMapping returns the section -> field -> column mapping.
func schemaMapping(cols *schema.Columns) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string)
	for _, section := range cols.Sections() {
		fields, err := cols.Fields(section)
		if err != nil {
			return nil, err
		}
		out[section] = fields
	}
	return out, nil
}

func writeSummary(w io.Writer, ds *dataset.Dataset) error {
	fmt.Fprintf(w, "dataset %s: %d structures, %d defect descriptors\n",
		ds.Dir, ds.Structures.Len(), ds.Defects.Len())
	fmt.Fprintf(w, "targets: %s\n\n", strings.Join(ds.Targets(), ", "))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFORMULA\tSITES\tVOLUME")
	for _, id := range ds.Structures.Index() {
		s, err := ds.Structure(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.3f\n", id, s.ReducedFormula(), s.NumSites(), s.Lattice.Volume())
	}
	return tw.Flush()
}

func (a *app) filter(ctx context.Context, args []string) error {
	fs := a.flagSet("filter")
	indexPath := fs.String("index", "", "file listing the identifiers to keep (required)")
	stopEarly := fs.Bool("stop-early", false, "stop reading once every identifier has been copied")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *indexPath == "" {
		return &usageError{msg: "-index is required"}
	}
	if fs.NArg() != 2 {
		return &usageError{msg: "expected input and output archive paths"}
	}

	index, err := a.readIndex(*indexPath)
	if err != nil {
		return err
	}
	logging.FromContext(ctx).Info("filtering archive", "index", *indexPath, "identifiers", len(index))

	_, err = archive.CopyIndexed(ctx, index, fs.Arg(0), fs.Arg(1), archive.CopyOptions{
		StopWhenComplete: *stopEarly,
		Progress:         a.progress(ctx, fs.Arg(0)),
	})
	return err
}

// readIndex reads identifiers from a CSV indexed like defects.csv or from a
// plain list with one identifier per line. Blank lines and lines starting
// with # are ignored.
func (a *app) readIndex(path string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		cols, err := schema.Load(a.cfg.Dataset.Schema)
		if err != nil {
			return nil, err
		}
		id, err := cols.Lookup(schema.SectionStructure, schema.FieldID)
		if err != nil {
			return nil, err
		}
		t, err := table.ReadCSVFile(path, table.Options{Index: id, RawStrings: true})
		if err != nil {
			return nil, err
		}
		return t.Index(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seen := make(map[string]bool)
	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		ids = append(ids, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (a *app) export(ctx context.Context, args []string) error {
	fs := a.flagSet("export")
	if err := parse(fs, args); err != nil {
		return err
	}
	dir, err := a.datasetDir(fs)
	if err != nil {
		return err
	}
	if err := a.cfg.ValidateExport(); err != nil {
		return err
	}

	ds, err := a.loadDataset(ctx, dir)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Export.Timeout)
	defer cancel()

	pool, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	exp := &export.Exporter{
		DB:              pool,
		StructuresTable: a.cfg.Export.StructuresTable,
		DefectsTable:    a.cfg.Export.DefectsTable,
	}
	res, err := exp.Export(ctx, ds)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "exported %d structures and %d defect descriptors\n", res.Structures, res.Defects)
	return nil
}

func (a *app) connect(ctx context.Context) (*pgxpool.Pool, error) {
	db := a.cfg.Database

	poolConfig, err := pgxpool.ParseConfig(db.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(db.MaxConns)
	poolConfig.MinConns = int32(db.MinConns)
	poolConfig.MaxConnLifetime = db.MaxConnLifetime
	poolConfig.MaxConnIdleTime = db.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(db.URL); err == nil {
		logging.FromContext(ctx).Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}
	return pool, nil
}
