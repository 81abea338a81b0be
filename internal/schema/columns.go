// Package schema resolves logical column names to the physical column names
// used by a dataset's CSV files.
//
// The mapping is read from a YAML document shaped as
//
//	structure:
//	  id: _id
//	  unrelaxed: initial_structure
//
// Every lookup goes through [Columns.Lookup], which reports a missing
// section or field as [ErrMissingKey] instead of returning an empty name.
package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the name of the schema file shipped with the package.
const DefaultFile = "data_format.yaml"

//go:embed data_format.yaml
var defaultFormat []byte

// ErrMissingKey is returned when a section or field is absent from the schema.
var ErrMissingKey = errors.New("missing schema key")

// Logical names consumed by the loaders.
const (
	SectionStructure = "structure"
	SectionDefect    = "defect"

	FieldID        = "id"
	FieldUnrelaxed = "unrelaxed"
	FieldRelaxed   = "relaxed"
	FieldCell      = "cell"
	FieldDefects   = "defects"
)

// Columns is a read-only section -> field -> column mapping.
type Columns struct {
	sections map[string]map[string]string
	source   string
}

// Load reads the schema from path. An empty path selects the embedded
// data_format.yaml. Each call re-reads the file.
func Load(path string) (*Columns, error) {
	if path == "" {
		return Parse(defaultFormat, DefaultFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	return Parse(data, path)
}

// Default returns the embedded schema. It panics if the embedded file is
// malformed, which only happens when the package itself is broken.
func Default() *Columns {
	cols, err := Parse(defaultFormat, DefaultFile)
	if err != nil {
		panic(fmt.Sprintf("embedded schema: %v", err))
	}
	return cols
}

// Parse decodes a schema document. source names the document in errors.
func Parse(data []byte, source string) (*Columns, error) {
	var sections map[string]map[string]string
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", source, err)
	}
	if sections == nil {
		sections = make(map[string]map[string]string)
	}
	return &Columns{sections: sections, source: source}, nil
}

// Lookup returns the physical column for section.field.
func (c *Columns) Lookup(section, field string) (string, error) {
	fields, ok := c.sections[section]
	if !ok {
		return "", fmt.Errorf("%w: section %q in %s", ErrMissingKey, section, c.source)
	}
	col, ok := fields[field]
	if !ok {
		return "", fmt.Errorf("%w: %s.%s in %s", ErrMissingKey, section, field, c.source)
	}
	return col, nil
}

// MustLookup is like Lookup but panics on a missing key.
func (c *Columns) MustLookup(section, field string) string {
	col, err := c.Lookup(section, field)
	if err != nil {
		panic(err)
	}
	return col
}

// Sections returns the section names in sorted order.
func (c *Columns) Sections() []string {
	names := make([]string, 0, len(c.sections))
	for name := range c.sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fields returns a copy of one section's field mapping.
func (c *Columns) Fields(section string) (map[string]string, error) {
	fields, ok := c.sections[section]
	if !ok {
		return nil, fmt.Errorf("%w: section %q in %s", ErrMissingKey, section, c.source)
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out, nil
}

// Reserved returns the set of physical columns named anywhere in the schema.
func (c *Columns) Reserved() map[string]bool {
	reserved := make(map[string]bool)
	for _, fields := range c.sections {
		for _, col := range fields {
			reserved[col] = true
		}
	}
	return reserved
}

// Targets returns the header columns not reserved by the schema, in header
// order. Readers never call this; treating unreserved columns as prediction
// targets is a convention left to callers.
func (c *Columns) Targets(header []string) []string {
	reserved := c.Reserved()
	var targets []string
	for _, col := range header {
		if !reserved[col] {
			targets = append(targets, col)
		}
	}
	return targets
}

// Source reports where the schema was loaded from.
func (c *Columns) Source() string {
	return c.source
}
