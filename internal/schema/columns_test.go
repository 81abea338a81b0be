package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Default(t *testing.T) {
	cols, err := Load("")
	require.NoError(t, err)

	id, err := cols.Lookup(SectionStructure, FieldID)
	require.NoError(t, err)
	assert.Equal(t, "_id", id)

	unrelaxed, err := cols.Lookup(SectionStructure, FieldUnrelaxed)
	require.NoError(t, err)
	assert.Equal(t, "initial_structure", unrelaxed)
	assert.Equal(t, DefaultFile, cols.Source())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "format.yaml")
	doc := "structure:\n  id: structure_id\n  unrelaxed: unrelaxed_structure\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cols, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "unrelaxed_structure", cols.MustLookup(SectionStructure, FieldUnrelaxed))
	assert.Equal(t, []string{SectionStructure}, cols.Sections())
}

func TestLoad_RereadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "format.yaml")
	require.NoError(t, os.WriteFile(path, []byte("structure:\n  id: a\n"), 0o644))
	first, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("structure:\n  id: b\n"), 0o644))
	second, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "a", first.MustLookup(SectionStructure, FieldID))
	assert.Equal(t, "b", second.MustLookup(SectionStructure, FieldID))
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("structure: [unclosed"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
}

func TestLookup_MissingKey(t *testing.T) {
	cols, err := Parse([]byte("structure:\n  id: _id\n"), "inline")
	require.NoError(t, err)

	_, err = cols.Lookup(SectionStructure, FieldUnrelaxed)
	assert.ErrorIs(t, err, ErrMissingKey)
	assert.Contains(t, err.Error(), "structure.unrelaxed")

	_, err = cols.Lookup(SectionDefect, FieldID)
	assert.ErrorIs(t, err, ErrMissingKey)

	assert.Panics(t, func() { cols.MustLookup("nope", FieldID) })
}

func TestFields_ReturnsCopy(t *testing.T) {
	cols := Default()
	fields, err := cols.Fields(SectionStructure)
	require.NoError(t, err)
	fields[FieldID] = "mutated"
	assert.Equal(t, "_id", cols.MustLookup(SectionStructure, FieldID))
}

func TestTargets(t *testing.T) {
	cols := Default()
	header := []string{"_id", "descriptor_id", "energy", "fermi_level", "initial_structure"}
	assert.Equal(t, []string{"energy", "fermi_level"}, cols.Targets(header))
}
