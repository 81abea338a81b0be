package archive

import (
	"archive/tar"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyIndexed_FullIndexRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.tar.gz")
	out := filepath.Join(dir, "out.tar.gz")
	writeArchive(t, in,
		member{name: "a.cif", body: "data_a\n"},
		member{name: "b.cif", body: "data_b\n_cell_length_a 1\n"},
		member{name: "c.cif", body: ""},
	)

	stats, err := CopyIndexed(context.Background(), []string{"a", "b", "c"}, in, out, CopyOptions{})
	require.NoError(t, err)
	assert.Equal(t, CopyStats{Scanned: 3, Copied: 3}, stats)
	assert.Equal(t, readMembers(t, in), readMembers(t, out))
}

func TestCopyIndexed_Subset(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.tar.gz")
	out := filepath.Join(dir, "out.tar.gz")
	writeArchive(t, in,
		member{name: "a.cif", body: "A"},
		member{name: "b.cif", body: "B"},
		member{name: "c.cif", body: "C"},
	)

	var calls int
	stats, err := CopyIndexed(context.Background(), []string{"c", "a"}, in, out, CopyOptions{
		Progress: func(Progress) { calls++ },
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Copied)
	assert.Equal(t, 3, calls)
	assert.Equal(t, map[string]string{"a.cif": "A", "c.cif": "C"}, readMembers(t, out))
}

func TestCopyIndexed_MissingIdentifier(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.tar.gz")
	out := filepath.Join(dir, "out.tar.gz")
	writeArchive(t, in, member{name: "a.cif", body: "A"}, member{name: "b.cif", body: "B"})

	stats, err := CopyIndexed(context.Background(), []string{"a", "b", "zzz"}, in, out, CopyOptions{})
	require.ErrorIs(t, err, ErrIncomplete)
	assert.NotErrorIs(t, err, ErrBadEntryName)

	var incomplete *IncompleteError
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, []string{"zzz"}, incomplete.Missing)

	// Present structures were still copied and the scan ran to the end.
	assert.Equal(t, CopyStats{Scanned: 2, Copied: 2}, stats)
	assert.Equal(t, map[string]string{"a.cif": "A", "b.cif": "B"}, readMembers(t, out))
}

func TestCopyIndexed_BadEntryName(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.tar.gz")
	out := filepath.Join(dir, "out.tar.gz")
	writeArchive(t, in,
		member{name: "a.cif", body: "A"},
		member{name: "foo.txt", body: "x"},
		member{name: "b.cif", body: "B"},
	)

	stats, err := CopyIndexed(context.Background(), []string{"a", "b", "zzz"}, in, out, CopyOptions{})
	require.ErrorIs(t, err, ErrBadEntryName)
	assert.NotErrorIs(t, err, ErrIncomplete)
	assert.Contains(t, err.Error(), "foo.txt")
	assert.Equal(t, 1, stats.Scanned)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "partial output should be removed")
}

func TestCopyIndexed_NonRegularMemberNames(t *testing.T) {
	tests := []struct {
		name string
		bad  member
	}{
		{"symlink", member{name: "foo.txt", typ: tar.TypeSymlink, linkname: "a.cif"}},
		{"directory", member{name: "subdir/", dir: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			in := filepath.Join(dir, "in.tar.gz")
			out := filepath.Join(dir, "out.tar.gz")
			writeArchive(t, in, member{name: "a.cif", body: "A"}, tt.bad, member{name: "b.cif", body: "B"})

			stats, err := CopyIndexed(context.Background(), []string{"a"}, in, out, CopyOptions{})
			require.ErrorIs(t, err, ErrBadEntryName)
			assert.NotErrorIs(t, err, ErrIncomplete)
			assert.Equal(t, CopyStats{Scanned: 1, Copied: 1}, stats)

			_, statErr := os.Stat(out)
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestCopyIndexed_LinkMembers(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.tar.gz")
	out := filepath.Join(dir, "out.tar.gz")
	writeArchive(t, in,
		member{name: "a.cif", body: "A"},
		member{name: "b.cif", typ: tar.TypeLink, linkname: "a.cif"},
		member{name: "c.cif", typ: tar.TypeSymlink, linkname: "a.cif"},
	)

	stats, err := CopyIndexed(context.Background(), []string{"a", "b", "c"}, in, out, CopyOptions{})
	require.NoError(t, err)
	assert.Equal(t, CopyStats{Scanned: 3, Copied: 3}, stats)

	types := make(map[string]byte)
	links := make(map[string]string)
	err = Walk(context.Background(), out, nil, func(e Entry) error {
		types[e.Header.Name] = e.Header.Typeflag
		links[e.Header.Name] = e.Header.Linkname
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]byte{"a.cif": tar.TypeReg, "b.cif": tar.TypeLink, "c.cif": tar.TypeSymlink}, types)
	assert.Equal(t, "a.cif", links["b.cif"])
	assert.Equal(t, "a.cif", links["c.cif"])
}

func TestCopyIndexed_StopWhenComplete(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.tar.gz")
	writeArchive(t, in,
		member{name: "a.cif", body: "A"},
		member{name: "b.cif", body: "B"},
		member{name: "foo.txt", body: "x"},
	)

	out := filepath.Join(dir, "early.tar.gz")
	stats, err := CopyIndexed(context.Background(), []string{"a"}, in, out, CopyOptions{StopWhenComplete: true})
	require.NoError(t, err)
	assert.Equal(t, CopyStats{Scanned: 1, Copied: 1}, stats)
	assert.Equal(t, map[string]string{"a.cif": "A"}, readMembers(t, out))

	// Without the early exit the bad member is reached.
	_, err = CopyIndexed(context.Background(), []string{"a"}, in, filepath.Join(dir, "full.tar.gz"), CopyOptions{})
	assert.ErrorIs(t, err, ErrBadEntryName)
}

func TestCopyIndexed_DuplicateMembers(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.tar.gz")
	out := filepath.Join(dir, "out.tar.gz")
	writeArchive(t, in, member{name: "a.cif", body: "1"}, member{name: "a.cif", body: "2"})

	stats, err := CopyIndexed(context.Background(), []string{"a"}, in, out, CopyOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Copied)
}

func TestCopyIndexed_MissingInput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.tar.gz")

	_, err := CopyIndexed(context.Background(), []string{"a"}, filepath.Join(dir, "absent.tar.gz"), out, CopyOptions{})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestIncompleteError_Message(t *testing.T) {
	err := &IncompleteError{Missing: []string{"a", "b", "c", "d", "e", "f", "g"}}
	assert.Equal(t, "not all structures were copied: missing a, b, c, d, e and 2 more", err.Error())
}
