package main

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cif(metal string) string {
	return "data_" + metal + `
_cell_length_a 3.19
_cell_length_b 3.19
_cell_length_c 20.0
_cell_angle_alpha 90
_cell_angle_beta 90
_cell_angle_gamma 120
loop_
_atom_site_type_symbol
_atom_site_label
_atom_site_fract_x
_atom_site_fract_y
_atom_site_fract_z
` + metal + " " + metal + `1 0.3333 0.6667 0.5
S S1 0.6667 0.3333 0.578
S S2 0.6667 0.3333 0.422
`
}

func writeArchive(t *testing.T, path string, names ...string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	metals := []string{"Mo", "W"}
	for i, name := range names {
		body := cif(metals[i%len(metals)])
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	require.NoError(t, f.Close())
}

func newDataset(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "defects.csv"),
		[]byte("_id,descriptor_id,energy\na,d1,-1.5\nb,d1,-2.0\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "descriptors.csv"),
		[]byte("_id,cell,defects\nd1,\"(8, 8, 1)\",\"[{'type': 'vacancy'}]\"\n"), 0o644))
	writeArchive(t, filepath.Join(dir, "initial.tar.gz"), "a.cif", "b.cif")
	return dir
}

// cleanEnv pins the variables config.Load reads.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DEFECTDATA_DIR", "DEFECTDATA_SCHEMA", "DATABASE_URL", "DB_URL", "PROGRESS_ENABLED"} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "text")
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Usage(t *testing.T) {
	cleanEnv(t)

	code, _, stderr := runCLI(t)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "Usage: defectdata")

	code, stdout, _ := runCLI(t, "help")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "Commands:")

	code, _, stderr = runCLI(t, "frobnicate")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, `unknown command "frobnicate"`)

	code, _, _ = runCLI(t, "load", "-nope")
	assert.Equal(t, exitUsage, code)

	code, _, stderr = runCLI(t, "load")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "dataset directory required")
}

func TestRun_BadConfig(t *testing.T) {
	cleanEnv(t)
	t.Setenv("LOG_LEVEL", "chatty")

	code, _, stderr := runCLI(t, "load", t.TempDir())
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "LOG_LEVEL")
}

func TestRun_Load(t *testing.T) {
	cleanEnv(t)
	dir := newDataset(t)

	code, stdout, stderr := runCLI(t, "load", dir)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "2 structures, 1 defect descriptors")
	assert.Contains(t, stdout, "targets: energy")
	assert.Contains(t, stdout, "MoS2")
	assert.Contains(t, stdout, "S2W")
}

func TestRun_LoadFromEnvDir(t *testing.T) {
	cleanEnv(t)
	t.Setenv("DEFECTDATA_DIR", newDataset(t))

	code, stdout, stderr := runCLI(t, "load")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "2 structures")
}

func TestRun_LoadJSON(t *testing.T) {
	cleanEnv(t)
	dir := newDataset(t)

	code, stdout, stderr := runCLI(t, "load", "-json", dir)
	require.Equal(t, exitOK, code, stderr)

	var out struct {
		Schema     map[string]map[string]string `json:"schema"`
		Targets    []string                     `json:"targets"`
		Structures []struct {
			ID     string         `json:"id"`
			Values map[string]any `json:"values"`
		} `json:"structures"`
		Defects []struct {
			ID     string         `json:"id"`
			Values map[string]any `json:"values"`
		} `json:"defects"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "initial_structure", out.Schema["structure"]["unrelaxed"])
	assert.Equal(t, []string{"energy"}, out.Targets)
	require.Len(t, out.Structures, 2)
	assert.Equal(t, "a", out.Structures[0].ID)
	assert.Contains(t, out.Structures[0].Values, "initial_structure")
	require.Len(t, out.Defects, 1)
	assert.Equal(t, []any{8.0, 8.0, 1.0}, out.Defects[0].Values["cell"])
}

func TestRun_LoadMissingDataset(t *testing.T) {
	cleanEnv(t)

	code, _, stderr := runCLI(t, "load", filepath.Join(t.TempDir(), "absent"))
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "CSV001")
}

func TestRun_Filter(t *testing.T) {
	cleanEnv(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "in.tar.gz")
	writeArchive(t, in, "a.cif", "b.cif", "c.cif")

	index := filepath.Join(dir, "keep.txt")
	require.NoError(t, os.WriteFile(index, []byte("# wanted\nc\n\na\n"), 0o644))

	out := filepath.Join(dir, "out.tar.gz")
	code, _, stderr := runCLI(t, "filter", "-index", index, in, out)
	require.Equal(t, exitOK, code, stderr)
	_, err := os.Stat(out)
	assert.NoError(t, err)
}

func TestRun_FilterCSVIndex(t *testing.T) {
	cleanEnv(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "in.tar.gz")
	writeArchive(t, in, "a.cif", "b.cif")

	index := filepath.Join(dir, "subset.csv")
	require.NoError(t, os.WriteFile(index, []byte("_id,energy\nb,1\n"), 0o644))

	code, _, stderr := runCLI(t, "filter", "-index", index, "-stop-early", in, filepath.Join(dir, "out.tar.gz"))
	require.Equal(t, exitOK, code, stderr)
}

func TestRun_FilterIncomplete(t *testing.T) {
	cleanEnv(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "in.tar.gz")
	writeArchive(t, in, "a.cif")

	index := filepath.Join(dir, "keep.txt")
	require.NoError(t, os.WriteFile(index, []byte("a\nzzz\n"), 0o644))

	code, _, stderr := runCLI(t, "filter", "-index", index, in, filepath.Join(dir, "out.tar.gz"))
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "ARC002")
	assert.Contains(t, stderr, "zzz")
}

func TestRun_FilterUsage(t *testing.T) {
	cleanEnv(t)

	code, _, stderr := runCLI(t, "filter", "in.tar.gz", "out.tar.gz")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "-index is required")

	code, _, _ = runCLI(t, "filter", "-index", "keep.txt", "in.tar.gz")
	assert.Equal(t, exitUsage, code)
}

func TestRun_ExportRequiresDatabase(t *testing.T) {
	cleanEnv(t)

	code, _, stderr := runCLI(t, "export", newDataset(t))
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "DATABASE_URL is required")
}
