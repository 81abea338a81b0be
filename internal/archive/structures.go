package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/defectdata/internal/crystal"
	"github.com/JonMunkholm/defectdata/internal/logging"
)

// Dataset layout.
const (
	InitialArchive = "initial.tar.gz"
	LegacyDir      = "initial"
)

// ErrNotASCII is returned for archive members containing non-ASCII bytes.
var ErrNotASCII = errors.New("structure file is not ASCII")

// ReadOptions tunes ReadStructures.
type ReadOptions struct {
	Progress ProgressCallback
}

// ReadStructures parses every member of dir/initial.tar.gz into a structure
// keyed by identifier. When the archive does not exist it falls back to the
// obsolete layout, a dir/initial directory with one CIF file per structure,
// and logs warnings saying so. Any other failure is returned as is.
func ReadStructures(ctx context.Context, dir string, opts ReadOptions) (map[string]*crystal.Structure, error) {
	logger := logging.FromContext(ctx)

	structures, err := readArchive(ctx, filepath.Join(dir, InitialArchive), opts.Progress)
	if err == nil {
		return structures, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	logger.Warn(err.Error())
	logger.Warn("trying obsolete format (folder without .tar.gz)")

	structures, err = readLegacy(ctx, filepath.Join(dir, LegacyDir), opts.Progress)
	if err != nil {
		return nil, err
	}
	logger.Warn("data is in obsolete format", "dir", dir)
	return structures, nil
}

func readArchive(ctx context.Context, file string, progress ProgressCallback) (map[string]*crystal.Structure, error) {
	structures := make(map[string]*crystal.Structure)
	byName := make(map[string]*crystal.Structure)
	err := Walk(ctx, file, progress, func(e Entry) error {
		switch e.Header.Typeflag {
		case tar.TypeReg:
		case tar.TypeLink, tar.TypeSymlink:
			s, ok := byName[linkTarget(e.Header)]
			if !ok {
				return fmt.Errorf("%s: %q -> %q: %w", file, e.Header.Name, e.Header.Linkname, ErrUnresolvedLink)
			}
			structures[e.ID] = s
			byName[path.Clean(e.Header.Name)] = s
			return nil
		default:
			return fmt.Errorf("%s: %q (type %q): %w", file, e.Header.Name, e.Header.Typeflag, ErrUnsupportedEntry)
		}

		data, err := io.ReadAll(e.Body)
		if err != nil {
			return fmt.Errorf("%s: read %q: %w", file, e.Header.Name, err)
		}
		if i := nonASCII(data); i >= 0 {
			return fmt.Errorf("%s: %q: %w (byte %d)", file, e.Header.Name, ErrNotASCII, i)
		}

		s, err := crystal.ParseCIF(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("%s: %q: %w", file, e.Header.Name, err)
		}
		structures[e.ID] = s
		byName[path.Clean(e.Header.Name)] = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Debug("read structure archive", "path", file, "structures", len(structures))
	return structures, nil
}

func readLegacy(ctx context.Context, dir string, progress ProgressCallback) (map[string]*crystal.Structure, error) {
	logger := logging.FromContext(ctx)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), Suffix) {
			logger.Debug("skipping non-CIF file", "dir", dir, "file", entry.Name())
			continue
		}
		files = append(files, entry.Name())
	}

	structures := make(map[string]*crystal.Structure, len(files))
	for i, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s, err := crystal.ParseCIFFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		structures[strings.TrimSuffix(name, Suffix)] = s

		if progress != nil {
			progress(Progress{Name: name, Entries: i + 1, EntriesTotal: len(files)})
		}
	}
	return structures, nil
}

// linkTarget resolves the member a link refers to. Hard link targets are
// archive paths; symlink targets are relative to the link's directory.
func linkTarget(hdr *tar.Header) string {
	if hdr.Typeflag == tar.TypeSymlink && !path.IsAbs(hdr.Linkname) {
		return path.Join(path.Dir(hdr.Name), hdr.Linkname)
	}
	return path.Clean(hdr.Linkname)
}

// nonASCII returns the offset of the first byte above 0x7F, or -1.
func nonASCII(data []byte) int {
	for i, b := range data {
		if b >= 0x80 {
			return i
		}
	}
	return -1
}
