// Package archive reads and filters gzip-compressed tar archives of CIF
// structure files. Every member is named "<identifier>.cif".
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/JonMunkholm/defectdata/internal/stream"
)

// Suffix is the required extension of every archive member.
const Suffix = ".cif"

var (
	// ErrBadEntryName is returned as soon as a member without the .cif
	// suffix is seen.
	ErrBadEntryName = errors.New("archive entry name does not end in " + Suffix)

	// ErrIncomplete is returned when a selective copy finishes without
	// finding every requested identifier.
	ErrIncomplete = errors.New("not all structures were copied")

	// ErrUnsupportedEntry is returned when a structure member is neither a
	// regular file nor a link to one.
	ErrUnsupportedEntry = errors.New("unsupported archive entry type")

	// ErrUnresolvedLink is returned for a link member whose target is not an
	// earlier structure member.
	ErrUnresolvedLink = errors.New("archive link target not found")

	// SkipAll may be returned by a WalkFunc to stop the walk without error.
	SkipAll = errors.New("skip remaining entries")
)

// Progress describes how far an archive scan has got.
type Progress struct {
	Name         string // last entry processed
	Entries      int
	EntriesTotal int   // 0 when unknown
	BytesRead    int64 // compressed bytes consumed
	BytesTotal   int64
}

// Percent returns completion in the range 0-100. Entry counts are preferred
// when the total is known; otherwise compressed bytes are used.
func (p Progress) Percent() int {
	if p.EntriesTotal > 0 {
		return p.Entries * 100 / p.EntriesTotal
	}
	if p.BytesTotal > 0 {
		pct := int(p.BytesRead * 100 / p.BytesTotal)
		if pct > 100 {
			pct = 100
		}
		return pct
	}
	return 0
}

// ProgressCallback is called after each entry.
type ProgressCallback func(Progress)

// Entry is one member of an archive. Links and other non-regular members
// have an empty Body; Header.Typeflag and Header.Linkname describe them.
type Entry struct {
	Header *tar.Header
	ID     string    // member name without the .cif suffix
	Body   io.Reader // valid only during the WalkFunc call
}

// WalkFunc is called for each member in archive order.
type WalkFunc func(e Entry) error

// StructureID strips the .cif suffix from a member name.
func StructureID(name string) (string, error) {
	if !strings.HasSuffix(name, Suffix) {
		return "", fmt.Errorf("%w: %q", ErrBadEntryName, name)
	}
	return strings.TrimSuffix(name, Suffix), nil
}

// Walk streams the members of the .tar.gz file at path. Every member is
// name-checked whatever its type, so a directory, link or file whose name
// lacks the .cif suffix stops the walk with ErrBadEntryName. The context is
// checked between entries.
//
// Errors opening path are returned unwrapped so callers can test them with
// errors.Is(err, fs.ErrNotExist).
func Walk(ctx context.Context, path string, progress ProgressCallback, fn WalkFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var total int64
	if info, err := f.Stat(); err == nil {
		total = info.Size()
	}
	counter := stream.NewCountingReader(f)

	gz, err := gzip.NewReader(counter)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	entries := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		id, err := StructureID(hdr.Name)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		if err := fn(Entry{Header: hdr, ID: id, Body: tr}); err != nil {
			if errors.Is(err, SkipAll) {
				return nil
			}
			return err
		}

		entries++
		if progress != nil {
			progress(Progress{
				Name:       hdr.Name,
				Entries:    entries,
				BytesRead:  counter.BytesRead,
				BytesTotal: total,
			})
		}
	}
}
