package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/JonMunkholm/defectdata/internal/logging"
)

// IncompleteError lists the identifiers a selective copy never found.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	const show = 5
	ids := e.Missing
	suffix := ""
	if len(ids) > show {
		suffix = fmt.Sprintf(" and %d more", len(ids)-show)
		ids = ids[:show]
	}
	return fmt.Sprintf("%s: missing %s%s", ErrIncomplete, strings.Join(ids, ", "), suffix)
}

func (e *IncompleteError) Is(target error) bool { return target == ErrIncomplete }

// CopyOptions tunes CopyIndexed.
type CopyOptions struct {
	// StopWhenComplete ends the scan once every identifier has been copied.
	// Members after that point are neither copied nor name-checked.
	StopWhenComplete bool

	Progress ProgressCallback
}

// CopyStats summarises a selective copy.
type CopyStats struct {
	Scanned int
	Copied  int
}

// CopyIndexed writes the members of the archive at in whose identifier is in
// index to a new archive at out. Headers and contents are copied unchanged,
// so copying with the full identifier set reproduces every member. Link
// members are copied as headers and keep their link targets.
//
// Every identifier must be matched at least once. The check runs after the
// whole input has been scanned, and the output is kept, so a failure with
// ErrIncomplete still leaves a valid archive of the structures that were
// found. Any other failure removes the partial output.
func CopyIndexed(ctx context.Context, index []string, in, out string, opts CopyOptions) (CopyStats, error) {
	var stats CopyStats
	logger := logging.WithFields(ctx, "input", in, "output", out)

	want := make(map[string]bool, len(index))
	for _, id := range index {
		want[id] = false
	}

	f, err := os.Create(out)
	if err != nil {
		return stats, err
	}
	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)

	found := 0
	walkErr := Walk(ctx, in, opts.Progress, func(e Entry) error {
		stats.Scanned++
		copied, ok := want[e.ID]
		if !ok {
			return nil
		}

		if err := tw.WriteHeader(e.Header); err != nil {
			return fmt.Errorf("write header %q: %w", e.Header.Name, err)
		}
		if _, err := io.Copy(tw, e.Body); err != nil {
			return fmt.Errorf("copy %q: %w", e.Header.Name, err)
		}
		stats.Copied++

		if !copied {
			want[e.ID] = true
			found++
		}
		if opts.StopWhenComplete && found == len(want) {
			logger.Debug("all indexed structures copied, stopping early", "scanned", stats.Scanned)
			return SkipAll
		}
		return nil
	})

	closeErr := errors.Join(tw.Close(), gw.Close(), f.Close())
	if walkErr != nil || closeErr != nil {
		os.Remove(out)
		if walkErr != nil {
			return stats, walkErr
		}
		return stats, fmt.Errorf("%s: %w", out, closeErr)
	}

	if found < len(want) {
		missing := make([]string, 0, len(want)-found)
		for id, ok := range want {
			if !ok {
				missing = append(missing, id)
			}
		}
		sort.Strings(missing)
		logger.Warn("archive is incomplete", "missing", len(missing), "copied", stats.Copied)
		return stats, &IncompleteError{Missing: missing}
	}

	logger.Info("copied indexed structures", "scanned", stats.Scanned, "copied", stats.Copied)
	return stats, nil
}
