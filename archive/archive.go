// Package archive lists and extracts entries of zip-format archives (mod jars)
// through whatever tooling the host platform offers.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Reader lists and reads archive entries. Entry paths always use forward slashes.
type Reader interface {
	ListEntries(ctx context.Context, archivePath string) ([]string, error)
	ReadEntry(ctx context.Context, archivePath, entryPath string) ([]byte, error)
}

// EntryNotFoundError reports a named entry that is absent from the archive.
type EntryNotFoundError struct {
	Archive string
	Entry   string
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("entry %q not found in %s", e.Entry, e.Archive)
}

// ArchiveReadError reports that no strategy could list or read the archive.
type ArchiveReadError struct {
	Archive string
	Op      string
	Err     error
}

func (e *ArchiveReadError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Archive, e.Err)
}

func (e *ArchiveReadError) Unwrap() error { return e.Err }

// IsEntryNotFound reports whether err is, or wraps, an EntryNotFoundError.
func IsEntryNotFound(err error) bool {
	var nf *EntryNotFoundError
	return errors.As(err, &nf)
}

// splitEntries turns tool output into entry paths, dropping blank lines and
// directory entries.
func splitEntries(out string) []string {
	lines := strings.Split(strings.ReplaceAll(out, "\r\n", "\n"), "\n")
	entries := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.ReplaceAll(line, "\\", "/")
		if strings.HasSuffix(line, "/") {
			continue
		}
		entries = append(entries, line)
	}
	return entries
}
