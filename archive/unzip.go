package archive

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// unzipWildcards are the characters unzip expands in entry arguments.
var unzipWildcards = strings.NewReplacer("[", "[[]", "*", "[*]", "?", "[?]")

// unzipNoMatch is the exit status unzip uses when no entry matched the pattern.
const unzipNoMatch = 11

// Unzip shells out to Info-ZIP unzip.
type Unzip struct {
	Runner Runner
	Binary string
}

func (u Unzip) Name() string { return "unzip" }

func (u Unzip) binary() string {
	if u.Binary != "" {
		return u.Binary
	}
	if _, err := os.Stat("/usr/bin/unzip"); err == nil {
		return "/usr/bin/unzip"
	}
	return "unzip"
}

func (u Unzip) ListEntries(ctx context.Context, archivePath string) ([]string, error) {
	bin := u.binary()
	res, err := u.Runner.Run(ctx, bin, []string{"-Z1", archivePath}, RunOptions{})
	if err != nil {
		return nil, fmt.Errorf("%s -Z1: %w (%s)", bin, err, strings.TrimSpace(string(res.Stderr)))
	}
	return splitEntries(string(res.Stdout)), nil
}

func (u Unzip) ReadEntry(ctx context.Context, archivePath, entryPath string) ([]byte, error) {
	bin := u.binary()
	res, err := u.Runner.Run(ctx, bin, []string{"-p", archivePath, unzipLiteral(entryPath)}, RunOptions{})
	if err != nil {
		if code, ok := exitCode(err); ok && code == unzipNoMatch {
			return nil, &EntryNotFoundError{Archive: archivePath, Entry: entryPath}
		}
		return nil, fmt.Errorf("%s -p: %w (%s)", bin, err, strings.TrimSpace(string(res.Stderr)))
	}
	return res.Stdout, nil
}

// unzipLiteral makes unzip match name exactly instead of as a pattern.
func unzipLiteral(name string) string {
	return unzipWildcards.Replace(name)
}
