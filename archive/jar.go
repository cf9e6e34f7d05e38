package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Jar uses the JDK jar tool. It cannot stream an entry to stdout, so reads
// extract into a scratch directory first.
type Jar struct {
	Runner Runner
	Binary string
}

func (j Jar) Name() string { return "jar" }

func (j Jar) binary() string {
	if j.Binary != "" {
		return j.Binary
	}
	return "jar"
}

func (j Jar) ListEntries(ctx context.Context, archivePath string) ([]string, error) {
	res, err := j.Runner.Run(ctx, j.binary(), []string{"tf", archivePath}, RunOptions{})
	if err != nil {
		return nil, fmt.Errorf("%s tf: %w (%s)", j.binary(), err, strings.TrimSpace(string(res.Stderr)))
	}
	return splitEntries(string(res.Stdout)), nil
}

func (j Jar) ReadEntry(ctx context.Context, archivePath, entryPath string) ([]byte, error) {
	if !filepath.IsLocal(filepath.FromSlash(entryPath)) {
		return nil, fmt.Errorf("refusing to extract non-local entry %q", entryPath)
	}

	absArchive, err := filepath.Abs(archivePath)
	if err != nil {
		return nil, fmt.Errorf("resolve archive path: %w", err)
	}

	scratch, err := os.MkdirTemp("", "mcwizard-jar-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	res, err := j.Runner.Run(ctx, j.binary(), []string{"xf", absArchive, entryPath}, RunOptions{Dir: scratch})
	if err != nil {
		return nil, fmt.Errorf("%s xf: %w (%s)", j.binary(), err, strings.TrimSpace(string(res.Stderr)))
	}

	data, err := os.ReadFile(filepath.Join(scratch, filepath.FromSlash(entryPath)))
	if errors.Is(err, os.ErrNotExist) {
		// jar xf exits 0 when nothing matched.
		return nil, &EntryNotFoundError{Archive: archivePath, Entry: entryPath}
	}
	if err != nil {
		return nil, fmt.Errorf("read extracted entry: %w", err)
	}
	return data, nil
}
