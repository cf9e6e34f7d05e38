package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"strings"
)

// Native reads the archive in-process with archive/zip. It is the last link
// of every chain and the only strategy when no external tool is wanted.
type Native struct{}

func (Native) Name() string { return "native" }

func (Native) ListEntries(_ context.Context, archivePath string) ([]string, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open zip archive: %w", err)
	}
	defer reader.Close()

	entries := make([]string, 0, len(reader.File))
	for _, file := range reader.File {
		name := strings.ReplaceAll(file.Name, "\\", "/")
		if file.FileInfo().IsDir() || strings.HasSuffix(name, "/") {
			continue
		}
		entries = append(entries, name)
	}
	return entries, nil
}

func (Native) ReadEntry(_ context.Context, archivePath, entryPath string) ([]byte, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open zip archive: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if strings.ReplaceAll(file.Name, "\\", "/") != entryPath {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s in zip: %w", entryPath, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s from zip: %w", entryPath, err)
		}
		return data, nil
	}

	return nil, &EntryNotFoundError{Archive: archivePath, Entry: entryPath}
}
