package scanner

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// previewCache stores extracted textures under names derived from the archive
// path and entry path. Files are written once and never rewritten.
type previewCache struct {
	dir     string
	enabled bool
}

func newPreviewCache(dir string) *previewCache {
	if dir == "" {
		return &previewCache{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &previewCache{dir: dir}
	}
	return &previewCache{dir: dir, enabled: true}
}

func (c *previewCache) pathFor(archivePath, entryPath string) string {
	sum := sha1.Sum([]byte(archivePath + "|" + entryPath))
	ext := strings.ToLower(filepath.Ext(entryPath))
	if ext == "" {
		ext = ".png"
	}
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+ext)
}

func (c *previewCache) store(target string, data []byte) error {
	tmp := fmt.Sprintf("%s.%d.tmp", target, os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// render produces the preview for one texture entry. A cache hit skips
// extraction entirely. When the cache cannot be written the bytes are inlined
// as a data URI instead.
func (s *Scanner) render(ctx context.Context, cache *previewCache, archivePath, texturePath string) (filePath, dataURI string, err error) {
	if cache.enabled {
		target := cache.pathFor(archivePath, texturePath)
		if _, statErr := os.Stat(target); statErr == nil {
			return target, "", nil
		}
		data, err := s.Reader.ReadEntry(ctx, archivePath, texturePath)
		if err != nil {
			return "", "", err
		}
		writeErr := cache.store(target, data)
		if writeErr == nil {
			return target, "", nil
		}
		s.logger().Debugw("Preview cache write failed, inlining", zap.String("path", target), zap.Error(writeErr))
		return "", inlineDataURI(texturePath, data), nil
	}

	data, err := s.Reader.ReadEntry(ctx, archivePath, texturePath)
	if err != nil {
		return "", "", err
	}
	return "", inlineDataURI(texturePath, data), nil
}

func inlineDataURI(entryPath string, data []byte) string {
	return "data:" + mimeType(entryPath) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func mimeType(entryPath string) string {
	switch strings.ToLower(filepath.Ext(entryPath)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
