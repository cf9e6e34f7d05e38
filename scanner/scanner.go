// Package scanner statically inspects a mod archive: it finds asset
// namespaces, builds an item/block catalog with display names and renders a
// bounded set of texture previews into a cache directory.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"mcwizard/archive"
	"mcwizard/notify"
)

const (
	// DefaultMaxItemPreviews caps previews built from item models.
	DefaultMaxItemPreviews = 48
)

// DefaultMaxAssetPreviews returns the bulk texture preview cap for goos.
func DefaultMaxAssetPreviews(goos string) int {
	if goos == "windows" {
		return 200
	}
	return 400
}

// Layout tells whether previews came from the conventional asset tree.
type Layout string

const (
	LayoutStandard Layout = "standard"
	LayoutFallback Layout = "fallback"
)

type ModelSet struct {
	Item  []string `json:"item" yaml:"item"`
	Block []string `json:"block" yaml:"block"`
}

// NamespaceAssets lists the classified entries of one namespace.
type NamespaceAssets struct {
	LangKeys    map[string]string `json:"langKeys,omitempty" yaml:"langKeys,omitempty"`
	Blockstates []string          `json:"blockstates" yaml:"blockstates"`
	Models      ModelSet          `json:"models" yaml:"models"`
	Textures    []string          `json:"textures" yaml:"textures"`
}

type Summary struct {
	Path       string                      `json:"path" yaml:"path"`
	Namespaces []string                    `json:"namespaces" yaml:"namespaces"`
	Assets     map[string]*NamespaceAssets `json:"assets" yaml:"assets"`
}

// CatalogEntry is a UI-ready "<ns>:<name>" identifier with its display name.
type CatalogEntry struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"displayName" yaml:"displayName"`
}

type Catalog struct {
	Namespaces []string       `json:"namespaces" yaml:"namespaces"`
	Items      []CatalogEntry `json:"items" yaml:"items"`
	Blocks     []CatalogEntry `json:"blocks" yaml:"blocks"`
}

// Preview is one extracted texture. Exactly one of FilePath and DataURI is set.
type Preview struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"displayName" yaml:"displayName"`
	TexturePath string `json:"texturePath" yaml:"texturePath"`
	FilePath    string `json:"filePath,omitempty" yaml:"filePath,omitempty"`
	DataURI     string `json:"dataUri,omitempty" yaml:"dataUri,omitempty"`
}

type Previews struct {
	Items  []Preview `json:"items" yaml:"items"`
	Assets []Preview `json:"assets" yaml:"assets"`
}

type Result struct {
	Summary  Summary  `json:"summary" yaml:"summary"`
	Catalog  Catalog  `json:"catalog" yaml:"catalog"`
	Previews Previews `json:"previews" yaml:"previews"`
	Layout   Layout   `json:"layout" yaml:"layout"`
}

// Outcome is what Scan hands back; it never carries a Go error.
type Outcome struct {
	OK    bool    `json:"ok" yaml:"ok"`
	Data  *Result `json:"data,omitempty" yaml:"data,omitempty"`
	Error string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// Scanner holds the collaborators and limits for scans. One Scanner may run
// many scans concurrently; each scan keeps its working state local.
type Scanner struct {
	Reader           archive.Reader
	PreviewDir       string
	MaxItemPreviews  int
	MaxAssetPreviews int
	ListSchedule     []time.Duration
	Log              *zap.SugaredLogger
}

// New creates a Scanner with the default caps for the host platform.
func New(reader archive.Reader, previewDir string, log *zap.SugaredLogger) *Scanner {
	return &Scanner{
		Reader:           reader,
		PreviewDir:       previewDir,
		MaxItemPreviews:  DefaultMaxItemPreviews,
		MaxAssetPreviews: DefaultMaxAssetPreviews(runtime.GOOS),
		ListSchedule:     archive.DefaultListSchedule,
		Log:              log,
	}
}

func (s *Scanner) logger() *zap.SugaredLogger {
	if s.Log == nil {
		return zap.NewNop().Sugar()
	}
	return s.Log
}

// Scan inspects archivePath and streams progress to sink. Only a failure to
// enumerate the archive fails the scan; every per-asset problem just skips
// that asset.
func (s *Scanner) Scan(ctx context.Context, archivePath string, sink notify.Sink[Progress]) (out Outcome) {
	archivePath = strings.TrimSpace(archivePath)
	if archivePath == "" {
		return Outcome{OK: false, Error: "no archive path provided"}
	}

	log := s.logger().With(zap.String("archive", archivePath))
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("Scan panicked", zap.String("panic", fmt.Sprint(r)))
			out = Outcome{OK: false, Error: fmt.Sprint(r)}
		}
	}()

	rep := &reporter{sink: sink, log: log}
	rep.emit(PhaseEnumerate, 5, "Enumerating archive…")

	entries, err := archive.ListWithRetry(ctx, s.Reader, archivePath, s.ListSchedule, func(err error, wait time.Duration) {
		log.Debugw("Enumeration failed, retrying", zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		log.Warnw("Archive enumeration failed", zap.Error(err))
		return Outcome{OK: false, Error: err.Error()}
	}
	rep.emitDetails(PhaseEnumerate, 16, fmt.Sprintf("Found %d entries", len(entries)), map[string]any{"entries": len(entries)})

	st := &scanState{
		Scanner:     s,
		ctx:         ctx,
		archivePath: archivePath,
		entries:     entries,
		textures:    newTextureIndex(entries),
		cache:       newPreviewCache(s.PreviewDir),
		rep:         rep,
		log:         log,
	}
	st.analyze()
	st.buildCatalog()
	st.modelPreviews()
	st.assetPreviews()
	st.fallbackPreviews()

	rep.emit(PhaseFinalize, 98, "Finalizing results…")
	result := &Result{
		Summary:  st.summary,
		Catalog:  st.catalog,
		Previews: st.previews,
		Layout:   st.layout,
	}
	rep.emit(PhaseComplete, 100, "Scan complete")
	log.Infow("Scan complete",
		zap.Int("namespaces", len(st.summary.Namespaces)),
		zap.Int("item_previews", len(st.previews.Items)),
		zap.Int("asset_previews", len(st.previews.Assets)),
		zap.String("layout", string(st.layout)))
	return Outcome{OK: true, Data: result}
}

// scanState is the per-invocation working set of a scan.
type scanState struct {
	*Scanner
	ctx         context.Context
	archivePath string
	entries     []string
	textures    *textureIndex
	cache       *previewCache
	rep         *reporter
	log         *zap.SugaredLogger

	summary  Summary
	catalog  Catalog
	previews Previews
	layout   Layout
}

func (st *scanState) analyze() {
	namespaces := discoverNamespaces(st.entries)
	st.summary = Summary{
		Path:       st.archivePath,
		Namespaces: namespaces,
		Assets:     make(map[string]*NamespaceAssets, len(namespaces)),
	}
	if namespaces == nil {
		st.summary.Namespaces = []string{}
	}
	if len(namespaces) == 0 {
		st.rep.emit(PhaseAnalyze, 20, "No asset namespaces found")
		return
	}

	for i, ns := range namespaces {
		st.rep.emit(PhaseAnalyze, 16+(4*i)/len(namespaces), "Analyzing assets namespace: "+ns)
		langFiles, assets := classify(st.entries, ns)
		if lang := pickLangFile(langFiles); lang != "" {
			if table, err := st.readLang(lang); err != nil {
				st.log.Debugw("Skipping unreadable language file", zap.String("entry", lang), zap.Error(err))
			} else if len(table) > 0 {
				assets.LangKeys = table
			}
		}
		st.summary.Assets[ns] = &assets
	}
}

func (st *scanState) readLang(entry string) (map[string]string, error) {
	data, err := st.Reader.ReadEntry(st.ctx, st.archivePath, entry)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", entry, err)
	}
	table := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			table[k] = s
		}
	}
	return table, nil
}

func (st *scanState) buildCatalog() {
	st.catalog = Catalog{
		Namespaces: st.summary.Namespaces,
		Items:      []CatalogEntry{},
		Blocks:     []CatalogEntry{},
	}
	for _, ns := range st.summary.Namespaces {
		assets := st.summary.Assets[ns]
		for _, m := range assets.Models.Item {
			id := assetID(ns, m)
			st.catalog.Items = append(st.catalog.Items, CatalogEntry{ID: id, DisplayName: lookup(assets.LangKeys, langKey("item", id), id)})
		}
		for _, b := range assets.Blockstates {
			id := assetID(ns, b)
			st.catalog.Blocks = append(st.catalog.Blocks, CatalogEntry{ID: id, DisplayName: lookup(assets.LangKeys, langKey("block", id), id)})
		}
	}
}

func lookup(table map[string]string, key, fallback string) string {
	if v, ok := table[key]; ok && v != "" {
		return v
	}
	return fallback
}

type itemModel struct {
	Textures map[string]any `json:"textures"`
}

// modelTexture returns the layer0 reference of a model, or its particle.
func modelTexture(data []byte) (string, bool) {
	var m itemModel
	if err := json.Unmarshal(data, &m); err != nil {
		return "", false
	}
	for _, key := range []string{"layer0", "particle"} {
		if ref, ok := m.Textures[key].(string); ok && ref != "" {
			return ref, true
		}
	}
	return "", false
}

func (st *scanState) modelPreviews() {
	st.previews = Previews{Items: []Preview{}, Assets: []Preview{}}

	total := 0
	for _, ns := range st.summary.Namespaces {
		total += len(st.summary.Assets[ns].Models.Item)
	}
	st.rep.emitDetails(PhaseModels, 20, fmt.Sprintf("Model previews: 0/%d", total), countDetails(0, total))
	if st.MaxItemPreviews <= 0 {
		return
	}

	processed := 0
	for _, ns := range st.summary.Namespaces {
		assets := st.summary.Assets[ns]
		for _, m := range assets.Models.Item {
			preview, ok := st.modelPreview(ns, assets, m)
			if !ok {
				continue
			}
			st.previews.Items = append(st.previews.Items, preview)
			processed++
			pct := 20 + int(math.Round(float64(processed)/float64(max(1, total))*40))
			st.rep.emitDetails(PhaseModels, min(60, pct), fmt.Sprintf("Model previews: %d/%d", processed, total), countDetails(processed, total))
			if len(st.previews.Items) >= st.MaxItemPreviews {
				return
			}
		}
	}
}

func (st *scanState) modelPreview(ns string, assets *NamespaceAssets, modelEntry string) (Preview, bool) {
	data, err := st.Reader.ReadEntry(st.ctx, st.archivePath, modelEntry)
	if err != nil {
		st.log.Debugw("Skipping unreadable model", zap.String("entry", modelEntry), zap.Error(err))
		return Preview{}, false
	}
	ref, ok := modelTexture(data)
	if !ok {
		return Preview{}, false
	}
	texturePath, ok := st.textures.resolve(ns, ref)
	if !ok {
		return Preview{}, false
	}
	filePath, dataURI, err := st.render(st.ctx, st.cache, st.archivePath, texturePath)
	if err != nil {
		st.log.Debugw("Skipping unreadable texture", zap.String("entry", texturePath), zap.Error(err))
		return Preview{}, false
	}
	id := assetID(ns, modelEntry)
	return Preview{
		ID:          id,
		DisplayName: lookup(assets.LangKeys, langKey("item", id), id),
		TexturePath: texturePath,
		FilePath:    filePath,
		DataURI:     dataURI,
	}, true
}

func (st *scanState) assetPreviews() {
	st.rep.emit(PhaseAssets, 60, "Building texture previews")
	if st.MaxAssetPreviews <= 0 {
		return
	}

	seen := map[string]bool{}
	processed := 0
	for _, ns := range st.summary.Namespaces {
		assets := st.summary.Assets[ns]
		for _, texturePath := range assets.Textures {
			if len(st.previews.Assets) >= st.MaxAssetPreviews {
				st.emitAssetProgress(processed)
				return
			}
			if seen[texturePath] {
				continue
			}
			seen[texturePath] = true

			filePath, dataURI, err := st.render(st.ctx, st.cache, st.archivePath, texturePath)
			if err != nil {
				st.log.Debugw("Skipping unreadable texture", zap.String("entry", texturePath), zap.Error(err))
				continue
			}
			id := assetID(ns, texturePath)
			st.previews.Assets = append(st.previews.Assets, Preview{
				ID:          id,
				DisplayName: lookup(assets.LangKeys, langKey("", id), id),
				TexturePath: texturePath,
				FilePath:    filePath,
				DataURI:     dataURI,
			})
			processed++
			if processed%10 == 0 {
				st.emitAssetProgress(processed)
			}
		}
	}
	st.emitAssetProgress(processed)
}

func (st *scanState) emitAssetProgress(processed int) {
	pct := 60 + int(math.Round(float64(processed)/float64(max(1, st.MaxAssetPreviews))*35))
	st.rep.emitDetails(PhaseAssets, min(95, pct), fmt.Sprintf("Texture previews: %d", processed), countDetails(processed, st.MaxAssetPreviews))
}

func countDetails(processed, total int) map[string]any {
	return map[string]any{"processed": processed, "total": total}
}

// fallbackPreviews handles archives whose textures live outside the
// assets/<ns>/ tree: any image entry anywhere is previewed, labeled by basename.
func (st *scanState) fallbackPreviews() {
	st.layout = LayoutStandard
	if len(st.previews.Items) > 0 || len(st.previews.Assets) > 0 {
		return
	}
	st.layout = LayoutFallback
	st.rep.emit(PhaseFallback, 96, "No assets detected in standard paths; scanning for common textures…")

	for _, texturePath := range st.entries {
		if len(st.previews.Assets) >= st.MaxAssetPreviews {
			return
		}
		if !imagePattern.MatchString(texturePath) {
			continue
		}
		filePath, dataURI, err := st.render(st.ctx, st.cache, st.archivePath, texturePath)
		if err != nil {
			continue
		}
		id := imagePattern.ReplaceAllString(path.Base(texturePath), "")
		st.previews.Assets = append(st.previews.Assets, Preview{
			ID:          id,
			DisplayName: id,
			TexturePath: texturePath,
			FilePath:    filePath,
			DataURI:     dataURI,
		})
	}
}
