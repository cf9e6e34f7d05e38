package scanner

import (
	"path"
	"regexp"
	"strings"
)

var (
	namespacePattern = regexp.MustCompile(`^assets/([^/]+)/`)
	imagePattern     = regexp.MustCompile(`(?i)\.(png|jpe?g|webp)$`)
	qualifiedRef     = regexp.MustCompile(`.+:.+`)
)

var textureSuffixes = []string{".png", ".jpg", ".jpeg", ".webp", ""}

// discoverNamespaces returns the distinct assets/<ns>/ prefixes in order of
// first appearance.
func discoverNamespaces(entries []string) []string {
	seen := map[string]bool{}
	var namespaces []string
	for _, e := range entries {
		m := namespacePattern.FindStringSubmatch(e)
		if m == nil || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		namespaces = append(namespaces, m[1])
	}
	return namespaces
}

// classify sorts the entries of one namespace into asset kinds.
func classify(entries []string, ns string) (langFiles []string, assets NamespaceAssets) {
	prefix := "assets/" + ns + "/"
	assets = NamespaceAssets{
		Blockstates: []string{},
		Models:      ModelSet{Item: []string{}, Block: []string{}},
		Textures:    []string{},
	}
	for _, e := range entries {
		if !strings.HasPrefix(e, prefix) {
			continue
		}
		rest := strings.TrimPrefix(e, prefix)
		isJSON := strings.HasSuffix(e, ".json")
		switch {
		case strings.HasPrefix(rest, "lang/") && isJSON:
			langFiles = append(langFiles, e)
		case strings.HasPrefix(rest, "blockstates/") && isJSON:
			assets.Blockstates = append(assets.Blockstates, e)
		case strings.HasPrefix(rest, "models/item/") && isJSON:
			assets.Models.Item = append(assets.Models.Item, e)
		case strings.HasPrefix(rest, "models/block/") && isJSON:
			assets.Models.Block = append(assets.Models.Block, e)
		case strings.HasPrefix(rest, "textures/") && imagePattern.MatchString(e):
			assets.Textures = append(assets.Textures, e)
		}
	}
	return langFiles, assets
}

// pickLangFile prefers en_us, else the first localization file.
func pickLangFile(langFiles []string) string {
	for _, f := range langFiles {
		if strings.HasSuffix(f, "en_us.json") {
			return f
		}
	}
	if len(langFiles) > 0 {
		return langFiles[0]
	}
	return ""
}

// assetID builds "<ns>:<basename without suffix>".
func assetID(ns, entry string) string {
	base := path.Base(entry)
	base = strings.TrimSuffix(base, ".json")
	base = imagePattern.ReplaceAllString(base, "")
	return ns + ":" + base
}

// langKey turns "ns:name" into "<kind>.ns.name". An empty kind yields "ns.name".
func langKey(kind, id string) string {
	key := strings.Replace(id, ":", ".", 1)
	if kind == "" {
		return key
	}
	return kind + "." + key
}

// textureIndex resolves model texture references against archive entries.
type textureIndex struct {
	entries []string
	lower   map[string]string
}

func newTextureIndex(entries []string) *textureIndex {
	lower := make(map[string]string, len(entries))
	for _, e := range entries {
		k := strings.ToLower(e)
		if _, ok := lower[k]; !ok {
			lower[k] = e
		}
	}
	return &textureIndex{entries: entries, lower: lower}
}

// resolve maps a texture reference ("ns:path" or bare "path") to an entry.
// It tries the standard image suffixes first, then a case-insensitive match
// on the basename within the namespace's textures directory.
func (ti *textureIndex) resolve(ns, ref string) (string, bool) {
	refNS, refPath := ns, ref
	if qualifiedRef.MatchString(ref) {
		parts := strings.SplitN(ref, ":", 2)
		refNS, refPath = parts[0], parts[1]
	}
	base := strings.TrimPrefix(refPath, "/")
	if base == "" {
		return "", false
	}

	dir := "assets/" + refNS + "/textures/"
	for _, suffix := range textureSuffixes {
		if hit, ok := ti.lower[strings.ToLower(dir+base+suffix)]; ok {
			return hit, true
		}
	}

	name := strings.ToLower(path.Base(base))
	lowerDir := strings.ToLower(dir)
	for _, e := range ti.entries {
		le := strings.ToLower(e)
		if !strings.HasPrefix(le, lowerDir) {
			continue
		}
		if strings.HasSuffix(imagePattern.ReplaceAllString(le, ""), "/"+name) {
			return e, true
		}
	}
	return "", false
}
