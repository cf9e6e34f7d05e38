package downloads

import (
	"net/url"
	"path"
	"strings"
	"sync"
)

// Pending is what an in-flight download is expected to become once it is
// attributed.
type Pending struct {
	ModExternalID int
	FileID        int
	Filename      string
	SavePath      string
}

type indexKind int

const (
	byURL indexKind = iota
	byFilename
	byNormName
	bySavePath
	indexCount
)

type indexKey struct {
	kind indexKind
	key  string
}

type pendingRecord struct {
	Pending
	keys []indexKey
}

// pendingTable owns every pending download. The four indices only map keys
// to record IDs, so removing a record purges all of its keys in one place.
type pendingTable struct {
	mu      sync.Mutex
	next    uint64
	records map[uint64]*pendingRecord
	index   [indexCount]map[string]uint64
}

func newPendingTable() *pendingTable {
	t := &pendingTable{records: map[uint64]*pendingRecord{}}
	for i := range t.index {
		t.index[i] = map[string]uint64{}
	}
	return t
}

// normalizeName lowercases, percent-decodes and collapses whitespace so that
// "Ruby%20Mod.JAR" and "ruby  mod.jar" compare equal.
func normalizeName(name string) string {
	lower := strings.ToLower(name)
	decoded, err := url.PathUnescape(lower)
	if err != nil {
		decoded = lower
	}
	return strings.Join(strings.Fields(decoded), " ")
}

// remoteBasename returns the last path segment of rawURL, still encoded.
func remoteBasename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return ""
	}
	base := path.Base(u.EscapedPath())
	if base == "/" || base == "." {
		return ""
	}
	return base
}

func (t *pendingTable) addLocked(id uint64, kind indexKind, key string) {
	if key == "" {
		return
	}
	rec := t.records[id]
	prev, taken := t.index[kind][key]
	t.index[kind][key] = id
	if taken && prev != id {
		t.dropUnreachableLocked(prev)
	}
	for _, k := range rec.keys {
		if k.kind == kind && k.key == key {
			return
		}
	}
	rec.keys = append(rec.keys, indexKey{kind: kind, key: key})
}

// dropUnreachableLocked deletes record id once a newer registration has
// taken over every one of its keys.
func (t *pendingTable) dropUnreachableLocked(id uint64) {
	rec, ok := t.records[id]
	if !ok {
		return
	}
	for _, k := range rec.keys {
		if t.index[k.kind][k.key] == id {
			return
		}
	}
	delete(t.records, id)
}

func (t *pendingTable) addNameLocked(id uint64, name string) {
	if name == "" {
		return
	}
	t.addLocked(id, byFilename, strings.ToLower(name))
	t.addLocked(id, byNormName, normalizeName(name))
}

// register indexes p under its URL, expected filename, the URL's remote
// basename and its save path.
func (t *pendingTable) register(rawURL string, p Pending) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	id := t.next
	t.records[id] = &pendingRecord{Pending: p}
	t.addLocked(id, byURL, rawURL)
	t.addNameLocked(id, p.Filename)
	t.addNameLocked(id, remoteBasename(rawURL))
	t.addLocked(id, bySavePath, p.SavePath)
	return id
}

// alias adds the names a transfer reported at start time, so a later done
// event carrying them resolves to the same record.
func (t *pendingTable) alias(id uint64, filename, savePath string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[id]; !ok {
		return
	}
	t.addNameLocked(id, filename)
	t.addLocked(id, bySavePath, savePath)
}

func (t *pendingTable) lookupLocked(kind indexKind, key string) (uint64, bool) {
	if key == "" {
		return 0, false
	}
	id, ok := t.index[kind][key]
	return id, ok
}

func (t *pendingTable) resolveLocked(rawURL, filename, savePath string) (uint64, Pending, bool) {
	candidates := []indexKey{
		{byURL, rawURL},
		{byFilename, strings.ToLower(filename)},
		{byNormName, normalizeName(filename)},
		{bySavePath, savePath},
	}
	for _, c := range candidates {
		if id, ok := t.lookupLocked(c.kind, c.key); ok {
			return id, t.records[id].Pending, true
		}
	}
	return 0, Pending{}, false
}

// resolveStart looks a starting transfer up by URL, then filename variants.
func (t *pendingTable) resolveStart(rawURL, filename string) (uint64, Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolveLocked(rawURL, filename, "")
}

// resolveDone additionally falls back to the final save path.
func (t *pendingTable) resolveDone(rawURL, filename, savePath string) (uint64, Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolveLocked(rawURL, filename, savePath)
}

func (t *pendingTable) get(id uint64) (Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	if !ok {
		return Pending{}, false
	}
	return rec.Pending, true
}

// remove drops record id and every index key still pointing at it. Keys that
// a newer registration took over are left alone.
func (t *pendingTable) remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	if !ok {
		return
	}
	for _, k := range rec.keys {
		if t.index[k.kind][k.key] == id {
			delete(t.index[k.kind], k.key)
		}
	}
	delete(t.records, id)
}

// size returns the number of records and the total number of index keys.
func (t *pendingTable) size() (records, keys int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, idx := range t.index {
		keys += len(idx)
	}
	return len(t.records), keys
}
