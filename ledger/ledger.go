// Package ledger keeps the list of installed mod files: one entry per
// attributed, completed download, pruned whenever the file it points at is
// gone from disk.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"mcwizard/notify"
)

// Entry is one installed file.
type Entry struct {
	ModExternalID int    `json:"modExternalId"`
	FileID        int    `json:"fileId"`
	Filename      string `json:"filename"`
	Path          string `json:"path"`
	InstalledAt   int64  `json:"installedAt"`
}

// Store is the on-disk document.
type Store struct {
	Entries []Entry `json:"entries"`
}

func (s Store) clone() Store {
	return Store{Entries: append([]Entry{}, s.Entries...)}
}

// PersistenceError wraps an I/O failure on the ledger file.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Ledger owns the ledger file. All methods are safe for concurrent use.
// Persistence failures are logged and never returned; after a failed write
// the in-memory copy stays authoritative until a write succeeds again.
type Ledger struct {
	path string
	log  *zap.SugaredLogger
	hub  *notify.Hub[Store]
	now  func() time.Time

	mu    sync.Mutex
	mem   Store
	dirty bool
}

// New creates a Ledger backed by the JSON file at path.
func New(path string, log *zap.SugaredLogger) *Ledger {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Ledger{
		path: path,
		log:  log,
		hub:  notify.NewHub[Store](log),
		now:  time.Now,
		mem:  Store{Entries: []Entry{}},
	}
}

// Path returns the ledger file location.
func (l *Ledger) Path() string { return l.path }

// Subscribe registers sink for every committed change. Sinks run while the
// ledger lock is held and must not call back into the Ledger.
func (l *Ledger) Subscribe(sink notify.Sink[Store]) (unsubscribe func()) {
	return l.hub.Subscribe(sink)
}

// RecordCompletion replaces any entry with the same file ID by e, persists
// and broadcasts the result. A zero InstalledAt is stamped with the current time.
func (l *Ledger) RecordCompletion(e Entry) []Entry {
	if e.InstalledAt == 0 {
		e.InstalledAt = l.now().UnixMilli()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.readLocked()
	next := Store{Entries: make([]Entry, 0, len(cur.Entries)+1)}
	for _, existing := range cur.Entries {
		if existing.FileID != e.FileID {
			next.Entries = append(next.Entries, existing)
		}
	}
	next.Entries = append(next.Entries, e)

	l.commitLocked(next)
	l.log.Infow("Recorded installed file",
		zap.Int("mod_id", e.ModExternalID),
		zap.Int("file_id", e.FileID),
		zap.String("path", e.Path))
	return next.clone().Entries
}

// Resync drops entries whose file no longer exists. The store is only
// rewritten and broadcast when something was dropped.
func (l *Ledger) Resync() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.readLocked()
	kept := Store{Entries: make([]Entry, 0, len(cur.Entries))}
	for _, e := range cur.Entries {
		if _, err := os.Stat(e.Path); err != nil {
			l.log.Infow("Pruning missing installed file", zap.Int("file_id", e.FileID), zap.String("path", e.Path))
			continue
		}
		kept.Entries = append(kept.Entries, e)
	}

	if len(kept.Entries) != len(cur.Entries) {
		l.commitLocked(kept)
	} else {
		l.mem = kept
	}
	return kept.clone().Entries
}

// List returns the installed entries after pruning missing files.
func (l *Ledger) List() []Entry {
	return l.Resync()
}

// PathFor returns the recorded path of fileID when it is still installed.
func (l *Ledger) PathFor(fileID int) (string, bool) {
	for _, e := range l.List() {
		if e.FileID == fileID {
			return e.Path, true
		}
	}
	return "", false
}

func (l *Ledger) readLocked() Store {
	if l.dirty {
		return l.mem.clone()
	}
	s, err := load(l.path)
	if err != nil {
		l.log.Warnw("Reading ledger failed, using in-memory copy", zap.Error(err))
		return l.mem.clone()
	}
	return s
}

func (l *Ledger) commitLocked(s Store) {
	l.mem = s.clone()
	if err := save(l.path, s); err != nil {
		l.dirty = true
		l.log.Warnw("Persisting ledger failed", zap.Error(err))
	} else {
		l.dirty = false
	}
	l.hub.Publish(s.clone())
}

func load(path string) (Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Store{Entries: []Entry{}}, nil
		}
		return Store{}, &PersistenceError{Op: "read", Path: path, Err: err}
	}

	var s Store
	if err := json.Unmarshal(data, &s); err != nil {
		return Store{}, &PersistenceError{Op: "decode", Path: path, Err: err}
	}
	if s.Entries == nil {
		s.Entries = []Entry{}
	}
	return s, nil
}

// save rewrites the whole file through a temp file and rename.
func save(path string, s Store) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &PersistenceError{Op: "mkdir", Path: path, Err: err}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "encode", Path: path, Err: err}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &PersistenceError{Op: "write", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &PersistenceError{Op: "replace", Path: path, Err: err}
	}
	return nil
}
