// Package downloads attributes file downloads to the mod files that asked for
// them, steers them into the mods directory and hands completed ones to the
// installed-files ledger.
package downloads

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mcwizard/catalog"
	"mcwizard/db"
	"mcwizard/ledger"
	"mcwizard/notify"
)

// ErrNoDownloadableFile is returned when the catalog has no URL for a file.
var ErrNoDownloadableFile = errors.New("no downloadable file found")

type EventKind string

const (
	EventProgress EventKind = "progress"
	EventComplete EventKind = "complete"
	EventFailed   EventKind = "failed"
)

// Event reports download progress or a terminal outcome. ModExternalID and
// FileID are nil when the download could not be attributed.
type Event struct {
	Kind          EventKind `json:"kind"`
	AttemptID     string    `json:"attemptId"`
	URL           string    `json:"url"`
	ModExternalID *int      `json:"modExternalId,omitempty"`
	FileID        *int      `json:"fileId,omitempty"`
	Filename      string    `json:"filename,omitempty"`
	Path          string    `json:"path,omitempty"`
	Received      int64     `json:"received,omitempty"`
	Total         int64     `json:"total,omitempty"`
	Percent       float64   `json:"percent"`
	State         State     `json:"state,omitempty"`
}

// Terminal reports whether e ends its download attempt.
func (e Event) Terminal() bool {
	return e.Kind == EventComplete || e.Kind == EventFailed
}

// Catalog resolves mod files to download URLs.
type Catalog interface {
	GetModFiles(ctx context.Context, modID int, q catalog.FilesQuery) (*catalog.FilesPage, error)
	GetFile(ctx context.Context, fileID int) (*catalog.File, error)
	GetDownloadURL(ctx context.Context, modID, fileID int) (string, error)
}

// HistoryRecorder stores finished attempts.
type HistoryRecorder interface {
	Record(rec *db.DownloadRecord) error
}

// Ticket describes a started download.
type Ticket struct {
	URL           string `json:"url"`
	ModExternalID int    `json:"modExternalId"`
	FileID        int    `json:"fileId"`
	Filename      string `json:"filename"`
	SavePath      string `json:"savePath"`
}

type attempt struct {
	id           string
	pendingID    uint64
	attributed   bool
	pending      Pending
	lastReceived int64
}

// Correlator is the process-scoped owner of pending downloads.
type Correlator struct {
	ModsDir  string
	Transfer Transfer
	Catalog  Catalog
	Ledger   *ledger.Ledger
	History  HistoryRecorder
	Log      *zap.SugaredLogger

	pending *pendingTable
	hub     *notify.Hub[Event]

	mu       sync.Mutex
	attempts map[Item]*attempt
}

// NewCorrelator wires a Correlator. cat and history may be nil; without a
// catalog only StartURL works.
func NewCorrelator(modsDir string, transfer Transfer, cat Catalog, l *ledger.Ledger, history HistoryRecorder, log *zap.SugaredLogger) *Correlator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Correlator{
		ModsDir:  modsDir,
		Transfer: transfer,
		Catalog:  cat,
		Ledger:   l,
		History:  history,
		Log:      log,
		pending:  newPendingTable(),
		hub:      notify.NewHub[Event](log),
		attempts: map[Item]*attempt{},
	}
}

// Subscribe registers sink for download events. Sinks must not block.
func (c *Correlator) Subscribe(sink notify.Sink[Event]) (unsubscribe func()) {
	return c.hub.Subscribe(sink)
}

func (c *Correlator) hooks() Hooks {
	return Hooks{WillDownload: c.willDownload, Updated: c.updated, Done: c.done}
}

// StartLatest downloads the newest file of modID.
func (c *Correlator) StartLatest(ctx context.Context, modID int) (Ticket, error) {
	if c.Catalog == nil {
		return Ticket{}, fmt.Errorf("catalog is not configured")
	}
	page, err := c.Catalog.GetModFiles(ctx, modID, catalog.FilesQuery{PageSize: 1, Index: 0})
	if err != nil {
		return Ticket{}, err
	}
	if len(page.Data) == 0 || page.Data[0].DownloadURL == "" {
		return Ticket{}, fmt.Errorf("mod %d: %w", modID, ErrNoDownloadableFile)
	}
	file := page.Data[0]
	name := file.FileName
	if name == "" {
		name = fmt.Sprintf("mod-%d.jar", file.ID)
	}
	return c.start(ctx, file.DownloadURL, modID, file.ID, name)
}

// StartByFileID downloads one specific file. When the file metadata cannot be
// fetched the download-url endpoint is tried instead.
func (c *Correlator) StartByFileID(ctx context.Context, modID, fileID int) (Ticket, error) {
	if c.Catalog == nil {
		return Ticket{}, fmt.Errorf("catalog is not configured")
	}
	var (
		rawURL string
		name   string
		id     = fileID
	)
	file, err := c.Catalog.GetFile(ctx, fileID)
	if err == nil {
		rawURL = file.DownloadURL
		name = file.FileName
		if file.ID != 0 {
			id = file.ID
		}
	} else {
		c.Log.Debugw("File metadata unavailable, trying download-url", zap.Int("file_id", fileID), zap.Error(err))
		alt, altErr := c.Catalog.GetDownloadURL(ctx, modID, fileID)
		if altErr != nil {
			return Ticket{}, err
		}
		rawURL = alt
	}
	if rawURL == "" {
		return Ticket{}, fmt.Errorf("file %d: %w", fileID, ErrNoDownloadableFile)
	}
	if name == "" {
		name = fmt.Sprintf("mod-%d-file-%d.jar", modID, fileID)
	}
	return c.start(ctx, rawURL, modID, id, name)
}

// StartURL begins a download nobody registered. It lands in ModsDir under
// the server's name and is reported as unattributed.
func (c *Correlator) StartURL(ctx context.Context, rawURL string) error {
	return c.Transfer.Begin(ctx, rawURL, c.hooks())
}

// managedName keeps the base of name and defaults the extension to .jar.
func managedName(name string) string {
	name = safeFilename(name)
	ext := filepath.Ext(name)
	if ext == "" {
		ext = ".jar"
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}

func (c *Correlator) start(ctx context.Context, rawURL string, modID, fileID int, name string) (Ticket, error) {
	filename := managedName(name)
	p := Pending{
		ModExternalID: modID,
		FileID:        fileID,
		Filename:      filename,
		SavePath:      filepath.Join(c.ModsDir, filename),
	}
	id := c.pending.register(rawURL, p)
	c.Log.Infow("Starting download",
		zap.Int("mod_id", modID),
		zap.Int("file_id", fileID),
		zap.String("url", rawURL),
		zap.String("save_path", p.SavePath))

	if err := c.Transfer.Begin(ctx, rawURL, c.hooks()); err != nil {
		c.pending.remove(id)
		return Ticket{}, fmt.Errorf("failed to start download of file %d: %w", fileID, err)
	}
	return Ticket{URL: rawURL, ModExternalID: modID, FileID: fileID, Filename: filename, SavePath: p.SavePath}, nil
}

func (c *Correlator) attemptFor(item Item) *attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	att, ok := c.attempts[item]
	if !ok {
		att = &attempt{id: uuid.NewString()}
		c.attempts[item] = att
	}
	return att
}

func (c *Correlator) willDownload(item Item) {
	att := c.attemptFor(item)
	suggested := item.Filename()

	id, p, ok := c.pending.resolveStart(item.URL(), suggested)
	if !ok {
		target := filepath.Join(c.ModsDir, safeFilename(suggested))
		item.SetSavePath(target)
		c.Log.Infow("Unattributed download", zap.String("url", item.URL()), zap.String("save_path", target))
		return
	}

	item.SetSavePath(p.SavePath)
	c.pending.alias(id, suggested, item.SavePath())

	c.mu.Lock()
	att.pendingID, att.pending, att.attributed = id, p, true
	c.mu.Unlock()
	c.Log.Debugw("Download attributed",
		zap.String("attempt", att.id),
		zap.Int("file_id", p.FileID),
		zap.String("suggested", suggested))
}

func (c *Correlator) updated(item Item) {
	att := c.attemptFor(item)
	received, total := item.ReceivedBytes(), item.TotalBytes()

	c.mu.Lock()
	if received < att.lastReceived {
		c.mu.Unlock()
		return
	}
	att.lastReceived = received
	ev := Event{
		Kind:      EventProgress,
		AttemptID: att.id,
		URL:       item.URL(),
		Filename:  item.Filename(),
		Path:      item.SavePath(),
		Received:  received,
		Total:     total,
	}
	if total > 0 {
		ev.Percent = float64(received) / float64(total)
	}
	if att.attributed {
		ev.ModExternalID, ev.FileID = intPtr(att.pending.ModExternalID), intPtr(att.pending.FileID)
	}
	c.mu.Unlock()

	c.hub.Publish(ev)
}

func (c *Correlator) done(item Item, state State) {
	att := c.attemptFor(item)
	c.mu.Lock()
	delete(c.attempts, item)
	// An attributed item releases the record it was bound to at start, never
	// one a later registration for the same URL owns.
	id, p, ok := att.pendingID, att.pending, att.attributed
	c.mu.Unlock()

	if !ok {
		id, p, ok = c.pending.resolveDone(item.URL(), item.Filename(), item.SavePath())
	}
	if ok {
		c.pending.remove(id)
	}

	ev := Event{
		AttemptID: att.id,
		URL:       item.URL(),
		Filename:  item.Filename(),
		Path:      item.SavePath(),
		Received:  item.ReceivedBytes(),
		Total:     item.TotalBytes(),
		State:     state,
	}
	if ev.Total > 0 {
		ev.Percent = float64(ev.Received) / float64(ev.Total)
	}
	if ok {
		ev.ModExternalID, ev.FileID = intPtr(p.ModExternalID), intPtr(p.FileID)
	}

	if ok && state == StateCompleted {
		ev.Kind = EventComplete
		ev.Filename, ev.Path, ev.Percent = p.Filename, p.SavePath, 1
		if c.Ledger != nil {
			c.Ledger.RecordCompletion(ledger.Entry{
				ModExternalID: p.ModExternalID,
				FileID:        p.FileID,
				Filename:      p.Filename,
				Path:          p.SavePath,
			})
		}
		c.Log.Infow("Download complete", zap.String("attempt", att.id), zap.Int("file_id", p.FileID), zap.String("path", p.SavePath))
	} else {
		ev.Kind = EventFailed
		c.Log.Warnw("Download failed",
			zap.String("attempt", att.id),
			zap.String("url", ev.URL),
			zap.String("state", string(state)),
			zap.Bool("attributed", ok))
	}

	c.record(ev, ok)
	c.hub.Publish(ev)
	if c.Ledger != nil {
		c.Ledger.Resync()
	}
}

func (c *Correlator) record(ev Event, attributed bool) {
	if c.History == nil {
		return
	}
	rec := &db.DownloadRecord{
		AttemptID:     ev.AttemptID,
		URL:           ev.URL,
		ModExternalID: ev.ModExternalID,
		FileID:        ev.FileID,
		Filename:      ev.Filename,
		Path:          ev.Path,
		State:         string(ev.State),
		Attributed:    attributed,
	}
	if err := c.History.Record(rec); err != nil {
		c.Log.Warnw("Recording download history failed", zap.String("attempt", ev.AttemptID), zap.Error(err))
	}
}

// PendingCount returns how many registered downloads have not finished.
func (c *Correlator) PendingCount() int {
	n, _ := c.pending.size()
	return n
}

func intPtr(v int) *int { return &v }
