package downloads

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"mcwizard/catalog"
	"mcwizard/db"
	"mcwizard/ledger"
	"mcwizard/notify"
)

type fakeItem struct {
	url      string
	filename string
	savePath string
	received int64
	total    int64
}

func (i *fakeItem) URL() string          { return i.url }
func (i *fakeItem) Filename() string     { return i.filename }
func (i *fakeItem) SavePath() string     { return i.savePath }
func (i *fakeItem) SetSavePath(p string) { i.savePath = p }
func (i *fakeItem) ReceivedBytes() int64 { return i.received }
func (i *fakeItem) TotalBytes() int64    { return i.total }

// fakeTransfer records Begin calls; tests drive the hooks by hand.
type fakeTransfer struct {
	urls  []string
	hooks Hooks
	err   error
}

func (f *fakeTransfer) Begin(_ context.Context, rawURL string, hooks Hooks) error {
	if f.err != nil {
		return f.err
	}
	f.urls = append(f.urls, rawURL)
	f.hooks = hooks
	return nil
}

type fakeCatalog struct {
	files       []catalog.File
	file        *catalog.File
	fileErr     error
	downloadURL string
	urlErr      error
}

func (f *fakeCatalog) GetModFiles(context.Context, int, catalog.FilesQuery) (*catalog.FilesPage, error) {
	return &catalog.FilesPage{Data: f.files}, nil
}

func (f *fakeCatalog) GetFile(context.Context, int) (*catalog.File, error) {
	if f.fileErr != nil {
		return nil, f.fileErr
	}
	return f.file, nil
}

func (f *fakeCatalog) GetDownloadURL(context.Context, int, int) (string, error) {
	return f.downloadURL, f.urlErr
}

type fakeHistory struct {
	mu      sync.Mutex
	records []db.DownloadRecord
}

func (h *fakeHistory) Record(rec *db.DownloadRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, *rec)
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Send(ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) terminal() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Terminal() {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	modsDir  string
	transfer *fakeTransfer
	catalog  *fakeCatalog
	ledger   *ledger.Ledger
	history  *fakeHistory
	events   *eventLog
	c        *Correlator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		modsDir:  filepath.Join(dir, "mods"),
		transfer: &fakeTransfer{},
		catalog:  &fakeCatalog{},
		history:  &fakeHistory{},
		events:   &eventLog{},
	}
	if err := os.MkdirAll(h.modsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	h.ledger = ledger.New(filepath.Join(dir, "installed-mods.json"), zap.NewNop().Sugar())
	h.c = NewCorrelator(h.modsDir, h.transfer, h.catalog, h.ledger, h.history, zap.NewNop().Sugar())
	h.c.Subscribe(h.events)
	return h
}

// finishOnDisk writes the file the way a transfer would before reporting done.
func finishOnDisk(t *testing.T, item *fakeItem) {
	t.Helper()
	if err := os.WriteFile(item.savePath, []byte("jar"), 0o644); err != nil {
		t.Fatalf("write %s: %v", item.savePath, err)
	}
}

func TestAttributionSurvivesRedirectRename(t *testing.T) {
	h := newHarness(t)
	const registered = "https://edge.forgecdn.net/files/4/2/ruby-1.0.jar"
	h.catalog.file = &catalog.File{ID: 42, FileName: "ruby-1.0.jar", DownloadURL: registered}

	ticket, err := h.c.StartByFileID(context.Background(), 7, 42)
	if err != nil {
		t.Fatalf("StartByFileID() error = %v", err)
	}
	wantPath := filepath.Join(h.modsDir, "ruby-1.0.jar")
	if ticket.SavePath != wantPath {
		t.Fatalf("ticket.SavePath = %s, want %s", ticket.SavePath, wantPath)
	}

	// The server redirects and suggests a different name.
	item := &fakeItem{url: registered, filename: "Ruby Mod (Fabric) 1.0.jar", savePath: "/tmp/whatever.jar"}
	h.transfer.hooks.WillDownload(item)
	if item.savePath != wantPath {
		t.Fatalf("save path = %s, want override to %s", item.savePath, wantPath)
	}

	// By the time it is done the URL no longer matches the registration.
	item.url = "https://mirror.example/dl?id=42"
	item.received, item.total = 3, 3
	finishOnDisk(t, item)
	h.transfer.hooks.Done(item, StateCompleted)

	terminal := h.events.terminal()
	if len(terminal) != 1 {
		t.Fatalf("terminal events = %d, want 1", len(terminal))
	}
	ev := terminal[0]
	if ev.Kind != EventComplete || ev.FileID == nil || *ev.FileID != 42 || *ev.ModExternalID != 7 {
		t.Fatalf("terminal event = %+v", ev)
	}
	if p, ok := h.ledger.PathFor(42); !ok || p != wantPath {
		t.Fatalf("ledger PathFor(42) = %q, %v", p, ok)
	}
	if n := h.c.PendingCount(); n != 0 {
		t.Errorf("pending records left = %d", n)
	}
	if _, keys := h.c.pending.size(); keys != 0 {
		t.Errorf("pending index keys left = %d", keys)
	}
}

func TestDoneResolvesBySavePath(t *testing.T) {
	h := newHarness(t)
	h.catalog.files = []catalog.File{{ID: 5, FileName: "gem.jar", DownloadURL: "https://cdn/gem.jar"}}

	if _, err := h.c.StartLatest(context.Background(), 3); err != nil {
		t.Fatalf("StartLatest() error = %v", err)
	}
	// Nothing matches at start, so the item lands under the host's name.
	item := &fakeItem{url: "https://other/", filename: "renamed-by-host.bin"}
	h.transfer.hooks.WillDownload(item)

	item.SetSavePath(filepath.Join(h.modsDir, "gem.jar"))
	finishOnDisk(t, item)
	h.transfer.hooks.Done(item, StateCompleted)

	terminal := h.events.terminal()
	if len(terminal) != 1 || terminal[0].Kind != EventComplete || *terminal[0].FileID != 5 {
		t.Fatalf("terminal events = %+v", terminal)
	}
}

func TestOverlappingStartsOfSameFileLeaveNoPending(t *testing.T) {
	h := newHarness(t)
	const url = "https://cdn/gem.jar"
	h.catalog.files = []catalog.File{{ID: 5, FileName: "gem.jar", DownloadURL: url}}

	first := &fakeItem{url: url, filename: "gem.jar"}
	second := &fakeItem{url: url, filename: "gem.jar"}

	if _, err := h.c.StartLatest(context.Background(), 3); err != nil {
		t.Fatal(err)
	}
	h.transfer.hooks.WillDownload(first)
	if _, err := h.c.StartLatest(context.Background(), 3); err != nil {
		t.Fatal(err)
	}
	h.transfer.hooks.WillDownload(second)
	if n := h.c.PendingCount(); n != 1 {
		t.Fatalf("pending after second start = %d, want 1", n)
	}

	for _, item := range []*fakeItem{first, second} {
		finishOnDisk(t, item)
		h.transfer.hooks.Done(item, StateCompleted)
	}

	terminal := h.events.terminal()
	if len(terminal) != 2 {
		t.Fatalf("terminal events = %d, want 2", len(terminal))
	}
	for _, ev := range terminal {
		if ev.Kind != EventComplete || *ev.FileID != 5 {
			t.Fatalf("terminal event = %+v", ev)
		}
	}
	if records, keys := h.c.pending.size(); records != 0 || keys != 0 {
		t.Fatalf("pending left: %d records, %d keys", records, keys)
	}
}

func TestOverlappingStartsBeforeEitherBegins(t *testing.T) {
	h := newHarness(t)
	const url = "https://cdn/gem.jar"
	h.catalog.files = []catalog.File{{ID: 5, FileName: "gem.jar", DownloadURL: url}}

	for range 2 {
		if _, err := h.c.StartLatest(context.Background(), 3); err != nil {
			t.Fatal(err)
		}
	}
	first := &fakeItem{url: url, filename: "gem.jar"}
	second := &fakeItem{url: url, filename: "gem.jar"}
	h.transfer.hooks.WillDownload(first)
	h.transfer.hooks.WillDownload(second)
	for _, item := range []*fakeItem{first, second} {
		finishOnDisk(t, item)
		h.transfer.hooks.Done(item, StateCompleted)
	}

	if n := h.c.PendingCount(); n != 0 {
		t.Fatalf("PendingCount() = %d, want 0", n)
	}
	if got := len(h.events.terminal()); got != 2 {
		t.Fatalf("terminal events = %d, want 2", got)
	}
}

func TestUnattributedDownloadIsReportedAsFailed(t *testing.T) {
	h := newHarness(t)
	if err := h.c.StartURL(context.Background(), "https://random.example/pack.zip"); err != nil {
		t.Fatal(err)
	}

	item := &fakeItem{url: "https://random.example/pack.zip", filename: "pack.zip"}
	h.transfer.hooks.WillDownload(item)
	if want := filepath.Join(h.modsDir, "pack.zip"); item.savePath != want {
		t.Fatalf("save path = %s, want %s", item.savePath, want)
	}
	item.received, item.total = 0, 0
	h.transfer.hooks.Updated(item)
	finishOnDisk(t, item)
	h.transfer.hooks.Done(item, StateCompleted)

	terminal := h.events.terminal()
	if len(terminal) != 1 {
		t.Fatalf("terminal events = %d", len(terminal))
	}
	ev := terminal[0]
	if ev.Kind != EventFailed || ev.State != StateCompleted || ev.FileID != nil || ev.ModExternalID != nil {
		t.Fatalf("terminal event = %+v, want unattributed failure", ev)
	}
	if got := h.ledger.List(); len(got) != 0 {
		t.Fatalf("ledger = %+v, want empty", got)
	}
	if progress := h.events.events[0]; progress.Kind != EventProgress || progress.Percent != 0 {
		t.Errorf("progress with unknown total = %+v", progress)
	}
	if len(h.history.records) != 1 || h.history.records[0].Attributed {
		t.Errorf("history = %+v", h.history.records)
	}
}

func TestInterruptedDownloadEmitsOneFailure(t *testing.T) {
	h := newHarness(t)
	h.catalog.file = &catalog.File{ID: 9, FileName: "ore.jar", DownloadURL: "https://cdn/ore.jar"}
	if _, err := h.c.StartByFileID(context.Background(), 1, 9); err != nil {
		t.Fatal(err)
	}

	item := &fakeItem{url: "https://cdn/ore.jar", filename: "ore.jar", total: 100}
	h.transfer.hooks.WillDownload(item)
	for _, r := range []int64{10, 5, 40} {
		item.received = r
		h.transfer.hooks.Updated(item)
	}
	h.transfer.hooks.Done(item, StateInterrupted)

	var received []int64
	for _, ev := range h.events.events {
		if ev.Kind == EventProgress {
			received = append(received, ev.Received)
			if ev.FileID == nil || *ev.FileID != 9 {
				t.Errorf("progress without identity: %+v", ev)
			}
		}
	}
	if len(received) != 2 || received[0] != 10 || received[1] != 40 {
		t.Fatalf("progress received = %v, want [10 40]", received)
	}

	terminal := h.events.terminal()
	if len(terminal) != 1 || terminal[0].Kind != EventFailed || terminal[0].State != StateInterrupted || *terminal[0].FileID != 9 {
		t.Fatalf("terminal events = %+v", terminal)
	}
	if h.c.PendingCount() != 0 {
		t.Error("pending entry not purged after failure")
	}
	if len(h.ledger.List()) != 0 {
		t.Error("failed download recorded in ledger")
	}
	if len(h.history.records) != 1 || h.history.records[0].State != "interrupted" || !h.history.records[0].Attributed {
		t.Errorf("history = %+v", h.history.records)
	}
}

func TestRequestFailureBeforeStart(t *testing.T) {
	h := newHarness(t)
	h.catalog.files = []catalog.File{{ID: 2, FileName: "a.jar", DownloadURL: "https://cdn/a.jar"}}
	if _, err := h.c.StartLatest(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	// No WillDownload: the request never got a response.
	item := &fakeItem{url: "https://cdn/a.jar", filename: "a.jar"}
	h.transfer.hooks.Done(item, StateCancelled)

	terminal := h.events.terminal()
	if len(terminal) != 1 || terminal[0].Kind != EventFailed || terminal[0].State != StateCancelled {
		t.Fatalf("terminal events = %+v", terminal)
	}
	if h.c.PendingCount() != 0 {
		t.Error("pending entry not purged")
	}
}

func TestStartByFileIDFallsBackToDownloadURL(t *testing.T) {
	h := newHarness(t)
	h.catalog.fileErr = errors.New("403")
	h.catalog.downloadURL = "https://cdn/files/blob"

	ticket, err := h.c.StartByFileID(context.Background(), 12, 34)
	if err != nil {
		t.Fatalf("StartByFileID() error = %v", err)
	}
	if ticket.Filename != "mod-12-file-34.jar" || ticket.URL != "https://cdn/files/blob" {
		t.Fatalf("ticket = %+v", ticket)
	}
	if len(h.transfer.urls) != 1 {
		t.Fatalf("transfers started = %d", len(h.transfer.urls))
	}
}

func TestStartErrors(t *testing.T) {
	h := newHarness(t)

	if _, err := h.c.StartLatest(context.Background(), 1); !errors.Is(err, ErrNoDownloadableFile) {
		t.Errorf("StartLatest() with no files = %v", err)
	}

	h.catalog.fileErr = errors.New("boom")
	h.catalog.urlErr = errors.New("also boom")
	if _, err := h.c.StartByFileID(context.Background(), 1, 2); err == nil || err.Error() != "boom" {
		t.Errorf("StartByFileID() = %v, want the metadata error", err)
	}

	h.catalog.files = []catalog.File{{ID: 1, FileName: "a.jar", DownloadURL: "https://cdn/a.jar"}}
	h.transfer.err = errors.New("no network")
	if _, err := h.c.StartLatest(context.Background(), 1); err == nil {
		t.Error("StartLatest() ignored a transfer failure")
	}
	if h.c.PendingCount() != 0 {
		t.Error("pending entry kept after Begin failed")
	}
}

func TestManagedName(t *testing.T) {
	tests := map[string]string{
		"ruby-1.0.jar": "ruby-1.0.jar",
		"ruby":         "ruby.jar",
		"../evil.jar":  "evil.jar",
		"":             "download.jar",
	}
	for in, want := range tests {
		if got := managedName(in); got != want {
			t.Errorf("managedName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFailingSinkDoesNotBreakCorrelator(t *testing.T) {
	h := newHarness(t)
	h.c.Subscribe(notify.SinkFunc[Event](func(Event) error { panic("renderer gone") }))
	h.catalog.files = []catalog.File{{ID: 1, FileName: "a.jar", DownloadURL: "https://cdn/a.jar"}}
	if _, err := h.c.StartLatest(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	item := &fakeItem{url: "https://cdn/a.jar", filename: "a.jar"}
	h.transfer.hooks.WillDownload(item)
	finishOnDisk(t, item)
	h.transfer.hooks.Done(item, StateCompleted)

	if len(h.events.terminal()) != 1 {
		t.Fatal("healthy sink missed the terminal event")
	}
	if _, ok := h.ledger.PathFor(1); !ok {
		t.Fatal("completion not recorded")
	}
}
