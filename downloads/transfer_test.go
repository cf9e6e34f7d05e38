package downloads

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"go.uber.org/zap"

	"mcwizard/catalog"
	"mcwizard/ledger"
)

type hookLog struct {
	mu       sync.Mutex
	started  []string
	progress []int64
	states   []State
	paths    []string
}

func (h *hookLog) hooks(override string) Hooks {
	return Hooks{
		WillDownload: func(item Item) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.started = append(h.started, item.Filename())
			if override != "" {
				item.SetSavePath(override)
			}
		},
		Updated: func(item Item) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.progress = append(h.progress, item.ReceivedBytes())
		},
		Done: func(item Item, state State) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.states = append(h.states, state)
			h.paths = append(h.paths, item.SavePath())
		},
	}
}

func TestHTTPTransferStreamsToOverriddenPath(t *testing.T) {
	body := bytes.Repeat([]byte("x"), 300<<10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="Ruby Mod 1.0.jar"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "mods", "ruby.jar")
	tr := NewHTTPTransfer(filepath.Join(dir, "default"), "mcwizard/test", zap.NewNop().Sugar())
	log := &hookLog{}
	if err := tr.Begin(context.Background(), srv.URL+"/files/ruby.jar", log.hooks(target)); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	tr.Wait()

	if len(log.started) != 1 || log.started[0] != "Ruby Mod 1.0.jar" {
		t.Fatalf("suggested filenames = %v", log.started)
	}
	if len(log.states) != 1 || log.states[0] != StateCompleted || log.paths[0] != target {
		t.Fatalf("done = %v %v", log.states, log.paths)
	}
	if len(log.progress) < 4 {
		t.Fatalf("progress ticks = %d, want one per 64 KiB", len(log.progress))
	}
	for i := 1; i < len(log.progress); i++ {
		if log.progress[i] < log.progress[i-1] {
			t.Fatalf("progress went backwards: %v", log.progress)
		}
	}
	if last := log.progress[len(log.progress)-1]; last != int64(len(body)) {
		t.Fatalf("last progress = %d, want %d", last, len(body))
	}
	got, err := os.ReadFile(target)
	if err != nil || !bytes.Equal(got, body) {
		t.Fatalf("downloaded file mismatch: %v", err)
	}
	if leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(target), "*.part")); len(leftovers) != 0 {
		t.Errorf("partial files left behind: %v", leftovers)
	}
}

func TestHTTPTransferConcurrentSameTarget(t *testing.T) {
	half := bytes.Repeat([]byte("a"), 100<<10)
	body := append(append([]byte{}, half...), bytes.Repeat([]byte("b"), 100<<10)...)
	var both sync.WaitGroup
	both.Add(2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(half)
		w.(http.Flusher).Flush()
		both.Done()
		both.Wait()
		_, _ = w.Write(body[len(half):])
	}))
	defer srv.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "mods", "ruby.jar")
	tr := NewHTTPTransfer(dir, "", nil)
	log := &hookLog{}
	for range 2 {
		if err := tr.Begin(context.Background(), srv.URL+"/ruby.jar", log.hooks(target)); err != nil {
			t.Fatal(err)
		}
	}
	tr.Wait()

	if len(log.states) != 2 || log.states[0] != StateCompleted || log.states[1] != StateCompleted {
		t.Fatalf("states = %v", log.states)
	}
	got, err := os.ReadFile(target)
	if err != nil || !bytes.Equal(got, body) {
		t.Fatalf("target corrupted: %d bytes, %v", len(got), err)
	}
	if leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(target), "*.part")); len(leftovers) != 0 {
		t.Errorf("partial files left behind: %v", leftovers)
	}
}

func TestHTTPTransferFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	dir := t.TempDir()
	tr := NewHTTPTransfer(dir, "", nil)
	log := &hookLog{}
	if err := tr.Begin(context.Background(), srv.URL+"/gone.jar", log.hooks("")); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.Begin(ctx, srv.URL+"/cancelled.jar", log.hooks("")); err != nil {
		t.Fatal(err)
	}
	tr.Wait()

	if len(log.started) != 0 {
		t.Errorf("WillDownload called for failed requests: %v", log.started)
	}
	if len(log.states) != 2 {
		t.Fatalf("done calls = %d, want 2", len(log.states))
	}
	seen := map[State]bool{}
	for _, s := range log.states {
		seen[s] = true
	}
	if !seen[StateInterrupted] || !seen[StateCancelled] {
		t.Fatalf("states = %v, want interrupted and cancelled", log.states)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("files left in download dir: %d", len(entries))
	}

	if err := tr.Begin(context.Background(), "://bad", log.hooks("")); err == nil {
		t.Error("Begin() accepted an invalid URL")
	}
}

func TestSuggestedFilenameFromRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/dl", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/files/Gem%20Pack.jar", http.StatusFound)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("gem"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	tr := NewHTTPTransfer(dir, "", nil)
	log := &hookLog{}
	if err := tr.Begin(context.Background(), srv.URL+"/dl", log.hooks("")); err != nil {
		t.Fatal(err)
	}
	tr.Wait()

	if len(log.started) != 1 || log.started[0] != "Gem Pack.jar" {
		t.Fatalf("suggested = %v", log.started)
	}
	if log.paths[0] != filepath.Join(dir, "Gem Pack.jar") {
		t.Fatalf("default save path = %s", log.paths[0])
	}
}

func TestEndToEndDownloadRecordsLedger(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/cdn/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srvURL+"/storage/obfuscated-blob", http.StatusFound)
	})
	mux.HandleFunc("/storage/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''Ruby%20Mod%201.0.jar")
		_, _ = w.Write([]byte("jar-bytes"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	dir := t.TempDir()
	modsDir := filepath.Join(dir, "mods")
	l := ledger.New(filepath.Join(dir, "installed-mods.json"), nil)
	tr := NewHTTPTransfer(modsDir, "mcwizard/test", nil)
	cat := &fakeCatalog{file: &catalog.File{ID: 77, FileName: "ruby-1.0.jar", DownloadURL: srv.URL + "/cdn/ruby-1.0.jar"}}
	c := NewCorrelator(modsDir, tr, cat, l, nil, nil)
	events := &eventLog{}
	c.Subscribe(events)

	if _, err := c.StartByFileID(context.Background(), 3, 77); err != nil {
		t.Fatal(err)
	}
	tr.Wait()

	terminal := events.terminal()
	if len(terminal) != 1 || terminal[0].Kind != EventComplete {
		t.Fatalf("terminal events = %+v", terminal)
	}
	want := filepath.Join(modsDir, "ruby-1.0.jar")
	if p, ok := l.PathFor(77); !ok || p != want {
		t.Fatalf("ledger PathFor(77) = %q, %v", p, ok)
	}
	if data, err := os.ReadFile(want); err != nil || string(data) != "jar-bytes" {
		t.Fatalf("downloaded file = %q, %v", data, err)
	}
}
