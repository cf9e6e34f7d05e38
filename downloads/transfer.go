package downloads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the terminal state of a transfer.
type State string

const (
	StateCompleted   State = "completed"
	StateCancelled   State = "cancelled"
	StateInterrupted State = "interrupted"
)

// Item is the transfer's view of one download. SetSavePath only has an effect
// from inside WillDownload, before the first byte is written.
type Item interface {
	URL() string
	Filename() string
	SavePath() string
	SetSavePath(string)
	ReceivedBytes() int64
	TotalBytes() int64
}

// Hooks receive the lifecycle of every download a Transfer runs. Hooks are
// called from a single goroutine per download, in order, and Done exactly once.
// WillDownload is skipped when the request fails before a response arrives.
type Hooks struct {
	WillDownload func(Item)
	Updated      func(Item)
	Done         func(Item, State)
}

// Transfer starts downloads in the background.
type Transfer interface {
	Begin(ctx context.Context, rawURL string, hooks Hooks) error
}

const tickBytes = 64 << 10

// HTTPTransfer downloads over HTTP into DefaultDir unless WillDownload picks
// another save path.
type HTTPTransfer struct {
	Client     *http.Client
	DefaultDir string
	UserAgent  string
	Log        *zap.SugaredLogger

	wg sync.WaitGroup
}

// NewHTTPTransfer creates a transfer saving into defaultDir.
func NewHTTPTransfer(defaultDir, userAgent string, log *zap.SugaredLogger) *HTTPTransfer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &HTTPTransfer{
		Client:     &http.Client{Timeout: 30 * time.Minute},
		DefaultDir: defaultDir,
		UserAgent:  userAgent,
		Log:        log,
	}
}

// Wait blocks until every started download has finished.
func (t *HTTPTransfer) Wait() { t.wg.Wait() }

type httpItem struct {
	mu       sync.Mutex
	url      string
	filename string
	savePath string
	received int64
	total    int64
}

func (i *httpItem) URL() string { return i.url }

func (i *httpItem) Filename() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.filename
}

func (i *httpItem) SavePath() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.savePath
}

func (i *httpItem) SetSavePath(p string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.savePath = p
}

func (i *httpItem) ReceivedBytes() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.received
}

func (i *httpItem) TotalBytes() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.total
}

func (i *httpItem) addReceived(n int64) {
	i.mu.Lock()
	i.received += n
	i.mu.Unlock()
}

// Begin validates rawURL and starts the download in the background.
func (t *HTTPTransfer) Begin(ctx context.Context, rawURL string, hooks Hooks) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}
	req.Header.Set("Accept", "application/octet-stream")

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(ctx, rawURL, req, hooks)
	}()
	return nil
}

func (t *HTTPTransfer) run(ctx context.Context, rawURL string, req *http.Request, hooks Hooks) {
	item := &httpItem{url: rawURL, filename: safeFilename(remoteName(req.URL))}
	finish := func(state State) {
		if hooks.Done != nil {
			hooks.Done(item, state)
		}
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Log.Warnw("Download request failed", zap.String("url", item.url), zap.Error(err))
		finish(stateFor(ctx, err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.Log.Warnw("Download rejected", zap.String("url", item.url), zap.Int("status", resp.StatusCode))
		finish(StateInterrupted)
		return
	}

	item.filename = safeFilename(suggestedFilename(resp))
	if resp.ContentLength > 0 {
		item.total = resp.ContentLength
	}
	item.savePath = filepath.Join(t.DefaultDir, item.filename)
	if hooks.WillDownload != nil {
		hooks.WillDownload(item)
	}

	target := item.SavePath()
	state := t.write(ctx, resp.Body, item, target, hooks)
	if state != StateCompleted {
		t.Log.Warnw("Download did not complete", zap.String("url", item.url), zap.String("state", string(state)))
	}
	finish(state)
}

func (t *HTTPTransfer) write(ctx context.Context, body io.Reader, item *httpItem, target string, hooks Hooks) State {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		t.Log.Warnw("Cannot create download directory", zap.String("path", target), zap.Error(err))
		return StateInterrupted
	}
	// Each transfer gets its own partial file; two transfers may share a target.
	out, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.part")
	if err != nil {
		t.Log.Warnw("Cannot create download file", zap.String("path", target), zap.Error(err))
		return StateInterrupted
	}
	partial := out.Name()
	_ = out.Chmod(0o644)

	fail := func(state State) State {
		out.Close()
		_ = os.Remove(partial)
		return state
	}

	buf := make([]byte, 32<<10)
	var sinceTick int64
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				t.Log.Warnw("Writing download failed", zap.String("path", partial), zap.Error(err))
				return fail(StateInterrupted)
			}
			item.addReceived(int64(n))
			sinceTick += int64(n)
			if sinceTick >= tickBytes && hooks.Updated != nil {
				sinceTick = 0
				hooks.Updated(item)
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return fail(stateFor(ctx, readErr))
		}
	}
	if sinceTick > 0 && hooks.Updated != nil {
		hooks.Updated(item)
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(partial)
		return StateInterrupted
	}
	if err := os.Rename(partial, target); err != nil {
		_ = os.Remove(partial)
		t.Log.Warnw("Finalizing download failed", zap.String("path", target), zap.Error(err))
		return StateInterrupted
	}
	return StateCompleted
}

func stateFor(ctx context.Context, err error) State {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return StateCancelled
	}
	return StateInterrupted
}

// suggestedFilename prefers Content-Disposition, then the final URL after redirects.
func suggestedFilename(resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	if resp.Request != nil && resp.Request.URL != nil {
		return remoteName(resp.Request.URL)
	}
	return ""
}

func remoteName(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return ""
	}
	return base
}

func safeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || name == "." || name == "/" || name == ".." {
		return "download"
	}
	return name
}
