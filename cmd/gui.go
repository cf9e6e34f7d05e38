package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mcwizard/ledger"
	"mcwizard/logger"
	"mcwizard/notify"
	"mcwizard/scanner"
	"mcwizard/ui"
)

// guiCmd represents the gui command
var guiCmd = &cobra.Command{
	Use:   "gui",
	Short: "Browse installed files interactively",
	Long: `Launch an interactive TUI listing the installed files. The list follows the
mods directory live; selected files can be scanned in place.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := bootstrap(configDir)
		if err != nil {
			return err
		}
		defer app.Close()
		return runGUI(cmd.Context(), app)
	},
}

func init() {
	rootCmd.AddCommand(guiCmd)
}

// Model represents the state of the TUI
type Model struct {
	entries       []ledger.Entry
	selectedIndex int
	scanning      bool
	error         string
	message       string
	width         int
	height        int
	spinnerFrame  int

	scans   map[int]string // file id -> short scan summary
	changes *notify.ChanSink[ledger.Store]
	resync  func() []ledger.Entry
	scan    func(path string) scanner.Outcome
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.waitForLedger(),
		tickSpinner(),
	)
}

func tickSpinner() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case ledgerChangedMsg:
		m.setEntries(msg.entries)
		return m, m.waitForLedger()
	case spinnerTickMsg:
		return m.handleSpinnerTick()
	case scanCompleteMsg:
		return m.handleScanComplete(msg)
	case clearMessageMsg:
		m.message = ""
	}
	return m, nil
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.selectedIndex > 0 {
			m.selectedIndex--
		}
	case "down", "j":
		if m.selectedIndex < len(m.entries)-1 {
			m.selectedIndex++
		}
	case "r":
		if m.resync != nil {
			m.setEntries(m.resync())
			m.message = fmt.Sprintf("Resynced %d installed files", len(m.entries))
			return m, clearMessageAfter(3 * time.Second)
		}
	case "p":
		if e, ok := m.selected(); ok {
			m.message = e.Path
		}
	case "enter", "s":
		if e, ok := m.selected(); ok && !m.scanning && m.scan != nil {
			m.scanning = true
			m.error = ""
			return m, tea.Batch(m.scanEntry(e), tickSpinner())
		}
	}
	return m, nil
}

func (m *Model) setEntries(entries []ledger.Entry) {
	m.entries = append([]ledger.Entry{}, entries...)
	sort.SliceStable(m.entries, func(i, j int) bool {
		return strings.ToLower(m.entries[i].Filename) < strings.ToLower(m.entries[j].Filename)
	})
	if m.selectedIndex >= len(m.entries) {
		m.selectedIndex = max(len(m.entries)-1, 0)
	}
}

func (m Model) selected() (ledger.Entry, bool) {
	if m.selectedIndex < 0 || m.selectedIndex >= len(m.entries) {
		return ledger.Entry{}, false
	}
	return m.entries[m.selectedIndex], true
}

func (m Model) handleSpinnerTick() (tea.Model, tea.Cmd) {
	m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
	if m.scanning {
		return m, tickSpinner()
	}
	return m, nil
}

func (m Model) handleScanComplete(msg scanCompleteMsg) (tea.Model, tea.Cmd) {
	m.scanning = false
	if !msg.outcome.OK || msg.outcome.Data == nil {
		m.error = fmt.Sprintf("Scan of %s failed: %s", msg.entry.Filename, msg.outcome.Error)
		return m, nil
	}
	if m.scans == nil {
		m.scans = map[int]string{}
	}
	m.scans[msg.entry.FileID] = summarizeScan(msg.outcome.Data)
	m.message = fmt.Sprintf("Scanned %s", msg.entry.Filename)
	return m, clearMessageAfter(3 * time.Second)
}

func summarizeScan(r *scanner.Result) string {
	return fmt.Sprintf("%s: %d items, %d blocks, %d previews",
		strings.Join(r.Summary.Namespaces, ","),
		len(r.Catalog.Items),
		len(r.Catalog.Blocks),
		len(r.Previews.Items)+len(r.Previews.Assets))
}

// View renders the UI
func (m Model) View() string {
	if len(m.entries) == 0 {
		return "No installed files. Download one with `mcwizard download <modId>`.\n\n" + renderFooter()
	}

	var output string
	output += renderHeader()
	output += "\n"

	for i, e := range m.entries {
		output += m.renderEntryRow(i, e)
		output += "\n"
	}

	if e, ok := m.selected(); ok {
		if s, ok := m.scans[e.FileID]; ok {
			output += "\n" + ui.Muted.Render(s) + "\n"
		}
	}

	output += "\n" + renderFooter()

	if m.scanning {
		output += "\n" + ui.Title.Render(spinnerFrames[m.spinnerFrame]+" Scanning...")
	}
	if m.error != "" {
		output += "\n" + ui.Colorize(m.error, ui.ColorError)
	}
	if m.message != "" {
		output += "\n" + ui.Colorize(m.message, ui.ColorSuccess)
	}

	return output
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func renderHeader() string {
	return ui.Header.Render(fmt.Sprintf("%-40s %-10s %-10s %-16s %-8s", "Filename", "Mod", "File", "Installed", "Scanned"))
}

func renderFooter() string {
	return ui.Footer.Render("↑/k: up  ↓/j: down  enter/s: scan  p: path  r: resync  q: quit")
}

func (m Model) renderEntryRow(index int, e ledger.Entry) string {
	rowStyle := lipgloss.NewStyle().Padding(0, 1)
	if index == m.selectedIndex {
		rowStyle = rowStyle.
			Background(lipgloss.Color(ui.ColorMuted)).
			Bold(true)
	}

	scanned := ui.Colorize(fmt.Sprintf("%-8s", "-"), ui.ColorMuted)
	if _, ok := m.scans[e.FileID]; ok {
		scanned = ui.Colorize(fmt.Sprintf("%-8s", "yes"), ui.ColorSuccess)
	}

	row := fmt.Sprintf("%-40s %-10d %-10d %-16s %s",
		truncate(e.Filename, 38),
		e.ModExternalID,
		e.FileID,
		formatInstalledAt(e.InstalledAt),
		scanned,
	)
	return rowStyle.Render(row)
}

// Message types
type ledgerChangedMsg struct {
	entries []ledger.Entry
}

type scanCompleteMsg struct {
	entry   ledger.Entry
	outcome scanner.Outcome
}

type spinnerTickMsg struct{}

type clearMessageMsg struct{}

func clearMessageAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return clearMessageMsg{}
	})
}

func (m Model) waitForLedger() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	return func() tea.Msg {
		store, ok := <-m.changes.C
		if !ok {
			return nil
		}
		return ledgerChangedMsg{entries: store.Entries}
	}
}

func (m Model) scanEntry(e ledger.Entry) tea.Cmd {
	return func() tea.Msg {
		return scanCompleteMsg{entry: e, outcome: m.scan(e.Path)}
	}
}

func runGUI(ctx context.Context, app *App) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	changes := notify.NewChanSink[ledger.Store](16)
	unsubscribe := app.Ledger.Subscribe(changes)
	defer unsubscribe()

	watcher := &ledger.Watcher{
		Dir:      app.Cfg.ModsDir,
		Debounce: app.Cfg.WatchDebounce,
		Ledger:   app.Ledger,
		Log:      logger.Named("watch"),
	}
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Log.Warnw("Ledger watcher stopped", zap.Error(err))
		}
	}()

	m := Model{
		changes: changes,
		resync:  app.Ledger.Resync,
		scan: func(path string) scanner.Outcome {
			return app.Scanner.Scan(ctx, path, nil)
		},
		width:  80,
		height: 24,
	}
	m.setEntries(app.Ledger.List())

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logger.Log.Errorw("Failed to run GUI", zap.Error(err))
		return err
	}
	return nil
}
