package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"mcwizard/downloads"
	"mcwizard/ui"
)

// downloadProgressMsg carries a progress event of the watched download.
type downloadProgressMsg downloads.Event

// downloadDoneMsg ends the view.
type downloadDoneMsg struct {
	ticket downloads.Ticket
	event  downloads.Event
	err    error
}

// DownloadModel controls the UI for the download command
type DownloadModel struct {
	spinner      spinner.Model
	bar          progress.Model
	progressChan chan downloads.Event
	doneChan     chan downloadDoneMsg
	run          func(onProgress func(downloads.Event)) (downloads.Ticket, downloads.Event, error)
	cancel       context.CancelFunc

	filename string
	received int64
	total    int64
	percent  float64

	final *downloadDoneMsg
}

func initialDownloadModel(run func(func(downloads.Event)) (downloads.Ticket, downloads.Event, error), cancel context.CancelFunc) DownloadModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	return DownloadModel{
		spinner:      s,
		bar:          bar,
		progressChan: make(chan downloads.Event, 100), // Buffer slightly to avoid blocking
		doneChan:     make(chan downloadDoneMsg, 1),
		run:          run,
		cancel:       cancel,
	}
}

func (m DownloadModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.startDownload(),
		m.waitForActivity(),
	)
}

func (m DownloadModel) startDownload() tea.Cmd {
	return func() tea.Msg {
		go func() {
			ticket, ev, err := m.run(func(ev downloads.Event) {
				select {
				case m.progressChan <- ev:
				default:
				}
			})
			close(m.progressChan)
			m.doneChan <- downloadDoneMsg{ticket: ticket, event: ev, err: err}
		}()
		return nil
	}
}

func (m DownloadModel) waitForActivity() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.progressChan
		if !ok {
			return <-m.doneChan
		}
		return downloadProgressMsg(ev)
	}
}

func (m DownloadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}

	case spinner.TickMsg:
		if m.final != nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case downloadProgressMsg:
		m.filename = msg.Filename
		m.received, m.total = msg.Received, msg.Total
		if msg.Percent > m.percent {
			m.percent = msg.Percent
		}
		return m, m.waitForActivity()

	case downloadDoneMsg:
		m.final = &msg
		if msg.event.Kind == downloads.EventComplete {
			m.percent = 1
			m.filename = msg.event.Filename
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m DownloadModel) View() string {
	var symbol, status string
	switch {
	case m.final == nil:
		symbol = m.spinner.View()
		status = "Downloading"
	case m.final.err == nil && m.final.event.Kind == downloads.EventComplete:
		symbol = ui.Colorize("✓", ui.ColorSuccess)
		status = "Installed"
	default:
		symbol = ui.Colorize("✗", ui.ColorError)
		status = "Failed"
	}

	name := m.filename
	if name == "" {
		name = "..."
	}
	s := fmt.Sprintf("\n %s %s %s\n\n", symbol, status, name)
	s += "   " + m.bar.ViewAs(m.percent)
	if m.total > 0 {
		s += ui.Muted.Render(fmt.Sprintf("  %s / %s", formatBytes(m.received), formatBytes(m.total)))
	} else if m.received > 0 {
		s += ui.Muted.Render("  " + formatBytes(m.received))
	}
	return s + "\n\n"
}

// runDownloadTUI shows a progress bar until the started download ends.
func runDownloadTUI(ctx context.Context, c *downloads.Correlator, start func(context.Context) (downloads.Ticket, error)) (downloads.Event, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	run := func(onProgress func(downloads.Event)) (downloads.Ticket, downloads.Event, error) {
		return watchDownload(ctx, c, start, onProgress)
	}
	final, err := tea.NewProgram(initialDownloadModel(run, cancel)).Run()
	if err != nil {
		return downloads.Event{}, fmt.Errorf("failed to run download view: %w", err)
	}
	m, ok := final.(DownloadModel)
	if !ok || m.final == nil {
		return downloads.Event{}, context.Canceled
	}
	return m.final.event, m.final.err
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
