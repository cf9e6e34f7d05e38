package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"mcwizard/notify"
	"mcwizard/scanner"
	"mcwizard/ui"
)

// scanProgressMsg carries one progress event from the running scan.
type scanProgressMsg scanner.Progress

// scanDoneMsg carries the final outcome.
type scanDoneMsg scanner.Outcome

// ScanModel controls the UI for the scan command
type ScanModel struct {
	spinner spinner.Model
	bar     progress.Model
	events  *notify.ChanSink[scanner.Progress]
	result  chan scanner.Outcome
	run     func(notify.Sink[scanner.Progress]) scanner.Outcome
	cancel  context.CancelFunc

	archive string
	phase   scanner.Phase
	message string
	percent int

	outcome *scanner.Outcome
	done    bool
}

func initialScanModel(archivePath string, run func(notify.Sink[scanner.Progress]) scanner.Outcome, cancel context.CancelFunc) ScanModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	return ScanModel{
		spinner: s,
		bar:     bar,
		events:  notify.NewChanSink[scanner.Progress](256), // Progress is lossy; the outcome is not
		result:  make(chan scanner.Outcome, 1),
		run:     run,
		cancel:  cancel,
		archive: archivePath,
		message: "Starting...",
	}
}

func (m ScanModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.startScan(),
		m.waitForActivity(),
	)
}

func (m ScanModel) startScan() tea.Cmd {
	return func() tea.Msg {
		go func() {
			out := m.run(m.events)
			close(m.events.C)
			m.result <- out
		}()
		return nil
	}
}

func (m ScanModel) waitForActivity() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events.C
		if !ok {
			return scanDoneMsg(<-m.result)
		}
		return scanProgressMsg(ev)
	}
}

func (m ScanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case scanProgressMsg:
		if msg.Percent >= m.percent {
			m.percent = msg.Percent
		}
		m.phase = msg.Phase
		m.message = msg.Message
		return m, m.waitForActivity()

	case scanDoneMsg:
		out := scanner.Outcome(msg)
		m.outcome = &out
		m.done = true
		if out.OK {
			m.percent = 100
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m ScanModel) View() string {
	var symbol string
	switch {
	case m.done && m.outcome != nil && !m.outcome.OK:
		symbol = ui.Colorize("✗", ui.ColorError)
	case m.done:
		symbol = ui.Colorize("✓", ui.ColorSuccess)
	default:
		symbol = m.spinner.View()
	}

	s := fmt.Sprintf("\n %s Scanning %s\n\n", symbol, ui.Muted.Render(m.archive))
	s += "   " + m.bar.ViewAs(float64(m.percent)/100) + "\n\n"
	if m.phase != "" {
		s += fmt.Sprintf("   %s %s\n", ui.Colorize(fmt.Sprintf("%-10s", m.phase), ui.PhaseColor(string(m.phase))), m.message)
	}
	if m.done && m.outcome != nil && !m.outcome.OK {
		s += "\n" + ui.Colorize("   "+m.outcome.Error, ui.ColorError) + "\n"
	}
	return s + "\n"
}

// runScanTUI runs a scan behind the progress view and returns its outcome.
// Quitting early cancels the scan.
func runScanTUI(ctx context.Context, s *scanner.Scanner, archivePath string) (scanner.Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	run := func(sink notify.Sink[scanner.Progress]) scanner.Outcome {
		return s.Scan(ctx, archivePath, sink)
	}
	final, err := tea.NewProgram(initialScanModel(archivePath, run, cancel)).Run()
	if err != nil {
		return scanner.Outcome{}, fmt.Errorf("failed to run scan view: %w", err)
	}
	if m, ok := final.(ScanModel); ok && m.outcome != nil {
		return *m.outcome, nil
	}
	return scanner.Outcome{OK: false, Error: "scan cancelled"}, nil
}
