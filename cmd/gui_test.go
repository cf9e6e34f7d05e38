package cmd

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"mcwizard/ledger"
	"mcwizard/notify"
	"mcwizard/scanner"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func testEntries() []ledger.Entry {
	return []ledger.Entry{
		{ModExternalID: 2, FileID: 20, Filename: "zinc.jar", Path: "/mods/zinc.jar"},
		{ModExternalID: 1, FileID: 10, Filename: "Amber.jar", Path: "/mods/Amber.jar"},
		{ModExternalID: 3, FileID: 30, Filename: "ruby.jar", Path: "/mods/ruby.jar"},
	}
}

func TestModelSortsEntriesByFilename(t *testing.T) {
	var m Model
	m.setEntries(testEntries())

	got := []string{m.entries[0].Filename, m.entries[1].Filename, m.entries[2].Filename}
	want := []string{"Amber.jar", "ruby.jar", "zinc.jar"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestModelNavigation(t *testing.T) {
	var m Model
	m.setEntries(testEntries())

	next, _ := m.Update(key("down"))
	next, _ = next.Update(key("j"))
	next, _ = next.Update(key("j"))
	m = next.(Model)
	if m.selectedIndex != 2 {
		t.Fatalf("selectedIndex = %d, want 2 (clamped)", m.selectedIndex)
	}
	next, _ = m.Update(key("k"))
	if next.(Model).selectedIndex != 1 {
		t.Fatalf("selectedIndex after up = %d", next.(Model).selectedIndex)
	}

	next, _ = next.Update(key("p"))
	if msg := next.(Model).message; msg != "/mods/ruby.jar" {
		t.Fatalf("path message = %q", msg)
	}
}

func TestModelClampsSelectionWhenEntriesShrink(t *testing.T) {
	var m Model
	m.setEntries(testEntries())
	m.selectedIndex = 2

	next, cmd := m.Update(ledgerChangedMsg{entries: testEntries()[:1]})
	m = next.(Model)
	if m.selectedIndex != 0 || len(m.entries) != 1 {
		t.Fatalf("after shrink: index %d, %d entries", m.selectedIndex, len(m.entries))
	}
	if cmd != nil {
		t.Error("waitForLedger returned a command without a change channel")
	}
}

func TestModelResyncKey(t *testing.T) {
	calls := 0
	m := Model{resync: func() []ledger.Entry {
		calls++
		return testEntries()[:2]
	}}

	next, _ := m.Update(key("r"))
	m = next.(Model)
	if calls != 1 || len(m.entries) != 2 {
		t.Fatalf("resync calls = %d, entries = %d", calls, len(m.entries))
	}
	if !strings.Contains(m.message, "2 installed files") {
		t.Fatalf("message = %q", m.message)
	}
}

func TestModelScanSelectedEntry(t *testing.T) {
	var scanned []string
	m := Model{scan: func(path string) scanner.Outcome {
		scanned = append(scanned, path)
		return scanner.Outcome{OK: true, Data: &scanner.Result{
			Summary: scanner.Summary{Namespaces: []string{"ruby"}},
			Catalog: scanner.Catalog{Items: []scanner.CatalogEntry{{ID: "ruby:gem", DisplayName: "Gem"}}},
		}}
	}}
	m.setEntries(testEntries())

	next, cmd := m.Update(key("enter"))
	m = next.(Model)
	if !m.scanning || cmd == nil {
		t.Fatal("enter did not start a scan")
	}
	// Scanning twice at once is ignored.
	if _, again := m.Update(key("s")); again != nil {
		t.Fatal("second scan started while one is running")
	}

	done := m.scanEntry(m.entries[0])()
	next, _ = m.Update(done)
	m = next.(Model)
	if m.scanning {
		t.Fatal("still scanning after completion")
	}
	if len(scanned) != 1 || scanned[0] != "/mods/Amber.jar" {
		t.Fatalf("scanned = %v", scanned)
	}
	if s := m.scans[10]; s != "ruby: 1 items, 0 blocks, 0 previews" {
		t.Fatalf("summary = %q", s)
	}
	if !strings.Contains(m.View(), "ruby: 1 items") {
		t.Error("View() does not show the selected entry's scan summary")
	}
}

func TestModelScanFailure(t *testing.T) {
	m := Model{scanning: true}
	next, _ := m.Update(scanCompleteMsg{
		entry:   ledger.Entry{FileID: 1, Filename: "broken.jar"},
		outcome: scanner.Outcome{OK: false, Error: "not a zip"},
	})
	m = next.(Model)
	if m.scanning || !strings.Contains(m.error, "not a zip") {
		t.Fatalf("scanning = %v, error = %q", m.scanning, m.error)
	}
}

func TestModelFollowsLedgerChanges(t *testing.T) {
	changes := notify.NewChanSink[ledger.Store](1)
	m := Model{changes: changes}
	_ = changes.Send(ledger.Store{Entries: testEntries()})

	msg := m.waitForLedger()()
	next, cmd := m.Update(msg)
	if len(next.(Model).entries) != 3 {
		t.Fatalf("entries = %d", len(next.(Model).entries))
	}
	if cmd == nil {
		t.Error("model stopped listening for ledger changes")
	}
}

func TestModelViewEmpty(t *testing.T) {
	if v := (Model{}).View(); !strings.Contains(v, "No installed files") {
		t.Fatalf("View() = %q", v)
	}
}
