package db

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func intPtr(v int) *int { return &v }

func TestHistoryRecordAndRecent(t *testing.T) {
	h, err := Open(filepath.Join(t.TempDir(), "history.db"), zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })

	records := []*DownloadRecord{
		{AttemptID: "a1", URL: "https://cdn/a.jar", ModExternalID: intPtr(1), FileID: intPtr(10), Filename: "a.jar", State: "completed", Attributed: true},
		{AttemptID: "a2", URL: "https://cdn/b.jar", State: "completed"},
		{AttemptID: "a3", URL: "https://cdn/a.jar", ModExternalID: intPtr(1), FileID: intPtr(10), Filename: "a.jar", State: "interrupted", Attributed: true},
	}
	for _, r := range records {
		if err := h.Record(r); err != nil {
			t.Fatalf("Record(%s) error = %v", r.AttemptID, err)
		}
	}

	recent, err := h.Recent(2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 2 || recent[0].AttemptID != "a3" || recent[1].AttemptID != "a2" {
		t.Fatalf("Recent(2) = %+v", recent)
	}
	if recent[1].FileID != nil || recent[1].Succeeded() {
		t.Errorf("unattributed record = %+v", recent[1])
	}

	forFile, err := h.ForFile(10)
	if err != nil {
		t.Fatalf("ForFile() error = %v", err)
	}
	if len(forFile) != 2 {
		t.Fatalf("ForFile(10) = %d records, want 2", len(forFile))
	}
	if forFile[0].Succeeded() || !forFile[1].Succeeded() {
		t.Errorf("Succeeded() mismatch: %v %v", forFile[0].Succeeded(), forFile[1].Succeeded())
	}
}

func TestHistoryRejectsDuplicateAttempt(t *testing.T) {
	h, err := Open(filepath.Join(t.TempDir(), "history.db"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })

	if err := h.Record(&DownloadRecord{AttemptID: "dup"}); err != nil {
		t.Fatal(err)
	}
	if err := h.Record(&DownloadRecord{AttemptID: "dup"}); err == nil {
		t.Fatal("Record() accepted a duplicate attempt ID")
	}
}
