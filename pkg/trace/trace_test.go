package trace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLogAssignsMonotonicEventIDs(t *testing.T) {
	tr, err := Open(filepath.Join(t.TempDir(), "trace.jsonl"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	tr.Info("first", nil)
	tr.Info("second", nil)
	tr.Info("third", nil)

	path := tr.file.Name()
	events, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, e := range events {
		if e.EventID != int64(i) {
			t.Fatalf("event %d has id %d, want %d", i, e.EventID, i)
		}
	}
}

func TestReadToleratesMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	tr, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	tr.Info("ok", nil)
	tr.Close()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := f.WriteString("not json\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	events, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 (malformed line should be skipped)", len(events))
	}
}

func TestGetSummaryCountsIterationsAndErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	tr, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	tr.RunStart("run-1", "build a page", nil)
	tr.IterationStart(1, 2)
	tr.Error("boom", "RunFatal", "")
	tr.IterationEnd(1, 40, false)
	tr.Close()

	summary, err := GetSummary(path)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if summary.TotalEvents != 4 {
		t.Fatalf("got %d total events, want 4", summary.TotalEvents)
	}
	if summary.Iterations != 1 {
		t.Fatalf("got %d iterations, want 1", summary.Iterations)
	}
	if len(summary.Errors) != 1 {
		t.Fatalf("got %d errors, want 1", len(summary.Errors))
	}
}

func TestReadMissingFileReturnsEmpty(t *testing.T) {
	events, err := Read(filepath.Join(t.TempDir(), "nope.jsonl"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if events != nil {
		t.Fatalf("expected nil events for missing file, got %v", events)
	}
}
