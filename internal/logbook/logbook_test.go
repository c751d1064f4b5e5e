package logbook

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gridlaunch.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("generated run-%d", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"run-2", "run-3", "run-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestTailMissingFile(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "logs", "none.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	lines, total := book.Tail(10)
	if lines != nil || total != 0 {
		t.Fatalf("expected empty tail, got %v (%d)", lines, total)
	}
}

func TestNilLogbookIsInert(t *testing.T) {
	var book *Logbook
	book.Error("ignored %d", 1)
	if lines, total := book.Tail(1); lines != nil || total != 0 {
		t.Fatalf("nil logbook returned lines")
	}
	if book.Path() != "" {
		t.Fatalf("nil logbook has a path")
	}
}

func TestEntriesFilterByLevel(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "gridlaunch.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	book.now = func() time.Time { return fixed }
	book.Info("wrote script")
	book.Warn("no job id in\nsbatch output")
	book.Error("sbatch exited 1")

	entries := book.Entries(LevelWarn)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries at WARN or above, got %d", len(entries))
	}
	if entries[0].Level != LevelWarn || entries[0].Message != "no job id in sbatch output" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if !entries[1].Time.Equal(fixed) || entries[1].Level != LevelError {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
}

func TestParseLevel(t *testing.T) {
	if level, err := ParseLevel(" warn "); err != nil || level != LevelWarn {
		t.Fatalf("ParseLevel(warn) = %q, %v", level, err)
	}
	if _, err := ParseLevel("debug"); err == nil {
		t.Fatalf("expected unknown level error")
	}
}
