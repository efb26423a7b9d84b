package logbook

import (
	"path/filepath"
	"strings"
	"testing"
)

func newTestLogbook(t *testing.T) *Logbook {
	t.Helper()
	lb, err := New(filepath.Join(t.TempDir(), "logs", "logbook.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	return lb
}

func TestAppendAndTail(t *testing.T) {
	lb := newTestLogbook(t)
	lb.Info("session %s started", "session-1")
	lb.Warn("card %s skipped", "card-2")
	lb.Error("apply failed for %s", "card-3")
	lb.Audit("card %s applied but session aborted", "card-1")

	lines, total := lb.Tail(10)
	if total != 4 || len(lines) != 4 {
		t.Fatalf("tail returned %d of %d lines", len(lines), total)
	}
	if !strings.Contains(lines[0], "INFO") || !strings.Contains(lines[0], "session-1") {
		t.Fatalf("first line malformed: %q", lines[0])
	}
	if !strings.Contains(lines[3], "AUDIT") {
		t.Fatalf("audit line missing level: %q", lines[3])
	}
}

func TestTailLimitsToMostRecent(t *testing.T) {
	lb := newTestLogbook(t)
	for i := 0; i < 5; i++ {
		lb.Info("entry %d", i)
	}
	lines, total := lb.Tail(2)
	if total != 5 {
		t.Fatalf("total = %d, want 5", total)
	}
	if len(lines) != 2 || !strings.Contains(lines[1], "entry 4") {
		t.Fatalf("tail should keep the newest lines: %+v", lines)
	}
}

func TestTailOnEmptyLogbook(t *testing.T) {
	lb := newTestLogbook(t)
	if lines, total := lb.Tail(5); lines != nil || total != 0 {
		t.Fatalf("empty logbook should report nothing, got %+v (%d)", lines, total)
	}
}
