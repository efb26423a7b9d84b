package graph

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, "ADR-100", "ADR-101", "ADR-102")
	if err := store.AddEdge("ADR-101", "ADR-100", "Depends on"); err != nil {
		t.Fatalf("add edge: %v", err)
	}
	if err := store.AddEdge("ADR-102", "ADR-101", "Supersedes"); err != nil {
		t.Fatalf("add edge: %v", err)
	}
	if err := store.AppendRevision("ADR-100", "Clarified decision drivers", testClock().Add(time.Hour)); err != nil {
		t.Fatalf("append revision: %v", err)
	}
	if err := store.Save(dir); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(dir, WithClock(testClock))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := loaded.IDs(); len(got) != 3 {
		t.Fatalf("expected 3 documents, got %v", got)
	}
	doc, ok := loaded.Document("ADR-100")
	if !ok {
		t.Fatalf("ADR-100 missing after load")
	}
	if doc.Title() != "Title for ADR-100" {
		t.Fatalf("title lost: %q", doc.Title())
	}
	entries := doc.Log().Snapshot()
	if len(entries) != 2 || entries[1].Description != "Clarified decision drivers" {
		t.Fatalf("revision log lost: %+v", entries)
	}
	edges, err := loaded.EdgesOf("ADR-100")
	if err != nil {
		t.Fatalf("edges of ADR-100: %v", err)
	}
	if !hasEdgeLabeled(edges, "ADR-100", "Required by", "ADR-101") {
		t.Fatalf("mirror edge lost on load: %+v", edges)
	}
	forward, _ := loaded.EdgesOf("ADR-101")
	if !hasEdgeLabeled(forward, "ADR-101", "Depends on", "ADR-100") {
		t.Fatalf("forward edge lost on load: %+v", forward)
	}
	if len(forward) != 2 {
		t.Fatalf("ADR-101 should carry its forward edge and one mirror, got %+v", forward)
	}
	assertMirrorInvariant(t, loaded)

	// Edge timestamps survive the round trip.
	for _, edge := range forward {
		if !edge.CreatedAt.Equal(testClock()) {
			t.Fatalf("edge timestamp lost: %v", edge.CreatedAt)
		}
	}
}

func TestLoadMissingDirectoryYieldsEmptyStore(t *testing.T) {
	store, err := Load(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(store.IDs()) != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestLoadRejectsOrphanedMirrorRows(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, "ADR-100", "ADR-101")
	if err := store.AddEdge("ADR-101", "ADR-100", "Depends on"); err != nil {
		t.Fatalf("add edge: %v", err)
	}
	if err := store.Save(dir); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Strip the forward row, leaving the reverse row orphaned.
	path := filepath.Join(dir, "ADR-101.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	trimmed := strings.SplitN(string(data), "edges:", 2)[0]
	if err := os.WriteFile(path, []byte(trimmed), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected load to reject orphaned mirror row")
	}
}
