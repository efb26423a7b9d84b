package content

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *FSStore {
	t.Helper()
	return NewFSStore(t.TempDir(), WithClock(func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}))
}

func TestWriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	body := []byte("# ADR-100\n\n## Context\n\nThe queue is slow.\n")
	if err := store.Write("ADR-100", body); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := store.Read("ADR-100")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("body mismatch:\n%q\nwant\n%q", got, body)
	}
}

func TestWritePreservesCreationTimestamp(t *testing.T) {
	dir := t.TempDir()
	first := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewFSStore(dir, WithClock(func() time.Time { return first }))
	if err := store.Write("ADR-100", []byte("v1")); err != nil {
		t.Fatalf("write: %v", err)
	}
	later := NewFSStore(dir, WithClock(func() time.Time { return first.Add(48 * time.Hour) }))
	if err := later.Write("ADR-100", []byte("v2")); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "ADR-100.md"))
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	meta, body, err := ParseFrontMatter(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !meta.CreatedAt.Equal(first) {
		t.Fatalf("created = %v, want original %v", meta.CreatedAt, first)
	}
	if string(body) != "v2" {
		t.Fatalf("body = %q", body)
	}
}

func TestReadMissingDocument(t *testing.T) {
	store := newTestStore(t)
	var notFound *NotFoundError
	if _, err := store.Read("ADR-404"); !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestReadRejectsMismatchedMetadata(t *testing.T) {
	dir := t.TempDir()
	store := NewFSStore(dir)
	rendered, err := WriteFrontMatter(Metadata{DocumentID: "ADR-200", CreatedAt: time.Now()}, []byte("body"))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ADR-100.md"), rendered, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := store.Read("ADR-100"); err == nil {
		t.Fatalf("expected metadata mismatch error")
	}
}

func TestParseFrontMatterRejectsBadInput(t *testing.T) {
	if _, _, err := ParseFrontMatter(nil); !errors.Is(err, ErrMissingFrontMatter) {
		t.Fatalf("empty input: %v", err)
	}
	if _, _, err := ParseFrontMatter([]byte("no fences here")); !errors.Is(err, ErrMissingFrontMatter) {
		t.Fatalf("missing fence: %v", err)
	}
	if _, _, err := ParseFrontMatter([]byte("---\nweave:\n  document: X\n")); !errors.Is(err, ErrMalformedFrontMatter) {
		t.Fatalf("unterminated fence: %v", err)
	}
}
