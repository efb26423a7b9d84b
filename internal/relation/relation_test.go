package relation

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestReverseIsTotalBijection(t *testing.T) {
	seen := map[string]Kind{}
	for _, kind := range Kinds() {
		forward := kind.Label()
		reverse := kind.ReverseLabel()
		if forward == "" || reverse == "" {
			t.Fatalf("kind %d has empty label pair (%q, %q)", int(kind), forward, reverse)
		}
		if forward == reverse {
			t.Fatalf("kind %s maps to itself", forward)
		}
		if prev, dup := seen[reverse]; dup {
			t.Fatalf("reverse label %q shared by %s and %s", reverse, prev, kind)
		}
		seen[reverse] = kind
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 reverse labels, got %d", len(seen))
	}
}

func TestClassifyAcceptsOnlyCanonicalLabels(t *testing.T) {
	cases := []struct {
		label string
		kind  Kind
		ok    bool
	}{
		{"Depends on", DependsOn, true},
		{"Extends", Extends, true},
		{"Constrains", Constrains, true},
		{"Implements", Implements, true},
		{"Supersedes", Supersedes, true},
		{"Related to", 0, false},
		{"depends on", 0, false},
		{"Required by", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		kind, err := Classify(tc.label)
		if tc.ok {
			if err != nil {
				t.Fatalf("classify %q: %v", tc.label, err)
			}
			if kind != tc.kind {
				t.Fatalf("classify %q = %s, want %s", tc.label, kind, tc.kind)
			}
			continue
		}
		var unknown *UnknownKindError
		if !errors.As(err, &unknown) {
			t.Fatalf("classify %q: expected UnknownKindError, got %v", tc.label, err)
		}
		if unknown.Label != tc.label {
			t.Fatalf("error label = %q, want %q", unknown.Label, tc.label)
		}
	}
}

func TestFuzzyMatcherResolvesNearestKind(t *testing.T) {
	matcher := NewFuzzyMatcher(WithAliases(map[string]Kind{
		"relies on": DependsOn,
		"builds on": Extends,
	}))
	cases := []struct {
		label string
		kind  Kind
		ok    bool
	}{
		{"Depends on", DependsOn, true},
		{"depends on", DependsOn, true},
		{"relies on", DependsOn, true},
		{"Builds On", Extends, true},
		{"supersede", Supersedes, true},
		{"", 0, false},
		{"zzzz-qqqq", 0, false},
	}
	for _, tc := range cases {
		kind, ok := matcher.Match(tc.label)
		if ok != tc.ok {
			t.Fatalf("match %q ok = %v, want %v", tc.label, ok, tc.ok)
		}
		if ok && kind != tc.kind {
			t.Fatalf("match %q = %s, want %s", tc.label, kind, tc.kind)
		}
	}
}

func TestMatcherOutputFeedsClassify(t *testing.T) {
	matcher := NewFuzzyMatcher()
	kind, ok := matcher.Match("implemets")
	if !ok {
		t.Fatalf("expected near-miss to resolve")
	}
	if _, err := Classify(kind.Label()); err != nil {
		t.Fatalf("matcher produced non-canonical kind: %v", err)
	}
}

func TestLoadAliases(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relations.yaml")
	content := "aliases:\n  relies on: Depends on\n  replaces: Supersedes\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write aliases: %v", err)
	}
	aliases, err := LoadAliases(path)
	if err != nil {
		t.Fatalf("load aliases: %v", err)
	}
	if aliases["relies on"] != DependsOn || aliases["replaces"] != Supersedes {
		t.Fatalf("unexpected alias table: %+v", aliases)
	}
	if _, err := LoadAliases(filepath.Join(dir, "missing.yaml")); err != nil {
		t.Fatalf("missing alias file should not error: %v", err)
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("aliases:\n  near: Related to\n"), 0o644); err != nil {
		t.Fatalf("write bad aliases: %v", err)
	}
	if _, err := LoadAliases(bad); err == nil {
		t.Fatalf("expected error for non-canonical alias target")
	}
}
