package proposal

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func newTestBuilder() *Builder {
	counter := 0
	return NewBuilder(
		WithClock(func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }),
		WithIDGenerator(func() string {
			counter++
			return fmt.Sprintf("card-%d", counter)
		}),
	)
}

func mustBuild(t *testing.T, b *Builder, req BuildRequest) Card {
	t.Helper()
	card, err := b.Build(req)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return card
}

func TestBuildCreatesPendingCard(t *testing.T) {
	builder := newTestBuilder()
	card := mustBuild(t, builder, BuildRequest{
		Scope:      Scope{DocumentID: "ADR-100", Section: "Consequences"},
		Problem:    "Consequences section contradicts the decision",
		Technique:  "contradiction-removal",
		BeforeText: "We accept the tradeoff.",
		AfterText:  "We accept the latency tradeoff.",
		Span:       Span{Start: 120, End: 143},
	})
	if card.Status != StatusPending {
		t.Fatalf("new card status = %s, want %s", card.Status, StatusPending)
	}
	if card.ID == "" || card.CreatedAt.IsZero() {
		t.Fatalf("card missing identity: %+v", card)
	}
}

func TestBuildValidatesStructuralPresence(t *testing.T) {
	builder := newTestBuilder()
	base := BuildRequest{
		Scope:     Scope{DocumentID: "ADR-100"},
		Problem:   "evidence",
		Technique: "technique",
		Span:      Span{Start: 0, End: 10},
	}
	cases := []struct {
		name   string
		mutate func(*BuildRequest)
	}{
		{"missing document", func(r *BuildRequest) { r.Scope.DocumentID = " " }},
		{"missing problem", func(r *BuildRequest) { r.Problem = "" }},
		{"missing technique", func(r *BuildRequest) { r.Technique = "\t" }},
		{"negative span", func(r *BuildRequest) { r.Span = Span{Start: -1, End: 3} }},
		{"inverted span", func(r *BuildRequest) { r.Span = Span{Start: 9, End: 3} }},
		{"bad relation op", func(r *BuildRequest) {
			r.Relations = []RelationChange{{Op: "rename", TargetID: "ADR-101", Label: "Extends"}}
		}},
		{"relation missing target", func(r *BuildRequest) {
			r.Relations = []RelationChange{{Op: RelationAdd, Label: "Extends"}}
		}},
	}
	for _, tc := range cases {
		req := base
		tc.mutate(&req)
		if _, err := builder.Build(req); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestDetectConflictOverlapRules(t *testing.T) {
	builder := newTestBuilder()
	build := func(doc, section string, start, end int) Card {
		return mustBuild(t, builder, BuildRequest{
			Scope:      Scope{DocumentID: doc, Section: section},
			Problem:    "evidence",
			Technique:  "technique",
			BeforeText: strings.Repeat("x", end-start),
			Span:       Span{Start: start, End: end},
		})
	}
	overlapA := build("ADR-100", "Context", 10, 30)
	overlapB := build("ADR-100", "Context", 25, 40)
	disjoint := build("ADR-100", "Context", 40, 50)
	otherDoc := build("ADR-101", "Context", 10, 30)
	otherSection := build("ADR-100", "Decision", 10, 30)

	if _, ok := DetectConflict(overlapA, overlapB); !ok {
		t.Fatalf("overlapping spans in same scope must conflict")
	}
	if _, ok := DetectConflict(overlapB, overlapA); !ok {
		t.Fatalf("conflict detection must be symmetric")
	}
	if _, ok := DetectConflict(overlapA, disjoint); ok {
		t.Fatalf("disjoint spans must not conflict")
	}
	if _, ok := DetectConflict(overlapA, otherDoc); ok {
		t.Fatalf("different documents must not conflict")
	}
	if _, ok := DetectConflict(overlapA, otherSection); ok {
		t.Fatalf("different sections must not conflict")
	}
	if _, ok := DetectConflict(overlapA, overlapA); ok {
		t.Fatalf("a card must not conflict with itself")
	}

	conflicts := Conflicts([]Card{overlapA, overlapB, disjoint, otherDoc})
	if len(conflicts) != 1 {
		t.Fatalf("expected exactly one conflict, got %+v", conflicts)
	}
	if conflicts[0].CardA != overlapA.ID || conflicts[0].CardB != overlapB.ID {
		t.Fatalf("conflict names wrong cards: %+v", conflicts[0])
	}
}

func TestAdjacentSpansDoNotConflict(t *testing.T) {
	a := Span{Start: 0, End: 10}
	b := Span{Start: 10, End: 20}
	if a.Overlaps(b) || b.Overlaps(a) {
		t.Fatalf("half-open spans touching at a boundary must not overlap")
	}
}
