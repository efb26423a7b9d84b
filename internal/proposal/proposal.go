// Package proposal models the structured change cards that a workflow session
// assembles during planning. Cards carry the evidence and justification an
// external reasoning process supplies; the builder validates their structural
// presence, never their semantic correctness.
package proposal

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status tracks a card through the approval workflow.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusApplied  Status = "applied"
)

// Scope names the target of a card: a document and, optionally, a section
// within it. Two scopes are the same when both fields match.
type Scope struct {
	DocumentID string `json:"document_id"`
	Section    string `json:"section,omitempty"`
}

func (s Scope) String() string {
	if s.Section == "" {
		return s.DocumentID
	}
	return s.DocumentID + "#" + s.Section
}

// Span is a half-open byte range [Start, End) into the document body that the
// card's BeforeText occupies.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Overlaps reports whether two spans share at least one byte.
func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

// RelationOp enumerates edge operations a card may request alongside its
// text edit.
type RelationOp string

const (
	RelationAdd    RelationOp = "add"
	RelationRemove RelationOp = "remove"
)

// RelationChange requests one edge mutation against the card's document. The
// label is validated by the graph store's registry at apply time.
type RelationChange struct {
	Op       RelationOp `json:"op"`
	TargetID string     `json:"target_id"`
	Label    string     `json:"label"`
}

// Card is one unit of work awaiting approval. Cards are created Pending and
// owned by the session that built them; nothing about a card outlives its
// session except the document mutations an Applied card produced.
type Card struct {
	ID         string           `json:"id"`
	Scope      Scope            `json:"scope"`
	Problem    string           `json:"problem"`
	Technique  string           `json:"technique"`
	BeforeText string           `json:"before_text"`
	AfterText  string           `json:"after_text"`
	Span       Span             `json:"span"`
	Relations  []RelationChange `json:"relations,omitempty"`
	Status     Status           `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
}

// BuildRequest carries the raw material for one card.
type BuildRequest struct {
	Scope      Scope            `json:"scope"`
	Problem    string           `json:"problem"`
	Technique  string           `json:"technique"`
	BeforeText string           `json:"before_text"`
	AfterText  string           `json:"after_text"`
	Span       Span             `json:"span"`
	Relations  []RelationChange `json:"relations,omitempty"`
}

// Builder constructs cards with stable identifiers and timestamps.
type Builder struct {
	clock func() time.Time
	newID func() string
}

// BuilderOption customizes builder construction.
type BuilderOption func(*Builder)

// WithClock injects a deterministic clock.
func WithClock(clock func() time.Time) BuilderOption {
	return func(b *Builder) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithIDGenerator overrides the card ID source (primarily for tests).
func WithIDGenerator(newID func() string) BuilderOption {
	return func(b *Builder) {
		if newID != nil {
			b.newID = newID
		}
	}
}

// NewBuilder returns a builder using UUID identifiers and the wall clock.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		clock: time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build validates structural presence and returns a Pending card. Problem and
// technique text come from an external reasoning process; only their presence
// is checked here.
func (b *Builder) Build(req BuildRequest) (Card, error) {
	if strings.TrimSpace(req.Scope.DocumentID) == "" {
		return Card{}, fmt.Errorf("proposal: scope document id is required")
	}
	if strings.TrimSpace(req.Problem) == "" {
		return Card{}, fmt.Errorf("proposal: problem evidence is required for %s", req.Scope)
	}
	if strings.TrimSpace(req.Technique) == "" {
		return Card{}, fmt.Errorf("proposal: technique justification is required for %s", req.Scope)
	}
	if req.Span.Start < 0 || req.Span.End < req.Span.Start {
		return Card{}, fmt.Errorf("proposal: invalid span [%d, %d) for %s", req.Span.Start, req.Span.End, req.Scope)
	}
	for i, change := range req.Relations {
		if change.Op != RelationAdd && change.Op != RelationRemove {
			return Card{}, fmt.Errorf("proposal: relations[%d]: unknown op %q", i, change.Op)
		}
		if strings.TrimSpace(change.TargetID) == "" {
			return Card{}, fmt.Errorf("proposal: relations[%d]: target id is required", i)
		}
		if strings.TrimSpace(change.Label) == "" {
			return Card{}, fmt.Errorf("proposal: relations[%d]: label is required", i)
		}
	}
	card := Card{
		ID:         b.newID(),
		Scope:      req.Scope,
		Problem:    strings.TrimSpace(req.Problem),
		Technique:  strings.TrimSpace(req.Technique),
		BeforeText: req.BeforeText,
		AfterText:  req.AfterText,
		Span:       req.Span,
		Status:     StatusPending,
		CreatedAt:  b.clock().UTC(),
	}
	if len(req.Relations) > 0 {
		card.Relations = make([]RelationChange, len(req.Relations))
		copy(card.Relations, req.Relations)
	}
	return card, nil
}

// Conflict reports two cards whose edits overlap within one document scope.
// Conflicting cards cannot both be auto-approved; the session must route them
// back to planning rather than silently pick one.
type Conflict struct {
	CardA string
	CardB string
	Scope Scope
}

func (c Conflict) String() string {
	return fmt.Sprintf("cards %s and %s overlap in %s", c.CardA, c.CardB, c.Scope)
}

// DetectConflict reports whether two cards' spans overlap within the same
// document scope. Cards on different documents or disjoint spans never
// conflict.
func DetectConflict(a, b Card) (Conflict, bool) {
	if a.ID == b.ID {
		return Conflict{}, false
	}
	if a.Scope != b.Scope {
		return Conflict{}, false
	}
	if !a.Span.Overlaps(b.Span) {
		return Conflict{}, false
	}
	return Conflict{CardA: a.ID, CardB: b.ID, Scope: a.Scope}, true
}

// Conflicts runs DetectConflict pairwise over the card set.
func Conflicts(cards []Card) []Conflict {
	var out []Conflict
	for i := 0; i < len(cards); i++ {
		for j := i + 1; j < len(cards); j++ {
			if conflict, ok := DetectConflict(cards[i], cards[j]); ok {
				out = append(out, conflict)
			}
		}
	}
	return out
}
