// Package graph owns the document set and the typed relationship edges
// between documents. Every forward edge is mirrored by a reverse edge and the
// two are mutated as a single atomic operation; the store never exposes a
// state where only one side exists.
package graph

import (
	"time"

	"github.com/kingrea/weave/internal/relation"
	"github.com/kingrea/weave/internal/revision"
)

// Edge is a directed, typed link from one document to another. Reverse marks
// the mirrored side: its label is the reverse label of Kind.
type Edge struct {
	From      string
	To        string
	Kind      relation.Kind
	Reverse   bool
	CreatedAt time.Time
}

// Label returns the edge's display label, honouring the mirror direction.
func (e Edge) Label() string {
	if e.Reverse {
		return e.Kind.ReverseLabel()
	}
	return e.Kind.Label()
}

// mirror returns the opposite side of the edge pair.
func (e Edge) mirror() Edge {
	return Edge{
		From:      e.To,
		To:        e.From,
		Kind:      e.Kind,
		Reverse:   !e.Reverse,
		CreatedAt: e.CreatedAt,
	}
}

// key identifies an edge within a document's outgoing set. CreatedAt is
// deliberately excluded so duplicates are detected structurally.
type edgeKey struct {
	from    string
	to      string
	kind    relation.Kind
	reverse bool
}

func (e Edge) key() edgeKey {
	return edgeKey{from: e.From, to: e.To, kind: e.Kind, reverse: e.Reverse}
}

// Document is one versionable artifact tracked by the store. Documents are
// never deleted, only superseded through a Supersedes edge.
type Document struct {
	id    string
	title string
	log   *revision.Log
	edges []Edge
}

// ID returns the document's stable identifier.
func (d *Document) ID() string { return d.id }

// Title returns the document title.
func (d *Document) Title() string { return d.title }

// Log exposes the document's revision history.
func (d *Document) Log() *revision.Log { return d.log }

// Edges returns a copy of the document's outgoing edges in insertion order.
func (d *Document) Edges() []Edge {
	if len(d.edges) == 0 {
		return nil
	}
	out := make([]Edge, len(d.edges))
	copy(out, d.edges)
	return out
}

func (d *Document) hasEdge(key edgeKey) bool {
	for _, edge := range d.edges {
		if edge.key() == key {
			return true
		}
	}
	return false
}

func (d *Document) removeEdge(key edgeKey) (Edge, bool) {
	for i, edge := range d.edges {
		if edge.key() == key {
			d.edges = append(d.edges[:i], d.edges[i+1:]...)
			return edge, true
		}
	}
	return Edge{}, false
}

// MutationType distinguishes edge additions from removals.
type MutationType string

const (
	MutationEdgeAdded   MutationType = "edge-added"
	MutationEdgeRemoved MutationType = "edge-removed"
)

// Mutation describes one committed edge operation, carrying both sides of the
// mirrored pair.
type Mutation struct {
	Type    MutationType
	Forward Edge
	Mirror  Edge
	At      time.Time
}

// MutationListener observes committed graph mutations. Listeners run after
// the store's invariant holds; they must not call back into the store.
type MutationListener interface {
	HandleMutation(Mutation)
}

// MutationListenerFunc adapts a function into a MutationListener.
type MutationListenerFunc func(Mutation)

// HandleMutation executes f(m).
func (f MutationListenerFunc) HandleMutation(m Mutation) {
	if f == nil {
		return
	}
	f(m)
}
