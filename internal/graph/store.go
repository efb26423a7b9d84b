package graph

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kingrea/weave/internal/relation"
	"github.com/kingrea/weave/internal/revision"
)

// Store holds every registered document and enforces the mirror invariant on
// each mutation. One workflow session writes at a time; the mutex exists so
// observers on other goroutines (the decision bridge) read a consistent view.
type Store struct {
	mu        sync.Mutex
	documents map[string]*Document
	order     []string
	listeners []MutationListener
	clock     func() time.Time
}

// Option customizes store construction.
type Option func(*Store)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		documents: map[string]*Document{},
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddListener registers a mutation observer.
func (s *Store) AddListener(listener MutationListener) {
	if listener == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// RemoveListener unregisters a previously added mutation observer. The
// listener must be a comparable value, typically a pointer.
func (s *Store) RemoveListener(listener MutationListener) {
	if listener == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, registered := range s.listeners {
		if registered == listener {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// RegisterDocument creates a document and seeds its mandatory creation entry.
func (s *Store) RegisterDocument(id, title string) (*Document, error) {
	if id == "" {
		return nil, fmt.Errorf("graph: document id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.documents[id]; exists {
		return nil, &DuplicateDocumentError{ID: id}
	}
	doc := &Document{id: id, title: title, log: revision.NewLog()}
	if err := doc.log.Append(revision.CreatedDescription, s.clock()); err != nil {
		return nil, err
	}
	s.documents[id] = doc
	s.order = append(s.order, id)
	return doc, nil
}

// Document returns a registered document by ID.
func (s *Store) Document(id string) (*Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	return doc, ok
}

// Documents returns all documents in registration order.
func (s *Store) Documents() []*Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Document, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.documents[id])
	}
	return out
}

// AddEdge validates the label against the registry and creates the forward
// edge plus its mirror atomically. No partial state is observable: both sides
// are attached under one critical section after all failure modes are ruled
// out, and the second attach rolls back the first if it cannot complete.
func (s *Store) AddEdge(fromID, toID, label string) error {
	kind, err := relation.Classify(label)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	mutation, err := s.addEdgeLocked(fromID, toID, kind, s.clock())
	if err != nil {
		return err
	}
	s.notifyLocked(mutation)
	return nil
}

func (s *Store) addEdgeLocked(fromID, toID string, kind relation.Kind, at time.Time) (Mutation, error) {
	from, ok := s.documents[fromID]
	if !ok {
		return Mutation{}, &NotFoundError{ID: fromID}
	}
	to, ok := s.documents[toID]
	if !ok {
		return Mutation{}, &NotFoundError{ID: toID}
	}
	forward := Edge{From: fromID, To: toID, Kind: kind, CreatedAt: at.UTC()}
	if from.hasEdge(forward.key()) {
		return Mutation{}, &DuplicateEdgeError{From: fromID, To: toID, Label: kind.Label()}
	}
	mirror := forward.mirror()
	from.edges = append(from.edges, forward)
	if to.hasEdge(mirror.key()) {
		// Mirror already present without its forward side: roll back and
		// surface the inconsistency instead of orphaning a second pair.
		from.removeEdge(forward.key())
		return Mutation{}, &InvariantViolationError{
			Detail: fmt.Sprintf("mirror edge %s -[%s]-> %s exists without forward side", toID, kind.ReverseLabel(), fromID),
		}
	}
	to.edges = append(to.edges, mirror)
	return Mutation{Type: MutationEdgeAdded, Forward: forward, Mirror: mirror, At: at.UTC()}, nil
}

// RemoveEdge removes the forward edge and its mirror atomically. The label
// names the forward side.
func (s *Store) RemoveEdge(fromID, toID, label string) error {
	kind, err := relation.Classify(label)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	from, ok := s.documents[fromID]
	if !ok {
		return &NotFoundError{ID: fromID}
	}
	to, ok := s.documents[toID]
	if !ok {
		return &NotFoundError{ID: toID}
	}
	forwardKey := edgeKey{from: fromID, to: toID, kind: kind}
	if !from.hasEdge(forwardKey) {
		return &EdgeNotFoundError{From: fromID, To: toID, Label: kind.Label()}
	}
	forward, _ := from.removeEdge(forwardKey)
	mirror, ok := to.removeEdge(forward.mirror().key())
	if !ok {
		// Put the forward side back so a broken mirror never widens into a
		// half-removed pair.
		from.edges = append(from.edges, forward)
		return &InvariantViolationError{
			Detail: fmt.Sprintf("edge %s -[%s]-> %s has no mirror to remove", fromID, kind.Label(), toID),
		}
	}
	s.notifyLocked(Mutation{Type: MutationEdgeRemoved, Forward: forward, Mirror: mirror, At: s.clock().UTC()})
	return nil
}

// EdgesOf returns all outgoing edges of a document, mirrors included.
func (s *Store) EdgesOf(id string) ([]Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return doc.Edges(), nil
}

// AppendRevision records a history entry on a document.
func (s *Store) AppendRevision(id, description string, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	return doc.log.Append(description, date)
}

// Verify re-checks the global invariants as an explicit post-condition: every
// edge has its mirror, and every revision log opens with exactly one creation
// entry. Used by the Integrate phase before a session may close.
func (s *Store) Verify() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		doc := s.documents[id]
		for _, edge := range doc.edges {
			other, ok := s.documents[edge.To]
			if !ok {
				return &InvariantViolationError{
					Detail: fmt.Sprintf("edge %s -[%s]-> %s targets unregistered document", edge.From, edge.Label(), edge.To),
				}
			}
			if !other.hasEdge(edge.mirror().key()) {
				return &InvariantViolationError{
					Detail: fmt.Sprintf("edge %s -[%s]-> %s has no mirror", edge.From, edge.Label(), edge.To),
				}
			}
		}
		if doc.log.Len() == 0 {
			return &InvariantViolationError{
				Detail: fmt.Sprintf("document %s has an empty revision log", id),
			}
		}
		created := 0
		first := true
		for entry := range doc.log.Entries() {
			if first && entry.Description != revision.CreatedDescription {
				return &InvariantViolationError{
					Detail: fmt.Sprintf("document %s log does not open with creation entry", id),
				}
			}
			first = false
			if entry.Description == revision.CreatedDescription {
				created++
			}
		}
		if created > 1 {
			return &InvariantViolationError{
				Detail: fmt.Sprintf("document %s has %d creation entries", id, created),
			}
		}
	}
	return nil
}

// IDs returns the registered document identifiers, sorted.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	sort.Strings(ids)
	return ids
}

func (s *Store) notifyLocked(mutation Mutation) {
	for _, listener := range s.listeners {
		listener.HandleMutation(mutation)
	}
}
