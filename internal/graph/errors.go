package graph

import "fmt"

// NotFoundError reports an operation against an unregistered document.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("graph: document %s not found", e.ID)
}

// DuplicateDocumentError reports a second registration of the same ID.
type DuplicateDocumentError struct {
	ID string
}

func (e *DuplicateDocumentError) Error() string {
	return fmt.Sprintf("graph: document %s already registered", e.ID)
}

// DuplicateEdgeError reports an AddEdge whose exact forward edge exists.
type DuplicateEdgeError struct {
	From  string
	To    string
	Label string
}

func (e *DuplicateEdgeError) Error() string {
	return fmt.Sprintf("graph: edge %s -[%s]-> %s already exists", e.From, e.Label, e.To)
}

// EdgeNotFoundError reports a RemoveEdge on an absent forward edge.
type EdgeNotFoundError struct {
	From  string
	To    string
	Label string
}

func (e *EdgeNotFoundError) Error() string {
	return fmt.Sprintf("graph: edge %s -[%s]-> %s not found", e.From, e.Label, e.To)
}

// InvariantViolationError reports a broken global invariant detected by
// Verify. Detail names the offending document or edge.
type InvariantViolationError struct {
	Detail string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("graph: invariant violation: %s", e.Detail)
}
