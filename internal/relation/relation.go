// Package relation defines the closed set of relationship kinds that may link
// two documents, together with the reverse-label bijection. The registry is a
// pure lookup: free-text labels that are not one of the five canonical forward
// labels are rejected, never coerced. Callers that need best-effort resolution
// go through a Matcher first.
package relation

import "fmt"

// Kind enumerates the five forward relationship types. The zero value is
// DependsOn; use Valid to guard values decoded from external input.
type Kind int

const (
	DependsOn Kind = iota
	Extends
	Constrains
	Implements
	Supersedes

	kindCount
)

// Kinds returns every forward kind in canonical order.
func Kinds() []Kind {
	return []Kind{DependsOn, Extends, Constrains, Implements, Supersedes}
}

// Valid reports whether k is one of the five canonical kinds.
func (k Kind) Valid() bool {
	return k >= DependsOn && k < kindCount
}

// Label returns the canonical forward label for the kind.
func (k Kind) Label() string {
	switch k {
	case DependsOn:
		return "Depends on"
	case Extends:
		return "Extends"
	case Constrains:
		return "Constrains"
	case Implements:
		return "Implements"
	case Supersedes:
		return "Supersedes"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ReverseLabel returns the label carried by the mirrored edge. The mapping is
// a total bijection over the five kinds.
func (k Kind) ReverseLabel() string {
	switch k {
	case DependsOn:
		return "Required by"
	case Extends:
		return "Extended by"
	case Constrains:
		return "Constrained by"
	case Implements:
		return "Implemented by"
	case Supersedes:
		return "Superseded by"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// String implements fmt.Stringer using the forward label.
func (k Kind) String() string {
	return k.Label()
}

// ForwardLabels returns the five accepted forward labels in canonical order.
func ForwardLabels() []string {
	kinds := Kinds()
	labels := make([]string, len(kinds))
	for i, kind := range kinds {
		labels[i] = kind.Label()
	}
	return labels
}

// Classify resolves a candidate label to its Kind. Only the exact forward
// labels are accepted; anything else fails with UnknownKindError.
func Classify(label string) (Kind, error) {
	for _, kind := range Kinds() {
		if label == kind.Label() {
			return kind, nil
		}
	}
	return 0, &UnknownKindError{Label: label}
}

// UnknownKindError reports a label outside the closed relationship set.
type UnknownKindError struct {
	Label string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("relation: unknown relationship kind %q", e.Label)
}
