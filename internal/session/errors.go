package session

import (
	"fmt"
	"strings"
)

// PhaseError reports an operation attempted in the wrong phase.
type PhaseError struct {
	Op    string
	Phase Phase
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("session: cannot %s during %s phase", e.Op, e.Phase)
}

// GateError reports an Execute attempt without an approved plan. Cards can
// never become Applied without passing the approval gate first.
type GateError struct {
	SessionID string
}

func (e *GateError) Error() string {
	return fmt.Sprintf("session %s: execute requires an approved plan", e.SessionID)
}

// PlanRejectedError reports a reviewer rejection. The session returns to
// Understand so the plan can be rebuilt.
type PlanRejectedError struct {
	SessionID string
	Reason    string
}

func (e *PlanRejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("session %s: plan rejected", e.SessionID)
	}
	return fmt.Sprintf("session %s: plan rejected: %s", e.SessionID, e.Reason)
}

// UnresolvedConflictsError reports an approval attempt over a plan with
// conflicting cards. The session stays in Plan: neither card may be applied
// until the plan is rebuilt without the overlap.
type UnresolvedConflictsError struct {
	SessionID string
	CardIDs   []string
}

func (e *UnresolvedConflictsError) Error() string {
	return fmt.Sprintf("session %s: cards %s conflict and must be re-planned before approval",
		e.SessionID, strings.Join(e.CardIDs, ", "))
}

// TooManyProposalsError reports a simple session whose plan exceeds the cap.
type TooManyProposalsError struct {
	SessionID string
	Count     int
	Limit     int
}

func (e *TooManyProposalsError) Error() string {
	return fmt.Sprintf("session %s: %d proposals exceed the simple-session limit of %d",
		e.SessionID, e.Count, e.Limit)
}
