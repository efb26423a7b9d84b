// Package session drives a revision session through its phases: Triage,
// Understand, Plan, Execute, Integrate. Plans block on a human decision
// before anything is applied, and a session may only close once the graph
// verifies and every backlink task is drained.
package session

import (
	"context"
	"time"

	"github.com/kingrea/weave/internal/backlink"
	"github.com/kingrea/weave/internal/proposal"
)

// Phase enumerates the states of a revision session.
type Phase string

const (
	PhaseTriage     Phase = "triage"
	PhaseUnderstand Phase = "understand"
	PhasePlan       Phase = "plan"
	PhaseExecute    Phase = "execute"
	PhaseIntegrate  Phase = "integrate"
	PhaseClosed     Phase = "closed"
	PhaseAborted    Phase = "aborted"
)

// Terminal reports whether the session can no longer advance.
func (p Phase) Terminal() bool {
	return p == PhaseClosed || p == PhaseAborted
}

// Complexity is the triage classification of a session. Simple sessions skip
// the Understand phase and may carry at most three proposal cards.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityComplex Complexity = "complex"
)

// MaxSimpleProposals caps the plan size of a simple session.
const MaxSimpleProposals = 3

// Observation is one finding recorded during the Understand phase.
type Observation struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Verdict is the outcome of a plan review.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
	VerdictAmend   Verdict = "amend"
)

// Decision is the reviewer's response to a submitted plan. Amend replaces the
// plan's cards with the amended set and keeps the session in Plan so the new
// cards go through review again.
type Decision struct {
	Verdict Verdict
	Reason  string
	Amended []proposal.Card
}

// PlanReview is the payload handed to the approval channel: the full card
// set plus every conflict the reviewer must know about.
type PlanReview struct {
	SessionID string
	Goal      string
	Cards     []proposal.Card
	Conflicts []proposal.Conflict
}

// ApprovalChannel is the human gate. Review blocks until a decision arrives
// or the context is cancelled.
type ApprovalChannel interface {
	Review(ctx context.Context, review PlanReview) (Decision, error)
}

// CardResult reports the per-card outcome of the Execute phase. A structural
// failure halts that card only; cards applied earlier stay applied.
type CardResult struct {
	CardID string `json:"card_id"`
	Error  string `json:"error,omitempty"`
}

// Applied reports whether the card went through cleanly.
func (r CardResult) Applied() bool {
	return r.Error == ""
}

// State is the persisted snapshot of a session. Saved after every transition
// so a process restart resumes at the same phase.
type State struct {
	SessionID    string          `json:"session_id"`
	Goal         string          `json:"goal"`
	Phase        Phase           `json:"phase"`
	Complexity   Complexity      `json:"complexity,omitempty"`
	Observations []Observation   `json:"observations,omitempty"`
	Cards        []proposal.Card `json:"cards,omitempty"`
	Approved     bool            `json:"approved"`
	Results      []CardResult    `json:"results,omitempty"`
	Backlinks    []backlink.Task `json:"backlinks,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (s State) clone() State {
	out := s
	out.Observations = append([]Observation(nil), s.Observations...)
	out.Cards = append([]proposal.Card(nil), s.Cards...)
	out.Results = append([]CardResult(nil), s.Results...)
	out.Backlinks = append([]backlink.Task(nil), s.Backlinks...)
	return out
}
