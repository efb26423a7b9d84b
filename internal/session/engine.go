package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/weave/internal/backlink"
	"github.com/kingrea/weave/internal/content"
	"github.com/kingrea/weave/internal/graph"
	"github.com/kingrea/weave/internal/logbook"
	"github.com/kingrea/weave/internal/proposal"
	"github.com/kingrea/weave/internal/relation"
)

// Engine coordinates one revision session over the graph and content stores.
// It is the single writer: the only suspension point is the approval gate.
type Engine struct {
	mu        sync.Mutex
	graph     *graph.Store
	content   content.Store
	approvals ApprovalChannel
	repo      StateStore
	book      *logbook.Logbook
	builder   *proposal.Builder
	tracker   *backlink.Tracker
	matcher   relation.Matcher
	clock     func() time.Time
	newID     func() string
	state     State
}

// Option customizes the engine instance.
type Option func(*Engine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithIDGenerator overrides the session ID source.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// WithLogbook attaches the session logbook. Phase transitions and the
// applied-but-aborted audit trail are recorded there.
func WithLogbook(book *logbook.Logbook) Option {
	return func(e *Engine) {
		e.book = book
	}
}

// WithMatcher attaches a nearest-match resolver for relation labels. Free
// text in proposal relation changes is resolved to a canonical label before
// the registry sees it.
func WithMatcher(matcher relation.Matcher) Option {
	return func(e *Engine) {
		e.matcher = matcher
	}
}

// WithBuilder overrides the proposal builder.
func WithBuilder(builder *proposal.Builder) Option {
	return func(e *Engine) {
		if builder != nil {
			e.builder = builder
		}
	}
}

// New wires a session engine to its stores and the approval gate.
func New(graphStore *graph.Store, contentStore content.Store, approvals ApprovalChannel, repo StateStore, opts ...Option) (*Engine, error) {
	if graphStore == nil {
		return nil, fmt.Errorf("session: graph store is required")
	}
	if contentStore == nil {
		return nil, fmt.Errorf("session: content store is required")
	}
	if approvals == nil {
		return nil, fmt.Errorf("session: approval channel is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("session: state store is required")
	}
	engine := &Engine{
		graph:     graphStore,
		content:   contentStore,
		approvals: approvals,
		repo:      repo,
		builder:   proposal.NewBuilder(),
		clock:     time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// Start opens a fresh session in the Triage phase.
func (e *Engine) Start(goal string) (State, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return State{}, fmt.Errorf("session: goal is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = State{
		SessionID: e.newID(),
		Goal:      goal,
		Phase:     PhaseTriage,
	}
	e.attachTracker(nil)
	e.book.Info("session %s started: %s", e.state.SessionID, goal)
	return e.saveLocked()
}

// Resume reloads persisted state so an interrupted session continues at the
// same phase, with its backlink queue intact.
func (e *Engine) Resume() (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	current, err := e.repo.Load()
	if err != nil {
		return State{}, err
	}
	e.state = current
	e.attachTracker(current.Backlinks)
	e.book.Info("session %s resumed in %s phase", e.state.SessionID, e.state.Phase)
	return e.saveLocked()
}

// View returns the current snapshot without mutating anything.
func (e *Engine) View() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

// Triage classifies the session. Simple sessions proceed straight to Plan;
// complex ones enter Understand first.
func (e *Engine) Triage(complexity Complexity) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Phase != PhaseTriage {
		return e.state.clone(), &PhaseError{Op: "triage", Phase: e.state.Phase}
	}
	switch complexity {
	case ComplexitySimple:
		e.state.Phase = PhasePlan
	case ComplexityComplex:
		e.state.Phase = PhaseUnderstand
	default:
		return e.state.clone(), fmt.Errorf("session: unknown complexity %q", complexity)
	}
	e.state.Complexity = complexity
	e.book.Info("session %s triaged as %s", e.state.SessionID, complexity)
	return e.saveLocked()
}

// Observe records one finding during the Understand phase.
func (e *Engine) Observe(text string) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Phase != PhaseUnderstand {
		return e.state.clone(), &PhaseError{Op: "observe", Phase: e.state.Phase}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return e.state.clone(), fmt.Errorf("session: observation text is required")
	}
	e.state.Observations = append(e.state.Observations, Observation{Text: text, At: e.clock().UTC()})
	return e.saveLocked()
}

// BuildPlan turns proposal requests into pending cards and enters Plan. Any
// previous card set is replaced.
func (e *Engine) BuildPlan(requests []proposal.BuildRequest) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Phase != PhaseUnderstand && e.state.Phase != PhasePlan {
		return e.state.clone(), &PhaseError{Op: "build plan", Phase: e.state.Phase}
	}
	if len(requests) == 0 {
		return e.state.clone(), fmt.Errorf("session: plan needs at least one proposal")
	}
	if e.state.Complexity == ComplexitySimple && len(requests) > MaxSimpleProposals {
		return e.state.clone(), &TooManyProposalsError{
			SessionID: e.state.SessionID,
			Count:     len(requests),
			Limit:     MaxSimpleProposals,
		}
	}
	cards := make([]proposal.Card, 0, len(requests))
	for _, req := range requests {
		if e.matcher != nil {
			for i, change := range req.Relations {
				if kind, ok := e.matcher.Match(change.Label); ok {
					req.Relations[i].Label = kind.Label()
				}
			}
		}
		card, err := e.builder.Build(req)
		if err != nil {
			return e.state.clone(), err
		}
		cards = append(cards, card)
	}
	e.state.Cards = cards
	e.state.Approved = false
	e.state.Results = nil
	e.state.Phase = PhasePlan
	e.book.Info("session %s planned %d cards", e.state.SessionID, len(cards))
	return e.saveLocked()
}

// SubmitPlan sends the card set to the approval channel and blocks until the
// reviewer decides. Approve marks every card Approved and moves to Execute,
// unless the plan carries conflicts: then the session stays in Plan and the
// approval fails with UnresolvedConflictsError. Reject returns the session to
// Understand with a PlanRejectedError. Amend rebuilds the reviewer's card set
// through the builder and stays in Plan for another round.
func (e *Engine) SubmitPlan(ctx context.Context) (State, error) {
	e.mu.Lock()
	if e.state.Phase != PhasePlan {
		defer e.mu.Unlock()
		return e.state.clone(), &PhaseError{Op: "submit plan", Phase: e.state.Phase}
	}
	if len(e.state.Cards) == 0 {
		defer e.mu.Unlock()
		return e.state.clone(), fmt.Errorf("session: no plan to submit")
	}
	review := PlanReview{
		SessionID: e.state.SessionID,
		Goal:      e.state.Goal,
		Cards:     append([]proposal.Card(nil), e.state.Cards...),
		Conflicts: proposal.Conflicts(e.state.Cards),
	}
	// Release the lock while the human decides: the review can take minutes
	// and the bridge needs to read state meanwhile.
	e.mu.Unlock()
	decision, err := e.approvals.Review(ctx, review)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		return e.state.clone(), fmt.Errorf("session: plan review: %w", err)
	}
	// The session may have moved on while the reviewer decided, most notably
	// via Abort. A decision for a phase that no longer exists is discarded.
	if e.state.Phase != PhasePlan {
		return e.state.clone(), &PhaseError{Op: "submit plan", Phase: e.state.Phase}
	}
	switch decision.Verdict {
	case VerdictApprove:
		if len(review.Conflicts) > 0 {
			ids := conflictedCardIDs(review.Conflicts)
			e.book.Warn("session %s: approval refused, cards %s conflict",
				e.state.SessionID, strings.Join(ids, ", "))
			return e.state.clone(), &UnresolvedConflictsError{SessionID: e.state.SessionID, CardIDs: ids}
		}
		for i := range e.state.Cards {
			e.state.Cards[i].Status = proposal.StatusApproved
		}
		e.state.Approved = true
		e.state.Phase = PhaseExecute
		e.book.Info("session %s plan approved", e.state.SessionID)
		return e.saveLocked()
	case VerdictReject:
		for i := range e.state.Cards {
			e.state.Cards[i].Status = proposal.StatusRejected
		}
		e.state.Approved = false
		e.state.Phase = PhaseUnderstand
		e.book.Warn("session %s plan rejected: %s", e.state.SessionID, decision.Reason)
		if state, saveErr := e.saveLocked(); saveErr != nil {
			return state, saveErr
		}
		return e.state.clone(), &PlanRejectedError{SessionID: e.state.SessionID, Reason: decision.Reason}
	case VerdictAmend:
		if len(decision.Amended) == 0 {
			return e.state.clone(), fmt.Errorf("session: amend decision carries no cards")
		}
		// Amended cards come from outside the builder, so they are rebuilt
		// through it: a reviewer cannot smuggle in a card the planning path
		// would have refused.
		cards := make([]proposal.Card, 0, len(decision.Amended))
		for _, amended := range decision.Amended {
			card, buildErr := e.builder.Build(proposal.BuildRequest{
				Scope:      amended.Scope,
				Problem:    amended.Problem,
				Technique:  amended.Technique,
				BeforeText: amended.BeforeText,
				AfterText:  amended.AfterText,
				Span:       amended.Span,
				Relations:  amended.Relations,
			})
			if buildErr != nil {
				return e.state.clone(), fmt.Errorf("session: amended plan: %w", buildErr)
			}
			cards = append(cards, card)
		}
		e.state.Cards = cards
		e.state.Approved = false
		e.book.Info("session %s plan amended to %d cards", e.state.SessionID, len(cards))
		return e.saveLocked()
	default:
		return e.state.clone(), fmt.Errorf("session: unknown verdict %q", decision.Verdict)
	}
}

// Execute applies every Approved card. Each card fails or succeeds on its
// own: a structural error halts that card only and earlier cards stay
// applied. The session then enters Integrate regardless of partial failures.
func (e *Engine) Execute() (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Phase != PhaseExecute {
		return e.state.clone(), &PhaseError{Op: "execute", Phase: e.state.Phase}
	}
	if !e.state.Approved {
		return e.state.clone(), &GateError{SessionID: e.state.SessionID}
	}
	for _, idx := range e.executionOrder() {
		card := &e.state.Cards[idx]
		result := CardResult{CardID: card.ID}
		if err := e.applyCard(card); err != nil {
			result.Error = err.Error()
			e.book.Error("session %s: card %s failed: %v", e.state.SessionID, card.ID, err)
		} else {
			card.Status = proposal.StatusApplied
			e.book.Info("session %s: card %s applied to %s", e.state.SessionID, card.ID, card.Scope)
		}
		e.state.Results = append(e.state.Results, result)
	}
	e.state.Phase = PhaseIntegrate
	return e.saveLocked()
}

// executionOrder returns the indexes of Approved cards, later spans first
// within each document so earlier offsets stay valid as text is spliced.
func (e *Engine) executionOrder() []int {
	var order []int
	for i, card := range e.state.Cards {
		if card.Status == proposal.StatusApproved {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := e.state.Cards[order[a]], e.state.Cards[order[b]]
		if ca.Scope.DocumentID != cb.Scope.DocumentID {
			return ca.Scope.DocumentID < cb.Scope.DocumentID
		}
		return ca.Span.Start > cb.Span.Start
	})
	return order
}

func (e *Engine) applyCard(card *proposal.Card) error {
	docID := card.Scope.DocumentID
	body, err := e.content.Read(docID)
	if err != nil {
		return err
	}
	if card.Span.Start < 0 || card.Span.End < card.Span.Start || card.Span.End > len(body) {
		return fmt.Errorf("session: card %s span [%d,%d) is outside document %s (length %d)",
			card.ID, card.Span.Start, card.Span.End, docID, len(body))
	}
	current := string(body[card.Span.Start:card.Span.End])
	if current != card.BeforeText {
		return fmt.Errorf("session: card %s before-text does not match document %s at [%d,%d)",
			card.ID, docID, card.Span.Start, card.Span.End)
	}
	for _, change := range card.Relations {
		switch change.Op {
		case proposal.RelationAdd:
			err = e.graph.AddEdge(docID, change.TargetID, change.Label)
		case proposal.RelationRemove:
			err = e.graph.RemoveEdge(docID, change.TargetID, change.Label)
		default:
			err = fmt.Errorf("session: unknown relation op %q", change.Op)
		}
		if err != nil {
			return err
		}
	}
	updated := make([]byte, 0, len(body)-len(card.BeforeText)+len(card.AfterText))
	updated = append(updated, body[:card.Span.Start]...)
	updated = append(updated, card.AfterText...)
	updated = append(updated, body[card.Span.End:]...)
	if err := e.content.Write(docID, updated); err != nil {
		return err
	}
	description := fmt.Sprintf("Revised %s via %s", card.Scope.Section, card.Technique)
	if strings.TrimSpace(card.Scope.Section) == "" {
		description = fmt.Sprintf("Revised body via %s", card.Technique)
	}
	return e.graph.AppendRevision(docID, description, e.clock())
}

// PendingBacklinks lists the reverse-side tasks still blocking Integrate.
func (e *Engine) PendingBacklinks() []backlink.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tracker == nil {
		return nil
	}
	return e.tracker.Pending(e.state.SessionID)
}

// CompleteBacklink marks one reverse-side task done.
func (e *Engine) CompleteBacklink(taskID string) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Phase != PhaseIntegrate {
		return e.state.clone(), &PhaseError{Op: "complete backlink", Phase: e.state.Phase}
	}
	if err := e.tracker.MarkComplete(taskID); err != nil {
		return e.state.clone(), err
	}
	return e.saveLocked()
}

// Integrate closes the session once the backlink queue is drained and the
// graph verifies. Any failure keeps the session in Integrate.
func (e *Engine) Integrate() (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Phase != PhaseIntegrate {
		return e.state.clone(), &PhaseError{Op: "integrate", Phase: e.state.Phase}
	}
	if err := e.tracker.CheckDrained(); err != nil {
		return e.state.clone(), err
	}
	if err := e.graph.Verify(); err != nil {
		return e.state.clone(), fmt.Errorf("session: graph verification: %w", err)
	}
	e.state.Phase = PhaseClosed
	e.book.Info("session %s closed", e.state.SessionID)
	return e.saveLocked()
}

// Abort terminates the session from any non-terminal phase. Cards that were
// already Applied stay applied and each one leaves an audit line in the
// logbook; everything else is discarded with the session.
func (e *Engine) Abort(reason string) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Phase.Terminal() {
		return e.state.clone(), &PhaseError{Op: "abort", Phase: e.state.Phase}
	}
	var applied []proposal.Card
	for _, card := range e.state.Cards {
		if card.Status == proposal.StatusApplied {
			e.book.Audit("session %s: card %s applied but session aborted (%s)",
				e.state.SessionID, card.ID, reason)
			applied = append(applied, card)
		}
	}
	e.state.Cards = applied
	e.state.Phase = PhaseAborted
	e.book.Warn("session %s aborted: %s", e.state.SessionID, reason)
	return e.saveLocked()
}

func (e *Engine) attachTracker(tasks []backlink.Task) {
	if e.tracker != nil {
		e.graph.RemoveListener(e.tracker)
	}
	e.tracker = backlink.NewTracker(e.state.SessionID, backlink.WithClock(e.clock))
	if len(tasks) > 0 {
		e.tracker.Restore(tasks)
	}
	e.graph.AddListener(e.tracker)
}

func (e *Engine) saveLocked() (State, error) {
	if e.tracker != nil {
		e.state.Backlinks = e.tracker.Pending(e.state.SessionID)
	}
	e.state.UpdatedAt = e.clock().UTC()
	if err := e.repo.Save(e.state); err != nil {
		return e.state.clone(), err
	}
	return e.state.clone(), nil
}

func conflictedCardIDs(conflicts []proposal.Conflict) []string {
	seen := map[string]bool{}
	var ids []string
	for _, conflict := range conflicts {
		for _, id := range []string{conflict.CardA, conflict.CardB} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}
