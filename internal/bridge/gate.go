package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/kingrea/weave/internal/session"
)

// DecisionGate is the bridge-side approval channel. Review parks the plan
// until an external process submits a verdict over HTTP, or until the TUI
// forwards one through Submit.
type DecisionGate struct {
	mu      sync.Mutex
	pending *pendingReview
}

type pendingReview struct {
	review session.PlanReview
	ch     chan session.Decision
}

// NewDecisionGate returns an empty gate.
func NewDecisionGate() *DecisionGate {
	return &DecisionGate{}
}

// Review blocks until a decision arrives or the context is cancelled. Only
// one review may be in flight; the engine is the single writer so this never
// races with itself.
func (g *DecisionGate) Review(ctx context.Context, review session.PlanReview) (session.Decision, error) {
	ch := make(chan session.Decision, 1)
	g.mu.Lock()
	if g.pending != nil {
		g.mu.Unlock()
		return session.Decision{}, fmt.Errorf("bridge: a plan review is already in flight")
	}
	g.pending = &pendingReview{review: review, ch: ch}
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.pending = nil
		g.mu.Unlock()
	}()

	select {
	case decision := <-ch:
		return decision, nil
	case <-ctx.Done():
		return session.Decision{}, ctx.Err()
	}
}

// PendingReview returns the plan currently waiting on a verdict, if any.
func (g *DecisionGate) PendingReview() (session.PlanReview, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return session.PlanReview{}, false
	}
	return g.pending.review, true
}

// Submit delivers a verdict for the review in flight.
func (g *DecisionGate) Submit(decision session.Decision) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return fmt.Errorf("bridge: no plan review is waiting for a decision")
	}
	g.pending.ch <- decision
	g.pending = nil
	return nil
}
