// Package backlink derives the follow-up work a graph mutation creates: when
// an edge pair changes, the reverse-side document's Related section must be
// brought in line before the session may close. The tracker listens to store
// mutations and queues one task per affected reverse side.
package backlink

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/weave/internal/graph"
)

// Task is one outstanding reverse-side update. DocumentID names the document
// whose Related section must change; Edge is the mirror edge that section
// must reflect (or stop reflecting, for removals).
type Task struct {
	ID         string             `json:"id"`
	SessionID  string             `json:"session_id"`
	DocumentID string             `json:"document_id"`
	Edge       graph.Edge         `json:"-"`
	Type       graph.MutationType `json:"type"`
	Detail     string             `json:"detail"`
	CreatedAt  time.Time          `json:"created_at"`
}

// TaskNotFoundError reports a completion call for an unknown or already
// completed task.
type TaskNotFoundError struct {
	ID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("backlink: task %s not found", e.ID)
}

// IncompleteBacklinksError reports outstanding tasks at session close time.
type IncompleteBacklinksError struct {
	SessionID string
	TaskIDs   []string
}

func (e *IncompleteBacklinksError) Error() string {
	return fmt.Sprintf("backlink: session %s has %d incomplete tasks: %s",
		e.SessionID, len(e.TaskIDs), strings.Join(e.TaskIDs, ", "))
}

// Tracker queues backlink tasks for one session. It implements
// graph.MutationListener so the store feeds it directly.
type Tracker struct {
	mu        sync.Mutex
	sessionID string
	pending   []Task
	clock     func() time.Time
	newID     func() string
}

// Option customizes tracker construction.
type Option func(*Tracker)

// WithClock injects a deterministic clock.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithIDGenerator overrides the task ID source.
func WithIDGenerator(newID func() string) Option {
	return func(t *Tracker) {
		if newID != nil {
			t.newID = newID
		}
	}
}

// NewTracker returns a tracker scoped to one workflow session.
func NewTracker(sessionID string, opts ...Option) *Tracker {
	t := &Tracker{
		sessionID: sessionID,
		clock:     time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SessionID returns the session this tracker records for.
func (t *Tracker) SessionID() string {
	return t.sessionID
}

// HandleMutation records the reverse-side update a committed edge mutation
// requires.
func (t *Tracker) HandleMutation(m graph.Mutation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	verb := "reflect the new"
	if m.Type == graph.MutationEdgeRemoved {
		verb = "drop the removed"
	}
	task := Task{
		ID:         t.newID(),
		SessionID:  t.sessionID,
		DocumentID: m.Mirror.From,
		Edge:       m.Mirror,
		Type:       m.Type,
		Detail: fmt.Sprintf("document %s: Related section must %s %q edge to %s",
			m.Mirror.From, verb, m.Mirror.Label(), m.Mirror.To),
		CreatedAt: t.clock().UTC(),
	}
	t.pending = append(t.pending, task)
}

// Restore reloads persisted tasks into the queue after a process restart.
// Tasks recorded for other sessions are ignored.
func (t *Tracker) Restore(tasks []Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, task := range tasks {
		if task.SessionID != t.sessionID {
			continue
		}
		t.pending = append(t.pending, task)
	}
}

// Pending returns the outstanding tasks for a session in creation order.
func (t *Tracker) Pending(sessionID string) []Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sessionID != t.sessionID {
		return nil
	}
	if len(t.pending) == 0 {
		return nil
	}
	out := make([]Task, len(t.pending))
	copy(out, t.pending)
	return out
}

// MarkComplete removes a task from the queue.
func (t *Tracker) MarkComplete(taskID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, task := range t.pending {
		if task.ID == taskID {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			return nil
		}
	}
	return &TaskNotFoundError{ID: taskID}
}

// CheckDrained returns nil when the queue is empty, otherwise an
// IncompleteBacklinksError naming every outstanding task.
func (t *Tracker) CheckDrained() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		return nil
	}
	ids := make([]string, len(t.pending))
	for i, task := range t.pending {
		ids[i] = task.ID
	}
	return &IncompleteBacklinksError{SessionID: t.sessionID, TaskIDs: ids}
}
