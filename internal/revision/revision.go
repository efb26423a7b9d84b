// Package revision maintains the append-only history attached to every
// document. Entries are immutable once appended: there is no delete, edit, or
// reorder operation, and the first entry of every log is the document creation
// record.
package revision

import (
	"fmt"
	"iter"
	"strings"
	"time"
)

// CreatedDescription is the mandatory description of every log's first entry.
const CreatedDescription = "Document created"

// Entry is one immutable row in a document's history.
type Entry struct {
	Date        time.Time `json:"date" yaml:"date"`
	Description string    `json:"description" yaml:"description"`
}

// Log is an append-only sequence of entries in insertion order.
type Log struct {
	entries []Entry
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{}
}

// Append records a new entry. The first entry must carry CreatedDescription
// and dates must be non-decreasing. Append is deterministic: replaying the
// same entries against a fresh log yields an identical log.
func (l *Log) Append(description string, date time.Time) error {
	description = strings.TrimSpace(description)
	if description == "" {
		return fmt.Errorf("revision: description is required")
	}
	date = date.UTC()
	if len(l.entries) == 0 {
		if description != CreatedDescription {
			return &InvalidFirstEntryError{Description: description}
		}
	} else if last := l.entries[len(l.entries)-1]; date.Before(last.Date) {
		return &NonMonotonicDateError{Date: date, Last: last.Date}
	}
	l.entries = append(l.entries, Entry{Date: date, Description: description})
	return nil
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// Entries yields the log in insertion order. The sequence is finite and
// restartable; it reflects the log contents at iteration time.
func (l *Log) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, entry := range l.entries {
			if !yield(entry) {
				return
			}
		}
	}
}

// Snapshot returns a defensive copy of the entries for persistence.
func (l *Log) Snapshot() []Entry {
	if len(l.entries) == 0 {
		return nil
	}
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Restore replays persisted entries through Append so a loaded log cannot
// carry history that the validation rules would have rejected.
func Restore(entries []Entry) (*Log, error) {
	log := NewLog()
	for i, entry := range entries {
		if err := log.Append(entry.Description, entry.Date); err != nil {
			return nil, fmt.Errorf("revision: restore entry %d: %w", i, err)
		}
	}
	return log, nil
}

// InvalidFirstEntryError reports an attempt to open a log with anything other
// than the document creation record.
type InvalidFirstEntryError struct {
	Description string
}

func (e *InvalidFirstEntryError) Error() string {
	return fmt.Sprintf("revision: first entry must be %q, got %q", CreatedDescription, e.Description)
}

// NonMonotonicDateError reports an entry dated before the log's last entry.
type NonMonotonicDateError struct {
	Date time.Time
	Last time.Time
}

func (e *NonMonotonicDateError) Error() string {
	return fmt.Sprintf("revision: entry date %s precedes last entry %s",
		e.Date.Format(time.RFC3339), e.Last.Format(time.RFC3339))
}
