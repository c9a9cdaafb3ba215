package simulation

import (
	"errors"
	"fmt"
	"sort"

	"tabletop/internal/core"
)

var (
	ErrNegativeDueTime = errors.New("due time must not be negative")
	ErrDuplicateAction = errors.New("duplicate action identity")
)

// Entry is one scheduled action.
type Entry struct {
	ID      int64
	DueTime int64 // ms relative to simulation start
	Action  core.Action
}

// Queue holds not-yet-dispatched entries sorted by due time. Entries with
// equal due times keep their enqueue order. A Queue is not safe for
// concurrent use; a Simulation guards its queue with its own lock.
type Queue struct {
	entries []Entry
}

// NewQueue sorts entries once; due times never change afterwards.
func NewQueue(entries []Entry) (*Queue, error) {
	seen := make(map[int64]struct{}, len(entries))
	sorted := make([]Entry, len(entries))
	for i, e := range entries {
		if e.DueTime < 0 {
			return nil, fmt.Errorf("action %d: %w", e.ID, ErrNegativeDueTime)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("action %d: %w", e.ID, ErrDuplicateAction)
		}
		seen[e.ID] = struct{}{}
		sorted[i] = e
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DueTime < sorted[j].DueTime
	})
	return &Queue{entries: sorted}, nil
}

func (q *Queue) Len() int {
	return len(q.entries)
}

func (q *Queue) Peek() (Entry, bool) {
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	return q.entries[0], true
}

func (q *Queue) Pop() (Entry, bool) {
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	e := q.entries[0]
	q.entries[0] = Entry{}
	q.entries = q.entries[1:]
	return e, true
}

// Index returns the position of the entry with the given identity, or -1.
func (q *Queue) Index(id int64) int {
	for i, e := range q.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// Entries returns a copy of the pending entries in dispatch order.
func (q *Queue) Entries() []Entry {
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}
