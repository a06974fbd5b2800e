// Package tape is the append-only, time-ordered record of executed trades of
// one instrument. Nothing appended is ever edited or removed.
package tape

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrOutOfOrder = errors.New("entry is older than the tape head")

// Entry is anything carrying the time it happened at.
type Entry interface {
	Time() time.Time
}

// Reader is the read side handed to query paths.
type Reader[T Entry] interface {
	Range(from, to time.Time) []T
	Latest(n int) []T
	Len() int
}

// Tape guards its entries with its own lock so readers never wait on the
// matching lock of the instrument.
type Tape[T Entry] struct {
	mu      sync.RWMutex
	entries []T
}

func New[T Entry]() *Tape[T] {
	return &Tape[T]{}
}

// Append adds an entry at the head. Entries must arrive in non-decreasing
// time order.
func (t *Tape[T]) Append(entry T) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.entries); n > 0 && entry.Time().Before(t.entries[n-1].Time()) {
		return ErrOutOfOrder
	}
	t.entries = append(t.entries, entry)
	return nil
}

// Load appends a batch recovered from storage, sorted by time.
func (t *Tape[T]) Load(entries []T) error {
	batch := make([]T, len(entries))
	copy(batch, entries)
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Time().Before(batch[j].Time())
	})

	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.entries); n > 0 && len(batch) > 0 && batch[0].Time().Before(t.entries[n-1].Time()) {
		return ErrOutOfOrder
	}
	t.entries = append(t.entries, batch...)
	return nil
}

// Range returns entries with from <= time < to, oldest first.
func (t *Tape[T]) Range(from, to time.Time) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()

	lo := sort.Search(len(t.entries), func(i int) bool {
		return !t.entries[i].Time().Before(from)
	})
	hi := sort.Search(len(t.entries), func(i int) bool {
		return !t.entries[i].Time().Before(to)
	})
	if lo >= hi {
		return []T{}
	}
	out := make([]T, hi-lo)
	copy(out, t.entries[lo:hi])
	return out
}

// Latest returns up to n entries, newest first.
func (t *Tape[T]) Latest(n int) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n > len(t.entries) {
		n = len(t.entries)
	}
	if n <= 0 {
		return []T{}
	}
	out := make([]T, 0, n)
	for i := len(t.entries) - 1; i >= len(t.entries)-n; i-- {
		out = append(out, t.entries[i])
	}
	return out
}

func (t *Tape[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
