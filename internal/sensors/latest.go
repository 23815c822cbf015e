// Package sensors holds the latest sample of each external source. Producers
// publish from any goroutine; the control thread reads without blocking and
// reuses the previous value when nothing new has arrived.
package sensors

import (
	"sync/atomic"
)

type sample[T any] struct {
	seq   uint64
	value T
}

// Latest is a single-slot mailbox. Publish may be called concurrently; Read
// belongs to one reader.
type Latest[T any] struct {
	name   string
	slot   atomic.Pointer[sample[T]]
	seq    atomic.Uint64
	seen   uint64
	last   T
	has    bool
	stale  uint64
	streak int
}

func NewLatest[T any](name string) *Latest[T] {
	return &Latest[T]{name: name}
}

func (l *Latest[T]) Name() string { return l.name }

func (l *Latest[T]) Publish(v T) {
	l.slot.Store(&sample[T]{seq: l.seq.Add(1), value: v})
}

// Read returns the newest sample and whether it arrived since the previous
// Read. A stale read returns the previous value and bumps the counters. ok
// is false until the first sample arrives.
func (l *Latest[T]) Read() (v T, fresh, ok bool) {
	s := l.slot.Load()
	if s != nil && s.seq != l.seen {
		l.seen = s.seq
		l.last = s.value
		l.has = true
		l.streak = 0
		return l.last, true, true
	}
	l.stale++
	l.streak++
	return l.last, false, l.has
}

// Stale is the total number of stale reads.
func (l *Latest[T]) Stale() uint64 { return l.stale }

// Streak is the number of consecutive stale reads.
func (l *Latest[T]) Streak() int { return l.streak }
