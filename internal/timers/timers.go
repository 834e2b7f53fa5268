// Package timers implements the two single-shot delayed actions used by the
// recorder: the stream-start retry timer and the recording hard-stop timer.
//
// Cancellation is guarded by a per-kind generation counter. A fire carries the
// generation it was armed with and is only honoured while that generation is
// still current, so a callback that races with Cancel or a re-Arm is dropped
// even when the underlying timer could not be stopped in time.
package timers

import (
	"fmt"
	"sync"
	"time"
)

// Kind identifies one of the timers in a Set.
type Kind int

const (
	Retry Kind = iota
	HardStop
	numKinds
)

func (k Kind) String() string {
	switch k {
	case Retry:
		return "retry"
	case HardStop:
		return "hard-stop"
	default:
		return fmt.Sprintf("timer(%d)", int(k))
	}
}

// Fired is delivered when an armed timer elapses.
type Fired struct {
	Kind Kind
	Gen  uint64
}

// Stopper cancels a scheduled callback.
type Stopper interface {
	Stop() bool
}

// Clock provides time and scheduling. Tests substitute a fake.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Stopper
}

// RealClock is backed by the time package.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now() }

// AfterFunc implements Clock.
func (RealClock) AfterFunc(d time.Duration, f func()) Stopper { return time.AfterFunc(d, f) }

// Set holds one cancellable timer per Kind.
//
// The deliver callback runs on the clock's goroutine and must hand the Fired
// value off to the worker that owns the state machine.
type Set struct {
	clock   Clock
	deliver func(Fired)

	mu      sync.Mutex
	gens    [numKinds]uint64
	pending [numKinds]Stopper
}

// NewSet creates a timer set.
func NewSet(clock Clock, deliver func(Fired)) *Set {
	if clock == nil {
		clock = RealClock{}
	}
	return &Set{clock: clock, deliver: deliver}
}

// Arm schedules kind to fire after d, cancelling any previous instance first.
// It returns the generation of the new instance.
func (s *Set) Arm(kind Kind, d time.Duration) uint64 {
	s.mu.Lock()
	s.cancelLocked(kind)
	gen := s.gens[kind]
	s.pending[kind] = s.clock.AfterFunc(d, func() {
		if !s.Live(Fired{Kind: kind, Gen: gen}) {
			return
		}
		s.deliver(Fired{Kind: kind, Gen: gen})
	})
	s.mu.Unlock()
	return gen
}

// Cancel invalidates any armed instance of kind.
func (s *Set) Cancel(kind Kind) {
	s.mu.Lock()
	s.cancelLocked(kind)
	s.mu.Unlock()
}

// CancelAll invalidates every timer. It is idempotent.
func (s *Set) CancelAll() {
	s.mu.Lock()
	for k := Kind(0); k < numKinds; k++ {
		s.cancelLocked(k)
	}
	s.mu.Unlock()
}

// Live reports whether f belongs to the currently armed instance of its kind.
// The owner must check this when the fire is processed, since Cancel may have
// run between delivery and processing.
func (s *Set) Live(f Fired) bool {
	if f.Kind < 0 || f.Kind >= numKinds {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[f.Kind] != nil && s.gens[f.Kind] == f.Gen
}

// Consume marks f as handled so a later Live check on the same generation
// fails. It reports whether f was live.
func (s *Set) Consume(f Fired) bool {
	if f.Kind < 0 || f.Kind >= numKinds {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[f.Kind] == nil || s.gens[f.Kind] != f.Gen {
		return false
	}
	s.pending[f.Kind] = nil
	s.gens[f.Kind]++
	return true
}

func (s *Set) cancelLocked(kind Kind) {
	if p := s.pending[kind]; p != nil {
		p.Stop()
		s.pending[kind] = nil
	}
	s.gens[kind]++
}
