// Package scope tracks finalizers tied to a resource lifetime.
//
// A Scope collects finalizer closures in registration order and, on
// Close, runs them exactly once in reverse order. Closing is idempotent:
// a second Close is a no-op returning the first close's result.
package scope

import (
	"fmt"
	"sync"

	"github.com/on-the-ground/weft/cause"
	"github.com/on-the-ground/weft/exit"
)

// ErrClosedScope is returned by AddFinalizer after the scope has closed.
var ErrClosedScope = fmt.Errorf("scope already closed")

// Finalizer releases one resource. It receives the exit that triggered
// the close so it can branch on success, failure or interruption. A
// returned error is folded into the close result; it never discards the
// triggering cause.
type Finalizer func(exit.Exit[any]) error

// Scope is an ordered finalizer registry with an open/closed state.
// AddFinalizer may be called from the resuming goroutine of an async
// effect, so access is synchronized.
type Scope struct {
	mu         sync.Mutex
	finalizers []Finalizer
	closed     bool
	done       chan struct{}
	result     exit.Exit[any]
}

// Make returns a new open scope.
func Make() *Scope {
	return &Scope{done: make(chan struct{})}
}

// AddFinalizer appends a finalizer to run on Close. Fails with
// ErrClosedScope once the scope has closed.
func (s *Scope) AddFinalizer(f Finalizer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosedScope
	}
	s.finalizers = append(s.finalizers, f)
	return nil
}

// IsClosed reports whether Close has run.
func (s *Scope) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close runs every registered finalizer exactly once, in reverse
// registration order, passing the triggering exit. Finalizer errors and
// panics are folded into the exit's cause sequentially; the original
// cause is never discarded. Returns the folded exit. Closing an
// already-closed scope returns the first close's result unchanged,
// waiting for it if that close is still in flight on another goroutine.
func (s *Scope) Close(ex exit.Exit[any]) exit.Exit[any] {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		// A concurrent closer lost the race; wait for the winner to
		// finish folding before reporting its result.
		<-s.done
		s.mu.Lock()
		result := s.result
		s.mu.Unlock()
		return result
	}
	s.closed = true
	finalizers := s.finalizers
	s.finalizers = nil
	s.mu.Unlock()

	folded := ex.Cause()
	for i := len(finalizers) - 1; i >= 0; i-- {
		if c := run(finalizers[i], ex); c != nil {
			folded = cause.Sequential(folded, c)
		}
	}

	result := ex
	if folded != nil {
		result = exit.Fail[any](folded)
	}

	s.mu.Lock()
	s.result = result
	s.mu.Unlock()
	close(s.done)
	return result
}

func run(f Finalizer, ex exit.Exit[any]) (c *cause.Cause) {
	defer func() {
		if r := recover(); r != nil {
			c = cause.Die(r)
		}
	}()
	if err := f(ex); err != nil {
		return cause.Fail(err)
	}
	return nil
}
