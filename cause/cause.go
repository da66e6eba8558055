// Package cause represents why a computation terminated abnormally.
//
// A Cause is a tree rather than a single error so that nothing is lost:
// an expected failure, a defect (an unexpected panic value), and an
// interruption are kept distinct, and multiple causes arising
// sequentially (a finalizer failing after the body failed) or in
// parallel (two sibling fibers failing) are composed instead of one
// discarding the other.
package cause

import (
	"fmt"
	"strings"

	"github.com/on-the-ground/weft/fiberid"
)

// Kind discriminates the Cause variants.
type Kind uint8

const (
	// KindFail is an expected, typed failure raised by effect.Fail.
	KindFail Kind = iota
	// KindDie is a defect: a panic value captured at an interpreter
	// boundary. Defects are bugs and are propagated, never recovered
	// by ordinary error-handling combinators.
	KindDie
	// KindInterrupt records that a fiber was interrupted, and by whom.
	KindInterrupt
	// KindSequential composes two causes that happened one after the other.
	KindSequential
	// KindParallel composes two causes that happened concurrently.
	KindParallel
)

// Cause is an immutable tree of termination reasons. It implements error.
type Cause struct {
	kind   Kind
	err    error
	defect any
	fiber  fiberid.ID
	left   *Cause
	right  *Cause
}

// Fail wraps an expected failure.
func Fail(err error) *Cause {
	return &Cause{kind: KindFail, err: err}
}

// Die wraps a defect, typically a recovered panic value.
func Die(v any) *Cause {
	return &Cause{kind: KindDie, defect: v}
}

// Interrupt records an interruption requested by the given fiber.
// Use fiberid.None for interrupts originating outside any fiber.
func Interrupt(by fiberid.ID) *Cause {
	return &Cause{kind: KindInterrupt, fiber: by}
}

// Sequential composes first-then-second. Either side may be nil,
// in which case the other is returned unchanged.
func Sequential(first, second *Cause) *Cause {
	if first == nil {
		return second
	}
	if second == nil {
		return first
	}
	return &Cause{kind: KindSequential, left: first, right: second}
}

// Parallel composes two concurrent causes. Either side may be nil,
// in which case the other is returned unchanged.
func Parallel(a, b *Cause) *Cause {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return &Cause{kind: KindParallel, left: a, right: b}
}

func (c *Cause) Kind() Kind { return c.kind }

// FailureError returns the wrapped error of a KindFail cause, or nil.
func (c *Cause) FailureError() error { return c.err }

// Defect returns the wrapped panic value of a KindDie cause, or nil.
func (c *Cause) Defect() any { return c.defect }

// Interrupter returns the interrupting fiber of a KindInterrupt cause.
func (c *Cause) Interrupter() fiberid.ID { return c.fiber }

// Children returns the two sides of a composite cause, or nils.
func (c *Cause) Children() (*Cause, *Cause) { return c.left, c.right }

// Failures collects every expected failure in the tree, left to right.
func (c *Cause) Failures() []error {
	var out []error
	c.walk(func(n *Cause) {
		if n.kind == KindFail {
			out = append(out, n.err)
		}
	})
	return out
}

// Defects collects every defect in the tree, left to right.
func (c *Cause) Defects() []any {
	var out []any
	c.walk(func(n *Cause) {
		if n.kind == KindDie {
			out = append(out, n.defect)
		}
	})
	return out
}

// FirstFailure returns the leftmost expected failure, or nil if the tree
// holds only defects and interruptions.
func (c *Cause) FirstFailure() error {
	failures := c.Failures()
	if len(failures) == 0 {
		return nil
	}
	return failures[0]
}

// IsInterrupted reports whether any node in the tree is an interruption.
func (c *Cause) IsInterrupted() bool {
	found := false
	c.walk(func(n *Cause) {
		if n.kind == KindInterrupt {
			found = true
		}
	})
	return found
}

// IsFailureOnly reports whether the tree consists solely of expected
// failures. Ordinary error-recovery combinators only handle such causes.
func (c *Cause) IsFailureOnly() bool {
	ok := true
	c.walk(func(n *Cause) {
		if n.kind == KindDie || n.kind == KindInterrupt {
			ok = false
		}
	})
	return ok
}

func (c *Cause) walk(fn func(*Cause)) {
	if c == nil {
		return
	}
	fn(c)
	c.left.walk(fn)
	c.right.walk(fn)
}

// Error renders the full tree on one line. Cause implements error so it
// can flow through ordinary error returns without loss.
func (c *Cause) Error() string {
	var b strings.Builder
	c.render(&b)
	return b.String()
}

func (c *Cause) render(b *strings.Builder) {
	switch c.kind {
	case KindFail:
		fmt.Fprintf(b, "fail(%v)", c.err)
	case KindDie:
		fmt.Fprintf(b, "die(%v)", c.defect)
	case KindInterrupt:
		fmt.Fprintf(b, "interrupt(by %s)", c.fiber)
	case KindSequential:
		b.WriteString("sequential(")
		c.left.render(b)
		b.WriteString("; ")
		c.right.render(b)
		b.WriteString(")")
	case KindParallel:
		b.WriteString("parallel(")
		c.left.render(b)
		b.WriteString(" | ")
		c.right.render(b)
		b.WriteString(")")
	}
}

// Unwrap exposes wrapped errors to errors.Is / errors.As.
func (c *Cause) Unwrap() []error {
	switch c.kind {
	case KindFail:
		return []error{c.err}
	case KindSequential, KindParallel:
		out := make([]error, 0, 2)
		if c.left != nil {
			out = append(out, c.left)
		}
		if c.right != nil {
			out = append(out, c.right)
		}
		return out
	default:
		return nil
	}
}
