// Package exit defines the terminal outcome of a fiber: a success value
// or a failure Cause. The type-erased form Exit[any] is what scopes and
// fibers exchange; typed values are recovered at package boundaries.
package exit

import (
	"github.com/on-the-ground/weft/cause"
)

// Exit is the terminal outcome of interpreting an effect.
// Exactly one of Value / Cause is meaningful: Cause == nil means success.
type Exit[A any] struct {
	value A
	cause *cause.Cause
}

// Succeed builds a successful exit.
func Succeed[A any](a A) Exit[A] {
	return Exit[A]{value: a}
}

// Fail builds a failed exit from a non-nil cause.
func Fail[A any](c *cause.Cause) Exit[A] {
	if c == nil {
		panic("exit: Fail called with nil cause")
	}
	return Exit[A]{cause: c}
}

func (e Exit[A]) IsSuccess() bool { return e.cause == nil }
func (e Exit[A]) IsFailure() bool { return e.cause != nil }

// IsInterrupted reports whether the exit's cause contains an interruption.
func (e Exit[A]) IsInterrupted() bool {
	return e.cause != nil && e.cause.IsInterrupted()
}

// Value returns the success value; meaningful only when IsSuccess.
func (e Exit[A]) Value() A { return e.value }

// Cause returns the failure cause, or nil on success.
func (e Exit[A]) Cause() *cause.Cause { return e.cause }

// Erase forgets the success type, for storage in erased slots.
func Erase[A any](e Exit[A]) Exit[any] {
	if e.cause != nil {
		return Fail[any](e.cause)
	}
	return Succeed[any](e.value)
}

// Map transforms the success value, passing failures through unchanged.
func Map[A, B any](e Exit[A], f func(A) B) Exit[B] {
	if e.cause != nil {
		return Fail[B](e.cause)
	}
	return Succeed(f(e.value))
}
