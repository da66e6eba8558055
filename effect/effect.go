// Package effect provides immutable descriptions of possibly-failing,
// possibly-asynchronous computations.
//
// Constructing an Effect performs no side effect: an Effect is a value
// describing what should happen, and nothing happens until a runtime
// submits it to a fiber for interpretation. Every combinator here lowers
// to a small closed set of primitive instructions, keeping the
// interpreter's state machine minimal.
package effect

import (
	"github.com/on-the-ground/weft/cause"
	"github.com/on-the-ground/weft/internal/helper"
	"github.com/on-the-ground/weft/internal/node"
)

// Effect describes a computation producing A. Effects are immutable and
// lazy; they may be re-run only by re-submitting them to a runtime.
type Effect[A any] struct {
	n node.Node
}

// NodeOf exposes the underlying instruction tree to the interpreter.
// Application code has no use for it.
func NodeOf[A any](e Effect[A]) node.Node { return e.n }

// FromNode wraps an instruction tree whose erased result is known to be
// an A. Application code has no use for it.
func FromNode[A any](n node.Node) Effect[A] { return Effect[A]{n: n} }

// toTyped recovers the static type of an erased interpreter value. The
// lowering guarantees the dynamic type; nil maps to A's zero value.
func toTyped[A any](raw node.Erased) A {
	if raw == nil {
		var zero A
		return zero
	}
	return helper.As[A](raw)
}

// Succeed describes a computation that immediately yields a.
func Succeed[A any](a A) Effect[A] {
	return FromNode[A](node.Succeed{Value: a})
}

// Fail describes a computation that immediately fails with the expected
// error err.
func Fail[A any](err error) Effect[A] {
	return FromNode[A](node.Fail{Cause: cause.Fail(err)})
}

// FailCause fails with a full cause tree.
func FailCause[A any](c *cause.Cause) Effect[A] {
	return FromNode[A](node.Fail{Cause: c})
}

// Die describes a computation that terminates with a defect.
func Die[A any](v any) Effect[A] {
	return FromNode[A](node.Fail{Cause: cause.Die(v)})
}

// Sync defers a side-effecting thunk until interpretation. The thunk
// must not panic; a panic is captured as a defect. Use Attempt for
// thunks that can fail in expected ways.
func Sync[A any](thunk func() A) Effect[A] {
	return FromNode[A](node.Sync{Thunk: func() node.Erased { return thunk() }})
}

// Attempt defers a fallible thunk. A returned error becomes a typed
// failure recoverable by CatchAll; a panic still becomes a defect.
func Attempt[A any](thunk func() (A, error)) Effect[A] {
	return FromNode[A](node.Attempt{Thunk: func() (node.Erased, error) { return thunk() }})
}

// Suspend defers construction of the effect itself until each
// interpretation, guaranteeing per-evaluation freshness of any mutable
// state the thunk captures, and breaking eager self-reference.
func Suspend[A any](thunk func() Effect[A]) Effect[A] {
	return FromNode[A](node.Suspend{Thunk: func() node.Node { return thunk().n }})
}

// Async suspends the interpreting fiber until resume is invoked with
// the effect to continue with. Resume must be called exactly once,
// synchronously or later; extra calls are ignored.
func Async[A any](register func(resume func(Effect[A]))) Effect[A] {
	return FromNode[A](node.Async{Register: func(resume func(node.Node)) {
		register(func(e Effect[A]) { resume(e.n) })
	}})
}

// Map transforms the success value.
func Map[A, B any](e Effect[A], f func(A) B) Effect[B] {
	return FlatMap(e, func(a A) Effect[B] { return Succeed(f(a)) })
}

// FlatMap sequences f after e. If e fails, f is never invoked and the
// failure propagates unchanged.
func FlatMap[A, B any](e Effect[A], f func(A) Effect[B]) Effect[B] {
	return FromNode[B](node.FlatMap{
		Source: e.n,
		K: func(v node.Erased) node.Node {
			return f(toTyped[A](v)).n
		},
	})
}

// Tap runs f on the success value for its effect, yielding the original
// value.
func Tap[A, B any](e Effect[A], f func(A) Effect[B]) Effect[A] {
	return FlatMap(e, func(a A) Effect[A] {
		return As(f(a), a)
	})
}

// As replaces the success value.
func As[A, B any](e Effect[A], b B) Effect[B] {
	return Map(e, func(A) B { return b })
}

// Pair is a two-element tuple for Zip results.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Zip runs a then b sequentially, tupling the results. Fails fast: b
// never runs if a fails.
func Zip[A, B any](a Effect[A], b Effect[B]) Effect[Pair[A, B]] {
	return ZipWith(a, b, func(av A, bv B) Pair[A, B] {
		return Pair[A, B]{First: av, Second: bv}
	})
}

// ZipWith runs a then b sequentially and combines the results.
func ZipWith[A, B, C any](a Effect[A], b Effect[B], f func(A, B) C) Effect[C] {
	return FlatMap(a, func(av A) Effect[C] {
		return Map(b, func(bv B) C { return f(av, bv) })
	})
}

// All runs the effects left to right, failing fast on the first failure
// and tupling successes in input order.
func All[A any](effects []Effect[A]) Effect[[]A] {
	return Suspend(func() Effect[[]A] {
		acc := make([]A, 0, len(effects))
		var step func(i int) Effect[[]A]
		step = func(i int) Effect[[]A] {
			if i == len(effects) {
				return Succeed(acc)
			}
			return FlatMap(effects[i], func(a A) Effect[[]A] {
				acc = append(acc, a)
				return step(i + 1)
			})
		}
		return step(0)
	})
}

// MatchCause branches on the outcome of e with full cause visibility,
// including defects and interruptions. Exactly one branch runs.
func MatchCause[A, B any](
	e Effect[A],
	onSuccess func(A) Effect[B],
	onFailure func(*cause.Cause) Effect[B],
) Effect[B] {
	return FromNode[B](node.Fold{
		Source:    e.n,
		OnSuccess: func(v node.Erased) node.Node { return onSuccess(toTyped[A](v)).n },
		OnFailure: func(c *cause.Cause) node.Node { return onFailure(c).n },
	})
}

// CatchAll recovers from expected failures. Defects and interruptions
// are not recoverable here and propagate unchanged.
func CatchAll[A any](e Effect[A], h func(error) Effect[A]) Effect[A] {
	return MatchCause(e, Succeed, func(c *cause.Cause) Effect[A] {
		if c.IsFailureOnly() {
			if err := c.FirstFailure(); err != nil {
				return h(err)
			}
		}
		return FailCause[A](c)
	})
}

// MapError transforms expected failures, leaving defects and
// interruptions untouched.
func MapError[A any](e Effect[A], f func(error) error) Effect[A] {
	return CatchAll(e, func(err error) Effect[A] {
		return Fail[A](f(err))
	})
}

// MapBoth transforms both channels at once.
func MapBoth[A, B any](e Effect[A], onErr func(error) error, onOK func(A) B) Effect[B] {
	return Map(MapError(e, onErr), onOK)
}
