package effect

import (
	"github.com/on-the-ground/weft/cause"
	"github.com/on-the-ground/weft/exit"
	"github.com/on-the-ground/weft/internal/node"
	"github.com/on-the-ground/weft/scope"
)

// AcquireRelease runs acquire uninterruptibly and registers release as
// a finalizer on the ambient scope before yielding the resource. If
// interruption is requested mid-acquire it is deferred until acquire
// completes, so no resource is acquired without its release scheduled.
// If acquire fails, release never runs.
func AcquireRelease[A any](
	acquire Effect[A],
	release func(resource A, ex exit.Exit[any]) Effect[struct{}],
) Effect[A] {
	return FromNode[A](node.AcquireRelease{
		Acquire: acquire.n,
		Release: func(res node.Erased, ex exit.Exit[any]) node.Node {
			return release(toTyped[A](res), ex).n
		},
	})
}

// AddFinalizer registers fin on the ambient scope. It runs when the
// scope closes, with the exit that closed it.
func AddFinalizer(fin func(ex exit.Exit[any]) Effect[struct{}]) Effect[struct{}] {
	return AcquireRelease(
		Succeed(struct{}{}),
		func(_ struct{}, ex exit.Exit[any]) Effect[struct{}] {
			return fin(ex)
		},
	)
}

// Extend runs e with s as the ambient scope, so resources e acquires
// are released when s closes rather than at e's own completion point.
// The previous ambient scope is restored afterwards.
func Extend[A any](e Effect[A], s *scope.Scope) Effect[A] {
	return FromNode[A](node.WithScope{Source: e.n, Scope: s})
}

// AcquireUseRelease is the self-contained bracket: it opens an implicit
// scope, acquires, runs use, and always closes the scope, so release
// runs exactly once even if use fails or is interrupted. If acquire
// itself fails, release never runs.
func AcquireUseRelease[A, B any](
	acquire Effect[A],
	use func(A) Effect[B],
	release func(resource A, ex exit.Exit[any]) Effect[struct{}],
) Effect[B] {
	return Suspend(func() Effect[B] {
		s := scope.Make()
		body := Extend(FlatMap(AcquireRelease(acquire, release), use), s)
		return MatchCause(body,
			func(b B) Effect[B] {
				return FlatMap(closeScope(s, exit.Succeed[any](b)), func(closed exit.Exit[any]) Effect[B] {
					if closed.IsFailure() {
						return FailCause[B](closed.Cause())
					}
					return Succeed(b)
				})
			},
			func(c *cause.Cause) Effect[B] {
				return FlatMap(closeScope(s, exit.Fail[any](c)), func(closed exit.Exit[any]) Effect[B] {
					return FailCause[B](closed.Cause())
				})
			},
		)
	})
}

// closeScope closes s with the given exit, uninterruptibly, yielding
// the folded result.
func closeScope(s *scope.Scope, ex exit.Exit[any]) Effect[exit.Exit[any]] {
	return Uninterruptible(Sync(func() exit.Exit[any] {
		return s.Close(ex)
	}))
}

// Uninterruptible runs e with interruption masked. Interrupt requests
// arriving during e are deferred to the next checkpoint after it.
func Uninterruptible[A any](e Effect[A]) Effect[A] {
	return FromNode[A](node.Mask{Source: e.n, Interruptible: false})
}

// Interruptible restores interruptibility inside an uninterruptible
// region.
func Interruptible[A any](e Effect[A]) Effect[A] {
	return FromNode[A](node.Mask{Source: e.n, Interruptible: true})
}
