package effect

import (
	"time"

	"github.com/on-the-ground/weft/cause"
	"github.com/on-the-ground/weft/exit"
	"github.com/on-the-ground/weft/fiber"
	"github.com/on-the-ground/weft/fiberid"
	"github.com/on-the-ground/weft/fiberref"
	"github.com/on-the-ground/weft/internal/node"
)

// Fork starts e on a new child fiber and immediately yields the handle,
// without waiting for the child. The child inherits the parent's
// service context and flags and forks its ref snapshot; interrupting
// the parent interrupts the child.
func Fork[A any](e Effect[A]) Effect[*fiber.Fiber] {
	return FromNode[*fiber.Fiber](node.Fork{Child: e.n})
}

// Await suspends until the fiber completes and yields its exit without
// failing. Refs the child declared WithJoin are folded back into the
// awaiting fiber's snapshot.
func Await[A any](fb *fiber.Fiber) Effect[exit.Exit[A]] {
	awaited := Async[exit.Exit[A]](func(resume func(Effect[exit.Exit[A]])) {
		fb.OnDone(func(ex exit.Exit[any]) {
			if ex.IsFailure() {
				resume(Succeed(exit.Fail[A](ex.Cause())))
				return
			}
			resume(Succeed(exit.Succeed(toTyped[A](ex.Value()))))
		})
	})
	return FlatMap(awaited, func(ex exit.Exit[A]) Effect[exit.Exit[A]] {
		return FromNode[exit.Exit[A]](node.Stateful{F: func(refs *fiberref.Refs) node.Node {
			refs.Join(fb.RefsSnapshot())
			return node.Succeed{Value: ex}
		}})
	})
}

// Join awaits the fiber and adopts its outcome: the child's success
// value becomes this effect's value and the child's cause becomes this
// effect's cause.
func Join[A any](fb *fiber.Fiber) Effect[A] {
	return FlatMap(Await[A](fb), func(ex exit.Exit[A]) Effect[A] {
		if ex.IsFailure() {
			return FailCause[A](ex.Cause())
		}
		return Succeed(ex.Value())
	})
}

// InterruptFiber requests interruption of the fiber on behalf of the
// calling fiber and waits until it has fully wound down, yielding its
// exit.
func InterruptFiber[A any](fb *fiber.Fiber) Effect[exit.Exit[A]] {
	return FlatMap(FiberID(), func(self fiberid.ID) Effect[exit.Exit[A]] {
		return FlatMap(Sync(func() struct{} {
			fb.Interrupt(self)
			return struct{}{}
		}), func(struct{}) Effect[exit.Exit[A]] {
			return Await[A](fb)
		})
	})
}

// AllConcurrent runs the effects concurrently, at most concurrency at a
// time (<= 0 means unbounded), yielding successes in input order. There
// is no ordering guarantee among siblings, but each sibling's own
// internal ordering holds. Every concurrent failure is preserved: the
// combined cause is the Parallel composition of all failed exits.
func AllConcurrent[A any](effects []Effect[A], concurrency int) Effect[[]A] {
	return Suspend(func() Effect[[]A] {
		n := len(effects)
		if n == 0 {
			return Succeed([]A{})
		}
		buckets := concurrency
		if buckets <= 0 || buckets > n {
			buckets = n
		}

		// Each bucket runs its share sequentially; buckets run
		// concurrently. Every index is written by exactly one fiber and
		// read only after all children are joined.
		results := make([]A, n)
		share := make([][]int, buckets)
		for i := 0; i < n; i++ {
			b := i % buckets
			share[b] = append(share[b], i)
		}

		bucketEffect := func(indexes []int) Effect[struct{}] {
			var step func(j int) Effect[struct{}]
			step = func(j int) Effect[struct{}] {
				if j == len(indexes) {
					return Succeed(struct{}{})
				}
				idx := indexes[j]
				return FlatMap(effects[idx], func(a A) Effect[struct{}] {
					results[idx] = a
					return step(j + 1)
				})
			}
			return step(0)
		}

		forks := make([]Effect[*fiber.Fiber], buckets)
		for b := 0; b < buckets; b++ {
			forks[b] = Fork(bucketEffect(share[b]))
		}

		return FlatMap(All(forks), func(fibers []*fiber.Fiber) Effect[[]A] {
			var collect func(i int, combined *cause.Cause) Effect[[]A]
			collect = func(i int, combined *cause.Cause) Effect[[]A] {
				if i == len(fibers) {
					if combined != nil {
						return FailCause[[]A](combined)
					}
					return Succeed(results)
				}
				return FlatMap(Await[struct{}](fibers[i]), func(ex exit.Exit[struct{}]) Effect[[]A] {
					return collect(i+1, cause.Parallel(combined, ex.Cause()))
				})
			}
			return collect(0, nil)
		})
	})
}

// Sleep suspends the fiber for at least d.
func Sleep(d time.Duration) Effect[struct{}] {
	return Async[struct{}](func(resume func(Effect[struct{}])) {
		time.AfterFunc(d, func() {
			resume(Succeed(struct{}{}))
		})
	})
}

// YieldNow ends the current scheduling turn, letting other ready fibers
// run before this one continues.
func YieldNow() Effect[struct{}] {
	return FromNode[struct{}](node.Yield{})
}

// FiberID yields the interpreting fiber's identity.
func FiberID() Effect[fiberid.ID] {
	return FromNode[fiberid.ID](node.Descriptor{})
}
