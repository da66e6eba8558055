package effect

import (
	"github.com/on-the-ground/weft/cause"
	"github.com/on-the-ground/weft/fiberref"
	"github.com/on-the-ground/weft/internal/node"
)

// GetRef reads the current fiber's value of ref.
func GetRef[T any](ref *fiberref.Ref[T]) Effect[T] {
	return FromNode[T](node.Stateful{F: func(refs *fiberref.Refs) node.Node {
		return node.Succeed{Value: fiberref.Get(refs, ref)}
	}})
}

// SetRef writes the current fiber's value of ref. The write stays local
// to this fiber's snapshot; children forked afterwards derive their
// value from it via the ref's fork rule.
func SetRef[T any](ref *fiberref.Ref[T], v T) Effect[struct{}] {
	return FromNode[struct{}](node.Stateful{F: func(refs *fiberref.Refs) node.Node {
		fiberref.Set(refs, ref, v)
		return node.Succeed{Value: struct{}{}}
	}})
}

// UpdateRef applies f to the current value of ref.
func UpdateRef[T any](ref *fiberref.Ref[T], f func(T) T) Effect[T] {
	return FromNode[T](node.Stateful{F: func(refs *fiberref.Refs) node.Node {
		next := f(fiberref.Get(refs, ref))
		fiberref.Set(refs, ref, next)
		return node.Succeed{Value: next}
	}})
}

// Locally runs e with ref set to v, restoring the previous value
// afterwards regardless of e's outcome.
func Locally[T, A any](ref *fiberref.Ref[T], v T, e Effect[A]) Effect[A] {
	return FlatMap(GetRef(ref), func(prev T) Effect[A] {
		body := FlatMap(SetRef(ref, v), func(struct{}) Effect[A] { return e })
		return MatchCause(body,
			func(a A) Effect[A] {
				return As(SetRef(ref, prev), a)
			},
			func(c *cause.Cause) Effect[A] {
				return FlatMap(SetRef(ref, prev), func(struct{}) Effect[A] {
					return FailCause[A](c)
				})
			},
		)
	})
}
