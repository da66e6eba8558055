package effect

import (
	"github.com/on-the-ground/weft/cause"
	"github.com/on-the-ground/weft/internal/node"
	"github.com/on-the-ground/weft/services"
)

// Service looks up the tag in the ambient service context, failing with
// ServiceNotFound when the tag is unbound.
func Service[T any](tag *services.Tag[T]) Effect[T] {
	return FromNode[T](node.Access{F: func(c *services.Context) node.Node {
		v, err := services.Get(c, tag)
		if err != nil {
			return node.Fail{Cause: cause.Fail(err)}
		}
		return node.Succeed{Value: v}
	}})
}

// ServiceOption looks up the tag without failing, yielding the value
// and whether it was bound.
func ServiceOption[T any](tag *services.Tag[T]) Effect[Pair[T, bool]] {
	return Access(func(c *services.Context) Effect[Pair[T, bool]] {
		v, ok := services.GetOption(c, tag)
		return Succeed(Pair[T, bool]{First: v, Second: ok})
	})
}

// Access builds an effect from the ambient service context.
func Access[A any](f func(*services.Context) Effect[A]) Effect[A] {
	return FromNode[A](node.Access{F: func(c *services.Context) node.Node {
		return f(c).n
	}})
}

// Provide runs e with ctx merged over the ambient service context,
// narrowing the residual requirements. Bindings in ctx win on
// collision; the previous context is restored afterwards.
func Provide[A any](e Effect[A], ctx *services.Context) Effect[A] {
	return FromNode[A](node.Provide{Source: e.n, Ctx: ctx})
}

// ProvideService is Provide for a single service.
func ProvideService[A, T any](e Effect[A], tag *services.Tag[T], value T) Effect[A] {
	return Provide(e, services.Add(services.Empty(), tag, value))
}
