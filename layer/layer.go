// Package layer provides composable blueprints for constructing
// service contexts, including any resources the services need.
//
// A Layer is a function from the ambient service context (its input
// requirement) and a scope (where its resources are registered) to an
// effect producing an output context. Layers are assembled with Merge
// and Provide before anything runs; building happens once, when the
// assembled blueprint is submitted to a runtime.
package layer

import (
	"github.com/on-the-ground/weft/cause"
	"github.com/on-the-ground/weft/effect"
	"github.com/on-the-ground/weft/exit"
	"github.com/on-the-ground/weft/runtime"
	"github.com/on-the-ground/weft/scope"
	"github.com/on-the-ground/weft/services"
)

// Layer is an immutable blueprint producing a service context.
type Layer struct {
	build func(s *scope.Scope) effect.Effect[*services.Context]
}

// FromValue is a layer with no input requirement that yields a
// one-entry context synchronously.
func FromValue[T any](tag *services.Tag[T], value T) Layer {
	return Layer{build: func(*scope.Scope) effect.Effect[*services.Context] {
		return effect.Succeed(services.Add(services.Empty(), tag, value))
	}}
}

// FromEffect derives the service value by running an effect, which may
// itself depend on other services through the ambient context. Any
// resources the effect acquires are tied to the build scope and live
// until that scope closes.
func FromEffect[T any](tag *services.Tag[T], e effect.Effect[T]) Layer {
	return Layer{build: func(s *scope.Scope) effect.Effect[*services.Context] {
		return effect.Map(effect.Extend(e, s), func(v T) *services.Context {
			return services.Add(services.Empty(), tag, v)
		})
	}}
}

// Merge unions two layers: both are built against the same scope and
// the output contexts are unioned (b wins on a tag collision). The
// input requirement is the union of both inputs. Build order between
// the two is an implementation detail; layers are not memoized, so a
// layer appearing in both operands is built twice.
func Merge(a, b Layer) Layer {
	return Layer{build: func(s *scope.Scope) effect.Effect[*services.Context] {
		return effect.ZipWith(a.build(s), b.build(s),
			func(ca, cb *services.Context) *services.Context {
				return ca.Merge(cb)
			})
	}}
}

// Provide composes sequentially: upstream's context is built first and
// supplied as input to downstream. The result yields downstream's
// output only; upstream's services are not visible in it.
func Provide(upstream, downstream Layer) Layer {
	return Layer{build: func(s *scope.Scope) effect.Effect[*services.Context] {
		return effect.FlatMap(upstream.build(s), func(up *services.Context) effect.Effect[*services.Context] {
			return effect.Provide(downstream.build(s), up)
		})
	}}
}

// ProvideMerge is Provide, but the result unions upstream's output with
// downstream's instead of discarding it.
func ProvideMerge(upstream, downstream Layer) Layer {
	return Layer{build: func(s *scope.Scope) effect.Effect[*services.Context] {
		return effect.FlatMap(upstream.build(s), func(up *services.Context) effect.Effect[*services.Context] {
			return effect.Map(
				effect.Provide(downstream.build(s), up),
				func(down *services.Context) *services.Context {
					return up.Merge(down)
				})
		})
	}}
}

// Build returns the effect that constructs the layer's context, with
// every resource acquisition registered on s.
func Build(l Layer, s *scope.Scope) effect.Effect[*services.Context] {
	return l.build(s)
}

// ToRuntime builds the layer under a dedicated scope and returns a
// runtime whose default context is the constructed one, plus the scope.
// The caller must close the scope to release every resource acquired
// anywhere in the layer graph:
//
//	rt, s, err := layer.ToRuntime(l, base)
//	defer s.Close(exit.Succeed[any](nil))
//
// On a build failure the scope is closed before returning, so resources
// acquired by the partial build are already released.
func ToRuntime(l Layer, base *runtime.Runtime) (*runtime.Runtime, *scope.Scope, error) {
	s := scope.Make()
	ctx, err := runtime.RunSync(base, Build(l, s))
	if err != nil {
		c, ok := err.(*cause.Cause)
		if !ok {
			c = cause.Fail(err)
		}
		s.Close(exit.Fail[any](c))
		return nil, nil, err
	}
	return base.Derive(base.Services().Merge(ctx)), s, nil
}
