// Package runtime bundles a default service context, fiber refs and
// runtime flags, and exposes the entry points that create a root fiber
// and drive it to completion.
//
// There is no global default runtime: construct one explicitly, pass it
// by reference, and tear it down with Shutdown, which closes the root
// scope and stops the scheduler. Typical lifecycle is one Runtime per
// process, constructed at start.
package runtime

import (
	"go.uber.org/zap"

	"github.com/on-the-ground/weft/effect"
	"github.com/on-the-ground/weft/exit"
	"github.com/on-the-ground/weft/fiber"
	"github.com/on-the-ground/weft/fiberref"
	"github.com/on-the-ground/weft/internal/helper"
	"github.com/on-the-ground/weft/internal/node"
	"github.com/on-the-ground/weft/scope"
	"github.com/on-the-ground/weft/services"
)

const (
	defaultWorkers    = 4
	defaultQueueDepth = 256
)

// Runtime is an explicitly constructed execution environment.
type Runtime struct {
	svc       *services.Context
	refs      *fiberref.Refs
	flags     fiber.Flags
	sched     *fiber.Scheduler
	logger    *zap.Logger
	rootScope *scope.Scope
	workers   int
	depth     int
}

// Option configures a Runtime under construction.
type Option func(*Runtime)

// WithServices sets the default service context root fibers run under.
func WithServices(ctx *services.Context) Option {
	return func(r *Runtime) { r.svc = ctx }
}

// WithFlags overrides the default runtime flags.
func WithFlags(flags fiber.Flags) Option {
	return func(r *Runtime) { r.flags = flags }
}

// WithLogger injects the logger used by the scheduler and fibers for
// lifecycle debug logs.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runtime) { r.logger = logger }
}

// WithFiberRefs sets the initial ref snapshot template; each root fiber
// forks it.
func WithFiberRefs(refs *fiberref.Refs) Option {
	return func(r *Runtime) { r.refs = refs }
}

// WithWorkers sets the scheduler pool size.
func WithWorkers(n int) Option {
	return func(r *Runtime) { r.workers = n }
}

// New constructs a runtime and starts its scheduler pool.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		svc:       services.Empty(),
		refs:      fiberref.Make(),
		flags:     fiber.DefaultFlags,
		logger:    zap.NewNop(),
		rootScope: scope.Make(),
		workers:   defaultWorkers,
		depth:     defaultQueueDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.sched = fiber.NewScheduler(r.workers, r.depth, r.logger)
	r.logger.Debug("runtime constructed", zap.Int("workers", r.workers))
	return r
}

// Services returns the runtime's default service context.
func (r *Runtime) Services() *services.Context { return r.svc }

// RootScope returns the scope tied to the runtime's lifetime. Resources
// acquired against it are released by Shutdown.
func (r *Runtime) RootScope() *scope.Scope { return r.rootScope }

// Derive returns a runtime sharing this one's scheduler, flags and
// logger, with ctx as its default service context.
func (r *Runtime) Derive(ctx *services.Context) *Runtime {
	next := *r
	next.svc = ctx
	return &next
}

// Shutdown closes the root scope, releasing every resource acquired
// against it, then stops the scheduler. Returns the folded finalizer
// failure, if any.
func (r *Runtime) Shutdown() error {
	closed := r.rootScope.Close(exit.Succeed[any](nil))
	r.sched.Stop()
	r.logger.Debug("runtime shut down", zap.Bool("clean", closed.IsSuccess()))
	if closed.IsFailure() {
		return closed.Cause()
	}
	return nil
}

func (r *Runtime) newRoot(n node.Node) *fiber.Fiber {
	return fiber.New(r.sched, n, fiber.Options{
		Services: r.svc,
		Refs:     r.refs.Fork(),
		Flags:    r.flags,
		Logger:   r.logger,
	})
}

// RunSync drives e to completion on the calling goroutine and returns
// the success value, or the full Cause as the error. Forked children
// still run on the scheduler pool. No failure is ever dropped: a failed
// or interrupted effect always surfaces its cause here.
func RunSync[A any](r *Runtime, e effect.Effect[A]) (A, error) {
	f := r.newRoot(effect.NodeOf(e))
	ex := f.RunInline()
	if ex.IsFailure() {
		var zero A
		return zero, ex.Cause()
	}
	return typed[A](ex.Value()), nil
}

// RunAsync starts e on a new root fiber and returns a buffered channel
// that receives the terminal Exit exactly once. This is the promise
// analogue: a failed effect rejects with its Cause inside the Exit.
func RunAsync[A any](r *Runtime, e effect.Effect[A]) <-chan exit.Exit[A] {
	ch := make(chan exit.Exit[A], 1)
	f := RunFork(r, e)
	f.OnDone(func(ex exit.Exit[any]) {
		if ex.IsFailure() {
			ch <- exit.Fail[A](ex.Cause())
		} else {
			ch <- exit.Succeed(typed[A](ex.Value()))
		}
		close(ch)
	})
	return ch
}

// RunFork starts e on a new root fiber and returns the handle without
// blocking.
func RunFork[A any](r *Runtime, e effect.Effect[A]) *fiber.Fiber {
	f := r.newRoot(effect.NodeOf(e))
	f.Start()
	return f
}

func typed[A any](raw any) A {
	if raw == nil {
		var zero A
		return zero
	}
	return helper.As[A](raw)
}
