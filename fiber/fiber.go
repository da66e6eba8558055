// Package fiber implements the execution core: lightweight,
// cooperatively scheduled units that interpret effect instruction trees.
//
// A fiber moves through Ready → Running → {Suspended, Done}. Running
// interprets nodes in a trampolined loop with an explicit continuation
// stack, so recursion-heavy effect chains never grow the call stack.
// The only suspension point is an Async node; everything else runs to
// completion on the current scheduling turn, subject to the fairness
// budget when CooperativeYielding is enabled.
package fiber

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/on-the-ground/weft/cause"
	"github.com/on-the-ground/weft/exit"
	"github.com/on-the-ground/weft/fiberid"
	"github.com/on-the-ground/weft/fiberref"
	"github.com/on-the-ground/weft/internal/node"
	"github.com/on-the-ground/weft/scope"
	"github.com/on-the-ground/weft/services"
)

const (
	statusReady int32 = iota
	statusRunning
	statusSuspended
	statusDone
)

// yieldBudget is the number of interpreted instructions a fiber may run
// before voluntarily yielding its scheduling turn.
const yieldBudget = 128

// frame is one entry of the interpreter's continuation stack.
type frame interface {
	frame()
}

// kFrame continues with a value (FlatMap).
type kFrame struct {
	k func(node.Erased) node.Node
}

// foldFrame continues on either outcome (Fold).
type foldFrame struct {
	onOK  func(node.Erased) node.Node
	onErr func(*cause.Cause) node.Node
}

// contextFrame restores the ambient service context (Provide).
type contextFrame struct {
	prev *services.Context
}

// scopeFrame restores the ambient scope (WithScope).
type scopeFrame struct {
	prev *scope.Scope
}

// maskFrame restores the interruptibility setting (Mask).
type maskFrame struct {
	prev bool
}

func (kFrame) frame()       {}
func (foldFrame) frame()    {}
func (contextFrame) frame() {}
func (scopeFrame) frame()   {}
func (maskFrame) frame()    {}

// resumption is the one-shot handle an Async node hands to its
// registration callback. Extra resume calls are ignored.
type resumption struct {
	used    atomic.Bool
	deliver func(node.Node)
}

func (r *resumption) resume(n node.Node) {
	if n == nil {
		n = node.Succeed{Value: nil}
	}
	if !r.used.CompareAndSwap(false, true) {
		return
	}
	r.deliver(n)
}

// Options describes the environment a fiber interprets under.
type Options struct {
	Services *services.Context
	Refs     *fiberref.Refs
	Flags    Flags
	Logger   *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Services == nil {
		o.Services = services.Empty()
	}
	if o.Refs == nil {
		o.Refs = fiberref.Make()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Fiber interprets one instruction tree. It owns its services context
// view, a private ref snapshot, its own scope for acquired resources,
// and the set of children it forked.
type Fiber struct {
	id     fiberid.ID
	sched  *Scheduler
	logger *zap.Logger
	flags  Flags

	// Interpreter state, touched only by the owning scheduling turn.
	curr          node.Node
	stack         []frame
	svc           *services.Context
	refs          *fiberref.Refs
	ambient       *scope.Scope
	interruptSeen bool
	synchronous   bool

	// own is the fiber's root scope, closed exactly once at the end of
	// its life; ambient starts here and may be redirected by WithScope.
	own *scope.Scope

	status        atomic.Int32
	interrupted   atomic.Bool
	interruptible atomic.Bool
	interruptCh   chan struct{}

	mu          sync.Mutex
	interrupter fiberid.ID
	pending     *resumption
	parent      *Fiber
	children    map[*Fiber]struct{}
	observers   []func(exit.Exit[any])
	isDone      bool
	exitValue   exit.Exit[any]
	done        chan struct{}
}

// New creates a root fiber for the given instruction tree. The fiber is
// Ready but not yet scheduled; call Start or RunInline.
func New(sched *Scheduler, n node.Node, opts Options) *Fiber {
	opts = opts.withDefaults()
	own := scope.Make()
	f := &Fiber{
		id:          fiberid.New(),
		sched:       sched,
		logger:      opts.Logger,
		flags:       opts.Flags,
		curr:        n,
		svc:         opts.Services,
		refs:        opts.Refs,
		own:         own,
		ambient:     own,
		interruptCh: make(chan struct{}),
		children:    map[*Fiber]struct{}{},
		done:        make(chan struct{}),
	}
	f.interruptible.Store(true)
	f.status.Store(statusReady)
	return f
}

// child creates a structured child interpreting n: it inherits the
// parent's service context, flags and logger, forks the ref snapshot,
// and gets a scope of its own.
func (f *Fiber) child(n node.Node) *Fiber {
	c := New(f.sched, n, Options{
		Services: f.svc,
		Refs:     f.refs.Fork(),
		Flags:    f.flags,
		Logger:   f.logger,
	})
	c.mu.Lock()
	c.parent = f
	c.mu.Unlock()
	return c
}

// ID returns the fiber's identity.
func (f *Fiber) ID() fiberid.ID { return f.id }

// Start enqueues the fiber on its scheduler.
func (f *Fiber) Start() {
	f.logger.Debug("fiber started", zap.String("fiber", f.id.String()))
	f.sched.Enqueue(f)
}

// RunInline drives the fiber to completion on the calling goroutine.
// Async suspensions block the caller instead of detaching; forked
// children still go through the scheduler pool.
func (f *Fiber) RunInline() exit.Exit[any] {
	f.synchronous = true
	f.run()
	return f.Wait()
}

// Wait blocks until the fiber is done and returns its exit.
func (f *Fiber) Wait() exit.Exit[any] {
	<-f.done
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exitValue
}

// OnDone registers fn to run with the fiber's exit. If the fiber is
// already done, fn runs immediately on the calling goroutine.
func (f *Fiber) OnDone(fn func(exit.Exit[any])) {
	f.mu.Lock()
	if f.isDone {
		ex := f.exitValue
		f.mu.Unlock()
		fn(ex)
		return
	}
	f.observers = append(f.observers, fn)
	f.mu.Unlock()
}

// RefsSnapshot exposes the fiber's private ref snapshot. Only safe to
// read once the fiber is done; used for join-on-await propagation.
func (f *Fiber) RefsSnapshot() *fiberref.Refs {
	return f.refs
}

// Interrupt requests interruption on behalf of the given fiber (use
// fiberid.None for external requests). The request cascades to every
// live child. It is honored at the next checkpoint outside an
// uninterruptible region; a suspended interruptible fiber is woken,
// stealing its pending resumption.
func (f *Fiber) Interrupt(by fiberid.ID) {
	if !f.interrupted.CompareAndSwap(false, true) {
		return
	}

	f.mu.Lock()
	f.interrupter = by
	children := make([]*Fiber, 0, len(f.children))
	for c := range f.children {
		children = append(children, c)
	}
	f.mu.Unlock()

	close(f.interruptCh)
	for _, c := range children {
		c.Interrupt(by)
	}

	if f.flags.Has(Interruption) && f.interruptible.Load() {
		f.stealPending()
	}
}

// stealPending wakes a parked fiber by claiming its pending resumption
// and delivering the interrupt as its next instruction. A no-op when the
// fiber is not parked or the register's own resume won the one-shot.
func (f *Fiber) stealPending() {
	f.mu.Lock()
	res := f.pending
	f.pending = nil
	f.mu.Unlock()
	if res == nil {
		return
	}
	if res.used.CompareAndSwap(false, true) {
		res.deliver(node.Fail{Cause: cause.Interrupt(f.interrupterID())})
	}
}

func (f *Fiber) interrupterID() fiberid.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interrupter
}

func (f *Fiber) addChild(c *Fiber) {
	f.mu.Lock()
	f.children[c] = struct{}{}
	f.mu.Unlock()
}

func (f *Fiber) removeChild(c *Fiber) {
	f.mu.Lock()
	delete(f.children, c)
	f.mu.Unlock()
}

// run interprets instructions until the fiber completes, suspends, or
// spends its fairness budget. Workers call it for each scheduling turn.
func (f *Fiber) run() {
	if !f.status.CompareAndSwap(statusReady, statusRunning) {
		return
	}

	budget := yieldBudget
	for {
		if f.flags.Has(Interruption) && !f.interruptSeen &&
			f.interrupted.Load() && f.interruptible.Load() {
			f.interruptSeen = true
			f.curr = node.Fail{Cause: cause.Interrupt(f.interrupterID())}
		}

		if budget <= 0 && f.flags.Has(CooperativeYielding) {
			if f.synchronous {
				budget = yieldBudget
			} else {
				f.status.Store(statusReady)
				f.sched.Enqueue(f)
				return
			}
		}
		budget--

		switch n := f.curr.(type) {
		case node.Succeed:
			if f.succeedWith(n.Value) {
				return
			}

		case node.Fail:
			if f.failWith(n.Cause) {
				return
			}

		case node.Sync:
			v, c := runThunk(n.Thunk)
			if c != nil {
				if f.failWith(c) {
					return
				}
			} else if f.succeedWith(v) {
				return
			}

		case node.Attempt:
			v, c := runAttempt(n.Thunk)
			if c != nil {
				if f.failWith(c) {
					return
				}
			} else if f.succeedWith(v) {
				return
			}

		case node.Suspend:
			f.curr = protect(n.Thunk)

		case node.FlatMap:
			f.stack = append(f.stack, kFrame{k: n.K})
			f.curr = n.Source

		case node.Fold:
			f.stack = append(f.stack, foldFrame{onOK: n.OnSuccess, onErr: n.OnFailure})
			f.curr = n.Source

		case node.Provide:
			f.stack = append(f.stack, contextFrame{prev: f.svc})
			f.svc = f.svc.Merge(n.Ctx)
			f.curr = n.Source

		case node.Access:
			svc := f.svc
			f.curr = protect(func() node.Node { return n.F(svc) })

		case node.Stateful:
			refs := f.refs
			f.curr = protect(func() node.Node { return n.F(refs) })

		case node.WithScope:
			f.stack = append(f.stack, scopeFrame{prev: f.ambient})
			f.ambient = n.Scope
			f.curr = n.Source

		case node.Mask:
			f.stack = append(f.stack, maskFrame{prev: f.interruptible.Load()})
			f.interruptible.Store(n.Interruptible)
			f.curr = n.Source

		case node.AcquireRelease:
			f.curr = f.lowerAcquireRelease(n)

		case node.Fork:
			child := f.child(n.Child)
			f.addChild(child)
			if f.interrupted.Load() {
				child.Interrupt(f.interrupterID())
			}
			child.Start()
			if f.succeedWith(child) {
				return
			}

		case node.Async:
			if f.synchronous {
				f.curr = f.awaitInline(n)
			} else {
				f.suspend(n)
				return
			}

		case node.Yield:
			f.curr = node.Succeed{Value: struct{}{}}
			if !f.synchronous {
				f.status.Store(statusReady)
				f.sched.Enqueue(f)
				return
			}

		case node.Descriptor:
			if f.succeedWith(f.id) {
				return
			}

		default:
			if f.failWith(cause.Die("fiber: unknown instruction node")) {
				return
			}
		}
	}
}

// succeedWith pops the continuation stack with a value. Returns true if
// the fiber finished.
func (f *Fiber) succeedWith(v node.Erased) bool {
	for len(f.stack) > 0 {
		top := f.stack[len(f.stack)-1]
		f.stack = f.stack[:len(f.stack)-1]
		switch fr := top.(type) {
		case kFrame:
			f.curr = protect(func() node.Node { return fr.k(v) })
			return false
		case foldFrame:
			f.curr = protect(func() node.Node { return fr.onOK(v) })
			return false
		case contextFrame:
			f.svc = fr.prev
		case scopeFrame:
			f.ambient = fr.prev
		case maskFrame:
			f.interruptible.Store(fr.prev)
		}
	}
	f.finish(exit.Succeed[any](v))
	return true
}

// failWith unwinds the continuation stack with a cause, running restores
// and skipping success continuations until a fold handles it. Returns
// true if the fiber finished.
func (f *Fiber) failWith(c *cause.Cause) bool {
	for len(f.stack) > 0 {
		top := f.stack[len(f.stack)-1]
		f.stack = f.stack[:len(f.stack)-1]
		switch fr := top.(type) {
		case kFrame:
			// Short-circuit: the continuation never observes a failure.
		case foldFrame:
			f.curr = protect(func() node.Node { return fr.onErr(c) })
			return false
		case contextFrame:
			f.svc = fr.prev
		case scopeFrame:
			f.ambient = fr.prev
		case maskFrame:
			f.interruptible.Store(fr.prev)
		}
	}
	f.finish(exit.Fail[any](c))
	return true
}

// lowerAcquireRelease expands the acquire-release primitive: acquire
// runs uninterruptibly, and the release is registered on the ambient
// scope in the same uninterruptible region, so no resource is ever
// acquired without its release being scheduled.
func (f *Fiber) lowerAcquireRelease(n node.AcquireRelease) node.Node {
	release := n.Release
	return node.Mask{
		Interruptible: false,
		Source: node.FlatMap{
			Source: n.Acquire,
			K: func(res node.Erased) node.Node {
				fin := f.releaseFinalizer(release, res)
				if err := f.ambient.AddFinalizer(fin); err != nil {
					return node.Fail{Cause: cause.Fail(err)}
				}
				return node.Succeed{Value: res}
			},
		},
	}
}

// releaseFinalizer adapts a release instruction into a scope finalizer.
// The release runs on whichever goroutine closes the scope, under the
// environment captured at acquisition time, uninterruptibly.
func (f *Fiber) releaseFinalizer(
	release func(node.Erased, exit.Exit[any]) node.Node,
	resource node.Erased,
) scope.Finalizer {
	sched := f.sched
	svc := f.svc
	refs := f.refs
	logger := f.logger
	flags := f.flags.Disable(Interruption)
	return func(ex exit.Exit[any]) error {
		runner := New(sched, release(resource, ex), Options{
			Services: svc,
			Refs:     refs.Fork(),
			Flags:    flags,
			Logger:   logger,
		})
		result := runner.RunInline()
		if result.IsFailure() {
			return result.Cause()
		}
		return nil
	}
}

// suspend parks the fiber on an Async node. The one-shot resumption
// re-enqueues it with the instruction it was resumed with.
func (f *Fiber) suspend(n node.Async) {
	res := &resumption{}
	res.deliver = func(next node.Node) {
		f.curr = next
		if f.status.CompareAndSwap(statusSuspended, statusReady) {
			f.sched.Enqueue(f)
		}
	}

	// Park before publishing the resumption, so a deliver that claims it
	// always finds the Suspended status and its CAS re-enqueues the
	// fiber. The reverse order loses the wakeup: an interrupt landing
	// between publish and park would deliver against a still-Running
	// status and the fiber would never become runnable again.
	f.status.Store(statusSuspended)
	f.mu.Lock()
	f.pending = res
	f.mu.Unlock()

	// An interrupt that fired between the park and the publish found no
	// resumption to steal; claim it on its behalf.
	if f.interrupted.Load() && f.flags.Has(Interruption) && f.interruptible.Load() {
		f.stealPending()
	}

	if c := runRegister(n.Register, res.resume); c != nil {
		res.resume(node.Fail{Cause: c})
	}
}

// awaitInline handles an Async node in synchronous mode: the calling
// goroutine blocks until resumed, or until interrupted when the fiber
// is interruptible.
func (f *Fiber) awaitInline(n node.Async) node.Node {
	ch := make(chan node.Node, 1)
	res := &resumption{deliver: func(next node.Node) { ch <- next }}

	if c := runRegister(n.Register, res.resume); c != nil {
		res.resume(node.Fail{Cause: c})
	}

	if f.flags.Has(Interruption) && f.interruptible.Load() {
		select {
		case next := <-ch:
			return next
		case <-f.interruptCh:
			if res.used.CompareAndSwap(false, true) {
				f.interruptSeen = true
				return node.Fail{Cause: cause.Interrupt(f.interrupterID())}
			}
			return <-ch
		}
	}
	return <-ch
}

// finish closes the fiber's own scope with the terminal exit (folding
// finalizer failures into the cause), records the result, and notifies
// observers and the parent.
func (f *Fiber) finish(ex exit.Exit[any]) {
	closed := f.own.Close(ex)

	f.mu.Lock()
	f.exitValue = closed
	f.isDone = true
	observers := f.observers
	f.observers = nil
	parent := f.parent
	f.parent = nil
	f.mu.Unlock()

	f.status.Store(statusDone)
	close(f.done)

	if parent != nil {
		parent.removeChild(f)
	}
	for _, ob := range observers {
		ob(closed)
	}
	f.logger.Debug("fiber done",
		zap.String("fiber", f.id.String()),
		zap.Bool("success", closed.IsSuccess()),
	)
}

func runThunk(thunk func() node.Erased) (v node.Erased, c *cause.Cause) {
	defer func() {
		if r := recover(); r != nil {
			c = cause.Die(r)
		}
	}()
	return thunk(), nil
}

func runAttempt(thunk func() (node.Erased, error)) (v node.Erased, c *cause.Cause) {
	defer func() {
		if r := recover(); r != nil {
			c = cause.Die(r)
		}
	}()
	v, err := thunk()
	if err != nil {
		return nil, cause.Fail(err)
	}
	return v, nil
}

func runRegister(register func(func(node.Node)), resume func(node.Node)) (c *cause.Cause) {
	defer func() {
		if r := recover(); r != nil {
			c = cause.Die(r)
		}
	}()
	register(resume)
	return nil
}

// protect runs a node-producing closure, converting a panic into a
// defect instruction instead of unwinding the worker's stack.
func protect(fn func() node.Node) (n node.Node) {
	defer func() {
		if r := recover(); r != nil {
			n = node.Fail{Cause: cause.Die(r)}
		}
	}()
	return fn()
}
