// Package node defines the closed set of primitive instructions the
// fiber interpreter understands. The public effect package lowers every
// combinator to these nodes; the interpreter's state machine never has
// to know about derived combinators.
//
// Values flow through the tree type-erased (Erased = any, recovered at
// package boundaries), which keeps the evaluation loop monomorphic.
package node

import (
	"github.com/on-the-ground/weft/cause"
	"github.com/on-the-ground/weft/exit"
	"github.com/on-the-ground/weft/fiberref"
	"github.com/on-the-ground/weft/scope"
	"github.com/on-the-ground/weft/services"
)

// Erased marks a type-erased value in the instruction tree.
type Erased = any

// Node is the marker interface for primitive instructions.
// Constructing a node performs no side effect; evaluation happens only
// when a fiber interprets it.
type Node interface {
	node()
}

// Succeed completes immediately with a value.
type Succeed struct {
	Value Erased
}

// Fail completes immediately with a cause.
type Fail struct {
	Cause *cause.Cause
}

// Sync runs a thunk on the interpreting fiber. The thunk must not
// panic; a panic is captured as a defect (Die), not a typed failure.
type Sync struct {
	Thunk func() Erased
}

// Attempt runs a fallible thunk. A returned error becomes a typed
// failure; a panic still becomes a defect.
type Attempt struct {
	Thunk func() (Erased, error)
}

// Suspend defers construction of the tree itself until evaluation,
// guaranteeing per-evaluation freshness of captured state.
type Suspend struct {
	Thunk func() Node
}

// Async suspends the fiber until resume is invoked with the node to
// continue with. Resume must be called exactly once; extra calls are
// ignored (one-shot).
type Async struct {
	Register func(resume func(Node))
}

// FlatMap sequences K after Source. K never runs if Source fails.
type FlatMap struct {
	Source Node
	K      func(Erased) Node
}

// Fold branches on Source's outcome. Exactly one branch runs.
type Fold struct {
	Source    Node
	OnSuccess func(Erased) Node
	OnFailure func(*cause.Cause) Node
}

// Fork starts Child on a new fiber, registered as a structured child of
// the current one. Completes immediately with the child handle.
type Fork struct {
	Child Node
}

// Provide runs Source with Ctx merged over the ambient service context,
// restoring the previous context afterwards.
type Provide struct {
	Source Node
	Ctx    *services.Context
}

// Access builds the next node from the ambient service context.
type Access struct {
	F func(*services.Context) Node
}

// AcquireRelease runs Acquire uninterruptibly and, once it completes,
// registers Release as a finalizer on the ambient scope before yielding
// the acquired value.
type AcquireRelease struct {
	Acquire Node
	Release func(resource Erased, ex exit.Exit[any]) Node
}

// WithScope runs Source with Scope as the ambient scope, restoring the
// previous ambient scope afterwards. This is how a resource is extended
// into a longer-lived scope.
type WithScope struct {
	Source Node
	Scope  *scope.Scope
}

// Mask runs Source with interruptibility forced to Interruptible,
// restoring the surrounding setting afterwards.
type Mask struct {
	Source        Node
	Interruptible bool
}

// Stateful builds the next node from the interpreting fiber's private
// ref snapshot. Ref reads, writes and join-on-await all lower to this.
type Stateful struct {
	F func(*fiberref.Refs) Node
}

// Yield re-enqueues the fiber, giving other ready fibers a turn.
type Yield struct{}

// Descriptor completes with the interpreting fiber's fiberid.ID.
type Descriptor struct{}

func (Succeed) node()        {}
func (Fail) node()           {}
func (Sync) node()           {}
func (Attempt) node()        {}
func (Suspend) node()        {}
func (Async) node()          {}
func (FlatMap) node()        {}
func (Fold) node()           {}
func (Fork) node()           {}
func (Provide) node()        {}
func (Access) node()         {}
func (AcquireRelease) node() {}
func (WithScope) node()      {}
func (Mask) node()           {}
func (Stateful) node()       {}
func (Yield) node()          {}
func (Descriptor) node()     {}
