// Package fiberref provides per-fiber mutable state cells.
//
// A Ref declares a named cell with an initial value, a fork rule (how a
// child fiber derives its starting value from the parent's) and an
// optional join rule. Each fiber owns a private Refs snapshot; mutations
// stay local to the owning fiber. Child values propagate back to the
// parent only for refs built WithJoin, and only when the parent awaits
// the child.
package fiberref

// Key is the erased identity of a Ref, used by the interpreter.
// The *Ref pointer is the identity.
type Key interface {
	Name() string
	initialErased() any
	forkErased(any) any
	joinErased(parent, child any) (any, bool)
}

// Ref is a typed per-fiber state cell.
type Ref[T any] struct {
	name    string
	initial T
	fork    func(T) T
	join    func(parent, child T) T
}

// Option configures a Ref.
type Option[T any] func(*Ref[T])

// WithFork overrides the fork rule. The default copies the parent's
// current value.
func WithFork[T any](fork func(T) T) Option[T] {
	return func(r *Ref[T]) { r.fork = fork }
}

// WithJoin marks the ref for child-to-parent propagation: when a parent
// awaits a child, the parent's value becomes join(parent, child).
func WithJoin[T any](join func(parent, child T) T) Option[T] {
	return func(r *Ref[T]) { r.join = join }
}

// New declares a ref. Share the returned pointer; it is the identity.
func New[T any](name string, initial T, opts ...Option[T]) *Ref[T] {
	r := &Ref[T]{
		name:    name,
		initial: initial,
		fork:    func(v T) T { return v },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Ref[T]) Name() string      { return r.name }
func (r *Ref[T]) initialErased() any { return r.initial }

func (r *Ref[T]) forkErased(v any) any { return r.fork(v.(T)) }

func (r *Ref[T]) joinErased(parent, child any) (any, bool) {
	if r.join == nil {
		return parent, false
	}
	return r.join(parent.(T), child.(T)), true
}

// Refs is one fiber's private snapshot. It is owned by exactly one
// fiber at a time and is never shared, so no synchronization is needed.
type Refs struct {
	entries map[Key]any
}

// Make returns an empty snapshot.
func Make() *Refs {
	return &Refs{entries: map[Key]any{}}
}

// GetErased returns the current erased value of k, falling back to the
// ref's initial value without recording it.
func (r *Refs) GetErased(k Key) any {
	if v, ok := r.entries[k]; ok {
		return v
	}
	return k.initialErased()
}

// SetErased records a new value for k in this snapshot only.
func (r *Refs) SetErased(k Key, v any) {
	r.entries[k] = v
}

// Get returns the snapshot's current value of ref.
func Get[T any](refs *Refs, ref *Ref[T]) T {
	return refs.GetErased(ref).(T)
}

// Set updates the snapshot's value of ref.
func Set[T any](refs *Refs, ref *Ref[T], v T) {
	refs.SetErased(ref, v)
}

// Fork derives a child snapshot by applying each ref's fork rule to the
// parent's current values.
func (r *Refs) Fork() *Refs {
	child := &Refs{entries: make(map[Key]any, len(r.entries))}
	for k, v := range r.entries {
		child.entries[k] = k.forkErased(v)
	}
	return child
}

// Join folds a completed child's snapshot back into this one. Only refs
// declared WithJoin propagate; everything else keeps the parent value.
func (r *Refs) Join(child *Refs) {
	for k, cv := range child.entries {
		pv := r.GetErased(k)
		if next, propagate := k.joinErased(pv, cv); propagate {
			r.entries[k] = next
		}
	}
}
