// Package services provides the immutable, Tag-keyed service registry
// effects draw their requirements from.
//
// A Tag is an identity: two tags created by separate NewTag calls are
// distinct keys even when their labels match. The registry stores values
// type-erased and recovers static types through the generic accessors,
// so no reflection is involved.
package services

import (
	"fmt"
)

// ErrServiceNotFound is wrapped by every failed lookup.
var ErrServiceNotFound = fmt.Errorf("service not found")

// ServiceNotFoundError reports which tag was missing. Looking up an
// unregistered tag is a programming error surfaced at the boundary,
// never silently defaulted.
type ServiceNotFoundError struct {
	Label string
}

func (e *ServiceNotFoundError) Error() string {
	return fmt.Sprintf("service not found: %s", e.Label)
}

func (e *ServiceNotFoundError) Unwrap() error { return ErrServiceNotFound }

// key is the erased view of a Tag used as a map key. Pointer identity
// of the Tag value is the key; the label is for diagnostics only.
type key interface {
	Label() string
}

// Tag identifies a service of type T. Create one per service with NewTag
// and share the pointer; the pointer is the identity.
type Tag[T any] struct {
	label string
}

// NewTag allocates a fresh service identity with a diagnostic label.
func NewTag[T any](label string) *Tag[T] {
	return &Tag[T]{label: label}
}

func (t *Tag[T]) Label() string { return t.label }

// Context is an immutable registry from Tag identity to service value.
// All operations return a new Context; an existing one is never patched
// in place, so a Context handed to a running fiber is safe to share.
type Context struct {
	entries map[key]any
}

var empty = &Context{entries: map[key]any{}}

// Empty returns the empty registry.
func Empty() *Context { return empty }

// Add returns a new Context with the tag bound to value. Binding an
// already-present tag replaces the previous value in the copy.
func Add[T any](c *Context, tag *Tag[T], value T) *Context {
	next := make(map[key]any, len(c.entries)+1)
	for k, v := range c.entries {
		next[k] = v
	}
	next[tag] = value
	return &Context{entries: next}
}

// Get returns the value bound to tag, or a ServiceNotFoundError.
func Get[T any](c *Context, tag *Tag[T]) (T, error) {
	raw, ok := c.entries[tag]
	if !ok {
		var zero T
		return zero, &ServiceNotFoundError{Label: tag.label}
	}
	return raw.(T), nil
}

// GetOption returns the value bound to tag and whether it was present.
func GetOption[T any](c *Context, tag *Tag[T]) (T, bool) {
	raw, ok := c.entries[tag]
	if !ok {
		var zero T
		return zero, false
	}
	return raw.(T), true
}

// Has reports whether the tag is bound, without recovering the type.
func (c *Context) Has(tag interface{ Label() string }) bool {
	k, ok := tag.(key)
	if !ok {
		return false
	}
	_, bound := c.entries[k]
	return bound
}

// Len returns the number of bound services.
func (c *Context) Len() int { return len(c.entries) }

// Merge unions two registries. On a key collision the other (right)
// side wins.
func (c *Context) Merge(other *Context) *Context {
	if other == nil || len(other.entries) == 0 {
		return c
	}
	if len(c.entries) == 0 {
		return other
	}
	next := make(map[key]any, len(c.entries)+len(other.entries))
	for k, v := range c.entries {
		next[k] = v
	}
	for k, v := range other.entries {
		next[k] = v
	}
	return &Context{entries: next}
}
