// Package registry keeps track of the live panels of every resource.
//
// A Registry never owns its panels: it only reacts to their disposal
// notifications and never disposes them itself. It is not safe for concurrent
// use; the host confines it to the event loop.
package registry

import (
	"iter"
	"slices"
)

// Handle is the view of a panel the registry needs.
type Handle interface {
	ID() string
	// OnDidDispose registers fn to be called once, when the panel is
	// disposed.
	OnDidDispose(fn func())
}

type key struct {
	resource string
	id       string
}

type entry[H Handle] struct {
	resource string
	handle   H
	removed  bool
}

// Registry is a multi-map from resource identity to live panels.
type Registry[H Handle] struct {
	byKey      map[key]*entry[H]
	byResource map[string][]*entry[H]
	// a panel can be registered under several resources
	byID map[string][]*entry[H]
}

// New returns an empty registry.
func New[H Handle]() *Registry[H] {
	return &Registry[H]{
		byKey:      make(map[key]*entry[H]),
		byResource: make(map[string][]*entry[H]),
		byID:       make(map[string][]*entry[H]),
	}
}

// Register adds handle under resource and subscribes to its disposal. It
// returns false, and does nothing, if the pair is already registered.
func (r *Registry[H]) Register(resource string, handle H) bool {
	k := key{resource: resource, id: handle.ID()}
	if _, ok := r.byKey[k]; ok {
		return false
	}

	e := &entry[H]{resource: resource, handle: handle}
	r.byKey[k] = e
	r.byResource[resource] = append(r.byResource[resource], e)
	r.byID[k.id] = append(r.byID[k.id], e)

	handle.OnDidDispose(func() {
		r.remove(k, e)
	})
	return true
}

func (r *Registry[H]) remove(k key, e *entry[H]) {
	if e.removed {
		return
	}
	e.removed = true
	if r.byKey[k] == e {
		delete(r.byKey, k)
	}

	without(r.byResource, e.resource, e)
	without(r.byID, k.id, e)
}

// without drops e from m[k], deleting the key once nothing is left. The slice
// is copied since a Lookup may be ranging over it.
func without[K comparable, H Handle](m map[K][]*entry[H], k K, e *entry[H]) {
	entries := slices.DeleteFunc(slices.Clone(m[k]), func(other *entry[H]) bool {
		return other == e
	})
	if len(entries) == 0 {
		delete(m, k)
		return
	}
	m[k] = entries
}

// Lookup returns the live panels of resource, in registration order. The
// sequence is recomputed every time it is ranged over and skips panels
// disposed while ranging.
func (r *Registry[H]) Lookup(resource string) iter.Seq[H] {
	return func(yield func(H) bool) {
		for _, e := range r.byResource[resource] {
			if e.removed {
				continue
			}
			if !yield(e.handle) {
				return
			}
		}
	}
}

// Get returns the live panel with the given id.
func (r *Registry[H]) Get(id string) (H, bool) {
	entries := r.byID[id]
	if len(entries) == 0 {
		var zero H
		return zero, false
	}
	return entries[0].handle, true
}

// Entry is a (resource, panel) pair.
type Entry[H Handle] struct {
	Resource string
	Handle   H
}

// All returns a snapshot of every live entry, grouped by resource.
func (r *Registry[H]) All() []Entry[H] {
	resources := make([]string, 0, len(r.byResource))
	for resource := range r.byResource {
		resources = append(resources, resource)
	}
	slices.Sort(resources)

	all := make([]Entry[H], 0, len(r.byKey))
	for _, resource := range resources {
		for _, e := range r.byResource[resource] {
			all = append(all, Entry[H]{Resource: resource, Handle: e.handle})
		}
	}
	return all
}

// Len returns the number of live entries.
func (r *Registry[H]) Len() int {
	return len(r.byKey)
}
