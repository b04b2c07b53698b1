// Package weakref provides non-owning handles to objects owned elsewhere.
//
// A Handle never keeps its referent alive. It resolves to the referent for
// as long as the owner keeps it reachable, and reports absence afterwards,
// either because the garbage collector reclaimed it or because the owner
// cleared the handle explicitly.
package weakref

import (
	"fmt"
	"sync/atomic"
	"weak"
)

type resolver[I any] func() (I, bool)

// Handle is a weak reference viewed through interface (or type) I.
type Handle[I any] struct {
	resolve atomic.Pointer[resolver[I]]
}

// Make returns a handle to p. *T must implement I; a mismatch panics at
// construction instead of at first use.
func Make[T any, I any](p *T) *Handle[I] {
	h := &Handle[I]{}
	if p == nil {
		return h
	}
	if _, ok := any(p).(I); !ok {
		var zero *I
		panic(fmt.Sprintf("weakref: %T does not implement %T", p, zero))
	}
	wp := weak.Make(p)
	fn := resolver[I](func() (I, bool) {
		target := wp.Value()
		if target == nil {
			var zero I
			return zero, false
		}
		return any(target).(I), true
	})
	h.resolve.Store(&fn)
	return h
}

// Static returns a handle that always resolves to v until cleared.
// It holds v strongly; use it only for values with no owner to defer to.
func Static[I any](v I) *Handle[I] {
	h := &Handle[I]{}
	fn := resolver[I](func() (I, bool) { return v, true })
	h.resolve.Store(&fn)
	return h
}

// Get returns the referent, or false if it is gone.
func (h *Handle[I]) Get() (I, bool) {
	if h != nil {
		if fn := h.resolve.Load(); fn != nil {
			return (*fn)()
		}
	}
	var zero I
	return zero, false
}

// IsAlive returns true if the referent can still be resolved.
func (h *Handle[I]) IsAlive() bool {
	_, ok := h.Get()
	return ok
}

// Clear detaches the handle. Subsequent Gets report absence.
func (h *Handle[I]) Clear() {
	if h != nil {
		h.resolve.Store(nil)
	}
}
