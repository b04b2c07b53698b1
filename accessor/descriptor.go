// Package accessor is the attribute-accessor runtime: it compiles an
// attribute declaration into a Descriptor and dispatches reads and writes
// through it.
//
// A Descriptor holds non-owning handles to the class, attribute and storage
// strategy it was compiled from. Those objects are owned by the reflection
// layer; when they are gone every operation on the descriptor fails with
// ErrReleased instead of touching freed state.
package accessor

import (
	"fmt"
	"sync/atomic"
	"weak"

	"github.com/tliron/commonlog"

	"github.com/chazu/moxie/weakref"
)

var log = commonlog.GetLogger("moxie.accessor")

// Descriptor is the compiled, per-entry-point record of one attribute.
type Descriptor struct {
	name  string
	key   SlotKey
	flags Flags
	tc    TypeConstraint

	class   *weakref.Handle[Class]
	attr    *weakref.Handle[Attribute]
	storage *weakref.Handle[Storage]

	// entry is the entry point this descriptor is bound to, for error
	// attribution. It never keeps the entry alive.
	entry weak.Pointer[entry]

	compiled atomic.Pointer[compiledConstraint]
}

// Compile reads the attribute's predicates once and produces its
// descriptor. Auto-deref on a constraint that is neither an ArrayRef nor a
// HashRef fails with *AutoDerefError.
func Compile(owner Owner) (*Descriptor, error) {
	attr, ok := owner.Attribute.Get()
	if !ok {
		return nil, released("attribute", "?")
	}
	storage, ok := owner.Storage.Get()
	if !ok {
		return nil, released("storage", attr.Name())
	}

	d := &Descriptor{
		name:    attr.Name(),
		key:     storage.SlotKey(attr.Name()),
		class:   owner.Class,
		attr:    owner.Attribute,
		storage: owner.Storage,
	}

	var flags Flags
	if attr.HasTypeConstraint() {
		tc := attr.TypeConstraint()
		if tc != nil {
			flags |= HasTypeConstraint
			d.tc = tc
			if attr.ShouldAutoDeref() {
				flags |= ShouldAutoDeref
				switch {
				case tc.IsSubtypeOf("ArrayRef"):
					flags |= TCIsArray
				case tc.IsSubtypeOf("HashRef"):
					flags |= TCIsHash
				default:
					return nil, &AutoDerefError{Attribute: d.name, Constraint: tc.Name()}
				}
			}
			if attr.ShouldCoerce() {
				flags |= ShouldCoerce
			}
		}
	}
	if attr.HasDefault() {
		flags |= HasDefault
	}
	if attr.HasBuilder() {
		flags |= HasBuilder
	}
	if attr.HasInitializer() {
		flags |= HasInitializer
	}
	if attr.HasTrigger() {
		flags |= HasTrigger
	}
	if attr.IsLazy() {
		flags |= IsLazy
	}
	if attr.IsWeakRef() {
		flags |= IsWeakRef
	}
	if attr.IsRequired() {
		flags |= IsRequired
	}
	d.flags = flags

	log.Debugf("compiled %s: %s", d.name, flags)
	return d, nil
}

// Name returns the attribute name.
func (d *Descriptor) Name() string {
	return d.name
}

// Flags returns the compiled bitset.
func (d *Descriptor) Flags() Flags {
	return d.flags
}

// SlotKey returns the key the storage strategy issued for this attribute.
func (d *Descriptor) SlotKey() SlotKey {
	return d.key
}

// TypeConstraint returns the declared constraint, or nil.
func (d *Descriptor) TypeConstraint() TypeConstraint {
	return d.tc
}

// EntryName returns the name of the entry point bound to d, if it is still
// alive.
func (d *Descriptor) EntryName() (string, bool) {
	if e := d.entry.Value(); e != nil {
		return e.name, true
	}
	return "", false
}

func (d *Descriptor) bind(e *entry) {
	d.entry = weak.Make(e)
}

// label names the entry point for diagnostics, falling back to the attribute.
func (d *Descriptor) label() string {
	if name, ok := d.EntryName(); ok && name != "" {
		return name
	}
	return d.name
}

func (d *Descriptor) getStorage() (Storage, error) {
	s, ok := d.storage.Get()
	if !ok {
		return nil, released("storage", d.name)
	}
	return s, nil
}

// storageFor returns the storage strategy, failing for an instance it
// does not lay out.
func (d *Descriptor) storageFor(inst Instance) (Storage, error) {
	s, err := d.getStorage()
	if err != nil {
		return nil, err
	}
	if inst == nil || !s.Owns(inst) {
		return nil, fmt.Errorf("%w: %s has no slot for %s", ErrNotInstance, className(inst), d.name)
	}
	return s, nil
}

func className(inst Instance) string {
	if inst == nil {
		return "undef"
	}
	return inst.ClassName()
}

func (d *Descriptor) getAttribute() (Attribute, error) {
	a, ok := d.attr.Get()
	if !ok {
		return nil, released("attribute", d.name)
	}
	return a, nil
}
