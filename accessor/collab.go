package accessor

import (
	"github.com/chazu/moxie/typecheck"
	"github.com/chazu/moxie/value"
	"github.com/chazu/moxie/weakref"
)

// ---------------------------------------------------------------------------
// Collaborator surfaces consumed by the accessor runtime
// ---------------------------------------------------------------------------

// SlotKey addresses one attribute's slot inside an instance. Only the
// storage strategy that issued it can interpret it.
type SlotKey any

// Instance is an object whose attributes the runtime reads and writes.
type Instance interface {
	ClassName() string
	// FindMethod resolves a method through the instance's class, or
	// returns nil.
	FindMethod(name string) Method
}

// Valuer is implemented by instances that can present themselves as a
// value (a blessed reference), for diagnostics.
type Valuer interface {
	AsValue() value.Value
}

// Method is a zero-argument method bound by name, as used for builders.
type Method func(self Instance) (value.Value, error)

// Storage is the instance-storage strategy: per-instance slot cells
// addressed by SlotKey.
type Storage interface {
	SlotKey(name string) SlotKey
	// Owns reports whether inst carries the slots this storage lays out.
	Owns(inst Instance) bool
	HasSlot(inst Instance, key SlotKey) bool
	GetSlot(inst Instance, key SlotKey) (value.Value, bool)
	// SetSlot stores v and returns the committed value.
	SetSlot(inst Instance, key SlotKey, v value.Value) value.Value
	DeleteSlot(inst Instance, key SlotKey)
	// WeakenSlot makes the slot stop owning the referent it holds.
	WeakenSlot(inst Instance, key SlotKey)
}

// Class is the metaclass that owns an attribute. It also answers the
// environment questions of the ClassName/RoleName/FileHandle predicates.
type Class interface {
	Name() string
	typecheck.Environment
}

// Trigger runs after a successful write. old is empty when the slot was
// unset, otherwise the previous value (expanded for auto-deref attributes).
type Trigger func(inst Instance, newValue value.Value, old []value.Value) error

// Attribute is the declaration an accessor is compiled from.
type Attribute interface {
	Name() string

	HasTypeConstraint() bool
	TypeConstraint() TypeConstraint
	ShouldAutoDeref() bool
	ShouldCoerce() bool

	HasDefault() bool
	Default(inst Instance) (value.Value, error)
	HasBuilder() bool
	Builder() string

	HasInitializer() bool
	// SetInitialValue decides how (and whether) a lazily computed value is
	// stored.
	SetInitialValue(inst Instance, v value.Value) error

	HasTrigger() bool
	Trigger() Trigger

	IsLazy() bool
	IsWeakRef() bool
	IsRequired() bool
}

// TypeConstraint is the constraint specification an attribute is declared with.
type TypeConstraint interface {
	Name() string
	IsSubtypeOf(name string) bool
	Coerce(v value.Value) (value.Value, error)
	// CompiledValidator returns a typecheck.Kind for builtin constraints,
	// or a Validator / validation func for everything else.
	CompiledValidator() (any, error)
	ErrorMessage(v value.Value) string
}

// Validator is an external constraint check.
type Validator interface {
	Validate(v value.Value) (bool, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(v value.Value) (bool, error)

// Validate calls f(v).
func (f ValidatorFunc) Validate(v value.Value) (bool, error) {
	return f(v)
}

// Owner carries the non-owning back-references a descriptor is bound with.
// The reflection layer that issued them is their sole owner.
type Owner struct {
	Class     *weakref.Handle[Class]
	Attribute *weakref.Handle[Attribute]
	Storage   *weakref.Handle[Storage]
}
