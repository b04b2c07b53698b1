package meta

import (
	"fmt"

	"github.com/chazu/moxie/accessor"
	"github.com/chazu/moxie/value"
	"github.com/chazu/moxie/weakref"
)

// Accessor styles for AttributeSpec.Is.
const (
	IsReadOnly  = "ro"
	IsReadWrite = "rw"
	IsWriteOnly = "wo"
	IsBare      = "bare"
)

// NoInitArg as AttributeSpec.InitArg keeps an attribute out of the
// constructor.
const NoInitArg = "-"

// AttributeSpec declares an attribute.
type AttributeSpec struct {
	Name string
	// Is selects the generated accessors: "ro" a reader, "rw" an accessor,
	// "wo" a writer, "bare" (or empty) none. Reader/Writer/Accessor add
	// explicitly named ones.
	Is  string
	Isa string

	// Default is used when defined; DefaultFunc wins over it.
	Default     value.Value
	DefaultFunc func(self *Instance) (value.Value, error)
	Builder     string

	Lazy      bool
	Required  bool
	WeakRef   bool
	Coerce    bool
	AutoDeref bool

	// InitArg is the constructor key. Empty means Name.
	InitArg string

	Reader    string
	Writer    string
	Accessor  string
	Predicate string
	Clearer   string

	Trigger func(self *Instance, newValue value.Value, old []value.Value) error
	// Initializer decides how a lazily computed value is stored; set stores
	// it in the slot.
	Initializer func(self *Instance, v value.Value, set func(value.Value)) error
}

// Attribute is a declared attribute of a class.
type Attribute struct {
	spec  AttributeSpec
	class *Class
	tc    *TypeConstraint

	// init is the unnamed write path constructors go through; initDesc
	// computes defaults.
	init     *accessor.Writer
	initDesc *accessor.Descriptor

	entries map[string]accessor.Invoker
}

func newAttribute(c *Class, spec AttributeSpec) (*Attribute, error) {
	a := &Attribute{spec: spec, class: c, entries: make(map[string]accessor.Invoker)}
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: attribute without a name in %s", ErrInvalidOptions, c.name)
	}

	switch spec.Is {
	case "", IsReadOnly, IsReadWrite, IsWriteOnly, IsBare:
	default:
		return nil, fmt.Errorf("%w: %s.%s: is must be ro, rw, wo or bare, got %q", ErrInvalidOptions, c.name, spec.Name, spec.Is)
	}

	if spec.Isa != "" {
		tc, err := c.registry.Type(spec.Isa)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", c.name, spec.Name, err)
		}
		a.tc = tc
	}

	if spec.Coerce {
		if a.tc == nil {
			return nil, fmt.Errorf("%w: %s.%s: coerce requires isa", ErrInvalidOptions, c.name, spec.Name)
		}
		if !a.tc.HasCoercion() {
			return nil, fmt.Errorf("%w: %s.%s: type %s has no coercion", ErrInvalidOptions, c.name, spec.Name, a.tc.name)
		}
	}
	if spec.AutoDeref && a.tc == nil {
		return nil, fmt.Errorf("%w: %s.%s: auto_deref requires isa", ErrInvalidOptions, c.name, spec.Name)
	}
	if spec.Lazy && !a.HasDefault() && !a.HasBuilder() {
		return nil, fmt.Errorf("%w: %s.%s: lazy requires a default or a builder", ErrInvalidOptions, c.name, spec.Name)
	}
	if spec.Default.IsDefined() && spec.Default.IsRef() && spec.Default.RefVal.Type != value.RefArray &&
		spec.Default.RefVal.Type != value.RefHash {
		return nil, fmt.Errorf("%w: %s.%s: only array and hash references can be default values", ErrInvalidOptions, c.name, spec.Name)
	}
	return a, nil
}

// Spec returns the declaration.
func (a *Attribute) Spec() AttributeSpec { return a.spec }

// Class returns the class that declared a.
func (a *Attribute) Class() *Class { return a.class }

// Entries returns the generated entry points, by method name.
func (a *Attribute) Entries() map[string]accessor.Invoker {
	out := make(map[string]accessor.Invoker, len(a.entries))
	for name, e := range a.entries {
		out[name] = e
	}
	return out
}

// InitArg returns the constructor key, or "" when there is none.
func (a *Attribute) InitArg() string {
	switch a.spec.InitArg {
	case "":
		return a.spec.Name
	case NoInitArg:
		return ""
	}
	return a.spec.InitArg
}

// owner returns weak handles to the collaborators the accessor runtime
// needs. The class keeps all three alive.
func (a *Attribute) owner() accessor.Owner {
	return accessor.Owner{
		Class:     weakref.Make[Class, accessor.Class](a.class),
		Attribute: weakref.Make[Attribute, accessor.Attribute](a),
		Storage:   weakref.Make[slotStorage, accessor.Storage](a.class.storage),
	}
}

// install compiles the attribute's entry points and adds them to the
// class method table.
func (a *Attribute) install() error {
	desc, err := accessor.Compile(a.owner())
	if err != nil {
		return err
	}
	a.initDesc = desc
	a.init = accessor.NewWriter("", desc)

	type want struct {
		form accessor.Form
		name string
	}
	var wants []want
	switch a.spec.Is {
	case IsReadOnly:
		wants = append(wants, want{accessor.FormReader, a.spec.Name})
	case IsReadWrite:
		wants = append(wants, want{accessor.FormAccessor, a.spec.Name})
	case IsWriteOnly:
		wants = append(wants, want{accessor.FormWriter, a.spec.Name})
	}
	if a.spec.Reader != "" {
		wants = append(wants, want{accessor.FormReader, a.spec.Reader})
	}
	if a.spec.Writer != "" {
		wants = append(wants, want{accessor.FormWriter, a.spec.Writer})
	}
	if a.spec.Accessor != "" {
		wants = append(wants, want{accessor.FormAccessor, a.spec.Accessor})
	}
	if a.spec.Predicate != "" {
		wants = append(wants, want{accessor.FormPredicate, a.spec.Predicate})
	}
	if a.spec.Clearer != "" {
		wants = append(wants, want{accessor.FormClearer, a.spec.Clearer})
	}

	for _, w := range wants {
		entry, err := accessor.Bind(w.form, w.name, a.owner())
		if err != nil {
			return err
		}
		a.entries[w.name] = entry
		a.class.addMethod(w.name, entryMethod(entry), entry)
		log.Debugf("installed %s %s for %s.%s", w.form, w.name, a.class.name, a.spec.Name)
	}
	return nil
}

func entryMethod(entry accessor.Invoker) MethodFunc {
	return func(self *Instance, want accessor.Want, args []value.Value) ([]value.Value, error) {
		all := make([]value.Value, 0, len(args)+1)
		all = append(all, self.AsValue())
		all = append(all, args...)
		return entry.Invoke(want, all)
	}
}

// ---------------------------------------------------------------------------
// accessor.Attribute
// ---------------------------------------------------------------------------

func (a *Attribute) Name() string { return a.spec.Name }

func (a *Attribute) HasTypeConstraint() bool { return a.tc != nil }

func (a *Attribute) TypeConstraint() accessor.TypeConstraint {
	if a.tc == nil {
		return nil
	}
	return a.tc
}

// Type returns the declared constraint, or nil.
func (a *Attribute) Type() *TypeConstraint { return a.tc }

func (a *Attribute) ShouldAutoDeref() bool { return a.spec.AutoDeref }
func (a *Attribute) ShouldCoerce() bool    { return a.spec.Coerce }

func (a *Attribute) HasDefault() bool {
	return a.spec.DefaultFunc != nil || a.spec.Default.IsDefined()
}

// Default produces the default for inst. Container defaults are copied so
// instances never share them.
func (a *Attribute) Default(inst accessor.Instance) (value.Value, error) {
	if a.spec.DefaultFunc != nil {
		self, ok := inst.(*Instance)
		if !ok {
			return value.Undef(), accessor.ErrNotInstance
		}
		return a.spec.DefaultFunc(self)
	}
	return copyContainer(a.spec.Default), nil
}

func copyContainer(v value.Value) value.Value {
	if !v.IsRef() {
		return v
	}
	switch v.RefVal.Type {
	case value.RefArray:
		r := value.NewArrayRef(v.RefVal.Array.Elements...)
		r.Class = v.RefVal.Class
		return value.RefValue(r)
	case value.RefHash:
		h := value.NewHash()
		v.RefVal.Hash.Range(func(k string, e value.Value) bool {
			h.Set(k, e)
			return true
		})
		r := value.NewHashRef(h)
		r.Class = v.RefVal.Class
		return value.RefValue(r)
	}
	return v
}

func (a *Attribute) HasBuilder() bool { return a.spec.Builder != "" }
func (a *Attribute) Builder() string  { return a.spec.Builder }

func (a *Attribute) HasInitializer() bool { return a.spec.Initializer != nil }

func (a *Attribute) SetInitialValue(inst accessor.Instance, v value.Value) error {
	self, ok := inst.(*Instance)
	if !ok {
		return accessor.ErrNotInstance
	}
	key := a.class.storage.SlotKey(a.spec.Name)
	return a.spec.Initializer(self, v, func(nv value.Value) {
		a.class.storage.SetSlot(self, key, nv)
	})
}

func (a *Attribute) HasTrigger() bool { return a.spec.Trigger != nil }

func (a *Attribute) Trigger() accessor.Trigger {
	fn := a.spec.Trigger
	if fn == nil {
		return nil
	}
	return func(inst accessor.Instance, nv value.Value, old []value.Value) error {
		self, ok := inst.(*Instance)
		if !ok {
			return accessor.ErrNotInstance
		}
		return fn(self, nv, old)
	}
}

func (a *Attribute) IsLazy() bool     { return a.spec.Lazy }
func (a *Attribute) IsWeakRef() bool  { return a.spec.WeakRef }
func (a *Attribute) IsRequired() bool { return a.spec.Required }
