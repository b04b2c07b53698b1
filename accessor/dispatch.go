package accessor

import (
	"github.com/chazu/moxie/value"
)

// Want is the result shape a caller asked for.
type Want uint8

const (
	WantScalar Want = iota
	WantList
)

// ---------------------------------------------------------------------------
// Read path
// ---------------------------------------------------------------------------

// read returns the slot value and whether the slot is set, running lazy
// initialization first when the attribute asks for it.
func (d *Descriptor) read(inst Instance) (value.Value, bool, error) {
	storage, err := d.storageFor(inst)
	if err != nil {
		return value.Undef(), false, err
	}
	if d.flags.Has(IsLazy) && !storage.HasSlot(inst, d.key) {
		if err := d.initialize(storage, inst); err != nil {
			return value.Undef(), false, err
		}
	}
	v, ok := storage.GetSlot(inst, d.key)
	return v, ok, nil
}

// Initialize computes the attribute's initial value from its default or
// builder and stores it, unless the slot is already set. It is the lazy
// initialization step, for callers that populate eagerly.
func (d *Descriptor) Initialize(inst Instance) error {
	storage, err := d.storageFor(inst)
	if err != nil {
		return err
	}
	if storage.HasSlot(inst, d.key) {
		return nil
	}
	return d.initialize(storage, inst)
}

// initialize: default wins over builder; neither yields undef. The result
// goes through the constraint and then into the slot, or to the
// attribute's initializer when it has one.
func (d *Descriptor) initialize(storage Storage, inst Instance) error {
	v := value.Undef()
	var attr Attribute

	if d.flags.Has(HasDefault) || d.flags.Has(HasBuilder) || d.flags.Has(HasInitializer) {
		var err error
		if attr, err = d.getAttribute(); err != nil {
			return err
		}
	}

	switch {
	case d.flags.Has(HasDefault):
		dv, err := attr.Default(inst)
		if err != nil {
			return err
		}
		v = dv
	case d.flags.Has(HasBuilder):
		bv, err := d.build(attr, inst)
		if err != nil {
			return err
		}
		v = bv
	}

	if d.flags.Has(HasTypeConstraint) {
		cv, err := d.applyConstraint(v)
		if err != nil {
			return err
		}
		v = cv
	}

	if d.flags.Has(HasInitializer) {
		return attr.SetInitialValue(inst, v)
	}
	storage.SetSlot(inst, d.key, v)
	return nil
}

func (d *Descriptor) build(attr Attribute, inst Instance) (value.Value, error) {
	name := attr.Builder()
	m := inst.FindMethod(name)
	if m == nil {
		return value.Undef(), &BuilderMissing{Class: inst.ClassName(), Builder: name, Attribute: d.name}
	}
	return m(inst)
}

// values shapes v for the caller. Auto-deref attributes in list context
// expand to their elements (or key/value pairs), and to nothing when unset
// or undef. Everything else is the single value, undef when unset.
func (d *Descriptor) values(v value.Value, present bool, want Want) ([]value.Value, error) {
	if want == WantList && d.flags.Has(ShouldAutoDeref) {
		if !present || !v.IsDefined() {
			return nil, nil
		}
		switch {
		case d.flags.Has(TCIsArray):
			if !v.IsRef() || v.RefVal.Type != value.RefArray || v.RefVal.Array == nil {
				return nil, &AutoDerefMismatch{Attribute: d.name, Want: value.RefArray, Value: v}
			}
			out := make([]value.Value, len(v.RefVal.Array.Elements))
			copy(out, v.RefVal.Array.Elements)
			return out, nil
		case d.flags.Has(TCIsHash):
			if !v.IsRef() || v.RefVal.Type != value.RefHash || v.RefVal.Hash == nil {
				return nil, &AutoDerefMismatch{Attribute: d.name, Want: value.RefHash, Value: v}
			}
			out := make([]value.Value, 0, 2*v.RefVal.Hash.Len())
			v.RefVal.Hash.Range(func(k string, e value.Value) bool {
				out = append(out, value.StringValue(k), e)
				return true
			})
			return out, nil
		}
	}
	if !present {
		return []value.Value{value.Undef()}, nil
	}
	return []value.Value{v}, nil
}

// ---------------------------------------------------------------------------
// Write path
// ---------------------------------------------------------------------------

// write validates (and coerces) v, stores it, weakens the slot for weak
// attributes, and fires the trigger. It returns the committed value.
func (d *Descriptor) write(inst Instance, v value.Value) (value.Value, error) {
	storage, err := d.storageFor(inst)
	if err != nil {
		return value.Undef(), err
	}

	if d.flags.Has(HasTypeConstraint) {
		if v, err = d.applyConstraint(v); err != nil {
			return value.Undef(), err
		}
	}

	// The trigger sees the old value as it was before the store, already
	// expanded, so later mutation of the slot cannot change it.
	var old []value.Value
	var trigger Trigger
	if d.flags.Has(HasTrigger) {
		attr, err := d.getAttribute()
		if err != nil {
			return value.Undef(), err
		}
		trigger = attr.Trigger()
		if prev, ok := storage.GetSlot(inst, d.key); ok {
			if old, err = d.values(prev, true, WantList); err != nil {
				return value.Undef(), err
			}
		}
	}

	committed := storage.SetSlot(inst, d.key, v)
	if d.flags.Has(IsWeakRef) {
		storage.WeakenSlot(inst, d.key)
	}

	if trigger != nil {
		if old == nil {
			old = []value.Value{}
		}
		if err := trigger(inst, committed, old); err != nil {
			return committed, err
		}
	}
	return committed, nil
}

func (d *Descriptor) has(inst Instance) (bool, error) {
	storage, err := d.storageFor(inst)
	if err != nil {
		return false, err
	}
	return storage.HasSlot(inst, d.key), nil
}

func (d *Descriptor) clear(inst Instance) error {
	storage, err := d.storageFor(inst)
	if err != nil {
		return err
	}
	storage.DeleteSlot(inst, d.key)
	return nil
}
