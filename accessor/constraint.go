package accessor

import (
	"github.com/chazu/moxie/typecheck"
	"github.com/chazu/moxie/value"
)

type compiledKind uint8

const (
	compiledBuiltin compiledKind = iota
	compiledExternal
)

// compiledConstraint is the resolved form of a descriptor's constraint.
// A nil pointer in Descriptor.compiled means unresolved.
type compiledConstraint struct {
	kind     compiledKind
	builtin  typecheck.Kind
	external Validator
}

// classify turns the handle a TypeConstraint compiles to into a check.
func classify(handle any) (*compiledConstraint, bool) {
	switch h := handle.(type) {
	case typecheck.Kind:
		if !h.Valid() {
			return nil, false
		}
		return &compiledConstraint{kind: compiledBuiltin, builtin: h}, true
	case Validator:
		return &compiledConstraint{kind: compiledExternal, external: h}, true
	case func(value.Value) (bool, error):
		if h == nil {
			return nil, false
		}
		return &compiledConstraint{kind: compiledExternal, external: ValidatorFunc(h)}, true
	case func(value.Value) bool:
		if h == nil {
			return nil, false
		}
		return &compiledConstraint{kind: compiledExternal, external: ValidatorFunc(func(v value.Value) (bool, error) {
			return h(v), nil
		})}, true
	}
	return nil, false
}

// compiledConstraint resolves the constraint on first use and memoizes it.
// Concurrent first uses may both resolve; the last store wins and both
// results are equivalent.
func (d *Descriptor) compiledConstraint() (*compiledConstraint, error) {
	if cc := d.compiled.Load(); cc != nil {
		return cc, nil
	}
	handle, err := d.tc.CompiledValidator()
	if err != nil {
		return nil, err
	}
	cc, ok := classify(handle)
	if !ok {
		return nil, &UnimplementedConstraint{Attribute: d.name, Constraint: d.tc.Name(), Handle: handle}
	}
	d.compiled.Store(cc)
	log.Debugf("resolved constraint %s for %s", d.tc.Name(), d.name)
	return cc, nil
}

// check evaluates the compiled constraint against v.
func (d *Descriptor) check(cc *compiledConstraint, v value.Value) (bool, error) {
	if cc.kind == compiledExternal {
		return cc.external.Validate(v)
	}
	var env typecheck.Environment
	switch cc.builtin {
	case typecheck.ClassName, typecheck.RoleName, typecheck.FileHandle:
		class, ok := d.class.Get()
		if !ok {
			return false, released("class", d.name)
		}
		env = class
	}
	ok, err := typecheck.Check(cc.builtin, v, env)
	if err != nil {
		return false, &UnimplementedConstraint{Attribute: d.name, Constraint: d.tc.Name(), Handle: cc.builtin}
	}
	return ok, nil
}

// applyConstraint coerces v if the attribute asks for it, then validates.
// It returns the value to be stored.
func (d *Descriptor) applyConstraint(v value.Value) (value.Value, error) {
	if d.flags.Has(ShouldCoerce) {
		coerced, err := d.tc.Coerce(v)
		if err != nil {
			return v, &ConstraintViolation{
				Accessor:  d.label(),
				Attribute: d.name,
				Value:     v,
				Message:   err.Error(),
				Err:       err,
			}
		}
		v = coerced
	}

	cc, err := d.compiledConstraint()
	if err != nil {
		return v, err
	}
	ok, err := d.check(cc, v)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, &ConstraintViolation{
			Accessor:  d.label(),
			Attribute: d.name,
			Value:     v,
			Message:   d.tc.ErrorMessage(v),
		}
	}
	return v, nil
}

// Validate runs v through the descriptor's coercion and constraint without
// touching any instance. Attributes without a constraint accept anything.
func (d *Descriptor) Validate(v value.Value) (value.Value, error) {
	if !d.flags.Has(HasTypeConstraint) {
		return v, nil
	}
	return d.applyConstraint(v)
}
