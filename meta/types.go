package meta

import (
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"

	"github.com/chazu/moxie/typecheck"
	"github.com/chazu/moxie/value"
)

// Coercion converts values of type From into the owning constraint.
type Coercion struct {
	From *TypeConstraint
	Via  func(v value.Value) (value.Value, error)
}

// TypeConstraint is a named constraint: a builtin kind, a refinement of a
// parent, a parameterized container, a union, or a class/role type.
type TypeConstraint struct {
	name     string
	parent   *TypeConstraint
	registry *Registry

	kind    typecheck.Kind
	builtin bool

	where     func(v value.Value) (bool, error)
	cue       *cue.Value
	cueSource string

	param   *TypeConstraint
	paramOf string

	union      []*TypeConstraint
	instanceOf string

	message func(v value.Value) string

	coerceMu  sync.RWMutex
	coercions []Coercion
}

// Name returns the constraint name (or expression, for derived ones).
func (tc *TypeConstraint) Name() string { return tc.name }

// Parent returns the parent constraint, nil for Any.
func (tc *TypeConstraint) Parent() *TypeConstraint { return tc.parent }

// IsBuiltin reports whether tc is one of the predefined kinds.
func (tc *TypeConstraint) IsBuiltin() bool { return tc.builtin }

// CUESource returns the CUE expression tc was declared with, if any.
func (tc *TypeConstraint) CUESource() string { return tc.cueSource }

// IsSubtypeOf reports whether tc is name or descends from it.
func (tc *TypeConstraint) IsSubtypeOf(name string) bool {
	for t := tc; t != nil; t = t.parent {
		if t.name == name {
			return true
		}
	}
	return false
}

// AddCoercion appends a coercion from the named type. Coercions are tried
// in the order they were added.
func (tc *TypeConstraint) AddCoercion(from string, via func(v value.Value) (value.Value, error)) error {
	ft, err := tc.registry.Type(from)
	if err != nil {
		return fmt.Errorf("coercion %s -> %s: %w", from, tc.name, err)
	}
	tc.coerceMu.Lock()
	defer tc.coerceMu.Unlock()
	tc.coercions = append(tc.coercions, Coercion{From: ft, Via: via})
	return nil
}

// HasCoercion reports whether any coercion is defined.
func (tc *TypeConstraint) HasCoercion() bool {
	tc.coerceMu.RLock()
	defer tc.coerceMu.RUnlock()
	return len(tc.coercions) > 0
}

// Coerce applies the first coercion whose source type accepts v. Values
// no coercion applies to are returned unchanged.
func (tc *TypeConstraint) Coerce(v value.Value) (value.Value, error) {
	tc.coerceMu.RLock()
	coercions := tc.coercions
	tc.coerceMu.RUnlock()

	for _, c := range coercions {
		ok, err := c.From.Check(v)
		if err != nil {
			return v, err
		}
		if ok {
			return c.Via(v)
		}
	}
	return v, nil
}

// CompiledValidator returns the bare kind for an unrefined builtin and a
// validator over the whole parent chain for everything else.
func (tc *TypeConstraint) CompiledValidator() (any, error) {
	if tc.builtin {
		return tc.kind, nil
	}
	return tc.Check, nil
}

// Check reports whether v satisfies tc and all of its ancestors, parents
// first, so a refinement only sees values its parent accepted. The chain
// stops at the first builtin, whose predicate implies its own ancestors.
func (tc *TypeConstraint) Check(v value.Value) (bool, error) {
	var chain []*TypeConstraint
	for t := tc; t != nil; t = t.parent {
		chain = append(chain, t)
		if t.builtin {
			break
		}
	}
	for i := len(chain) - 1; i >= 0; i-- {
		ok, err := chain[i].checkOwn(v)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// checkOwn tests only what tc adds over its parent.
func (tc *TypeConstraint) checkOwn(v value.Value) (bool, error) {
	if tc.builtin {
		return typecheck.Check(tc.kind, v, tc.registry)
	}

	switch {
	case len(tc.union) > 0:
		for _, m := range tc.union {
			ok, err := m.Check(v)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case tc.param != nil:
		if ok, err := tc.checkParam(v); err != nil || !ok {
			return false, err
		}
	case tc.instanceOf != "":
		if !tc.registry.IsInstanceOf(v, tc.instanceOf) {
			return false, nil
		}
	}

	if tc.where != nil {
		if ok, err := tc.where(v); err != nil || !ok {
			return false, err
		}
	}
	if tc.cue != nil && !tc.registry.cueAccepts(*tc.cue, v) {
		return false, nil
	}
	return true, nil
}

func (tc *TypeConstraint) checkParam(v value.Value) (bool, error) {
	switch tc.paramOf {
	case "Maybe":
		if !v.IsDefined() {
			return true, nil
		}
		return tc.param.Check(v)
	case "ArrayRef":
		if !v.IsRef() || v.RefVal.Array == nil {
			return false, nil
		}
		for _, elem := range v.RefVal.Array.Elements {
			if ok, err := tc.param.Check(elem); err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case "HashRef":
		if !v.IsRef() || v.RefVal.Hash == nil {
			return false, nil
		}
		ok, err := true, error(nil)
		v.RefVal.Hash.Range(func(_ string, elem value.Value) bool {
			ok, err = tc.param.Check(elem)
			return err == nil && ok
		})
		return ok, err
	}
	return false, fmt.Errorf("%w: %s", ErrUnknownType, tc.name)
}

// ErrorMessage explains why v was rejected.
func (tc *TypeConstraint) ErrorMessage(v value.Value) string {
	if tc.message != nil {
		return tc.message(v)
	}
	return fmt.Sprintf("Validation failed for '%s' with value %s", tc.name, v)
}

// MessageTemplate builds a message function from text, substituting
// {value} and {type}.
func MessageTemplate(tmpl, typeName string) func(v value.Value) string {
	return func(v value.Value) string {
		return strings.NewReplacer("{value}", v.String(), "{type}", typeName).Replace(tmpl)
	}
}

func (tc *TypeConstraint) String() string {
	return tc.name
}
