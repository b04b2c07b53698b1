package manifest

import (
	"fmt"

	"github.com/chazu/moxie/meta"
	"github.com/chazu/moxie/value"
)

// Methods supplies Go method implementations by class or role name. A
// class gets its methods and attributes before its roles, so either can
// satisfy a role's requirements.
type Methods map[string]map[string]meta.MethodFunc

// Apply declares the manifest's types, roles and classes in r.
func (m *Manifest) Apply(r *meta.Registry, methods Methods) error {
	res, err := NewResolver(m)
	if err != nil {
		return err
	}

	types, err := res.TypeOrder()
	if err != nil {
		return err
	}
	for _, d := range types {
		spec := meta.TypeSpec{Name: d.Name, Parent: d.Parent, CUE: d.CUE}
		if d.Message != "" {
			spec.Message = meta.MessageTemplate(d.Message, d.Name)
		}
		if _, err := r.DefineType(spec); err != nil {
			return err
		}
	}

	for i := range m.Roles {
		d := &m.Roles[i]
		role, err := r.DefineRole(d.Name)
		if err != nil {
			return err
		}
		role.Requires(d.Requires...)
		for sel, impl := range methods[d.Name] {
			role.AddMethod(sel, impl)
		}
		for _, a := range d.Attributes {
			role.AddAttribute(a.Spec())
		}
	}

	classes, err := res.ClassOrder()
	if err != nil {
		return err
	}
	for _, d := range classes {
		if err := m.applyClass(r, d, methods[d.Name]); err != nil {
			return fmt.Errorf("class %s: %w", d.Name, err)
		}
	}
	log.Debugf("applied %s: %d types, %d roles, %d classes",
		m.Project.Name, len(m.Types), len(m.Roles), len(m.Classes))
	return nil
}

func (m *Manifest) applyClass(r *meta.Registry, d *ClassDecl, methods map[string]meta.MethodFunc) error {
	c, err := r.DefineClass(d.Name, d.Extends)
	if err != nil {
		return err
	}
	for sel, impl := range methods {
		c.AddMethod(sel, impl)
	}
	for _, a := range d.Attributes {
		if _, err := c.AddAttribute(a.Spec()); err != nil {
			return err
		}
	}
	for _, roleName := range d.Roles {
		role, err := r.Role(roleName)
		if err != nil {
			return err
		}
		if err := c.ApplyRole(role); err != nil {
			return err
		}
	}
	return nil
}

// Spec converts the declaration into a meta attribute spec. TOML tables
// and arrays become hash and array reference defaults.
func (a AttributeDecl) Spec() meta.AttributeSpec {
	spec := meta.AttributeSpec{
		Name:      a.Name,
		Is:        a.Is,
		Isa:       a.Isa,
		Builder:   a.Builder,
		Lazy:      a.Lazy,
		Required:  a.Required,
		WeakRef:   a.WeakRef,
		Coerce:    a.Coerce,
		AutoDeref: a.AutoDeref,
		InitArg:   a.InitArg,
		Reader:    a.Reader,
		Writer:    a.Writer,
		Accessor:  a.Accessor,
		Predicate: a.Predicate,
		Clearer:   a.Clearer,
	}
	if a.Default != nil {
		spec.Default = value.FromInterface(a.Default)
	}
	return spec
}
