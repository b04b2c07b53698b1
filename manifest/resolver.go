package manifest

import (
	"fmt"
	"regexp"
)

// typeNamePattern matches the names inside a constraint expression such as
// "ArrayRef[Person]|Undef".
var typeNamePattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_:]*`)

// Resolver orders a manifest's declarations so everything a declaration
// refers to is declared before it.
type Resolver struct {
	manifest *Manifest
	types    map[string]*TypeDecl
	roles    map[string]*RoleDecl
	classes  map[string]*ClassDecl
}

// NewResolver indexes the declarations of m.
func NewResolver(m *Manifest) (*Resolver, error) {
	r := &Resolver{
		manifest: m,
		types:    make(map[string]*TypeDecl),
		roles:    make(map[string]*RoleDecl),
		classes:  make(map[string]*ClassDecl),
	}
	for i := range m.Types {
		d := &m.Types[i]
		if _, dup := r.types[d.Name]; dup {
			return nil, fmt.Errorf("type %s declared twice", d.Name)
		}
		r.types[d.Name] = d
	}
	for i := range m.Roles {
		d := &m.Roles[i]
		if _, dup := r.roles[d.Name]; dup {
			return nil, fmt.Errorf("role %s declared twice", d.Name)
		}
		r.roles[d.Name] = d
	}
	for i := range m.Classes {
		d := &m.Classes[i]
		if _, dup := r.classes[d.Name]; dup {
			return nil, fmt.Errorf("class %s declared twice", d.Name)
		}
		if _, clash := r.roles[d.Name]; clash {
			return nil, fmt.Errorf("class %s has the name of a role", d.Name)
		}
		r.classes[d.Name] = d
	}
	return r, nil
}

// TypeOrder returns type declarations parents first.
func (r *Resolver) TypeOrder() ([]*TypeDecl, error) {
	var order []*TypeDecl
	state := make(map[string]int)
	var visit func(d *TypeDecl) error
	visit = func(d *TypeDecl) error {
		switch state[d.Name] {
		case visiting:
			return fmt.Errorf("type %s: circular parent chain", d.Name)
		case done:
			return nil
		}
		state[d.Name] = visiting
		if p, ok := r.types[d.Parent]; ok {
			if err := visit(p); err != nil {
				return err
			}
		}
		state[d.Name] = done
		order = append(order, d)
		return nil
	}
	for i := range r.manifest.Types {
		if err := visit(&r.manifest.Types[i]); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// ClassOrder returns class declarations so that a class follows its
// superclass and every class its attributes (or its roles' attributes)
// name as a type.
func (r *Resolver) ClassOrder() ([]*ClassDecl, error) {
	var order []*ClassDecl
	state := make(map[string]int)
	var visit func(d *ClassDecl) error
	visit = func(d *ClassDecl) error {
		switch state[d.Name] {
		case visiting:
			return fmt.Errorf("class %s: circular dependency", d.Name)
		case done:
			return nil
		}
		state[d.Name] = visiting
		for _, dep := range r.classDeps(d) {
			if dep == d.Name {
				continue
			}
			if err := visit(r.classes[dep]); err != nil {
				return fmt.Errorf("resolving %s: %w", d.Name, err)
			}
		}
		state[d.Name] = done
		order = append(order, d)
		return nil
	}
	for i := range r.manifest.Classes {
		if err := visit(&r.manifest.Classes[i]); err != nil {
			return nil, err
		}
	}
	return order, nil
}

const (
	visiting = iota + 1
	done
)

// classDeps lists the declared classes d refers to.
func (r *Resolver) classDeps(d *ClassDecl) []string {
	var deps []string
	seen := make(map[string]bool)
	add := func(name string) {
		if _, ok := r.classes[name]; ok && !seen[name] {
			seen[name] = true
			deps = append(deps, name)
		}
	}
	add(d.Extends)
	attrs := d.Attributes
	for _, roleName := range d.Roles {
		if role, ok := r.roles[roleName]; ok {
			attrs = append(attrs[:len(attrs):len(attrs)], role.Attributes...)
		}
	}
	for _, a := range attrs {
		for _, name := range typeNamePattern.FindAllString(a.Isa, -1) {
			add(name)
		}
	}
	return deps
}
