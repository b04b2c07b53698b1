package meta

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/moxie/accessor"
	"github.com/chazu/moxie/value"
)

// MethodFunc is the signature of a method installed in a class. args
// excludes the invocant.
type MethodFunc func(self *Instance, want accessor.Want, args []value.Value) ([]value.Value, error)

// MethodEntry describes a single method
type MethodEntry struct {
	Selector string
	Impl     MethodFunc
	// Entry is set for generated attribute methods.
	Entry accessor.Invoker
}

// MissingRequiredError is returned by construction when a required
// attribute has no init arg, default or builder.
type MissingRequiredError struct {
	Class     string
	Attribute string
}

func (e *MissingRequiredError) Error() string {
	return fmt.Sprintf("Attribute (%s) is required", e.Attribute)
}

// Class is a registered class: its methods, attributes and slot layout.
type Class struct {
	name       string
	registry   *Registry
	superclass *Class
	storage    *slotStorage

	mu         sync.RWMutex
	methods    map[string]*MethodEntry
	attributes []*Attribute
	roles      []*Role
	frozen     bool
}

func newClass(r *Registry, name string) *Class {
	c := &Class{
		name:     name,
		registry: r,
		methods:  make(map[string]*MethodEntry),
	}
	c.storage = &slotStorage{class: c}
	return c
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// Superclass returns the parent class, or nil.
func (c *Class) Superclass() *Class { return c.superclass }

// Registry returns the owning registry.
func (c *Class) Registry() *Registry { return c.registry }

func (c *Class) String() string { return c.name }

// IsClassLoaded, IsRole and IsInstanceOf make a class usable as the
// environment of its own attributes' constraints.
func (c *Class) IsClassLoaded(name string) bool { return c.registry.IsClassLoaded(name) }
func (c *Class) IsRole(name string) bool        { return c.registry.IsRole(name) }
func (c *Class) IsInstanceOf(v value.Value, class string) bool {
	return c.registry.IsInstanceOf(v, class)
}

// IsSubclassOf returns true if c is other or inherits from it.
func (c *Class) IsSubclassOf(other *Class) bool {
	for current := c; current != nil; current = current.superclass {
		if current == other {
			return true
		}
	}
	return false
}

// IsA reports whether c is name, inherits from it, or does a role called
// name.
func (c *Class) IsA(name string) bool {
	for current := c; current != nil; current = current.superclass {
		if current.name == name {
			return true
		}
	}
	return c.DoesRole(name)
}

// DoesRole reports whether c or an ancestor composed the named role.
func (c *Class) DoesRole(name string) bool {
	for current := c; current != nil; current = current.superclass {
		current.mu.RLock()
		for _, role := range current.roles {
			if role.name == name {
				current.mu.RUnlock()
				return true
			}
		}
		current.mu.RUnlock()
	}
	return false
}

// ---------------------------------------------------------------------------
// Methods
// ---------------------------------------------------------------------------

// AddMethod installs a method, replacing any previous one of that name.
func (c *Class) AddMethod(selector string, impl MethodFunc) {
	c.addMethod(selector, impl, nil)
}

func (c *Class) addMethod(selector string, impl MethodFunc, entry accessor.Invoker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.methods[selector] = &MethodEntry{Selector: selector, Impl: impl, Entry: entry}
}

// LookupMethod finds a method, walking up the class hierarchy.
func (c *Class) LookupMethod(selector string) *MethodEntry {
	for current := c; current != nil; current = current.superclass {
		current.mu.RLock()
		m := current.methods[selector]
		current.mu.RUnlock()
		if m != nil {
			return m
		}
	}
	return nil
}

// HasMethod reports whether selector resolves on c.
func (c *Class) HasMethod(selector string) bool {
	return c.LookupMethod(selector) != nil
}

// ---------------------------------------------------------------------------
// Attributes and layout
// ---------------------------------------------------------------------------

// AddAttribute declares an attribute and installs its entry points. The
// layout is frozen once the class has subclasses or instances.
func (c *Class) AddAttribute(spec AttributeSpec) (*Attribute, error) {
	c.mu.Lock()
	if c.frozen {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot add %s to %s", ErrClassFrozen, spec.Name, c.name)
	}
	c.mu.Unlock()

	if existing := c.FindAttribute(spec.Name); existing != nil {
		return nil, fmt.Errorf("%w: %s.%s already declared by %s", ErrInvalidOptions, c.name, spec.Name, existing.class.name)
	}

	a, err := newAttribute(c, spec)
	if err != nil {
		return nil, err
	}

	// The class may have been frozen while the attribute was built.
	c.mu.Lock()
	if c.frozen {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot add %s to %s", ErrClassFrozen, spec.Name, c.name)
	}
	c.attributes = append(c.attributes, a)
	c.mu.Unlock()

	if err := a.install(); err != nil {
		c.removeAttribute(a)
		return nil, fmt.Errorf("%s.%s: %w", c.name, spec.Name, err)
	}
	log.Debugf("added attribute %s.%s", c.name, spec.Name)
	return a, nil
}

// removeAttribute undoes AddAttribute for a: the attribute leaves the
// layout and its generated methods leave the method table. A frozen layout
// is left as it is.
func (c *Class) removeAttribute(a *Attribute) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		log.Warningf("cannot remove %s.%s: class layout is frozen", c.name, a.spec.Name)
		return false
	}
	for i, existing := range c.attributes {
		if existing == a {
			c.attributes = append(c.attributes[:i], c.attributes[i+1:]...)
			break
		}
	}
	for name, entry := range a.entries {
		if m := c.methods[name]; m != nil && m.Entry == entry {
			delete(c.methods, name)
		}
	}
	return true
}

// Attributes returns the attributes c declares itself, in order.
func (c *Class) Attributes() []*Attribute {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Attribute, len(c.attributes))
	copy(out, c.attributes)
	return out
}

// AllAttributes returns inherited attributes first, then c's own.
func (c *Class) AllAttributes() []*Attribute {
	if c.superclass == nil {
		return c.Attributes()
	}
	return append(c.superclass.AllAttributes(), c.Attributes()...)
}

// FindAttribute looks an attribute up by name through the hierarchy.
func (c *Class) FindAttribute(name string) *Attribute {
	for current := c; current != nil; current = current.superclass {
		current.mu.RLock()
		for _, a := range current.attributes {
			if a.spec.Name == name {
				current.mu.RUnlock()
				return a
			}
		}
		current.mu.RUnlock()
	}
	return nil
}

// SlotIndex returns the slot index for an attribute by name.
// Returns -1 if the attribute is not found.
func (c *Class) SlotIndex(name string) int {
	c.mu.RLock()
	for i, a := range c.attributes {
		if a.spec.Name == name {
			c.mu.RUnlock()
			return c.slotOffset() + i
		}
	}
	c.mu.RUnlock()
	if c.superclass != nil {
		return c.superclass.SlotIndex(name)
	}
	return -1
}

// slotOffset returns the starting slot index for this class's attributes.
func (c *Class) slotOffset() int {
	if c.superclass == nil {
		return 0
	}
	return c.superclass.NumSlots()
}

// NumSlots returns the number of slots an instance of c carries.
func (c *Class) NumSlots() int {
	c.mu.RLock()
	n := len(c.attributes)
	c.mu.RUnlock()
	return c.slotOffset() + n
}

func (c *Class) freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
}

// ---------------------------------------------------------------------------
// Roles
// ---------------------------------------------------------------------------

// ApplyRole composes role into c: its required methods must already be
// present, its attributes are added, and its methods are installed unless c
// defines them itself.
func (c *Class) ApplyRole(role *Role) error {
	role.mu.RLock()
	requires := append([]string(nil), role.requires...)
	attrs := append([]AttributeSpec(nil), role.attributes...)
	methods := make(map[string]MethodFunc, len(role.methods))
	for k, m := range role.methods {
		methods[k] = m
	}
	role.mu.RUnlock()

	for _, sel := range requires {
		if !c.HasMethod(sel) && methods[sel] == nil {
			return fmt.Errorf("%w: role %s requires method %s, which %s does not provide",
				ErrUnknownMethod, role.name, sel, c.name)
		}
	}

	// Composition is all or nothing: a failing attribute takes back the
	// ones already added.
	var added []*Attribute
	var errs []error
	for _, spec := range attrs {
		a, err := c.AddAttribute(spec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		added = append(added, a)
	}
	if err := errors.Join(errs...); err != nil {
		for i := len(added) - 1; i >= 0; i-- {
			c.removeAttribute(added[i])
		}
		return fmt.Errorf("applying role %s to %s: %w", role.name, c.name, err)
	}

	for sel, m := range methods {
		c.mu.RLock()
		_, own := c.methods[sel]
		c.mu.RUnlock()
		if !own {
			c.AddMethod(sel, m)
		}
	}

	c.mu.Lock()
	c.roles = append(c.roles, role)
	c.mu.Unlock()
	log.Debugf("applied role %s to %s", role.name, c.name)
	return nil
}

// Roles returns the roles c composed directly.
func (c *Class) Roles() []*Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Role(nil), c.roles...)
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// New constructs an instance. Init args go through each attribute's write
// path (constraint, coercion, weakening, trigger); attributes without one
// get their default or builder unless they are lazy. A required attribute
// left unset fails construction. A BUILD method, if any, runs last.
func (c *Class) New(args map[string]value.Value) (*Instance, error) {
	c.freeze()
	inst := newInstance(c)

	for _, a := range c.AllAttributes() {
		if key := a.InitArg(); key != "" {
			if v, ok := args[key]; ok {
				if _, err := a.init.Set(inst, v); err != nil {
					return nil, err
				}
				continue
			}
		}
		if a.IsRequired() && !a.HasDefault() && !a.HasBuilder() {
			return nil, &MissingRequiredError{Class: c.name, Attribute: a.spec.Name}
		}
		if !a.IsLazy() && (a.HasDefault() || a.HasBuilder()) {
			if err := a.initDesc.Initialize(inst); err != nil {
				return nil, err
			}
		}
	}

	if m := c.LookupMethod("BUILD"); m != nil {
		if _, err := m.Impl(inst, accessor.WantScalar, nil); err != nil {
			return nil, fmt.Errorf("%s::BUILD: %w", c.name, err)
		}
	}
	return inst, nil
}
