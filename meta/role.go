package meta

import "sync"

// Role is a named bundle of attributes, methods and required methods that
// classes compose.
type Role struct {
	name string

	mu         sync.RWMutex
	requires   []string
	attributes []AttributeSpec
	methods    map[string]MethodFunc
}

func (r *Role) Name() string { return r.name }

// Requires adds method names a composing class must provide.
func (r *Role) Requires(selectors ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requires = append(r.requires, selectors...)
}

// AddAttribute records an attribute to be declared on composing classes.
func (r *Role) AddAttribute(spec AttributeSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attributes = append(r.attributes, spec)
}

// AddMethod records a method composing classes receive unless they define
// their own.
func (r *Role) AddMethod(selector string, impl MethodFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[selector] = impl
}

// AttributeNames lists the role's attributes in order.
func (r *Role) AttributeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.attributes))
	for i, a := range r.attributes {
		names[i] = a.Name
	}
	return names
}
