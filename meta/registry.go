// Package meta is the reflection layer the accessor runtime is driven by:
// a registry of type constraints, roles and classes, the attribute
// declarations classes are built from, and the instances they create.
//
// The registry owns every metaobject. Compiled accessors only hold weak
// handles back into it.
package meta

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/tliron/commonlog"

	"github.com/chazu/moxie/typecheck"
	"github.com/chazu/moxie/value"
)

var log = commonlog.GetLogger("moxie.meta")

var (
	ErrUnknownType    = errors.New("unknown type constraint")
	ErrTypeRedefined  = errors.New("type constraint already defined")
	ErrUnknownClass   = errors.New("unknown class")
	ErrClassDefined   = errors.New("class already defined")
	ErrUnknownRole    = errors.New("unknown role")
	ErrRoleDefined    = errors.New("role already defined")
	ErrUnknownMethod  = errors.New("method not found")
	ErrClassFrozen    = errors.New("class layout is frozen")
	ErrInvalidOptions = errors.New("invalid attribute options")
)

// Registry holds every class, role, type constraint and tracked instance.
type Registry struct {
	typeMu sync.RWMutex
	types  map[string]*TypeConstraint

	classMu sync.RWMutex
	classes map[string]*Class
	roles   map[string]*Role

	instMu    sync.RWMutex
	instances map[string]*Instance

	cueMu  sync.Mutex
	cueCtx *cue.Context
}

// NewRegistry creates a registry with the builtin type constraints
// registered.
func NewRegistry() *Registry {
	r := &Registry{
		types:     make(map[string]*TypeConstraint),
		classes:   make(map[string]*Class),
		roles:     make(map[string]*Role),
		instances: make(map[string]*Instance),
	}
	r.registerBuiltins()
	return r
}

// builtinParents is the builtin constraint hierarchy.
var builtinParents = []struct {
	kind   typecheck.Kind
	parent typecheck.Kind
}{
	{typecheck.Item, typecheck.Any},
	{typecheck.Undef, typecheck.Item},
	{typecheck.Defined, typecheck.Item},
	{typecheck.Bool, typecheck.Item},
	{typecheck.Value, typecheck.Defined},
	{typecheck.Ref, typecheck.Defined},
	{typecheck.Str, typecheck.Value},
	{typecheck.Num, typecheck.Str},
	{typecheck.Int, typecheck.Num},
	{typecheck.ClassName, typecheck.Str},
	{typecheck.RoleName, typecheck.ClassName},
	{typecheck.ScalarRef, typecheck.Ref},
	{typecheck.ArrayRef, typecheck.Ref},
	{typecheck.HashRef, typecheck.Ref},
	{typecheck.CodeRef, typecheck.Ref},
	{typecheck.RegexpRef, typecheck.Ref},
	{typecheck.GlobRef, typecheck.Ref},
	{typecheck.FileHandle, typecheck.Ref},
	{typecheck.Object, typecheck.Ref},
}

func (r *Registry) registerBuiltins() {
	root := &TypeConstraint{name: typecheck.Any.String(), kind: typecheck.Any, builtin: true, registry: r}
	r.types[root.name] = root
	for _, bp := range builtinParents {
		tc := &TypeConstraint{
			name:     bp.kind.String(),
			parent:   r.types[bp.parent.String()],
			kind:     bp.kind,
			builtin:  true,
			registry: r,
		}
		r.types[tc.name] = tc
	}
	r.types["Maybe"] = &TypeConstraint{name: "Maybe", parent: r.types["Item"], registry: r}
}

// ---------------------------------------------------------------------------
// Type constraints
// ---------------------------------------------------------------------------

// TypeSpec declares a named constraint refining a parent.
type TypeSpec struct {
	Name   string
	Parent string
	// Where is a Go refinement, CUE a CUE expression the value must unify
	// with. Either, both or neither may be set.
	Where   func(v value.Value) (bool, error)
	CUE     string
	Message func(v value.Value) string
}

// DefineType registers a new named constraint. Names are write-once.
func (r *Registry) DefineType(spec TypeSpec) (*TypeConstraint, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty type name", ErrInvalidOptions)
	}
	parentName := spec.Parent
	if parentName == "" {
		parentName = "Item"
	}
	parent, err := r.Type(parentName)
	if err != nil {
		return nil, fmt.Errorf("type %s: parent: %w", name, err)
	}

	tc := &TypeConstraint{
		name:     name,
		parent:   parent,
		where:    spec.Where,
		message:  spec.Message,
		registry: r,
	}
	if spec.CUE != "" {
		schema, err := r.compileCUE(spec.CUE)
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", name, err)
		}
		tc.cue = &schema
		tc.cueSource = spec.CUE
	}

	r.typeMu.Lock()
	defer r.typeMu.Unlock()
	if _, exists := r.types[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrTypeRedefined, name)
	}
	r.types[name] = tc
	log.Debugf("defined type %s (parent %s)", name, parent.name)
	return tc, nil
}

// Type resolves a constraint expression: a registered name, a
// parameterized ArrayRef[T] / HashRef[T] / Maybe[T], a union A|B, or the
// name of a class or role (instances of it). Derived constraints are
// cached under their expression.
func (r *Registry) Type(expr string) (*TypeConstraint, error) {
	name := strings.ReplaceAll(expr, " ", "")
	if name == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrUnknownType)
	}

	r.typeMu.RLock()
	tc, ok := r.types[name]
	r.typeMu.RUnlock()
	if ok {
		return tc, nil
	}

	tc, err := r.deriveType(name)
	if err != nil {
		return nil, err
	}

	r.typeMu.Lock()
	defer r.typeMu.Unlock()
	if existing, ok := r.types[name]; ok {
		return existing, nil
	}
	r.types[name] = tc
	return tc, nil
}

func (r *Registry) deriveType(name string) (*TypeConstraint, error) {
	if members := splitUnion(name); len(members) > 1 {
		tc := &TypeConstraint{name: name, parent: r.mustType("Item"), registry: r}
		for _, m := range members {
			mt, err := r.Type(m)
			if err != nil {
				return nil, err
			}
			tc.union = append(tc.union, mt)
		}
		return tc, nil
	}

	if open := strings.IndexByte(name, '['); open > 0 && strings.HasSuffix(name, "]") {
		base, param := name[:open], name[open+1:len(name)-1]
		switch base {
		case "ArrayRef", "HashRef", "Maybe":
		default:
			return nil, fmt.Errorf("%w: %s cannot be parameterized", ErrUnknownType, base)
		}
		pt, err := r.Type(param)
		if err != nil {
			return nil, err
		}
		return &TypeConstraint{
			name:     name,
			parent:   r.mustType(base),
			param:    pt,
			paramOf:  base,
			registry: r,
		}, nil
	}

	r.classMu.RLock()
	_, isClass := r.classes[name]
	_, isRole := r.roles[name]
	r.classMu.RUnlock()
	if isClass || isRole {
		return &TypeConstraint{name: name, parent: r.mustType("Object"), instanceOf: name, registry: r}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
}

// splitUnion splits on top-level '|'.
func splitUnion(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case '|':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func (r *Registry) mustType(name string) *TypeConstraint {
	r.typeMu.RLock()
	defer r.typeMu.RUnlock()
	return r.types[name]
}

// TypeNames returns the registered constraint names, sorted.
func (r *Registry) TypeNames() []string {
	r.typeMu.RLock()
	defer r.typeMu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) compileCUE(src string) (cue.Value, error) {
	r.cueMu.Lock()
	defer r.cueMu.Unlock()
	if r.cueCtx == nil {
		r.cueCtx = cuecontext.New()
	}
	schema := r.cueCtx.CompileString(src)
	if err := schema.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compiling CUE %q: %w", src, err)
	}
	return schema, nil
}

// cueAccepts unifies v with schema. Values with no data form never match.
func (r *Registry) cueAccepts(schema cue.Value, v value.Value) bool {
	x, err := value.ToInterface(v)
	if err != nil {
		return false
	}
	r.cueMu.Lock()
	defer r.cueMu.Unlock()
	data := r.cueCtx.Encode(x)
	if data.Err() != nil {
		return false
	}
	return schema.Unify(data).Validate(cue.Concrete(true)) == nil
}

// ---------------------------------------------------------------------------
// Classes and roles
// ---------------------------------------------------------------------------

// DefineClass creates a class. superclass may be empty. Defining a subclass
// freezes the superclass layout.
func (r *Registry) DefineClass(name, superclass string) (*Class, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty class name", ErrInvalidOptions)
	}
	r.classMu.Lock()
	defer r.classMu.Unlock()

	if _, exists := r.classes[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrClassDefined, name)
	}
	if _, exists := r.roles[name]; exists {
		return nil, fmt.Errorf("%w: %s is a role", ErrClassDefined, name)
	}

	c := newClass(r, name)
	if superclass != "" {
		super, ok := r.classes[superclass]
		if !ok {
			return nil, fmt.Errorf("%w: %s (superclass of %s)", ErrUnknownClass, superclass, name)
		}
		super.freeze()
		c.superclass = super
	}
	r.classes[name] = c
	log.Debugf("defined class %s", name)
	return c, nil
}

// Class returns a registered class.
func (r *Registry) Class(name string) (*Class, error) {
	r.classMu.RLock()
	defer r.classMu.RUnlock()
	c, ok := r.classes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, name)
	}
	return c, nil
}

// ClassNames returns the registered class names, sorted.
func (r *Registry) ClassNames() []string {
	r.classMu.RLock()
	defer r.classMu.RUnlock()
	names := make([]string, 0, len(r.classes))
	for name := range r.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefineRole creates an empty role.
func (r *Registry) DefineRole(name string) (*Role, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty role name", ErrInvalidOptions)
	}
	r.classMu.Lock()
	defer r.classMu.Unlock()
	if _, exists := r.roles[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrRoleDefined, name)
	}
	if _, exists := r.classes[name]; exists {
		return nil, fmt.Errorf("%w: %s is a class", ErrRoleDefined, name)
	}
	role := &Role{name: name, methods: make(map[string]MethodFunc)}
	r.roles[name] = role
	log.Debugf("defined role %s", name)
	return role, nil
}

// Role returns a registered role.
func (r *Registry) Role(name string) (*Role, error) {
	r.classMu.RLock()
	defer r.classMu.RUnlock()
	role, ok := r.roles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, name)
	}
	return role, nil
}

// RoleNames returns the registered role names, sorted.
func (r *Registry) RoleNames() []string {
	r.classMu.RLock()
	defer r.classMu.RUnlock()
	names := make([]string, 0, len(r.roles))
	for name := range r.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// typecheck.Environment
// ---------------------------------------------------------------------------

// IsClassLoaded reports whether name is a registered class or role.
func (r *Registry) IsClassLoaded(name string) bool {
	r.classMu.RLock()
	defer r.classMu.RUnlock()
	_, isClass := r.classes[name]
	_, isRole := r.roles[name]
	return isClass || isRole
}

// IsRole reports whether name is a registered role.
func (r *Registry) IsRole(name string) bool {
	r.classMu.RLock()
	defer r.classMu.RUnlock()
	_, ok := r.roles[name]
	return ok
}

// IsInstanceOf reports whether v is an instance of class (directly, by
// inheritance, or by composing a role of that name). Plain blessed
// references match their class exactly.
func (r *Registry) IsInstanceOf(v value.Value, class string) bool {
	if !v.IsBlessed() {
		return false
	}
	if inst, ok := v.RefVal.Opaque.(*Instance); ok {
		return inst.class.IsA(class)
	}
	return v.RefVal.Class == class
}

// ---------------------------------------------------------------------------
// Instances
// ---------------------------------------------------------------------------

// NewInstance constructs an instance of className and tracks it by ID.
func (r *Registry) NewInstance(className string, args map[string]value.Value) (*Instance, error) {
	c, err := r.Class(className)
	if err != nil {
		return nil, err
	}
	inst, err := c.New(args)
	if err != nil {
		return nil, err
	}
	r.Track(inst)
	return inst, nil
}

// Track registers inst so it can be found by ID.
func (r *Registry) Track(inst *Instance) {
	r.instMu.Lock()
	defer r.instMu.Unlock()
	r.instances[inst.id] = inst
}

// Instance returns a tracked instance, or nil.
func (r *Registry) Instance(id string) *Instance {
	r.instMu.RLock()
	defer r.instMu.RUnlock()
	return r.instances[id]
}

// Forget stops tracking an instance.
func (r *Registry) Forget(id string) {
	r.instMu.Lock()
	defer r.instMu.Unlock()
	delete(r.instances, id)
}

// Instances returns the tracked instances.
func (r *Registry) Instances() []*Instance {
	r.instMu.RLock()
	defer r.instMu.RUnlock()
	out := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	return out
}

// InstanceCount returns the number of tracked instances.
func (r *Registry) InstanceCount() int {
	r.instMu.RLock()
	defer r.instMu.RUnlock()
	return len(r.instances)
}

// Resolve maps an instance ID to its self reference, for value decoding.
func (r *Registry) Resolve(id string) *value.Ref {
	if inst := r.Instance(id); inst != nil {
		return inst.self
	}
	return nil
}
