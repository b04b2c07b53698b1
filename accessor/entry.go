package accessor

import (
	"github.com/chazu/moxie/value"
)

// Form is the kind of entry point generated for an attribute.
type Form uint8

const (
	FormAccessor Form = iota
	FormReader
	FormWriter
	FormPredicate
	FormClearer
)

var formNames = [...]string{"accessor", "reader", "writer", "predicate", "clearer"}

func (f Form) String() string {
	if int(f) < len(formNames) {
		return formNames[f]
	}
	return "unknown"
}

type entry struct {
	name string
	form Form
	desc *Descriptor
}

func newEntry(name string, form Form, d *Descriptor) *entry {
	e := &entry{name: name, form: form, desc: d}
	d.bind(e)
	return e
}

// Name returns the method name the entry point is installed under.
func (e *entry) Name() string { return e.name }

// Form returns the entry point's kind.
func (e *entry) Form() Form { return e.form }

// Descriptor returns the compiled attribute record.
func (e *entry) Descriptor() *Descriptor { return e.desc }

func (e *entry) arity(got int, expected string) error {
	return &ArityError{Accessor: e.name, Got: got, Expected: expected}
}

// invocant extracts the instance from the first dynamic argument.
func invocant(v value.Value) (Instance, error) {
	if v.IsRef() && v.RefVal.Type == value.RefOpaque {
		if inst, ok := v.RefVal.Opaque.(Instance); ok {
			return inst, nil
		}
	}
	return nil, ErrNotInstance
}

func selfValue(inst Instance) value.Value {
	if vr, ok := inst.(Valuer); ok {
		return vr.AsValue()
	}
	return value.Undef()
}

func shape(vs []value.Value, want Want) []value.Value {
	if want == WantScalar {
		if len(vs) == 0 {
			return []value.Value{value.Undef()}
		}
		return vs[:1]
	}
	return vs
}

// ---------------------------------------------------------------------------
// Accessor: combined read/write
// ---------------------------------------------------------------------------

// Accessor reads with no argument and writes with one.
type Accessor struct{ *entry }

// NewAccessor binds a combined accessor named name to d.
func NewAccessor(name string, d *Descriptor) *Accessor {
	return &Accessor{newEntry(name, FormAccessor, d)}
}

// Get reads the attribute in scalar context.
func (a *Accessor) Get(inst Instance) (value.Value, error) {
	return get(a.desc, inst)
}

// GetList reads the attribute in list context.
func (a *Accessor) GetList(inst Instance) ([]value.Value, error) {
	return getList(a.desc, inst)
}

// Set writes v and returns the committed value.
func (a *Accessor) Set(inst Instance, v value.Value) (value.Value, error) {
	return a.desc.write(inst, v)
}

// Call reads when args is empty and writes when it holds one value.
func (a *Accessor) Call(inst Instance, args ...value.Value) (value.Value, error) {
	switch len(args) {
	case 0:
		return a.Get(inst)
	case 1:
		return a.Set(inst, args[0])
	}
	return value.Undef(), a.arity(len(args)+1, "one or two argument")
}

// Invoke is the dynamic entry: args[0] is the invocant.
func (a *Accessor) Invoke(want Want, args []value.Value) ([]value.Value, error) {
	if len(args) != 1 && len(args) != 2 {
		return nil, a.arity(len(args), "one or two argument")
	}
	inst, err := invocant(args[0])
	if err != nil {
		return nil, err
	}
	if len(args) == 2 {
		v, err := a.Set(inst, args[1])
		if err != nil {
			return nil, err
		}
		return []value.Value{v}, nil
	}
	return readWant(a.desc, inst, want)
}

// ---------------------------------------------------------------------------
// Reader
// ---------------------------------------------------------------------------

// Reader only reads; any value argument is a ReadOnlyViolation.
type Reader struct{ *entry }

// NewReader binds a read-only accessor named name to d.
func NewReader(name string, d *Descriptor) *Reader {
	return &Reader{newEntry(name, FormReader, d)}
}

func (r *Reader) Get(inst Instance) (value.Value, error) {
	return get(r.desc, inst)
}

func (r *Reader) GetList(inst Instance) ([]value.Value, error) {
	return getList(r.desc, inst)
}

// Call reads, or fails with ReadOnlyViolation if any value is supplied.
func (r *Reader) Call(inst Instance, args ...value.Value) (value.Value, error) {
	if len(args) > 0 {
		all := append([]value.Value{selfValue(inst)}, args...)
		return value.Undef(), &ReadOnlyViolation{Accessor: r.name, Args: all}
	}
	return r.Get(inst)
}

func (r *Reader) Invoke(want Want, args []value.Value) ([]value.Value, error) {
	if len(args) != 1 {
		all := make([]value.Value, len(args))
		copy(all, args)
		return nil, &ReadOnlyViolation{Accessor: r.name, Args: all}
	}
	inst, err := invocant(args[0])
	if err != nil {
		return nil, err
	}
	return readWant(r.desc, inst, want)
}

// ---------------------------------------------------------------------------
// Writer
// ---------------------------------------------------------------------------

// Writer takes exactly one value.
type Writer struct{ *entry }

// NewWriter binds a write-only accessor named name to d.
func NewWriter(name string, d *Descriptor) *Writer {
	return &Writer{newEntry(name, FormWriter, d)}
}

func (w *Writer) Set(inst Instance, v value.Value) (value.Value, error) {
	return w.desc.write(inst, v)
}

func (w *Writer) Call(inst Instance, args ...value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Undef(), w.arity(len(args)+1, "two arguments")
	}
	return w.Set(inst, args[0])
}

func (w *Writer) Invoke(want Want, args []value.Value) ([]value.Value, error) {
	if len(args) != 2 {
		return nil, w.arity(len(args), "two arguments")
	}
	inst, err := invocant(args[0])
	if err != nil {
		return nil, err
	}
	v, err := w.Set(inst, args[1])
	if err != nil {
		return nil, err
	}
	return []value.Value{v}, nil
}

// ---------------------------------------------------------------------------
// Predicate and clearer
// ---------------------------------------------------------------------------

// Predicate reports whether the slot is set. It never runs lazy
// initialization.
type Predicate struct{ *entry }

func NewPredicate(name string, d *Descriptor) *Predicate {
	return &Predicate{newEntry(name, FormPredicate, d)}
}

func (p *Predicate) Has(inst Instance) (bool, error) {
	return p.desc.has(inst)
}

func (p *Predicate) Invoke(want Want, args []value.Value) ([]value.Value, error) {
	if len(args) != 1 {
		return nil, p.arity(len(args), "one argument")
	}
	inst, err := invocant(args[0])
	if err != nil {
		return nil, err
	}
	ok, err := p.Has(inst)
	if err != nil {
		return nil, err
	}
	return []value.Value{value.BoolValue(ok)}, nil
}

// Clearer unsets the slot so a lazy attribute initializes again.
type Clearer struct{ *entry }

func NewClearer(name string, d *Descriptor) *Clearer {
	return &Clearer{newEntry(name, FormClearer, d)}
}

func (c *Clearer) Clear(inst Instance) error {
	return c.desc.clear(inst)
}

func (c *Clearer) Invoke(want Want, args []value.Value) ([]value.Value, error) {
	if len(args) != 1 {
		return nil, c.arity(len(args), "one argument")
	}
	inst, err := invocant(args[0])
	if err != nil {
		return nil, err
	}
	if err := c.Clear(inst); err != nil {
		return nil, err
	}
	return shape(nil, want), nil
}

// ---------------------------------------------------------------------------
// Shared read helpers
// ---------------------------------------------------------------------------

func get(d *Descriptor, inst Instance) (value.Value, error) {
	v, ok, err := d.read(inst)
	if err != nil {
		return value.Undef(), err
	}
	if !ok {
		return value.Undef(), nil
	}
	return v, nil
}

func getList(d *Descriptor, inst Instance) ([]value.Value, error) {
	v, ok, err := d.read(inst)
	if err != nil {
		return nil, err
	}
	return d.values(v, ok, WantList)
}

func readWant(d *Descriptor, inst Instance, want Want) ([]value.Value, error) {
	if want == WantList {
		return getList(d, inst)
	}
	v, err := get(d, inst)
	if err != nil {
		return nil, err
	}
	return []value.Value{v}, nil
}

// ---------------------------------------------------------------------------
// Binding
// ---------------------------------------------------------------------------

// Bind compiles a fresh descriptor for owner and wraps it in the entry
// point of the requested form.
func Bind(form Form, name string, owner Owner) (Invoker, error) {
	d, err := Compile(owner)
	if err != nil {
		return nil, err
	}
	switch form {
	case FormReader:
		return NewReader(name, d), nil
	case FormWriter:
		return NewWriter(name, d), nil
	case FormPredicate:
		return NewPredicate(name, d), nil
	case FormClearer:
		return NewClearer(name, d), nil
	}
	return NewAccessor(name, d), nil
}

// Invoker is the dynamic calling surface all entry points share.
type Invoker interface {
	Name() string
	Form() Form
	Descriptor() *Descriptor
	Invoke(want Want, args []value.Value) ([]value.Value, error)
}
