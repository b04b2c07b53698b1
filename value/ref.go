package value

import (
	"fmt"
	"io"
	"reflect"
	"regexp"
)

// RefType identifies what a reference points at
type RefType int

const (
	RefScalar RefType = iota
	RefArray
	RefHash
	RefCode
	RefGlob
	RefRegexp
	RefOpaque
)

func (t RefType) String() string {
	switch t {
	case RefScalar:
		return "SCALAR"
	case RefArray:
		return "ARRAY"
	case RefHash:
		return "HASH"
	case RefCode:
		return "CODE"
	case RefGlob:
		return "GLOB"
	case RefRegexp:
		return "Regexp"
	case RefOpaque:
		return "OBJECT"
	default:
		return fmt.Sprintf("RefType(%d)", int(t))
	}
}

// RegexpClass is the class compiled patterns are blessed into.
const RegexpClass = "Regexp"

// CodeFunc is the Go form of a code reference
type CodeFunc func(args []Value) (Value, error)

// Ref is a referent with pointer identity. Exactly one payload field is
// meaningful, selected by Type. Class is non-empty once blessed.
type Ref struct {
	Type    RefType
	Class   string
	Scalar  *Value
	Array   *Array
	Hash    *Hash
	Code    CodeFunc
	Glob    *Glob
	Pattern *regexp.Regexp
	Opaque  any
}

// NewScalarRef returns a reference to a fresh cell holding v
func NewScalarRef(v Value) *Ref {
	cell := v
	return &Ref{Type: RefScalar, Scalar: &cell}
}

// NewArrayRef returns a reference to a new array holding elems
func NewArrayRef(elems ...Value) *Ref {
	return &Ref{Type: RefArray, Array: NewArray(elems...)}
}

// NewHashRef returns a reference to h, or to a new empty hash if h is nil
func NewHashRef(h *Hash) *Ref {
	if h == nil {
		h = NewHash()
	}
	return &Ref{Type: RefHash, Hash: h}
}

// NewCodeRef returns a reference to fn
func NewCodeRef(fn CodeFunc) *Ref {
	return &Ref{Type: RefCode, Code: fn}
}

// NewGlobRef returns a reference to g
func NewGlobRef(g *Glob) *Ref {
	return &Ref{Type: RefGlob, Glob: g}
}

// NewRegexpRef returns a compiled-pattern reference, blessed into Regexp
func NewRegexpRef(re *regexp.Regexp) *Ref {
	return &Ref{Type: RefRegexp, Class: RegexpClass, Pattern: re}
}

// NewOpaqueRef returns a blessed reference carrying an arbitrary payload,
// typically an object instance.
func NewOpaqueRef(class string, payload any) *Ref {
	return &Ref{Type: RefOpaque, Class: class, Opaque: payload}
}

// Bless tags r with class and returns it
func (r *Ref) Bless(class string) *Ref {
	r.Class = class
	return r
}

// IsBlessed reports whether r has been blessed
func (r *Ref) IsBlessed() bool {
	return r != nil && r.Class != ""
}

// String renders r the way references print: Class=TYPE(0xADDR).
func (r *Ref) String() string {
	if r == nil {
		return ""
	}
	if r.Type == RefRegexp && r.Pattern != nil {
		return "(?^:" + r.Pattern.String() + ")"
	}
	s := fmt.Sprintf("%s(%p)", r.Type, r)
	if r.Class != "" {
		s = r.Class + "=" + s
	}
	return s
}

// ---------------------------------------------------------------------------
// Containers
// ---------------------------------------------------------------------------

// Array is an ordered sequence of values
type Array struct {
	Elements []Value
}

// NewArray creates an array holding a copy of elems
func NewArray(elems ...Value) *Array {
	a := &Array{Elements: make([]Value, len(elems))}
	copy(a.Elements, elems)
	return a
}

// Push appends an element
func (a *Array) Push(v Value) {
	a.Elements = append(a.Elements, v)
}

// At returns the element at idx, or undef when out of range
func (a *Array) At(idx int) Value {
	if idx < 0 || idx >= len(a.Elements) {
		return Undef()
	}
	return a.Elements[idx]
}

// Len returns the number of elements
func (a *Array) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Elements)
}

// Hash maps string keys to values. Iteration order is unspecified.
type Hash struct {
	entries map[string]Value
}

// NewHash creates an empty hash
func NewHash() *Hash {
	return &Hash{entries: make(map[string]Value)}
}

// Set stores v under k
func (h *Hash) Set(k string, v Value) {
	h.entries[k] = v
}

// Get returns the value stored under k
func (h *Hash) Get(k string) (Value, bool) {
	v, ok := h.entries[k]
	return v, ok
}

// Delete removes k
func (h *Hash) Delete(k string) {
	delete(h.entries, k)
}

// Len returns the number of keys
func (h *Hash) Len() int {
	if h == nil {
		return 0
	}
	return len(h.entries)
}

// Range calls fn for each entry until fn returns false
func (h *Hash) Range(fn func(k string, v Value) bool) {
	for k, v := range h.entries {
		if !fn(k, v) {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Globs and handles
// ---------------------------------------------------------------------------

// Handle is the I/O slot of a glob. Duplex marks In and Out as one
// stream, closed once.
type Handle struct {
	In     io.Reader
	Out    io.Writer
	Duplex bool
	Tied   bool
	closed bool
}

// NewDuplexHandle returns a handle reading and writing the same stream.
func NewDuplexHandle(rw io.ReadWriter) *Handle {
	return &Handle{In: rw, Out: rw, Duplex: true}
}

// IsOpen reports whether the handle has a live stream
func (h *Handle) IsOpen() bool {
	return h != nil && !h.closed && (h.In != nil || h.Out != nil)
}

// Close marks the handle closed. Underlying closers are closed as well.
func (h *Handle) Close() error {
	if h == nil || h.closed {
		return nil
	}
	h.closed = true
	var err error
	if c, ok := h.In.(io.Closer); ok {
		err = c.Close()
	}
	if c, ok := h.Out.(io.Closer); ok && !h.Duplex && !sameStream(h.In, h.Out) {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// sameStream reports whether in and out are the same comparable value.
// Streams of uncomparable types are never considered the same.
func sameStream(in io.Reader, out io.Writer) bool {
	if in == nil || out == nil {
		return false
	}
	a, b := any(in), any(out)
	t := reflect.TypeOf(a)
	return t == reflect.TypeOf(b) && t.Comparable() && a == b
}

// Glob is a named symbol-table entry, optionally carrying a handle
type Glob struct {
	Name string
	IO   *Handle
}

// String renders the glob as *main::NAME
func (g *Glob) String() string {
	if g == nil {
		return ""
	}
	return "*main::" + g.Name
}
