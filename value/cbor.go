package value

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/fxamacker/cbor/v2"
)

// maxDepth bounds nesting when encoding; self-referential containers
// would otherwise recurse forever.
const maxDepth = 64

// ErrTooDeep is returned when a value nests deeper than the codec allows.
var ErrTooDeep = errors.New("value nests too deeply to encode")

// Identified is implemented by opaque payloads that can be persisted by
// reference (object instances).
type Identified interface {
	InstanceID() string
}

// Resolver maps a persisted instance ID back to its reference.
// It returns nil when the instance is unknown.
type Resolver func(id string) *Ref

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("value: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// wire tags
const (
	wUndef uint8 = iota
	wInt
	wFloat
	wString
	wScalarRef
	wArrayRef
	wHashRef
	wRegexp
	wInstance
)

type wireValue struct {
	T uint8                `cbor:"t"`
	I int64                `cbor:"i,omitempty"`
	F float64              `cbor:"f,omitempty"`
	S string               `cbor:"s,omitempty"`
	C string               `cbor:"c,omitempty"`
	V *wireValue           `cbor:"v,omitempty"`
	A []wireValue          `cbor:"a,omitempty"`
	H map[string]wireValue `cbor:"h,omitempty"`
}

// MarshalCBOR serializes a single value to canonical CBOR.
func MarshalCBOR(v Value) ([]byte, error) {
	w, err := toWire(v, 0)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(w)
}

// UnmarshalCBOR deserializes a value. Instance references are looked up
// with resolve; unknown instances come back as undef.
func UnmarshalCBOR(data []byte, resolve Resolver) (Value, error) {
	var w wireValue
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Undef(), fmt.Errorf("value: unmarshal: %w", err)
	}
	return fromWire(&w, resolve)
}

// MarshalSlots serializes a name→value table, e.g. an instance's slots.
func MarshalSlots(slots map[string]Value) ([]byte, error) {
	out := make(map[string]wireValue, len(slots))
	for name, v := range slots {
		w, err := toWire(v, 0)
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", name, err)
		}
		out[name] = w
	}
	return cborEncMode.Marshal(out)
}

// UnmarshalSlots is the inverse of MarshalSlots.
func UnmarshalSlots(data []byte, resolve Resolver) (map[string]Value, error) {
	var raw map[string]wireValue
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("value: unmarshal slots: %w", err)
	}
	slots := make(map[string]Value, len(raw))
	for name, w := range raw {
		v, err := fromWire(&w, resolve)
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", name, err)
		}
		slots[name] = v
	}
	return slots, nil
}

func toWire(v Value, depth int) (wireValue, error) {
	if depth > maxDepth {
		return wireValue{}, ErrTooDeep
	}
	switch v.Type {
	case TypeUndef:
		return wireValue{T: wUndef}, nil
	case TypeInt:
		return wireValue{T: wInt, I: v.IntVal}, nil
	case TypeFloat:
		return wireValue{T: wFloat, F: v.FloatVal}, nil
	case TypeString:
		return wireValue{T: wString, S: v.StringVal}, nil
	case TypeRef:
		return refToWire(v.RefVal, depth)
	}
	return wireValue{}, fmt.Errorf("%w: %s", ErrNotSerializable, v)
}

func refToWire(r *Ref, depth int) (wireValue, error) {
	switch r.Type {
	case RefScalar:
		inner, err := toWire(*r.Scalar, depth+1)
		if err != nil {
			return wireValue{}, err
		}
		return wireValue{T: wScalarRef, C: r.Class, V: &inner}, nil
	case RefArray:
		elems := make([]wireValue, 0, r.Array.Len())
		for _, elem := range r.Array.Elements {
			w, err := toWire(elem, depth+1)
			if err != nil {
				return wireValue{}, err
			}
			elems = append(elems, w)
		}
		return wireValue{T: wArrayRef, C: r.Class, A: elems}, nil
	case RefHash:
		entries := make(map[string]wireValue, r.Hash.Len())
		var err error
		r.Hash.Range(func(k string, elem Value) bool {
			var w wireValue
			w, err = toWire(elem, depth+1)
			entries[k] = w
			return err == nil
		})
		if err != nil {
			return wireValue{}, err
		}
		return wireValue{T: wHashRef, C: r.Class, H: entries}, nil
	case RefRegexp:
		return wireValue{T: wRegexp, S: r.Pattern.String()}, nil
	case RefOpaque:
		if id, ok := r.Opaque.(Identified); ok {
			return wireValue{T: wInstance, S: id.InstanceID(), C: r.Class}, nil
		}
	}
	return wireValue{}, fmt.Errorf("%w: %s", ErrNotSerializable, r)
}

func fromWire(w *wireValue, resolve Resolver) (Value, error) {
	switch w.T {
	case wUndef:
		return Undef(), nil
	case wInt:
		return IntValue(w.I), nil
	case wFloat:
		return FloatValue(w.F), nil
	case wString:
		return StringValue(w.S), nil
	case wScalarRef:
		inner := Undef()
		if w.V != nil {
			var err error
			if inner, err = fromWire(w.V, resolve); err != nil {
				return Undef(), err
			}
		}
		r := NewScalarRef(inner)
		r.Class = w.C
		return RefValue(r), nil
	case wArrayRef:
		arr := &Array{Elements: make([]Value, 0, len(w.A))}
		for i := range w.A {
			elem, err := fromWire(&w.A[i], resolve)
			if err != nil {
				return Undef(), err
			}
			arr.Push(elem)
		}
		return RefValue(&Ref{Type: RefArray, Class: w.C, Array: arr}), nil
	case wHashRef:
		h := NewHash()
		for k, elem := range w.H {
			elem := elem
			v, err := fromWire(&elem, resolve)
			if err != nil {
				return Undef(), err
			}
			h.Set(k, v)
		}
		r := NewHashRef(h)
		r.Class = w.C
		return RefValue(r), nil
	case wRegexp:
		re, err := regexp.Compile(w.S)
		if err != nil {
			return Undef(), fmt.Errorf("value: stored pattern: %w", err)
		}
		return RefValue(NewRegexpRef(re)), nil
	case wInstance:
		if resolve == nil {
			return Undef(), nil
		}
		return RefValue(resolve(w.S)), nil
	}
	return Undef(), fmt.Errorf("value: unknown wire tag %d", w.T)
}
