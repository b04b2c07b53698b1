package value

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
)

// ErrNotSerializable is returned for values with no portable encoding
// (code refs, globs, handles, and opaque payloads without an identity).
var ErrNotSerializable = errors.New("value is not serializable")

// FromJSON decodes a JSON document into a Value. Integers stay
// integer-stored; arrays and objects become array and hash references.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Undef(), fmt.Errorf("decoding JSON value: %w", err)
	}
	return FromInterface(raw), nil
}

// ParseLiteral interprets s as JSON, falling back to a plain string.
func ParseLiteral(s string) Value {
	if v, err := FromJSON([]byte(s)); err == nil {
		return v
	}
	return StringValue(s)
}

// FromInterface converts decoded JSON/TOML data to a Value
func FromInterface(x any) Value {
	switch t := x.(type) {
	case nil:
		return Undef()
	case Value:
		return t
	case bool:
		return BoolValue(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return IntValue(n)
		}
		f, _ := t.Float64()
		return FloatValue(f)
	case int:
		return IntValue(int64(t))
	case int64:
		return IntValue(t)
	case float64:
		return FloatValue(t)
	case string:
		return StringValue(t)
	case []any:
		arr := NewArray()
		for _, elem := range t {
			arr.Push(FromInterface(elem))
		}
		return RefValue(&Ref{Type: RefArray, Array: arr})
	case []map[string]any:
		arr := NewArray()
		for _, elem := range t {
			arr.Push(FromInterface(elem))
		}
		return RefValue(&Ref{Type: RefArray, Array: arr})
	case map[string]any:
		h := NewHash()
		for k, elem := range t {
			h.Set(k, FromInterface(elem))
		}
		return RefValue(NewHashRef(h))
	default:
		return StringValue(fmt.Sprintf("%v", x))
	}
}

// ToInterface converts v to plain Go data suitable for JSON encoding.
// Blessed containers lose their class.
func ToInterface(v Value) (any, error) {
	return toInterface(v, 0)
}

func toInterface(v Value, depth int) (any, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}
	switch v.Type {
	case TypeUndef:
		return nil, nil
	case TypeInt:
		return v.IntVal, nil
	case TypeFloat:
		return v.FloatVal, nil
	case TypeString:
		return v.StringVal, nil
	case TypeRef:
		r := v.RefVal
		switch r.Type {
		case RefScalar:
			return toInterface(*r.Scalar, depth+1)
		case RefArray:
			out := make([]any, 0, r.Array.Len())
			for _, elem := range r.Array.Elements {
				x, err := toInterface(elem, depth+1)
				if err != nil {
					return nil, err
				}
				out = append(out, x)
			}
			return out, nil
		case RefHash:
			out := make(map[string]any, r.Hash.Len())
			var err error
			r.Hash.Range(func(k string, elem Value) bool {
				out[k], err = toInterface(elem, depth+1)
				return err == nil
			})
			return out, err
		case RefRegexp:
			return r.String(), nil
		case RefOpaque:
			if id, ok := r.Opaque.(Identified); ok {
				return map[string]any{"$instance": id.InstanceID(), "$class": r.Class}, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotSerializable, v)
}

// ToJSON encodes v as JSON. Hash keys are emitted in sorted order.
func ToJSON(v Value) ([]byte, error) {
	x, err := ToInterface(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(x)
}

// Keys returns the hash keys in sorted order, for stable output.
func (h *Hash) Keys() []string {
	keys := make([]string, 0, h.Len())
	for k := range h.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
