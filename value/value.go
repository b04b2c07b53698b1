// Package value provides the dynamic value model shared by the accessor
// runtime, the builtin type predicates and the meta layer.
//
// A Value remembers how it was stored (integer, float or text), whether it is
// defined, and, for references, what kind of referent it points at and
// whether that referent has been blessed into a class.
package value

import (
	"fmt"
	"math"
	"strconv"
)

// Type represents the storage type of a Value
type Type int

const (
	TypeUndef Type = iota
	TypeInt
	TypeFloat
	TypeString
	TypeRef
	TypeGlob
)

func (t Type) String() string {
	switch t {
	case TypeUndef:
		return "undef"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeRef:
		return "ref"
	case TypeGlob:
		return "glob"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Value is the Go representation of a runtime value.
// Copying a Value copies scalars and shares referents.
type Value struct {
	Type      Type
	IntVal    int64
	FloatVal  float64
	StringVal string
	RefVal    *Ref
	GlobVal   *Glob
}

// Undef returns the undefined value
func Undef() Value {
	return Value{Type: TypeUndef}
}

// IntValue creates an integer-stored value
func IntValue(n int64) Value {
	return Value{Type: TypeInt, IntVal: n}
}

// FloatValue creates a float-stored value
func FloatValue(f float64) Value {
	return Value{Type: TypeFloat, FloatVal: f}
}

// StringValue creates a text-stored value
func StringValue(s string) Value {
	return Value{Type: TypeString, StringVal: s}
}

// BoolValue creates the canonical boolean: 1 for true, the empty string for false.
func BoolValue(b bool) Value {
	if b {
		return IntValue(1)
	}
	return StringValue("")
}

// RefValue wraps a referent. A nil ref yields undef.
func RefValue(r *Ref) Value {
	if r == nil {
		return Undef()
	}
	return Value{Type: TypeRef, RefVal: r}
}

// GlobValue wraps a bare glob. A nil glob yields undef.
func GlobValue(g *Glob) Value {
	if g == nil {
		return Undef()
	}
	return Value{Type: TypeGlob, GlobVal: g}
}

// IsDefined reports whether v holds anything at all
func (v Value) IsDefined() bool {
	return v.Type != TypeUndef
}

// IsRef reports whether v is a reference
func (v Value) IsRef() bool {
	return v.Type == TypeRef && v.RefVal != nil
}

// IsBlessed reports whether v is a reference blessed into a class
func (v Value) IsBlessed() bool {
	return v.IsRef() && v.RefVal.Class != ""
}

// IsTruthy follows the usual scalar truth rules: undef, 0, 0.0, "" and "0"
// are false, everything else (including every reference) is true.
func (v Value) IsTruthy() bool {
	switch v.Type {
	case TypeUndef:
		return false
	case TypeInt:
		return v.IntVal != 0
	case TypeFloat:
		return v.FloatVal != 0
	case TypeString:
		return v.StringVal != "" && v.StringVal != "0"
	default:
		return true
	}
}

// AsString converts the value to its string form; undef becomes "".
func (v Value) AsString() string {
	switch v.Type {
	case TypeUndef:
		return ""
	case TypeInt:
		return strconv.FormatInt(v.IntVal, 10)
	case TypeFloat:
		return formatFloat(v.FloatVal)
	case TypeString:
		return v.StringVal
	case TypeRef:
		return v.RefVal.String()
	case TypeGlob:
		return v.GlobVal.String()
	default:
		return ""
	}
}

// String renders v for diagnostics; undef is spelled out.
func (v Value) String() string {
	if v.Type == TypeUndef {
		return "undef"
	}
	return v.AsString()
}

// AsInt converts the value to an integer, truncating floats and parsing text.
func (v Value) AsInt() int64 {
	switch v.Type {
	case TypeInt:
		return v.IntVal
	case TypeFloat:
		return int64(v.FloatVal)
	case TypeString:
		n, _ := strconv.ParseInt(v.StringVal, 10, 64)
		return n
	default:
		return 0
	}
}

// AsFloat converts the value to a float
func (v Value) AsFloat() float64 {
	switch v.Type {
	case TypeFloat:
		return v.FloatVal
	case TypeInt:
		return float64(v.IntVal)
	case TypeString:
		f, _ := strconv.ParseFloat(v.StringVal, 64)
		return f
	default:
		return 0
	}
}

// Same reports whether a and b are the same value: equal scalars of the same
// storage type, or references to the same referent.
func Same(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case TypeUndef:
		return true
	case TypeInt:
		return a.IntVal == b.IntVal
	case TypeFloat:
		return a.FloatVal == b.FloatVal || (math.IsNaN(a.FloatVal) && math.IsNaN(b.FloatVal))
	case TypeString:
		return a.StringVal == b.StringVal
	case TypeRef:
		return a.RefVal == b.RefVal
	case TypeGlob:
		return a.GlobVal == b.GlobVal
	}
	return false
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case math.IsNaN(f):
		return "NaN"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', 15, 64)
}
