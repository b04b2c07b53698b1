package typecheck

import (
	"math"

	"github.com/chazu/moxie/value"
)

// Check dispatches v to the predicate for k. Only an unknown kind fails.
func Check(k Kind, v value.Value, env Environment) (bool, error) {
	switch k {
	case Any, Item:
		return true, nil
	case Undef:
		return IsUndef(v), nil
	case Defined:
		return IsDefined(v), nil
	case Bool:
		return IsBool(v), nil
	case Value:
		return IsValue(v), nil
	case Ref:
		return IsRef(v), nil
	case Str:
		return IsStr(v), nil
	case Num:
		return IsNum(v), nil
	case Int:
		return IsInt(v), nil
	case ScalarRef:
		return IsScalarRef(v), nil
	case ArrayRef:
		return IsArrayRef(v), nil
	case HashRef:
		return IsHashRef(v), nil
	case CodeRef:
		return IsCodeRef(v), nil
	case GlobRef:
		return IsGlobRef(v), nil
	case FileHandle:
		return IsFileHandle(v, env), nil
	case RegexpRef:
		return IsRegexpRef(v), nil
	case Object:
		return IsObject(v), nil
	case ClassName:
		return IsClassName(v, env), nil
	case RoleName:
		return IsRoleName(v, env), nil
	}
	return false, ErrCustomConstraint
}

// IsUndef holds for the absent value
func IsUndef(v value.Value) bool {
	return !v.IsDefined()
}

// IsDefined holds for anything but the absent value
func IsDefined(v value.Value) bool {
	return v.IsDefined()
}

// IsBool accepts undef, 1, 0, 1.0, 0.0, "", "1" and "0".
func IsBool(v value.Value) bool {
	switch v.Type {
	case value.TypeUndef:
		return true
	case value.TypeInt:
		return v.IntVal == 1 || v.IntVal == 0
	case value.TypeFloat:
		return v.FloatVal == 1.0 || v.FloatVal == 0.0
	case value.TypeString:
		s := v.StringVal
		return s == "" || s == "1" || s == "0"
	}
	return false
}

// IsValue holds for defined non-references
func IsValue(v value.Value) bool {
	return v.IsDefined() && v.Type != value.TypeRef
}

// IsStr is the same test as IsValue
func IsStr(v value.Value) bool {
	return IsValue(v)
}

// IsNum holds for numerically stored values and for text that parses as a number
func IsNum(v value.Value) bool {
	switch v.Type {
	case value.TypeInt, value.TypeFloat:
		return true
	case value.TypeString:
		return grokNumber(v.StringVal) != notNumber
	}
	return false
}

// IsInt holds for integer-stored values, for floats with no fractional part
// that fit the integer range, and for text with no fraction or exponent.
func IsInt(v value.Value) bool {
	switch v.Type {
	case value.TypeInt:
		return true
	case value.TypeFloat:
		return floatIsInt(v.FloatVal)
	case value.TypeString:
		return grokNumber(v.StringVal) == numberInt
	}
	return false
}

// floatIsInt: positive values must round-trip through the unsigned range,
// the rest through the signed range.
func floatIsInt(f float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	if f > 0 {
		return f < 1<<64 && f == math.Trunc(f)
	}
	return f >= -(1<<63) && f == math.Trunc(f)
}

// IsRef holds for any reference
func IsRef(v value.Value) bool {
	return v.IsRef()
}

func isPlainRef(v value.Value, t value.RefType) bool {
	return v.IsRef() && !v.RefVal.IsBlessed() && v.RefVal.Type == t
}

// IsScalarRef holds for unblessed references to a scalar cell
func IsScalarRef(v value.Value) bool {
	return isPlainRef(v, value.RefScalar)
}

// IsArrayRef holds for unblessed array references
func IsArrayRef(v value.Value) bool {
	return isPlainRef(v, value.RefArray)
}

// IsHashRef holds for unblessed hash references
func IsHashRef(v value.Value) bool {
	return isPlainRef(v, value.RefHash)
}

// IsCodeRef holds for unblessed code references
func IsCodeRef(v value.Value) bool {
	return isPlainRef(v, value.RefCode)
}

// IsGlobRef holds for unblessed glob references
func IsGlobRef(v value.Value) bool {
	return isPlainRef(v, value.RefGlob)
}

// IsRegexpRef holds for compiled patterns, blessed or not
func IsRegexpRef(v value.Value) bool {
	return v.IsRef() && v.RefVal.Type == value.RefRegexp && v.RefVal.Pattern != nil
}

// IsObject holds for blessed references other than compiled patterns
func IsObject(v value.Value) bool {
	return v.IsBlessed() && !IsRegexpRef(v)
}

// IsFileHandle holds for a glob (or glob reference) with an open or tied
// handle, and for instances of IO::Handle.
func IsFileHandle(v value.Value, env Environment) bool {
	var g *value.Glob
	switch {
	case v.Type == value.TypeGlob:
		g = v.GlobVal
	case v.IsRef() && v.RefVal.Type == value.RefGlob:
		g = v.RefVal.Glob
	}
	if g != nil {
		return g.IO != nil && (g.IO.IsOpen() || g.IO.Tied)
	}
	return env != nil && v.IsBlessed() && env.IsInstanceOf(v, IOHandleClass)
}

// IsClassName holds for non-empty text naming a loaded class
func IsClassName(v value.Value, env Environment) bool {
	if env == nil || v.Type != value.TypeString || v.StringVal == "" {
		return false
	}
	return env.IsClassLoaded(v.StringVal)
}

// IsRoleName holds for a loaded class name whose metaclass is a role
func IsRoleName(v value.Value, env Environment) bool {
	return IsClassName(v, env) && env.IsRole(v.StringVal)
}
