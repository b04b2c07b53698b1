// Package typecheck implements the builtin type-constraint predicates.
//
// Each Kind maps to a pure, total test over value.Value. The constraint
// evaluator in package accessor dispatches here whenever a constraint
// compiles down to a builtin kind instead of an external validator.
package typecheck

import (
	"errors"
	"fmt"

	"github.com/chazu/moxie/value"
)

// Kind is a builtin constraint
type Kind uint8

const (
	Any Kind = iota
	Item
	Undef
	Defined
	Bool
	Value
	Ref
	Str
	Num
	Int
	ScalarRef
	ArrayRef
	HashRef
	CodeRef
	GlobRef
	FileHandle
	RegexpRef
	Object
	ClassName
	RoleName

	numKinds
)

var kindNames = [numKinds]string{
	Any:        "Any",
	Item:       "Item",
	Undef:      "Undef",
	Defined:    "Defined",
	Bool:       "Bool",
	Value:      "Value",
	Ref:        "Ref",
	Str:        "Str",
	Num:        "Num",
	Int:        "Int",
	ScalarRef:  "ScalarRef",
	ArrayRef:   "ArrayRef",
	HashRef:    "HashRef",
	CodeRef:    "CodeRef",
	GlobRef:    "GlobRef",
	FileHandle: "FileHandle",
	RegexpRef:  "RegexpRef",
	Object:     "Object",
	ClassName:  "ClassName",
	RoleName:   "RoleName",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Valid reports whether k is one of the builtin kinds
func (k Kind) Valid() bool {
	return k < numKinds
}

// Kinds returns every builtin kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, numKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// ParseKind looks up a builtin kind by name
func ParseKind(name string) (Kind, bool) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), true
		}
	}
	return 0, false
}

// ErrCustomConstraint is returned when a kind outside the builtin table
// reaches the dispatcher.
var ErrCustomConstraint = errors.New("custom type constraint is not yet implemented")

// IOHandleClass is the class whose instances count as file handles.
const IOHandleClass = "IO::Handle"

// Environment answers the class-loading questions a few predicates need.
// It is implemented by the reflection layer.
type Environment interface {
	IsClassLoaded(name string) bool
	IsRole(name string) bool
	IsInstanceOf(v value.Value, class string) bool
}
