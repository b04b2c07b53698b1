package accessor

import "strings"

// Flags is the compiled attribute status bitset.
type Flags uint16

const (
	HasTypeConstraint Flags = 1 << iota
	HasDefault
	HasBuilder
	HasInitializer
	HasTrigger
	IsLazy
	IsWeakRef
	IsRequired
	ShouldCoerce
	ShouldAutoDeref
	TCIsArray
	TCIsHash
)

var flagNames = []struct {
	bit  Flags
	name string
}{
	{HasTypeConstraint, "HAS_TYPE_CONSTRAINT"},
	{HasDefault, "HAS_DEFAULT"},
	{HasBuilder, "HAS_BUILDER"},
	{HasInitializer, "HAS_INITIALIZER"},
	{HasTrigger, "HAS_TRIGGER"},
	{IsLazy, "IS_LAZY"},
	{IsWeakRef, "IS_WEAK_REF"},
	{IsRequired, "IS_REQUIRED"},
	{ShouldCoerce, "SHOULD_COERCE"},
	{ShouldAutoDeref, "SHOULD_AUTO_DEREF"},
	{TCIsArray, "TC_IS_ARRAY"},
	{TCIsHash, "TC_IS_HASH"},
}

// Has reports whether every bit in mask is set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

func (f Flags) String() string {
	if f == 0 {
		return "0"
	}
	var parts []string
	for _, fn := range flagNames {
		if f&fn.bit != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}
