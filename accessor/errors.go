package accessor

import (
	"errors"
	"fmt"

	"github.com/chazu/moxie/typecheck"
	"github.com/chazu/moxie/value"
)

var (
	// ErrReleased means a back-referenced collaborator is gone.
	ErrReleased = errors.New("accessor: collaborator has been released")

	// ErrNotInstance means the invocant passed to Invoke is not an instance.
	ErrNotInstance = errors.New("accessor: invocant is not an instance")
)

// ArityError is returned when an entry point gets the wrong number of
// arguments. Got counts the invocant.
type ArityError struct {
	Accessor string
	Got      int
	Expected string
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("%s: expected exactly %s, got %d", e.Accessor, e.Expected, e.Got)
}

// ReadOnlyViolation is returned when a reader is called with a value.
// Args holds every supplied argument, invocant first.
type ReadOnlyViolation struct {
	Accessor string
	Args     []value.Value
}

func (e *ReadOnlyViolation) Error() string {
	return fmt.Sprintf("Cannot assign a value to a read-only accessor '%s'", e.Accessor)
}

// ConstraintViolation is returned when a value fails, or cannot be coerced
// to satisfy, an attribute's type constraint.
type ConstraintViolation struct {
	Accessor  string
	Attribute string
	Value     value.Value
	Message   string
	Err       error
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("Attribute (%s) does not pass the type constraint because: %s", e.Attribute, e.Message)
}

func (e *ConstraintViolation) Unwrap() error {
	return e.Err
}

// BuilderMissing is returned when a lazy attribute's builder method is not
// provided by the instance's class.
type BuilderMissing struct {
	Class     string
	Builder   string
	Attribute string
}

func (e *BuilderMissing) Error() string {
	return fmt.Sprintf("%s does not support builder method '%s' for attribute '%s'", e.Class, e.Builder, e.Attribute)
}

// AutoDerefMismatch is returned when a stored value does not have the shape
// its auto-deref constraint promises. It indicates a broken invariant
// elsewhere.
type AutoDerefMismatch struct {
	Attribute string
	Want      value.RefType
	Value     value.Value
}

func (e *AutoDerefMismatch) Error() string {
	return fmt.Sprintf("panic: Not an %s reference for %s", e.Want, e.Attribute)
}

// UnimplementedConstraint is returned when a constraint compiles to
// something that is neither a builtin kind nor an external validator.
type UnimplementedConstraint struct {
	Attribute  string
	Constraint string
	Handle     any
}

func (e *UnimplementedConstraint) Error() string {
	return fmt.Sprintf("Custom type constraint is not yet implemented (attribute %s, constraint %s, handle %T)",
		e.Attribute, e.Constraint, e.Handle)
}

func (e *UnimplementedConstraint) Unwrap() error {
	return typecheck.ErrCustomConstraint
}

// AutoDerefError is the declaration-time failure for auto-deref on a
// constraint that is neither an ArrayRef nor a HashRef.
type AutoDerefError struct {
	Attribute  string
	Constraint string
}

func (e *AutoDerefError) Error() string {
	return fmt.Sprintf("Can not auto de-reference the type constraint '%s' (attribute %s)", e.Constraint, e.Attribute)
}

func released(what, attr string) error {
	return fmt.Errorf("%w: %s of attribute %s", ErrReleased, what, attr)
}
