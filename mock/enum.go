package mock

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/kbukum/gormock/errors"
)

// Enum describes a string enumeration stored by value. Mock data may use
// either the stored value or the member's symbolic name; both parse to the
// same member. Model types use it from their sql.Scanner implementation:
//
//	var speciesEnum = mock.NewEnum("species", map[string]Species{"DOG": Dog, "CAT": Cat})
//
//	func (s *Species) Scan(src any) error {
//	    v, err := speciesEnum.Parse(src)
//	    *s = v
//	    return err
//	}
type Enum[T ~string] struct {
	name    string
	byName  map[string]T
	byValue map[string]T
}

// NewEnum creates an enum from symbolic names to stored values.
func NewEnum[T ~string](name string, members map[string]T) *Enum[T] {
	e := &Enum[T]{
		name:    name,
		byName:  make(map[string]T, len(members)),
		byValue: make(map[string]T, len(members)),
	}
	for symbol, v := range members {
		e.byName[symbol] = v
		e.byValue[string(v)] = v
	}
	return e
}

// Parse converts a stored value or symbolic name into a member. Unknown
// input is a validation error.
func (e *Enum[T]) Parse(src any) (T, error) {
	var s string
	switch v := src.(type) {
	case T:
		s = string(v)
	case string:
		s = v
	case []byte:
		s = string(v)
	case fmt.Stringer:
		s = v.String()
	default:
		var zero T
		return zero, apperrors.InvalidInput(e.name, fmt.Sprintf("cannot use %T as %s", src, e.name))
	}

	if v, ok := e.byValue[s]; ok {
		return v, nil
	}
	if v, ok := e.byName[s]; ok {
		return v, nil
	}
	var zero T
	return zero, apperrors.InvalidInput(e.name, fmt.Sprintf("%q is not a member of %s", s, e.name)).
		WithDetail("allowed", e.Values())
}

// Values returns the stored values in sorted order.
func (e *Enum[T]) Values() []string {
	values := make([]string, 0, len(e.byValue))
	for v := range e.byValue {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// Check returns a CHECK constraint expression restricting column to the
// stored values, for use in a gorm check tag.
func (e *Enum[T]) Check(column string) string {
	quoted := make([]string, 0, len(e.byValue))
	for _, v := range e.Values() {
		quoted = append(quoted, "'"+strings.ReplaceAll(v, "'", "''")+"'")
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(quoted, ","))
}
