// Package schema defines the entity and wire-message types shared by the
// sync client and the relay, plus the shape validation and merge helpers
// both sides use before touching any state.
package schema

import (
	"fmt"
	"math"
)

// Field names accepted in edit change sets. The entity is keyed by its
// name field, so renames are not supported over the wire: an edit to
// "name" changes the payload but never the key it is stored under.
const (
	FieldName  = "name"
	FieldAge   = "age"
	FieldEmail = "email"
)

// Entity is a single synchronized record. Name doubles as the unique key.
type Entity struct {
	Name  string `json:"name"`
	Age   int    `json:"age"`
	Email string `json:"email"`
}

// Validate checks field values for a complete entity (as carried by an
// add message).
func (e *Entity) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("name is required")
	}
	if e.Age < 0 {
		return fmt.Errorf("age must be non-negative (got %d)", e.Age)
	}
	return nil
}

// Merge returns a copy of e with the given change set applied. Every
// field is validated before anything is written, so an invalid change
// set leaves the receiver untouched and returns the zero Entity.
func (e Entity) Merge(changes map[string]any) (Entity, error) {
	out := e
	for field, value := range changes {
		if err := out.apply(field, value); err != nil {
			return Entity{}, err
		}
	}
	return out, nil
}

// apply sets a single field from a decoded JSON value. JSON numbers
// arrive as float64; integral values are accepted for age.
func (e *Entity) apply(field string, value any) error {
	switch field {
	case FieldName:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q requires a string value (got %T)", field, value)
		}
		e.Name = s
	case FieldAge:
		age, err := coerceAge(value)
		if err != nil {
			return err
		}
		e.Age = age
	case FieldEmail:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q requires a string value (got %T)", field, value)
		}
		e.Email = s
	default:
		return fmt.Errorf("unknown entity field %q", field)
	}
	return nil
}

func coerceAge(value any) (int, error) {
	var age int
	switch v := value.(type) {
	case int:
		age = v
	case int64:
		age = int(v)
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("age must be an integer (got %v)", v)
		}
		age = int(v)
	default:
		return 0, fmt.Errorf("age requires a numeric value (got %T)", value)
	}
	if age < 0 {
		return 0, fmt.Errorf("age must be non-negative (got %d)", age)
	}
	return age, nil
}
