// Package consent implements the consent form: its step definitions, the
// validation rules that gate each step and the state machine that walks a
// patient from their details through to a submitted form.
package consent

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Common consent errors.
var (
	ErrUnknownField      = errors.New("consent: unknown field")
	ErrFieldType         = errors.New("consent: wrong value type for field")
	ErrInvalidTransition = errors.New("consent: invalid transition")
	ErrLocked            = errors.New("consent: form is locked")
	ErrValidation        = errors.New("consent: validation failed")
)

// Field names shared by every form kind.
const (
	FieldName      = "name"
	FieldEmail     = "email"
	FieldSignature = "drawSignature"
)

// Answers holds every value collected across the steps of a form.
// String fields default to "" and consent fields to false.
type Answers struct {
	values map[string]any
}

// NewAnswers returns answers with defaults for the fields owned by form.
func NewAnswers(form *Form) Answers {
	a := Answers{values: make(map[string]any)}
	for _, s := range form.Steps {
		switch st := s.(type) {
		case *DetailsStep:
			a.values[FieldName] = ""
			a.values[FieldEmail] = ""
		case *ConsentStep:
			a.values[st.Pair.Accept] = false
			a.values[st.Pair.Deny] = false
		case *ReviewStep:
			a.values[FieldSignature] = ""
		}
	}
	return a
}

// Has reports whether field belongs to these answers.
func (a Answers) Has(field string) bool {
	_, ok := a.values[field]
	return ok
}

// Value returns the raw value of field. Reading a field the form does not
// define is a programming error and panics.
func (a Answers) Value(field string) any {
	v, ok := a.values[field]
	if !ok {
		panic(fmt.Sprintf("consent: read of undefined field %q", field))
	}
	return v
}

// String returns a string field.
func (a Answers) String(field string) string {
	s, ok := a.Value(field).(string)
	if !ok {
		panic(fmt.Sprintf("consent: field %q is not a string", field))
	}
	return s
}

// Bool returns a boolean field.
func (a Answers) Bool(field string) bool {
	b, ok := a.Value(field).(bool)
	if !ok {
		panic(fmt.Sprintf("consent: field %q is not a bool", field))
	}
	return b
}

// Fields returns the field names in sorted order.
func (a Answers) Fields() []string {
	names := make([]string, 0, len(a.values))
	for k := range a.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Map returns a copy of the answers as a plain map.
func (a Answers) Map() map[string]any {
	out := make(map[string]any, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy.
func (a Answers) Clone() Answers {
	return Answers{values: a.Map()}
}

// set stores value for field, coercing wire representations of checkboxes.
func (a *Answers) set(field string, value any) error {
	cur, ok := a.values[field]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	switch cur.(type) {
	case string:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %q wants a string", ErrFieldType, field)
		}
		a.values[field] = s
	case bool:
		b, err := toBool(value)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrFieldType, field, err)
		}
		a.values[field] = b
	}
	return nil
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "on", "1", "yes":
			return true, nil
		case "false", "off", "0", "no", "":
			return false, nil
		}
		return false, fmt.Errorf("cannot read %q as a checkbox value", v)
	case nil:
		return false, nil
	}
	return false, fmt.Errorf("cannot read %T as a checkbox value", value)
}
