package consent

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// User-facing validation messages.
const (
	MsgNameRequired      = "Please enter a name"
	MsgNameTooLong       = "Name is too long"
	MsgInvalidEmail      = "Invalid email"
	MsgSelectOne         = "Please select ONE option."
	MsgSignatureRequired = "Please draw/type your signature to sign"
)

// MaxNameLength bounds the name field, in characters.
const MaxNameLength = 255

// Errors maps a field name to the message of its first failing rule.
type Errors map[string]string

// Add records msg for field unless the field already failed.
func (e Errors) Add(field, msg string) {
	if _, ok := e[field]; !ok {
		e[field] = msg
	}
}

// Get returns the message for field, or "".
func (e Errors) Get(field string) string {
	return e[field]
}

// Has reports whether field failed.
func (e Errors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

// Empty reports whether no field failed.
func (e Errors) Empty() bool {
	return len(e) == 0
}

// Clone returns an independent copy.
func (e Errors) Clone() Errors {
	out := make(Errors, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Rule evaluates part of the answers and records failures.
type Rule interface {
	Apply(a Answers, errs Errors)
}

// Validator validates a single field value.
type Validator interface {
	// Validate checks if the value is valid.
	Validate(value any) error

	// Message returns the error message.
	Message() string
}

// FieldRule runs validators against one field and records the message of
// the first one that fails.
type FieldRule struct {
	Field      string
	Validators []Validator
}

func (r FieldRule) Apply(a Answers, errs Errors) {
	v := a.Value(r.Field)
	for _, val := range r.Validators {
		if err := val.Validate(v); err != nil {
			errs.Add(r.Field, val.Message())
			return
		}
	}
}

// PairRule passes iff exactly one field of the pair is true. On failure the
// message is attached to both fields.
type PairRule struct {
	Pair Pair
	Msg  string
}

func (r PairRule) Apply(a Answers, errs Errors) {
	if a.Bool(r.Pair.Accept) != a.Bool(r.Pair.Deny) {
		return
	}
	errs.Add(r.Pair.Accept, r.Msg)
	errs.Add(r.Pair.Deny, r.Msg)
}

// Required fails on blank strings.
type Required struct {
	Msg string
}

func (v Required) Validate(value any) error {
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return errors.New("required")
	}
	return nil
}

func (v Required) Message() string { return v.Msg }

// MaxLength fails on strings longer than Max characters.
type MaxLength struct {
	Max int
	Msg string
}

func (v MaxLength) Validate(value any) error {
	s, _ := value.(string)
	if utf8.RuneCountInString(strings.TrimSpace(s)) > v.Max {
		return errors.New("too long")
	}
	return nil
}

func (v MaxLength) Message() string { return v.Msg }

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Email fails unless the value is a syntactically valid address. An empty
// value fails too.
type Email struct {
	Msg string
}

func (v Email) Validate(value any) error {
	s, _ := value.(string)
	if !emailRegex.MatchString(strings.TrimSpace(s)) {
		return errors.New("invalid email")
	}
	return nil
}

func (v Email) Message() string { return v.Msg }
