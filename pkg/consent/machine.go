package consent

import (
	"errors"
	"fmt"
)

// DefaultSubmitError is shown when a failed submission carries no message
// meant for the user.
const DefaultSubmitError = "Network response was not ok"

// Status is the coarse state of a Machine.
type Status int

const (
	// Editing means the user is on an editable step.
	Editing Status = iota
	// Submitting means a submission is in flight.
	Submitting
	// Submitted means the backend accepted the form.
	Submitted
)

func (s Status) String() string {
	switch s {
	case Editing:
		return "editing"
	case Submitting:
		return "submitting"
	case Submitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// Submission is a payload the caller must deliver, then report back through
// Complete with the same Gen.
type Submission struct {
	Gen     uint64
	Payload Payload
}

// Machine walks one form from the details step to the success step.
// It is not safe for concurrent use; callers serialize access.
type Machine struct {
	form      *Form
	answers   Answers
	errs      Errors
	index     int
	status    Status
	gen       uint64
	submitErr string
}

// NewMachine returns a machine at the first step with default answers.
func NewMachine(form *Form) *Machine {
	m := &Machine{form: form}
	m.reset()
	return m
}

func (m *Machine) reset() {
	m.answers = NewAnswers(m.form)
	m.errs = make(Errors)
	m.index = 0
	m.status = Editing
	m.submitErr = ""
	m.gen++
}

func (m *Machine) Form() *Form         { return m.form }
func (m *Machine) Kind() Kind          { return m.form.Kind }
func (m *Machine) Index() int          { return m.index }
func (m *Machine) Len() int            { return m.form.Len() }
func (m *Machine) Step() Step          { return m.form.Steps[m.index] }
func (m *Machine) Status() Status      { return m.status }
func (m *Machine) Answers() Answers    { return m.answers.Clone() }
func (m *Machine) Errors() Errors      { return m.errs.Clone() }
func (m *Machine) SubmitError() string { return m.submitErr }

// OnReview reports whether the machine is editing the review step.
func (m *Machine) OnReview() bool {
	return m.status == Editing && m.index == m.form.LastEditable()
}

// Set stores one answer. Edits are rejected once a submission is in flight
// or has succeeded. Setting a field clears its previous error; setting either
// side of a consent pair clears the error on both.
func (m *Machine) Set(field string, value any) error {
	if m.status != Editing {
		return fmt.Errorf("%w: %s", ErrLocked, m.status)
	}
	if err := m.answers.set(field, value); err != nil {
		return err
	}
	delete(m.errs, field)
	for _, cs := range m.form.ConsentSteps() {
		if field == cs.Pair.Accept || field == cs.Pair.Deny {
			delete(m.errs, cs.Pair.Accept)
			delete(m.errs, cs.Pair.Deny)
		}
	}
	return nil
}

// Next validates the current step and advances. Leaving the review step
// starts a submission, which is returned. ErrValidation means the step's
// fields failed and Errors holds the messages.
func (m *Machine) Next() (*Submission, error) {
	if m.status != Editing {
		return nil, fmt.Errorf("%w: next while %s", ErrInvalidTransition, m.status)
	}
	if m.index == m.form.LastEditable() {
		return m.Submit()
	}

	errs := ValidateStep(m.Step(), m.answers)
	for _, f := range m.Step().Fields() {
		delete(m.errs, f)
	}
	if !errs.Empty() {
		for f, msg := range errs {
			m.errs[f] = msg
		}
		return nil, ErrValidation
	}

	m.index++
	return nil, nil
}

// Back returns to the previous step without validating anything.
func (m *Machine) Back() error {
	if m.status != Editing || m.index == 0 {
		return fmt.Errorf("%w: back from step %d while %s", ErrInvalidTransition, m.index, m.status)
	}
	m.index--
	return nil
}

// Submit runs every step's rules as a final gate and, when they pass, moves
// to Submitting and returns the submission to deliver.
func (m *Machine) Submit() (*Submission, error) {
	if !m.OnReview() {
		return nil, fmt.Errorf("%w: submit from step %d while %s", ErrInvalidTransition, m.index, m.status)
	}

	errs := m.form.Validate(m.answers)
	m.errs = errs
	if !errs.Empty() {
		return nil, ErrValidation
	}

	m.submitErr = ""
	m.status = Submitting
	return &Submission{Gen: m.gen, Payload: NewPayload(m.form, m.answers)}, nil
}

// Complete resolves the submission with generation gen. A nil err moves to
// the success step; otherwise the machine returns to the review step with a
// user-visible message and the answers untouched. Results for a submission
// that was abandoned by Restart are ignored; the return value reports
// whether the result was applied.
func (m *Machine) Complete(gen uint64, err error) bool {
	if m.status != Submitting || gen != m.gen {
		return false
	}
	if err != nil {
		m.status = Editing
		m.submitErr = UserMessage(err)
		return true
	}
	m.status = Submitted
	m.index = m.form.Terminal()
	return true
}

// DismissSubmitError clears the submission error notice.
func (m *Machine) DismissSubmitError() {
	m.submitErr = ""
}

// Restart discards every answer and error and returns to the first step.
// It is valid from any state.
func (m *Machine) Restart() {
	m.reset()
}

// UserMessage extracts the message to show for a failed submission.
func UserMessage(err error) string {
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		if msg := um.UserMessage(); msg != "" {
			return msg
		}
	}
	return DefaultSubmitError
}
