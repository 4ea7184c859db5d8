package consent

// Kind discriminates the adult form from the parent/guardian form.
type Kind string

const (
	KindAdult Kind = "adult"
	KindChild Kind = "child"
)

// Valid reports whether k names a known form kind.
func (k Kind) Valid() bool {
	return k == KindAdult || k == KindChild
}

// Step is one screen of a form. The concrete variants are *DetailsStep,
// *ConsentStep, *ReviewStep and *SuccessStep; the set is closed.
type Step interface {
	// Title is the heading shown for the step.
	Title() string

	// Fields lists the answers this step owns.
	Fields() []string

	// Rules returns the rule set that gates leaving the step.
	Rules() []Rule

	isStep()
}

// DetailsStep collects the name and e-mail address.
type DetailsStep struct {
	Heading          string
	NameLabel        string
	NamePlaceholder  string
	EmailLabel       string
	EmailPlaceholder string
}

func (s *DetailsStep) Title() string    { return s.Heading }
func (s *DetailsStep) Fields() []string { return []string{FieldName, FieldEmail} }
func (s *DetailsStep) isStep()          {}

// Rules requires a bounded name and a syntactically valid e-mail.
func (s *DetailsStep) Rules() []Rule {
	return []Rule{
		FieldRule{Field: FieldName, Validators: []Validator{
			Required{Msg: MsgNameRequired},
			MaxLength{Max: MaxNameLength, Msg: MsgNameTooLong},
		}},
		FieldRule{Field: FieldEmail, Validators: []Validator{
			Email{Msg: MsgInvalidEmail},
		}},
	}
}

// Pair names the accept and deny checkboxes of one consent question.
type Pair struct {
	Accept string
	Deny   string
}

// Option is one checkbox of a consent question.
type Option struct {
	Field       string
	Label       string
	Description string
}

// ConsentStep asks one yes/no consent question as an accept/deny pair.
type ConsentStep struct {
	Heading string
	// Topic names the question on the review screen, e.g. "Research Consent".
	Topic string
	// PayloadKey selects the consent flag this pair feeds.
	PayloadKey string
	Pre        string
	Post       string
	Pair       Pair
	AcceptOpt  Option
	DenyOpt    Option
}

func (s *ConsentStep) Title() string    { return s.Heading }
func (s *ConsentStep) Fields() []string { return []string{s.Pair.Accept, s.Pair.Deny} }
func (s *ConsentStep) Rules() []Rule    { return []Rule{PairRule{Pair: s.Pair, Msg: MsgSelectOne}} }
func (s *ConsentStep) isStep()          {}

// ReviewStep summarises the answers and captures the signature.
type ReviewStep struct {
	Heading        string
	Statement      string
	SignatureLabel string
}

func (s *ReviewStep) Title() string    { return s.Heading }
func (s *ReviewStep) Fields() []string { return []string{FieldSignature} }
func (s *ReviewStep) isStep()          {}

func (s *ReviewStep) Rules() []Rule {
	return []Rule{
		FieldRule{Field: FieldSignature, Validators: []Validator{
			Required{Msg: MsgSignatureRequired},
		}},
	}
}

// SuccessStep is the terminal screen shown after a successful submission.
type SuccessStep struct {
	Heading string
	Message string
}

func (s *SuccessStep) Title() string    { return s.Heading }
func (s *SuccessStep) Fields() []string { return nil }
func (s *SuccessStep) Rules() []Rule    { return nil }
func (s *SuccessStep) isStep()          {}

// Form is an ordered, immutable list of steps. The last step is always the
// success step and the one before it the review step.
type Form struct {
	Kind     Kind
	Title    string
	Subtitle string
	Steps    []Step
}

// Len returns the number of steps including the success step.
func (f *Form) Len() int {
	return len(f.Steps)
}

// Terminal returns the index of the success step.
func (f *Form) Terminal() int {
	return len(f.Steps) - 1
}

// LastEditable returns the index of the review step.
func (f *Form) LastEditable() int {
	return len(f.Steps) - 2
}

// ConsentSteps returns the consent questions in order.
func (f *Form) ConsentSteps() []*ConsentStep {
	var out []*ConsentStep
	for _, s := range f.Steps {
		if cs, ok := s.(*ConsentStep); ok {
			out = append(out, cs)
		}
	}
	return out
}

// Validate runs the rule set of every step against a.
func (f *Form) Validate(a Answers) Errors {
	errs := make(Errors)
	for _, s := range f.Steps {
		applyRules(s.Rules(), a, errs)
	}
	return errs
}

// ValidateStep runs only the rules owned by s.
func ValidateStep(s Step, a Answers) Errors {
	errs := make(Errors)
	applyRules(s.Rules(), a, errs)
	return errs
}

func applyRules(rules []Rule, a Answers, errs Errors) {
	for _, r := range rules {
		r.Apply(a, errs)
	}
}
