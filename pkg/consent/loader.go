package consent

import (
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed forms/*.yaml
var formFiles embed.FS

// ErrInvalidForm reports a form definition that cannot be used.
var ErrInvalidForm = errors.New("consent: invalid form definition")

type formDoc struct {
	Kind     string    `yaml:"kind"`
	Title    string    `yaml:"title"`
	Subtitle string    `yaml:"subtitle"`
	Steps    []stepDoc `yaml:"steps"`
}

type stepDoc struct {
	Type  string `yaml:"type"`
	Title string `yaml:"title"`

	NameLabel        string `yaml:"name_label"`
	NamePlaceholder  string `yaml:"name_placeholder"`
	EmailLabel       string `yaml:"email_label"`
	EmailPlaceholder string `yaml:"email_placeholder"`

	Topic   string    `yaml:"topic"`
	Payload string    `yaml:"payload"`
	Pre     string    `yaml:"pre"`
	Post    string    `yaml:"post"`
	Accept  optionDoc `yaml:"accept"`
	Deny    optionDoc `yaml:"deny"`

	Statement      string `yaml:"statement"`
	SignatureLabel string `yaml:"signature_label"`

	Message string `yaml:"message"`
}

type optionDoc struct {
	Field       string `yaml:"field"`
	Label       string `yaml:"label"`
	Description string `yaml:"description"`
}

// ParseForm decodes and checks a YAML form definition.
func ParseForm(data []byte) (*Form, error) {
	var doc formDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode form: %w", err)
	}

	form := &Form{
		Kind:     Kind(doc.Kind),
		Title:    strings.TrimSpace(doc.Title),
		Subtitle: strings.TrimSpace(doc.Subtitle),
		Steps:    make([]Step, 0, len(doc.Steps)),
	}
	for i, sd := range doc.Steps {
		step, err := sd.build()
		if err != nil {
			return nil, fmt.Errorf("%w: step %d: %v", ErrInvalidForm, i, err)
		}
		form.Steps = append(form.Steps, step)
	}

	if err := checkForm(form); err != nil {
		return nil, err
	}
	return form, nil
}

func (sd stepDoc) build() (Step, error) {
	title := strings.TrimSpace(sd.Title)
	switch sd.Type {
	case "details":
		return &DetailsStep{
			Heading:          title,
			NameLabel:        sd.NameLabel,
			NamePlaceholder:  sd.NamePlaceholder,
			EmailLabel:       sd.EmailLabel,
			EmailPlaceholder: sd.EmailPlaceholder,
		}, nil
	case "consent":
		if sd.Accept.Field == "" || sd.Deny.Field == "" {
			return nil, errors.New("consent step needs accept and deny fields")
		}
		return &ConsentStep{
			Heading:    title,
			Topic:      sd.Topic,
			PayloadKey: sd.Payload,
			Pre:        collapse(sd.Pre),
			Post:       collapse(sd.Post),
			Pair:       Pair{Accept: sd.Accept.Field, Deny: sd.Deny.Field},
			AcceptOpt:  Option(sd.Accept),
			DenyOpt:    Option(sd.Deny),
		}, nil
	case "review":
		return &ReviewStep{
			Heading:        title,
			Statement:      collapse(sd.Statement),
			SignatureLabel: sd.SignatureLabel,
		}, nil
	case "success":
		return &SuccessStep{Heading: title, Message: collapse(sd.Message)}, nil
	}
	return nil, fmt.Errorf("unknown step type %q", sd.Type)
}

// checkForm enforces the shape every form must have: details first, review
// then success last, unique fields and known payload keys.
func checkForm(f *Form) error {
	if !f.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidForm, f.Kind)
	}
	if len(f.Steps) < 3 {
		return fmt.Errorf("%w: needs at least details, review and success steps", ErrInvalidForm)
	}
	if _, ok := f.Steps[0].(*DetailsStep); !ok {
		return fmt.Errorf("%w: first step must be details", ErrInvalidForm)
	}
	if _, ok := f.Steps[f.LastEditable()].(*ReviewStep); !ok {
		return fmt.Errorf("%w: second to last step must be review", ErrInvalidForm)
	}
	if _, ok := f.Steps[f.Terminal()].(*SuccessStep); !ok {
		return fmt.Errorf("%w: last step must be success", ErrInvalidForm)
	}

	seenFields := make(map[string]bool)
	seenKeys := make(map[string]bool)
	for i, s := range f.Steps {
		switch st := s.(type) {
		case *DetailsStep:
			if i != 0 {
				return fmt.Errorf("%w: details step at %d", ErrInvalidForm, i)
			}
		case *ReviewStep:
			if i != f.LastEditable() {
				return fmt.Errorf("%w: review step at %d", ErrInvalidForm, i)
			}
		case *SuccessStep:
			if i != f.Terminal() {
				return fmt.Errorf("%w: success step at %d", ErrInvalidForm, i)
			}
		case *ConsentStep:
			if !knownPayloadKey(st.PayloadKey) {
				return fmt.Errorf("%w: unknown payload key %q", ErrInvalidForm, st.PayloadKey)
			}
			if seenKeys[st.PayloadKey] {
				return fmt.Errorf("%w: payload key %q used twice", ErrInvalidForm, st.PayloadKey)
			}
			seenKeys[st.PayloadKey] = true
		}
		for _, field := range s.Fields() {
			if seenFields[field] {
				return fmt.Errorf("%w: field %q owned twice", ErrInvalidForm, field)
			}
			seenFields[field] = true
		}
	}

	for _, key := range []string{KeyResearch, KeyStudent} {
		if !seenKeys[key] {
			return fmt.Errorf("%w: missing %s question", ErrInvalidForm, key)
		}
	}
	// Only adults are asked about follow-up contact.
	if wantContact := f.Kind == KindAdult; seenKeys[KeyContact] != wantContact {
		if wantContact {
			return fmt.Errorf("%w: adult form needs a %s question", ErrInvalidForm, KeyContact)
		}
		return fmt.Errorf("%w: %s form cannot ask %s", ErrInvalidForm, f.Kind, KeyContact)
	}
	return nil
}

// collapse joins wrapped YAML text onto one line.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var (
	formsOnce sync.Once
	forms     map[Kind]*Form
	formsErr  error
)

// LoadForm returns the built-in definition for kind.
func LoadForm(kind Kind) (*Form, error) {
	formsOnce.Do(func() {
		forms = make(map[Kind]*Form)
		for _, k := range []Kind{KindAdult, KindChild} {
			data, err := formFiles.ReadFile("forms/" + string(k) + ".yaml")
			if err != nil {
				formsErr = fmt.Errorf("read %s form: %w", k, err)
				return
			}
			f, err := ParseForm(data)
			if err != nil {
				formsErr = fmt.Errorf("load %s form: %w", k, err)
				return
			}
			if f.Kind != k {
				formsErr = fmt.Errorf("%w: %s.yaml declares kind %q", ErrInvalidForm, k, f.Kind)
				return
			}
			forms[k] = f
		}
	})
	if formsErr != nil {
		return nil, formsErr
	}
	f, ok := forms[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidForm, kind)
	}
	return f, nil
}

// MustLoadForm is LoadForm for callers that treat a broken built-in
// definition as fatal.
func MustLoadForm(kind Kind) *Form {
	f, err := LoadForm(kind)
	if err != nil {
		panic(err)
	}
	return f
}
