package consent

import (
	"context"
	"strings"
)

// Payload keys a consent question can feed.
const (
	KeyResearch = "researchConsent"
	KeyContact  = "contactConsent"
	KeyStudent  = "studentConsent"
)

func knownPayloadKey(k string) bool {
	return k == KeyResearch || k == KeyContact || k == KeyStudent
}

// Flags is the nested consent object of a submission. ContactConsent is only
// present on the adult form.
type Flags struct {
	ResearchConsent bool  `json:"researchConsent"`
	ContactConsent  *bool `json:"contactConsent,omitempty"`
	StudentConsent  bool  `json:"studentConsent"`
}

// Payload is the request body sent to the backend.
type Payload struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	DrawSignature string `json:"drawSignature"`
	FormType      Kind   `json:"formType"`
	Consent       Flags  `json:"consent"`
}

// NewPayload packages validated answers. Each consent flag is the value of
// the accept field of its pair.
func NewPayload(form *Form, a Answers) Payload {
	p := Payload{
		Name:          strings.TrimSpace(a.String(FieldName)),
		Email:         strings.TrimSpace(a.String(FieldEmail)),
		DrawSignature: a.String(FieldSignature),
		FormType:      form.Kind,
	}
	for _, cs := range form.ConsentSteps() {
		accepted := a.Bool(cs.Pair.Accept)
		switch cs.PayloadKey {
		case KeyResearch:
			p.Consent.ResearchConsent = accepted
		case KeyContact:
			p.Consent.ContactConsent = &accepted
		case KeyStudent:
			p.Consent.StudentConsent = accepted
		}
	}
	return p
}

// Sender delivers a payload to the backend.
type Sender interface {
	Send(ctx context.Context, p Payload) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, p Payload) error

func (f SenderFunc) Send(ctx context.Context, p Payload) error {
	return f(ctx, p)
}
