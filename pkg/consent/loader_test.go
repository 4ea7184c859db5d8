package consent

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadForm_BuiltIn(t *testing.T) {
	adult, err := LoadForm(KindAdult)
	if err != nil {
		t.Fatalf("adult: %v", err)
	}
	child, err := LoadForm(KindChild)
	if err != nil {
		t.Fatalf("child: %v", err)
	}

	var adultTopics, childTopics []string
	for _, cs := range adult.ConsentSteps() {
		adultTopics = append(adultTopics, cs.PayloadKey)
	}
	for _, cs := range child.ConsentSteps() {
		childTopics = append(childTopics, cs.PayloadKey)
	}

	if diff := cmp.Diff([]string{KeyResearch, KeyContact, KeyStudent}, adultTopics); diff != "" {
		t.Errorf("adult questions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{KeyResearch, KeyStudent}, childTopics); diff != "" {
		t.Errorf("child questions mismatch (-want +got):\n%s", diff)
	}

	research := adult.ConsentSteps()[0]
	if !strings.HasPrefix(research.AcceptOpt.Label, "I CONSENT to the use of my de-identified*") {
		t.Errorf("Unexpected research label %q", research.AcceptOpt.Label)
	}
	if research.Post != "*De-identified means we will exclude your name and contact details from the research database" {
		t.Errorf("Wrapped text should collapse to one line, got %q", research.Post)
	}
}

func TestLoadForm_UnknownKind(t *testing.T) {
	if _, err := LoadForm(Kind("teen")); !errors.Is(err, ErrInvalidForm) {
		t.Errorf("Expected ErrInvalidForm, got %v", err)
	}
}

func TestParseForm_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown kind": `
kind: robot
steps: []`,
		"too short": `
kind: adult
steps:
  - type: details
  - type: success`,
		"review not second to last": `
kind: adult
steps:
  - type: details
  - type: review
  - type: consent
    payload: researchConsent
    accept: {field: a}
    deny: {field: b}
  - type: success`,
		"unknown step type": `
kind: adult
steps:
  - type: details
  - type: quiz
  - type: review
  - type: success`,
		"missing student question": `
kind: child
steps:
  - type: details
  - type: consent
    payload: researchConsent
    accept: {field: a}
    deny: {field: b}
  - type: review
  - type: success`,
		"duplicate field": `
kind: child
steps:
  - type: details
  - type: consent
    payload: researchConsent
    accept: {field: a}
    deny: {field: b}
  - type: consent
    payload: studentConsent
    accept: {field: a}
    deny: {field: c}
  - type: review
  - type: success`,
		"adult without contact question": `
kind: adult
steps:
  - type: details
  - type: consent
    payload: researchConsent
    accept: {field: a}
    deny: {field: b}
  - type: consent
    payload: studentConsent
    accept: {field: c}
    deny: {field: d}
  - type: review
  - type: success`,
		"child with contact question": `
kind: child
steps:
  - type: details
  - type: consent
    payload: researchConsent
    accept: {field: a}
    deny: {field: b}
  - type: consent
    payload: contactConsent
    accept: {field: c}
    deny: {field: d}
  - type: consent
    payload: studentConsent
    accept: {field: e}
    deny: {field: f}
  - type: review
  - type: success`,
		"unknown payload key": `
kind: child
steps:
  - type: details
  - type: consent
    payload: marketingConsent
    accept: {field: a}
    deny: {field: b}
  - type: review
  - type: success`,
	}

	for name, doc := range cases {
		if _, err := ParseForm([]byte(doc)); !errors.Is(err, ErrInvalidForm) {
			t.Errorf("%s: expected ErrInvalidForm, got %v", name, err)
		}
	}
}

func TestParseForm_BadYAML(t *testing.T) {
	if _, err := ParseForm([]byte("kind: [adult")); err == nil {
		t.Error("Expected a decode error")
	}
}

func TestNewPayload_Adult(t *testing.T) {
	m := adultMachine(t)
	mustSet(t, m, FieldName, "  Jane Citizen ")
	mustSet(t, m, FieldEmail, "jane@example.com")
	mustSet(t, m, FieldSignature, "data:image/png;base64,AAAA")
	mustSet(t, m, "acceptResearchConsent", true)
	mustSet(t, m, "denyContactConsent", true)
	mustSet(t, m, "acceptStudentConsent", true)

	got := NewPayload(m.Form(), m.Answers())

	no := false
	want := Payload{
		Name:          "Jane Citizen",
		Email:         "jane@example.com",
		DrawSignature: "data:image/png;base64,AAAA",
		FormType:      KindAdult,
		Consent: Flags{
			ResearchConsent: true,
			ContactConsent:  &no,
			StudentConsent:  true,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}

	data, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"contactConsent":false`) {
		t.Errorf("Adult payload should carry contactConsent, got %s", data)
	}
	if !strings.Contains(string(data), `"formType":"adult"`) {
		t.Errorf("Adult payload should carry formType, got %s", data)
	}
}

func TestNewPayload_ChildOmitsContact(t *testing.T) {
	m := childMachine(t)
	mustSet(t, m, FieldName, "Parent")
	mustSet(t, m, FieldEmail, "parent@example.com")
	mustSet(t, m, FieldSignature, "Parent")
	mustSet(t, m, "denyResearchConsent", true)
	mustSet(t, m, "acceptStudentConsent", true)

	got := NewPayload(m.Form(), m.Answers())
	if got.Consent.ContactConsent != nil {
		t.Error("Child payload should not carry contactConsent")
	}
	if got.Consent.ResearchConsent {
		t.Error("Denied research should be false")
	}

	data, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(data), "contactConsent") {
		t.Errorf("Child JSON should omit contactConsent, got %s", data)
	}
}
