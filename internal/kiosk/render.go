package kiosk

import (
	"context"
	"embed"
	"html/template"
	"io"

	"github.com/gabrielmiguelok/optoconsent/pkg/a11y"
	"github.com/gabrielmiguelok/optoconsent/pkg/consent"
	"github.com/gabrielmiguelok/optoconsent/pkg/core"
	"github.com/gabrielmiguelok/optoconsent/pkg/security"
)

//go:embed templates/*.html
var templateFiles embed.FS

var templates = template.Must(template.New("kiosk").Funcs(template.FuncMap{
	"optionData": func(opt consent.Option, checked bool) map[string]any {
		return map[string]any{"Opt": opt, "Checked": checked}
	},
}).ParseFS(templateFiles, "templates/*.html"))

// AssetPrefix is where the client script and stylesheet are served.
const AssetPrefix = "/assets/"

type reviewRow struct {
	Label string
	Value string
	Error string
}

type viewData struct {
	Form    *consent.Form
	Classes string
	Prefs   a11y.Preferences

	Index        int
	Total        int
	ShowProgress bool
	Title        string
	CanBack      bool

	Details *consent.DetailsStep
	Consent *consent.ConsentStep
	Review  *consent.ReviewStep
	Success *consent.SuccessStep

	Name         string
	Email        string
	Signature    string
	SignatureImg template.URL
	Checked      map[string]bool
	Errors       consent.Errors
	ErrorList    []string
	Rows         []reviewRow

	Submitting  bool
	SubmitError string

	IdleWarning bool
	IdleSeconds int

	// Page-only fields.
	Nonce     string
	Announcer template.HTML
	SkipLink  template.HTML
	Assets    string
}

// Render returns the full page for the plain HTTP request and only the
// live fragment once a socket is attached.
func (v *ConsentView) Render(ctx context.Context) core.Renderer {
	return core.RendererFunc(func(ctx context.Context, w io.Writer) error {
		ctx = a11y.WithPreferences(ctx, v.prefs)
		data := v.data(ctx)
		if v.Socket() != nil {
			return templates.ExecuteTemplate(w, "view", data)
		}
		data.Nonce = security.CSPNonce(ctx)
		data.Announcer = a11y.NewAnnouncer(nil).RenderHTML()
		data.SkipLink = a11y.SkipLink("step-title", "Skip to form")
		data.Assets = AssetPrefix
		return templates.ExecuteTemplate(w, "page", data)
	})
}

func (v *ConsentView) data(ctx context.Context) *viewData {
	prefs := a11y.PreferencesFromContext(ctx)
	m := v.machine
	form := m.Form()
	answers := m.Answers()
	errs := m.Errors()
	step := m.Step()

	d := &viewData{
		Form:        form,
		Classes:     prefs.Classes(),
		Prefs:       prefs,
		Index:       m.Index() + 1,
		Total:       progressTotal(form),
		Title:       step.Title(),
		CanBack:     m.Index() > 0 && m.Status() == consent.Editing,
		Name:        answers.String(consent.FieldName),
		Email:       answers.String(consent.FieldEmail),
		Signature:   answers.String(consent.FieldSignature),
		Checked:     make(map[string]bool),
		Errors:      errs,
		Submitting:  m.Status() == consent.Submitting,
		SubmitError: m.SubmitError(),
	}
	if signatureImage.MatchString(d.Signature) {
		d.SignatureImg = template.URL(d.Signature)
	}
	for _, cs := range form.ConsentSteps() {
		d.Checked[cs.Pair.Accept] = answers.Bool(cs.Pair.Accept)
		d.Checked[cs.Pair.Deny] = answers.Bool(cs.Pair.Deny)
	}
	for _, s := range form.Steps {
		for _, f := range s.Fields() {
			if msg := errs.Get(f); msg != "" && !contains(d.ErrorList, msg) {
				d.ErrorList = append(d.ErrorList, msg)
			}
		}
	}

	switch st := step.(type) {
	case *consent.DetailsStep:
		d.Details = st
	case *consent.ConsentStep:
		d.Consent = st
	case *consent.ReviewStep:
		d.Review = st
		d.Rows = reviewRows(form, answers, errs)
	case *consent.SuccessStep:
		d.Success = st
	default:
		panic("kiosk: unknown step variant")
	}
	d.ShowProgress = d.Success == nil

	if v.idle != nil && v.idle.WarningVisible() {
		d.IdleWarning = true
		d.IdleSeconds = v.idle.SecondsRemaining(v.deps.Now())
	}
	return d
}

func reviewRows(form *consent.Form, a consent.Answers, errs consent.Errors) []reviewRow {
	rows := []reviewRow{
		{Label: "Name", Value: a.String(consent.FieldName), Error: errs.Get(consent.FieldName)},
		{Label: "Email", Value: a.String(consent.FieldEmail), Error: errs.Get(consent.FieldEmail)},
	}
	for _, cs := range form.ConsentSteps() {
		value := "Denied"
		if a.Bool(cs.Pair.Accept) {
			value = "Accepted"
		}
		rows = append(rows, reviewRow{Label: cs.Topic, Value: value, Error: errs.Get(cs.Pair.Accept)})
	}
	return rows
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
