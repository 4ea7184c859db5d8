package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gabrielmiguelok/optoconsent/pkg/consent"
	"github.com/gabrielmiguelok/optoconsent/pkg/logging"
	"github.com/gabrielmiguelok/optoconsent/pkg/security"
)

// Navigation choices offered after each step.
const (
	ActionNext    = "Next"
	ActionSubmit  = "Submit"
	ActionBack    = "Back"
	ActionRestart = "Start over"
)

// Runner prompts for each step of a form and submits it.
type Runner struct {
	Driver    PromptDriver
	Sender    consent.Sender
	Sanitizer *security.Sanitizer
	Logger    logging.Logger
}

// Run walks m until the user declines to fill in another form, the context
// ends or the driver fails.
func (r *Runner) Run(ctx context.Context, m *consent.Machine) error {
	if r.Sanitizer == nil {
		r.Sanitizer = security.NewSanitizer()
	}
	if r.Logger == nil {
		r.Logger = logging.NopLogger{}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if st, ok := m.Step().(*consent.SuccessStep); ok {
			again, err := r.success(ctx, st)
			if err != nil || !again {
				return err
			}
			m.Restart()
			continue
		}

		if err := r.prompt(ctx, m); err != nil {
			return err
		}
		if err := r.navigate(ctx, m); err != nil {
			return err
		}
	}
}

func (r *Runner) prompt(ctx context.Context, m *consent.Machine) error {
	total := m.Form().LastEditable() + 1
	if err := r.Driver.Info(ctx, fmt.Sprintf("\nStep %d of %d: %s", m.Index()+1, total, m.Step().Title())); err != nil {
		return err
	}

	a := m.Answers()
	switch st := m.Step().(type) {
	case *consent.DetailsStep:
		if err := r.text(ctx, m, consent.FieldName, st.NameLabel, st.NamePlaceholder, a.String(consent.FieldName)); err != nil {
			return err
		}
		return r.text(ctx, m, consent.FieldEmail, st.EmailLabel, st.EmailPlaceholder, a.String(consent.FieldEmail))

	case *consent.ConsentStep:
		if st.Pre != "" {
			if err := r.Driver.Info(ctx, st.Pre); err != nil {
				return err
			}
		}
		def := 0
		if a.Bool(st.Pair.Deny) && !a.Bool(st.Pair.Accept) {
			def = 1
		}
		choice, err := r.Driver.Select(ctx, SelectConfig{
			Message:      st.Topic,
			Options:      []string{st.AcceptOpt.Label, st.DenyOpt.Label},
			DefaultIndex: def,
		})
		if err != nil {
			return err
		}
		if err := m.Set(st.Pair.Accept, choice == 0); err != nil {
			return err
		}
		if err := m.Set(st.Pair.Deny, choice == 1); err != nil {
			return err
		}
		if st.Post != "" {
			return r.Driver.Info(ctx, st.Post)
		}
		return nil

	case *consent.ReviewStep:
		for _, line := range summary(m.Form(), a) {
			if err := r.Driver.Info(ctx, line); err != nil {
				return err
			}
		}
		if err := r.Driver.Info(ctx, st.Statement); err != nil {
			return err
		}
		return r.text(ctx, m, consent.FieldSignature, st.SignatureLabel, "Type your full name to sign", a.String(consent.FieldSignature))
	}
	return fmt.Errorf("tui: unexpected step %T", m.Step())
}

func (r *Runner) text(ctx context.Context, m *consent.Machine, field, label, help, current string) error {
	v, err := r.Driver.Input(ctx, InputConfig{Message: label, Help: help, Default: current})
	if err != nil {
		return err
	}
	return m.Set(field, r.Sanitizer.Text(v))
}

func (r *Runner) navigate(ctx context.Context, m *consent.Machine) error {
	forward := ActionNext
	if m.OnReview() {
		forward = ActionSubmit
	}
	options := []string{forward}
	if m.Index() > 0 {
		options = append(options, ActionBack)
	}
	options = append(options, ActionRestart)

	choice, err := r.Driver.Select(ctx, SelectConfig{Message: "Continue", Options: options})
	if err != nil {
		return err
	}
	if choice < 0 || choice >= len(options) {
		return fmt.Errorf("tui: choice %d out of range", choice)
	}

	switch options[choice] {
	case ActionBack:
		return m.Back()
	case ActionRestart:
		m.Restart()
		return nil
	}

	sub, err := m.Next()
	if errors.Is(err, consent.ErrValidation) {
		return r.showErrors(ctx, m)
	}
	if err != nil || sub == nil {
		return err
	}
	return r.submit(ctx, m, sub)
}

func (r *Runner) submit(ctx context.Context, m *consent.Machine, sub *consent.Submission) error {
	if err := r.Driver.Info(ctx, "Submitting..."); err != nil {
		return err
	}
	start := time.Now()
	err := r.Sender.Send(ctx, sub.Payload)
	m.Complete(sub.Gen, err)

	if err != nil {
		r.Logger.Warn("Submission failed", logging.Duration("took", time.Since(start)), logging.Err(err))
		msg := m.SubmitError()
		m.DismissSubmitError()
		return r.Driver.Info(ctx, "! "+msg)
	}
	r.Logger.Info("Submission accepted", logging.String("form", string(m.Kind())), logging.Duration("took", time.Since(start)))
	return nil
}

func (r *Runner) showErrors(ctx context.Context, m *consent.Machine) error {
	errs := m.Errors()
	seen := make(map[string]bool)
	for _, s := range m.Form().Steps {
		for _, f := range s.Fields() {
			msg := errs.Get(f)
			if msg == "" || seen[msg] {
				continue
			}
			seen[msg] = true
			if err := r.Driver.Info(ctx, "! "+msg); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Runner) success(ctx context.Context, st *consent.SuccessStep) (bool, error) {
	if err := r.Driver.Info(ctx, "\n"+st.Title()); err != nil {
		return false, err
	}
	if err := r.Driver.Info(ctx, st.Message); err != nil {
		return false, err
	}
	return r.Driver.Confirm(ctx, ConfirmConfig{Message: "Fill in another form?"})
}

func summary(form *consent.Form, a consent.Answers) []string {
	lines := []string{
		"Name:  " + a.String(consent.FieldName),
		"Email: " + a.String(consent.FieldEmail),
	}
	for _, cs := range form.ConsentSteps() {
		value := "Denied"
		if a.Bool(cs.Pair.Accept) {
			value = "Accepted"
		}
		lines = append(lines, cs.Topic+": "+value)
	}
	return lines
}
