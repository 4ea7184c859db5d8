// Package kiosk is the live consent form: one ConsentView per browser
// connection, holding the form machine, the inactivity controller and the
// patient's display preferences.
package kiosk

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/gabrielmiguelok/optoconsent/pkg/a11y"
	"github.com/gabrielmiguelok/optoconsent/pkg/audit"
	"github.com/gabrielmiguelok/optoconsent/pkg/consent"
	"github.com/gabrielmiguelok/optoconsent/pkg/core"
	"github.com/gabrielmiguelok/optoconsent/pkg/idle"
	"github.com/gabrielmiguelok/optoconsent/pkg/logging"
	"github.com/gabrielmiguelok/optoconsent/pkg/metrics"
	"github.com/gabrielmiguelok/optoconsent/pkg/security"
)

// Client events handled by ConsentView.
const (
	EventSet            = "set"
	EventNext           = "next"
	EventBack           = "back"
	EventSubmit         = "submit"
	EventRestart        = "restart"
	EventActivity       = "activity"
	EventExtend         = "extend"
	EventToggleTheme    = "toggle_theme"
	EventToggleTextSize = "toggle_text_size"
	EventToggleContrast = "toggle_contrast"
	EventToggleDyslexic = "toggle_dyslexic"
	EventDismissError   = "dismiss_error"
)

// EventIdle is pushed to the client when the inactivity warning opens or
// closes.
const EventIdle = "idle"

// ErrUnknownEvent is returned for events the view does not handle.
var ErrUnknownEvent = errors.New("kiosk: unknown event")

// ErrBadPayload is returned when an event payload is malformed.
var ErrBadPayload = errors.New("kiosk: bad event payload")

var signatureImage = regexp.MustCompile(`^data:image/png;base64,[A-Za-z0-9+/=]+$`)

// Deps are shared by every view the factory creates.
type Deps struct {
	Form   *consent.Form
	Sender consent.Sender

	IdleTimeout time.Duration
	IdleGrace   time.Duration

	// Scheduler and Now default to the real clock.
	Scheduler idle.Scheduler
	Now       func() time.Time

	// Sanitizer defaults to security.NewSanitizer().
	Sanitizer *security.Sanitizer
	Logger    logging.Logger

	// Metrics defaults to a private set; Audit to a NopLogger.
	Metrics *metrics.Kiosk
	Audit   audit.Logger
}

// NewFactory returns a component factory for the router.
func NewFactory(deps Deps) func() core.Component {
	if deps.Sanitizer == nil {
		deps.Sanitizer = security.NewSanitizer()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logging.DefaultLogger
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New("consent")
	}
	if deps.Audit == nil {
		deps.Audit = audit.NopLogger{}
	}
	return func() core.Component {
		return &ConsentView{deps: deps}
	}
}

// Messages posted to the view's loop with Socket.Info.
type (
	idleWarning  struct{}
	idleReset    struct{}
	submitResult struct {
		gen  uint64
		err  error
		took time.Duration
	}
)

// ConsentView renders one form and reacts to the patient's input.
type ConsentView struct {
	core.BaseComponent

	deps     Deps
	machine  *consent.Machine
	idle     *idle.Controller
	prefs    a11y.Preferences
	log      logging.Logger
	announce *a11y.Announcer
	focus    *a11y.FocusManager
	live     bool

	cancelSubmit context.CancelFunc
}

func (v *ConsentView) Name() string {
	return "consent-" + string(v.deps.Form.Kind)
}

// Mount creates the machine. With a socket it also starts the inactivity
// controller; its hooks only post messages, so all state changes happen on
// the session loop.
func (v *ConsentView) Mount(ctx context.Context, params core.Params, session core.Session) error {
	v.machine = consent.NewMachine(v.deps.Form)
	v.prefs = a11y.DefaultPreferences()
	v.log = v.deps.Logger
	if l := logging.LoggerFromContext(ctx); l != nil {
		v.log = l
	}

	sock := v.Socket()
	if sock == nil {
		return nil
	}
	v.log = v.log.With(logging.Session(sock.ID()), logging.String("form", string(v.deps.Form.Kind)))
	v.announce = a11y.NewAnnouncer(sock)
	v.focus = a11y.NewFocusManager(sock)

	v.idle = idle.New(idle.Config{
		Timeout:   v.deps.IdleTimeout,
		Grace:     v.deps.IdleGrace,
		Scheduler: v.deps.Scheduler,
		Now:       v.deps.Now,
		OnWarning: func() { _ = sock.Info(idleWarning{}) },
		OnReset:   func() { _ = sock.Info(idleReset{}) },
	})
	v.idle.Start()

	v.live = true
	v.deps.Metrics.SessionsActive.Inc()
	v.deps.Metrics.SessionsTotal.Inc()
	v.record(audit.EventSessionStarted, audit.SeverityInfo, 0)
	return nil
}

// HandleEvent applies one client event. Every event counts as activity.
func (v *ConsentView) HandleEvent(ctx context.Context, event string, payload map[string]any) error {
	if event == EventExtend {
		if v.idle != nil && v.idle.Extend() {
			v.push(EventIdle, map[string]any{"warning": false})
		}
		return nil
	}
	v.touch()

	switch event {
	case EventActivity:
		return nil
	case EventSet:
		return v.set(payload)
	case EventNext:
		sub, err := v.machine.Next()
		return v.afterForward(ctx, sub, err)
	case EventSubmit:
		sub, err := v.machine.Submit()
		return v.afterForward(ctx, sub, err)
	case EventBack:
		if err := v.machine.Back(); err != nil {
			return err
		}
		v.announceStep()
		return nil
	case EventRestart:
		v.record(audit.EventFormRestarted, audit.SeverityInfo, 0)
		v.restart()
		v.announceStep()
		return nil
	case EventDismissError:
		v.machine.DismissSubmitError()
		return nil
	case EventToggleTheme:
		v.prefs = v.prefs.ToggleTheme()
		return nil
	case EventToggleTextSize:
		v.prefs = v.prefs.ToggleTextSize()
		return nil
	case EventToggleContrast:
		v.prefs = v.prefs.ToggleContrast()
		return nil
	case EventToggleDyslexic:
		v.prefs = v.prefs.ToggleDyslexicFont()
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
}

// HandleInfo handles idle timer fires and submission results.
func (v *ConsentView) HandleInfo(ctx context.Context, msg any) error {
	switch m := msg.(type) {
	case idleWarning:
		// Activity may have arrived after the timer posted.
		if v.idle == nil || !v.idle.WarningVisible() {
			return nil
		}
		seconds := v.idle.SecondsRemaining(v.deps.Now())
		v.push(EventIdle, map[string]any{"warning": true, "seconds": seconds})
		v.say(true, fmt.Sprintf("You have been inactive. The form will reset in %d seconds.", seconds))
		v.deps.Metrics.IdleWarnings.Inc()
		v.log.Info("Idle warning shown")

	case idleReset:
		v.record(audit.EventIdleReset, audit.SeverityInfo, 0)
		v.deps.Metrics.IdleResets.Inc()
		v.restart()
		v.push(EventIdle, map[string]any{"warning": false})
		v.say(false, "The form was reset after inactivity.")
		v.log.Info("Form reset after inactivity")

	case submitResult:
		v.cancelSubmit = nil
		if !v.machine.Complete(m.gen, m.err) {
			v.log.Debug("Stale submission result ignored", logging.Int64("gen", int64(m.gen)))
			v.deps.Metrics.Submissions.Inc(metrics.ResultStale)
			return nil
		}
		v.deps.Metrics.SubmitDuration.ObserveDuration(m.took)
		if m.err != nil {
			v.log.Warn("Submission failed", logging.Duration("took", m.took), logging.Err(m.err))
			v.deps.Metrics.Submissions.Inc(metrics.ResultFailed)
			v.record(audit.EventSubmitFailed, audit.SeverityWarning, m.took)
			v.say(true, v.machine.SubmitError())
			v.moveFocus("#submit-error")
			return nil
		}
		v.log.Info("Submission accepted", logging.Duration("took", m.took))
		v.deps.Metrics.Submissions.Inc(metrics.ResultAccepted)
		v.record(audit.EventFormSubmitted, audit.SeverityInfo, m.took)
		v.say(false, v.machine.Step().Title())
		v.moveFocus("#step-title")

	default:
		return fmt.Errorf("kiosk: unexpected info %T", msg)
	}
	return nil
}

// Terminate stops the idle timers and abandons any submission.
func (v *ConsentView) Terminate(ctx context.Context, reason core.TerminateReason) error {
	if v.idle != nil {
		v.idle.Stop()
	}
	v.abandonSubmit()
	if v.live {
		v.live = false
		v.deps.Metrics.SessionsActive.Dec()
		v.record(audit.EventSessionEnded, audit.SeverityInfo, 0)
	}
	return nil
}

// Machine exposes the form machine for inspection.
func (v *ConsentView) Machine() *consent.Machine { return v.machine }

// Preferences returns the current display preferences.
func (v *ConsentView) Preferences() a11y.Preferences { return v.prefs }

// Idle returns the inactivity controller, or nil without a socket.
func (v *ConsentView) Idle() *idle.Controller { return v.idle }

func (v *ConsentView) touch() {
	if v.idle == nil {
		return
	}
	warned := v.idle.WarningVisible()
	v.idle.Activity()
	if warned {
		v.push(EventIdle, map[string]any{"warning": false})
	}
}

func (v *ConsentView) set(payload map[string]any) error {
	field, ok := payload["field"].(string)
	if !ok || field == "" {
		return fmt.Errorf("%w: set needs a field", ErrBadPayload)
	}
	value, ok := payload["value"]
	if !ok {
		return fmt.Errorf("%w: set needs a value", ErrBadPayload)
	}
	if s, ok := value.(string); ok {
		value = v.clean(field, s)
	}
	return v.machine.Set(field, value)
}

// clean strips markup from free text. Drawn signatures arrive as PNG data
// URLs and are kept verbatim.
func (v *ConsentView) clean(field, s string) string {
	switch field {
	case consent.FieldName, consent.FieldEmail:
		return v.deps.Sanitizer.Text(s)
	case consent.FieldSignature:
		if signatureImage.MatchString(s) {
			return s
		}
		return v.deps.Sanitizer.Text(s)
	}
	return s
}

func (v *ConsentView) afterForward(ctx context.Context, sub *consent.Submission, err error) error {
	switch {
	case errors.Is(err, consent.ErrValidation):
		v.deps.Metrics.ValidationFailures.Inc(string(v.deps.Form.Kind))
		v.record(audit.EventValidationError, audit.SeverityInfo, 0)
		v.say(true, firstError(v.deps.Form, v.machine.Errors()))
		v.moveFocus("#error-summary")
		return nil
	case err != nil:
		return err
	case sub != nil:
		v.startSubmit(ctx, sub)
		v.say(false, "Submitting your form.")
		return nil
	}
	v.log.Debug("Step advanced", logging.Int("step", v.machine.Index()))
	v.announceStep()
	return nil
}

// startSubmit sends on its own goroutine and posts the outcome back to the
// loop. The machine stays in Submitting until then.
func (v *ConsentView) startSubmit(ctx context.Context, sub *consent.Submission) {
	v.abandonSubmit()
	sendCtx, cancel := context.WithCancel(ctx)
	v.cancelSubmit = cancel

	sender, sock, now := v.deps.Sender, v.Socket(), v.deps.Now
	gen, payload := sub.Gen, sub.Payload
	go func() {
		defer cancel()
		start := now()
		err := sender.Send(sendCtx, payload)
		if sock != nil {
			_ = sock.Info(submitResult{gen: gen, err: err, took: now().Sub(start)})
		}
	}()
}

func (v *ConsentView) abandonSubmit() {
	if v.cancelSubmit != nil {
		v.cancelSubmit()
		v.cancelSubmit = nil
	}
}

func (v *ConsentView) restart() {
	v.abandonSubmit()
	v.machine.Restart()
}

func (v *ConsentView) announceStep() {
	step := v.machine.Step()
	if _, ok := step.(*consent.SuccessStep); ok {
		v.say(false, step.Title())
	} else {
		v.say(false, fmt.Sprintf("Step %d of %d: %s", v.machine.Index()+1, progressTotal(v.deps.Form), step.Title()))
	}
	v.moveFocus("#step-title")
}

// record writes an audit entry for the current step. It never includes
// answers.
func (v *ConsentView) record(event, severity string, took time.Duration) {
	e := audit.Entry{
		Event:      event,
		Severity:   severity,
		Form:       string(v.deps.Form.Kind),
		Step:       v.machine.Index(),
		DurationMS: took.Milliseconds(),
	}
	if sock := v.Socket(); sock != nil {
		e.SessionID = sock.ID()
	}
	v.deps.Audit.Log(e)
}

func (v *ConsentView) say(urgent bool, msg string) {
	if v.announce == nil || msg == "" {
		return
	}
	var err error
	if urgent {
		err = v.announce.AnnounceUrgent(msg)
	} else {
		err = v.announce.Announce(msg)
	}
	if err != nil {
		v.log.Debug("Announcement dropped", logging.Err(err))
	}
}

func (v *ConsentView) moveFocus(selector string) {
	if v.focus == nil {
		return
	}
	if err := v.focus.Focus(selector); err != nil {
		v.log.Debug("Focus dropped", logging.Err(err))
	}
}

func (v *ConsentView) push(event string, payload map[string]any) {
	if sock := v.Socket(); sock != nil {
		if err := sock.Push(event, payload); err != nil {
			v.log.Debug("Push dropped", logging.String("event", event), logging.Err(err))
		}
	}
}

// progressTotal is the number of steps the patient fills in.
func progressTotal(f *consent.Form) int {
	return f.LastEditable() + 1
}

// firstError returns the message of the earliest failing field in form
// order.
func firstError(f *consent.Form, errs consent.Errors) string {
	for _, s := range f.Steps {
		for _, field := range s.Fields() {
			if msg := errs.Get(field); msg != "" {
				return msg
			}
		}
	}
	return ""
}
