package kiosk

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gabrielmiguelok/optoconsent/pkg/audit"
	"github.com/gabrielmiguelok/optoconsent/pkg/consent"
	"github.com/gabrielmiguelok/optoconsent/pkg/core"
	"github.com/gabrielmiguelok/optoconsent/pkg/metrics"
	"github.com/gabrielmiguelok/optoconsent/pkg/submit"
	lvtest "github.com/gabrielmiguelok/optoconsent/pkg/testing"
)

func TestMetrics_SessionLifecycle(t *testing.T) {
	f := newFixture(t, consent.KindAdult)
	if got := f.metrics.SessionsActive.Value(); got != 1 {
		t.Errorf("active sessions = %v", got)
	}

	f.lv.Terminate(core.TerminateNormal)
	f.lv.Terminate(core.TerminateNormal)
	if got := f.metrics.SessionsActive.Value(); got != 0 {
		t.Errorf("active sessions after terminate = %v", got)
	}
	if got := f.metrics.SessionsTotal.Value(); got != 1 {
		t.Errorf("total sessions = %v", got)
	}

	want := []string{audit.EventSessionStarted, audit.EventSessionEnded}
	if diff := cmp.Diff(want, f.audit.events()); diff != "" {
		t.Errorf("audit mismatch (-want +got):\n%s", diff)
	}
}

func TestMetrics_HTTPRenderIsNotASession(t *testing.T) {
	f := newFixture(t, consent.KindAdult, lvtest.WithoutSocket())
	if got := f.metrics.SessionsTotal.Value(); got != 0 {
		t.Errorf("total sessions = %v", got)
	}
	if n := len(f.audit.events()); n != 0 {
		t.Errorf("expected no audit entries, got %d", n)
	}
}

func TestAudit_Submission(t *testing.T) {
	f := newFixture(t, consent.KindAdult)
	f.sender.Fail(&submit.Error{Status: 502})
	f.lv.Push(EventNext, nil)
	f.toReview(t)

	f.lv.Push(EventSet, set(consent.FieldSignature, "Jane Doe")).
		Push(EventSubmit, nil)
	f.lv.Await(wait)

	f.sender.Fail(nil)
	f.lv.Push(EventDismissError, nil).
		Push(EventSubmit, nil)
	f.lv.Await(wait)

	want := []string{
		audit.EventSessionStarted,
		audit.EventValidationError,
		audit.EventSubmitFailed,
		audit.EventFormSubmitted,
	}
	if diff := cmp.Diff(want, f.audit.events()); diff != "" {
		t.Errorf("audit mismatch (-want +got):\n%s", diff)
	}

	f.audit.mu.Lock()
	submitted := f.audit.entries[3]
	f.audit.mu.Unlock()
	if submitted.Form != "adult" || submitted.SessionID == "" || submitted.Step != 5 {
		t.Errorf("unexpected entry %+v", submitted)
	}

	wantCounts := map[string]float64{metrics.ResultFailed: 1, metrics.ResultAccepted: 1}
	if diff := cmp.Diff(wantCounts, f.metrics.Submissions.Values()); diff != "" {
		t.Errorf("submission counts mismatch (-want +got):\n%s", diff)
	}
	if got := f.metrics.SubmitDuration.Stats().Count; got != 2 {
		t.Errorf("duration samples = %d", got)
	}
	if got := f.metrics.ValidationFailures.Values()["adult"]; got != 1 {
		t.Errorf("validation failures = %v", got)
	}
}

func TestMetrics_IdleReset(t *testing.T) {
	f := newFixture(t, consent.KindChild)

	f.clock.Advance(300 * time.Second)
	f.lv.Drain()
	f.clock.Advance(15 * time.Second)
	f.lv.Drain()

	if f.metrics.IdleWarnings.Value() != 1 || f.metrics.IdleResets.Value() != 1 {
		t.Errorf("warnings=%v resets=%v", f.metrics.IdleWarnings.Value(), f.metrics.IdleResets.Value())
	}
	want := []string{audit.EventSessionStarted, audit.EventIdleReset}
	if diff := cmp.Diff(want, f.audit.events()); diff != "" {
		t.Errorf("audit mismatch (-want +got):\n%s", diff)
	}
}
