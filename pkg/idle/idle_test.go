package idle

import (
	"testing"
	"time"
)

// fakeClock is a virtual-time Scheduler. Callbacks run synchronously from
// Advance, in deadline order.
type fakeClock struct {
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	target := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			break
		}
		c.now = next.at
		next.fired = true
		next.f()
	}
	c.now = target
}

func (c *fakeClock) Pending() int {
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type recorder struct {
	warnings int
	resets   int
}

func newController(clock *fakeClock, rec *recorder) *Controller {
	return New(Config{
		Scheduler: clock,
		Now:       clock.Now,
		OnWarning: func() { rec.warnings++ },
		OnReset:   func() { rec.resets++ },
	})
}

func TestController_NoWarningBeforeTimeout(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	c := newController(clock, rec)
	c.Start()

	clock.Advance(DefaultTimeout - time.Millisecond)

	if c.Phase() != Active {
		t.Errorf("Expected active before timeout, got %s", c.Phase())
	}
	if rec.warnings != 0 {
		t.Errorf("Expected no warning, got %d", rec.warnings)
	}
}

func TestController_WarningAtTimeout(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	c := newController(clock, rec)
	c.Start()

	clock.Advance(DefaultTimeout)

	if !c.WarningVisible() {
		t.Fatal("Expected warning at exactly the timeout")
	}
	if rec.warnings != 1 {
		t.Errorf("Expected 1 warning, got %d", rec.warnings)
	}
	st := c.State()
	if !st.Idle || !st.WarningVisible {
		t.Errorf("Unexpected state %+v", st)
	}
	if got := c.SecondsRemaining(clock.Now()); got != 15 {
		t.Errorf("Expected 15 seconds remaining, got %d", got)
	}
}

func TestController_ResetAfterGrace(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	c := newController(clock, rec)
	c.Start()

	clock.Advance(DefaultTimeout + DefaultGrace - time.Millisecond)
	if rec.resets != 0 {
		t.Fatalf("Reset fired early")
	}
	if got := c.SecondsRemaining(clock.Now()); got != 1 {
		t.Errorf("Expected 1 second remaining, got %d", got)
	}

	clock.Advance(time.Millisecond)
	if rec.resets != 1 {
		t.Fatalf("Expected reset at timeout+grace, got %d", rec.resets)
	}
	if c.Phase() != Active {
		t.Errorf("Expected active after reset, got %s", c.Phase())
	}
	if !c.State().LastActivity.Equal(clock.Now()) {
		t.Error("Reset should refresh the last activity time")
	}

	// The cycle starts over.
	clock.Advance(DefaultTimeout)
	if rec.warnings != 2 {
		t.Errorf("Expected a second warning, got %d", rec.warnings)
	}
}

func TestController_ActivityRearms(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	c := newController(clock, rec)
	c.Start()

	for i := 0; i < 10; i++ {
		clock.Advance(200 * time.Second)
		c.Activity()
	}

	if rec.warnings != 0 {
		t.Errorf("Activity should keep postponing the warning, got %d", rec.warnings)
	}
	if clock.Pending() != 1 {
		t.Errorf("Expected exactly one pending timer, got %d", clock.Pending())
	}

	clock.Advance(DefaultTimeout)
	if rec.warnings != 1 {
		t.Errorf("Expected warning %s after the last activity", DefaultTimeout)
	}
}

func TestController_TimersNeverStack(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	c := newController(clock, rec)
	c.Start()
	c.Start()

	for i := 0; i < 100; i++ {
		c.Activity()
		c.Extend()
		if clock.Pending() != 1 {
			t.Fatalf("Expected one pending timer, got %d", clock.Pending())
		}
	}

	clock.Advance(DefaultTimeout)
	if clock.Pending() != 1 {
		t.Errorf("Expected only the grace timer pending, got %d", clock.Pending())
	}
	if rec.warnings != 1 {
		t.Errorf("Expected exactly one warning, got %d", rec.warnings)
	}
}

func TestController_ExtendDuringWarning(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	c := newController(clock, rec)
	c.Start()

	clock.Advance(DefaultTimeout + 10*time.Second)
	if !c.Extend() {
		t.Fatal("Extend should report the dismissed warning")
	}
	if c.Phase() != Active {
		t.Errorf("Expected active after extend, got %s", c.Phase())
	}

	clock.Advance(DefaultGrace)
	if rec.resets != 0 {
		t.Error("Extend must cancel the grace deadline")
	}

	clock.Advance(DefaultTimeout - DefaultGrace)
	if rec.warnings != 2 {
		t.Errorf("Expected warning a full timeout after extend, got %d", rec.warnings)
	}
}

func TestController_ActivityDuringWarning(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	c := newController(clock, rec)
	c.Start()

	clock.Advance(DefaultTimeout)
	c.Activity()
	if c.WarningVisible() {
		t.Error("Activity should dismiss the warning")
	}

	clock.Advance(DefaultGrace)
	if rec.resets != 0 {
		t.Error("Activity must cancel the grace deadline")
	}
}

func TestController_ExtendWhileActive(t *testing.T) {
	clock := newFakeClock()
	c := newController(clock, &recorder{})
	c.Start()

	if c.Extend() {
		t.Error("Extend without a warning should report false")
	}
}

func TestController_Stop(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	c := newController(clock, rec)
	c.Start()
	clock.Advance(DefaultTimeout)

	c.Stop()
	if clock.Pending() != 0 {
		t.Errorf("Expected no pending timers after stop, got %d", clock.Pending())
	}

	c.Activity()
	if clock.Pending() != 0 {
		t.Error("Activity on a stopped controller should not arm a timer")
	}

	clock.Advance(time.Hour)
	if rec.resets != 0 {
		t.Errorf("Expected no reset after stop, got %d", rec.resets)
	}
}

func TestController_StaleCallbackIgnored(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	c := newController(clock, rec)
	c.Start()

	// Simulate a callback that raced with the rearm.
	stale := clock.timers[0]
	c.Activity()
	stale.f()

	if rec.warnings != 0 {
		t.Errorf("Stale callback should be ignored, got %d warnings", rec.warnings)
	}
}

func TestController_CustomDurations(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	c := New(Config{
		Timeout:   time.Minute,
		Grace:     5 * time.Second,
		Scheduler: clock,
		Now:       clock.Now,
		OnReset:   func() { rec.resets++ },
	})
	c.Start()

	clock.Advance(time.Minute + 5*time.Second)
	if rec.resets != 1 {
		t.Errorf("Expected reset after custom durations, got %d", rec.resets)
	}
	if c.Grace() != 5*time.Second {
		t.Errorf("Unexpected grace %s", c.Grace())
	}
}

func TestController_RealScheduler(t *testing.T) {
	warned := make(chan struct{}, 1)
	c := New(Config{
		Timeout:   10 * time.Millisecond,
		Grace:     time.Hour,
		OnWarning: func() { warned <- struct{}{} },
	})
	c.Start()
	defer c.Stop()

	select {
	case <-warned:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for warning")
	}
}
