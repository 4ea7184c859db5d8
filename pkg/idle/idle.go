// Package idle resets a session after prolonged inactivity.
//
// A Controller owns at most one pending deadline. After Timeout without
// activity it enters the warning phase and arms a Grace deadline; if that
// expires too, the session is reset and the controller starts over. Every
// rearm stops the pending timer before scheduling a fresh one, and a
// generation token discards callbacks that were already in flight.
package idle

import (
	"math"
	"sync"
	"time"
)

// Defaults for the inactivity and grace deadlines.
const (
	DefaultTimeout = 300 * time.Second
	DefaultGrace   = 15 * time.Second
)

// Timer is a pending deferred callback. *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealScheduler schedules on the runtime timer heap.
var RealScheduler Scheduler = realScheduler{}

// Phase is the controller's position in the inactivity cycle.
type Phase int

const (
	// Active means the inactivity deadline is armed.
	Active Phase = iota
	// Warning means the grace deadline is armed and the user is being asked
	// to stay.
	Warning
)

func (p Phase) String() string {
	if p == Warning {
		return "warning"
	}
	return "active"
}

// State is a snapshot of the controller.
type State struct {
	LastActivity   time.Time
	Idle           bool
	WarningVisible bool
}

// Config configures a Controller.
type Config struct {
	// Timeout is the inactivity interval before the warning. Defaults to
	// DefaultTimeout.
	Timeout time.Duration

	// Grace is how long the warning stays up before the reset. Defaults to
	// DefaultGrace.
	Grace time.Duration

	// Scheduler defaults to RealScheduler.
	Scheduler Scheduler

	// Now defaults to time.Now.
	Now func() time.Time

	// OnWarning is called when the warning phase begins.
	OnWarning func()

	// OnReset is called when the grace period runs out. The controller has
	// already returned to Active and rearmed itself.
	OnReset func()
}

// Controller tracks user activity for one session. It is safe for
// concurrent use; hooks run without the lock held.
type Controller struct {
	cfg Config

	mu           sync.Mutex
	running      bool
	phase        Phase
	lastActivity time.Time
	warnedAt     time.Time
	timer        Timer
	gen          uint64
}

// New returns a stopped controller.
func New(cfg Config) *Controller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = RealScheduler
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{cfg: cfg}
}

// Start arms the inactivity deadline. Starting a running controller behaves
// like Activity.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	c.toActiveLocked()
}

// Activity records a qualifying user action. In the warning phase it also
// dismisses the warning.
func (c *Controller) Activity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.toActiveLocked()
}

// Extend acknowledges the warning and returns to Active. It reports whether
// a warning was showing.
func (c *Controller) Extend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return false
	}
	warned := c.phase == Warning
	c.toActiveLocked()
	return warned
}

// Stop cancels any pending deadline. Callbacks already in flight become
// no-ops.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.cancelLocked()
	c.phase = Active
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// WarningVisible reports whether the warning phase is active.
func (c *Controller) WarningVisible() bool {
	return c.Phase() == Warning
}

// State returns a snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		LastActivity:   c.lastActivity,
		Idle:           c.phase == Warning,
		WarningVisible: c.phase == Warning,
	}
}

// SecondsRemaining returns the whole seconds left in the grace period at
// now, rounded up. Outside the warning phase it is the full grace period.
func (c *Controller) SecondsRemaining(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != Warning {
		return int(c.cfg.Grace / time.Second)
	}
	left := c.warnedAt.Add(c.cfg.Grace).Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}

// Grace returns the configured grace period.
func (c *Controller) Grace() time.Duration { return c.cfg.Grace }

func (c *Controller) toActiveLocked() {
	c.phase = Active
	c.lastActivity = c.cfg.Now()
	c.armLocked(c.cfg.Timeout, c.warn)
}

func (c *Controller) cancelLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *Controller) armLocked(d time.Duration, fire func(gen uint64)) {
	c.cancelLocked()
	gen := c.gen
	c.timer = c.cfg.Scheduler.AfterFunc(d, func() { fire(gen) })
}

func (c *Controller) warn(gen uint64) {
	c.mu.Lock()
	if !c.running || gen != c.gen || c.phase != Active {
		c.mu.Unlock()
		return
	}
	c.phase = Warning
	c.warnedAt = c.cfg.Now()
	c.armLocked(c.cfg.Grace, c.expire)
	hook := c.cfg.OnWarning
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
}

func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	if !c.running || gen != c.gen || c.phase != Warning {
		c.mu.Unlock()
		return
	}
	c.toActiveLocked()
	hook := c.cfg.OnReset
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
}
