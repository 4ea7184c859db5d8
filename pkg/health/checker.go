// Package health serves liveness and readiness probes for the kiosk server.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// Status represents the health status of a service.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// defaultCheckTimeout applies when a check is registered without one.
const defaultCheckTimeout = 5 * time.Second

// CheckResult represents the result of a single health check.
type CheckResult struct {
	Status   Status         `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// HealthStatus represents the overall health status.
type HealthStatus struct {
	Status    Status                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckFunc reports a problem by returning an error. Return a *HealthError
// to attach details.
type CheckFunc func(ctx context.Context) error

// Check defines a single health check.
type Check struct {
	Name    string
	Check   CheckFunc
	Timeout time.Duration

	// Critical failures make the overall status unhealthy; others degrade it.
	Critical bool
}

// Checker manages health checks for the application.
type Checker struct {
	checks  []Check
	version string
	mu      sync.RWMutex
}

// NewChecker creates a new health checker.
func NewChecker() *Checker {
	return &Checker{
		checks: make([]Check, 0),
	}
}

// SetVersion sets the application version shown in health responses.
func (hc *Checker) SetVersion(version string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.version = version
}

// AddCheck adds a health check.
func (hc *Checker) AddCheck(name string, check CheckFunc, timeout time.Duration) {
	hc.add(Check{Name: name, Check: check, Timeout: timeout})
}

// AddCriticalCheck adds a check whose failure makes the service unhealthy.
func (hc *Checker) AddCriticalCheck(name string, check CheckFunc, timeout time.Duration) {
	hc.add(Check{Name: name, Check: check, Timeout: timeout, Critical: true})
}

func (hc *Checker) add(c Check) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks = append(hc.checks, c)
}

// Check runs all health checks concurrently and returns the overall status.
func (hc *Checker) Check(ctx context.Context) HealthStatus {
	hc.mu.RLock()
	checks := make([]Check, len(hc.checks))
	copy(checks, hc.checks)
	version := hc.version
	hc.mu.RUnlock()

	status := HealthStatus{
		Status:    StatusHealthy,
		Checks:    make(map[string]CheckResult, len(checks)),
		Timestamp: time.Now(),
		Version:   version,
	}

	type checkResult struct {
		name     string
		result   CheckResult
		critical bool
	}

	results := make(chan checkResult, len(checks))
	var wg sync.WaitGroup

	for _, c := range checks {
		wg.Add(1)
		go func(check Check) {
			defer wg.Done()
			results <- checkResult{
				name:     check.Name,
				result:   run(ctx, check),
				critical: check.Critical,
			}
		}(c)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		status.Checks[r.name] = r.result

		if r.result.Status != StatusHealthy {
			if r.critical {
				status.Status = StatusUnhealthy
			} else if status.Status == StatusHealthy {
				status.Status = StatusDegraded
			}
		}
	}

	return status
}

func run(ctx context.Context, check Check) CheckResult {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}

	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := check.Check(checkCtx)

	result := CheckResult{
		Status:   StatusHealthy,
		Duration: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		if he, ok := err.(*HealthError); ok {
			result.Details = he.Details
		}
	}
	return result
}

// LivenessHandler returns 200 while the process is running.
func (hc *Checker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "alive",
			"timestamp": time.Now(),
		})
	})
}

// ReadinessHandler returns 200 unless a critical check fails.
func (hc *Checker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := hc.Check(r.Context())

		code := http.StatusOK
		if status.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	})
}

// HealthHandler always returns 200 with the detailed status.
func (hc *Checker) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hc.Check(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// PingCheck always passes.
func PingCheck() CheckFunc {
	return func(ctx context.Context) error {
		return nil
	}
}

// TCPCheck reports whether addr accepts TCP connections. The kiosk uses it
// to probe the consent backend without posting a submission.
func TCPCheck(addr string) CheckFunc {
	return func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return &HealthError{
				Message: fmt.Sprintf("%s unreachable", addr),
				Details: map[string]any{"addr": addr, "error": err.Error()},
			}
		}
		return conn.Close()
	}
}

// Counter reports current usage against a limit.
type Counter interface {
	Count() int
	Capacity() int
}

// SessionCapacityCheck fails when every live session slot is taken. A
// capacity of zero means unlimited.
func SessionCapacityCheck(c Counter) CheckFunc {
	return func(ctx context.Context) error {
		count, capacity := c.Count(), c.Capacity()
		if capacity > 0 && count >= capacity {
			return &HealthError{
				Message: "live sessions at capacity",
				Details: map[string]any{
					"current": count,
					"max":     capacity,
				},
			}
		}
		return nil
	}
}

// MemoryCheck fails when the Go heap exceeds maxBytes.
func MemoryCheck(maxBytes uint64) CheckFunc {
	return func(ctx context.Context) error {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		if m.HeapAlloc > maxBytes {
			return &HealthError{
				Message: "heap above limit",
				Details: map[string]any{
					"heap_alloc": m.HeapAlloc,
					"max":        maxBytes,
				},
			}
		}
		return nil
	}
}

// HealthError represents a health check error with details.
type HealthError struct {
	Message string
	Details map[string]any
}

func (e *HealthError) Error() string {
	return e.Message
}

// DefaultChecker provides a checker with a ping check.
func DefaultChecker(version string) *Checker {
	hc := NewChecker()
	hc.SetVersion(version)
	hc.AddCheck("ping", PingCheck(), time.Second)
	return hc
}
