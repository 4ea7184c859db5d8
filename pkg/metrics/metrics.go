// Package metrics keeps the kiosk's counters and serves them in the
// Prometheus text format.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Submission results.
const (
	ResultAccepted = "accepted"
	ResultFailed   = "failed"
	ResultStale    = "stale"
)

// Kiosk holds every metric the consent server records.
type Kiosk struct {
	SessionsActive *Gauge
	SessionsTotal  *Counter

	Submissions    *CounterVec
	SubmitDuration *Histogram

	ValidationFailures *CounterVec

	IdleWarnings *Counter
	IdleResets   *Counter

	namespace string
}

// New creates a metric set whose names start with namespace.
func New(namespace string) *Kiosk {
	return &Kiosk{
		SessionsActive: NewGauge("sessions_active", "Open kiosk sessions."),
		SessionsTotal:  NewCounter("sessions_total", "Kiosk sessions started."),

		Submissions:    NewCounterVec("submissions_total", "Submission outcomes.", "result"),
		SubmitDuration: NewHistogram("submit_duration_seconds", "Time the backend took to answer a submission."),

		ValidationFailures: NewCounterVec("validation_failures_total", "Forward moves blocked by invalid answers.", "form"),

		IdleWarnings: NewCounter("idle_warnings_total", "Inactivity warnings shown."),
		IdleResets:   NewCounter("idle_resets_total", "Forms reset after inactivity."),

		namespace: namespace,
	}
}

// Handler serves the metrics.
func (k *Kiosk) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		k.Export(w)
	})
}

// Export writes every metric to w.
func (k *Kiosk) Export(w io.Writer) {
	k.writeGauge(w, k.SessionsActive)
	k.writeCounter(w, k.SessionsTotal)
	k.writeCounterVec(w, k.Submissions)
	k.writeHistogram(w, k.SubmitDuration)
	k.writeCounterVec(w, k.ValidationFailures)
	k.writeCounter(w, k.IdleWarnings)
	k.writeCounter(w, k.IdleResets)
}

func (k *Kiosk) name(n string) string {
	if k.namespace == "" {
		return n
	}
	return k.namespace + "_" + n
}

func (k *Kiosk) header(w io.Writer, name, help, kind string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

func (k *Kiosk) writeGauge(w io.Writer, g *Gauge) {
	name := k.name(g.name)
	k.header(w, name, g.help, "gauge")
	fmt.Fprintf(w, "%s %s\n", name, format(g.Value()))
}

func (k *Kiosk) writeCounter(w io.Writer, c *Counter) {
	name := k.name(c.name)
	k.header(w, name, c.help, "counter")
	fmt.Fprintf(w, "%s %s\n", name, format(c.Value()))
}

func (k *Kiosk) writeCounterVec(w io.Writer, cv *CounterVec) {
	name := k.name(cv.name)
	k.header(w, name, cv.help, "counter")
	values := cv.Values()
	labels := make([]string, 0, len(values))
	for l := range values {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		fmt.Fprintf(w, "%s{%s=%q} %s\n", name, cv.label, l, format(values[l]))
	}
}

func (k *Kiosk) writeHistogram(w io.Writer, h *Histogram) {
	name := k.name(h.name)
	stats := h.Stats()
	k.header(w, name, h.help, "summary")
	fmt.Fprintf(w, "%s_sum %s\n", name, format(stats.Sum))
	fmt.Fprintf(w, "%s_count %d\n", name, stats.Count)
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value int64
}

// NewCounter creates a new counter.
func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	atomic.AddInt64(&c.value, 1)
}

// Value returns the current counter value.
func (c *Counter) Value() float64 {
	return float64(atomic.LoadInt64(&c.value))
}

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value int64
}

// NewGauge creates a new gauge.
func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Inc() { atomic.AddInt64(&g.value, 1) }
func (g *Gauge) Dec() { atomic.AddInt64(&g.value, -1) }

// Value returns the current gauge value.
func (g *Gauge) Value() float64 {
	return float64(atomic.LoadInt64(&g.value))
}

// CounterVec is a counter split by one label.
type CounterVec struct {
	name   string
	help   string
	label  string
	values map[string]*Counter
	mu     sync.RWMutex
}

// NewCounterVec creates a new counter vector.
func NewCounterVec(name, help, label string) *CounterVec {
	return &CounterVec{
		name:   name,
		help:   help,
		label:  label,
		values: make(map[string]*Counter),
	}
}

// WithLabel returns the counter for value, creating it on first use.
func (cv *CounterVec) WithLabel(value string) *Counter {
	cv.mu.RLock()
	c, ok := cv.values[value]
	cv.mu.RUnlock()
	if ok {
		return c
	}

	cv.mu.Lock()
	defer cv.mu.Unlock()
	if c, ok := cv.values[value]; ok {
		return c
	}
	c = NewCounter(cv.name, cv.help)
	cv.values[value] = c
	return c
}

// Inc increments the counter for label.
func (cv *CounterVec) Inc(label string) {
	cv.WithLabel(label).Inc()
}

// Values returns all counter values by label.
func (cv *CounterVec) Values() map[string]float64 {
	cv.mu.RLock()
	defer cv.mu.RUnlock()

	result := make(map[string]float64, len(cv.values))
	for label, counter := range cv.values {
		result[label] = counter.Value()
	}
	return result
}

// Histogram tracks the count and sum of observed values.
type Histogram struct {
	name  string
	help  string
	sum   float64
	count int64
	min   float64
	max   float64
	mu    sync.Mutex
}

// NewHistogram creates a new histogram.
func NewHistogram(name, help string) *Histogram {
	return &Histogram{name: name, help: help, min: -1}
}

// Observe records a value.
func (h *Histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += value
	h.count++
	if h.min < 0 || value < h.min {
		h.min = value
	}
	if value > h.max {
		h.max = value
	}
}

// ObserveDuration records d in seconds.
func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

// Stats returns histogram statistics.
func (h *Histogram) Stats() HistogramStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := HistogramStats{
		Count: h.count,
		Sum:   h.sum,
		Min:   h.min,
		Max:   h.max,
	}
	if h.count > 0 {
		stats.Avg = h.sum / float64(h.count)
	}
	return stats
}

// HistogramStats contains histogram statistics.
type HistogramStats struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
	Avg   float64
}
