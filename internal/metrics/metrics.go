// Package metrics records what one vimsaver run did as Prometheus metrics.
//
// Runs are one-shot, so nothing is served over HTTP. When a textfile path is
// configured the registry is written in the node-exporter textfile format
// after the run. All recording methods are safe on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation labels.
const (
	OpSave = "save"
	OpQuit = "quit"
	OpLoad = "load"
)

// Skip reasons.
const (
	ReasonNoForeground   = "no_foreground"
	ReasonForeignProcess = "foreground_not_shell"
	ReasonAttachFailed   = "attach_failed"
	ReasonActionFailed   = "action_failed"
	ReasonUnknownApp     = "unknown_app"
)

// Metrics holds the collectors of one run on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	passes          *prometheus.CounterVec
	restarts        *prometheus.CounterVec
	passDuration    *prometheus.HistogramVec
	resumeRequests  prometheus.Counter
	skipped         *prometheus.CounterVec
	instances       *prometheus.CounterVec
	items           prometheus.Counter
	windowsCreated  prometheus.Counter
	alreadyRunning  prometheus.Counter
	lastRunSuccess  *prometheus.GaugeVec
	lastRunComplete *prometheus.GaugeVec
}

// New creates a Metrics with every collector registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vimsaver",
			Subsystem: "reconcile",
			Name:      "passes_total",
			Help:      "Number of discovery passes started.",
		}, []string{"operation"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vimsaver",
			Subsystem: "reconcile",
			Name:      "pass_restarts_total",
			Help:      "Number of passes abandoned because a resume was requested.",
		}, []string{"operation"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vimsaver",
			Subsystem: "reconcile",
			Name:      "pass_duration_seconds",
			Help:      "Wall time of one discovery pass.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		resumeRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vimsaver",
			Subsystem: "reconcile",
			Name:      "resume_requests_total",
			Help:      "Number of resume commands sent to a shell.",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vimsaver",
			Name:      "skipped_total",
			Help:      "Number of instances skipped, by reason.",
		}, []string{"operation", "reason"}),
		instances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vimsaver",
			Name:      "instances_total",
			Help:      "Number of application instances acted on.",
		}, []string{"operation"}),
		items: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vimsaver",
			Subsystem: "reconcile",
			Name:      "items_extracted_total",
			Help:      "Number of workspace items extracted.",
		}),
		windowsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vimsaver",
			Subsystem: "restore",
			Name:      "windows_created_total",
			Help:      "Number of windows created during restore.",
		}),
		alreadyRunning: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vimsaver",
			Subsystem: "restore",
			Name:      "instances_already_running_total",
			Help:      "Number of instances left alone because they were reachable.",
		}),
		lastRunSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vimsaver",
			Name:      "last_run_success",
			Help:      "1 if the last run of the operation succeeded, 0 otherwise.",
		}, []string{"operation"}),
		lastRunComplete: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vimsaver",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run of the operation finished.",
		}, []string{"operation"}),
	}
	m.registry.MustRegister(
		m.passes, m.restarts, m.passDuration, m.resumeRequests, m.skipped,
		m.instances, m.items, m.windowsCreated, m.alreadyRunning,
		m.lastRunSuccess, m.lastRunComplete,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// PassStarted counts a discovery pass.
func (m *Metrics) PassStarted(op string) {
	if m != nil {
		m.passes.WithLabelValues(op).Inc()
	}
}

// PassRestarted counts a pass abandoned for a resume.
func (m *Metrics) PassRestarted(op string) {
	if m != nil {
		m.restarts.WithLabelValues(op).Inc()
	}
}

// ObservePass records the duration of a pass.
func (m *Metrics) ObservePass(op string, d time.Duration) {
	if m != nil {
		m.passDuration.WithLabelValues(op).Observe(d.Seconds())
	}
}

// ResumeRequested counts a resume command.
func (m *Metrics) ResumeRequested() {
	if m != nil {
		m.resumeRequests.Inc()
	}
}

// Skipped counts a skipped instance.
func (m *Metrics) Skipped(op, reason string) {
	if m != nil {
		m.skipped.WithLabelValues(op, reason).Inc()
	}
}

// Instance counts an instance acted on by op.
func (m *Metrics) Instance(op string) {
	if m != nil {
		m.instances.WithLabelValues(op).Inc()
	}
}

// ItemsExtracted counts extracted workspace items.
func (m *Metrics) ItemsExtracted(n int) {
	if m != nil {
		m.items.Add(float64(n))
	}
}

// WindowCreated counts a window created during restore.
func (m *Metrics) WindowCreated() {
	if m != nil {
		m.windowsCreated.Inc()
	}
}

// AlreadyRunning counts an instance restore left alone.
func (m *Metrics) AlreadyRunning() {
	if m != nil {
		m.alreadyRunning.Inc()
	}
}

// RunFinished records the outcome of op.
func (m *Metrics) RunFinished(op string, err error) {
	if m == nil {
		return
	}
	success := 1.0
	if err != nil {
		success = 0
	}
	m.lastRunSuccess.WithLabelValues(op).Set(success)
	m.lastRunComplete.WithLabelValues(op).SetToCurrentTime()
}

// WriteTextfile writes every metric to path in the textfile collector format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
