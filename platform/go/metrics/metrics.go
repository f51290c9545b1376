package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Provisioning groups the collectors emitted by the tenant provisioning flow.
// A nil *Provisioning is valid and records nothing.
type Provisioning struct {
	outcomes      *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	resolutions   *prometheus.CounterVec
	cleanups      *prometheus.CounterVec
}

// NewProvisioning creates the provisioning collectors and registers them on reg.
func NewProvisioning(reg prometheus.Registerer, prefix string) *Provisioning {
	if prefix == "" {
		prefix = "palmyra"
	}

	p := &Provisioning{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix,
			Subsystem: "provisioning",
			Name:      "outcomes_total",
			Help:      "Provisioning requests by final outcome.",
		}, []string{"outcome"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: prefix,
			Subsystem: "provisioning",
			Name:      "phase_duration_seconds",
			Help:      "Time spent in each provisioning phase.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix,
			Subsystem: "notifications",
			Name:      "total",
			Help:      "Notification deliveries by result.",
		}, []string{"result"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix,
			Subsystem: "sessions",
			Name:      "resolutions_total",
			Help:      "Tenant session resolutions by result.",
		}, []string{"result"}),
		cleanups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix,
			Subsystem: "provisioning",
			Name:      "cleanups_total",
			Help:      "Store deallocations after failed provisioning, by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(p.outcomes, p.phaseDuration, p.notifications, p.resolutions, p.cleanups)
	}
	return p
}

// ObservePhase records how long a provisioning phase took.
func (p *Provisioning) ObservePhase(phase string, d time.Duration) {
	if p == nil {
		return
	}
	p.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordOutcome counts a finished provisioning request ("success" or a failure kind).
func (p *Provisioning) RecordOutcome(outcome string) {
	if p == nil {
		return
	}
	p.outcomes.WithLabelValues(outcome).Inc()
}

func (p *Provisioning) RecordNotification(result string) {
	if p == nil {
		return
	}
	p.notifications.WithLabelValues(result).Inc()
}

func (p *Provisioning) RecordResolution(result string) {
	if p == nil {
		return
	}
	p.resolutions.WithLabelValues(result).Inc()
}

func (p *Provisioning) RecordCleanup(ok bool) {
	if p == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	p.cleanups.WithLabelValues(result).Inc()
}

// Handler exposes the gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
