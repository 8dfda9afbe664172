package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "contact_monitor"

// Rebuild reasons.
const (
	RebuildRevision = "revision"
	RebuildModify   = "modify"
)

// Serial line outcomes.
const (
	LineDelivered = "delivered"
	LineDropped   = "dropped"
)

// Modify outcomes.
const (
	ModifyApplied  = "applied"
	ModifyRejected = "rejected"
	ModifyFailed   = "failed"
)

var (
	// CyclesTotal counts background computation cycles.
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "cycles_total",
		Help:      "Background contact computation cycles completed.",
	})

	// ContactsPublished counts contact records handed to the result sink.
	ContactsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "contacts_published_total",
		Help:      "Contact records published by the background loop.",
	})

	// ComputeAnomalies counts cycles or queries that degraded to an empty result.
	ComputeAnomalies = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "compute_anomalies_total",
		Help:      "Contact computations that failed and were treated as empty.",
	})

	// SamplesSuperseded counts joint samples overwritten before being drained.
	SamplesSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "samples_superseded_total",
		Help:      "Joint state samples replaced by a newer sample before processing.",
	})

	// ManagerRebuilds counts contact manager rebuilds by reason.
	ManagerRebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "manager_rebuilds_total",
		Help:      "Contact manager rebuilds.",
	}, []string{"reason"})

	// ModifyRequests counts modify-environment requests by outcome.
	ModifyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "modify_requests_total",
		Help:      "Modify environment requests.",
	}, []string{"outcome"})

	// Queries counts on-demand contact queries.
	Queries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "queries_total",
		Help:      "On-demand contact result queries.",
	})

	// Revision mirrors the environment revision the manager was built for.
	Revision = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "environment_revision",
		Help:      "Environment revision of the current contact manager.",
	})

	// ComputeSeconds observes time spent inside the locked compute step.
	// SerialLines counts lines read from the serial feed, per subscriber
	// delivery outcome.
	SerialLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "serial_lines_total",
		Help:      "Serial feed lines offered to subscribers, by outcome.",
	}, []string{"outcome"})

	ComputeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "compute_seconds",
		Help:      "Time holding the monitor lock for one contact test.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
	})
)

// MetricsHandler serves the default Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
