package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "nayasahai"
	subsystem = "recovery"
)

// Collector holds all metrics for the recovery service
type Collector struct {
	// Advisory pipeline
	advisoryRequests   *prometheus.CounterVec
	advisoryRejections *prometheus.CounterVec
	oracleDuration     prometheus.Histogram

	// Case lifecycle
	caseOperations *prometheus.CounterVec
	storeErrors    *prometheus.CounterVec
	cacheResults   *prometheus.CounterVec

	// Knowledge base
	incidentLookups *prometheus.CounterVec

	// Transport
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	wsConnections       prometheus.Gauge
}

// NewCollector creates a collector registered with reg. Passing nil uses
// the default Prometheus registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		advisoryRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "advisory_requests_total",
			Help:      "Total number of advisory requests by outcome",
		}, []string{"outcome"}),
		advisoryRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "advisory_rejections_total",
			Help:      "Total number of oracle payloads replaced by the fallback",
		}, []string{"reason", "category"}),
		oracleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "oracle_duration_seconds",
			Help:      "Duration of advisory oracle calls",
			Buckets:   []float64{0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),

		caseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "case_operations_total",
			Help:      "Total number of case record operations",
		}, []string{"operation", "result"}),
		storeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "store_errors_total",
			Help:      "Total number of record store failures",
		}, []string{"operation"}),
		cacheResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "case_cache_results_total",
			Help:      "Case cache lookups by result",
		}, []string{"result"}),

		incidentLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "incident_lookups_total",
			Help:      "Incident lookups by result",
		}, []string{"result"}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		wsConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "websocket_connections",
			Help:      "Number of open websocket connections",
		}),
	}
}

// RecordAdvisory records the outcome of an advisory request
func (c *Collector) RecordAdvisory(accepted bool, reason, category string, duration time.Duration) {
	c.oracleDuration.Observe(duration.Seconds())
	if accepted {
		c.advisoryRequests.WithLabelValues("accepted").Inc()
		return
	}
	c.advisoryRequests.WithLabelValues("fallback").Inc()
	c.advisoryRejections.WithLabelValues(reason, category).Inc()
}

// RecordCaseOperation records a case lifecycle call
func (c *Collector) RecordCaseOperation(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.caseOperations.WithLabelValues(operation, result).Inc()
}

// RecordStoreError records a record store failure
func (c *Collector) RecordStoreError(operation string) {
	c.storeErrors.WithLabelValues(operation).Inc()
}

// RecordCacheResult records a cache hit or miss
func (c *Collector) RecordCacheResult(hit bool) {
	if hit {
		c.cacheResults.WithLabelValues("hit").Inc()
		return
	}
	c.cacheResults.WithLabelValues("miss").Inc()
}

// RecordIncidentLookup records a knowledge base lookup
func (c *Collector) RecordIncidentLookup(found bool) {
	if found {
		c.incidentLookups.WithLabelValues("found").Inc()
		return
	}
	c.incidentLookups.WithLabelValues("not_found").Inc()
}

// RecordHTTPRequest records an HTTP request
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ConnectionOpened increments the websocket gauge
func (c *Collector) ConnectionOpened() {
	c.wsConnections.Inc()
}

// ConnectionClosed decrements the websocket gauge
func (c *Collector) ConnectionClosed() {
	c.wsConnections.Dec()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
