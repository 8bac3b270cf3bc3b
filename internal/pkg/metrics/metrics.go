// Package metrics owns the Prometheus collectors of the service. Everything
// registers on the default registry under the "safiri" namespace.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const namespace = "safiri"

func counter(subsystem, name, help string) prometheus.Counter {
	return promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help})
}

func counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
}

func gauge(subsystem, name, help string) prometheus.Gauge {
	return promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help})
}

func histogramVec(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

// HTTP
var (
	httpRequests = counterVec("http", "requests_total",
		"Requests served, by route template and status", "method", "route", "status")
	httpLatency = histogramVec("http", "request_duration_seconds",
		"Request latency by route template", []float64{.002, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}, "method", "route")
	httpInFlight = gauge("http", "requests_in_flight", "Requests currently being served")
)

// Trip tracking
var (
	TripUpdates = counterVec("tracking", "trip_updates_total",
		"Trip mutations by kind and result code", "kind", "result")
	StageRegressions = counter("tracking", "stage_regressions_total",
		"Location updates whose matched stage was behind the current one")
	PersistenceRetries = counter("tracking", "persistence_retries_total",
		"Trip saves retried after a first failure")
	PersistenceFailures = counter("tracking", "persistence_failures_total",
		"Trip saves that failed after the retry")
	EffectFailures = counterVec("tracking", "effect_failures_total",
		"Post-commit effects that could not be applied", "kind")
	TrafficFactor = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "tracking",
		Name:      "traffic_factor",
		Help:      "Traffic factor applied to ETA predictions",
		Buckets:   []float64{1, 1.1, 1.3, 1.5, 1.8, 2.2, 2.6, 3},
	})
)

// Realtime and ingest
var (
	ActiveWebSockets = gauge("ws", "connections", "Open hub connections")
	BroadcastDrops   = counter("ws", "broadcast_drops_total",
		"Messages dropped because a client send queue was full")
	TelemetryReceived = counterVec("telemetry", "messages_total",
		"Device telemetry messages by result code", "result")
)

// Route cache
var (
	CacheHits   = counterVec("cache", "hits_total", "Route cache hits by entry kind", "kind")
	CacheMisses = counterVec("cache", "misses_total", "Route cache misses by entry kind", "kind")
)

// Postgres pool. The pool reports cumulative counts, so every series is a gauge.
var (
	dbConnsTotal    = gauge("db", "pool_conns", "Connections open in the pool")
	dbConnsAcquired = gauge("db", "pool_conns_acquired", "Connections checked out of the pool")
	dbConnsIdle     = gauge("db", "pool_conns_idle", "Idle connections in the pool")
	dbEmptyAcquires = gauge("db", "pool_empty_acquires", "Acquires that waited because the pool was empty")
	dbAcquireTime   = gauge("db", "pool_acquire_seconds", "Cumulative time spent acquiring connections")
)

// Middleware records request count, latency and in-flight requests. Routes
// are labeled by their template so trip ids do not explode cardinality.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start).Seconds()

		route := c.Route().Path
		if route == "" || route == "/" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Method(), route, strconv.Itoa(c.Response().StatusCode())).Inc()
		httpLatency.WithLabelValues(c.Method(), route).Observe(elapsed)
		return err
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	serve := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		serve(c.Context())
		return nil
	}
}

// PoolStat is the subset of pgxpool.Stat the pool gauges read.
type PoolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
	EmptyAcquireCount() int64
	AcquireDuration() time.Duration
}

// UpdateDBPoolMetrics copies a pool snapshot into the db gauges.
func UpdateDBPoolMetrics(s PoolStat) {
	dbConnsTotal.Set(float64(s.TotalConns()))
	dbConnsAcquired.Set(float64(s.AcquiredConns()))
	dbConnsIdle.Set(float64(s.IdleConns()))
	dbEmptyAcquires.Set(float64(s.EmptyAcquireCount()))
	dbAcquireTime.Set(s.AcquireDuration().Seconds())
}
