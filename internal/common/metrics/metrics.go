// Package metrics exposes Prometheus collectors for judging, sandbox runs,
// duel rooms and the host.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "algoarena"

// Registry owns every collector the server exports.
type Registry struct {
	reg *prometheus.Registry

	verdicts        *prometheus.CounterVec
	judgeDuration   *prometheus.HistogramVec
	judgeInFlight   prometheus.Gauge
	compiles        *prometheus.CounterVec
	compileTime     *prometheus.HistogramVec
	runs            *prometheus.CounterVec
	runTime         *prometheus.HistogramVec
	runMemory       *prometheus.HistogramVec
	roomsActive     *prometheus.GaugeVec
	matchesFinished *prometheus.CounterVec
	connections     prometheus.Gauge

	host *hostMetrics
}

// NewRegistry creates a registry with process and Go runtime collectors attached.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	msBuckets := []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000}
	return &Registry{
		reg: reg,
		verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "judge",
			Name:      "verdicts_total",
			Help:      "Judged submissions by language and overall status",
		}, []string{"language", "status"}),
		judgeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "judge",
			Name:      "duration_ms",
			Help:      "Wall time spent judging one submission",
			Buckets:   msBuckets,
		}, []string{"language"}),
		judgeInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "judge",
			Name:      "in_flight",
			Help:      "Judge worker slots currently in use",
		}),
		compiles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "compiles_total",
			Help:      "Compilations by language and result",
		}, []string{"language", "ok"}),
		compileTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "compile_time_ms",
			Help:      "CPU time spent compiling",
			Buckets:   msBuckets,
		}, []string{"language"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "runs_total",
			Help:      "Test case runs by language and outcome",
		}, []string{"language", "outcome"}),
		runTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "run_time_ms",
			Help:      "CPU time of a single test case run",
			Buckets:   msBuckets,
		}, []string{"language"}),
		runMemory: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "run_memory_kb",
			Help:      "Peak memory of a single test case run",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 10),
		}, []string{"language"}),
		roomsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "duel",
			Name:      "rooms",
			Help:      "Rooms currently held in memory by status",
		}, []string{"status"}),
		matchesFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "duel",
			Name:      "matches_finished_total",
			Help:      "Completed matches by end reason",
		}, []string{"reason"}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Open websocket connections",
		}),
		host: newHostMetrics(factory),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) ObserveVerdict(_ context.Context, language string, status string, duration time.Duration) {
	r.verdicts.WithLabelValues(language, status).Inc()
	r.judgeDuration.WithLabelValues(language).Observe(float64(duration.Milliseconds()))
}

func (r *Registry) SetInFlight(n int) {
	r.judgeInFlight.Set(float64(n))
}

func (r *Registry) ObserveCompile(_ context.Context, languageID string, ok bool, timeMs int64, _ int64) {
	r.compiles.WithLabelValues(languageID, strconv.FormatBool(ok)).Inc()
	r.compileTime.WithLabelValues(languageID).Observe(float64(timeMs))
}

func (r *Registry) ObserveRun(_ context.Context, languageID string, outcome string, timeMs int64, memoryKB int64, _ int64) {
	r.runs.WithLabelValues(languageID, outcome).Inc()
	r.runTime.WithLabelValues(languageID).Observe(float64(timeMs))
	r.runMemory.WithLabelValues(languageID).Observe(float64(memoryKB))
}

// SetRooms reports how many rooms are in each status.
func (r *Registry) SetRooms(counts map[string]int) {
	for status, n := range counts {
		r.roomsActive.WithLabelValues(status).Set(float64(n))
	}
}

func (r *Registry) MatchFinished(reason string) {
	r.matchesFinished.WithLabelValues(reason).Inc()
}

func (r *Registry) ConnOpened() { r.connections.Inc() }

func (r *Registry) ConnClosed() { r.connections.Dec() }
