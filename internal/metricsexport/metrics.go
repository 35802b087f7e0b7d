// Package metricsexport defines the Prometheus collectors for the
// traffic control plane and serves them on /metrics, adapted from
// cmd/pulse/metrics_server.go's promhttp.Handler() server but re-pointed
// at this domain's own gauges/counters/histograms instead of Proxmox
// metrics.
package metricsexport

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Collectors bundles every metric the control plane exports. Components
// hold a reference to the fields they update; nothing here depends on
// any other internal package, keeping metricsexport leaf-level like the
// teacher's metrics_server.go.
type Collectors struct {
	AgentTickLatency   prometheus.Histogram
	AgentDryTicks      prometheus.Counter
	ActionsExecuted    prometheus.Counter
	ActionsRejected    prometheus.Counter
	DetectionBufferLen prometheus.Gauge
	DetectionFlushes   prometheus.Counter
	DetectionFailures  prometheus.Counter
	PredictionConfidence *prometheus.GaugeVec
	PredictionAlerts   prometheus.Counter
	WatchdogHealthy    prometheus.Gauge
	SystemMode         *prometheus.GaugeVec
}

// New constructs and registers every collector against a fresh
// registry.
func New() (*Collectors, *prometheus.Registry) {
	reg := prometheus.NewRegistry()

	c := &Collectors{
		AgentTickLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trafficctl_agent_tick_latency_seconds",
			Help:    "Duration of one agent perceive-decide-act cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		AgentDryTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trafficctl_agent_dry_ticks_total",
			Help: "Ticks that produced zero admitted decisions.",
		}),
		ActionsExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trafficctl_actions_executed_total",
			Help: "Signal decisions executed by the actor.",
		}),
		ActionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trafficctl_actions_rejected_total",
			Help: "Signal decisions rejected by the safety validator or actuator.",
		}),
		DetectionBufferLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trafficctl_detection_buffer_len",
			Help: "Current in-memory detection buffer depth.",
		}),
		DetectionFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trafficctl_detection_flushes_total",
			Help: "Successful detection batch flushes to the persistence gateway.",
		}),
		DetectionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trafficctl_detection_flush_failures_total",
			Help: "Detection sink circuit-breaker trips (runs of consecutive failed flushes reaching the trip threshold).",
		}),
		PredictionConfidence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trafficctl_prediction_confidence",
			Help: "Most recent prediction confidence per road.",
		}, []string{"road_id"}),
		PredictionAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trafficctl_prediction_alerts_total",
			Help: "Congestion alerts emitted by the prediction broadcaster.",
		}),
		WatchdogHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trafficctl_watchdog_healthy",
			Help: "1 if the most recent watchdog sweep found every check healthy, else 0.",
		}),
		SystemMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trafficctl_system_mode",
			Help: "1 for the currently active system mode, 0 for the rest.",
		}, []string{"mode"}),
	}

	reg.MustRegister(
		c.AgentTickLatency, c.AgentDryTicks, c.ActionsExecuted, c.ActionsRejected,
		c.DetectionBufferLen, c.DetectionFlushes, c.DetectionFailures,
		c.PredictionConfidence, c.PredictionAlerts, c.WatchdogHealthy, c.SystemMode,
	)
	return c, reg
}

var metricsShutdownTimeout = 5 * time.Second

// Serve starts the /metrics HTTP server and shuts it down when ctx is
// cancelled, matching cmd/pulse/metrics_server.go's shutdown goroutine
// shape.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Str("component", "metrics_server").Str("action", "shutdown_failed").Str("addr", addr).Msg("Failed to shut down metrics server cleanly")
		}
	}()

	go func() {
		log.Info().Str("component", "metrics_server").Str("action", "listening").Str("addr", addr).Msg("Metrics endpoint listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Str("component", "metrics_server").Str("action", "stopped_unexpectedly").Str("addr", addr).Msg("Metrics server stopped unexpectedly")
		}
	}()
}
