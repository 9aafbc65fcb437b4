package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the chart engine.
type Metrics struct {
	TicksApplied    prometheus.Counter
	FramesBuilt     prometheus.Counter
	FramesCoalesced prometheus.Counter // state changes absorbed into an existing dirty frame
	AlertsTriggered prometheus.Counter
	MirrorFailures  prometheus.Counter
	FetchFallbacks  prometheus.Counter // historical fetches degraded to synthetic data

	FrameBuildDur prometheus.Histogram
	SnapshotDur   prometheus.Histogram

	ActiveSessions prometheus.Gauge
	ReplayActive   prometheus.Gauge

	WSClients    prometheus.Gauge
	TickOverflow prometheus.Counter
}

// New registers and returns all chart engine metrics.
func New() *Metrics {
	m := &Metrics{
		TicksApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartengine_ticks_applied_total",
			Help: "Live ticks merged into the candle buffer",
		}),
		FramesBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartengine_frames_built_total",
			Help: "Frames built by the render pipeline",
		}),
		FramesCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartengine_frames_coalesced_total",
			Help: "Redraw requests coalesced into an already-pending frame",
		}),
		AlertsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartengine_alerts_triggered_total",
			Help: "Price alerts that crossed their threshold",
		}),
		MirrorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartengine_mirror_failures_total",
			Help: "Best-effort annotation mirror writes that failed",
		}),
		FetchFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartengine_fetch_fallbacks_total",
			Help: "Historical fetches degraded to the synthetic generator",
		}),
		FrameBuildDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartengine_frame_build_duration_seconds",
			Help:    "Frame build latency",
			Buckets: prometheus.DefBuckets,
		}),
		SnapshotDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartengine_snapshot_duration_seconds",
			Help:    "PNG snapshot render latency",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartengine_active_sessions",
			Help: "Chart sessions currently open",
		}),
		ReplayActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartengine_replay_active",
			Help: "Sessions currently in replay mode",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartengine_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		TickOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartengine_tick_overflow_total",
			Help: "Ticks dropped because the ingest ring buffer was full",
		}),
	}

	prometheus.MustRegister(
		m.TicksApplied, m.FramesBuilt, m.FramesCoalesced, m.AlertsTriggered,
		m.MirrorFailures, m.FetchFallbacks, m.FrameBuildDur, m.SnapshotDur,
		m.ActiveSessions, m.ReplayActive, m.WSClients, m.TickOverflow,
	)
	return m
}

// Serve starts the /metrics HTTP endpoint. Blocks until ctx is cancelled.
func Serve(ctx context.Context, addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("metrics server failed", "err", err)
	}
}
