package api

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"gunfight/internal/config"
	"gunfight/internal/game"
)

// Metrics with bounded cardinality: labels only take values from closed
// sets (reasons, zones), never player or weapon ids.
var (
	shotsFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "combat_shots_fired_total",
		Help: "Shots that passed every check and spent a round",
	})

	shotsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "combat_shots_rejected_total",
		Help: "Fire requests rejected before a round was spent",
	}, []string{"reason"})

	hitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "combat_hits_total",
		Help: "Confirmed hits by hitbox zone",
	}, []string{"zone"}) // "head" or "body"

	eliminationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "combat_eliminations_total",
		Help: "Player eliminations",
	})

	fireDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "combat_fire_duration_seconds",
		Help:    "Wall time to process one fire request end to end",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
	})

	playerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "combat_player_count",
		Help: "Current number of players in the match",
	})

	journalDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "combat_journal_dropped",
		Help: "Events dropped by the journal's flood protection",
	})

	journalTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "combat_journal_accepted",
		Help: "Events accepted into the journal",
	})

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the URL

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket messages broadcast",
	})
)

// RecordShotRejected counts a rejected fire request by reason.
func RecordShotRejected(reason game.Reason) {
	shotsRejected.WithLabelValues(string(reason)).Inc()
}

// RecordFireDuration observes end-to-end fire processing time.
func RecordFireDuration(d time.Duration) { fireDuration.Observe(d.Seconds()) }

// UpdatePlayerCount updates the player gauge.
func UpdatePlayerCount(count int) { playerCount.Set(float64(count)) }

// UpdateJournalStats refreshes the journal gauges.
func UpdateJournalStats(total, dropped uint64) {
	journalTotal.Set(float64(total))
	journalDropped.Set(float64(dropped))
}

// RecordConnectionRejected increments the rejection counter. reason must
// come from the bounded set documented on the metric.
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request latency per route pattern.
func RecordRequest(method, endpoint string, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// UpdateWSConnections updates the WebSocket connection gauge.
func UpdateWSConnections(count int) { wsConnectionsActive.Set(float64(count)) }

// IncrementWSMessages counts one broadcast message.
func IncrementWSMessages() { wsMessagesTotal.Inc() }

// MetricsSink feeds combat events into the Prometheus counters. It
// implements game.EventSink and never blocks.
type MetricsSink struct{}

// NewMetricsSink returns the metrics event sink.
func NewMetricsSink() *MetricsSink { return &MetricsSink{} }

// Publish implements game.EventSink.
func (s *MetricsSink) Publish(ev game.Event) {
	switch ev.Type {
	case game.EventTypeFire:
		shotsFired.Inc()
	case game.EventTypeHit:
		var p game.HitPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		zone := "body"
		if p.Headshot {
			zone = "head"
		}
		hitsTotal.WithLabelValues(zone).Inc()
	case game.EventTypeElimination:
		eliminationsTotal.Inc()
	}
}

// StartDebugServer starts the internal observability server with pprof
// and the Prometheus endpoint. It binds to localhost unless the override
// env flag is set: pprof exposed publicly is a DoS vector.
func StartDebugServer(cfg config.ObservabilityConfig, log zerolog.Logger) {
	if !cfg.Enabled {
		log.Info().Msg("debug server disabled")
		return
	}

	if cfg.ListenAddr != "127.0.0.1:6060" && cfg.ListenAddr != "localhost:6060" {
		if os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
			log.Warn().Str("addr", cfg.ListenAddr).Msg("debug server forced to localhost")
			cfg.ListenAddr = "127.0.0.1:6060"
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("debug server listening")
		if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
			log.Error().Err(err).Msg("debug server stopped")
		}
	}()
}
