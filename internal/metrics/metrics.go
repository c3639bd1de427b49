package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Poll loop metrics
	PollCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvwarden_poll_cycles_total",
			Help: "Total monitor poll cycles by result",
		},
		[]string{"result"}, // ok, error, panic
	)

	PollCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tvwarden_poll_cycle_duration_seconds",
			Help:    "Poll cycle duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvwarden_foreground_detections_total",
			Help: "Foreground detections by winning method",
		},
		[]string{"method"},
	)

	// Decision metrics
	MonitorActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvwarden_monitor_actions_total",
			Help: "Decision engine outcomes",
		},
		[]string{"action"},
	)

	UsageMinutesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvwarden_usage_minutes_recorded_total",
			Help: "Total usage minutes recorded in the ledger",
		},
		[]string{"package"},
	)

	// Enforcement metrics
	EnforcementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvwarden_enforcements_total",
			Help: "Enforcement actions applied",
		},
		[]string{"kind", "package"},
	)

	PrivilegedOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvwarden_privileged_operations_total",
			Help: "Privileged device operations by outcome",
		},
		[]string{"op", "result"}, // result: ok, error, skipped
	)

	// Launch gate metrics
	LaunchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvwarden_launch_requests_total",
			Help: "Launch requests by result",
		},
		[]string{"result"},
	)

	// Registry cache metrics
	AppCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tvwarden_app_cache_hits_total",
			Help: "Allowlist registry cache hits",
		},
	)

	AppCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tvwarden_app_cache_misses_total",
			Help: "Allowlist registry cache misses",
		},
	)

	// Event metrics
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvwarden_events_published_total",
			Help: "Events emitted by sink and outcome",
		},
		[]string{"sink", "result"},
	)

	MonitorRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tvwarden_monitor_running",
			Help: "1 while the poll loop is running",
		},
	)
)

func init() {
	prometheus.MustRegister(
		PollCyclesTotal,
		PollCycleDuration,
		DetectionsTotal,
		MonitorActionsTotal,
		UsageMinutesRecorded,
		EnforcementsTotal,
		PrivilegedOpsTotal,
		LaunchRequestsTotal,
		AppCacheHits,
		AppCacheMisses,
		EventsPublished,
		MonitorRunning,
	)
}

// HealthFunc reports whether the agent is healthy.
type HealthFunc func() error

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server. health may be nil.
func NewServer(addr string, health HealthFunc, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Serve runs the metrics server until it is shut down.
func (s *Server) Serve() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	var err error
	if s.listener != nil {
		s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
		err = s.server.Serve(s.listener)
	} else {
		err = s.server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the metrics server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Shutdown(ctx)
}
