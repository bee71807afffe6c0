package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry holds the pipeline collectors. It is separate from the default
// registry so tests can read values without global state leaking between them.
var Registry = prometheus.NewRegistry()

var (
	ExternalCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "support_rag",
		Name:      "external_calls_total",
		Help:      "Calls to generation and search backends by outcome.",
	}, []string{"component", "outcome"})

	Fallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "support_rag",
		Name:      "fallbacks_total",
		Help:      "Times a stage fell back to its documented default.",
	}, []string{"stage"})

	ResearchQueries = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "support_rag",
		Name:      "research_queries_issued",
		Help:      "Web queries issued per question.",
		Buckets:   prometheus.LinearBuckets(1, 1, 10),
	})

	RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "support_rag",
		Name:      "run_duration_seconds",
		Help:      "Wall time of one question's pipeline run.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 9),
	})
)

func init() {
	Registry.MustRegister(ExternalCalls, Fallbacks, ResearchQueries, RunDuration)
}

// ObserveCall records the outcome of one backend call.
func ObserveCall(component string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	ExternalCalls.WithLabelValues(component, outcome).Inc()
}

// Fallback records that stage degraded to its default.
func Fallback(stage string) {
	Fallbacks.WithLabelValues(stage).Inc()
}

// Serve exposes /metrics on port until ctx is cancelled.
func Serve(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		log.Info().Int("port", port).Msg("Serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
}
