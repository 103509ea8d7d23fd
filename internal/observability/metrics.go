package observability

import (
	"net/http"
	"time"

	"cadence/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_analysis_jobs_total",
		Help: "Total number of analysis jobs processed",
	}, []string{"status"})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cadence_analysis_duration_seconds",
		Help:    "Wall time of one delivery analysis run",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	})

	reportCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_report_cache_lookups_total",
		Help: "Report cache lookups by outcome",
	}, []string{"outcome"}) // outcome: "hit" or "miss"

	transcriptTurns = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cadence_transcript_turns",
		Help:    "Number of turns per analyzed transcript",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500},
	})
)

// RecordJob counts one finished job by terminal status.
func RecordJob(status string) {
	jobsProcessed.WithLabelValues(status).Inc()
}

// ObserveAnalysis records one engine run.
func ObserveAnalysis(d time.Duration, turns int) {
	analysisDuration.Observe(d.Seconds())
	transcriptTurns.Observe(float64(turns))
}

// RecordCacheHit counts a report served from cache.
func RecordCacheHit() {
	reportCacheLookups.WithLabelValues("hit").Inc()
}

// RecordCacheMiss counts a report that had to be computed.
func RecordCacheMiss() {
	reportCacheLookups.WithLabelValues("miss").Inc()
}

// Serve exposes /metrics on addr. It blocks, so run it in a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("Metrics endpoint listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, mux)
}
