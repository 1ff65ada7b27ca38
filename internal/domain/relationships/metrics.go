package relationships

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// mutationsTotal counts engine mutations by operation and outcome
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialgraph_mutations_total",
		Help: "Relationship mutations by operation and outcome",
	}, []string{"op", "outcome"})

	// storeDuration tracks store query latency
	storeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "socialgraph_store_duration_seconds",
		Help:    "Relationship store query duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	}, []string{"op"})

	// suggestionCacheTotal counts suggestion cache lookups by result
	suggestionCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialgraph_suggestion_cache_total",
		Help: "Suggestion cache lookups by result",
	}, []string{"result"})
)

func observeStore(op string, start time.Time) {
	storeDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func recordMutation(op string, err error) {
	mutationsTotal.WithLabelValues(op, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrStoreUnavailable):
		return "unavailable"
	default:
		return "rejected"
	}
}
