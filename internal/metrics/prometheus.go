package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ksu_assistant_query_duration_seconds",
			Help:    "Question answering duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"intent"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ksu_assistant_query_total",
			Help: "Total number of questions answered",
		},
		[]string{"status"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ksu_assistant_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ksu_assistant_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	SemanticSimilarity = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ksu_assistant_semantic_similarity",
			Help:    "Similarity of semantic cache hits",
			Buckets: []float64{0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1.0},
		},
	)

	GenerationRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ksu_assistant_generation_requests_total",
			Help: "Generation backend calls by mode and outcome",
		},
		[]string{"mode", "status"},
	)

	ValidationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ksu_assistant_validation_failures_total",
			Help: "Validation errors by level and kind",
		},
		[]string{"level", "kind"},
	)

	Regenerations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ksu_assistant_regenerations_total",
			Help: "Total regenerations after critical validation failures",
		},
	)

	ContextSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ksu_assistant_context_size_chars",
			Help:    "Serialized prompt context size in characters",
			Buckets: []float64{250, 500, 1000, 1500, 2000, 2500},
		},
	)

	UserSatisfaction = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ksu_assistant_feedback_total",
			Help: "User feedback on answers",
		},
		[]string{"helpful"},
	)

	MetricsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ksu_assistant_metrics_dropped_total",
			Help: "Request records dropped because the persistence queue was full",
		},
	)
)

var registerOnce sync.Once

// Init registers the collectors with the default registry. Repeated calls are no-ops.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(QueryDuration)
		prometheus.MustRegister(QueryTotal)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(SemanticSimilarity)
		prometheus.MustRegister(GenerationRequests)
		prometheus.MustRegister(ValidationFailures)
		prometheus.MustRegister(Regenerations)
		prometheus.MustRegister(ContextSize)
		prometheus.MustRegister(UserSatisfaction)
		prometheus.MustRegister(MetricsDropped)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
