package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Citation metrics
	CitationAnnotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdpm_citation_annotations_total",
			Help: "Total number of chat answers annotated",
		},
		[]string{"mode"}, // passthrough|annotated
	)

	CitationMarkers = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pdpm_citation_markers",
			Help:    "Number of citation markers spliced into one answer",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
		},
	)

	CitationOffsetsClamped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pdpm_citation_offsets_clamped_total",
			Help: "Citation groups whose end offset was out of order or out of range",
		},
	)

	// Aggregation metrics
	Aggregations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdpm_aggregations_total",
			Help: "Total number of score aggregations",
		},
		[]string{"domain", "source"}, // source: request|assessment
	)

	CategoryChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdpm_projected_category_changes_total",
			Help: "Aggregations where accepting suggestions changes the category",
		},
		[]string{"domain"},
	)

	// Table registry metrics
	TableReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdpm_table_reloads_total",
			Help: "Category table reload attempts",
		},
		[]string{"status"}, // applied|rejected
	)

	TablesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pdpm_tables_loaded",
			Help: "Number of category tables in the live registry",
		},
	)

	// Assessment source metrics
	AssessmentCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pdpm_assessment_cache_hits_total",
			Help: "Assessment entry lookups served from Redis",
		},
	)

	AssessmentCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pdpm_assessment_cache_misses_total",
			Help: "Assessment entry lookups that went to the database",
		},
	)

	AssessmentQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pdpm_assessment_query_duration_seconds",
			Help:    "Duration of assessment entry queries",
			Buckets: prometheus.DefBuckets,
		},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdpm_http_requests_total",
			Help: "Total HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pdpm_http_request_duration_seconds",
			Help:    "HTTP request duration by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pdpm_http_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pdpm_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdpm_circuit_breaker_rejections_total",
			Help: "Calls rejected because the breaker was open",
		},
		[]string{"name"},
	)
)
