package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "postcards"

// Image text extraction metrics.
var (
	ExtractionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_requests_total",
			Help:      "Total number of image text extractions by outcome",
		},
		[]string{"outcome"}, // "text" / "no_text" / "placeholder" / "download_error" / "failed"
	)

	ExtractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Image text extraction duration in seconds, cache misses only",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"outcome"},
	)

	VisionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vision_requests_total",
			Help:      "Total number of vision model calls",
		},
		[]string{"model", "status"},
	)

	ImageTextCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_text_cache_total",
			Help:      "Image text cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

// Marketplace client metrics.
var (
	MarketplaceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "marketplace_requests_total",
			Help:      "Total number of marketplace searches",
		},
		[]string{"source", "status"},
	)

	MarketplaceRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "marketplace_request_duration_seconds",
			Help:      "Marketplace search duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source"},
	)

	MarketplaceListingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "marketplace_listings_total",
			Help:      "Total listings returned by marketplaces",
		},
		[]string{"source"},
	)
)

// Enrichment scheduling metrics.
var (
	EnrichmentJobsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "enrichment_jobs_active",
			Help:      "Background enrichment jobs currently running",
		},
	)

	EnrichmentTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_tasks_total",
			Help:      "Image extraction tasks scheduled by phase",
		},
		[]string{"phase"}, // "immediate" / "background"
	)

	EnrichmentBatchTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_batch_timeouts_total",
			Help:      "Background batches abandoned after the per-batch timeout",
		},
	)

	EnrichmentJobsStoppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_jobs_finished_total",
			Help:      "Background enrichment jobs by how they finished",
		},
		[]string{"reason"}, // "completed" / "budget" / "canceled"
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers extraction, marketplace and enrichment metrics.
// Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		ExtractionRequestsTotal,
		ExtractionDuration,
		VisionRequestsTotal,
		ImageTextCacheTotal,
		MarketplaceRequestsTotal,
		MarketplaceRequestDuration,
		MarketplaceListingsTotal,
		EnrichmentJobsActive,
		EnrichmentTasksTotal,
		EnrichmentBatchTimeoutsTotal,
		EnrichmentJobsStoppedTotal,
	)
	pipelineMetricsRegistered = true
}
