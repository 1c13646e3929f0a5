package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collaborator Prometheus metrics: the LLM, the document source, and the
// POI provider.
var (
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "foodagent",
			Name:      "llm_requests_total",
			Help:      "Total number of LLM chat requests",
		},
		[]string{"component", "model", "status"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "foodagent",
			Name:      "llm_request_duration_seconds",
			Help:      "LLM chat request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"component", "model"},
	)

	SourceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "foodagent",
			Name:      "source_requests_total",
			Help:      "Total number of document-source requests",
		},
		[]string{"op", "status"},
	)

	POIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "foodagent",
			Name:      "poi_requests_total",
			Help:      "Total number of POI provider requests",
		},
		[]string{"status"},
	)

	POICacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "foodagent",
			Name:      "poi_cache_total",
			Help:      "POI cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var collaboratorMetricsRegistered bool

// RegisterCollaboratorMetrics registers collaborator metrics. Must be
// called once from main.
func RegisterCollaboratorMetrics() {
	if collaboratorMetricsRegistered {
		return
	}
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(SourceRequestsTotal)
	prometheus.MustRegister(POIRequestsTotal)
	prometheus.MustRegister(POICacheTotal)
	collaboratorMetricsRegistered = true
}
