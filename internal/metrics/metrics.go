package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus metrics for the report aggregation service
type Metrics struct {
	ReportQueries   *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	UpstreamFetches *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	FallbackRounds  *prometheus.CounterVec
	RevealedRecords *prometheus.HistogramVec
	LiveSessions    *prometheus.GaugeVec
}
