package catidx

import "github.com/davidvella/catidx/metrics"

// Metric names recorded by builds and the lookup server.
const (
	MetricRecordsScanned = "catidx_records_scanned_total"
	MetricRecordsSkipped = "catidx_records_skipped_total"
	MetricEntriesLoaded  = "catidx_entries_loaded_total"
	MetricBuildState     = "catidx_build_state"
	MetricBuildSeconds   = "catidx_build_seconds"
	MetricLookups        = "catidx_lookups_total"
)

// RegisterMetrics registers every catidx metric with r.
func RegisterMetrics(r *metrics.Registry) {
	r.Register(metrics.Metric{Name: MetricRecordsScanned, Type: metrics.Counter, Description: "Catalog records scanned"})
	r.Register(metrics.Metric{Name: MetricRecordsSkipped, Type: metrics.Counter, Description: "Catalog records without a key"})
	r.Register(metrics.Metric{Name: MetricEntriesLoaded, Type: metrics.Counter, Description: "Index entries loaded"})
	r.Register(metrics.Metric{Name: MetricBuildState, Type: metrics.Gauge, Description: "Current build lifecycle state"})
	r.Register(metrics.Metric{Name: MetricBuildSeconds, Type: metrics.Gauge, Description: "Duration of the last build"})
	r.Register(metrics.Metric{Name: MetricLookups, Type: metrics.Counter, Description: "Lookups served"})
}
