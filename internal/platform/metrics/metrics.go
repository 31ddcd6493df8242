package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus counters shared by the import, clustering and
// release jobs.
type Metrics struct {
	SubmittedVariantsWritten prometheus.Counter
	ClusteredVariantsWritten prometheus.Counter
	DuplicateKeys            prometheus.Counter
	MergeOperations          prometheus.Counter
	SplitOperations          prometheus.Counter
	DeprecateOperations      prometheus.Counter
	ReportRowsWritten        prometheus.Counter
}

// New creates and registers all counters on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers counters on the given registerer so tests can use an
// isolated registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SubmittedVariantsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "varreg_submitted_variants_written_total",
			Help: "Submitted variant records written to the registry",
		}),
		ClusteredVariantsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "varreg_clustered_variants_written_total",
			Help: "Clustered variant records written to the registry",
		}),
		DuplicateKeys: factory.NewCounter(prometheus.CounterOpts{
			Name: "varreg_bulk_insert_duplicate_keys_total",
			Help: "Duplicate keys tolerated during bulk registry inserts",
		}),
		MergeOperations: factory.NewCounter(prometheus.CounterOpts{
			Name: "varreg_merge_operations_total",
			Help: "MERGED operations appended to the history",
		}),
		SplitOperations: factory.NewCounter(prometheus.CounterOpts{
			Name: "varreg_split_operations_total",
			Help: "SPLIT operations appended to the history",
		}),
		DeprecateOperations: factory.NewCounter(prometheus.CounterOpts{
			Name: "varreg_deprecate_operations_total",
			Help: "DEPRECATED operations appended to the history",
		}),
		ReportRowsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "varreg_report_rows_written_total",
			Help: "Variant rows written to the release report",
		}),
	}
}
