package clustering

import (
	"context"
	"fmt"
	"log/slog"

	"varreg/internal/operation"
	"varreg/internal/platform/metrics"
	"varreg/internal/variant/models"
	"varreg/internal/variant/store"
)

// Deprecator retires active clustered variants that no submitted variant
// references anymore (all submissions merged or moved away). Deprecation
// flips the status and appends a DEPRECATED operation; the record itself is
// never removed.
type Deprecator struct {
	clustered store.ClusteredStore
	submitted store.SubmittedStore
	ops       operation.Store
	feed      operation.Sink
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewDeprecator(clustered store.ClusteredStore, submitted store.SubmittedStore, ops operation.Store, feed operation.Sink, m *metrics.Metrics, log *slog.Logger) *Deprecator {
	if feed == nil {
		feed = operation.Discard{}
	}
	return &Deprecator{clustered: clustered, submitted: submitted, ops: ops, feed: feed, metrics: m, log: log}
}

// Run scans every active clustered variant in the assembly and deprecates the
// ones without submitted variants. Returns how many were deprecated.
func (d *Deprecator) Run(ctx context.Context, assembly string) (int, error) {
	all, err := d.clustered.ListByAssembly(ctx, assembly)
	if err != nil {
		return 0, fmt.Errorf("list clustered variants for %s: %w", assembly, err)
	}

	deprecated := 0
	for _, cv := range all {
		if cv.Status != models.StatusActive {
			continue
		}
		if err := ctx.Err(); err != nil {
			return deprecated, err
		}
		refs, err := d.submitted.FindByClusteredAccession(ctx, cv.Accession)
		if err != nil {
			return deprecated, fmt.Errorf("find submissions for %d: %w", cv.Accession, err)
		}
		if len(refs) > 0 {
			continue
		}
		if err := d.deprecateOne(ctx, cv); err != nil {
			return deprecated, err
		}
		deprecated++
	}
	return deprecated, nil
}

func (d *Deprecator) deprecateOne(ctx context.Context, cv models.ClusteredVariant) error {
	cv.Status = models.StatusDeprecated
	if err := d.clustered.Upsert(ctx, cv); err != nil {
		return fmt.Errorf("deprecate %d: %w", cv.Accession, err)
	}
	op := operation.NewOperation(operation.EventDeprecated, cv.Accession, nil, cv.Assembly,
		"no submitted variants reference this accession",
		operation.Snapshot{Clustered: []models.ClusteredVariant{cv}})
	if err := d.ops.Append(ctx, op); err != nil {
		return fmt.Errorf("deprecate %d: %w", cv.Accession, err)
	}
	if err := d.feed.Publish(ctx, op); err != nil {
		return fmt.Errorf("deprecate %d: %w", cv.Accession, err)
	}
	d.metrics.DeprecateOperations.Inc()
	d.log.Info("deprecated clustered variant", "accession", cv.Accession, "assembly", cv.Assembly)
	return nil
}
