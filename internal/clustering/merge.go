package clustering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"varreg/internal/operation"
	"varreg/internal/platform/metrics"
	"varreg/internal/variant/models"
	"varreg/internal/variant/store"
)

// MergeError marks a failure while merging one accession; the job treats it
// as retryable because Apply is safe to re-run.
type MergeError struct {
	Accession uint64
	cause     error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge accession %d: %v", e.Accession, e.cause)
}

func (e *MergeError) Unwrap() error { return e.cause }

// Prioritise picks the surviving accession between two candidates. The
// numerically smaller (older) accession always wins; equal inputs return the
// input unchanged so a caller can never be handed a self-merge.
func Prioritise(a, b uint64) uint64 {
	if a == b {
		return a
	}
	if b < a {
		return b
	}
	return a
}

// ResolveMerge reduces a set of clustered variants claiming the same locus to
// one survivor and the mergees that must yield to it. Candidates are deduped
// by accession first, then folded pairwise through Prioritise.
func ResolveMerge(candidates []models.ClusteredVariant) (models.ClusteredVariant, []models.ClusteredVariant) {
	distinct := DedupeBy(candidates, func(cv models.ClusteredVariant) uint64 { return cv.Accession })
	if len(distinct) == 0 {
		return models.ClusteredVariant{}, nil
	}

	survivor := distinct[0]
	for _, cv := range distinct[1:] {
		if Prioritise(survivor.Accession, cv.Accession) == cv.Accession {
			survivor = cv
		}
	}

	mergees := make([]models.ClusteredVariant, 0, len(distinct)-1)
	for _, cv := range distinct {
		if cv.Accession != survivor.Accession {
			mergees = append(mergees, cv)
		}
	}
	return survivor, mergees
}

// Merger applies resolved merges to the registry.
type Merger struct {
	clustered store.ClusteredStore
	submitted store.SubmittedStore
	ops       operation.Store
	feed      operation.Sink
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewMerger(clustered store.ClusteredStore, submitted store.SubmittedStore, ops operation.Store, feed operation.Sink, m *metrics.Metrics, log *slog.Logger) *Merger {
	if feed == nil {
		feed = operation.Discard{}
	}
	return &Merger{clustered: clustered, submitted: submitted, ops: ops, feed: feed, metrics: m, log: log}
}

// Apply merges every mergee into the survivor: the survivor is (re)written as
// the active record for the locus, submitted-variant back-references are
// rewritten, each mergee is flipped to MERGED, and one MERGED operation is
// appended per mergee. A mergee that was never materialized as a clustered
// record still gets its back-references rewritten and its operation written.
// Re-applying the same merge is a no-op at every step.
func (m *Merger) Apply(ctx context.Context, survivor models.ClusteredVariant, mergees []models.ClusteredVariant, reason string) error {
	survivor.Status = models.StatusActive
	survivor.MergedInto = nil
	if err := m.clustered.Upsert(ctx, survivor); err != nil {
		return &MergeError{Accession: survivor.Accession, cause: err}
	}

	for _, mergee := range mergees {
		if mergee.Accession == survivor.Accession {
			continue
		}
		if err := m.mergeOne(ctx, survivor, mergee, reason); err != nil {
			return err
		}
	}
	return nil
}

func (m *Merger) mergeOne(ctx context.Context, survivor, mergee models.ClusteredVariant, reason string) error {
	moved, err := m.submitted.ReassignClustered(ctx, mergee.Accession, survivor.Accession)
	if err != nil {
		return &MergeError{Accession: mergee.Accession, cause: err}
	}

	snapshot := operation.Snapshot{}
	stored, err := m.clustered.FindByAccession(ctx, mergee.Accession)
	switch {
	case err == nil:
		alreadyMerged := stored.Status == models.StatusMerged &&
			stored.MergedInto != nil && *stored.MergedInto == survivor.Accession
		if !alreadyMerged {
			dest := survivor.Accession
			stored.Status = models.StatusMerged
			stored.MergedInto = &dest
			if err := m.clustered.Upsert(ctx, stored); err != nil {
				return &MergeError{Accession: mergee.Accession, cause: err}
			}
		}
		snapshot.Clustered = []models.ClusteredVariant{stored}
	case errors.Is(err, store.ErrNotFound):
		// The mergee exists only as a back-reference on submitted variants.
		// The history record is still owed so the redirect can be answered.
		m.log.Warn("merging unmaterialized clustered variant",
			"accession", mergee.Accession, "destination", survivor.Accession)
		mergee.Status = models.StatusMerged
		dest := survivor.Accession
		mergee.MergedInto = &dest
		snapshot.Clustered = []models.ClusteredVariant{mergee}
	default:
		return &MergeError{Accession: mergee.Accession, cause: err}
	}

	dest := survivor.Accession
	op := operation.NewOperation(operation.EventMerged, mergee.Accession, &dest, survivor.Assembly,
		reason, snapshot)
	if err := m.ops.Append(ctx, op); err != nil {
		return &MergeError{Accession: mergee.Accession, cause: err}
	}
	if err := m.feed.Publish(ctx, op); err != nil {
		return &MergeError{Accession: mergee.Accession, cause: err}
	}

	m.metrics.MergeOperations.Inc()
	m.log.Info("merged clustered variant",
		"accession", mergee.Accession, "destination", survivor.Accession, "submitted_moved", moved)
	return nil
}
