package clustering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"varreg/internal/operation"
	"varreg/internal/platform/metrics"
	"varreg/internal/variant/models"
	"varreg/internal/variant/store"
)

// SplitError marks a failure while splitting one accession. Accession minting
// failures abort the whole split; a partially applied split re-runs cleanly
// because every step is idempotent.
type SplitError struct {
	Accession uint64
	cause     error
}

func (e *SplitError) Error() string {
	return fmt.Sprintf("split accession %d: %v", e.Accession, e.cause)
}

func (e *SplitError) Unwrap() error { return e.cause }

// ResolveSplit partitions the submitted variants of one clustered accession
// by canonical key and decides which partition keeps the accession: the one
// matching the clustered variant's stored key, or the lowest-sorting key when
// none matches. The remaining partitions are returned in deterministic key
// order and need freshly minted accessions.
func ResolveSplit(cv models.ClusteredVariant, submitted []models.SubmittedVariant) (keep []models.SubmittedVariant, moved [][]models.SubmittedVariant) {
	groups := make(map[models.CanonicalKey][]models.SubmittedVariant)
	for _, sv := range submitted {
		key := sv.Key()
		groups[key] = append(groups[key], sv)
	}
	if len(groups) < 2 {
		return submitted, nil
	}

	keys := make([]models.CanonicalKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })

	keeper := keys[0]
	if _, ok := groups[cv.Key()]; ok {
		keeper = cv.Key()
	}

	for _, key := range keys {
		if key == keeper {
			continue
		}
		moved = append(moved, groups[key])
	}
	return groups[keeper], moved
}

func lessKey(a, b models.CanonicalKey) bool {
	if a.Contig != b.Contig {
		return a.Contig < b.Contig
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.Type < b.Type
}

// Splitter applies resolved splits to the registry.
type Splitter struct {
	clustered store.ClusteredStore
	submitted store.SubmittedStore
	source    store.AccessionSource
	ops       operation.Store
	feed      operation.Sink
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewSplitter(clustered store.ClusteredStore, submitted store.SubmittedStore, source store.AccessionSource, ops operation.Store, feed operation.Sink, m *metrics.Metrics, log *slog.Logger) *Splitter {
	if feed == nil {
		feed = operation.Discard{}
	}
	return &Splitter{clustered: clustered, submitted: submitted, source: source, ops: ops, feed: feed, metrics: m, log: log}
}

// Apply splits the clustered variant so each canonical key among its
// submitted variants ends up under its own accession. The original accession
// keeps the partition matching its stored key; every other partition gets a
// new clustered record and a SPLIT operation snapshotting the moved
// submissions.
func (sp *Splitter) Apply(ctx context.Context, cv models.ClusteredVariant, submitted []models.SubmittedVariant, reason string) error {
	_, moved := ResolveSplit(cv, submitted)

	for _, group := range moved {
		key := group[0].Key()
		if err := sp.splitGroup(ctx, cv, key, group, reason); err != nil {
			return err
		}
	}
	return nil
}

func (sp *Splitter) splitGroup(ctx context.Context, cv models.ClusteredVariant, key models.CanonicalKey, group []models.SubmittedVariant, reason string) error {
	// A re-run finds the group's key already active under a prior split's
	// accession and reuses it instead of minting again.
	target, err := sp.clustered.FindActiveByHash(ctx, key.Hash())
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return &SplitError{Accession: cv.Accession, cause: err}
		}
		accession, mintErr := sp.source.Next(ctx)
		if mintErr != nil {
			return &SplitError{Accession: cv.Accession, cause: mintErr}
		}
		target = models.ClusteredVariant{
			Accession: accession,
			Assembly:  key.Assembly,
			Contig:    key.Contig,
			Start:     key.Start,
			Type:      key.Type,
			Status:    models.StatusActive,
			CreatedAt: cv.CreatedAt,
		}
		if err := sp.clustered.Upsert(ctx, target); err != nil {
			return &SplitError{Accession: cv.Accession, cause: err}
		}
	}

	for _, sv := range group {
		if err := sp.submitted.SetClusteredAccession(ctx, sv.Accession, target.Accession); err != nil {
			return &SplitError{Accession: cv.Accession, cause: err}
		}
	}

	dest := target.Accession
	op := operation.NewOperation(operation.EventSplit, cv.Accession, &dest, cv.Assembly,
		reason, operation.Snapshot{Submitted: group})
	if err := sp.ops.Append(ctx, op); err != nil {
		return &SplitError{Accession: cv.Accession, cause: err}
	}
	if err := sp.feed.Publish(ctx, op); err != nil {
		return &SplitError{Accession: cv.Accession, cause: err}
	}

	sp.metrics.SplitOperations.Inc()
	sp.log.Info("split clustered variant",
		"accession", cv.Accession, "destination", target.Accession,
		"contig", key.Contig, "start", key.Start, "submitted_moved", len(group))
	return nil
}
