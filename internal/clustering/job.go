package clustering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"varreg/internal/operation"
	"varreg/internal/variant/models"
	"varreg/internal/variant/store"
)

// redirectDepth bounds merged-into chain walking; chains longer than this
// indicate a cycle in the registry.
const redirectDepth = 10

// Job consumes the candidate markers for one assembly and applies the
// corresponding merges, splits and deprecations. Work proceeds in chunks with
// a cancellation check between chunks, so a stopped job resumes from where
// the markers say it left off.
type Job struct {
	Assembly  string
	ChunkSize int

	clustered store.ClusteredStore
	submitted store.SubmittedStore
	ops       operation.Store
	merger    *Merger
	splitter  *Splitter
	deprec    *Deprecator
	log       *slog.Logger
}

func NewJob(assembly string, chunkSize int,
	clustered store.ClusteredStore, submitted store.SubmittedStore, ops operation.Store,
	merger *Merger, splitter *Splitter, deprec *Deprecator, log *slog.Logger) *Job {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	return &Job{
		Assembly:  assembly,
		ChunkSize: chunkSize,
		clustered: clustered,
		submitted: submitted,
		ops:       ops,
		merger:    merger,
		splitter:  splitter,
		deprec:    deprec,
		log:       log,
	}
}

// Run executes merges, then splits, clears the consumed markers and finishes
// with a deprecation sweep.
func (j *Job) Run(ctx context.Context) error {
	runID := uuid.NewString()
	log := j.log.With("run_id", runID, "assembly", j.Assembly)
	log.Info("clustering job started", "chunk_size", j.ChunkSize)

	if err := j.runMerges(ctx, log); err != nil {
		return fmt.Errorf("merge phase: %w", err)
	}
	if err := j.runSplits(ctx, log); err != nil {
		return fmt.Errorf("split phase: %w", err)
	}

	cleared, err := j.ops.DeleteByTypeAndAssembly(ctx,
		[]operation.EventType{operation.EventMergeCandidates, operation.EventSplitCandidates}, j.Assembly)
	if err != nil {
		return fmt.Errorf("clear candidate markers: %w", err)
	}

	deprecated, err := j.deprec.Run(ctx, j.Assembly)
	if err != nil {
		return fmt.Errorf("deprecation phase: %w", err)
	}

	log.Info("clustering job finished", "markers_cleared", cleared, "deprecated", deprecated)
	return nil
}

func (j *Job) runMerges(ctx context.Context, log *slog.Logger) error {
	candidates, err := j.ops.ListByTypeAndAssembly(ctx, operation.EventMergeCandidates, j.Assembly)
	if err != nil {
		return err
	}
	return j.inChunks(ctx, candidates, func(chunk []operation.Operation) error {
		for _, marker := range chunk {
			if err := j.applyMergeCandidate(ctx, log, marker); err != nil {
				return err
			}
		}
		return nil
	})
}

func (j *Job) applyMergeCandidate(ctx context.Context, log *slog.Logger, marker operation.Operation) error {
	if marker.Destination == nil {
		log.Warn("merge candidate without destination, skipping", "accession", marker.Accession)
		return nil
	}

	survivor, err := j.resolveActive(ctx, *marker.Destination)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("merge destination not found, skipping",
				"accession", marker.Accession, "destination", *marker.Destination)
			return nil
		}
		return err
	}

	mergee, err := j.clustered.FindByAccession(ctx, marker.Accession)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		// Unmaterialized mergee; Merger handles the back-references anyway.
		mergee = models.ClusteredVariant{Accession: marker.Accession, Assembly: j.Assembly}
	}

	candidates := []models.ClusteredVariant{survivor, mergee}
	resolved, mergees := ResolveMerge(candidates)
	if len(mergees) == 0 {
		return nil
	}
	return j.merger.Apply(ctx, resolved, mergees, marker.Reason)
}

// resolveActive follows merged-into redirects so a candidate pointing at an
// accession that itself got merged lands on the final survivor.
func (j *Job) resolveActive(ctx context.Context, accession uint64) (models.ClusteredVariant, error) {
	for range redirectDepth {
		cv, err := j.clustered.FindByAccession(ctx, accession)
		if err != nil {
			return models.ClusteredVariant{}, err
		}
		if cv.Status != models.StatusMerged || cv.MergedInto == nil {
			return cv, nil
		}
		accession = *cv.MergedInto
	}
	return models.ClusteredVariant{}, fmt.Errorf("merge redirect chain for %d exceeds %d hops", accession, redirectDepth)
}

func (j *Job) runSplits(ctx context.Context, log *slog.Logger) error {
	candidates, err := j.ops.ListByTypeAndAssembly(ctx, operation.EventSplitCandidates, j.Assembly)
	if err != nil {
		return err
	}
	return j.inChunks(ctx, candidates, func(chunk []operation.Operation) error {
		for _, marker := range chunk {
			cv, err := j.clustered.FindByAccession(ctx, marker.Accession)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					log.Warn("split candidate not found, skipping", "accession", marker.Accession)
					continue
				}
				return err
			}
			if cv.Status != models.StatusActive {
				continue
			}
			submitted, err := j.submitted.FindByClusteredAccession(ctx, cv.Accession)
			if err != nil {
				return err
			}
			if err := j.splitter.Apply(ctx, cv, submitted, marker.Reason); err != nil {
				return err
			}
		}
		return nil
	})
}

func (j *Job) inChunks(ctx context.Context, items []operation.Operation, apply func([]operation.Operation) error) error {
	for start := 0; start < len(items); start += j.ChunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+j.ChunkSize, len(items))
		if err := apply(items[start:end]); err != nil {
			return err
		}
	}
	return nil
}
