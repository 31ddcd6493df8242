package clustering

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"varreg/internal/operation"
	"varreg/internal/variant/models"
)

// CandidateDetector scans a batch of submitted variants (typically the output
// of a remapping run) and records which clustered accessions need merging or
// splitting. Detection only writes candidate markers; the clustering job
// consumes and clears them.
type CandidateDetector struct {
	ops operation.Store
	log *slog.Logger
}

func NewCandidateDetector(ops operation.Store, log *slog.Logger) *CandidateDetector {
	return &CandidateDetector{ops: ops, log: log}
}

// Detect writes RS_MERGE_CANDIDATES markers for canonical keys claimed by
// more than one accession (one marker per losing accession, destination set
// to the prospective survivor) and RS_SPLIT_CANDIDATES markers for accessions
// spanning more than one canonical key. Marker IDs are deterministic, so
// detecting the same batch twice writes nothing new.
func (d *CandidateDetector) Detect(ctx context.Context, assembly string, batch []models.SubmittedVariant) (merges, splits int, err error) {
	byKey := make(map[models.CanonicalKey]map[uint64]struct{})
	byAccession := make(map[uint64]map[models.CanonicalKey]struct{})
	for _, sv := range batch {
		if sv.ClusteredAccession == nil {
			continue
		}
		acc := *sv.ClusteredAccession
		key := sv.Key()
		if byKey[key] == nil {
			byKey[key] = make(map[uint64]struct{})
		}
		byKey[key][acc] = struct{}{}
		if byAccession[acc] == nil {
			byAccession[acc] = make(map[models.CanonicalKey]struct{})
		}
		byAccession[acc][key] = struct{}{}
	}

	for key, accessions := range byKey {
		if len(accessions) < 2 {
			continue
		}
		sorted := sortedAccessions(accessions)
		survivor := sorted[0]
		for _, acc := range sorted[1:] {
			dest := survivor
			op := operation.NewOperation(operation.EventMergeCandidates, acc, &dest, assembly,
				fmt.Sprintf("shares locus %s:%d (%s) with %d", key.Contig, key.Start, key.Type, survivor),
				operation.Snapshot{})
			if err := d.ops.Append(ctx, op); err != nil {
				return merges, splits, fmt.Errorf("record merge candidate %d: %w", acc, err)
			}
			merges++
		}
	}

	for acc, keys := range byAccession {
		if len(keys) < 2 {
			continue
		}
		op := operation.NewOperation(operation.EventSplitCandidates, acc, nil, assembly,
			fmt.Sprintf("spans %d distinct loci", len(keys)), operation.Snapshot{})
		if err := d.ops.Append(ctx, op); err != nil {
			return merges, splits, fmt.Errorf("record split candidate %d: %w", acc, err)
		}
		splits++
	}

	if merges > 0 || splits > 0 {
		d.log.Info("candidate detection finished",
			"assembly", assembly, "merge_candidates", merges, "split_candidates", splits)
	}
	return merges, splits, nil
}

func sortedAccessions(set map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(set))
	for acc := range set {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
