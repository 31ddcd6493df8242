// Package store provides the keyed registry tables for clustered and
// submitted variants. Implementations are pure I/O; merge/split policy lives
// in the clustering service.
package store

import (
	"context"

	"varreg/internal/variant/models"
	"varreg/pkg/sentinel"
)

// ErrNotFound keeps storage-specific lookups consistent across
// implementations.
var ErrNotFound = sentinel.ErrNotFound

// BulkResult reports the outcome of a bulk insert. Duplicates are an
// expected, benign outcome of re-running idempotent operations: the store
// continues past them and reports which keys were skipped instead of
// aborting.
type BulkResult struct {
	Inserted      int
	DuplicateKeys []string
}

// ClusteredStore is the keyed table of clustered variants (RS). At most one
// ACTIVE record may exist per canonical-key hash at any time.
type ClusteredStore interface {
	// Upsert inserts or replaces the record with the same accession.
	Upsert(ctx context.Context, cv models.ClusteredVariant) error
	FindByAccession(ctx context.Context, accession uint64) (models.ClusteredVariant, error)
	// FindActiveByHash returns the single active record for a canonical-key
	// hash, or ErrNotFound.
	FindActiveByHash(ctx context.Context, hash string) (models.ClusteredVariant, error)
	// BulkInsert inserts records, skipping those whose canonical-key hash is
	// already active.
	BulkInsert(ctx context.Context, cvs []models.ClusteredVariant) (BulkResult, error)
	// ListByAssembly returns every record for an assembly, active or not,
	// ordered by accession.
	ListByAssembly(ctx context.Context, assembly string) ([]models.ClusteredVariant, error)
}

// SubmittedStore is the keyed table of submitted variants (SS).
type SubmittedStore interface {
	Save(ctx context.Context, sv models.SubmittedVariant) error
	FindByAccession(ctx context.Context, accession uint64) (models.SubmittedVariant, error)
	// FindByClusteredAccession returns the submitted variants currently
	// referencing the given clustered accession, ordered by accession.
	FindByClusteredAccession(ctx context.Context, clustered uint64) ([]models.SubmittedVariant, error)
	BulkInsert(ctx context.Context, svs []models.SubmittedVariant) (BulkResult, error)
	// ReassignClustered rewrites every back-reference from one clustered
	// accession to another and returns how many records changed. Rewriting an
	// already-rewritten reference is a no-op, which keeps merges resumable.
	ReassignClustered(ctx context.Context, from, to uint64) (int, error)
	// SetClusteredAccession points a single submitted variant at a clustered
	// accession (used when a split repartitions submissions).
	SetClusteredAccession(ctx context.Context, accession, clustered uint64) error
}

// AccessionSource mints new accession values. Values are monotonic and never
// reused, including across process restarts for persistent implementations.
type AccessionSource interface {
	Next(ctx context.Context) (uint64, error)
}
