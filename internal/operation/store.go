package operation

import (
	"context"

	"varreg/pkg/sentinel"
)

// ErrNotFound mirrors the registry stores' lookup behavior.
var ErrNotFound = sentinel.ErrNotFound

// Store is the append-only operation history. Append with an already-written
// ID must be a silent no-op so idempotent jobs can re-run safely.
type Store interface {
	Append(ctx context.Context, op Operation) error
	// ListByAccession returns every operation whose source is the given
	// accession, oldest first.
	ListByAccession(ctx context.Context, accession uint64) ([]Operation, error)
	// ListByTypeAndAssembly returns operations of one event type for an
	// assembly, ordered by source accession. This is the feed the clustering
	// job and downstream release tooling consume.
	ListByTypeAndAssembly(ctx context.Context, eventType EventType, assembly string) ([]Operation, error)
	// DeleteByTypeAndAssembly removes candidate markers once they have been
	// processed. History event types (MERGED, SPLIT, DEPRECATED) must never
	// be passed here.
	DeleteByTypeAndAssembly(ctx context.Context, eventTypes []EventType, assembly string) (int, error)
}
