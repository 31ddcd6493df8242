package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so services can translate them into domain
// errors.
//
// These represent factual states about registry records, not validation
// failures:
// - ErrNotFound: accession or contig does not exist in the store
// - ErrConflict: duplicate key on insert
// - ErrMerged: accession is no longer active because it was merged
// - ErrDeprecated: accession was deprecated and has no active record
// - ErrInvalidState: record in wrong state for the requested operation
// - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrMerged       = errors.New("merged")
	ErrDeprecated   = errors.New("deprecated")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
