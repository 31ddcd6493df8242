// Package operation keeps the append-only history of registry mutations. An
// operation record is the sole provenance of an accession once it stops being
// active, so records are immutable and never deleted (candidate markers being
// the one exception: they are working state, not history).
package operation

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"varreg/internal/variant/models"
)

type EventType string

const (
	EventMerged          EventType = "MERGED"
	EventSplit           EventType = "SPLIT"
	EventDeprecated      EventType = "DEPRECATED"
	EventMergeCandidates EventType = "RS_MERGE_CANDIDATES"
	EventSplitCandidates EventType = "RS_SPLIT_CANDIDATES"
)

// Snapshot preserves the inactive records at the time of the event.
type Snapshot struct {
	Clustered []models.ClusteredVariant `json:"clustered,omitempty"`
	Submitted []models.SubmittedVariant `json:"submitted,omitempty"`
}

// Operation is one append-only history record. ID is derived from the event's
// identity so that re-appending the same logical event is a no-op rather than
// a duplicate.
type Operation struct {
	ID          string    `json:"id"`
	EventType   EventType `json:"eventType"`
	Accession   uint64    `json:"accession"`
	Destination *uint64   `json:"destination,omitempty"`
	Reason      string    `json:"reason"`
	Assembly    string    `json:"assembly"`
	Inactive    Snapshot  `json:"inactive"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewOperation builds a record with the deterministic ID for its identity
// triple (event type, source, destination). Idempotent jobs rely on this:
// re-running a merge appends the same ID, which every store implementation
// treats as already-written.
func NewOperation(eventType EventType, accession uint64, destination *uint64, assembly, reason string, inactive Snapshot) Operation {
	return Operation{
		ID:          operationID(eventType, accession, destination, assembly),
		EventType:   eventType,
		Accession:   accession,
		Destination: destination,
		Reason:      reason,
		Assembly:    assembly,
		Inactive:    inactive,
		CreatedAt:   time.Now().UTC(),
	}
}

func operationID(eventType EventType, accession uint64, destination *uint64, assembly string) string {
	dest := "-"
	if destination != nil {
		dest = fmt.Sprintf("%d", *destination)
	}
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d|%s|%s", eventType, accession, dest, assembly)))
	return hex.EncodeToString(sum[:])
}
