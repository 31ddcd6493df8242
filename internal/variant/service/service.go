// Package service exposes the registry's lookup and accessioning operations.
// It is the layer that understands accession lifecycle: a merged accession
// redirects to its destination, a deprecated one answers "gone", and history
// is assembled from the operation log.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	domainerrors "varreg/pkg/domain-errors"
	"varreg/pkg/sentinel"

	"varreg/internal/operation"
	"varreg/internal/variant/models"
	"varreg/internal/variant/store"
)

// redirectDepth bounds merged-into chains when resolving a lookup.
const redirectDepth = 10

// ClusteredLookup is a lookup result: the record itself plus where an
// inactive accession points.
type ClusteredLookup struct {
	Variant    models.ClusteredVariant `json:"variant"`
	RedirectTo *uint64                 `json:"redirectTo,omitempty"`
}

// History pairs a clustered variant with its operation log, oldest first.
type History struct {
	Accession  uint64                   `json:"accession"`
	Variant    *models.ClusteredVariant `json:"variant,omitempty"`
	Operations []operation.Operation    `json:"operations"`
}

type Service struct {
	clustered store.ClusteredStore
	submitted store.SubmittedStore
	ops       operation.Store
	source    store.AccessionSource
	log       *slog.Logger
}

func New(clustered store.ClusteredStore, submitted store.SubmittedStore, ops operation.Store, source store.AccessionSource, log *slog.Logger) *Service {
	return &Service{clustered: clustered, submitted: submitted, ops: ops, source: source, log: log}
}

// GetClustered looks up a clustered variant by accession. Merged accessions
// return the record together with the final active destination and
// sentinel.ErrMerged; deprecated ones return the record and
// sentinel.ErrDeprecated so the transport layer can answer "gone" with the
// last known state.
func (s *Service) GetClustered(ctx context.Context, accession uint64) (ClusteredLookup, error) {
	cv, err := s.clustered.FindByAccession(ctx, accession)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return ClusteredLookup{}, domainerrors.Wrap(err, domainerrors.CodeNotFound,
				fmt.Sprintf("clustered variant %d", accession))
		}
		return ClusteredLookup{}, err
	}

	switch cv.Status {
	case models.StatusActive:
		return ClusteredLookup{Variant: cv}, nil
	case models.StatusDeprecated:
		return ClusteredLookup{Variant: cv}, sentinel.ErrDeprecated
	case models.StatusMerged:
		dest, err := s.followRedirect(ctx, cv)
		if err != nil {
			return ClusteredLookup{Variant: cv}, err
		}
		return ClusteredLookup{Variant: cv, RedirectTo: &dest}, sentinel.ErrMerged
	default:
		return ClusteredLookup{Variant: cv}, sentinel.ErrInvalidState
	}
}

func (s *Service) followRedirect(ctx context.Context, cv models.ClusteredVariant) (uint64, error) {
	current := cv
	for range redirectDepth {
		if current.MergedInto == nil {
			return current.Accession, nil
		}
		next, err := s.clustered.FindByAccession(ctx, *current.MergedInto)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				// Destination was never materialized; the redirect target is
				// still the recorded accession.
				return *current.MergedInto, nil
			}
			return 0, err
		}
		if next.Status != models.StatusMerged {
			return next.Accession, nil
		}
		current = next
	}
	return 0, domainerrors.New(domainerrors.CodeInvariantViolation,
		fmt.Sprintf("merge redirect chain for %d exceeds %d hops", cv.Accession, redirectDepth))
}

// GetSubmitted looks up a submitted variant by accession.
func (s *Service) GetSubmitted(ctx context.Context, accession uint64) (models.SubmittedVariant, error) {
	sv, err := s.submitted.FindByAccession(ctx, accession)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.SubmittedVariant{}, domainerrors.Wrap(err, domainerrors.CodeNotFound,
				fmt.Sprintf("submitted variant %d", accession))
		}
		return models.SubmittedVariant{}, err
	}
	return sv, nil
}

// GetHistory assembles the operation log for an accession. An accession with
// operations but no materialized record is still answerable; one with
// neither is not found.
func (s *Service) GetHistory(ctx context.Context, accession uint64) (History, error) {
	ops, err := s.ops.ListByAccession(ctx, accession)
	if err != nil {
		return History{}, err
	}
	history := History{Accession: accession, Operations: ops}

	cv, err := s.clustered.FindByAccession(ctx, accession)
	switch {
	case err == nil:
		history.Variant = &cv
	case errors.Is(err, sentinel.ErrNotFound):
		if len(ops) == 0 {
			return History{}, domainerrors.New(domainerrors.CodeNotFound,
				fmt.Sprintf("clustered variant %d", accession))
		}
	default:
		return History{}, err
	}
	if history.Operations == nil {
		history.Operations = []operation.Operation{}
	}
	return history, nil
}

// Accession assigns a clustered accession to a canonical locus. The existing
// active accession is returned when the locus is already registered, so
// accessioning the same locus twice never mints twice.
func (s *Service) Accession(ctx context.Context, key models.CanonicalKey) (models.ClusteredVariant, error) {
	if key.Assembly == "" || key.Contig == "" || key.Start < 1 || key.Type == "" {
		return models.ClusteredVariant{}, domainerrors.New(domainerrors.CodeValidation, "incomplete canonical key")
	}

	existing, err := s.clustered.FindActiveByHash(ctx, key.Hash())
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return models.ClusteredVariant{}, err
	}

	accession, err := s.source.Next(ctx)
	if err != nil {
		return models.ClusteredVariant{}, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "mint accession")
	}
	cv := models.ClusteredVariant{
		Accession: accession,
		Assembly:  key.Assembly,
		Contig:    key.Contig,
		Start:     key.Start,
		Type:      key.Type,
		Status:    models.StatusActive,
	}
	if err := s.clustered.Upsert(ctx, cv); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost the race; the winner's record is the answer.
			return s.clustered.FindActiveByHash(ctx, key.Hash())
		}
		return models.ClusteredVariant{}, err
	}
	s.log.Info("accessioned clustered variant",
		"accession", accession, "assembly", key.Assembly, "contig", key.Contig, "start", key.Start)
	return cv, nil
}
