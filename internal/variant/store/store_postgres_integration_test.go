//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"varreg/internal/variant/models"
	"varreg/internal/variant/store"
	"varreg/pkg/sentinel"
	"varreg/pkg/testutil/containers"
)

type PostgresStoresSuite struct {
	suite.Suite
	ctx       context.Context
	pg        *containers.PostgresContainer
	clustered *store.PostgresClusteredStore
	submitted *store.PostgresSubmittedStore
	source    *store.PostgresAccessionSource
}

func TestPostgresStoresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoresSuite))
}

func (s *PostgresStoresSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(store.EnsureSchema(s.ctx, s.pg.DB))
	s.clustered = store.NewPostgresClusteredStore(s.pg.DB)
	s.submitted = store.NewPostgresSubmittedStore(s.pg.DB)
	s.source = store.NewPostgresAccessionSource(s.pg.DB)
}

func (s *PostgresStoresSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(s.ctx, "clustered_variants", "submitted_variants"))
}

func cv(accession uint64, start int64, status models.Status) models.ClusteredVariant {
	return models.ClusteredVariant{
		Accession: accession,
		Assembly:  "GCA_000001405.28",
		Contig:    "CM000663.2",
		Start:     start,
		Type:      models.TypeSNV,
		Status:    status,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func sv(accession uint64, clustered *uint64, start int64, ref, alt string) models.SubmittedVariant {
	return models.SubmittedVariant{
		Accession:          accession,
		ProjectAccession:   "PRJ1",
		Assembly:           "GCA_000001405.28",
		Contig:             "CM000663.2",
		Start:              start,
		Reference:          ref,
		Alternate:          alt,
		ClusteredAccession: clustered,
		CreatedAt:          time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (s *PostgresStoresSuite) TestUpsertAndLookup() {
	rec := cv(7, 100, models.StatusActive)
	s.Require().NoError(s.clustered.Upsert(s.ctx, rec))

	got, err := s.clustered.FindByAccession(s.ctx, 7)
	s.Require().NoError(err)
	s.Equal(rec.Assembly, got.Assembly)
	s.Equal(models.StatusActive, got.Status)

	active, err := s.clustered.FindActiveByHash(s.ctx, rec.Key().Hash())
	s.Require().NoError(err)
	s.Equal(uint64(7), active.Accession)

	_, err = s.clustered.FindByAccession(s.ctx, 999)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *PostgresStoresSuite) TestActiveHashUniqueness() {
	s.Require().NoError(s.clustered.Upsert(s.ctx, cv(7, 100, models.StatusActive)))

	// A second active record at the same locus violates the partial index.
	err := s.clustered.Upsert(s.ctx, cv(10, 100, models.StatusActive))
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	// A merged record at the same locus is fine.
	merged := cv(10, 100, models.StatusMerged)
	dest := uint64(7)
	merged.MergedInto = &dest
	s.Require().NoError(s.clustered.Upsert(s.ctx, merged))

	// Once the active record yields the hash, another may claim it.
	yielded := cv(7, 100, models.StatusDeprecated)
	s.Require().NoError(s.clustered.Upsert(s.ctx, yielded))
	s.Require().NoError(s.clustered.Upsert(s.ctx, cv(20, 100, models.StatusActive)))
}

func (s *PostgresStoresSuite) TestBulkInsertToleratesDuplicates() {
	batch := []models.ClusteredVariant{
		cv(7, 100, models.StatusActive),
		cv(10, 200, models.StatusActive),
	}
	res, err := s.clustered.BulkInsert(s.ctx, batch)
	s.Require().NoError(err)
	s.Equal(2, res.Inserted)
	s.Empty(res.DuplicateKeys)

	res, err = s.clustered.BulkInsert(s.ctx, batch)
	s.Require().NoError(err)
	s.Zero(res.Inserted)
	s.Len(res.DuplicateKeys, 2)

	all, err := s.clustered.ListByAssembly(s.ctx, "GCA_000001405.28")
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *PostgresStoresSuite) TestSubmittedRoundTrip() {
	clustered := uint64(7)
	rec := sv(900, &clustered, 100, "A", "G")
	s.Require().NoError(s.submitted.Save(s.ctx, rec))

	got, err := s.submitted.FindByAccession(s.ctx, 900)
	s.Require().NoError(err)
	s.Equal("PRJ1", got.ProjectAccession)
	s.Require().NotNil(got.ClusteredAccession)
	s.Equal(uint64(7), *got.ClusteredAccession)

	refs, err := s.submitted.FindByClusteredAccession(s.ctx, 7)
	s.Require().NoError(err)
	s.Len(refs, 1)
}

func (s *PostgresStoresSuite) TestReassignClustered() {
	from := uint64(10)
	s.Require().NoError(s.submitted.Save(s.ctx, sv(900, &from, 100, "A", "G")))
	s.Require().NoError(s.submitted.Save(s.ctx, sv(901, &from, 101, "C", "T")))

	n, err := s.submitted.ReassignClustered(s.ctx, 10, 7)
	s.Require().NoError(err)
	s.Equal(2, n)

	// Re-running moves nothing.
	n, err = s.submitted.ReassignClustered(s.ctx, 10, 7)
	s.Require().NoError(err)
	s.Zero(n)

	refs, err := s.submitted.FindByClusteredAccession(s.ctx, 7)
	s.Require().NoError(err)
	s.Len(refs, 2)
}

func (s *PostgresStoresSuite) TestSetClusteredAccession() {
	from := uint64(10)
	s.Require().NoError(s.submitted.Save(s.ctx, sv(900, &from, 100, "A", "G")))

	s.Require().NoError(s.submitted.SetClusteredAccession(s.ctx, 900, 7))
	got, err := s.submitted.FindByAccession(s.ctx, 900)
	s.Require().NoError(err)
	s.Equal(uint64(7), *got.ClusteredAccession)

	s.ErrorIs(s.submitted.SetClusteredAccession(s.ctx, 999, 7), store.ErrNotFound)
}

func (s *PostgresStoresSuite) TestAccessionSourceIsMonotonic() {
	first, err := s.source.Next(s.ctx)
	s.Require().NoError(err)
	second, err := s.source.Next(s.ctx)
	s.Require().NoError(err)
	s.Greater(second, first)
	s.GreaterOrEqual(first, uint64(5000000000))
}
