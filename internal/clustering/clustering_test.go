package clustering

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"varreg/internal/operation"
	"varreg/internal/platform/metrics"
	"varreg/internal/variant/models"
	"varreg/internal/variant/store"
)

const testAssembly = "GCA_000001405.28"

func TestDedupeBy(t *testing.T) {
	in := []models.ClusteredVariant{{Accession: 10}, {Accession: 7}, {Accession: 10}, {Accession: 3}}
	out := DedupeBy(in, func(cv models.ClusteredVariant) uint64 { return cv.Accession })
	require.Len(t, out, 3)
	require.Equal(t, uint64(10), out[0].Accession)
	require.Equal(t, uint64(7), out[1].Accession)
	require.Equal(t, uint64(3), out[2].Accession)
}

func TestPrioritise(t *testing.T) {
	require.Equal(t, uint64(7), Prioritise(10, 7))
	require.Equal(t, uint64(7), Prioritise(7, 10))
	require.Equal(t, uint64(7), Prioritise(7, 7))
}

func TestResolveMerge(t *testing.T) {
	t.Run("smaller accession survives", func(t *testing.T) {
		survivor, mergees := ResolveMerge([]models.ClusteredVariant{
			{Accession: 10}, {Accession: 7},
		})
		require.Equal(t, uint64(7), survivor.Accession)
		require.Len(t, mergees, 1)
		require.Equal(t, uint64(10), mergees[0].Accession)
	})

	t.Run("duplicates never self-merge", func(t *testing.T) {
		survivor, mergees := ResolveMerge([]models.ClusteredVariant{
			{Accession: 7}, {Accession: 7}, {Accession: 7},
		})
		require.Equal(t, uint64(7), survivor.Accession)
		require.Empty(t, mergees)
	})

	t.Run("fold over many candidates", func(t *testing.T) {
		survivor, mergees := ResolveMerge([]models.ClusteredVariant{
			{Accession: 42}, {Accession: 9}, {Accession: 100}, {Accession: 9},
		})
		require.Equal(t, uint64(9), survivor.Accession)
		require.Len(t, mergees, 2)
	})

	t.Run("empty input", func(t *testing.T) {
		survivor, mergees := ResolveMerge(nil)
		require.Zero(t, survivor.Accession)
		require.Empty(t, mergees)
	})
}

type ClusteringSuite struct {
	suite.Suite
	ctx       context.Context
	clustered *store.InMemoryClusteredStore
	submitted *store.InMemorySubmittedStore
	ops       *operation.InMemoryStore
	source    *store.InMemoryAccessionSource
	metrics   *metrics.Metrics
	log       *slog.Logger

	merger   *Merger
	splitter *Splitter
	deprec   *Deprecator
}

func TestClusteringSuite(t *testing.T) {
	suite.Run(t, new(ClusteringSuite))
}

func (s *ClusteringSuite) SetupTest() {
	s.ctx = context.Background()
	s.clustered = store.NewInMemoryClusteredStore()
	s.submitted = store.NewInMemorySubmittedStore()
	s.ops = operation.NewInMemoryStore()
	s.source = store.NewInMemoryAccessionSource(5000000000)
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.log = slog.New(slog.NewTextHandler(io.Discard, nil))

	s.merger = NewMerger(s.clustered, s.submitted, s.ops, nil, s.metrics, s.log)
	s.splitter = NewSplitter(s.clustered, s.submitted, s.source, s.ops, nil, s.metrics, s.log)
	s.deprec = NewDeprecator(s.clustered, s.submitted, s.ops, nil, s.metrics, s.log)
}

func (s *ClusteringSuite) clusteredVariant(accession uint64, contig string, start int64) models.ClusteredVariant {
	return models.ClusteredVariant{
		Accession: accession,
		Assembly:  testAssembly,
		Contig:    contig,
		Start:     start,
		Type:      models.TypeSNV,
		Status:    models.StatusActive,
	}
}

func (s *ClusteringSuite) submittedVariant(accession, clustered uint64, contig string, start int64, ref, alt string) models.SubmittedVariant {
	return models.SubmittedVariant{
		Accession:          accession,
		ProjectAccession:   "PRJ1",
		Assembly:           testAssembly,
		Contig:             contig,
		Start:              start,
		Reference:          ref,
		Alternate:          alt,
		ClusteredAccession: &clustered,
	}
}

func (s *ClusteringSuite) TestMergeApply() {
	survivorRec := s.clusteredVariant(7, "CM000663.2", 100)
	mergeeRec := s.clusteredVariant(10, "CM000663.2", 100)
	s.Require().NoError(s.clustered.Upsert(s.ctx, mergeeRec))
	s.Require().NoError(s.submitted.Save(s.ctx, s.submittedVariant(900, 10, "CM000663.2", 100, "A", "G")))
	s.Require().NoError(s.submitted.Save(s.ctx, s.submittedVariant(901, 10, "CM000663.2", 100, "A", "T")))

	survivor, mergees := ResolveMerge([]models.ClusteredVariant{mergeeRec, survivorRec})
	s.Require().Equal(uint64(7), survivor.Accession)
	s.Require().NoError(s.merger.Apply(s.ctx, survivor, mergees, "duplicate locus"))

	s.Run("survivor is active", func() {
		got, err := s.clustered.FindByAccession(s.ctx, 7)
		s.Require().NoError(err)
		s.Equal(models.StatusActive, got.Status)
	})

	s.Run("mergee flipped to merged", func() {
		got, err := s.clustered.FindByAccession(s.ctx, 10)
		s.Require().NoError(err)
		s.Equal(models.StatusMerged, got.Status)
		s.Require().NotNil(got.MergedInto)
		s.Equal(uint64(7), *got.MergedInto)
	})

	s.Run("submitted back-references rewritten", func() {
		moved, err := s.submitted.FindByClusteredAccession(s.ctx, 7)
		s.Require().NoError(err)
		s.Len(moved, 2)
		orphaned, err := s.submitted.FindByClusteredAccession(s.ctx, 10)
		s.Require().NoError(err)
		s.Empty(orphaned)
	})

	s.Run("exactly one MERGED operation", func() {
		ops, err := s.ops.ListByAccession(s.ctx, 10)
		s.Require().NoError(err)
		s.Require().Len(ops, 1)
		s.Equal(operation.EventMerged, ops[0].EventType)
		s.Require().NotNil(ops[0].Destination)
		s.Equal(uint64(7), *ops[0].Destination)
		s.Require().Len(ops[0].Inactive.Clustered, 1)
		s.Equal(models.StatusMerged, ops[0].Inactive.Clustered[0].Status)
	})
}

func (s *ClusteringSuite) TestMergeApplyTwiceWritesOneOperation() {
	survivorRec := s.clusteredVariant(7, "CM000663.2", 100)
	mergeeRec := s.clusteredVariant(10, "CM000663.2", 100)
	s.Require().NoError(s.clustered.Upsert(s.ctx, mergeeRec))
	s.Require().NoError(s.submitted.Save(s.ctx, s.submittedVariant(900, 10, "CM000663.2", 100, "A", "G")))

	survivor, mergees := ResolveMerge([]models.ClusteredVariant{mergeeRec, survivorRec})
	s.Require().NoError(s.merger.Apply(s.ctx, survivor, mergees, "duplicate locus"))
	s.Require().NoError(s.merger.Apply(s.ctx, survivor, mergees, "duplicate locus"))

	ops, err := s.ops.ListByAccession(s.ctx, 10)
	s.Require().NoError(err)
	s.Len(ops, 1)
}

func (s *ClusteringSuite) TestMergeUnmaterializedMergee() {
	// Accession 10 exists only as a back-reference; no clustered record.
	survivorRec := s.clusteredVariant(7, "CM000663.2", 100)
	s.Require().NoError(s.submitted.Save(s.ctx, s.submittedVariant(900, 10, "CM000663.2", 100, "A", "G")))

	mergee := models.ClusteredVariant{Accession: 10, Assembly: testAssembly}
	s.Require().NoError(s.merger.Apply(s.ctx, survivorRec, []models.ClusteredVariant{mergee}, "remap collision"))

	moved, err := s.submitted.FindByClusteredAccession(s.ctx, 7)
	s.Require().NoError(err)
	s.Len(moved, 1)

	ops, err := s.ops.ListByAccession(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(ops, 1)
	s.Equal(operation.EventMerged, ops[0].EventType)

	_, err = s.clustered.FindByAccession(s.ctx, 10)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *ClusteringSuite) TestResolveSplitKeeperSelection() {
	cv := s.clusteredVariant(20, "CM000663.2", 100)
	svAtStored := s.submittedVariant(900, 20, "CM000663.2", 100, "A", "G")
	svElsewhere := s.submittedVariant(901, 20, "CM000663.2", 250, "C", "T")

	s.Run("stored key keeps the accession", func() {
		keep, moved := ResolveSplit(cv, []models.SubmittedVariant{svElsewhere, svAtStored})
		s.Require().Len(keep, 1)
		s.Equal(uint64(900), keep[0].Accession)
		s.Require().Len(moved, 1)
		s.Equal(uint64(901), moved[0][0].Accession)
	})

	s.Run("fallback to lowest-sorting key", func() {
		far := s.submittedVariant(902, 20, "CM000663.2", 500, "A", "T")
		keep, moved := ResolveSplit(cv, []models.SubmittedVariant{far, svElsewhere})
		s.Require().Len(keep, 1)
		s.Equal(uint64(901), keep[0].Accession)
		s.Require().Len(moved, 1)
		s.Equal(uint64(902), moved[0][0].Accession)
	})

	s.Run("single locus needs no split", func() {
		keep, moved := ResolveSplit(cv, []models.SubmittedVariant{svAtStored})
		s.Len(keep, 1)
		s.Empty(moved)
	})
}

func (s *ClusteringSuite) TestSplitApply() {
	cv := s.clusteredVariant(20, "CM000663.2", 100)
	s.Require().NoError(s.clustered.Upsert(s.ctx, cv))
	svKeep := s.submittedVariant(900, 20, "CM000663.2", 100, "A", "G")
	svMove := s.submittedVariant(901, 20, "CM000663.2", 250, "C", "T")
	s.Require().NoError(s.submitted.Save(s.ctx, svKeep))
	s.Require().NoError(s.submitted.Save(s.ctx, svMove))

	s.Require().NoError(s.splitter.Apply(s.ctx, cv, []models.SubmittedVariant{svKeep, svMove}, "spans 2 distinct loci"))

	s.Run("moved submission points at a new accession", func() {
		got, err := s.submitted.FindByAccession(s.ctx, 901)
		s.Require().NoError(err)
		s.Require().NotNil(got.ClusteredAccession)
		s.Equal(uint64(5000000000), *got.ClusteredAccession)
	})

	s.Run("new clustered record carries the moved locus", func() {
		got, err := s.clustered.FindByAccession(s.ctx, 5000000000)
		s.Require().NoError(err)
		s.Equal(int64(250), got.Start)
		s.Equal(models.StatusActive, got.Status)
	})

	s.Run("one SPLIT operation with snapshot", func() {
		ops, err := s.ops.ListByAccession(s.ctx, 20)
		s.Require().NoError(err)
		s.Require().Len(ops, 1)
		s.Equal(operation.EventSplit, ops[0].EventType)
		s.Require().Len(ops[0].Inactive.Submitted, 1)
		s.Equal(uint64(901), ops[0].Inactive.Submitted[0].Accession)
	})

	s.Run("rerun reuses the minted accession", func() {
		remaining, err := s.submitted.FindByClusteredAccession(s.ctx, 20)
		s.Require().NoError(err)
		s.Require().NoError(s.splitter.Apply(s.ctx, cv, append(remaining, mustFind(s, 901)), "spans 2 distinct loci"))
		got, err := s.submitted.FindByAccession(s.ctx, 901)
		s.Require().NoError(err)
		s.Equal(uint64(5000000000), *got.ClusteredAccession)
		ops, err := s.ops.ListByAccession(s.ctx, 20)
		s.Require().NoError(err)
		s.Len(ops, 1)
	})
}

type failingClusteredStore struct {
	*store.InMemoryClusteredStore
	findActiveErr error
}

func (f *failingClusteredStore) FindActiveByHash(ctx context.Context, hash string) (models.ClusteredVariant, error) {
	return models.ClusteredVariant{}, f.findActiveErr
}

func (s *ClusteringSuite) TestSplitSurfacesLookupFailure() {
	cv := s.clusteredVariant(20, "CM000663.2", 100)
	s.Require().NoError(s.clustered.Upsert(s.ctx, cv))
	svKeep := s.submittedVariant(900, 20, "CM000663.2", 100, "A", "G")
	svMove := s.submittedVariant(901, 20, "CM000663.2", 250, "C", "T")

	cause := errors.New("connection reset by peer")
	flaky := &failingClusteredStore{InMemoryClusteredStore: s.clustered, findActiveErr: cause}
	splitter := NewSplitter(flaky, s.submitted, s.source, s.ops, nil, s.metrics, s.log)

	err := splitter.Apply(s.ctx, cv, []models.SubmittedVariant{svKeep, svMove}, "spans 2 distinct loci")
	var splitErr *SplitError
	s.Require().ErrorAs(err, &splitErr)
	s.ErrorIs(err, cause)

	// A transient lookup failure must not burn a fresh accession.
	next, err := s.source.Next(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(5000000000), next)
}

func mustFind(s *ClusteringSuite, accession uint64) models.SubmittedVariant {
	sv, err := s.submitted.FindByAccession(s.ctx, accession)
	s.Require().NoError(err)
	return sv
}

func (s *ClusteringSuite) TestCandidateDetection() {
	detector := NewCandidateDetector(s.ops, s.log)
	batch := []models.SubmittedVariant{
		// Accessions 10 and 7 share the locus at 100.
		s.submittedVariant(900, 10, "CM000663.2", 100, "A", "G"),
		s.submittedVariant(901, 7, "CM000663.2", 100, "A", "T"),
		// Accession 20 spans two loci.
		s.submittedVariant(902, 20, "CM000663.2", 200, "C", "T"),
		s.submittedVariant(903, 20, "CM000663.2", 300, "C", "A"),
		// Accession 30 is clean.
		s.submittedVariant(904, 30, "CM000664.2", 50, "G", "C"),
	}

	merges, splits, err := detector.Detect(s.ctx, testAssembly, batch)
	s.Require().NoError(err)
	s.Equal(1, merges)
	s.Equal(1, splits)

	mergeMarkers, err := s.ops.ListByTypeAndAssembly(s.ctx, operation.EventMergeCandidates, testAssembly)
	s.Require().NoError(err)
	s.Require().Len(mergeMarkers, 1)
	s.Equal(uint64(10), mergeMarkers[0].Accession)
	s.Require().NotNil(mergeMarkers[0].Destination)
	s.Equal(uint64(7), *mergeMarkers[0].Destination)

	splitMarkers, err := s.ops.ListByTypeAndAssembly(s.ctx, operation.EventSplitCandidates, testAssembly)
	s.Require().NoError(err)
	s.Require().Len(splitMarkers, 1)
	s.Equal(uint64(20), splitMarkers[0].Accession)

	// Detecting the same batch again writes nothing new.
	_, _, err = detector.Detect(s.ctx, testAssembly, batch)
	s.Require().NoError(err)
	mergeMarkers, err = s.ops.ListByTypeAndAssembly(s.ctx, operation.EventMergeCandidates, testAssembly)
	s.Require().NoError(err)
	s.Len(mergeMarkers, 1)
}

func (s *ClusteringSuite) TestDeprecator() {
	abandoned := s.clusteredVariant(40, "CM000663.2", 400)
	referenced := s.clusteredVariant(41, "CM000663.2", 500)
	alreadyMerged := s.clusteredVariant(42, "CM000663.2", 600)
	alreadyMerged.Status = models.StatusMerged
	s.Require().NoError(s.clustered.Upsert(s.ctx, abandoned))
	s.Require().NoError(s.clustered.Upsert(s.ctx, referenced))
	s.Require().NoError(s.clustered.Upsert(s.ctx, alreadyMerged))
	s.Require().NoError(s.submitted.Save(s.ctx, s.submittedVariant(900, 41, "CM000663.2", 500, "A", "G")))

	n, err := s.deprec.Run(s.ctx, testAssembly)
	s.Require().NoError(err)
	s.Equal(1, n)

	got, err := s.clustered.FindByAccession(s.ctx, 40)
	s.Require().NoError(err)
	s.Equal(models.StatusDeprecated, got.Status)

	ops, err := s.ops.ListByAccession(s.ctx, 40)
	s.Require().NoError(err)
	s.Require().Len(ops, 1)
	s.Equal(operation.EventDeprecated, ops[0].EventType)

	untouched, err := s.clustered.FindByAccession(s.ctx, 41)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, untouched.Status)
}

func (s *ClusteringSuite) TestJobEndToEnd() {
	// Two accessions collide at one locus; a third spans two loci.
	s.Require().NoError(s.clustered.Upsert(s.ctx, s.clusteredVariant(7, "CM000663.2", 100)))
	s.Require().NoError(s.clustered.Upsert(s.ctx, models.ClusteredVariant{
		Accession: 10, Assembly: testAssembly, Contig: "CM000663.2", Start: 105, Type: models.TypeSNV, Status: models.StatusActive,
	}))
	s.Require().NoError(s.clustered.Upsert(s.ctx, s.clusteredVariant(20, "CM000664.2", 200)))

	batch := []models.SubmittedVariant{
		s.submittedVariant(900, 10, "CM000663.2", 100, "A", "G"),
		s.submittedVariant(901, 7, "CM000663.2", 100, "A", "T"),
		s.submittedVariant(902, 20, "CM000664.2", 200, "C", "T"),
		s.submittedVariant(903, 20, "CM000664.2", 300, "C", "A"),
	}
	for _, sv := range batch {
		s.Require().NoError(s.submitted.Save(s.ctx, sv))
	}

	detector := NewCandidateDetector(s.ops, s.log)
	_, _, err := detector.Detect(s.ctx, testAssembly, batch)
	s.Require().NoError(err)

	job := NewJob(testAssembly, 100, s.clustered, s.submitted, s.ops, s.merger, s.splitter, s.deprec, s.log)
	s.Require().NoError(job.Run(s.ctx))

	s.Run("merge applied", func() {
		got, err := s.clustered.FindByAccession(s.ctx, 10)
		s.Require().NoError(err)
		s.Equal(models.StatusMerged, got.Status)
	})

	s.Run("split applied", func() {
		moved, err := s.submitted.FindByAccession(s.ctx, 903)
		s.Require().NoError(err)
		s.Require().NotNil(moved.ClusteredAccession)
		s.NotEqual(uint64(20), *moved.ClusteredAccession)
	})

	s.Run("markers cleared", func() {
		markers, err := s.ops.ListByTypeAndAssembly(s.ctx, operation.EventMergeCandidates, testAssembly)
		s.Require().NoError(err)
		s.Empty(markers)
		markers, err = s.ops.ListByTypeAndAssembly(s.ctx, operation.EventSplitCandidates, testAssembly)
		s.Require().NoError(err)
		s.Empty(markers)
	})

	s.Run("rerun is a no-op", func() {
		s.Require().NoError(job.Run(s.ctx))
		ops, err := s.ops.ListByAccession(s.ctx, 10)
		s.Require().NoError(err)
		s.Len(ops, 1)
	})
}
