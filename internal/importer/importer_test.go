package importer

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"varreg/internal/platform/metrics"
	"varreg/internal/variant/models"
	"varreg/internal/variant/store"
)

func TestImportTolerantOfDuplicates(t *testing.T) {
	ctx := context.Background()
	clustered := store.NewInMemoryClusteredStore()
	submitted := store.NewInMemorySubmittedStore()
	m := metrics.NewWith(prometheus.NewRegistry())
	imp := New(clustered, submitted, m, slog.New(slog.NewTextHandler(io.Discard, nil)))

	cvs := []models.ClusteredVariant{
		{Accession: 7, Assembly: "asm-1", Contig: "CM000663.2", Start: 100, Type: models.TypeSNV, Status: models.StatusActive},
		{Accession: 10, Assembly: "asm-1", Contig: "CM000663.2", Start: 200, Type: models.TypeSNV, Status: models.StatusActive},
	}
	res, err := imp.ImportClustered(ctx, cvs)
	require.NoError(t, err)
	require.Equal(t, 2, res.Inserted)
	require.Empty(t, res.DuplicateKeys)

	// Re-running the same import skips everything and counts the duplicates.
	res, err = imp.ImportClustered(ctx, cvs)
	require.NoError(t, err)
	require.Zero(t, res.Inserted)
	require.Len(t, res.DuplicateKeys, 2)
	require.Equal(t, float64(2), testutil.ToFloat64(m.ClusteredVariantsWritten))
	require.Equal(t, float64(2), testutil.ToFloat64(m.DuplicateKeys))

	svs := []models.SubmittedVariant{
		{Accession: 900, ProjectAccession: "PRJ1", Assembly: "asm-1", Contig: "CM000663.2", Start: 100, Reference: "A", Alternate: "G"},
	}
	res, err = imp.ImportSubmitted(ctx, svs)
	require.NoError(t, err)
	require.Equal(t, 1, res.Inserted)

	res, err = imp.ImportSubmitted(ctx, svs)
	require.NoError(t, err)
	require.Zero(t, res.Inserted)
	require.Len(t, res.DuplicateKeys, 1)
	require.Equal(t, float64(1), testutil.ToFloat64(m.SubmittedVariantsWritten))
}
