//go:build integration

package release_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"varreg/internal/release"
	"varreg/pkg/testutil/containers"
)

func TestRedisJobStateStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	store := release.NewRedisJobStateStore(rc.Client)

	state, err := store.Get(ctx, "job-1:report-header")
	require.NoError(t, err)
	require.Equal(t, release.StateNotStarted, state)

	require.NoError(t, store.Set(ctx, "job-1:report-header", release.StateHeaderWritten))
	state, err = store.Get(ctx, "job-1:report-header")
	require.NoError(t, err)
	require.Equal(t, release.StateHeaderWritten, state)

	require.NoError(t, store.Set(ctx, "job-1:report-header", release.StateComplete))
	state, err = store.Get(ctx, "job-1:report-header")
	require.NoError(t, err)
	require.Equal(t, release.StateComplete, state)

	// Other jobs are unaffected.
	state, err = store.Get(ctx, "job-2:report-header")
	require.NoError(t, err)
	require.Equal(t, release.StateNotStarted, state)
}
