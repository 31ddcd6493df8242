package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFSStorePut(t *testing.T) {
	ctx := context.Background()
	s := NewFSStore(t.TempDir())
	key := "GCA_000001405.28/report.vcf"
	path := filepath.Join(s.root, "GCA_000001405.28", "report.vcf")

	t.Run("nested key creates directories", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, key, strings.NewReader("##fileformat=VCFv4.3\n")))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, "##fileformat=VCFv4.3\n", string(data))
	})

	t.Run("put replaces an existing artifact", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, key, strings.NewReader("replaced\n")))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, "replaced\n", string(data))
	})
}
