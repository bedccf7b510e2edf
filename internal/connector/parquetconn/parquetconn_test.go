package parquetconn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/giaosudau/sqlflow-sub007/internal/connector"
)

func TestConfigureRequiresPath(t *testing.T) {
	c := New()
	err := c.Configure(map[string]any{})
	require.Error(t, err)
	var cc *connector.ConnectorConfig
	require.ErrorAs(t, err, &cc)
}

func TestConfigureDefaultsBatchSize(t *testing.T) {
	c := New()
	require.NoError(t, c.Configure(map[string]any{"path": "f.parquet"}))
	require.Equal(t, defaultBatchSize, c.batchSize)
}

func TestConfigureHonorsBatchSizeAndColumns(t *testing.T) {
	c := New()
	require.NoError(t, c.Configure(map[string]any{
		"path": "f.parquet", "batch_size": 10, "columns": []any{"id", "name"},
	}))
	require.Equal(t, 10, c.batchSize)
	require.Equal(t, []string{"id", "name"}, c.columns)
}

func TestContainsHelper(t *testing.T) {
	require.True(t, contains([]string{"a", "b"}, "b"))
	require.False(t, contains([]string{"a", "b"}, "c"))
}
