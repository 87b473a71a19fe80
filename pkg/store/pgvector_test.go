package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/xhad/pai/pkg/store"
)

// startPgvector starts a Postgres container with the vector extension available.
func startPgvector(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcpg.Run(ctx, "pgvector/pgvector:pg16",
		tcpg.WithDatabase("pai_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestVectorStore(t *testing.T) {
	dsn := startPgvector(t)

	s, err := store.NewWithConfig(context.Background(), store.VectorStoreConfig{
		ConnString: dsn,
		TableName:  "test_documents",
		VectorDim:  256,
		BatchSize:  1,
	}, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, store.BackendPgvector, s.Name())
	exerciseStore(t, s)
}

func TestVectorStoreRejectsTableName(t *testing.T) {
	_, err := store.NewWithConfig(context.Background(), store.VectorStoreConfig{
		ConnString: "postgres://localhost/none",
		TableName:  "documents; DROP TABLE users",
	}, zap.NewNop())
	require.Error(t, err)
}
