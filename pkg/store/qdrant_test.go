package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/xhad/pai/internal/models"
	"github.com/xhad/pai/pkg/store"
)

func startQdrant(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "qdrant/qdrant:v1.12.4",
			ExposedPorts: []string{"6334/tcp"},
			WaitingFor:   wait.ForListeningPort("6334/tcp"),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	endpoint, err := container.PortEndpoint(ctx, "6334/tcp", "")
	require.NoError(t, err)
	return endpoint
}

func TestQdrantStore(t *testing.T) {
	addr := startQdrant(t)

	s, err := store.NewQdrant(addr, "test_"+uuid.NewString()[:8], zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, store.BackendQdrant, s.Name())
	exerciseStore(t, s)
}

func TestQdrantStoreKeepsGivenIDs(t *testing.T) {
	addr := startQdrant(t)

	s, err := store.NewQdrant(addr, "ids", zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	id := uuid.NewString()
	chunks := testChunks("doc", "hello world")
	chunks[0].ID = id
	ids := addChunks(t, s, chunks)
	assert.Equal(t, []string{id}, ids)

	hits := query(t, s, "hello", 1, "")
	require.Len(t, hits, 1)
	assert.Equal(t, id, hits[0].ID)
	assert.Equal(t, "hello world", hits[0].Content)
	assert.Equal(t, "doc.txt", hits[0].Metadata[models.MetaFilename])
}
