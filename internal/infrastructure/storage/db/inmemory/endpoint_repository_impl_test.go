package inmemory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kiosknetwork/kiosk-daemon/internal/core/domain"
	"github.com/kiosknetwork/kiosk-daemon/internal/infrastructure/storage/db/inmemory"
)

func TestEndpointRepository(t *testing.T) {
	repo := inmemory.NewDbManager().EndpointRepository()
	ctx := context.Background()

	endpoints := []domain.NodeEndpoint{
		{Host: "backup2.example.com", Port: 18081, Label: "backup2", Priority: 2},
		{Host: "main.example.com", Port: 18081, Label: "main", Default: true},
		{Host: "backup1.example.com", Port: 18081, Label: "backup1", Priority: 1},
	}
	for _, endpoint := range endpoints {
		require.NoError(t, repo.AddEndpoint(ctx, endpoint))
	}

	// adding an existing label is a no-op
	require.NoError(t, repo.AddEndpoint(ctx, endpoints[0]))

	all, err := repo.GetAllEndpoints(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "main", all[0].Label)
	require.Equal(t, "backup1", all[1].Label)
	require.Equal(t, "backup2", all[2].Label)

	found, err := repo.GetEndpoint(ctx, "main")
	require.NoError(t, err)
	require.True(t, found.Default)

	_, err = repo.GetEndpoint(ctx, "unknown")
	require.ErrorIs(t, err, domain.ErrEndpointNotFound)
}
