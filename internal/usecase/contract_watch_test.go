package usecase

import (
	"context"
	"testing"
	"time"

	"PowerDesk/internal/domain/models"
	"PowerDesk/internal/repository"
	"PowerDesk/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractWatchFlagsExpired(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryDatasetStore(0)
	save := func(s, text string) {
		require.NoError(t, store.Save(ctx, &models.Dataset{ID: s + "-ppa", SessionID: s, Kind: models.KindContract, Text: text}))
	}
	save("expired", contractTxt)
	save("current", "Seller: Sunfield\nThis agreement expires on 31 December 2030.")
	save("undated", "Seller: Sunfield\nBuyer: GridCo")
	require.NoError(t, store.Save(ctx, &models.Dataset{ID: "m", SessionID: "market-only", Kind: models.KindMarket}))

	w := NewContractWatch(store, "", logger.NewNop())
	w.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

	alerts, err := w.Check(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "expired", alerts[0].SessionID)
	assert.Equal(t, "expired-ppa", alerts[0].DatasetID)
	assert.Equal(t, "31 December 2020", alerts[0].EndDate)
	assert.Equal(t, alerts, w.Alerts())
}

func TestContractWatchStartStop(t *testing.T) {
	w := NewContractWatch(repository.NewMemoryDatasetStore(0), "@every 1h", logger.NewNop())
	require.NoError(t, w.Start())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, w.Stop(ctx))

	bad := NewContractWatch(repository.NewMemoryDatasetStore(0), "not a schedule", logger.NewNop())
	assert.Error(t, bad.Start())
}
