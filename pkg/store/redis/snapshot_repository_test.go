package redis

import (
	"context"
	"testing"
	"time"

	"floortrack/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRepository(t *testing.T) (*SnapshotRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return &SnapshotRepository{redis: client}, mr
}

func TestSnapshotRepository_SaveAndGet(t *testing.T) {
	repo, _ := testRepository(t)
	ctx := context.Background()

	snapshot := &model.Snapshot{
		TotalWorkers:    12,
		ActiveWorkers:   9,
		AvgProductivity: 0.82,
		TotalOutput:     140.5,
		AlertsCount:     2,
		ZoneOccupancy:   map[string]int{"zone-a": 4, "zone-b": 5},
		LastUpdate:      time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Save(ctx, snapshot))

	got, err := repo.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snapshot.TotalWorkers, got.TotalWorkers)
	assert.Equal(t, snapshot.ActiveWorkers, got.ActiveWorkers)
	assert.Equal(t, snapshot.ZoneOccupancy, got.ZoneOccupancy)
	assert.True(t, snapshot.LastUpdate.Equal(got.LastUpdate))
}

func TestSnapshotRepository_GetOnMiss(t *testing.T) {
	repo, _ := testRepository(t)

	got, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSnapshotRepository_Expiry(t *testing.T) {
	repo, mr := testRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &model.Snapshot{TotalWorkers: 3}))
	assert.True(t, mr.Exists(snapshotKey))

	mr.FastForward(snapshotTTL + time.Second)

	got, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSnapshotRepository_SaveOverwrites(t *testing.T) {
	repo, _ := testRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &model.Snapshot{TotalWorkers: 3}))
	require.NoError(t, repo.Save(ctx, &model.Snapshot{TotalWorkers: 7}))

	got, err := repo.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 7, got.TotalWorkers)
}
