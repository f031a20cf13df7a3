package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/daily-missions/internal/models"
)

func newMiniredisRepository(t *testing.T) (*RedisRepository, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisRepositoryWithClient(client, "dm:"), mr
}

func TestRedisRepository_Values(t *testing.T) {
	ctx := context.Background()
	repo, mr := newMiniredisRepository(t)

	require.NoError(t, repo.Ping(ctx))

	require.NoError(t, repo.SetValues(ctx, "p1", map[string]string{
		models.MissionSlotKey(0): `{"Progress":1}`,
		models.MissionSlotKey(1): "",
		models.NextResetKey:      "2026-10-17T09:00:00Z",
	}))
	require.NoError(t, repo.SetValues(ctx, "p1", nil))

	// One hash per player, one field per value key.
	assert.Equal(t, "2026-10-17T09:00:00Z", mr.HGet("dm:player:p1", models.NextResetKey))

	got, err := repo.GetValues(ctx, "p1", append(models.StateKeys(), models.PlayerLevelKey))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		models.MissionSlotKey(0): `{"Progress":1}`,
		models.MissionSlotKey(1): "",
		models.NextResetKey:      "2026-10-17T09:00:00Z",
	}, got, "vacant slots survive, missing fields stay absent")

	got, err = repo.GetValues(ctx, "nobody", models.StateKeys())
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = repo.GetValues(ctx, "p1", nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, repo.DeleteValues(ctx, "p1", models.StateKeys()[:1]))
	got, err = repo.GetValues(ctx, "p1", models.StateKeys())
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.NotContains(t, got, models.MissionSlotKey(0))

	require.NoError(t, repo.DeleteValues(ctx, "p1", nil))
}

func TestRedisRepository_Clients(t *testing.T) {
	ctx := context.Background()
	repo, mr := newMiniredisRepository(t)

	client := &models.ApiClient{
		ID:          "c1",
		Name:        "game-backend",
		ApiKey:      "dm_test_key_123",
		IsActive:    true,
		Permissions: []string{"missions:read", "missions:write"},
	}
	require.NoError(t, repo.CreateClient(ctx, client))
	// SETNX keeps the first record
	require.NoError(t, repo.CreateClient(ctx, &models.ApiClient{ApiKey: client.ApiKey, Name: "impostor"}))

	assert.True(t, mr.Exists("dm:apiclient:dm_test_key_123"))

	got, err := repo.GetClientByApiKey(ctx, client.ApiKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "game-backend", got.Name)
	assert.Equal(t, client.ApiKey, got.ApiKey)
	assert.Equal(t, client.Permissions, got.Permissions)
	assert.Nil(t, got.LastUsedAt)

	require.NoError(t, repo.UpdateClientLastUsed(ctx, client.ApiKey))
	got, err = repo.GetClientByApiKey(ctx, client.ApiKey)
	require.NoError(t, err)
	assert.NotNil(t, got.LastUsedAt)
	assert.Equal(t, "game-backend", got.Name)

	missing, err := repo.GetClientByApiKey(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.Error(t, repo.UpdateClientLastUsed(ctx, "nope"))

	require.NoError(t, mr.Set("dm:apiclient:broken", "{not json"))
	_, err = repo.GetClientByApiKey(ctx, "broken")
	assert.Error(t, err)
}

func TestRedisRepository_ServerDown(t *testing.T) {
	ctx := context.Background()
	repo, mr := newMiniredisRepository(t)
	mr.Close()

	assert.Error(t, repo.Ping(ctx))
	_, err := repo.GetValues(ctx, "p1", models.StateKeys())
	assert.Error(t, err)
	assert.Error(t, repo.SetValues(ctx, "p1", map[string]string{models.NextResetKey: "x"}))
}
