package storage

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/daily-missions/internal/models"
	"github.com/terra-clan/daily-missions/migrations"
)

func TestMemoryRepository_Values(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	require.NoError(t, repo.SetValues(ctx, "p1", map[string]string{
		models.MissionSlotKey(0): `{"Progress":1}`,
		models.NextResetKey:      "2026-10-17T09:00:00Z",
	}))
	require.NoError(t, repo.SetValues(ctx, "p2", map[string]string{models.NextResetKey: "other"}))

	got, err := repo.GetValues(ctx, "p1", models.StateKeys())
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "2026-10-17T09:00:00Z", got[models.NextResetKey])
	_, present := got[models.MissionSlotKey(1)]
	assert.False(t, present, "missing keys are absent")

	require.NoError(t, repo.DeleteValues(ctx, "p1", []string{models.NextResetKey}))
	got, err = repo.GetValues(ctx, "p1", []string{models.NextResetKey})
	require.NoError(t, err)
	assert.Empty(t, got)

	repo.FailWrites = true
	assert.Error(t, repo.SetValues(ctx, "p1", map[string]string{"k": "v"}))
}

func TestMemoryRepository_Clients(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	client := &models.ApiClient{
		ID:          "c1",
		Name:        "game-backend",
		ApiKey:      "dm_test_key_123",
		IsActive:    true,
		CreatedAt:   time.Now(),
		Permissions: []string{"missions:*"},
	}
	require.NoError(t, repo.CreateClient(ctx, client))
	// second create keeps the original
	require.NoError(t, repo.CreateClient(ctx, &models.ApiClient{ApiKey: client.ApiKey, Name: "impostor"}))

	got, err := repo.GetClientByApiKey(ctx, client.ApiKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "game-backend", got.Name)
	assert.Nil(t, got.LastUsedAt)

	require.NoError(t, repo.UpdateClientLastUsed(ctx, client.ApiKey))
	got, err = repo.GetClientByApiKey(ctx, client.ApiKey)
	require.NoError(t, err)
	assert.NotNil(t, got.LastUsedAt)

	missing, err := repo.GetClientByApiKey(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.Error(t, repo.UpdateClientLastUsed(ctx, "nope"))
}

func TestRedisRepository_KeyLayout(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	repo := NewRedisRepositoryWithClient(client, "dailymissions:")
	assert.Equal(t, "dailymissions:player:p-42", repo.playerKey("p-42"))
	assert.Equal(t, "dailymissions:apiclient:dm_key", repo.clientKey("dm_key"))
}

func TestRedisClientRecord_OmitsKey(t *testing.T) {
	c := &models.ApiClient{ID: "c1", Name: "n", ApiKey: "secret-key", IsActive: true, Permissions: []string{"*"}}
	rec := newRedisClientRecord(c)
	back := rec.toModel()
	assert.Empty(t, back.ApiKey)
	assert.Equal(t, c.Permissions, back.Permissions)
	assert.True(t, back.IsActive)
}

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_more.sql":  {Data: []byte("SELECT 2;")},
		"001_init.sql":  {Data: []byte("SELECT 1;")},
		"README.md":     {Data: []byte("docs")},
		"003_later.sql": {Data: []byte("SELECT 3;")},
	}

	pending, err := pendingMigrations(fsys, map[string]bool{"002_more.sql": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql", "003_later.sql"}, pending)
}

func TestEmbeddedMigrations(t *testing.T) {
	pending, err := pendingMigrations(migrations.FS, map[string]bool{})
	require.NoError(t, err)
	assert.Contains(t, pending, "001_init.sql")
}
