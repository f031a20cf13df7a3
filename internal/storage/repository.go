package storage

import (
	"context"

	"github.com/terra-clan/daily-missions/internal/models"
)

// Repository defines the interface for mission state persistence.
// Player state is a flat set of string keys per player, mirroring the
// preference store game clients use locally.
type Repository interface {
	// Player values. Keys missing from storage are absent from the result.
	GetValues(ctx context.Context, playerID string, keys []string) (map[string]string, error)
	// SetValues writes all values atomically.
	SetValues(ctx context.Context, playerID string, values map[string]string) error
	DeleteValues(ctx context.Context, playerID string, keys []string) error

	// API Clients. GetClientByApiKey returns (nil, nil) for unknown keys.
	GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error)
	CreateClient(ctx context.Context, client *models.ApiClient) error
	UpdateClientLastUsed(ctx context.Context, apiKey string) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}
