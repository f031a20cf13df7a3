package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/terra-clan/daily-missions/internal/models"
)

// MemoryRepository keeps everything in process memory. Used for local
// runs and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	values  map[string]map[string]string
	clients map[string]*models.ApiClient

	// FailWrites makes SetValues and DeleteValues fail, for exercising
	// error paths.
	FailWrites bool
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		values:  make(map[string]map[string]string),
		clients: make(map[string]*models.ApiClient),
	}
}

// GetValues returns the stored values for the given keys
func (r *MemoryRepository) GetValues(ctx context.Context, playerID string, keys []string) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(keys))
	player := r.values[playerID]
	for _, k := range keys {
		if v, ok := player[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// SetValues stores all values for a player
func (r *MemoryRepository) SetValues(ctx context.Context, playerID string, values map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailWrites {
		return fmt.Errorf("failed to set values: write disabled")
	}

	player, ok := r.values[playerID]
	if !ok {
		player = make(map[string]string)
		r.values[playerID] = player
	}
	for k, v := range values {
		player[k] = v
	}
	return nil
}

// DeleteValues removes keys for a player
func (r *MemoryRepository) DeleteValues(ctx context.Context, playerID string, keys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailWrites {
		return fmt.Errorf("failed to delete values: write disabled")
	}

	for _, k := range keys {
		delete(r.values[playerID], k)
	}
	return nil
}

// GetClientByApiKey looks up a client by key
func (r *MemoryRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[apiKey]
	if !ok {
		return nil, nil
	}
	clone := *c
	return &clone, nil
}

// CreateClient registers a client. Existing keys are left untouched.
func (r *MemoryRepository) CreateClient(ctx context.Context, client *models.ApiClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[client.ApiKey]; exists {
		return nil
	}
	clone := *client
	r.clients[client.ApiKey] = &clone
	return nil
}

// UpdateClientLastUsed stamps the client's last use
func (r *MemoryRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[apiKey]
	if !ok {
		return fmt.Errorf("api client not found: %s", models.MaskKey(apiKey))
	}
	now := time.Now()
	c.LastUsedAt = &now
	return nil
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (r *MemoryRepository) Close() error {
	return nil
}
