package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/daily-missions/internal/models"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// Prefix namespaces every key, e.g. "dailymissions:".
	Prefix string
}

// RedisRepository implements Repository with one hash per player.
// Hash fields are the player value keys.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository connects to Redis and verifies the connection
func NewRedisRepository(ctx context.Context, cfg RedisConfig) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisRepositoryWithClient(client, cfg.Prefix), nil
}

// NewRedisRepositoryWithClient wraps an existing client
func NewRedisRepositoryWithClient(client *redis.Client, prefix string) *RedisRepository {
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) playerKey(playerID string) string {
	return fmt.Sprintf("%splayer:%s", r.prefix, playerID)
}

func (r *RedisRepository) clientKey(apiKey string) string {
	return fmt.Sprintf("%sapiclient:%s", r.prefix, apiKey)
}

// GetValues reads the requested hash fields for a player
func (r *RedisRepository) GetValues(ctx context.Context, playerID string, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	vals, err := r.client.HMGet(ctx, r.playerKey(playerID), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get player values: %w", err)
	}

	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

// SetValues writes all fields with a single HSET
func (r *RedisRepository) SetValues(ctx context.Context, playerID string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		fields[k] = v
	}

	if err := r.client.HSet(ctx, r.playerKey(playerID), fields).Err(); err != nil {
		return fmt.Errorf("failed to set player values: %w", err)
	}
	return nil
}

// DeleteValues removes hash fields for a player
func (r *RedisRepository) DeleteValues(ctx context.Context, playerID string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.HDel(ctx, r.playerKey(playerID), keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete player values: %w", err)
	}
	return nil
}

// GetClientByApiKey loads the JSON-encoded client stored under the key
func (r *RedisRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	data, err := r.client.Get(ctx, r.clientKey(apiKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	var rec redisClientRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal api client: %w", err)
	}

	client := rec.toModel()
	client.ApiKey = apiKey
	return client, nil
}

// CreateClient stores a client unless the key is already taken
func (r *RedisRepository) CreateClient(ctx context.Context, client *models.ApiClient) error {
	data, err := json.Marshal(newRedisClientRecord(client))
	if err != nil {
		return fmt.Errorf("failed to marshal api client: %w", err)
	}

	if err := r.client.SetNX(ctx, r.clientKey(client.ApiKey), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to create api client: %w", err)
	}
	return nil
}

// UpdateClientLastUsed rewrites the client record with a fresh timestamp
func (r *RedisRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	client, err := r.GetClientByApiKey(ctx, apiKey)
	if err != nil {
		return err
	}
	if client == nil {
		return fmt.Errorf("api client not found: %s", models.MaskKey(apiKey))
	}

	now := time.Now()
	client.LastUsedAt = &now

	data, err := json.Marshal(newRedisClientRecord(client))
	if err != nil {
		return fmt.Errorf("failed to marshal api client: %w", err)
	}
	if err := r.client.Set(ctx, r.clientKey(apiKey), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update client last_used_at: %w", err)
	}
	return nil
}

// Ping verifies Redis connectivity
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// redisClientRecord is the stored form of an API client. The key itself is
// part of the Redis key and is not repeated in the value.
type redisClientRecord struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	Permissions []string   `json:"permissions"`
}

func newRedisClientRecord(c *models.ApiClient) redisClientRecord {
	return redisClientRecord{
		ID:          c.ID,
		Name:        c.Name,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
		LastUsedAt:  c.LastUsedAt,
		Permissions: c.Permissions,
	}
}

func (rec redisClientRecord) toModel() *models.ApiClient {
	return &models.ApiClient{
		ID:          rec.ID,
		Name:        rec.Name,
		IsActive:    rec.IsActive,
		CreatedAt:   rec.CreatedAt,
		LastUsedAt:  rec.LastUsedAt,
		Permissions: rec.Permissions,
	}
}
