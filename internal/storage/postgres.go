package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/daily-missions/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 2
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the connection pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// --- Player values ---

// GetValues reads the requested keys for a player
func (r *PostgresRepository) GetValues(ctx context.Context, playerID string, keys []string) (map[string]string, error) {
	query := `
		SELECT key, value
		FROM player_values
		WHERE player_id = $1 AND key = ANY($2)
	`

	rows, err := r.pool.Query(ctx, query, playerID, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to get player values: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string, len(keys))
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan player value: %w", err)
		}
		out[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating player values: %w", err)
	}

	return out, nil
}

// SetValues upserts all values in one transaction
func (r *PostgresRepository) SetValues(ctx context.Context, playerID string, values map[string]string) error {
	query := `
		INSERT INTO player_values (player_id, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (player_id, key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for key, value := range values {
		batch.Queue(query, playerID, key, value)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to set player values: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit player values: %w", err)
	}

	return nil
}

// DeleteValues removes keys for a player
func (r *PostgresRepository) DeleteValues(ctx context.Context, playerID string, keys []string) error {
	query := `DELETE FROM player_values WHERE player_id = $1 AND key = ANY($2)`

	if _, err := r.pool.Exec(ctx, query, playerID, keys); err != nil {
		return fmt.Errorf("failed to delete player values: %w", err)
	}

	return nil
}

// --- API Clients ---

// GetClientByApiKey retrieves an API client by its key
func (r *PostgresRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	query := `
		SELECT id, name, api_key, is_active, created_at, last_used_at, permissions
		FROM api_clients
		WHERE api_key = $1
	`

	var client models.ApiClient
	var lastUsedAt sql.NullTime
	var permissionsJSON []byte

	err := r.pool.QueryRow(ctx, query, apiKey).Scan(
		&client.ID,
		&client.Name,
		&client.ApiKey,
		&client.IsActive,
		&client.CreatedAt,
		&lastUsedAt,
		&permissionsJSON,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	if lastUsedAt.Valid {
		client.LastUsedAt = &lastUsedAt.Time
	}

	if permissionsJSON != nil {
		if err := json.Unmarshal(permissionsJSON, &client.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}

	return &client, nil
}

// CreateClient inserts an API client
func (r *PostgresRepository) CreateClient(ctx context.Context, client *models.ApiClient) error {
	permissionsJSON, err := json.Marshal(client.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		INSERT INTO api_clients (id, name, api_key, is_active, created_at, permissions)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (api_key) DO NOTHING
	`

	_, err = r.pool.Exec(ctx, query,
		client.ID,
		client.Name,
		client.ApiKey,
		client.IsActive,
		client.CreatedAt,
		permissionsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to create api client: %w", err)
	}

	return nil
}

// UpdateClientLastUsed updates the last_used_at timestamp for a client
func (r *PostgresRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	query := `UPDATE api_clients SET last_used_at = NOW() WHERE api_key = $1`

	if _, err := r.pool.Exec(ctx, query, apiKey); err != nil {
		return fmt.Errorf("failed to update client last_used_at: %w", err)
	}

	return nil
}
