// Package surrealdb implements the cache store on SurrealDB for
// deployments that already run one.
package surrealdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/common"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

// cacheRecord is the SurrealDB row shape; the raw JSON value travels as
// a string to stay driver-agnostic.
type cacheRecord struct {
	Key             string    `json:"key"`
	Value           string    `json:"value"`
	UpdateTimestamp time.Time `json:"update_timestamp"`
}

// CacheStore implements interfaces.CacheStore using SurrealDB.
type CacheStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewCacheStore connects to SurrealDB and prepares the cache_record table.
func NewCacheStore(logger *common.Logger, config *common.StorageConfig) (*CacheStore, error) {
	ctx := context.Background()

	db, err := surrealdb.New(config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Username,
		"pass": config.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Namespace, config.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	// SurrealDB v3 errors on querying non-existent tables.
	if _, err := surrealdb.Query[any](ctx, db, "DEFINE TABLE IF NOT EXISTS cache_record SCHEMALESS", nil); err != nil {
		return nil, fmt.Errorf("failed to define cache_record table: %w", err)
	}

	logger.Info().
		Str("address", config.Address).
		Str("namespace", config.Namespace).
		Str("database", config.Database).
		Msg("SurrealDB cache store initialized")

	return &CacheStore{db: db, logger: logger}, nil
}

// GetRecord retrieves a cache record by key, or nil when absent.
func (s *CacheStore) GetRecord(ctx context.Context, key string) (*models.CacheRecord, error) {
	row, err := surrealdb.Select[cacheRecord](ctx, s.db, surrealmodels.NewRecordID("cache_record", key))
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache record '%s': %w", key, err)
	}
	if row == nil || row.Key == "" {
		return nil, nil
	}

	return &models.CacheRecord{
		Key:             row.Key,
		Value:           json.RawMessage(row.Value),
		UpdateTimestamp: row.UpdateTimestamp,
	}, nil
}

// PutRecord inserts or replaces a cache record.
func (s *CacheStore) PutRecord(ctx context.Context, record *models.CacheRecord) error {
	if record.UpdateTimestamp.IsZero() {
		record.UpdateTimestamp = time.Now()
	}

	sql := `UPSERT $rid SET
		key = $key, value = $value, update_timestamp = $update_timestamp`
	vars := map[string]any{
		"rid":              surrealmodels.NewRecordID("cache_record", record.Key),
		"key":              record.Key,
		"value":            string(record.Value),
		"update_timestamp": record.UpdateTimestamp,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to put cache record '%s': %w", record.Key, err)
	}
	s.logger.Debug().Str("key", record.Key).Msg("Cache record saved")
	return nil
}

// Close closes the SurrealDB connection.
func (s *CacheStore) Close() error {
	if s.db != nil {
		return s.db.Close(context.Background())
	}
	return nil
}

// isNotFoundError reports whether the driver error means the record
// simply does not exist.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "no record")
}
