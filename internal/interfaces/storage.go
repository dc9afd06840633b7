// Package interfaces defines service contracts for the portfolio manager
package interfaces

import (
	"context"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

// CacheStore persists reference-data cache records so TTLs span process
// restarts. Implementations: BadgerDB (default), SurrealDB, and an
// in-memory store for environments without durable local storage.
type CacheStore interface {
	// GetRecord retrieves a record by key, or nil when absent
	GetRecord(ctx context.Context, key string) (*models.CacheRecord, error)

	// PutRecord inserts or replaces a record
	PutRecord(ctx context.Context, record *models.CacheRecord) error

	// Close releases the underlying store
	Close() error
}
