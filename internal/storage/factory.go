package storage

import (
	"fmt"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/common"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/interfaces"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/storage/surrealdb"
)

// Backend type constants.
const (
	BackendBadger  = "badger"
	BackendSurreal = "surrealdb"
	BackendMemory  = "memory"
)

// NewCacheStore creates a cache store based on the configuration.
// Supported backends: "badger" (default), "surrealdb", "memory".
func NewCacheStore(logger *common.Logger, config *common.StorageConfig) (interfaces.CacheStore, error) {
	backend := config.Backend
	if backend == "" {
		backend = BackendBadger
	}

	switch backend {
	case BackendBadger:
		return NewBadgerStore(logger, config.Path)

	case BackendSurreal:
		return surrealdb.NewCacheStore(logger, config)

	case BackendMemory:
		logger.Warn().Msg("Using non-durable in-memory cache store; cached reference data will not survive restarts")
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: badger, surrealdb, memory)", backend)
	}
}
