// Package storage provides durable persistence for reference-data cache
// records with pluggable backends.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/common"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

// BadgerStore implements interfaces.CacheStore on an embedded BadgerDB.
type BadgerStore struct {
	store  *badgerhold.Store
	logger *common.Logger
}

// NewBadgerStore opens (or creates) a BadgerDB-backed cache store at path.
func NewBadgerStore(logger *common.Logger, path string) (*BadgerStore, error) {
	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil // Disable badger's internal logging

	store, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}

	logger.Debug().Str("path", path).Msg("BadgerDB cache store opened")

	return &BadgerStore{store: store, logger: logger}, nil
}

// GetRecord retrieves a cache record by key, or nil when absent.
func (s *BadgerStore) GetRecord(ctx context.Context, key string) (*models.CacheRecord, error) {
	var record models.CacheRecord
	err := s.store.Get(key, &record)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache record '%s': %w", key, err)
	}
	return &record, nil
}

// PutRecord inserts or replaces a cache record.
func (s *BadgerStore) PutRecord(ctx context.Context, record *models.CacheRecord) error {
	if record.UpdateTimestamp.IsZero() {
		record.UpdateTimestamp = time.Now()
	}

	if err := s.store.Upsert(record.Key, record); err != nil {
		return fmt.Errorf("failed to put cache record '%s': %w", record.Key, err)
	}
	s.logger.Debug().Str("key", record.Key).Msg("Cache record saved")
	return nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}
