package storage

import (
	"context"
	"sync"
	"time"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

// MemoryStore implements interfaces.CacheStore in process memory. Used in
// tests and in environments without durable local storage, where cached
// reference data degrades gracefully to session-lifetime only.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.CacheRecord
}

// NewMemoryStore creates an empty in-memory cache store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*models.CacheRecord)}
}

// GetRecord retrieves a cache record by key, or nil when absent.
func (s *MemoryStore) GetRecord(ctx context.Context, key string) (*models.CacheRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

// PutRecord inserts or replaces a cache record.
func (s *MemoryStore) PutRecord(ctx context.Context, record *models.CacheRecord) error {
	if record.UpdateTimestamp.IsZero() {
		record.UpdateTimestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.records[record.Key] = &copied
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
