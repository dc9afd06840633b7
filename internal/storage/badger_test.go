package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/common"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

func newTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(common.NewSilentLogger(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBadgerStoreGetMissingRecord(t *testing.T) {
	store := newTestBadgerStore(t)

	record, err := store.GetRecord(context.Background(), models.CacheKeyCurrencies)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestBadgerStorePutAndGetRecord(t *testing.T) {
	store := newTestBadgerStore(t)

	currencies := []models.Currency{
		{ID: "1", Code: "USD", Symbol: "$"},
		{ID: "2", Code: "EUR", Symbol: "€"},
	}
	raw, err := json.Marshal(currencies)
	require.NoError(t, err)

	updatedAt := time.Now().Add(-time.Minute)
	require.NoError(t, store.PutRecord(context.Background(), &models.CacheRecord{
		Key:             models.CacheKeyCurrencies,
		Value:           raw,
		UpdateTimestamp: updatedAt,
	}))

	record, err := store.GetRecord(context.Background(), models.CacheKeyCurrencies)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.CacheKeyCurrencies, record.Key)
	assert.WithinDuration(t, updatedAt, record.UpdateTimestamp, time.Second)

	var decoded []models.Currency
	require.NoError(t, json.Unmarshal(record.Value, &decoded))
	assert.Equal(t, currencies, decoded)
}

func TestBadgerStoreUpsertReplacesRecord(t *testing.T) {
	store := newTestBadgerStore(t)

	first := &models.CacheRecord{
		Key:             models.CacheKeyExchangeRates,
		Value:           json.RawMessage(`[{"to":"EUR","rate":0.91}]`),
		UpdateTimestamp: time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.PutRecord(context.Background(), first))

	second := &models.CacheRecord{
		Key:             models.CacheKeyExchangeRates,
		Value:           json.RawMessage(`[{"to":"EUR","rate":0.93}]`),
		UpdateTimestamp: time.Now(),
	}
	require.NoError(t, store.PutRecord(context.Background(), second))

	record, err := store.GetRecord(context.Background(), models.CacheKeyExchangeRates)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.JSONEq(t, `[{"to":"EUR","rate":0.93}]`, string(record.Value))
}

func TestBadgerStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	logger := common.NewSilentLogger()

	store, err := NewBadgerStore(logger, dir)
	require.NoError(t, err)
	require.NoError(t, store.PutRecord(context.Background(), &models.CacheRecord{
		Key:   models.CacheKeySecurities,
		Value: json.RawMessage(`[{"id":"1","symbol":"AAPL","name":"Apple Inc","exchange":"NASDAQ","status":"ACTIVE"}]`),
	}))
	require.NoError(t, store.Close())

	reopened, err := NewBadgerStore(logger, dir)
	require.NoError(t, err)
	defer reopened.Close()

	record, err := reopened.GetRecord(context.Background(), models.CacheKeySecurities)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Contains(t, string(record.Value), "AAPL")
	assert.False(t, record.UpdateTimestamp.IsZero(), "put stamps the timestamp when unset")
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()

	record, err := store.GetRecord(context.Background(), models.CacheKeyCurrencies)
	require.NoError(t, err)
	assert.Nil(t, record)

	require.NoError(t, store.PutRecord(context.Background(), &models.CacheRecord{
		Key:   models.CacheKeyCurrencies,
		Value: json.RawMessage(`[]`),
	}))

	record, err = store.GetRecord(context.Background(), models.CacheKeyCurrencies)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.CacheKeyCurrencies, record.Key)
}
