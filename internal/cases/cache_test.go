package cases

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nayasahai/recovery/internal/nextaction"
)

func TestCachedStoreWithoutRedis(t *testing.T) {
	ctx := context.Background()
	store := NewCachedStore(NewMemoryStore(), nil, 0, nil, nil)

	rec := &CaseRecord{ID: "c1", OwnerID: "u1", IncidentID: "upi-card-fraud", Status: nextaction.StatusNotReported}
	require.NoError(t, store.Create(ctx, rec))

	got, err := store.Get(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "upi-card-fraud", got.IncidentID)

	list, err := store.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.Delete(ctx, "u1", "c1"))
	_, err = store.Get(ctx, "u1", "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedStoreUnreachableRedis(t *testing.T) {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	core, logs := observer.New(zap.WarnLevel)
	store := NewCachedStore(NewMemoryStore(), client, time.Minute, zap.New(core), nil)

	rec := &CaseRecord{ID: "c1", OwnerID: "u1", IncidentID: "upi-card-fraud", Status: nextaction.StatusNotReported}
	require.NoError(t, store.Create(ctx, rec), "cache failures must not fail writes")

	rec.Status = nextaction.StatusFrozen
	require.NoError(t, store.Update(ctx, rec))

	got, err := store.Get(ctx, "u1", "c1")
	require.NoError(t, err, "cache failures must not fail reads")
	assert.Equal(t, nextaction.StatusFrozen, got.Status)

	list, err := store.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.Delete(ctx, "u1", "c1"))
	assert.Greater(t, logs.Len(), 0, "cache failures should be logged")
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "case:u1:c1", caseKey("u1", "c1"))
	assert.Equal(t, "user_cases:u1", ownerListKey("u1"))
}
