package cases

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nayasahai/recovery/internal/metrics"
)

// DefaultCacheTTL is how long a cached case stays valid
const DefaultCacheTTL = 15 * time.Minute

// CachedStore is a read-through Redis cache in front of another store.
// Cache failures are logged and never fail the operation.
type CachedStore struct {
	next    Store
	redis   *redis.Client
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewCachedStore wraps next. A nil redis client disables caching.
func NewCachedStore(next Store, client *redis.Client, ttl time.Duration, logger *zap.Logger, collector *metrics.Collector) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{
		next:    next,
		redis:   client,
		ttl:     ttl,
		logger:  logger,
		metrics: collector,
	}
}

func caseKey(ownerID, id string) string {
	return fmt.Sprintf("case:%s:%s", ownerID, id)
}

func ownerListKey(ownerID string) string {
	return fmt.Sprintf("user_cases:%s", ownerID)
}

func (s *CachedStore) Create(ctx context.Context, rec *CaseRecord) error {
	if err := s.next.Create(ctx, rec); err != nil {
		return err
	}
	s.cacheCase(ctx, rec)
	s.invalidate(ctx, ownerListKey(rec.OwnerID))
	return nil
}

func (s *CachedStore) Get(ctx context.Context, ownerID, id string) (*CaseRecord, error) {
	if rec, ok := s.cachedCase(ctx, ownerID, id); ok {
		return rec, nil
	}

	rec, err := s.next.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	s.cacheCase(ctx, rec)
	return rec, nil
}

func (s *CachedStore) Update(ctx context.Context, rec *CaseRecord) error {
	if err := s.next.Update(ctx, rec); err != nil {
		return err
	}
	s.cacheCase(ctx, rec)
	s.invalidate(ctx, ownerListKey(rec.OwnerID))
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.next.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	s.invalidate(ctx, caseKey(ownerID, id), ownerListKey(ownerID))
	return nil
}

func (s *CachedStore) List(ctx context.Context, ownerID string) ([]CaseRecord, error) {
	key := ownerListKey(ownerID)
	if s.redis != nil {
		if data, err := s.redis.Get(ctx, key).Bytes(); err == nil {
			var records []CaseRecord
			if err := json.Unmarshal(data, &records); err == nil {
				s.recordCache(true)
				return records, nil
			}
		}
		s.recordCache(false)
	}

	records, err := s.next.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	s.set(ctx, key, records)
	return records, nil
}

func (s *CachedStore) cachedCase(ctx context.Context, ownerID, id string) (*CaseRecord, bool) {
	if s.redis == nil {
		return nil, false
	}

	data, err := s.redis.Get(ctx, caseKey(ownerID, id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("Case cache read failed", zap.String("case_id", id), zap.Error(err))
		}
		s.recordCache(false)
		return nil, false
	}

	var rec CaseRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.recordCache(false)
		return nil, false
	}
	s.recordCache(true)
	return &rec, true
}

func (s *CachedStore) cacheCase(ctx context.Context, rec *CaseRecord) {
	s.set(ctx, caseKey(rec.OwnerID, rec.ID), rec)
}

func (s *CachedStore) set(ctx context.Context, key string, v interface{}) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("Failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.logger.Warn("Failed to cache entry", zap.String("key", key), zap.Error(err))
	}
}

func (s *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn("Failed to invalidate cache", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (s *CachedStore) recordCache(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCacheResult(hit)
	}
}
