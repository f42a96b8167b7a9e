package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"yls-backend/internal/metrics"
	"yls-backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// pruneMargin keeps a consumed record around past its own deadline so a
// pruned record can never be re-consumed while its signature is still live.
const pruneMargin = time.Hour

// ReplayStore records consumed authorization digests. TryConsume is atomic
// insert-if-absent: exactly one caller wins for a given digest, including
// when two requests race. Consumption is never rolled back.
type ReplayStore interface {
	// TryConsume returns nil when the digest was consumed now, a ReplayError
	// when it was consumed before, and an internal error on store failure.
	TryConsume(ctx context.Context, auth *StakeAuthorization, txID string) error

	// Prune removes records older than the retention window whose deadline
	// (plus margin) has also passed. Returns the number of removed records.
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// ============================================================================
// Postgres store (default): durable across restarts
// ============================================================================

// GormReplayStore persists replay records in postgres
type GormReplayStore struct {
	db *gorm.DB
}

// NewGormReplayStore creates a postgres-backed replay store
func NewGormReplayStore(db *gorm.DB) *GormReplayStore {
	return &GormReplayStore{db: db}
}

func (s *GormReplayStore) TryConsume(ctx context.Context, auth *StakeAuthorization, txID string) error {
	record := &models.RelayAuthorization{
		Digest:     auth.Digest.Hex(),
		UserAddr:   auth.User.Hex(),
		PoolID:     auth.PoolID.Uint64(),
		Amount:     auth.Amount.String(),
		Deadline:   auth.DeadlineTime(),
		TxID:       txID,
		ConsumedAt: time.Now(),
	}

	// Insert-if-absent on the digest primary key; the row count tells us
	// whether we won the race.
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	if result.Error != nil {
		return NewInternalError(fmt.Errorf("replay store insert failed: %w", result.Error))
	}
	if result.RowsAffected == 0 {
		return NewReplayError()
	}
	return nil
}

func (s *GormReplayStore) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Where("consumed_at < ? AND deadline < ?", now.Add(-retention), now.Add(-pruneMargin)).
		Delete(&models.RelayAuthorization{})
	return result.RowsAffected, result.Error
}

// ============================================================================
// Redis store: SETNX, for multi-instance deployments
// ============================================================================

// RedisReplayStore keeps replay records in redis with a TTL that covers the
// retention window. Redis handles expiry, so Prune is a no-op.
type RedisReplayStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisReplayStore creates a redis-backed replay store
func NewRedisReplayStore(client *redis.Client, retention time.Duration) *RedisReplayStore {
	return &RedisReplayStore{client: client, retention: retention}
}

func (s *RedisReplayStore) key(digest string) string {
	return "relay:auth:" + digest
}

func (s *RedisReplayStore) TryConsume(ctx context.Context, auth *StakeAuthorization, txID string) error {
	ttl := s.retention
	if until := time.Until(auth.DeadlineTime()) + pruneMargin; until > ttl {
		ttl = until
	}

	ok, err := s.client.SetNX(ctx, s.key(auth.Digest.Hex()), txID, ttl).Result()
	if err != nil {
		return NewInternalError(fmt.Errorf("replay store setnx failed: %w", err))
	}
	if !ok {
		return NewReplayError()
	}
	return nil
}

func (s *RedisReplayStore) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	return 0, nil
}

// ============================================================================
// In-memory store: development and tests only
// ============================================================================

type memoryRecord struct {
	consumedAt time.Time
	deadline   time.Time
}

// MemoryReplayStore is a mutex-guarded map. It loses replay protection on
// restart and is only suitable for development and tests.
type MemoryReplayStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
}

// NewMemoryReplayStore creates an in-memory replay store
func NewMemoryReplayStore() *MemoryReplayStore {
	logrus.Warn("⚠️ [Replay] Using in-memory replay store - protection does not survive restarts")
	return &MemoryReplayStore{records: make(map[string]memoryRecord)}
}

func (s *MemoryReplayStore) TryConsume(ctx context.Context, auth *StakeAuthorization, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	digest := auth.Digest.Hex()
	if _, exists := s.records[digest]; exists {
		return NewReplayError()
	}
	s.records[digest] = memoryRecord{
		consumedAt: time.Now(),
		deadline:   auth.DeadlineTime(),
	}
	return nil
}

func (s *MemoryReplayStore) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var removed int64
	for digest, rec := range s.records {
		if now.Sub(rec.consumedAt) > retention && now.After(rec.deadline.Add(pruneMargin)) {
			delete(s.records, digest)
			removed++
		}
	}
	return removed, nil
}

// ============================================================================
// Retention pruner
// ============================================================================

// StartReplayPruner runs Prune on a ticker until the context is cancelled
func StartReplayPruner(ctx context.Context, store ReplayStore, retention, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := store.Prune(ctx, retention)
				if err != nil {
					logrus.WithError(err).Warn("⚠️ [Replay] Prune failed")
					continue
				}
				if removed > 0 {
					metrics.ReplayRecordsPruned.Add(float64(removed))
					logrus.WithField("removed", removed).Info("🧹 [Replay] Pruned expired replay records")
				}
			}
		}
	}()
}
