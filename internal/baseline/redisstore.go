package baseline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ocx/sentinel/internal/embedding"
	"github.com/ocx/sentinel/internal/frame"
)

const redisKeyPrefix = "sentinel:baseline:"

// RedisStore is a Redis-backed Baseline Store, for embedders that need
// baselines to survive process restarts or to be shared across Engine
// instances. It provides Record/Get/Compare/ClearAgent like the in-memory
// Store, each taking a context and returning an error; it has no ClearAll.
// It follows the connect-then-wrap idiom of the teacher's GoRedisAdapter.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore connects to addr and verifies connectivity with a ping,
// matching the teacher's adapter constructor. ttl of 0 means baselines
// never expire.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("baseline: redis ping failed (%s): %w", addr, err)
	}

	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

// Close releases the underlying Redis connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func redisKey(agentID, intentHash string) string {
	return redisKeyPrefix + agentID + ":" + intentHash
}

// Record stores or replaces a baseline for (agentID, frame.IntentHash).
func (s *RedisStore) Record(ctx context.Context, agentID string, f frame.ParsedFrame, expectedBehaviors []string, referenceEmbedding embedding.Vector) error {
	behaviors := make([]string, 0, len(expectedBehaviors))
	for _, b := range expectedBehaviors {
		behaviors = append(behaviors, canonical(b))
	}

	now := time.Now()
	existing, err := s.get(ctx, agentID, f.IntentHash)
	createdAt := now
	if err == nil && existing != nil {
		createdAt = existing.CreatedAt
	}

	rec := SnapshotRecord{
		AgentID:            agentID,
		IntentHash:         f.IntentHash,
		ExpectedBehaviors:  behaviors,
		ReferenceEmbedding: []float64(referenceEmbedding),
		CreatedAt:          createdAt,
		LastSeenAt:         now,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("baseline: marshal record: %w", err)
	}
	return s.rdb.Set(ctx, redisKey(agentID, f.IntentHash), data, s.ttl).Err()
}

func (s *RedisStore) get(ctx context.Context, agentID, intentHash string) (*SnapshotRecord, error) {
	data, err := s.rdb.Get(ctx, redisKey(agentID, intentHash)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec SnapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("baseline: unmarshal record: %w", err)
	}
	return &rec, nil
}

// Get returns the stored baseline for (agentID, intentHash), if any.
func (s *RedisStore) Get(ctx context.Context, agentID, intentHash string) (*Record, bool, error) {
	snap, err := s.get(ctx, agentID, intentHash)
	if err != nil {
		return nil, false, err
	}
	if snap == nil {
		return nil, false, nil
	}
	return snapshotToRecord(*snap), true, nil
}

// Compare measures drift between an observation and the stored baseline for
// (agentID, frame.IntentHash), round-tripping through Redis for the
// comparison record.
func (s *RedisStore) Compare(ctx context.Context, agentID string, f frame.ParsedFrame, observedBehaviors []string, observedEmbedding embedding.Vector) (CompareResult, error) {
	snap, err := s.get(ctx, agentID, f.IntentHash)
	if err != nil {
		return CompareResult{}, err
	}
	if snap == nil {
		return CompareResult{}, nil
	}
	return compareRecord(snapshotToRecord(*snap), observedBehaviors, observedEmbedding), nil
}

// ClearAgent removes every baseline stored for agentID by scanning the
// agent's key prefix, matching the teacher adapter's Del-by-keys shape.
func (s *RedisStore) ClearAgent(ctx context.Context, agentID string) error {
	var cursor uint64
	prefix := redisKeyPrefix + agentID + ":*"
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, prefix, 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

func snapshotToRecord(snap SnapshotRecord) *Record {
	behaviors := make(map[string]bool, len(snap.ExpectedBehaviors))
	for _, b := range snap.ExpectedBehaviors {
		behaviors[b] = true
	}
	return &Record{
		AgentID:            snap.AgentID,
		IntentHash:         snap.IntentHash,
		ExpectedBehaviors:  behaviors,
		ReferenceEmbedding: embedding.Vector(snap.ReferenceEmbedding),
		CreatedAt:          snap.CreatedAt,
		LastSeenAt:         snap.LastSeenAt,
	}
}
