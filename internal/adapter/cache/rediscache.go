// Package cache provides a Redis-backed layer for idempotency reservations
// and verdict read caching.
package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-job-verdict/internal/domain"
)

// Redis wraps a go-redis client with the two concerns this service caches.
type Redis struct {
	rdb *redis.Client
}

// New parses the Redis URL and returns the cache adapter.
func New(url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("op=cache.parse_url: %w", err)
	}
	return &Redis{rdb: redis.NewClient(opt)}, nil
}

// NewWithClient wraps an existing client. Tests use this with miniredis.
func NewWithClient(rdb *redis.Client) *Redis { return &Redis{rdb: rdb} }

// Ping verifies connectivity; used by readiness checks.
func (r *Redis) Ping(ctx domain.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("op=cache.ping: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (r *Redis) Close() error { return r.rdb.Close() }

func idemKey(key string) string      { return "idem:" + key }
func verdictKey(jobID string) string { return "verdict:" + jobID }

// ReserveIdempotencyKey records key -> jobID if the key is unclaimed.
// Returns the winning job id and whether this call claimed the key. A lost
// race returns the existing job id with claimed == false, so the HTTP layer
// can answer with the original job.
func (r *Redis) ReserveIdempotencyKey(ctx domain.Context, key, jobID string, ttl time.Duration) (string, bool, error) {
	ok, err := r.rdb.SetNX(ctx, idemKey(key), jobID, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("op=cache.reserve_idem: %w", err)
	}
	if ok {
		return jobID, true, nil
	}
	existing, err := r.rdb.Get(ctx, idemKey(key)).Result()
	if err != nil {
		return "", false, fmt.Errorf("op=cache.reserve_idem: %w", err)
	}
	return existing, false, nil
}

// StoreVerdict caches a completed verdict as JSON.
func (r *Redis) StoreVerdict(ctx domain.Context, v domain.Verdict, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("op=cache.store_verdict: %w", err)
	}
	if err := r.rdb.Set(ctx, verdictKey(v.JobID), b, ttl).Err(); err != nil {
		return fmt.Errorf("op=cache.store_verdict: %w", err)
	}
	return nil
}

// GetVerdict loads a cached verdict. A miss returns domain.ErrNotFound.
func (r *Redis) GetVerdict(ctx domain.Context, jobID string) (domain.Verdict, error) {
	b, err := r.rdb.Get(ctx, verdictKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.Verdict{}, domain.ErrNotFound
		}
		return domain.Verdict{}, fmt.Errorf("op=cache.get_verdict: %w", err)
	}
	var v domain.Verdict
	if err := json.Unmarshal(b, &v); err != nil {
		return domain.Verdict{}, fmt.Errorf("op=cache.get_verdict: %w", err)
	}
	return v, nil
}
