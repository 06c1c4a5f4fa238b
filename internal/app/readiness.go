package app

import (
	"context"
	"fmt"
)

// Pinger is the minimal interface for a collaborator capable of Ping.
// Satisfied by *pgxpool.Pool and the cache adapter.
type Pinger interface{ Ping(ctx context.Context) error }

// BuildReadinessChecks returns the db and redis readiness probes.
func BuildReadinessChecks(db, redis Pinger) (
	func(ctx context.Context) error,
	func(ctx context.Context) error,
) {
	dbCheck := func(ctx context.Context) error {
		if db == nil {
			return fmt.Errorf("db not configured")
		}
		return db.Ping(ctx)
	}
	redisCheck := func(ctx context.Context) error {
		if redis == nil {
			return fmt.Errorf("redis not configured")
		}
		return redis.Ping(ctx)
	}
	return dbCheck, redisCheck
}
