package core

import (
	"context"
	"time"
)

// Cache is a byte cache with expiring keys and atomic counters.
type Cache interface {
	// Get returns ok=false when the key does not exist or has expired.
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
}

// ScheduleGenerationKey is a counter bumped on every change that affects computed schedules.
// Cached schedule views embed it in their keys.
const ScheduleGenerationKey = "schedule:generation"
