package service

import (
	"context"
	"time"
)

// Clock returns the current time. Services never read the wall clock directly.
type Clock func() time.Time

// IDGenerator returns a new unique identifier for a persisted record.
type IDGenerator func() string

// Cache is the subset of the redis client the services rely on.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SAdd(ctx context.Context, key string, members ...any) error
	SRem(ctx context.Context, key string, members ...any) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// FileStorage is implemented by both the local and the S3 storage clients.
type FileStorage interface {
	Save(ctx context.Context, fileName, contentType string, data []byte) (string, error)
	URL(ctx context.Context, key string) (string, error)
}

func strPtr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func timePtr(p *time.Time) string {
	if p == nil {
		return ""
	}
	return p.Format("2006-01-02 15:04:05")
}
