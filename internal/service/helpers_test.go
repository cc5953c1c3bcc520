package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"pawedaran/internal/clients"

	"github.com/shopspring/decimal"
)

// memCache is an in-process stand-in for the prefixed redis client.
type memCache struct {
	mu     sync.Mutex
	values map[string]string
	sets   map[string]map[string]struct{}
	getErr error
	gets   int
}

func newMemCache() *memCache {
	return &memCache{
		values: map[string]string{},
		sets:   map[string]map[string]struct{}{},
	}
}

func (c *memCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return "", c.getErr
	}
	v, ok := c.values[key]
	if !ok {
		return "", clients.ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value.(string)
	return nil
}

func (c *memCache) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.values, k)
	}
	return nil
}

func (c *memCache) SAdd(ctx context.Context, key string, members ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.sets[key]
	if !ok {
		set = map[string]struct{}{}
		c.sets[key] = set
	}
	for _, m := range members {
		set[m.(string)] = struct{}{}
	}
	return nil
}

func (c *memCache) SRem(ctx context.Context, key string, members ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range members {
		delete(c.sets[key], m.(string))
	}
	return nil
}

func (c *memCache) SMembers(ctx context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for m := range c.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[key]
	return ok
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func sequentialIDs(prefix string) IDGenerator {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + strconv.Itoa(n)
	}
}

func ptr[T any](v T) *T { return &v }
