// Package cache provides the per-URL analysis cache shared by engine runs.
package cache

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/config"
)

// Cache stores opaque values by key with a bounded lifetime.
type Cache interface {
	// Get returns the value and true on a hit. Expired entries are misses.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// New builds the backend named by cfg.Backend. "none" and "" return a Nop cache.
func New(cfg config.CacheConfig) (Cache, error) {
	ttl := time.Duration(cfg.TTLMinutes) * time.Minute
	switch cfg.Backend {
	case "memory":
		return NewMemory(cfg.MaxEntries, ttl), nil
	case "redis":
		return NewRedis(cfg.RedisAddr, ttl), nil
	case "none", "":
		return Nop{}, nil
	default:
		return nil, eris.Errorf("cache: unknown backend %q", cfg.Backend)
	}
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte) error         { return nil }
func (Nop) Close() error                                      { return nil }
