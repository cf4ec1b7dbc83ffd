package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/geosocial/proximity/internal/cache"
	"github.com/geosocial/proximity/internal/config"
	"github.com/geosocial/proximity/internal/geoindex"
)

// Caching bundles the geo index and snapshot backend chosen by cfg.CacheDriver.
// With the redis driver both share one client.
type Caching struct {
	Index   geoindex.Index
	Backend cache.Backend
	client  *redis.Client
}

// Close releases the redis client, if any.
func (c *Caching) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// NewCaching builds the index and cache backend. The redis connection is
// checked asynchronously; returns immediately for fast startup.
func NewCaching(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Caching, error) {
	switch cfg.CacheDriver {
	case "memory":
		return &Caching{Index: geoindex.NewMemoryIndex(), Backend: cache.NewMemoryBackend()}, nil
	case "redis":
	default:
		return nil, fmt.Errorf("unknown CACHE_DRIVER: %s", cfg.CacheDriver)
	}

	client, err := NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	go func() {
		bootstrapTimeout := time.Duration(cfg.BootstrapTimeoutSeconds) * time.Second
		bootstrapCtx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
		defer cancel()

		if err := client.Ping(bootstrapCtx).Err(); err != nil {
			log.Warn().Err(err).Str("driver", cfg.CacheDriver).Msg("redis bootstrap check failed")
		} else {
			log.Debug().Str("driver", cfg.CacheDriver).Msg("redis bootstrap check completed")
		}
	}()

	return &Caching{
		Index:   geoindex.NewRedisIndex(client),
		Backend: cache.NewRedisBackend(client),
		client:  client,
	}, nil
}

// NewRedisClient parses a redis:// or rediss:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("PROXIMITY_REDIS_URL is required when CACHE_DRIVER=redis")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// CacheTTLs reads snapshot and result-set lifetimes from cfg.
func CacheTTLs(cfg *config.Config) cache.TTLs {
	return cache.TTLs{
		User:          cfg.UserCacheTTL.Std(),
		Group:         cfg.GroupCacheTTL.Std(),
		Activity:      cfg.ActivityCacheTTL.Std(),
		NearbyResults: cfg.NearbyCacheTTL.Std(),
	}
}
