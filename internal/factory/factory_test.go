package factory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/geosocial/proximity/internal/config"
	"github.com/geosocial/proximity/internal/geoindex"
)

func TestNewStore_SQLite(t *testing.T) {
	cfg := config.NewForTesting()
	cfg.DBDriver = "sqlite"
	cfg.SQLitePath = filepath.Join(t.TempDir(), "f.db")
	cfg.AutoMigrate = true

	s, err := NewStore(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = s.DB().Close() })
	if err := s.HealthPing(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := s.Users().Scan(context.Background(), "", 1); err != nil {
		t.Fatalf("schema missing: %v", err)
	}
}

func TestNewStore_Errors(t *testing.T) {
	cfg := config.NewForTesting()
	cfg.DBDriver = "oracle"
	if _, err := NewStore(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected unknown driver error")
	}
	cfg.DBDriver = "postgres"
	cfg.PostgresDSN = ""
	if _, err := NewStore(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected missing DSN error")
	}
}

func TestNewCaching(t *testing.T) {
	cfg := config.NewForTesting()
	cfg.CacheDriver = "memory"
	c, err := NewCaching(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCaching: %v", err)
	}
	if _, ok := c.Index.(*geoindex.MemoryIndex); !ok {
		t.Fatalf("memory driver built %T", c.Index)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	cfg.CacheDriver = "redis"
	cfg.RedisURL = "not a url"
	if _, err := NewCaching(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected redis url error")
	}
	cfg.CacheDriver = "memcached"
	if _, err := NewCaching(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected unknown driver error")
	}
}

func TestNewRedisClient(t *testing.T) {
	c, err := NewRedisClient("redis://localhost:6399/2")
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer func() { _ = c.Close() }()
	if c.Options().DB != 2 || c.Options().Addr != "localhost:6399" {
		t.Fatalf("options = %+v", c.Options())
	}
}

func TestCacheTTLs(t *testing.T) {
	cfg := config.NewForTesting()
	cfg.GroupCacheTTL = config.Duration(3 * time.Minute)
	if got := CacheTTLs(cfg).Group; got != 3*time.Minute {
		t.Fatalf("group ttl = %v", got)
	}
}
