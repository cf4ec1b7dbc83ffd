package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeChecker struct {
	name    string
	healthy atomic.Int32
}

func (f *fakeChecker) Name() string                               { return f.name }
func (f *fakeChecker) IsHealthy() bool                            { return f.healthy.Load() == 1 }
func (f *fakeChecker) Start(ctx context.Context, _ time.Duration) { /* no-op */ }

func TestServiceHealthChecker_Transitions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := zerolog.Nop()

	store := &fakeChecker{name: "store"}
	index := &fakeChecker{name: "geoindex"}
	store.healthy.Store(1)
	index.healthy.Store(1)

	svc := NewServiceHealthChecker(logger, store)
	svc.AddOptional(index)
	go svc.Start(ctx, 10*time.Millisecond)

	// Initially healthy
	waitTrue(t, func() bool { return svc.IsHealthy() && !svc.IsDegraded() })

	// Optional dependency down only degrades
	index.healthy.Store(0)
	waitTrue(t, func() bool { return svc.IsHealthy() && svc.IsDegraded() })

	// Required dependency down fails the service
	store.healthy.Store(0)
	waitTrue(t, func() bool { return !svc.IsHealthy() })

	// Recover
	store.healthy.Store(1)
	index.healthy.Store(1)
	waitTrue(t, func() bool { return svc.IsHealthy() && !svc.IsDegraded() })
}

type fakePinger struct{ err atomic.Value }

func (p *fakePinger) HealthPing(context.Context) error {
	if v, ok := p.err.Load().(error); ok {
		return v
	}
	return nil
}

func TestPingChecker(t *testing.T) {
	p := &fakePinger{}
	pc := NewPingChecker("cache", p, zerolog.Nop(), 50*time.Millisecond)
	if pc.IsHealthy() {
		t.Fatalf("checker must start unhealthy")
	}
	if !pc.Check(context.Background()) || !pc.IsHealthy() {
		t.Fatalf("expected healthy after successful ping")
	}
	p.err.Store(errors.New("dial tcp: refused"))
	if pc.Check(context.Background()) || pc.IsHealthy() {
		t.Fatalf("expected unhealthy after failed ping")
	}
	if pc.Name() != "cache" {
		t.Fatalf("unexpected name %q", pc.Name())
	}
}

func waitTrue(t *testing.T, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before timeout")
}
