package geoindex

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/geosocial/proximity/internal/health"
	"github.com/geosocial/proximity/internal/model"
)

// HealthChecker monitors index health using the HealthPinger implemented by
// the concrete index, or a tiny radius query when none is available.
type HealthChecker struct {
	index        Index
	healthy      atomic.Int32
	log          zerolog.Logger
	probeTimeout time.Duration
}

// NewHealthChecker creates a new geo index health checker.
func NewHealthChecker(index Index, log zerolog.Logger, probeTimeout time.Duration) *HealthChecker {
	hc := &HealthChecker{index: index, log: log, probeTimeout: probeTimeout}
	hc.healthy.Store(0) // start unhealthy until first successful probe
	return hc
}

func (hc *HealthChecker) Name() string    { return "geoindex" }
func (hc *HealthChecker) IsHealthy() bool { return hc.healthy.Load() == 1 }

func (hc *HealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	hc.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hc.probe(ctx)
		}
	}
}

func (hc *HealthChecker) probe(ctx context.Context) {
	to := hc.probeTimeout
	if to <= 0 {
		to = 2 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, to)
	defer cancel()

	var err error
	if p, ok := hc.index.(health.HealthPinger); ok {
		err = p.HealthPing(checkCtx)
	} else {
		_, err = hc.index.QueryRadius(checkCtx, model.KindUser, model.Coordinate{}, 1, 1)
	}
	if err != nil {
		hc.healthy.Store(0)
		hc.log.Error().Stack().Str("checker", hc.Name()).Err(err).Msg("geo index health check failed")
		return
	}
	hc.healthy.Store(1)
}
