package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HealthChecker is implemented by component-level checkers (store, geoindex, cache).
type HealthChecker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

const (
	statusDown int32 = iota
	statusDegraded
	statusUp
)

// ServiceHealthChecker aggregates component checkers into a single service health flag.
// Required checkers decide whether the service is up. Optional checkers only
// mark it degraded: searches still work through the store fallback without them.
type ServiceHealthChecker struct {
	status   atomic.Int32
	required []HealthChecker
	optional []HealthChecker
	log      zerolog.Logger
}

func NewServiceHealthChecker(log zerolog.Logger, required ...HealthChecker) *ServiceHealthChecker {
	h := &ServiceHealthChecker{required: required, log: log}
	h.status.Store(statusDown)
	return h
}

// AddOptional registers checkers whose failure degrades but does not fail the service.
// Call before Start.
func (h *ServiceHealthChecker) AddOptional(deps ...HealthChecker) {
	h.optional = append(h.optional, deps...)
}

// IsHealthy returns cached service health.
func (h *ServiceHealthChecker) IsHealthy() bool { return h.status.Load() != statusDown }

// IsDegraded reports that the service is up with at least one optional dependency down.
func (h *ServiceHealthChecker) IsDegraded() bool { return h.status.Load() == statusDegraded }

// Start periodically evaluates dependency health and updates the service flag.
func (h *ServiceHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := statusDown
	eval := func() {
		cur := statusUp
		for _, c := range h.optional {
			if !c.IsHealthy() {
				cur = statusDegraded
			}
		}
		for _, c := range h.required {
			if !c.IsHealthy() {
				cur = statusDown
			}
		}
		h.status.Store(cur)
		if cur != prev {
			switch cur {
			case statusUp:
				h.log.Info().Msg("service health: UP")
			case statusDegraded:
				h.log.Warn().Strs("down", h.downOptional()).Msg("service health: DEGRADED")
			default:
				h.log.Error().Stack().Msg("service health: DOWN")
			}
			prev = cur
		}
	}

	eval()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eval()
		}
	}
}

func (h *ServiceHealthChecker) downOptional() []string {
	var names []string
	for _, c := range h.optional {
		if !c.IsHealthy() {
			names = append(names, c.Name())
		}
	}
	return names
}

// PingChecker probes a HealthPinger on every tick.
type PingChecker struct {
	name         string
	pinger       HealthPinger
	healthy      atomic.Int32
	log          zerolog.Logger
	probeTimeout time.Duration
}

// NewPingChecker creates a checker that starts unhealthy until the first successful probe.
func NewPingChecker(name string, pinger HealthPinger, log zerolog.Logger, probeTimeout time.Duration) *PingChecker {
	pc := &PingChecker{name: name, pinger: pinger, log: log, probeTimeout: probeTimeout}
	pc.healthy.Store(0)
	return pc
}

func (pc *PingChecker) Name() string    { return pc.name }
func (pc *PingChecker) IsHealthy() bool { return pc.healthy.Load() == 1 }

func (pc *PingChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pc.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pc.Check(ctx)
		}
	}
}

// Check runs a single probe and updates the cached flag.
func (pc *PingChecker) Check(ctx context.Context) bool {
	to := pc.probeTimeout
	if to <= 0 {
		to = 2 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, to)
	defer cancel()

	if err := pc.pinger.HealthPing(checkCtx); err != nil {
		pc.healthy.Store(0)
		pc.log.Error().Stack().Str("checker", pc.name).Err(err).Msg("health check failed")
		return false
	}
	pc.healthy.Store(1)
	return true
}
