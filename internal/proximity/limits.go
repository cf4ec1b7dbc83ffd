package proximity

import (
	"math"

	"github.com/geosocial/proximity/internal/config"
	"github.com/geosocial/proximity/internal/model"
)

// Limits bounds a nearby query and the work done to answer it.
type Limits struct {
	MaxRadiusMeters     float64
	DefaultRadiusMeters float64
	DefaultLimit        int
	MaxLimit            int
	// CandidateOverfetch multiplies the limit when asking the index for candidates.
	CandidateOverfetch int
	// FallbackScanLimit caps the rows read per bounding box on the store fallback.
	FallbackScanLimit  int
	HydrateConcurrency int
}

// DefaultLimits mirrors the configuration defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxRadiusMeters:     5000,
		DefaultRadiusMeters: 5000,
		DefaultLimit:        20,
		MaxLimit:            50,
		CandidateOverfetch:  2,
		FallbackScanLimit:   1000,
		HydrateConcurrency:  8,
	}
}

// LimitsFromConfig reads the search bounds from cfg.
func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		MaxRadiusMeters:     cfg.MaxSearchRadius,
		DefaultRadiusMeters: cfg.DefaultSearchRadius,
		DefaultLimit:        cfg.DefaultLimit,
		MaxLimit:            cfg.MaxLimit,
		CandidateOverfetch:  cfg.CandidateOverfetch,
		FallbackScanLimit:   cfg.FallbackScanLimit,
		HydrateConcurrency:  cfg.HydrateConcurrency,
	}
}

// Query is a nearby search around a point.
type Query struct {
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
	Limit        int
}

// normalize validates q and applies defaults and clamps.
func (l Limits) normalize(q Query) (Query, error) {
	if err := (model.Coordinate{Latitude: q.Latitude, Longitude: q.Longitude}).Validate(); err != nil {
		return q, err
	}
	if math.IsNaN(q.RadiusMeters) || q.RadiusMeters < 0 {
		return q, model.NewValidationError("radius", "must be a non-negative number of meters")
	}
	switch {
	case q.RadiusMeters == 0:
		q.RadiusMeters = l.DefaultRadiusMeters
	case q.RadiusMeters > l.MaxRadiusMeters:
		q.RadiusMeters = l.MaxRadiusMeters
	}
	switch {
	case q.Limit <= 0:
		q.Limit = l.DefaultLimit
	case q.Limit > l.MaxLimit:
		q.Limit = l.MaxLimit
	}
	return q, nil
}

func (l Limits) fetchCount(limit int) int {
	if l.CandidateOverfetch < 1 {
		return limit
	}
	return limit * l.CandidateOverfetch
}

func (l Limits) concurrency() int {
	if l.HydrateConcurrency < 1 {
		return 1
	}
	return l.HydrateConcurrency
}
