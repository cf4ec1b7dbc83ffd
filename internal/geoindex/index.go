// Package geoindex maintains per-kind geospatial point sets used to find
// candidate entities near a location.
package geoindex

import (
	"context"
	"errors"

	"github.com/geosocial/proximity/internal/model"
)

// MaxLatitude bounds the latitudes a Redis GEO set can store (EPSG:900913).
const MaxLatitude = 85.05112878

// ErrUnindexable is returned for coordinates outside the indexable latitude band.
var ErrUnindexable = errors.New("coordinate outside indexable latitude band")

// Candidate is an index hit. DistanceMeters is approximate: it is computed
// from the indexed position with the backend's own earth model.
type Candidate struct {
	ID             string
	DistanceMeters float64
}

// Index is a geospatial point set keyed by kind and entity id.
//
// Upsert and Remove report failures so callers can decide whether to proceed.
// QueryRadius failures wrap model.ErrIndexUnavailable; callers treat them as
// "no candidates" and fall back to the store.
type Index interface {
	Upsert(ctx context.Context, kind model.Kind, id string, c model.Coordinate) error
	Remove(ctx context.Context, kind model.Kind, id string) error
	QueryRadius(ctx context.Context, kind model.Kind, center model.Coordinate, radiusMeters float64, limit int) ([]Candidate, error)
	// Members lists every id indexed for kind.
	Members(ctx context.Context, kind model.Kind) ([]string, error)
}

// Key returns the geo set key for kind.
func Key(kind model.Kind) string { return "geo:" + string(kind) }

// Indexable reports whether lat can be stored in the index.
func Indexable(lat float64) bool { return lat >= -MaxLatitude && lat <= MaxLatitude }
