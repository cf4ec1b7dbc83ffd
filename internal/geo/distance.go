// Package geo holds the distance and bounding box math shared by the index,
// the store fallback and the search service.
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	// EarthRadiusMeters is the mean earth radius used by Distance.
	EarthRadiusMeters = 6371000.0
	// MetersPerDegree is the coarse degree length used to size bounding boxes.
	MetersPerDegree = 111000.0
)

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// Distance returns the great-circle distance in meters between two points
// using the Haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	if a > 1 {
		a = 1
	}
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// PointDistance is Distance for orb points (longitude first).
func PointDistance(a, b orb.Point) float64 {
	return Distance(a.Lat(), a.Lon(), b.Lat(), b.Lon())
}
