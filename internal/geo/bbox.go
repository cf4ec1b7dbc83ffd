package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// Ranges converts a radius in meters around latitude lat into degree half-widths.
//
// latRange is radius/111000. lonRange starts from radius/(111000*cos(lat)) and is
// widened to the exact spherical longitude extent of the circle where that is
// larger, so every point within radius falls inside the box. A circle that
// reaches a pole yields lonRange 180.
func Ranges(lat, radiusMeters float64) (latRange, lonRange float64) {
	latRange = radiusMeters / MetersPerDegree

	cosLat := math.Cos(toRadians(lat))
	if cosLat <= 1e-12 {
		return latRange, 180
	}
	lonRange = radiusMeters / (MetersPerDegree * cosLat)

	angular := radiusMeters / EarthRadiusMeters
	if s := math.Sin(angular); s >= cosLat || angular >= math.Pi/2 {
		return latRange, 180
	} else if exact := toDegrees(math.Asin(s / cosLat)); exact > lonRange {
		lonRange = exact
	}
	if lonRange > 180 {
		lonRange = 180
	}
	return latRange, lonRange
}

// BoundingBoxes returns the degree boxes covering the circle of radiusMeters
// around (lat, lon). Two boxes are returned when the circle crosses the
// antimeridian; a box touching a pole spans every longitude.
func BoundingBoxes(lat, lon, radiusMeters float64) []orb.Bound {
	latRange, lonRange := Ranges(lat, radiusMeters)

	minLat := lat - latRange
	maxLat := lat + latRange
	polar := false
	if minLat <= -90 {
		minLat = -90
		polar = true
	}
	if maxLat >= 90 {
		maxLat = 90
		polar = true
	}
	if polar || lonRange >= 180 {
		return []orb.Bound{box(-180, minLat, 180, maxLat)}
	}

	minLon := lon - lonRange
	maxLon := lon + lonRange
	switch {
	case minLon < -180:
		return []orb.Bound{
			box(minLon+360, minLat, 180, maxLat),
			box(-180, minLat, maxLon, maxLat),
		}
	case maxLon > 180:
		return []orb.Bound{
			box(minLon, minLat, 180, maxLat),
			box(-180, minLat, maxLon-360, maxLat),
		}
	}
	return []orb.Bound{box(minLon, minLat, maxLon, maxLat)}
}

func box(minLon, minLat, maxLon, maxLat float64) orb.Bound {
	return orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}
}

// ContainsAny reports whether p lies in at least one of the boxes.
func ContainsAny(boxes []orb.Bound, p orb.Point) bool {
	for _, b := range boxes {
		if b.Contains(p) {
			return true
		}
	}
	return false
}
