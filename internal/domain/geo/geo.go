// Package geo provides great-circle math on WGS84 coordinates.
package geo

import (
	"math"

	"github.com/okian/roadwatch/internal/domain/model"
)

// EarthRadiusMeters is the mean Earth radius used by every distance helper.
const EarthRadiusMeters = 6_371_000.0

// metersPerDegreeLat is the arc length of one degree along a meridian.
const metersPerDegreeLat = EarthRadiusMeters * math.Pi / 180

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// DistanceMeters returns the haversine distance between a and b.
func DistanceMeters(a, b model.Position) float64 {
	lat1 := toRad(a.Latitude)
	lat2 := toRad(b.Latitude)
	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push h just past 1 for antipodal points
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// BearingDegrees returns the initial bearing from -> to in [0, 360), with
// 0 meaning north. Coincident points yield 0.
func BearingDegrees(from, to model.Position) float64 {
	if from == to {
		return 0
	}
	lat1 := toRad(from.Latitude)
	lat2 := toRad(to.Latitude)
	dLon := toRad(to.Longitude - from.Longitude)

	x := math.Sin(dLon) * math.Cos(lat2)
	y := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	b := math.Mod(toDeg(math.Atan2(x, y))+360, 360)
	if b >= 360 {
		b = 0
	}
	return b
}

// Destination returns the point reached by travelling meters from start
// along the given initial bearing.
func Destination(start model.Position, bearingDeg, meters float64) model.Position {
	lat1 := toRad(start.Latitude)
	lon1 := toRad(start.Longitude)
	brg := toRad(bearingDeg)
	ang := meters / EarthRadiusMeters

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(ang) + math.Cos(lat1)*math.Sin(ang)*math.Cos(brg))
	lon2 := lon1 + math.Atan2(
		math.Sin(brg)*math.Sin(ang)*math.Cos(lat1),
		math.Cos(ang)-math.Sin(lat1)*math.Sin(lat2),
	)
	lon2 = math.Mod(lon2+3*math.Pi, 2*math.Pi) - math.Pi

	return model.Position{Latitude: toDeg(lat2), Longitude: toDeg(lon2)}
}

// Midpoint returns the great-circle midpoint of a and b.
func Midpoint(a, b model.Position) model.Position {
	lat1 := toRad(a.Latitude)
	lat2 := toRad(b.Latitude)
	lon1 := toRad(a.Longitude)
	dLon := toRad(b.Longitude - a.Longitude)

	bx := math.Cos(lat2) * math.Cos(dLon)
	by := math.Cos(lat2) * math.Sin(dLon)

	lat3 := math.Atan2(math.Sin(lat1)+math.Sin(lat2),
		math.Sqrt((math.Cos(lat1)+bx)*(math.Cos(lat1)+bx)+by*by))
	lon3 := lon1 + math.Atan2(by, math.Cos(lat1)+bx)

	return model.Position{Latitude: toDeg(lat3), Longitude: toDeg(lon3)}
}

// MetersToLatDegrees converts a north-south distance to degrees of latitude.
func MetersToLatDegrees(m float64) float64 {
	return m / metersPerDegreeLat
}

// MetersToLonDegrees converts an east-west distance at latitude lat to
// degrees of longitude. Near the poles the span is capped at 360.
func MetersToLonDegrees(m, lat float64) float64 {
	c := math.Cos(toRad(lat))
	if c < 1e-12 {
		return 360
	}
	return math.Min(360, m/(metersPerDegreeLat*c))
}
