// Package geospatial has the spherical-earth helpers shared by the tracking
// engine and the driver simulator. Coordinates are WGS84 decimal degrees.
package geospatial

import "math"

// EarthRadius is the mean earth radius in meters.
const EarthRadius = 6_371_000.0

// Haversine returns the great-circle distance in meters between
// (lat1, lon1) and (lat2, lon2).
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := radians(lat1), radians(lat2)
	sinLat := math.Sin(radians(lat2-lat1) / 2)
	sinLon := math.Sin(radians(lon2-lon1) / 2)

	h := sinLat*sinLat + math.Cos(phi1)*math.Cos(phi2)*sinLon*sinLon
	return 2 * EarthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Bearing is the initial compass heading in degrees [0, 360) for travel
// from the first point to the second. Coincident points give 0.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}
	phi1, phi2 := radians(lat1), radians(lat2)
	dLon := radians(lon2 - lon1)

	y := math.Sin(dLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLon)
	return math.Mod(degrees(math.Atan2(y, x))+360, 360)
}

// Lerp moves fraction f of the way from the first point to the second in
// plain coordinate space. Good enough for the short legs between stages.
func Lerp(lat1, lon1, lat2, lon2, f float64) (lat, lon float64) {
	return lat1 + (lat2-lat1)*f, lon1 + (lon2-lon1)*f
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
