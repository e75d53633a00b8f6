// Package geo provides great-circle distance math for proximity queries.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used for all distance calculations.
// Repository SQL embeds the same constant so Go-side and SQL-side distances agree.
const EarthRadiusKm = 6371.0

// HotspotRadiusKm is the clustering radius for hotspot membership (500 meters).
const HotspotRadiusKm = 0.5

// DistanceKm returns the Haversine distance in kilometers between two points.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// ValidCoordinates reports whether lat/lon form a usable WGS84 coordinate pair.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
