package embeddings

import "fmt"

// Timor-Leste municipality bounding boxes, approximate. They give the
// location embedding coarse regional context without a geocoding service.

type region struct {
	name   string
	minLat float64
	maxLat float64
	minLon float64
	maxLon float64
}

var regions = []region{
	{"Dili", -8.65, -8.40, 125.40, 125.70},
	{"Baucau", -8.75, -8.35, 126.20, 126.60},
	{"Bobonaro", -9.15, -8.80, 125.00, 125.40},
	{"Liquica", -8.80, -8.50, 125.05, 125.45},
	{"Manatuto", -8.90, -8.45, 125.85, 126.20},
	{"Lautem", -8.65, -8.30, 126.70, 127.35},
	{"Viqueque", -9.05, -8.65, 126.15, 126.70},
	{"Ainaro", -9.25, -8.85, 125.45, 125.70},
	{"Aileu", -8.95, -8.65, 125.50, 125.75},
	{"Ermera", -8.95, -8.65, 125.25, 125.55},
	{"Manufahi", -9.20, -8.85, 125.70, 126.05},
	{"Covalima", -9.45, -9.00, 124.95, 125.45},
	{"Oecusse", -9.40, -9.05, 124.05, 124.50},
}

// Country-level bounds.
const (
	countryMinLat = -9.50
	countryMaxLat = -8.10
	countryMinLon = 124.00
	countryMaxLon = 127.40
)

// RegionName returns the municipality containing the coordinates, or
// "Unknown" when they fall outside every bounding box.
func RegionName(lat, lon float64) string {
	for _, r := range regions {
		if lat >= r.minLat && lat <= r.maxLat && lon >= r.minLon && lon <= r.maxLon {
			return r.name
		}
	}
	return "Unknown"
}

// LocationDescription synthesizes the text the location embedding is computed
// from: the municipality resolved from the bounding boxes plus the raw
// coordinates. The vector itself comes from the text embedding model.
func LocationDescription(lat, lon float64) string {
	if name := RegionName(lat, lon); name != "Unknown" {
		return fmt.Sprintf("Waste report location in %s municipality, Timor-Leste, at latitude %.4f, longitude %.4f.", name, lat, lon)
	}
	if lat >= countryMinLat && lat <= countryMaxLat && lon >= countryMinLon && lon <= countryMaxLon {
		return fmt.Sprintf("Waste report location in Timor-Leste at latitude %.4f, longitude %.4f.", lat, lon)
	}
	return fmt.Sprintf("Waste report location at latitude %.4f, longitude %.4f.", lat, lon)
}
