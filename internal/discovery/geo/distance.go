// Package geo provides the pure distance, ordering and filtering helpers
// behind the cafe list. Nothing here mutates its inputs.
package geo

import (
	"math"
	"strconv"
)

const earthRadiusKm = 6371.0

// missingDistanceKm sorts cafes without a computed distance after every cafe
// that has one.
const missingDistanceKm = 999.0

// HaversineKm returns the great-circle distance between two coordinates.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*sinLon*sinLon
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// FormatKm renders a distance rounded to one decimal, e.g. "1.3".
func FormatKm(km float64) string {
	return strconv.FormatFloat(math.Round(km*10)/10, 'f', 1, 64)
}

// RatingText maps an average rating to its descriptive label.
func RatingText(rating *float64) string {
	if rating == nil || math.IsNaN(*rating) {
		return "Sin clasificación"
	}
	switch r := *rating; {
	case r >= 4.5:
		return "Excelente"
	case r >= 4.0:
		return "Muy bueno"
	case r >= 3.5:
		return "Bueno"
	case r >= 3.0:
		return "Regular"
	default:
		return "Aceptable"
	}
}

func ratingOrZero(rating *float64) float64 {
	if rating == nil || math.IsNaN(*rating) {
		return 0
	}
	return *rating
}

func distanceOrSentinel(km *float64) float64 {
	if km == nil {
		return missingDistanceKm
	}
	return *km
}
