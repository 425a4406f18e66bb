// Package geo provides great-circle distance and point encoding helpers.
package geo

import "math"

// EarthRadiusKM is the mean Earth radius used by DistanceKM.
const EarthRadiusKM = 6371.0

// DistanceKM returns the haversine great-circle distance in kilometers
// between two points given in decimal degrees. Inputs are not range checked.
func DistanceKM(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := phi2 - phi1
	dLambda := radians(lon2) - radians(lon1)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKM * c
}

// RoundKM rounds a distance to two decimal places for display.
func RoundKM(km float64) float64 {
	return math.Round(km*100) / 100
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
