// Package geo computes distances and stop detection over walk routes using a
// spherical Earth model. All functions are pure.
package geo

import (
	"math"
	"time"

	"github.com/cppla/pawtrail/models"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b models.RoutePoint) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// TotalDistance sums the distance between consecutive points.
func TotalDistance(route []models.RoutePoint) float64 {
	total := 0.0
	for i := 1; i < len(route); i++ {
		total += Distance(route[i-1], route[i])
	}
	return total
}

// TotalDuration is the time between the first and last point.
func TotalDuration(route []models.RoutePoint) time.Duration {
	if len(route) < 2 {
		return 0
	}
	return route[len(route)-1].Timestamp.Sub(route[0].Timestamp)
}

// IsNear reports whether point lies within radiusMeters of center.
func IsNear(point, center models.RoutePoint, radiusMeters float64) bool {
	return Distance(point, center) <= radiusMeters
}

// StoppedDuration walks the route backwards from the latest point and returns
// the time span of the contiguous tail that stays within radiusMeters of
// center. It is zero when the latest point is outside the radius.
func StoppedDuration(route []models.RoutePoint, center models.RoutePoint, radiusMeters float64) time.Duration {
	if len(route) == 0 {
		return 0
	}
	last := len(route) - 1
	if !IsNear(route[last], center, radiusMeters) {
		return 0
	}
	first := last
	for i := last - 1; i >= 0; i-- {
		if !IsNear(route[i], center, radiusMeters) {
			break
		}
		first = i
	}
	return route[last].Timestamp.Sub(route[first].Timestamp)
}

// IsStoppedNear reports whether the walker has stayed within radiusMeters of
// center for at least minStop, counted back from the latest point.
func IsStoppedNear(route []models.RoutePoint, center models.RoutePoint, minStop time.Duration, radiusMeters float64) bool {
	if len(route) == 0 || !IsNear(route[len(route)-1], center, radiusMeters) {
		return false
	}
	return StoppedDuration(route, center, radiusMeters) >= minStop
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
