package geo

import (
	"math"
	"testing"
	"time"

	"github.com/cppla/pawtrail/models"
)

var t0 = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

// metersNorth shifts p by m meters along the meridian.
func metersNorth(p models.RoutePoint, m float64) models.RoutePoint {
	p.Lat += m / (EarthRadiusMeters * math.Pi / 180)
	return p
}

func at(p models.RoutePoint, sec int) models.RoutePoint {
	p.Timestamp = t0.Add(time.Duration(sec) * time.Second)
	return p
}

func TestDistanceOneDegreeOfLongitudeAtEquator(t *testing.T) {
	got := Distance(models.RoutePoint{Lat: 0, Lng: 0}, models.RoutePoint{Lat: 0, Lng: 1})
	want := 2 * math.Pi * EarthRadiusMeters / 360
	if math.Abs(got-want) > 0.01 {
		t.Fatalf("Distance() = %f, want %f", got, want)
	}
}

func TestDistanceSamePointIsZero(t *testing.T) {
	p := models.RoutePoint{Lat: 37.5665, Lng: 126.978}
	if d := Distance(p, p); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestTotalDistanceShortRoutes(t *testing.T) {
	if d := TotalDistance(nil); d != 0 {
		t.Errorf("nil route: got %f", d)
	}
	if d := TotalDistance([]models.RoutePoint{{Lat: 1, Lng: 1}}); d != 0 {
		t.Errorf("single point: got %f", d)
	}
	if d := TotalDuration([]models.RoutePoint{at(models.RoutePoint{}, 10)}); d != 0 {
		t.Errorf("single point duration: got %v", d)
	}
}

func TestTotalDistanceIsSumAndMonotonic(t *testing.T) {
	start := models.RoutePoint{Lat: 37.5665, Lng: 126.978}
	route := []models.RoutePoint{at(start, 0)}
	prev := 0.0
	for i := 1; i <= 20; i++ {
		next := at(metersNorth(start, float64(i*15)), i*10)
		next.Lng += float64(i%3) * 0.0001
		route = append(route, next)

		sum := 0.0
		for j := 1; j < len(route); j++ {
			sum += Distance(route[j-1], route[j])
		}
		total := TotalDistance(route)
		if total != sum {
			t.Fatalf("TotalDistance() = %f, want pairwise sum %f", total, sum)
		}
		if total < prev {
			t.Fatalf("distance decreased after append: %f < %f", total, prev)
		}
		prev = total
	}
	if d := TotalDuration(route); d != 200*time.Second {
		t.Fatalf("TotalDuration() = %v, want 200s", d)
	}
}

func TestIsNear(t *testing.T) {
	center := models.RoutePoint{Lat: 37.5, Lng: 127.0}
	if !IsNear(metersNorth(center, 49), center, 50) {
		t.Error("49m should be within 50m")
	}
	if IsNear(metersNorth(center, 51), center, 50) {
		t.Error("51m should be outside 50m")
	}
}

func stopRoute(center models.RoutePoint, insideSeconds int) []models.RoutePoint {
	route := []models.RoutePoint{at(metersNorth(center, 300), 0)}
	for s := 1; s <= insideSeconds+1; s++ {
		route = append(route, at(metersNorth(center, 20), s))
	}
	return route
}

func TestIsStoppedNearBoundary(t *testing.T) {
	center := models.RoutePoint{Lat: 37.5, Lng: 127.0}

	short := stopRoute(center, 179)
	if d := StoppedDuration(short, center, 50); d != 179*time.Second {
		t.Fatalf("StoppedDuration() = %v, want 179s", d)
	}
	if IsStoppedNear(short, center, 180*time.Second, 50) {
		t.Fatal("179s inside radius must not count as a stop")
	}

	long := stopRoute(center, 181)
	if !IsStoppedNear(long, center, 180*time.Second, 50) {
		t.Fatal("181s inside radius must count as a stop")
	}
}

func TestIsStoppedNearLastPointOutside(t *testing.T) {
	center := models.RoutePoint{Lat: 37.5, Lng: 127.0}
	route := stopRoute(center, 600)
	route = append(route, at(metersNorth(center, 120), 700))

	if IsStoppedNear(route, center, 180*time.Second, 50) {
		t.Fatal("a stop that already ended must not count")
	}
	if d := StoppedDuration(route, center, 50); d != 0 {
		t.Fatalf("expected 0 duration, got %v", d)
	}
	if IsStoppedNear(nil, center, 0, 50) {
		t.Fatal("empty route must not count")
	}
}
