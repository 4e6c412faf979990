package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cppla/pawtrail/geo"
	"github.com/cppla/pawtrail/models"
)

// placeFinder returns the configured places lying within the query radius.
type placeFinder struct {
	places []POICandidate
	err    error
}

func (p *placeFinder) FindNearby(ctx context.Context, lat, lng, radius float64) ([]POICandidate, error) {
	if p.err != nil {
		return nil, p.err
	}
	center := models.RoutePoint{Lat: lat, Lng: lng}
	var out []POICandidate
	for _, c := range p.places {
		if geo.Distance(center, c.Location) <= radius {
			out = append(out, c)
		}
	}
	return out, nil
}

var walkOrigin = models.RoutePoint{Lat: 37.5283, Lng: 126.9340}

func north(m float64) models.RoutePoint {
	p := walkOrigin
	p.Lat += m / (geo.EarthRadiusMeters * math.Pi / 180)
	return p
}

func sample(m float64, at time.Time) models.RoutePoint {
	p := north(m)
	p.Timestamp = at
	return p
}

func startWalk(t *testing.T, f *fixture) *models.WalkSession {
	t.Helper()
	w, err := f.walks.Start(ctx, f.user.ID, 7, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return w
}

func appendOne(t *testing.T, f *fixture, id string, p models.RoutePoint) *models.WalkSession {
	t.Helper()
	w, err := f.walks.AppendRoute(ctx, f.user.ID, id, []models.RoutePoint{p})
	if err != nil {
		t.Fatalf("AppendRoute: %v", err)
	}
	return w
}

func TestStartValidation(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.walks.Start(ctx, 0, 7, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing owner: %v", err)
	}
	if _, err := f.walks.Start(ctx, f.user.ID, 0, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing pet: %v", err)
	}

	begin := f.now.Add(-time.Hour)
	w, err := f.walks.Start(ctx, f.user.ID, 7, &begin)
	if err != nil {
		t.Fatal(err)
	}
	if !w.StartTime.Equal(begin) || !w.Active() || w.ID == "" {
		t.Fatalf("unexpected walk %+v", w)
	}
}

func TestAppendRouteRecomputesFromFullRoute(t *testing.T) {
	f := newFixture(t, nil)
	w := startWalk(t, f)
	t0 := f.now

	first := []models.RoutePoint{sample(0, t0), sample(100, t0.Add(time.Minute))}
	second := []models.RoutePoint{sample(250, t0.Add(2*time.Minute))}
	if _, err := f.walks.AppendRoute(ctx, f.user.ID, w.ID, first); err != nil {
		t.Fatal(err)
	}
	got, err := f.walks.AppendRoute(ctx, f.user.ID, w.ID, second)
	if err != nil {
		t.Fatal(err)
	}

	route, err := got.RoutePoints()
	if err != nil {
		t.Fatal(err)
	}
	if len(route) != 3 {
		t.Fatalf("route length = %d", len(route))
	}
	if want := geo.TotalDistance(route); got.DistanceMeters != want {
		t.Fatalf("distance = %f, want %f", got.DistanceMeters, want)
	}
	if math.Abs(got.DistanceMeters-250) > 0.5 || got.DurationSeconds != 120 {
		t.Fatalf("distance=%f duration=%d", got.DistanceMeters, got.DurationSeconds)
	}

	stored, err := f.walks.Get(ctx, f.user.ID, w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.DistanceMeters != got.DistanceMeters || stored.DurationSeconds != 120 {
		t.Fatalf("stored totals %f/%d", stored.DistanceMeters, stored.DurationSeconds)
	}
}

func TestAppendRouteRejectsInvalidPoints(t *testing.T) {
	f := newFixture(t, nil)
	w := startWalk(t, f)
	neg := -1.0
	bad := [][]models.RoutePoint{
		nil,
		{{Lat: 91, Lng: 0, Timestamp: f.now}},
		{{Lat: 0, Lng: 181, Timestamp: f.now}},
		{{Lat: 0, Lng: 0}},
		{{Lat: 0, Lng: 0, Timestamp: f.now, Accuracy: &neg}},
	}
	for i, pts := range bad {
		if _, err := f.walks.AppendRoute(ctx, f.user.ID, w.ID, pts); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: err = %v, want ErrValidation", i, err)
		}
	}
}

func TestAppendAfterCompleteIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	w := startWalk(t, f)
	appendOne(t, f, w.ID, sample(0, f.now))

	if _, err := f.walks.Complete(ctx, f.user.ID, w.ID); err != nil {
		t.Fatal(err)
	}
	_, err := f.walks.AppendRoute(ctx, f.user.ID, w.ID, []models.RoutePoint{sample(10, f.now.Add(time.Second))})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestWalkOwnershipReportedAsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	w := startWalk(t, f)
	stranger := f.user.ID + 1

	if _, err := f.walks.Get(ctx, stranger, w.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get: %v", err)
	}
	if _, err := f.walks.AppendRoute(ctx, stranger, w.ID, []models.RoutePoint{sample(0, f.now)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("AppendRoute: %v", err)
	}
	if _, err := f.walks.Complete(ctx, stranger, w.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := f.walks.Get(ctx, f.user.ID, "no-such-walk"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id: %v", err)
	}
}

func TestCompleteTwiceReturnsSameRecord(t *testing.T) {
	f := newFixture(t, nil)
	w := startWalk(t, f)
	t0 := f.now
	if _, err := f.walks.AppendRoute(ctx, f.user.ID, w.ID, []models.RoutePoint{sample(0, t0), sample(300, t0.Add(5*time.Minute))}); err != nil {
		t.Fatal(err)
	}
	f.now = t0.Add(6 * time.Minute)

	first, err := f.walks.Complete(ctx, f.user.ID, w.ID)
	if err != nil {
		t.Fatal(err)
	}
	f.now = t0.Add(30 * time.Minute)
	second, err := f.walks.Complete(ctx, f.user.ID, w.ID)
	if err != nil {
		t.Fatal(err)
	}

	if first.EndTime == nil || second.EndTime == nil || !first.EndTime.Equal(*second.EndTime) {
		t.Fatalf("end times differ: %v vs %v", first.EndTime, second.EndTime)
	}
	if first.DistanceMeters != second.DistanceMeters || first.DurationSeconds != second.DurationSeconds {
		t.Fatalf("totals differ: %+v vs %+v", first, second)
	}
	if n := f.countEvents(t, EventWalkCompleted, w.ID); n != 1 {
		t.Fatalf("WALK_COMPLETED rows = %d, want 1", n)
	}
	if n := f.countEvents(t, EventWalkDistance1KM, w.ID); n != 0 {
		t.Fatalf("short walk got distance milestone")
	}
	if u := f.reloadUser(t); u.Points != 10 {
		t.Fatalf("points = %d, want 10", u.Points)
	}
}

func TestPOILookupFailureDoesNotFailAppend(t *testing.T) {
	f := newFixture(t, &placeFinder{err: ErrCollaboratorUnavailable})
	w := startWalk(t, f)

	got, err := f.walks.AppendRoute(ctx, f.user.ID, w.ID, []models.RoutePoint{sample(0, f.now), sample(80, f.now.Add(time.Minute))})
	if err != nil {
		t.Fatalf("append failed with lookup down: %v", err)
	}
	pois, _ := got.POIList()
	if len(pois) != 0 || got.DistanceMeters < 79 {
		t.Fatalf("pois=%v distance=%f", pois, got.DistanceMeters)
	}
}

func TestSlowPOILookupTimesOut(t *testing.T) {
	f := newFixture(t, slowFinder{})
	f.walks.poiTimeout = 20 * time.Millisecond
	w := startWalk(t, f)

	start := time.Now()
	if _, err := f.walks.AppendRoute(ctx, f.user.ID, w.ID, []models.RoutePoint{sample(0, f.now)}); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("append blocked for %v", elapsed)
	}
}

type slowFinder struct{}

func (slowFinder) FindNearby(ctx context.Context, lat, lng, radius float64) ([]POICandidate, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return nil, nil
	}
}

func TestWalkScenarioStopsVersusPassBys(t *testing.T) {
	vet := POICandidate{PlaceID: "vet-1", Name: "Hangang Animal Clinic", Type: "veterinary_care", Location: north(600)}
	park := POICandidate{PlaceID: "park-1", Name: "Yeouido Park", Type: "park", Location: north(3220)}
	f := newFixture(t, &placeFinder{places: []POICandidate{vet, park}})
	t0 := f.now

	// 1200 m in 20 minutes straight past the clinic without stopping
	passBy := startWalk(t, f)
	for i := 0; i <= 20; i++ {
		appendOne(t, f, passBy.ID, sample(float64(i)*60, t0.Add(time.Duration(i)*time.Minute)))
	}
	f.now = t0.Add(21 * time.Minute)
	done, err := f.walks.Complete(ctx, f.user.ID, passBy.ID)
	if err != nil {
		t.Fatal(err)
	}
	if pois, _ := done.POIList(); len(pois) != 0 {
		t.Fatalf("pass-by recorded pois: %+v", pois)
	}
	if done.DistanceMeters < 1000 || done.DurationSeconds != 1200 {
		t.Fatalf("distance=%f duration=%d", done.DistanceMeters, done.DurationSeconds)
	}
	if f.countEvents(t, EventWalkCompleted, passBy.ID) != 1 || f.countEvents(t, EventWalkDistance1KM, passBy.ID) != 1 {
		t.Fatal("expected WALK_COMPLETED and WALK_DISTANCE_1KM rows for the long walk")
	}

	// second walk approaches the park and stays 40 m from it for four minutes
	t1 := t0.Add(time.Hour)
	stay := startWalk(t, f)
	for i, m := range []float64{3000, 3060, 3120, 3180} {
		appendOne(t, f, stay.ID, sample(m, t1.Add(time.Duration(i)*time.Minute)))
	}
	arrived := t1.Add(3 * time.Minute)
	for s := 30; s <= 240; s += 30 {
		appendOne(t, f, stay.ID, sample(3180, arrived.Add(time.Duration(s)*time.Second)))
	}
	f.now = arrived.Add(5 * time.Minute)
	done, err = f.walks.Complete(ctx, f.user.ID, stay.ID)
	if err != nil {
		t.Fatal(err)
	}

	pois, err := done.POIList()
	if err != nil {
		t.Fatal(err)
	}
	if len(pois) != 1 || pois[0].PlaceID != "park-1" {
		t.Fatalf("pois = %+v, want the park only", pois)
	}
	if pois[0].StoppedDurationSeconds < 180 {
		t.Fatalf("stopped %ds, want >= 180", pois[0].StoppedDurationSeconds)
	}
	if n := f.countEvents(t, EventExploreNewPOI, "park-1"); n != 1 {
		t.Fatalf("EXPLORE_NEW_POI rows = %d, want 1", n)
	}
	if n := f.countEvents(t, EventExploreNewPOI, "vet-1"); n != 0 {
		t.Fatalf("vet credited %d times", n)
	}
	if f.countEvents(t, EventWalkCompleted, stay.ID) != 1 || f.countEvents(t, EventWalkDistance1KM, stay.ID) != 0 {
		t.Fatal("short second walk ledger rows wrong")
	}
}

func TestSetSharedAllowedInBothStates(t *testing.T) {
	f := newFixture(t, nil)
	w := startWalk(t, f)

	if got, err := f.walks.SetShared(ctx, f.user.ID, w.ID, true); err != nil || !got.IsShared {
		t.Fatalf("active share: %+v %v", got, err)
	}
	if _, err := f.walks.Complete(ctx, f.user.ID, w.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.walks.SetShared(ctx, f.user.ID, w.ID, false); err != nil {
		t.Fatalf("completed unshare: %v", err)
	}
	stored, _ := f.walks.Get(ctx, f.user.ID, w.ID)
	if stored.IsShared {
		t.Fatal("share flag not persisted")
	}
}

func TestAutoCompleteStaleWalks(t *testing.T) {
	f := newFixture(t, nil)
	old := f.now.Add(-7 * time.Hour)
	stale, err := f.walks.Start(ctx, f.user.ID, 7, &old)
	if err != nil {
		t.Fatal(err)
	}
	fresh := startWalk(t, f)

	closed, err := f.walks.AutoCompleteStale(ctx, 6*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if closed != 1 {
		t.Fatalf("closed = %d, want 1", closed)
	}

	got, _ := f.walks.Get(ctx, f.user.ID, stale.ID)
	if got.Active() || !got.IsAutoCompleted {
		t.Fatalf("stale walk not auto-completed: %+v", got)
	}
	if still, _ := f.walks.Get(ctx, f.user.ID, fresh.ID); !still.Active() {
		t.Fatal("fresh walk was closed")
	}
	if n := f.countEvents(t, EventWalkCompleted, stale.ID); n != 1 {
		t.Fatalf("WALK_COMPLETED rows = %d, want 1", n)
	}
}

func TestListWalksNewestFirst(t *testing.T) {
	f := newFixture(t, nil)
	for i := 3; i >= 1; i-- {
		at := f.now.Add(-time.Duration(i) * time.Hour)
		if _, err := f.walks.Start(ctx, f.user.ID, 7, &at); err != nil {
			t.Fatal(err)
		}
	}

	page, total, err := f.walks.List(ctx, f.user.ID, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(page) != 2 {
		t.Fatalf("total=%d page=%d", total, len(page))
	}
	if !page[0].StartTime.After(page[1].StartTime) {
		t.Fatal("walks not ordered newest first")
	}
	rest, _, _ := f.walks.List(ctx, f.user.ID, 2, 2)
	if len(rest) != 1 {
		t.Fatalf("second page = %d, want 1", len(rest))
	}
}
