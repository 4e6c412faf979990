package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// RoutePoint is one GPS sample of a walk.
type RoutePoint struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
}

// WalkPOI is a point of interest the walker actually stopped at.
type WalkPOI struct {
	PlaceID                string     `json:"place_id"`
	Name                   string     `json:"name"`
	Type                   string     `json:"type"`
	Location               RoutePoint `json:"location"`
	Timestamp              time.Time  `json:"timestamp"`
	StoppedDurationSeconds int64      `json:"stopped_duration_seconds"`
}

// WalkSession is a single walk owned by the user who started it.
// EndTime is nil while the walk is active; Route and POIs are JSON arrays.
// DistanceMeters and DurationSeconds are caches derived from Route.
type WalkSession struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	UserID          uint           `gorm:"index:idx_walk_user_start,priority:1;not null" json:"user_id"`
	PetID           uint           `gorm:"index;not null" json:"pet_id"`
	StartTime       time.Time      `gorm:"index:idx_walk_user_start,priority:2;not null" json:"start_time"`
	EndTime         *time.Time     `gorm:"index" json:"end_time"`
	Route           datatypes.JSON `json:"route"`
	DistanceMeters  float64        `gorm:"not null;default:0" json:"distance_meters"`
	DurationSeconds int64          `gorm:"not null;default:0" json:"duration_seconds"`
	POIs            datatypes.JSON `gorm:"column:pois" json:"pois"`
	IsAutoCompleted bool           `gorm:"not null;default:false" json:"is_auto_completed"`
	IsShared        bool           `gorm:"not null;default:false" json:"is_shared"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Active reports whether the walk can still accept route points.
func (w *WalkSession) Active() bool {
	return w.EndTime == nil
}

// RoutePoints decodes the stored route.
func (w *WalkSession) RoutePoints() ([]RoutePoint, error) {
	var pts []RoutePoint
	if len(w.Route) == 0 {
		return pts, nil
	}
	if err := json.Unmarshal(w.Route, &pts); err != nil {
		return nil, err
	}
	return pts, nil
}

// SetRoutePoints encodes pts into the route column.
func (w *WalkSession) SetRoutePoints(pts []RoutePoint) error {
	if pts == nil {
		pts = []RoutePoint{}
	}
	b, err := json.Marshal(pts)
	if err != nil {
		return err
	}
	w.Route = datatypes.JSON(b)
	return nil
}

// POIList decodes the stored points of interest.
func (w *WalkSession) POIList() ([]WalkPOI, error) {
	var pois []WalkPOI
	if len(w.POIs) == 0 {
		return pois, nil
	}
	if err := json.Unmarshal(w.POIs, &pois); err != nil {
		return nil, err
	}
	return pois, nil
}

// SetPOIList encodes pois into the pois column.
func (w *WalkSession) SetPOIList(pois []WalkPOI) error {
	if pois == nil {
		pois = []WalkPOI{}
	}
	b, err := json.Marshal(pois)
	if err != nil {
		return err
	}
	w.POIs = datatypes.JSON(b)
	return nil
}

// HasPOI reports whether placeID was already recorded on this walk.
func HasPOI(pois []WalkPOI, placeID string) bool {
	for _, p := range pois {
		if p.PlaceID == placeID {
			return true
		}
	}
	return false
}
