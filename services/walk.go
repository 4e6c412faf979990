package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/pawtrail/geo"
	"github.com/cppla/pawtrail/models"
	"github.com/cppla/pawtrail/utils"
)

// Fixed walk thresholds.
const (
	POIQueryRadiusMeters    = 100.0
	POIStopRadiusMeters     = 50.0
	POIMinStop              = 180 * time.Second
	DistanceMilestoneMeters = 1000.0
)

// WalkService owns the lifecycle of walk sessions.
type WalkService struct {
	db         *gorm.DB
	clock      *DayClock
	ledger     *EventLedger
	poi        POIFinder
	poiTimeout time.Duration
}

// NewWalkService wires a walk service. poi may be nil, which disables POI detection.
func NewWalkService(db *gorm.DB, clock *DayClock, ledger *EventLedger, poi POIFinder, poiTimeout time.Duration) *WalkService {
	return &WalkService{db: db, clock: clock, ledger: ledger, poi: poi, poiTimeout: poiTimeout}
}

// Start creates an active walk. startTime defaults to now.
func (s *WalkService) Start(ctx context.Context, owner, petID uint, startTime *time.Time) (*models.WalkSession, error) {
	if owner == 0 {
		return nil, fmt.Errorf("%w: owner required", ErrValidation)
	}
	if petID == 0 {
		return nil, fmt.Errorf("%w: pet required", ErrValidation)
	}

	start := s.clock.Now()
	if startTime != nil && !startTime.IsZero() {
		start = startTime.UTC()
	}

	session := models.WalkSession{
		ID:        uuid.NewString(),
		UserID:    owner,
		PetID:     petID,
		StartTime: start,
	}
	_ = session.SetRoutePoints(nil)
	_ = session.SetPOIList(nil)

	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// Get returns the walk when it belongs to owner.
func (s *WalkService) Get(ctx context.Context, owner uint, id string) (*models.WalkSession, error) {
	var session models.WalkSession
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, owner).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: walk %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// List returns one page of owner's walks, newest first, and the total count.
func (s *WalkService) List(ctx context.Context, owner uint, page, pageSize int) ([]models.WalkSession, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	db := s.db.WithContext(ctx).Model(&models.WalkSession{}).Where("user_id = ?", owner)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var sessions []models.WalkSession
	err := db.Order("start_time DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&sessions).Error
	if err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

// AppendRoute adds points to an active walk and recomputes its totals from the
// full route. POI detection runs afterwards against the last appended point;
// its failures never fail the append.
func (s *WalkService) AppendRoute(ctx context.Context, owner uint, id string, points []models.RoutePoint) (*models.WalkSession, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no route points", ErrValidation)
	}
	for i, p := range points {
		if err := validatePoint(p); err != nil {
			return nil, fmt.Errorf("%w: point %d: %v", ErrValidation, i, err)
		}
	}

	var session models.WalkSession
	var route []models.RoutePoint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockWalk(tx, &session, id, owner); err != nil {
			return err
		}
		if !session.Active() {
			return fmt.Errorf("%w: walk %s is completed", ErrInvalidState, id)
		}

		current, err := session.RoutePoints()
		if err != nil {
			return err
		}
		route = append(current, points...)
		for i := range route {
			route[i].Timestamp = route[i].Timestamp.UTC()
		}
		if err := session.SetRoutePoints(route); err != nil {
			return err
		}
		session.DistanceMeters = geo.TotalDistance(route)
		session.DurationSeconds = durationSeconds(route)

		return tx.Model(&session).Updates(map[string]interface{}{
			"route":            session.Route,
			"distance_meters":  session.DistanceMeters,
			"duration_seconds": session.DurationSeconds,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	if session.Active() {
		s.DetectAndRecordPOI(ctx, &session, route[len(route)-1], route)
	}
	return &session, nil
}

// DetectAndRecordPOI looks up places around center and records those the
// walker stopped at for at least POIMinStop within POIStopRadiusMeters.
// Each newly recorded place also fires EXPLORE_NEW_POI keyed by its place id.
// Lookup failures are logged and treated as no results.
func (s *WalkService) DetectAndRecordPOI(ctx context.Context, session *models.WalkSession, center models.RoutePoint, routeSoFar []models.RoutePoint) []models.WalkPOI {
	if s.poi == nil || !session.Active() {
		return nil
	}

	lookupCtx := ctx
	if s.poiTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, s.poiTimeout)
		defer cancel()
	}
	candidates, err := s.poi.FindNearby(lookupCtx, center.Lat, center.Lng, POIQueryRadiusMeters)
	if err != nil {
		utils.Sugar.Warnw("poi lookup failed, treating as no results", "walk_id", session.ID, "err", err)
		return nil
	}

	known, err := session.POIList()
	if err != nil {
		utils.Sugar.Errorw("decode walk pois failed", "walk_id", session.ID, "err", err)
		return nil
	}

	var stopped []models.WalkPOI
	for _, c := range candidates {
		if c.PlaceID == "" || models.HasPOI(known, c.PlaceID) || models.HasPOI(stopped, c.PlaceID) {
			continue
		}
		if !geo.IsStoppedNear(routeSoFar, c.Location, POIMinStop, POIStopRadiusMeters) {
			continue
		}
		stay := geo.StoppedDuration(routeSoFar, c.Location, POIStopRadiusMeters)
		stopped = append(stopped, models.WalkPOI{
			PlaceID:                c.PlaceID,
			Name:                   c.Name,
			Type:                   c.Type,
			Location:               c.Location,
			Timestamp:              center.Timestamp.UTC(),
			StoppedDurationSeconds: int64(stay / time.Second),
		})
	}
	if len(stopped) == 0 {
		return nil
	}

	var recorded []models.WalkPOI
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		recorded = nil
		var fresh models.WalkSession
		if err := lockWalk(tx, &fresh, session.ID, session.UserID); err != nil {
			return err
		}
		if !fresh.Active() {
			return nil
		}
		pois, err := fresh.POIList()
		if err != nil {
			return err
		}
		for _, p := range stopped {
			if models.HasPOI(pois, p.PlaceID) {
				continue
			}
			pois = append(pois, p)
			recorded = append(recorded, p)
		}
		if len(recorded) == 0 {
			return nil
		}
		if err := fresh.SetPOIList(pois); err != nil {
			return err
		}
		if err := tx.Model(&fresh).Update("pois", fresh.POIs).Error; err != nil {
			return err
		}
		session.POIs = fresh.POIs
		return nil
	})
	if err != nil {
		utils.Sugar.Errorw("record walk pois failed", "walk_id", session.ID, "err", err)
		return nil
	}

	for _, p := range recorded {
		placeID := p.PlaceID
		if _, err := s.ledger.Register(ctx, session.UserID, EventExploreNewPOI, &placeID); err != nil {
			utils.Sugar.Warnw("explore event failed", "walk_id", session.ID, "place_id", placeID, "err", err)
		}
	}
	return recorded
}

// Complete finalizes the walk. Completing a finalized walk returns the stored
// record; completion events are re-registered and deduplicated by the ledger.
func (s *WalkService) Complete(ctx context.Context, owner uint, id string) (*models.WalkSession, error) {
	return s.complete(ctx, owner, id, false)
}

// SetShared toggles the share flag, which is allowed in both states.
func (s *WalkService) SetShared(ctx context.Context, owner uint, id string, shared bool) (*models.WalkSession, error) {
	session, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(session).Update("is_shared", shared).Error; err != nil {
		return nil, err
	}
	session.IsShared = shared
	return session, nil
}

// AutoCompleteStale finalizes active walks started more than maxAge ago and
// returns how many it closed.
func (s *WalkService) AutoCompleteStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.clock.Now().Add(-maxAge)
	var stale []models.WalkSession
	err := s.db.WithContext(ctx).
		Select("id", "user_id").
		Where("end_time IS NULL AND start_time < ?", cutoff).
		Order("start_time ASC").
		Limit(200).
		Find(&stale).Error
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, w := range stale {
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		if _, err := s.complete(ctx, w.UserID, w.ID, true); err != nil {
			utils.Sugar.Warnw("auto-complete walk failed", "walk_id", w.ID, "err", err)
			continue
		}
		closed++
	}
	return closed, nil
}

func (s *WalkService) complete(ctx context.Context, owner uint, id string, auto bool) (*models.WalkSession, error) {
	var session models.WalkSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockWalk(tx, &session, id, owner); err != nil {
			return err
		}
		if !session.Active() {
			return nil
		}

		route, err := session.RoutePoints()
		if err != nil {
			return err
		}
		end := s.clock.Now()
		session.EndTime = &end
		session.DistanceMeters = geo.TotalDistance(route)
		session.DurationSeconds = durationSeconds(route)
		session.IsAutoCompleted = auto

		return tx.Model(&session).Updates(map[string]interface{}{
			"end_time":          session.EndTime,
			"distance_meters":   session.DistanceMeters,
			"duration_seconds":  session.DurationSeconds,
			"is_auto_completed": session.IsAutoCompleted,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	if err := s.registerCompletion(ctx, &session); err != nil {
		return &session, err
	}
	return &session, nil
}

// registerCompletion fires the completion milestones scoped to the day the
// walk ended, so a retried call lands on the same ledger keys.
func (s *WalkService) registerCompletion(ctx context.Context, session *models.WalkSession) error {
	dateKey := s.clock.DayKey(*session.EndTime)
	target := session.ID
	if _, err := s.ledger.RegisterOn(ctx, session.UserID, EventWalkCompleted, &target, &dateKey); err != nil {
		return err
	}
	if session.DistanceMeters >= DistanceMilestoneMeters {
		if _, err := s.ledger.RegisterOn(ctx, session.UserID, EventWalkDistance1KM, &target, &dateKey); err != nil {
			return err
		}
	}
	return nil
}

func lockWalk(tx *gorm.DB, session *models.WalkSession, id string, owner uint) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND user_id = ?", id, owner).
		First(session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: walk %s", ErrNotFound, id)
	}
	return err
}

func durationSeconds(route []models.RoutePoint) int64 {
	return int64(geo.TotalDuration(route) / time.Second)
}

func validatePoint(p models.RoutePoint) error {
	switch {
	case math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90:
		return errors.New("latitude out of range")
	case math.IsNaN(p.Lng) || p.Lng < -180 || p.Lng > 180:
		return errors.New("longitude out of range")
	case p.Timestamp.IsZero():
		return errors.New("timestamp required")
	case p.Accuracy != nil && (*p.Accuracy < 0 || math.IsNaN(*p.Accuracy)):
		return errors.New("negative accuracy")
	}
	return nil
}
